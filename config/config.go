package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Engine    EngineConfig     `yaml:"engine"`
	Venue     VenueConfig      `yaml:"venue"`
	Risk      RiskConfig       `yaml:"risk"`
	API       APIConfig        `yaml:"api"`
	Locations []LocationConfig `yaml:"locations"`
	Storage   StorageConfig    `yaml:"storage"`
	Log       LogConfig        `yaml:"log"`
	Control   ControlConfig    `yaml:"control"`

	// Secretos: solo desde el entorno, nunca desde el YAML.
	PrivateKey string `yaml:"-"`
	RPCURL     string `yaml:"-"`
}

// EngineConfig controla la promoción, la supervisión y la asignación.
type EngineConfig struct {
	PromotionIntervalSeconds int     `yaml:"promotion_interval_seconds"`
	InstrumentRefreshMinutes int     `yaml:"instrument_refresh_minutes"`
	ReadingRefreshMinutes    int     `yaml:"reading_refresh_minutes"`
	PromotionThreshold       int     `yaml:"promotion_threshold"` // score mínimo 0-100
	MinProfitPct             float64 `yaml:"min_profit_pct"`
	FeePct                   float64 `yaml:"fee_pct"`
	MaxReadingAgeMinutes     int     `yaml:"max_reading_age_minutes"`
	MinDepth                 float64 `yaml:"min_depth"` // shares en el mejor ask
	SlippageTolerance        float64 `yaml:"slippage_tolerance"`
	PollMinSeconds           float64 `yaml:"poll_min_seconds"`
	PollMaxSeconds           float64 `yaml:"poll_max_seconds"`
	Allocation               string  `yaml:"allocation"` // equal_split | fixed_fraction
	FixedFraction            float64 `yaml:"fixed_fraction"`
	MaxCapital               float64 `yaml:"max_capital"` // 0 = todo el balance
	HorizonDays              int     `yaml:"horizon_days"`
	SweepSpec                string  `yaml:"sweep_spec"`
	DryRunBalance            float64 `yaml:"dry_run_balance"`
}

// VenueConfig son los límites de precisión del venue.
type VenueConfig struct {
	TickSize     float64 `yaml:"tick_size"`
	SizeDecimals int32   `yaml:"size_decimals"`
	CostDecimals int32   `yaml:"cost_decimals"`
	WeatherTag   string  `yaml:"weather_tag"`
}

// RiskConfig son los umbrales de los breakers. Cero desactiva el breaker.
type RiskConfig struct {
	MaxLoss           float64 `yaml:"max_loss"`
	WinRateWindow     int     `yaml:"win_rate_window"`
	WinRateMinSamples int     `yaml:"win_rate_min_samples"`
	WinRateFloor      float64 `yaml:"win_rate_floor"`
	MaxDataAgeMinutes int     `yaml:"max_data_age_minutes"`
	BalanceFloor      float64 `yaml:"balance_floor"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase    string `yaml:"clob_base"`
	GammaBase   string `yaml:"gamma_base"`
	WeatherBase string `yaml:"weather_base"`
	WeatherUnit string `yaml:"weather_unit"` // fahrenheit | celsius
}

// LocationConfig es una ubicación con cobertura meteorológica.
type LocationConfig struct {
	Name     string  `yaml:"name"`
	Lat      float64 `yaml:"lat"`
	Lon      float64 `yaml:"lon"`
	Timezone string  `yaml:"timezone"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// ControlConfig configura la superficie HTTP de operador.
type ControlConfig struct {
	Addr     string `yaml:"addr"` // vacío = deshabilitado
	StopFile string `yaml:"stop_file"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse interpreta un YAML ya leído y aplica entorno y defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PromotionInterval devuelve el intervalo de promoción como time.Duration.
func (c *Config) PromotionInterval() time.Duration {
	return time.Duration(c.Engine.PromotionIntervalSeconds) * time.Second
}

// InstrumentRefresh devuelve cada cuánto se refresca el universo.
func (c *Config) InstrumentRefresh() time.Duration {
	return time.Duration(c.Engine.InstrumentRefreshMinutes) * time.Minute
}

// ReadingRefresh devuelve cada cuánto se piden lecturas nuevas.
func (c *Config) ReadingRefresh() time.Duration {
	return time.Duration(c.Engine.ReadingRefreshMinutes) * time.Minute
}

// PollBand devuelve la banda de jitter de los workers.
func (c *Config) PollBand() (time.Duration, time.Duration) {
	return seconds(c.Engine.PollMinSeconds), seconds(c.Engine.PollMaxSeconds)
}

// MaxReadingAge es la antigüedad a partir de la cual una lectura es stale.
func (c *Config) MaxReadingAge() time.Duration {
	return time.Duration(c.Engine.MaxReadingAgeMinutes) * time.Minute
}

// MaxDataAge es el techo del breaker de frescura.
func (c *Config) MaxDataAge() time.Duration {
	return time.Duration(c.Risk.MaxDataAgeMinutes) * time.Minute
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("WXBOT_CONTROL_ADDR"); v != "" {
		cfg.Control.Addr = v
	}
	if v := os.Getenv("WXBOT_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	cfg.PrivateKey = os.Getenv("POLY_PRIVATE_KEY")
	cfg.RPCURL = os.Getenv("POLY_RPC_URL")
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	e := &cfg.Engine
	if e.PromotionIntervalSeconds <= 0 {
		e.PromotionIntervalSeconds = 60
	}
	if e.InstrumentRefreshMinutes <= 0 {
		e.InstrumentRefreshMinutes = 10
	}
	if e.ReadingRefreshMinutes <= 0 {
		e.ReadingRefreshMinutes = 5
	}
	if e.PromotionThreshold <= 0 {
		e.PromotionThreshold = 70
	}
	if e.MinProfitPct <= 0 {
		e.MinProfitPct = 2
	}
	if e.MaxReadingAgeMinutes <= 0 {
		e.MaxReadingAgeMinutes = 90
	}
	if e.MinDepth <= 0 {
		e.MinDepth = 50
	}
	if e.SlippageTolerance <= 0 {
		e.SlippageTolerance = 0.02
	}
	if e.PollMinSeconds <= 0 {
		e.PollMinSeconds = 2
	}
	if e.PollMaxSeconds < e.PollMinSeconds {
		e.PollMaxSeconds = max(5, e.PollMinSeconds)
	}
	if e.Allocation == "" {
		e.Allocation = "equal_split"
	}
	if e.HorizonDays <= 0 {
		e.HorizonDays = 1
	}
	if e.SweepSpec == "" {
		e.SweepSpec = "@every 6h"
	}
	if e.DryRunBalance <= 0 {
		e.DryRunBalance = 1000
	}

	if cfg.Venue.TickSize <= 0 {
		cfg.Venue.TickSize = 0.01
	}
	if cfg.Venue.SizeDecimals <= 0 {
		cfg.Venue.SizeDecimals = 2
	}
	if cfg.Venue.CostDecimals <= 0 {
		cfg.Venue.CostDecimals = 2
	}
	if cfg.Venue.WeatherTag == "" {
		cfg.Venue.WeatherTag = "weather"
	}

	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.WeatherBase == "" {
		cfg.API.WeatherBase = "https://api.open-meteo.com"
	}
	if cfg.API.WeatherUnit == "" {
		cfg.API.WeatherUnit = "fahrenheit"
	}

	for i := range cfg.Locations {
		// las claves de ubicación se cruzan con las preguntas del venue en minúsculas
		cfg.Locations[i].Name = strings.ToLower(strings.Join(strings.Fields(cfg.Locations[i].Name), " "))
		if cfg.Locations[i].Timezone == "" {
			cfg.Locations[i].Timezone = "auto"
		}
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "wxbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Control.StopFile == "" {
		cfg.Control.StopFile = "STOP_LIVE"
	}
}

func (c *Config) validate() error {
	switch c.Engine.Allocation {
	case "equal_split":
	case "fixed_fraction":
		if c.Engine.FixedFraction <= 0 || c.Engine.FixedFraction > 1 {
			return fmt.Errorf("engine.fixed_fraction must be in (0,1], got %v", c.Engine.FixedFraction)
		}
	default:
		return fmt.Errorf("engine.allocation: unknown policy %q", c.Engine.Allocation)
	}
	switch c.API.WeatherUnit {
	case "fahrenheit", "celsius":
	default:
		return fmt.Errorf("api.weather_unit: unknown unit %q", c.API.WeatherUnit)
	}
	seen := make(map[string]bool, len(c.Locations))
	for _, l := range c.Locations {
		if l.Name == "" {
			return fmt.Errorf("locations: empty name")
		}
		if seen[l.Name] {
			return fmt.Errorf("locations: duplicate %q", l.Name)
		}
		seen[l.Name] = true
	}
	if c.Risk.WinRateFloor < 0 || c.Risk.WinRateFloor > 1 {
		return fmt.Errorf("risk.win_rate_floor must be in [0,1], got %v", c.Risk.WinRateFloor)
	}
	return nil
}

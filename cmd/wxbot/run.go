package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/wxbot/config"
	"github.com/alejandrodnm/wxbot/internal/adapters/control"
	"github.com/alejandrodnm/wxbot/internal/adapters/notify"
	"github.com/alejandrodnm/wxbot/internal/adapters/onchain"
	"github.com/alejandrodnm/wxbot/internal/adapters/paper"
	"github.com/alejandrodnm/wxbot/internal/adapters/polymarket"
	"github.com/alejandrodnm/wxbot/internal/adapters/storage"
	"github.com/alejandrodnm/wxbot/internal/adapters/weather"
	"github.com/alejandrodnm/wxbot/internal/application/engine"
	"github.com/alejandrodnm/wxbot/internal/application/engine/live"
	"github.com/alejandrodnm/wxbot/internal/domain"
	"github.com/alejandrodnm/wxbot/internal/ports"
)

const (
	liveAbortWindow = 5 * time.Second
	stopFilePoll    = 5 * time.Second
	reportRows      = 20
)

// buildVenue devuelve el venue simulado o el cliente de trading real,
// autenticado y con los approvals de colateral listos.
func buildVenue(ctx context.Context, cfg *config.Config, paperOnly bool) (ports.OrderVenue, error) {
	if paperOnly {
		slog.Info("venue: paper", "balance", fmt.Sprintf("$%.2f", cfg.Engine.DryRunBalance))
		return paper.NewVenue(cfg.Engine.DryRunBalance), nil
	}
	if cfg.PrivateKey == "" || cfg.RPCURL == "" {
		return nil, errors.New("POLY_PRIVATE_KEY and POLY_RPC_URL are required outside -dry-run")
	}

	fmt.Printf("\n⚠️  LIVE TRADING MODE: REAL MONEY WILL BE SPENT\n")
	fmt.Printf("   Max capital: $%.2f | Allocation: %s\n", cfg.Engine.MaxCapital, cfg.Engine.Allocation)
	fmt.Printf("   Press Ctrl+C within %s to abort...\n\n", liveAbortWindow)
	select {
	case <-time.After(liveAbortWindow):
	case <-ctx.Done():
		return nil, fmt.Errorf("live trading aborted by user: %w", ctx.Err())
	}

	auth, err := polymarket.NewAuthClient(cfg.API.CLOBBase, cfg.API.GammaBase, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("auth client: %w", err)
	}
	if err := auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("derive API credentials, check POLY_PRIVATE_KEY: %w", err)
	}
	slog.Info("live: authenticated with Polymarket CLOB", "address", auth.Address())

	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	approver, err := onchain.NewApprover(rpc, cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	n, err := approver.EnsureCollateralApprovals(ctx)
	if err != nil {
		return nil, fmt.Errorf("collateral approvals: %w", err)
	}
	slog.Info("live: collateral approvals verified", "sent", n)

	trading := polymarket.NewTradingClient(auth, rpc)
	balance, err := trading.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	slog.Info("live: wallet balance", "usdc", fmt.Sprintf("$%.2f", balance))
	return trading, nil
}

// buildEngine conecta los adapters con el engine en vivo.
func buildEngine(cfg *config.Config, store *storage.SQLiteStorage, venue ports.OrderVenue, console *notify.Console) *live.Engine {
	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase).WithWeatherTag(cfg.Venue.WeatherTag)
	wx := weather.NewOpenMeteo(cfg.API.WeatherBase, weather.Unit(cfg.API.WeatherUnit))

	locations := make([]domain.Location, len(cfg.Locations))
	for i, l := range cfg.Locations {
		locations[i] = domain.Location{Name: l.Name, Lat: l.Lat, Lon: l.Lon, Timezone: l.Timezone}
	}

	metrics := live.NewMetrics()
	registry := live.NewRegistry(store, console, metrics)
	registry.RegisterStandard(live.RiskConfig{
		MaxLoss:           cfg.Risk.MaxLoss,
		WinRateWindow:     cfg.Risk.WinRateWindow,
		WinRateMinSamples: cfg.Risk.WinRateMinSamples,
		WinRateFloor:      cfg.Risk.WinRateFloor,
		MaxDataAge:        cfg.MaxDataAge(),
		BalanceFloor:      cfg.Risk.BalanceFloor,
	}, store, store, client, venue, engine.LocationNames(locations))

	pollMin, pollMax := cfg.PollBand()
	return live.New(live.Deps{
		Store:    store,
		Markets:  client,
		Weather:  wx,
		Books:    client,
		Quotes:   client,
		Venue:    venue,
		Alerter:  console,
		Registry: registry,
		Metrics:  metrics,
	}, live.Config{
		PromotionInterval: cfg.PromotionInterval(),
		InstrumentRefresh: cfg.InstrumentRefresh(),
		ReadingRefresh:    cfg.ReadingRefresh(),
		PollMin:           pollMin,
		PollMax:           pollMax,
		SlippageTolerance: cfg.Engine.SlippageTolerance,
		Allocation:        live.AllocationPolicy(cfg.Engine.Allocation),
		FixedFraction:     cfg.Engine.FixedFraction,
		MaxCapital:        cfg.Engine.MaxCapital,
		SizeDecimals:      cfg.Venue.SizeDecimals,
		CostDecimals:      cfg.Venue.CostDecimals,
		HorizonDays:       cfg.Engine.HorizonDays,
		SweepSpec:         cfg.Engine.SweepSpec,
		Score: domain.ScoreParams{
			FeePct:             cfg.Engine.FeePct,
			PromotionThreshold: cfg.Engine.PromotionThreshold,
			MinProfitPct:       cfg.Engine.MinProfitPct,
			MaxReadingAge:      cfg.MaxReadingAge(),
			MinDepth:           cfg.Engine.MinDepth,
		},
		Locations: locations,
	})
}

// runEngine arranca el engine, la superficie de control y el kill switch por
// fichero, y espera a que ctx se cancele.
func runEngine(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, venue ports.OrderVenue, console *notify.Console, paperOnly bool) error {
	eng := buildEngine(cfg, store, venue, console)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })

	if cfg.Control.Addr != "" {
		srv := control.NewServer(cfg.Control.Addr, eng, eng.Metrics().Registry)
		g.Go(func() error { return srv.Start(gctx) })
	}
	if !paperOnly {
		g.Go(func() error {
			watchStopFile(gctx, cfg.Control.StopFile, eng)
			return nil
		})
	}

	slog.Info("engine running: press Ctrl+C to exit",
		"control", cfg.Control.Addr,
		"stop_file", cfg.Control.StopFile,
	)
	return g.Wait()
}

// watchStopFile dispara un emergency stop cuando aparece el fichero.
func watchStopFile(ctx context.Context, path string, ctl ports.Controller) {
	ticker := time.NewTicker(stopFilePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		slog.Warn("stop file detected: emergency stop", "file", path)
		if err := ctl.EmergencyStop(ctx); err != nil {
			slog.Error("emergency stop failed", "err", err)
			continue
		}
		_ = os.Remove(path)
	}
}

// runOnce hace una pasada de promoción y muestra los safe bets.
func runOnce(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, venue ports.OrderVenue, console *notify.Console) {
	eng := buildEngine(cfg, store, venue, console)
	bets, res, err := eng.RunOnce(ctx)
	if err != nil {
		slog.Error("promotion pass failed", "err", err)
		os.Exit(1)
	}
	slog.Info("promotion pass complete",
		"promoted", res.Promoted,
		"scored", res.Scored,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"took", res.Duration.Round(time.Millisecond),
	)
	console.PrintSafeBets(bets)
}

// runReport imprime el estado persistido sin arrancar el engine.
func runReport(ctx context.Context, store *storage.SQLiteStorage, venue ports.OrderVenue, console *notify.Console) {
	in := notify.ReportInput{Now: time.Now().UTC()}
	var err error
	if in.Positions, err = store.OpenPositions(ctx); err != nil {
		slog.Error("report: open positions", "err", err)
		os.Exit(1)
	}
	if in.Resolved, err = store.RecentResolved(ctx, reportRows); err != nil {
		slog.Warn("report: resolved positions", "err", err)
	}
	if in.Breakers, err = store.LoadBreakers(ctx); err != nil {
		slog.Warn("report: breakers", "err", err)
	}
	if in.Audits, err = store.RecentAudits(ctx, reportRows); err != nil {
		slog.Warn("report: audits", "err", err)
	}
	if in.RealizedPnL, err = store.RealizedPnL(ctx); err != nil {
		slog.Warn("report: pnl", "err", err)
	}
	if in.Balance, err = venue.GetBalance(ctx); err != nil {
		slog.Warn("report: balance", "err", err)
	}
	console.PrintReport(in)
}

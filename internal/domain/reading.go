package domain

import "time"

// Reading es la observación meteorológica más reciente para una ubicación.
type Reading struct {
	Location        string
	Current         float64 // temperatura actual
	ObservedExtreme float64 // máxima observada en lo que va del día local
	ForecastExtreme float64 // máxima pronosticada para el día local
	ObservedAt      time.Time
	UTCOffset       time.Duration // offset de la zona horaria de la ubicación
	Source          string
	Valid           bool
}

// Age devuelve la antigüedad de la lectura respecto a now.
func (r Reading) Age(now time.Time) time.Duration {
	if r.ObservedAt.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(r.ObservedAt)
}

// Stale indica si la lectura falta, es inválida o supera maxAge.
func (r Reading) Stale(now time.Time, maxAge time.Duration) bool {
	return !r.Valid || r.Age(now) > maxAge
}

// LocalTime devuelve now expresado en la hora local de la ubicación.
func (r Reading) LocalTime(now time.Time) time.Time {
	return now.UTC().Add(r.UTCOffset)
}

// ProjectedExtreme es el extremo esperado del día: lo observado
// o lo pronosticado, lo que sea mayor.
func (r Reading) ProjectedExtreme() float64 {
	return max(r.ObservedExtreme, r.ForecastExtreme)
}

// Peaked indica que la temperatura ya bajó desde el máximo del día.
func (r Reading) Peaked() bool {
	return r.Current <= r.ObservedExtreme-1
}

// Location es un punto con cobertura meteorológica.
type Location struct {
	Name     string
	Lat      float64
	Lon      float64
	Timezone string
}

package ports

import (
	"context"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

// Alerter entrega alertas al operador (breakers, ejecuciones, fallos).
type Alerter interface {
	Alert(ctx context.Context, a domain.Alert) error
}

package ports

import (
	"context"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

// Controller es la superficie de operador del engine en vivo.
type Controller interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	EmergencyStop(ctx context.Context) error
	Status() domain.EngineStatus
}

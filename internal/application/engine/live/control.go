package live

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

type commandKind string

const (
	cmdPause         commandKind = "pause"
	cmdResume        commandKind = "resume"
	cmdStop          commandKind = "stop"
	cmdEmergencyStop commandKind = "emergency-stop"
)

type command struct {
	kind  commandKind
	reply chan error
}

// Pause freezes the SafeBet set as it is: promotion passes are skipped, every
// task is cancelled and executions are vetoed until Resume.
func (e *Engine) Pause(ctx context.Context) error { return e.send(ctx, cmdPause) }

// Resume re-arms the engine after Pause, Stop or EmergencyStop. It also
// clears the manual breaker.
func (e *Engine) Resume(ctx context.Context) error { return e.send(ctx, cmdResume) }

// Stop cancels every task and empties the SafeBet set. Promotion passes are
// ignored until Resume.
func (e *Engine) Stop(ctx context.Context) error { return e.send(ctx, cmdStop) }

// EmergencyStop is Stop plus the manual breaker, which survives restarts.
func (e *Engine) EmergencyStop(ctx context.Context) error { return e.send(ctx, cmdEmergencyStop) }

// send hands the command to the coordinator so it is applied between, never
// during, a pass replacement or an execution.
func (e *Engine) send(ctx context.Context, kind commandKind) error {
	cmd := command{kind: kind, reply: make(chan error, 1)}
	select {
	case e.cmdCh <- cmd:
	case <-ctx.Done():
		return fmt.Errorf("live.%s: %w", kind, ctx.Err())
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return fmt.Errorf("live.%s: %w", kind, ctx.Err())
	}
}

// handle runs on the coordinator goroutine.
func (e *Engine) handle(ctx context.Context, kind commandKind) error {
	switch kind {
	case cmdPause:
		e.paused.Store(true)
		e.reconcile(ctx)
	case cmdResume:
		e.paused.Store(false)
		e.stopped.Store(false)
		e.registry.Clear(ctx, domain.BreakerManual)
		e.reconcile(ctx)
	case cmdStop:
		e.halt()
	case cmdEmergencyStop:
		e.registry.Trip(ctx, domain.BreakerManual, "emergency stop")
		e.halt()
	default:
		return fmt.Errorf("live: unknown command %q", kind)
	}

	slog.Warn("engine: operator command", "cmd", kind, "paused", e.paused.Load(), "stopped", e.stopped.Load())
	e.notify(ctx, domain.Alert{
		Level:   "warn",
		Title:   "operator " + string(kind),
		Message: fmt.Sprintf("live bets %d, tasks %d", len(e.set), e.sup.size()),
		At:      e.now(),
	})
	return nil
}

// halt cancels every task, waits for them, and empties the set.
func (e *Engine) halt() {
	e.stopped.Store(true)
	e.sup.cancelAll()
	e.set = make(map[domain.BetKey]domain.SafeBet)
	e.publish()
}

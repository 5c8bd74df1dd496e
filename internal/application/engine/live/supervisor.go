package live

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

// task is one fetch-and-execute loop watching a single SafeBet.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// supervisor keeps exactly one task per live SafeBet. It is only touched by
// the coordinator goroutine.
type supervisor struct {
	e     *Engine
	tasks map[domain.BetKey]*task
}

func newSupervisor(e *Engine) *supervisor {
	return &supervisor{e: e, tasks: make(map[domain.BetKey]*task)}
}

// reconcile cancels tasks whose bet left want and spawns tasks for new bets
// or bets whose task already exited.
func (s *supervisor) reconcile(ctx context.Context, want map[domain.BetKey]domain.SafeBet) {
	for key, t := range s.tasks {
		if _, ok := want[key]; !ok || t.finished() {
			t.cancel()
			delete(s.tasks, key)
		}
	}
	for key := range want {
		if _, ok := s.tasks[key]; ok {
			continue
		}
		tctx, cancel := context.WithCancel(ctx)
		t := &task{cancel: cancel, done: make(chan struct{})}
		s.tasks[key] = t
		go func() {
			defer close(t.done)
			s.e.watch(tctx, key)
		}()
	}
	s.e.metrics.setWorkers(len(s.tasks))
}

// cancel stops the task for key, if any.
func (s *supervisor) cancel(key domain.BetKey) {
	if t, ok := s.tasks[key]; ok {
		t.cancel()
		delete(s.tasks, key)
	}
	s.e.metrics.setWorkers(len(s.tasks))
}

// cancelAll stops every task and waits for them to exit.
func (s *supervisor) cancelAll() {
	for key, t := range s.tasks {
		t.cancel()
		<-t.done
		delete(s.tasks, key)
	}
	s.e.metrics.setWorkers(0)
}

func (s *supervisor) size() int { return len(s.tasks) }

// jitter returns a uniformly random duration in [PollMin, PollMax].
func (e *Engine) jitter() time.Duration {
	span := e.cfg.PollMax - e.cfg.PollMin
	if span <= 0 {
		return e.cfg.PollMin
	}
	return e.cfg.PollMin + rand.N(span+1)
}

// watch polls the bet's quote every jittered tick and asks the coordinator to
// execute when the ask is within slippage of the bet's current price. The bet
// is re-read from the published set on every tick, so a re-promotion at a new
// price is picked up without respawning the task. It exits when the bet
// leaves the set, a breaker activates or its context is cancelled. Quote
// errors are transient and only cost one tick.
func (e *Engine) watch(ctx context.Context, key domain.BetKey) {
	log := slog.With("bet", key.String())
	log.Debug("supervisor: task started")
	defer log.Debug("supervisor: task exited")

	timer := time.NewTimer(e.jitter())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		bet, ok := e.liveBet(key)
		if !ok || e.registry.AnyActive() {
			return
		}

		q, err := e.quotes.FetchQuote(ctx, bet.TokenID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.metrics.observeQuoteError()
			log.Debug("supervisor: quote failed", "err", err)
			timer.Reset(e.jitter())
			continue
		}

		if !bet.WithinSlippage(q.Ask, e.cfg.SlippageTolerance) {
			timer.Reset(e.jitter())
			continue
		}

		_, err = e.requestExecute(ctx, key, q)
		switch {
		case err == nil:
			return
		case errors.Is(err, domain.ErrBetNotLive),
			errors.Is(err, domain.ErrEngineStopped),
			errors.Is(err, domain.ErrVetoed),
			errors.Is(err, context.Canceled):
			return
		}
		log.Debug("supervisor: execution failed, bet stays live", "err", err)
		timer.Reset(e.jitter())
	}
}

type execRequest struct {
	key   domain.BetKey
	quote domain.Quote
	reply chan execResult
}

type execResult struct {
	audit domain.ExecutionAudit
	err   error
}

// requestExecute hands a favorable quote to the coordinator and waits for the
// outcome.
func (e *Engine) requestExecute(ctx context.Context, key domain.BetKey, q domain.Quote) (domain.ExecutionAudit, error) {
	req := execRequest{key: key, quote: q, reply: make(chan execResult, 1)}
	select {
	case e.execCh <- req:
	case <-ctx.Done():
		return domain.ExecutionAudit{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.audit, res.err
	case <-ctx.Done():
		return domain.ExecutionAudit{}, ctx.Err()
	}
}

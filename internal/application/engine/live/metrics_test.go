package live

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics()

	m.observePass(PassResult{Scored: 3, Promoted: 2, Skipped: 1})
	m.observeExecution(domain.AuditSuccess)
	m.observeExecution(domain.AuditVeto)
	m.observeExecution(domain.AuditVeto)
	m.setBreaker(domain.Breaker{Name: domain.BreakerManual, Active: true})
	m.setSafeBets(4)

	assert.InDelta(t, 1, testutil.ToFloat64(m.passes), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.passItems.WithLabelValues("promoted")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.executions.WithLabelValues("VETO")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.breakerState.WithLabelValues("manual")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.safeBets), 0)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observePass(PassResult{})
		m.observeExecution(domain.AuditFailure)
		m.observeQuoteError()
		m.setWorkers(1)
	})
}

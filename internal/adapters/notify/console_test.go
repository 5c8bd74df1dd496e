package notify_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/wxbot/internal/adapters/notify"
	"github.com/alejandrodnm/wxbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_Alert(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	err := n.Alert(context.Background(), domain.Alert{
		Level:   "warn",
		Title:   "breaker tripped",
		Message: "loss_limit: realized -60.00 < -50.00",
		At:      time.Date(2026, 10, 17, 14, 5, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "14:05:00")
	assert.Contains(t, out, "breaker tripped")
	assert.Contains(t, out, "loss_limit")
}

func TestConsole_PrintSafeBets(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.PrintSafeBets(nil)
	assert.Contains(t, buf.String(), "no safe bets")

	buf.Reset()
	n.PrintSafeBets([]domain.SafeBet{{
		InstrumentID:   "0xnyc80",
		Side:           domain.SideYes,
		Question:       "Will the highest temperature in New York be 80°F or higher on October 17?",
		Price:          0.92,
		Score:          84,
		ExpectedProfit: 8.7,
		PromotedAt:     time.Now(),
	}})
	out := buf.String()
	assert.Contains(t, out, "1 safe bets")
	assert.Contains(t, out, "0.9200")
	assert.Contains(t, out, "84")
	assert.Contains(t, out, "…", "long questions are shortened")
}

func TestConsole_PrintReport(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	now := time.Date(2026, 10, 17, 18, 0, 0, 0, time.UTC)
	win := 8.0
	loss := -92.0
	tripped := now.Add(-time.Hour)

	n.PrintReport(notify.ReportInput{
		Positions: []domain.Position{{
			InstrumentID: "0xnyc80", Side: domain.SideYes, EntryPrice: 0.92,
			Size: 100, Cost: 92, OpenedAt: now.Add(-2 * time.Hour), Question: "NYC 80F",
		}},
		Resolved: []domain.Position{{RealizedPnL: &win}, {RealizedPnL: &loss}},
		Breakers: []domain.Breaker{
			{Name: domain.BreakerLossLimit},
			{Name: domain.BreakerManual, Active: true, Reason: "emergency stop", TriggeredAt: &tripped},
		},
		Audits: []domain.ExecutionAudit{{
			InstrumentID: strings.Repeat("a", 40), Side: domain.SideYes,
			Outcome: domain.AuditVeto, Reason: "breaker manual active", At: now,
		}},
		RealizedPnL: -84,
		Balance:     400,
		Now:         now,
	})

	out := buf.String()
	assert.Contains(t, out, "$400.00")
	assert.Contains(t, out, "$92.00 in 1 open positions")
	assert.Contains(t, out, "50.0% (1/2 recent)")
	assert.Contains(t, out, "NYC 80F")
	assert.Contains(t, out, "manual: ACTIVE (emergency stop)")
	assert.Contains(t, out, "loss_limit: ok")
	assert.Contains(t, out, "VETO")
}

package notify

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/wxbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// ReportInput agrupa los datos necesarios para imprimir el reporte (-report).
type ReportInput struct {
	Positions   []domain.Position // OPEN
	Resolved    []domain.Position // últimas resueltas
	Breakers    []domain.Breaker
	Audits      []domain.ExecutionAudit
	RealizedPnL float64
	Balance     float64
	Now         time.Time
}

// PrintReport imprime posiciones abiertas, breakers y la auditoría reciente.
func (c *Console) PrintReport(in ReportInput) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  WXBOT REPORT  %s\n", now.UTC().Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(c.out, "========================================================\n\n")

	var deployed float64
	for _, p := range in.Positions {
		deployed += p.Cost
	}
	wins := 0
	for _, p := range in.Resolved {
		if p.RealizedPnL != nil && *p.RealizedPnL > 0 {
			wins++
		}
	}

	fmt.Fprintf(c.out, "  Balance:      $%.2f\n", in.Balance)
	fmt.Fprintf(c.out, "  Deployed:     $%.2f in %d open positions\n", deployed, len(in.Positions))
	fmt.Fprintf(c.out, "  Realized PnL: $%.4f\n", in.RealizedPnL)
	if len(in.Resolved) > 0 {
		fmt.Fprintf(c.out, "  Win rate:     %.1f%% (%d/%d recent)\n",
			float64(wins)/float64(len(in.Resolved))*100, wins, len(in.Resolved))
	}

	fmt.Fprintf(c.out, "\n── OPEN POSITIONS (%d) ──\n", len(in.Positions))
	if len(in.Positions) > 0 {
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Side", "Market", "Entry", "Size", "Cost$", "Age")
		for _, p := range in.Positions {
			name := p.Question
			if name == "" {
				name = p.InstrumentID
			}
			tbl.Append(
				string(p.Side),
				truncate(name, 40),
				fmt.Sprintf("%.4f", p.EntryPrice),
				fmt.Sprintf("%.2f", p.Size),
				fmt.Sprintf("%.2f", p.Cost),
				now.Sub(p.OpenedAt).Truncate(time.Minute).String(),
			)
		}
		tbl.Render()
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}

	fmt.Fprintf(c.out, "\n── BREAKERS ──\n")
	for _, b := range in.Breakers {
		since := ""
		if b.Active && b.TriggeredAt != nil {
			since = " since " + b.TriggeredAt.UTC().Format("01-02 15:04")
		}
		fmt.Fprintf(c.out, "  %s%s\n", b.String(), since)
	}

	fmt.Fprintf(c.out, "\n── RECENT EXECUTIONS (%d) ──\n", len(in.Audits))
	if len(in.Audits) > 0 {
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Time", "Outcome", "Market", "Side", "Score", "Price", "Size", "Cost$", "Reason")
		for _, a := range in.Audits {
			tbl.Append(
				a.At.UTC().Format("01-02 15:04:05"),
				string(a.Outcome),
				shortID(a.InstrumentID),
				string(a.Side),
				fmt.Sprintf("%d", a.Score),
				fmt.Sprintf("%.4f", a.Price),
				fmt.Sprintf("%.2f", a.Size),
				fmt.Sprintf("%.2f", a.Cost),
				truncate(a.Reason, 40),
			)
		}
		tbl.Render()
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}
	fmt.Fprintln(c.out)
}

package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/wxbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Alerter y los reportes tabulares del CLI.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Alert imprime la alerta en una línea y la registra en el log.
func (c *Console) Alert(_ context.Context, a domain.Alert) error {
	at := a.At
	if at.IsZero() {
		at = time.Now()
	}

	switch a.Level {
	case "error":
		slog.Error("alert: "+a.Title, "msg", a.Message)
	case "warn":
		slog.Warn("alert: "+a.Title, "msg", a.Message)
	default:
		slog.Info("alert: "+a.Title, "msg", a.Message)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "[%s] %s %s: %s\n",
		at.Format("15:04:05"), levelIcon(a.Level), a.Title, a.Message)
	return err
}

// PrintSafeBets imprime el set de SafeBets vigente (modo -once).
func (c *Console) PrintSafeBets(bets []domain.SafeBet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().Format("15:04:05")
	if len(bets) == 0 {
		fmt.Fprintf(c.out, "[%s] no safe bets\n", now)
		return
	}

	fmt.Fprintf(c.out, "\n[%s] %d safe bets\n", now, len(bets))
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Side", "Market", "Price", "Score", "Profit%", "Promoted")
	for i, b := range bets {
		table.Append(
			fmt.Sprintf("%d", i+1),
			string(b.Side),
			compactName(b.Question, 48),
			fmt.Sprintf("%.4f", b.Price),
			fmt.Sprintf("%d", b.Score),
			fmt.Sprintf("%.2f", b.ExpectedProfit),
			b.PromotedAt.Format("15:04:05"),
		)
	}
	table.Render()
}

// --- helpers ---

func levelIcon(level string) string {
	switch level {
	case "error":
		return "!!"
	case "warn":
		return ">>"
	}
	return "--"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}

func shortID(id string) string {
	if len(id) > 14 {
		return id[:12] + ".."
	}
	return id
}

package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/strategy"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el estado del tick en el modo configurado.
func (c *Console) Notify(_ context.Context, stats domain.Statistics, open []domain.Position) error {
	if c.table {
		c.printFull(stats, open)
	} else {
		c.printCompact(stats, open)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(stats domain.Statistics, open []domain.Position) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] open:%d closed:%d eq:$%.2f float:$%+.2f",
		now, stats.OpenCount, stats.ClosedCount, stats.Equity, stats.FloatingPnL)

	shown := 0
	for _, p := range open {
		if shown >= 3 {
			break
		}
		name := domain.TruncateQuestion(p.Question, p.MarketID, 25)
		fmt.Fprintf(&sb, " | %s %s @%.3f %+.1f%%",
			strategyTag(p.Strategy), name, p.CurrentPrice, p.CurrentPnLPct)
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla de posiciones abiertas con sus económicas.
func (c *Console) printFull(stats domain.Statistics, open []domain.Position) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] equity $%.2f | floating $%+.2f | total $%.2f | open %d | closed %d | win rate %.0f%%\n",
		now, stats.Equity, stats.FloatingPnL, stats.TotalAssets,
		stats.OpenCount, stats.ClosedCount, stats.WinRate*100)

	if len(open) == 0 {
		fmt.Fprintln(c.out, "  no open positions")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Strat", "Market", "Side", "Entry", "Now", "High", "PnL", "PnL%", "Held")

	for i, p := range open {
		table.Append(
			fmt.Sprintf("%d", i+1),
			strategyTag(p.Strategy),
			domain.TruncateQuestion(p.Question, p.MarketID, 38),
			p.Outcome,
			fmt.Sprintf("%.4f", p.EntryPrice),
			fmt.Sprintf("%.4f", p.CurrentPrice),
			fmt.Sprintf("%.4f", p.HighestPrice),
			fmt.Sprintf("$%+.2f", p.CurrentPnL),
			fmt.Sprintf("%+.1f%%", p.CurrentPnLPct),
			fmt.Sprintf("%.0fh", p.HoldingHours(time.Now())),
		)
	}

	table.Render()
}

// PrintRunReport imprime el informe final de una ejecución: resumen global,
// desglose por estrategia e histograma de reglas de salida.
func (c *Console) PrintRunReport(summary domain.RunSummary, stats domain.Statistics, closed []domain.Position) {
	fmt.Fprintf(c.out, "\n=== %s REPORT — %s to %s ===\n",
		strings.ToUpper(summary.Mode),
		summary.StartedAt.Format("2006-01-02 15:04"),
		summary.FinishedAt.Format("2006-01-02 15:04"))

	fmt.Fprintf(c.out, "  Ticks:        %d\n", summary.Ticks)
	fmt.Fprintf(c.out, "  Trades:       %d opened, %d closed\n", summary.Opened, summary.Closed)
	fmt.Fprintf(c.out, "  Realized PnL: $%+.2f\n", summary.RealizedPnL)
	fmt.Fprintf(c.out, "  Final equity: $%.2f\n", summary.FinalEquity)
	if summary.Closed > 0 {
		fmt.Fprintf(c.out, "  Win rate:     %.0f%% (%d/%d)\n",
			summary.WinRate*100, stats.Wins, stats.ClosedCount)
	}
	if stats.OpenCount > 0 {
		fmt.Fprintf(c.out, "  Still open:   %d positions, floating $%+.2f\n",
			stats.OpenCount, stats.FloatingPnL)
	}

	if len(stats.ByStrategy) > 0 {
		fmt.Fprintln(c.out)
		table := tablewriter.NewWriter(c.out)
		table.Header("Strategy", "Opened", "Closed", "W/L", "PnL", "Avg hold")

		for _, st := range orderedStrategies(stats.ByStrategy) {
			s := stats.ByStrategy[st]
			table.Append(
				string(st),
				fmt.Sprintf("%d", s.Opened),
				fmt.Sprintf("%d", s.Closed),
				fmt.Sprintf("%d/%d", s.Wins, s.Losses),
				fmt.Sprintf("$%+.2f", s.RealizedPnL),
				fmt.Sprintf("%.1fh", s.AvgHoldHours),
			)
		}
		table.Render()
	}

	if len(closed) > 0 {
		c.printExitHistogram(closed)
	}
	fmt.Fprintln(c.out)
}

// printExitHistogram agrega los cierres por regla de salida.
func (c *Console) printExitHistogram(closed []domain.Position) {
	counts := make(map[string]int)
	pnl := make(map[string]float64)
	for _, p := range closed {
		label := strategy.RuleLabel(p.ExitReason)
		counts[label]++
		pnl[label] += p.PnL
	}

	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return counts[labels[i]] > counts[labels[j]] })

	fmt.Fprintln(c.out, "\n  Exits by rule:")
	for _, l := range labels {
		fmt.Fprintf(c.out, "    %-14s %3d  $%+.2f\n", l, counts[l], pnl[l])
	}
}

func strategyTag(st domain.StrategyType) string {
	switch st {
	case domain.StrategyReversal:
		return "REV"
	case domain.StrategyConvergence:
		return "CNV"
	default:
		return strings.ToUpper(string(st))
	}
}

func orderedStrategies(byStrategy map[domain.StrategyType]domain.StrategyStats) []domain.StrategyType {
	out := make([]domain.StrategyType, 0, len(byStrategy))
	for st := range byStrategy {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

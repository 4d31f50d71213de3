package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// ReplayDriver feeds recorded snapshots through the engine in timestamp
// order. Snapshots sharing a timestamp form one tick, and the logical clock
// is the tick's timestamp, so a given dataset always produces the same
// trades regardless of wall-clock speed.
type ReplayDriver struct {
	eng   *Engine
	snaps []domain.MarketSnapshot
	sm    stateMachine
}

// NewReplayDriver copies and sorts the dataset. The caller's slice is not
// retained.
func NewReplayDriver(eng *Engine, snaps []domain.MarketSnapshot) *ReplayDriver {
	sorted := make([]domain.MarketSnapshot, len(snaps))
	copy(sorted, snaps)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].MarketID < sorted[j].MarketID
	})
	return &ReplayDriver{eng: eng, snaps: sorted}
}

// State reports the driver lifecycle phase.
func (d *ReplayDriver) State() State {
	return d.sm.current()
}

// Run replays the whole dataset synchronously and returns the session
// summary. Cancellation is honored at tick boundaries: the tick in progress
// finishes, the summary covers what ran.
func (d *ReplayDriver) Run(ctx context.Context) (domain.RunSummary, error) {
	if err := d.sm.begin(); err != nil {
		return domain.RunSummary{}, fmt.Errorf("replay.Run: %w", err)
	}
	defer d.sm.reset()
	defer d.eng.closeEvents()

	groups := groupByTimestamp(d.snaps)
	summary := domain.RunSummary{Mode: "replay", StartedAt: time.Now()}

	slog.Info("replay starting", "snapshots", len(d.snaps), "ticks", len(groups))
	d.sm.run()

	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			slog.Info("replay interrupted", "tick", i, "of", len(groups))
			break
		}
		now := g[0].Timestamp
		progress := float64(i+1) / float64(len(groups))
		res := d.eng.runTick(ctx, "replay", g, now, i+1, progress)
		summary.Ticks++
		summary.Opened += res.Opened
		summary.Closed += res.Closed
	}

	stats := d.eng.Statistics()
	summary.FinishedAt = time.Now()
	summary.RealizedPnL = stats.RealizedPnL
	summary.FinalEquity = stats.Equity
	summary.WinRate = stats.WinRate

	var last time.Time
	if n := len(d.snaps); n > 0 {
		last = d.snaps[n-1].Timestamp
	}
	d.eng.emit(domain.Event{
		Type:        domain.EventComplete,
		Time:        last,
		Tick:        summary.Ticks,
		Candidates:  d.eng.pool.Size(),
		OpenCount:   stats.OpenCount,
		Equity:      stats.Equity,
		FloatingPnL: stats.FloatingPnL,
		Progress:    1,
	})

	slog.Info("replay finished",
		"ticks", summary.Ticks,
		"opened", summary.Opened,
		"closed", summary.Closed,
		"markets", d.eng.ledger.MarketsTraded(),
		"equity", fmt.Sprintf("%.2f", summary.FinalEquity),
	)
	return summary, ctx.Err()
}

// groupByTimestamp splits a sorted dataset into per-timestamp tick batches.
func groupByTimestamp(snaps []domain.MarketSnapshot) [][]domain.MarketSnapshot {
	var groups [][]domain.MarketSnapshot
	for i := 0; i < len(snaps); {
		j := i
		for j < len(snaps) && snaps[j].Timestamp.Equal(snaps[i].Timestamp) {
			j++
		}
		groups = append(groups, snaps[i:j])
		i = j
	}
	return groups
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/ports"
)

const defaultPollInterval = 60 * time.Second

// PollDriver runs the engine against a live feed on a fixed interval. One
// goroutine owns the loop; ticks never overlap. Start/Stop follow the
// idle → initializing → running → stopping lifecycle.
type PollDriver struct {
	eng      *Engine
	feed     ports.SnapshotFeed
	interval time.Duration

	sm        stateMachine
	cancel    context.CancelFunc
	done      chan struct{}
	tickBusy  atomic.Bool
	ticks     int
	opened    int
	closed    int
	startedAt time.Time
}

// NewPollDriver wires a live driver. interval <= 0 falls back to one minute.
func NewPollDriver(eng *Engine, feed ports.SnapshotFeed, interval time.Duration) *PollDriver {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &PollDriver{eng: eng, feed: feed, interval: interval}
}

// State reports the driver lifecycle phase.
func (d *PollDriver) State() State {
	return d.sm.current()
}

// Start launches the poll loop. The first tick fires immediately, the rest
// on the interval. Returns ErrAlreadyRunning / ErrAlreadyInitializing when
// called twice.
func (d *PollDriver) Start(ctx context.Context) error {
	if err := d.sm.begin(); err != nil {
		return fmt.Errorf("poll.Start: %w", err)
	}
	if d.feed == nil {
		d.sm.reset()
		return fmt.Errorf("poll.Start: no snapshot feed configured")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.startedAt = time.Now()

	slog.Info("poll driver starting", "interval", d.interval)
	d.sm.run()
	go d.loop(loopCtx)
	return nil
}

// Stop requests shutdown and waits for the in-flight tick to drain. Safe to
// call once per Start; returns ErrNotRunning otherwise.
func (d *PollDriver) Stop() (domain.RunSummary, error) {
	if err := d.sm.stop(); err != nil {
		return domain.RunSummary{}, fmt.Errorf("poll.Stop: %w", err)
	}
	d.cancel()
	<-d.done
	d.sm.reset()

	stats := d.eng.Statistics()
	summary := domain.RunSummary{
		Mode:        "poll",
		StartedAt:   d.startedAt,
		FinishedAt:  time.Now(),
		Ticks:       d.ticks,
		Opened:      d.opened,
		Closed:      d.closed,
		RealizedPnL: stats.RealizedPnL,
		FinalEquity: stats.Equity,
		WinRate:     stats.WinRate,
	}

	d.eng.emit(domain.Event{
		Type:        domain.EventComplete,
		Time:        summary.FinishedAt,
		Tick:        d.ticks,
		Candidates:  d.eng.pool.Size(),
		OpenCount:   stats.OpenCount,
		Equity:      stats.Equity,
		FloatingPnL: stats.FloatingPnL,
	})
	d.eng.closeEvents()

	slog.Info("poll driver stopped",
		"ticks", d.ticks,
		"opened", d.opened,
		"closed", d.closed,
		"markets", d.eng.ledger.MarketsTraded(),
	)
	return summary, nil
}

// loop is the single goroutine that owns every tick of a live session.
func (d *PollDriver) loop(ctx context.Context) {
	defer close(d.done)

	d.tick(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick fetches a fresh batch and runs the pipeline once. A fetch failure
// skips the tick: state stays as the last tick left it, no exits fire on
// stale data. The busy guard skips the tick when the previous one is still
// draining, so a slow provider can never pile up work.
func (d *PollDriver) tick(ctx context.Context) {
	if !d.tickBusy.CompareAndSwap(false, true) {
		slog.Warn("poll: previous tick still in progress, skipping")
		return
	}
	defer d.tickBusy.Store(false)

	snaps, err := d.feed.FetchSnapshots(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("poll: snapshot fetch failed, skipping tick", "err", err)
		d.eng.emit(domain.Event{Type: domain.EventError, Time: time.Now(), Err: err.Error()})
		return
	}

	now := time.Now()
	for i := range snaps {
		if snaps[i].Timestamp.IsZero() {
			snaps[i].Timestamp = now
		}
	}

	if d.eng.store != nil {
		if err := d.eng.store.SaveSnapshots(ctx, snaps); err != nil {
			slog.Warn("poll: snapshot persistence failed", "err", err)
		}
	}

	d.ticks++
	res := d.eng.runTick(ctx, "poll", snaps, now, d.ticks, 0)
	d.opened += res.Opened
	d.closed += res.Closed
}

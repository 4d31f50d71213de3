package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/polysim/internal/adapters/notify"
	"github.com/alejandrodnm/polysim/internal/adapters/storage"
	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/engine"
)

// runBacktest replays the stored snapshots for the requested range and prints
// the final report. The replay consumes the same engine the live mode uses.
func runBacktest(ctx context.Context, eng *engine.Engine, store *storage.SQLiteStorage, notifier *notify.Console, fromArg, toArg string) {
	from, to, err := parseRange(fromArg, toArg)
	if err != nil {
		slog.Error("invalid backtest range", "err", err)
		os.Exit(1)
	}

	snaps, err := store.LoadSnapshots(ctx, from, to)
	if err != nil {
		slog.Error("failed to load snapshots", "err", err)
		os.Exit(1)
	}
	if len(snaps) == 0 {
		slog.Warn("no stored snapshots in range, nothing to replay",
			"from", from.Format(time.RFC3339),
			"to", to.Format(time.RFC3339),
		)
		return
	}
	slog.Info("loaded snapshot dataset",
		"snapshots", len(snaps),
		"from", snaps[0].Timestamp.Format(time.RFC3339),
		"to", snaps[len(snaps)-1].Timestamp.Format(time.RFC3339),
	)

	driver := engine.NewReplayDriver(eng, snaps)

	// drenar eventos en paralelo: solo progreso, el detalle ya sale por log
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		lastDecile := -1
		for ev := range eng.Events() {
			if ev.Type != domain.EventTick {
				continue
			}
			if decile := int(ev.Progress * 10); decile > lastDecile {
				lastDecile = decile
				slog.Info("replay progress",
					"pct", int(ev.Progress*100),
					"tick", ev.Tick,
					"open", ev.OpenCount,
					"equity", ev.Equity,
				)
			}
		}
	}()

	summary, runErr := driver.Run(ctx)
	<-drained
	if runErr != nil {
		slog.Warn("replay ended early", "err", runErr)
	}

	if err := store.SaveRun(context.Background(), summary); err != nil {
		slog.Warn("failed to persist run summary", "err", err)
	}

	notifier.PrintRunReport(summary, eng.Statistics(), eng.Ledger().ClosedPositions())

	// el journal persistido debe cubrir al menos los cierres de esta sesión
	if journal, err := store.Trades(context.Background(), ""); err != nil {
		slog.Warn("failed to read trade journal", "err", err)
	} else {
		slog.Info("trade journal", "persisted", len(journal), "closed_this_run", summary.Closed)
	}
}

// parseRange resolves the -from/-to flags. Empty values default to the last
// seven days ending now.
func parseRange(fromArg, toArg string) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	if toArg != "" {
		t, err := parseFlagTime(toArg)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}

	from := to.Add(-7 * 24 * time.Hour)
	if fromArg != "" {
		t, err := parseFlagTime(fromArg)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	return from, to, nil
}

func parseFlagTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

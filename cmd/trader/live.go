package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/polysim/config"
	"github.com/alejandrodnm/polysim/internal/adapters/notify"
	"github.com/alejandrodnm/polysim/internal/adapters/storage"
	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/engine"
	"github.com/alejandrodnm/polysim/internal/ports"
)

// runLive polls the feed until the context is cancelled (SIGINT/SIGTERM),
// printing a status line per tick, then stops the driver and prints the
// session report.
func runLive(ctx context.Context, eng *engine.Engine, feed ports.SnapshotFeed, store *storage.SQLiteStorage, notifier *notify.Console, cfg *config.Config) {
	driver := engine.NewPollDriver(eng, feed, cfg.PollInterval())

	if err := driver.Start(ctx); err != nil {
		slog.Error("failed to start poll driver", "err", err)
		os.Exit(1)
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr)
	}

	var summary domain.RunSummary
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping")
		s, err := driver.Stop()
		if err != nil {
			slog.Warn("poll driver stop failed", "err", err)
			return
		}
		summary = s
	}()

	// Stop cierra el canal de eventos, así que el range termina solo
	for ev := range eng.Events() {
		switch ev.Type {
		case domain.EventTick:
			if err := notifier.Notify(ctx, eng.Statistics(), eng.Ledger().OpenPositions()); err != nil {
				slog.Warn("notifier error", "err", err)
			}
		case domain.EventError:
			slog.Warn("feed error", "err", ev.Err)
		}
	}
	<-stopped

	if err := store.SaveRun(context.Background(), summary); err != nil {
		slog.Warn("failed to persist run summary", "err", err)
	}
	notifier.PrintRunReport(summary, eng.Statistics(), eng.Ledger().ClosedPositions())
}

// serveMetrics expone /metrics para Prometheus. Errores no tumban la sesión:
// la simulación sigue aunque el puerto esté ocupado.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Warn("metrics server stopped", "err", err)
	}
}

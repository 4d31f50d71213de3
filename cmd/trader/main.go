package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polysim/config"
	"github.com/alejandrodnm/polysim/internal/adapters/notify"
	"github.com/alejandrodnm/polysim/internal/adapters/polymarket"
	"github.com/alejandrodnm/polysim/internal/adapters/storage"
	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/engine"
	"github.com/alejandrodnm/polysim/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	backtest := flag.Bool("backtest", false, "replay stored snapshots instead of live polling")
	from := flag.String("from", "", "backtest range start (RFC3339 or YYYY-MM-DD, default: 7 days ago)")
	to := flag.String("to", "", "backtest range end (RFC3339 or YYYY-MM-DD, default: now)")
	table := flag.Bool("table", false, "print full position table per tick (default: compact 1-line)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("polysim starting",
		"config", *configPath,
		"backtest", *backtest,
		"interval", cfg.PollInterval(),
		"capital", cfg.Accounting.InitialCapital,
	)

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	notifier := notify.NewConsole(*table)

	engCfg := engine.Config{
		InitialCapital:      cfg.Accounting.InitialCapital,
		AllowNegativeEquity: cfg.Accounting.AllowNegativeEquity,
		MaxOpenPositions:    cfg.Simulation.MaxOpenPositions,
		Pool: engine.PoolConfig{
			ExpireAfter:   cfg.PoolExpiry(),
			EndLead:       cfg.EndLead(),
			MinVolume24h:  cfg.Pool.MinVolume24h,
			MinLiquidity:  cfg.Pool.MinLiquidity,
			MaxSpread:     cfg.Pool.MaxSpread,
			MaxCandidates: cfg.Pool.MaxCandidates,
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *backtest {
		// el replay no consulta books: la liquidez histórica no es recuperable
		eng := engine.New(engCfg, buildStrategies(cfg), nil, store)
		runBacktest(ctx, eng, store, notifier, *from, *to)
		return
	}

	eng := engine.New(engCfg, buildStrategies(cfg), client, store)
	runLive(ctx, eng, client, store, notifier, cfg)

	slog.Info("polysim stopped cleanly")
}

// buildStrategies construye el set cerrado de estrategias en orden fijo:
// el orden de evaluación es parte del determinismo de un replay.
func buildStrategies(cfg *config.Config) []strategy.Strategy {
	var out []strategy.Strategy
	if sc, ok := cfg.Strategy(domain.StrategyReversal); ok {
		out = append(out, strategy.NewReversal(sc))
	}
	if sc, ok := cfg.Strategy(domain.StrategyConvergence); ok {
		out = append(out, strategy.NewConvergence(sc))
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

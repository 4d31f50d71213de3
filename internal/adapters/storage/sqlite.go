package storage

// sqlite.go — persistencia de la sesión en SQLite (pure Go, sin CGo).
//
//   - `snapshots`: cada batch observado en live. Es la fuente de los replays:
//     un backtest puede reproducir exactamente lo que vio una sesión live.
//   - `trades`: journal de posiciones cerradas, una fila por trade.
//   - `runs`: resumen de cada ejecución (backtest o live).
//   - Prune automático al arrancar: snapshots > 30d, runs > 90d.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Snapshots observados en live, fuente de datos para replay
CREATE TABLE IF NOT EXISTS snapshots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    observed_at TEXT    NOT NULL,
    market_id   TEXT    NOT NULL,
    question    TEXT,
    outcomes    TEXT    NOT NULL, -- JSON [{name, token_id, price}]
    liquidity   REAL    NOT NULL DEFAULT 0,
    volume24h   REAL    NOT NULL DEFAULT 0,
    end_date    TEXT,
    active      INTEGER NOT NULL DEFAULT 1
);

-- Journal de posiciones cerradas
CREATE TABLE IF NOT EXISTS trades (
    id            TEXT PRIMARY KEY,
    market_id     TEXT NOT NULL,
    token_id      TEXT,
    outcome       TEXT NOT NULL,
    question      TEXT,
    strategy      TEXT NOT NULL,
    entry_time    TEXT NOT NULL,
    entry_price   REAL NOT NULL,
    size          REAL NOT NULL,
    entry_value   REAL NOT NULL,
    highest_price REAL NOT NULL DEFAULT 0,
    end_date      TEXT,
    exit_time     TEXT NOT NULL,
    exit_price    REAL NOT NULL,
    exit_value    REAL NOT NULL,
    pnl           REAL NOT NULL,
    pnl_pct       REAL NOT NULL,
    exit_reason   TEXT NOT NULL
);

-- Resumen por ejecución
CREATE TABLE IF NOT EXISTS runs (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    mode         TEXT NOT NULL,
    started_at   TEXT NOT NULL,
    finished_at  TEXT NOT NULL,
    ticks        INTEGER NOT NULL DEFAULT 0,
    opened       INTEGER NOT NULL DEFAULT 0,
    closed       INTEGER NOT NULL DEFAULT 0,
    realized_pnl REAL NOT NULL DEFAULT 0,
    final_equity REAL NOT NULL DEFAULT 0,
    win_rate     REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_snap_at       ON snapshots(observed_at);
CREATE INDEX IF NOT EXISTS idx_snap_market   ON snapshots(market_id);
CREATE INDEX IF NOT EXISTS idx_trades_strat  ON trades(strategy);
CREATE INDEX IF NOT EXISTS idx_trades_exit   ON trades(exit_time DESC);
CREATE INDEX IF NOT EXISTS idx_runs_started  ON runs(started_at DESC);
`

const (
	retentionSnapshots = 30 * 24 * time.Hour
	retentionRuns      = 90 * 24 * time.Hour
)

// outcomeRow es la forma JSON de un outcome dentro de la columna snapshots.outcomes.
type outcomeRow struct {
	Name    string  `json:"name"`
	TokenID string  `json:"token_id"`
	Price   float64 `json:"price"`
}

// SQLiteStorage implementa ports.TradeStorage y ports.SnapshotSource.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveSnapshots persiste un batch de snapshots en una sola transacción.
func (s *SQLiteStorage) SaveSnapshots(ctx context.Context, snaps []domain.MarketSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshots: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots
			(observed_at, market_id, question, outcomes, liquidity, volume24h, end_date, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshots: prepare: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snaps {
		outcomes := make([]outcomeRow, 0, len(snap.Outcomes))
		for _, o := range snap.Outcomes {
			outcomes = append(outcomes, outcomeRow{Name: o.Name, TokenID: o.TokenID, Price: o.Price})
		}
		blob, err := json.Marshal(outcomes)
		if err != nil {
			return fmt.Errorf("storage.SaveSnapshots: marshal outcomes %s: %w", snap.MarketID, err)
		}

		active := 0
		if snap.Active {
			active = 1
		}
		if _, err := stmt.ExecContext(ctx,
			formatTime(snap.Timestamp),
			snap.MarketID,
			snap.Question,
			string(blob),
			snap.Liquidity,
			snap.Volume24h,
			formatTime(snap.EndDate),
			active,
		); err != nil {
			return fmt.Errorf("storage.SaveSnapshots: insert %s: %w", snap.MarketID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveSnapshots: commit: %w", err)
	}
	return nil
}

// LoadSnapshots devuelve los snapshots observados en el rango [from, to],
// ordenados por timestamp. Implementa ports.SnapshotSource para el replay.
func (s *SQLiteStorage) LoadSnapshots(ctx context.Context, from, to time.Time) ([]domain.MarketSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT observed_at, market_id, question, outcomes, liquidity, volume24h, end_date, active
		FROM snapshots
		WHERE observed_at BETWEEN ? AND ?
		ORDER BY observed_at, market_id
	`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("storage.LoadSnapshots: query: %w", err)
	}
	defer rows.Close()

	var snaps []domain.MarketSnapshot
	for rows.Next() {
		var snap domain.MarketSnapshot
		var observedAt, endDate, blob string
		var active int

		if err := rows.Scan(
			&observedAt,
			&snap.MarketID,
			&snap.Question,
			&blob,
			&snap.Liquidity,
			&snap.Volume24h,
			&endDate,
			&active,
		); err != nil {
			return nil, fmt.Errorf("storage.LoadSnapshots: scan row: %w", err)
		}

		snap.Timestamp = parseTime(observedAt)
		snap.EndDate = parseTime(endDate)
		snap.Active = active == 1

		var outcomes []outcomeRow
		if err := json.Unmarshal([]byte(blob), &outcomes); err != nil {
			return nil, fmt.Errorf("storage.LoadSnapshots: decode outcomes %s: %w", snap.MarketID, err)
		}
		for _, o := range outcomes {
			snap.Outcomes = append(snap.Outcomes, domain.Outcome{Name: o.Name, TokenID: o.TokenID, Price: o.Price})
		}

		snaps = append(snaps, snap)
	}

	return snaps, rows.Err()
}

// SaveTrade hace upsert de una posición cerrada por id.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, p domain.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, market_id, token_id, outcome, question, strategy,
			 entry_time, entry_price, size, entry_value, highest_price, end_date,
			 exit_time, exit_price, exit_value, pnl, pnl_pct, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			exit_time   = excluded.exit_time,
			exit_price  = excluded.exit_price,
			exit_value  = excluded.exit_value,
			pnl         = excluded.pnl,
			pnl_pct     = excluded.pnl_pct,
			exit_reason = excluded.exit_reason
	`,
		p.ID, p.MarketID, p.TokenID, p.Outcome, p.Question, string(p.Strategy),
		formatTime(p.EntryTime), p.EntryPrice, p.Size, p.EntryValue, p.HighestPrice, formatTime(p.EndDate),
		formatTime(p.ExitTime), p.ExitPrice, p.ExitValue, p.PnL, p.PnLPct, p.ExitReason,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade %s: %w", p.ID, err)
	}
	return nil
}

// SaveRun persiste el resumen de una ejecución.
func (s *SQLiteStorage) SaveRun(ctx context.Context, r domain.RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
			(mode, started_at, finished_at, ticks, opened, closed, realized_pnl, final_equity, win_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.Mode, formatTime(r.StartedAt), formatTime(r.FinishedAt),
		r.Ticks, r.Opened, r.Closed, r.RealizedPnL, r.FinalEquity, r.WinRate,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: %w", err)
	}
	return nil
}

// Trades devuelve las posiciones cerradas de una estrategia (o todas con "").
// Ordenadas por exit_time, las más recientes primero.
func (s *SQLiteStorage) Trades(ctx context.Context, strategy string) ([]domain.Position, error) {
	query := `
		SELECT id, market_id, token_id, outcome, question, strategy,
		       entry_time, entry_price, size, entry_value, highest_price, end_date,
		       exit_time, exit_price, exit_value, pnl, pnl_pct, exit_reason
		FROM trades`
	args := []any{}
	if strategy != "" {
		query += " WHERE strategy = ?"
		args = append(args, strategy)
	}
	query += " ORDER BY exit_time DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.Trades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.Position
	for rows.Next() {
		var p domain.Position
		var strat, entryTime, endDate, exitTime string

		if err := rows.Scan(
			&p.ID, &p.MarketID, &p.TokenID, &p.Outcome, &p.Question, &strat,
			&entryTime, &p.EntryPrice, &p.Size, &p.EntryValue, &p.HighestPrice, &endDate,
			&exitTime, &p.ExitPrice, &p.ExitValue, &p.PnL, &p.PnLPct, &p.ExitReason,
		); err != nil {
			return nil, fmt.Errorf("storage.Trades: scan row: %w", err)
		}

		p.Strategy = domain.StrategyType(strat)
		p.Status = domain.StatusClosed
		p.EntryTime = parseTime(entryTime)
		p.EndDate = parseTime(endDate)
		p.ExitTime = parseTime(exitTime)
		trades = append(trades, p)
	}

	return trades, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoffSnaps := time.Now().UTC().Add(-retentionSnapshots)
	cutoffRuns := time.Now().UTC().Add(-retentionRuns)
	s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE observed_at < ?`, formatTime(cutoffSnaps))
	s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, formatTime(cutoffRuns))
}

// formatTime serializa timestamps como RFC3339 en UTC: ordenable
// lexicográficamente, estable entre drivers. El cero se guarda como "".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

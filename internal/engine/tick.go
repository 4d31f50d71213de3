package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/ports"
	"github.com/alejandrodnm/polysim/internal/strategy"
)

const eventBuffer = 256

// Config holds the settings shared by both drivers.
type Config struct {
	InitialCapital      float64
	AllowNegativeEquity bool
	MaxOpenPositions    int // global cap across strategies, 0 = unlimited
	Pool                PoolConfig
}

// Engine is the tick pipeline shared by ReplayDriver and PollDriver: both
// advance the same pool/ledger state through the same ordered steps, so
// backtests and live sessions run identical business logic.
type Engine struct {
	cfg        Config
	pool       *CandidatePool
	ledger     *Ledger
	strategies []strategy.Strategy
	books      ports.BookProvider // nil = no liquidity collaborator
	store      ports.TradeStorage // nil = no persistence

	events  chan domain.Event
	dropped atomic.Int64
}

// New wires an engine. Strategies are evaluated in the given order, which
// must stay fixed for a session so replays are deterministic.
func New(cfg Config, strategies []strategy.Strategy, books ports.BookProvider, store ports.TradeStorage) *Engine {
	limits := make(map[domain.StrategyType]int, len(strategies))
	for _, st := range strategies {
		limits[st.Type()] = st.Config().MaxPositions
	}
	return &Engine{
		cfg:        cfg,
		pool:       NewCandidatePool(cfg.Pool),
		ledger:     NewLedger(cfg.InitialCapital, cfg.AllowNegativeEquity, limits, cfg.MaxOpenPositions),
		strategies: strategies,
		books:      books,
		store:      store,
		events:     make(chan domain.Event, eventBuffer),
	}
}

// Events returns the progress event stream. Events are dropped, never
// blocking the tick, when the consumer lags.
func (e *Engine) Events() <-chan domain.Event {
	return e.events
}

// Ledger exposes the position ledger for reporting.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Pool exposes the candidate pool for reporting.
func (e *Engine) Pool() *CandidatePool {
	return e.pool
}

// Statistics returns the current derived session statistics.
func (e *Engine) Statistics() domain.Statistics {
	return e.ledger.Statistics()
}

// tickResult summarizes what one tick did.
type tickResult struct {
	Opened int
	Closed int
}

// runTick advances the session by one snapshot batch. Order is fixed:
// ingest → expire → revalidate → close-checks → open-checks → equity →
// event. Close-checks run before open-checks so a position can never open
// and close on the same tick without an intervening price observation.
func (e *Engine) runTick(ctx context.Context, driver string, snaps []domain.MarketSnapshot, now time.Time, tick int, progress float64) tickResult {
	var res tickResult

	added, refreshed := e.pool.Ingest(snaps, now)
	expired := e.pool.Expire(now)
	e.pool.RevalidateLiquidity(ctx, e.books)

	prices := indexPrices(snaps)

	res.Closed = e.closeChecks(prices, now)
	res.Opened = e.openChecks(ctx, now)

	e.ledger.RecomputeEquity()

	stats := e.ledger.Statistics()
	observeTick(driver, stats, e.pool.Size())

	slog.Debug("tick complete",
		"driver", driver,
		"tick", tick,
		"snapshots", len(snaps),
		"pool", fmt.Sprintf("+%d ~%d -%d =%d", added, refreshed, expired, e.pool.Size()),
		"open", stats.OpenCount,
		"equity", fmt.Sprintf("%.2f", stats.Equity),
	)

	e.emit(domain.Event{
		Type:        domain.EventTick,
		Time:        now,
		Tick:        tick,
		Candidates:  e.pool.Size(),
		OpenCount:   stats.OpenCount,
		Equity:      stats.Equity,
		FloatingPnL: stats.FloatingPnL,
		Progress:    progress,
	})
	return res
}

// closeChecks marks every open position with its latest observed price and
// applies the exit rules. A position whose market left the feed keeps its
// last marked price: the time-based exits (max holding, end window) must
// still fire, or a vanished market locks capital forever.
func (e *Engine) closeChecks(prices map[string]map[string]float64, now time.Time) int {
	closed := 0
	for _, p := range e.ledger.OpenPositions() {
		price, fresh := lookupPrice(prices, p.MarketID, p.Outcome)
		if fresh {
			e.ledger.MarkPrice(p.ID, price)
		} else {
			price = p.CurrentPrice
		}

		st := e.strategyFor(p.Strategy)
		if st == nil {
			continue
		}

		shouldClose, reason := e.safeCloseCheck(st, p.ID, price, now)
		if !shouldClose {
			continue
		}

		pos, err := e.ledger.Close(p.ID, price, reason, now)
		if err != nil {
			slog.Warn("close failed", "position", p.ID, "err", err)
			continue
		}
		st.NoteClose(pos, now)
		closed++

		observeClose(pos)
		slog.Info("position closed",
			"strategy", pos.Strategy,
			"market", domain.TruncateQuestion(pos.Question, pos.MarketID, 40),
			"entry", fmt.Sprintf("%.4f", pos.EntryPrice),
			"exit", fmt.Sprintf("%.4f", pos.ExitPrice),
			"pnl", fmt.Sprintf("%.2f (%.1f%%)", pos.PnL, pos.PnLPct),
			"reason", reason,
		)

		if e.store != nil {
			if err := e.store.SaveTrade(context.Background(), *pos); err != nil {
				slog.Warn("storage error saving trade", "err", err)
			}
		}

		snap := *pos
		e.emit(domain.Event{Type: domain.EventClosed, Time: now, Position: &snap, Reason: reason})
	}
	return closed
}

// openChecks walks the eligible candidates in deterministic order and lets
// each enabled strategy claim them, subject to capacity and capital.
func (e *Engine) openChecks(ctx context.Context, now time.Time) int {
	valid := e.pool.ValidFor(e.ledger.OpenMarkets(), now)
	if len(valid) == 0 {
		return 0
	}

	books, booksOK := e.fetchBooks(ctx, valid)

	opened := 0
	for _, c := range valid {
		// one open position per market — a candidate claimed by one
		// strategy is gone for the rest
		if e.ledger.OpenMarkets()[c.MarketID] {
			continue
		}

		var book *domain.OrderBook
		if e.books != nil {
			if !booksOK {
				// provider failed wholesale: treat every book as
				// unknown and open nothing this tick
				break
			}
			b, ok := books[c.TokenID]
			if !ok {
				slog.Warn("liquidity unknown, skipping candidate",
					"market", domain.TruncateQuestion(c.Question, c.MarketID, 30),
					"outcome", c.Outcome,
				)
				continue
			}
			book = &b
		}

		for _, st := range e.strategies {
			if err := e.ledger.CanOpen(st.Type()); err != nil {
				continue
			}
			if !e.safeOpenCheck(st, c, book, now) {
				continue
			}

			price := c.LatestPrice
			shares := strategy.PositionShares(e.ledger.Equity(), st.Config(), price)
			if shares <= 0 {
				continue
			}
			cost := shares * price
			available := e.ledger.Equity() - e.ledger.DeployedCapital()
			if cost > available {
				slog.Debug("insufficient free capital",
					"needed", fmt.Sprintf("%.2f", cost),
					"available", fmt.Sprintf("%.2f", available),
				)
				continue
			}

			pos, err := e.ledger.Open(c, price, shares, st.Type(), now)
			if err != nil {
				slog.Debug("open rejected", "market", c.MarketID, "err", err)
				continue
			}
			opened++

			observeOpen(pos)
			slog.Info("position opened",
				"strategy", pos.Strategy,
				"market", domain.TruncateQuestion(pos.Question, pos.MarketID, 40),
				"outcome", pos.Outcome,
				"price", fmt.Sprintf("%.4f", pos.EntryPrice),
				"shares", fmt.Sprintf("%.1f", pos.Size),
				"value", fmt.Sprintf("%.2f", pos.EntryValue),
			)

			snap := *pos
			e.emit(domain.Event{Type: domain.EventOpened, Time: now, Position: &snap})
			break
		}
	}
	return opened
}

// fetchBooks pulls the order books for every valid candidate in one batched
// call. Returns ok=false when the provider itself failed.
func (e *Engine) fetchBooks(ctx context.Context, valid []domain.Candidate) (map[string]domain.OrderBook, bool) {
	if e.books == nil {
		return nil, true
	}
	tokenIDs := make([]string, 0, len(valid))
	for _, c := range valid {
		tokenIDs = append(tokenIDs, c.TokenID)
	}
	books, err := e.books.FetchOrderBooks(ctx, tokenIDs)
	if err != nil {
		slog.Warn("book fetch failed, skipping opens this tick", "err", err)
		return nil, false
	}
	return books, true
}

// safeOpenCheck shields the tick from a panicking strategy evaluation: the
// candidate is logged and skipped, the loop continues.
func (e *Engine) safeOpenCheck(st strategy.Strategy, c domain.Candidate, book *domain.OrderBook, now time.Time) (open bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("strategy panic during open evaluation",
				"strategy", st.Type(), "candidate", c.Key(), "panic", r)
			open = false
		}
	}()
	return st.ShouldOpen(c, book, e.ledger.Equity(), now)
}

// safeCloseCheck is the exit-side twin of safeOpenCheck. A panic leaves the
// position open for the next tick.
func (e *Engine) safeCloseCheck(st strategy.Strategy, positionID string, price float64, now time.Time) (shouldClose bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("strategy panic during close evaluation",
				"strategy", st.Type(), "position", positionID, "panic", r)
			shouldClose = false
		}
	}()
	p, ok := e.ledger.open[positionID]
	if !ok {
		return false, ""
	}
	if !st.ShouldClose(p, price, now) {
		return false, ""
	}
	return true, st.ExitReason(p, price, now)
}

func (e *Engine) strategyFor(t domain.StrategyType) strategy.Strategy {
	for _, st := range e.strategies {
		if st.Type() == t {
			return st
		}
	}
	return nil
}

// emit sends without blocking: a slow consumer loses events, never ticks.
func (e *Engine) emit(ev domain.Event) {
	select {
	case e.events <- ev:
	default:
		if n := e.dropped.Add(1); n%100 == 1 {
			slog.Warn("event consumer lagging, dropping events", "dropped", n)
		}
	}
}

// closeEvents signals consumers that no more events will come.
func (e *Engine) closeEvents() {
	close(e.events)
}

// indexPrices builds a marketID → outcome → price lookup from a batch.
func indexPrices(snaps []domain.MarketSnapshot) map[string]map[string]float64 {
	idx := make(map[string]map[string]float64, len(snaps))
	for _, s := range snaps {
		m, ok := idx[s.MarketID]
		if !ok {
			m = make(map[string]float64, len(s.Outcomes))
			idx[s.MarketID] = m
		}
		for _, o := range s.Outcomes {
			m[o.Name] = o.Price
		}
	}
	return idx
}

func lookupPrice(idx map[string]map[string]float64, marketID, outcome string) (float64, bool) {
	m, ok := idx[marketID]
	if !ok {
		return 0, false
	}
	price, ok := m[outcome]
	return price, ok
}

package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrCapacityExceeded rejects an open when the strategy or global
	// position limit is already reached.
	ErrCapacityExceeded = errors.New("position capacity exceeded")
	// ErrDuplicateMarket rejects an open for a market that already has an
	// open position.
	ErrDuplicateMarket = errors.New("market already has an open position")
	// ErrPositionNotFound is returned for unknown position ids.
	ErrPositionNotFound = errors.New("position not found")
)

// Ledger owns every position and the equity account. It is the single
// authority on capital: nothing else books P&L. Not safe for concurrent
// use — the drivers guarantee one tick at a time.
type Ledger struct {
	account      *domain.EquityAccount
	open         map[string]*domain.Position // position id → position
	openByMarket map[string]string           // market id → position id
	closed       []*domain.Position
	traded       map[string]bool // every market traded during the session
	limits       map[domain.StrategyType]int
	maxGlobal    int
}

// NewLedger creates a ledger funded with initialCapital. limits caps open
// positions per strategy; maxGlobal (0 = unlimited) caps the total.
func NewLedger(initialCapital float64, allowNegative bool, limits map[domain.StrategyType]int, maxGlobal int) *Ledger {
	return &Ledger{
		account:      domain.NewEquityAccount(initialCapital, allowNegative),
		open:         make(map[string]*domain.Position),
		openByMarket: make(map[string]string),
		traded:       make(map[string]bool),
		limits:       limits,
		maxGlobal:    maxGlobal,
	}
}

// Open creates a position for the candidate at the given price and size.
func (l *Ledger) Open(c domain.Candidate, price, shares float64, st domain.StrategyType, now time.Time) (*domain.Position, error) {
	if err := l.CanOpen(st); err != nil {
		return nil, err
	}
	if _, dup := l.openByMarket[c.MarketID]; dup {
		return nil, fmt.Errorf("ledger.Open %s: %w", c.MarketID, ErrDuplicateMarket)
	}

	p := &domain.Position{
		ID:           uuid.New().String(),
		MarketID:     c.MarketID,
		TokenID:      c.TokenID,
		Outcome:      c.Outcome,
		Question:     c.Question,
		Strategy:     st,
		EntryTime:    now,
		EntryPrice:   price,
		Size:         shares,
		EntryValue:   shares * price,
		Status:       domain.StatusOpen,
		CurrentPrice: price,
		HighestPrice: price,
		EndDate:      c.EndDate,
	}

	l.open[p.ID] = p
	l.openByMarket[p.MarketID] = p.ID
	l.traded[p.MarketID] = true
	return p, nil
}

// CanOpen checks the capacity limits for a strategy without opening.
func (l *Ledger) CanOpen(st domain.StrategyType) error {
	if l.maxGlobal > 0 && len(l.open) >= l.maxGlobal {
		return fmt.Errorf("ledger: global limit %d: %w", l.maxGlobal, ErrCapacityExceeded)
	}
	if limit, ok := l.limits[st]; ok && limit > 0 && l.OpenCount(st) >= limit {
		return fmt.Errorf("ledger: %s limit %d: %w", st, limit, ErrCapacityExceeded)
	}
	return nil
}

// Close seals a position and books its realized P&L into equity.
// Closing an already-closed position is an idempotent no-op with a warning.
func (l *Ledger) Close(positionID string, exitPrice float64, reason string, now time.Time) (*domain.Position, error) {
	p, ok := l.open[positionID]
	if !ok {
		for _, c := range l.closed {
			if c.ID == positionID {
				slog.Warn("ledger: ignoring close of already-closed position",
					"position", positionID, "market", c.MarketID)
				return c, nil
			}
		}
		return nil, fmt.Errorf("ledger.Close %s: %w", positionID, ErrPositionNotFound)
	}

	p.ApplyExit(exitPrice, reason, now)
	delete(l.open, positionID)
	delete(l.openByMarket, p.MarketID)
	l.closed = append(l.closed, p)

	if clamped := l.account.ApplyRealized(p.PnL); clamped {
		slog.Warn("ledger: equity clamped at bankruptcy floor",
			"position", positionID,
			"pnl", fmt.Sprintf("%.2f", p.PnL),
		)
	}
	l.recomputeFloating()
	return p, nil
}

// MarkPrice updates the floating economics of an open position. Unknown or
// closed positions are left untouched.
func (l *Ledger) MarkPrice(positionID string, price float64) {
	if p, ok := l.open[positionID]; ok {
		p.MarkPrice(price)
	}
}

// RecomputeEquity refreshes the floating P&L aggregate. Call once per tick
// after all price marks.
func (l *Ledger) RecomputeEquity() {
	l.recomputeFloating()
}

func (l *Ledger) recomputeFloating() {
	var floating float64
	for _, p := range l.open {
		floating += p.CurrentPnL
	}
	l.account.SetFloating(floating)
}

// Equity returns the realized equity (initial capital + closed P&L).
func (l *Ledger) Equity() float64 {
	return l.account.Equity
}

// OpenMarkets returns the market ids with an open position. This is the set
// ValidFor uses to prevent duplicate entries.
func (l *Ledger) OpenMarkets() map[string]bool {
	out := make(map[string]bool, len(l.openByMarket))
	for m := range l.openByMarket {
		out[m] = true
	}
	return out
}

// OpenPositions returns copies of all open positions, oldest entry first.
func (l *Ledger) OpenPositions() []domain.Position {
	out := make([]domain.Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].EntryTime.Before(out[j].EntryTime)
		}
		return out[i].MarketID < out[j].MarketID
	})
	return out
}

// ClosedPositions returns copies of all closed positions in close order.
func (l *Ledger) ClosedPositions() []domain.Position {
	out := make([]domain.Position, 0, len(l.closed))
	for _, p := range l.closed {
		out = append(out, *p)
	}
	return out
}

// OpenCount returns the number of open positions for one strategy.
func (l *Ledger) OpenCount(st domain.StrategyType) int {
	n := 0
	for _, p := range l.open {
		if p.Strategy == st {
			n++
		}
	}
	return n
}

// MarketsTraded returns how many distinct markets got a position this session.
func (l *Ledger) MarketsTraded() int {
	return len(l.traded)
}

// DeployedCapital is the sum of entry values locked in open positions.
// Used to avoid double-counting capital when sizing new entries.
func (l *Ledger) DeployedCapital() float64 {
	var total float64
	for _, p := range l.open {
		total += p.EntryValue
	}
	return total
}

// Statistics derives the full session view from the positions. Nothing here
// is stored redundantly, so it can never drift from the ledger.
func (l *Ledger) Statistics() domain.Statistics {
	stats := domain.Statistics{
		OpenCount:   len(l.open),
		ClosedCount: len(l.closed),
		RealizedPnL: l.account.RealizedPnL(),
		FloatingPnL: l.account.FloatingPnL,
		Equity:      l.account.Equity,
		TotalAssets: l.account.TotalAssets(),
		ByStrategy:  make(map[domain.StrategyType]domain.StrategyStats),
	}

	holdHours := make(map[domain.StrategyType]float64)
	for _, p := range l.closed {
		s := stats.ByStrategy[p.Strategy]
		s.Closed++
		s.RealizedPnL += p.PnL
		if p.Won() {
			s.Wins++
			stats.Wins++
		} else {
			s.Losses++
			stats.Losses++
		}
		holdHours[p.Strategy] += p.ExitTime.Sub(p.EntryTime).Hours()
		stats.ByStrategy[p.Strategy] = s
	}
	for _, p := range l.open {
		s := stats.ByStrategy[p.Strategy]
		s.Opened++
		stats.ByStrategy[p.Strategy] = s
	}
	for st, s := range stats.ByStrategy {
		s.Opened += s.Closed
		if s.Closed > 0 {
			s.AvgHoldHours = holdHours[st] / float64(s.Closed)
		}
		stats.ByStrategy[st] = s
	}
	if stats.ClosedCount > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.ClosedCount)
	}
	return stats
}

package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

const (
	// nearZeroPrice is the absolute hard floor: below it a position is
	// force-closed no matter what the bucket policy says.
	nearZeroPrice = 0.01

	// liquiditySafetyMult: the opposite side of the book must absorb at
	// least this multiple of the intended position size before opening.
	liquiditySafetyMult = 2.0
)

// Exit reason prefixes. ExitReason strings always start with one of these so
// reports and metrics can aggregate without parsing the human-readable tail.
const (
	ReasonHardFloor    = "hard floor"
	ReasonStopLoss     = "hard stop-loss"
	ReasonTakeProfit   = "take profit"
	ReasonTrailingStop = "trailing stop"
	ReasonMaxHolding   = "max holding time"
	ReasonEndWindow    = "market end window"
)

// RuleLabel maps an exit reason string to a low-cardinality label suitable
// for metrics. Unknown reasons map to "other".
func RuleLabel(reason string) string {
	switch {
	case strings.HasPrefix(reason, ReasonHardFloor):
		return "hard_floor"
	case strings.HasPrefix(reason, ReasonStopLoss):
		return "stop_loss"
	case strings.HasPrefix(reason, ReasonTakeProfit):
		return "take_profit"
	case strings.HasPrefix(reason, ReasonTrailingStop):
		return "trailing_stop"
	case strings.HasPrefix(reason, ReasonMaxHolding):
		return "max_holding"
	case strings.HasPrefix(reason, ReasonEndWindow):
		return "end_window"
	default:
		return "other"
	}
}

// Strategy is the closed set of entry/exit rule variants. Implementations
// hold their own per-market cooldown (and blacklist) state; they never touch
// the ledger.
type Strategy interface {
	Type() domain.StrategyType
	Config() domain.StrategyConfig

	// ShouldOpen decides whether a candidate qualifies for entry. book may
	// be nil when no order-book collaborator is available; in that case the
	// depth check is skipped. Records the attempt in the cooldown table as
	// a side effect when it returns true.
	ShouldOpen(c domain.Candidate, book *domain.OrderBook, capital float64, now time.Time) bool

	// ShouldClose evaluates the exit rules for an open position at the
	// given price. ExitReason for the same inputs always agrees with it:
	// both derive from a single decision path.
	ShouldClose(p *domain.Position, price float64, now time.Time) bool
	ExitReason(p *domain.Position, price float64, now time.Time) string

	// NoteClose records a close so the cooldown (and, for Reversal, the
	// near-zero blacklist) can reject immediate re-entry.
	NoteClose(p *domain.Position, now time.Time)
}

// bucket is a price range with its own risk policy. Tables are static,
// strategy-specific data: config can override the knobs globally but never
// redefines the ranges.
type bucket struct {
	Low, High    float64
	StopLossPct  float64 // negative, e.g. -15
	TrailingPct  float64 // positive drawdown from the high, e.g. 30
	MaxHoldHours float64
}

// bucketFor picks the bucket containing price: low ≤ price < high, with the
// last bucket closed on both ends.
func bucketFor(buckets []bucket, price float64) (bucket, bool) {
	for i, b := range buckets {
		last := i == len(buckets)-1
		if price >= b.Low && (price < b.High || (last && price <= b.High)) {
			return b, true
		}
	}
	return bucket{}, false
}

// PositionShares computes the intended position size in shares:
// (capital × maxPositionSize) / price.
func PositionShares(capital float64, cfg domain.StrategyConfig, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return capital * cfg.MaxPositionSize / price
}

// bookAbsorbs checks the ask side can absorb the intended size with margin.
func bookAbsorbs(book *domain.OrderBook, shares float64) bool {
	return book.AskDepthShares() >= liquiditySafetyMult*shares
}

// evaluateExit runs the shared exit rules in priority order and returns the
// decision plus the human-readable reason. endWindowHours == 0 disables the
// end-window rule (Reversal).
func evaluateExit(
	p *domain.Position,
	price float64,
	now time.Time,
	buckets []bucket,
	cfg domain.StrategyConfig,
	endWindowHours float64,
) (bool, string) {
	// 1. Hard floor: near-zero prices are unrecoverable.
	if price < nearZeroPrice {
		return true, fmt.Sprintf("%s: price %.4f below %.2f", ReasonHardFloor, price, nearZeroPrice)
	}

	b, ok := bucketFor(buckets, p.EntryPrice)
	if !ok {
		// Entry prices always fall in a bucket via ShouldOpen; positions
		// restored from elsewhere get the most conservative policy.
		b = buckets[len(buckets)-1]
	}

	pnlPct := 0.0
	if p.EntryPrice > 0 {
		pnlPct = (price - p.EntryPrice) / p.EntryPrice * 100
	}

	// 2. Hard stop-loss, bucket-specific threshold.
	stopLoss := b.StopLossPct
	if cfg.StopLossPct != 0 {
		stopLoss = cfg.StopLossPct
	}
	if pnlPct <= stopLoss {
		return true, fmt.Sprintf("%s: %.1f%% breaches %.1f%% limit", ReasonStopLoss, pnlPct, stopLoss)
	}

	// 3. Optional take-profit from config.
	if cfg.TakeProfitPct > 0 && pnlPct >= cfg.TakeProfitPct {
		return true, fmt.Sprintf("%s: +%.1f%% reached +%.1f%% target", ReasonTakeProfit, pnlPct, cfg.TakeProfitPct)
	}

	// 4. Trailing stop. Only armed while the position is in profit.
	trailing := b.TrailingPct
	if cfg.TrailingStopPct != 0 {
		trailing = cfg.TrailingStopPct
	}
	high := p.HighestPrice
	if price > high {
		high = price
	}
	if pnlPct > 0 && high > p.EntryPrice && price < high {
		drawdown := (high - price) / high * 100
		if drawdown >= trailing {
			return true, fmt.Sprintf("%s: %.1f%% retracement from high %.4f", ReasonTrailingStop, drawdown, high)
		}
	}

	// 5. Max holding duration.
	maxHold := b.MaxHoldHours
	if cfg.MaxHoldingHours > 0 {
		maxHold = cfg.MaxHoldingHours
	}
	if p.HoldingHours(now) > maxHold {
		return true, fmt.Sprintf("%s: held %.0fh over %.0fh limit", ReasonMaxHolding, p.HoldingHours(now), maxHold)
	}

	// 6. End window: force out before settlement risk.
	if endWindowHours > 0 && !p.EndDate.IsZero() {
		left := p.EndDate.Sub(now).Hours()
		if left < endWindowHours {
			return true, fmt.Sprintf("%s: %.1fh to resolution under %.1fh safety window", ReasonEndWindow, left, endWindowHours)
		}
	}

	return false, ""
}

// cooldownTable tracks per-market cooldown timestamps for one strategy
// instance. Prevents re-entry oscillation after a close or an open attempt.
type cooldownTable struct {
	until    map[string]time.Time
	duration time.Duration
}

func newCooldownTable(d time.Duration) *cooldownTable {
	return &cooldownTable{until: make(map[string]time.Time), duration: d}
}

func (t *cooldownTable) blocked(marketID string, now time.Time) bool {
	last, ok := t.until[marketID]
	return ok && now.Sub(last) < t.duration
}

func (t *cooldownTable) note(marketID string, now time.Time) {
	t.until[marketID] = now
}

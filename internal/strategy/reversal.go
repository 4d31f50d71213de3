package strategy

import (
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// Reversal bets on bounces in deep-discount price bands. It operates on
// lower-liquidity, higher-volatility markets, so its cooldown is longer and
// a market that hit the near-zero floor is blacklisted for the session.
const (
	reversalCooldown     = 30 * time.Minute
	reversalMinVolume24h = 500
	reversalMinLiquidity = 1000
)

// Bucket policy: deeper discounts tolerate wider drawdowns and longer holds.
var reversalBuckets = []bucket{
	{Low: 0.01, High: 0.05, StopLossPct: -15, TrailingPct: 30, MaxHoldHours: 168},
	{Low: 0.05, High: 0.10, StopLossPct: -15, TrailingPct: 25, MaxHoldHours: 120},
	{Low: 0.10, High: 0.20, StopLossPct: -10, TrailingPct: 20, MaxHoldHours: 96},
	{Low: 0.20, High: 0.35, StopLossPct: -10, TrailingPct: 15, MaxHoldHours: 72},
}

// Reversal implements Strategy for the reversal variant.
type Reversal struct {
	cfg       domain.StrategyConfig
	cooldowns *cooldownTable
	blacklist map[string]bool // markets that hit the hard floor
}

// NewReversal creates a reversal evaluator with its own cooldown state.
func NewReversal(cfg domain.StrategyConfig) *Reversal {
	d := reversalCooldown
	if cfg.CooldownMinutes > 0 {
		d = time.Duration(cfg.CooldownMinutes) * time.Minute
	}
	return &Reversal{
		cfg:       cfg,
		cooldowns: newCooldownTable(d),
		blacklist: make(map[string]bool),
	}
}

func (r *Reversal) Type() domain.StrategyType {
	return domain.StrategyReversal
}

func (r *Reversal) Config() domain.StrategyConfig {
	return r.cfg
}

// ShouldOpen applies the reversal entry rules: price inside a bucket, basic
// depth, not blacklisted, not cooling down, and the book (when available)
// able to absorb the intended size.
func (r *Reversal) ShouldOpen(c domain.Candidate, book *domain.OrderBook, capital float64, now time.Time) bool {
	if !r.cfg.Enabled {
		return false
	}
	if r.blacklist[c.MarketID] {
		return false
	}
	if _, ok := bucketFor(reversalBuckets, c.LatestPrice); !ok {
		return false
	}
	if c.Volume24h < reversalMinVolume24h || c.Liquidity < reversalMinLiquidity {
		return false
	}
	if r.cooldowns.blocked(c.MarketID, now) {
		return false
	}
	if book != nil {
		shares := PositionShares(capital, r.cfg, c.LatestPrice)
		if shares <= 0 || !bookAbsorbs(book, shares) {
			return false
		}
	}
	r.cooldowns.note(c.MarketID, now)
	return true
}

func (r *Reversal) ShouldClose(p *domain.Position, price float64, now time.Time) bool {
	closed, _ := evaluateExit(p, price, now, reversalBuckets, r.cfg, 0)
	return closed
}

func (r *Reversal) ExitReason(p *domain.Position, price float64, now time.Time) string {
	_, reason := evaluateExit(p, price, now, reversalBuckets, r.cfg, 0)
	return reason
}

// NoteClose starts the cooldown and blacklists markets that collapsed
// through the hard floor — those never qualify for re-entry.
func (r *Reversal) NoteClose(p *domain.Position, now time.Time) {
	r.cooldowns.note(p.MarketID, now)
	if RuleLabel(p.ExitReason) == "hard_floor" {
		r.blacklist[p.MarketID] = true
	}
}

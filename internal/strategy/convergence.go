package strategy

import (
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// Convergence rides near-certain outcomes (0.90–0.95) into resolution,
// entering only inside the final stretch and bailing out before the
// settlement safety window.
const (
	convergenceCooldown     = 15 * time.Minute
	convergenceMinVolume24h = 5000
	convergenceMinLiquidity = 10000
	// entryWindowHours: only markets resolving within this horizon qualify.
	convergenceEntryWindowHours = 48
	// defaultEndWindowHours: force-close this close to resolution.
	defaultEndWindowHours = 2
)

var convergenceBuckets = []bucket{
	{Low: 0.90, High: 0.95, StopLossPct: -5, TrailingPct: 10, MaxHoldHours: 24},
}

// Convergence implements Strategy for the convergence variant.
type Convergence struct {
	cfg       domain.StrategyConfig
	cooldowns *cooldownTable
	endWindow float64
}

// NewConvergence creates a convergence evaluator with its own cooldown state.
func NewConvergence(cfg domain.StrategyConfig) *Convergence {
	d := convergenceCooldown
	if cfg.CooldownMinutes > 0 {
		d = time.Duration(cfg.CooldownMinutes) * time.Minute
	}
	endWindow := cfg.EndWindowHours
	if endWindow <= 0 {
		endWindow = defaultEndWindowHours
	}
	return &Convergence{
		cfg:       cfg,
		cooldowns: newCooldownTable(d),
		endWindow: endWindow,
	}
}

func (c *Convergence) Type() domain.StrategyType {
	return domain.StrategyConvergence
}

func (c *Convergence) Config() domain.StrategyConfig {
	return c.cfg
}

// ShouldOpen applies the convergence entry rules: price in the 0.90–0.95
// band, resolution within the entry window but outside the safety window,
// strong depth, not cooling down.
func (c *Convergence) ShouldOpen(cand domain.Candidate, book *domain.OrderBook, capital float64, now time.Time) bool {
	if !c.cfg.Enabled {
		return false
	}
	if _, ok := bucketFor(convergenceBuckets, cand.LatestPrice); !ok {
		return false
	}
	hoursLeft := cand.HoursToEnd(now)
	if hoursLeft <= c.endWindow || hoursLeft > convergenceEntryWindowHours {
		return false
	}
	if cand.Volume24h < convergenceMinVolume24h || cand.Liquidity < convergenceMinLiquidity {
		return false
	}
	if c.cooldowns.blocked(cand.MarketID, now) {
		return false
	}
	if book != nil {
		shares := PositionShares(capital, c.cfg, cand.LatestPrice)
		if shares <= 0 || !bookAbsorbs(book, shares) {
			return false
		}
	}
	c.cooldowns.note(cand.MarketID, now)
	return true
}

func (c *Convergence) ShouldClose(p *domain.Position, price float64, now time.Time) bool {
	closed, _ := evaluateExit(p, price, now, convergenceBuckets, c.cfg, c.endWindow)
	return closed
}

func (c *Convergence) ExitReason(p *domain.Position, price float64, now time.Time) string {
	_, reason := evaluateExit(p, price, now, convergenceBuckets, c.cfg, c.endWindow)
	return reason
}

func (c *Convergence) NoteClose(p *domain.Position, now time.Time) {
	c.cooldowns.note(p.MarketID, now)
}

package domain

import "time"

// StrategyType identifies which strategy variant owns a position.
type StrategyType string

const (
	StrategyReversal    StrategyType = "reversal"
	StrategyConvergence StrategyType = "convergence"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

// Position is a simulated trade with entry/exit economics. Owned exclusively
// by the ledger: nothing outside it mutates a Position.
type Position struct {
	ID       string
	MarketID string
	TokenID  string
	Outcome  string
	Question string
	Strategy StrategyType

	EntryTime  time.Time
	EntryPrice float64
	Size       float64 // shares
	EntryValue float64 // Size × EntryPrice, USDC

	Status        PositionStatus
	CurrentPrice  float64
	CurrentPnL    float64 // Size×CurrentPrice − EntryValue
	CurrentPnLPct float64
	// HighestPrice is the high-water mark since entry, used by the trailing
	// stop. Starts at EntryPrice and never decreases.
	HighestPrice float64
	EndDate      time.Time // market resolution date, drives the end-window rule

	ExitTime   time.Time
	ExitPrice  float64
	ExitValue  float64
	PnL        float64
	PnLPct     float64
	ExitReason string
}

// MarkPrice updates the floating economics of an open position. Closed
// positions are immutable: marking them is a no-op.
func (p *Position) MarkPrice(price float64) {
	if p.Status == StatusClosed {
		return
	}
	p.CurrentPrice = price
	p.CurrentPnL = p.Size*price - p.EntryValue
	if p.EntryValue > 0 {
		p.CurrentPnLPct = p.CurrentPnL / p.EntryValue * 100
	}
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
}

// ApplyExit seals the position: computes exit economics and freezes it.
func (p *Position) ApplyExit(exitPrice float64, reason string, now time.Time) {
	p.MarkPrice(exitPrice)
	p.Status = StatusClosed
	p.ExitTime = now
	p.ExitPrice = exitPrice
	p.ExitValue = p.Size * exitPrice
	p.PnL = p.ExitValue - p.EntryValue
	if p.EntryValue > 0 {
		p.PnLPct = p.PnL / p.EntryValue * 100
	}
	p.ExitReason = reason
}

// HoldingHours returns how long the position has been held, as of now.
func (p Position) HoldingHours(now time.Time) float64 {
	return now.Sub(p.EntryTime).Hours()
}

// Won reports whether a closed position realized a profit.
func (p Position) Won() bool {
	return p.Status == StatusClosed && p.PnL > 0
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePosition(entry float64, size float64) *Position {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Position{
		ID:           "pos-1",
		MarketID:     "0xmkt",
		Outcome:      "Yes",
		Strategy:     StrategyReversal,
		EntryTime:    now,
		EntryPrice:   entry,
		Size:         size,
		EntryValue:   size * entry,
		Status:       StatusOpen,
		CurrentPrice: entry,
		HighestPrice: entry,
	}
}

func TestPosition_MarkPrice_UpdatesFloatingPnL(t *testing.T) {
	p := makePosition(0.05, 1000)

	p.MarkPrice(0.06)

	assert.InDelta(t, 0.06, p.CurrentPrice, 1e-9)
	assert.InDelta(t, 10.0, p.CurrentPnL, 1e-9) // 1000×0.06 − 50
	assert.InDelta(t, 20.0, p.CurrentPnLPct, 1e-9)
	assert.InDelta(t, 0.06, p.HighestPrice, 1e-9)
}

func TestPosition_MarkPrice_HighWaterNeverDecreases(t *testing.T) {
	p := makePosition(0.05, 1000)

	p.MarkPrice(0.10)
	p.MarkPrice(0.07)

	assert.InDelta(t, 0.10, p.HighestPrice, 1e-9)
	// invariante: highestPrice ≥ entryPrice siempre
	assert.GreaterOrEqual(t, p.HighestPrice, p.EntryPrice)
}

func TestPosition_MarkPrice_BelowEntryKeepsHighAtEntry(t *testing.T) {
	p := makePosition(0.05, 1000)

	p.MarkPrice(0.03)

	assert.InDelta(t, 0.05, p.HighestPrice, 1e-9)
}

func TestPosition_ApplyExit_ComputesRealizedPnL(t *testing.T) {
	p := makePosition(0.05, 1000)
	exitAt := p.EntryTime.Add(3 * time.Hour)

	p.ApplyExit(0.08, "take profit", exitAt)

	require.Equal(t, StatusClosed, p.Status)
	// pnl == size × (exitPrice − entryPrice)
	assert.InDelta(t, 1000*(0.08-0.05), p.PnL, 1e-9)
	assert.InDelta(t, p.PnL/p.EntryValue*100, p.PnLPct, 1e-9)
	assert.InDelta(t, 80.0, p.ExitValue, 1e-9)
	assert.Equal(t, "take profit", p.ExitReason)
	assert.True(t, p.Won())
}

func TestPosition_MarkPrice_ClosedIsImmutable(t *testing.T) {
	p := makePosition(0.05, 1000)
	p.ApplyExit(0.08, "done", p.EntryTime.Add(time.Hour))

	p.MarkPrice(0.50)

	assert.InDelta(t, 0.08, p.CurrentPrice, 1e-9)
	assert.InDelta(t, 30.0, p.PnL, 1e-9)
}

func TestEquityAccount_RealizedOnly(t *testing.T) {
	a := NewEquityAccount(1000, false)

	a.SetFloating(250)
	assert.InDelta(t, 1000.0, a.Equity, 1e-9) // el floating nunca toca equity
	assert.InDelta(t, 1250.0, a.TotalAssets(), 1e-9)

	clamped := a.ApplyRealized(-100)
	assert.False(t, clamped)
	assert.InDelta(t, 900.0, a.Equity, 1e-9)
	assert.InDelta(t, -100.0, a.RealizedPnL(), 1e-9)
}

func TestEquityAccount_BankruptcyFloor(t *testing.T) {
	a := NewEquityAccount(100, false)

	clamped := a.ApplyRealized(-150)

	assert.True(t, clamped)
	assert.InDelta(t, 0.0, a.Equity, 1e-9)
}

func TestEquityAccount_AllowNegative(t *testing.T) {
	a := NewEquityAccount(100, true)

	clamped := a.ApplyRealized(-150)

	assert.False(t, clamped)
	assert.InDelta(t, -50.0, a.Equity, 1e-9)
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reversalStrategy() strategy.Strategy {
	return strategy.NewReversal(domain.StrategyConfig{
		Enabled:         true,
		MaxPositions:    5,
		MaxPositionSize: 0.05,
	})
}

// stopLossDataset opens a reversal position at 0.03 on the first tick and
// hits the -15% hard stop on the second.
func stopLossDataset() []domain.MarketSnapshot {
	return []domain.MarketSnapshot{
		binarySnap("0xA", baseTime, 0.03),
		binarySnap("0xA", baseTime.Add(time.Hour), 0.0255),
	}
}

func TestReplay_OpensAndClosesOnRecordedPrices(t *testing.T) {
	eng := New(testConfig(), []strategy.Strategy{reversalStrategy()}, nil, nil)
	d := NewReplayDriver(eng, stopLossDataset())

	summary, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "replay", summary.Mode)
	assert.Equal(t, 2, summary.Ticks)
	assert.Equal(t, 1, summary.Opened)
	assert.Equal(t, 1, summary.Closed)

	closed := eng.Ledger().ClosedPositions()
	require.Len(t, closed, 1)
	p := closed[0]
	assert.Equal(t, "0xA", p.MarketID)
	assert.InDelta(t, 0.03, p.EntryPrice, 1e-9)
	assert.InDelta(t, 0.0255, p.ExitPrice, 1e-9)
	assert.InDelta(t, -7.5, p.PnL, 1e-6)
	assert.Contains(t, p.ExitReason, strategy.ReasonStopLoss)

	// el reloj lógico es el timestamp del dataset, no el wall-clock
	assert.Equal(t, baseTime, p.EntryTime)
	assert.Equal(t, baseTime.Add(time.Hour), p.ExitTime)

	assert.InDelta(t, 992.5, summary.FinalEquity, 1e-6)
	assert.Zero(t, summary.WinRate)
}

func TestReplay_IsDeterministic(t *testing.T) {
	run := func() (domain.RunSummary, []domain.Position) {
		eng := New(testConfig(), []strategy.Strategy{reversalStrategy()}, nil, nil)
		d := NewReplayDriver(eng, stopLossDataset())
		s, err := d.Run(context.Background())
		require.NoError(t, err)
		return s, eng.Ledger().ClosedPositions()
	}

	s1, closed1 := run()
	s2, closed2 := run()

	assert.Equal(t, s1.Ticks, s2.Ticks)
	assert.Equal(t, s1.Opened, s2.Opened)
	assert.Equal(t, s1.Closed, s2.Closed)
	assert.InDelta(t, s1.FinalEquity, s2.FinalEquity, 1e-12)

	require.Equal(t, len(closed1), len(closed2))
	for i := range closed1 {
		assert.Equal(t, closed1[i].MarketID, closed2[i].MarketID)
		assert.InDelta(t, closed1[i].PnL, closed2[i].PnL, 1e-12)
		assert.Equal(t, closed1[i].ExitReason, closed2[i].ExitReason)
	}
}

func TestReplay_EventSequence(t *testing.T) {
	eng := New(testConfig(), []strategy.Strategy{reversalStrategy()}, nil, nil)
	d := NewReplayDriver(eng, stopLossDataset())

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	var types []domain.EventType
	var last domain.Event
	for ev := range eng.Events() {
		types = append(types, ev.Type)
		last = ev
	}

	assert.Equal(t, []domain.EventType{
		domain.EventOpened,
		domain.EventTick,
		domain.EventClosed,
		domain.EventTick,
		domain.EventComplete,
	}, types)
	assert.InDelta(t, 1.0, last.Progress, 1e-9)
	assert.InDelta(t, 992.5, last.Equity, 1e-6)
}

func TestReplay_UnsortedInputIsSorted(t *testing.T) {
	snaps := stopLossDataset()
	snaps[0], snaps[1] = snaps[1], snaps[0]

	eng := New(testConfig(), []strategy.Strategy{reversalStrategy()}, nil, nil)
	d := NewReplayDriver(eng, snaps)

	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Opened)
	assert.Equal(t, 1, summary.Closed)
}

func TestReplay_GroupsEqualTimestampsIntoOneTick(t *testing.T) {
	snaps := []domain.MarketSnapshot{
		binarySnap("0xA", baseTime, 0.03),
		binarySnap("0xB", baseTime, 0.04),
		binarySnap("0xA", baseTime.Add(time.Hour), 0.031),
	}
	eng := New(testConfig(), []strategy.Strategy{reversalStrategy()}, nil, nil)
	d := NewReplayDriver(eng, snaps)

	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Ticks)
	assert.Equal(t, 2, summary.Opened, "both markets qualify on the first tick")
}

func TestReplay_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := New(testConfig(), []strategy.Strategy{reversalStrategy()}, nil, nil)
	d := NewReplayDriver(eng, stopLossDataset())

	summary, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Ticks)
	assert.Equal(t, StateIdle, d.State())
}

func TestReplay_RejectsConcurrentRun(t *testing.T) {
	var sm stateMachine
	require.NoError(t, sm.begin())
	assert.ErrorIs(t, sm.begin(), ErrAlreadyInitializing)

	sm.run()
	assert.ErrorIs(t, sm.begin(), ErrAlreadyRunning)
}

package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testPoolConfig() PoolConfig {
	return PoolConfig{
		ExpireAfter:  30 * time.Minute,
		EndLead:      6 * time.Hour,
		MinVolume24h: 500,
		MinLiquidity: 1000,
		MaxSpread:    0.10,
	}
}

func testConfig() Config {
	return Config{
		InitialCapital: 1000,
		Pool:           testPoolConfig(),
	}
}

// binarySnap builds an eligible two-outcome snapshot: Yes at yesPrice, No at
// the complement, resolving 30 days out.
func binarySnap(marketID string, ts time.Time, yesPrice float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Timestamp: ts,
		MarketID:  marketID,
		Question:  "Will " + marketID + " resolve Yes?",
		Outcomes: []domain.Outcome{
			{Name: "Yes", TokenID: "tok-" + marketID + "-yes", Price: yesPrice},
			{Name: "No", TokenID: "tok-" + marketID + "-no", Price: 1 - yesPrice},
		},
		Liquidity: 50000,
		Volume24h: 20000,
		EndDate:   ts.Add(30 * 24 * time.Hour),
		Active:    true,
	}
}

type fakeBooks struct {
	books map[string]domain.OrderBook
	err   error
	calls int
}

func (f *fakeBooks) FetchOrderBooks(_ context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.OrderBook, len(tokenIDs))
	for _, id := range tokenIDs {
		if b, ok := f.books[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func deepBook(tokenID string, mid float64) domain.OrderBook {
	return domain.OrderBook{
		TokenID: tokenID,
		Bids:    []domain.BookEntry{{Price: mid - 0.01, Size: 100000}},
		Asks:    []domain.BookEntry{{Price: mid + 0.01, Size: 100000}},
	}
}

type fakeFeed struct {
	calls atomic.Int64
	snaps []domain.MarketSnapshot
	err   error
}

func (f *fakeFeed) FetchSnapshots(context.Context) ([]domain.MarketSnapshot, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.MarketSnapshot, len(f.snaps))
	copy(out, f.snaps)
	return out, nil
}

// stubStrategy gives the pipeline tests full control over entry/exit
// decisions without depending on any real rule set.
type stubStrategy struct {
	typ        domain.StrategyType
	cfg        domain.StrategyConfig
	openFn     func(domain.Candidate) bool
	closeFn    func(*domain.Position, float64) (bool, string)
	noteCloses int
}

func (s *stubStrategy) Type() domain.StrategyType {
	return s.typ
}

func (s *stubStrategy) Config() domain.StrategyConfig {
	return s.cfg
}

func (s *stubStrategy) ShouldOpen(c domain.Candidate, _ *domain.OrderBook, _ float64, _ time.Time) bool {
	if s.openFn == nil {
		return false
	}
	return s.openFn(c)
}

func (s *stubStrategy) ShouldClose(p *domain.Position, price float64, _ time.Time) bool {
	if s.closeFn == nil {
		return false
	}
	ok, _ := s.closeFn(p, price)
	return ok
}

func (s *stubStrategy) ExitReason(p *domain.Position, price float64, _ time.Time) string {
	if s.closeFn == nil {
		return ""
	}
	_, reason := s.closeFn(p, price)
	return reason
}

func (s *stubStrategy) NoteClose(*domain.Position, time.Time) {
	s.noteCloses++
}

func alwaysOpen(typ domain.StrategyType, maxPositions int) *stubStrategy {
	return &stubStrategy{
		typ: typ,
		cfg: domain.StrategyConfig{
			Enabled:         true,
			MaxPositions:    maxPositions,
			MaxPositionSize: 0.05,
		},
		openFn: func(domain.Candidate) bool { return true },
	}
}

func TestEngine_TickOpensOnePositionPerMarket(t *testing.T) {
	st := alwaysOpen(domain.StrategyReversal, 10)
	eng := New(testConfig(), []strategy.Strategy{st}, nil, nil)

	snaps := []domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}
	res := eng.runTick(context.Background(), "test", snaps, baseTime, 1, 0)

	// two candidates (Yes and No) but only one position per market
	assert.Equal(t, 1, res.Opened)
	assert.Equal(t, 2, eng.Pool().Size())
	require.Len(t, eng.Ledger().OpenPositions(), 1)
	assert.Equal(t, "m1", eng.Ledger().OpenPositions()[0].MarketID)
}

func TestEngine_CloseRunsBeforeOpen(t *testing.T) {
	closeAll := false
	st := alwaysOpen(domain.StrategyReversal, 10)
	st.closeFn = func(*domain.Position, float64) (bool, string) {
		if closeAll {
			return true, strategy.ReasonMaxHolding + ": forced"
		}
		return false, ""
	}
	eng := New(testConfig(), []strategy.Strategy{st}, nil, nil)

	t1 := []domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}
	res := eng.runTick(context.Background(), "test", t1, baseTime, 1, 0)
	require.Equal(t, 1, res.Opened)

	// same market closes and immediately re-qualifies on the next tick
	closeAll = true
	t2 := []domain.MarketSnapshot{binarySnap("m1", baseTime.Add(time.Hour), 0.32)}
	res = eng.runTick(context.Background(), "test", t2, baseTime.Add(time.Hour), 2, 0)

	assert.Equal(t, 1, res.Closed)
	assert.Equal(t, 1, res.Opened)
	assert.Equal(t, 1, st.noteCloses)
}

func TestEngine_BookProviderFailureSkipsOpens(t *testing.T) {
	st := alwaysOpen(domain.StrategyReversal, 10)
	books := &fakeBooks{err: errors.New("clob unavailable")}
	eng := New(testConfig(), []strategy.Strategy{st}, books, nil)

	snaps := []domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}
	res := eng.runTick(context.Background(), "test", snaps, baseTime, 1, 0)

	// provider down: candidates survive revalidation but nothing opens
	assert.Equal(t, 0, res.Opened)
	assert.Equal(t, 2, eng.Pool().Size())
}

func TestEngine_UnknownBookDropsCandidate(t *testing.T) {
	st := alwaysOpen(domain.StrategyReversal, 10)
	books := &fakeBooks{books: map[string]domain.OrderBook{
		"tok-m1-yes": deepBook("tok-m1-yes", 0.30),
		// tok-m1-no intentionally absent
	}}
	eng := New(testConfig(), []strategy.Strategy{st}, books, nil)

	snaps := []domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}
	res := eng.runTick(context.Background(), "test", snaps, baseTime, 1, 0)

	// the No candidate's book is unknown → dropped by revalidation;
	// the Yes side still opens
	assert.Equal(t, 1, eng.Pool().Size())
	assert.Equal(t, 1, res.Opened)
	assert.Equal(t, "Yes", eng.Ledger().OpenPositions()[0].Outcome)
}

func TestEngine_MaxHoldExitFiresWhenMarketLeavesFeed(t *testing.T) {
	rev := strategy.NewReversal(domain.StrategyConfig{
		Enabled:         true,
		MaxPositions:    5,
		MaxPositionSize: 0.05,
	})
	eng := New(testConfig(), []strategy.Strategy{rev}, nil, nil)

	res := eng.runTick(context.Background(), "test",
		[]domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}, baseTime, 1, 0)
	require.Equal(t, 1, res.Opened)

	// m1 desaparece del feed (resolución temprana, gap del proveedor); 200h
	// después el límite de holding del bucket 0.20-0.35 (72h) cierra igual
	later := baseTime.Add(200 * time.Hour)
	res = eng.runTick(context.Background(), "test",
		[]domain.MarketSnapshot{binarySnap("m2", later, 0.50)}, later, 2, 0)

	assert.Equal(t, 1, res.Closed)
	assert.Empty(t, eng.Ledger().OpenPositions())

	closed := eng.Ledger().ClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, "max_holding", strategy.RuleLabel(closed[0].ExitReason))
	// sin observación fresca, la salida usa el último precio marcado
	assert.InDelta(t, closed[0].EntryPrice, closed[0].ExitPrice, 1e-9)
}

func TestEngine_PanickingStrategyIsContained(t *testing.T) {
	st := alwaysOpen(domain.StrategyReversal, 10)
	st.openFn = func(domain.Candidate) bool { panic("bad bucket math") }
	eng := New(testConfig(), []strategy.Strategy{st}, nil, nil)

	snaps := []domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}

	var res tickResult
	require.NotPanics(t, func() {
		res = eng.runTick(context.Background(), "test", snaps, baseTime, 1, 0)
	})
	assert.Equal(t, 0, res.Opened)
}

func TestEngine_InsufficientFreeCapitalSkips(t *testing.T) {
	st := alwaysOpen(domain.StrategyReversal, 10)
	st.cfg.MaxPositionSize = 2.0 // cost would be 2× equity
	eng := New(testConfig(), []strategy.Strategy{st}, nil, nil)

	snaps := []domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}
	res := eng.runTick(context.Background(), "test", snaps, baseTime, 1, 0)
	assert.Equal(t, 0, res.Opened)
}

func TestEngine_FirstStrategyClaimsCandidate(t *testing.T) {
	first := alwaysOpen(domain.StrategyReversal, 10)
	second := alwaysOpen(domain.StrategyConvergence, 10)
	eng := New(testConfig(), []strategy.Strategy{first, second}, nil, nil)

	snaps := []domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}
	res := eng.runTick(context.Background(), "test", snaps, baseTime, 1, 0)

	require.Equal(t, 1, res.Opened)
	assert.Equal(t, domain.StrategyReversal, eng.Ledger().OpenPositions()[0].Strategy)
}

func TestEngine_GlobalPositionCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOpenPositions = 1
	st := alwaysOpen(domain.StrategyReversal, 10)
	eng := New(cfg, []strategy.Strategy{st}, nil, nil)

	snaps := []domain.MarketSnapshot{
		binarySnap("m1", baseTime, 0.30),
		binarySnap("m2", baseTime, 0.40),
	}
	res := eng.runTick(context.Background(), "test", snaps, baseTime, 1, 0)
	assert.Equal(t, 1, res.Opened)
}

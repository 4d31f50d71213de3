package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_IngestEligibility(t *testing.T) {
	now := baseTime

	t.Run("active binary market adds both outcomes", func(t *testing.T) {
		cp := NewCandidatePool(testPoolConfig())
		added, _ := cp.Ingest([]domain.MarketSnapshot{binarySnap("m1", now, 0.30)}, now)
		assert.Equal(t, 2, added)
	})

	t.Run("inactive market rejected", func(t *testing.T) {
		cp := NewCandidatePool(testPoolConfig())
		s := binarySnap("m1", now, 0.30)
		s.Active = false
		added, _ := cp.Ingest([]domain.MarketSnapshot{s}, now)
		assert.Zero(t, added)
	})

	t.Run("non-binary market rejected", func(t *testing.T) {
		cp := NewCandidatePool(testPoolConfig())
		s := binarySnap("m1", now, 0.30)
		s.Outcomes = append(s.Outcomes, domain.Outcome{Name: "Maybe", TokenID: "tok-m1-maybe", Price: 0.10})
		added, _ := cp.Ingest([]domain.MarketSnapshot{s}, now)
		assert.Zero(t, added)
	})

	t.Run("market resolving inside the lead window rejected", func(t *testing.T) {
		cp := NewCandidatePool(testPoolConfig())
		s := binarySnap("m1", now, 0.30)
		s.EndDate = now.Add(time.Hour) // EndLead is 6h
		added, _ := cp.Ingest([]domain.MarketSnapshot{s}, now)
		assert.Zero(t, added)
	})

	t.Run("thin volume rejected", func(t *testing.T) {
		cp := NewCandidatePool(testPoolConfig())
		s := binarySnap("m1", now, 0.30)
		s.Volume24h = 100
		added, _ := cp.Ingest([]domain.MarketSnapshot{s}, now)
		assert.Zero(t, added)
	})

	t.Run("extreme prices excluded per outcome", func(t *testing.T) {
		cp := NewCandidatePool(testPoolConfig())
		// Yes at 0.995 and No at 0.005: both outside the tradeable band
		added, _ := cp.Ingest([]domain.MarketSnapshot{binarySnap("m1", now, 0.995)}, now)
		assert.Zero(t, added)
	})
}

func TestPool_ExpireRemovesStale(t *testing.T) {
	cp := NewCandidatePool(testPoolConfig())
	cp.Ingest([]domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}, baseTime)
	require.Equal(t, 2, cp.Size())

	// sin refresco durante 31 min con TTL de 30 → fuera
	removed := cp.Expire(baseTime.Add(31 * time.Minute))
	assert.Equal(t, 2, removed)
	assert.Zero(t, cp.Size())
}

func TestPool_RefreshKeepsCandidateAlive(t *testing.T) {
	cp := NewCandidatePool(testPoolConfig())
	cp.Ingest([]domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}, baseTime)

	// a refresh 20 minutes in resets the TTL clock
	later := baseTime.Add(20 * time.Minute)
	added, refreshed := cp.Ingest([]domain.MarketSnapshot{binarySnap("m1", later, 0.35)}, later)
	assert.Zero(t, added)
	assert.Equal(t, 2, refreshed)

	removed := cp.Expire(baseTime.Add(35 * time.Minute))
	assert.Zero(t, removed)
	assert.Equal(t, 2, cp.Size())
}

func TestPool_RefreshPreservesEntryProbability(t *testing.T) {
	cp := NewCandidatePool(testPoolConfig())
	cp.Ingest([]domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}, baseTime)

	later := baseTime.Add(10 * time.Minute)
	cp.Ingest([]domain.MarketSnapshot{binarySnap("m1", later, 0.36)}, later)

	valid := cp.ValidFor(nil, later)
	require.Len(t, valid, 2)
	for _, c := range valid {
		if c.Outcome == "Yes" {
			// Probability pins the price at first sighting, LatestPrice moves
			assert.InDelta(t, 0.30, c.Probability, 1e-9)
			assert.InDelta(t, 0.36, c.LatestPrice, 1e-9)
			assert.InDelta(t, 0.20, c.TrendStrength, 1e-9)
		}
	}
}

func TestPool_ValidForExcludesOpenMarkets(t *testing.T) {
	cp := NewCandidatePool(testPoolConfig())
	cp.Ingest([]domain.MarketSnapshot{
		binarySnap("m1", baseTime, 0.30),
		binarySnap("m2", baseTime, 0.40),
	}, baseTime)

	valid := cp.ValidFor(map[string]bool{"m1": true}, baseTime)
	require.Len(t, valid, 2)
	for _, c := range valid {
		assert.Equal(t, "m2", c.MarketID)
	}
}

func TestPool_ValidForIsDeterministicallySorted(t *testing.T) {
	cp := NewCandidatePool(testPoolConfig())
	cp.Ingest([]domain.MarketSnapshot{
		binarySnap("m2", baseTime, 0.40),
		binarySnap("m1", baseTime, 0.30),
	}, baseTime)

	valid := cp.ValidFor(nil, baseTime)
	require.Len(t, valid, 4)
	for i := 1; i < len(valid); i++ {
		assert.Less(t, valid[i-1].Key(), valid[i].Key())
	}
}

func TestPool_EvictOverCapOldestFirst(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MaxCandidates = 2
	cp := NewCandidatePool(cfg)

	cp.Ingest([]domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}, baseTime)
	cp.Ingest([]domain.MarketSnapshot{binarySnap("m2", baseTime.Add(time.Minute), 0.40)}, baseTime.Add(time.Minute))

	require.Equal(t, 2, cp.Size())
	for _, c := range cp.ValidFor(nil, baseTime.Add(time.Minute)) {
		assert.Equal(t, "m2", c.MarketID, "m1 candidates should have been evicted first")
	}
}

func TestPool_RevalidateLiquidity(t *testing.T) {
	t.Run("provider error drops nothing", func(t *testing.T) {
		cp := NewCandidatePool(testPoolConfig())
		cp.Ingest([]domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}, baseTime)

		dropped := cp.RevalidateLiquidity(context.Background(), &fakeBooks{err: errors.New("timeout")})
		assert.Zero(t, dropped)
		assert.Equal(t, 2, cp.Size())
	})

	t.Run("missing book drops the candidate", func(t *testing.T) {
		cp := NewCandidatePool(testPoolConfig())
		cp.Ingest([]domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}, baseTime)

		books := &fakeBooks{books: map[string]domain.OrderBook{
			"tok-m1-yes": deepBook("tok-m1-yes", 0.30),
		}}
		dropped := cp.RevalidateLiquidity(context.Background(), books)
		assert.Equal(t, 1, dropped)
		assert.Equal(t, 1, cp.Size())
	})

	t.Run("wide spread drops the candidate", func(t *testing.T) {
		cp := NewCandidatePool(testPoolConfig())
		cp.Ingest([]domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}, baseTime)

		wide := domain.OrderBook{
			TokenID: "tok-m1-yes",
			Bids:    []domain.BookEntry{{Price: 0.20, Size: 100000}},
			Asks:    []domain.BookEntry{{Price: 0.40, Size: 100000}},
		}
		books := &fakeBooks{books: map[string]domain.OrderBook{
			"tok-m1-yes": wide,
			"tok-m1-no":  deepBook("tok-m1-no", 0.70),
		}}
		dropped := cp.RevalidateLiquidity(context.Background(), books)
		assert.Equal(t, 1, dropped)
	})

	t.Run("collapsed depth drops the candidate", func(t *testing.T) {
		cp := NewCandidatePool(testPoolConfig())
		cp.Ingest([]domain.MarketSnapshot{binarySnap("m1", baseTime, 0.30)}, baseTime)

		shallow := domain.OrderBook{
			TokenID: "tok-m1-yes",
			Bids:    []domain.BookEntry{{Price: 0.29, Size: 100}},
			Asks:    []domain.BookEntry{{Price: 0.31, Size: 100}},
		}
		books := &fakeBooks{books: map[string]domain.OrderBook{
			"tok-m1-yes": shallow,
			"tok-m1-no":  deepBook("tok-m1-no", 0.70),
		}}
		dropped := cp.RevalidateLiquidity(context.Background(), books)
		assert.Equal(t, 1, dropped)
	})
}

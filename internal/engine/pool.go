package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/ports"
)

const (
	defaultExpireMinutes = 30
	defaultEndLeadHours  = 6
	// price band a candidate must stay inside to remain tradeable
	minTradeablePrice = 0.01
	maxTradeablePrice = 0.99
)

// PoolConfig controls candidate eligibility and pool housekeeping.
type PoolConfig struct {
	ExpireAfter   time.Duration // TTL since last refresh
	EndLead       time.Duration // skip markets resolving within this lead time
	MinVolume24h  float64
	MinLiquidity  float64
	MaxSpread     float64 // liquidity revalidation: max bid/ask spread
	MaxCandidates int     // 0 = unbounded; otherwise evict oldest AddTime first
}

// CandidatePool maintains the set of market/outcome pairs currently eligible
// for entry evaluation. Mutated only by the single active tick.
type CandidatePool struct {
	cfg        PoolConfig
	candidates map[string]*domain.Candidate // keyed by Candidate.Key()
}

// NewCandidatePool creates an empty pool.
func NewCandidatePool(cfg PoolConfig) *CandidatePool {
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = defaultExpireMinutes * time.Minute
	}
	if cfg.EndLead <= 0 {
		cfg.EndLead = defaultEndLeadHours * time.Hour
	}
	return &CandidatePool{
		cfg:        cfg,
		candidates: make(map[string]*domain.Candidate),
	}
}

// Ingest applies the eligibility filter to each snapshot, inserting new
// candidates and refreshing the price of existing ones. Pure map mutation,
// never blocks.
func (cp *CandidatePool) Ingest(snaps []domain.MarketSnapshot, now time.Time) (added, refreshed int) {
	for _, s := range snaps {
		if !cp.eligible(s, now) {
			continue
		}
		for _, o := range s.Outcomes {
			if o.Price <= minTradeablePrice || o.Price >= maxTradeablePrice {
				continue
			}
			key := s.MarketID + "/" + o.Name
			if c, ok := cp.candidates[key]; ok {
				c.Refresh(o.Price, s.Liquidity, s.Volume24h, now)
				c.EndDate = s.EndDate
				refreshed++
				continue
			}
			cp.candidates[key] = &domain.Candidate{
				MarketID:    s.MarketID,
				TokenID:     o.TokenID,
				Outcome:     o.Name,
				Question:    s.Question,
				Probability: o.Price,
				AddTime:     now,
				LastUpdate:  now,
				LatestPrice: o.Price,
				Liquidity:   s.Liquidity,
				Volume24h:   s.Volume24h,
				EndDate:     s.EndDate,
			}
			added++
		}
	}

	cp.evictOverCap()
	return added, refreshed
}

// eligible is the snapshot-level entry filter: active binary market, not
// resolving soon, with minimum depth.
func (cp *CandidatePool) eligible(s domain.MarketSnapshot, now time.Time) bool {
	if !s.Active || !s.IsBinary() {
		return false
	}
	if s.EndDate.IsZero() || s.EndDate.Before(now.Add(cp.cfg.EndLead)) {
		return false
	}
	if s.Volume24h < cp.cfg.MinVolume24h || s.Liquidity < cp.cfg.MinLiquidity {
		return false
	}
	return true
}

// Expire removes candidates that have not been refreshed within the TTL.
func (cp *CandidatePool) Expire(now time.Time) int {
	removed := 0
	for key, c := range cp.candidates {
		if c.Expired(now, cp.cfg.ExpireAfter) {
			delete(cp.candidates, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("pool: expired stale candidates", "removed", removed, "remaining", len(cp.candidates))
	}
	return removed
}

// RevalidateLiquidity re-checks every candidate against live order books and
// drops those whose spread is too wide or whose depth collapsed. A failed or
// missing lookup means "unknown" and drops the candidate conservatively.
// Never fatal: a provider error drops nothing and is only logged.
func (cp *CandidatePool) RevalidateLiquidity(ctx context.Context, books ports.BookProvider) int {
	if books == nil || len(cp.candidates) == 0 {
		return 0
	}

	tokenIDs := make([]string, 0, len(cp.candidates))
	for _, c := range cp.candidates {
		tokenIDs = append(tokenIDs, c.TokenID)
	}

	byToken, err := books.FetchOrderBooks(ctx, tokenIDs)
	if err != nil {
		slog.Warn("pool: liquidity revalidation skipped", "err", err)
		return 0
	}

	dropped := 0
	for key, c := range cp.candidates {
		book, ok := byToken[c.TokenID]
		if !ok {
			slog.Warn("pool: dropping candidate with unknown book",
				"market", domain.TruncateQuestion(c.Question, c.MarketID, 30),
				"outcome", c.Outcome,
			)
			delete(cp.candidates, key)
			dropped++
			continue
		}
		if cp.cfg.MaxSpread > 0 && book.Spread() > cp.cfg.MaxSpread {
			delete(cp.candidates, key)
			dropped++
			continue
		}
		if cp.cfg.MinLiquidity > 0 && book.DepthUSDC() < cp.cfg.MinLiquidity {
			delete(cp.candidates, key)
			dropped++
		}
	}
	if dropped > 0 {
		slog.Info("pool: liquidity revalidation dropped candidates", "dropped", dropped)
	}
	return dropped
}

// ValidFor returns the candidates currently eligible for entry: not already
// traded, not expired, price still inside the tradeable band. Sorted by key
// so replay runs stay deterministic; callers must not rely on the order for
// anything but display.
func (cp *CandidatePool) ValidFor(tradedMarkets map[string]bool, now time.Time) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(cp.candidates))
	for _, c := range cp.candidates {
		if tradedMarkets[c.MarketID] {
			continue
		}
		if c.Expired(now, cp.cfg.ExpireAfter) {
			continue
		}
		if c.LatestPrice <= minTradeablePrice || c.LatestPrice >= maxTradeablePrice {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Size returns the current pool size.
func (cp *CandidatePool) Size() int {
	return len(cp.candidates)
}

// evictOverCap enforces the optional capacity cap, oldest AddTime first.
func (cp *CandidatePool) evictOverCap() {
	if cp.cfg.MaxCandidates <= 0 || len(cp.candidates) <= cp.cfg.MaxCandidates {
		return
	}

	all := make([]*domain.Candidate, 0, len(cp.candidates))
	for _, c := range cp.candidates {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].AddTime.Equal(all[j].AddTime) {
			return all[i].AddTime.Before(all[j].AddTime)
		}
		return all[i].Key() < all[j].Key()
	})

	excess := len(all) - cp.cfg.MaxCandidates
	for _, c := range all[:excess] {
		delete(cp.candidates, c.Key())
	}
	slog.Debug("pool: evicted oldest candidates over cap", "evicted", excess, "cap", cp.cfg.MaxCandidates)
}

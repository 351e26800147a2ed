// Package scorer computes the final retrieval score for a candidate
// memory from its per-channel signals: vector similarity, lexical
// relevance, optional rerank score, recency, importance and a time
// penalty on creation age.
package scorer

import (
	"math"

	"github.com/tincomking/tinmem/internal/types"
)

// Weights controls how the three channel scores combine. VectorWeight,
// BM25Weight and RerankWeight should sum to 1 when all three channels are
// present; when rerank is absent the two remaining weights are
// renormalized to still sum to 1 so the final score stays on the same
// [0,1] scale regardless of whether rerank ran.
type Weights struct {
	VectorWeight float64
	BM25Weight   float64
	RerankWeight float64
}

// Config bundles the weights with the additive and multiplicative terms.
type Config struct {
	Weights Weights
	// RecencyBoostDays is the linear-decay grace window: a memory whose
	// lastAccessedAt (falling back to updatedAt) is this many days old or
	// older contributes zero recency boost; more recent ones scale
	// linearly between 0 and RecencyBoostFactor.
	RecencyBoostDays   float64
	RecencyBoostFactor float64
	// ImportanceBoost scales a memory's own importance field additively
	// into the final score.
	ImportanceBoost float64
	// TimePenaltyDays is the grace window on createdAt age: below it the
	// time penalty is zero; beyond it the penalty grows as a capped
	// exponential curve (see stalenessPenalty) toward TimePenaltyFactor.
	TimePenaltyDays   float64
	TimePenaltyFactor float64
}

// DefaultConfig mirrors the defaults the manager falls back to when no
// configuration overrides them.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			VectorWeight: 0.5,
			BM25Weight:   0.3,
			RerankWeight: 0.2,
		},
		RecencyBoostDays:   3,
		RecencyBoostFactor: 0.05,
		ImportanceBoost:    0.1,
		TimePenaltyDays:    30,
		TimePenaltyFactor:  0.5,
	}
}

// Scorer turns raw candidate signals into a final [0,1] score.
type Scorer struct {
	cfg Config
}

func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes ScoredMemory.Final for every candidate in place and
// returns the same slice, sorted by Final descending. nowMs is the
// reference time in unix milliseconds (passed explicitly so the scorer has
// no hidden dependency on wall-clock time and is easy to test).
func (s *Scorer) Score(candidates []*types.ScoredMemory, nowMs int64) []*types.ScoredMemory {
	if len(candidates) == 0 {
		return candidates
	}

	maxBM25 := 0.0
	minRerank, maxRerank := math.Inf(1), math.Inf(-1)
	anyRerank := false
	for _, c := range candidates {
		if c.BM25Score > maxBM25 {
			maxBM25 = c.BM25Score
		}
		if c.HasRerank {
			anyRerank = true
			if c.RerankScore < minRerank {
				minRerank = c.RerankScore
			}
			if c.RerankScore > maxRerank {
				maxRerank = c.RerankScore
			}
		}
	}

	weights := s.effectiveWeights(anyRerank)

	for _, c := range candidates {
		vectorNorm := clamp01(c.VectorScore)
		bm25Norm := 0.0
		if maxBM25 > 0 {
			bm25Norm = clamp01(c.BM25Score / maxBM25)
		}
		rerankNorm := 0.0
		if c.HasRerank {
			rerankNorm = minMaxNormalize(c.RerankScore, minRerank, maxRerank)
		}

		base := weights.VectorWeight*vectorNorm + weights.BM25Weight*bm25Norm
		if c.HasRerank {
			base += weights.RerankWeight * rerankNorm
		}

		recency := s.recencyBoost(lastActiveMs(c.Memory), nowMs)
		importance := s.cfg.ImportanceBoost * clamp01(c.Memory.Importance)
		penalty := s.stalenessPenalty(c.Memory.CreatedAt, nowMs)

		final := (base + recency + importance) * (1 - penalty)
		c.Final = clamp01(final)
	}

	sortDescending(candidates)
	return candidates
}

// effectiveWeights renormalizes VectorWeight/BM25Weight to sum to 1 when
// rerank did not run for this batch, so the final score stays comparable
// across queries that do and don't have a reranker configured.
func (s *Scorer) effectiveWeights(hasRerank bool) Weights {
	w := s.cfg.Weights
	if hasRerank {
		return w
	}
	remaining := w.VectorWeight + w.BM25Weight
	if remaining <= 0 {
		return Weights{VectorWeight: 0.5, BM25Weight: 0.5}
	}
	return Weights{
		VectorWeight: w.VectorWeight / remaining,
		BM25Weight:   w.BM25Weight / remaining,
	}
}

// lastActiveMs is lastAccessedAt, falling back to updatedAt when the memory
// has never been accessed (lastAccessedAt unset).
func lastActiveMs(m *types.Memory) int64 {
	if m.LastAccessedAt > 0 {
		return m.LastAccessedAt
	}
	return m.UpdatedAt
}

func ageDays(atMs, nowMs int64) float64 {
	d := float64(nowMs-atMs) / 86400000
	if d < 0 {
		return 0
	}
	return d
}

// recencyBoost is a linear decay to zero over RecencyBoostDays, from the
// memory's last-active time.
func (s *Scorer) recencyBoost(lastActiveAtMs, nowMs int64) float64 {
	if s.cfg.RecencyBoostDays <= 0 {
		return 0
	}
	d := ageDays(lastActiveAtMs, nowMs)
	if d >= s.cfg.RecencyBoostDays {
		return 0
	}
	return s.cfg.RecencyBoostFactor * (1 - d/s.cfg.RecencyBoostDays)
}

// stalenessPenalty is zero within a grace period on createdAt age, then
// rises as a capped exponential curve that approaches TimePenaltyFactor but
// never exceeds it.
func (s *Scorer) stalenessPenalty(createdAtMs, nowMs int64) float64 {
	d := ageDays(createdAtMs, nowMs)
	if d <= s.cfg.TimePenaltyDays {
		return 0
	}
	curve := s.cfg.TimePenaltyFactor * (1 - math.Exp(-(d-s.cfg.TimePenaltyDays)/90))
	if curve > s.cfg.TimePenaltyFactor {
		return s.cfg.TimePenaltyFactor
	}
	return curve
}

func minMaxNormalize(v, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return clamp01((v - min) / (max - min))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sortDescending(candidates []*types.ScoredMemory) {
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Final > candidates[j-1].Final; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}

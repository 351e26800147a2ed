// Package retriever implements hybrid recall: concurrent vector and
// lexical search, merge, optional rerank, scoring, and context assembly.
package retriever

import (
	"context"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tincomking/tinmem/internal/embedding"
	"github.com/tincomking/tinmem/internal/logging"
	"github.com/tincomking/tinmem/internal/rerank"
	"github.com/tincomking/tinmem/internal/scorer"
	"github.com/tincomking/tinmem/internal/store"
	"github.com/tincomking/tinmem/internal/types"
)

var log = logging.GetLogger("retriever")

// Config controls recall behavior.
type Config struct {
	TopK            int
	MinScore        float64
	OverfetchFactor int // how many extra candidates each channel pulls before merge/rerank
	// Hybrid enables the lexical (FTS5) search channel alongside vector
	// search. When false, only the vector channel runs.
	Hybrid bool
}

func DefaultConfig() Config {
	return Config{TopK: 8, MinScore: 0.15, OverfetchFactor: 3, Hybrid: true}
}

// Retriever composes the store and the embedding/rerank capabilities into
// the single recall() / buildContext() operation the manager exposes.
type Retriever struct {
	store     *store.Store
	embedder  embedding.Capability
	reranker  rerank.Capability
	scorer    *scorer.Scorer
	cfg       Config
}

func New(s *store.Store, embedder embedding.Capability, reranker rerank.Capability, sc *scorer.Scorer, cfg Config) *Retriever {
	if reranker == nil {
		reranker = rerank.Noop{}
	}
	return &Retriever{store: s, embedder: embedder, reranker: reranker, scorer: sc, cfg: cfg}
}

// noisePatterns matches short conversational filler that should never
// trigger a recall round trip: greetings, acknowledgements, and similar
// turns carry no retrievable intent.
var noisePatterns = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|thanks|thank you|ok|okay|sure|yes|no|yep|nope|got it|cool|great|nice|bye|goodbye)[!.\s]*$`)

// IsNoise reports whether query is adaptive-filtered conversational noise
// that should skip retrieval entirely, without touching the store or the
// embedding capability.
func IsNoise(query string) bool {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return true
	}
	return noisePatterns.MatchString(trimmed)
}

// Recall runs the hybrid retrieval pipeline for query, scoped by filter.
func (r *Retriever) Recall(ctx context.Context, query string, filter types.MemoryFilter) (*types.RetrievalResult, error) {
	start := time.Now()

	if IsNoise(query) {
		log.Debug("query filtered as noise, skipping recall", "query", query)
		return &types.RetrievalResult{Query: query}, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	fetchLimit := r.cfg.TopK * r.cfg.OverfetchFactor
	if fetchLimit <= 0 {
		fetchLimit = 30
	}

	var vectorHits []types.VectorCandidate
	var lexicalHits []types.LexicalCandidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_ = gctx
		hits, err := r.store.VectorSearch(queryVec, filter, fetchLimit)
		if err != nil {
			return err
		}
		vectorHits = hits
		return nil
	})
	if r.cfg.Hybrid {
		g.Go(func() error {
			hits, err := r.store.FullTextSearch(query, filter, fetchLimit)
			if err != nil {
				return err
			}
			lexicalHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := merge(vectorHits, lexicalHits)
	if len(merged) == 0 {
		return &types.RetrievalResult{Query: query, TimingMs: time.Since(start).Milliseconds()}, nil
	}

	r.applyRerank(ctx, query, merged)

	scored := r.scorer.Score(merged, time.Now().UnixMilli())

	var out []*types.ScoredMemory
	for _, c := range scored {
		if c.Final < r.cfg.MinScore {
			continue
		}
		out = append(out, c)
		if len(out) >= r.cfg.TopK {
			break
		}
	}

	for _, c := range out {
		id := c.Memory.ID
		go func() {
			if err := r.store.Queue().BumpAccess(id); err != nil {
				log.Warn("failed to bump access count", "memory_id", id, "error", err)
			}
		}()
	}

	return &types.RetrievalResult{
		Memories:   out,
		Query:      query,
		TotalFound: len(merged),
		TimingMs:   time.Since(start).Milliseconds(),
	}, nil
}

// applyRerank reranks the merged candidate set in place. A reranker
// failure is logged and otherwise ignored: the pipeline falls back to
// whatever vector/bm25 score it already had, matching the "non-fatal on
// failure" requirement for this stage.
func (r *Retriever) applyRerank(ctx context.Context, query string, candidates []*types.ScoredMemory) {
	if _, ok := r.reranker.(rerank.Noop); ok {
		return
	}
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Memory.Headline + "\n" + c.Memory.Summary
	}
	results, err := r.reranker.Rerank(ctx, query, docs)
	if err != nil {
		log.Warn("rerank failed, continuing without it", "error", err)
		return
	}
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(candidates) {
			continue
		}
		candidates[res.Index].RerankScore = res.Score
		candidates[res.Index].HasRerank = true
	}
}

// merge combines vector and lexical candidates by memory id. A memory
// found by only one channel gets a zero score on the side it was missing
// from, matching the merge rule in the component design.
func merge(vectorHits []types.VectorCandidate, lexicalHits []types.LexicalCandidate) []*types.ScoredMemory {
	byID := make(map[string]*types.ScoredMemory)
	var order []string

	for _, h := range vectorHits {
		sim := 1 - h.Distance
		if sim < 0 {
			sim = 0
		}
		if sim > 1 {
			sim = 1
		}
		byID[h.Memory.ID] = &types.ScoredMemory{Memory: h.Memory, VectorScore: sim}
		order = append(order, h.Memory.ID)
	}
	for _, h := range lexicalHits {
		if existing, ok := byID[h.Memory.ID]; ok {
			existing.BM25Score = h.Relevance
			continue
		}
		byID[h.Memory.ID] = &types.ScoredMemory{Memory: h.Memory, BM25Score: h.Relevance}
		order = append(order, h.Memory.ID)
	}

	out := make([]*types.ScoredMemory, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

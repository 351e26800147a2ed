// Package dedup decides whether an extracted candidate should become a new
// memory, merge into an existing one, or be discarded as a near-duplicate.
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tincomking/tinmem/internal/llm"
	"github.com/tincomking/tinmem/internal/logging"
	"github.com/tincomking/tinmem/internal/store"
	"github.com/tincomking/tinmem/internal/types"
)

var log = logging.GetLogger("dedup")

// Strategy selects how the Deduplicator resolves candidates that survive the
// vector pre-filter.
type Strategy string

const (
	StrategyVector Strategy = "vector"
	StrategyBoth   Strategy = "both"
	StrategyLLM    Strategy = "llm"
)

// Config tunes the category short-circuit, the vector pre-filter thresholds,
// and which strategy resolves the surviving candidates.
type Config struct {
	Strategy            Strategy
	SimilarityThreshold float64
	LLMThreshold        float64
	OverfetchLimit      int
}

func DefaultConfig() Config {
	return Config{
		Strategy:            StrategyBoth,
		SimilarityThreshold: 0.85,
		LLMThreshold:        0.95,
		OverfetchLimit:      5,
	}
}

// Deduplicator decides CREATE / MERGE / SKIP for each ingested candidate.
type Deduplicator struct {
	store *store.Store
	llm   llm.Capability
	cfg   Config
}

func New(s *store.Store, capability llm.Capability, cfg Config) *Deduplicator {
	if cfg.OverfetchLimit <= 0 {
		cfg.OverfetchLimit = 5
	}
	return &Deduplicator{store: s, llm: capability, cfg: cfg}
}

// candidatePool is one existing memory considered against a fresh candidate,
// with its cosine similarity to it (1 - distance).
type candidatePool struct {
	memory     *types.Memory
	similarity float64
}

// Decide runs the dedup pipeline for one extracted candidate whose embedding
// vector has already been computed.
func (d *Deduplicator) Decide(ctx context.Context, candidate types.ExtractedMemory, vec []float32, scope string) (*types.DedupDecision, error) {
	if types.IsAppendOnly(candidate.Category) {
		return &types.DedupDecision{Kind: types.DecisionCreate}, nil
	}

	overfetchThreshold := d.cfg.SimilarityThreshold - 0.1
	hits, err := d.store.VectorSearch(vec, types.MemoryFilter{
		Scope:      scope,
		Categories: []types.Category{candidate.Category},
	}, d.cfg.OverfetchLimit)
	if err != nil {
		return nil, fmt.Errorf("dedup vector pre-filter: %w", err)
	}

	pool := make([]candidatePool, 0, len(hits))
	for _, h := range hits {
		sim := 1 - h.Distance
		if sim < 0 {
			sim = 0
		}
		if sim >= overfetchThreshold {
			pool = append(pool, candidatePool{memory: h.Memory, similarity: sim})
		}
	}
	if len(pool) == 0 {
		return &types.DedupDecision{Kind: types.DecisionCreate}, nil
	}

	top := pool[0]
	for _, c := range pool[1:] {
		if c.similarity > top.similarity {
			top = c
		}
	}

	switch d.cfg.Strategy {
	case StrategyVector:
		if top.similarity < d.cfg.SimilarityThreshold {
			return &types.DedupDecision{Kind: types.DecisionCreate}, nil
		}
		return autoMerge(candidate, top.memory), nil

	case StrategyBoth:
		if top.similarity >= d.cfg.LLMThreshold {
			return &types.DedupDecision{Kind: types.DecisionSkip, TargetID: top.memory.ID}, nil
		}
		return d.llmDecision(ctx, candidate, pool)

	case StrategyLLM:
		return d.llmDecision(ctx, candidate, pool)

	default:
		return &types.DedupDecision{Kind: types.DecisionCreate}, nil
	}
}

// autoMerge implements the vector-strategy merge: keep the new headline,
// append summary and content, and union tags in stable order.
func autoMerge(candidate types.ExtractedMemory, target *types.Memory) *types.DedupDecision {
	return &types.DedupDecision{
		Kind:           types.DecisionMerge,
		TargetID:       target.ID,
		MergedHeadline: candidate.Headline,
		MergedSummary:  appendText(target.Summary, candidate.Summary),
		MergedContent:  appendText(target.Content, candidate.Content),
		MergedTags:     unionTags(target.Tags, candidate.Tags),
	}
}

func appendText(existing, addition string) string {
	addition = strings.TrimSpace(addition)
	if addition == "" {
		return existing
	}
	if existing == "" {
		return addition
	}
	return existing + "\n" + addition
}

func unionTags(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, t := range existing {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range incoming {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

const dedupSystemPrompt = `You decide whether a new memory candidate is a duplicate of an existing one.
You are given the candidate and up to five existing memories of the same
category and scope, each already judged vector-similar to the candidate.

Respond with exactly one JSON object of the shape:
{"decision": "CREATE" | "MERGE" | "SKIP",
 "targetId": "...",
 "mergedHeadline": "...", "mergedSummary": "...", "mergedContent": "...",
 "mergedTags": ["..."]}

Use CREATE when the candidate is genuinely new information. Use SKIP when it
is a certain duplicate that adds nothing. Use MERGE when it refines or
extends one existing memory; in that case targetId must name that memory and
the merged fields must be the full post-merge text and tags, not a diff.`

type dedupResponse struct {
	Decision       string   `json:"decision"`
	TargetID       string   `json:"targetId"`
	MergedHeadline string   `json:"mergedHeadline"`
	MergedSummary  string   `json:"mergedSummary"`
	MergedContent  string   `json:"mergedContent"`
	MergedTags     []string `json:"mergedTags"`
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// llmDecision asks the LLM capability to classify the candidate against the
// pre-filtered pool. Any failure to call or parse falls back to CREATE,
// since losing information silently is worse than an occasional duplicate.
func (d *Deduplicator) llmDecision(ctx context.Context, candidate types.ExtractedMemory, pool []candidatePool) (*types.DedupDecision, error) {
	raw, err := d.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: dedupSystemPrompt},
		{Role: "user", Content: dedupPrompt(candidate, pool)},
	}, true)
	if err != nil {
		log.Warn("dedup llm call failed, falling back to CREATE", "error", err)
		return &types.DedupDecision{Kind: types.DecisionCreate}, nil
	}

	decision, ok := parseDedupResponse(raw)
	if !ok {
		log.Warn("dedup llm response unparsable, falling back to CREATE")
		return &types.DedupDecision{Kind: types.DecisionCreate}, nil
	}
	return decision, nil
}

func dedupPrompt(candidate types.ExtractedMemory, pool []candidatePool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Candidate:\nheadline: %s\nsummary: %s\ncontent: %s\ntags: %v\n\n",
		candidate.Headline, candidate.Summary, candidate.Content, candidate.Tags)
	b.WriteString("Existing similar memories:\n")
	for _, c := range pool {
		fmt.Fprintf(&b, "- id: %s (similarity %.3f)\n  headline: %s\n  summary: %s\n  tags: %v\n",
			c.memory.ID, c.similarity, c.memory.Headline, c.memory.Summary, c.memory.Tags)
	}
	return b.String()
}

func parseDedupResponse(raw string) (*types.DedupDecision, bool) {
	body := strings.TrimSpace(raw)
	if m := fencedBlockRe.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if body == "" {
		return nil, false
	}

	var resp dedupResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, false
	}

	switch types.DedupDecisionKind(resp.Decision) {
	case types.DecisionCreate:
		return &types.DedupDecision{Kind: types.DecisionCreate}, true
	case types.DecisionSkip:
		return &types.DedupDecision{Kind: types.DecisionSkip, TargetID: resp.TargetID}, true
	case types.DecisionMerge:
		if strings.TrimSpace(resp.TargetID) == "" {
			return nil, false
		}
		return &types.DedupDecision{
			Kind:           types.DecisionMerge,
			TargetID:       resp.TargetID,
			MergedHeadline: resp.MergedHeadline,
			MergedSummary:  resp.MergedSummary,
			MergedContent:  resp.MergedContent,
			MergedTags:     resp.MergedTags,
		}, true
	default:
		return nil, false
	}
}

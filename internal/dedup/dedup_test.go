//go:build sqlite_vec && cgo

package dedup

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tincomking/tinmem/internal/llm"
	"github.com/tincomking/tinmem/internal/store"
	"github.com/tincomking/tinmem/internal/types"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "memories.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.EnsureVectorIndex(3); err != nil {
		t.Fatalf("EnsureVectorIndex() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertMemory(t *testing.T, s *store.Store, category types.Category, vec []float32) *types.Memory {
	t.Helper()
	m := &types.Memory{
		Headline:   "prefers dark roast coffee",
		Summary:    "the user prefers dark roast coffee over light roast",
		Content:    "during onboarding the user said they always order dark roast coffee",
		Category:   category,
		Scope:      "global",
		Importance: 0.6,
		Tags:       []string{"coffee"},
		Vector:     vec,
	}
	if err := s.Insert(m); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return m
}

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Complete(_ context.Context, _ []llm.Message, _ bool) (string, error) {
	f.calls++
	return f.response, f.err
}

func TestDecideAppendOnlyCategoryAlwaysCreates(t *testing.T) {
	s := newTestStore(t)
	fake := &fakeLLM{}
	d := New(s, fake, DefaultConfig())

	decision, err := d.Decide(context.Background(), types.ExtractedMemory{
		Headline: "shipped the release", Category: types.CategoryEvents,
	}, []float32{1, 0, 0}, "global")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if decision.Kind != types.DecisionCreate {
		t.Fatalf("Decide() kind = %v, want CREATE", decision.Kind)
	}
	if fake.calls != 0 {
		t.Fatalf("Decide() called the LLM for an append-only category")
	}
}

func TestDecideEmptyPoolCreates(t *testing.T) {
	s := newTestStore(t)
	fake := &fakeLLM{}
	d := New(s, fake, DefaultConfig())

	decision, err := d.Decide(context.Background(), types.ExtractedMemory{
		Headline: "likes jazz", Category: types.CategoryPreferences,
	}, []float32{1, 0, 0}, "global")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if decision.Kind != types.DecisionCreate {
		t.Fatalf("Decide() kind = %v, want CREATE for empty store", decision.Kind)
	}
}

func TestDecideVectorStrategyAutoMerges(t *testing.T) {
	s := newTestStore(t)
	existing := insertMemory(t, s, types.CategoryPreferences, []float32{1, 0, 0})

	cfg := DefaultConfig()
	cfg.Strategy = StrategyVector
	cfg.SimilarityThreshold = 0.5
	d := New(s, &fakeLLM{}, cfg)

	decision, err := d.Decide(context.Background(), types.ExtractedMemory{
		Headline: "dark roast every morning",
		Summary:  "reiterated the dark roast preference",
		Content:  "the user said again they always order dark roast",
		Category: types.CategoryPreferences,
		Tags:     []string{"morning"},
	}, []float32{1, 0, 0}, "global")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if decision.Kind != types.DecisionMerge {
		t.Fatalf("Decide() kind = %v, want MERGE", decision.Kind)
	}
	if decision.TargetID != existing.ID {
		t.Fatalf("Decide() target = %s, want %s", decision.TargetID, existing.ID)
	}
	if decision.MergedHeadline != "dark roast every morning" {
		t.Errorf("MergedHeadline = %q, want the new candidate's headline", decision.MergedHeadline)
	}
	foundOld, foundNew := false, false
	for _, tag := range decision.MergedTags {
		if tag == "coffee" {
			foundOld = true
		}
		if tag == "morning" {
			foundNew = true
		}
	}
	if !foundOld || !foundNew {
		t.Errorf("MergedTags = %v, want union of old and new tags", decision.MergedTags)
	}
}

func TestDecideBothStrategySkipsOnHighSimilarity(t *testing.T) {
	s := newTestStore(t)
	existing := insertMemory(t, s, types.CategoryPreferences, []float32{1, 0, 0})

	cfg := DefaultConfig()
	cfg.Strategy = StrategyBoth
	cfg.SimilarityThreshold = 0.5
	cfg.LLMThreshold = 0.9
	fake := &fakeLLM{}
	d := New(s, fake, cfg)

	decision, err := d.Decide(context.Background(), types.ExtractedMemory{
		Headline: "dark roast", Category: types.CategoryPreferences,
	}, []float32{1, 0, 0}, "global")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if decision.Kind != types.DecisionSkip {
		t.Fatalf("Decide() kind = %v, want SKIP", decision.Kind)
	}
	if decision.TargetID != existing.ID {
		t.Fatalf("Decide() target = %s, want %s", decision.TargetID, existing.ID)
	}
	if fake.calls != 0 {
		t.Fatalf("Decide() called the LLM despite a certain-duplicate similarity")
	}
}

func TestDecideLLMStrategyFallsBackToCreateOnError(t *testing.T) {
	s := newTestStore(t)
	insertMemory(t, s, types.CategoryPreferences, []float32{1, 0, 0})

	cfg := DefaultConfig()
	cfg.Strategy = StrategyLLM
	cfg.SimilarityThreshold = 0.5
	fake := &fakeLLM{err: errBoom}
	d := New(s, fake, cfg)

	decision, err := d.Decide(context.Background(), types.ExtractedMemory{
		Headline: "dark roast", Category: types.CategoryPreferences,
	}, []float32{1, 0, 0}, "global")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if decision.Kind != types.DecisionCreate {
		t.Fatalf("Decide() kind = %v, want CREATE fallback on LLM error", decision.Kind)
	}
}

func TestDecideLLMStrategyParsesMergeResponse(t *testing.T) {
	s := newTestStore(t)
	existing := insertMemory(t, s, types.CategoryPreferences, []float32{1, 0, 0})

	cfg := DefaultConfig()
	cfg.Strategy = StrategyLLM
	cfg.SimilarityThreshold = 0.5
	fake := &fakeLLM{response: `{"decision":"MERGE","targetId":"` + existing.ID + `","mergedHeadline":"h","mergedSummary":"s","mergedContent":"c","mergedTags":["x"]}`}
	d := New(s, fake, cfg)

	decision, err := d.Decide(context.Background(), types.ExtractedMemory{
		Headline: "dark roast", Category: types.CategoryPreferences,
	}, []float32{1, 0, 0}, "global")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if decision.Kind != types.DecisionMerge || decision.TargetID != existing.ID {
		t.Fatalf("Decide() = %+v, want MERGE into %s", decision, existing.ID)
	}
	if fake.calls != 1 {
		t.Fatalf("Decide() called the LLM %d times, want 1", fake.calls)
	}
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var errBoom = boomError{}

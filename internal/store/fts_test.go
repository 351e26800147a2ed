package store

import (
	"testing"

	"github.com/tincomking/tinmem/internal/types"
)

func TestFullTextSearchFindsMatchingContent(t *testing.T) {
	s := newTestStore(t)
	m := newTestMemory("global", types.CategoryPreferences)
	if err := s.Insert(m); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := s.FullTextSearch("dark roast", types.MemoryFilter{}, 10)
	if err != nil {
		t.Fatalf("FullTextSearch() error = %v", err)
	}
	if len(got) != 1 || got[0].Memory.ID != m.ID {
		t.Fatalf("FullTextSearch() = %v, want exactly [%s]", got, m.ID)
	}
}

func TestFullTextSearchTreatsOperatorsAsLiteralPhrase(t *testing.T) {
	s := newTestStore(t)
	m := newTestMemory("global", types.CategoryPreferences)
	if err := s.Insert(m); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	// "coffee NOT tea" contains an FTS5 operator keyword; it must not be
	// parsed as a query expression that would otherwise error or match
	// unrelated rows by accident.
	_, err := s.FullTextSearch(`coffee NOT tea`, types.MemoryFilter{}, 10)
	if err != nil {
		t.Fatalf("FullTextSearch() error = %v, want operators treated as literal text", err)
	}
}

func TestFullTextSearchEmptyQueryReturnsNothing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.FullTextSearch("", types.MemoryFilter{}, 10)
	if err != nil {
		t.Fatalf("FullTextSearch() error = %v", err)
	}
	if got != nil {
		t.Fatalf("FullTextSearch(\"\") = %v, want nil", got)
	}
}

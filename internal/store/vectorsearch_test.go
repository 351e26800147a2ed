//go:build sqlite_vec && cgo

package store

import (
	"testing"

	"github.com/tincomking/tinmem/internal/types"
)

func TestVectorSearchOrdersByAscendingDistance(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureVectorIndex(3); err != nil {
		t.Fatalf("EnsureVectorIndex() error = %v", err)
	}

	near := newTestMemory("global", types.CategoryProfile)
	near.Vector = []float32{1, 0, 0}
	far := newTestMemory("global", types.CategoryProfile)
	far.Vector = []float32{0, 1, 0}

	for _, m := range []*types.Memory{far, near} {
		if err := s.Insert(m); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	got, err := s.VectorSearch([]float32{1, 0, 0}, types.MemoryFilter{}, 2)
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("VectorSearch() returned %d results, want 2", len(got))
	}
	if got[0].Memory.ID != near.ID {
		t.Fatalf("VectorSearch()[0] = %s, want the closer vector %s first", got[0].Memory.ID, near.ID)
	}
	if got[0].Distance > got[1].Distance {
		t.Fatalf("VectorSearch() not ordered ascending: %v then %v", got[0].Distance, got[1].Distance)
	}
}

func TestVectorSearchRejectsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureVectorIndex(3); err != nil {
		t.Fatalf("EnsureVectorIndex() error = %v", err)
	}
	_, err := s.VectorSearch([]float32{1, 0}, types.MemoryFilter{}, 5)
	if err == nil {
		t.Fatal("VectorSearch() with wrong dimension succeeded, want error")
	}
}

func TestEnsureVectorIndexRejectsDimensionChange(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureVectorIndex(3); err != nil {
		t.Fatalf("EnsureVectorIndex() error = %v", err)
	}
	if err := s.EnsureVectorIndex(4); err == nil {
		t.Fatal("EnsureVectorIndex() with a changed dimension succeeded, want error")
	}
}

package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/tincomking/tinmem/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "memories.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestMemory(scope string, category types.Category) *types.Memory {
	return &types.Memory{
		Headline:   "likes dark roast coffee",
		Summary:    "the user prefers dark roast coffee over light roast",
		Content:    "during onboarding the user said they always order dark roast coffee, never light roast",
		Category:   category,
		Scope:      scope,
		Importance: 0.6,
		Tags:       []string{"coffee", "preference"},
		Metadata:   map[string]interface{}{"source": "onboarding"},
	}
}

func TestInsertAndGetByID(t *testing.T) {
	s := newTestStore(t)
	m := newTestMemory("global", types.CategoryPreferences)

	if err := s.Insert(m); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if !types.IsValidID(m.ID) {
		t.Fatalf("Insert() did not assign a valid id, got %q", m.ID)
	}

	got, err := s.GetByID(m.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Headline != m.Headline || got.Summary != m.Summary || got.Content != m.Content {
		t.Fatalf("GetByID() = %+v, want matching text fields of %+v", got, m)
	}
	if got.Category != types.CategoryPreferences {
		t.Errorf("Category = %q, want %q", got.Category, types.CategoryPreferences)
	}
	if len(got.Tags) != 2 {
		t.Errorf("Tags = %v, want 2 entries", got.Tags)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetByID("00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestGetByIDRejectsMalformedID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetByID("'; DROP TABLE memories; --")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("GetByID() error = %v, want ErrInvalidArgument", err)
	}
}

func TestUpdatePartial(t *testing.T) {
	s := newTestStore(t)
	m := newTestMemory("agent:assistant-1", types.CategoryProfile)
	if err := s.Insert(m); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	newImportance := 0.9
	if err := s.Update(m.ID, &types.MemoryDelta{Importance: &newImportance}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := s.GetByID(m.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Importance != newImportance {
		t.Errorf("Importance = %v, want %v", got.Importance, newImportance)
	}
	if got.Headline != m.Headline {
		t.Errorf("Headline changed on an update that did not touch it: got %q", got.Headline)
	}
	if got.UpdatedAt < got.CreatedAt {
		t.Errorf("UpdatedAt %d before CreatedAt %d", got.UpdatedAt, got.CreatedAt)
	}
}

func TestUpdateNotFound(t *testing.T) {
	s := newTestStore(t)
	headline := "x"
	err := s.Update("00000000-0000-0000-0000-000000000000", &types.MemoryDelta{Headline: &headline})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteRemovesMemory(t *testing.T) {
	s := newTestStore(t)
	m := newTestMemory("global", types.CategoryEntities)
	if err := s.Insert(m); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := s.Delete(m.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.GetByID(m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
}

func TestDeleteManySkipsUnknownIDs(t *testing.T) {
	s := newTestStore(t)
	m := newTestMemory("global", types.CategoryCases)
	if err := s.Insert(m); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	n, err := s.DeleteMany([]string{m.ID, "11111111-1111-1111-1111-111111111111"})
	if err != nil {
		t.Fatalf("DeleteMany() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteMany() removed %d rows, want 1", n)
	}
}

func TestDeleteByScope(t *testing.T) {
	s := newTestStore(t)
	a := newTestMemory("user:alice", types.CategoryPatterns)
	b := newTestMemory("user:alice", types.CategoryPatterns)
	c := newTestMemory("user:bob", types.CategoryPatterns)
	for _, m := range []*types.Memory{a, b, c} {
		if err := s.Insert(m); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	n, err := s.DeleteByScope("user:alice")
	if err != nil {
		t.Fatalf("DeleteByScope() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteByScope() removed %d rows, want 2", n)
	}
	if _, err := s.GetByID(c.ID); err != nil {
		t.Errorf("DeleteByScope() removed memory outside its scope: %v", err)
	}
}

func TestListFiltersByScopeAndCategory(t *testing.T) {
	s := newTestStore(t)
	a := newTestMemory("global", types.CategoryProfile)
	b := newTestMemory("global", types.CategoryEvents)
	c := newTestMemory("user:alice", types.CategoryProfile)
	for _, m := range []*types.Memory{a, b, c} {
		if err := s.Insert(m); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	got, err := s.List(types.MemoryFilter{Scope: "global", Categories: []types.Category{types.CategoryProfile}}, 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("List() = %v, want exactly [%s]", idsOf(got), a.ID)
	}
}

func TestListRejectsInvalidScope(t *testing.T) {
	s := newTestStore(t)
	_, err := s.List(types.MemoryFilter{Scope: "not-a-scope"}, 10, 0)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("List() error = %v, want ErrInvalidArgument", err)
	}
}

func TestBumpAccess(t *testing.T) {
	s := newTestStore(t)
	m := newTestMemory("global", types.CategoryProfile)
	if err := s.Insert(m); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := s.BumpAccess(m.ID); err != nil {
		t.Fatalf("BumpAccess() error = %v", err)
	}
	got, err := s.GetByID(m.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", got.AccessCount)
	}
}

func TestGetStatsEmpty(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}
	if stats.OldestCreated != nil {
		t.Errorf("OldestCreated = %v, want nil on empty store", stats.OldestCreated)
	}
}

func TestGetStatsBucketsByCategoryAndScope(t *testing.T) {
	s := newTestStore(t)
	for _, m := range []*types.Memory{
		newTestMemory("global", types.CategoryProfile),
		newTestMemory("global", types.CategoryProfile),
		newTestMemory("user:alice", types.CategoryEvents),
	} {
		if err := s.Insert(m); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.ByCategory[types.CategoryProfile] != 2 {
		t.Errorf("ByCategory[profile] = %d, want 2", stats.ByCategory[types.CategoryProfile])
	}
	if stats.ByScope["global"] != 2 {
		t.Errorf("ByScope[global] = %d, want 2", stats.ByScope["global"])
	}
}

func TestBulkInsertAppendsAllRowsInOrder(t *testing.T) {
	s := newTestStore(t)
	a := newTestMemory("global", types.CategoryProfile)
	b := newTestMemory("global", types.CategoryEvents)
	c := newTestMemory("user:alice", types.CategoryPreferences)

	if err := s.BulkInsert([]*types.Memory{a, b, c}); err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}
	for _, m := range []*types.Memory{a, b, c} {
		if !types.IsValidID(m.ID) {
			t.Fatalf("BulkInsert() did not assign a valid id to %+v", m)
		}
		got, err := s.GetByID(m.ID)
		if err != nil {
			t.Fatalf("GetByID(%s) error = %v", m.ID, err)
		}
		if got.Headline != m.Headline {
			t.Errorf("Headline = %q, want %q", got.Headline, m.Headline)
		}
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
}

func TestBulkInsertRollsBackWholeBatchOnInvalidRow(t *testing.T) {
	s := newTestStore(t)
	good := newTestMemory("global", types.CategoryProfile)
	bad := newTestMemory("not-a-scope", types.CategoryProfile)

	if err := s.BulkInsert([]*types.Memory{good, bad}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("BulkInsert() error = %v, want ErrInvalidArgument", err)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d after a rejected batch, want 0", stats.Total)
	}
}

func TestBulkInsertClampsImportance(t *testing.T) {
	s := newTestStore(t)
	m := newTestMemory("global", types.CategoryProfile)
	m.Importance = 5

	if err := s.BulkInsert([]*types.Memory{m}); err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}
	got, err := s.GetByID(m.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Importance != 1 {
		t.Errorf("Importance = %v, want clamped to 1", got.Importance)
	}
}

func idsOf(memories []*types.Memory) []string {
	ids := make([]string, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}
	return ids
}

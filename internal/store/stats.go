package store

import (
	"fmt"

	"github.com/tincomking/tinmem/internal/types"
)

// GetStats returns the aggregate memory counts and bounds used by
// administrative tooling and by the manager's getStats operation.
func (s *Store) GetStats() (*types.MemoryStats, error) {
	stats := &types.MemoryStats{
		ByCategory: make(map[types.Category]int64),
		ByScope:    make(map[string]int64),
	}

	if err := s.queryRow(`SELECT COUNT(*) FROM memories`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("%w: count memories: %v", ErrStoreFailure, err)
	}
	if stats.Total == 0 {
		return stats, nil
	}

	rows, err := s.query(`SELECT category, COUNT(*) FROM memories GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("%w: category breakdown: %v", ErrStoreFailure, err)
	}
	for rows.Next() {
		var cat string
		var n int64
		if err := rows.Scan(&cat, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan category breakdown: %v", ErrStoreFailure, err)
		}
		stats.ByCategory[types.Category(cat)] = n
	}
	rows.Close()

	rows, err = s.query(`SELECT scope, COUNT(*) FROM memories GROUP BY scope`)
	if err != nil {
		return nil, fmt.Errorf("%w: scope breakdown: %v", ErrStoreFailure, err)
	}
	for rows.Next() {
		var scope string
		var n int64
		if err := rows.Scan(&scope, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan scope breakdown: %v", ErrStoreFailure, err)
		}
		stats.ByScope[scope] = n
	}
	rows.Close()

	var oldest, newest int64
	if err := s.queryRow(`SELECT MIN(created_at), MAX(created_at) FROM memories`).Scan(&oldest, &newest); err != nil {
		return nil, fmt.Errorf("%w: created_at bounds: %v", ErrStoreFailure, err)
	}
	stats.OldestCreated = &oldest
	stats.NewestCreated = &newest

	if err := s.queryRow(`SELECT AVG(importance) FROM memories`).Scan(&stats.AvgImportance); err != nil {
		return nil, fmt.Errorf("%w: average importance: %v", ErrStoreFailure, err)
	}

	return stats, nil
}

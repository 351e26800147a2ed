package store

import (
	"encoding/json"
	"fmt"

	"github.com/tincomking/tinmem/internal/types"
)

// FullTextSearch runs an FTS5 MATCH query over headline/summary/content/tags
// and returns candidates ordered by bm25 relevance (best first; bm25 itself
// returns more-negative-is-better, so this negates it into a
// higher-is-better Relevance the scorer can normalize directly).
func (s *Store) FullTextSearch(query string, filter types.MemoryFilter, limit int) ([]types.LexicalCandidate, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	p := newPredicate()
	if err := p.withScope(filter.Scope); err != nil {
		return nil, err
	}
	if err := p.withCategories(filter.Categories); err != nil {
		return nil, err
	}
	if err := p.withMinImportance(filter.MinImportance); err != nil {
		return nil, err
	}
	p.withTags(filter.Tags)
	filterSQL := p.where()
	joinFilter := ""
	if filterSQL != "" {
		joinFilter = " AND " + filterSQL[len(" WHERE "):]
	}

	sqlQuery := `
		SELECT m.` + memoryColumns + `, bm25(memories_fts) AS rank
		FROM memories_fts f
		JOIN memories m ON m.id = f.id
		WHERE memories_fts MATCH ?` + joinFilter + `
		ORDER BY rank ASC
		LIMIT ?
	`
	args := []interface{}{ftsQuery(query), limit}

	rows, err := s.query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: full text search: %v", ErrStoreFailure, err)
	}
	defer rows.Close()

	var out []types.LexicalCandidate
	for rows.Next() {
		var category, tagsJSON, metaJSON string
		var m types.Memory
		var rank float64
		if err := rows.Scan(
			&m.ID, &m.Headline, &m.Summary, &m.Content, &category, &m.Scope, &m.Importance,
			&tagsJSON, &metaJSON, &m.CreatedAt, &m.UpdatedAt, &m.LastAccessedAt, &m.AccessCount,
			&rank,
		); err != nil {
			return nil, fmt.Errorf("%w: scan fts result: %v", ErrStoreFailure, err)
		}
		m.Category = types.Category(category)
		if tagsJSON != "" {
			_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
		}
		if metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &m.Metadata)
		}
		out = append(out, types.LexicalCandidate{Memory: &m, Relevance: -rank})
	}
	return out, rows.Err()
}

// ftsQuery wraps the caller's free text in double quotes so a query string
// containing FTS5 operator syntax (AND, OR, NOT, -, *) is treated as a
// literal phrase rather than parsed as a query expression. Embedded quotes
// are doubled per FTS5's own escaping rule.
func ftsQuery(q string) string {
	escaped := ""
	for _, r := range q {
		if r == '"' {
			escaped += `""`
		} else {
			escaped += string(r)
		}
	}
	return `"` + escaped + `"`
}

package store

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/tincomking/tinmem/internal/types"
)

// insertVectorTx writes one embedding into the vec0 table inside tx. tx
// must already have inserted (or still own) the memories row at rowid.
func (s *Store) insertVectorTx(tx *sql.Tx, rowid int64, vec []float32) error {
	if len(vec) != s.vecDim {
		return fmt.Errorf("%w: embedding has %d dimensions, index expects %d", ErrInvalidArgument, len(vec), s.vecDim)
	}
	_, err := tx.Exec(`INSERT INTO memory_vectors (rowid, embedding) VALUES (?, ?)`, rowid, encodeVector(vec))
	if err != nil {
		return fmt.Errorf("%w: insert vector: %v", ErrStoreFailure, err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}

// VectorSearch runs an ANN query over memory_vectors and returns up to
// limit candidates ordered by ascending cosine distance, narrowed by
// scope/category/importance/tags via the predicate builder. It fetches
// 3*limit nearest vectors before the filter is applied and then truncates
// to limit, so post-filtering does not starve the result of candidates.
func (s *Store) VectorSearch(queryVec []float32, filter types.MemoryFilter, limit int) ([]types.VectorCandidate, error) {
	if !s.vecReady {
		return nil, fmt.Errorf("%w: vector index not initialized", ErrStoreFailure)
	}
	if len(queryVec) != s.vecDim {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, index expects %d", ErrInvalidArgument, len(queryVec), s.vecDim)
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

	query := `
		SELECT m.` + memoryColumns + `, v.dist
		FROM (
			SELECT rowid, vec_distance_cosine(embedding, ?) AS dist
			FROM memory_vectors
			ORDER BY dist ASC
			LIMIT ?
		) v
		JOIN memories m ON m.rowid = v.rowid
		WHERE 1=1` + joinFilter + `
		ORDER BY v.dist ASC
	`
	args := []interface{}{encodeVector(queryVec), limit * 3}

	rows, err := s.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", ErrStoreFailure, err)
	}
	defer rows.Close()

	var out []types.VectorCandidate
	for rows.Next() {
		var category, tagsJSON, metaJSON string
		var m types.Memory
		var dist float64
		if err := rows.Scan(
			&m.ID, &m.Headline, &m.Summary, &m.Content, &category, &m.Scope, &m.Importance,
			&tagsJSON, &metaJSON, &m.CreatedAt, &m.UpdatedAt, &m.LastAccessedAt, &m.AccessCount,
			&dist,
		); err != nil {
			return nil, fmt.Errorf("%w: scan vector result: %v", ErrStoreFailure, err)
		}
		m.Category = types.Category(category)
		decodeJSONFields(&m, tagsJSON, metaJSON)
		out = append(out, types.VectorCandidate{Memory: &m, Distance: dist})
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func decodeJSONFields(m *types.Memory, tagsJSON, metaJSON string) {
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	}
	if metaJSON != "" {
		_ = json.Unmarshal([]byte(metaJSON), &m.Metadata)
	}
}

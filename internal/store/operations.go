package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tincomking/tinmem/internal/types"
)

const memoryColumns = `id, headline, summary, content, category, scope, importance, tags, metadata,
	created_at, updated_at, last_accessed_at, access_count`

// Insert writes a new memory row and its vector entry. It does not go
// through the write queue itself; callers mutate the store exclusively via
// the methods of Queue(), which run insert/update/delete in FIFO order.
func (s *Store) Insert(m *types.Memory) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if !types.IsValidID(m.ID) {
		return fmt.Errorf("%w: invalid memory id %q", ErrInvalidArgument, m.ID)
	}
	if !types.IsValidCategory(string(m.Category)) {
		return fmt.Errorf("%w: invalid category %q", ErrInvalidArgument, m.Category)
	}
	if !types.IsValidScope(m.Scope) {
		return fmt.Errorf("%w: invalid scope %q", ErrInvalidArgument, m.Scope)
	}

	m.Importance = clampImportance(m.Importance)

	now := nowMillis()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.LastAccessedAt == 0 {
		m.LastAccessedAt = now
	}

	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("%w: marshal tags: %v", ErrInvalidArgument, err)
	}
	metaJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", ErrInvalidArgument, err)
	}

	tx, err := s.beginTx()
	if err != nil {
		return fmt.Errorf("%w: begin insert tx: %v", ErrStoreFailure, err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO memories (id, headline, summary, content, category, scope, importance,
			tags, metadata, created_at, updated_at, last_accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Headline, m.Summary, m.Content, string(m.Category), m.Scope, m.Importance,
		string(tagsJSON), string(metaJSON), m.CreatedAt, m.UpdatedAt, m.LastAccessedAt, m.AccessCount)
	if err != nil {
		return fmt.Errorf("%w: insert memory: %v", ErrStoreFailure, err)
	}

	if s.vecReady && len(m.Vector) > 0 {
		rowid, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("%w: get inserted rowid: %v", ErrStoreFailure, err)
		}
		if err := s.insertVectorTx(tx, rowid, m.Vector); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit insert: %v", ErrStoreFailure, err)
	}
	return nil
}

// BulkInsert appends every row in order inside a single transaction (one
// critical section), per the Store contract's bulkInsert operation. A
// validation failure on any row aborts the whole batch before it is
// committed; a mid-batch storage failure rolls the transaction back.
func (s *Store) BulkInsert(rows []*types.Memory) error {
	for _, m := range rows {
		if m.ID != "" && !types.IsValidID(m.ID) {
			return fmt.Errorf("%w: invalid memory id %q", ErrInvalidArgument, m.ID)
		}
		if !types.IsValidCategory(string(m.Category)) {
			return fmt.Errorf("%w: invalid category %q", ErrInvalidArgument, m.Category)
		}
		if !types.IsValidScope(m.Scope) {
			return fmt.Errorf("%w: invalid scope %q", ErrInvalidArgument, m.Scope)
		}
	}

	tx, err := s.beginTx()
	if err != nil {
		return fmt.Errorf("%w: begin bulk insert tx: %v", ErrStoreFailure, err)
	}
	defer tx.Rollback()

	for _, m := range rows {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		m.Importance = clampImportance(m.Importance)

		now := nowMillis()
		if m.CreatedAt == 0 {
			m.CreatedAt = now
		}
		m.UpdatedAt = now
		if m.LastAccessedAt == 0 {
			m.LastAccessedAt = now
		}

		tagsJSON, err := json.Marshal(m.Tags)
		if err != nil {
			return fmt.Errorf("%w: marshal tags: %v", ErrInvalidArgument, err)
		}
		metaJSON, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("%w: marshal metadata: %v", ErrInvalidArgument, err)
		}

		res, err := tx.Exec(`
			INSERT INTO memories (id, headline, summary, content, category, scope, importance,
				tags, metadata, created_at, updated_at, last_accessed_at, access_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, m.Headline, m.Summary, m.Content, string(m.Category), m.Scope, m.Importance,
			string(tagsJSON), string(metaJSON), m.CreatedAt, m.UpdatedAt, m.LastAccessedAt, m.AccessCount)
		if err != nil {
			return fmt.Errorf("%w: bulk insert memory: %v", ErrStoreFailure, err)
		}

		if s.vecReady && len(m.Vector) > 0 {
			rowid, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("%w: get inserted rowid: %v", ErrStoreFailure, err)
			}
			if err := s.insertVectorTx(tx, rowid, m.Vector); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit bulk insert: %v", ErrStoreFailure, err)
	}
	return nil
}

// GetByID returns a single memory, or ErrNotFound.
func (s *Store) GetByID(id string) (*types.Memory, error) {
	if !types.IsValidID(id) {
		return nil, fmt.Errorf("%w: invalid memory id %q", ErrInvalidArgument, id)
	}
	row := s.queryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: memory %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get memory: %v", ErrStoreFailure, err)
	}
	return m, nil
}

// Update applies a partial update to an existing memory. When delta changes
// headline, summary or content, callers are responsible for re-embedding
// and passing the new vector in delta.Vector before calling Update — Update
// itself only persists whatever delta carries.
func (s *Store) Update(id string, delta *types.MemoryDelta) error {
	if !types.IsValidID(id) {
		return fmt.Errorf("%w: invalid memory id %q", ErrInvalidArgument, id)
	}

	var setClauses []string
	var args []interface{}

	if delta.Headline != nil {
		setClauses = append(setClauses, "headline = ?")
		args = append(args, *delta.Headline)
	}
	if delta.Summary != nil {
		setClauses = append(setClauses, "summary = ?")
		args = append(args, *delta.Summary)
	}
	if delta.Content != nil {
		setClauses = append(setClauses, "content = ?")
		args = append(args, *delta.Content)
	}
	if delta.Category != nil {
		if !types.IsValidCategory(string(*delta.Category)) {
			return fmt.Errorf("%w: invalid category %q", ErrInvalidArgument, *delta.Category)
		}
		setClauses = append(setClauses, "category = ?")
		args = append(args, string(*delta.Category))
	}
	if delta.Importance != nil {
		clamped := clampImportance(*delta.Importance)
		setClauses = append(setClauses, "importance = ?")
		args = append(args, clamped)
	}
	if delta.Tags != nil {
		tagsJSON, err := json.Marshal(delta.Tags)
		if err != nil {
			return fmt.Errorf("%w: marshal tags: %v", ErrInvalidArgument, err)
		}
		setClauses = append(setClauses, "tags = ?")
		args = append(args, string(tagsJSON))
	}
	if delta.Metadata != nil {
		metaJSON, err := json.Marshal(delta.Metadata)
		if err != nil {
			return fmt.Errorf("%w: marshal metadata: %v", ErrInvalidArgument, err)
		}
		setClauses = append(setClauses, "metadata = ?")
		args = append(args, string(metaJSON))
	}

	if len(setClauses) == 0 && delta.Vector == nil {
		return nil
	}

	tx, err := s.beginTx()
	if err != nil {
		return fmt.Errorf("%w: begin update tx: %v", ErrStoreFailure, err)
	}
	defer tx.Rollback()

	// A pure re-embed (only delta.Vector set) still rewrites updated_at, per
	// the re-embedding lifecycle rule, so this always runs even when no
	// column besides updated_at changes.
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, nowMillis())
	args = append(args, id)

	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	result, err := tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%w: update memory: %v", ErrStoreFailure, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: memory %s", ErrNotFound, id)
	}

	if delta.Vector != nil && s.vecReady {
		var rowid int64
		if err := tx.QueryRow(`SELECT rowid FROM memories WHERE id = ?`, id).Scan(&rowid); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("%w: memory %s", ErrNotFound, id)
			}
			return fmt.Errorf("%w: locate rowid: %v", ErrStoreFailure, err)
		}
		if _, err := tx.Exec(`DELETE FROM memory_vectors WHERE rowid = ?`, rowid); err != nil {
			return fmt.Errorf("%w: clear stale vector: %v", ErrStoreFailure, err)
		}
		if err := s.insertVectorTx(tx, rowid, delta.Vector); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit update: %v", ErrStoreFailure, err)
	}
	return nil
}

// Delete removes a single memory by id. The FTS5 row is removed by the
// delete trigger; the vec0 row is deleted explicitly in the same
// transaction, since vec0 is not a foreign-keyed table.
func (s *Store) Delete(id string) error {
	if !types.IsValidID(id) {
		return fmt.Errorf("%w: invalid memory id %q", ErrInvalidArgument, id)
	}
	return s.deleteByPredicate("id = ?", id)
}

// DeleteMany removes every memory whose id is in ids. Unknown ids are
// silently ignored, matching spec semantics for bulk deletes ("deleting
// what exists, skipping what does not").
func (s *Store) DeleteMany(ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	for _, id := range ids {
		if !types.IsValidID(id) {
			return 0, fmt.Errorf("%w: invalid memory id %q", ErrInvalidArgument, id)
		}
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	clause := "id IN (" + strings.Join(placeholders, ", ") + ")"
	return s.deleteByPredicateCount(clause, args...)
}

// DeleteByScope removes every memory in the given scope.
func (s *Store) DeleteByScope(scope string) (int64, error) {
	if !types.IsValidScope(scope) {
		return 0, fmt.Errorf("%w: invalid scope %q", ErrInvalidArgument, scope)
	}
	return s.deleteByPredicateCount("scope = ?", scope)
}

func (s *Store) deleteByPredicate(clause string, args ...interface{}) error {
	n, err := s.deleteByPredicateCount(clause, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: no matching memory", ErrNotFound)
	}
	return nil
}

func (s *Store) deleteByPredicateCount(clause string, args ...interface{}) (int64, error) {
	tx, err := s.beginTx()
	if err != nil {
		return 0, fmt.Errorf("%w: begin delete tx: %v", ErrStoreFailure, err)
	}
	defer tx.Rollback()

	rowidRows, err := tx.Query(`SELECT rowid FROM memories WHERE `+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: collect rowids: %v", ErrStoreFailure, err)
	}
	var rowids []int64
	for rowidRows.Next() {
		var rid int64
		if err := rowidRows.Scan(&rid); err != nil {
			rowidRows.Close()
			return 0, fmt.Errorf("%w: scan rowid: %v", ErrStoreFailure, err)
		}
		rowids = append(rowids, rid)
	}
	rowidRows.Close()

	result, err := tx.Exec(`DELETE FROM memories WHERE `+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: delete memories: %v", ErrStoreFailure, err)
	}
	if s.vecReady {
		for _, rid := range rowids {
			if _, err := tx.Exec(`DELETE FROM memory_vectors WHERE rowid = ?`, rid); err != nil {
				return 0, fmt.Errorf("%w: delete vector row: %v", ErrStoreFailure, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit delete: %v", ErrStoreFailure, err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// List returns memories matching filter, newest first.
func (s *Store) List(filter types.MemoryFilter, limit, offset int) ([]*types.Memory, error) {
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

	whereSQL := p.where()
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + memoryColumns + ` FROM memories` + whereSQL + ` ORDER BY created_at DESC LIMIT ?`
	args := []interface{}{limit}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := s.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list memories: %v", ErrStoreFailure, err)
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan memory: %v", ErrStoreFailure, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// BumpAccess increments access_count and refreshes last_accessed_at. This
// is fire-and-forget from the retriever's point of view (errors are logged,
// not propagated) but the method itself reports failure honestly.
func (s *Store) BumpAccess(id string) error {
	if !types.IsValidID(id) {
		return fmt.Errorf("%w: invalid memory id %q", ErrInvalidArgument, id)
	}
	_, err := s.exec(`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`, nowMillis(), id)
	if err != nil {
		return fmt.Errorf("%w: bump access: %v", ErrStoreFailure, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row *sql.Row) (*types.Memory, error) {
	return scanRow(row)
}

func scanMemoryRows(rows *sql.Rows) (*types.Memory, error) {
	return scanRow(rows)
}

func scanRow(r rowScanner) (*types.Memory, error) {
	var m types.Memory
	var category, tagsJSON, metaJSON string
	if err := r.Scan(
		&m.ID, &m.Headline, &m.Summary, &m.Content, &category, &m.Scope, &m.Importance,
		&tagsJSON, &metaJSON, &m.CreatedAt, &m.UpdatedAt, &m.LastAccessedAt, &m.AccessCount,
	); err != nil {
		return nil, err
	}
	m.Category = types.Category(category)
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	}
	if metaJSON != "" {
		_ = json.Unmarshal([]byte(metaJSON), &m.Metadata)
	}
	return &m, nil
}

package store

import (
	"fmt"
	"sync"

	"github.com/tincomking/tinmem/internal/types"
)

// WriteQueue is a single-goroutine FIFO task queue that every mutation to
// the store runs through, so concurrent callers never interleave writes
// against the same SQLite connection pool (which only allows one writer
// anyway) and so a caller gets back-pressure instead of surprises when two
// writers race for the same memory id.
type WriteQueue struct {
	store *Store
	tasks chan writeTask
	done  chan struct{}
	once  sync.Once
}

type writeTask struct {
	fn   func() error
	resp chan error
}

func newWriteQueue(s *Store) *WriteQueue {
	q := &WriteQueue{
		store: s,
		tasks: make(chan writeTask, 64),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *WriteQueue) run() {
	for {
		select {
		case t := <-q.tasks:
			t.resp <- t.fn()
		case <-q.done:
			// Drain whatever is left so callers blocked on submit don't hang
			// forever during shutdown.
			for {
				select {
				case t := <-q.tasks:
					t.resp <- fmt.Errorf("%w: write queue stopped", ErrStoreFailure)
				default:
					return
				}
			}
		}
	}
}

func (q *WriteQueue) stop() {
	q.once.Do(func() { close(q.done) })
}

// submit enqueues fn and blocks until it has run, returning its error.
func (q *WriteQueue) submit(fn func() error) error {
	resp := make(chan error, 1)
	select {
	case q.tasks <- writeTask{fn: fn, resp: resp}:
	case <-q.done:
		return fmt.Errorf("%w: write queue stopped", ErrStoreFailure)
	}
	return <-resp
}

// Insert serializes a store insert.
func (q *WriteQueue) Insert(m *types.Memory) error {
	return q.submit(func() error { return q.store.Insert(m) })
}

// BulkInsert serializes a whole batch of inserts as one FIFO task, so the
// ordered append lands as a single critical section instead of interleaving
// with unrelated writes row by row.
func (q *WriteQueue) BulkInsert(rows []*types.Memory) error {
	return q.submit(func() error { return q.store.BulkInsert(rows) })
}

// Update serializes a store update. When delta changes text and carries a
// new vector, the update is applied as delete-then-insert-the-vector-row
// inside Store.Update's own transaction, so a failed re-embed never leaves
// a memory pointing at a stale vector: Update either fully lands or the
// transaction rolls back and the prior row (including its old vector) is
// left untouched.
func (q *WriteQueue) Update(id string, delta *types.MemoryDelta) error {
	return q.submit(func() error { return q.store.Update(id, delta) })
}

// Delete serializes a store delete.
func (q *WriteQueue) Delete(id string) error {
	return q.submit(func() error { return q.store.Delete(id) })
}

// DeleteMany serializes a bulk delete.
func (q *WriteQueue) DeleteMany(ids []string) (int64, error) {
	var n int64
	err := q.submit(func() error {
		var err error
		n, err = q.store.DeleteMany(ids)
		return err
	})
	return n, err
}

// DeleteByScope serializes a scope-wide delete.
func (q *WriteQueue) DeleteByScope(scope string) (int64, error) {
	var n int64
	err := q.submit(func() error {
		var err error
		n, err = q.store.DeleteByScope(scope)
		return err
	})
	return n, err
}

// BumpAccess serializes an access-count increment. The retriever calls
// this fire-and-forget (it does not wait on the result), but routes it
// through the same queue as every other write so it cannot race a
// concurrent delete of the same memory.
func (q *WriteQueue) BumpAccess(id string) error {
	return q.submit(func() error { return q.store.BumpAccess(id) })
}

// Merge applies a deduplicator MERGE decision: the target memory's headline,
// summary, content and tags are replaced in one update, matching the
// "replace, don't append" merge semantics the deduplicator relies on.
func (q *WriteQueue) Merge(targetID string, decision *types.DedupDecision) error {
	return q.submit(func() error {
		headline := decision.MergedHeadline
		summary := decision.MergedSummary
		content := decision.MergedContent
		return q.store.Update(targetID, &types.MemoryDelta{
			Headline: &headline,
			Summary:  &summary,
			Content:  &content,
			Tags:     decision.MergedTags,
		})
	})
}

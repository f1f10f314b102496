// Package trx implements the transaction hook (§4.5): a minimal
// in-progress-vs-committed boundary over the record manager's hidden
// per-record "__trx" field, without a full MVCC snapshot engine.
package trx

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/flowbase/reldb-storage/internal/storage/common"
)

// OpKind is the kind of operation a transaction recorded against a table.
type OpKind uint8

const (
	OpInsert OpKind = iota
	OpDelete
)

// tableRID keys a transaction's operation set by (table, rid).
type tableRID struct {
	table string
	rid   common.RID
}

// Transaction tracks one in-progress transaction's operations so commit
// can finalize them and rollback can undo them.
type Transaction struct {
	ID uint64
	// SessionID is a diagnostic correlation id for logs, never persisted —
	// the hidden field's wire format (§6) has no room for one.
	SessionID uuid.UUID

	mu  sync.Mutex
	ops map[tableRID]OpKind
}

// Committer is the subset of table operations the hook needs to finalize
// or undo a transaction's effects. A real Table implements this.
type Committer interface {
	// ClearHiddenField stamps a record's hidden field back to committed
	// (trx_id=0, deleted=false).
	ClearHiddenField(table string, rid common.RID) error
	// PhysicallyRemove deletes a record outright (used both to finalize a
	// commit-time DELETE and to undo a rollback-time INSERT).
	PhysicallyRemove(table string, rid common.RID) error
}

// Hook is the process-wide transaction-id allocator and the entry point
// tables call on every insert/delete. It holds no BufferPoolManager
// reference itself; dependencies are threaded in explicitly rather than
// reached through a singleton.
type Hook struct {
	nextID atomic.Uint64
}

// NewHook creates a transaction hook with its id counter starting at 1 (0
// is reserved for "committed").
func NewHook() *Hook {
	h := &Hook{}
	h.nextID.Store(1)
	return h
}

// Begin allocates a fresh transaction id from the process-wide counter.
func (h *Hook) Begin() *Transaction {
	return &Transaction{
		ID:        h.nextID.Add(1) - 1,
		SessionID: uuid.New(),
		ops:       make(map[tableRID]OpKind),
	}
}

// RecordInsert records that T inserted rid into table, per §4.5: "records
// (INSERT, rid); the record's hidden field is stamped with trx_id and
// deleted=false" — stamping itself is the table layer's job via
// record.SetHiddenField; this just tracks the operation log entry.
func (t *Transaction) RecordInsert(table string, rid common.RID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := tableRID{table, rid}
	if _, exists := t.ops[key]; exists {
		return fmt.Errorf("trx %d: insert of already-tracked rid %s in %s", t.ID, rid, table)
	}
	t.ops[key] = OpInsert
	return nil
}

// RecordDelete records a delete of rid in table. If T previously inserted
// rid itself within this transaction, the net effect is as if the row was
// never created — the entry is erased rather than recorded as a delete
// (§4.5).
func (t *Transaction) RecordDelete(table string, rid common.RID) (cancelsInsert bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := tableRID{table, rid}
	if kind, exists := t.ops[key]; exists && kind == OpInsert {
		delete(t.ops, key)
		return true
	}
	t.ops[key] = OpDelete
	return false
}

// IsVisible applies the visibility predicate of §4.5 given a record's raw
// hidden-field trx id and delete bit.
func (t *Transaction) IsVisible(recordTrxID uint32, recordDeleted bool) bool {
	if recordTrxID == 0 || uint64(recordTrxID) == t.ID {
		return !recordDeleted
	}
	return recordDeleted
}

// Commit finalizes every tracked operation through c: inserts have their
// hidden field cleared to committed, deletes are physically removed. The
// operation set is then cleared; a Transaction is one-shot and its id is
// never reused, so there is no live trx_id to reset.
func (t *Transaction) Commit(c Committer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, kind := range t.ops {
		switch kind {
		case OpInsert:
			if err := c.ClearHiddenField(key.table, key.rid); err != nil {
				return err
			}
		case OpDelete:
			if err := c.PhysicallyRemove(key.table, key.rid); err != nil {
				return err
			}
		}
	}
	t.ops = make(map[tableRID]OpKind)
	return nil
}

// Rollback undoes every tracked operation through c: inserts are
// physically removed, deletes have their hidden field cleared back to
// committed-visible. The operation set is then cleared.
func (t *Transaction) Rollback(c Committer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, kind := range t.ops {
		switch kind {
		case OpInsert:
			if err := c.PhysicallyRemove(key.table, key.rid); err != nil {
				return err
			}
		case OpDelete:
			if err := c.ClearHiddenField(key.table, key.rid); err != nil {
				return err
			}
		}
	}
	t.ops = make(map[tableRID]OpKind)
	return nil
}

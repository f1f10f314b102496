package table

import (
	"path/filepath"

	"github.com/flowbase/reldb-storage/internal/storage/bufferpool"
	"github.com/flowbase/reldb-storage/internal/storage/common"
	"github.com/flowbase/reldb-storage/internal/storage/index"
	"github.com/flowbase/reldb-storage/internal/storage/record"
	"github.com/flowbase/reldb-storage/internal/storage/trx"
)

// Table glues a fixed-width record file, its sidecar metadata, and its
// secondary B+Tree indexes into the single unit the rest of a database
// would bind to a table name (§2: "Table binding").
type Table struct {
	meta     Meta
	metaPath string
	bpm      *bufferpool.BufferPoolManager
	records  *record.RecordFileHandler
	indexes  map[string]*index.BTree // keyed by index name
}

func dataPath(dir, name string) string { return filepath.Join(dir, name+".dat") }
func metaPath(dir, name string) string { return filepath.Join(dir, name+".json") }
func indexPath(dir, name, idx string) string { return filepath.Join(dir, name+"."+idx+".idx") }

// Create initializes a brand-new table: writes its sidecar metadata,
// creates its record file, and creates any indexes already declared in
// meta.Indexes.
func Create(bpm *bufferpool.BufferPoolManager, dir string, meta Meta) (*Table, error) {
	mp := metaPath(dir, meta.TableName)
	if err := SaveMeta(mp, meta); err != nil {
		return nil, err
	}
	rf, err := record.Create(bpm, dataPath(dir, meta.TableName), meta.RecordSize())
	if err != nil {
		return nil, err
	}
	t := &Table{meta: meta, metaPath: mp, bpm: bpm, records: rf, indexes: make(map[string]*index.BTree)}
	for _, im := range meta.Indexes {
		field, _ := meta.FieldByName(im.Field)
		bt, err := index.Create(bpm, indexPath(dir, meta.TableName, im.Name), attrTypeOf(field.Type), field.Len)
		if err != nil {
			return nil, err
		}
		t.indexes[im.Name] = bt
	}
	return t, nil
}

// Open opens an existing table by reading its sidecar metadata and
// opening its record file and declared indexes.
func Open(bpm *bufferpool.BufferPoolManager, dir, name string) (*Table, error) {
	mp := metaPath(dir, name)
	meta, err := LoadMeta(mp)
	if err != nil {
		return nil, err
	}
	rf, err := record.Open(bpm, dataPath(dir, name), meta.RecordSize())
	if err != nil {
		return nil, err
	}
	t := &Table{meta: meta, metaPath: mp, bpm: bpm, records: rf, indexes: make(map[string]*index.BTree)}
	for _, im := range meta.Indexes {
		bt, err := index.Open(bpm, indexPath(dir, name, im.Name))
		if err != nil {
			return nil, err
		}
		t.indexes[im.Name] = bt
	}
	return t, nil
}

// Close flushes and closes the record file and every index.
func (t *Table) Close() error {
	for _, bt := range t.indexes {
		if err := bt.Close(); err != nil {
			return err
		}
	}
	return t.records.Close()
}

func attrTypeOf(ft FieldType) index.AttrType {
	switch ft {
	case FieldFloat:
		return index.AttrFloat
	case FieldChar:
		return index.AttrChar
	default:
		return index.AttrInt
	}
}

// Insert assembles a record from fieldValues (one exact-width byte slice
// per declared field, in field order), stamps the hidden trx field,
// inserts it through the record manager, tracks it in the transaction's
// operation log, and maintains every secondary index.
func (t *Table) Insert(tx *trx.Transaction, fieldValues [][]byte) (common.RID, error) {
	buf := make([]byte, t.meta.RecordSize())
	record.SetHiddenField(buf, uint32(tx.ID), false)
	body := record.UserData(buf)
	off := 0
	for i, f := range t.meta.Fields {
		copy(body[off:off+f.Len], fieldValues[i])
		off += f.Len
	}

	rid, err := t.records.Insert(buf)
	if err != nil {
		return common.RID{}, err
	}
	if err := tx.RecordInsert(t.meta.TableName, rid); err != nil {
		return common.RID{}, err
	}
	for _, im := range t.meta.Indexes {
		key := fieldValues[fieldIndex(t.meta, im.Field)]
		if err := t.indexes[im.Name].Insert(key, rid); err != nil {
			return common.RID{}, err
		}
	}
	return rid, nil
}

func fieldIndex(m Meta, name string) int {
	for i, f := range m.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Delete applies §4.5's delete semantics: if tx itself inserted rid
// earlier in this same transaction, the net effect cancels to nothing and
// the record is removed immediately; otherwise the hidden field is
// stamped deleted and the operation is tracked for commit/rollback.
func (t *Table) Delete(tx *trx.Transaction, rid common.RID) error {
	cancels := tx.RecordDelete(t.meta.TableName, rid)
	if cancels {
		return t.PhysicallyRemove(t.meta.TableName, rid)
	}
	rec, err := t.records.Get(rid)
	if err != nil {
		return err
	}
	record.SetHiddenField(rec, uint32(tx.ID), true)
	return t.records.Update(rid, rec)
}

// Get returns the raw record at rid as visible to tx, or RECORD_NOT_EXIST
// if it is not visible.
func (t *Table) Get(tx *trx.Transaction, rid common.RID) ([]byte, error) {
	rec, err := t.records.Get(rid)
	if err != nil {
		return nil, err
	}
	if !tx.IsVisible(record.TrxID(rec), record.Deleted(rec)) {
		return nil, common.NewError("Get", common.RECORD_NOT_EXIST, nil)
	}
	return rec, nil
}

// Scan iterates every record visible to tx.
func (t *Table) Scan(tx *trx.Transaction) *record.FileScanner {
	return record.NewFileScanner(t.records, func(rec []byte) bool {
		return tx.IsVisible(record.TrxID(rec), record.Deleted(rec))
	})
}

// ClearHiddenField implements trx.Committer: stamps a record back to
// committed (trx_id=0, deleted=false).
func (t *Table) ClearHiddenField(tableName string, rid common.RID) error {
	rec, err := t.records.Get(rid)
	if err != nil {
		return err
	}
	record.SetHiddenField(rec, 0, false)
	return t.records.Update(rid, rec)
}

// PhysicallyRemove implements trx.Committer: deletes rid outright from
// both the record file and every secondary index.
func (t *Table) PhysicallyRemove(tableName string, rid common.RID) error {
	rec, err := t.records.Get(rid)
	if err == nil {
		for _, im := range t.meta.Indexes {
			fi := fieldIndex(t.meta, im.Field)
			f := t.meta.Fields[fi]
			key := record.UserData(rec)[f.Offset : f.Offset+f.Len]
			t.indexes[im.Name].Delete(key, rid) // best-effort: row already gone either way
		}
	}
	return t.records.Delete(rid)
}

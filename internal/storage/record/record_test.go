package record

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/flowbase/reldb-storage/internal/storage/bufferpool"
	"github.com/flowbase/reldb-storage/internal/storage/common"
)

func newTestHandler(t *testing.T, recordSize int) (*bufferpool.BufferPoolManager, *RecordFileHandler) {
	t.Helper()
	bpm := bufferpool.NewBufferPoolManager(bufferpool.Config{PageSize: 512})
	path := filepath.Join(t.TempDir(), "t.dat")
	h, err := Create(bpm, path, recordSize)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return bpm, h
}

func TestComputeLayout_FitsPage(t *testing.T) {
	l := ComputeLayout(512, 20)
	if l.FirstRecordOff+l.RecordCapacity*l.RecordAligned > 512-rpTrailerSize {
		t.Fatalf("layout overruns page: %+v", l)
	}
	if l.RecordCapacity < 1 {
		t.Fatalf("layout has no room for any record: %+v", l)
	}
}

func TestInsertGetUpdateDelete(t *testing.T) {
	_, h := newTestHandler(t, 20)
	data := make([]byte, 20)
	copy(data, []byte("hello world"))

	rid, err := h.Insert(data)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := h.Get(rid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q, want %q", got, data)
	}

	updated := make([]byte, 20)
	copy(updated, []byte("updated!"))
	if err := h.Update(rid, updated); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = h.Get(rid)
	if !bytes.Equal(got, updated) {
		t.Fatalf("after update got %q, want %q", got, updated)
	}

	if err := h.Delete(rid); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := h.Get(rid); common.CodeOf(err) != common.RECORD_NOT_EXIST {
		t.Fatalf("Get after delete should be RECORD_NOT_EXIST, got %v", err)
	}
}

// TestFillToBoundary fills a page to capacity, checks it is disposed once
// the last live record on it is deleted, and confirms an immediately
// subsequent insert reuses fresh capacity rather than erroring.
func TestFillToBoundary(t *testing.T) {
	bpm, h := newTestHandler(t, 20)
	l := ComputeLayout(512, 20)

	var rids []common.RID
	for i := 0; i < l.RecordCapacity; i++ {
		data := make([]byte, 20)
		data[0] = byte(i)
		rid, err := h.Insert(data)
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		rids = append(rids, rid)
	}
	firstPage := rids[0].Page
	for _, r := range rids {
		if r.Page != firstPage {
			t.Fatalf("expected all %d records to fit on one page, got page %d", l.RecordCapacity, r.Page)
		}
	}

	// Next insert must land on a freshly allocated second page.
	overflow := make([]byte, 20)
	rid, err := h.Insert(overflow)
	if err != nil {
		t.Fatalf("Insert overflow: %v", err)
	}
	if rid.Page == firstPage {
		t.Fatal("overflow record should have forced a new page")
	}

	// Delete the overflow page's only record; the page should be disposed.
	if err := h.Delete(rid); err != nil {
		t.Fatalf("Delete overflow: %v", err)
	}
	if bpm.IsLive(h.file, rid.Page) {
		t.Fatal("page should be disposed once its only record is deleted")
	}

	// Deleting everything on the first page should dispose it too, and a
	// fresh insert should succeed by allocating a new page again.
	for _, r := range rids {
		if err := h.Delete(r); err != nil {
			t.Fatalf("Delete %v: %v", r, err)
		}
	}
	if bpm.IsLive(h.file, firstPage) {
		t.Fatal("first page should be disposed once emptied")
	}
	if _, err := h.Insert(make([]byte, 20)); err != nil {
		t.Fatalf("Insert after full drain: %v", err)
	}
}

func TestScanVisitsEveryLiveRecord(t *testing.T) {
	_, h := newTestHandler(t, 20)
	l := ComputeLayout(512, 20)
	n := l.RecordCapacity*2 + 3 // force multiple pages
	for i := 0; i < n; i++ {
		data := make([]byte, 20)
		data[0] = byte(i % 256)
		if _, err := h.Insert(data); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	sc := NewFileScanner(h, nil)
	defer sc.Close()
	count := 0
	for {
		_, _, ok := sc.Next()
		if !ok {
			break
		}
		count++
	}
	if count != n {
		t.Fatalf("scanned %d records, want %d", count, n)
	}
}

func TestScanRespectsPredicate(t *testing.T) {
	_, h := newTestHandler(t, 20)
	for i := 0; i < 10; i++ {
		data := make([]byte, 20)
		data[0] = byte(i)
		h.Insert(data)
	}
	sc := NewFileScanner(h, func(rec []byte) bool { return rec[0]%2 == 0 })
	defer sc.Close()
	count := 0
	for {
		_, rec, ok := sc.Next()
		if !ok {
			break
		}
		if rec[0]%2 != 0 {
			t.Fatalf("predicate let through odd record %d", rec[0])
		}
		count++
	}
	if count != 5 {
		t.Fatalf("got %d matching records, want 5", count)
	}
}

func TestReopenRebuildsFreePages(t *testing.T) {
	bpm := bufferpool.NewBufferPoolManager(bufferpool.Config{PageSize: 512})
	path := filepath.Join(t.TempDir(), "t.dat")
	h, err := Create(bpm, path, 20)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rid, _ := h.Insert(make([]byte, 20))
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	h2, err := Open(bpm, path, 20)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h2.Close()
	if _, ok := h2.freePages[rid.Page]; !ok {
		t.Fatalf("page %d holds one record and should be in the rebuilt free set", rid.Page)
	}
	got, err := h2.Get(rid)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("got record of length %d, want 20", len(got))
	}
}

func TestHiddenField(t *testing.T) {
	rec := make([]byte, 24)
	SetHiddenField(rec, 7, false)
	if TrxID(rec) != 7 || Deleted(rec) {
		t.Fatalf("want trx=7 deleted=false, got trx=%d deleted=%v", TrxID(rec), Deleted(rec))
	}
	SetHiddenField(rec, 7, true)
	if TrxID(rec) != 7 || !Deleted(rec) {
		t.Fatalf("want trx=7 deleted=true, got trx=%d deleted=%v", TrxID(rec), Deleted(rec))
	}
}

package record

import (
	"sync"

	"github.com/flowbase/reldb-storage/internal/storage/bufferpool"
	"github.com/flowbase/reldb-storage/internal/storage/common"
)

// RecordFileHandler maps (PAGE_SIZE, record_size) to the slotted layout and
// exposes record-granular CRUD plus full-file scans (§4.3). One handler
// owns one file through a BufferPoolManager; the record size is fixed for
// the handler's lifetime — fixed-width records only, no variable-length
// overflow chains.
type RecordFileHandler struct {
	mu        sync.Mutex
	bpm       *bufferpool.BufferPoolManager
	file      *bufferpool.File
	layout    Layout
	freePages map[common.PageNum]struct{}
}

// Create initializes a brand new record file at path sized for records of
// recordSize bytes (including the hidden trx field) and opens it.
func Create(bpm *bufferpool.BufferPoolManager, path string, recordSize int) (*RecordFileHandler, error) {
	if err := bpm.CreateFile(path); err != nil {
		return nil, err
	}
	return Open(bpm, path, recordSize)
}

// Open opens an existing record file and rebuilds its free-page set by
// walking every live page and checking occupancy.
func Open(bpm *bufferpool.BufferPoolManager, path string, recordSize int) (*RecordFileHandler, error) {
	fh, err := bpm.OpenFile(path)
	if err != nil {
		return nil, err
	}
	layout := ComputeLayout(fh.PageSize(), recordSize)
	h := &RecordFileHandler{
		bpm:       bpm,
		file:      fh,
		layout:    layout,
		freePages: make(map[common.PageNum]struct{}),
	}
	pageCount := bpm.PageCount(fh)
	for pn := common.PageNum(1); pn < common.PageNum(pageCount); pn++ {
		if !bpm.IsLive(fh, pn) {
			continue
		}
		frame, err := bpm.GetThisPage(fh, pn)
		if err != nil {
			return nil, err
		}
		pg := Page{Buf: frame.Buf}
		if !pg.Full() {
			h.freePages[pn] = struct{}{}
		}
		if err := bpm.UnpinPage(frame); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Close flushes and closes the underlying file.
func (h *RecordFileHandler) Close() error {
	return h.bpm.CloseFile(h.file)
}

// Insert copies data (which must already carry the hidden trx field as its
// first 4 bytes) into a page taken from the free-page set (no particular
// order among them), allocating a fresh page if the set is empty, and
// returns the new record's RID.
func (h *RecordFileHandler) Insert(data []byte) (common.RID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(data) != h.layout.RecordSize {
		return common.RID{}, common.NewError("Insert", common.RECORD_NO_CAPACITY, nil)
	}

	var pn common.PageNum
	var frame *bufferpool.Frame
	var err error

	for candidate := range h.freePages {
		frame, err = h.bpm.GetThisPage(h.file, candidate)
		if err != nil {
			return common.RID{}, err
		}
		pn = candidate
		break
	}
	if frame == nil {
		frame, err = h.bpm.AllocatePage(h.file)
		if err != nil {
			return common.RID{}, err
		}
		pn = frame.PageNum()
		Init(frame.Buf, h.layout)
		h.freePages[pn] = struct{}{}
	}

	page := Page{Buf: frame.Buf}
	slot := page.Insert(data)
	if slot < 0 {
		// Lost a race with ourselves: a page we believed free filled up
		// (single-writer model, so this only happens on a stale free-set
		// entry); drop it and retry once against a fresh page.
		delete(h.freePages, pn)
		if uerr := h.bpm.UnpinPage(frame); uerr != nil {
			return common.RID{}, uerr
		}
		return h.insertFresh(data)
	}
	frame.Dirty = true
	if page.Full() {
		delete(h.freePages, pn)
	}
	if err := h.bpm.UnpinPage(frame); err != nil {
		return common.RID{}, err
	}
	return common.RID{Page: pn, Slot: common.SlotNum(slot)}, nil
}

func (h *RecordFileHandler) insertFresh(data []byte) (common.RID, error) {
	frame, err := h.bpm.AllocatePage(h.file)
	if err != nil {
		return common.RID{}, err
	}
	pn := frame.PageNum()
	Init(frame.Buf, h.layout)
	page := Page{Buf: frame.Buf}
	slot := page.Insert(data)
	frame.Dirty = true
	if !page.Full() {
		h.freePages[pn] = struct{}{}
	}
	if err := h.bpm.UnpinPage(frame); err != nil {
		return common.RID{}, err
	}
	return common.RID{Page: pn, Slot: common.SlotNum(slot)}, nil
}

// Update overwrites the record at rid in place; the new data must be the
// same declared size as the handler's record size.
func (h *RecordFileHandler) Update(rid common.RID, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(data) != h.layout.RecordSize {
		return common.NewError("Update", common.RECORD_INVALID_RID, nil)
	}
	frame, err := h.bpm.GetThisPage(h.file, rid.Page)
	if err != nil {
		return err
	}
	defer h.bpm.UnpinPage(frame)
	page := Page{Buf: frame.Buf}
	if !page.Update(rid.Slot, data) {
		return common.NewError("Update", common.RECORD_NOT_EXIST, nil)
	}
	frame.Dirty = true
	return nil
}

// Delete clears the bitmap bit for rid. If the page becomes empty it is
// disposed back to the buffer pool and dropped from the free set.
func (h *RecordFileHandler) Delete(rid common.RID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	frame, err := h.bpm.GetThisPage(h.file, rid.Page)
	if err != nil {
		return err
	}
	page := Page{Buf: frame.Buf}
	remaining, ok := page.Delete(rid.Slot)
	if !ok {
		h.bpm.UnpinPage(frame)
		return common.NewError("Delete", common.RECORD_NOT_EXIST, nil)
	}
	frame.Dirty = true
	h.freePages[rid.Page] = struct{}{}

	if remaining == 0 {
		delete(h.freePages, rid.Page)
		if err := h.bpm.DisposePage(h.file, rid.Page); err != nil {
			h.bpm.UnpinPage(frame)
			return err
		}
		return h.bpm.UnpinPage(frame)
	}
	return h.bpm.UnpinPage(frame)
}

// Get returns a copy of the live record at rid.
func (h *RecordFileHandler) Get(rid common.RID) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.bpm.IsLive(h.file, rid.Page) {
		// The page was disposed when its last record was deleted.
		return nil, common.NewError("Get", common.RECORD_NOT_EXIST, nil)
	}
	frame, err := h.bpm.GetThisPage(h.file, rid.Page)
	if err != nil {
		return nil, err
	}
	defer h.bpm.UnpinPage(frame)
	page := Page{Buf: frame.Buf}
	rec, ok := page.Get(rid.Slot)
	if !ok {
		return nil, common.NewError("Get", common.RECORD_NOT_EXIST, nil)
	}
	out := make([]byte, len(rec))
	copy(out, rec)
	return out, nil
}

// RecordSize returns the declared (unaligned) record size this handler
// was configured for.
func (h *RecordFileHandler) RecordSize() int { return h.layout.RecordSize }

// pageCount exposes the file's allocated-page upper bound, used by the
// scanner.
func (h *RecordFileHandler) pageCount() common.PageNum {
	return common.PageNum(h.bpm.PageCount(h.file))
}

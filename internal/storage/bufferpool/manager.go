package bufferpool

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/flowbase/reldb-storage/internal/storage/common"
)

// File is a handle to one open file managed by a BufferPoolManager. Callers
// never touch *os.File directly; every page access goes through the BPM
// operations below.
type File struct {
	id       int
	path     string
	f        *os.File
	pageSize int
	header   *Frame // page 0, pinned for the file's whole lifetime
}

func (fh *File) PageSize() int { return fh.pageSize }

// BufferPoolManager presents a page-addressed abstraction over a set of
// open files and mediates all disk I/O through a shared FrameAllocator.
// SessionID is a diagnostic correlation id for the host's logs (never
// persisted — the on-disk formats carry no room for it); nothing in this
// package reads it.
type BufferPoolManager struct {
	mu        sync.Mutex
	alloc     *FrameAllocator
	pageSize  int
	nextID    int
	open      map[string]*File // path -> handle, rejects a second open_file
	byID      map[int]*File
	SessionID uuid.UUID
}

// Config configures a BufferPoolManager. Zero values resolve to defaults.
type Config struct {
	PageSize  int
	MaxFrames int // 0 = unbounded, used in tests
}

func NewBufferPoolManager(cfg Config) *BufferPoolManager {
	ps := cfg.PageSize
	if ps == 0 {
		ps = DefaultPageSize
	}
	return &BufferPoolManager{
		alloc:     NewFrameAllocator(cfg.MaxFrames),
		pageSize:  ps,
		open:      make(map[string]*File),
		byID:      make(map[int]*File),
		SessionID: uuid.New(),
	}
}

// CreateFile creates a new file at path with an initialized header page
// (page 0 marked allocated). Fails if the path already exists.
func (b *BufferPoolManager) CreateFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return common.NewError("CreateFile", common.INTERNAL, fmt.Errorf("%s already exists", path))
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return common.NewError("CreateFile", common.IOERR_WRITE, err)
	}
	defer f.Close()

	buf := make([]byte, b.pageSize)
	h := fileHeader{buf}
	h.setAllocatedPages(1)
	h.setPageCount(1)
	h.setLive(0, true)
	SetPageCRC(buf)
	if _, err := f.WriteAt(buf, 0); err != nil {
		return common.NewError("CreateFile", common.IOERR_WRITE, err)
	}
	return nil
}

// OpenFile opens an existing file, pins its header page, and returns a
// handle. Fails with BUFFERPOOL_OPEN_TWICE if this BPM already has path
// open, mirroring MiniOB's open-file-table rejection.
func (b *BufferPoolManager) OpenFile(path string) (*File, error) {
	b.mu.Lock()
	if _, ok := b.open[path]; ok {
		b.mu.Unlock()
		return nil, common.NewError("OpenFile", common.BUFFERPOOL_OPEN_TWICE, fmt.Errorf("%s already open", path))
	}
	id := b.nextID
	b.nextID++
	b.mu.Unlock()

	osf, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, common.NewError("OpenFile", common.IOERR_READ, err)
	}

	fh := &File{id: id, path: path, f: osf, pageSize: b.pageSize}
	loader := func(buf []byte) error {
		_, err := osf.ReadAt(buf, 0)
		return err
	}
	frame, err := b.alloc.Alloc(id, 0, b.pageSize, loader, b.purgerFor(fh))
	if err != nil {
		osf.Close()
		return nil, err
	}
	fh.header = frame

	b.mu.Lock()
	b.open[path] = fh
	b.byID[id] = fh
	b.mu.Unlock()
	return fh, nil
}

// CloseFile flushes all dirty frames for the file, unpins the header,
// fsyncs, and closes the descriptor. Fsync-on-close resolves the open
// question in spec §9 in favor of durability.
func (b *BufferPoolManager) CloseFile(fh *File) error {
	for _, f := range b.alloc.FindList(fh.id) {
		if f.Dirty {
			if err := b.flushFrame(fh, f); err != nil {
				return err
			}
		}
	}
	if err := b.alloc.Unpin(fh.header); err != nil {
		return err
	}
	if err := b.alloc.Free(fh.id, 0); err != nil {
		return err
	}
	if err := fh.f.Sync(); err != nil {
		return common.NewError("CloseFile", common.IOERR_SYNC, err)
	}
	if err := fh.f.Close(); err != nil {
		return common.NewError("CloseFile", common.IOERR_WRITE, err)
	}
	b.mu.Lock()
	delete(b.open, fh.path)
	delete(b.byID, fh.id)
	b.mu.Unlock()
	return nil
}

// GetThisPage resolves page through the frame allocator, reading it from
// disk if not resident, and returns a pinned frame. Fails with
// BUFFERPOOL_INVALID_PAGE_NUM if the file header does not mark it live.
func (b *BufferPoolManager) GetThisPage(fh *File, page common.PageNum) (*Frame, error) {
	if !b.headerOf(fh).isLive(page) {
		return nil, common.NewError("GetThisPage", common.BUFFERPOOL_INVALID_PAGE_NUM, fmt.Errorf("page %d not live", page))
	}
	loader := func(buf []byte) error {
		_, err := fh.f.ReadAt(buf, int64(page)*int64(fh.pageSize))
		return err
	}
	return b.alloc.Alloc(fh.id, page, fh.pageSize, loader, b.purgerFor(fh))
}

// AllocatePage finds a clear bit in the file header's bitmap, marks it
// live, bumps allocated_pages, and returns a pinned zeroed frame for it.
func (b *BufferPoolManager) AllocatePage(fh *File) (*Frame, error) {
	h := b.headerOf(fh)
	limit := maxPageNum(fh.pageSize)
	pn := h.firstClearBit(1, limit) // page 0 is always the header
	if pn < 0 {
		return nil, common.NewError("AllocatePage", common.BUFFERPOOL_NOBUF, fmt.Errorf("file %s at capacity", fh.path))
	}
	h.setLive(common.PageNum(pn), true)
	h.setAllocatedPages(h.allocatedPages() + 1)
	if uint32(pn)+1 > h.pageCount() {
		h.setPageCount(uint32(pn) + 1)
	}
	fh.header.Dirty = true

	frame, err := b.alloc.Alloc(fh.id, common.PageNum(pn), fh.pageSize, nil, b.purgerFor(fh))
	if err != nil {
		h.setLive(common.PageNum(pn), false)
		return nil, err
	}
	clear(frame.Buf) // a disposed page's frame may still be resident
	frame.Dirty = true
	return frame, nil
}

// DisposePage clears the bitmap bit and decrements allocated_pages. The
// frame, if resident, must have pin count 1 (the caller's own pin); the
// caller must still Unpin after this call.
func (b *BufferPoolManager) DisposePage(fh *File, page common.PageNum) error {
	h := b.headerOf(fh)
	if !h.isLive(page) {
		return common.NewError("DisposePage", common.BUFFERPOOL_INVALID_PAGE_NUM, nil)
	}
	h.setLive(page, false)
	h.setAllocatedPages(h.allocatedPages() - 1)
	fh.header.Dirty = true
	return nil
}

// UnpinPage decrements a frame's pin count.
func (b *BufferPoolManager) UnpinPage(f *Frame) error {
	return b.alloc.Unpin(f)
}

// FlushPage writes a frame's bytes to disk at its page offset, stamps the
// CRC trailer, and clears dirty.
func (b *BufferPoolManager) FlushPage(fh *File, f *Frame) error {
	return b.flushFrame(fh, f)
}

// FlushAll flushes every dirty frame belonging to fh, used by the
// background checkpoint scheduler.
func (b *BufferPoolManager) FlushAll(fh *File) error {
	for _, f := range b.alloc.FindList(fh.id) {
		if f.Dirty {
			if err := b.flushFrame(fh, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *BufferPoolManager) flushFrame(fh *File, f *Frame) error {
	SetPageCRC(f.Buf)
	if _, err := fh.f.WriteAt(f.Buf, int64(f.key.page)*int64(fh.pageSize)); err != nil {
		return common.NewError("FlushPage", common.IOERR_WRITE, err)
	}
	f.Dirty = false
	return nil
}

func (b *BufferPoolManager) purgerFor(fh *File) Purger {
	return func(f *Frame) error {
		if !f.Dirty {
			return nil
		}
		return b.flushFrame(fh, f)
	}
}

func (b *BufferPoolManager) headerOf(fh *File) fileHeader {
	return fileHeader{fh.header.Buf}
}

// PageCount returns the highest page number ever allocated in fh, plus
// one — the exclusive upper bound callers should scan up to.
func (b *BufferPoolManager) PageCount(fh *File) uint32 {
	return b.headerOf(fh).pageCount()
}

// IsLive reports whether page is currently marked allocated in fh's file
// header bitmap.
func (b *BufferPoolManager) IsLive(fh *File, page common.PageNum) bool {
	return b.headerOf(fh).isLive(page)
}

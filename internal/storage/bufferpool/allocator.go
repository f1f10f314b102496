package bufferpool

import (
	"fmt"
	"sync"

	"github.com/flowbase/reldb-storage/internal/storage/common"
)

// frameKey identifies a frame's identity: a page number within one of the
// buffer pool manager's open files.
type frameKey struct {
	fileID int
	page   common.PageNum
}

// Frame is an in-memory image of a page plus the metadata the allocator
// needs to pin, evict, and flush it. All access to Buf is gated by holding
// a pin obtained through the FrameAllocator.
type Frame struct {
	key     frameKey
	Buf     []byte
	Dirty   bool
	pinCnt  int
	access  uint64 // monotonically bumped on every touch; higher = more recent
	prev    *Frame // access-order list links, most-recent at head
	next    *Frame
}

func (f *Frame) PageNum() common.PageNum { return f.key.page }

// Purger flushes a frame's bytes if dirty. It is supplied by the buffer
// pool manager so the frame allocator never needs to know about file I/O.
type Purger func(f *Frame) error

// FrameAllocator bounds the number of pages resident in memory at once and
// hands out pinned, exclusive access to each. It is intentionally agnostic
// to which file a page belongs to — that is encoded in frameKey — so one
// allocator can back every file a BufferPoolManager has open, exactly as
// spec'd in §4.1 ("alloc(file, page_num)").
type FrameAllocator struct {
	mu        sync.Mutex
	maxFrames int
	frames    map[frameKey]*Frame
	clock     uint64
	head      *Frame // most recently accessed
	tail      *Frame // least recently accessed (eviction candidate)
}

// NewFrameAllocator creates an allocator bounded to maxFrames resident
// pages. A value <= 0 means unbounded (used by tests).
func NewFrameAllocator(maxFrames int) *FrameAllocator {
	return &FrameAllocator{
		maxFrames: maxFrames,
		frames:    make(map[frameKey]*Frame),
	}
}

// Alloc returns a pinned frame for (fileID, page), creating and reading it
// via loader if not already resident. If the pool is full, it purges via
// purge until a slot is free; if purging cannot free one, it returns
// BUFFERPOOL_NOBUF.
func (a *FrameAllocator) Alloc(fileID int, page common.PageNum, pageSize int, loader func([]byte) error, purger Purger) (*Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := frameKey{fileID, page}
	if f, ok := a.frames[key]; ok {
		f.pinCnt++
		a.clock++
		f.access = a.clock
		a.moveToFront(f)
		return f, nil
	}

	if a.maxFrames > 0 && len(a.frames) >= a.maxFrames {
		if err := a.purgeLocked(1, purger); err != nil {
			return nil, err
		}
		if len(a.frames) >= a.maxFrames {
			return nil, common.NewError("Alloc", common.BUFFERPOOL_NOBUF, nil)
		}
	}

	buf := make([]byte, pageSize)
	if loader != nil {
		if err := loader(buf); err != nil {
			return nil, common.NewError("Alloc", common.IOERR_READ, err)
		}
	}
	f := &Frame{key: key, Buf: buf, pinCnt: 1}
	a.clock++
	f.access = a.clock
	a.frames[key] = f
	a.pushFront(f)
	return f, nil
}

// Unpin decrements a frame's pin count. It is an error to unpin a frame
// with a zero pin count.
func (a *FrameAllocator) Unpin(f *Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if f.pinCnt == 0 {
		return common.NewError("Unpin", common.INTERNAL, fmt.Errorf("double unpin of page %d", f.key.page))
	}
	f.pinCnt--
	return nil
}

// Free releases the frame for (fileID, page) entirely; precondition is
// pinCnt == 1 (the caller's own pin), postcondition the slot is reusable.
func (a *FrameAllocator) Free(fileID int, page common.PageNum) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := frameKey{fileID, page}
	f, ok := a.frames[key]
	if !ok {
		return nil
	}
	if f.pinCnt > 1 {
		return common.NewError("Free", common.INTERNAL, fmt.Errorf("page %d freed with pin count %d", page, f.pinCnt))
	}
	a.unlink(f)
	delete(a.frames, key)
	return nil
}

// FindList enumerates frames currently bound to fileID, used by close and
// flush-all.
func (a *FrameAllocator) FindList(fileID int) []*Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*Frame
	for k, f := range a.frames {
		if k.fileID == fileID {
			out = append(out, f)
		}
	}
	return out
}

// PurgeFrames traverses frames in reverse-access order, collects up to
// count unpinned candidates, pins them, hands each to purger (which
// flushes if dirty), then frees every candidate the purger accepted.
// Exposed with an explicit count so callers can batch eviction under
// sustained pressure rather than purging one frame at a time, matching
// MiniOB's frame purger.
func (a *FrameAllocator) PurgeFrames(count int, purger Purger) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.purgeLocked(count, purger)
}

func (a *FrameAllocator) purgeLocked(count int, purger Purger) error {
	freed := 0
	cur := a.tail
	for cur != nil && freed < count {
		prev := cur.prev
		if cur.pinCnt == 0 {
			cur.pinCnt++ // pin atomically before handing to purger
			if err := purger(cur); err != nil {
				cur.pinCnt--
				return common.NewError("PurgeFrames", common.IOERR_WRITE, err)
			}
			cur.pinCnt--
			a.unlink(cur)
			delete(a.frames, cur.key)
			freed++
		}
		cur = prev
	}
	if freed == 0 && count > 0 {
		return common.NewError("PurgeFrames", common.BUFFERPOOL_NOBUF, nil)
	}
	return nil
}

// ─── access-order doubly-linked list ───────────────────────────────────────

func (a *FrameAllocator) pushFront(f *Frame) {
	f.prev, f.next = nil, a.head
	if a.head != nil {
		a.head.prev = f
	}
	a.head = f
	if a.tail == nil {
		a.tail = f
	}
}

func (a *FrameAllocator) unlink(f *Frame) {
	if f.prev != nil {
		f.prev.next = f.next
	} else {
		a.head = f.next
	}
	if f.next != nil {
		f.next.prev = f.prev
	} else {
		a.tail = f.prev
	}
	f.prev, f.next = nil, nil
}

func (a *FrameAllocator) moveToFront(f *Frame) {
	if a.head == f {
		return
	}
	a.unlink(f)
	a.pushFront(f)
}

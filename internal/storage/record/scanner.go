package record

import (
	"github.com/flowbase/reldb-storage/internal/storage/bufferpool"
	"github.com/flowbase/reldb-storage/internal/storage/common"
)

// Predicate filters records during a scan; nil means accept everything.
type Predicate func(rec []byte) bool

// FileScanner iterates all live records in a file, optionally filtered by
// a predicate, following the state machine in §4.3: walk pages in order,
// within each page walk occupied slots in order, emit exactly once per
// live RID observed at the time its page is visited.
type FileScanner struct {
	h         *RecordFileHandler
	pred      Predicate
	page      common.PageNum
	lastCount common.PageNum
	frame     *bufferpool.Frame
	slot      int
	done      bool
}

// NewFileScanner starts a scanner over h, positioned before the first page.
func NewFileScanner(h *RecordFileHandler, pred Predicate) *FileScanner {
	return &FileScanner{h: h, pred: pred, page: 1, lastCount: h.pageCount()}
}

// Next advances to the next live record satisfying the predicate, returning
// its RID and bytes. ok is false once the scan reaches EOF.
func (s *FileScanner) Next() (rid common.RID, rec []byte, ok bool) {
	for !s.done {
		if s.frame == nil {
			if s.page >= s.lastCount {
				s.done = true
				return common.RID{}, nil, false
			}
			if !s.h.bpm.IsLive(s.h.file, s.page) {
				s.page++
				continue
			}
			frame, err := s.h.bpm.GetThisPage(s.h.file, s.page)
			if err != nil {
				s.done = true
				return common.RID{}, nil, false
			}
			s.frame = frame
			s.slot = 0
		}

		pg := Page{Buf: s.frame.Buf}
		capacity := int(pg.RecordCapacity())
		for s.slot < capacity {
			slot := s.slot
			s.slot++
			data, live := pg.Get(common.SlotNum(slot))
			if !live {
				continue
			}
			if s.pred != nil && !s.pred(data) {
				continue
			}
			out := make([]byte, len(data))
			copy(out, data)
			return common.RID{Page: s.page, Slot: common.SlotNum(slot)}, out, true
		}

		// Exhausted this page: unpin and move to the next.
		s.h.bpm.UnpinPage(s.frame)
		s.frame = nil
		s.page++
	}
	return common.RID{}, nil, false
}

// Close releases any pinned page the scanner is holding without
// completing the scan.
func (s *FileScanner) Close() {
	if s.frame != nil {
		s.h.bpm.UnpinPage(s.frame)
		s.frame = nil
	}
	s.done = true
}

package index

import (
	"encoding/binary"

	"github.com/flowbase/reldb-storage/internal/storage/common"
)

// Index file header (§3): page 1 of the index file, immediately after the
// BufferPoolManager's own allocation-bitmap header on page 0. Page 0 is
// reserved by the bufferpool layer for every file, so the tree's own
// metadata lives in the next page rather than sharing page 0's fixed
// layout (§6 leaves no room there for index-specific fields).
const (
	ihAttrTypeOff   = 0
	ihAttrLengthOff = 4
	ihKeyLengthOff  = 8
	ihIntMaxOff     = 12
	ihLeafMaxOff    = 16
	ihRootPageOff   = 20

	// IndexHeaderPage is the fixed page number of the index file header.
	IndexHeaderPage common.PageNum = 1
)

type indexHeader struct {
	buf []byte
}

func (h indexHeader) attrType() AttrType {
	return AttrType(binary.LittleEndian.Uint32(h.buf[ihAttrTypeOff:]))
}

func (h indexHeader) setAttrType(t AttrType) {
	binary.LittleEndian.PutUint32(h.buf[ihAttrTypeOff:], uint32(t))
}

func (h indexHeader) attrLength() int {
	return int(binary.LittleEndian.Uint32(h.buf[ihAttrLengthOff:]))
}

func (h indexHeader) setAttrLength(v int) {
	binary.LittleEndian.PutUint32(h.buf[ihAttrLengthOff:], uint32(v))
}

func (h indexHeader) internalMaxSize() int {
	return int(binary.LittleEndian.Uint32(h.buf[ihIntMaxOff:]))
}

func (h indexHeader) setInternalMaxSize(v int) {
	binary.LittleEndian.PutUint32(h.buf[ihIntMaxOff:], uint32(v))
}

func (h indexHeader) leafMaxSize() int {
	return int(binary.LittleEndian.Uint32(h.buf[ihLeafMaxOff:]))
}

func (h indexHeader) setLeafMaxSize(v int) {
	binary.LittleEndian.PutUint32(h.buf[ihLeafMaxOff:], uint32(v))
}

func (h indexHeader) rootPageNum() common.PageNum {
	return common.PageNum(binary.LittleEndian.Uint32(h.buf[ihRootPageOff:]))
}

func (h indexHeader) setRootPageNum(p common.PageNum) {
	binary.LittleEndian.PutUint32(h.buf[ihRootPageOff:], uint32(p))
}

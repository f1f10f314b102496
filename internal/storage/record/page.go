// Package record implements the slotted-page record manager: fixed-width
// record CRUD and full-file scans over pages handed out by a
// BufferPoolManager.
package record

import (
	"encoding/binary"

	"github.com/flowbase/reldb-storage/internal/storage/common"
)

// Slotted record page header (§6):
//
//	u32 record_count
//	u32 record_capacity
//	u32 record_size_unaligned
//	u32 record_size_aligned
//	u32 first_record_offset
//	u8[bitmap_bytes] bitmap
//	pad to first_record_offset
//	record_capacity * record_size_aligned bytes of record payload
//	... trailing 4-byte page CRC (handled by the bufferpool package)
const (
	rpRecordCountOff       = 0
	rpRecordCapacityOff    = 4
	rpRecordSizeUnalignOff = 8
	rpRecordSizeAlignOff   = 12
	rpFirstRecordOff       = 16
	rpHeaderSize           = 20
	rpTrailerSize          = 4 // CRC, owned by bufferpool but excluded from the page body here
)

// alignUp rounds x up to the nearest multiple of align (a power of two).
func alignUp(x, align int) int {
	return (x + align - 1) &^ (align - 1)
}

// Layout computes the fixed-width slotted layout for records of size
// recordSize in a page of pageSize bytes, per the formulas in §4.3.
type Layout struct {
	RecordSize      int // unaligned, as declared by the table
	RecordAligned   int
	RecordCapacity  int
	BitmapBytes     int
	FirstRecordOff  int
	PageSize        int
}

// ComputeLayout derives a Layout for recordSize within pageSize.
func ComputeLayout(pageSize, recordSize int) Layout {
	aligned := alignUp(recordSize, 8)
	usable := pageSize - rpHeaderSize - rpTrailerSize
	// record_capacity = floor(usable / (record_aligned + 1/8))
	capacity := (usable * 8) / (aligned*8 + 1)
	bitmapBytes := (capacity + 7) / 8
	first := alignUp(rpHeaderSize+bitmapBytes, 8)
	// Shrink capacity until the slots actually fit after alignment padding.
	for capacity > 0 && first+capacity*aligned > pageSize-rpTrailerSize {
		capacity--
		bitmapBytes = (capacity + 7) / 8
		first = alignUp(rpHeaderSize+bitmapBytes, 8)
	}
	return Layout{
		RecordSize:     recordSize,
		RecordAligned:  aligned,
		RecordCapacity: capacity,
		BitmapBytes:    bitmapBytes,
		FirstRecordOff: first,
		PageSize:       pageSize,
	}
}

// Page is a thin accessor over a raw page buffer laid out as a slotted
// record page.
type Page struct {
	Buf []byte
}

func (p Page) recordCount() uint32    { return binary.LittleEndian.Uint32(p.Buf[rpRecordCountOff:]) }
func (p Page) setRecordCount(v uint32) { binary.LittleEndian.PutUint32(p.Buf[rpRecordCountOff:], v) }
func (p Page) RecordCapacity() uint32 { return binary.LittleEndian.Uint32(p.Buf[rpRecordCapacityOff:]) }
func (p Page) firstRecordOffset() uint32 {
	return binary.LittleEndian.Uint32(p.Buf[rpFirstRecordOff:])
}
func (p Page) recordSizeAligned() uint32 {
	return binary.LittleEndian.Uint32(p.Buf[rpRecordSizeAlignOff:])
}

// Init stamps a fresh page with the given layout and zero record count.
func Init(buf []byte, l Layout) Page {
	p := Page{Buf: buf}
	p.setRecordCount(0)
	binary.LittleEndian.PutUint32(buf[rpRecordCapacityOff:], uint32(l.RecordCapacity))
	binary.LittleEndian.PutUint32(buf[rpRecordSizeUnalignOff:], uint32(l.RecordSize))
	binary.LittleEndian.PutUint32(buf[rpRecordSizeAlignOff:], uint32(l.RecordAligned))
	binary.LittleEndian.PutUint32(buf[rpFirstRecordOff:], uint32(l.FirstRecordOff))
	return p
}

func (p Page) bitmap() []byte {
	bitmapBytes := (int(p.RecordCapacity()) + 7) / 8
	return p.Buf[rpHeaderSize : rpHeaderSize+bitmapBytes]
}

func (p Page) IsOccupied(slot common.SlotNum) bool {
	bm := p.bitmap()
	byteIdx, bit := int(slot)/8, uint(slot)%8
	if byteIdx >= len(bm) {
		return false
	}
	return bm[byteIdx]&(1<<bit) != 0
}

func (p Page) setOccupied(slot common.SlotNum, occ bool) {
	bm := p.bitmap()
	byteIdx, bit := int(slot)/8, uint(slot)%8
	if occ {
		bm[byteIdx] |= 1 << bit
	} else {
		bm[byteIdx] &^= 1 << bit
	}
}

// firstClearSlot returns the lowest-numbered empty slot, or -1 if full.
func (p Page) firstClearSlot() int {
	capacity := int(p.RecordCapacity())
	bm := p.bitmap()
	for i := 0; i < capacity; i++ {
		byteIdx, bit := i/8, uint(i%8)
		if bm[byteIdx]&(1<<bit) == 0 {
			return i
		}
	}
	return -1
}

// slotBytes returns the byte range for slot within the page buffer.
func (p Page) slotBytes(slot common.SlotNum) []byte {
	off := int(p.firstRecordOffset()) + int(slot)*int(p.recordSizeAligned())
	size := int(p.recordSizeAligned())
	return p.Buf[off : off+size]
}

// Get returns a view into the record at slot, and whether it is occupied.
func (p Page) Get(slot common.SlotNum) ([]byte, bool) {
	if uint32(slot) >= p.RecordCapacity() || !p.IsOccupied(slot) {
		return nil, false
	}
	unaligned := binary.LittleEndian.Uint32(p.Buf[rpRecordSizeUnalignOff:])
	return p.slotBytes(slot)[:unaligned], true
}

// Insert writes data into the first free slot and returns its slot number,
// or -1 if the page is full.
func (p Page) Insert(data []byte) int {
	slot := p.firstClearSlot()
	if slot < 0 {
		return -1
	}
	dst := p.slotBytes(common.SlotNum(slot))
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, data)
	p.setOccupied(common.SlotNum(slot), true)
	p.setRecordCount(p.recordCount() + 1)
	return slot
}

// Update overwrites the bytes of an already-occupied slot.
func (p Page) Update(slot common.SlotNum, data []byte) bool {
	if uint32(slot) >= p.RecordCapacity() || !p.IsOccupied(slot) {
		return false
	}
	dst := p.slotBytes(slot)
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, data)
	return true
}

// Delete clears the bitmap bit for slot. Returns the resulting live count.
func (p Page) Delete(slot common.SlotNum) (remaining uint32, ok bool) {
	if uint32(slot) >= p.RecordCapacity() || !p.IsOccupied(slot) {
		return p.recordCount(), false
	}
	p.setOccupied(slot, false)
	p.setRecordCount(p.recordCount() - 1)
	return p.recordCount(), true
}

// Full reports whether the page has no free slots.
func (p Page) Full() bool {
	return p.recordCount() == p.RecordCapacity()
}

// Empty reports whether the page holds no live records.
func (p Page) Empty() bool {
	return p.recordCount() == 0
}

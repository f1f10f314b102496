package index

import (
	"encoding/binary"

	"github.com/flowbase/reldb-storage/internal/storage/common"
)

// Common node header (§6), shared by internal and leaf pages:
//
//	u8  is_leaf
//	u32 key_count        (at offset 4, for alignment)
//	u32 parent_page_num
//
// Leaf pages additionally carry prev/next sibling pointers immediately
// after the common header; internal pages start their entry array there
// instead.
const (
	nIsLeafOff  = 0
	nKeyCountOff = 4
	nParentOff  = 8
	nCommonHdr  = 12

	nLeafPrevOff    = nCommonHdr
	nLeafNextOff    = nCommonHdr + 4
	nLeafEntriesOff = nCommonHdr + 8

	nInternalEntriesOff = nCommonHdr

	trailerSize = 4 // page CRC, owned by bufferpool
)

// childPageInvalid marks "no sibling"/"no parent" using the same sentinel
// as common.InvalidPageNum (page 0 is always the BPM's own header page and
// can never be a tree node).
const childPageInvalid = common.InvalidPageNum

// Node wraps a raw page buffer as a B+Tree node, using comp to size
// entries.
type Node struct {
	Buf  []byte
	Comp Comparator
}

func (n Node) IsLeaf() bool { return n.Buf[nIsLeafOff] != 0 }

func (n Node) setLeaf(leaf bool) {
	if leaf {
		n.Buf[nIsLeafOff] = 1
	} else {
		n.Buf[nIsLeafOff] = 0
	}
}

func (n Node) KeyCount() int {
	return int(binary.LittleEndian.Uint32(n.Buf[nKeyCountOff:]))
}

func (n Node) setKeyCount(c int) {
	binary.LittleEndian.PutUint32(n.Buf[nKeyCountOff:], uint32(c))
}

func (n Node) Parent() common.PageNum {
	return common.PageNum(binary.LittleEndian.Uint32(n.Buf[nParentOff:]))
}

func (n Node) SetParent(p common.PageNum) {
	binary.LittleEndian.PutUint32(n.Buf[nParentOff:], uint32(p))
}

func (n Node) PrevLeaf() common.PageNum {
	return common.PageNum(binary.LittleEndian.Uint32(n.Buf[nLeafPrevOff:]))
}

func (n Node) SetPrevLeaf(p common.PageNum) {
	binary.LittleEndian.PutUint32(n.Buf[nLeafPrevOff:], uint32(p))
}

func (n Node) NextLeaf() common.PageNum {
	return common.PageNum(binary.LittleEndian.Uint32(n.Buf[nLeafNextOff:]))
}

func (n Node) SetNextLeaf(p common.PageNum) {
	binary.LittleEndian.PutUint32(n.Buf[nLeafNextOff:], uint32(p))
}

// InitLeaf stamps buf as an empty leaf node.
func InitLeaf(buf []byte, comp Comparator, parent common.PageNum) Node {
	n := Node{Buf: buf, Comp: comp}
	n.setLeaf(true)
	n.setKeyCount(0)
	n.SetParent(parent)
	n.SetPrevLeaf(childPageInvalid)
	n.SetNextLeaf(childPageInvalid)
	return n
}

// InitInternal stamps buf as an empty internal node.
func InitInternal(buf []byte, comp Comparator, parent common.PageNum) Node {
	n := Node{Buf: buf, Comp: comp}
	n.setLeaf(false)
	n.setKeyCount(0)
	n.SetParent(parent)
	return n
}

// ─── leaf entries: key_length bytes key || 8 bytes RID ─────────────────────

func (n Node) leafEntrySize() int { return n.Comp.KeyLength() + ridSize }

func (n Node) leafEntryOffset(i int) int {
	return nLeafEntriesOff + i*n.leafEntrySize()
}

// LeafKey returns the composite key stored at entry i.
func (n Node) LeafKey(i int) []byte {
	off := n.leafEntryOffset(i)
	return n.Buf[off : off+n.Comp.KeyLength()]
}

// LeafValue returns the value RID stored at entry i.
func (n Node) LeafValue(i int) common.RID {
	off := n.leafEntryOffset(i) + n.Comp.KeyLength()
	return DecodeRID(n.Buf[off : off+ridSize])
}

func (n Node) setLeafEntry(i int, key []byte, value common.RID) {
	off := n.leafEntryOffset(i)
	copy(n.Buf[off:off+n.Comp.KeyLength()], key)
	copy(n.Buf[off+n.Comp.KeyLength():off+n.leafEntrySize()], EncodeRID(value))
}

// LeafMaxSize returns how many entries fit in a leaf page of this comparator.
func LeafMaxSize(pageSize int, comp Comparator) int {
	usable := pageSize - nLeafEntriesOff - trailerSize
	entrySize := comp.KeyLength() + ridSize
	return usable / entrySize
}

// InsertLeafEntry inserts (key, value) at position idx, shifting later
// entries right by one, and bumps key_count.
func (n Node) InsertLeafEntry(idx int, key []byte, value common.RID) {
	count := n.KeyCount()
	for i := count; i > idx; i-- {
		src := n.leafEntryOffset(i - 1)
		dst := n.leafEntryOffset(i)
		copy(n.Buf[dst:dst+n.leafEntrySize()], n.Buf[src:src+n.leafEntrySize()])
	}
	n.setLeafEntry(idx, key, value)
	n.setKeyCount(count + 1)
}

// RemoveLeafEntry removes the entry at idx, shifting later entries left.
func (n Node) RemoveLeafEntry(idx int) {
	count := n.KeyCount()
	for i := idx; i < count-1; i++ {
		src := n.leafEntryOffset(i + 1)
		dst := n.leafEntryOffset(i)
		copy(n.Buf[dst:dst+n.leafEntrySize()], n.Buf[src:src+n.leafEntrySize()])
	}
	n.setKeyCount(count - 1)
}

// ─── internal entries: key_length bytes key || 4 bytes child_page_num ──────

func (n Node) internalEntrySize() int { return n.Comp.KeyLength() + 4 }

func (n Node) internalEntryOffset(i int) int {
	return nInternalEntriesOff + i*n.internalEntrySize()
}

// InternalKey returns the separator key at index i. Index 0 is a sentinel
// and never compared against.
func (n Node) InternalKey(i int) []byte {
	off := n.internalEntryOffset(i)
	return n.Buf[off : off+n.Comp.KeyLength()]
}

// InternalChild returns the child page number at index i.
func (n Node) InternalChild(i int) common.PageNum {
	off := n.internalEntryOffset(i) + n.Comp.KeyLength()
	return common.PageNum(binary.LittleEndian.Uint32(n.Buf[off : off+4]))
}

func (n Node) setInternalEntry(i int, key []byte, child common.PageNum) {
	off := n.internalEntryOffset(i)
	copy(n.Buf[off:off+n.Comp.KeyLength()], key)
	binary.LittleEndian.PutUint32(n.Buf[off+n.Comp.KeyLength():off+n.internalEntrySize()], uint32(child))
}

// InternalMaxSize returns how many entries fit in an internal page of this
// comparator.
func InternalMaxSize(pageSize int, comp Comparator) int {
	usable := pageSize - nInternalEntriesOff - trailerSize
	entrySize := comp.KeyLength() + 4
	return usable / entrySize
}

// InsertInternalEntry inserts (key, child) at position idx, shifting later
// entries right by one.
func (n Node) InsertInternalEntry(idx int, key []byte, child common.PageNum) {
	count := n.KeyCount()
	for i := count; i > idx; i-- {
		src := n.internalEntryOffset(i - 1)
		dst := n.internalEntryOffset(i)
		copy(n.Buf[dst:dst+n.internalEntrySize()], n.Buf[src:src+n.internalEntrySize()])
	}
	n.setInternalEntry(idx, key, child)
	n.setKeyCount(count + 1)
}

// RemoveInternalEntry removes the entry at idx, shifting later entries left.
func (n Node) RemoveInternalEntry(idx int) {
	count := n.KeyCount()
	for i := idx; i < count-1; i++ {
		src := n.internalEntryOffset(i + 1)
		dst := n.internalEntryOffset(i)
		copy(n.Buf[dst:dst+n.internalEntrySize()], n.Buf[src:src+n.internalEntrySize()])
	}
	n.setKeyCount(count - 1)
}

// SetInternalKey overwrites just the key portion of entry i, leaving its
// child pointer untouched. Used when a separator key is rotated during
// redistribution.
func (n Node) SetInternalKey(i int, key []byte) {
	off := n.internalEntryOffset(i)
	copy(n.Buf[off:off+n.Comp.KeyLength()], key)
}

// SetInternalChild0 sets only the child pointer at index 0, leaving its
// sentinel key untouched; used when building a brand new root.
func (n Node) SetInternalChild0(child common.PageNum) {
	if n.KeyCount() == 0 {
		n.InsertInternalEntry(0, make([]byte, n.Comp.KeyLength()), child)
		return
	}
	off := n.internalEntryOffset(0) + n.Comp.KeyLength()
	binary.LittleEndian.PutUint32(n.Buf[off:off+4], uint32(child))
}

// FindChild returns the index of the child that should be descended into
// for key, per §4.4's find_leaf rule: largest i such that
// Compare(keys[i], key) <= 0, or 0 if every key exceeds it.
func (n Node) FindChild(key []byte) int {
	best := 0
	for i := 1; i < n.KeyCount(); i++ {
		if n.Comp.Compare(n.InternalKey(i), key) <= 0 {
			best = i
		} else {
			break
		}
	}
	return best
}

// FindInsertPos performs a linear/binary search for the position key
// should occupy among a leaf's sorted entries, and whether an identical
// key already exists there.
func (n Node) FindInsertPos(key []byte) (pos int, exists bool) {
	lo, hi := 0, n.KeyCount()
	for lo < hi {
		mid := (lo + hi) / 2
		c := n.Comp.Compare(n.LeafKey(mid), key)
		switch {
		case c < 0:
			lo = mid + 1
		case c > 0:
			hi = mid
		default:
			return mid, true
		}
	}
	return lo, false
}

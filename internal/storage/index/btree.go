package index

import (
	"fmt"

	"github.com/flowbase/reldb-storage/internal/storage/bufferpool"
	"github.com/flowbase/reldb-storage/internal/storage/common"
)

// BTree is a persistent, on-disk B+Tree index: an ordered map from
// composite key (user_key ∥ RID) to RID (§4.4). Exactly one BTree owns one
// index file through a BufferPoolManager.
type BTree struct {
	bpm          *bufferpool.BufferPoolManager
	file         *bufferpool.File
	headerFrame  *bufferpool.Frame // index header page, pinned for the tree's lifetime
	comp         Comparator
	internalMax  int
	leafMax      int
}

func (t *BTree) header() indexHeader { return indexHeader{t.headerFrame.Buf} }

// Create initializes a new index file at path for keys of the given
// attribute type and length, and opens it.
func Create(bpm *bufferpool.BufferPoolManager, path string, attrType AttrType, attrLength int) (*BTree, error) {
	if err := bpm.CreateFile(path); err != nil {
		return nil, err
	}
	fh, err := bpm.OpenFile(path)
	if err != nil {
		return nil, err
	}
	headerFrame, err := bpm.AllocatePage(fh) // always page 1, right after the bufferpool's own page 0
	if err != nil {
		return nil, err
	}
	if headerFrame.PageNum() != IndexHeaderPage {
		return nil, common.NewError("Create", common.INTERNAL, fmt.Errorf("expected index header at page %d, got %d", IndexHeaderPage, headerFrame.PageNum()))
	}
	comp := Comparator{Type: attrType, AttrLength: attrLength}
	h := indexHeader{headerFrame.Buf}
	h.setAttrType(attrType)
	h.setAttrLength(attrLength)
	h.setInternalMaxSize(InternalMaxSize(fh.PageSize(), comp))
	h.setLeafMaxSize(LeafMaxSize(fh.PageSize(), comp))
	h.setRootPageNum(common.InvalidPageNum)
	headerFrame.Dirty = true

	return &BTree{
		bpm: bpm, file: fh, headerFrame: headerFrame, comp: comp,
		internalMax: h.internalMaxSize(), leafMax: h.leafMaxSize(),
	}, nil
}

// Open opens an existing index file.
func Open(bpm *bufferpool.BufferPoolManager, path string) (*BTree, error) {
	fh, err := bpm.OpenFile(path)
	if err != nil {
		return nil, err
	}
	headerFrame, err := bpm.GetThisPage(fh, IndexHeaderPage)
	if err != nil {
		return nil, err
	}
	h := indexHeader{headerFrame.Buf}
	comp := Comparator{Type: h.attrType(), AttrLength: h.attrLength()}
	return &BTree{
		bpm: bpm, file: fh, headerFrame: headerFrame, comp: comp,
		internalMax: h.internalMaxSize(), leafMax: h.leafMaxSize(),
	}, nil
}

// Close unpins the header and closes the underlying file.
func (t *BTree) Close() error {
	if err := t.bpm.UnpinPage(t.headerFrame); err != nil {
		return err
	}
	return t.bpm.CloseFile(t.file)
}

func (t *BTree) minLeafSize() int     { return t.leafMax - t.leafMax/2 }
func (t *BTree) minInternalSize() int { return t.internalMax - t.internalMax/2 }

func (t *BTree) loadNode(pn common.PageNum) (*bufferpool.Frame, Node, error) {
	f, err := t.bpm.GetThisPage(t.file, pn)
	if err != nil {
		return nil, Node{}, err
	}
	return f, Node{Buf: f.Buf, Comp: t.comp}, nil
}

// findLeaf descends from the root to the leaf that would hold composite
// key k, returning its pinned frame.
func (t *BTree) findLeaf(k []byte) (*bufferpool.Frame, Node, error) {
	pn := t.header().rootPageNum()
	for {
		frame, node, err := t.loadNode(pn)
		if err != nil {
			return nil, Node{}, err
		}
		if node.IsLeaf() {
			return frame, node, nil
		}
		childIdx := node.FindChild(k)
		childPN := node.InternalChild(childIdx)
		t.bpm.UnpinPage(frame)
		pn = childPN
	}
}

// Get returns every RID stored under exactly userKey, in ascending RID
// order.
func (t *BTree) Get(userKey []byte) ([]common.RID, error) {
	if t.header().rootPageNum() == common.InvalidPageNum {
		return nil, nil
	}
	lowKey := MakeKey(userKey, common.MinRID)
	frame, node, err := t.findLeaf(lowKey)
	if err != nil {
		return nil, err
	}
	var out []common.RID
	for {
		idx, _ := node.FindInsertPos(lowKey)
		for idx < node.KeyCount() {
			key := node.LeafKey(idx)
			if t.comp.compareUserKey(key[:t.comp.AttrLength], userKey) != 0 {
				t.bpm.UnpinPage(frame)
				return out, nil
			}
			out = append(out, node.LeafValue(idx))
			idx++
		}
		next := node.NextLeaf()
		t.bpm.UnpinPage(frame)
		if next == common.InvalidPageNum {
			return out, nil
		}
		frame, node, err = t.loadNode(next)
		if err != nil {
			return out, err
		}
		lowKey = MakeKey(userKey, common.MinRID)
	}
}

// Insert adds (userKey, rid) to the tree. Returns RECORD_DUPLICATE_KEY if
// the exact (userKey, rid) pair is already present.
func (t *BTree) Insert(userKey []byte, rid common.RID) error {
	k := MakeKey(userKey, rid)

	if t.header().rootPageNum() == common.InvalidPageNum {
		frame, err := t.bpm.AllocatePage(t.file)
		if err != nil {
			return err
		}
		node := InitLeaf(frame.Buf, t.comp, common.InvalidPageNum)
		node.InsertLeafEntry(0, k, rid)
		frame.Dirty = true
		pn := frame.PageNum()
		if err := t.bpm.UnpinPage(frame); err != nil {
			return err
		}
		t.header().setRootPageNum(pn)
		t.headerFrame.Dirty = true
		return nil
	}

	frame, node, err := t.findLeaf(k)
	if err != nil {
		return err
	}
	pos, exists := node.FindInsertPos(k)
	if exists {
		t.bpm.UnpinPage(frame)
		return common.NewError("Insert", common.RECORD_DUPLICATE_KEY, nil)
	}

	if node.KeyCount() < t.leafMax {
		node.InsertLeafEntry(pos, k, rid)
		frame.Dirty = true
		return t.bpm.UnpinPage(frame)
	}

	return t.splitLeaf(frame, node, pos, k, rid)
}

// splitLeaf handles the full-leaf insert path: build the combined entry
// set, write the lower half back into the original page, move the upper
// half to a freshly allocated sibling, fix sibling links, and push the
// separator up through insertIntoParent (§4.4 step 6).
func (t *BTree) splitLeaf(frame *bufferpool.Frame, node Node, pos int, newKey []byte, newRID common.RID) error {
	leftPN := frame.PageNum()
	count := node.KeyCount()
	total := count + 1

	keys := make([][]byte, total)
	vals := make([]common.RID, total)
	for i, j := 0, 0; i < count; i, j = i+1, j+1 {
		if j == pos {
			keys[j] = newKey
			vals[j] = newRID
			j++
		}
		keys[j] = append([]byte(nil), node.LeafKey(i)...)
		vals[j] = node.LeafValue(i)
	}
	if pos == count {
		keys[total-1] = newKey
		vals[total-1] = newRID
	}

	mid := total / 2
	parentPN := node.Parent()
	oldNext := node.NextLeaf()
	oldPrev := node.PrevLeaf()

	siblingFrame, err := t.bpm.AllocatePage(t.file)
	if err != nil {
		t.bpm.UnpinPage(frame)
		return err
	}
	rightPN := siblingFrame.PageNum()
	sibling := InitLeaf(siblingFrame.Buf, t.comp, parentPN)
	for i := mid; i < total; i++ {
		sibling.InsertLeafEntry(i-mid, keys[i], vals[i])
	}
	sibling.SetPrevLeaf(leftPN)
	sibling.SetNextLeaf(oldNext)

	// Rewrite the original page with only the lower half.
	node2 := InitLeaf(frame.Buf, t.comp, parentPN)
	for i := 0; i < mid; i++ {
		node2.InsertLeafEntry(i, keys[i], vals[i])
	}
	node2.SetPrevLeaf(oldPrev)
	node2.SetNextLeaf(rightPN)
	frame.Dirty = true
	siblingFrame.Dirty = true

	if oldNext != common.InvalidPageNum {
		nextFrame, nextNode, err := t.loadNode(oldNext)
		if err != nil {
			return err
		}
		nextNode.SetPrevLeaf(rightPN)
		nextFrame.Dirty = true
		if err := t.bpm.UnpinPage(nextFrame); err != nil {
			return err
		}
	}

	separator := keys[mid]
	t.bpm.UnpinPage(frame)
	t.bpm.UnpinPage(siblingFrame)
	return t.insertIntoParent(leftPN, separator, rightPN)
}

// insertIntoParent attaches (key, rightPN) as the entry following leftPN in
// leftPN's parent, creating a new root if leftPN currently has none, and
// recursing (via a further call to insertIntoParent) if the parent itself
// must split (§4.4 "insert_into_parent").
func (t *BTree) insertIntoParent(leftPN common.PageNum, key []byte, rightPN common.PageNum) error {
	leftFrame, leftNode, err := t.loadNode(leftPN)
	if err != nil {
		return err
	}
	parentPN := leftNode.Parent()
	t.bpm.UnpinPage(leftFrame)

	if parentPN == common.InvalidPageNum {
		rootFrame, err := t.bpm.AllocatePage(t.file)
		if err != nil {
			return err
		}
		root := InitInternal(rootFrame.Buf, t.comp, common.InvalidPageNum)
		root.SetInternalChild0(leftPN)
		root.InsertInternalEntry(1, key, rightPN)
		rootFrame.Dirty = true
		newRootPN := rootFrame.PageNum()
		if err := t.bpm.UnpinPage(rootFrame); err != nil {
			return err
		}
		if err := t.setParentOf(leftPN, newRootPN); err != nil {
			return err
		}
		if err := t.setParentOf(rightPN, newRootPN); err != nil {
			return err
		}
		t.header().setRootPageNum(newRootPN)
		t.headerFrame.Dirty = true
		return nil
	}

	parentFrame, parentNode, err := t.loadNode(parentPN)
	if err != nil {
		return err
	}
	idx := -1
	for i := 0; i < parentNode.KeyCount(); i++ {
		if parentNode.InternalChild(i) == leftPN {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.bpm.UnpinPage(parentFrame)
		return common.NewError("insertIntoParent", common.INTERNAL, fmt.Errorf("child %d not found in parent %d", leftPN, parentPN))
	}

	if parentNode.KeyCount() < t.internalMax {
		parentNode.InsertInternalEntry(idx+1, key, rightPN)
		parentFrame.Dirty = true
		if err := t.bpm.UnpinPage(parentFrame); err != nil {
			return err
		}
		return t.setParentOf(rightPN, parentPN)
	}

	return t.splitInternal(parentFrame, parentNode, idx+1, key, rightPN)
}

// splitInternal handles the full-internal-node insert path analogously to
// splitLeaf: build the combined entry set, keep the lower half in place,
// move the upper half to a new sibling (reassigning the moved children's
// parent pointers), and recurse on the grandparent with the median key as
// the new separator.
func (t *BTree) splitInternal(frame *bufferpool.Frame, node Node, pos int, newKey []byte, newChild common.PageNum) error {
	selfPN := frame.PageNum()
	count := node.KeyCount()
	total := count + 1

	keys := make([][]byte, total)
	children := make([]common.PageNum, total)
	for i, j := 0, 0; i < count; i, j = i+1, j+1 {
		if j == pos {
			keys[j] = newKey
			children[j] = newChild
			j++
		}
		keys[j] = append([]byte(nil), node.InternalKey(i)...)
		children[j] = node.InternalChild(i)
	}
	if pos == count {
		keys[total-1] = newKey
		children[total-1] = newChild
	}

	mid := total / 2
	grandParentPN := node.Parent()
	separator := keys[mid]

	siblingFrame, err := t.bpm.AllocatePage(t.file)
	if err != nil {
		t.bpm.UnpinPage(frame)
		return err
	}
	siblingPN := siblingFrame.PageNum()
	sibling := InitInternal(siblingFrame.Buf, t.comp, grandParentPN)
	for i := mid; i < total; i++ {
		sibling.InsertInternalEntry(i-mid, keys[i], children[i])
	}
	siblingFrame.Dirty = true

	node2 := InitInternal(frame.Buf, t.comp, grandParentPN)
	for i := 0; i < mid; i++ {
		node2.InsertInternalEntry(i, keys[i], children[i])
	}
	frame.Dirty = true

	for i := mid; i < total; i++ {
		if err := t.setParentOf(children[i], siblingPN); err != nil {
			return err
		}
	}

	t.bpm.UnpinPage(frame)
	t.bpm.UnpinPage(siblingFrame)
	return t.insertIntoParent(selfPN, separator, siblingPN)
}

func (t *BTree) setParentOf(pn common.PageNum, parent common.PageNum) error {
	frame, node, err := t.loadNode(pn)
	if err != nil {
		return err
	}
	node.SetParent(parent)
	frame.Dirty = true
	return t.bpm.UnpinPage(frame)
}

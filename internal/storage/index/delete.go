package index

import (
	"fmt"

	"github.com/flowbase/reldb-storage/internal/storage/bufferpool"
	"github.com/flowbase/reldb-storage/internal/storage/common"
)

// Delete removes (userKey, rid) from the tree, cascading
// redistribute/coalesce up through ancestors as needed to restore the
// min_size invariant (§4.4 "Delete algorithm").
func (t *BTree) Delete(userKey []byte, rid common.RID) error {
	if t.header().rootPageNum() == common.InvalidPageNum {
		return common.NewError("Delete", common.RECORD_NOT_EXIST, nil)
	}
	k := MakeKey(userKey, rid)
	frame, node, err := t.findLeaf(k)
	if err != nil {
		return err
	}
	pos, exists := node.FindInsertPos(k)
	if !exists {
		t.bpm.UnpinPage(frame)
		return common.NewError("Delete", common.RECORD_NOT_EXIST, nil)
	}
	node.RemoveLeafEntry(pos)
	frame.Dirty = true
	pn := frame.PageNum()
	if err := t.bpm.UnpinPage(frame); err != nil {
		return err
	}
	return t.handleUnderflow(pn)
}

// handleUnderflow inspects node pn after a deletion and restores the
// min_size invariant, recursing toward the root as coalescing propagates.
func (t *BTree) handleUnderflow(pn common.PageNum) error {
	frame, node, err := t.loadNode(pn)
	if err != nil {
		return err
	}
	if pn == t.header().rootPageNum() {
		return t.shrinkRootIfNeeded(frame, node)
	}
	if node.IsLeaf() {
		if node.KeyCount() >= t.minLeafSize() {
			return t.bpm.UnpinPage(frame)
		}
		return t.fixLeafUnderflow(frame, node)
	}
	if node.KeyCount() >= t.minInternalSize() {
		return t.bpm.UnpinPage(frame)
	}
	return t.fixInternalUnderflow(frame, node)
}

// shrinkRootIfNeeded applies §4.4 step 6: an internal root with a single
// child is replaced by that child; an empty leaf root empties the tree.
// The root is otherwise allowed to underfill.
func (t *BTree) shrinkRootIfNeeded(frame *bufferpool.Frame, node Node) error {
	pn := frame.PageNum()
	if node.IsLeaf() {
		if node.KeyCount() > 0 {
			return t.bpm.UnpinPage(frame)
		}
		if err := t.bpm.DisposePage(t.file, pn); err != nil {
			return err
		}
		if err := t.bpm.UnpinPage(frame); err != nil {
			return err
		}
		t.header().setRootPageNum(common.InvalidPageNum)
		t.headerFrame.Dirty = true
		return nil
	}
	if node.KeyCount() > 1 {
		return t.bpm.UnpinPage(frame)
	}
	childPN := node.InternalChild(0)
	if err := t.bpm.DisposePage(t.file, pn); err != nil {
		return err
	}
	if err := t.bpm.UnpinPage(frame); err != nil {
		return err
	}
	if err := t.setParentOf(childPN, common.InvalidPageNum); err != nil {
		return err
	}
	t.header().setRootPageNum(childPN)
	t.headerFrame.Dirty = true
	return nil
}

// loadParentAndSibling locates node's parent and the sibling to borrow
// from or coalesce with, preferring the left sibling (§4.4 step 3).
func (t *BTree) loadParentAndSibling(node Node, selfPN common.PageNum) (parentFrame *bufferpool.Frame, parentNode Node, idx int, siblingFrame *bufferpool.Frame, siblingNode Node, siblingIdx int, preferLeft bool, err error) {
	parentPN := node.Parent()
	parentFrame, parentNode, err = t.loadNode(parentPN)
	if err != nil {
		return
	}
	idx = -1
	for i := 0; i < parentNode.KeyCount(); i++ {
		if parentNode.InternalChild(i) == selfPN {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.bpm.UnpinPage(parentFrame)
		err = common.NewError("handleUnderflow", common.INTERNAL, fmt.Errorf("child %d not found in parent", selfPN))
		return
	}
	preferLeft = idx > 0
	if preferLeft {
		siblingIdx = idx - 1
	} else {
		siblingIdx = idx + 1
	}
	siblingPN := parentNode.InternalChild(siblingIdx)
	siblingFrame, siblingNode, err = t.loadNode(siblingPN)
	return
}

func (t *BTree) fixLeafUnderflow(frame *bufferpool.Frame, node Node) error {
	selfPN := frame.PageNum()
	parentFrame, parentNode, idx, siblingFrame, siblingNode, siblingIdx, preferLeft, err := t.loadParentAndSibling(node, selfPN)
	if err != nil {
		t.bpm.UnpinPage(frame)
		return err
	}

	if node.KeyCount()+siblingNode.KeyCount() > t.leafMax {
		if preferLeft {
			last := siblingNode.KeyCount() - 1
			key := append([]byte(nil), siblingNode.LeafKey(last)...)
			val := siblingNode.LeafValue(last)
			siblingNode.RemoveLeafEntry(last)
			node.InsertLeafEntry(0, key, val)
			parentNode.SetInternalKey(idx, node.LeafKey(0))
		} else {
			key := append([]byte(nil), siblingNode.LeafKey(0)...)
			val := siblingNode.LeafValue(0)
			siblingNode.RemoveLeafEntry(0)
			node.InsertLeafEntry(node.KeyCount(), key, val)
			parentNode.SetInternalKey(siblingIdx, siblingNode.LeafKey(0))
		}
		frame.Dirty, siblingFrame.Dirty, parentFrame.Dirty = true, true, true
		t.bpm.UnpinPage(frame)
		t.bpm.UnpinPage(siblingFrame)
		t.bpm.UnpinPage(parentFrame)
		return nil
	}

	// Coalesce.
	parentPN := parentFrame.PageNum()
	if preferLeft {
		base := siblingNode.KeyCount()
		for i := 0; i < node.KeyCount(); i++ {
			siblingNode.InsertLeafEntry(base+i, node.LeafKey(i), node.LeafValue(i))
		}
		siblingNode.SetNextLeaf(node.NextLeaf())
		if node.NextLeaf() != common.InvalidPageNum {
			if err := t.relinkPrev(node.NextLeaf(), siblingFrame.PageNum()); err != nil {
				return err
			}
		}
		parentNode.RemoveInternalEntry(idx)
		if err := t.bpm.DisposePage(t.file, selfPN); err != nil {
			return err
		}
		frame.Dirty, siblingFrame.Dirty, parentFrame.Dirty = false, true, true
		t.bpm.UnpinPage(frame)
		t.bpm.UnpinPage(siblingFrame)
	} else {
		siblingPN := siblingFrame.PageNum()
		base := node.KeyCount()
		for i := 0; i < siblingNode.KeyCount(); i++ {
			node.InsertLeafEntry(base+i, siblingNode.LeafKey(i), siblingNode.LeafValue(i))
		}
		node.SetNextLeaf(siblingNode.NextLeaf())
		if siblingNode.NextLeaf() != common.InvalidPageNum {
			if err := t.relinkPrev(siblingNode.NextLeaf(), selfPN); err != nil {
				return err
			}
		}
		parentNode.RemoveInternalEntry(siblingIdx)
		if err := t.bpm.DisposePage(t.file, siblingPN); err != nil {
			return err
		}
		frame.Dirty, siblingFrame.Dirty, parentFrame.Dirty = true, false, true
		t.bpm.UnpinPage(siblingFrame)
		t.bpm.UnpinPage(frame)
	}
	t.bpm.UnpinPage(parentFrame)
	return t.handleUnderflow(parentPN)
}

func (t *BTree) relinkPrev(nextPN, newPrev common.PageNum) error {
	nextFrame, nextNode, err := t.loadNode(nextPN)
	if err != nil {
		return err
	}
	nextNode.SetPrevLeaf(newPrev)
	nextFrame.Dirty = true
	return t.bpm.UnpinPage(nextFrame)
}

func (t *BTree) fixInternalUnderflow(frame *bufferpool.Frame, node Node) error {
	selfPN := frame.PageNum()
	parentFrame, parentNode, idx, siblingFrame, siblingNode, siblingIdx, preferLeft, err := t.loadParentAndSibling(node, selfPN)
	if err != nil {
		t.bpm.UnpinPage(frame)
		return err
	}

	if node.KeyCount()+siblingNode.KeyCount() > t.internalMax {
		if preferLeft {
			oldSep := append([]byte(nil), parentNode.InternalKey(idx)...)
			lastIdx := siblingNode.KeyCount() - 1
			borrowedChild := siblingNode.InternalChild(lastIdx)
			newSep := append([]byte(nil), siblingNode.InternalKey(lastIdx)...)
			siblingNode.RemoveInternalEntry(lastIdx)

			node.InsertInternalEntry(0, make([]byte, t.comp.KeyLength()), borrowedChild)
			node.SetInternalKey(1, oldSep)
			parentNode.SetInternalKey(idx, newSep)
			if err := t.setParentOf(borrowedChild, selfPN); err != nil {
				return err
			}
		} else {
			oldSep := append([]byte(nil), parentNode.InternalKey(siblingIdx)...)
			borrowedChild := siblingNode.InternalChild(0)
			var newSep []byte
			if siblingNode.KeyCount() > 1 {
				newSep = append([]byte(nil), siblingNode.InternalKey(1)...)
			}
			siblingNode.RemoveInternalEntry(0)

			node.InsertInternalEntry(node.KeyCount(), oldSep, borrowedChild)
			if newSep != nil {
				parentNode.SetInternalKey(siblingIdx, newSep)
			}
			if err := t.setParentOf(borrowedChild, selfPN); err != nil {
				return err
			}
		}
		frame.Dirty, siblingFrame.Dirty, parentFrame.Dirty = true, true, true
		t.bpm.UnpinPage(frame)
		t.bpm.UnpinPage(siblingFrame)
		t.bpm.UnpinPage(parentFrame)
		return nil
	}

	// Coalesce.
	parentPN := parentFrame.PageNum()
	if preferLeft {
		sepKey := append([]byte(nil), parentNode.InternalKey(idx)...)
		base := siblingNode.KeyCount()
		siblingNode.InsertInternalEntry(base, sepKey, node.InternalChild(0))
		if err := t.setParentOf(node.InternalChild(0), siblingFrame.PageNum()); err != nil {
			return err
		}
		for i := 1; i < node.KeyCount(); i++ {
			siblingNode.InsertInternalEntry(base+i, node.InternalKey(i), node.InternalChild(i))
			if err := t.setParentOf(node.InternalChild(i), siblingFrame.PageNum()); err != nil {
				return err
			}
		}
		parentNode.RemoveInternalEntry(idx)
		if err := t.bpm.DisposePage(t.file, selfPN); err != nil {
			return err
		}
		frame.Dirty, siblingFrame.Dirty, parentFrame.Dirty = false, true, true
		t.bpm.UnpinPage(frame)
		t.bpm.UnpinPage(siblingFrame)
	} else {
		siblingPN := siblingFrame.PageNum()
		sepKey := append([]byte(nil), parentNode.InternalKey(siblingIdx)...)
		base := node.KeyCount()
		node.InsertInternalEntry(base, sepKey, siblingNode.InternalChild(0))
		if err := t.setParentOf(siblingNode.InternalChild(0), selfPN); err != nil {
			return err
		}
		for i := 1; i < siblingNode.KeyCount(); i++ {
			node.InsertInternalEntry(base+i, siblingNode.InternalKey(i), siblingNode.InternalChild(i))
			if err := t.setParentOf(siblingNode.InternalChild(i), selfPN); err != nil {
				return err
			}
		}
		parentNode.RemoveInternalEntry(siblingIdx)
		if err := t.bpm.DisposePage(t.file, siblingPN); err != nil {
			return err
		}
		frame.Dirty, siblingFrame.Dirty, parentFrame.Dirty = true, false, true
		t.bpm.UnpinPage(siblingFrame)
		t.bpm.UnpinPage(frame)
	}
	t.bpm.UnpinPage(parentFrame)
	return t.handleUnderflow(parentPN)
}

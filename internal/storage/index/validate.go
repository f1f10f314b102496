package index

import (
	"fmt"

	"github.com/flowbase/reldb-storage/internal/storage/common"
)

// Validate walks the whole tree and checks the invariants in §8: every
// internal node's children cover disjoint, correctly-ordered key ranges;
// leaves are sorted and linked in ascending order; every non-root node
// respects min_size..max_size; all leaves sit at equal depth. It mirrors
// MiniOB's validate_leaf_link/validate_node_recursive debug checks,
// exposed here as first-class API rather than a test-only helper.
func (t *BTree) Validate() error {
	root := t.header().rootPageNum()
	if root == common.InvalidPageNum {
		return nil
	}
	depth, err := t.validateNode(root, true, nil, nil)
	if err != nil {
		return err
	}
	return t.validateLeafChain(root, depth)
}

// validateNode recursively checks size and ordering constraints, returning
// the subtree's leaf depth (1 for a leaf itself) so callers can confirm
// all leaves are at equal depth.
func (t *BTree) validateNode(pn common.PageNum, isRoot bool, lowerBound, upperBound []byte) (int, error) {
	frame, node, err := t.loadNode(pn)
	if err != nil {
		return 0, err
	}
	defer t.bpm.UnpinPage(frame)

	inRange := func(k []byte) bool {
		return (lowerBound == nil || t.comp.Compare(k, lowerBound) >= 0) &&
			(upperBound == nil || t.comp.Compare(k, upperBound) < 0)
	}

	if node.IsLeaf() {
		if !isRoot {
			if node.KeyCount() < t.minLeafSize() || node.KeyCount() > t.leafMax {
				return 0, fmt.Errorf("leaf %d size %d outside [%d,%d]", pn, node.KeyCount(), t.minLeafSize(), t.leafMax)
			}
		}
		for i := 0; i < node.KeyCount(); i++ {
			if !inRange(node.LeafKey(i)) {
				return 0, fmt.Errorf("leaf %d key %d outside its parent's range", pn, i)
			}
		}
		for i := 1; i < node.KeyCount(); i++ {
			if t.comp.Compare(node.LeafKey(i-1), node.LeafKey(i)) >= 0 {
				return 0, fmt.Errorf("leaf %d not strictly ascending at %d", pn, i)
			}
		}
		return 1, nil
	}

	if !isRoot {
		if node.KeyCount() < t.minInternalSize() || node.KeyCount() > t.internalMax {
			return 0, fmt.Errorf("internal %d size %d outside [%d,%d]", pn, node.KeyCount(), t.minInternalSize(), t.internalMax)
		}
	} else if node.KeyCount() < 1 {
		return 0, fmt.Errorf("internal root %d has no children", pn)
	}

	var depth int
	for i := 0; i < node.KeyCount(); i++ {
		child := node.InternalChild(i)
		var lb, ub []byte
		if i > 0 {
			lb = node.InternalKey(i)
			if !inRange(lb) {
				return 0, fmt.Errorf("internal %d key %d outside its parent's range", pn, i)
			}
		}
		if i+1 < node.KeyCount() {
			ub = node.InternalKey(i + 1)
		}
		childFrame, childNode, err := t.loadNode(child)
		if err != nil {
			return 0, err
		}
		if childNode.Parent() != pn {
			t.bpm.UnpinPage(childFrame)
			return 0, fmt.Errorf("child %d parent pointer does not match %d", child, pn)
		}
		t.bpm.UnpinPage(childFrame)

		d, err := t.validateNode(child, false, lb, ub)
		if err != nil {
			return 0, err
		}
		if i == 0 {
			depth = d
		} else if d != depth {
			return 0, fmt.Errorf("unequal leaf depth under %d", pn)
		}
	}
	return depth + 1, nil
}

// validateLeafChain walks the leftmost path down to the first leaf and
// then follows next_leaf_page links, checking prev/next consistency and
// overall ascending order across leaf boundaries.
func (t *BTree) validateLeafChain(root common.PageNum, _ int) error {
	pn := root
	for {
		frame, node, err := t.loadNode(pn)
		if err != nil {
			return err
		}
		if node.IsLeaf() {
			t.bpm.UnpinPage(frame)
			break
		}
		child := node.InternalChild(0)
		t.bpm.UnpinPage(frame)
		pn = child
	}

	var prev common.PageNum = common.InvalidPageNum
	var lastKey []byte
	for pn != common.InvalidPageNum {
		frame, node, err := t.loadNode(pn)
		if err != nil {
			return err
		}
		if node.PrevLeaf() != prev {
			t.bpm.UnpinPage(frame)
			return fmt.Errorf("leaf %d prev pointer mismatch", pn)
		}
		for i := 0; i < node.KeyCount(); i++ {
			k := node.LeafKey(i)
			if lastKey != nil && t.comp.Compare(lastKey, k) >= 0 {
				t.bpm.UnpinPage(frame)
				return fmt.Errorf("leaf chain not strictly ascending at page %d", pn)
			}
			lastKey = append([]byte(nil), k...)
		}
		next := node.NextLeaf()
		t.bpm.UnpinPage(frame)
		prev = pn
		pn = next
	}
	return nil
}

package index

import (
	"github.com/flowbase/reldb-storage/internal/storage/bufferpool"
	"github.com/flowbase/reldb-storage/internal/storage/common"
)

// Scanner is a BplusTreeScanner (§4.4): positions at the first matching
// leaf entry for an open range and walks forward via leaf sibling links.
type Scanner struct {
	t             *BTree
	frame         *bufferpool.Frame
	node          Node
	pos           int
	rightKey      []byte // nil means unbounded
	rightInclusive bool
	done          bool
}

// Open positions a scanner over (leftKey, leftInclusive) .. (rightKey,
// rightInclusive). A nil leftKey scans from the leftmost leaf; a nil
// rightKey scans to the rightmost leaf.
func (t *BTree) Open(leftKey []byte, leftInclusive bool, rightKey []byte, rightInclusive bool) (*Scanner, error) {
	s := &Scanner{t: t, rightKey: rightKey, rightInclusive: rightInclusive}

	if t.header().rootPageNum() == common.InvalidPageNum {
		s.done = true
		return s, nil
	}

	var startComposite []byte
	if leftKey == nil {
		startComposite = MakeKey(make([]byte, t.comp.AttrLength), common.MinRID)
	} else if leftInclusive {
		startComposite = MakeKey(leftKey, common.MinRID)
	} else {
		startComposite = MakeKey(leftKey, common.MaxRID)
	}

	frame, node, err := t.findLeaf(startComposite)
	if err != nil {
		return nil, err
	}
	pos, _ := node.FindInsertPos(startComposite)
	if leftKey == nil {
		// The all-zero key is not the smallest INT or FLOAT key, so walk
		// back along prev links to the leftmost leaf.
		for node.PrevLeaf() != common.InvalidPageNum {
			prev := node.PrevLeaf()
			t.bpm.UnpinPage(frame)
			if frame, node, err = t.loadNode(prev); err != nil {
				return nil, err
			}
		}
		pos = 0
	}
	s.frame, s.node, s.pos = frame, node, pos
	s.advancePastEnd()
	return s, nil
}

// advancePastEnd walks forward past exhausted leaves and marks the
// scanner done once the right bound is crossed or the tree is exhausted,
// without consuming the entry that satisfies the bound.
func (s *Scanner) advancePastEnd() {
	for {
		if s.pos < s.node.KeyCount() {
			if s.rightKey != nil {
				key := s.node.LeafKey(s.pos)
				c := s.t.comp.compareUserKey(key[:s.t.comp.AttrLength], s.rightKey)
				if c > 0 || (c == 0 && !s.rightInclusive) {
					s.done = true
					s.t.bpm.UnpinPage(s.frame)
					s.frame = nil
				}
			}
			return
		}
		next := s.node.NextLeaf()
		s.t.bpm.UnpinPage(s.frame)
		s.frame = nil
		if next == common.InvalidPageNum {
			s.done = true
			return
		}
		frame, node, err := s.t.loadNode(next)
		if err != nil {
			s.done = true
			return
		}
		s.frame, s.node, s.pos = frame, node, 0
	}
}

// Next returns the next (userKey, RID) pair within the scanner's bounds,
// or ok == false at EOF.
func (s *Scanner) Next() (userKey []byte, rid common.RID, ok bool) {
	if s.done {
		return nil, common.RID{}, false
	}
	key := s.node.LeafKey(s.pos)
	uk := append([]byte(nil), key[:s.t.comp.AttrLength]...)
	rid = s.node.LeafValue(s.pos)
	s.pos++
	s.advancePastEnd()
	return uk, rid, true
}

// Close releases any pinned page the scanner still holds.
func (s *Scanner) Close() {
	if s.frame != nil {
		s.t.bpm.UnpinPage(s.frame)
		s.frame = nil
	}
	s.done = true
}

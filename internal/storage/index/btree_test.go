package index

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/flowbase/reldb-storage/internal/storage/bufferpool"
	"github.com/flowbase/reldb-storage/internal/storage/common"
)

func newTestTree(t *testing.T, attrLength int) (*bufferpool.BufferPoolManager, *BTree) {
	t.Helper()
	bpm := bufferpool.NewBufferPoolManager(bufferpool.Config{PageSize: 96}) // small page to force splits with few keys
	path := filepath.Join(t.TempDir(), "t.idx")
	bt, err := Create(bpm, path, AttrInt, attrLength)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return bpm, bt
}

func intKey(v int32) []byte { return EncodeInt(v, 4) }

func TestInsertGet(t *testing.T) {
	_, bt := newTestTree(t, 4)
	defer bt.Close()

	rid := common.RID{Page: 3, Slot: 1}
	if err := bt.Insert(intKey(42), rid); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := bt.Get(intKey(42))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 || got[0] != rid {
		t.Fatalf("Get returned %v, want [%v]", got, rid)
	}
}

func TestInsertDuplicateSameRID(t *testing.T) {
	_, bt := newTestTree(t, 4)
	defer bt.Close()
	rid := common.RID{Page: 1, Slot: 0}
	if err := bt.Insert(intKey(5), rid); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := bt.Insert(intKey(5), rid)
	if common.CodeOf(err) != common.RECORD_DUPLICATE_KEY {
		t.Fatalf("expected RECORD_DUPLICATE_KEY, got %v", err)
	}
}

// TestSplitCascade inserts keys 1..15 (enough to force repeated leaf and
// internal splits at this page size) and checks the tree stays valid and
// every key is still reachable.
func TestSplitCascade(t *testing.T) {
	_, bt := newTestTree(t, 4)
	defer bt.Close()
	for i := int32(1); i <= 15; i++ {
		rid := common.RID{Page: common.PageNum(i), Slot: 0}
		if err := bt.Insert(intKey(i), rid); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	if err := bt.Validate(); err != nil {
		t.Fatalf("Validate after split cascade: %v", err)
	}
	for i := int32(1); i <= 15; i++ {
		got, err := bt.Get(intKey(i))
		if err != nil || len(got) != 1 {
			t.Fatalf("Get %d: %v, %v", i, got, err)
		}
	}
}

// TestDeleteMerge deletes keys 1 and 3 after the same split-cascade insert
// pattern and confirms the tree remains valid (merge/redistribute
// triggered) and the remaining keys are all still reachable.
func TestDeleteMerge(t *testing.T) {
	_, bt := newTestTree(t, 4)
	defer bt.Close()
	for i := int32(1); i <= 15; i++ {
		bt.Insert(intKey(i), common.RID{Page: common.PageNum(i), Slot: 0})
	}
	if err := bt.Delete(intKey(1), common.RID{Page: 1, Slot: 0}); err != nil {
		t.Fatalf("Delete 1: %v", err)
	}
	if err := bt.Delete(intKey(3), common.RID{Page: 3, Slot: 0}); err != nil {
		t.Fatalf("Delete 3: %v", err)
	}
	if err := bt.Validate(); err != nil {
		t.Fatalf("Validate after deletes: %v", err)
	}
	for _, missing := range []int32{1, 3} {
		if got := mustGet(t, bt, missing); len(got) != 0 {
			t.Fatalf("Get %d after delete returned %v, want none", missing, got)
		}
	}
	for i := int32(1); i <= 15; i++ {
		if i == 1 || i == 3 {
			continue
		}
		got, err := bt.Get(intKey(i))
		if err != nil || len(got) != 1 {
			t.Fatalf("Get %d after deletes: %v, %v", i, got, err)
		}
	}
}

func mustGet(t *testing.T, bt *BTree, key int32) []common.RID {
	t.Helper()
	got, err := bt.Get(intKey(key))
	if err != nil {
		t.Fatalf("Get %d: %v", key, err)
	}
	return got
}

// TestDeleteDownToEmpty removes every key and checks the tree empties out
// cleanly (root shrink to InvalidPageNum) per §4.4 step 6.
func TestDeleteDownToEmpty(t *testing.T) {
	_, bt := newTestTree(t, 4)
	defer bt.Close()
	var rids []common.RID
	for i := int32(1); i <= 20; i++ {
		rid := common.RID{Page: common.PageNum(i), Slot: 0}
		rids = append(rids, rid)
		bt.Insert(intKey(i), rid)
	}
	for i, rid := range rids {
		if err := bt.Delete(intKey(int32(i+1)), rid); err != nil {
			t.Fatalf("Delete %d: %v", i+1, err)
		}
		if err := bt.Validate(); err != nil {
			t.Fatalf("Validate after deleting %d: %v", i+1, err)
		}
	}
	if got, _ := bt.Get(intKey(1)); len(got) != 0 {
		t.Fatal("tree should be empty")
	}
}

// TestRangeScanExclusiveBounds inserts odd numbers 1..199 and scans the open
// range (11, 21), expecting exactly {13, 15, 17, 19} back in order.
func TestRangeScanExclusiveBounds(t *testing.T) {
	_, bt := newTestTree(t, 4)
	defer bt.Close()
	for i := int32(1); i <= 199; i += 2 {
		bt.Insert(intKey(i), common.RID{Page: common.PageNum(i), Slot: 0})
	}
	sc, err := bt.Open(intKey(11), false, intKey(21), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sc.Close()

	var got []int32
	for {
		uk, _, ok := sc.Next()
		if !ok {
			break
		}
		got = append(got, int32FromKey(uk))
	}
	want := []int32{13, 15, 17, 19}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func int32FromKey(k []byte) int32 {
	return int32(binary.LittleEndian.Uint32(k))
}

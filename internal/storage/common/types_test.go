package common

import (
	"errors"
	"testing"
)

func TestRID_Compare(t *testing.T) {
	cases := []struct {
		a, b RID
		want int
	}{
		{RID{1, 2}, RID{1, 2}, 0},
		{RID{1, 2}, RID{1, 3}, -1},
		{RID{1, 5}, RID{2, 0}, -1},
		{RID{2, 0}, RID{1, 5}, 1},
	}
	for _, c := range cases {
		if got := c.a.Compare(c.b); got != c.want {
			t.Errorf("%v.Compare(%v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestMinMaxRID(t *testing.T) {
	if MinRID.Compare(MaxRID) >= 0 {
		t.Fatal("MinRID must sort before MaxRID")
	}
	r := RID{Page: 7, Slot: 3}
	if MinRID.Compare(r) > 0 {
		t.Fatal("MinRID must sort at or before any real RID")
	}
	if MaxRID.Compare(r) < 0 {
		t.Fatal("MaxRID must sort at or after any real RID")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != SUCCESS {
		t.Fatal("nil error should report SUCCESS")
	}
	err := NewError("Get", RECORD_NOT_EXIST, nil)
	if CodeOf(err) != RECORD_NOT_EXIST {
		t.Fatalf("got %v, want RECORD_NOT_EXIST", CodeOf(err))
	}
	wrapped := errors.New("context: " + err.Error())
	if CodeOf(wrapped) != INTERNAL {
		t.Fatal("a non-StorageError should report INTERNAL")
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewError("AllocatePage", BUFFERPOOL_NOBUF, cause)
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should see through StorageError to its cause")
	}
}

package bufferpool

import (
	"path/filepath"
	"testing"

	"github.com/flowbase/reldb-storage/internal/storage/common"
)

func newTestBPM(t *testing.T, maxFrames int) *BufferPoolManager {
	t.Helper()
	return NewBufferPoolManager(Config{PageSize: 512, MaxFrames: maxFrames})
}

func TestCreateOpenClose(t *testing.T) {
	bpm := newTestBPM(t, 0)
	path := filepath.Join(t.TempDir(), "t.dat")
	if err := bpm.CreateFile(path); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fh, err := bpm.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if !bpm.IsLive(fh, 0) {
		t.Fatal("page 0 should be live right after create")
	}
	if err := bpm.CloseFile(fh); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
}

func TestOpenFileTwiceRejected(t *testing.T) {
	bpm := newTestBPM(t, 0)
	path := filepath.Join(t.TempDir(), "t.dat")
	if err := bpm.CreateFile(path); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fh, err := bpm.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer bpm.CloseFile(fh)

	_, err = bpm.OpenFile(path)
	if common.CodeOf(err) != common.BUFFERPOOL_OPEN_TWICE {
		t.Fatalf("expected BUFFERPOOL_OPEN_TWICE, got %v", err)
	}
}

func TestAllocateDisposeRoundTrip(t *testing.T) {
	bpm := newTestBPM(t, 0)
	path := filepath.Join(t.TempDir(), "t.dat")
	bpm.CreateFile(path)
	fh, _ := bpm.OpenFile(path)
	defer bpm.CloseFile(fh)

	frame, err := bpm.AllocatePage(fh)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	pn := frame.PageNum()
	if pn == common.InvalidPageNum {
		t.Fatal("allocated page must not be page 0")
	}
	copy(frame.Buf, []byte("hello"))
	frame.Dirty = true
	if err := bpm.UnpinPage(frame); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}

	got, err := bpm.GetThisPage(fh, pn)
	if err != nil {
		t.Fatalf("GetThisPage: %v", err)
	}
	if string(got.Buf[:5]) != "hello" {
		t.Fatalf("page content lost: %q", got.Buf[:5])
	}
	bpm.UnpinPage(got)

	if err := bpm.DisposePage(fh, pn); err != nil {
		t.Fatalf("DisposePage: %v", err)
	}
	if bpm.IsLive(fh, pn) {
		t.Fatal("page should no longer be live after DisposePage")
	}
}

func TestFlushSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.dat")
	bpm1 := newTestBPM(t, 0)
	bpm1.CreateFile(path)
	fh1, _ := bpm1.OpenFile(path)
	frame, _ := bpm1.AllocatePage(fh1)
	pn := frame.PageNum()
	copy(frame.Buf, []byte("persisted"))
	frame.Dirty = true
	bpm1.UnpinPage(frame)
	if err := bpm1.CloseFile(fh1); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}

	bpm2 := newTestBPM(t, 0)
	fh2, err := bpm2.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer bpm2.CloseFile(fh2)
	got, err := bpm2.GetThisPage(fh2, pn)
	if err != nil {
		t.Fatalf("GetThisPage after reopen: %v", err)
	}
	defer bpm2.UnpinPage(got)
	if string(got.Buf[:9]) != "persisted" {
		t.Fatalf("data did not survive close/reopen: %q", got.Buf[:9])
	}
	if !VerifyPageCRC(got.Buf) {
		t.Fatal("flushed page should carry a valid CRC trailer")
	}
}

func TestEvictionUnderPressure(t *testing.T) {
	bpm := newTestBPM(t, 3) // header + 2 data frames resident at once
	path := filepath.Join(t.TempDir(), "t.dat")
	bpm.CreateFile(path)
	fh, _ := bpm.OpenFile(path)
	defer bpm.CloseFile(fh)

	var pages []common.PageNum
	for i := 0; i < 5; i++ {
		frame, err := bpm.AllocatePage(fh)
		if err != nil {
			t.Fatalf("AllocatePage %d: %v", i, err)
		}
		copy(frame.Buf, []byte{byte(i)})
		frame.Dirty = true
		pages = append(pages, frame.PageNum())
		if err := bpm.UnpinPage(frame); err != nil {
			t.Fatalf("UnpinPage %d: %v", i, err)
		}
	}
	for i, pn := range pages {
		frame, err := bpm.GetThisPage(fh, pn)
		if err != nil {
			t.Fatalf("GetThisPage %d: %v", i, err)
		}
		if frame.Buf[0] != byte(i) {
			t.Fatalf("page %d lost its write across eviction: got %d", pn, frame.Buf[0])
		}
		bpm.UnpinPage(frame)
	}
}

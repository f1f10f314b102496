package diag

import (
	"path/filepath"
	"testing"

	"github.com/flowbase/reldb-storage/internal/storage/bufferpool"
)

func TestInspectFileHeaderPage(t *testing.T) {
	bpm := bufferpool.NewBufferPoolManager(bufferpool.Config{PageSize: 512})
	path := filepath.Join(t.TempDir(), "t.dat")
	if err := bpm.CreateFile(path); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fh, err := bpm.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := bpm.AllocatePage(fh); err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if err := bpm.CloseFile(fh); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}

	info, err := InspectPage(path, 0, 512, KindFileHeader)
	if err != nil {
		t.Fatalf("InspectPage: %v", err)
	}
	if !info.CRCValid {
		t.Fatal("file header page should carry a valid CRC after CloseFile flushes it")
	}
	if info.AllocatedPages != 2 {
		t.Fatalf("got allocated_pages=%d, want 2 (header + one allocated page)", info.AllocatedPages)
	}
}

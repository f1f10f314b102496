// Command storagebench exercises the buffer pool, record manager, B+Tree
// index, and transaction hook together against a scratch file set, timing
// each stage the way a catalog demo walks through a database's subsystems
// section by section.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/flowbase/reldb-storage/internal/storage/bufferpool"
	"github.com/flowbase/reldb-storage/internal/storage/common"
	"github.com/flowbase/reldb-storage/internal/storage/diag"
	"github.com/flowbase/reldb-storage/internal/storage/index"
	"github.com/flowbase/reldb-storage/internal/storage/table"
	"github.com/flowbase/reldb-storage/internal/storage/trx"
)

const rowCount = 20000

func main() {
	fmt.Println("=== Storage core benchmark ===")

	dir, err := os.MkdirTemp("", "storagebench_*")
	if err != nil {
		log.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	bpm := bufferpool.NewBufferPoolManager(bufferpool.Config{PageSize: bufferpool.DefaultPageSize, MaxFrames: 256})

	fmt.Println("\n1. Buffer pool: raw page allocate/write/flush...")
	start := time.Now()
	demoPath := filepath.Join(dir, "scratch.raw")
	if err := bpm.CreateFile(demoPath); err != nil {
		log.Fatalf("CreateFile: %v", err)
	}
	fh, err := bpm.OpenFile(demoPath)
	if err != nil {
		log.Fatalf("OpenFile: %v", err)
	}
	sched, err := bufferpool.NewCheckpointScheduler(bpm, fh, "@every 30s")
	if err != nil {
		log.Fatalf("NewCheckpointScheduler: %v", err)
	}
	sched.Start()
	for i := 0; i < 64; i++ {
		frame, err := bpm.AllocatePage(fh)
		if err != nil {
			log.Fatalf("AllocatePage %d: %v", i, err)
		}
		copy(frame.Buf, []byte(fmt.Sprintf("page-%d", i)))
		frame.Dirty = true
		bpm.UnpinPage(frame)
	}
	if err := bpm.FlushAll(fh); err != nil {
		log.Fatalf("FlushAll: %v", err)
	}
	sched.Stop()
	if err := bpm.CloseFile(fh); err != nil {
		log.Fatalf("CloseFile: %v", err)
	}
	fmt.Printf("   allocate+flush 64 pages: %s\n", time.Since(start))

	if info, err := diag.InspectPage(demoPath, 0, bufferpool.DefaultPageSize, diag.KindFileHeader); err != nil {
		log.Fatalf("InspectPage: %v", err)
	} else {
		fmt.Printf("   %s\n", info)
	}

	meta := table.Meta{
		TableID:   1,
		TableName: "people",
		Fields: []table.FieldMeta{
			{Name: "id", Type: table.FieldInt, Offset: 0, Len: 4, Visible: true},
			{Name: "name", Type: table.FieldChar, Offset: 4, Len: 32, Visible: true},
		},
		Indexes: []table.IndexMeta{{Name: "idx_id", Field: "id"}},
	}

	fmt.Println("\n2. Creating table with a secondary B+Tree index...")
	start = time.Now()
	tbl, err := table.Create(bpm, dir, meta)
	if err != nil {
		log.Fatalf("Create: %v", err)
	}
	fmt.Printf("   table.Create: %s\n", time.Since(start))

	hook := trx.NewHook()

	fmt.Printf("\n3. Inserting %d rows under one transaction...\n", rowCount)
	start = time.Now()
	tx := hook.Begin()
	rids := make([]common.RID, 0, rowCount)
	for i := 0; i < rowCount; i++ {
		rid, err := tbl.Insert(tx, [][]byte{
			index.EncodeInt(int32(i), 4),
			index.EncodeChar(fmt.Sprintf("row-%d", i), 32),
		})
		if err != nil {
			log.Fatalf("Insert %d: %v", i, err)
		}
		rids = append(rids, rid)
	}
	if err := tx.Commit(tbl); err != nil {
		log.Fatalf("Commit: %v", err)
	}
	elapsed := time.Since(start)
	fmt.Printf("   insert+commit: %s (%.0f rows/sec)\n", elapsed, float64(rowCount)/elapsed.Seconds())

	fmt.Println("\n4. Sampled point lookups by RID...")
	start = time.Now()
	reader := hook.Begin()
	for i := 0; i < len(rids); i += len(rids) / 20 {
		if _, err := tbl.Get(reader, rids[i]); err != nil {
			log.Fatalf("Get %d: %v", i, err)
		}
	}
	fmt.Printf("   sampled point lookups: %s\n", time.Since(start))

	fmt.Println("\n5. Full-table scan...")
	start = time.Now()
	sc := tbl.Scan(reader)
	n := 0
	for {
		if _, _, ok := sc.Next(); !ok {
			break
		}
		n++
	}
	sc.Close()
	fmt.Printf("   scanned %d rows in %s\n", n, time.Since(start))

	if err := tbl.Close(); err != nil {
		log.Fatalf("Close: %v", err)
	}
	fmt.Println("\nDone:", filepath.Join(dir, meta.TableName+".dat"))
}

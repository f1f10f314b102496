package bufferpool

import (
	"log"

	"github.com/robfig/cron/v3"
)

// CheckpointScheduler periodically flushes every dirty frame of a file on
// a cron schedule. It is the page-level analogue of a statement-level cron
// job runner: purely additive, the BufferPoolManager works identically
// with no scheduler attached.
type CheckpointScheduler struct {
	cron *cron.Cron
	bpm  *BufferPoolManager
	fh   *File
}

// NewCheckpointScheduler builds a scheduler that flushes fh's dirty frames
// according to spec (a standard 5-field cron expression). It does not
// start running until Start is called.
func NewCheckpointScheduler(bpm *BufferPoolManager, fh *File, spec string) (*CheckpointScheduler, error) {
	c := cron.New()
	s := &CheckpointScheduler{cron: c, bpm: bpm, fh: fh}
	_, err := c.AddFunc(spec, s.runCheckpoint)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CheckpointScheduler) runCheckpoint() {
	if err := s.bpm.FlushAll(s.fh); err != nil {
		log.Printf("checkpoint scheduler: flush failed: %v", err)
	}
}

// Start begins running the scheduled checkpoint in the background.
func (s *CheckpointScheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight checkpoint to finish.
func (s *CheckpointScheduler) Stop() { <-s.cron.Stop().Done() }

package navlog

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/navfusion/internal/monitoring"
	"github.com/banshee-data/navfusion/internal/navigation"
	"github.com/banshee-data/navfusion/internal/timeutil"
)

// DefaultBatchSize is the number of samples buffered before a flush.
const DefaultBatchSize = 50

// MaxPendingBatches bounds the backlog kept while writes fail. Beyond it the
// oldest batch is dropped.
const MaxPendingBatches = 20

// SnapshotSource is anything that can produce the current navigation state.
// *navigation.State satisfies it.
type SnapshotSource interface {
	Snapshot() navigation.Snapshot
}

// Recorder buffers navigation samples for one run and writes them in
// batches.
type Recorder struct {
	db        *DB
	runID     string
	batchSize int

	mu      sync.Mutex
	pending []Sample
	last    [2]uint64 // velocity and position cycle of the last recorded sample
	seen    bool
	written int
	dropped int
	errLog  *monitoring.Limiter
}

// NewRecorder returns a Recorder writing to runID. A batchSize below 1 uses
// DefaultBatchSize.
func NewRecorder(db *DB, runID string, batchSize int) *Recorder {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Recorder{
		db:        db,
		runID:     runID,
		batchSize: batchSize,
		errLog:    monitoring.NewLimiter(100),
	}
}

// RunID returns the run the recorder writes to.
func (r *Recorder) RunID() string { return r.runID }

// Record buffers snap unless neither task has advanced since the last
// recorded sample. It reports whether the sample was kept.
func (r *Recorder) Record(snap navigation.Snapshot) bool {
	r.mu.Lock()
	cycles := [2]uint64{snap.Velocity.Cycle, snap.Position.Cycle}
	if r.seen && cycles == r.last {
		r.mu.Unlock()
		return false
	}
	r.seen = true
	r.last = cycles
	r.pending = append(r.pending, SampleFromSnapshot(snap))
	if len(r.pending) > r.batchSize*MaxPendingBatches {
		r.pending = append(r.pending[:0], r.pending[r.batchSize:]...)
		r.dropped += r.batchSize
		r.errLog.Logf("[navlog] run %s backlog full, dropped %d samples so far", r.runID, r.dropped)
	}
	full := len(r.pending) >= r.batchSize
	r.mu.Unlock()

	if full {
		if err := r.Flush(); err != nil {
			r.errLog.Logf("[navlog] flush failed (%d occurrences): %v", r.errLog.Count(), err)
		}
	}
	return true
}

// Flush writes buffered samples. On failure the samples stay buffered, up
// to MaxPendingBatches batches.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil
	}
	if err := r.db.InsertSamples(r.runID, r.pending); err != nil {
		return err
	}
	r.written += len(r.pending)
	r.pending = r.pending[:0]
	return nil
}

// Written returns the number of samples committed so far.
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Dropped returns the number of samples discarded because the backlog was
// full.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Pending returns the number of buffered samples not yet written.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Run samples src every interval until ctx is cancelled, then flushes what
// is left.
func (r *Recorder) Run(ctx context.Context, src SnapshotSource, clock timeutil.Clock, interval time.Duration) error {
	monitoring.Logf("[navlog] recording run %s every %s", r.runID, interval)
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := r.Flush(); err != nil {
				monitoring.Logf("[navlog] final flush for run %s failed: %v", r.runID, err)
				return err
			}
			monitoring.Logf("[navlog] run %s stopped after %d samples", r.runID, r.Written())
			return ctx.Err()
		case <-ticker.C():
			r.Record(src.Snapshot())
		}
	}
}

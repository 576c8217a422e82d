package transfer

import (
	"sync"
	"time"
)

// Progress is a point-in-time snapshot of one running transfer.
type Progress struct {
	OpID        string
	FileName    string
	Direction   string
	ChunksDone  int
	TotalChunks int
	BytesDone   int64
	TotalBytes  int64
	StartTime   time.Time
	LastUpdate  time.Time
	Speed       float64 // bytes per second
}

// Percent returns the completed fraction of the transfer in percent.
func (p Progress) Percent() float64 {
	if p.TotalBytes <= 0 {
		if p.TotalChunks == 0 {
			return 100
		}
		return float64(p.ChunksDone) / float64(p.TotalChunks) * 100
	}
	return float64(p.BytesDone) / float64(p.TotalBytes) * 100
}

type progressEntry struct {
	mu       sync.Mutex
	progress Progress
}

// Tracker tracks cumulative chunk and byte counts for in-flight
// transfers, keyed by operation ID.
type Tracker struct {
	ops map[string]*progressEntry
	mu  sync.RWMutex
}

// NewTracker creates an empty progress tracker.
func NewTracker() *Tracker {
	return &Tracker{
		ops: make(map[string]*progressEntry),
	}
}

// Start begins tracking a new operation.
func (t *Tracker) Start(opID, fileName, direction string, totalChunks int, totalBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.ops[opID] = &progressEntry{
		progress: Progress{
			OpID:        opID,
			FileName:    fileName,
			Direction:   direction,
			TotalChunks: totalChunks,
			TotalBytes:  totalBytes,
			StartTime:   now,
			LastUpdate:  now,
		},
	}
}

// Add records chunks and bytes completed since the last call.
func (t *Tracker) Add(opID string, chunks int, bytes int64) {
	t.mu.RLock()
	entry, exists := t.ops[opID]
	t.mu.RUnlock()
	if !exists {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	entry.progress.ChunksDone += chunks
	entry.progress.BytesDone += bytes
	entry.progress.LastUpdate = now

	elapsed := now.Sub(entry.progress.StartTime).Seconds()
	if elapsed > 0 {
		entry.progress.Speed = float64(entry.progress.BytesDone) / elapsed
	}
}

// Snapshot returns a copy of the current progress for opID.
func (t *Tracker) Snapshot(opID string) (Progress, bool) {
	t.mu.RLock()
	entry, exists := t.ops[opID]
	t.mu.RUnlock()
	if !exists {
		return Progress{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.progress, true
}

// Active returns snapshots of every transfer still being tracked.
func (t *Tracker) Active() []Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Progress, 0, len(t.ops))
	for _, entry := range t.ops {
		entry.mu.Lock()
		out = append(out, entry.progress)
		entry.mu.Unlock()
	}
	return out
}

// Finish stops tracking an operation.
func (t *Tracker) Finish(opID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.ops, opID)
}

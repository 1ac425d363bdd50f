package scheduler

import (
	"sync"

	"github.com/erp/marketsync/internal/domain/integration"
)

// LaneVerdict tells a worker what to do with a job it pulled from the queue
type LaneVerdict int

const (
	// LaneRun means the worker now owns the key and runs the job
	LaneRun LaneVerdict = iota
	// LaneQueued means the job waits behind the running job of its key
	LaneQueued
	// LaneCoalesced means an identical job is already waiting; the new one is dropped
	LaneCoalesced
	// LaneFull means the key already has Depth jobs waiting
	LaneFull
)

// KeyLanes serializes jobs per (tenant, marketplace) key without parking workers.
// A busy key collects its jobs in a FIFO lane; the worker that owns the key drains
// that lane before releasing it, so other keys keep every other worker.
type KeyLanes struct {
	mu    sync.Mutex
	depth int
	lanes map[integration.Key][]*SyncJob
}

// NewKeyLanes creates lanes holding at most depth waiting jobs per key
func NewKeyLanes(depth int) *KeyLanes {
	return &KeyLanes{depth: depth, lanes: make(map[integration.Key][]*SyncJob)}
}

// Enter claims the key for job or queues it behind the current owner.
// For LaneCoalesced the waiting job that absorbs this one is returned.
func (l *KeyLanes) Enter(job *SyncJob) (LaneVerdict, *SyncJob) {
	l.mu.Lock()
	defer l.mu.Unlock()

	waiting, busy := l.lanes[job.Key]
	if !busy {
		l.lanes[job.Key] = nil
		return LaneRun, nil
	}
	for _, w := range waiting {
		if sameWork(w, job) {
			return LaneCoalesced, w
		}
	}
	if len(waiting) >= l.depth {
		return LaneFull, nil
	}
	l.lanes[job.Key] = append(waiting, job)
	return LaneQueued, nil
}

// Leave is called by the owner after a job finished. It hands back the next waiting
// job, which the caller now owns, or releases the key when the lane is empty.
func (l *KeyLanes) Leave(key integration.Key) *SyncJob {
	l.mu.Lock()
	defer l.mu.Unlock()

	waiting, busy := l.lanes[key]
	if !busy {
		return nil
	}
	if len(waiting) == 0 {
		delete(l.lanes, key)
		return nil
	}
	next := waiting[0]
	waiting[0] = nil
	l.lanes[key] = waiting[1:]
	return next
}

// Busy reports whether a job of the key is running
func (l *KeyLanes) Busy(key integration.Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.lanes[key]
	return busy
}

// Pending returns how many jobs wait behind the running one
func (l *KeyLanes) Pending(key integration.Key) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes[key])
}

// Full reports whether the key cannot take another waiting job
func (l *KeyLanes) Full(key integration.Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes[key]) >= l.depth
}

// sameWork matches jobs that would sync exactly the same thing
func sameWork(a, b *SyncJob) bool {
	return a.Resource == b.Resource && a.ExternalID == b.ExternalID && a.Since.Equal(b.Since)
}

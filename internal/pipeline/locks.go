package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// recordingLocks serializes pipeline work per recording. TryAcquire never
// blocks: a second concurrent advance for the same id is rejected so two
// workers cannot interleave transitions or double-write audit entries.
type recordingLocks struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
}

func newRecordingLocks() *recordingLocks {
	return &recordingLocks{held: make(map[uuid.UUID]bool)}
}

// TryAcquire takes the lock for id. Returns false if someone holds it.
func (l *recordingLocks) TryAcquire(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[id] {
		return false
	}
	l.held[id] = true
	return true
}

// Release frees the lock for id.
func (l *recordingLocks) Release(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, id)
}

package audit

import (
	"context"
	"sync"
)

// MemoryRecorder keeps entries in memory. Used for single-node deployments
// without a database and as the test double.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(_ context.Context, entry Entry) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = NewID()
	}
	r.entries = append(r.entries, entry)
	return entry.ID, nil
}

// Entries returns a copy of everything recorded so far, in append order.
func (r *MemoryRecorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

var _ Recorder = (*MemoryRecorder)(nil)

package audit

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory append-only repository for tests and the
// single-process deployment. Seq allocation and the append happen under one
// lock, so a reader never sees a later event without every earlier one.
type MemoryRepo struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Seq = int64(len(r.events)) + 1
	r.events = append(r.events, e)
	return e, nil
}

func (r *MemoryRepo) LastSeq(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.events)), nil
}

func (r *MemoryRepo) List(ctx context.Context, f Filter) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Seq is the slice index plus one
	start := int(f.AfterSeq)
	if start > len(r.events) {
		start = len(r.events)
	}
	out := make([]Event, 0)
	for _, e := range r.events[start:] {
		if !matches(e, f) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Events returns a copy of every stored event.
func (r *MemoryRepo) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

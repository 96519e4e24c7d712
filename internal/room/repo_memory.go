package room

import (
	"context"
	"sync"
)

type memEntry struct {
	mu   sync.RWMutex
	room Room
}

// MemoryRepo keeps rooms in process with one lock per room, so a long
// mutation on one room never blocks reads of another.
type MemoryRepo struct {
	mu    sync.RWMutex
	rooms map[string]*memEntry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rooms: map[string]*memEntry{}} }

func (m *MemoryRepo) entry(id string) (*memEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rooms[id]
	return e, ok
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (Room, error) {
	e, ok := m.entry(id)
	if !ok {
		return Room{}, ErrNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.room, nil
}

func (m *MemoryRepo) Create(ctx context.Context, r Room) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Status == "" {
		r.Status = StatusActive
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[r.ID]; ok {
		return ErrAlreadyExists
	}
	m.rooms[r.ID] = &memEntry{room: r}
	return nil
}

func (m *MemoryRepo) Update(ctx context.Context, id string, fn func(r *Room) error) (Room, error) {
	e, ok := m.entry(id)
	if !ok {
		return Room{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.room
	if err := fn(&next); err != nil {
		return e.room, err
	}
	e.room = next
	return next, nil
}

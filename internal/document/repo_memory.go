package document

import (
	"context"
	"sort"
	"sync"
)

type MemoryRepo struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{docs: map[string]Document{}} }

func (m *MemoryRepo) Get(ctx context.Context, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d, nil
}

func (m *MemoryRepo) Create(ctx context.Context, d Document) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Version == 0 {
		d.Version = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[d.ID]; ok {
		return ErrInvalidArgument
	}
	m.docs[d.ID] = d
	return nil
}

func (m *MemoryRepo) ListByRoom(ctx context.Context, roomID string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Document, 0)
	for _, d := range m.docs {
		if d.RoomID == roomID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FolderPath != out[j].FolderPath {
			return out[i].FolderPath < out[j].FolderPath
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

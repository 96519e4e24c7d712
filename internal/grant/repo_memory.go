package grant

import (
	"context"
	"sort"
	"sync"
	"time"

	"dataroom/internal/rbac"
)

// MemoryRepo is an in-memory Store.
type MemoryRepo struct {
	mu     sync.RWMutex
	grants map[string]Grant
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{grants: map[string]Grant{}} }

func (m *MemoryRepo) FindActiveGrant(ctx context.Context, roomID string, role rbac.Role, identity string, now time.Time) (Grant, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.grants {
		if g.Matches(roomID, role, identity) && g.Usable(now) {
			return g, true, nil
		}
	}
	return Grant{}, false, nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grants[id]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

func (m *MemoryRepo) Create(ctx context.Context, g Grant) error {
	if err := g.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grants[g.ID]; ok {
		return ErrInvalidArgument
	}
	m.grants[g.ID] = g
	return nil
}

func (m *MemoryRepo) ListByRoom(ctx context.Context, roomID string) ([]Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Grant, 0)
	for _, g := range m.grants {
		if g.RoomID == roomID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryRepo) Revoke(ctx context.Context, id string, now time.Time) (Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok {
		return Grant{}, ErrNotFound
	}
	if g.Status == StatusRevoked {
		return g, nil
	}
	at := now
	g.Status = StatusRevoked
	g.RevokedAt = &at
	m.grants[id] = g
	return g, nil
}

package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dataroom/internal/access"
	"dataroom/internal/audit"
	"dataroom/internal/clock"
	"dataroom/internal/document"
	"dataroom/internal/ids"
	"dataroom/internal/obs"
	"dataroom/internal/rbac"
	"dataroom/internal/room"
)

// Decider is the part of the access engine a viewer needs.
type Decider interface {
	DecideForSession(ctx context.Context, req access.Request, sessionID string) (access.Decision, error)
}

type Options struct {
	// Timeout is the inactivity window; zero means DefaultTimeout.
	Timeout time.Duration

	// Limiter caps open sessions per subject; nil disables the cap.
	Limiter SlotLimiter

	Clock   clock.Clock
	Log     *slog.Logger
	Metrics *obs.Metrics
}

// Manager opens sessions after an ALLOW and tracks them until they close.
type Manager struct {
	decider Decider
	docs    document.Repository
	rooms   room.Repository
	audit   access.Auditor

	timeout time.Duration
	limiter SlotLimiter
	clock   clock.Clock
	log     *slog.Logger
	metrics *obs.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(decider Decider, docs document.Repository, rooms room.Repository, auditor access.Auditor, opts Options) *Manager {
	m := &Manager{
		decider:  decider,
		docs:     docs,
		rooms:    rooms,
		audit:    auditor,
		timeout:  opts.Timeout,
		limiter:  opts.Limiter,
		clock:    opts.Clock,
		log:      opts.Log,
		metrics:  opts.Metrics,
		sessions: map[string]*Session{},
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// Open runs a VIEW decision and, only on ALLOW, returns an OPEN session on
// page 1 at DefaultZoom. A DENY returns the decision with ErrNotAllowed.
func (m *Manager) Open(ctx context.Context, subj access.Subject, roomID, documentID string) (*Session, access.Decision, error) {
	if documentID == "" {
		return nil, access.Decision{}, fmt.Errorf("%w: document_id required", access.ErrInvalidInput)
	}
	doc, err := m.docs.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return nil, access.Decision{}, fmt.Errorf("%w: unknown document %q: %w", access.ErrInvalidInput, documentID, err)
		}
		return nil, access.Decision{}, err
	}
	rm, err := m.rooms.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			return nil, access.Decision{}, fmt.Errorf("%w: unknown room %q: %w", access.ErrInvalidInput, roomID, err)
		}
		return nil, access.Decision{}, err
	}

	if m.limiter != nil {
		ok, err := m.limiter.Acquire(ctx, subj.Identity)
		if err != nil {
			return nil, access.Decision{}, fmt.Errorf("acquire session slot: %w", err)
		}
		if !ok {
			return nil, access.Decision{}, ErrSessionLimit
		}
	}

	id := ids.New()
	d, err := m.decider.DecideForSession(ctx, access.Request{
		Subject:    subj,
		RoomID:     roomID,
		Action:     rbac.ActionView,
		DocumentID: documentID,
	}, id)
	if err != nil || !d.Allowed() {
		m.releaseSlot(subj.Identity)
		if err != nil {
			return nil, d, err
		}
		return nil, d, ErrNotAllowed
	}

	role, _ := rbac.ParseRole(subj.Role)
	now := m.clock.Now().UTC()
	s := &Session{
		id:         id,
		roomID:     roomID,
		documentID: documentID,
		dealID:     rm.DealID,
		identity:   subj.Identity,
		role:       role,
		pageCount:  doc.PageCount,
		openedAt:   now,
		lastActive: now,
		state:      StateOpen,
		page:       1,
		zoom:       DefaultZoom,
		m:          m,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	s.mu.Lock()
	s.armTimerLocked()
	s.mu.Unlock()

	m.metrics.SessionOpened()
	m.log.Info("viewer session opened", "session_id", id, "room_id", roomID, "document_id", documentID, "subject", subj.Identity)
	return s, d, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// OpenCount is the number of sessions not yet closed.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every open session with VIEW_END.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range open {
		if err := s.Close(ctx); err != nil && !errors.Is(err, ErrSessionClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) releaseSlot(identity string) {
	if m.limiter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.limiter.Release(ctx, identity); err != nil {
		m.log.Error("release session slot failed", "subject", identity, "err", err)
	}
}

func (m *Manager) appendEvent(ctx context.Context, e audit.Event) (audit.Event, error) {
	if m.audit == nil {
		return audit.Event{}, fmt.Errorf("%w: audit log not configured", access.ErrStorageUnavailable)
	}
	out, err := m.audit.Append(ctx, e)
	if err != nil {
		m.metrics.AuditAppendFailed()
		return audit.Event{}, fmt.Errorf("%w: %w", access.ErrStorageUnavailable, err)
	}
	return out, nil
}

package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dataroom/internal/audit"
	"dataroom/internal/clock"
	"dataroom/internal/rbac"
)

// Session is one restricted-viewer context. Every interaction is audited
// before it changes state; a failed append leaves the state as it was.
type Session struct {
	id         string
	roomID     string
	documentID string
	dealID     string
	identity   string
	role       rbac.Role
	pageCount  int
	openedAt   time.Time

	m *Manager

	mu         sync.Mutex
	state      State
	page       int
	zoom       int
	fullscreen bool
	lastActive time.Time
	timer      clock.Timer
	gen        uint64
}

func (s *Session) ID() string { return s.id }

// Identity is the subject the session was opened for.
func (s *Session) Identity() string { return s.identity }

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:         s.id,
		RoomID:     s.roomID,
		DocumentID: s.documentID,
		State:      s.state,
		Page:       s.page,
		PageCount:  s.pageCount,
		Zoom:       s.zoom,
		Fullscreen: s.fullscreen,
		Watermark:  Watermark(s.identity, s.dealID, s.m.clock.Now()),
		OpenedAt:   s.openedAt,
		LastActive: s.lastActive,
	}
}

// Interact applies one viewer interaction. Page and zoom are clamped at
// their bounds, never rejected. Print and download are recorded as blocked
// attempts for every role.
func (s *Session) Interact(ctx context.Context, kind Interaction) (Snapshot, error) {
	if _, err := ParseInteraction(string(kind)); err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return s.snapshotLocked(), ErrSessionClosed
	}

	page, zoom, fullscreen := s.page, s.zoom, s.fullscreen
	switch kind {
	case PageNext:
		page = clamp(page+1, 1, s.pageCount)
	case PagePrev:
		page = clamp(page-1, 1, s.pageCount)
	case ZoomIn:
		zoom = clamp(zoom+ZoomStep, MinZoom, MaxZoom)
	case ZoomOut:
		zoom = clamp(zoom-ZoomStep, MinZoom, MaxZoom)
	case Fullscreen:
		fullscreen = !fullscreen
	}

	ev := s.event(kind.auditAction(), map[string]any{"page": page, "zoom": zoom, "fullscreen": fullscreen})
	if kind.exportAttempt() {
		ev.Outcome = audit.OutcomeDenied
		ev.ReasonCode = audit.ReasonExportBlocked
	}
	if _, err := s.m.appendEvent(ctx, ev); err != nil {
		return s.snapshotLocked(), err
	}

	s.page, s.zoom, s.fullscreen = page, zoom, fullscreen
	s.lastActive = s.m.clock.Now().UTC()
	s.armTimerLocked()
	s.m.metrics.ObserveInteraction(string(kind))
	return s.snapshotLocked(), nil
}

// Close ends the session with VIEW_END. If the event cannot be recorded the
// session stays open and the error is returned; the inactivity timeout will
// still close it.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return ErrSessionClosed
	}
	if _, err := s.m.appendEvent(ctx, s.event(audit.ActionViewEnd, s.positionMeta())); err != nil {
		return err
	}
	s.closeLocked("closed")
	return nil
}

// armTimerLocked (re)starts the inactivity timer. The generation guards
// against a timer that fired while an interaction held the lock.
func (s *Session) armTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.m.clock.AfterFunc(s.m.timeout, func() { s.expire(gen) })
}

func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen || s.gen != gen {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	meta := s.positionMeta()
	if _, err := s.m.appendEvent(ctx, s.event(audit.ActionSessionTimeout, meta)); err != nil {
		// the session closes regardless; losing access is the safe side
		s.m.log.Error("session timeout not audited", "session_id", s.id, "room_id", s.roomID, "err", err)
	}
	s.closeLocked("timeout")
}

func (s *Session) closeLocked(cause string) {
	s.state = StateClosed
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.m.forget(s.id)
	s.m.releaseSlot(s.identity)
	s.m.metrics.SessionClosed(cause)
	s.m.log.Info("viewer session closed", "session_id", s.id, "room_id", s.roomID, "cause", cause)
}

func (s *Session) positionMeta() map[string]any {
	return map[string]any{"page": s.page, "zoom": s.zoom, "fullscreen": s.fullscreen}
}

func (s *Session) event(a audit.Action, meta map[string]any) audit.Event {
	var m string
	if b, err := json.Marshal(meta); err == nil {
		m = string(b)
	}
	return audit.Event{
		RoomID:          s.roomID,
		SubjectIdentity: s.identity,
		SubjectRole:     string(s.role),
		Action:          a,
		DocumentID:      s.documentID,
		SessionID:       s.id,
		Outcome:         audit.OutcomeAllowed,
		Metadata:        m,
	}
}

// Watermark is the overlay text shown over every page.
func Watermark(identity, dealID string, at time.Time) string {
	return fmt.Sprintf("Viewed by %s • %s • %s", identity, dealID, at.UTC().Format("2006-01-02 15:04 UTC"))
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"dataroom/internal/clock"
	"dataroom/internal/ids"
)

// Repository is the persistence contract for audit events.
//
// It is append-only: there are no Update/Delete methods. Append assigns Seq
// atomically and returns the stored event.
type Repository interface {
	Append(ctx context.Context, e Event) (Event, error)
	LastSeq(ctx context.Context) (int64, error)
	List(ctx context.Context, f Filter) ([]Event, error)
}

var (
	ErrInvalidEvent       = errors.New("audit: invalid event")
	ErrInvalidFilter      = errors.New("audit: invalid filter")
	ErrStorageUnavailable = errors.New("audit: storage unavailable")
)

// Log is the single writer in front of a Repository.
//
// Append holds one lock while stamping time, id and sequence so that Seq
// order, OccurredAt order and visibility order agree within the process.
type Log struct {
	repo  Repository
	clock clock.Clock
	log   *slog.Logger

	mu sync.Mutex
}

func NewLog(repo Repository, clk clock.Clock, log *slog.Logger) *Log {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Log{repo: repo, clock: clk, log: log}
}

// Append stamps and persists e. Callers must treat a non-nil error as
// "the event was not recorded".
func (l *Log) Append(ctx context.Context, e Event) (Event, error) {
	if l.repo == nil {
		return Event{}, fmt.Errorf("%w: repository not configured", ErrStorageUnavailable)
	}
	if e.RoomID == "" || !e.Action.Valid() || !e.Outcome.Valid() {
		return Event{}, ErrInvalidEvent
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e.Seq = 0
	e.OccurredAt = l.clock.Now().UTC()
	e.ID = ids.NewEventID(e.OccurredAt)

	stored, err := l.repo.Append(ctx, e)
	if err != nil {
		l.log.Error("audit append failed",
			"room_id", e.RoomID,
			"action", string(e.Action),
			"outcome", string(e.Outcome),
			"err", err,
		)
		return Event{}, err
	}
	return stored, nil
}

// Query returns events in ascending Seq order.
func (l *Log) Query(ctx context.Context, f Filter) (Page, error) {
	if l.repo == nil {
		return Page{}, fmt.Errorf("%w: repository not configured", ErrStorageUnavailable)
	}
	if f.Limit < 0 || f.AfterSeq < 0 {
		return Page{}, ErrInvalidFilter
	}
	if f.Action != "" && !f.Action.Valid() {
		return Page{}, ErrInvalidFilter
	}
	if f.Outcome != "" && !f.Outcome.Valid() {
		return Page{}, ErrInvalidFilter
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.To.After(f.From) {
		return Page{}, ErrInvalidFilter
	}

	limit := f.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	// one extra row tells us whether another page exists
	f.Limit = limit + 1
	rows, err := l.repo.List(ctx, f)
	if err != nil {
		return Page{}, err
	}

	out := Page{Events: rows}
	if len(rows) > limit {
		out.Events = rows[:limit]
		out.HasMore = true
		out.NextAfterSeq = out.Events[limit-1].Seq
	}
	if out.Events == nil {
		out.Events = []Event{}
	}
	return out, nil
}

func matches(e Event, f Filter) bool {
	if e.Seq <= f.AfterSeq {
		return false
	}
	if f.RoomID != "" && e.RoomID != f.RoomID {
		return false
	}
	if f.SubjectIdentity != "" && e.SubjectIdentity != f.SubjectIdentity {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if !f.From.IsZero() && e.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.OccurredAt.Before(f.To) {
		return false
	}
	return true
}

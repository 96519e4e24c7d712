package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dataroom/internal/clock"
)

func newTestLog(repo Repository) (*Log, *clock.FakeClock) {
	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return NewLog(repo, clk, nil), clk
}

func TestLog_AppendRequiresRoomActionOutcome(t *testing.T) {
	l, _ := newTestLog(NewMemoryRepo())
	ctx := context.Background()

	if _, err := l.Append(ctx, Event{Action: ActionViewStart, Outcome: OutcomeAllowed}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent without room, got %v", err)
	}
	if _, err := l.Append(ctx, Event{RoomID: "r", Action: "NOPE", Outcome: OutcomeAllowed}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent for unknown action, got %v", err)
	}
	if _, err := l.Append(ctx, Event{RoomID: "r", Action: ActionViewStart}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent without outcome, got %v", err)
	}
}

func TestLog_AppendStampsSeqIDAndTime(t *testing.T) {
	repo := NewMemoryRepo()
	l, clk := newTestLog(repo)
	ctx := context.Background()

	first, err := l.Append(ctx, Event{RoomID: "r", SubjectIdentity: "a@x.com", SubjectRole: "ISSUER", Action: ActionViewStart, Outcome: OutcomeAllowed, Seq: 99})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	clk.Advance(time.Second)
	second, err := l.Append(ctx, Event{RoomID: "r", Action: ActionViewEnd, Outcome: OutcomeAllowed})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("expected seq 1,2 got %d,%d", first.Seq, second.Seq)
	}
	if first.ID == "" || first.ID >= second.ID {
		t.Fatalf("expected increasing event ids, got %q then %q", first.ID, second.ID)
	}
	if !second.OccurredAt.After(first.OccurredAt) {
		t.Fatalf("expected occurred_at to follow the clock")
	}
}

func TestLog_ConcurrentAppendsAreTotallyOrdered(t *testing.T) {
	repo := NewMemoryRepo()
	l := NewLog(repo, nil, nil)
	ctx := context.Background()

	const writers = 16
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := l.Append(ctx, Event{RoomID: "r", Action: ActionPageNext, Outcome: OutcomeAllowed}); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	evs := repo.Events()
	if len(evs) != writers*perWriter {
		t.Fatalf("expected %d events, got %d", writers*perWriter, len(evs))
	}
	seen := map[string]bool{}
	for i, e := range evs {
		if e.Seq != int64(i+1) {
			t.Fatalf("expected seq %d at position %d, got %d", i+1, i, e.Seq)
		}
		if seen[e.ID] {
			t.Fatalf("duplicate event id %q", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestLog_QueryFiltersAndPaginates(t *testing.T) {
	repo := NewMemoryRepo()
	l, _ := newTestLog(repo)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = l.Append(ctx, Event{RoomID: "r1", SubjectIdentity: "a@x.com", Action: ActionPageNext, Outcome: OutcomeAllowed})
		_, _ = l.Append(ctx, Event{RoomID: "r2", SubjectIdentity: "b@x.com", Action: ActionDeniedNoGrant, Outcome: OutcomeDenied, ReasonCode: ReasonNoActiveGrant})
	}

	p, err := l.Query(ctx, Filter{RoomID: "r1", Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(p.Events) != 2 || !p.HasMore {
		t.Fatalf("expected 2 events with more, got %d more=%v", len(p.Events), p.HasMore)
	}
	if p.Events[0].Seq >= p.Events[1].Seq {
		t.Fatalf("expected ascending seq")
	}

	var all []Event
	after := int64(0)
	for {
		p, err := l.Query(ctx, Filter{RoomID: "r1", AfterSeq: after, Limit: 2})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		all = append(all, p.Events...)
		if !p.HasMore {
			break
		}
		after = p.NextAfterSeq
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 r1 events across pages, got %d", len(all))
	}
	for _, e := range all {
		if e.RoomID != "r1" {
			t.Fatalf("room filter leaked %q", e.RoomID)
		}
	}

	denied, err := l.Query(ctx, Filter{Outcome: OutcomeDenied})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(denied.Events) != 5 || denied.HasMore {
		t.Fatalf("expected 5 denied events, got %d", len(denied.Events))
	}
}

func TestLog_QueryRejectsBadFilter(t *testing.T) {
	l, _ := newTestLog(NewMemoryRepo())
	ctx := context.Background()
	now := time.Now()

	bad := []Filter{
		{Limit: -1},
		{AfterSeq: -5},
		{Action: "BOGUS"},
		{Outcome: "MAYBE"},
		{From: now, To: now.Add(-time.Minute)},
	}
	for i, f := range bad {
		if _, err := l.Query(ctx, f); !errors.Is(err, ErrInvalidFilter) {
			t.Fatalf("case %d: expected ErrInvalidFilter, got %v", i, err)
		}
	}
}

type failingRepo struct {
	MemoryRepo
	failures int
	calls    int
}

func (r *failingRepo) Append(ctx context.Context, e Event) (Event, error) {
	r.calls++
	if r.calls <= r.failures {
		return Event{}, ErrStorageUnavailable
	}
	return r.MemoryRepo.Append(ctx, e)
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryingRepository_RecoversWithinBudget(t *testing.T) {
	inner := &failingRepo{failures: 2}
	r := NewRetryingRepository(inner, RetryPolicy{Attempts: 3})
	r.Sleep = noSleep

	e, err := r.Append(context.Background(), Event{RoomID: "r", Action: ActionViewStart, Outcome: OutcomeAllowed})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if e.Seq != 1 || inner.calls != 3 {
		t.Fatalf("expected seq 1 after 3 calls, got seq=%d calls=%d", e.Seq, inner.calls)
	}
}

func TestRetryingRepository_GivesUpAfterAttempts(t *testing.T) {
	inner := &failingRepo{failures: 10}
	r := NewRetryingRepository(inner, RetryPolicy{Attempts: 3})
	var delays []time.Duration
	r.Sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := r.Append(context.Background(), Event{RoomID: "r", Action: ActionViewStart, Outcome: OutcomeAllowed})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
	if len(delays) != 2 || delays[0] != 20*time.Millisecond || delays[1] != 40*time.Millisecond {
		t.Fatalf("unexpected backoff delays: %v", delays)
	}
}

func TestRetryPolicy_DelayIsCapped(t *testing.T) {
	p := RetryPolicy{Attempts: 10}.withDefaults()
	if d := p.delay(8); d != 500*time.Millisecond {
		t.Fatalf("expected capped delay, got %v", d)
	}
}

type brokenRepo struct{ MemoryRepo }

func (*brokenRepo) Append(context.Context, Event) (Event, error) {
	return Event{}, errors.New("constraint violation")
}

func TestRetryingRepository_DoesNotRetryOtherErrors(t *testing.T) {
	r := NewRetryingRepository(&brokenRepo{}, RetryPolicy{})
	calls := 0
	r.Sleep = func(context.Context, time.Duration) error { calls++; return nil }
	if _, err := r.Append(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 0 {
		t.Fatalf("expected no backoff for non-retryable error")
	}
}

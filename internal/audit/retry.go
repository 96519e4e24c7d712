package audit

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy is bounded exponential backoff.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	out := p
	if out.Attempts <= 0 {
		out.Attempts = 3
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = 20 * time.Millisecond
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 500 * time.Millisecond
	}
	return out
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d <= 0 || d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// RetryingRepository retries ErrStorageUnavailable at the storage boundary.
// Other errors and context cancellation return immediately.
type RetryingRepository struct {
	Inner  Repository
	Policy RetryPolicy

	// Sleep waits d or until ctx is done. Nil uses a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryingRepository(inner Repository, p RetryPolicy) *RetryingRepository {
	return &RetryingRepository{Inner: inner, Policy: p.withDefaults()}
}

func (r *RetryingRepository) Append(ctx context.Context, e Event) (Event, error) {
	var out Event
	err := r.do(ctx, func() error {
		var err error
		out, err = r.Inner.Append(ctx, e)
		return err
	})
	return out, err
}

func (r *RetryingRepository) LastSeq(ctx context.Context) (int64, error) {
	var out int64
	err := r.do(ctx, func() error {
		var err error
		out, err = r.Inner.LastSeq(ctx)
		return err
	})
	return out, err
}

func (r *RetryingRepository) List(ctx context.Context, f Filter) ([]Event, error) {
	var out []Event
	err := r.do(ctx, func() error {
		var err error
		out, err = r.Inner.List(ctx, f)
		return err
	})
	return out, err
}

func (r *RetryingRepository) do(ctx context.Context, fn func() error) error {
	p := r.Policy.withDefaults()
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, ErrStorageUnavailable) {
			return err
		}
		if attempt == p.Attempts-1 {
			break
		}
		if serr := sleep(ctx, p.delay(attempt)); serr != nil {
			return err
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

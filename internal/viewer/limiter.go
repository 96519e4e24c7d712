package viewer

import (
	"context"
	"strings"
	"sync"
	"time"

	"dataroom/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// SlotLimiter caps concurrently open sessions per subject.
type SlotLimiter interface {
	Acquire(ctx context.Context, subject string) (bool, error)
	Release(ctx context.Context, subject string) error
}

func slotKey(subject string) string {
	return "dataroom:viewer:sessions:" + strings.ToLower(strings.TrimSpace(subject))
}

// MemoryLimiter is a single-process SlotLimiter.
type MemoryLimiter struct {
	limit int

	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryLimiter(limit int) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, counts: map[string]int{}}
}

func (l *MemoryLimiter) Acquire(ctx context.Context, subject string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := slotKey(subject)
	if l.counts[k] >= l.limit {
		return false, nil
	}
	l.counts[k]++
	return true, nil
}

func (l *MemoryLimiter) Release(ctx context.Context, subject string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := slotKey(subject)
	if l.counts[k] <= 1 {
		delete(l.counts, k)
		return nil
	}
	l.counts[k]--
	return nil
}

// RedisLimiter shares the cap across API replicas. The TTL bounds slots
// leaked by a crashed process.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisLimiter {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl}
}

func (l *RedisLimiter) Acquire(ctx context.Context, subject string) (bool, error) {
	return utils.AcquireSlot(ctx, l.rdb, slotKey(subject), l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context, subject string) error {
	return utils.ReleaseSlot(ctx, l.rdb, slotKey(subject))
}

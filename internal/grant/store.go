package grant

import (
	"context"
	"time"

	"dataroom/internal/rbac"
)

// Store holds per-subject grants.
//
// FindActiveGrant returns (Grant{}, false, nil) when no usable grant exists.
// Revoke fails with ErrNotFound for an unknown id and is otherwise idempotent.
type Store interface {
	FindActiveGrant(ctx context.Context, roomID string, role rbac.Role, identity string, now time.Time) (Grant, bool, error)
	Get(ctx context.Context, id string) (Grant, error)
	Create(ctx context.Context, g Grant) error
	ListByRoom(ctx context.Context, roomID string) ([]Grant, error)
	Revoke(ctx context.Context, id string, now time.Time) (Grant, error)
}

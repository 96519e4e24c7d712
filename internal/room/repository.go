package room

import "context"

// Repository persists rooms.
//
// Update applies fn to a private copy of the room while holding that room's
// write lock, and stores the copy only if fn returns nil. Concurrent readers
// see either the pre- or the post-mutation room, never a mix.
type Repository interface {
	Get(ctx context.Context, id string) (Room, error)
	Create(ctx context.Context, r Room) error
	Update(ctx context.Context, id string, fn func(r *Room) error) (Room, error)
}

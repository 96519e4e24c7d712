package document

import (
	"context"
	"errors"
	"time"
)

// Document is metadata only; file bytes live with the storage collaborator.
type Document struct {
	ID         string `json:"document_id" db:"id"`
	RoomID     string `json:"room_id" db:"room_id"`
	FolderPath string `json:"folder_path" db:"folder_path"`
	Name       string `json:"name" db:"name"`
	PageCount  int    `json:"page_count" db:"page_count"`

	// Version increments on replace; ID is preserved.
	Version int `json:"version" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

var (
	ErrNotFound        = errors.New("document: not found")
	ErrInvalidArgument = errors.New("document: invalid argument")
)

func (d Document) Validate() error {
	if d.ID == "" || d.RoomID == "" || d.Name == "" {
		return ErrInvalidArgument
	}
	if d.PageCount < 1 {
		return ErrInvalidArgument
	}
	return nil
}

type Repository interface {
	Get(ctx context.Context, id string) (Document, error)
	Create(ctx context.Context, d Document) error
	ListByRoom(ctx context.Context, roomID string) ([]Document, error)
}

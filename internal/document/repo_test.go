package document

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepo_CreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	require.NoError(t, repo.Create(ctx, Document{ID: "d2", RoomID: "room-1", FolderPath: "/Financials", Name: "Model.xlsx", PageCount: 4}))
	require.NoError(t, repo.Create(ctx, Document{ID: "d1", RoomID: "room-1", FolderPath: "/Legal", Name: "Indenture.pdf", PageCount: 120}))
	require.NoError(t, repo.Create(ctx, Document{ID: "d3", RoomID: "room-2", FolderPath: "/", Name: "Teaser.pdf", PageCount: 2}))

	assert.ErrorIs(t, repo.Create(ctx, Document{ID: "bad", RoomID: "room-1", Name: "x", PageCount: 0}), ErrInvalidArgument)

	d, err := repo.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Version)

	docs, err := repo.ListByRoom(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d2", docs[0].ID)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "room_id", "folder_path", "name", "page_count", "version", "created_at"}
	mock.ExpectQuery(`FROM room_documents WHERE id = \$1`).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("d1", "room-1", "/Legal", "Indenture.pdf", 120, 2, time.Now()))
	mock.ExpectQuery(`FROM room_documents WHERE id = \$1`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(cols))

	repo := NewPostgresRepo(db)
	d, err := repo.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 120, d.PageCount)
	assert.Equal(t, 2, d.Version)

	_, err = repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package document

import (
	"context"
	"database/sql"
	"errors"
)

// NOTE: This repository assumes the following table exists:
// - room_documents (id text primary key, room_id text references data_rooms(id))
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const docColumns = `id, room_id, folder_path, name, page_count, version, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var d Document
	if err := row.Scan(&d.ID, &d.RoomID, &d.FolderPath, &d.Name, &d.PageCount, &d.Version, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return d, nil
}

func (p *PostgresRepo) Get(ctx context.Context, id string) (Document, error) {
	return scanDocument(p.db.QueryRowContext(ctx, `SELECT `+docColumns+` FROM room_documents WHERE id = $1`, id))
}

func (p *PostgresRepo) Create(ctx context.Context, d Document) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Version == 0 {
		d.Version = 1
	}
	const q = `
INSERT INTO room_documents (id, room_id, folder_path, name, page_count, version, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := p.db.ExecContext(ctx, q, d.ID, d.RoomID, d.FolderPath, d.Name, d.PageCount, d.Version, d.CreatedAt)
	return err
}

func (p *PostgresRepo) ListByRoom(ctx context.Context, roomID string) ([]Document, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+docColumns+` FROM room_documents WHERE room_id = $1 ORDER BY folder_path, name`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

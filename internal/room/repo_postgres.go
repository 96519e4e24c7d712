package room

import (
	"context"
	"database/sql"
	"errors"

	"dataroom/pkg/utils"
)

// NOTE: This repository assumes the following table exists:
// - data_rooms (id text primary key, never deleted)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const selectRoom = `
SELECT id, deal_id, issuer_org, status, expires_at, soft_delete_grace_days,
       legal_hold, external_sharing_enabled, created_at, updated_at
FROM data_rooms
WHERE id = $1
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (Room, error) {
	var (
		r      Room
		status string
	)
	if err := row.Scan(
		&r.ID,
		&r.DealID,
		&r.IssuerOrg,
		&status,
		&r.ExpiresAt,
		&r.SoftDeleteGraceDays,
		&r.LegalHold,
		&r.ExternalSharingEnabled,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, ErrNotFound
		}
		return Room{}, err
	}
	r.Status = Status(status)
	return r, nil
}

func (p *PostgresRepo) Get(ctx context.Context, id string) (Room, error) {
	return scanRoom(p.db.QueryRowContext(ctx, selectRoom, id))
}

func (p *PostgresRepo) Create(ctx context.Context, r Room) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Status == "" {
		r.Status = StatusActive
	}
	const q = `
INSERT INTO data_rooms (
  id, deal_id, issuer_org, status, expires_at, soft_delete_grace_days,
  legal_hold, external_sharing_enabled, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING
`
	res, err := p.db.ExecContext(ctx, q,
		r.ID,
		r.DealID,
		r.IssuerOrg,
		string(r.Status),
		r.ExpiresAt,
		r.SoftDeleteGraceDays,
		r.LegalHold,
		r.ExternalSharingEnabled,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Update locks the row FOR UPDATE for the duration of fn.
func (p *PostgresRepo) Update(ctx context.Context, id string, fn func(r *Room) error) (Room, error) {
	var out Room
	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		cur, err := scanRoom(tx.QueryRowContext(ctx, selectRoom+"FOR UPDATE\n", id))
		if err != nil {
			return err
		}
		out = cur

		next := cur
		if err := fn(&next); err != nil {
			return err
		}

		const q = `
UPDATE data_rooms
SET status = $2, legal_hold = $3, external_sharing_enabled = $4, updated_at = $5
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, q, id, string(next.Status), next.LegalHold, next.ExternalSharingEnabled, next.UpdatedAt); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

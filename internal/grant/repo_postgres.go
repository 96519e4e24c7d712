package grant

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dataroom/internal/rbac"
	"dataroom/pkg/utils"
)

// NOTE: This repository assumes the following table exists:
// - room_grants (id text primary key, room_id text references data_rooms(id))
// with an index on (room_id, subject_role, lower(subject_identity)).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const grantColumns = `id, room_id, subject_role, subject_identity, party_type, permission,
       expires_on, status, created_by, created_at, revoked_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (Grant, error) {
	var (
		g         Grant
		role      string
		party     string
		perm      string
		status    string
		revokedAt sql.NullTime
	)
	if err := row.Scan(
		&g.ID,
		&g.RoomID,
		&role,
		&g.SubjectIdentity,
		&party,
		&perm,
		&g.ExpiresOn,
		&status,
		&g.CreatedBy,
		&g.CreatedAt,
		&revokedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Grant{}, ErrNotFound
		}
		return Grant{}, err
	}
	g.SubjectRole = rbac.Role(role)
	g.PartyType = PartyType(party)
	g.Permission = Permission(perm)
	g.Status = Status(status)
	if revokedAt.Valid {
		t := revokedAt.Time
		g.RevokedAt = &t
	}
	return g, nil
}

func (p *PostgresRepo) FindActiveGrant(ctx context.Context, roomID string, role rbac.Role, identity string, now time.Time) (Grant, bool, error) {
	const q = `
SELECT ` + grantColumns + `
FROM room_grants
WHERE room_id = $1
  AND subject_role = $2
  AND ($3 = '' OR lower(subject_identity) = lower($3))
  AND status = 'ACTIVE'
  AND expires_on >= $4
ORDER BY expires_on DESC
LIMIT 1
`
	g, err := scanGrant(p.db.QueryRowContext(ctx, q, roomID, string(role), identity, now))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Grant{}, false, nil
		}
		return Grant{}, false, err
	}
	return g, true, nil
}

func (p *PostgresRepo) Get(ctx context.Context, id string) (Grant, error) {
	return scanGrant(p.db.QueryRowContext(ctx, `SELECT `+grantColumns+` FROM room_grants WHERE id = $1`, id))
}

func (p *PostgresRepo) Create(ctx context.Context, g Grant) error {
	if err := g.Validate(); err != nil {
		return err
	}
	const q = `
INSERT INTO room_grants (
  id, room_id, subject_role, subject_identity, party_type, permission,
  expires_on, status, created_by, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	_, err := p.db.ExecContext(ctx, q,
		g.ID,
		g.RoomID,
		string(g.SubjectRole),
		g.SubjectIdentity,
		string(g.PartyType),
		string(g.Permission),
		g.ExpiresOn,
		string(g.Status),
		g.CreatedBy,
		g.CreatedAt,
	)
	return err
}

func (p *PostgresRepo) ListByRoom(ctx context.Context, roomID string) ([]Grant, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+grantColumns+` FROM room_grants WHERE room_id = $1 ORDER BY created_at, id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Grant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Revoke keeps the first revocation timestamp on repeated calls.
func (p *PostgresRepo) Revoke(ctx context.Context, id string, now time.Time) (Grant, error) {
	var out Grant
	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		g, err := scanGrant(tx.QueryRowContext(ctx, `SELECT `+grantColumns+` FROM room_grants WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if g.Status == StatusRevoked {
			out = g
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE room_grants SET status = 'REVOKED', revoked_at = $2 WHERE id = $1`, id, now); err != nil {
			return err
		}
		at := now
		g.Status = StatusRevoked
		g.RevokedAt = &at
		out = g
		return nil
	})
	return out, err
}

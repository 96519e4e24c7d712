package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dataroom/pkg/utils"
)

// auditSeqLockKey serialises seq allocation across every process sharing the database.
const auditSeqLockKey = 7_424_001

// NOTE: This repository assumes the following table exists:
//
//	CREATE TABLE audit_events (
//	  seq              bigint PRIMARY KEY,
//	  id               text NOT NULL UNIQUE,
//	  occurred_at      timestamptz NOT NULL,
//	  room_id          text NOT NULL,
//	  subject_identity text NOT NULL,
//	  subject_role     text NOT NULL,
//	  action           text NOT NULL,
//	  document_id      text,
//	  session_id       text,
//	  outcome          text NOT NULL,
//	  reason_code      text,
//	  reason_detail    text,
//	  metadata         jsonb
//	);
//
// with UPDATE/DELETE revoked from the application role.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) (Event, error) {
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// Held until commit, so the next writer only reads max(seq) after this row is visible.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, auditSeqLockKey); err != nil {
			return err
		}

		var last int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM audit_events`).Scan(&last); err != nil {
			return err
		}
		e.Seq = last + 1

		const q = `
INSERT INTO audit_events (
  seq, id, occurred_at, room_id, subject_identity, subject_role, action,
  document_id, session_id, outcome, reason_code, reason_detail, metadata
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),NULLIF($9,''),$10,NULLIF($11,''),NULLIF($12,''),NULLIF($13,'')::jsonb
)
`
		_, err := tx.ExecContext(ctx, q,
			e.Seq,
			e.ID,
			e.OccurredAt,
			e.RoomID,
			e.SubjectIdentity,
			e.SubjectRole,
			string(e.Action),
			e.DocumentID,
			e.SessionID,
			string(e.Outcome),
			string(e.ReasonCode),
			e.ReasonDetail,
			e.Metadata,
		)
		return err
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: append: %v", ErrStorageUnavailable, err)
	}
	return e, nil
}

func (r *PostgresRepo) LastSeq(ctx context.Context) (int64, error) {
	var last int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM audit_events`).Scan(&last); err != nil {
		return 0, fmt.Errorf("%w: last seq: %v", ErrStorageUnavailable, err)
	}
	return last, nil
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Event, error) {
	q, args := buildListQuery(f)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e       Event
			action  string
			outcome string
			reason  string
		)
		if err := rows.Scan(
			&e.Seq,
			&e.ID,
			&e.OccurredAt,
			&e.RoomID,
			&e.SubjectIdentity,
			&e.SubjectRole,
			&action,
			&e.DocumentID,
			&e.SessionID,
			&outcome,
			&reason,
			&e.ReasonDetail,
			&e.Metadata,
		); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrStorageUnavailable, err)
		}
		e.Action = Action(action)
		e.Outcome = Outcome(outcome)
		e.ReasonCode = Reason(reason)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", ErrStorageUnavailable, err)
	}
	return out, nil
}

func buildListQuery(f Filter) (string, []any) {
	var (
		b     strings.Builder
		args  []any
		where []string
	)
	b.WriteString(`SELECT seq, id, occurred_at, room_id, subject_identity, subject_role, action,
  COALESCE(document_id, ''), COALESCE(session_id, ''), outcome,
  COALESCE(reason_code, ''), COALESCE(reason_detail, ''), COALESCE(metadata::text, '')
FROM audit_events`)

	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	add("seq > $%d", f.AfterSeq)
	if f.RoomID != "" {
		add("room_id = $%d", f.RoomID)
	}
	if f.SubjectIdentity != "" {
		add("subject_identity = $%d", f.SubjectIdentity)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.Outcome != "" {
		add("outcome = $%d", string(f.Outcome))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To)
	}

	b.WriteString("\nWHERE ")
	b.WriteString(strings.Join(where, " AND "))
	b.WriteString("\nORDER BY seq ASC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, "\nLIMIT $%d", len(args))
	}
	return b.String(), args
}

package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepo_AppendAllocatesNextSeqUnderAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq\), 0\) FROM audit_events`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(41)))
	mock.ExpectExec(`INSERT INTO audit_events`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewPostgresRepo(db)
	e, err := repo.Append(context.Background(), Event{
		ID:         "01J000000000000000000000AA",
		OccurredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		RoomID:     "room-1",
		Action:     ActionViewStart,
		Outcome:    OutcomeAllowed,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), e.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_AppendFailureIsStorageUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = NewPostgresRepo(db).Append(context.Background(), Event{RoomID: "room-1", Action: ActionViewStart, Outcome: OutcomeAllowed})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ListScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"seq", "id", "occurred_at", "room_id", "subject_identity", "subject_role", "action",
		"document_id", "session_id", "outcome", "reason_code", "reason_detail", "metadata",
	}).
		AddRow(int64(7), "e7", at, "room-1", "lender1@fund.com", "INVESTOR", "ACCESS_DENIED_NO_GRANT", "doc-1", "", "DENIED", "NO_ACTIVE_GRANT", "", "").
		AddRow(int64(9), "e9", at, "room-1", "issuer_member@issuer.com", "ISSUER", "VIEW_START", "doc-1", "", "ALLOWED", "", "", "")

	mock.ExpectQuery(`SELECT seq, id, occurred_at`).WillReturnRows(rows)

	out, err := NewPostgresRepo(db).List(context.Background(), Filter{RoomID: "room-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, ActionDeniedNoGrant, out[0].Action)
	assert.Equal(t, ReasonNoActiveGrant, out[0].ReasonCode)
	assert.Equal(t, OutcomeAllowed, out[1].Outcome)
	assert.Equal(t, int64(9), out[1].Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildListQuery_Args(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args := buildListQuery(Filter{RoomID: "room-1", Outcome: OutcomeDenied, From: from, AfterSeq: 3, Limit: 11})

	assert.Contains(t, q, "seq > $1")
	assert.Contains(t, q, "room_id = $2")
	assert.Contains(t, q, "outcome = $3")
	assert.Contains(t, q, "occurred_at >= $4")
	assert.Contains(t, q, "ORDER BY seq ASC")
	assert.Contains(t, q, "LIMIT $5")
	assert.Equal(t, []any{int64(3), "room-1", "DENIED", from, 11}, args)
}

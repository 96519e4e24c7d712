package migrate

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPending_SkipsExecuted(t *testing.T) {
	all, err := Pending(nil)
	require.NoError(t, err)
	require.Contains(t, all, "0001_init.up.sql")

	rest, err := Pending(map[string]bool{"0001_init.up.sql": true})
	require.NoError(t, err)
	assert.NotContains(t, rest, "0001_init.up.sql")
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("create table a (x int);\n\n create index i on a (x);\n")
	assert.Equal(t, []string{"create table a (x int)", "create index i on a (x)"}, got)
}

func TestUp_NothingPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))

	applied, err := Up(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUp_AppliesInitialSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	body, err := files.ReadFile("sql/0001_init.up.sql")
	require.NoError(t, err)
	stmts := len(splitStatements(string(body)))

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	for i := 0; i < stmts; i++ {
		mock.ExpectExec("create").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0001_init.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := Up(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.up.sql"}, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

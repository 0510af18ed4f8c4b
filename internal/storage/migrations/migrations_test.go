package migrations

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPG struct{ stmts []string }

func (r *recordingPG) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.stmts = append(r.stmts, sql)
	return pgconn.CommandTag{}, nil
}

type recordingCH struct{ stmts []string }

func (r *recordingCH) Exec(_ context.Context, query string, _ ...any) error {
	r.stmts = append(r.stmts, query)
	return nil
}

func TestRunPostgresMigrations(t *testing.T) {
	db := &recordingPG{}
	require.NoError(t, RunPostgresMigrations(context.Background(), db))
	require.Len(t, db.stmts, 1)
	assert.Contains(t, db.stmts[0], "CREATE TABLE IF NOT EXISTS transfers")
}

func TestRunClickhouseMigrations(t *testing.T) {
	conn := &recordingCH{}
	require.NoError(t, RunClickhouseMigrations(context.Background(), conn))
	require.Len(t, conn.stmts, 1)
	assert.True(t, strings.HasPrefix(conn.stmts[0], "CREATE TABLE IF NOT EXISTS candles"))
	assert.NotContains(t, conn.stmts[0], ";")
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- comment\nCREATE TABLE a (x UInt8);\n\nCREATE TABLE b (y UInt8);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x UInt8)", "CREATE TABLE b (y UInt8)"}, stmts)
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings("SELECT 'it''s'; SELECT 1;"))
	assert.Error(t, validateNoSemicolonInStrings("SELECT 'a;b';"))
}

// Package repotest provides an in-memory database helper for tests in
// packages that sit above internal/database/repositories (alerts,
// categorization, net worth, forecaster, aggregator) and need a real
// sqlite-backed repository rather than a hand-rolled fake.
package repotest

import (
	"database/sql"
	"fmt"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/aristath/finhub/internal/database"
)

var counter int

// NewDB returns a fresh in-memory sqlite database with the full schema
// applied, uniquely named per call so parallel tests never share state.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()
	counter++
	dsn := fmt.Sprintf("file:repotest_%d?mode=memory&cache=shared", counter)
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(database.Schema())
	require.NoError(t, err)
	return db
}

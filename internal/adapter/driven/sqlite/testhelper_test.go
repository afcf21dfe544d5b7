package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
)

var testKey = bytes.Repeat([]byte{0x42}, KeySize)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via
// cache=shared; the name derived from t.Name() isolates tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it cannot be read as DSN parameters.
	safeName := url.PathEscape(t.Name())
	// WAL mode is not applicable to in-memory databases.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		safeName,
	)

	db, err := open(dsn, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// setupMockDB wires one sqlmock connection as both reader and writer.
func setupMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &DB{Writer: conn, Reader: conn, path: "sqlmock"}, mock
}

// addTestUser inserts an operator required by account foreign keys.
func addTestUser(t *testing.T, db *DB, username string) model.User {
	t.Helper()
	u, err := NewUserRepo(db).Create(context.Background(), username, "hash")
	require.NoError(t, err)
	return u
}

// addTestAccount inserts an account owned by userID.
func addTestAccount(t *testing.T, db *DB, userID int64, code string) model.Account {
	t.Helper()
	a, err := NewAccountRepo(db).Create(context.Background(), model.Account{
		UserID:     userID,
		Name:       "account " + code,
		ClientCode: code,
	})
	require.NoError(t, err)
	return a
}

func countRows(t *testing.T, conn *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

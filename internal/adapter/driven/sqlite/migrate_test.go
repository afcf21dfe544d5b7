package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_VersionAndRollback(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := MigrationVersion(db.Writer)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, RunMigrations(db.Writer), "re-running is a no-op")

	require.NoError(t, RollbackMigrations(db.Writer, 2))
	version, _, err = MigrationVersion(db.Writer)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, RunMigrations(db.Writer))
	assert.Equal(t, 0, countRows(t, db.Writer, "accounts"))
	assert.Equal(t, 0, countRows(t, db.Writer, "strategies"))
}

func TestRollbackMigrations_RejectsNonPositiveSteps(t *testing.T) {
	db := setupTestDB(t)
	assert.Error(t, RollbackMigrations(db.Writer, 0))
}

package db

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesSortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_more.sql":   {Data: []byte("SELECT 1")},
		"m/001_init.sql":   {Data: []byte("SELECT 1")},
		"m/README.md":      {Data: []byte("notes")},
		"m/nested/003.sql": {Data: []byte("SELECT 1")},
	}
	names, err := migrationNames(fsys, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_more.sql"}, names)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	names, err := migrationNames(migrationFiles, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_payroll.sql", names[0])
}

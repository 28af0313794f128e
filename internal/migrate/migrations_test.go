package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tailorline/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn, dialect))
	require.NoError(t, Migrate(conn, dialect))

	v, err := Version(conn)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	for _, table := range []string{"projects", "workflow_steps", "workflow_templates", "events"} {
		var n int
		require.NoError(t, conn.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}

func TestPostgresMigrationsEmbedded(t *testing.T) {
	ms, err := loadMigrations(db.Postgres)
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Contains(t, ms[0].UpSQL, "BIGSERIAL")
}

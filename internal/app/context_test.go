package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tailorline/internal/db"
	"tailorline/internal/migrate"
	"tailorline/internal/repo"
)

func TestResolveConfigDefaultsToWorkspace(t *testing.T) {
	dir := t.TempDir()
	cfg, err := ResolveConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Database.Workspace)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestResolveConfigAppliesDotenvAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tailorline.yml"), []byte("server:\n  addr: 0.0.0.0:9000\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TAILORLINE_LOG_LEVEL=debug\n"), 0o644))
	t.Setenv("TAILORLINE_SERVER_BASE_PATH", "/api")
	t.Cleanup(func() { os.Unsetenv("TAILORLINE_LOG_LEVEL") })

	cfg, err := ResolveConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestOpenMigratesAndBuildsEngine(t *testing.T) {
	dir := t.TempDir()
	cfg, err := ResolveConfig(dir)
	require.NoError(t, err)

	rt, err := Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, db.SQLite, rt.Dialect)
	assert.FileExists(t, db.Path(dir))
	v, err := migrate.Version(rt.DB)
	require.NoError(t, err)
	assert.Positive(t, v)

	fx, err := repo.LoadFixture(filepath.Join("..", "..", "testdata", "seed.yml"))
	require.NoError(t, err)
	require.NoError(t, rt.Engine.Repo.Seed(context.Background(), fx))
	templates, err := rt.Engine.ListTemplates(context.Background())
	require.NoError(t, err)
	assert.Len(t, templates, len(fx.Templates))
}

package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"tailorline/internal/config"
	"tailorline/internal/db"
	"tailorline/internal/engine"
	"tailorline/internal/logging"
	"tailorline/internal/migrate"
)

// Runtime is an opened workspace: a migrated database and the engine on top of it.
type Runtime struct {
	Config  *config.Config
	Log     *zap.Logger
	DB      *sql.DB
	Dialect db.Dialect
	Engine  engine.Engine
}

// ResolveConfig reads tailorline.yml from the workspace, falling back to defaults,
// then applies TAILORLINE_* overrides. The workspace .env is loaded first.
func ResolveConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if workspace == "" {
		workspace = "."
	}
	v := config.NewViper(filepath.Join(workspace, ".env"))
	if err := cfg.ApplyOverrides(v); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// Open connects to the configured database, applies pending migrations and
// builds the engine. Callers must Close the runtime.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, dialect, err := db.Open(db.Config{
		Driver:        cfg.Database.Driver,
		Workspace:     cfg.Database.Workspace,
		DSN:           cfg.Database.DSN,
		BusyTimeoutMS: cfg.Database.BusyTimeoutMS,
		MaxOpenConns:  cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate.Migrate(conn, dialect); err != nil {
		conn.Close()
		return nil, err
	}
	version, err := migrate.Version(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	logger.Debug("database ready", zap.String("driver", string(dialect)), zap.Int("schema_version", version))
	return &Runtime{
		Config:  cfg,
		Log:     logger,
		DB:      conn,
		Dialect: dialect,
		Engine:  engine.New(conn, dialect, logger),
	}, nil
}

func (rt *Runtime) Close() error {
	_ = rt.Log.Sync()
	return rt.DB.Close()
}

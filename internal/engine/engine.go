package engine

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"tailorline/internal/db"
	"tailorline/internal/domain"
	"tailorline/internal/events"
	"tailorline/internal/repo"
)

// References resolves ids owned by the order, CRM, staffing and catalog services.
type References interface {
	OrderExists(ctx context.Context, id int64) (bool, error)
	GetCustomer(ctx context.Context, id int64) (domain.Customer, error)
	GetStaff(ctx context.Context, id int64) (domain.Staff, error)
	TemplatesByID(ctx context.Context, ids []int64) (map[int64]domain.Template, error)
	CustomOrderItems(ctx context.Context, orderID int64) ([]domain.CustomOrderItem, error)
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Refs   References
	Events events.Writer
	Log    *zap.Logger
	Now    func() time.Time
}

func New(conn *sql.DB, dialect db.Dialect, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := repo.Repo{DB: conn, Dialect: dialect}
	return Engine{
		DB:     conn,
		Repo:   r,
		Refs:   r,
		Events: events.Writer{Dialect: dialect},
		Log:    logger,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) refs() References {
	if e.Refs != nil {
		return e.Refs
	}
	return e.Repo
}

func (e Engine) logger() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType string, projectID int64, entityKind string, entityID int64, actorID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	return w.Append(ctx, tx, evtType, projectID, entityKind, entityID, actorID, payload)
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"ixmanager_bridge/internal/models"
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// StatusRepo persists the last successfully fetched charger status.
type StatusRepo interface {
	Save(ctx context.Context, s models.ChargerStatus) error
	Load(ctx context.Context) (models.ChargerStatus, bool, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.ChargerEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.ChargerEvent, error)
}

type Repository struct {
	StatusRepo StatusRepo
	EventRepo  EventRepo
	Auth       Authorization
}

// NewRepository builds SQLite-backed repositories for one charger.
func NewRepository(db *sql.DB, serial string) *Repository {
	return &Repository{
		StatusRepo: NewStatusSQLite(db, serial),
		EventRepo:  NewEventSQLite(db),
		Auth:       NewUserRepository(db),
	}
}

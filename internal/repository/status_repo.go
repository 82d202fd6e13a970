package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ixmanager_bridge/internal/models"
)

// StatusSQLite keeps one charger_status row per serial number.
type StatusSQLite struct {
	db     *sql.DB
	serial string
}

func NewStatusSQLite(db *sql.DB, serial string) *StatusSQLite {
	return &StatusSQLite{db: db, serial: serial}
}

const (
	upsertStatusSQL = `
		INSERT INTO charger_status (serial, state, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(serial) DO UPDATE SET
			state=excluded.state,
			payload=excluded.payload,
			updated_at=excluded.updated_at
	`

	selectStatusSQL = `
		SELECT payload, updated_at
		FROM charger_status WHERE serial=?
	`
)

// Save upserts the status row. UpdatedAt is stored in UTC and set to now if zero.
func (r *StatusSQLite) Save(ctx context.Context, s models.ChargerStatus) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	} else {
		s.UpdatedAt = s.UpdatedAt.UTC()
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal charger status: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, upsertStatusSQL,
		r.serial,
		string(s.State),
		string(payload),
		s.UpdatedAt,
	); err != nil {
		return fmt.Errorf("save charger status %s: %w", r.serial, err)
	}
	return nil
}

// Load returns the persisted status; found is false when nothing was saved yet.
func (r *StatusSQLite) Load(ctx context.Context) (models.ChargerStatus, bool, error) {
	var (
		payload   string
		updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, selectStatusSQL, r.serial).Scan(&payload, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ChargerStatus{}, false, nil
		}
		return models.ChargerStatus{}, false, fmt.Errorf("load charger status %s: %w", r.serial, err)
	}

	var s models.ChargerStatus
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return models.ChargerStatus{}, false, fmt.Errorf("decode charger status %s: %w", r.serial, err)
	}
	s.UpdatedAt = updatedAt.UTC()
	return s, true, nil
}

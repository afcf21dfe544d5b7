package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SettingsStore = (*SettingsRepo)(nil)

// SettingsRepo is the SQLite implementation of the SettingsStore port interface.
type SettingsRepo struct {
	db *DB
}

// NewSettingsRepo creates a new SettingsRepo backed by the given DB.
func NewSettingsRepo(db *DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// Get retrieves the operator's settings. Returns (nil, nil) if none are
// stored; callers should apply defaults.
func (r *SettingsRepo) Get(ctx context.Context, userID int64) (*model.Settings, error) {
	const query = `
		SELECT paper_mode, default_lot_size, updated_at
		FROM settings
		WHERE user_id = ?
	`

	var s model.Settings
	var updatedAt string

	err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(&s.PaperMode, &s.DefaultLotSize, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings for user %d: %w", userID, err)
	}

	s.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for user %d: %w", userID, err)
	}
	return &s, nil
}

// Set inserts or updates the operator's settings. On conflict every column
// is replaced.
func (r *SettingsRepo) Set(ctx context.Context, userID int64, settings model.Settings) error {
	const query = `
		INSERT INTO settings (user_id, paper_mode, default_lot_size, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			paper_mode = excluded.paper_mode,
			default_lot_size = excluded.default_lot_size,
			updated_at = excluded.updated_at
	`

	updatedAt := settings.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		userID, settings.PaperMode, settings.DefaultLotSize, updatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("set settings for user %d: %w", userID, err)
	}

	return nil
}

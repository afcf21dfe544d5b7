package driven

import (
	"context"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
)

// SettingsStore defines the driven port for per-operator preferences.
type SettingsStore interface {
	// Get returns the operator's settings. Returns (nil, nil) when none are
	// stored; callers should apply defaults.
	Get(ctx context.Context, userID int64) (*model.Settings, error)

	// Set inserts or replaces the operator's settings.
	Set(ctx context.Context, userID int64, settings model.Settings) error
}

package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// SettingsService reads and updates operator preferences.
type SettingsService struct {
	store driven.SettingsStore
	now   func() time.Time
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(store driven.SettingsStore) *SettingsService {
	return &SettingsService{store: store, now: time.Now}
}

// Get returns the operator's settings, or the defaults when none are stored.
func (s *SettingsService) Get(ctx context.Context, userID int64) (model.Settings, error) {
	stored, err := s.store.Get(ctx, userID)
	if err != nil {
		return model.Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	if stored == nil {
		return model.DefaultSettings(), nil
	}
	return *stored, nil
}

// Update applies patch on top of the current settings.
func (s *SettingsService) Update(ctx context.Context, userID int64, patch model.SettingsPatch) (model.Settings, error) {
	if patch.DefaultLotSize != nil && *patch.DefaultLotSize < 1 {
		return model.Settings{}, fmt.Errorf("%w: default lot size must be at least 1", ErrInvalidInput)
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return model.Settings{}, err
	}
	next := current.Apply(patch)
	next.UpdatedAt = s.now().UTC()

	if err := s.store.Set(ctx, userID, next); err != nil {
		return model.Settings{}, fmt.Errorf("saving settings: %w", err)
	}
	return next, nil
}

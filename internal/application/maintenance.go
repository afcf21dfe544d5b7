package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// SnapshotRetention is how long an expired snapshot is kept. Within this
// window a restore can still renew it through its refresh token.
const SnapshotRetention = 48 * time.Hour

// MaintenanceService periodically removes stale session snapshots.
type MaintenanceService struct {
	pruner   driven.SnapshotPruner
	interval time.Duration
	now      func() time.Time
}

// NewMaintenanceService creates a MaintenanceService running every interval.
func NewMaintenanceService(pruner driven.SnapshotPruner, interval time.Duration) *MaintenanceService {
	return &MaintenanceService{
		pruner:   pruner,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs one pass immediately and then one per interval until ctx is
// canceled. It is meant to run in its own goroutine.
func (s *MaintenanceService) Start(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		slog.Error("initial maintenance pass failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("maintenance service stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				slog.Error("maintenance pass failed", "error", err)
			}
		}
	}
}

// RunOnce prunes snapshots expired longer than SnapshotRetention and returns
// how many were removed.
func (s *MaintenanceService) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.pruner.PruneExpired(ctx, s.now().Add(-SnapshotRetention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("pruned expired session snapshots", "count", n)
	}
	return n, nil
}

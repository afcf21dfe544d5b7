package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int64
	err     error
}

func (p *recordingPruner) PruneExpired(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.n, p.err
}

func (p *recordingPruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestMaintenanceRunOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	p := &recordingPruner{n: 3}
	svc := NewMaintenanceService(p, time.Hour)
	svc.now = func() time.Time { return now }

	n, err := svc.RunOnce(t.Context())

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, now.Add(-SnapshotRetention), p.cutoffs[0])
}

func TestMaintenanceRunOnce_Error(t *testing.T) {
	p := &recordingPruner{err: errors.New("database is locked")}
	svc := NewMaintenanceService(p, time.Hour)

	n, err := svc.RunOnce(t.Context())

	require.Error(t, err)
	assert.Zero(t, n)
}

func TestMaintenanceStart_StopsOnCancel(t *testing.T) {
	p := &recordingPruner{}
	svc := NewMaintenanceService(p, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("maintenance service did not stop")
	}
}

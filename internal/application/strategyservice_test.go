package application_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/algopilot/internal/application"
	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

func newStrategyService(t *testing.T) (*application.StrategyService, *memStrategyStore, *sessionFixture) {
	t.Helper()
	f := newSessionFixture(t)
	store := newMemStrategyStore(f.accounts)
	return application.NewStrategyService(f.accounts, store), store, f
}

func TestStrategyService_CreateValidates(t *testing.T) {
	svc, _, f := newStrategyService(t)
	a := f.addAccount(t, 1, "A1", false)
	ctx := context.Background()

	tests := []struct {
		name    string
		account int64
		in      application.StrategyInput
		wantErr error
	}{
		{name: "missing name", account: a.ID, in: application.StrategyInput{Type: "breakout"}, wantErr: application.ErrInvalidInput},
		{name: "params not an object", account: a.ID, in: application.StrategyInput{Name: "x", Type: "t", Params: json.RawMessage(`[1]`)}, wantErr: application.ErrInvalidInput},
		{name: "params null", account: a.ID, in: application.StrategyInput{Name: "x", Type: "t", Params: json.RawMessage(`null`)}, wantErr: application.ErrInvalidInput},
		{name: "foreign account", account: 99, in: application.StrategyInput{Name: "x", Type: "t"}, wantErr: driven.ErrAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, 1, tt.account, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStrategyService_Lifecycle(t *testing.T) {
	svc, store, f := newStrategyService(t)
	a := f.addAccount(t, 1, "A1", false)
	ctx := context.Background()

	st, err := svc.Create(ctx, 1, a.ID, application.StrategyInput{Name: "orb", Type: "breakout", Params: json.RawMessage(`{"minutes":15}`)})
	require.NoError(t, err)
	assert.Equal(t, model.StrategyStopped, st.Status)

	_, err = svc.Pause(ctx, 1, st.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	got, err := svc.Start(ctx, 1, st.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyRunning, got.Status)

	_, err = svc.Start(ctx, 1, st.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "already running")

	got, err = svc.Pause(ctx, 1, st.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyPaused, got.Status)

	got, err = svc.Start(ctx, 1, st.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyRunning, got.Status)

	got, err = svc.Stop(ctx, 1, st.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyStopped, got.Status)

	runs, err := svc.Runs(ctx, 1, st.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1, "resume reuses the open run")
	assert.Equal(t, model.StrategyStopped, runs[0].Status)
	assert.NotNil(t, runs[0].EndedAt)

	_, err = svc.Start(ctx, 1, st.ID)
	require.NoError(t, err)
	runs, err = store.ListRuns(ctx, st.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 2, "restart opens a new run")
}

func TestStrategyService_UpdateKeepsUnsetFields(t *testing.T) {
	svc, _, f := newStrategyService(t)
	a := f.addAccount(t, 1, "A1", false)
	ctx := context.Background()
	enabled := true

	st, err := svc.Create(ctx, 1, a.ID, application.StrategyInput{Name: "orb", Type: "breakout", Params: json.RawMessage(`{"minutes":15}`)})
	require.NoError(t, err)

	got, err := svc.Update(ctx, 1, st.ID, application.StrategyInput{Enabled: &enabled})

	require.NoError(t, err)
	assert.Equal(t, "orb", got.Name)
	assert.True(t, got.Enabled)
	assert.JSONEq(t, `{"minutes":15}`, string(got.Params))
}

func TestStrategyService_ScopedToOperator(t *testing.T) {
	svc, _, f := newStrategyService(t)
	a := f.addAccount(t, 1, "A1", false)
	ctx := context.Background()

	st, err := svc.Create(ctx, 1, a.ID, application.StrategyInput{Name: "orb", Type: "breakout"})
	require.NoError(t, err)

	_, err = svc.Start(ctx, 2, st.ID)
	assert.ErrorIs(t, err, driven.ErrStrategyNotFound)
	_, err = svc.List(ctx, 2, a.ID)
	assert.ErrorIs(t, err, driven.ErrAccountNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 2, st.ID), driven.ErrStrategyNotFound)
}

func TestStrategyService_StartAllAndStopAll(t *testing.T) {
	svc, _, f := newStrategyService(t)
	a := f.addAccount(t, 1, "A1", false)
	ctx := context.Background()
	enabled := true

	on, err := svc.Create(ctx, 1, a.ID, application.StrategyInput{Name: "on", Type: "t", Enabled: &enabled})
	require.NoError(t, err)
	off, err := svc.Create(ctx, 1, a.ID, application.StrategyInput{Name: "off", Type: "t"})
	require.NoError(t, err)

	started, err := svc.StartAll(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, started)

	got, err := svc.Get(ctx, 1, off.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyStopped, got.Status, "disabled strategies are skipped")

	again, err := svc.StartAll(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.Zero(t, again)

	stopped, err := svc.StopAll(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stopped)

	got, err = svc.Get(ctx, 1, on.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyStopped, got.Status)
}

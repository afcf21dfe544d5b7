package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// StrategyInput holds the editable fields of a strategy. Nil Params and
// Enabled leave the stored values unchanged on update.
type StrategyInput struct {
	Name    string
	Type    string
	Params  json.RawMessage
	Enabled *bool
}

// StrategyService manages strategy records and their run status. It tracks
// status only; no strategy logic runs here.
type StrategyService struct {
	accounts   driven.AccountStore
	strategies driven.StrategyStore
	now        func() time.Time

	// mu serializes status changes so two starts cannot open two runs.
	mu sync.Mutex
}

// NewStrategyService creates a new StrategyService.
func NewStrategyService(accounts driven.AccountStore, strategies driven.StrategyStore) *StrategyService {
	return &StrategyService{accounts: accounts, strategies: strategies, now: time.Now}
}

// Create adds a stopped strategy to one of the operator's accounts.
func (s *StrategyService) Create(ctx context.Context, userID, accountID int64, in StrategyInput) (model.Strategy, error) {
	name := strings.TrimSpace(in.Name)
	kind := strings.TrimSpace(in.Type)
	if name == "" || kind == "" {
		return model.Strategy{}, fmt.Errorf("%w: name and type are required", ErrInvalidInput)
	}
	if err := validateParams(in.Params); err != nil {
		return model.Strategy{}, err
	}
	if _, err := s.accounts.Get(ctx, userID, accountID); err != nil {
		return model.Strategy{}, fmt.Errorf("loading account %d: %w", accountID, err)
	}

	created, err := s.strategies.Create(ctx, model.Strategy{
		AccountID: accountID,
		Name:      name,
		Type:      kind,
		Params:    in.Params,
		Enabled:   in.Enabled != nil && *in.Enabled,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return model.Strategy{}, fmt.Errorf("creating strategy: %w", err)
	}
	return created, nil
}

// List returns the strategies of one of the operator's accounts.
func (s *StrategyService) List(ctx context.Context, userID, accountID int64) ([]model.Strategy, error) {
	if _, err := s.accounts.Get(ctx, userID, accountID); err != nil {
		return nil, fmt.Errorf("loading account %d: %w", accountID, err)
	}
	strategies, err := s.strategies.ListByAccount(ctx, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing strategies: %w", err)
	}
	return strategies, nil
}

// Get returns one strategy.
func (s *StrategyService) Get(ctx context.Context, userID, strategyID int64) (model.Strategy, error) {
	return s.strategies.Get(ctx, userID, strategyID)
}

// Update renames a strategy or changes its params or enabled flag. The type
// is fixed at creation.
func (s *StrategyService) Update(ctx context.Context, userID, strategyID int64, in StrategyInput) (model.Strategy, error) {
	current, err := s.strategies.Get(ctx, userID, strategyID)
	if err != nil {
		return model.Strategy{}, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		current.Name = name
	}
	if in.Params != nil {
		if err := validateParams(in.Params); err != nil {
			return model.Strategy{}, err
		}
		current.Params = in.Params
	}
	if in.Enabled != nil {
		current.Enabled = *in.Enabled
	}

	updated, err := s.strategies.Update(ctx, userID, current)
	if err != nil {
		return model.Strategy{}, fmt.Errorf("updating strategy %d: %w", strategyID, err)
	}
	return updated, nil
}

// Delete removes a strategy and its run history.
func (s *StrategyService) Delete(ctx context.Context, userID, strategyID int64) error {
	return s.strategies.Delete(ctx, userID, strategyID)
}

// Runs returns the strategy's run history newest first.
func (s *StrategyService) Runs(ctx context.Context, userID, strategyID int64) ([]model.StrategyRun, error) {
	if _, err := s.strategies.Get(ctx, userID, strategyID); err != nil {
		return nil, err
	}
	runs, err := s.strategies.ListRuns(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Start moves a stopped or paused strategy to running.
func (s *StrategyService) Start(ctx context.Context, userID, strategyID int64) (model.Strategy, error) {
	return s.transition(ctx, userID, strategyID, model.StrategyRunning)
}

// Pause suspends a running strategy.
func (s *StrategyService) Pause(ctx context.Context, userID, strategyID int64) (model.Strategy, error) {
	return s.transition(ctx, userID, strategyID, model.StrategyPaused)
}

// Stop ends the open run of a running or paused strategy.
func (s *StrategyService) Stop(ctx context.Context, userID, strategyID int64) (model.Strategy, error) {
	return s.transition(ctx, userID, strategyID, model.StrategyStopped)
}

// StartAll starts every enabled strategy of the account that is not already
// running and returns how many changed.
func (s *StrategyService) StartAll(ctx context.Context, userID, accountID int64) (int, error) {
	return s.bulk(ctx, userID, accountID, model.StrategyRunning, func(st model.Strategy) bool {
		return st.Enabled && st.Status != model.StrategyRunning
	})
}

// StopAll stops every running or paused strategy of the account and returns
// how many changed.
func (s *StrategyService) StopAll(ctx context.Context, userID, accountID int64) (int, error) {
	return s.bulk(ctx, userID, accountID, model.StrategyStopped, func(st model.Strategy) bool {
		return st.Status != model.StrategyStopped
	})
}

func (s *StrategyService) bulk(
	ctx context.Context,
	userID, accountID int64,
	want model.StrategyStatus,
	eligible func(model.Strategy) bool,
) (int, error) {
	strategies, err := s.List(ctx, userID, accountID)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, st := range strategies {
		if !eligible(st) {
			continue
		}
		if _, err := s.transition(ctx, userID, st.ID, want); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func (s *StrategyService) transition(ctx context.Context, userID, strategyID int64, want model.StrategyStatus) (model.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.strategies.Get(ctx, userID, strategyID)
	if err != nil {
		return model.Strategy{}, err
	}
	newRun, err := model.NextStatus(st.Status, want)
	if err != nil {
		return model.Strategy{}, err
	}

	now := s.now().UTC()
	if newRun {
		_, err = s.strategies.CreateRun(ctx, model.StrategyRun{StrategyID: strategyID, Status: want, StartedAt: now})
		if err != nil {
			return model.Strategy{}, fmt.Errorf("starting strategy %d: %w", strategyID, err)
		}
	} else {
		run, err := s.strategies.LatestRun(ctx, strategyID)
		if err != nil {
			return model.Strategy{}, fmt.Errorf("loading run of strategy %d: %w", strategyID, err)
		}
		if run == nil || !run.Open() {
			return model.Strategy{}, fmt.Errorf("strategy %d has no open run", strategyID)
		}
		run.Status = want
		if want == model.StrategyStopped {
			run.EndedAt = &now
		}
		if err := s.strategies.UpdateRun(ctx, *run); err != nil {
			return model.Strategy{}, fmt.Errorf("updating run of strategy %d: %w", strategyID, err)
		}
	}

	slog.Info("strategy status changed", "strategy_id", strategyID, "from", st.Status, "to", want)
	st.Status = want
	return st, nil
}

// validateParams accepts an empty value or a JSON object.
func validateParams(params json.RawMessage) error {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil || obj == nil {
		return fmt.Errorf("%w: params must be a JSON object", ErrInvalidInput)
	}
	return nil
}

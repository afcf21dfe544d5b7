package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
)

// ErrStrategyNotFound indicates the strategy does not exist or belongs to
// another operator.
var ErrStrategyNotFound = errors.New("strategy not found")

// StrategyStore defines the driven port for strategy records and their run
// history. Reads are scoped to the operator owning the strategy's account.
type StrategyStore interface {
	Create(ctx context.Context, strategy model.Strategy) (model.Strategy, error)

	// Get returns the strategy with its derived status. Returns
	// ErrStrategyNotFound when missing.
	Get(ctx context.Context, userID, strategyID int64) (model.Strategy, error)

	ListByAccount(ctx context.Context, userID, accountID int64) ([]model.Strategy, error)

	// Update changes name, params and the enabled flag.
	Update(ctx context.Context, userID int64, strategy model.Strategy) (model.Strategy, error)

	Delete(ctx context.Context, userID, strategyID int64) error

	// LatestRun returns the most recent run, or (nil, nil) when the strategy
	// never ran.
	LatestRun(ctx context.Context, strategyID int64) (*model.StrategyRun, error)

	// ListRuns returns the run history newest first.
	ListRuns(ctx context.Context, strategyID int64) ([]model.StrategyRun, error)

	CreateRun(ctx context.Context, run model.StrategyRun) (model.StrategyRun, error)

	// UpdateRun changes the status and end time of a run.
	UpdateRun(ctx context.Context, run model.StrategyRun) error
}

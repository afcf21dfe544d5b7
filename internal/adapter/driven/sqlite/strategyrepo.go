package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.StrategyStore = (*StrategyRepo)(nil)

// latestStatus derives a strategy's status from its newest run.
const latestStatus = `COALESCE((SELECT r.status FROM strategy_runs r WHERE r.strategy_id = s.id ORDER BY r.id DESC LIMIT 1), 'stopped')`

var strategyColumns = []string{
	"s.id", "s.account_id", "s.name", "s.type", "s.params_json", "s.enabled", "s.created_at",
	latestStatus,
}

// StrategyRepo is the SQLite implementation of the StrategyStore port
// interface. Ownership is checked by joining the strategy's account.
type StrategyRepo struct {
	db *DB
	qb sq.StatementBuilderType
}

// NewStrategyRepo creates a new StrategyRepo backed by the given DB.
func NewStrategyRepo(db *DB) *StrategyRepo {
	return &StrategyRepo{db: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// Create inserts a strategy. Empty params are stored as an empty object.
func (r *StrategyRepo) Create(ctx context.Context, s model.Strategy) (model.Strategy, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if len(s.Params) == 0 {
		s.Params = json.RawMessage(`{}`)
	}

	query, args, err := r.qb.Insert("strategies").
		Columns("account_id", "name", "type", "params_json", "enabled", "created_at").
		Values(s.AccountID, s.Name, s.Type, string(s.Params), s.Enabled, s.CreatedAt).
		ToSql()
	if err != nil {
		return model.Strategy{}, fmt.Errorf("build insert strategy: %w", err)
	}

	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return model.Strategy{}, fmt.Errorf("create strategy %s: %w", s.Name, err)
	}

	s.ID, err = result.LastInsertId()
	if err != nil {
		return model.Strategy{}, fmt.Errorf("create strategy %s: last insert id: %w", s.Name, err)
	}
	s.Status = model.StrategyStopped
	return s, nil
}

func (r *StrategyRepo) selectOwned(userID int64) sq.SelectBuilder {
	return r.qb.Select(strategyColumns...).
		From("strategies s").
		Join("accounts a ON a.id = s.account_id").
		Where(sq.Eq{"a.user_id": userID})
}

// Get returns the strategy if its account belongs to userID.
func (r *StrategyRepo) Get(ctx context.Context, userID, strategyID int64) (model.Strategy, error) {
	query, args, err := r.selectOwned(userID).Where(sq.Eq{"s.id": strategyID}).ToSql()
	if err != nil {
		return model.Strategy{}, fmt.Errorf("build select strategy: %w", err)
	}

	s, err := scanStrategy(r.db.Reader.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Strategy{}, fmt.Errorf("get strategy %d: %w", strategyID, driven.ErrStrategyNotFound)
	}
	if err != nil {
		return model.Strategy{}, fmt.Errorf("get strategy %d: %w", strategyID, err)
	}
	return s, nil
}

// ListByAccount returns the account's strategies oldest first.
func (r *StrategyRepo) ListByAccount(ctx context.Context, userID, accountID int64) ([]model.Strategy, error) {
	query, args, err := r.selectOwned(userID).
		Where(sq.Eq{"s.account_id": accountID}).
		OrderBy("s.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list strategies: %w", err)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list strategies for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var strategies []model.Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		strategies = append(strategies, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategies: %w", err)
	}
	return strategies, nil
}

// Update changes name, params and the enabled flag.
func (r *StrategyRepo) Update(ctx context.Context, userID int64, s model.Strategy) (model.Strategy, error) {
	if _, err := r.Get(ctx, userID, s.ID); err != nil {
		return model.Strategy{}, err
	}
	if len(s.Params) == 0 {
		s.Params = json.RawMessage(`{}`)
	}

	query, args, err := r.qb.Update("strategies").
		Set("name", s.Name).
		Set("params_json", string(s.Params)).
		Set("enabled", s.Enabled).
		Where(sq.Eq{"id": s.ID}).
		ToSql()
	if err != nil {
		return model.Strategy{}, fmt.Errorf("build update strategy: %w", err)
	}

	if _, err := r.db.Writer.ExecContext(ctx, query, args...); err != nil {
		return model.Strategy{}, fmt.Errorf("update strategy %d: %w", s.ID, err)
	}
	return r.Get(ctx, userID, s.ID)
}

// Delete removes the strategy and its runs. Ledger entries keep the order
// but lose the strategy link.
func (r *StrategyRepo) Delete(ctx context.Context, userID, strategyID int64) error {
	if _, err := r.Get(ctx, userID, strategyID); err != nil {
		return err
	}

	query, args, err := r.qb.Delete("strategies").Where(sq.Eq{"id": strategyID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete strategy: %w", err)
	}
	if _, err := r.db.Writer.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete strategy %d: %w", strategyID, err)
	}
	return nil
}

var runColumns = []string{"id", "strategy_id", "status", "started_at", "ended_at"}

// LatestRun returns the newest run, or (nil, nil) when there is none.
func (r *StrategyRepo) LatestRun(ctx context.Context, strategyID int64) (*model.StrategyRun, error) {
	query, args, err := r.qb.Select(runColumns...).
		From("strategy_runs").
		Where(sq.Eq{"strategy_id": strategyID}).
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest run: %w", err)
	}

	run, err := scanRun(r.db.Reader.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run of strategy %d: %w", strategyID, err)
	}
	return &run, nil
}

// ListRuns returns the run history newest first.
func (r *StrategyRepo) ListRuns(ctx context.Context, strategyID int64) ([]model.StrategyRun, error) {
	query, args, err := r.qb.Select(runColumns...).
		From("strategy_runs").
		Where(sq.Eq{"strategy_id": strategyID}).
		OrderBy("id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list runs: %w", err)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs of strategy %d: %w", strategyID, err)
	}
	defer rows.Close()

	var runs []model.StrategyRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// CreateRun inserts a run and returns it with its ID.
func (r *StrategyRepo) CreateRun(ctx context.Context, run model.StrategyRun) (model.StrategyRun, error) {
	query, args, err := r.qb.Insert("strategy_runs").
		Columns("strategy_id", "status", "started_at", "ended_at").
		Values(run.StrategyID, string(run.Status), run.StartedAt.UTC(), nullTime(run.EndedAt)).
		ToSql()
	if err != nil {
		return model.StrategyRun{}, fmt.Errorf("build insert run: %w", err)
	}

	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return model.StrategyRun{}, fmt.Errorf("create run for strategy %d: %w", run.StrategyID, err)
	}
	run.ID, err = result.LastInsertId()
	if err != nil {
		return model.StrategyRun{}, fmt.Errorf("create run for strategy %d: last insert id: %w", run.StrategyID, err)
	}
	return run, nil
}

// UpdateRun changes the status and end time of a run.
func (r *StrategyRepo) UpdateRun(ctx context.Context, run model.StrategyRun) error {
	query, args, err := r.qb.Update("strategy_runs").
		Set("status", string(run.Status)).
		Set("ended_at", nullTime(run.EndedAt)).
		Where(sq.Eq{"id": run.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update run: %w", err)
	}
	if _, err := r.db.Writer.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update run %d: %w", run.ID, err)
	}
	return nil
}

func scanStrategy(row rowScanner) (model.Strategy, error) {
	var s model.Strategy
	var params, createdAt, status string
	if err := row.Scan(&s.ID, &s.AccountID, &s.Name, &s.Type, &params, &s.Enabled, &createdAt, &status); err != nil {
		return model.Strategy{}, err
	}

	var err error
	s.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return model.Strategy{}, fmt.Errorf("parse created_at for strategy %d: %w", s.ID, err)
	}
	s.Params = json.RawMessage(params)
	s.Status = model.StrategyStatus(status)
	return s, nil
}

func scanRun(row rowScanner) (model.StrategyRun, error) {
	var run model.StrategyRun
	var status, startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&run.ID, &run.StrategyID, &status, &startedAt, &endedAt); err != nil {
		return model.StrategyRun{}, err
	}
	run.Status = model.StrategyStatus(status)

	var err error
	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return model.StrategyRun{}, fmt.Errorf("parse started_at for run %d: %w", run.ID, err)
	}
	if endedAt.Valid {
		ended, err := parseTime(endedAt.String)
		if err != nil {
			return model.StrategyRun{}, fmt.Errorf("parse ended_at for run %d: %w", run.ID, err)
		}
		run.EndedAt = &ended
	}
	return run, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

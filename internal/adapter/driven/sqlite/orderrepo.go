package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.OrderLedger = (*OrderRepo)(nil)

// OrderRepo is the SQLite implementation of the OrderLedger port interface.
type OrderRepo struct {
	db *DB
	qb sq.StatementBuilderType
}

// NewOrderRepo creates a new OrderRepo backed by the given DB.
func NewOrderRepo(db *DB) *OrderRepo {
	return &OrderRepo{db: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// Record inserts a ledger entry.
func (r *OrderRepo) Record(ctx context.Context, o model.OrderRecord) (model.OrderRecord, error) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	var strategyID any
	if o.StrategyID != nil {
		strategyID = *o.StrategyID
	}

	query, args, err := r.qb.Insert("orders").
		Columns("account_id", "strategy_id", "broker_order_id", "symbol", "quantity", "price", "status", "response_json", "created_at").
		Values(o.AccountID, strategyID, o.BrokerOrderID, o.Symbol, o.Quantity, o.Price, o.Status, string(o.Response), o.CreatedAt).
		ToSql()
	if err != nil {
		return model.OrderRecord{}, fmt.Errorf("build insert order: %w", err)
	}

	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return model.OrderRecord{}, fmt.Errorf("record order for account %d: %w", o.AccountID, err)
	}
	o.ID, err = result.LastInsertId()
	if err != nil {
		return model.OrderRecord{}, fmt.Errorf("record order for account %d: last insert id: %w", o.AccountID, err)
	}
	return o, nil
}

// ListByAccount returns up to limit entries newest first.
func (r *OrderRepo) ListByAccount(ctx context.Context, accountID int64, limit int) ([]model.OrderRecord, error) {
	query, args, err := r.qb.Select(
		"id", "account_id", "strategy_id", "broker_order_id", "symbol",
		"quantity", "price", "status", "response_json", "created_at",
	).
		From("orders").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list orders: %w", err)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var orders []model.OrderRecord
	for rows.Next() {
		var o model.OrderRecord
		var strategyID sql.NullInt64
		var response, createdAt string
		err := rows.Scan(&o.ID, &o.AccountID, &strategyID, &o.BrokerOrderID, &o.Symbol,
			&o.Quantity, &o.Price, &o.Status, &response, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if strategyID.Valid {
			id := strategyID.Int64
			o.StrategyID = &id
		}
		if response != "" {
			o.Response = json.RawMessage(response)
		}
		o.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for order %d: %w", o.ID, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

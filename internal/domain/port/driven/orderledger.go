package driven

import (
	"context"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
)

// OrderLedger defines the driven port for the record of orders submitted
// through this server.
type OrderLedger interface {
	// Record inserts an entry and returns it with ID and CreatedAt set.
	Record(ctx context.Context, order model.OrderRecord) (model.OrderRecord, error)

	// ListByAccount returns up to limit entries newest first.
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]model.OrderRecord, error)
}

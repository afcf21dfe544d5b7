package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
)

var (
	// ErrAccountNotFound indicates the account does not exist or belongs to
	// another operator.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists indicates the operator already registered the client code.
	ErrAccountExists = errors.New("account already exists")
)

// AccountStore defines the driven port for broker account records.
type AccountStore interface {
	// Create inserts an account and returns it with ID and CreatedAt set.
	Create(ctx context.Context, account model.Account) (model.Account, error)

	// Get returns the account owned by userID. Returns ErrAccountNotFound
	// when missing.
	Get(ctx context.Context, userID, accountID int64) (model.Account, error)

	// ListByUser returns the operator's accounts ordered by creation.
	ListByUser(ctx context.Context, userID int64) ([]model.Account, error)

	// Update changes name and client code.
	Update(ctx context.Context, account model.Account) (model.Account, error)

	// Delete removes the account and its secrets and snapshots.
	Delete(ctx context.Context, userID, accountID int64) error

	// SetDefault flags one account as default and clears the flag on the
	// operator's other accounts.
	SetDefault(ctx context.Context, userID, accountID int64) error
}

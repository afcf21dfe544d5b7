package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
)

var (
	ErrUserExists   = errors.New("username already registered")
	ErrUserNotFound = errors.New("user not found")
)

// UserStore defines the driven port for operator accounts.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash string) (model.User, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
	GetByID(ctx context.Context, id int64) (model.User, error)
}

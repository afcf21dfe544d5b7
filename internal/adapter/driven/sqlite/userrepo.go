package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.UserStore = (*UserRepo)(nil)

// UserRepo is the SQLite implementation of the UserStore port interface.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new UserRepo backed by the given DB.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts an operator. Returns driven.ErrUserExists for a taken
// username.
func (r *UserRepo) Create(ctx context.Context, username, passwordHash string) (model.User, error) {
	const query = `INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`

	now := time.Now().UTC()
	result, err := r.db.Writer.ExecContext(ctx, query, username, passwordHash, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return model.User{}, fmt.Errorf("create user %s: %w", username, driven.ErrUserExists)
		}
		return model.User{}, fmt.Errorf("create user %s: %w", username, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return model.User{}, fmt.Errorf("create user %s: last insert id: %w", username, err)
	}

	return model.User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// GetByUsername returns driven.ErrUserNotFound when no row matches.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	const query = `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`
	return r.scanOne(r.db.Reader.QueryRowContext(ctx, query, username), username)
}

// GetByID returns driven.ErrUserNotFound when no row matches.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (model.User, error) {
	const query = `SELECT id, username, password_hash, created_at FROM users WHERE id = ?`
	return r.scanOne(r.db.Reader.QueryRowContext(ctx, query, id), fmt.Sprintf("#%d", id))
}

func (r *UserRepo) scanOne(row *sql.Row, label string) (model.User, error) {
	var u model.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("get user %s: %w", label, driven.ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", label, err)
	}

	u.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return model.User{}, fmt.Errorf("parse created_at for user %s: %w", label, err)
	}
	return u, nil
}

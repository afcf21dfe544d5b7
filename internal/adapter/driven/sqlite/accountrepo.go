package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AccountStore = (*AccountRepo)(nil)

var accountColumns = []string{"id", "user_id", "name", "client_code", "is_default", "created_at"}

// AccountRepo is the SQLite implementation of the AccountStore port
// interface. Queries are built with squirrel.
type AccountRepo struct {
	db *DB
	qb sq.StatementBuilderType
}

// NewAccountRepo creates a new AccountRepo backed by the given DB.
func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// Create inserts an account. Returns driven.ErrAccountExists when the
// operator already registered the client code.
func (r *AccountRepo) Create(ctx context.Context, account model.Account) (model.Account, error) {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	query, args, err := r.qb.Insert("accounts").
		Columns("user_id", "name", "client_code", "is_default", "created_at").
		Values(account.UserID, account.Name, account.ClientCode, account.IsDefault, account.CreatedAt).
		ToSql()
	if err != nil {
		return model.Account{}, fmt.Errorf("build insert account: %w", err)
	}

	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return model.Account{}, fmt.Errorf("create account %s: %w", account.ClientCode, driven.ErrAccountExists)
		}
		return model.Account{}, fmt.Errorf("create account %s: %w", account.ClientCode, err)
	}

	account.ID, err = result.LastInsertId()
	if err != nil {
		return model.Account{}, fmt.Errorf("create account %s: last insert id: %w", account.ClientCode, err)
	}
	return account, nil
}

// Get returns the account if it belongs to userID.
func (r *AccountRepo) Get(ctx context.Context, userID, accountID int64) (model.Account, error) {
	query, args, err := r.qb.Select(accountColumns...).
		From("accounts").
		Where(sq.Eq{"id": accountID, "user_id": userID}).
		ToSql()
	if err != nil {
		return model.Account{}, fmt.Errorf("build select account: %w", err)
	}

	a, err := scanAccount(r.db.Reader.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("get account %d: %w", accountID, driven.ErrAccountNotFound)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("get account %d: %w", accountID, err)
	}
	return a, nil
}

// ListByUser returns the operator's accounts oldest first.
func (r *AccountRepo) ListByUser(ctx context.Context, userID int64) ([]model.Account, error) {
	query, args, err := r.qb.Select(accountColumns...).
		From("accounts").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list accounts: %w", err)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts for user %d: %w", userID, err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// Update changes name and client code, scoped to the owner.
func (r *AccountRepo) Update(ctx context.Context, account model.Account) (model.Account, error) {
	query, args, err := r.qb.Update("accounts").
		Set("name", account.Name).
		Set("client_code", account.ClientCode).
		Where(sq.Eq{"id": account.ID, "user_id": account.UserID}).
		ToSql()
	if err != nil {
		return model.Account{}, fmt.Errorf("build update account: %w", err)
	}

	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return model.Account{}, fmt.Errorf("update account %d: %w", account.ID, driven.ErrAccountExists)
		}
		return model.Account{}, fmt.Errorf("update account %d: %w", account.ID, err)
	}
	if err := requireRow(result, account.ID); err != nil {
		return model.Account{}, err
	}

	return r.Get(ctx, account.UserID, account.ID)
}

// Delete removes the account. Secrets and snapshots cascade.
func (r *AccountRepo) Delete(ctx context.Context, userID, accountID int64) error {
	query, args, err := r.qb.Delete("accounts").
		Where(sq.Eq{"id": accountID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete account: %w", err)
	}

	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete account %d: %w", accountID, err)
	}
	return requireRow(result, accountID)
}

// SetDefault flags accountID and clears the flag on the operator's other
// accounts in one statement.
func (r *AccountRepo) SetDefault(ctx context.Context, userID, accountID int64) error {
	if _, err := r.Get(ctx, userID, accountID); err != nil {
		return err
	}

	query, args, err := r.qb.Update("accounts").
		Set("is_default", sq.Expr("CASE WHEN id = ? THEN 1 ELSE 0 END", accountID)).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set default: %w", err)
	}

	if _, err := r.db.Writer.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set default account %d: %w", accountID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var a model.Account
	var createdAt string
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.ClientCode, &a.IsDefault, &createdAt); err != nil {
		return model.Account{}, err
	}

	var err error
	a.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return model.Account{}, fmt.Errorf("parse created_at for account %d: %w", a.ID, err)
	}
	return a, nil
}

func requireRow(result sql.Result, accountID int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("account %d: rows affected: %w", accountID, err)
	}
	if n == 0 {
		return fmt.Errorf("account %d: %w", accountID, driven.ErrAccountNotFound)
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port
// interface. API key, API secret, PIN and refresh token are encrypted with
// AES-256-GCM before write and decrypted after read; the base URL is stored
// in clear.
type CredentialRepo struct {
	db *DB
	sealer
}

// NewCredentialRepo creates a new CredentialRepo. key must be KeySize bytes,
// or nil to disable credential storage (operations other than Delete return
// driven.ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) (*CredentialRepo, error) {
	s, err := newSealer(key)
	if err != nil {
		return nil, err
	}
	return &CredentialRepo{db: db, sealer: s}, nil
}

// Set stores or replaces the secrets of an account.
func (r *CredentialRepo) Set(ctx context.Context, secret model.AccountSecret) error {
	sealed, err := r.sealAll(secret.APIKey, secret.APISecret, secret.PIN, secret.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt credentials for account %d: %w", secret.AccountID, err)
	}

	const query = `INSERT OR REPLACE INTO account_secrets
		(account_id, api_key, api_secret, pin, base_url, refresh_token, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.Writer.ExecContext(ctx, query,
		secret.AccountID, sealed[0], sealed[1], sealed[2], secret.BaseURL, sealed[3], time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set credentials for account %d: %w", secret.AccountID, err)
	}
	return nil
}

// Get returns the decrypted secrets of an account, or (nil, nil) if none are
// stored.
func (r *CredentialRepo) Get(ctx context.Context, accountID int64) (*model.AccountSecret, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT api_key, api_secret, pin, base_url, refresh_token, updated_at
		FROM account_secrets WHERE account_id = ?`

	var enc [4]string
	var updatedAt string
	secret := model.AccountSecret{AccountID: accountID}

	err := r.db.Reader.QueryRowContext(ctx, query, accountID).
		Scan(&enc[0], &enc[1], &enc[2], &secret.BaseURL, &enc[3], &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials for account %d: %w", accountID, err)
	}

	targets := []*string{&secret.APIKey, &secret.APISecret, &secret.PIN, &secret.RefreshToken}
	for i, target := range targets {
		// The column defaults to an empty string.
		if enc[i] == "" {
			continue
		}
		if *target, err = r.open(enc[i]); err != nil {
			return nil, fmt.Errorf("decrypt credentials for account %d: %w", accountID, err)
		}
	}

	secret.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for account %d: %w", accountID, err)
	}
	return &secret, nil
}

// SetRefreshToken replaces only the stored refresh token. Returns
// driven.ErrAccountNotFound when the account has no stored secrets.
func (r *CredentialRepo) SetRefreshToken(ctx context.Context, accountID int64, refreshToken string) error {
	sealed, err := r.seal(refreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token for account %d: %w", accountID, err)
	}

	const query = `UPDATE account_secrets SET refresh_token = ?, updated_at = ? WHERE account_id = ?`
	result, err := r.db.Writer.ExecContext(ctx, query, sealed, time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("set refresh token for account %d: %w", accountID, err)
	}
	return requireRow(result, accountID)
}

// Delete removes the secrets of an account. Deleting nothing is not an error.
func (r *CredentialRepo) Delete(ctx context.Context, accountID int64) error {
	const query = `DELETE FROM account_secrets WHERE account_id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("delete credentials for account %d: %w", accountID, err)
	}
	return nil
}

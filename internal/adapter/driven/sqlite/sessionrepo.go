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

// Compile-time interface satisfaction checks.
var (
	_ driven.SessionStore   = (*SessionRepo)(nil)
	_ driven.SnapshotPruner = (*SessionRepo)(nil)
)

// SessionRepo is the SQLite implementation of the SessionStore port
// interface. The JSON snapshot is encrypted as a whole; token_expiry is kept
// in clear for housekeeping queries.
type SessionRepo struct {
	db *DB
	sealer
}

// NewSessionRepo creates a new SessionRepo with the same key rules as
// NewCredentialRepo.
func NewSessionRepo(db *DB, key []byte) (*SessionRepo, error) {
	s, err := newSealer(key)
	if err != nil {
		return nil, err
	}
	return &SessionRepo{db: db, sealer: s}, nil
}

// Save stores or replaces the snapshot of an account.
func (r *SessionRepo) Save(ctx context.Context, accountID int64, snapshot model.SessionSnapshot) error {
	data, err := model.MarshalSnapshot(snapshot)
	if err != nil {
		return err
	}
	sealed, err := r.seal(string(data))
	if err != nil {
		return fmt.Errorf("encrypt session for account %d: %w", accountID, err)
	}

	const query = `INSERT OR REPLACE INTO session_snapshots (account_id, snapshot, token_expiry, updated_at)
		VALUES (?, ?, ?, ?)`
	_, err = r.db.Writer.ExecContext(ctx, query, accountID, sealed, snapshot.TokenExpiry.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save session for account %d: %w", accountID, err)
	}
	return nil
}

// Load returns the stored snapshot, or (nil, nil) if none exists.
func (r *SessionRepo) Load(ctx context.Context, accountID int64) (*model.SessionSnapshot, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT snapshot FROM session_snapshots WHERE account_id = ?`
	var sealed string
	err := r.db.Reader.QueryRowContext(ctx, query, accountID).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session for account %d: %w", accountID, err)
	}

	plaintext, err := r.open(sealed)
	if err != nil {
		return nil, fmt.Errorf("decrypt session for account %d: %w", accountID, err)
	}

	snapshot, err := model.UnmarshalSnapshot([]byte(plaintext))
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", accountID, err)
	}
	return &snapshot, nil
}

// Delete removes the snapshot of an account. Deleting nothing is not an error.
func (r *SessionRepo) Delete(ctx context.Context, accountID int64) error {
	const query = `DELETE FROM session_snapshots WHERE account_id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("delete session for account %d: %w", accountID, err)
	}
	return nil
}

// PruneExpired deletes snapshots whose token expired before cutoff and
// returns the number removed. Refresh tokens survive in account_secrets.
func (r *SessionRepo) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM session_snapshots WHERE token_expiry < ?`
	result, err := r.db.Writer.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune sessions: rows affected: %w", err)
	}
	return n, nil
}

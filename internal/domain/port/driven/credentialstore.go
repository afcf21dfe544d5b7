package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore and SessionStore
// operations when ALGOPILOT_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set ALGOPILOT_SECRET_KEY")

// CredentialStore defines the driven port for encrypted broker credential
// persistence. The adapter encrypts; this interface speaks plaintext.
type CredentialStore interface {
	// Set stores or replaces the secrets of an account.
	Set(ctx context.Context, secret model.AccountSecret) error

	// Get returns the secrets of an account, or (nil, nil) if none are stored.
	Get(ctx context.Context, accountID int64) (*model.AccountSecret, error)

	// SetRefreshToken updates only the stored refresh token.
	SetRefreshToken(ctx context.Context, accountID int64, refreshToken string) error

	// Delete removes the secrets of an account.
	Delete(ctx context.Context, accountID int64) error
}

// SessionStore persists the last issued session snapshot per account so a
// restarted process can restore without a new one-time code.
type SessionStore interface {
	Save(ctx context.Context, accountID int64, snapshot model.SessionSnapshot) error
	// Load returns (nil, nil) when no snapshot is stored.
	Load(ctx context.Context, accountID int64) (*model.SessionSnapshot, error)
	Delete(ctx context.Context, accountID int64) error
}

// SnapshotPruner removes snapshots whose access token expired before cutoff.
type SnapshotPruner interface {
	PruneExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

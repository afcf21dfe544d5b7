package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

var (
	// ErrCredentialsMissing indicates an account has no stored broker secrets.
	ErrCredentialsMissing = errors.New("account has no stored broker credentials")
	// ErrNoAccounts indicates the operator has not registered any account.
	ErrNoAccounts = errors.New("no broker accounts registered")
)

// SessionStatus describes the live session as seen by one operator.
type SessionStatus struct {
	Active    bool
	AccountID int64
	Session   model.ActiveSession
}

// SessionService connects stored accounts to the SessionManager. It
// resolves credentials, persists the snapshots the manager hands back, and
// restores a stored session when the process holds no live client.
type SessionService struct {
	manager  *SessionManager
	accounts driven.AccountStore
	secrets  driven.CredentialStore
	sessions driven.SessionStore
}

// NewSessionService creates a new SessionService with the required dependencies.
func NewSessionService(
	manager *SessionManager,
	accounts driven.AccountStore,
	secrets driven.CredentialStore,
	sessions driven.SessionStore,
) *SessionService {
	return &SessionService{
		manager:  manager,
		accounts: accounts,
		secrets:  secrets,
		sessions: sessions,
	}
}

// Switch activates accountID with an optional one-time code and persists the
// resulting snapshot.
func (s *SessionService) Switch(ctx context.Context, userID, accountID int64, oneTimeCode string) (*Activation, error) {
	account, secret, err := s.load(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	act, err := s.manager.Activate(ctx, ActivateRequest{
		AccountID:    accountID,
		Credentials:  secret.Credentials(account.ClientCode),
		OneTimeCode:  oneTimeCode,
		RefreshToken: secret.RefreshToken,
	})
	if err != nil {
		return nil, err
	}

	s.persist(ctx, accountID, act.Snapshot)
	return act, nil
}

// Restore installs a session for accountID from snapshot, or from the stored
// snapshot when snapshot is nil.
func (s *SessionService) Restore(ctx context.Context, userID, accountID int64, snapshot *model.SessionSnapshot) (*Activation, error) {
	account, secret, err := s.load(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	if snapshot == nil {
		snapshot, err = s.sessions.Load(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("loading session snapshot for account %d: %w", accountID, err)
		}
		if snapshot == nil {
			return nil, model.NeedsOneTimeCode("no stored session; switch to the account with a one-time code", nil)
		}
	}

	act, err := s.manager.Restore(ctx, accountID, secret.Credentials(account.ClientCode), *snapshot)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, accountID, act.Snapshot)
	return act, nil
}

// Status reports whether the live session belongs to one of userID's
// accounts.
func (s *SessionService) Status(ctx context.Context, userID int64) (SessionStatus, error) {
	status, _, err := s.current(ctx, userID)
	return status, err
}

// current reads the live record once and returns it with its client only
// when it belongs to one of userID's accounts.
func (s *SessionService) current(ctx context.Context, userID int64) (SessionStatus, driven.BrokerClient, error) {
	active, client, ok := s.manager.Current()
	if !ok {
		return SessionStatus{}, nil, nil
	}
	if _, err := s.accounts.Get(ctx, userID, active.AccountID); err != nil {
		if errors.Is(err, driven.ErrAccountNotFound) {
			return SessionStatus{}, nil, nil
		}
		return SessionStatus{}, nil, fmt.Errorf("checking active account: %w", err)
	}
	return SessionStatus{
		Active:    client.IsValid(),
		AccountID: active.AccountID,
		Session:   active,
	}, client, nil
}

// Live reports whether any broker session is installed and valid.
func (s *SessionService) Live() bool {
	return s.manager.IsActive()
}

// End deactivates the live session of userID. With logout it first asks the
// broker to invalidate the tokens; a failed logout is logged and the session
// is dropped anyway. The stored snapshot is removed either way. A session
// that another operator installed in the meantime is left alone.
func (s *SessionService) End(ctx context.Context, userID int64, logout bool) error {
	status, client, err := s.current(ctx, userID)
	if err != nil {
		return err
	}
	if status.AccountID == 0 {
		return nil
	}

	if logout {
		if err := client.Logout(ctx); err != nil {
			slog.Warn("broker logout failed", "account_id", status.AccountID, "error", err)
		}
	}
	s.manager.DeactivateIf(status.AccountID)

	if err := s.sessions.Delete(ctx, status.AccountID); err != nil {
		return fmt.Errorf("deleting session snapshot for account %d: %w", status.AccountID, err)
	}
	return nil
}

// Client returns the broker client serving userID. When the live session
// belongs to one of the operator's accounts it is used as is. Otherwise the
// default account is chosen (flagged default, else first created) and its
// stored session restored.
func (s *SessionService) Client(ctx context.Context, userID int64) (driven.BrokerClient, error) {
	_, client, err := s.Bound(ctx, userID)
	return client, err
}

// Bound is Client that also reports which account the client is bound to.
func (s *SessionService) Bound(ctx context.Context, userID int64) (int64, driven.BrokerClient, error) {
	status, client, err := s.current(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	if status.AccountID != 0 {
		return status.AccountID, client, nil
	}

	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return 0, nil, fmt.Errorf("listing accounts: %w", err)
	}
	target := model.SelectDefault(accounts)
	if target == nil {
		return 0, nil, ErrNoAccounts
	}

	snapshot, err := s.sessions.Load(ctx, target.ID)
	if err != nil {
		return 0, nil, fmt.Errorf("loading session snapshot for account %d: %w", target.ID, err)
	}
	if snapshot == nil {
		return 0, nil, &model.AuthError{
			Kind:                model.KindUnauthenticated,
			Message:             fmt.Sprintf("no active session for account %q; switch to it with a one-time code", target.Name),
			RequiresOneTimeCode: true,
		}
	}

	act, err := s.Restore(ctx, userID, target.ID, snapshot)
	if err != nil {
		return 0, nil, err
	}
	slog.Info("broker session restored on demand", "account_id", target.ID)
	return target.ID, act.client, nil
}

// ActiveOrDefault returns the account of the operator's live session, or the
// default account when none is live. No broker call is made.
func (s *SessionService) ActiveOrDefault(ctx context.Context, userID int64) (int64, error) {
	status, _, err := s.current(ctx, userID)
	if err != nil {
		return 0, err
	}
	if status.AccountID != 0 {
		return status.AccountID, nil
	}

	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("listing accounts: %w", err)
	}
	target := model.SelectDefault(accounts)
	if target == nil {
		return 0, ErrNoAccounts
	}
	return target.ID, nil
}

func (s *SessionService) load(ctx context.Context, userID, accountID int64) (model.Account, *model.AccountSecret, error) {
	account, err := s.accounts.Get(ctx, userID, accountID)
	if err != nil {
		return model.Account{}, nil, fmt.Errorf("loading account %d: %w", accountID, err)
	}

	secret, err := s.secrets.Get(ctx, accountID)
	if err != nil {
		return model.Account{}, nil, fmt.Errorf("loading credentials for account %d: %w", accountID, err)
	}
	if secret == nil {
		return model.Account{}, nil, ErrCredentialsMissing
	}
	return account, secret, nil
}

// persist stores the snapshot and refresh token. Failures are logged: the
// session is live regardless, it just will not survive a restart.
func (s *SessionService) persist(ctx context.Context, accountID int64, snapshot model.SessionSnapshot) {
	if err := s.sessions.Save(ctx, accountID, snapshot); err != nil {
		slog.Error("failed to persist session snapshot", "account_id", accountID, "error", err)
	}
	if snapshot.RefreshToken == "" {
		return
	}
	if err := s.secrets.SetRefreshToken(ctx, accountID, snapshot.RefreshToken); err != nil {
		slog.Error("failed to persist refresh token", "account_id", accountID, "error", err)
	}
}

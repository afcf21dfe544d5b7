package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// ErrInvalidInput is wrapped by validation failures.
var ErrInvalidInput = errors.New("invalid input")

// AccountInput holds the editable fields of an account.
type AccountInput struct {
	Name       string
	ClientCode string
	IsDefault  bool
	Secrets    *SecretInput
}

// SecretInput holds broker secrets supplied by the operator.
type SecretInput struct {
	APIKey    string
	APISecret string
	PIN       string
	BaseURL   string
}

// AccountView decorates an account with its session status.
type AccountView struct {
	model.Account
	Status         model.AccountStatus
	HasCredentials bool
}

// AccountService manages broker account records and their secrets. Status
// comes from the SessionManager, the single source of the active account.
type AccountService struct {
	accounts       driven.AccountStore
	secrets        driven.CredentialStore
	sessions       driven.SessionStore
	manager        *SessionManager
	defaultBaseURL string
}

// NewAccountService creates a new AccountService. defaultBaseURL fills
// secrets submitted without a base URL.
func NewAccountService(
	accounts driven.AccountStore,
	secrets driven.CredentialStore,
	sessions driven.SessionStore,
	manager *SessionManager,
	defaultBaseURL string,
) *AccountService {
	return &AccountService{
		accounts:       accounts,
		secrets:        secrets,
		sessions:       sessions,
		manager:        manager,
		defaultBaseURL: defaultBaseURL,
	}
}

// Create registers an account. The operator's first account becomes the
// default automatically.
func (s *AccountService) Create(ctx context.Context, userID int64, in AccountInput) (AccountView, error) {
	name := strings.TrimSpace(in.Name)
	code := strings.TrimSpace(in.ClientCode)
	if name == "" || code == "" {
		return AccountView{}, fmt.Errorf("%w: name and client code are required", ErrInvalidInput)
	}

	existing, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return AccountView{}, fmt.Errorf("listing accounts: %w", err)
	}

	account, err := s.accounts.Create(ctx, model.Account{UserID: userID, Name: name, ClientCode: code})
	if err != nil {
		return AccountView{}, fmt.Errorf("creating account: %w", err)
	}

	if in.Secrets != nil {
		if err := s.storeSecrets(ctx, account.ID, *in.Secrets); err != nil {
			return AccountView{}, err
		}
	}

	if in.IsDefault || len(existing) == 0 {
		if err := s.accounts.SetDefault(ctx, userID, account.ID); err != nil {
			return AccountView{}, fmt.Errorf("setting default account: %w", err)
		}
		account.IsDefault = true
	}

	return s.view(ctx, account)
}

// List returns the operator's accounts with status.
func (s *AccountService) List(ctx context.Context, userID int64) ([]AccountView, error) {
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	views := make([]AccountView, 0, len(accounts))
	for _, a := range accounts {
		v, err := s.view(ctx, a)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Update renames an account or changes its client code.
func (s *AccountService) Update(ctx context.Context, userID, accountID int64, in AccountInput) (AccountView, error) {
	account, err := s.accounts.Get(ctx, userID, accountID)
	if err != nil {
		return AccountView{}, fmt.Errorf("loading account %d: %w", accountID, err)
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		account.Name = name
	}
	if code := strings.TrimSpace(in.ClientCode); code != "" {
		account.ClientCode = code
	}

	updated, err := s.accounts.Update(ctx, account)
	if err != nil {
		return AccountView{}, fmt.Errorf("updating account %d: %w", accountID, err)
	}
	if in.IsDefault {
		if err := s.accounts.SetDefault(ctx, userID, accountID); err != nil {
			return AccountView{}, fmt.Errorf("setting default account: %w", err)
		}
		updated.IsDefault = true
	}
	return s.view(ctx, updated)
}

// SetCredentials replaces the stored secrets of an account. A live session
// on the account, the stored refresh token and the snapshot all belong to
// the old credentials and are dropped.
func (s *AccountService) SetCredentials(ctx context.Context, userID, accountID int64, in SecretInput) error {
	if _, err := s.accounts.Get(ctx, userID, accountID); err != nil {
		return fmt.Errorf("loading account %d: %w", accountID, err)
	}
	if err := s.storeSecrets(ctx, accountID, in); err != nil {
		return err
	}
	s.manager.DeactivateIf(accountID)
	if err := s.sessions.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("clearing session snapshot: %w", err)
	}
	return nil
}

// SetDefault flags accountID as the operator's default account.
func (s *AccountService) SetDefault(ctx context.Context, userID, accountID int64) error {
	if err := s.accounts.SetDefault(ctx, userID, accountID); err != nil {
		return fmt.Errorf("setting default account %d: %w", accountID, err)
	}
	return nil
}

// Delete removes an account. A live session on it is deactivated first.
func (s *AccountService) Delete(ctx context.Context, userID, accountID int64) error {
	if _, err := s.accounts.Get(ctx, userID, accountID); err != nil {
		return fmt.Errorf("loading account %d: %w", accountID, err)
	}

	s.manager.DeactivateIf(accountID)

	if err := s.sessions.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("deleting session snapshot: %w", err)
	}
	if err := s.secrets.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	if err := s.accounts.Delete(ctx, userID, accountID); err != nil {
		return fmt.Errorf("deleting account %d: %w", accountID, err)
	}
	return nil
}

func (s *AccountService) storeSecrets(ctx context.Context, accountID int64, in SecretInput) error {
	if in.APIKey == "" || in.PIN == "" {
		return fmt.Errorf("%w: api key and pin are required", ErrInvalidInput)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(in.BaseURL), "/")
	if baseURL == "" {
		baseURL = s.defaultBaseURL
	}

	err := s.secrets.Set(ctx, model.AccountSecret{
		AccountID: accountID,
		APIKey:    in.APIKey,
		APISecret: in.APISecret,
		PIN:       in.PIN,
		BaseURL:   baseURL,
	})
	if err != nil {
		return fmt.Errorf("storing credentials for account %d: %w", accountID, err)
	}
	return nil
}

func (s *AccountService) view(ctx context.Context, a model.Account) (AccountView, error) {
	secret, err := s.secrets.Get(ctx, a.ID)
	if err != nil && !errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		return AccountView{}, fmt.Errorf("loading credentials for account %d: %w", a.ID, err)
	}

	status := model.AccountStatusInactive
	if active, client, ok := s.manager.Current(); ok && active.AccountID == a.ID && client.IsValid() {
		status = model.AccountStatusActive
	}

	return AccountView{
		Account:        a,
		Status:         status,
		HasCredentials: secret != nil,
	}, nil
}

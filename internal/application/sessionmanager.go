package application

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
	"github.com/ericfisherdev/algopilot/internal/metrics"
)

// ActivateRequest carries everything needed to open a broker session for
// one account. OneTimeCode may be empty when a refresh is possible.
// RefreshToken is the previously stored token for the account, if any.
type ActivateRequest struct {
	AccountID    int64
	Credentials  model.Credentials
	OneTimeCode  string
	RefreshToken string
}

// Activation is the result of a successful Activate or Restore: the
// installed record plus the snapshot a caller should persist.
type Activation struct {
	model.ActiveSession
	Snapshot model.SessionSnapshot

	client driven.BrokerClient
}

// activeRecord pairs the published session record with its live client.
// Records are immutable once stored.
type activeRecord struct {
	session model.ActiveSession
	client  driven.BrokerClient
}

// SessionManager owns the single live broker session of the process.
// Activate, Deactivate and Restore are serialized by one mutex held across
// the broker round-trip. Reads never block: they load the last published
// record.
type SessionManager struct {
	newClient driven.BrokerClientFactory
	metrics   *metrics.Metrics
	now       func() time.Time

	mu     sync.Mutex
	active atomic.Pointer[activeRecord]
}

// NewSessionManager creates an idle manager. m may be nil.
func NewSessionManager(factory driven.BrokerClientFactory, m *metrics.Metrics) *SessionManager {
	return &SessionManager{
		newClient: factory,
		metrics:   m,
		now:       time.Now,
	}
}

// Activate opens a session for req.AccountID. A different active account is
// torn down first. An already valid session for the same account is reused
// when no code is given. Without a code the manager refreshes when a refresh
// token is known and otherwise fails with NeedsOneTimeCode without any
// network call. A failed attempt for the active account leaves its record
// in place.
func (m *SessionManager) Activate(ctx context.Context, req ActivateRequest) (*Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.active.Load(); cur != nil && cur.session.AccountID != req.AccountID {
		m.deactivateLocked("switch")
	}

	cur := m.active.Load()
	if cur != nil && req.OneTimeCode == "" && cur.client.IsValid() {
		m.metrics.ObserveTransition("activate", "reused")
		return m.activation(cur), nil
	}

	refreshToken := req.RefreshToken
	if cur != nil {
		if rt := cur.client.Session().RefreshToken; rt != "" {
			refreshToken = rt
		}
	}

	client := m.newClient(req.Credentials)

	var err error
	switch {
	case req.OneTimeCode != "":
		_, err = client.Login(ctx, req.OneTimeCode)
	case refreshToken != "":
		client.RestoreSession(model.SessionSnapshot{RefreshToken: refreshToken})
		if _, rerr := client.Refresh(ctx); rerr != nil {
			err = model.NeedsOneTimeCode("session refresh failed; log in with a one-time code", rerr)
		}
	default:
		err = model.NeedsOneTimeCode("no valid session or refresh token; a one-time code is required", nil)
	}

	if err != nil {
		m.metrics.ObserveTransition("activate", outcomeOf(err))
		slog.Warn("broker session activation failed", "account_id", req.AccountID, "error", err)
		return nil, err
	}

	rec := m.install(req.AccountID, client)
	m.metrics.ObserveTransition("activate", "ok")
	slog.Info("broker session activated",
		"account_id", req.AccountID,
		"credentials", req.Credentials,
		"expires_at", rec.session.TokenExpiry,
	)
	return m.activation(rec), nil
}

// Restore installs a session from a previously issued snapshot without a
// one-time code. An expired snapshot is refreshed when it holds a refresh
// token; otherwise Restore fails with TokenExpired. Any failure leaves the
// manager idle.
func (m *SessionManager) Restore(ctx context.Context, accountID int64, creds model.Credentials, snapshot model.SessionSnapshot) (*Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.active.Load(); cur != nil {
		m.deactivateLocked("restore")
	}

	client := m.newClient(creds)
	client.RestoreSession(snapshot)

	if !client.IsValid() {
		if snapshot.RefreshToken == "" {
			err := &model.AuthError{
				Kind:                model.KindTokenExpired,
				Message:             "stored session expired and holds no refresh token",
				RequiresOneTimeCode: true,
			}
			m.metrics.ObserveTransition("restore", outcomeOf(err))
			return nil, err
		}
		if _, err := client.Refresh(ctx); err != nil {
			wrapped := model.NeedsOneTimeCode("stored session could not be refreshed", err)
			m.metrics.ObserveTransition("restore", outcomeOf(wrapped))
			slog.Warn("broker session restore failed", "account_id", accountID, "error", err)
			return nil, wrapped
		}
	}

	rec := m.install(accountID, client)
	m.metrics.ObserveTransition("restore", "ok")
	slog.Info("broker session restored", "account_id", accountID, "expires_at", rec.session.TokenExpiry)
	return m.activation(rec), nil
}

// Deactivate drops the active session. It does not log out remotely and is
// a no-op when idle.
func (m *SessionManager) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivateLocked("deactivate")
}

// DeactivateIf drops the active session only while it belongs to accountID.
// It reports whether a session was dropped.
func (m *SessionManager) DeactivateIf(accountID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.active.Load()
	if cur == nil || cur.session.AccountID != accountID {
		return false
	}
	m.deactivateLocked("deactivate")
	return true
}

func (m *SessionManager) deactivateLocked(reason string) {
	prev := m.active.Swap(nil)
	if prev == nil {
		return
	}
	m.metrics.ObserveTransition("deactivate", reason)
	m.metrics.SetSessionActive(false)
	slog.Info("broker session deactivated", "account_id", prev.session.AccountID, "reason", reason)
}

func (m *SessionManager) install(accountID int64, client driven.BrokerClient) *activeRecord {
	state := client.Session()
	rec := &activeRecord{
		session: model.ActiveSession{
			AccountID:   accountID,
			AccessToken: state.AccessToken,
			FeedToken:   state.FeedToken,
			TokenExpiry: state.TokenExpiry,
			ActivatedAt: m.now(),
		},
		client: client,
	}
	m.active.Store(rec)
	m.metrics.SetSessionActive(true)
	return rec
}

func (m *SessionManager) activation(rec *activeRecord) *Activation {
	return &Activation{
		ActiveSession: rec.session,
		Snapshot:      rec.client.Session().Snapshot(),
		client:        rec.client,
	}
}

// ActiveAccountID returns the account owning the live session.
func (m *SessionManager) ActiveAccountID() (int64, bool) {
	rec := m.active.Load()
	if rec == nil {
		return 0, false
	}
	return rec.session.AccountID, true
}

// IsActive reports whether a session is installed and its token is valid.
func (m *SessionManager) IsActive() bool {
	rec := m.active.Load()
	return rec != nil && rec.client.IsValid()
}

// Client returns the live client, or nil when idle.
func (m *SessionManager) Client() driven.BrokerClient {
	rec := m.active.Load()
	if rec == nil {
		return nil
	}
	return rec.client
}

// Current returns the installed record together with its client, both from
// the same published record.
func (m *SessionManager) Current() (model.ActiveSession, driven.BrokerClient, bool) {
	rec := m.active.Load()
	if rec == nil {
		return model.ActiveSession{}, nil, false
	}
	return rec.session, rec.client, true
}

// Active returns a copy of the installed record.
func (m *SessionManager) Active() (model.ActiveSession, bool) {
	rec := m.active.Load()
	if rec == nil {
		return model.ActiveSession{}, false
	}
	return rec.session, true
}

func outcomeOf(err error) string {
	if ae, ok := model.AsAuthError(err); ok {
		return string(ae.Kind)
	}
	return "error"
}

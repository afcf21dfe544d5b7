package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockUserStore struct {
	mu    sync.Mutex
	users []model.User
}

func (m *mockUserStore) Create(_ context.Context, username, hash string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return model.User{}, driven.ErrUserExists
		}
	}
	u := model.User{ID: int64(len(m.users) + 1), Username: username, PasswordHash: hash, CreatedAt: time.Now()}
	m.users = append(m.users, u)
	return u, nil
}

func (m *mockUserStore) GetByUsername(_ context.Context, username string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, driven.ErrUserNotFound
}

func (m *mockUserStore) GetByID(_ context.Context, id int64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, driven.ErrUserNotFound
}

type mockAccountStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]model.Account
	listErr  error
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{accounts: make(map[int64]model.Account)}
}

func (m *mockAccountStore) Create(_ context.Context, a model.Account) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.UserID == a.UserID && existing.ClientCode == a.ClientCode {
			return model.Account{}, driven.ErrAccountExists
		}
	}
	m.nextID++
	a.ID = m.nextID
	a.CreatedAt = time.Date(2026, 1, 1, 0, int(a.ID), 0, 0, time.UTC)
	m.accounts[a.ID] = a
	return a, nil
}

func (m *mockAccountStore) Get(_ context.Context, userID, accountID int64) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok || a.UserID != userID {
		return model.Account{}, driven.ErrAccountNotFound
	}
	return a, nil
}

func (m *mockAccountStore) ListByUser(_ context.Context, userID int64) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Account
	for _, a := range m.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockAccountStore) Update(_ context.Context, a model.Account) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.accounts[a.ID]
	if !ok || cur.UserID != a.UserID {
		return model.Account{}, driven.ErrAccountNotFound
	}
	cur.Name = a.Name
	cur.ClientCode = a.ClientCode
	m.accounts[a.ID] = cur
	return cur, nil
}

func (m *mockAccountStore) Delete(_ context.Context, userID, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok || a.UserID != userID {
		return driven.ErrAccountNotFound
	}
	delete(m.accounts, accountID)
	return nil
}

func (m *mockAccountStore) SetDefault(_ context.Context, userID, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok || a.UserID != userID {
		return driven.ErrAccountNotFound
	}
	for id, other := range m.accounts {
		if other.UserID == userID {
			other.IsDefault = id == accountID
			m.accounts[id] = other
		}
	}
	return nil
}

type mockCredentialStore struct {
	mu      sync.Mutex
	secrets map[int64]model.AccountSecret
	err     error
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{secrets: make(map[int64]model.AccountSecret)}
}

func (m *mockCredentialStore) Set(_ context.Context, s model.AccountSecret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.secrets[s.AccountID] = s
	return nil
}

func (m *mockCredentialStore) Get(_ context.Context, accountID int64) (*model.AccountSecret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.secrets[accountID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *mockCredentialStore) SetRefreshToken(_ context.Context, accountID int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.secrets[accountID]
	if !ok {
		return driven.ErrAccountNotFound
	}
	s.RefreshToken = token
	m.secrets[accountID] = s
	return nil
}

func (m *mockCredentialStore) Delete(_ context.Context, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, accountID)
	return nil
}

type mockSessionStore struct {
	mu        sync.Mutex
	snapshots map[int64]model.SessionSnapshot
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{snapshots: make(map[int64]model.SessionSnapshot)}
}

func (m *mockSessionStore) Save(_ context.Context, accountID int64, s model.SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[accountID] = s
	return nil
}

func (m *mockSessionStore) Load(_ context.Context, accountID int64) (*model.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[accountID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *mockSessionStore) Delete(_ context.Context, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, accountID)
	return nil
}

// mockBroker implements driven.BrokerClient and records the last order.
type mockBroker struct {
	creds    model.Credentials
	loginErr error
	callErr  error

	mu      sync.Mutex
	state   model.SessionState
	placed  *model.OrderRequest
	cancels []string
	logouts int
	lastArg []string
}

func (m *mockBroker) Login(_ context.Context, code string) (model.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loginErr != nil {
		return model.SessionState{}, m.loginErr
	}
	m.state = model.SessionState{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + m.creds.ClientCode,
		FeedToken:    "feed-" + m.creds.ClientCode,
		TokenExpiry:  time.Now().Add(model.TokenValidity),
	}
	return m.state, nil
}

func (m *mockBroker) Refresh(_ context.Context) (model.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.RefreshToken == "" {
		return model.SessionState{}, model.ErrNoRefreshToken
	}
	m.state.AccessToken = "refreshed"
	m.state.TokenExpiry = time.Now().Add(model.TokenValidity)
	return m.state, nil
}

func (m *mockBroker) IsValid() bool { return m.Session().ValidAt(time.Now()) }

func (m *mockBroker) Session() model.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockBroker) RestoreSession(s model.SessionSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s.State()
}

func (m *mockBroker) Call(_ context.Context, ep driven.Endpoint, _ any) (json.RawMessage, error) {
	if m.callErr != nil {
		return nil, m.callErr
	}
	return json.RawMessage(`{"endpoint":"` + ep.Name + `"}`), nil
}

func (m *mockBroker) call(ctx context.Context, name string) (json.RawMessage, error) {
	return m.Call(ctx, driven.Endpoint{Name: name}, nil)
}

func (m *mockBroker) GetProfile(ctx context.Context) (json.RawMessage, error) {
	return m.call(ctx, "profile")
}
func (m *mockBroker) GetFunds(ctx context.Context) (json.RawMessage, error) {
	return m.call(ctx, "funds")
}
func (m *mockBroker) GetPositions(ctx context.Context) (json.RawMessage, error) {
	return m.call(ctx, "positions")
}
func (m *mockBroker) GetHoldings(ctx context.Context) (json.RawMessage, error) {
	return m.call(ctx, "holdings")
}
func (m *mockBroker) GetOrderBook(ctx context.Context) (json.RawMessage, error) {
	return m.call(ctx, "orders")
}
func (m *mockBroker) GetTradeBook(ctx context.Context) (json.RawMessage, error) {
	return m.call(ctx, "trades")
}

func (m *mockBroker) PlaceOrder(ctx context.Context, order model.OrderRequest) (json.RawMessage, error) {
	m.mu.Lock()
	m.placed = &order
	m.mu.Unlock()
	return m.call(ctx, "place")
}

func (m *mockBroker) ModifyOrder(ctx context.Context, order model.ModifyOrderRequest) (json.RawMessage, error) {
	m.mu.Lock()
	m.lastArg = []string{order.OrderID, order.Price}
	m.mu.Unlock()
	return m.call(ctx, "modify")
}

func (m *mockBroker) CancelOrder(ctx context.Context, variety, orderID string) (json.RawMessage, error) {
	m.mu.Lock()
	m.cancels = append(m.cancels, variety+":"+orderID)
	m.mu.Unlock()
	return m.call(ctx, "cancel")
}

func (m *mockBroker) GetQuote(ctx context.Context, mode string, _ map[string][]string) (json.RawMessage, error) {
	m.mu.Lock()
	m.lastArg = []string{mode}
	m.mu.Unlock()
	return m.call(ctx, "quote")
}

func (m *mockBroker) GetCandles(ctx context.Context, _ model.CandleRequest) (json.RawMessage, error) {
	return m.call(ctx, "candles")
}

func (m *mockBroker) GetGainersLosers(ctx context.Context, dataType, expiryType string) (json.RawMessage, error) {
	m.mu.Lock()
	m.lastArg = []string{dataType, expiryType}
	m.mu.Unlock()
	return m.call(ctx, "gainers")
}

func (m *mockBroker) Logout(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logouts++
	m.state = model.SessionState{}
	return nil
}

// mockBrokerFactory hands out mockBrokers and keeps the last one.
type mockBrokerFactory struct {
	loginErr error
	callErr  error

	mu   sync.Mutex
	last *mockBroker
}

func (f *mockBrokerFactory) New(creds model.Credentials) driven.BrokerClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = &mockBroker{creds: creds, loginErr: f.loginErr, callErr: f.callErr}
	return f.last
}

func (f *mockBrokerFactory) latest() *mockBroker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type mockSettingsStore struct {
	mu       sync.Mutex
	settings map[int64]model.Settings
}

func newMockSettingsStore() *mockSettingsStore {
	return &mockSettingsStore{settings: make(map[int64]model.Settings)}
}

func (m *mockSettingsStore) Get(_ context.Context, userID int64) (*model.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *mockSettingsStore) Set(_ context.Context, userID int64, s model.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[userID] = s
	return nil
}

// mockStrategyStore derives status from the latest run and checks ownership
// through the account store.
type mockStrategyStore struct {
	accounts *mockAccountStore

	mu         sync.Mutex
	nextID     int64
	strategies map[int64]model.Strategy
	runs       []model.StrategyRun
}

func newMockStrategyStore(accounts *mockAccountStore) *mockStrategyStore {
	return &mockStrategyStore{accounts: accounts, strategies: make(map[int64]model.Strategy)}
}

func (m *mockStrategyStore) lookup(userID, id int64) (model.Strategy, error) {
	st, ok := m.strategies[id]
	if !ok {
		return model.Strategy{}, driven.ErrStrategyNotFound
	}
	if _, err := m.accounts.Get(context.Background(), userID, st.AccountID); err != nil {
		return model.Strategy{}, driven.ErrStrategyNotFound
	}
	st.Status = model.StrategyStopped
	if run := m.latestLocked(id); run != nil {
		st.Status = run.Status
	}
	return st, nil
}

func (m *mockStrategyStore) latestLocked(id int64) *model.StrategyRun {
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].StrategyID == id {
			run := m.runs[i]
			return &run
		}
	}
	return nil
}

func (m *mockStrategyStore) Create(_ context.Context, st model.Strategy) (model.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	st.ID = m.nextID
	st.Status = model.StrategyStopped
	m.strategies[st.ID] = st
	return st, nil
}

func (m *mockStrategyStore) Get(_ context.Context, userID, id int64) (model.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(userID, id)
}

func (m *mockStrategyStore) ListByAccount(_ context.Context, userID, accountID int64) ([]model.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Strategy
	for id, st := range m.strategies {
		if st.AccountID != accountID {
			continue
		}
		if got, err := m.lookup(userID, id); err == nil {
			out = append(out, got)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStrategyStore) Update(_ context.Context, userID int64, st model.Strategy) (model.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(userID, st.ID); err != nil {
		return model.Strategy{}, err
	}
	cur := m.strategies[st.ID]
	cur.Name = st.Name
	cur.Params = st.Params
	cur.Enabled = st.Enabled
	m.strategies[st.ID] = cur
	return m.lookup(userID, st.ID)
}

func (m *mockStrategyStore) Delete(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(userID, id); err != nil {
		return err
	}
	delete(m.strategies, id)
	return nil
}

func (m *mockStrategyStore) LatestRun(_ context.Context, id int64) (*model.StrategyRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestLocked(id), nil
}

func (m *mockStrategyStore) ListRuns(_ context.Context, id int64) ([]model.StrategyRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StrategyRun
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].StrategyID == id {
			out = append(out, m.runs[i])
		}
	}
	return out, nil
}

func (m *mockStrategyStore) CreateRun(_ context.Context, run model.StrategyRun) (model.StrategyRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = int64(len(m.runs) + 1)
	m.runs = append(m.runs, run)
	return run, nil
}

func (m *mockStrategyStore) UpdateRun(_ context.Context, run model.StrategyRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	return errors.New("run not found")
}

type mockOrderLedger struct {
	mu     sync.Mutex
	orders []model.OrderRecord
}

func (m *mockOrderLedger) Record(_ context.Context, o model.OrderRecord) (model.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = int64(len(m.orders) + 1)
	m.orders = append(m.orders, o)
	return o, nil
}

func (m *mockOrderLedger) ListByAccount(_ context.Context, accountID int64, limit int) ([]model.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.OrderRecord
	for i := len(m.orders) - 1; i >= 0 && len(out) < limit; i-- {
		if m.orders[i].AccountID == accountID {
			out = append(out, m.orders[i])
		}
	}
	return out, nil
}

package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// --- Broker fakes ---

// fakeBroker implements driven.BrokerClient without any network I/O.
type fakeBroker struct {
	creds model.Credentials
	now   func() time.Time

	loginErr   error
	refreshErr error
	logoutErr  error
	placeErr   error
	// inflight, when set, is shared by every client of a factory to detect
	// overlapping Login calls.
	inflight    *atomic.Int32
	maxInflight *atomic.Int32
	loginDelay  time.Duration

	mu        sync.Mutex
	state     model.SessionState
	logins    int
	refreshes int
	logouts   int
	calls     []string
}

func (f *fakeBroker) Login(_ context.Context, code string) (model.SessionState, error) {
	if f.inflight != nil {
		n := f.inflight.Add(1)
		defer f.inflight.Add(-1)
		for {
			prev := f.maxInflight.Load()
			if n <= prev || f.maxInflight.CompareAndSwap(prev, n) {
				break
			}
		}
	}
	if f.loginDelay > 0 {
		time.Sleep(f.loginDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.loginErr != nil {
		return model.SessionState{}, f.loginErr
	}
	f.state = model.SessionState{
		AccessToken:  "access-" + f.creds.ClientCode + "-" + code,
		RefreshToken: "refresh-" + f.creds.ClientCode,
		FeedToken:    "feed-" + f.creds.ClientCode,
		TokenExpiry:  f.now().Add(model.TokenValidity),
	}
	return f.state, nil
}

func (f *fakeBroker) Refresh(_ context.Context) (model.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.RefreshToken == "" {
		return model.SessionState{}, model.ErrNoRefreshToken
	}
	f.refreshes++
	if f.refreshErr != nil {
		return model.SessionState{}, f.refreshErr
	}
	f.state.AccessToken = "refreshed-" + f.creds.ClientCode
	f.state.TokenExpiry = f.now().Add(model.TokenValidity)
	return f.state, nil
}

func (f *fakeBroker) IsValid() bool {
	return f.Session().ValidAt(f.now())
}

func (f *fakeBroker) Session() model.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeBroker) RestoreSession(s model.SessionSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s.State()
}

func (f *fakeBroker) Call(_ context.Context, ep driven.Endpoint, _ any) (json.RawMessage, error) {
	if !f.IsValid() {
		return nil, model.ErrUnauthenticated
	}
	f.mu.Lock()
	f.calls = append(f.calls, ep.Name)
	f.mu.Unlock()
	return json.RawMessage(`{"endpoint":"` + ep.Name + `","client":"` + f.creds.ClientCode + `"}`), nil
}

func (f *fakeBroker) callEndpoint(ctx context.Context, name string) (json.RawMessage, error) {
	return f.Call(ctx, driven.Endpoint{Name: name}, nil)
}

func (f *fakeBroker) GetProfile(ctx context.Context) (json.RawMessage, error) {
	return f.callEndpoint(ctx, "user.profile")
}

func (f *fakeBroker) GetFunds(ctx context.Context) (json.RawMessage, error) {
	return f.callEndpoint(ctx, "user.rms")
}

func (f *fakeBroker) GetPositions(ctx context.Context) (json.RawMessage, error) {
	return f.callEndpoint(ctx, "portfolio.positions")
}

func (f *fakeBroker) GetHoldings(ctx context.Context) (json.RawMessage, error) {
	return f.callEndpoint(ctx, "portfolio.holdings")
}

func (f *fakeBroker) GetOrderBook(ctx context.Context) (json.RawMessage, error) {
	return f.callEndpoint(ctx, "order.book")
}

func (f *fakeBroker) GetTradeBook(ctx context.Context) (json.RawMessage, error) {
	return f.callEndpoint(ctx, "order.trades")
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, _ model.OrderRequest) (json.RawMessage, error) {
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	if _, err := f.callEndpoint(ctx, "order.place"); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"orderid":"ord-` + f.creds.ClientCode + `"}`), nil
}

func (f *fakeBroker) ModifyOrder(ctx context.Context, _ model.ModifyOrderRequest) (json.RawMessage, error) {
	return f.callEndpoint(ctx, "order.modify")
}

func (f *fakeBroker) CancelOrder(ctx context.Context, _, _ string) (json.RawMessage, error) {
	return f.callEndpoint(ctx, "order.cancel")
}

func (f *fakeBroker) GetQuote(ctx context.Context, _ string, _ map[string][]string) (json.RawMessage, error) {
	return f.callEndpoint(ctx, "market.quote")
}

func (f *fakeBroker) GetCandles(ctx context.Context, _ model.CandleRequest) (json.RawMessage, error) {
	return f.callEndpoint(ctx, "market.candles")
}

func (f *fakeBroker) GetGainersLosers(ctx context.Context, _, _ string) (json.RawMessage, error) {
	return f.callEndpoint(ctx, "market.gainers_losers")
}

func (f *fakeBroker) Logout(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	f.state = model.SessionState{}
	return f.logoutErr
}

func (f *fakeBroker) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins + f.refreshes
}

// brokerFactory records every client it builds. configure, when set, runs
// on each new client with its creation index.
type brokerFactory struct {
	now       func() time.Time
	configure func(i int, f *fakeBroker)

	mu      sync.Mutex
	created []*fakeBroker
}

func newBrokerFactory(now time.Time) *brokerFactory {
	return &brokerFactory{now: func() time.Time { return now }}
}

func (b *brokerFactory) New(creds model.Credentials) driven.BrokerClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := &fakeBroker{creds: creds, now: b.now}
	if b.configure != nil {
		b.configure(len(b.created), f)
	}
	b.created = append(b.created, f)
	return f
}

func (b *brokerFactory) clients() []*fakeBroker {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*fakeBroker(nil), b.created...)
}

func (b *brokerFactory) networkCalls() int {
	total := 0
	for _, c := range b.clients() {
		total += c.networkCalls()
	}
	return total
}

// --- Store fakes ---

type memAccountStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]model.Account
	now      time.Time
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{
		accounts: make(map[int64]model.Account),
		now:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memAccountStore) Create(_ context.Context, a model.Account) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.UserID == a.UserID && existing.ClientCode == a.ClientCode {
			return model.Account{}, driven.ErrAccountExists
		}
	}
	s.nextID++
	a.ID = s.nextID
	a.CreatedAt = s.now.Add(time.Duration(s.nextID) * time.Minute)
	s.accounts[a.ID] = a
	return a, nil
}

func (s *memAccountStore) Get(_ context.Context, userID, accountID int64) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok || a.UserID != userID {
		return model.Account{}, driven.ErrAccountNotFound
	}
	return a, nil
}

func (s *memAccountStore) ListByUser(_ context.Context, userID int64) ([]model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memAccountStore) Update(_ context.Context, a model.Account) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.accounts[a.ID]
	if !ok || existing.UserID != a.UserID {
		return model.Account{}, driven.ErrAccountNotFound
	}
	existing.Name = a.Name
	existing.ClientCode = a.ClientCode
	s.accounts[a.ID] = existing
	return existing, nil
}

func (s *memAccountStore) Delete(_ context.Context, userID, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok || a.UserID != userID {
		return driven.ErrAccountNotFound
	}
	delete(s.accounts, accountID)
	return nil
}

func (s *memAccountStore) SetDefault(_ context.Context, userID, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok || a.UserID != userID {
		return driven.ErrAccountNotFound
	}
	for id, other := range s.accounts {
		if other.UserID == userID {
			other.IsDefault = id == accountID
			s.accounts[id] = other
		}
	}
	return nil
}

type memCredentialStore struct {
	mu      sync.Mutex
	secrets map[int64]model.AccountSecret
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{secrets: make(map[int64]model.AccountSecret)}
}

func (s *memCredentialStore) Set(_ context.Context, secret model.AccountSecret) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[secret.AccountID] = secret
	return nil
}

func (s *memCredentialStore) Get(_ context.Context, accountID int64) (*model.AccountSecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[accountID]
	if !ok {
		return nil, nil
	}
	return &secret, nil
}

func (s *memCredentialStore) SetRefreshToken(_ context.Context, accountID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[accountID]
	if !ok {
		return driven.ErrAccountNotFound
	}
	secret.RefreshToken = token
	s.secrets[accountID] = secret
	return nil
}

func (s *memCredentialStore) Delete(_ context.Context, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, accountID)
	return nil
}

type memSessionStore struct {
	mu        sync.Mutex
	snapshots map[int64]model.SessionSnapshot
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{snapshots: make(map[int64]model.SessionSnapshot)}
}

func (s *memSessionStore) Save(_ context.Context, accountID int64, snap model.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[accountID] = snap
	return nil
}

func (s *memSessionStore) Load(_ context.Context, accountID int64) (*model.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[accountID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *memSessionStore) Delete(_ context.Context, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, accountID)
	return nil
}

type memUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]model.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]model.User)}
}

func (s *memUserStore) Create(_ context.Context, username, hash string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return model.User{}, driven.ErrUserExists
	}
	s.nextID++
	u := model.User{ID: s.nextID, Username: username, PasswordHash: hash, CreatedAt: time.Now()}
	s.users[username] = u
	return u, nil
}

func (s *memUserStore) GetByUsername(_ context.Context, username string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return model.User{}, driven.ErrUserNotFound
	}
	return u, nil
}

func (s *memUserStore) GetByID(_ context.Context, id int64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, driven.ErrUserNotFound
}

type memSettingsStore struct {
	mu       sync.Mutex
	settings map[int64]model.Settings
}

func newMemSettingsStore() *memSettingsStore {
	return &memSettingsStore{settings: make(map[int64]model.Settings)}
}

func (s *memSettingsStore) Get(_ context.Context, userID int64) (*model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	got, ok := s.settings[userID]
	if !ok {
		return nil, nil
	}
	return &got, nil
}

func (s *memSettingsStore) Set(_ context.Context, userID int64, settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[userID] = settings
	return nil
}

// memStrategyStore checks ownership through the account store it wraps.
type memStrategyStore struct {
	accounts *memAccountStore

	mu         sync.Mutex
	nextID     int64
	nextRunID  int64
	strategies map[int64]model.Strategy
	runs       []model.StrategyRun
}

func newMemStrategyStore(accounts *memAccountStore) *memStrategyStore {
	return &memStrategyStore{accounts: accounts, strategies: make(map[int64]model.Strategy)}
}

func (s *memStrategyStore) owned(userID int64, st model.Strategy) bool {
	_, err := s.accounts.Get(context.Background(), userID, st.AccountID)
	return err == nil
}

func (s *memStrategyStore) statusLocked(id int64) model.StrategyStatus {
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].StrategyID == id {
			return s.runs[i].Status
		}
	}
	return model.StrategyStopped
}

func (s *memStrategyStore) Create(_ context.Context, st model.Strategy) (model.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	st.ID = s.nextID
	st.Status = model.StrategyStopped
	s.strategies[st.ID] = st
	return st, nil
}

func (s *memStrategyStore) Get(_ context.Context, userID, id int64) (model.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strategies[id]
	if !ok || !s.owned(userID, st) {
		return model.Strategy{}, driven.ErrStrategyNotFound
	}
	st.Status = s.statusLocked(id)
	return st, nil
}

func (s *memStrategyStore) ListByAccount(_ context.Context, userID, accountID int64) ([]model.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Strategy
	for _, st := range s.strategies {
		if st.AccountID == accountID && s.owned(userID, st) {
			st.Status = s.statusLocked(st.ID)
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStrategyStore) Update(ctx context.Context, userID int64, st model.Strategy) (model.Strategy, error) {
	s.mu.Lock()
	existing, ok := s.strategies[st.ID]
	if !ok || !s.owned(userID, existing) {
		s.mu.Unlock()
		return model.Strategy{}, driven.ErrStrategyNotFound
	}
	existing.Name = st.Name
	existing.Params = st.Params
	existing.Enabled = st.Enabled
	s.strategies[st.ID] = existing
	s.mu.Unlock()
	return s.Get(ctx, userID, st.ID)
}

func (s *memStrategyStore) Delete(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strategies[id]
	if !ok || !s.owned(userID, st) {
		return driven.ErrStrategyNotFound
	}
	delete(s.strategies, id)
	return nil
}

func (s *memStrategyStore) LatestRun(_ context.Context, id int64) (*model.StrategyRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].StrategyID == id {
			run := s.runs[i]
			return &run, nil
		}
	}
	return nil, nil
}

func (s *memStrategyStore) ListRuns(_ context.Context, id int64) ([]model.StrategyRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.StrategyRun
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].StrategyID == id {
			out = append(out, s.runs[i])
		}
	}
	return out, nil
}

func (s *memStrategyStore) CreateRun(_ context.Context, run model.StrategyRun) (model.StrategyRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRunID++
	run.ID = s.nextRunID
	s.runs = append(s.runs, run)
	return run, nil
}

func (s *memStrategyStore) UpdateRun(_ context.Context, run model.StrategyRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = run
			return nil
		}
	}
	return errors.New("run not found")
}

type memOrderLedger struct {
	mu     sync.Mutex
	nextID int64
	orders []model.OrderRecord
}

func (l *memOrderLedger) Record(_ context.Context, o model.OrderRecord) (model.OrderRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	o.ID = l.nextID
	l.orders = append(l.orders, o)
	return o, nil
}

func (l *memOrderLedger) ListByAccount(_ context.Context, accountID int64, limit int) ([]model.OrderRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.OrderRecord
	for i := len(l.orders) - 1; i >= 0 && len(out) < limit; i-- {
		if l.orders[i].AccountID == accountID {
			out = append(out, l.orders[i])
		}
	}
	return out, nil
}

func (l *memOrderLedger) all() []model.OrderRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.OrderRecord(nil), l.orders...)
}

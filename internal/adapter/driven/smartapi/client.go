// Package smartapi implements the BrokerClient port against the Angel One
// SmartAPI REST interface.
package smartapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
	"github.com/ericfisherdev/algopilot/internal/metrics"
)

// Compile-time interface satisfaction check.
var _ driven.BrokerClient = (*Client)(nil)

const (
	// DefaultTimeout bounds every broker API round-trip.
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 16 << 20
)

// Client is a stateful handle to one authenticated broker session. Token
// fields change only through Login, Refresh, RestoreSession and Logout.
type Client struct {
	creds      model.Credentials
	httpClient *http.Client
	identity   *NetworkIdentity
	hosts      HostPolicy
	timeout    time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics

	mu    sync.RWMutex
	state model.SessionState
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Tests point it at an
// httptest server.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithNetworkIdentity shares an identity cache between clients.
func WithNetworkIdentity(id *NetworkIdentity) Option {
	return func(c *Client) { c.identity = id }
}

// WithHostPolicy sets the per-endpoint host fallback list.
func WithHostPolicy(p HostPolicy) Option {
	return func(c *Client) { c.hosts = p }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock overrides time.Now for expiry bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithMetrics records request outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client with empty session state. An empty
// creds.BaseURL selects DefaultBaseURL.
func NewClient(creds model.Credentials, opts ...Option) *Client {
	if creds.BaseURL == "" {
		creds.BaseURL = DefaultBaseURL
	}
	c := &Client{
		creds:   creds,
		hosts:   DefaultHostPolicy(),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.identity == nil {
		c.identity = NewNetworkIdentity(defaultLookupTimeout, nil)
	}
	return c
}

// NewFactory returns a driven.BrokerClientFactory that builds clients
// sharing opts, typically one NetworkIdentity and one Metrics.
func NewFactory(opts ...Option) driven.BrokerClientFactory {
	return func(creds model.Credentials) driven.BrokerClient {
		return NewClient(creds, opts...)
	}
}

type loginRequest struct {
	ClientCode string `json:"clientcode"`
	Password   string `json:"password"`
	TOTP       string `json:"totp"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// Login opens a session with the trading PIN and a one-time code. Without
// a code it refreshes instead when a refresh token is held, and otherwise
// fails with NeedsOneTimeCode before any request is made.
func (c *Client) Login(ctx context.Context, oneTimeCode string) (model.SessionState, error) {
	if oneTimeCode == "" {
		if c.Session().RefreshToken != "" {
			return c.Refresh(ctx)
		}
		return model.SessionState{}, model.NeedsOneTimeCode("one-time code required to log in", nil)
	}

	payload := loginRequest{
		ClientCode: c.creds.ClientCode,
		Password:   c.creds.PIN,
		TOTP:       oneTimeCode,
	}

	data, err := c.do(ctx, EndpointLogin, payload, "")
	if err != nil {
		return model.SessionState{}, err
	}

	tokens, err := decodeTokens(data)
	if err != nil {
		return model.SessionState{}, err
	}

	c.mu.Lock()
	c.state = model.SessionState{
		AccessToken:  tokens.JWTToken,
		RefreshToken: tokens.RefreshToken,
		FeedToken:    tokens.FeedToken,
		TokenExpiry:  c.now().Add(model.TokenValidity),
	}
	state := c.state
	c.mu.Unlock()

	slog.Info("broker login succeeded", "client_code", c.creds.ClientCode, "expires_at", state.TokenExpiry)
	return state, nil
}

// Refresh mints a new access token from the held refresh token. The
// refresh token itself is kept; the broker does not rotate it here.
func (c *Client) Refresh(ctx context.Context) (model.SessionState, error) {
	current := c.Session()
	if current.RefreshToken == "" {
		return model.SessionState{}, model.ErrNoRefreshToken
	}

	bearer := current.AccessToken
	if bearer == "" {
		bearer = current.RefreshToken
	}

	data, err := c.do(ctx, EndpointRefresh, refreshRequest{RefreshToken: current.RefreshToken}, bearer)
	if err != nil {
		return model.SessionState{}, err
	}

	tokens, err := decodeTokens(data)
	if err != nil {
		return model.SessionState{}, err
	}

	c.mu.Lock()
	c.state.AccessToken = tokens.JWTToken
	if tokens.FeedToken != "" {
		c.state.FeedToken = tokens.FeedToken
	}
	c.state.TokenExpiry = c.now().Add(model.TokenValidity)
	state := c.state
	c.mu.Unlock()

	slog.Info("broker session refreshed", "client_code", c.creds.ClientCode, "expires_at", state.TokenExpiry)
	return state, nil
}

// IsValid reports whether an access token is held and unexpired.
func (c *Client) IsValid() bool {
	return c.Session().ValidAt(c.now())
}

// Session returns a copy of the token state.
func (c *Client) Session() model.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// RestoreSession replaces the token state with a persisted snapshot.
func (c *Client) RestoreSession(snapshot model.SessionSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = snapshot.State()
}

// Call performs an authenticated request. It fails locally with
// Unauthenticated when no token is held. An expired token is renewed once
// through Refresh when possible, otherwise TokenExpired is returned. A
// refresh that cannot reach the broker is reported as the network failure.
func (c *Client) Call(ctx context.Context, ep driven.Endpoint, payload any) (json.RawMessage, error) {
	state := c.Session()
	if state.AccessToken == "" {
		return nil, &model.AuthError{
			Kind:    model.KindUnauthenticated,
			Message: "no access token; activate the session first",
		}
	}

	if !state.ValidAt(c.now()) {
		if state.RefreshToken == "" {
			return nil, &model.AuthError{
				Kind:                model.KindTokenExpired,
				Message:             "access token expired and no refresh token is held",
				RequiresOneTimeCode: true,
			}
		}
		refreshed, err := c.Refresh(ctx)
		if errors.Is(err, model.ErrNetwork) {
			return nil, err
		}
		if err != nil {
			return nil, &model.AuthError{
				Kind:                model.KindTokenExpired,
				Message:             "access token expired and could not be refreshed",
				RequiresOneTimeCode: true,
				Err:                 err,
			}
		}
		state = refreshed
	}

	return c.do(ctx, ep, payload, state.AccessToken)
}

// do sends the request to each candidate host in turn, moving on only for
// network failures and edge rejections.
func (c *Client) do(ctx context.Context, ep driven.Endpoint, payload any, bearer string) (json.RawMessage, error) {
	var lastErr error
	for i, host := range c.hosts.Candidates(ep.Name, c.creds.BaseURL) {
		data, err := c.doOnce(ctx, host, ep, payload, bearer)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if !errors.Is(err, model.ErrNetwork) && !errors.Is(err, model.ErrEdgeRejected) {
			return nil, err
		}
		slog.Warn("broker host failed, trying next candidate",
			"endpoint", ep.Name,
			"host", host,
			"attempt", i+1,
			"error", err,
		)
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, host string, ep driven.Endpoint, payload any, bearer string) (json.RawMessage, error) {
	start := time.Now()

	data, ae := c.exchange(ctx, host, ep, payload, bearer)

	outcome := "ok"
	if ae != nil {
		outcome = string(ae.Kind)
	}
	c.metrics.ObserveBrokerRequest(ep.Name, outcome, time.Since(start))

	if ae != nil {
		slog.Debug("broker request failed",
			"endpoint", ep.Name,
			"status", ae.StatusCode,
			"kind", ae.Kind,
			"detail", ae.Detail,
		)
		return nil, ae
	}
	return data, nil
}

func (c *Client) exchange(ctx context.Context, host string, ep driven.Endpoint, payload any, bearer string) (json.RawMessage, *model.AuthError) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, &model.AuthError{
				Kind:    model.KindMalformedResponse,
				Message: fmt.Sprintf("encode %s request", ep.Name),
				Err:     err,
			}
		}
		body = bytes.NewReader(encoded)
	}

	// Identity lookups carry their own lookup timeout and stay outside the
	// API deadline.
	localIP, publicIP := c.identity.LocalIP(), c.identity.PublicIP(ctx)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, ep.Method, host+ep.Path, body)
	if err != nil {
		return nil, &model.AuthError{Kind: model.KindNetwork, Message: "build request", Err: err}
	}
	c.setHeaders(req, bearer, localIP, publicIP)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.AuthError{
			Kind:    model.KindNetwork,
			Message: fmt.Sprintf("%s request to %s failed", ep.Name, host),
			Err:     err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &model.AuthError{
			Kind:       model.KindNetwork,
			Message:    fmt.Sprintf("read %s response", ep.Name),
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}

	return classify(resp.StatusCode, raw)
}

func (c *Client) setHeaders(req *http.Request, bearer, localIP, publicIP string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	req.Header.Set("X-ClientLocalIP", localIP)
	req.Header.Set("X-ClientPublicIP", publicIP)
	req.Header.Set("X-MACAddress", PlaceholderMAC)
	req.Header.Set("X-PrivateKey", c.creds.APIKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
}

func decodeTokens(data json.RawMessage) (tokenData, error) {
	var tokens tokenData
	if err := json.Unmarshal(data, &tokens); err != nil {
		return tokenData{}, &model.AuthError{
			Kind:    model.KindMalformedResponse,
			Message: "token payload is not a JSON object",
			Detail:  excerpt(data),
			Err:     err,
		}
	}
	if tokens.JWTToken == "" {
		return tokenData{}, &model.AuthError{
			Kind:    model.KindMalformedResponse,
			Message: "token payload has no jwtToken",
		}
	}
	return tokens, nil
}

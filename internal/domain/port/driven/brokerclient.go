package driven

import (
	"context"
	"encoding/json"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
)

// Endpoint identifies one remote broker operation. Name keys the host
// fallback policy; Path is appended to the chosen base URL.
type Endpoint struct {
	Name   string
	Method string
	Path   string
}

// BrokerSession is the token-owning half of a broker client. Every method
// returning an error returns a *model.AuthError.
type BrokerSession interface {
	// Login presents credentials and the one-time code. With an empty code it
	// falls back to a refresh when a refresh token is held.
	Login(ctx context.Context, oneTimeCode string) (model.SessionState, error)
	// Refresh exchanges the held refresh token for a new access token.
	Refresh(ctx context.Context) (model.SessionState, error)
	// IsValid reports whether the access token is present and unexpired. No I/O.
	IsValid() bool
	// Session returns a copy of the current token state.
	Session() model.SessionState
	// RestoreSession injects persisted tokens without contacting the broker.
	RestoreSession(snapshot model.SessionSnapshot)
	// Call performs an authenticated request and unwraps the success envelope.
	Call(ctx context.Context, ep Endpoint, payload any) (json.RawMessage, error)
}

// BrokerClient adds the typed trading operations used by the request layer.
type BrokerClient interface {
	BrokerSession

	GetProfile(ctx context.Context) (json.RawMessage, error)
	GetFunds(ctx context.Context) (json.RawMessage, error)
	GetPositions(ctx context.Context) (json.RawMessage, error)
	GetHoldings(ctx context.Context) (json.RawMessage, error)
	GetOrderBook(ctx context.Context) (json.RawMessage, error)
	GetTradeBook(ctx context.Context) (json.RawMessage, error)
	PlaceOrder(ctx context.Context, order model.OrderRequest) (json.RawMessage, error)
	ModifyOrder(ctx context.Context, order model.ModifyOrderRequest) (json.RawMessage, error)
	CancelOrder(ctx context.Context, variety, orderID string) (json.RawMessage, error)
	GetQuote(ctx context.Context, mode string, exchangeTokens map[string][]string) (json.RawMessage, error)
	GetCandles(ctx context.Context, req model.CandleRequest) (json.RawMessage, error)
	GetGainersLosers(ctx context.Context, dataType, expiryType string) (json.RawMessage, error)
	// Logout invalidates the session remotely and clears local tokens.
	Logout(ctx context.Context) error
}

// BrokerClientFactory constructs a fresh client with empty session state.
type BrokerClientFactory func(creds model.Credentials) BrokerClient

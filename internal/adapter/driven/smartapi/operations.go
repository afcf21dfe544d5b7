package smartapi

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
)

// GetProfile returns the broker user profile.
func (c *Client) GetProfile(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, EndpointProfile, nil)
}

// GetFunds returns available funds and margin (RMS) details.
func (c *Client) GetFunds(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, EndpointFunds, nil)
}

// GetPositions returns the day's open positions.
func (c *Client) GetPositions(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, EndpointPositions, nil)
}

// GetHoldings returns long-term holdings.
func (c *Client) GetHoldings(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, EndpointHoldings, nil)
}

// GetOrderBook returns all orders placed today.
func (c *Client) GetOrderBook(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, EndpointOrderBook, nil)
}

// GetTradeBook returns executed trades.
func (c *Client) GetTradeBook(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, EndpointTradeBook, nil)
}

// PlaceOrder submits an order. Empty Variety, Duration, SquareOff and
// StopLoss take the broker's usual defaults.
func (c *Client) PlaceOrder(ctx context.Context, order model.OrderRequest) (json.RawMessage, error) {
	if order.Variety == "" {
		order.Variety = "NORMAL"
	}
	if order.Duration == "" {
		order.Duration = "DAY"
	}
	if order.SquareOff == "" {
		order.SquareOff = "0"
	}
	if order.StopLoss == "" {
		order.StopLoss = "0"
	}
	if order.Price == "" {
		order.Price = "0"
	}
	return c.Call(ctx, EndpointPlaceOrder, order)
}

// ModifyOrder changes an open order.
func (c *Client) ModifyOrder(ctx context.Context, order model.ModifyOrderRequest) (json.RawMessage, error) {
	if order.Variety == "" {
		order.Variety = "NORMAL"
	}
	return c.Call(ctx, EndpointModifyOrder, order)
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, variety, orderID string) (json.RawMessage, error) {
	if variety == "" {
		variety = "NORMAL"
	}
	return c.Call(ctx, EndpointCancelOrder, map[string]string{
		"variety": variety,
		"orderid": orderID,
	})
}

// GetQuote returns market data for tokens grouped by exchange, for example
// {"NSE": ["3045"]}. mode is FULL, OHLC or LTP.
func (c *Client) GetQuote(ctx context.Context, mode string, exchangeTokens map[string][]string) (json.RawMessage, error) {
	if mode == "" {
		mode = "FULL"
	}
	if exchangeTokens == nil {
		exchangeTokens = map[string][]string{}
	}
	return c.Call(ctx, EndpointQuote, map[string]any{
		"mode":           mode,
		"exchangeTokens": exchangeTokens,
	})
}

// GetCandles returns historical candles. Dates use "2006-01-02 15:04".
func (c *Client) GetCandles(ctx context.Context, req model.CandleRequest) (json.RawMessage, error) {
	if req.Interval == "" {
		req.Interval = "ONE_MINUTE"
	}
	return c.Call(ctx, EndpointCandles, req)
}

// GetGainersLosers returns the top derivatives movers. dataType is one of
// PercOIGainers, PercOILosers, PercPriceGainers or PercPriceLosers; expiryType
// is NEAR, NEXT or FAR.
func (c *Client) GetGainersLosers(ctx context.Context, dataType, expiryType string) (json.RawMessage, error) {
	if expiryType == "" {
		expiryType = "NEAR"
	}
	return c.Call(ctx, EndpointGainersLosers, map[string]string{
		"datatype":   dataType,
		"expirytype": expiryType,
	})
}

// Logout ends the session at the broker and clears local tokens. Local
// tokens are cleared even when the remote call fails.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Call(ctx, EndpointLogout, map[string]string{"clientcode": c.creds.ClientCode})

	c.mu.Lock()
	c.state = model.SessionState{}
	c.mu.Unlock()

	if err != nil {
		slog.Warn("broker logout failed; local session cleared", "client_code", c.creds.ClientCode, "error", err)
		return err
	}
	return nil
}

package httphandler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ericfisherdev/algopilot/internal/application"
	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// brokerCall resolves the operator's broker client and relays fn's payload.
func (h *Handler) brokerCall(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, c driven.BrokerClient) (json.RawMessage, error),
) {
	client, err := h.sessions.Client(r.Context(), operatorID(r))
	if err != nil {
		h.writeServiceError(w, r, op, err)
		return
	}

	data, err := fn(r.Context(), client)
	if err != nil {
		h.writeServiceError(w, r, op, err)
		return
	}

	writeJSON(w, http.StatusOK, BrokerResponse{Data: data})
}

// Profile returns the broker profile of the live account.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	h.brokerCall(w, r, "profile", func(ctx context.Context, c driven.BrokerClient) (json.RawMessage, error) {
		return c.GetProfile(ctx)
	})
}

// Funds returns the risk management (margin) summary.
func (h *Handler) Funds(w http.ResponseWriter, r *http.Request) {
	h.brokerCall(w, r, "funds", func(ctx context.Context, c driven.BrokerClient) (json.RawMessage, error) {
		return c.GetFunds(ctx)
	})
}

// Positions returns open positions.
func (h *Handler) Positions(w http.ResponseWriter, r *http.Request) {
	h.brokerCall(w, r, "positions", func(ctx context.Context, c driven.BrokerClient) (json.RawMessage, error) {
		return c.GetPositions(ctx)
	})
}

// Holdings returns delivery holdings.
func (h *Handler) Holdings(w http.ResponseWriter, r *http.Request) {
	h.brokerCall(w, r, "holdings", func(ctx context.Context, c driven.BrokerClient) (json.RawMessage, error) {
		return c.GetHoldings(ctx)
	})
}

// OrderBook returns the day's orders.
func (h *Handler) OrderBook(w http.ResponseWriter, r *http.Request) {
	h.brokerCall(w, r, "order book", func(ctx context.Context, c driven.BrokerClient) (json.RawMessage, error) {
		return c.GetOrderBook(ctx)
	})
}

// TradeBook returns the day's fills.
func (h *Handler) TradeBook(w http.ResponseWriter, r *http.Request) {
	h.brokerCall(w, r, "trade book", func(ctx context.Context, c driven.BrokerClient) (json.RawMessage, error) {
		return c.GetTradeBook(ctx)
	})
}

// PlaceOrder submits an order and records it in the ledger. A missing order
// tag is filled with a UUID so the order can be matched in the book later.
// The quantity defaults to the operator's lot size.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if missing := missingFields(map[string]string{
		"tradingsymbol":   req.TradingSymbol,
		"symboltoken":     req.SymbolToken,
		"transactiontype": req.TransactionType,
		"exchange":        req.Exchange,
	}); missing != "" {
		writeError(w, http.StatusBadRequest, "missing required field: "+missing)
		return
	}
	if req.OrderTag == "" {
		req.OrderTag = uuid.NewString()
	}

	placed, err := h.orders.Place(r.Context(), operatorID(r), application.PlaceOrderInput{
		Order:      req.OrderRequest,
		StrategyID: req.StrategyID,
	})
	if err != nil {
		h.writeServiceError(w, r, "place order", err)
		return
	}

	writeJSON(w, http.StatusOK, PlacedOrderResponse{
		Data:  placed.Data,
		Order: toOrderRecordResponse(placed.Record),
	})
}

// ModifyOrder changes an open order.
func (h *Handler) ModifyOrder(w http.ResponseWriter, r *http.Request) {
	var req model.ModifyOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.OrderID = r.PathValue("orderID")

	h.brokerCall(w, r, "modify order", func(ctx context.Context, c driven.BrokerClient) (json.RawMessage, error) {
		return c.ModifyOrder(ctx, req)
	})
}

// CancelOrder cancels an open order. The variety defaults to NORMAL.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")
	variety := r.URL.Query().Get("variety")
	if variety == "" {
		variety = "NORMAL"
	}

	h.brokerCall(w, r, "cancel order", func(ctx context.Context, c driven.BrokerClient) (json.RawMessage, error) {
		return c.CancelOrder(ctx, variety, orderID)
	})
}

// QuoteRequest selects instruments for a market quote.
type QuoteRequest struct {
	Mode           string              `json:"mode"`
	ExchangeTokens map[string][]string `json:"exchangeTokens"`
}

// Quote returns market quotes.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.ExchangeTokens) == 0 {
		writeError(w, http.StatusBadRequest, "exchangeTokens is required")
		return
	}
	if req.Mode == "" {
		req.Mode = "LTP"
	}

	h.brokerCall(w, r, "quote", func(ctx context.Context, c driven.BrokerClient) (json.RawMessage, error) {
		return c.GetQuote(ctx, req.Mode, req.ExchangeTokens)
	})
}

// Candles returns historical candle data.
func (h *Handler) Candles(w http.ResponseWriter, r *http.Request) {
	var req model.CandleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if missing := missingFields(map[string]string{
		"exchange":    req.Exchange,
		"symboltoken": req.SymbolToken,
		"interval":    req.Interval,
		"fromdate":    req.FromDate,
		"todate":      req.ToDate,
	}); missing != "" {
		writeError(w, http.StatusBadRequest, "missing required field: "+missing)
		return
	}

	h.brokerCall(w, r, "candles", func(ctx context.Context, c driven.BrokerClient) (json.RawMessage, error) {
		return c.GetCandles(ctx, req)
	})
}

// GainersLosers returns derivatives top gainers or losers. The datatype query
// parameter is required, expirytype defaults to the near month.
func (h *Handler) GainersLosers(w http.ResponseWriter, r *http.Request) {
	dataType := r.URL.Query().Get("datatype")
	if dataType == "" {
		writeError(w, http.StatusBadRequest, "datatype is required")
		return
	}
	expiryType := r.URL.Query().Get("expirytype")

	h.brokerCall(w, r, "gainers losers", func(ctx context.Context, c driven.BrokerClient) (json.RawMessage, error) {
		return c.GetGainersLosers(ctx, dataType, expiryType)
	})
}

// missingFields returns the alphabetically first empty field, or "".
func missingFields(fields map[string]string) string {
	first := ""
	for name, v := range fields {
		if strings.TrimSpace(v) != "" {
			continue
		}
		if first == "" || name < first {
			first = name
		}
	}
	return first
}

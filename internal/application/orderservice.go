package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

const (
	// DefaultLedgerLimit is the number of ledger entries listed when the
	// caller gives no limit.
	DefaultLedgerLimit = 100
	maxLedgerLimit     = 1000
)

// PlaceOrderInput is an order plus the strategy it is attributed to, if any.
type PlaceOrderInput struct {
	Order      model.OrderRequest
	StrategyID *int64
}

// PlacedOrder is the ledger entry of a submitted order and the broker's
// response payload.
type PlacedOrder struct {
	Record model.OrderRecord
	Data   json.RawMessage
}

// OrderService submits orders through the live session and keeps the order
// ledger. In paper mode orders are only recorded.
type OrderService struct {
	sessions   *SessionService
	settings   *SettingsService
	accounts   driven.AccountStore
	strategies driven.StrategyStore
	ledger     driven.OrderLedger
	now        func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(
	sessions *SessionService,
	settings *SettingsService,
	accounts driven.AccountStore,
	strategies driven.StrategyStore,
	ledger driven.OrderLedger,
) *OrderService {
	return &OrderService{
		sessions:   sessions,
		settings:   settings,
		accounts:   accounts,
		strategies: strategies,
		ledger:     ledger,
		now:        time.Now,
	}
}

// Place submits an order. An empty quantity takes the operator's default lot
// size. A broker rejection is recorded before the error is returned; a
// ledger failure after a successful placement is only logged.
func (s *OrderService) Place(ctx context.Context, userID int64, in PlaceOrderInput) (PlacedOrder, error) {
	prefs, err := s.settings.Get(ctx, userID)
	if err != nil {
		return PlacedOrder{}, err
	}

	order := in.Order
	if strings.TrimSpace(order.Quantity) == "" {
		order.Quantity = strconv.Itoa(prefs.DefaultLotSize)
	}
	rec, err := s.newRecord(order, in.StrategyID)
	if err != nil {
		return PlacedOrder{}, err
	}

	if prefs.PaperMode {
		return s.placePaper(ctx, userID, rec, order)
	}

	accountID, client, err := s.sessions.Bound(ctx, userID)
	if err != nil {
		return PlacedOrder{}, err
	}
	rec.AccountID = accountID
	if err := s.checkStrategy(ctx, userID, rec); err != nil {
		return PlacedOrder{}, err
	}

	data, err := client.PlaceOrder(ctx, order)
	if err != nil {
		if errors.Is(err, model.ErrAPIRejected) {
			rec.Status = model.OrderRejected
			s.record(ctx, rec)
		}
		return PlacedOrder{}, err
	}

	rec.Status = model.OrderPlaced
	rec.BrokerOrderID = brokerOrderID(data)
	rec.Response = data
	return PlacedOrder{Record: s.record(ctx, rec), Data: data}, nil
}

func (s *OrderService) placePaper(ctx context.Context, userID int64, rec model.OrderRecord, order model.OrderRequest) (PlacedOrder, error) {
	accountID, err := s.sessions.ActiveOrDefault(ctx, userID)
	if err != nil {
		return PlacedOrder{}, err
	}
	rec.AccountID = accountID
	if err := s.checkStrategy(ctx, userID, rec); err != nil {
		return PlacedOrder{}, err
	}

	data, err := json.Marshal(map[string]any{"paper": true, "ordertag": order.OrderTag})
	if err != nil {
		return PlacedOrder{}, fmt.Errorf("encoding paper order: %w", err)
	}
	rec.Status = model.OrderPaper
	rec.Response = data

	recorded, err := s.ledger.Record(ctx, rec)
	if err != nil {
		return PlacedOrder{}, fmt.Errorf("recording paper order: %w", err)
	}
	slog.Info("paper order recorded", "account_id", accountID, "symbol", rec.Symbol, "quantity", rec.Quantity)
	return PlacedOrder{Record: recorded, Data: data}, nil
}

// Ledger lists recorded orders of one of the operator's accounts. A limit
// outside 1..1000 selects DefaultLedgerLimit.
func (s *OrderService) Ledger(ctx context.Context, userID, accountID int64, limit int) ([]model.OrderRecord, error) {
	if _, err := s.accounts.Get(ctx, userID, accountID); err != nil {
		return nil, fmt.Errorf("loading account %d: %w", accountID, err)
	}
	if limit <= 0 || limit > maxLedgerLimit {
		limit = DefaultLedgerLimit
	}
	orders, err := s.ledger.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) newRecord(order model.OrderRequest, strategyID *int64) (model.OrderRecord, error) {
	qty, err := strconv.Atoi(strings.TrimSpace(order.Quantity))
	if err != nil || qty <= 0 {
		return model.OrderRecord{}, fmt.Errorf("%w: quantity must be a positive integer", ErrInvalidInput)
	}

	var price float64
	if p := strings.TrimSpace(order.Price); p != "" {
		price, err = strconv.ParseFloat(p, 64)
		if err != nil || price < 0 {
			return model.OrderRecord{}, fmt.Errorf("%w: price must be a non-negative number", ErrInvalidInput)
		}
	}

	return model.OrderRecord{
		StrategyID: strategyID,
		Symbol:     order.TradingSymbol,
		Quantity:   qty,
		Price:      price,
		CreatedAt:  s.now().UTC(),
	}, nil
}

// checkStrategy requires an attributed strategy to belong to the order's
// account.
func (s *OrderService) checkStrategy(ctx context.Context, userID int64, rec model.OrderRecord) error {
	if rec.StrategyID == nil {
		return nil
	}
	st, err := s.strategies.Get(ctx, userID, *rec.StrategyID)
	if err != nil {
		return err
	}
	if st.AccountID != rec.AccountID {
		return fmt.Errorf("%w: strategy %d belongs to another account", ErrInvalidInput, st.ID)
	}
	return nil
}

func (s *OrderService) record(ctx context.Context, rec model.OrderRecord) model.OrderRecord {
	recorded, err := s.ledger.Record(ctx, rec)
	if err != nil {
		slog.Error("failed to record order", "account_id", rec.AccountID, "status", rec.Status, "error", err)
		return rec
	}
	return recorded
}

// brokerOrderID extracts the order id from a place-order payload.
func brokerOrderID(data json.RawMessage) string {
	var body struct {
		OrderID string `json:"orderid"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.OrderID
}

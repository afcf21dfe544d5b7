package model

import (
	"encoding/json"
	"time"
)

// OrderRequest is a broker order as accepted by the place-order endpoint.
// Numeric fields travel as strings on the wire.
type OrderRequest struct {
	Variety         string `json:"variety"`
	TradingSymbol   string `json:"tradingsymbol"`
	SymbolToken     string `json:"symboltoken"`
	TransactionType string `json:"transactiontype"`
	Exchange        string `json:"exchange"`
	OrderType       string `json:"ordertype"`
	ProductType     string `json:"producttype"`
	Duration        string `json:"duration"`
	Price           string `json:"price"`
	SquareOff       string `json:"squareoff"`
	StopLoss        string `json:"stoploss"`
	Quantity        string `json:"quantity"`
	OrderTag        string `json:"ordertag,omitempty"`
}

// OrderStatus values recorded in the order ledger.
const (
	OrderPlaced   = "placed"
	OrderRejected = "rejected"
	OrderPaper    = "paper"
)

// OrderRecord is one ledger entry for an order submitted through this
// server. BrokerOrderID is empty for paper and rejected orders.
type OrderRecord struct {
	ID            int64
	AccountID     int64
	StrategyID    *int64
	BrokerOrderID string
	Symbol        string
	Quantity      int
	Price         float64
	Status        string
	Response      json.RawMessage
	CreatedAt     time.Time
}

// ModifyOrderRequest changes an open order.
type ModifyOrderRequest struct {
	Variety     string `json:"variety"`
	OrderID     string `json:"orderid"`
	OrderType   string `json:"ordertype"`
	ProductType string `json:"producttype"`
	Duration    string `json:"duration"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
}

// CandleRequest selects historical candles for one instrument.
type CandleRequest struct {
	Exchange    string `json:"exchange"`
	SymbolToken string `json:"symboltoken"`
	Interval    string `json:"interval"`
	FromDate    string `json:"fromdate"`
	ToDate      string `json:"todate"`
}

// Instrument is one row of the broker's scrip master.
type Instrument struct {
	Token          string `json:"token"`
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	Expiry         string `json:"expiry"`
	Strike         string `json:"strike"`
	LotSize        string `json:"lotsize"`
	InstrumentType string `json:"instrumenttype"`
	Exchange       string `json:"exch_seg"`
	TickSize       string `json:"tick_size"`
}

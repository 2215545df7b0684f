package interfaces

import (
	"context"

	"prostocks-dashboard/internal/types"
)

// SessionProvider establishes and refreshes the authenticated session.
// Login replaces any previously held token.
type SessionProvider interface {
	Login(ctx context.Context) (types.Session, error)
	Token() (string, bool)
	Logout()
}

// ModifySpec carries the mutable fields of an open order. The broker
// requires the trading symbol alongside the order id on modify.
type ModifySpec struct {
	OrderID   string  `json:"order_id"`
	Symbol    string  `json:"symbol"`
	Qty       int     `json:"qty"`
	PriceType string  `json:"price_type"`
	Price     float64 `json:"price"`
}

// OrderGateway places, modifies, cancels and lists orders, recovering from
// session expiry at most once per call.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, spec types.OrderSpec) (types.OrderAck, error)
	ModifyOrder(ctx context.Context, spec ModifySpec) (types.OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) (types.OrderAck, error)
	OrderBook(ctx context.Context) ([]types.Order, error)
	TradeBook(ctx context.Context) ([]types.Trade, error)
}

// CandleQuery selects a historical candle series. Limit, when positive,
// keeps only the most recent entries.
type CandleQuery struct {
	Exchange string
	Symbol   string
	Interval string // minutes, vendor encoding: "1", "5", "15", ...
	Days     int
	Limit    int
}

// MarketData fetches quotes and candle series using the current session.
type MarketData interface {
	Quote(ctx context.Context, exchange, symbol string) (types.Quote, error)
	Candles(ctx context.Context, q CandleQuery) ([]types.Candle, error)
}

package prostocksobs

import (
	"context"

	"prostocks-dashboard/internal/interfaces"
	"prostocks-dashboard/internal/logger"
	"prostocks-dashboard/internal/trace"
	"prostocks-dashboard/internal/types"
)

// observableGateway wraps an OrderGateway with logging & tracing.
type observableGateway struct {
	gw interfaces.OrderGateway
}

var _ interfaces.OrderGateway = (*observableGateway)(nil)

// WrapGateway wraps a gateway with observability middleware
func WrapGateway(gw interfaces.OrderGateway) interfaces.OrderGateway {
	return &observableGateway{gw: gw}
}

func (og *observableGateway) PlaceOrder(ctx context.Context, spec types.OrderSpec) (types.OrderAck, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.PlaceOrder")
	defer span.End()

	logger.Info(ctx, "Placing order",
		"symbol", spec.Symbol,
		"side", spec.Side,
		"qty", spec.Qty,
		"price_type", spec.PriceType,
	)

	ack, err := og.gw.PlaceOrder(ctx, spec)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to place order", err, "symbol", spec.Symbol, "side", spec.Side)
		return types.OrderAck{}, err
	}

	logger.Info(ctx, "Order placed", "symbol", spec.Symbol, "order_id", ack.OrderID, "status", ack.Status)
	return ack, nil
}

func (og *observableGateway) ModifyOrder(ctx context.Context, spec interfaces.ModifySpec) (types.OrderAck, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.ModifyOrder")
	defer span.End()

	logger.Info(ctx, "Modifying order", "order_id", spec.OrderID, "qty", spec.Qty, "price", spec.Price)

	ack, err := og.gw.ModifyOrder(ctx, spec)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to modify order", err, "order_id", spec.OrderID)
		return types.OrderAck{}, err
	}

	logger.Info(ctx, "Order modified", "order_id", ack.OrderID, "status", ack.Status)
	return ack, nil
}

func (og *observableGateway) CancelOrder(ctx context.Context, orderID string) (types.OrderAck, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.CancelOrder")
	defer span.End()

	logger.Info(ctx, "Cancelling order", "order_id", orderID)

	ack, err := og.gw.CancelOrder(ctx, orderID)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to cancel order", err, "order_id", orderID)
		return types.OrderAck{}, err
	}

	logger.Info(ctx, "Order cancelled", "order_id", ack.OrderID, "status", ack.Status)
	return ack, nil
}

func (og *observableGateway) OrderBook(ctx context.Context) ([]types.Order, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.OrderBook")
	defer span.End()

	orders, err := og.gw.OrderBook(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch order book", err)
		return nil, err
	}

	logger.Debug(ctx, "Order book fetched", "count", len(orders))
	return orders, nil
}

func (og *observableGateway) TradeBook(ctx context.Context) ([]types.Trade, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.TradeBook")
	defer span.End()

	trades, err := og.gw.TradeBook(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch trade book", err)
		return nil, err
	}

	logger.Debug(ctx, "Trade book fetched", "count", len(trades))
	return trades, nil
}

// observableMarketData wraps a MarketData client with logging & tracing.
type observableMarketData struct {
	md interfaces.MarketData
}

var _ interfaces.MarketData = (*observableMarketData)(nil)

// WrapMarketData wraps a market data client with observability middleware
func WrapMarketData(md interfaces.MarketData) interfaces.MarketData {
	return &observableMarketData{md: md}
}

func (om *observableMarketData) Quote(ctx context.Context, exchange, symbol string) (types.Quote, error) {
	ctx, span := trace.StartSpan(ctx, "marketdata.Quote")
	defer span.End()

	logger.Debug(ctx, "Fetching quote", "exchange", exchange, "symbol", symbol)

	q, err := om.md.Quote(ctx, exchange, symbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch quote", err, "symbol", symbol)
		return types.Quote{}, err
	}

	logger.Debug(ctx, "Quote fetched", "symbol", symbol, "ltp", q.LTP)
	return q, nil
}

func (om *observableMarketData) Candles(ctx context.Context, q interfaces.CandleQuery) ([]types.Candle, error) {
	ctx, span := trace.StartSpan(ctx, "marketdata.Candles")
	defer span.End()

	logger.Debug(ctx, "Fetching candles", "symbol", q.Symbol, "interval", q.Interval, "days", q.Days)

	candles, err := om.md.Candles(ctx, q)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch candles", err, "symbol", q.Symbol)
		return nil, err
	}

	logger.Debug(ctx, "Candles fetched", "symbol", q.Symbol, "count", len(candles))
	return candles, nil
}

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"prostocks-dashboard/internal/broker/prostocks"
	"prostocks-dashboard/internal/interfaces"
	"prostocks-dashboard/internal/logger"
	"prostocks-dashboard/internal/metrics"
	"prostocks-dashboard/internal/store"
	"prostocks-dashboard/internal/ta"
	"prostocks-dashboard/internal/tradelog"
	"prostocks-dashboard/internal/types"

	"github.com/google/uuid"
)

var ist = time.FixedZone("IST", 19800)

type position struct {
	qty int
	avg float64
}

// Engine drives the auto-trading loop: one Step per symbol per poll. A
// step fetches candles, computes MACD over the Heikin-Ashi series and
// turns crossovers into market orders, honoring the dashboard's runtime
// controls (master/buy/sell toggles, trading window, entry cutoff and
// square-off time).
type Engine struct {
	cfg      *store.Config
	settings *store.SettingsStore
	gw       interfaces.OrderGateway
	md       interfaces.MarketData

	// pos is written by the engine loop and read by HTTP handlers.
	mu  sync.Mutex
	pos map[string]*position

	now func() time.Time // overridable in tests
}

func New(cfg *store.Config, settings *store.SettingsStore, gw interfaces.OrderGateway, md interfaces.MarketData) *Engine {
	return &Engine{
		cfg:      cfg,
		settings: settings,
		gw:       gw,
		md:       md,
		pos:      map[string]*position{},
		now:      func() time.Time { return time.Now().In(ist) },
	}
}

// openQty reports the open position size for symbol, zero when flat.
func (e *Engine) openQty(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p := e.pos[symbol]; p != nil {
		return p.qty
	}
	return 0
}

func parseClock(day time.Time, hhmm string) time.Time {
	t, err := time.ParseInLocation("15:04", hhmm, ist)
	if err != nil {
		return time.Time{}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, ist)
}

func (e *Engine) pickQty(symbol string, side string) int {
	if q, ok := e.cfg.Qty.PerSymbol[symbol]; ok && q > 0 {
		return q
	}
	if side == "B" {
		return e.cfg.Qty.DefaultBuy
	}
	return e.cfg.Qty.DefaultSell
}

func hold(symbol string, price float64, ts int64, reason string) *types.StepResult {
	return &types.StepResult{
		Symbol:   symbol,
		Decision: types.Decision{Action: "HOLD", Reason: reason},
		Price:    price,
		Time:     ts,
		Reason:   reason,
	}
}

// Step evaluates one symbol. Returns nil only on error.
func (e *Engine) Step(ctx context.Context, symbol string) (*types.StepResult, error) {
	s := e.settings.Get()
	now := e.now()

	if !s.MasterAuto {
		return hold(symbol, 0, now.Unix(), "AUTO_TRADING_DISABLED"), nil
	}

	start := parseClock(now, s.TradingStart)
	end := parseClock(now, s.TradingEnd)
	cutoff := parseClock(now, s.CutoffTime)
	exitAt := parseClock(now, s.AutoExitTime)

	if now.Before(start) || now.After(end) {
		return hold(symbol, 0, now.Unix(), "OUTSIDE_TRADING_WINDOW"), nil
	}

	limit := e.cfg.Candles.Limit
	if limit <= 0 {
		limit = 200
	}
	candles, err := e.md.Candles(ctx, interfaces.CandleQuery{
		Exchange: e.cfg.Exchange,
		Symbol:   prostocks.Tradingsymbol(symbol),
		Interval: e.cfg.Candles.Interval,
		Days:     e.cfg.Candles.Days,
		Limit:    limit,
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch candles", err, "symbol", symbol)
		return nil, err
	}

	need := e.cfg.MACD.Slow + e.cfg.MACD.Signal
	if len(candles) < need {
		return nil, fmt.Errorf("not enough candles for %s: have %d, need %d", symbol, len(candles), need)
	}

	latest := candles[len(candles)-1]
	price := latest.Close

	// Square off everything at the auto-exit time regardless of signal.
	if q := e.openQty(symbol); q > 0 && !now.Before(exitAt) {
		return e.exit(ctx, symbol, q, price, latest.Ts, "AUTO_EXIT_TIME")
	}

	ha := ta.HeikinAshi(candles)
	src := ta.Source(ha, e.cfg.MACD.Source)
	macd := ta.MACD(src, e.cfg.MACD.Fast, e.cfg.MACD.Slow, e.cfg.MACD.Signal, e.cfg.MACD.MAType)

	n := len(src)
	histNow, histPrev := macd.Histogram[n-1], macd.Histogram[n-2]
	bullish := ha[n-1].Close > ha[n-1].Open

	action, reason := "HOLD", "NO_SIGNAL"
	switch {
	case histPrev <= 0 && histNow > 0 && bullish:
		action, reason = "BUY", "MACD_CROSS_UP"
	case histPrev >= 0 && histNow < 0 && !bullish:
		action, reason = "SELL", "MACD_CROSS_DOWN"
	}

	metrics.EngineDecisions.WithLabelValues(action).Inc()
	logger.Decision(ctx, symbol, action, 1.0, reason, "hist", histNow)
	_ = tradelog.AppendSignal(tradelog.SignalEntry{
		Symbol: symbol, Action: action, Reason: reason, Price: price, Confidence: 1.0,
		Indicators: map[string]float64{
			"MACD":   macd.MACD[n-1],
			"SIGNAL": macd.Signal[n-1],
			"HIST":   histNow,
		},
	})

	switch action {
	case "BUY":
		if !s.AutoBuy {
			return hold(symbol, price, latest.Ts, "AUTO_BUY_DISABLED"), nil
		}
		if now.After(cutoff) {
			return hold(symbol, price, latest.Ts, "PAST_ENTRY_CUTOFF"), nil
		}
		if e.openQty(symbol) > 0 {
			return hold(symbol, price, latest.Ts, "ALREADY_IN_POSITION"), nil
		}
		return e.enter(ctx, symbol, price, latest.Ts, reason)

	case "SELL":
		if !s.AutoSell {
			return hold(symbol, price, latest.Ts, "AUTO_SELL_DISABLED"), nil
		}
		q := e.openQty(symbol)
		if q == 0 {
			return hold(symbol, price, latest.Ts, "NO_POSITION"), nil
		}
		return e.exit(ctx, symbol, q, price, latest.Ts, reason)
	}

	return hold(symbol, price, latest.Ts, reason), nil
}

func (e *Engine) enter(ctx context.Context, symbol string, price float64, ts int64, reason string) (*types.StepResult, error) {
	qty := e.pickQty(symbol, "B")

	ack, err := e.placeMarket(ctx, symbol, "B", qty, reason)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.pos[symbol] = &position{qty: qty, avg: price}
	e.mu.Unlock()
	_ = tradelog.Append(tradelog.OrderEntry{
		Symbol: symbol, Side: "B", OrderID: ack.OrderID, PriceType: "MKT",
		Qty: qty, Price: price, Status: ack.Status, Reason: reason,
	})

	return &types.StepResult{
		Symbol:   symbol,
		Decision: types.Decision{Action: "BUY", Reason: reason, Confidence: 1.0, Qty: qty},
		Price:    price,
		Time:     ts,
		Orders:   []types.OrderAck{ack},
		Reason:   reason,
	}, nil
}

func (e *Engine) exit(ctx context.Context, symbol string, qty int, price float64, ts int64, reason string) (*types.StepResult, error) {
	ack, err := e.placeMarket(ctx, symbol, "S", qty, reason)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	delete(e.pos, symbol)
	e.mu.Unlock()
	_ = tradelog.Append(tradelog.OrderEntry{
		Symbol: symbol, Side: "S", OrderID: ack.OrderID, PriceType: "MKT",
		Qty: qty, Price: price, Status: ack.Status, Reason: reason,
	})

	return &types.StepResult{
		Symbol:   symbol,
		Decision: types.Decision{Action: "SELL", Reason: reason, Confidence: 1.0, Qty: qty},
		Price:    price,
		Time:     ts,
		Orders:   []types.OrderAck{ack},
		Reason:   reason,
	}, nil
}

func (e *Engine) placeMarket(ctx context.Context, symbol, side string, qty int, reason string) (types.OrderAck, error) {
	if e.cfg.Mode == "DRY_RUN" {
		logger.Info(ctx, "DRY_RUN: order suppressed", "symbol", symbol, "side", side, "qty", qty)
		return types.OrderAck{OrderID: "SIM-" + uuid.NewString(), Status: "SIMULATED"}, nil
	}

	tag := "auto-" + uuid.NewString()[:8]
	ack, err := e.gw.PlaceOrder(ctx, types.OrderSpec{
		Exchange:  e.cfg.Exchange,
		Symbol:    prostocks.Tradingsymbol(symbol),
		Side:      side,
		Product:   e.cfg.Order.Product,
		PriceType: "MKT",
		Qty:       qty,
		Retention: e.cfg.Order.Retention,
		Remarks:   tag,
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Auto order failed", err, "symbol", symbol, "side", side, "reason", reason)
		return types.OrderAck{}, err
	}
	return ack, nil
}

// Positions reports the engine's open positions for the dashboard.
func (e *Engine) Positions() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.pos))
	for sym, p := range e.pos {
		out[sym] = p.qty
	}
	return out
}

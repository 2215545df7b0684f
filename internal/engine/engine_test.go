package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"prostocks-dashboard/internal/interfaces"
	"prostocks-dashboard/internal/store"
	"prostocks-dashboard/internal/ta"
	"prostocks-dashboard/internal/types"
)

type fakeGateway struct {
	placed []types.OrderSpec
	err    error
}

var _ interfaces.OrderGateway = (*fakeGateway)(nil)

func (f *fakeGateway) PlaceOrder(ctx context.Context, spec types.OrderSpec) (types.OrderAck, error) {
	if f.err != nil {
		return types.OrderAck{}, f.err
	}
	f.placed = append(f.placed, spec)
	return types.OrderAck{OrderID: "25011200000123", Status: "Ok"}, nil
}

func (f *fakeGateway) ModifyOrder(ctx context.Context, spec interfaces.ModifySpec) (types.OrderAck, error) {
	return types.OrderAck{}, nil
}

func (f *fakeGateway) CancelOrder(ctx context.Context, orderID string) (types.OrderAck, error) {
	return types.OrderAck{}, nil
}

func (f *fakeGateway) OrderBook(ctx context.Context) ([]types.Order, error) { return nil, nil }
func (f *fakeGateway) TradeBook(ctx context.Context) ([]types.Trade, error) { return nil, nil }

type fakeMarketData struct {
	candles []types.Candle
	err     error
	calls   int
}

var _ interfaces.MarketData = (*fakeMarketData)(nil)

func (f *fakeMarketData) Quote(ctx context.Context, exchange, symbol string) (types.Quote, error) {
	return types.Quote{}, nil
}

func (f *fakeMarketData) Candles(ctx context.Context, q interfaces.CandleQuery) ([]types.Candle, error) {
	f.calls++
	return f.candles, f.err
}

func testConfig(mode string) *store.Config {
	cfg := &store.Config{Mode: mode, Exchange: "NSE", Universe: []string{"JIOFIN"}}
	cfg.Qty.DefaultBuy = 2
	cfg.Qty.DefaultSell = 2
	cfg.Order.Product = "I"
	cfg.Order.Retention = "DAY"
	cfg.Candles.Interval = "5"
	cfg.Candles.Days = 1
	cfg.Candles.Limit = 200
	cfg.MACD.Fast = 12
	cfg.MACD.Slow = 26
	cfg.MACD.Signal = 9
	cfg.MACD.Source = "close"
	cfg.MACD.MAType = "EMA"
	return cfg
}

func testSettings(t *testing.T) *store.SettingsStore {
	t.Helper()
	return store.NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"))
}

// at pins the engine clock to today's HH:MM in IST.
func at(e *Engine, hhmm string) {
	e.now = func() time.Time {
		n := time.Now().In(ist)
		c, _ := time.ParseInLocation("15:04", hhmm, ist)
		return time.Date(n.Year(), n.Month(), n.Day(), c.Hour(), c.Minute(), 0, 0, ist)
	}
}

func bar(ts int64, open, close float64) types.Candle {
	hi, lo := open, close
	if close > hi {
		hi = close
	}
	if open < lo {
		lo = open
	}
	return types.Candle{Ts: ts, Open: open, High: hi + 0.2, Low: lo - 0.2, Close: close, Vol: 1000}
}

// trendCandles builds a V-shaped series: down bars then steeper up bars.
func trendCandles(down, up int) []types.Candle {
	cs := make([]types.Candle, 0, down+up)
	p := 300.0
	ts := int64(1_756_700_000)
	for i := 0; i < down; i++ {
		cs = append(cs, bar(ts, p, p-1))
		p -= 1
		ts += 300
	}
	for i := 0; i < up; i++ {
		cs = append(cs, bar(ts, p, p+2))
		p += 2
		ts += 300
	}
	return cs
}

// buySignalSeries drifts down gently then rallies hard. The gentle drift
// keeps the Heikin-Ashi open close to price, so when the rally flips the
// MACD histogram positive the HA candle at the cross is already bullish.
// A sharp V-reversal would not do: there the histogram crosses at the
// pivot bar, where the lagging HA open still sits above the HA close.
func buySignalSeries() []types.Candle {
	cs := make([]types.Candle, 0, 70)
	p := 300.0
	ts := int64(1_756_700_000)
	for i := 0; i < 45; i++ {
		cs = append(cs, bar(ts, p, p-0.1))
		p -= 0.1
		ts += 300
	}
	for i := 0; i < 25; i++ {
		cs = append(cs, bar(ts, p, p+3))
		p += 3
		ts += 300
	}
	return cs
}

// buySignalCandles truncates the series right at the bar where the
// Heikin-Ashi MACD histogram crosses above zero on a bullish HA candle,
// so a Step on the result sees a fresh crossover.
func buySignalCandles(t *testing.T, cfg *store.Config) []types.Candle {
	t.Helper()
	cs := buySignalSeries()

	ha := ta.HeikinAshi(cs)
	src := ta.Source(ha, cfg.MACD.Source)
	need := cfg.MACD.Slow + cfg.MACD.Signal

	for i := need; i < len(cs); i++ {
		m := ta.MACD(src[:i+1], cfg.MACD.Fast, cfg.MACD.Slow, cfg.MACD.Signal, cfg.MACD.MAType)
		if m.Histogram[i-1] <= 0 && m.Histogram[i] > 0 && ha[i].Close > ha[i].Open {
			return cs[:i+1]
		}
	}
	t.Fatal("no bullish crossover in the synthetic series")
	return nil
}

func newTestEngine(t *testing.T, mode string, md interfaces.MarketData) (*Engine, *fakeGateway, *store.SettingsStore) {
	t.Helper()
	t.Setenv("DASHBOARD_LOG_DIR", t.TempDir())
	gw := &fakeGateway{}
	settings := testSettings(t)
	e := New(testConfig(mode), settings, gw, md)
	at(e, "10:30")
	return e, gw, settings
}

func TestStepMasterAutoDisabled(t *testing.T) {
	md := &fakeMarketData{}
	e, _, settings := newTestEngine(t, "LIVE", md)

	s := settings.Get()
	s.MasterAuto = false
	if err := settings.Put(s); err != nil {
		t.Fatal(err)
	}

	res, err := e.Step(context.Background(), "JIOFIN")
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision.Action != "HOLD" || res.Reason != "AUTO_TRADING_DISABLED" {
		t.Errorf("got %+v", res)
	}
	if md.calls != 0 {
		t.Error("disabled engine must not fetch candles")
	}
}

func TestStepOutsideTradingWindow(t *testing.T) {
	md := &fakeMarketData{}
	e, _, _ := newTestEngine(t, "LIVE", md)
	at(e, "08:00")

	res, err := e.Step(context.Background(), "JIOFIN")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != "OUTSIDE_TRADING_WINDOW" {
		t.Errorf("reason = %q", res.Reason)
	}
	if md.calls != 0 {
		t.Error("no candle fetch outside the trading window")
	}
}

func TestStepNotEnoughCandles(t *testing.T) {
	md := &fakeMarketData{candles: trendCandles(5, 5)}
	e, _, _ := newTestEngine(t, "LIVE", md)

	if _, err := e.Step(context.Background(), "JIOFIN"); err == nil {
		t.Fatal("expected an error for a short series")
	}
}

func TestStepBuySignalPlacesMarketOrder(t *testing.T) {
	cfg := testConfig("LIVE")
	md := &fakeMarketData{candles: buySignalCandles(t, cfg)}
	e, gw, _ := newTestEngine(t, "LIVE", md)

	res, err := e.Step(context.Background(), "JIOFIN")
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision.Action != "BUY" || res.Reason != "MACD_CROSS_UP" {
		t.Fatalf("got %+v", res)
	}
	if len(gw.placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(gw.placed))
	}
	spec := gw.placed[0]
	if spec.Symbol != "JIOFIN-EQ" || spec.Side != "B" || spec.PriceType != "MKT" || spec.Qty != 2 {
		t.Errorf("order spec = %+v", spec)
	}
	if spec.Product != "I" || spec.Retention != "DAY" {
		t.Errorf("order spec = %+v", spec)
	}
	if got := e.Positions()["JIOFIN"]; got != 2 {
		t.Errorf("position = %d, want 2", got)
	}
}

func TestStepBuyGates(t *testing.T) {
	cfg := testConfig("LIVE")
	signal := buySignalCandles(t, cfg)

	t.Run("auto buy disabled", func(t *testing.T) {
		md := &fakeMarketData{candles: signal}
		e, gw, settings := newTestEngine(t, "LIVE", md)
		s := settings.Get()
		s.AutoBuy = false
		if err := settings.Put(s); err != nil {
			t.Fatal(err)
		}

		res, err := e.Step(context.Background(), "JIOFIN")
		if err != nil {
			t.Fatal(err)
		}
		if res.Reason != "AUTO_BUY_DISABLED" || len(gw.placed) != 0 {
			t.Errorf("got %+v, %d orders", res, len(gw.placed))
		}
	})

	t.Run("past entry cutoff", func(t *testing.T) {
		md := &fakeMarketData{candles: signal}
		e, gw, _ := newTestEngine(t, "LIVE", md)
		at(e, "15:00") // inside the window, past the 14:50 cutoff

		res, err := e.Step(context.Background(), "JIOFIN")
		if err != nil {
			t.Fatal(err)
		}
		if res.Reason != "PAST_ENTRY_CUTOFF" || len(gw.placed) != 0 {
			t.Errorf("got %+v, %d orders", res, len(gw.placed))
		}
	})

	t.Run("already in position", func(t *testing.T) {
		md := &fakeMarketData{candles: signal}
		e, gw, _ := newTestEngine(t, "LIVE", md)
		e.pos["JIOFIN"] = &position{qty: 2, avg: 300}

		res, err := e.Step(context.Background(), "JIOFIN")
		if err != nil {
			t.Fatal(err)
		}
		if res.Reason != "ALREADY_IN_POSITION" || len(gw.placed) != 0 {
			t.Errorf("got %+v, %d orders", res, len(gw.placed))
		}
	})
}

func TestStepDryRunSimulatesOrder(t *testing.T) {
	cfg := testConfig("DRY_RUN")
	md := &fakeMarketData{candles: buySignalCandles(t, cfg)}
	e, gw, _ := newTestEngine(t, "DRY_RUN", md)

	res, err := e.Step(context.Background(), "JIOFIN")
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision.Action != "BUY" {
		t.Fatalf("got %+v", res)
	}
	if len(gw.placed) != 0 {
		t.Error("DRY_RUN must not hit the gateway")
	}
	if len(res.Orders) != 1 || res.Orders[0].Status != "SIMULATED" {
		t.Errorf("orders = %+v", res.Orders)
	}
	if e.Positions()["JIOFIN"] != 2 {
		t.Error("simulated fills still track the position")
	}
}

func TestStepAutoExitSquaresOff(t *testing.T) {
	md := &fakeMarketData{candles: trendCandles(40, 40)}
	e, gw, _ := newTestEngine(t, "LIVE", md)
	e.pos["JIOFIN"] = &position{qty: 3, avg: 280}
	at(e, "15:13") // past the 15:12 auto-exit, inside the window

	res, err := e.Step(context.Background(), "JIOFIN")
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision.Action != "SELL" || res.Reason != "AUTO_EXIT_TIME" {
		t.Fatalf("got %+v", res)
	}
	if len(gw.placed) != 1 || gw.placed[0].Side != "S" || gw.placed[0].Qty != 3 {
		t.Errorf("orders = %+v", gw.placed)
	}
	if len(e.Positions()) != 0 {
		t.Error("position must be cleared after square-off")
	}
}

// Positions is served to HTTP handlers while the engine loop mutates the
// position map; both sides must be safe under the race detector.
func TestPositionsConcurrentWithStep(t *testing.T) {
	cfg := testConfig("DRY_RUN")
	md := &fakeMarketData{candles: buySignalCandles(t, cfg)}
	e, _, _ := newTestEngine(t, "DRY_RUN", md)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = e.Positions()
				}
			}
		}()
	}

	ctx := context.Background()
	for i := 0; i < 25; i++ {
		at(e, "10:30") // buy signal enters a position
		if _, err := e.Step(ctx, "JIOFIN"); err != nil {
			t.Fatal(err)
		}
		at(e, "15:13") // auto-exit squares it off
		if _, err := e.Step(ctx, "JIOFIN"); err != nil {
			t.Fatal(err)
		}
	}

	close(stop)
	wg.Wait()
}

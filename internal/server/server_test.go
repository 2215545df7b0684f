package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"prostocks-dashboard/internal/broker/prostocks"
	"prostocks-dashboard/internal/interfaces"
	"prostocks-dashboard/internal/store"
	"prostocks-dashboard/internal/types"
)

type fakeSession struct {
	token    string
	loginErr error
	logins   int
}

var _ interfaces.SessionProvider = (*fakeSession)(nil)

func (f *fakeSession) Login(ctx context.Context) (types.Session, error) {
	f.logins++
	if f.loginErr != nil {
		return types.Session{}, f.loginErr
	}
	f.token = "T1"
	return types.Session{Token: f.token, UserID: "A0588"}, nil
}

func (f *fakeSession) Token() (string, bool) { return f.token, f.token != "" }
func (f *fakeSession) Logout()               { f.token = "" }

type fakeGateway struct {
	placeAck types.OrderAck
	placeErr error
	lastSpec types.OrderSpec
	orders   []types.Order
	trades   []types.Trade
	bookErr  error
}

var _ interfaces.OrderGateway = (*fakeGateway)(nil)

func (f *fakeGateway) PlaceOrder(ctx context.Context, spec types.OrderSpec) (types.OrderAck, error) {
	f.lastSpec = spec
	return f.placeAck, f.placeErr
}

func (f *fakeGateway) ModifyOrder(ctx context.Context, spec interfaces.ModifySpec) (types.OrderAck, error) {
	return types.OrderAck{OrderID: spec.OrderID, Status: "Ok"}, nil
}

func (f *fakeGateway) CancelOrder(ctx context.Context, orderID string) (types.OrderAck, error) {
	return types.OrderAck{OrderID: orderID, Status: "Ok"}, nil
}

func (f *fakeGateway) OrderBook(ctx context.Context) ([]types.Order, error) {
	return f.orders, f.bookErr
}

func (f *fakeGateway) TradeBook(ctx context.Context) ([]types.Trade, error) {
	return f.trades, nil
}

type fakeMarketData struct {
	quote   types.Quote
	candles []types.Candle
	err     error
}

var _ interfaces.MarketData = (*fakeMarketData)(nil)

func (f *fakeMarketData) Quote(ctx context.Context, exchange, symbol string) (types.Quote, error) {
	return f.quote, f.err
}

func (f *fakeMarketData) Candles(ctx context.Context, q interfaces.CandleQuery) ([]types.Candle, error) {
	return f.candles, f.err
}

type fakeEngine struct{ pos map[string]int }

func (f *fakeEngine) Positions() map[string]int { return f.pos }

func testConfig() *store.Config {
	cfg := &store.Config{Mode: "DRY_RUN", Exchange: "NSE", Universe: []string{"JIOFIN"}}
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

func testServer(t *testing.T, sess *fakeSession, gw *fakeGateway, md *fakeMarketData) *Server {
	t.Helper()
	settings := store.NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"))
	return New(testConfig(), settings, sess, gw, md, &fakeEngine{pos: map[string]int{"JIOFIN": 2}})
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("response %q: %v", rr.Body.String(), err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	sess := &fakeSession{}
	s := testServer(t, sess, &fakeGateway{}, &fakeMarketData{})
	h := s.Handler()

	rr := doJSON(t, h, "GET", "/api/v1/session", nil)
	var status map[string]bool
	decodeBody(t, rr, &status)
	if status["logged_in"] {
		t.Error("fresh session must report logged out")
	}

	rr = doJSON(t, h, "POST", "/api/v1/session/login", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rr.Code, rr.Body.String())
	}
	var lr map[string]string
	decodeBody(t, rr, &lr)
	if lr["user_id"] != "A0588" {
		t.Errorf("login body = %v", lr)
	}
	if _, leaked := lr["token"]; leaked {
		t.Error("token must never appear in a response")
	}

	rr = doJSON(t, h, "POST", "/api/v1/session/logout", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout status %d", rr.Code)
	}
	if _, ok := sess.Token(); ok {
		t.Error("logout must clear the session")
	}
}

func TestLoginFailureMapsStatus(t *testing.T) {
	sess := &fakeSession{loginErr: prostocks.ErrRejected}
	s := testServer(t, sess, &fakeGateway{}, &fakeMarketData{})

	rr := doJSON(t, s.Handler(), "POST", "/api/v1/session/login", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rr.Code)
	}
}

func TestPlaceOrder(t *testing.T) {
	gw := &fakeGateway{placeAck: types.OrderAck{OrderID: "123", Status: "Ok"}}
	s := testServer(t, &fakeSession{token: "T1"}, gw, &fakeMarketData{})

	spec := types.OrderSpec{
		Exchange: "NSE", Symbol: "JIOFIN-EQ", Side: "B",
		Product: "I", PriceType: "MKT", Qty: 5,
	}
	rr := doJSON(t, s.Handler(), "POST", "/api/v1/orders", spec)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var ack types.OrderAck
	decodeBody(t, rr, &ack)
	if ack.OrderID != "123" {
		t.Errorf("ack = %+v", ack)
	}
	if gw.lastSpec.Symbol != "JIOFIN-EQ" || gw.lastSpec.Qty != 5 {
		t.Errorf("forwarded spec = %+v", gw.lastSpec)
	}
}

func TestPlaceOrderBadJSON(t *testing.T) {
	s := testServer(t, &fakeSession{}, &fakeGateway{}, &fakeMarketData{})
	req := httptest.NewRequest("POST", "/api/v1/orders", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err       error
		code      int
		retryable bool
	}{
		{prostocks.ErrInvalidSpec, http.StatusBadRequest, false},
		{prostocks.ErrSessionExpired, http.StatusUnauthorized, true},
		{prostocks.ErrRejected, http.StatusUnprocessableEntity, false},
		{prostocks.ErrTransport, http.StatusBadGateway, true},
		{prostocks.ErrMalformed, http.StatusBadGateway, false},
		{errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, c := range cases {
		gw := &fakeGateway{placeErr: c.err}
		s := testServer(t, &fakeSession{token: "T1"}, gw, &fakeMarketData{})
		rr := doJSON(t, s.Handler(), "POST", "/api/v1/orders", types.OrderSpec{Symbol: "X"})
		if rr.Code != c.code {
			t.Errorf("%v: status = %d, want %d", c.err, rr.Code, c.code)
			continue
		}
		var body errorBody
		decodeBody(t, rr, &body)
		if body.Retryable != c.retryable {
			t.Errorf("%v: retryable = %v, want %v", c.err, body.Retryable, c.retryable)
		}
	}
}

func TestOrderBookOpenFilter(t *testing.T) {
	gw := &fakeGateway{orders: []types.Order{
		{OrderID: "1", Status: "OPEN"},
		{OrderID: "2", Status: "COMPLETE"},
		{OrderID: "3", Status: "TRIGGER_PENDING"},
	}}
	s := testServer(t, &fakeSession{token: "T1"}, gw, &fakeMarketData{})
	h := s.Handler()

	rr := doJSON(t, h, "GET", "/api/v1/orders", nil)
	var all []types.Order
	decodeBody(t, rr, &all)
	if len(all) != 3 {
		t.Errorf("unfiltered book = %d orders, want 3", len(all))
	}

	rr = doJSON(t, h, "GET", "/api/v1/orders?open=true", nil)
	var open []types.Order
	decodeBody(t, rr, &open)
	if len(open) != 2 {
		t.Errorf("open book = %d orders, want 2", len(open))
	}
}

func TestCancelOrderRoutesID(t *testing.T) {
	s := testServer(t, &fakeSession{token: "T1"}, &fakeGateway{}, &fakeMarketData{})
	rr := doJSON(t, s.Handler(), "DELETE", "/api/v1/orders/25011200000123", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var ack types.OrderAck
	decodeBody(t, rr, &ack)
	if ack.OrderID != "25011200000123" {
		t.Errorf("ack = %+v", ack)
	}
}

func TestPositions(t *testing.T) {
	s := testServer(t, &fakeSession{}, &fakeGateway{}, &fakeMarketData{})
	rr := doJSON(t, s.Handler(), "GET", "/api/v1/positions", nil)
	var pos map[string]int
	decodeBody(t, rr, &pos)
	if pos["JIOFIN"] != 2 {
		t.Errorf("positions = %v", pos)
	}
}

func TestQuoteRequiresSymbol(t *testing.T) {
	s := testServer(t, &fakeSession{token: "T1"}, &fakeGateway{}, &fakeMarketData{})
	rr := doJSON(t, s.Handler(), "GET", "/api/v1/quote", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestQuoteDefaultsExchange(t *testing.T) {
	md := &fakeMarketData{quote: types.Quote{Symbol: "JIOFIN-EQ", LTP: 310.5}}
	s := testServer(t, &fakeSession{token: "T1"}, &fakeGateway{}, md)
	rr := doJSON(t, s.Handler(), "GET", "/api/v1/quote?symbol=JIOFIN-EQ", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var q types.Quote
	decodeBody(t, rr, &q)
	if q.LTP != 310.5 {
		t.Errorf("quote = %+v", q)
	}
}

func macdCandles(n int) []types.Candle {
	cs := make([]types.Candle, n)
	p := 300.0
	for i := range cs {
		cs[i] = types.Candle{Ts: int64(1_756_700_000 + i*300), Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Vol: 100}
		p += 0.5
	}
	return cs
}

func TestMACDEndpoint(t *testing.T) {
	md := &fakeMarketData{candles: macdCandles(60)}
	s := testServer(t, &fakeSession{token: "T1"}, &fakeGateway{}, md)

	rr := doJSON(t, s.Handler(), "GET", "/api/v1/indicators/macd?symbol=JIOFIN-EQ&heikin_ashi=true", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["fast"].(float64) != 12 || body["ma_type"] != "EMA" || body["heikin_ashi"] != true {
		t.Errorf("body = %v", body)
	}
	for _, k := range []string{"macd", "signal_line", "histogram", "ts"} {
		if _, ok := body[k]; !ok {
			t.Errorf("missing %q in response", k)
		}
	}
}

func TestMACDRejectsBadLengths(t *testing.T) {
	md := &fakeMarketData{candles: macdCandles(60)}
	s := testServer(t, &fakeSession{token: "T1"}, &fakeGateway{}, md)

	rr := doJSON(t, s.Handler(), "GET", "/api/v1/indicators/macd?symbol=X&fast=26&slow=12", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestMACDInsufficientCandles(t *testing.T) {
	md := &fakeMarketData{candles: macdCandles(10)}
	s := testServer(t, &fakeSession{token: "T1"}, &fakeGateway{}, md)

	rr := doJSON(t, s.Handler(), "GET", "/api/v1/indicators/macd?symbol=X", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rr.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := testServer(t, &fakeSession{}, &fakeGateway{}, &fakeMarketData{})
	h := s.Handler()

	rr := doJSON(t, h, "GET", "/api/v1/settings", nil)
	var cur store.Settings
	decodeBody(t, rr, &cur)
	if !cur.MasterAuto {
		t.Error("defaults must have master auto on")
	}

	cur.MasterAuto = false
	cur.CutoffTime = "14:00"
	rr = doJSON(t, h, "PUT", "/api/v1/settings", cur)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, "GET", "/api/v1/settings", nil)
	var got store.Settings
	decodeBody(t, rr, &got)
	if got.MasterAuto || got.CutoffTime != "14:00" {
		t.Errorf("settings = %+v", got)
	}
}

func TestSettingsRejectsBadTime(t *testing.T) {
	s := testServer(t, &fakeSession{}, &fakeGateway{}, &fakeMarketData{})
	bad := store.DefaultSettings()
	bad.AutoExitTime = "25:99"
	rr := doJSON(t, s.Handler(), "PUT", "/api/v1/settings", bad)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	s := testServer(t, &fakeSession{}, &fakeGateway{}, &fakeMarketData{})
	rr := doJSON(t, s.Handler(), "GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}

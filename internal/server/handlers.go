package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"prostocks-dashboard/internal/broker/prostocks"
	"prostocks-dashboard/internal/interfaces"
	"prostocks-dashboard/internal/store"
	"prostocks-dashboard/internal/ta"
	"prostocks-dashboard/internal/types"

	"github.com/gorilla/mux"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, "health", http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	_, loggedIn := s.sess.Token()
	writeJSON(w, "session", http.StatusOK, map[string]bool{"logged_in": loggedIn})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sess.Login(r.Context())
	if err != nil {
		writeError(w, "login", err)
		return
	}
	// The token never leaves the process; the UI only learns who is in.
	writeJSON(w, "login", http.StatusOK, map[string]string{"user_id": sess.UserID})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sess.Logout()
	writeJSON(w, "logout", http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var spec types.OrderSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeJSON(w, "orders", http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	ack, err := s.gw.PlaceOrder(r.Context(), spec)
	if err != nil {
		writeError(w, "orders", err)
		return
	}
	writeJSON(w, "orders", http.StatusCreated, ack)
}

func (s *Server) handleModifyOrder(w http.ResponseWriter, r *http.Request) {
	var spec interfaces.ModifySpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeJSON(w, "orders", http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	spec.OrderID = mux.Vars(r)["id"]

	ack, err := s.gw.ModifyOrder(r.Context(), spec)
	if err != nil {
		writeError(w, "orders", err)
		return
	}
	writeJSON(w, "orders", http.StatusOK, ack)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	ack, err := s.gw.CancelOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "orders", err)
		return
	}
	writeJSON(w, "orders", http.StatusOK, ack)
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	orders, err := s.gw.OrderBook(r.Context())
	if err != nil {
		writeError(w, "orders", err)
		return
	}
	if r.URL.Query().Get("open") == "true" {
		orders = prostocks.OnlyOpenOrPending(orders)
	}
	writeJSON(w, "orders", http.StatusOK, orders)
}

func (s *Server) handleTradeBook(w http.ResponseWriter, r *http.Request) {
	trades, err := s.gw.TradeBook(r.Context())
	if err != nil {
		writeError(w, "trades", err)
		return
	}
	writeJSON(w, "trades", http.StatusOK, trades)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, "positions", http.StatusOK, s.eng.Positions())
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	exchange := r.URL.Query().Get("exchange")
	if exchange == "" {
		exchange = s.cfg.Exchange
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeJSON(w, "quote", http.StatusBadRequest, errorBody{Error: "symbol is required"})
		return
	}

	q, err := s.md.Quote(r.Context(), exchange, symbol)
	if err != nil {
		writeError(w, "quote", err)
		return
	}
	writeJSON(w, "quote", http.StatusOK, q)
}

func (s *Server) candleQuery(r *http.Request) (interfaces.CandleQuery, bool) {
	qp := r.URL.Query()
	symbol := qp.Get("symbol")
	if symbol == "" {
		return interfaces.CandleQuery{}, false
	}

	q := interfaces.CandleQuery{
		Exchange: qp.Get("exchange"),
		Symbol:   symbol,
		Interval: qp.Get("interval"),
		Days:     atoiOr(qp.Get("days"), s.cfg.Candles.Days),
		Limit:    atoiOr(qp.Get("limit"), s.cfg.Candles.Limit),
	}
	if q.Exchange == "" {
		q.Exchange = s.cfg.Exchange
	}
	if q.Interval == "" {
		q.Interval = s.cfg.Candles.Interval
	}
	return q, true
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	q, ok := s.candleQuery(r)
	if !ok {
		writeJSON(w, "candles", http.StatusBadRequest, errorBody{Error: "symbol is required"})
		return
	}

	candles, err := s.md.Candles(r.Context(), q)
	if err != nil {
		writeError(w, "candles", err)
		return
	}

	out := make([]map[string]any, 0, len(candles))
	for _, c := range candles {
		out = append(out, map[string]any{
			"ts": c.Ts, "open": c.Open, "high": c.High,
			"low": c.Low, "close": c.Close, "volume": c.Vol,
		})
	}
	writeJSON(w, "candles", http.StatusOK, out)
}

// handleMACD computes the MACD view the dashboard's indicator tab shows.
// Query params override the configured lengths.
func (s *Server) handleMACD(w http.ResponseWriter, r *http.Request) {
	q, ok := s.candleQuery(r)
	if !ok {
		writeJSON(w, "macd", http.StatusBadRequest, errorBody{Error: "symbol is required"})
		return
	}

	qp := r.URL.Query()
	fast := atoiOr(qp.Get("fast"), s.cfg.MACD.Fast)
	slow := atoiOr(qp.Get("slow"), s.cfg.MACD.Slow)
	signal := atoiOr(qp.Get("signal"), s.cfg.MACD.Signal)
	source := qp.Get("source")
	if source == "" {
		source = s.cfg.MACD.Source
	}
	maType := qp.Get("ma_type")
	if maType == "" {
		maType = s.cfg.MACD.MAType
	}
	if fast <= 0 || slow <= fast || signal <= 0 {
		writeJSON(w, "macd", http.StatusBadRequest, errorBody{Error: "lengths must satisfy 0 < fast < slow and signal > 0"})
		return
	}

	candles, err := s.md.Candles(r.Context(), q)
	if err != nil {
		writeError(w, "macd", err)
		return
	}
	if len(candles) < slow+signal {
		writeJSON(w, "macd", http.StatusUnprocessableEntity, errorBody{Error: "not enough candles for requested lengths"})
		return
	}

	heikin := qp.Get("heikin_ashi") == "true"
	series := candles
	if heikin {
		series = ta.HeikinAshi(candles)
	}
	res := ta.MACD(ta.Source(series, source), fast, slow, signal, maType)

	n := len(candles)
	writeJSON(w, "macd", http.StatusOK, map[string]any{
		"symbol":      q.Symbol,
		"fast":        fast,
		"slow":        slow,
		"signal":      signal,
		"ma_type":     maType,
		"source":      source,
		"heikin_ashi": heikin,
		"macd":        res.MACD[n-1],
		"signal_line": res.Signal[n-1],
		"histogram":   res.Histogram[n-1],
		"ts":          candles[n-1].Ts,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, "settings", http.StatusOK, s.settings.Get())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var in store.Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, "settings", http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if err := s.settings.Put(in); err != nil {
		writeJSON(w, "settings", http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, "settings", http.StatusOK, in)
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"prostocks-dashboard/internal/broker/prostocks"
	"prostocks-dashboard/internal/interfaces"
	"prostocks-dashboard/internal/logger"
	"prostocks-dashboard/internal/metrics"
	"prostocks-dashboard/internal/store"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Engine is the slice of the trading engine the dashboard needs.
type Engine interface {
	Positions() map[string]int
}

// Server is the HTTP surface the browser dashboard talks to.
type Server struct {
	cfg      *store.Config
	settings *store.SettingsStore
	sess     interfaces.SessionProvider
	gw       interfaces.OrderGateway
	md       interfaces.MarketData
	eng      Engine
	router   *mux.Router
	hub      *Hub
	httpSrv  *http.Server
}

func New(cfg *store.Config, settings *store.SettingsStore, sess interfaces.SessionProvider, gw interfaces.OrderGateway, md interfaces.MarketData, eng Engine) *Server {
	s := &Server{
		cfg:      cfg,
		settings: settings,
		sess:     sess,
		gw:       gw,
		md:       md,
		eng:      eng,
		router:   mux.NewRouter(),
		hub:      NewHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/session", s.handleSessionStatus).Methods("GET")
	api.HandleFunc("/session/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/session/logout", s.handleLogout).Methods("POST")

	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders", s.handleOrderBook).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleModifyOrder).Methods("PUT")
	api.HandleFunc("/orders/{id}", s.handleCancelOrder).Methods("DELETE")
	api.HandleFunc("/trades", s.handleTradeBook).Methods("GET")
	api.HandleFunc("/positions", s.handlePositions).Methods("GET")

	api.HandleFunc("/quote", s.handleQuote).Methods("GET")
	api.HandleFunc("/candles", s.handleCandles).Methods("GET")
	api.HandleFunc("/indicators/macd", s.handleMACD).Methods("GET")

	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handlePutSettings).Methods("PUT")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the full middleware-wrapped handler (used by tests).
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	go s.pollQuotes(ctx)

	s.httpSrv = &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Dashboard API listening", "addr", s.cfg.Server.Addr)
		errc <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutCtx)
	}
}

// writeJSON writes a JSON response and counts it.
func writeJSON(w http.ResponseWriter, route string, code int, v any) {
	metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// writeError maps the broker error taxonomy onto HTTP statuses and tells
// the UI whether a retry can help or the input needs fixing.
func writeError(w http.ResponseWriter, route string, err error) {
	var code int
	retryable := false
	switch {
	case errors.Is(err, prostocks.ErrInvalidSpec):
		code = http.StatusBadRequest
	case errors.Is(err, prostocks.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, prostocks.ErrSessionExpired):
		code = http.StatusUnauthorized
		retryable = true
	case errors.Is(err, prostocks.ErrRejected):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, prostocks.ErrTransport):
		code = http.StatusBadGateway
		retryable = true
	case errors.Is(err, prostocks.ErrMalformed):
		code = http.StatusBadGateway
	default:
		code = http.StatusInternalServerError
	}
	writeJSON(w, route, code, errorBody{Error: err.Error(), Retryable: retryable})
}

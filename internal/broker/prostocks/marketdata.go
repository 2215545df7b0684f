package prostocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"prostocks-dashboard/internal/interfaces"
	"prostocks-dashboard/internal/types"
)

var ist = time.FixedZone("IST", 19800)

// MarketData fetches quotes and candle series with the current session
// token. Read paths do NOT auto-retry on session expiry: a stale quote is
// low-stakes next to an order failing silently, so expiry surfaces to the
// caller as ErrSessionExpired and the UI re-logs-in explicitly.
type MarketData struct {
	sess *SessionManager

	mu     sync.RWMutex
	tokens map[string]string // "EXCH|TSYM" → scrip token
}

var _ interfaces.MarketData = (*MarketData)(nil)

func NewMarketData(sess *SessionManager) *MarketData {
	return &MarketData{sess: sess, tokens: make(map[string]string)}
}

func (md *MarketData) call(ctx context.Context, path string, payload map[string]string) (*envelope, error) {
	tok, ok := md.sess.Token()
	if !ok {
		return nil, fmt.Errorf("%w: login required", ErrSessionExpired)
	}
	env, err := md.sess.rc.call(ctx, path, payload, tok)
	if err != nil {
		return nil, err
	}
	if env.expired() {
		return nil, fmt.Errorf("%w: %s", ErrSessionExpired, env.EMsg)
	}
	return env, nil
}

// scripToken resolves a tradingsymbol to the vendor's numeric scrip token
// via SearchScrip, cached per exchange+symbol. The original client did a
// fresh search on every quote; tokens are static per instrument so one
// lookup per process is enough.
func (md *MarketData) scripToken(ctx context.Context, exchange, symbol string) (string, error) {
	key := exchange + "|" + symbol

	md.mu.RLock()
	tok, ok := md.tokens[key]
	md.mu.RUnlock()
	if ok {
		return tok, nil
	}

	payload := map[string]string{
		"uid":   md.sess.UserID(),
		"exch":  exchange,
		"stext": symbol,
	}
	env, err := md.call(ctx, "/SearchScrip", payload)
	if err != nil {
		return "", err
	}
	if !env.ok() {
		return "", fmt.Errorf("%w: %s", ErrRejected, env.EMsg)
	}
	if len(env.List) == 0 {
		return "", fmt.Errorf("%w: no scrip matches %s on %s", ErrNotFound, symbol, exchange)
	}

	var hit struct {
		Token string `json:"token"`
		Tsym  string `json:"tsym"`
	}
	if err := json.Unmarshal(env.List[0], &hit); err != nil || hit.Token == "" {
		return "", fmt.Errorf("%w: scrip row missing token", ErrMalformed)
	}

	md.mu.Lock()
	md.tokens[key] = hit.Token
	md.mu.Unlock()
	return hit.Token, nil
}

// Quote fetches the current picture for one scrip.
func (md *MarketData) Quote(ctx context.Context, exchange, symbol string) (types.Quote, error) {
	scrip, err := md.scripToken(ctx, exchange, symbol)
	if err != nil {
		return types.Quote{}, err
	}

	payload := map[string]string{
		"uid":   md.sess.UserID(),
		"exch":  exchange,
		"token": scrip,
	}
	env, err := md.call(ctx, "/GetQuotes", payload)
	if err != nil {
		return types.Quote{}, err
	}
	if !env.ok() {
		return types.Quote{}, fmt.Errorf("%w: %s", ErrRejected, env.EMsg)
	}

	var row struct {
		LP    string `json:"lp"`
		Open  string `json:"o"`
		High  string `json:"h"`
		Low   string `json:"l"`
		Close string `json:"c"`
		Vol   string `json:"v"`
		SSBoe string `json:"ssboe"` // exchange epoch seconds
	}
	if err := env.decodeObj(&row); err != nil {
		return types.Quote{}, err
	}

	return types.Quote{
		Exchange: exchange,
		Symbol:   symbol,
		Token:    scrip,
		LTP:      atofSafe(row.LP),
		Open:     atofSafe(row.Open),
		High:     atofSafe(row.High),
		Low:      atofSafe(row.Low),
		Close:    atofSafe(row.Close),
		Volume:   int64(atoiSafe(row.Vol)),
		Ts:       int64(atoiSafe(row.SSBoe)),
	}, nil
}

// Candles fetches a TPSeries window covering q.Days back from now. The
// series comes back ascending by time; a positive Limit keeps only the
// most recent entries (tail truncation, never head).
func (md *MarketData) Candles(ctx context.Context, q interfaces.CandleQuery) ([]types.Candle, error) {
	scrip, err := md.scripToken(ctx, q.Exchange, q.Symbol)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	st := now.AddDate(0, 0, -q.Days)
	payload := map[string]string{
		"uid":   md.sess.UserID(),
		"exch":  q.Exchange,
		"token": scrip,
		"st":    strconv.FormatInt(st.Unix(), 10),
		"et":    strconv.FormatInt(now.Unix(), 10),
		"intrv": q.Interval,
	}

	env, err := md.call(ctx, "/TPSeries", payload)
	if err != nil {
		return nil, err
	}
	if !env.ok() {
		if isNoData(env.EMsg) {
			return []types.Candle{}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, env.EMsg)
	}

	candles := make([]types.Candle, 0, len(env.List))
	for _, raw := range env.List {
		var row struct {
			Time  string `json:"time"` // "02-09-2026 10:15:00" IST
			Open  string `json:"into"`
			High  string `json:"inth"`
			Low   string `json:"intl"`
			Close string `json:"intc"`
			Vol   string `json:"intv"`
		}
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("%w: candle row: %v", ErrMalformed, err)
		}

		ts, err := time.ParseInLocation("02-01-2006 15:04:05", row.Time, ist)
		if err != nil {
			return nil, fmt.Errorf("%w: candle time %q: %v", ErrMalformed, row.Time, err)
		}

		candles = append(candles, types.Candle{
			Ts:    ts.Unix(),
			Open:  atofSafe(row.Open),
			High:  atofSafe(row.High),
			Low:   atofSafe(row.Low),
			Close: atofSafe(row.Close),
			Vol:   atofSafe(row.Vol),
		})
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Ts < candles[j].Ts })

	if q.Limit > 0 && len(candles) > q.Limit {
		candles = candles[len(candles)-q.Limit:]
	}
	return candles, nil
}

package prostocks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"prostocks-dashboard/internal/interfaces"
	"prostocks-dashboard/internal/logger"
	"prostocks-dashboard/internal/metrics"
	"prostocks-dashboard/internal/types"
)

// Gateway places, modifies, cancels and lists orders. Every call goes
// through invoke, which owns the one session-expiry recovery: re-login
// once, retry once, then give up with ErrSessionExpired.
type Gateway struct {
	sess *SessionManager
}

var _ interfaces.OrderGateway = (*Gateway)(nil)

func NewGateway(sess *SessionManager) *Gateway {
	return &Gateway{sess: sess}
}

// invoke runs one authenticated call. The check-token → call → re-login →
// retry unit is serialized by the session write lock inside Login plus the
// token re-read below; a retry always carries the token of the login it
// itself triggered or a newer one, never a stale value.
func (g *Gateway) invoke(ctx context.Context, path string, payload map[string]string) (*envelope, error) {
	g.sess.mu.Lock()
	defer g.sess.mu.Unlock()

	if g.sess.token == "" {
		return nil, fmt.Errorf("%w: login required", ErrSessionExpired)
	}

	env, err := g.sess.rc.call(ctx, path, payload, g.sess.token)
	if err != nil {
		return nil, err
	}
	if !env.expired() {
		return env, nil
	}

	logger.Warn(ctx, "Session expired mid-call, re-authenticating", "path", path)
	metrics.Relogins.Inc()

	if err := g.reloginLocked(ctx); err != nil {
		return nil, fmt.Errorf("%w: re-login failed: %v", ErrSessionExpired, err)
	}

	env, err = g.sess.rc.call(ctx, path, payload, g.sess.token)
	if err != nil {
		return nil, err
	}
	if env.expired() {
		return nil, fmt.Errorf("%w: retry after re-login still expired", ErrSessionExpired)
	}
	return env, nil
}

// reloginLocked re-runs the QuickAuth handshake while already holding the
// session lock. Mirrors SessionManager.Login, which cannot be called here
// without deadlocking.
func (g *Gateway) reloginLocked(ctx context.Context) error {
	m := g.sess
	payload := map[string]string{
		"uid":        m.creds.UserID,
		"pwd":        sha256Hex(m.creds.Password),
		"factor2":    m.creds.Factor2,
		"vc":         m.creds.VendorCode,
		"appkey":     sha256Hex(m.creds.UserID + "|" + m.creds.APIKey),
		"imei":       m.creds.IMEI,
		"apkversion": m.creds.APKVersion,
		"source":     "API",
	}

	body, err := m.rc.postJData(ctx, "/QuickAuth", payload, "")
	if err != nil {
		return err
	}

	var resp struct {
		Stat       string `json:"stat"`
		SUserToken string `json:"susertoken"`
		EMsg       string `json:"emsg"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if resp.Stat != "Ok" || resp.SUserToken == "" {
		metrics.LoginsFailed.Inc()
		return fmt.Errorf("%w: %s", ErrRejected, resp.EMsg)
	}

	m.token = resp.SUserToken
	metrics.Logins.Inc()
	logger.SessionEvent(ctx, m.creds.UserID, "relogin")
	return nil
}

func fmtPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// PlaceOrder validates the spec and submits it. Market orders always go
// out with the sentinel price "0"; non-market orders without a price fail
// fast before any network I/O.
func (g *Gateway) PlaceOrder(ctx context.Context, spec types.OrderSpec) (types.OrderAck, error) {
	if spec.Exchange == "" || spec.Symbol == "" {
		return types.OrderAck{}, fmt.Errorf("%w: exchange and symbol are required", ErrInvalidSpec)
	}
	if spec.Side != "B" && spec.Side != "S" {
		return types.OrderAck{}, fmt.Errorf("%w: side must be B or S, got %q", ErrInvalidSpec, spec.Side)
	}
	if spec.Qty <= 0 {
		return types.OrderAck{}, fmt.Errorf("%w: qty must be positive", ErrInvalidSpec)
	}
	if spec.PriceType == "" {
		return types.OrderAck{}, fmt.Errorf("%w: price_type is required", ErrInvalidSpec)
	}

	retention := spec.Retention
	if retention == "" {
		retention = "DAY"
	}

	uid := g.sess.UserID()
	payload := map[string]string{
		"uid":         uid,
		"actid":       uid,
		"exch":        spec.Exchange,
		"tsym":        spec.Symbol,
		"qty":         strconv.Itoa(spec.Qty),
		"dscqty":      strconv.Itoa(spec.DiscloseQty),
		"prd":         spec.Product,
		"trantype":    spec.Side,
		"prctyp":      spec.PriceType,
		"ret":         retention,
		"ordersource": "API",
		"remarks":     spec.Remarks,
	}

	switch {
	case spec.PriceType == "MKT" || spec.PriceType == "SL-MKT":
		payload["prc"] = "0"
	case spec.Price > 0:
		payload["prc"] = fmtPrice(spec.Price)
	default:
		return types.OrderAck{}, fmt.Errorf("%w: price is required for %s orders", ErrInvalidSpec, spec.PriceType)
	}

	if spec.TriggerPrice > 0 {
		payload["trgprc"] = fmtPrice(spec.TriggerPrice)
	}

	env, err := g.invoke(ctx, "/PlaceOrder", payload)
	if err != nil {
		metrics.Orders.WithLabelValues("place", "error").Inc()
		return types.OrderAck{}, err
	}
	if !env.ok() {
		metrics.Orders.WithLabelValues("place", "rejected").Inc()
		return types.OrderAck{}, fmt.Errorf("%w: %s", ErrRejected, env.EMsg)
	}

	ack, err := decodeAck(env)
	if err != nil {
		return types.OrderAck{}, err
	}

	metrics.Orders.WithLabelValues("place", "ok").Inc()
	logger.Order(ctx, spec.Symbol, spec.Side, spec.Qty, spec.Price, ack.OrderID, "price_type", spec.PriceType)
	return ack, nil
}

// ModifyOrder updates quantity, price type and price of an open order.
// Eligibility is not checked locally; the broker rejects orders that are
// no longer OPEN or PENDING.
func (g *Gateway) ModifyOrder(ctx context.Context, spec interfaces.ModifySpec) (types.OrderAck, error) {
	if spec.OrderID == "" || spec.Symbol == "" {
		return types.OrderAck{}, fmt.Errorf("%w: order_id and symbol are required", ErrInvalidSpec)
	}
	if spec.Qty <= 0 {
		return types.OrderAck{}, fmt.Errorf("%w: qty must be positive", ErrInvalidSpec)
	}

	prc := "0"
	if spec.PriceType != "MKT" && spec.PriceType != "SL-MKT" {
		if spec.Price <= 0 {
			return types.OrderAck{}, fmt.Errorf("%w: price is required for %s orders", ErrInvalidSpec, spec.PriceType)
		}
		prc = fmtPrice(spec.Price)
	}

	payload := map[string]string{
		"uid":        g.sess.UserID(),
		"norenordno": spec.OrderID,
		"tsym":       spec.Symbol,
		"qty":        strconv.Itoa(spec.Qty),
		"prctyp":     spec.PriceType,
		"prc":        prc,
	}

	env, err := g.invoke(ctx, "/ModifyOrder", payload)
	if err != nil {
		metrics.Orders.WithLabelValues("modify", "error").Inc()
		return types.OrderAck{}, err
	}
	if !env.ok() {
		metrics.Orders.WithLabelValues("modify", "rejected").Inc()
		return types.OrderAck{}, fmt.Errorf("%w: %s", ErrRejected, env.EMsg)
	}

	ack, err := decodeAck(env)
	if err != nil {
		return types.OrderAck{}, err
	}
	if ack.OrderID == "" {
		ack.OrderID = spec.OrderID
	}
	metrics.Orders.WithLabelValues("modify", "ok").Inc()
	return ack, nil
}

// CancelOrder forwards a cancel regardless of locally known status; a
// broker rejection (order already COMPLETE, say) surfaces as ErrRejected.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) (types.OrderAck, error) {
	if orderID == "" {
		return types.OrderAck{}, fmt.Errorf("%w: order_id is required", ErrInvalidSpec)
	}

	payload := map[string]string{
		"uid":         g.sess.UserID(),
		"norenordno":  orderID,
		"ordersource": "API",
	}

	env, err := g.invoke(ctx, "/CancelOrder", payload)
	if err != nil {
		metrics.Orders.WithLabelValues("cancel", "error").Inc()
		return types.OrderAck{}, err
	}
	if !env.ok() {
		metrics.Orders.WithLabelValues("cancel", "rejected").Inc()
		return types.OrderAck{}, fmt.Errorf("%w: %s", ErrRejected, env.EMsg)
	}

	ack, err := decodeAck(env)
	if err != nil {
		return types.OrderAck{}, err
	}
	if ack.OrderID == "" {
		ack.OrderID = orderID
	}
	metrics.Orders.WithLabelValues("cancel", "ok").Inc()
	return ack, nil
}

// OrderBook lists the account's orders. An empty book comes back from the
// vendor as a Not_Ok "no data" reply and maps to an empty slice.
func (g *Gateway) OrderBook(ctx context.Context) ([]types.Order, error) {
	env, err := g.invoke(ctx, "/OrderBook", map[string]string{"uid": g.sess.UserID()})
	if err != nil {
		return nil, err
	}
	if !env.ok() {
		if isNoData(env.EMsg) {
			return []types.Order{}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, env.EMsg)
	}

	orders := make([]types.Order, 0, len(env.List))
	for _, raw := range env.List {
		var row orderRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("%w: order row: %v", ErrMalformed, err)
		}
		orders = append(orders, row.toOrder())
	}
	return orders, nil
}

// TradeBook lists executed fills.
func (g *Gateway) TradeBook(ctx context.Context) ([]types.Trade, error) {
	uid := g.sess.UserID()
	env, err := g.invoke(ctx, "/TradeBook", map[string]string{"uid": uid, "actid": uid})
	if err != nil {
		return nil, err
	}
	if !env.ok() {
		if isNoData(env.EMsg) {
			return []types.Trade{}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, env.EMsg)
	}

	trades := make([]types.Trade, 0, len(env.List))
	for _, raw := range env.List {
		var row tradeRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("%w: trade row: %v", ErrMalformed, err)
		}
		trades = append(trades, row.toTrade())
	}
	return trades, nil
}

package prostocks

import (
	"fmt"
	"strconv"
	"strings"

	"prostocks-dashboard/internal/types"
)

// decodeAck pulls the broker order id out of a place/modify/cancel reply.
func decodeAck(env *envelope) (types.OrderAck, error) {
	var resp struct {
		OrderID string `json:"norenordno"`
		Stat    string `json:"stat"`
		ReqTime string `json:"request_time"`
	}
	if err := env.decodeObj(&resp); err != nil {
		return types.OrderAck{}, err
	}
	return types.OrderAck{OrderID: resp.OrderID, Status: resp.Stat, ReqTime: resp.ReqTime}, nil
}

// isNoData matches the vendor's empty-book reply, which arrives as an
// error rather than an empty list.
func isNoData(emsg string) bool {
	return strings.Contains(strings.ToLower(emsg), "no data")
}

// Numeric fields arrive as strings on the wire; parse failures read as 0.
func atoiSafe(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atofSafe(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

type orderRow struct {
	OrderID    string `json:"norenordno"`
	Exchange   string `json:"exch"`
	Symbol     string `json:"tsym"`
	Side       string `json:"trantype"`
	Product    string `json:"prd"`
	PriceType  string `json:"prctyp"`
	Qty        string `json:"qty"`
	FillShares string `json:"fillshares"`
	Price      string `json:"prc"`
	TrigPrice  string `json:"trgprc"`
	AvgPrice   string `json:"avgprc"`
	Retention  string `json:"ret"`
	Status     string `json:"status"`
	Remarks    string `json:"remarks"`
	Time       string `json:"norentm"`
}

func (r orderRow) toOrder() types.Order {
	return types.Order{
		OrderID:      r.OrderID,
		Exchange:     r.Exchange,
		Symbol:       r.Symbol,
		Side:         r.Side,
		Product:      r.Product,
		PriceType:    r.PriceType,
		Qty:          atoiSafe(r.Qty),
		FilledQty:    atoiSafe(r.FillShares),
		Price:        atofSafe(r.Price),
		TriggerPrice: atofSafe(r.TrigPrice),
		AvgPrice:     atofSafe(r.AvgPrice),
		Retention:    r.Retention,
		Status:       r.Status,
		Remarks:      r.Remarks,
		Time:         r.Time,
	}
}

type tradeRow struct {
	OrderID   string `json:"norenordno"`
	Exchange  string `json:"exch"`
	Symbol    string `json:"tsym"`
	Side      string `json:"trantype"`
	FillQty   string `json:"flqty"`
	FillPrice string `json:"flprc"`
	Time      string `json:"norentm"`
}

func (r tradeRow) toTrade() types.Trade {
	return types.Trade{
		OrderID:   r.OrderID,
		Exchange:  r.Exchange,
		Symbol:    r.Symbol,
		Side:      r.Side,
		FillQty:   atoiSafe(r.FillQty),
		FillPrice: atofSafe(r.FillPrice),
		Time:      r.Time,
	}
}

// Tradingsymbol maps a bare universe entry to the vendor tradingsymbol
// ("SBIN" → "SBIN-EQ"). Entries that already carry a series suffix pass
// through unchanged.
func Tradingsymbol(symbol string) string {
	if strings.Contains(symbol, "-") {
		return symbol
	}
	return symbol + "-EQ"
}

// OnlyOpenOrPending filters the book down to orders still eligible for
// modify/cancel. The gateway itself never blocks on status; this exists
// for UI convenience.
func OnlyOpenOrPending(orders []types.Order) []types.Order {
	out := make([]types.Order, 0, len(orders))
	for _, o := range orders {
		switch o.Status {
		case "OPEN", "PENDING", "TRIGGER_PENDING":
			out = append(out, o)
		}
	}
	return out
}

// String renders a compact human-readable order line for logs.
func OrderLine(o types.Order) string {
	return fmt.Sprintf("%s %s %s x%d @ %s [%s]", o.OrderID, o.Side, o.Symbol, o.Qty, fmtPrice(o.Price), o.Status)
}

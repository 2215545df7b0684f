package types

// Candle is one OHLCV bar as returned by the TPSeries endpoint.
type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// Quote is the current market picture for one scrip.
type Quote struct {
	Exchange string  `json:"exchange"`
	Symbol   string  `json:"symbol"`
	Token    string  `json:"token"`
	LTP      float64 `json:"ltp"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume"`
	Ts       int64   `json:"ts"`
}

// Credentials holds everything the QuickAuth handshake needs. Password and
// APIKey stay plaintext here; hashing happens at login time.
type Credentials struct {
	UserID     string
	Password   string
	Factor2    string
	VendorCode string
	APIKey     string
	IMEI       string
	BaseURL    string
	APKVersion string
}

// Session is the opaque bearer credential returned by QuickAuth.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// OrderSpec is what callers supply to place an order. Vendor wire names in
// comments where they differ.
type OrderSpec struct {
	Exchange     string  `json:"exchange"`      // exch
	Symbol       string  `json:"symbol"`        // tsym
	Side         string  `json:"side"`          // trantype: B | S
	Product      string  `json:"product"`       // prd: C | I | H
	PriceType    string  `json:"price_type"`    // prctyp: LMT | MKT | SL-LMT | SL-MKT
	Qty          int     `json:"qty"`
	DiscloseQty  int     `json:"disclose_qty"`  // dscqty
	Price        float64 `json:"price"`         // prc; forced to "0" for MKT
	TriggerPrice float64 `json:"trigger_price"` // trgprc; omitted when zero
	Retention    string  `json:"retention"`     // ret: DAY | IOC
	Remarks      string  `json:"remarks"`
}

// OrderAck echoes the broker's acceptance of a place/modify/cancel request.
type OrderAck struct {
	OrderID string `json:"order_id"` // norenordno
	Status  string `json:"status"`
	ReqTime string `json:"req_time,omitempty"`
}

// Order is one row of the broker's order book. Status is broker-assigned
// and advisory; the order book stays the source of truth.
type Order struct {
	OrderID      string  `json:"order_id"`
	Exchange     string  `json:"exchange"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	Product      string  `json:"product"`
	PriceType    string  `json:"price_type"`
	Qty          int     `json:"qty"`
	FilledQty    int     `json:"filled_qty"`
	Price        float64 `json:"price"`
	TriggerPrice float64 `json:"trigger_price,omitempty"`
	AvgPrice     float64 `json:"avg_price,omitempty"`
	Retention    string  `json:"retention"`
	Status       string  `json:"status"`
	Remarks      string  `json:"remarks,omitempty"`
	Time         string  `json:"time,omitempty"` // norentm
}

// Trade is one executed fill from the trade book.
type Trade struct {
	OrderID   string  `json:"order_id"`
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	FillQty   int     `json:"fill_qty"`
	FillPrice float64 `json:"fill_price"`
	Time      string  `json:"time,omitempty"`
}

// Decision is the engine's verdict for one symbol on one step.
type Decision struct {
	Action     string  `json:"action"` // BUY | SELL | HOLD
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Qty        int     `json:"qty,omitempty"`
}

// StepResult is what one engine step produced for one symbol.
type StepResult struct {
	Symbol   string     `json:"symbol"`
	Decision Decision   `json:"decision"`
	Price    float64    `json:"price"`
	Time     int64      `json:"time"`
	Orders   []OrderAck `json:"orders"`
	Reason   string     `json:"reason"`
}

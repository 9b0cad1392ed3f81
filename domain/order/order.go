package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the side a crossing order must have.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type Type string

const (
	Market    Type = "MARKET"
	Limit     Type = "LIMIT"
	Stop      Type = "STOP"
	StopLimit Type = "STOP_LIMIT"
)

// Triggered reports whether the type carries a trigger price.
func (t Type) Triggered() bool {
	return t == Stop || t == StopLimit
}

type Status string

const (
	Open      Status = "OPEN"
	Partial   Status = "PARTIAL"
	Filled    Status = "FILLED"
	Cancelled Status = "CANCELLED"
)

// Terminal reports whether no further mutation of the order is allowed.
func (s Status) Terminal() bool {
	return s == Filled || s == Cancelled
}

type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	Day TimeInForce = "DAY"
)

// Order is an immutable intent plus mutable fill state. Price is only
// meaningful for LIMIT and STOP_LIMIT, TriggerPrice for STOP and
// STOP_LIMIT. Seq is assigned at admission and breaks price ties.
type Order struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"userId"`
	Ticker       string          `json:"ticker"`
	Side         Side            `json:"side"`
	Type         Type            `json:"type"`
	Price        decimal.Decimal `json:"price"`
	TriggerPrice decimal.Decimal `json:"triggerPrice"`
	Quantity     decimal.Decimal `json:"quantity"`
	Remaining    decimal.Decimal `json:"remaining"`
	TimeInForce  TimeInForce     `json:"timeInForce"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	MatchedAt    time.Time       `json:"matchedAt"`
	Seq          uint64          `json:"seq"`
}

// Fill consumes qty from the remaining quantity and moves the status
// forward. The caller guarantees qty <= Remaining.
func (o *Order) Fill(qty decimal.Decimal, at time.Time) {
	o.Remaining = o.Remaining.Sub(qty)
	o.MatchedAt = at
	if o.Remaining.IsZero() {
		o.Status = Filled
	} else {
		o.Status = Partial
	}
}

// Filled quantity so far.
func (o *Order) FilledQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.Remaining)
}

// Trade is a fill event. Price is always the resting (maker) order's
// price; Taker is the aggressing order.
type Trade struct {
	ID           uuid.UUID       `json:"id"`
	Ticker       string          `json:"ticker"`
	TakerOrderID uuid.UUID       `json:"takerOrderId"`
	MakerOrderID uuid.UUID       `json:"makerOrderId"`
	BuyerID      uuid.UUID       `json:"buyerId"`
	SellerID     uuid.UUID       `json:"sellerId"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	ExecutedAt   time.Time       `json:"executedAt"`
}

// Notional is price * quantity, the cash leg of the trade.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

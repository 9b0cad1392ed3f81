package http

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tomtrade/domain/order"
	"tomtrade/engine"
)

// Schemas are used for validation and as the transport shape; the core
// keeps plain records and the handlers map between the two.

type PlaceOrderSchema struct {
	UserID       uuid.UUID         `json:"userId" validate:"required"`
	Ticker       string            `json:"ticker" validate:"required"`
	Side         order.Side        `json:"side" validate:"required,oneof=BUY SELL"`
	Type         order.Type        `json:"type" validate:"required,oneof=MARKET LIMIT STOP STOP_LIMIT"`
	Price        decimal.Decimal   `json:"price"`
	TriggerPrice decimal.Decimal   `json:"triggerPrice"`
	Quantity     decimal.Decimal   `json:"quantity" validate:"required"`
	TimeInForce  order.TimeInForce `json:"timeInForce" validate:"omitempty,oneof=GTC DAY"`
}

type SubmitResponseSchema struct {
	Order  order.Order   `json:"order"`
	Trades []order.Trade `json:"trades"`
}

func newSubmitResponse(res *engine.Result) SubmitResponseSchema {
	trades := res.Trades
	if trades == nil {
		trades = []order.Trade{}
	}
	return SubmitResponseSchema{Order: res.Order, Trades: trades}
}

var validate = validator.New()

func validateInput(input interface{}) error {
	return validate.Struct(input)
}

// Package http is the admission surface for the matching core. It is a
// thin adapter: parse and validate, hand off to the router, map the
// rejection taxonomy onto status codes. The platform's GraphQL layer
// sits in front of it in production.
package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tomtrade/domain/order"
	"tomtrade/infra/orderstore"
	"tomtrade/service"
)

// requestTimeout bounds how long a request may wait on an instrument
// actor. An expiry after admission means "possibly applied": the core
// does not roll back, the caller must re-query.
var requestTimeout = 5 * time.Second

type Handlers struct {
	router *service.Router
	orders *orderstore.Store
	log    *zap.Logger
}

func NewHandlers(router *service.Router, orders *orderstore.Store, log *zap.Logger) *Handlers {
	return &Handlers{router: router, orders: orders, log: log}
}

func requestCtx(c fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c, requestTimeout)
}

func (h *Handlers) PlaceOrder(c fiber.Ctx) error {
	var in PlaceOrderSchema
	if err := c.Bind().Body(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if err := validateInput(&in); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	tif := in.TimeInForce
	if tif == "" {
		tif = order.GTC
	}
	o := &order.Order{
		ID:           uuid.New(),
		UserID:       in.UserID,
		Ticker:       in.Ticker,
		Side:         in.Side,
		Type:         in.Type,
		Price:        in.Price,
		TriggerPrice: in.TriggerPrice,
		Quantity:     in.Quantity,
		TimeInForce:  tif,
		CreatedAt:    time.Now().UTC(),
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	res, err := h.router.Submit(ctx, o)
	if err != nil {
		return h.reject(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(newSubmitResponse(res))
}

func (h *Handlers) CancelOrder(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.ErrBadRequest
	}
	ticker := c.Query("ticker")
	if ticker == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "ticker query parameter is required",
		})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	cancelled, err := h.router.Cancel(ctx, ticker, id)
	if err != nil {
		return h.reject(c, err)
	}
	return c.JSON(cancelled)
}

func (h *Handlers) GetDepth(c fiber.Ctx) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	depth, err := h.router.Depth(ctx, c.Params("ticker"))
	if err != nil {
		return h.reject(c, err)
	}
	return c.JSON(depth)
}

func (h *Handlers) GetRestingOrders(c fiber.Ctx) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	orders, err := h.router.Orders(ctx, c.Params("ticker"))
	if err != nil {
		return h.reject(c, err)
	}
	if orders == nil {
		orders = []order.Order{}
	}
	return c.JSON(orders)
}

func (h *Handlers) GetOrder(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.ErrBadRequest
	}
	o, err := h.orders.Get(id)
	if err != nil {
		return h.reject(c, err)
	}
	return c.JSON(o)
}

// reject maps the engine's taxonomy to transport status codes.
func (h *Handlers) reject(c fiber.Ctx, err error) error {
	var status int
	switch {
	case errors.Is(err, order.ErrInvalidOrder):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(err, order.ErrInsufficientFunds), errors.Is(err, order.ErrInsufficientPosition):
		status = fiber.StatusPaymentRequired
	case errors.Is(err, order.ErrUnfilledMarketOrder):
		status = fiber.StatusConflict
	case errors.Is(err, order.ErrOrderNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		// Possibly applied: the caller must re-query, not retry blindly.
		status = fiber.StatusGatewayTimeout
	default:
		h.log.Error("request failed", zap.Error(err))
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

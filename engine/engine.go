// Package engine implements the matching algorithm and order lifecycle
// for one instrument. An Engine is owned by exactly one instrument
// actor and is never called concurrently; the ledger is the only shared
// collaborator it touches.
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tomtrade/domain/book"
	"tomtrade/domain/ledger"
	"tomtrade/domain/order"
)

// Events receives trade and order-status changes as they commit.
// Delivery beyond the sink (sockets, cache invalidation) is external.
type Events interface {
	TradeExecuted(t order.Trade)
	OrderUpdated(o order.Order)
}

// NopEvents discards events, for tests.
type NopEvents struct{}

func (NopEvents) TradeExecuted(order.Trade) {}
func (NopEvents) OrderUpdated(order.Order)  {}

// Result is the outcome of a submission: the final order state and the
// trades it produced, in execution order.
type Result struct {
	Order  order.Order
	Trades []order.Trade
}

type Engine struct {
	ticker   string
	book     *book.Book
	ledger   ledger.Ledger
	triggers *TriggerMonitor
	events   Events
	log      *zap.Logger

	// live reservations for resting and pending-trigger orders
	reservations map[string]*ledger.Reservation
}

func New(ticker string, bk *book.Book, lg ledger.Ledger, events Events, log *zap.Logger) *Engine {
	return &Engine{
		ticker:       ticker,
		book:         bk,
		ledger:       lg,
		triggers:     NewTriggerMonitor(),
		events:       events,
		log:          log.With(zap.String("ticker", ticker)),
		reservations: map[string]*ledger.Reservation{},
	}
}

func (e *Engine) Book() *book.Book { return e.book }

// Submit validates, reserves, and then matches or rests the order.
// Returns the final order state and any trades produced. Stop orders
// whose condition is not yet met are parked with the trigger monitor
// and are invisible in the book.
func (e *Engine) Submit(o *order.Order) (*Result, error) {
	if err := e.validate(o); err != nil {
		return nil, err
	}

	o.Remaining = o.Quantity
	o.Status = order.Open
	o.Seq = e.book.NextSeq()

	// A market order meeting an empty opposing book is rejected before
	// any reservation is taken.
	if o.Type == order.Market && e.book.BestOpposing(o.Side) == nil {
		return nil, errors.Wrapf(order.ErrUnfilledMarketOrder, "ticker %s", e.ticker)
	}

	res, err := e.ledger.Reserve(o.UserID, o.Ticker, o.Side, e.reserveAmount(o))
	if err != nil {
		return nil, err
	}
	e.reservations[o.ID.String()] = res

	if o.Type.Triggered() && !e.triggers.Met(o) {
		e.triggers.Park(o)
		e.events.OrderUpdated(*o)
		return &Result{Order: *o}, nil
	}
	demote(o)

	result, err := e.execute(o)
	if err != nil {
		return result, err
	}
	e.promote()
	return result, nil
}

// execute runs the matching loop and handles the leftover quantity.
func (e *Engine) execute(o *order.Order) (*Result, error) {
	result := &Result{}

	for o.Remaining.IsPositive() {
		maker := e.book.BestOpposing(o.Side)
		if maker == nil || !crosses(o, maker) {
			break
		}

		qty := decimal.Min(o.Remaining, maker.Remaining)
		now := time.Now().UTC()
		t := order.Trade{
			ID:           uuid.New(),
			Ticker:       e.ticker,
			TakerOrderID: o.ID,
			MakerOrderID: maker.ID,
			Price:        maker.Price,
			Quantity:     qty,
			ExecutedAt:   now,
		}
		if o.Side == order.Buy {
			t.BuyerID, t.SellerID = o.UserID, maker.UserID
		} else {
			t.BuyerID, t.SellerID = maker.UserID, o.UserID
		}

		var buyRes, sellRes *ledger.Reservation
		if o.Side == order.Buy {
			buyRes = e.reservations[o.ID.String()]
			sellRes = e.reservations[maker.ID.String()]
		} else {
			buyRes = e.reservations[maker.ID.String()]
			sellRes = e.reservations[o.ID.String()]
		}
		if err := e.ledger.Settle(t, buyRes, sellRes); err != nil {
			// Already-settled trades stay committed; the rest of the
			// loop is abandoned for manual reconciliation. The taker's
			// reservation stays held, so log what the reconciler must
			// find.
			takerRes := buyRes
			if o.Side == order.Sell {
				takerRes = sellRes
			}
			e.log.Error("settlement failed mid-match",
				zap.String("trade", t.ID.String()),
				zap.String("order", o.ID.String()),
				zap.String("user", o.UserID.String()),
				zap.String("heldReservation", takerRes.Remaining.String()),
				zap.Error(err))
			result.Order = *o
			return result, errors.Wrapf(order.ErrSettlementFailure, "trade %s: %v", t.ID, err)
		}

		o.Fill(qty, now)
		maker.Fill(qty, now)
		e.book.ReduceHead(maker, qty)
		if maker.Status == order.Filled {
			e.book.PopFilled(maker)
			e.releaseLeftover(maker)
		}

		result.Trades = append(result.Trades, t)
		e.triggers.Observe(t.Price)
		e.events.TradeExecuted(t)
		e.events.OrderUpdated(*maker)
	}

	if o.Remaining.IsPositive() {
		switch o.Type {
		case order.Market:
			// Liquidity ran out mid-walk: executed trades stand, the
			// remainder is cancelled and its reservation returned.
			e.releaseLeftover(o)
			if len(result.Trades) == 0 {
				result.Order = *o
				return result, errors.Wrapf(order.ErrUnfilledMarketOrder, "ticker %s", e.ticker)
			}
			o.Status = order.Cancelled
		default:
			e.book.Insert(o)
		}
	} else {
		e.releaseLeftover(o)
	}

	result.Order = *o
	e.events.OrderUpdated(*o)
	return result, nil
}

// Cancel removes a resting or pending-trigger order and returns its
// reservation. A second cancel, or a cancel of a filled order, fails
// with ErrOrderNotFound: the caller must learn the order was terminal.
func (e *Engine) Cancel(orderID uuid.UUID) (*order.Order, error) {
	o := e.triggers.Remove(orderID)
	if o == nil {
		removed, err := e.book.Remove(orderID.String())
		if err != nil {
			return nil, err
		}
		o = removed
	}

	o.Status = order.Cancelled
	e.releaseLeftover(o)
	e.events.OrderUpdated(*o)
	return o, nil
}

// MarkPrice feeds an external reference price into trigger evaluation,
// arming stops before the instrument's first on-book trade.
func (e *Engine) MarkPrice(p decimal.Decimal) {
	e.triggers.Observe(p)
	e.promote()
}

// ExpireDay cancels every resting and pending DAY order. The session
// scheduler owns the notion of "session end"; the engine only reacts.
func (e *Engine) ExpireDay() []order.Order {
	var expired []order.Order
	for _, o := range e.book.Orders(order.Buy) {
		if o.TimeInForce == order.Day {
			expired = append(expired, *o)
		}
	}
	for _, o := range e.book.Orders(order.Sell) {
		if o.TimeInForce == order.Day {
			expired = append(expired, *o)
		}
	}
	for i := range expired {
		if cancelled, err := e.Cancel(expired[i].ID); err == nil {
			expired[i] = *cancelled
		}
	}
	for _, o := range e.triggers.ExpireDay() {
		o.Status = order.Cancelled
		e.releaseLeftover(o)
		e.events.OrderUpdated(*o)
		expired = append(expired, *o)
	}
	return expired
}

// Restore reinserts a persisted resting or pending order during
// recovery, without matching. The reservation is re-taken against the
// reloaded ledger; an order the account can no longer back is cancelled
// instead of restored.
func (e *Engine) Restore(o *order.Order) error {
	e.book.ObserveSeq(o.Seq)

	amount := o.Remaining
	if o.Side == order.Buy {
		switch o.Type {
		case order.Stop:
			amount = o.TriggerPrice.Mul(o.Remaining)
		default:
			amount = o.Price.Mul(o.Remaining)
		}
	}
	res, err := e.ledger.Reserve(o.UserID, o.Ticker, o.Side, amount)
	if err != nil {
		o.Status = order.Cancelled
		e.events.OrderUpdated(*o)
		return err
	}
	e.reservations[o.ID.String()] = res

	if o.Type.Triggered() {
		e.triggers.Park(o)
		return nil
	}
	e.book.Insert(o)
	return nil
}

// promote drains newly qualified stops into the matching loop, in
// trigger-price then admission order, until none qualify. A promotion
// that fails validation cancels the order rather than dropping it.
func (e *Engine) promote() {
	for {
		o := e.triggers.NextQualified()
		if o == nil {
			return
		}
		demote(o)
		if _, err := e.execute(o); err != nil {
			// Surfaced to the owner through the status stream, not a
			// caller: nobody is waiting on a promotion.
			e.log.Warn("promoted stop cancelled",
				zap.String("order", o.ID.String()),
				zap.Error(errors.Wrap(order.ErrTriggerPromotionFailed, err.Error())))
			o.Status = order.Cancelled
			e.releaseLeftover(o)
			e.events.OrderUpdated(*o)
		}
	}
}

func (e *Engine) validate(o *order.Order) error {
	switch {
	case o.Ticker != e.ticker:
		return errors.Wrapf(order.ErrInvalidOrder, "order for %s routed to %s", o.Ticker, e.ticker)
	case o.Side != order.Buy && o.Side != order.Sell:
		return errors.Wrapf(order.ErrInvalidOrder, "side %q", o.Side)
	case !o.Quantity.IsPositive():
		return errors.Wrapf(order.ErrInvalidOrder, "quantity %s", o.Quantity)
	case (o.Type == order.Limit || o.Type == order.StopLimit) && !o.Price.IsPositive():
		return errors.Wrapf(order.ErrInvalidOrder, "%s price %s", o.Type, o.Price)
	case o.Type.Triggered() && !o.TriggerPrice.IsPositive():
		return errors.Wrapf(order.ErrInvalidOrder, "%s trigger price %s", o.Type, o.TriggerPrice)
	}
	if _, held := e.reservations[o.ID.String()]; held {
		return errors.Wrapf(order.ErrInvalidOrder, "duplicate order id %s", o.ID)
	}
	return nil
}

// reserveAmount computes the claim an order places on its account.
// Sells reserve quantity. Buys reserve cash: limit price for priced
// orders, the trigger price for plain stops, and the current best ask
// for market orders (the walk may still cross past it; settlement then
// tops up from the free balance).
func (e *Engine) reserveAmount(o *order.Order) decimal.Decimal {
	if o.Side == order.Sell {
		return o.Quantity
	}
	switch o.Type {
	case order.Limit, order.StopLimit:
		return o.Price.Mul(o.Quantity)
	case order.Stop:
		return o.TriggerPrice.Mul(o.Quantity)
	default:
		return e.book.BestOpposing(order.Buy).Price.Mul(o.Quantity)
	}
}

func (e *Engine) releaseLeftover(o *order.Order) {
	key := o.ID.String()
	if res, ok := e.reservations[key]; ok {
		e.ledger.Release(res)
		delete(e.reservations, key)
	}
}

// demote rewrites a stop into its effective type once triggered.
func demote(o *order.Order) {
	switch o.Type {
	case order.Stop:
		o.Type = order.Market
	case order.StopLimit:
		o.Type = order.Limit
	}
}

// crosses reports whether the incoming order trades against maker.
// Market orders take any opposing liquidity.
func crosses(incoming, maker *order.Order) bool {
	if incoming.Type == order.Market {
		return true
	}
	if incoming.Side == order.Buy {
		return incoming.Price.GreaterThanOrEqual(maker.Price)
	}
	return incoming.Price.LessThanOrEqual(maker.Price)
}

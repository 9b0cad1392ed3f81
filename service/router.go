package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tomtrade/domain/book"
	"tomtrade/domain/ledger"
	"tomtrade/domain/order"
	"tomtrade/engine"
)

const mailboxDepth = 256

type reqKind int

const (
	reqSubmit reqKind = iota
	reqCancel
	reqDepth
	reqOrders
	reqMarkPrice
	reqExpireDay
)

type request struct {
	kind    reqKind
	order   *order.Order
	orderID uuid.UUID
	price   decimal.Decimal
	reply   chan response
}

type response struct {
	result  *engine.Result
	order   *order.Order
	depth   *DepthView
	orders  []order.Order
	expired []order.Order
	err     error
}

// DepthView is the aggregated book display: quantity per price level,
// best first on both sides.
type DepthView struct {
	Ticker string       `json:"ticker"`
	Bids   []book.Level `json:"bids"`
	Asks   []book.Level `json:"asks"`
}

type actor struct {
	eng      *engine.Engine
	requests chan request
}

func (a *actor) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for req := range a.requests {
		var resp response
		switch req.kind {
		case reqSubmit:
			resp.result, resp.err = a.eng.Submit(req.order)
		case reqCancel:
			resp.order, resp.err = a.eng.Cancel(req.orderID)
		case reqDepth:
			bids, asks := a.eng.Book().Depth()
			resp.depth = &DepthView{Ticker: a.eng.Book().Ticker, Bids: bids, Asks: asks}
		case reqOrders:
			for _, o := range a.eng.Book().Orders(order.Buy) {
				resp.orders = append(resp.orders, *o)
			}
			for _, o := range a.eng.Book().Orders(order.Sell) {
				resp.orders = append(resp.orders, *o)
			}
		case reqMarkPrice:
			a.eng.MarkPrice(req.price)
		case reqExpireDay:
			resp.expired = a.eng.ExpireDay()
		}
		req.reply <- resp
	}
}

// Router routes every operation for a ticker through that ticker's
// actor. The instrument set is fixed at construction.
type Router struct {
	actors map[string]*actor
	wg     sync.WaitGroup
	log    *zap.Logger

	closeOnce sync.Once
}

// New builds one engine and mailbox per instrument. Call Start to spin
// the actors up; Recover may run in between, while nothing is serving.
func New(tickers []string, lg ledger.Ledger, events engine.Events, log *zap.Logger) *Router {
	r := &Router{
		actors: make(map[string]*actor, len(tickers)),
		log:    log,
	}
	for _, t := range tickers {
		r.actors[t] = &actor{
			eng:      engine.New(t, book.New(t), lg, events, log),
			requests: make(chan request, mailboxDepth),
		}
	}
	return r
}

// Start launches the instrument actors.
func (r *Router) Start() {
	for _, a := range r.actors {
		r.wg.Add(1)
		go a.run(&r.wg)
	}
}

// Close drains every mailbox and stops the actors. Queued requests
// finish first. Callers must stop submitting before Close.
func (r *Router) Close() {
	r.closeOnce.Do(func() {
		for _, a := range r.actors {
			close(a.requests)
		}
		r.wg.Wait()
	})
}

// Submit places an order with the target instrument's actor and blocks
// until it is matched, rested, parked, or rejected. A ctx expiry after
// admission means "possibly applied": the core does not roll back.
func (r *Router) Submit(ctx context.Context, o *order.Order) (*engine.Result, error) {
	resp, err := r.dispatch(ctx, o.Ticker, request{kind: reqSubmit, order: o})
	if err != nil {
		return nil, err
	}
	return resp.result, resp.err
}

// Cancel removes a resting or pending order. Not idempotent: a second
// cancel reports ErrOrderNotFound so callers can tell "already
// terminal" from "cancelled just now".
func (r *Router) Cancel(ctx context.Context, ticker string, orderID uuid.UUID) (*order.Order, error) {
	resp, err := r.dispatch(ctx, ticker, request{kind: reqCancel, orderID: orderID})
	if err != nil {
		return nil, err
	}
	return resp.order, resp.err
}

// Depth reports the aggregated book for display.
func (r *Router) Depth(ctx context.Context, ticker string) (*DepthView, error) {
	resp, err := r.dispatch(ctx, ticker, request{kind: reqDepth})
	if err != nil {
		return nil, err
	}
	return resp.depth, resp.err
}

// Orders snapshots the resting orders of both sides, best price first.
func (r *Router) Orders(ctx context.Context, ticker string) ([]order.Order, error) {
	resp, err := r.dispatch(ctx, ticker, request{kind: reqOrders})
	if err != nil {
		return nil, err
	}
	return resp.orders, resp.err
}

// MarkPrice feeds an external reference price into the instrument's
// trigger evaluation.
func (r *Router) MarkPrice(ctx context.Context, ticker string, price decimal.Decimal) error {
	_, err := r.dispatch(ctx, ticker, request{kind: reqMarkPrice, price: price})
	return err
}

// ExpireDay cancels the instrument's resting and pending DAY orders.
// The session scheduler calls this at session end.
func (r *Router) ExpireDay(ctx context.Context, ticker string) ([]order.Order, error) {
	resp, err := r.dispatch(ctx, ticker, request{kind: reqExpireDay})
	if err != nil {
		return nil, err
	}
	return resp.expired, resp.err
}

// Tickers lists the instruments this router serves.
func (r *Router) Tickers() []string {
	out := make([]string, 0, len(r.actors))
	for t := range r.actors {
		out = append(out, t)
	}
	return out
}

func (r *Router) dispatch(ctx context.Context, ticker string, req request) (response, error) {
	a, ok := r.actors[ticker]
	if !ok {
		return response{}, errors.Wrapf(order.ErrOrderNotFound, "unknown ticker %q", ticker)
	}

	req.reply = make(chan response, 1)
	select {
	case a.requests <- req:
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ctx.Done():
		// Admitted but not yet answered: possibly applied.
		return response{}, ctx.Err()
	}
}

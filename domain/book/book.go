// Package book maintains the resting orders of one instrument: two
// red-black trees of price levels (bids walked best-first descending,
// asks ascending) with strict FIFO queues inside each level. The book is
// a pure structure; it never touches balances and never emits trades.
// It is written by exactly one goroutine, the instrument's actor.
package book

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"tomtrade/domain/order"
)

type Book struct {
	Ticker string

	bids    *rbTree
	asks    *rbTree
	byID    map[string]*entry
	lastSeq uint64
}

func New(ticker string) *Book {
	return &Book{
		Ticker: ticker,
		bids:   newRBTree(),
		asks:   newRBTree(),
		byID:   map[string]*entry{},
	}
}

// NextSeq hands out the admission sequence used as the price-tie break.
func (b *Book) NextSeq() uint64 {
	b.lastSeq++
	return b.lastSeq
}

// ObserveSeq advances the sequence past seq, for rebuilds from
// persisted orders.
func (b *Book) ObserveSeq(seq uint64) {
	if seq > b.lastSeq {
		b.lastSeq = seq
	}
}

// Insert rests o in its side's tree. FIFO within the level gives
// price-time priority: levels order by price, arrival order inside.
func (b *Book) Insert(o *order.Order) {
	e := &entry{Order: o}
	lvl := b.side(o.Side).UpsertLevel(o.Price)
	lvl.Enqueue(e)
	b.byID[o.ID.String()] = e
}

// Remove takes a resting order out of the book. It fails with
// ErrOrderNotFound when the order is absent: already fully matched,
// already cancelled, or never rested here.
func (b *Book) Remove(orderID string) (*order.Order, error) {
	e, ok := b.byID[orderID]
	if !ok {
		return nil, errors.Wrapf(order.ErrOrderNotFound, "ticker %s order %s", b.Ticker, orderID)
	}
	b.unlink(e)
	return e.Order, nil
}

// BestBid returns the highest-priced resting buy order, or nil.
func (b *Book) BestBid() *order.Order {
	if lvl := b.bids.MaxLevel(); lvl != nil {
		return lvl.Head().Order
	}
	return nil
}

// BestAsk returns the lowest-priced resting sell order, or nil.
func (b *Book) BestAsk() *order.Order {
	if lvl := b.asks.MinLevel(); lvl != nil {
		return lvl.Head().Order
	}
	return nil
}

// BestOpposing returns the order an incoming order on side would match
// first, or nil if that side of the book is empty.
func (b *Book) BestOpposing(side order.Side) *order.Order {
	if side == order.Buy {
		return b.BestAsk()
	}
	return b.BestBid()
}

// ReduceHead records a partial fill of the best opposing order without
// unlinking it.
func (b *Book) ReduceHead(o *order.Order, qty decimal.Decimal) {
	if e, ok := b.byID[o.ID.String()]; ok && e.level != nil {
		e.level.Reduce(qty)
	}
}

// PopFilled unlinks a fully consumed resting order.
func (b *Book) PopFilled(o *order.Order) {
	if e, ok := b.byID[o.ID.String()]; ok {
		b.unlink(e)
	}
}

func (b *Book) Len(side order.Side) int {
	n := 0
	b.walk(side, func(lvl *priceLevel) bool {
		n += lvl.OrderCount
		return true
	})
	return n
}

// Level is one row of the depth report: aggregate resting quantity at a
// price.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

// Depth reports both sides best-first, for the order-book display.
func (b *Book) Depth() (bids, asks []Level) {
	b.bids.ForEachDescending(func(lvl *priceLevel) bool {
		bids = append(bids, Level{Price: lvl.Price, Quantity: lvl.TotalQty, Orders: lvl.OrderCount})
		return true
	})
	b.asks.ForEachAscending(func(lvl *priceLevel) bool {
		asks = append(asks, Level{Price: lvl.Price, Quantity: lvl.TotalQty, Orders: lvl.OrderCount})
		return true
	})
	return bids, asks
}

// Orders lists resting orders on side, best price first, FIFO within a
// level.
func (b *Book) Orders(side order.Side) []*order.Order {
	var out []*order.Order
	b.walk(side, func(lvl *priceLevel) bool {
		for e := lvl.Head(); e != nil; e = e.next {
			out = append(out, e.Order)
		}
		return true
	})
	return out
}

func (b *Book) side(s order.Side) *rbTree {
	if s == order.Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) walk(s order.Side, fn func(*priceLevel) bool) {
	if s == order.Buy {
		b.bids.ForEachDescending(fn)
	} else {
		b.asks.ForEachAscending(fn)
	}
}

func (b *Book) unlink(e *entry) {
	lvl := e.level
	side := b.side(e.Order.Side)
	lvl.Unlink(e)
	if lvl.head == nil {
		side.DeleteLevel(lvl.Price)
	}
	delete(b.byID, e.Order.ID.String())
}

package book

import (
	"github.com/shopspring/decimal"

	"tomtrade/domain/order"
)

// entry is the book's handle on a resting order: the order itself plus
// its FIFO links and owning level.
type entry struct {
	Order *order.Order
	level *priceLevel
	next  *entry
	prev  *entry
}

// priceLevel is the FIFO queue of resting orders at one price. TotalQty
// tracks the sum of remaining quantities for depth reporting.
type priceLevel struct {
	Price      decimal.Decimal
	head       *entry
	tail       *entry
	TotalQty   decimal.Decimal
	OrderCount int
}

func (p *priceLevel) Head() *entry { return p.head }

// Enqueue appends at the tail: latest arrival matches last.
func (p *priceLevel) Enqueue(e *entry) {
	e.level = p
	if p.head == nil {
		p.head = e
		p.tail = e
	} else {
		p.tail.next = e
		e.prev = p.tail
		p.tail = e
	}
	p.TotalQty = p.TotalQty.Add(e.Order.Remaining)
	p.OrderCount++
}

// Unlink removes e from the queue. The caller adjusts tree bookkeeping
// when the level becomes empty.
func (p *priceLevel) Unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		p.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		p.tail = e.prev
	}
	e.next = nil
	e.prev = nil
	e.level = nil
	p.TotalQty = p.TotalQty.Sub(e.Order.Remaining)
	p.OrderCount--
}

// Reduce lowers the level's aggregate quantity after a partial fill of
// one of its orders.
func (p *priceLevel) Reduce(qty decimal.Decimal) {
	p.TotalQty = p.TotalQty.Sub(qty)
}

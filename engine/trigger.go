package engine

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tomtrade/domain/order"
)

// TriggerMonitor parks STOP and STOP_LIMIT orders until the last traded
// (or externally fed mark) price crosses their trigger in the
// activating direction: a BUY stop arms when the price rises to or
// through the trigger, a SELL stop when it falls to or through it.
// Parked orders are invisible to the book. The last price is explicit
// state here, updated on every trade; nothing else in the process
// caches it.
type TriggerMonitor struct {
	buys  []*order.Order // trigger ascending, then admission order
	sells []*order.Order // trigger descending, then admission order

	last     decimal.Decimal
	haveLast bool
}

func NewTriggerMonitor() *TriggerMonitor {
	return &TriggerMonitor{}
}

// Observe records a new reference price. Qualification is evaluated by
// NextQualified so the engine controls when promotions re-enter the
// matching loop.
func (m *TriggerMonitor) Observe(price decimal.Decimal) {
	m.last = price
	m.haveLast = true
}

// LastPrice returns the current reference price, if any.
func (m *TriggerMonitor) LastPrice() (decimal.Decimal, bool) {
	return m.last, m.haveLast
}

// Met reports whether o's trigger condition already holds. With no
// reference price yet, nothing is met.
func (m *TriggerMonitor) Met(o *order.Order) bool {
	if !m.haveLast {
		return false
	}
	if o.Side == order.Buy {
		return m.last.GreaterThanOrEqual(o.TriggerPrice)
	}
	return m.last.LessThanOrEqual(o.TriggerPrice)
}

// Park holds o until its trigger is met. Insertion keeps trigger-price
// priority with admission order inside a price, matching the book's own
// tie-break discipline so later-priced triggers are not starved.
func (m *TriggerMonitor) Park(o *order.Order) {
	if o.Side == order.Buy {
		i := sort.Search(len(m.buys), func(i int) bool {
			c := m.buys[i].TriggerPrice.Cmp(o.TriggerPrice)
			return c > 0 || (c == 0 && m.buys[i].Seq > o.Seq)
		})
		m.buys = append(m.buys, nil)
		copy(m.buys[i+1:], m.buys[i:])
		m.buys[i] = o
		return
	}
	i := sort.Search(len(m.sells), func(i int) bool {
		c := m.sells[i].TriggerPrice.Cmp(o.TriggerPrice)
		return c < 0 || (c == 0 && m.sells[i].Seq > o.Seq)
	})
	m.sells = append(m.sells, nil)
	copy(m.sells[i+1:], m.sells[i:])
	m.sells[i] = o
}

// NextQualified pops the highest-priority order whose trigger is now
// met, or nil. Buy stops sort trigger-ascending and sell stops
// trigger-descending, so in both cases only the head can qualify first.
func (m *TriggerMonitor) NextQualified() *order.Order {
	if !m.haveLast {
		return nil
	}
	if len(m.buys) > 0 && m.Met(m.buys[0]) {
		o := m.buys[0]
		m.buys = m.buys[1:]
		return o
	}
	if len(m.sells) > 0 && m.Met(m.sells[0]) {
		o := m.sells[0]
		m.sells = m.sells[1:]
		return o
	}
	return nil
}

// Remove takes a parked order out by id, or returns nil.
func (m *TriggerMonitor) Remove(orderID uuid.UUID) *order.Order {
	for i, o := range m.buys {
		if o.ID == orderID {
			m.buys = append(m.buys[:i], m.buys[i+1:]...)
			return o
		}
	}
	for i, o := range m.sells {
		if o.ID == orderID {
			m.sells = append(m.sells[:i], m.sells[i+1:]...)
			return o
		}
	}
	return nil
}

// ExpireDay removes and returns every parked DAY order.
func (m *TriggerMonitor) ExpireDay() []*order.Order {
	var expired []*order.Order
	keep := func(in []*order.Order) []*order.Order {
		out := in[:0]
		for _, o := range in {
			if o.TimeInForce == order.Day {
				expired = append(expired, o)
			} else {
				out = append(out, o)
			}
		}
		return out
	}
	m.buys = keep(m.buys)
	m.sells = keep(m.sells)
	return expired
}

// Pending lists parked orders, for display and persistence checks.
func (m *TriggerMonitor) Pending() []*order.Order {
	out := make([]*order.Order, 0, len(m.buys)+len(m.sells))
	out = append(out, m.buys...)
	out = append(out, m.sells...)
	return out
}

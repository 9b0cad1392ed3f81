// Package ledger owns balances and positions. It is the one resource
// shared by every instrument actor, so each call is a single atomic
// serializable section; the engine never composes two ledger calls into
// one critical section and therefore cannot deadlock across accounts.
package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tomtrade/domain/order"
)

// Reservation is the claim an accepted order holds against an account:
// cash for a BUY, position quantity for a SELL. Remaining shrinks as
// trades settle against it; the unspent part is released on cancel,
// rejection, or full fill.
type Reservation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Ticker    string
	Side      order.Side
	Remaining decimal.Decimal
}

// Ledger is the settlement port the engine drives. Implementations must
// make every method atomic with respect to the others.
type Ledger interface {
	// Reserve claims buying power (BUY: amount is cash) or inventory
	// (SELL: amount is quantity) before any book mutation. It fails
	// with ErrInsufficientFunds or ErrInsufficientPosition.
	Reserve(userID uuid.UUID, ticker string, side order.Side, amount decimal.Decimal) (*Reservation, error)

	// Settle applies one trade to both parties: cash moves from the
	// buyer's reservation to the seller, quantity from the seller's
	// reservation to the buyer. The buyer reservation may be topped up
	// from the free balance when the walk crossed past its reserved
	// price (market orders); a shortfall fails the settlement.
	Settle(t order.Trade, buyer, seller *Reservation) error

	// Release returns the unspent remainder of a reservation.
	Release(res *Reservation)
}

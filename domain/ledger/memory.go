package ledger

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"tomtrade/domain/order"
)

type account struct {
	cash      decimal.Decimal
	positions map[string]decimal.Decimal
}

// MemoryLedger keeps balances and positions in process. One mutex makes
// each call a serializable unit; settlements arriving concurrently from
// different instrument actors cannot interleave inside an account.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*account
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{accounts: map[uuid.UUID]*account{}}
}

// Deposit credits cash. Used by the platform seeder and tests.
func (l *MemoryLedger) Deposit(userID uuid.UUID, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.get(userID).cash = l.get(userID).cash.Add(amount)
}

// Grant credits position quantity. Used by the platform seeder and tests.
func (l *MemoryLedger) Grant(userID uuid.UUID, ticker string, qty decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.get(userID)
	a.positions[ticker] = a.positions[ticker].Add(qty)
}

// Balance returns the free (unreserved) cash of an account.
func (l *MemoryLedger) Balance(userID uuid.UUID) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(userID).cash
}

// Position returns the free (unreserved) quantity held for ticker.
func (l *MemoryLedger) Position(userID uuid.UUID, ticker string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(userID).positions[ticker]
}

func (l *MemoryLedger) Reserve(userID uuid.UUID, ticker string, side order.Side, amount decimal.Decimal) (*Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := l.get(userID)
	if side == order.Buy {
		if a.cash.LessThan(amount) {
			return nil, errors.Wrapf(order.ErrInsufficientFunds,
				"user %s needs %s, has %s", userID, amount, a.cash)
		}
		a.cash = a.cash.Sub(amount)
	} else {
		held := a.positions[ticker]
		if held.LessThan(amount) {
			return nil, errors.Wrapf(order.ErrInsufficientPosition,
				"user %s needs %s %s, has %s", userID, amount, ticker, held)
		}
		a.positions[ticker] = held.Sub(amount)
	}

	return &Reservation{
		ID:        uuid.New(),
		UserID:    userID,
		Ticker:    ticker,
		Side:      side,
		Remaining: amount,
	}, nil
}

func (l *MemoryLedger) Settle(t order.Trade, buyer, seller *Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cost := t.Notional()

	// Cash leg: out of the buyer's reservation, topped up from free
	// balance when a market order walked past its reserved price.
	if buyer.Remaining.LessThan(cost) {
		shortfall := cost.Sub(buyer.Remaining)
		b := l.get(buyer.UserID)
		if b.cash.LessThan(shortfall) {
			return errors.Wrapf(order.ErrInsufficientFunds,
				"user %s short %s settling trade %s", buyer.UserID, shortfall.Sub(b.cash), t.ID)
		}
		b.cash = b.cash.Sub(shortfall)
		buyer.Remaining = buyer.Remaining.Add(shortfall)
	}
	buyer.Remaining = buyer.Remaining.Sub(cost)

	// Position leg: the seller's reservation always covers resting
	// quantity; a short one is a bookkeeping bug, not a user error.
	if seller.Remaining.LessThan(t.Quantity) {
		return errors.Errorf("seller reservation %s holds %s, trade %s needs %s",
			seller.ID, seller.Remaining, t.ID, t.Quantity)
	}
	seller.Remaining = seller.Remaining.Sub(t.Quantity)

	l.get(seller.UserID).cash = l.get(seller.UserID).cash.Add(cost)
	b := l.get(buyer.UserID)
	b.positions[t.Ticker] = b.positions[t.Ticker].Add(t.Quantity)
	return nil
}

func (l *MemoryLedger) Release(res *Reservation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if res.Remaining.IsZero() {
		return
	}
	a := l.get(res.UserID)
	if res.Side == order.Buy {
		a.cash = a.cash.Add(res.Remaining)
	} else {
		a.positions[res.Ticker] = a.positions[res.Ticker].Add(res.Remaining)
	}
	res.Remaining = decimal.Zero
}

func (l *MemoryLedger) get(userID uuid.UUID) *account {
	a, ok := l.accounts[userID]
	if !ok {
		a = &account{positions: map[string]decimal.Decimal{}}
		l.accounts[userID] = a
	}
	return a
}

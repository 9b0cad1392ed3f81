package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"tomtrade/domain/order"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestReserveRejectsInsufficientFunds(t *testing.T) {
	l := NewMemoryLedger()
	buyer := uuid.New()
	l.Deposit(buyer, d("100"))

	_, err := l.Reserve(buyer, "TOM", order.Buy, d("100.01"))
	if !errors.Is(err, order.ErrInsufficientFunds) {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}
	if !l.Balance(buyer).Equal(d("100")) {
		t.Errorf("failed reserve must not touch the balance; got %s", l.Balance(buyer))
	}
}

func TestReserveRejectsInsufficientPosition(t *testing.T) {
	l := NewMemoryLedger()
	seller := uuid.New()
	l.Grant(seller, "TOM", d("5"))

	_, err := l.Reserve(seller, "TOM", order.Sell, d("6"))
	if !errors.Is(err, order.ErrInsufficientPosition) {
		t.Errorf("err = %v, want ErrInsufficientPosition", err)
	}
	if !l.Position(seller, "TOM").Equal(d("5")) {
		t.Errorf("failed reserve must not touch the position; got %s", l.Position(seller, "TOM"))
	}
}

func TestReserveMovesFundsOutOfFreeBalance(t *testing.T) {
	l := NewMemoryLedger()
	buyer := uuid.New()
	l.Deposit(buyer, d("1000"))

	res, err := l.Reserve(buyer, "TOM", order.Buy, d("400"))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !l.Balance(buyer).Equal(d("600")) {
		t.Errorf("free balance = %s, want 600", l.Balance(buyer))
	}

	l.Release(res)
	if !l.Balance(buyer).Equal(d("1000")) {
		t.Errorf("balance after release = %s, want 1000", l.Balance(buyer))
	}
	// Release is exact-once: the reservation is spent.
	l.Release(res)
	if !l.Balance(buyer).Equal(d("1000")) {
		t.Errorf("double release credited again; balance = %s", l.Balance(buyer))
	}
}

func TestSettleTransfersCashAndPosition(t *testing.T) {
	l := NewMemoryLedger()
	buyer, seller := uuid.New(), uuid.New()
	l.Deposit(buyer, d("1000"))
	l.Grant(seller, "TOM", d("10"))

	buyRes, err := l.Reserve(buyer, "TOM", order.Buy, d("500"))
	if err != nil {
		t.Fatalf("buy reserve: %v", err)
	}
	sellRes, err := l.Reserve(seller, "TOM", order.Sell, d("10"))
	if err != nil {
		t.Fatalf("sell reserve: %v", err)
	}

	trade := order.Trade{
		ID:         uuid.New(),
		Ticker:     "TOM",
		BuyerID:    buyer,
		SellerID:   seller,
		Price:      d("50"),
		Quantity:   d("4"),
		ExecutedAt: time.Now(),
	}
	if err := l.Settle(trade, buyRes, sellRes); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if !l.Balance(seller).Equal(d("200")) {
		t.Errorf("seller cash = %s, want 200", l.Balance(seller))
	}
	if !l.Position(buyer, "TOM").Equal(d("4")) {
		t.Errorf("buyer position = %s, want 4", l.Position(buyer, "TOM"))
	}
	if !buyRes.Remaining.Equal(d("300")) {
		t.Errorf("buy reservation remaining = %s, want 300", buyRes.Remaining)
	}
	if !sellRes.Remaining.Equal(d("6")) {
		t.Errorf("sell reservation remaining = %s, want 6", sellRes.Remaining)
	}
}

func TestSettleTopsUpFromFreeBalance(t *testing.T) {
	l := NewMemoryLedger()
	buyer, seller := uuid.New(), uuid.New()
	l.Deposit(buyer, d("120"))
	l.Grant(seller, "TOM", d("1"))

	// Reserved at 100 but the walk crossed to 110.
	buyRes, _ := l.Reserve(buyer, "TOM", order.Buy, d("100"))
	sellRes, _ := l.Reserve(seller, "TOM", order.Sell, d("1"))

	trade := order.Trade{
		ID: uuid.New(), Ticker: "TOM", BuyerID: buyer, SellerID: seller,
		Price: d("110"), Quantity: d("1"), ExecutedAt: time.Now(),
	}
	if err := l.Settle(trade, buyRes, sellRes); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !l.Balance(buyer).Equal(d("10")) {
		t.Errorf("buyer free balance = %s, want 10 after top-up", l.Balance(buyer))
	}
	if !buyRes.Remaining.IsZero() {
		t.Errorf("buy reservation remaining = %s, want 0", buyRes.Remaining)
	}
}

func TestSettleFailsWhenTopUpExceedsBalance(t *testing.T) {
	l := NewMemoryLedger()
	buyer, seller := uuid.New(), uuid.New()
	l.Deposit(buyer, d("100"))
	l.Grant(seller, "TOM", d("1"))

	buyRes, _ := l.Reserve(buyer, "TOM", order.Buy, d("100"))
	sellRes, _ := l.Reserve(seller, "TOM", order.Sell, d("1"))

	trade := order.Trade{
		ID: uuid.New(), Ticker: "TOM", BuyerID: buyer, SellerID: seller,
		Price: d("150"), Quantity: d("1"), ExecutedAt: time.Now(),
	}
	err := l.Settle(trade, buyRes, sellRes)
	if !errors.Is(err, order.ErrInsufficientFunds) {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}
	if !l.Balance(seller).Equal(d("0")) {
		t.Errorf("failed settle must not credit the seller; got %s", l.Balance(seller))
	}
	if !l.Position(buyer, "TOM").Equal(d("0")) {
		t.Errorf("failed settle must not credit the buyer; got %s", l.Position(buyer, "TOM"))
	}
}

func TestLazyAccountsStartEmpty(t *testing.T) {
	l := NewMemoryLedger()
	u := uuid.New()
	if !l.Balance(u).IsZero() || !l.Position(u, "TOM").IsZero() {
		t.Error("unknown accounts must read as zero")
	}
}

package book

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

func newResting(b *Book, side order.Side, price, qty string) *order.Order {
	o := &order.Order{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Ticker:    b.Ticker,
		Side:      side,
		Type:      order.Limit,
		Price:     d(price),
		Quantity:  d(qty),
		Remaining: d(qty),
		Status:    order.Open,
		CreatedAt: time.Now(),
		Seq:       b.NextSeq(),
	}
	b.Insert(o)
	return o
}

func TestBestBidAndAskSeparation(t *testing.T) {
	b := New("TOM")
	newResting(b, order.Buy, "99", "1")
	newResting(b, order.Sell, "101", "2")

	if got := b.BestBid(); got == nil || !got.Price.Equal(d("99")) {
		t.Errorf("best bid = %v, want 99", got)
	}
	if got := b.BestAsk(); got == nil || !got.Price.Equal(d("101")) {
		t.Errorf("best ask = %v, want 101", got)
	}
	if b.Len(order.Buy) != 1 || b.Len(order.Sell) != 1 {
		t.Error("bids and asks should rest on separate sides")
	}
}

func TestBestBidPrefersHighestPrice(t *testing.T) {
	b := New("TOM")
	newResting(b, order.Buy, "98", "1")
	newResting(b, order.Buy, "100", "1")
	newResting(b, order.Buy, "99", "1")

	if got := b.BestBid(); !got.Price.Equal(d("100")) {
		t.Errorf("best bid = %s, want 100", got.Price)
	}
}

func TestBestAskPrefersLowestPrice(t *testing.T) {
	b := New("TOM")
	newResting(b, order.Sell, "102", "1")
	newResting(b, order.Sell, "100", "1")
	newResting(b, order.Sell, "101", "1")

	if got := b.BestAsk(); !got.Price.Equal(d("100")) {
		t.Errorf("best ask = %s, want 100", got.Price)
	}
}

func TestFIFOWithinLevel(t *testing.T) {
	b := New("TOM")
	first := newResting(b, order.Sell, "100", "1")
	second := newResting(b, order.Sell, "100", "1")

	if got := b.BestAsk(); got.ID != first.ID {
		t.Errorf("head of level = %s, want the earlier order %s", got.ID, first.ID)
	}
	if _, err := b.Remove(first.ID.String()); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := b.BestAsk(); got.ID != second.ID {
		t.Errorf("head after removal = %s, want %s", got.ID, second.ID)
	}
}

func TestRemoveUnknownOrder(t *testing.T) {
	b := New("TOM")
	_, err := b.Remove(uuid.NewString())
	if !errors.Is(err, order.ErrOrderNotFound) {
		t.Errorf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestRemoveDeletesEmptyLevel(t *testing.T) {
	b := New("TOM")
	o := newResting(b, order.Buy, "100", "5")
	if _, err := b.Remove(o.ID.String()); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if b.BestBid() != nil {
		t.Error("level should be gone after its only order was removed")
	}
	bids, _ := b.Depth()
	if len(bids) != 0 {
		t.Errorf("depth still shows %d bid levels", len(bids))
	}
}

func TestDepthAggregatesByLevel(t *testing.T) {
	b := New("TOM")
	newResting(b, order.Buy, "100", "3")
	newResting(b, order.Buy, "100", "2")
	newResting(b, order.Buy, "99", "4")
	newResting(b, order.Sell, "101", "7")

	bids, asks := b.Depth()
	if len(bids) != 2 || len(asks) != 1 {
		t.Fatalf("depth levels = %d bids, %d asks; want 2 and 1", len(bids), len(asks))
	}
	if !bids[0].Price.Equal(d("100")) || !bids[0].Quantity.Equal(d("5")) || bids[0].Orders != 2 {
		t.Errorf("top bid level = %+v, want 5 across 2 orders at 100", bids[0])
	}
	if !bids[1].Price.Equal(d("99")) || !bids[1].Quantity.Equal(d("4")) {
		t.Errorf("second bid level = %+v, want 4 at 99", bids[1])
	}
	if !asks[0].Quantity.Equal(d("7")) {
		t.Errorf("ask level = %+v, want 7 at 101", asks[0])
	}
}

func TestDepthTracksPartialFills(t *testing.T) {
	b := New("TOM")
	o := newResting(b, order.Sell, "100", "10")

	o.Fill(d("4"), time.Now())
	b.ReduceHead(o, d("4"))

	_, asks := b.Depth()
	if !asks[0].Quantity.Equal(d("6")) {
		t.Errorf("ask level quantity = %s, want 6 after partial fill", asks[0].Quantity)
	}
}

func TestOrdersListedBestFirst(t *testing.T) {
	b := New("TOM")
	newResting(b, order.Sell, "102", "1")
	a := newResting(b, order.Sell, "100", "1")
	newResting(b, order.Sell, "101", "1")

	asks := b.Orders(order.Sell)
	if len(asks) != 3 {
		t.Fatalf("got %d asks, want 3", len(asks))
	}
	if asks[0].ID != a.ID {
		t.Errorf("first listed ask = %s, want the best-priced %s", asks[0].ID, a.ID)
	}
}

func TestObserveSeqAdvancesTieBreak(t *testing.T) {
	b := New("TOM")
	b.ObserveSeq(41)
	if got := b.NextSeq(); got != 42 {
		t.Errorf("NextSeq after ObserveSeq(41) = %d, want 42", got)
	}
	b.ObserveSeq(7)
	if got := b.NextSeq(); got != 43 {
		t.Errorf("ObserveSeq must never move the sequence backwards; got %d", got)
	}
}

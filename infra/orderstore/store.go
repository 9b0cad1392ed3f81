// Package orderstore persists the platform's order record contract in
// Pebble: id, userId, ticker, side, price, quantity, type, status,
// timeInForce, createdAt, matchedAt, triggerPrice round-trip exactly
// (decimals as strings). Every status transition overwrites the record;
// non-terminal records seed recovery after a restart.
package orderstore

import (
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tomtrade/domain/order"
)

const keyPrefix = "order/"

type Store struct {
	db *pebble.DB
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "orderstore open")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put upserts the full order record.
func (s *Store) Put(o order.Order) error {
	val, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.db.Set(key(o.ID), val, pebble.Sync)
}

// Get returns the persisted record, or ErrOrderNotFound.
func (s *Store) Get(id uuid.UUID) (*order.Order, error) {
	val, closer, err := s.db.Get(key(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, errors.Wrapf(order.ErrOrderNotFound, "order %s", id)
		}
		return nil, err
	}
	defer closer.Close()

	var o order.Order
	if err := json.Unmarshal(val, &o); err != nil {
		return nil, errors.Wrapf(err, "order %s", id)
	}
	return &o, nil
}

// OpenOrders scans every record whose status is not terminal.
func (s *Store) OpenOrders() ([]*order.Order, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "\xff"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*order.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o order.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, err
		}
		if o.Status.Terminal() {
			continue
		}
		out = append(out, &o)
	}
	return out, iter.Error()
}

func key(id uuid.UUID) []byte {
	return []byte(keyPrefix + id.String())
}

package service

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"tomtrade/domain/order"
	"tomtrade/infra/journal"
	"tomtrade/infra/orderstore"
	"tomtrade/infra/outbox"
)

// EventLog fans engine events out to the durable surfaces: the journal
// (audit), the outbox (publication queue), and the order store (the
// persisted order contract). Actors of different instruments emit
// concurrently; one mutex serializes the journal/outbox append pair so
// outbox seqs mirror journal seqs.
type EventLog struct {
	mu     sync.Mutex
	jnl    *journal.Journal
	box    *outbox.Outbox
	orders *orderstore.Store
	log    *zap.Logger
}

func NewEventLog(jnl *journal.Journal, box *outbox.Outbox, orders *orderstore.Store, log *zap.Logger) *EventLog {
	return &EventLog{jnl: jnl, box: box, orders: orders, log: log}
}

func (e *EventLog) TradeExecuted(t order.Trade) {
	data, err := json.Marshal(t)
	if err != nil {
		e.log.Error("encode trade event", zap.Error(err))
		return
	}
	e.append(journal.RecordTrade, data)
}

func (e *EventLog) OrderUpdated(o order.Order) {
	if err := e.orders.Put(o); err != nil {
		e.log.Error("persist order", zap.String("order", o.ID.String()), zap.Error(err))
	}
	data, err := json.Marshal(o)
	if err != nil {
		e.log.Error("encode order event", zap.Error(err))
		return
	}
	e.append(journal.RecordOrder, data)
}

func (e *EventLog) append(typ int, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := journal.NewRecord(typ, data)
	if err := e.jnl.Append(rec); err != nil {
		e.log.Error("journal append", zap.Error(err))
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		e.log.Error("encode outbox payload", zap.Error(err))
		return
	}
	if err := e.box.PutNew(rec.Seq, payload); err != nil {
		e.log.Error("outbox put", zap.Uint64("seq", rec.Seq), zap.Error(err))
	}
}

// Sync flushes the journal to disk.
func (e *EventLog) Sync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jnl.Sync()
}

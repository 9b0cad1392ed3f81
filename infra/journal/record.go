package journal

import (
	"encoding/json"
	"time"
)

const (
	RecordTrade = 1
	RecordOrder = 2
)

// Record is one journaled event: a trade execution or an order status
// change. Seq is assigned by the journal at append time and is the key
// the outbox tracks publication state under.
type Record struct {
	Seq  uint64          `json:"seq"`
	Type int             `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

func NewRecord(typ int, data []byte) *Record {
	return &Record{Type: typ, At: time.Now().UTC(), Data: data}
}

func encodeRecord(r *Record) ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(b []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Package feed consumes reference prices from Kafka and forwards them
// as mark-price updates, so stop orders can arm before an instrument's
// first on-book trade. Messages are JSON {"ticker": ..., "price": ...};
// unknown tickers and malformed ticks are logged and skipped.
package feed

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Prices is the slice of the router the feed drives.
type Prices interface {
	MarkPrice(ctx context.Context, ticker string, price decimal.Decimal) error
}

type tick struct {
	Ticker string          `json:"ticker"`
	Price  decimal.Decimal `json:"price"`
}

type Feed struct {
	reader *kafka.Reader
	prices Prices
	log    *zap.Logger
}

func New(brokers []string, topic, groupID string, prices Prices, log *zap.Logger) *Feed {
	return &Feed{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		prices: prices,
		log:    log,
	}
}

// Run consumes ticks until ctx ends.
func (f *Feed) Run(ctx context.Context) {
	f.log.Info("price feed started")
	for {
		msg, err := f.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.log.Warn("feed read", zap.Error(err))
			continue
		}

		var t tick
		if err := json.Unmarshal(msg.Value, &t); err != nil {
			f.log.Warn("malformed tick skipped", zap.ByteString("value", msg.Value))
			continue
		}
		if !t.Price.IsPositive() || t.Ticker == "" {
			f.log.Warn("invalid tick skipped", zap.String("ticker", t.Ticker))
			continue
		}
		if err := f.prices.MarkPrice(ctx, t.Ticker, t.Price); err != nil {
			f.log.Warn("mark price rejected", zap.String("ticker", t.Ticker), zap.Error(err))
		}
	}
}

func (f *Feed) Close() error {
	return f.reader.Close()
}

package service

import (
	"sort"

	"go.uber.org/zap"

	"tomtrade/domain/order"
)

// OrderSource yields the non-terminal orders persisted before the last
// shutdown.
type OrderSource interface {
	OpenOrders() ([]*order.Order, error)
}

// Recover rebuilds the books and trigger monitors from persisted
// orders. It must run before Start, while no actor is serving: orders
// are replayed in admission-sequence order straight into each engine,
// without re-matching (they were uncrossed at rest when persisted).
// An order whose account can no longer back its reservation is
// cancelled rather than restored.
func (r *Router) Recover(src OrderSource) error {
	open, err := src.OpenOrders()
	if err != nil {
		return err
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Seq < open[j].Seq })

	restored, dropped := 0, 0
	for _, o := range open {
		a, ok := r.actors[o.Ticker]
		if !ok {
			r.log.Warn("persisted order for unknown ticker skipped",
				zap.String("order", o.ID.String()), zap.String("ticker", o.Ticker))
			continue
		}
		if err := a.eng.Restore(o); err != nil {
			dropped++
			r.log.Warn("persisted order not restorable, cancelled",
				zap.String("order", o.ID.String()), zap.Error(err))
			continue
		}
		restored++
	}
	r.log.Info("recovery complete", zap.Int("restored", restored), zap.Int("dropped", dropped))
	return nil
}

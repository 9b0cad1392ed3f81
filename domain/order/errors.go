package order

import "github.com/pkg/errors"

// Rejection taxonomy surfaced by the engine. Callers should compare with
// errors.Is / errors.Cause; the engine wraps these with context.
var (
	ErrInvalidOrder           = errors.New("invalid order")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientPosition   = errors.New("insufficient position")
	ErrUnfilledMarketOrder    = errors.New("market order has no opposing liquidity")
	ErrOrderNotFound          = errors.New("order not found")
	ErrTriggerPromotionFailed = errors.New("trigger promotion failed")
	ErrSettlementFailure      = errors.New("settlement failure")
)

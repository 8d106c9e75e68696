package orders

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicateOrder    = errors.New("order already exists")
	// ErrOrderInFlight means the request id is claimed but its order is not committed yet.
	ErrOrderInFlight = errors.New("order request in flight")
)

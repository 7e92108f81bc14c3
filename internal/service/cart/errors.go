package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// InsufficientStockError reports how much the caller asked for against what
// the catalog can supply, so the handler can surface both numbers.
type InsufficientStockError struct {
	Requested uint
	Available uint
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

// IsTransient reports whether err is a connection or lock-contention class
// failure that the caller may retry. Business errors never match.
func IsTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"57014": // query_canceled (lock wait timed out)
			return true
		}
		return pqErr.Code.Class() == "08"
	}
	return errors.Is(err, context.DeadlineExceeded)
}

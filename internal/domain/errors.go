package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation error")
	ErrStockConflict     = errors.New("stock conflict")
)

func NewNotFoundError(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

func NewUnauthorizedError(details string) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, details)
}

func NewInvalidTransitionError(from OrderStatus, ev Event) error {
	return fmt.Errorf("%w: cannot %s an order in %s", ErrInvalidTransition, ev, from)
}

func NewValidationError(details string) error {
	return fmt.Errorf("%w: %s", ErrValidation, details)
}

// StockConflictError carries the per-product shortfalls of a failed availability check.
type StockConflictError struct {
	Conflicts []Conflict
}

func (e *StockConflictError) Error() string {
	if len(e.Conflicts) == 1 {
		c := e.Conflicts[0]
		return fmt.Sprintf("stock conflict: %s requested %d, available %d", c.ProductID, c.RequestedQty, c.AvailableQty)
	}
	return fmt.Sprintf("stock conflict: %d products unavailable", len(e.Conflicts))
}

func (e *StockConflictError) Is(target error) bool {
	return target == ErrStockConflict
}

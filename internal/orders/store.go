package orders

import (
	"context"

	"github.com/joao-fontenele/rentflow/internal/availability"
	"github.com/joao-fontenele/rentflow/internal/domain"
)

// Tx is the transactional view a mutation runs against. Reads made through it
// see the same snapshot the mutation is committed in.
type Tx interface {
	availability.Store
	// LockProducts serializes commitments per product until the transaction ends.
	LockProducts(ctx context.Context, productIDs []string) error
}

// MutateFunc edits order in place. Returning an error discards every change.
type MutateFunc func(ctx context.Context, order *domain.Order, tx Tx) error

type ListFilter struct {
	CustomerID string
	VendorID   string
	Status     domain.OrderStatus
}

type Repository interface {
	// CreateOrders persists all orders or none, assigning IDs and references.
	CreateOrders(ctx context.Context, orders []*domain.Order) error
	// GetByID returns nil, nil when the order does not exist.
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	// Update locks the order, applies fn and persists the result atomically.
	Update(ctx context.Context, id string, fn MutateFunc) (*domain.Order, error)
}

// Publisher delivers lifecycle events after commit.
type Publisher interface {
	Publish(ctx context.Context, event domain.OrderEvent) error
}

// Package availability decides whether rental requests fit into a product's stock
// given the commitments already recorded against it.
package availability

import (
	"context"
	"fmt"
	"sort"

	"github.com/joao-fontenele/rentflow/internal/domain"
)

// Scope selects which existing orders count against stock.
type Scope struct {
	Name            string
	Statuses        []domain.OrderStatus
	ExcludeReturned bool
}

var (
	// HardScope is the binding check run when an order commits stock.
	HardScope = Scope{
		Name:     "hard",
		Statuses: domain.CommittedStatuses,
	}

	// SoftScope is the advisory checkout check. Quotation stages stay out so
	// quoting overlapping inventory to several customers remains possible.
	SoftScope = Scope{
		Name: "soft",
		Statuses: []domain.OrderStatus{
			domain.OrderStatusSale,
			domain.OrderStatusConfirmed,
			domain.OrderStatusInvoiced,
			domain.OrderStatusPickedUp,
		},
		ExcludeReturned: true,
	}
)

type CommitmentQuery struct {
	ProductID       string
	Window          domain.Window
	Statuses        []domain.OrderStatus
	ExcludeOrderID  string
	ExcludeReturned bool
}

// Store is the read side the engine needs. Implementations must apply
// domain.Window.Overlaps semantics (inclusive bounds) when matching items.
type Store interface {
	// GetProduct returns nil, nil when the product does not exist.
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	CommittedQuantity(ctx context.Context, q CommitmentQuery) (int, error)
}

type Request struct {
	ProductID string        `json:"product_id"`
	Quantity  int           `json:"quantity"`
	Window    domain.Window `json:"window"`
}

type Result struct {
	OK        bool              `json:"ok"`
	Conflicts []domain.Conflict `json:"conflicts"`
}

type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// CheckAvailability runs the binding check. excludeOrderID, when set, keeps an
// order from counting against itself while it is being re-validated.
func (e *Engine) CheckAvailability(ctx context.Context, requests []Request, excludeOrderID string) (*Result, error) {
	return e.Check(ctx, HardScope, requests, excludeOrderID)
}

// Check is the single overlap/aggregation primitive behind both the hard and the soft check.
func (e *Engine) Check(ctx context.Context, scope Scope, requests []Request, excludeOrderID string) (*Result, error) {
	result := &Result{Conflicts: []domain.Conflict{}}

	merged := Merge(requests)
	for i, req := range merged {
		if req.Quantity <= 0 {
			return nil, domain.NewValidationError(fmt.Sprintf("quantity for product %s must be positive", req.ProductID))
		}

		product, err := e.store.GetProduct(ctx, req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("get product %s: %w", req.ProductID, err)
		}
		if product == nil {
			result.Conflicts = append(result.Conflicts, domain.Conflict{
				ProductID:    req.ProductID,
				Reason:       domain.ConflictProductNotFound,
				RequestedQty: req.Quantity,
				Start:        req.Window.Start,
				End:          req.Window.End,
			})
			continue
		}

		committed, err := e.store.CommittedQuantity(ctx, CommitmentQuery{
			ProductID:       req.ProductID,
			Window:          req.Window,
			Statuses:        scope.Statuses,
			ExcludeOrderID:  excludeOrderID,
			ExcludeReturned: scope.ExcludeReturned,
		})
		if err != nil {
			return nil, fmt.Errorf("committed quantity for %s: %w", req.ProductID, err)
		}

		// Other lines of the same batch compete for the same units.
		for j, other := range merged {
			if j != i && other.ProductID == req.ProductID && other.Window.Overlaps(req.Window) {
				committed += other.Quantity
			}
		}

		available := product.QuantityOnHand - committed
		if available >= req.Quantity {
			continue
		}

		result.Conflicts = append(result.Conflicts, domain.Conflict{
			ProductID:    product.ID,
			ProductName:  product.Name,
			Reason:       domain.ConflictInsufficientStock,
			RequestedQty: req.Quantity,
			AvailableQty: max(0, available),
			TotalStock:   product.QuantityOnHand,
			CommittedQty: committed,
			Start:        req.Window.Start,
			End:          req.Window.End,
		})
	}

	result.OK = len(result.Conflicts) == 0
	return result, nil
}

// Available reports how many units of a product are free over the whole window.
func (e *Engine) Available(ctx context.Context, productID string, window domain.Window) (*domain.StockLevel, error) {
	product, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	if product == nil {
		return nil, domain.NewNotFoundError("product", productID)
	}

	committed, err := e.store.CommittedQuantity(ctx, CommitmentQuery{
		ProductID: productID,
		Window:    window,
		Statuses:  HardScope.Statuses,
	})
	if err != nil {
		return nil, fmt.Errorf("committed quantity for %s: %w", productID, err)
	}

	return &domain.StockLevel{
		ProductID: productID,
		OnHand:    product.QuantityOnHand,
		Committed: committed,
		Available: max(0, product.QuantityOnHand-committed),
	}, nil
}

// Merge folds requests for the same product and window into one, keeping first-seen order.
func Merge(requests []Request) []Request {
	type key struct {
		productID  string
		start, end int64
	}
	index := make(map[key]int, len(requests))
	merged := make([]Request, 0, len(requests))
	for _, req := range requests {
		k := key{req.ProductID, req.Window.Start.UnixNano(), req.Window.End.UnixNano()}
		if i, ok := index[k]; ok {
			merged[i].Quantity += req.Quantity
			continue
		}
		index[k] = len(merged)
		merged = append(merged, req)
	}
	return merged
}

// RequestsForOrder turns an order's items into availability requests.
func RequestsForOrder(o *domain.Order) []Request {
	reqs := make([]Request, 0, len(o.Items))
	for _, item := range o.Items {
		reqs = append(reqs, Request{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Window:    item.Window(),
		})
	}
	return reqs
}

// SortedProductIDs returns the distinct product IDs of the requests in lock order.
func SortedProductIDs(requests []Request) []string {
	seen := make(map[string]struct{}, len(requests))
	ids := make([]string, 0, len(requests))
	for _, r := range requests {
		if _, ok := seen[r.ProductID]; ok {
			continue
		}
		seen[r.ProductID] = struct{}{}
		ids = append(ids, r.ProductID)
	}
	sort.Strings(ids)
	return ids
}

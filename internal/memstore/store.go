// Package memstore keeps products and orders in process memory. It backs the
// orders service when STORE_DRIVER=memory and the package tests.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/rentflow/internal/availability"
	"github.com/joao-fontenele/rentflow/internal/domain"
	"github.com/joao-fontenele/rentflow/internal/orders"
)

// Store serialises every mutation behind one mutex, so an Update's
// check-then-write is atomic with respect to every other Update.
type Store struct {
	mu       sync.Mutex
	products map[string]domain.Product
	orders   map[string]*domain.Order
	order    []string
	seq      int64
}

func New(products ...domain.Product) *Store {
	s := &Store{
		products: make(map[string]domain.Product),
		orders:   make(map[string]*domain.Order),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.product(productID), nil
}

func (s *Store) CommittedQuantity(_ context.Context, q availability.CommitmentQuery) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed(q), nil
}

func (s *Store) CreateOrders(_ context.Context, batch []*domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range batch {
		for _, item := range o.Items {
			if _, ok := s.products[item.ProductID]; !ok {
				return domain.NewNotFoundError("product", item.ProductID)
			}
		}
	}

	for _, o := range batch {
		s.seq++
		o.ID = uuid.New().String()
		o.Reference = fmt.Sprintf("RO-%06d", s.seq)
		for i := range o.Items {
			o.Items[i].ID = uuid.New().String()
			o.Items[i].OrderID = o.ID
		}
		s.orders[o.ID] = o.Clone()
		s.order = append(s.order, o.ID)
	}
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return o.Clone(), nil
}

// List returns matching orders newest first.
func (s *Store) List(_ context.Context, filter orders.ListFilter) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := []domain.Order{}
	for _, id := range slices.Backward(s.order) {
		o := s.orders[id]
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.VendorID != "" && o.VendorID != filter.VendorID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		list = append(list, *o.Clone())
	}
	return list, nil
}

func (s *Store) Update(ctx context.Context, id string, fn orders.MutateFunc) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[id]
	if !ok {
		return nil, domain.NewNotFoundError("order", id)
	}

	working := stored.Clone()
	if err := fn(ctx, working, tx{s}); err != nil {
		return nil, err
	}

	s.orders[id] = working.Clone()
	return working, nil
}

func (s *Store) product(id string) *domain.Product {
	p, ok := s.products[id]
	if !ok {
		return nil
	}
	return &p
}

func (s *Store) committed(q availability.CommitmentQuery) int {
	total := 0
	for _, o := range s.orders {
		if o.ID == q.ExcludeOrderID || !slices.Contains(q.Statuses, o.Status) {
			continue
		}
		for _, item := range o.Items {
			if item.ProductID != q.ProductID || !item.Window().Overlaps(q.Window) {
				continue
			}
			if q.ExcludeReturned && item.IsReturned {
				continue
			}
			total += item.Quantity
		}
	}
	return total
}

// tx reads the store while Update already holds the mutex.
type tx struct {
	s *Store
}

func (t tx) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	return t.s.product(productID), nil
}

func (t tx) CommittedQuantity(_ context.Context, q availability.CommitmentQuery) (int, error) {
	return t.s.committed(q), nil
}

// LockProducts is a no-op: the store mutex already serialises updates.
func (t tx) LockProducts(_ context.Context, _ []string) error {
	return nil
}

// DemoProducts is the catalogue loaded when the orders service runs in memory mode.
func DemoProducts() []domain.Product {
	return []domain.Product{
		{ID: "PROD-CAMERA", VendorID: "vendor-1", Name: "Mirrorless camera kit", QuantityOnHand: 3, RentalPrice: decimal.NewFromInt(100), RentalUnit: domain.RentalUnitDay},
		{ID: "PROD-TENT", VendorID: "vendor-1", Name: "4-person tent", QuantityOnHand: 5, RentalPrice: decimal.NewFromInt(25), RentalUnit: domain.RentalUnitDay},
		{ID: "PROD-DRILL", VendorID: "vendor-2", Name: "Hammer drill", QuantityOnHand: 10, RentalPrice: decimal.NewFromInt(8), RentalUnit: domain.RentalUnitHour},
		{ID: "PROD-TRAILER", VendorID: "vendor-2", Name: "Utility trailer", QuantityOnHand: 2, RentalPrice: decimal.NewFromInt(210), RentalUnit: domain.RentalUnitWeek},
	}
}

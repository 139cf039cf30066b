package orders_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/rentflow/internal/domain"
	"github.com/joao-fontenele/rentflow/internal/inventory"
	"github.com/joao-fontenele/rentflow/internal/memstore"
	"github.com/joao-fontenele/rentflow/internal/orders"
)

var (
	admin       = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	vendor      = domain.Actor{ID: "vendor-1", Role: domain.RoleVendor}
	otherVendor = domain.Actor{ID: "vendor-2", Role: domain.RoleVendor}
	customer    = domain.Actor{ID: "cust-1", Role: domain.RoleCustomer}
	stranger    = domain.Actor{ID: "cust-2", Role: domain.RoleCustomer}
)

func day(month time.Month, d int) time.Time {
	return time.Date(2026, month, d, 10, 0, 0, 0, time.UTC)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func camera(stock int) domain.Product {
	return domain.Product{
		ID:             "PROD-CAMERA",
		VendorID:       vendor.ID,
		Name:           "Camera",
		QuantityOnHand: stock,
		RentalPrice:    decimal.NewFromInt(100),
		RentalUnit:     domain.RentalUnitDay,
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]domain.EventType, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

func (p *recordingPublisher) last() domain.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fixture struct {
	store     *memstore.Store
	lifecycle *orders.Lifecycle
	checkout  *orders.Checkout
	publisher *recordingPublisher

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, products ...domain.Product) *fixture {
	t.Helper()

	f := &fixture{
		store:     memstore.New(products...),
		publisher: &recordingPublisher{},
		now:       day(time.May, 1),
	}

	lc, err := orders.NewLifecycle(f.store, discardLogger(),
		orders.WithClock(f.clock),
		orders.WithPublisher(f.publisher),
	)
	if err != nil {
		t.Fatalf("failed to create lifecycle: %v", err)
	}
	f.lifecycle = lc
	f.checkout = orders.NewCheckout(f.store, f.store, inventory.NewGuard(f.store), f.publisher, discardLogger())

	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// quote checks out a single-vendor cart and returns the resulting quotation.
func (f *fixture) quote(t *testing.T, who domain.Actor, productID string, qty int, start, end time.Time) *domain.Order {
	t.Helper()

	created, err := f.checkout.Checkout(context.Background(), who, orders.CheckoutInput{
		Items:      []orders.CartItem{{ProductID: productID, Quantity: qty}},
		PickupDate: start,
		ReturnDate: end,
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 order, got %d", len(created))
	}
	return created[0]
}

func mustStatus(t *testing.T, f *fixture, orderID string, want domain.OrderStatus) {
	t.Helper()

	o, err := f.store.GetByID(context.Background(), orderID)
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if o == nil {
		t.Fatalf("order %s not found", orderID)
	}
	if o.Status != want {
		t.Fatalf("expected status %s, got %s", want, o.Status)
	}
}

func conflictOf(t *testing.T, err error) *domain.StockConflictError {
	t.Helper()

	var conflict *domain.StockConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected stock conflict, got %v", err)
	}
	return conflict
}

package orders_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/rentflow/internal/domain"
	"github.com/joao-fontenele/rentflow/internal/orders"
)

func drill(stock int) domain.Product {
	return domain.Product{
		ID:             "PROD-DRILL",
		VendorID:       otherVendor.ID,
		Name:           "Drill",
		QuantityOnHand: stock,
		RentalPrice:    decimal.NewFromInt(8),
		RentalUnit:     domain.RentalUnitHour,
	}
}

func TestCheckout_SplitsByVendor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, camera(3), drill(5))

	created, err := f.checkout.Checkout(ctx, customer, orders.CheckoutInput{
		Items: []orders.CartItem{
			{ProductID: "PROD-CAMERA", Quantity: 1},
			{ProductID: "PROD-DRILL", Quantity: 2},
			{ProductID: "PROD-CAMERA", Quantity: 1},
		},
		PickupDate: day(time.June, 1),
		ReturnDate: day(time.June, 3),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(created) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(created))
	}

	first, second := created[0], created[1]
	if first.VendorID != vendor.ID || second.VendorID != otherVendor.ID {
		t.Errorf("expected vendors in cart order, got %s then %s", first.VendorID, second.VendorID)
	}
	if len(first.Items) != 2 || len(second.Items) != 1 {
		t.Errorf("expected 2 and 1 items, got %d and %d", len(first.Items), len(second.Items))
	}

	// 2 days at 100 for two cameras; 48 hours at 8 for two drills.
	if !first.TotalAmount.Equal(decimal.NewFromInt(400)) {
		t.Errorf("expected camera order total 400, got %s", first.TotalAmount)
	}
	if !second.TotalAmount.Equal(decimal.NewFromInt(768)) {
		t.Errorf("expected drill order total 768, got %s", second.TotalAmount)
	}

	for _, o := range created {
		if o.Status != domain.OrderStatusQuotation {
			t.Errorf("expected QUOTATION, got %s", o.Status)
		}
		if o.PaymentStatus != domain.PaymentStatusUnpaid {
			t.Errorf("expected UNPAID, got %s", o.PaymentStatus)
		}
		if o.DeliveryMethod != domain.DeliveryMethodPickup {
			t.Errorf("expected default delivery method PICKUP, got %s", o.DeliveryMethod)
		}
		if o.CustomerID != customer.ID {
			t.Errorf("expected customer %s, got %s", customer.ID, o.CustomerID)
		}
		if o.ID == "" || o.Reference == "" {
			t.Errorf("expected id and reference to be assigned, got %q and %q", o.ID, o.Reference)
		}
	}
	if first.Reference == second.Reference {
		t.Errorf("expected distinct references, got %s twice", first.Reference)
	}

	types := f.publisher.types()
	if len(types) != 2 || types[0] != domain.EventTypeOrderCreated || types[1] != domain.EventTypeOrderCreated {
		t.Errorf("expected two order.created events, got %v", types)
	}
}

func TestCheckout_ItemWindows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, camera(3))

	start, end := day(time.June, 10), day(time.June, 12)
	created, err := f.checkout.Checkout(ctx, customer, orders.CheckoutInput{
		Items: []orders.CartItem{
			{ProductID: "PROD-CAMERA", Quantity: 1},
			{ProductID: "PROD-CAMERA", Quantity: 1, RentalStart: &start, RentalEnd: &end},
		},
		DeliveryMethod: domain.DeliveryMethodDelivery,
		PickupDate:     day(time.June, 1),
		ReturnDate:     day(time.June, 3),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items := created[0].Items
	if !items[0].RentalStart.Equal(day(time.June, 1)) || !items[0].RentalEnd.Equal(day(time.June, 3)) {
		t.Errorf("expected first item to inherit the order window, got %s to %s", items[0].RentalStart, items[0].RentalEnd)
	}
	if !items[1].RentalStart.Equal(start) || !items[1].RentalEnd.Equal(end) {
		t.Errorf("expected second item to keep its own window, got %s to %s", items[1].RentalStart, items[1].RentalEnd)
	}
	if created[0].DeliveryMethod != domain.DeliveryMethodDelivery {
		t.Errorf("expected DELIVERY, got %s", created[0].DeliveryMethod)
	}
}

func TestCheckout_Rejections(t *testing.T) {
	ctx := context.Background()
	start, end := day(time.June, 1), day(time.June, 3)

	tests := []struct {
		name    string
		actor   domain.Actor
		input   orders.CheckoutInput
		wantErr error
	}{
		{
			name:    "empty cart",
			actor:   customer,
			input:   orders.CheckoutInput{PickupDate: start, ReturnDate: end},
			wantErr: domain.ErrValidation,
		},
		{
			name:  "zero quantity",
			actor: customer,
			input: orders.CheckoutInput{
				Items:      []orders.CartItem{{ProductID: "PROD-CAMERA", Quantity: 0}},
				PickupDate: start, ReturnDate: end,
			},
			wantErr: domain.ErrValidation,
		},
		{
			name:  "return before pickup",
			actor: customer,
			input: orders.CheckoutInput{
				Items:      []orders.CartItem{{ProductID: "PROD-CAMERA", Quantity: 1}},
				PickupDate: end, ReturnDate: start,
			},
			wantErr: domain.ErrValidation,
		},
		{
			name:  "unknown delivery method",
			actor: customer,
			input: orders.CheckoutInput{
				Items:          []orders.CartItem{{ProductID: "PROD-CAMERA", Quantity: 1}},
				DeliveryMethod: "DRONE",
				PickupDate:     start, ReturnDate: end,
			},
			wantErr: domain.ErrValidation,
		},
		{
			name:  "unknown product",
			actor: customer,
			input: orders.CheckoutInput{
				Items:      []orders.CartItem{{ProductID: "PROD-UNKNOWN", Quantity: 1}},
				PickupDate: start, ReturnDate: end,
			},
			wantErr: domain.ErrNotFound,
		},
		{
			name:  "more than on hand",
			actor: customer,
			input: orders.CheckoutInput{
				Items:      []orders.CartItem{{ProductID: "PROD-CAMERA", Quantity: 4}},
				PickupDate: start, ReturnDate: end,
			},
			wantErr: domain.ErrStockConflict,
		},
		{
			name:  "vendor cannot check out",
			actor: vendor,
			input: orders.CheckoutInput{
				Items:      []orders.CartItem{{ProductID: "PROD-CAMERA", Quantity: 1}},
				PickupDate: start, ReturnDate: end,
			},
			wantErr: domain.ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, camera(3))

			created, err := f.checkout.Checkout(ctx, tt.actor, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if created != nil {
				t.Errorf("expected no orders, got %d", len(created))
			}

			list, _ := f.store.List(ctx, orders.ListFilter{})
			if len(list) != 0 {
				t.Errorf("expected nothing stored, got %d orders", len(list))
			}
		})
	}
}

func TestCheckout_SoftCheckSeesCommittedStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, camera(2))

	held := f.quote(t, customer, "PROD-CAMERA", 2, day(time.June, 1), day(time.June, 5))

	// Quotations do not hold stock, so a second quote still passes.
	f.quote(t, stranger, "PROD-CAMERA", 1, day(time.June, 2), day(time.June, 4))

	if _, err := f.lifecycle.Confirm(ctx, vendor, held.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.checkout.Checkout(ctx, stranger, orders.CheckoutInput{
		Items:      []orders.CartItem{{ProductID: "PROD-CAMERA", Quantity: 1}},
		PickupDate: day(time.June, 4),
		ReturnDate: day(time.June, 6),
	})
	conflict := conflictOf(t, err)
	if conflict.Conflicts[0].AvailableQty != 0 {
		t.Errorf("expected 0 available, got %d", conflict.Conflicts[0].AvailableQty)
	}

	if _, err := f.checkout.Checkout(ctx, stranger, orders.CheckoutInput{
		Items:      []orders.CartItem{{ProductID: "PROD-CAMERA", Quantity: 2}},
		PickupDate: day(time.June, 6),
		ReturnDate: day(time.June, 8),
	}); err != nil {
		t.Errorf("expected disjoint window to pass, got %v", err)
	}
}

func TestCheckout_LinesInOneCartCompete(t *testing.T) {
	f := newFixture(t, camera(3))

	_, err := f.checkout.Checkout(context.Background(), customer, orders.CheckoutInput{
		Items: []orders.CartItem{
			{ProductID: "PROD-CAMERA", Quantity: 2},
			{ProductID: "PROD-CAMERA", Quantity: 2},
		},
		PickupDate: day(time.June, 1),
		ReturnDate: day(time.June, 3),
	})
	if !errors.Is(err, domain.ErrStockConflict) {
		t.Fatalf("expected combined lines to exceed stock, got %v", err)
	}
}

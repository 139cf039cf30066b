package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DeliveryMethod string

const (
	DeliveryMethodPickup   DeliveryMethod = "PICKUP"
	DeliveryMethodDelivery DeliveryMethod = "DELIVERY"
)

type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	RentalUnit  RentalUnit      `json:"rental_unit"`
	RentalStart time.Time       `json:"rental_start"`
	RentalEnd   time.Time       `json:"rental_end"`
	IsPickedUp  bool            `json:"is_picked_up"`
	IsReturned  bool            `json:"is_returned"`
	LateFee     decimal.Decimal `json:"late_fee"`
}

func (i OrderItem) Window() Window {
	return Window{Start: i.RentalStart, End: i.RentalEnd}
}

// Subtotal is the rental price of the line before late fees.
func (i OrderItem) Subtotal() decimal.Decimal {
	units := i.RentalUnit.Units(i.Window())
	return i.UnitPrice.Mul(decimal.NewFromInt(units)).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Invoice struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Number    string          `json:"number"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type Order struct {
	ID             string          `json:"id"`
	Reference      string          `json:"reference"`
	CustomerID     string          `json:"customer_id"`
	VendorID       string          `json:"vendor_id"`
	Status         OrderStatus     `json:"status"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	DeliveryMethod DeliveryMethod  `json:"delivery_method"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PickupDate     time.Time       `json:"pickup_date"`
	ReturnDate     time.Time       `json:"return_date"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	ConfirmedAt    *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason   string          `json:"cancel_reason,omitempty"`
	Invoice        *Invoice        `json:"invoice,omitempty"`
	Items          []OrderItem     `json:"items"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.Invoice != nil {
		inv := *o.Invoice
		c.Invoice = &inv
	}
	c.SentAt = cloneTime(o.SentAt)
	c.ConfirmedAt = cloneTime(o.ConfirmedAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

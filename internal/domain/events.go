package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderSent      EventType = "order.sent"
	EventTypeOrderApproved  EventType = "order.approved"
	EventTypeOrderConfirmed EventType = "order.confirmed"
	EventTypeOrderSale      EventType = "order.sale"
	EventTypeOrderInvoiced  EventType = "order.invoiced"
	EventTypeOrderCancelled EventType = "order.cancelled"
	EventTypeOrderPickedUp  EventType = "order.picked_up"
	EventTypeOrderReturned  EventType = "order.returned"
)

// OrderEvent is published after a lifecycle change has been committed.
type OrderEvent struct {
	Type        EventType       `json:"type"`
	OrderID     string          `json:"order_id"`
	Reference   string          `json:"reference"`
	CustomerID  string          `json:"customer_id"`
	VendorID    string          `json:"vendor_id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	LateFee     decimal.Decimal `json:"late_fee"`
	Reason      string          `json:"reason,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

func NewOrderEvent(t EventType, o *Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:        t,
		OrderID:     o.ID,
		Reference:   o.Reference,
		CustomerID:  o.CustomerID,
		VendorID:    o.VendorID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		Reason:      o.CancelReason,
		Timestamp:   at,
	}
}

package domain

import "fmt"

type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusQuotation OrderStatus = "QUOTATION"
	OrderStatusSent      OrderStatus = "SENT"
	OrderStatusApproved  OrderStatus = "APPROVED"
	OrderStatusSale      OrderStatus = "SALE"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusInvoiced  OrderStatus = "INVOICED"
	OrderStatusPickedUp  OrderStatus = "PICKEDUP"
	OrderStatusReturned  OrderStatus = "RETURNED"
	OrderStatusLate      OrderStatus = "LATE"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

var AllOrderStatuses = []OrderStatus{
	OrderStatusDraft,
	OrderStatusQuotation,
	OrderStatusSent,
	OrderStatusApproved,
	OrderStatusSale,
	OrderStatusConfirmed,
	OrderStatusInvoiced,
	OrderStatusPickedUp,
	OrderStatusReturned,
	OrderStatusLate,
	OrderStatusCancelled,
}

// CommittedStatuses count against stock when confirming.
var CommittedStatuses = []OrderStatus{
	OrderStatusConfirmed,
	OrderStatusPickedUp,
	OrderStatusInvoiced,
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range AllOrderStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown order status %q", ErrValidation, s)
}

func (s OrderStatus) Commits() bool {
	for _, c := range CommittedStatuses {
		if s == c {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "UNPAID"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// Event names a lifecycle transition.
type Event string

const (
	EventSend        Event = "send"
	EventApprove     Event = "approve"
	EventConfirm     Event = "confirm"
	EventConfirmSale Event = "confirm_sale"
	EventInvoice     Event = "invoice"
	EventReject      Event = "reject"
	EventCancel      Event = "cancel"
	EventPickup      Event = "pickup"
	EventReturn      Event = "return"
	EventReturnLate  Event = "return_late"
)

var AllEvents = []Event{
	EventSend,
	EventApprove,
	EventConfirm,
	EventConfirmSale,
	EventInvoice,
	EventReject,
	EventCancel,
	EventPickup,
	EventReturn,
	EventReturnLate,
}

var transitions = map[OrderStatus]map[Event]OrderStatus{
	OrderStatusDraft: {
		EventSend:   OrderStatusSent,
		EventCancel: OrderStatusCancelled,
	},
	OrderStatusQuotation: {
		EventSend:    OrderStatusSent,
		EventApprove: OrderStatusApproved,
		EventConfirm: OrderStatusConfirmed,
		EventReject:  OrderStatusCancelled,
		EventCancel:  OrderStatusCancelled,
	},
	OrderStatusSent: {
		EventConfirm:     OrderStatusConfirmed,
		EventConfirmSale: OrderStatusSale,
		EventReject:      OrderStatusCancelled,
		EventCancel:      OrderStatusCancelled,
	},
	OrderStatusApproved: {
		EventConfirm: OrderStatusConfirmed,
		EventReject:  OrderStatusCancelled,
		EventCancel:  OrderStatusCancelled,
	},
	OrderStatusSale: {
		EventInvoice: OrderStatusInvoiced,
	},
	OrderStatusConfirmed: {
		EventInvoice: OrderStatusInvoiced,
		EventPickup:  OrderStatusPickedUp,
	},
	OrderStatusInvoiced: {
		EventPickup: OrderStatusPickedUp,
	},
	OrderStatusPickedUp: {
		EventReturn:     OrderStatusReturned,
		EventReturnLate: OrderStatusLate,
	},
}

// Next looks up the status an event leads to from the given status.
// ok is false when the transition is not legal.
func Next(from OrderStatus, ev Event) (to OrderStatus, ok bool) {
	to, ok = transitions[from][ev]
	return to, ok
}

// Transition is Next with an ErrInvalidTransition for illegal moves.
func Transition(from OrderStatus, ev Event) (OrderStatus, error) {
	to, ok := Next(from, ev)
	if !ok {
		return "", NewInvalidTransitionError(from, ev)
	}
	return to, nil
}

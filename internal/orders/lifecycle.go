package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/rentflow/internal/availability"
	"github.com/joao-fontenele/rentflow/internal/domain"
	"github.com/joao-fontenele/rentflow/internal/latefee"
)

var (
	tracer = otel.Tracer("orders/lifecycle")
	meter  = otel.Meter("orders/lifecycle")
)

var eventTypes = map[domain.OrderStatus]domain.EventType{
	domain.OrderStatusSent:      domain.EventTypeOrderSent,
	domain.OrderStatusApproved:  domain.EventTypeOrderApproved,
	domain.OrderStatusConfirmed: domain.EventTypeOrderConfirmed,
	domain.OrderStatusSale:      domain.EventTypeOrderSale,
	domain.OrderStatusInvoiced:  domain.EventTypeOrderInvoiced,
	domain.OrderStatusCancelled: domain.EventTypeOrderCancelled,
	domain.OrderStatusPickedUp:  domain.EventTypeOrderPickedUp,
	domain.OrderStatusReturned:  domain.EventTypeOrderReturned,
	domain.OrderStatusLate:      domain.EventTypeOrderReturned,
}

type Option func(*Lifecycle)

func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) {
		l.now = now
	}
}

func WithPublisher(p Publisher) Option {
	return func(l *Lifecycle) {
		l.publisher = p
	}
}

// Lifecycle drives orders through the rental state machine.
type Lifecycle struct {
	repo      Repository
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	transitions    metric.Int64Counter
	stockConflicts metric.Int64Counter
	lateFees       metric.Float64Counter
}

func NewLifecycle(repo Repository, logger *slog.Logger, opts ...Option) (*Lifecycle, error) {
	l := &Lifecycle{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	var err error
	l.transitions, err = meter.Int64Counter("rentflow.transitions",
		metric.WithDescription("Lifecycle transitions attempted, by event and outcome"))
	if err != nil {
		return nil, fmt.Errorf("create transitions counter: %w", err)
	}
	l.stockConflicts, err = meter.Int64Counter("rentflow.stock_conflicts",
		metric.WithDescription("Commit attempts rejected by the availability check"))
	if err != nil {
		return nil, fmt.Errorf("create stock conflicts counter: %w", err)
	}
	l.lateFees, err = meter.Float64Counter("rentflow.late_fees",
		metric.WithDescription("Late fees charged on return"))
	if err != nil {
		return nil, fmt.Errorf("create late fees counter: %w", err)
	}

	return l, nil
}

func (l *Lifecycle) Send(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error) {
	return l.mutate(ctx, actor, orderID, domain.EventSend, func(_ context.Context, o *domain.Order, _ Tx, now time.Time) error {
		if err := requireOwner(actor, o); err != nil {
			return err
		}
		if err := advance(o, domain.EventSend); err != nil {
			return err
		}
		o.SentAt = &now
		return nil
	})
}

// Approve accepts a quotation without touching stock; quotations never hold units.
func (l *Lifecycle) Approve(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error) {
	return l.mutate(ctx, actor, orderID, domain.EventApprove, func(_ context.Context, o *domain.Order, _ Tx, _ time.Time) error {
		if err := requireOwner(actor, o); err != nil {
			return err
		}
		return advance(o, domain.EventApprove)
	})
}

// Confirm is where a reservation becomes binding. The availability check and
// the status write happen in one transaction under per-product locks.
func (l *Lifecycle) Confirm(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error) {
	return l.mutate(ctx, actor, orderID, domain.EventConfirm, func(ctx context.Context, o *domain.Order, tx Tx, now time.Time) error {
		if err := requireOwner(actor, o); err != nil {
			return err
		}
		if _, err := domain.Transition(o.Status, domain.EventConfirm); err != nil {
			return err
		}
		if err := reserve(ctx, o, tx); err != nil {
			return err
		}
		if err := advance(o, domain.EventConfirm); err != nil {
			return err
		}
		o.ConfirmedAt = &now
		return nil
	})
}

func (l *Lifecycle) ConfirmSale(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error) {
	return l.mutate(ctx, actor, orderID, domain.EventConfirmSale, func(_ context.Context, o *domain.Order, _ Tx, _ time.Time) error {
		if err := requireOwner(actor, o); err != nil {
			return err
		}
		return advance(o, domain.EventConfirmSale)
	})
}

// CreateInvoice moves an order to INVOICED. Orders coming from SALE were never
// checked against stock, so they go through the same gate as Confirm.
func (l *Lifecycle) CreateInvoice(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error) {
	return l.mutate(ctx, actor, orderID, domain.EventInvoice, func(ctx context.Context, o *domain.Order, tx Tx, now time.Time) error {
		if err := requireOwner(actor, o); err != nil {
			return err
		}
		if o.Invoice != nil {
			return fmt.Errorf("%w: order %s already has invoice %s", domain.ErrInvalidTransition, o.Reference, o.Invoice.Number)
		}
		if _, err := domain.Transition(o.Status, domain.EventInvoice); err != nil {
			return err
		}
		if !o.Status.Commits() {
			if err := reserve(ctx, o, tx); err != nil {
				return err
			}
		}
		if err := advance(o, domain.EventInvoice); err != nil {
			return err
		}
		o.Invoice = &domain.Invoice{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			Number:    "INV/" + o.Reference,
			Amount:    o.TotalAmount,
			CreatedAt: now,
		}
		return nil
	})
}

func (l *Lifecycle) Reject(ctx context.Context, actor domain.Actor, orderID, reason string) (*domain.Order, error) {
	return l.mutate(ctx, actor, orderID, domain.EventReject, func(_ context.Context, o *domain.Order, _ Tx, now time.Time) error {
		if err := requireOwner(actor, o); err != nil {
			return err
		}
		if err := advance(o, domain.EventReject); err != nil {
			return err
		}
		o.CancelledAt = &now
		o.CancelReason = reason
		return nil
	})
}

// Cancel is open to every participant, including the customer, while the order
// has not committed stock.
func (l *Lifecycle) Cancel(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error) {
	return l.mutate(ctx, actor, orderID, domain.EventCancel, func(_ context.Context, o *domain.Order, _ Tx, now time.Time) error {
		if !actor.Participates(o) {
			return domain.NewUnauthorizedError(fmt.Sprintf("%s %s is not a participant of order %s", actor.Role, actor.ID, o.Reference))
		}
		if err := advance(o, domain.EventCancel); err != nil {
			return err
		}
		o.CancelledAt = &now
		return nil
	})
}

func (l *Lifecycle) Pickup(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error) {
	return l.mutate(ctx, actor, orderID, domain.EventPickup, func(_ context.Context, o *domain.Order, _ Tx, now time.Time) error {
		if err := requireOwner(actor, o); err != nil {
			return err
		}
		if err := advance(o, domain.EventPickup); err != nil {
			return err
		}
		for i := range o.Items {
			o.Items[i].IsPickedUp = true
		}
		o.PickupDate = now
		return nil
	})
}

// Return closes the rental, charging half the daily rate per started late day
// for every unit returned after its item's rental end.
func (l *Lifecycle) Return(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error) {
	return l.mutate(ctx, actor, orderID, domain.EventReturn, func(_ context.Context, o *domain.Order, _ Tx, now time.Time) error {
		if err := requireOwner(actor, o); err != nil {
			return err
		}
		if _, err := domain.Transition(o.Status, domain.EventReturn); err != nil {
			return err
		}

		fees, total := latefee.OrderLateFee(o.Items, now)
		for i := range o.Items {
			o.Items[i].LateFee = fees[i]
			o.Items[i].IsReturned = true
		}

		ev := domain.EventReturn
		if total.IsPositive() {
			ev = domain.EventReturnLate
		}
		if err := advance(o, ev); err != nil {
			return err
		}
		o.ReturnDate = now
		o.TotalAmount = o.TotalAmount.Add(total)
		return nil
	})
}

type mutation func(ctx context.Context, order *domain.Order, tx Tx, now time.Time) error

func (l *Lifecycle) mutate(ctx context.Context, actor domain.Actor, orderID string, ev domain.Event, fn mutation) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "lifecycle "+string(ev),
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("actor.id", actor.ID),
			attribute.String("actor.role", string(actor.Role)),
		),
	)
	defer span.End()

	now := l.now().UTC()
	order, err := l.repo.Update(ctx, orderID, func(ctx context.Context, o *domain.Order, tx Tx) error {
		if err := fn(ctx, o, tx, now); err != nil {
			return err
		}
		o.UpdatedAt = now
		return nil
	})

	outcome := outcomeOf(err)
	l.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", string(ev)),
		attribute.String("outcome", outcome),
	))

	if err != nil {
		var conflict *domain.StockConflictError
		switch {
		case errors.As(err, &conflict):
			l.stockConflicts.Add(ctx, 1)
			l.logger.Info("stock conflict", "order_id", orderID, "event", ev, "conflicts", len(conflict.Conflicts))
		case outcome == "internal":
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			l.logger.Error("lifecycle transition failed", "error", err, "order_id", orderID, "event", ev)
		default:
			l.logger.Info("lifecycle transition refused", "reason", err.Error(), "order_id", orderID, "event", ev, "actor_id", actor.ID)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("order.status", string(order.Status)))
	l.logger.Info("order transitioned", "order_id", order.ID, "reference", order.Reference, "event", ev, "status", order.Status)

	event := domain.NewOrderEvent(eventTypes[order.Status], order, now)
	if order.Status == domain.OrderStatusReturned || order.Status == domain.OrderStatusLate {
		event.LateFee = totalLateFee(order)
		if fee, _ := event.LateFee.Float64(); fee > 0 {
			l.lateFees.Add(ctx, fee)
		}
	}
	l.publish(ctx, event)

	return order, nil
}

// publish is fire-and-forget: the transition is already committed.
func (l *Lifecycle) publish(ctx context.Context, event domain.OrderEvent) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, event); err != nil {
		l.logger.Error("failed to publish order event", "error", err, "order_id", event.OrderID, "type", event.Type)
	}
}

func reserve(ctx context.Context, o *domain.Order, tx Tx) error {
	requests := availability.RequestsForOrder(o)
	if err := tx.LockProducts(ctx, availability.SortedProductIDs(requests)); err != nil {
		return fmt.Errorf("lock products: %w", err)
	}

	result, err := availability.NewEngine(tx).CheckAvailability(ctx, requests, o.ID)
	if err != nil {
		return fmt.Errorf("check availability: %w", err)
	}
	if !result.OK {
		return &domain.StockConflictError{Conflicts: result.Conflicts}
	}
	return nil
}

func advance(o *domain.Order, ev domain.Event) error {
	next, err := domain.Transition(o.Status, ev)
	if err != nil {
		return err
	}
	o.Status = next
	return nil
}

func requireOwner(actor domain.Actor, o *domain.Order) error {
	if actor.Owns(o) {
		return nil
	}
	return domain.NewUnauthorizedError(fmt.Sprintf("%s %s does not own order %s", actor.Role, actor.ID, o.Reference))
}

func totalLateFee(o *domain.Order) decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LateFee)
	}
	return total
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrStockConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}

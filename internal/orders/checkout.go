package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/rentflow/internal/availability"
	"github.com/joao-fontenele/rentflow/internal/domain"
)

type CartItem struct {
	ProductID   string     `json:"product_id"`
	Quantity    int        `json:"quantity"`
	RentalStart *time.Time `json:"rental_start,omitempty"`
	RentalEnd   *time.Time `json:"rental_end,omitempty"`
}

type CheckoutInput struct {
	Items          []CartItem            `json:"items"`
	DeliveryMethod domain.DeliveryMethod `json:"delivery_method"`
	PickupDate     time.Time             `json:"pickup_date"`
	ReturnDate     time.Time             `json:"return_date"`
}

// ProductCatalog resolves cart lines to products.
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}

// Guard is the advisory stock check run before quotations are created.
type Guard interface {
	Check(ctx context.Context, requests []availability.Request) (*availability.Result, error)
}

// Checkout turns a cart into one quotation per vendor.
type Checkout struct {
	repo      Repository
	catalog   ProductCatalog
	guard     Guard
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewCheckout(repo Repository, catalog ProductCatalog, guard Guard, publisher Publisher, logger *slog.Logger) *Checkout {
	return &Checkout{
		repo:      repo,
		catalog:   catalog,
		guard:     guard,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

type cartLine struct {
	product  *domain.Product
	quantity int
	window   domain.Window
}

func (c *Checkout) Checkout(ctx context.Context, actor domain.Actor, in CheckoutInput) ([]*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "checkout", trace.WithAttributes(
		attribute.String("actor.id", actor.ID),
		attribute.Int("cart.items", len(in.Items)),
	))
	defer span.End()

	if actor.Role != domain.RoleCustomer && actor.Role != domain.RoleAdmin {
		return nil, domain.NewUnauthorizedError(fmt.Sprintf("%s %s cannot check out", actor.Role, actor.ID))
	}

	if in.DeliveryMethod == "" {
		in.DeliveryMethod = domain.DeliveryMethodPickup
	}

	lines, err := c.resolve(ctx, in)
	if err != nil {
		return nil, err
	}

	requests := make([]availability.Request, 0, len(lines))
	for _, l := range lines {
		requests = append(requests, availability.Request{
			ProductID: l.product.ID,
			Quantity:  l.quantity,
			Window:    l.window,
		})
	}

	result, err := c.guard.Check(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}
	if !result.OK {
		c.logger.Info("checkout rejected by stock check", "customer_id", actor.ID, "conflicts", len(result.Conflicts))
		return nil, &domain.StockConflictError{Conflicts: result.Conflicts}
	}

	orders := c.split(actor, in, lines)
	if err := c.repo.CreateOrders(ctx, orders); err != nil {
		return nil, fmt.Errorf("create orders: %w", err)
	}

	now := c.now().UTC()
	for _, o := range orders {
		c.logger.Info("order created", "order_id", o.ID, "reference", o.Reference, "customer_id", o.CustomerID, "vendor_id", o.VendorID)
		if c.publisher == nil {
			continue
		}
		if err := c.publisher.Publish(ctx, domain.NewOrderEvent(domain.EventTypeOrderCreated, o, now)); err != nil {
			c.logger.Error("failed to publish order event", "error", err, "order_id", o.ID, "type", domain.EventTypeOrderCreated)
		}
	}

	return orders, nil
}

func (c *Checkout) resolve(ctx context.Context, in CheckoutInput) ([]cartLine, error) {
	if len(in.Items) == 0 {
		return nil, domain.NewValidationError("cart is empty")
	}
	if in.DeliveryMethod != domain.DeliveryMethodPickup && in.DeliveryMethod != domain.DeliveryMethodDelivery {
		return nil, domain.NewValidationError(fmt.Sprintf("unknown delivery method %q", in.DeliveryMethod))
	}
	if _, err := domain.NewWindow(in.PickupDate, in.ReturnDate); err != nil {
		return nil, err
	}

	lines := make([]cartLine, 0, len(in.Items))
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, domain.NewValidationError(fmt.Sprintf("quantity for product %s must be positive", item.ProductID))
		}

		start, end := in.PickupDate, in.ReturnDate
		if item.RentalStart != nil {
			start = *item.RentalStart
		}
		if item.RentalEnd != nil {
			end = *item.RentalEnd
		}
		window, err := domain.NewWindow(start, end)
		if err != nil {
			return nil, err
		}

		product, err := c.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("get product %s: %w", item.ProductID, err)
		}
		if product == nil {
			return nil, domain.NewNotFoundError("product", item.ProductID)
		}

		lines = append(lines, cartLine{product: product, quantity: item.Quantity, window: window})
	}

	return lines, nil
}

// split groups lines by vendor, keeping the order vendors first appear in the cart.
func (c *Checkout) split(actor domain.Actor, in CheckoutInput, lines []cartLine) []*domain.Order {
	now := c.now().UTC()
	byVendor := make(map[string]*domain.Order)
	var orders []*domain.Order

	for _, l := range lines {
		order, ok := byVendor[l.product.VendorID]
		if !ok {
			order = &domain.Order{
				CustomerID:     actor.ID,
				VendorID:       l.product.VendorID,
				Status:         domain.OrderStatusQuotation,
				PaymentStatus:  domain.PaymentStatusUnpaid,
				DeliveryMethod: in.DeliveryMethod,
				TotalAmount:    decimal.Zero,
				PickupDate:     in.PickupDate.UTC(),
				ReturnDate:     in.ReturnDate.UTC(),
				Items:          []domain.OrderItem{},
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			byVendor[l.product.VendorID] = order
			orders = append(orders, order)
		}

		item := domain.OrderItem{
			ProductID:   l.product.ID,
			ProductName: l.product.Name,
			Quantity:    l.quantity,
			UnitPrice:   l.product.RentalPrice,
			RentalUnit:  l.product.RentalUnit,
			RentalStart: l.window.Start,
			RentalEnd:   l.window.End,
			LateFee:     decimal.Zero,
		}
		order.Items = append(order.Items, item)
		order.TotalAmount = order.TotalAmount.Add(item.Subtotal())
	}

	return orders
}

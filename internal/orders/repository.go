package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/rentflow/internal/domain"
	"github.com/joao-fontenele/rentflow/internal/inventory"
)

const orderColumns = `
	id, reference, customer_id, vendor_id, status, payment_status, delivery_method,
	total_amount, pickup_date, return_date, sent_at, confirmed_at, cancelled_at,
	cancel_reason, created_at, updated_at`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrders stores a checkout's orders in one transaction, assigning IDs and references.
func (r *OrderRepository) CreateOrders(ctx context.Context, orders []*domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, order := range orders {
		var seq int64
		if err := tx.QueryRowContext(ctx, `SELECT nextval('order_reference_seq')`).Scan(&seq); err != nil {
			return fmt.Errorf("next order reference: %w", err)
		}
		order.ID = uuid.New().String()
		order.Reference = fmt.Sprintf("RO-%06d", seq)

		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`, order.ID, order.Reference, order.CustomerID, order.VendorID, order.Status, order.PaymentStatus,
			order.DeliveryMethod, order.TotalAmount, order.PickupDate, order.ReturnDate, order.SentAt,
			order.ConfirmedAt, order.CancelledAt, order.CancelReason, order.CreatedAt, order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.ID = uuid.New().String()
			item.OrderID = order.ID
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price,
					rental_unit, rental_start, rental_end, is_picked_up, is_returned, late_fee)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			`, item.ID, item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice,
				item.RentalUnit, item.RentalStart, item.RentalEnd, item.IsPickedUp, item.IsReturned, item.LateFee)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return loadOrder(ctx, r.db, id, false)
}

func (r *OrderRepository) List(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR customer_id = $1)
		  AND ($2 = '' OR vendor_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
	`, filter.CustomerID, filter.VendorID, string(filter.Status))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	if err := loadChildren(ctx, r.db, orderMap, orderIDs); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// Update runs fn against the order inside a transaction that holds the order
// row lock. Changes are written back only when fn succeeds.
func (r *OrderRepository) Update(ctx context.Context, id string, fn MutateFunc) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := loadOrder(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.NewNotFoundError("order", id)
	}
	hadInvoice := order.Invoice != nil

	if err := fn(ctx, order, inventory.NewProductRepository(tx)); err != nil {
		return nil, err
	}

	if err := saveOrder(ctx, tx, order, hadInvoice); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return order, nil
}

func saveOrder(ctx context.Context, tx *sql.Tx, order *domain.Order, hadInvoice bool) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, total_amount = $4, pickup_date = $5, return_date = $6,
			sent_at = $7, confirmed_at = $8, cancelled_at = $9, cancel_reason = $10, updated_at = $11
		WHERE id = $1
	`, order.ID, order.Status, order.PaymentStatus, order.TotalAmount, order.PickupDate, order.ReturnDate,
		order.SentAt, order.ConfirmedAt, order.CancelledAt, order.CancelReason, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			UPDATE order_items
			SET is_picked_up = $2, is_returned = $3, late_fee = $4
			WHERE id = $1
		`, item.ID, item.IsPickedUp, item.IsReturned, item.LateFee)
		if err != nil {
			return fmt.Errorf("update order item: %w", err)
		}
	}

	if order.Invoice != nil && !hadInvoice {
		inv := order.Invoice
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoices (id, order_id, number, amount, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, inv.ID, inv.OrderID, inv.Number, inv.Amount, inv.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
	}

	return nil
}

func loadOrder(ctx context.Context, db inventory.Querier, id string, forUpdate bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := loadChildren(ctx, db, map[string]*domain.Order{order.ID: order}, []string{order.ID}); err != nil {
		return nil, err
	}

	return order, nil
}

// loadChildren fills items and invoices for a batch of orders with one query each.
func loadChildren(ctx context.Context, db inventory.Querier, orderMap map[string]*domain.Order, orderIDs []string) error {
	itemRows, err := db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, rental_unit,
			rental_start, rental_end, is_picked_up, is_returned, late_fee
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, rental_start, id
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var item domain.OrderItem
		if err := itemRows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity,
			&item.UnitPrice, &item.RentalUnit, &item.RentalStart, &item.RentalEnd, &item.IsPickedUp,
			&item.IsReturned, &item.LateFee); err != nil {
			return err
		}
		item.RentalStart = item.RentalStart.UTC()
		item.RentalEnd = item.RentalEnd.UTC()
		order := orderMap[item.OrderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return err
	}

	invoiceRows, err := db.QueryContext(ctx, `
		SELECT id, order_id, number, amount, created_at
		FROM invoices
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = invoiceRows.Close() }()

	for invoiceRows.Next() {
		var inv domain.Invoice
		if err := invoiceRows.Scan(&inv.ID, &inv.OrderID, &inv.Number, &inv.Amount, &inv.CreatedAt); err != nil {
			return err
		}
		orderMap[inv.OrderID].Invoice = &inv
	}

	return invoiceRows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{Items: []domain.OrderItem{}}
	err := row.Scan(&order.ID, &order.Reference, &order.CustomerID, &order.VendorID, &order.Status,
		&order.PaymentStatus, &order.DeliveryMethod, &order.TotalAmount, &order.PickupDate, &order.ReturnDate,
		&order.SentAt, &order.ConfirmedAt, &order.CancelledAt, &order.CancelReason, &order.CreatedAt,
		&order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return order, nil
}

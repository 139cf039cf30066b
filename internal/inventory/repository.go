package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/rentflow/internal/availability"
	"github.com/joao-fontenele/rentflow/internal/domain"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ProductRepository reads products and the commitments recorded against them.
// Bound to a transaction it also takes the per-product locks used by Confirm.
type ProductRepository struct {
	db Querier
}

func NewProductRepository(db Querier) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, vendor_id, name, quantity_on_hand, rental_price, rental_unit
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *ProductRepository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT id, vendor_id, name, quantity_on_hand, rental_price, rental_unit
		FROM products
		WHERE id = $1
	`, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p    domain.Product
		unit string
	)
	if err := row.Scan(&p.ID, &p.VendorID, &p.Name, &p.QuantityOnHand, &p.RentalPrice, &unit); err != nil {
		return nil, err
	}
	u, err := domain.ParseRentalUnit(unit)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", p.ID, err)
	}
	p.RentalUnit = u
	return &p, nil
}

// CommittedQuantity sums the item quantities of a product whose closed rental
// window overlaps q.Window, over orders in one of q.Statuses.
func (r *ProductRepository) CommittedQuantity(ctx context.Context, q availability.CommitmentQuery) (int, error) {
	statuses := make([]string, len(q.Statuses))
	for i, s := range q.Statuses {
		statuses[i] = string(s)
	}

	var committed int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.product_id = $1
		  AND o.status = ANY($2::text[])
		  AND oi.rental_start <= $4
		  AND oi.rental_end >= $3
		  AND ($5::text = '' OR o.id <> $5::text)
		  AND (NOT $6::boolean OR NOT oi.is_returned)
	`, q.ProductID, pq.Array(statuses), q.Window.Start, q.Window.End, q.ExcludeOrderID, q.ExcludeReturned).Scan(&committed)
	if err != nil {
		return 0, err
	}

	return committed, nil
}

// LockProducts takes a transaction-scoped advisory lock per product. Callers
// pass IDs in sorted order so concurrent confirmations cannot deadlock.
func (r *ProductRepository) LockProducts(ctx context.Context, productIDs []string) error {
	for _, id := range productIDs {
		if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('product:' || $1))`, id); err != nil {
			return err
		}
	}
	return nil
}

package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"storefront-checkout/internal/domain"
)

type OrderRepo interface {
	// Create stores a new order with its line items and first history entry.
	// ID, OrderNumber, CreatedAt and UpdatedAt are filled in.
	Create(ctx context.Context, order *domain.CommerceOrder, paymentMethod string) error
	FindByID(ctx context.Context, id string) (*domain.CommerceOrder, error)
	// UpdateStatusIf moves the order from one status to another only if it is
	// still in from. It reports whether this call made the change.
	UpdateStatusIf(ctx context.Context, id string, from, to domain.OrderStatus, note string) (bool, error)
	History(ctx context.Context, id string) ([]domain.StatusChange, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, order *domain.CommerceOrder, paymentMethod string) error {
	contact, err := json.Marshal(order.Contact)
	if err != nil {
		return err
	}
	billing, err := json.Marshal(order.Billing)
	if err != nil {
		return err
	}
	shipping, err := json.Marshal(order.Shipping)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	id := uuid.New()
	var number int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (id, status, subtotal_minor, shipping_minor, tax_minor, total_minor,
		                    contact, billing, shipping, customer_note, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING order_number, created_at, updated_at`,
		id, order.Status, order.Totals.Subtotal, order.Totals.Shipping, order.Totals.Tax, order.Totals.Total,
		contact, billing, shipping, order.CustomerNote, paymentMethod,
	).Scan(&number, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range order.LineItems {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_line_items (order_id, position, product_id, variation_id, name, quantity, unit_price_minor)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, i, it.ProductID, it.VariationID, it.Name, it.Quantity, it.UnitPriceMinor,
		)
		if err != nil {
			return fmt.Errorf("insert line item %d: %w", i, err)
		}
	}

	if err := insertHistory(ctx, tx, id, order.Status, "Order created"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	order.ID = id.String()
	order.OrderNumber = strconv.FormatInt(number, 10)
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, id string) (*domain.CommerceOrder, error) {
	oid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var (
		o                          domain.CommerceOrder
		number                     int64
		contact, billing, shipping []byte
	)
	err = r.db.QueryRowContext(ctx, `
		SELECT order_number, status, subtotal_minor, shipping_minor, tax_minor, total_minor,
		       contact, billing, shipping, customer_note, created_at, updated_at
		FROM orders WHERE id = $1`, oid,
	).Scan(
		&number, &o.Status, &o.Totals.Subtotal, &o.Totals.Shipping, &o.Totals.Tax, &o.Totals.Total,
		&contact, &billing, &shipping, &o.CustomerNote, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.ID = oid.String()
	o.OrderNumber = strconv.FormatInt(number, 10)
	if err := json.Unmarshal(contact, &o.Contact); err != nil {
		return nil, fmt.Errorf("decode contact: %w", err)
	}
	if err := json.Unmarshal(billing, &o.Billing); err != nil {
		return nil, fmt.Errorf("decode billing: %w", err)
	}
	if err := json.Unmarshal(shipping, &o.Shipping); err != nil {
		return nil, fmt.Errorf("decode shipping: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, variation_id, name, quantity, unit_price_minor
		FROM order_line_items WHERE order_id = $1 ORDER BY position`, oid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.LineItem
		if err := rows.Scan(&it.ProductID, &it.VariationID, &it.Name, &it.Quantity, &it.UnitPriceMinor); err != nil {
			return nil, err
		}
		o.LineItems = append(o.LineItems, it)
	}
	return &o, rows.Err()
}

func (r *orderRepo) UpdateStatusIf(ctx context.Context, id string, from, to domain.OrderStatus, note string) (bool, error) {
	oid, err := uuid.Parse(id)
	if err != nil {
		return false, ErrNotFound
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		to, oid, from,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := insertHistory(ctx, tx, oid, to, note); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (r *orderRepo) History(ctx context.Context, id string) ([]domain.StatusChange, error) {
	oid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, note, created_at FROM order_status_history WHERE order_id = $1 ORDER BY id`, oid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StatusChange
	for rows.Next() {
		var c domain.StatusChange
		if err := rows.Scan(&c.Status, &c.Note, &c.At); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, status domain.OrderStatus, note string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_status_history (order_id, status, note) VALUES ($1, $2, $3)`,
		orderID, status, note,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

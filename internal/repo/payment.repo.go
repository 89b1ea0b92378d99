package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"storefront-checkout/internal/domain"
)

type PaymentRepo interface {
	Create(ctx context.Context, p *domain.PaymentOrder) error
	FindByID(ctx context.Context, id string) (*domain.PaymentOrder, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*domain.PaymentOrder, error)
	ListByReceipt(ctx context.Context, receiptRef string) ([]domain.PaymentOrder, error)
	// MarkPaid captures the payment order. It reports false when the order
	// was already paid and returns ErrAlreadyPaid when a sibling attempt for
	// the same commerce order holds the capture.
	MarkPaid(ctx context.Context, id, paymentID string) (bool, error)
	// MarkAttemptFailed flags a created payment order; paid orders are immutable.
	MarkAttemptFailed(ctx context.Context, id, paymentID string) (bool, error)
}

type paymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) PaymentRepo {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, receipt_ref, amount_minor, currency, status, COALESCE(payment_id, ''), notes, created_at, updated_at`

func (r *paymentRepo) Create(ctx context.Context, p *domain.PaymentOrder) error {
	receipt, err := uuid.Parse(p.ReceiptRef)
	if err != nil {
		return ErrNotFound
	}
	notes, err := json.Marshal(p.Notes)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO payment_orders (id, receipt_ref, amount_minor, currency, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		p.ID, receipt, p.AmountMinor, p.Currency, p.Status, notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment order: %w", err)
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, id string) (*domain.PaymentOrder, error) {
	return r.findOne(ctx, `SELECT `+paymentColumns+` FROM payment_orders WHERE id = $1`, id)
}

func (r *paymentRepo) FindByPaymentID(ctx context.Context, paymentID string) (*domain.PaymentOrder, error) {
	return r.findOne(ctx, `SELECT `+paymentColumns+` FROM payment_orders WHERE payment_id = $1`, paymentID)
}

func (r *paymentRepo) ListByReceipt(ctx context.Context, receiptRef string) ([]domain.PaymentOrder, error) {
	receipt, err := uuid.Parse(receiptRef)
	if err != nil {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_orders WHERE receipt_ref = $1 ORDER BY created_at, id`, receipt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PaymentOrder
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *paymentRepo) MarkPaid(ctx context.Context, id, paymentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_orders
		SET status = $1, payment_id = $2, updated_at = now()
		WHERE id = $3 AND status <> $1`,
		domain.PaymentPaid, paymentID, id,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, ErrAlreadyPaid
		}
		return false, err
	}
	return affected(res)
}

func (r *paymentRepo) MarkAttemptFailed(ctx context.Context, id, paymentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_orders
		SET status = $1, payment_id = COALESCE(NULLIF($2, ''), payment_id), updated_at = now()
		WHERE id = $3 AND status = $4`,
		domain.PaymentAttemptFailed, paymentID, id, domain.PaymentCreated,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *paymentRepo) findOne(ctx context.Context, query string, arg any) (*domain.PaymentOrder, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func scanPayment(row rowScanner) (*domain.PaymentOrder, error) {
	var (
		p       domain.PaymentOrder
		receipt uuid.UUID
		notes   []byte
	)
	if err := row.Scan(&p.ID, &receipt, &p.AmountMinor, &p.Currency, &p.Status, &p.PaymentID,
		&notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ReceiptRef = receipt.String()
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &p.Notes); err != nil {
			return nil, fmt.Errorf("decode notes: %w", err)
		}
	}
	return &p, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/urbancart/api/internal/domain/payment"
)

const (
	paymentColumns = `id, order_id, user_id, method, status, amount,
		COALESCE(transaction_id, ''), COALESCE(gateway_session_key, ''), created_at, updated_at`

	getPaymentByOrderSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`
	getPaymentByTranSQL  = `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1`

	upsertPaymentSQL = `INSERT INTO payments (order_id, user_id, method, status, amount, transaction_id, gateway_session_key)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
	ON CONFLICT (order_id) DO UPDATE SET
		user_id = EXCLUDED.user_id,
		method = EXCLUDED.method,
		status = EXCLUDED.status,
		amount = EXCLUDED.amount,
		transaction_id = COALESCE(EXCLUDED.transaction_id, payments.transaction_id),
		gateway_session_key = COALESCE(EXCLUDED.gateway_session_key, payments.gateway_session_key),
		updated_at = now()
	RETURNING id, created_at, updated_at`

	setPaymentStatusSQL = `UPDATE payments SET status = $1, updated_at = now() WHERE id = $2`

	recordCallbackSQL = `UPDATE payments SET status = $1, raw_callback = $2, updated_at = now() WHERE id = $3`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository returns a PaymentRepository that uses the given DB.
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// GetByOrderID returns the payment record for an order.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID int64) (*payment.Payment, error) {
	return r.getOne(ctx, getPaymentByOrderSQL, orderID)
}

// GetByTransactionID returns the payment carrying the gateway transaction id.
func (r *PaymentRepository) GetByTransactionID(ctx context.Context, tranID string) (*payment.Payment, error) {
	return r.getOne(ctx, getPaymentByTranSQL, tranID)
}

// Upsert inserts or refreshes the single payment record for an order.
func (r *PaymentRepository) Upsert(ctx context.Context, p *payment.Payment) error {
	err := r.db.q(ctx).QueryRow(ctx, upsertPaymentSQL,
		p.OrderID, p.UserID, p.Method, p.Status, p.Amount, p.TransactionID, p.GatewaySessionKey,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting payment for order %d: %w", p.OrderID, err)
	}
	return nil
}

// SetStatus updates the payment record state.
func (r *PaymentRepository) SetStatus(ctx context.Context, id int64, status payment.Status) error {
	tag, err := r.db.q(ctx).Exec(ctx, setPaymentStatusSQL, status, id)
	if err != nil {
		return fmt.Errorf("setting payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

// RecordCallback stores the raw gateway payload alongside the new status.
func (r *PaymentRepository) RecordCallback(ctx context.Context, id int64, status payment.Status, raw []byte) error {
	tag, err := r.db.q(ctx).Exec(ctx, recordCallbackSQL, status, raw, id)
	if err != nil {
		return fmt.Errorf("recording payment callback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

func (r *PaymentRepository) getOne(ctx context.Context, sql string, arg any) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.q(ctx).QueryRow(ctx, sql, arg).Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.Method, &p.Status, &p.Amount,
		&p.TransactionID, &p.GatewaySessionKey, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment: %w", err)
	}
	return &p, nil
}

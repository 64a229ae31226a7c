// Package payment tracks payment records and finalizes prepaid orders,
// exactly once, through either the gateway callback or the one-time code
// confirmation channel.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the gateway-facing payment record state, tracked independently of
// the order's payment_status but kept consistent with it.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// Confirmation failure taxonomy. Each maps to a distinct user-visible reason.
var (
	ErrNotFound        = errors.New("payment not found")
	ErrInvalidCode     = errors.New("invalid confirmation code")
	ErrCodeExpired     = errors.New("confirmation code expired")
	ErrCodeAlreadyUsed = errors.New("confirmation code already used")
	ErrNoCodeIssued    = errors.New("no confirmation code issued for this order")
	ErrAlreadyPaid     = errors.New("order is already paid")
)

// RateLimitedError is returned when a code resend is requested before the
// cooldown elapses.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return "confirmation code was sent recently, retry later"
}

// Payment is the one-to-one payment record for an order.
type Payment struct {
	ID      int64
	OrderID int64
	UserID  int64

	Method string
	Status Status
	Amount decimal.Decimal

	TransactionID     string
	GatewaySessionKey string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository defines persistence for payment records.
type Repository interface {
	// GetByOrderID returns the payment for an order, or ErrNotFound.
	GetByOrderID(ctx context.Context, orderID int64) (*Payment, error)

	// GetByTransactionID looks a payment up by its gateway transaction id.
	// Callbacks reference payments only this way; an unknown id is
	// ErrNotFound, never a crash.
	GetByTransactionID(ctx context.Context, tranID string) (*Payment, error)

	// Upsert inserts the payment or updates the existing record for the same
	// order (at most one active payment record per order).
	Upsert(ctx context.Context, p *Payment) error

	SetStatus(ctx context.Context, id int64, status Status) error

	// RecordCallback stores the raw gateway payload alongside the status.
	RecordCallback(ctx context.Context, id int64, status Status, raw []byte) error
}

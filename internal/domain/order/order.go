// Package order owns the order aggregate: the order row, its immutable item
// snapshots, the append-only status history, and the services that drive the
// lifecycle (checkout, status transitions, cancellation).
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/urbancart/api/internal/domain/inventory"
)

// Sentinel errors for checkout validation.
var (
	ErrEmptyCart = errors.New("cart is empty")
	ErrNotFound  = errors.New("order not found")
)

// InvalidQuantityError indicates a cart line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity for product %d", e.ProductID)
}

// InvalidTransitionError indicates a status change the state machine forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// Item is an immutable snapshot of a cart line at the moment of purchase.
// Name, SKU, Price and LineTotal are frozen copies; they are never recomputed
// from the live product, so history survives later product edits.
type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	VendorID  *int64
	Name      string
	SKU       string
	Price     decimal.Decimal
	Quantity  int
	LineTotal decimal.Decimal
}

// HistoryEntry is one row of the append-only status audit log.
type HistoryEntry struct {
	ID        int64
	OrderID   int64
	Status    Status
	ChangedBy *int64
	Note      string
	ChangedAt time.Time
}

// Order is the aggregate root created once per checkout attempt.
type Order struct {
	ID          int64
	UserID      int64
	OrderNumber string

	Status        Status
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus

	// Shipping snapshot, copied from the checkout request rather than
	// referencing the live user profile.
	ShippingName string
	Phone        string
	Address      string
	City         string
	Note         string

	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	ShippingFee   decimal.Decimal
	Total         decimal.Decimal

	// StockReserved records whether this order currently holds a stock
	// reservation. Set at checkout, cleared when a cancellation or refund
	// releases the reserved quantities.
	StockReserved bool

	// One-time payment confirmation code state (demo gateway channel).
	OTPChannel   string
	OTPPhone     string
	OTPCode      string
	OTPCreatedAt *time.Time
	OTPUsed      bool

	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	Items   []Item
	History []HistoryEntry
}

// ReservationLines returns the (product, quantity) pairs frozen in the order
// items, used to release or idempotently re-acquire the stock reservation.
func (o *Order) ReservationLines() []inventory.Line {
	lines := make([]inventory.Line, len(o.Items))
	for i, it := range o.Items {
		lines[i] = inventory.Line{ProductID: it.ProductID, Qty: it.Quantity}
	}
	return lines
}

// Repository defines persistence for the order aggregate.
type Repository interface {
	// Create inserts the order and its item snapshots, then assigns the
	// sequential order number derived from the generated id. Both steps run
	// against the caller's transaction.
	Create(ctx context.Context, o *Order) error

	// GetByID loads an order with items and history. Returns ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Order, error)

	// GetByIDForUpdate loads an order with items under a row-level exclusive
	// lock, serializing concurrent finalize/cancel attempts. Must be called
	// inside a transaction.
	GetByIDForUpdate(ctx context.Context, id int64) (*Order, error)

	// ListByUser returns a user's orders, newest first, with items and history.
	ListByUser(ctx context.Context, userID int64) ([]Order, error)

	SetStatus(ctx context.Context, id int64, status Status) error
	SetPaymentStatus(ctx context.Context, id int64, ps PaymentStatus, paidAt *time.Time) error
	SetPaymentMethod(ctx context.Context, id int64, m PaymentMethod) error
	SetStockReserved(ctx context.Context, id int64, reserved bool) error

	// InsertHistory appends one audit entry. Entries are never updated or
	// deleted.
	InsertHistory(ctx context.Context, e *HistoryEntry) error

	SetOTP(ctx context.Context, id int64, channel, phone, code string, createdAt time.Time) error
	MarkOTPUsed(ctx context.Context, id int64) error
}

// Transactor runs a function inside a database transaction. Everything the
// function does through repositories joins the same transaction; any error
// rolls the whole unit of work back.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

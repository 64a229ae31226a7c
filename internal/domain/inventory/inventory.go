// Package inventory defines the single chokepoint for product stock writes.
//
// Every stock mutation — checkout reservation, cancellation release, vendor
// adjustment — goes through the Ledger so the non-negative stock invariant is
// enforced in exactly one place, under a per-product exclusive lock.
package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/urbancart/api/internal/domain/product"
)

// ErrNegativeStock is returned when an adjustment would drive stock below zero.
var ErrNegativeStock = errors.New("stock cannot go negative")

// Line is a (product, quantity) pair to reserve or release.
type Line struct {
	ProductID int64
	Qty       int
}

// UnavailableError indicates a referenced product is missing or inactive.
type UnavailableError struct {
	ProductID int64
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("product not available (id=%d)", e.ProductID)
}

// InsufficientStockError reports which product lacks stock and how many
// units are actually available, so callers can surface an actionable message.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %s: requested %d, available %d", e.Name, e.Requested, e.Available)
}

// Ledger owns all writes to product stock.
//
// Reserve and Release must be called inside an enclosing transaction (they
// take row locks that only mean something while the transaction is open).
// Adjust and SetStock open their own transaction when none is active.
type Ledger interface {
	// Reserve locks every referenced product row in ascending id order,
	// re-validates the active flag and current stock under the lock, and
	// decrements all stocks atomically. On any failure no stock is mutated.
	// It returns the locked product rows in line order, giving the caller
	// authoritative prices read under the same lock.
	Reserve(ctx context.Context, lines []Line) ([]product.Product, error)

	// Release returns previously reserved quantities to stock.
	Release(ctx context.Context, lines []Line) error

	// Adjust applies a signed delta to a product's stock and returns the new
	// value. Fails with ErrNegativeStock when the result would be negative.
	Adjust(ctx context.Context, productID int64, delta int) (int, error)

	// SetStock overwrites a product's stock with an absolute non-negative value.
	SetStock(ctx context.Context, productID int64, stock int) (int, error)
}

package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
//
// Stock is mutated only through the inventory ledger; reading it here gives
// a point-in-time value that must be re-validated under lock before any
// decrement.
type Product struct {
	ID       int64
	VendorID *int64
	Name     string
	SKU      string
	Price    decimal.Decimal
	Stock    int
	Active   bool
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
}

package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/urbancart/api/internal/domain/inventory"
	"github.com/urbancart/api/internal/domain/product"
)

const (
	// Rows are locked in ascending id order at every call site; a stable
	// acquisition order across concurrent checkouts sharing products is what
	// prevents circular-wait deadlocks.
	lockProductsSQL = `SELECT id, vendor_id, name, sku, price, stock, is_active
	FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	decrementStockSQL = `UPDATE products SET stock = stock - $1, updated_at = now() WHERE id = $2`
	incrementStockSQL = `UPDATE products SET stock = stock + $1, updated_at = now() WHERE id = $2`

	lockProductStockSQL = `SELECT stock FROM products WHERE id = $1 FOR UPDATE`
	setStockSQL         = `UPDATE products SET stock = $1, updated_at = now() WHERE id = $2`
)

var errNoTransaction = errors.New("inventory: reservation requires an open transaction")

var _ inventory.Ledger = (*InventoryLedger)(nil)

// InventoryLedger implements inventory.Ledger with row-level exclusive locks.
// All stock writes in the system funnel through this type.
type InventoryLedger struct {
	db *DB
}

// NewInventoryLedger returns an InventoryLedger that uses the given DB.
func NewInventoryLedger(db *DB) *InventoryLedger {
	return &InventoryLedger{db: db}
}

// Reserve implements the all-or-nothing reservation: lock every referenced
// row in ascending id order, re-validate active flag and stock under the
// lock, and only then decrement. The row locks are only meaningful while the
// enclosing transaction is open, so calling this without one is a programming
// error.
func (l *InventoryLedger) Reserve(ctx context.Context, lines []inventory.Line) ([]product.Product, error) {
	if !l.db.inTx(ctx) {
		return nil, errNoTransaction
	}

	locked, err := l.lockProducts(ctx, lines)
	if err != nil {
		return nil, err
	}

	// Validate every line before mutating anything.
	products := make([]product.Product, len(lines))
	for i, line := range lines {
		p, ok := locked[line.ProductID]
		if !ok || !p.Active {
			return nil, &inventory.UnavailableError{ProductID: line.ProductID}
		}
		if p.Stock < line.Qty {
			return nil, &inventory.InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: line.Qty,
				Available: p.Stock,
			}
		}
		products[i] = p
	}

	for _, line := range lines {
		if _, err := l.db.q(ctx).Exec(ctx, decrementStockSQL, line.Qty, line.ProductID); err != nil {
			return nil, fmt.Errorf("decrementing stock for product %d: %w", line.ProductID, err)
		}
	}
	return products, nil
}

// Release adds previously reserved quantities back to stock.
func (l *InventoryLedger) Release(ctx context.Context, lines []inventory.Line) error {
	if !l.db.inTx(ctx) {
		return errNoTransaction
	}

	// Same lock ordering as Reserve.
	if _, err := l.lockProducts(ctx, lines); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := l.db.q(ctx).Exec(ctx, incrementStockSQL, line.Qty, line.ProductID); err != nil {
			return fmt.Errorf("incrementing stock for product %d: %w", line.ProductID, err)
		}
	}
	return nil
}

// Adjust applies a signed delta under the product's row lock, rejecting a
// negative result before any write. Opens its own transaction when the
// caller has none.
func (l *InventoryLedger) Adjust(ctx context.Context, productID int64, delta int) (int, error) {
	var newStock int
	err := l.db.InTx(ctx, func(ctx context.Context) error {
		current, err := l.lockStock(ctx, productID)
		if err != nil {
			return err
		}
		next := current + delta
		if next < 0 {
			return inventory.ErrNegativeStock
		}
		if _, err := l.db.q(ctx).Exec(ctx, setStockSQL, next, productID); err != nil {
			return fmt.Errorf("adjusting stock for product %d: %w", productID, err)
		}
		newStock = next
		return nil
	})
	return newStock, err
}

// SetStock overwrites a product's stock with an absolute value.
func (l *InventoryLedger) SetStock(ctx context.Context, productID int64, stock int) (int, error) {
	if stock < 0 {
		return 0, inventory.ErrNegativeStock
	}
	err := l.db.InTx(ctx, func(ctx context.Context) error {
		if _, err := l.lockStock(ctx, productID); err != nil {
			return err
		}
		if _, err := l.db.q(ctx).Exec(ctx, setStockSQL, stock, productID); err != nil {
			return fmt.Errorf("setting stock for product %d: %w", productID, err)
		}
		return nil
	})
	return stock, err
}

// lockProducts acquires FOR UPDATE locks on the deduplicated product ids of
// lines, in ascending order, and returns the locked rows keyed by id.
func (l *InventoryLedger) lockProducts(ctx context.Context, lines []inventory.Line) (map[int64]product.Product, error) {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows, err := l.db.q(ctx).Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}
	defer rows.Close()

	locked := make(map[int64]product.Product, len(ids))
	for rows.Next() {
		var p product.Product
		if err := rows.Scan(&p.ID, &p.VendorID, &p.Name, &p.SKU, &p.Price, &p.Stock, &p.Active); err != nil {
			return nil, fmt.Errorf("scanning locked product: %w", err)
		}
		locked[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating locked products: %w", err)
	}
	return locked, nil
}

// lockStock locks a single product row and returns its current stock.
func (l *InventoryLedger) lockStock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := l.db.q(ctx).QueryRow(ctx, lockProductStockSQL, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, product.ErrNotFound
		}
		return 0, fmt.Errorf("locking product %d: %w", productID, err)
	}
	return stock, nil
}

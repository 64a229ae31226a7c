package postgres

import (
	"context"
	"fmt"

	"github.com/urbancart/api/internal/domain/cart"
)

const (
	ensureCartSQL = `INSERT INTO carts (user_id) VALUES ($1)
	ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
	RETURNING id`

	getCartLinesSQL = `SELECT ci.id, ci.product_id, ci.qty
	FROM cart_items ci
	JOIN carts c ON c.id = ci.cart_id
	WHERE c.user_id = $1
	ORDER BY ci.id`

	upsertCartLineSQL = `INSERT INTO cart_items (cart_id, product_id, qty)
	VALUES ($1, $2, $3)
	ON CONFLICT (cart_id, product_id) DO UPDATE SET qty = EXCLUDED.qty`

	mergeCartLineSQL = `INSERT INTO cart_items (cart_id, product_id, qty)
	VALUES ($1, $2, $3)
	ON CONFLICT (cart_id, product_id) DO UPDATE SET qty = cart_items.qty + EXCLUDED.qty`

	removeCartLineSQL = `DELETE FROM cart_items ci USING carts c
	WHERE ci.cart_id = c.id AND c.user_id = $1 AND ci.id = $2`

	clearCartSQL = `DELETE FROM cart_items ci USING carts c
	WHERE ci.cart_id = c.id AND c.user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Carts are
// created implicitly on first access.
type CartRepository struct {
	db *DB
}

// NewCartRepository returns a CartRepository that uses the given DB.
func NewCartRepository(db *DB) *CartRepository {
	return &CartRepository{db: db}
}

// Get returns the user's cart with its lines, creating the cart row if the
// user has none yet.
func (r *CartRepository) Get(ctx context.Context, userID int64) (*cart.Cart, error) {
	id, err := r.ensure(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.q(ctx).Query(ctx, getCartLinesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("reading cart lines: %w", err)
	}
	defer rows.Close()

	c := &cart.Cart{ID: id, UserID: userID}
	for rows.Next() {
		var line cart.Line
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Qty); err != nil {
			return nil, fmt.Errorf("scanning cart line: %w", err)
		}
		c.Lines = append(c.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cart lines: %w", err)
	}
	return c, nil
}

// UpsertLine sets the quantity for a product in the user's cart, inserting
// the line when absent, and returns the updated cart.
func (r *CartRepository) UpsertLine(ctx context.Context, userID, productID int64, qty int) (*cart.Cart, error) {
	cartID, err := r.ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := r.db.q(ctx).Exec(ctx, upsertCartLineSQL, cartID, productID, qty); err != nil {
		return nil, fmt.Errorf("upserting cart line: %w", err)
	}
	return r.Get(ctx, userID)
}

// RemoveLine deletes one line from the user's cart. Removing an unknown line
// is a no-op.
func (r *CartRepository) RemoveLine(ctx context.Context, userID, lineID int64) error {
	if _, err := r.db.q(ctx).Exec(ctx, removeCartLineSQL, userID, lineID); err != nil {
		return fmt.Errorf("removing cart line: %w", err)
	}
	return nil
}

// Merge folds guest-cart lines into the user's cart, summing quantities for
// products already present.
func (r *CartRepository) Merge(ctx context.Context, userID int64, lines []cart.MergeLine) (*cart.Cart, error) {
	cartID, err := r.ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		qty := line.Qty
		if qty < 1 {
			qty = 1
		}
		if _, err := r.db.q(ctx).Exec(ctx, mergeCartLineSQL, cartID, line.ProductID, qty); err != nil {
			return nil, fmt.Errorf("merging cart line for product %d: %w", line.ProductID, err)
		}
	}
	return r.Get(ctx, userID)
}

// Clear removes all lines from the user's cart. Called only when an order has
// been finalized from those lines.
func (r *CartRepository) Clear(ctx context.Context, userID int64) error {
	if _, err := r.db.q(ctx).Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}

func (r *CartRepository) ensure(ctx context.Context, userID int64) (int64, error) {
	var id int64
	if err := r.db.q(ctx).QueryRow(ctx, ensureCartSQL, userID).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensuring cart for user %d: %w", userID, err)
	}
	return id, nil
}

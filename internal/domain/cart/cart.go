package cart

import "context"

// Line is a single product entry in a user's cart.
type Line struct {
	ID        int64
	ProductID int64
	Qty       int
}

// Cart holds the current cart contents for one user. Carts are created
// implicitly on first access.
type Cart struct {
	ID     int64
	UserID int64
	Lines  []Line
}

// MergeLine is a guest-cart entry merged into the server-side cart on login.
type MergeLine struct {
	ProductID int64
	Qty       int
}

// Repository defines cart persistence. Checkout reads lines through Get and
// destroys them through Clear only after an order is finalized from them.
type Repository interface {
	Get(ctx context.Context, userID int64) (*Cart, error)
	UpsertLine(ctx context.Context, userID, productID int64, qty int) (*Cart, error)
	RemoveLine(ctx context.Context, userID, lineID int64) error
	Merge(ctx context.Context, userID int64, lines []MergeLine) (*Cart, error)
	Clear(ctx context.Context, userID int64) error
}

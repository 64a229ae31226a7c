package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/urbancart/api/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (
		user_id, status, payment_method, payment_status,
		shipping_name, phone, address, city, note,
		subtotal, discount_total, shipping_fee, total, stock_reserved
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING id, created_at, updated_at`

	setOrderNumberSQL = `UPDATE orders SET order_number = $1 WHERE id = $2`

	insertOrderItemSQL = `INSERT INTO order_items (
		order_id, product_id, vendor_id, name, sku, price, quantity, line_total
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id`

	orderColumns = `id, user_id, order_number, status, payment_method, payment_status,
		shipping_name, phone, address, city, note,
		subtotal, discount_total, shipping_fee, total, stock_reserved,
		otp_channel, otp_phone, otp_code, otp_created_at, otp_used,
		paid_at, created_at, updated_at`

	getOrderSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderForUpdateSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	listOrdersByUserSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	getOrderItemsSQL = `SELECT id, order_id, product_id, vendor_id, name, sku, price, quantity, line_total
	FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	getOrderHistorySQL = `SELECT id, order_id, status, changed_by, note, changed_at
	FROM order_status_history WHERE order_id = ANY($1) ORDER BY changed_at, id`

	setOrderStatusSQL        = `UPDATE orders SET status = $1, updated_at = now() WHERE id = $2`
	setOrderPaymentStatusSQL = `UPDATE orders SET payment_status = $1, paid_at = COALESCE($2, paid_at), updated_at = now() WHERE id = $3`
	setOrderPaymentMethodSQL = `UPDATE orders SET payment_method = $1, updated_at = now() WHERE id = $2`
	setOrderStockReservedSQL = `UPDATE orders SET stock_reserved = $1, updated_at = now() WHERE id = $2`

	insertHistorySQL = `INSERT INTO order_status_history (order_id, status, changed_by, note, changed_at)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`

	setOrderOTPSQL = `UPDATE orders SET otp_channel = $1, otp_phone = $2, otp_code = $3,
		otp_created_at = $4, otp_used = FALSE, updated_at = now() WHERE id = $5`
	markOTPUsedSQL = `UPDATE orders SET otp_used = TRUE, updated_at = now() WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository that uses the given DB.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order row and its item snapshots, then assigns the
// order number in a second statement of the same transaction: the number
// embeds the generated numeric id.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	q := r.db.q(ctx)

	err := q.QueryRow(ctx, insertOrderSQL,
		o.UserID, o.Status, o.PaymentMethod, o.PaymentStatus,
		o.ShippingName, o.Phone, o.Address, o.City, o.Note,
		o.Subtotal, o.DiscountTotal, o.ShippingFee, o.Total, o.StockReserved,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	o.OrderNumber = fmt.Sprintf("UC-%06d", o.ID)
	if _, err := q.Exec(ctx, setOrderNumberSQL, o.OrderNumber, o.ID); err != nil {
		return fmt.Errorf("assigning order number: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err := q.QueryRow(ctx, insertOrderItemSQL,
			o.ID, it.ProductID, it.VendorID, it.Name, it.SKU, it.Price, it.Quantity, it.LineTotal,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("inserting order item for product %d: %w", it.ProductID, err)
		}
	}
	return nil
}

// GetByID loads an order with items and history.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

// GetByIDForUpdate loads an order with items under a row-level exclusive lock.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	return r.getOne(ctx, getOrderForUpdateSQL, id)
}

// ListByUser returns a user's orders, newest first, fully loaded.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := r.db.q(ctx).Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}
	if err := r.loadChildren(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) SetStatus(ctx context.Context, id int64, status order.Status) error {
	return r.exec(ctx, "set order status", setOrderStatusSQL, status, id)
}

func (r *OrderRepository) SetPaymentStatus(ctx context.Context, id int64, ps order.PaymentStatus, paidAt *time.Time) error {
	return r.exec(ctx, "set payment status", setOrderPaymentStatusSQL, ps, paidAt, id)
}

func (r *OrderRepository) SetPaymentMethod(ctx context.Context, id int64, m order.PaymentMethod) error {
	return r.exec(ctx, "set payment method", setOrderPaymentMethodSQL, m, id)
}

func (r *OrderRepository) SetStockReserved(ctx context.Context, id int64, reserved bool) error {
	return r.exec(ctx, "set stock reserved", setOrderStockReservedSQL, reserved, id)
}

// InsertHistory appends one audit entry.
func (r *OrderRepository) InsertHistory(ctx context.Context, e *order.HistoryEntry) error {
	err := r.db.q(ctx).QueryRow(ctx, insertHistorySQL,
		e.OrderID, e.Status, e.ChangedBy, e.Note, e.ChangedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("inserting status history: %w", err)
	}
	return nil
}

func (r *OrderRepository) SetOTP(ctx context.Context, id int64, channel, phone, code string, createdAt time.Time) error {
	return r.exec(ctx, "set otp", setOrderOTPSQL, channel, phone, code, createdAt, id)
}

func (r *OrderRepository) MarkOTPUsed(ctx context.Context, id int64) error {
	return r.exec(ctx, "mark otp used", markOTPUsedSQL, id)
}

func (r *OrderRepository) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.db.q(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) getOne(ctx context.Context, sql string, id int64) (*order.Order, error) {
	row := r.db.q(ctx).QueryRow(ctx, sql, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, err
	}
	orders := []order.Order{*o}
	if err := r.loadChildren(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// loadChildren attaches items and history to orders in two batch queries.
func (r *OrderRepository) loadChildren(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = &orders[i]
	}

	rows, err := r.db.q(ctx).Query(ctx, getOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VendorID,
			&it.Name, &it.SKU, &it.Price, &it.Quantity, &it.LineTotal); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		index[it.OrderID].Items = append(index[it.OrderID].Items, it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating order items: %w", err)
	}

	hrows, err := r.db.q(ctx).Query(ctx, getOrderHistorySQL, ids)
	if err != nil {
		return fmt.Errorf("loading status history: %w", err)
	}
	defer hrows.Close()
	for hrows.Next() {
		var e order.HistoryEntry
		if err := hrows.Scan(&e.ID, &e.OrderID, &e.Status, &e.ChangedBy, &e.Note, &e.ChangedAt); err != nil {
			return fmt.Errorf("scanning status history: %w", err)
		}
		index[e.OrderID].History = append(index[e.OrderID].History, e)
	}
	if err := hrows.Err(); err != nil {
		return fmt.Errorf("iterating status history: %w", err)
	}
	return nil
}

// scanOrder scans the orderColumns projection from a row.
func scanOrder(row pgx.Row) (*order.Order, error) {
	var o order.Order
	var orderNumber *string
	err := row.Scan(
		&o.ID, &o.UserID, &orderNumber, &o.Status, &o.PaymentMethod, &o.PaymentStatus,
		&o.ShippingName, &o.Phone, &o.Address, &o.City, &o.Note,
		&o.Subtotal, &o.DiscountTotal, &o.ShippingFee, &o.Total, &o.StockReserved,
		&o.OTPChannel, &o.OTPPhone, &o.OTPCode, &o.OTPCreatedAt, &o.OTPUsed,
		&o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if orderNumber != nil {
		o.OrderNumber = *orderNumber
	}
	return &o, nil
}

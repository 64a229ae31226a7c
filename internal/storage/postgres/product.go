package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/urbancart/api/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, vendor_id, name, sku, price, stock, is_active
	FROM products WHERE is_active = TRUE ORDER BY id`

	getProductSQL = `SELECT id, vendor_id, name, sku, price, stock, is_active
	FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, vendor_id, name, sku, price, stock, is_active
	FROM products WHERE id = ANY($1) ORDER BY id`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository that uses the given DB.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns all active products ordered by id.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// GetByID returns a single product by its identifier, active or not.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	var p product.Product
	err := r.db.q(ctx).QueryRow(ctx, getProductSQL, id).Scan(
		&p.ID, &p.VendorID, &p.Name, &p.SKU, &p.Price, &p.Stock, &p.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns the products matching ids in one batch query. Missing ids
// are simply absent from the result; callers decide whether that is an error.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

func scanProducts(rows pgx.Rows) ([]product.Product, error) {
	var products []product.Product
	for rows.Next() {
		var p product.Product
		if err := rows.Scan(&p.ID, &p.VendorID, &p.Name, &p.SKU, &p.Price, &p.Stock, &p.Active); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating products: %w", err)
	}
	return products, nil
}

// Command seed-db provisions demo users, bearer tokens, and catalog products
// for local development and integration environments.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/urbancart/api/internal/domain/auth"
	"github.com/urbancart/api/internal/storage/postgres"
)

type productJSON struct {
	Name  string          `json:"name"`
	SKU   string          `json:"sku"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type seedUser struct {
	email string
	name  string
	role  string
	token string
}

func main() {
	var (
		databaseURL  string
		productsFile string
		pepper       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&pepper, "token-pepper", "", "HMAC pepper for token hashing (or URBANCART_TOKEN_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if pepper == "" {
		pepper = os.Getenv("URBANCART_TOKEN_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, pepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	vendorID, err := seedUsers(ctx, pool, pepper)
	if err != nil {
		return errors.Wrap(err, "seed users")
	}

	if err := seedProducts(ctx, pool, productsFile, vendorID); err != nil {
		return errors.Wrap(err, "seed products")
	}

	return nil
}

// seedUsers provisions one account per role plus a ready-to-use bearer token
// each. Tokens are stable demo values; only their hashes reach the database.
func seedUsers(ctx context.Context, pool *pgxpool.Pool, pepper string) (vendorID int64, err error) {
	users := []seedUser{
		{email: "customer@urbancart.example", name: "Demo Customer", role: "customer", token: "demo-customer-token"},
		{email: "vendor@urbancart.example", name: "Demo Vendor", role: "vendor", token: "demo-vendor-token"},
		{email: "admin@urbancart.example", name: "Demo Admin", role: "admin", token: "demo-admin-token"},
	}

	for _, u := range users {
		var id int64
		err := pool.QueryRow(ctx, `
			INSERT INTO users (email, name, role)
			VALUES ($1, $2, $3)
			ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role
			RETURNING id`,
			u.email, u.name, u.role,
		).Scan(&id)
		if err != nil {
			return 0, errors.Wrapf(err, "upsert user %s", u.email)
		}

		if _, err := pool.Exec(ctx, `
			INSERT INTO auth_tokens (user_id, token_hash)
			VALUES ($1, $2)
			ON CONFLICT (token_hash) DO NOTHING`,
			id, auth.HashToken([]byte(pepper), u.token),
		); err != nil {
			return 0, errors.Wrapf(err, "insert token for %s", u.email)
		}

		slog.Info("seeded user", slog.String("email", u.email), slog.String("role", u.role))

		if u.role == "vendor" {
			vendorID = id
		}
	}
	return vendorID, nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string, vendorID int64) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, p := range products {
		g.Go(func() error {
			if _, err := pool.Exec(ctx, `
				INSERT INTO products (vendor_id, name, sku, price, stock, active)
				VALUES ($1, $2, $3, $4, $5, TRUE)
				ON CONFLICT (sku) DO UPDATE
				SET name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock`,
				vendorID, p.Name, p.SKU, p.Price, p.Stock,
			); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.SKU)
			}
			slog.Info("upserted product", slog.String("sku", p.SKU), slog.String("name", p.Name))
			return nil
		})
	}
	return g.Wait()
}

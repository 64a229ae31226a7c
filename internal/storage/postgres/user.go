package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/urbancart/api/internal/domain/auth"
	"github.com/urbancart/api/internal/domain/user"
)

const (
	getUserByIDSQL = `SELECT id, email, name, role FROM users WHERE id = $1`

	getUserByTokenHashSQL = `SELECT u.id, u.email, u.name, u.role
	FROM auth_tokens t
	JOIN users u ON u.id = t.user_id
	WHERE t.token_hash = $1`
)

var (
	_ user.Repository = (*UserRepository)(nil)
	_ auth.Repository = (*UserRepository)(nil)
)

// ErrUserNotFound is returned when a user id does not exist.
var ErrUserNotFound = errors.New("user not found")

// UserRepository provides principal lookups backed by PostgreSQL. It serves
// both the user.Repository and auth.Repository contracts.
type UserRepository struct {
	db *DB
}

// NewUserRepository returns a UserRepository that uses the given DB.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var u user.User
	err := r.db.q(ctx).QueryRow(ctx, getUserByIDSQL, id).Scan(&u.ID, &u.Email, &u.Name, &u.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	return &u, nil
}

// FindUserByTokenHash resolves a bearer token hash to its principal.
func (r *UserRepository) FindUserByTokenHash(ctx context.Context, hash string) (*user.User, error) {
	var u user.User
	err := r.db.q(ctx).QueryRow(ctx, getUserByTokenHashSQL, hash).Scan(&u.ID, &u.Email, &u.Name, &u.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrTokenNotFound
		}
		return nil, fmt.Errorf("finding user by token hash: %w", err)
	}
	return &u, nil
}

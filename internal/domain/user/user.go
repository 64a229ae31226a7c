// Package user holds the authenticated principal model shared across the API.
package user

import "context"

// Role is the closed set of principal roles. Authorization decisions switch
// exhaustively over this type instead of probing free-form attributes.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleVendor, RoleAdmin:
		return true
	}
	return false
}

// CanManageOrders reports whether the role may drive order status transitions.
func (r Role) CanManageOrders() bool {
	switch r {
	case RoleVendor, RoleAdmin:
		return true
	case RoleCustomer:
		return false
	}
	return false
}

// User is an authenticated principal.
type User struct {
	ID    int64
	Email string
	Name  string
	Role  Role
}

// Repository provides principal lookups.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
}

package user

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Role gates which storefront surfaces a user may reach.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleCustomer Role = "customer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleCustomer:
		return true
	}
	return false
}

// IsStaff reports whether r may use the back-office.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleManager
}

// User is the authenticated identity as returned by the API.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// Account is a user as seen by staff in the back-office directory.
type Account struct {
	User
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Filled locally until the API reports them.
	OrdersCount int             `json:"-"`
	TotalSpent  decimal.Decimal `json:"-"`
	LastActive  time.Time       `json:"-"`
}

// Gateway is the staff user-administration API.
type Gateway interface {
	List(ctx context.Context) ([]Account, error)
	UpdateRole(ctx context.Context, id int64, role Role) error
}

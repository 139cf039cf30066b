package domain

import "fmt"

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleVendor   Role = "VENDOR"
	RoleCustomer Role = "CUSTOMER"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleVendor, RoleCustomer:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrUnauthorized, s)
	}
}

// Actor is the authenticated caller as reported by the auth layer.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Owns reports whether the actor may drive the vendor side of the order's lifecycle.
func (a Actor) Owns(o *Order) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleVendor:
		return o.VendorID == a.ID
	default:
		return false
	}
}

// Participates reports whether the actor is the order's customer or may own it.
func (a Actor) Participates(o *Order) bool {
	if a.Owns(o) {
		return true
	}
	return a.Role == RoleCustomer && o.CustomerID == a.ID
}

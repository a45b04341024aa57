package domain

import "time"

// Role is the sole authorization dimension. Admin is authorized for
// every operation.
type Role string

const (
	RoleSales   Role = "Sales"
	RoleOps     Role = "Ops"
	RoleFinance Role = "Finance"
	RoleAdmin   Role = "Admin"
)

// User is a member of one of the four functional teams.
// PasswordHash is never exposed outside the persistence layer.
type User struct {
	ID           string
	Name         string
	Email        string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// Actor identifies the caller of an engine operation, resolved by an
// external identity layer and passed explicitly into every operation.
type Actor struct {
	ID   string
	Role Role
}

// Allowed reports whether the actor's role is in the allowed set.
// Admin is a superset role and always passes.
func (a Actor) Allowed(roles ...Role) bool {
	if a.Role == RoleAdmin {
		return true
	}
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

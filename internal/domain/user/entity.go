package user

import (
	"time"

	"github.com/google/uuid"
)

// Role mirrors the role claim carried in access tokens.
type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleMerchant Role = "merchant"
	RoleAdmin    Role = "admin"
)

// User is the local projection of an identity-service account. Every user owns
// exactly one wallet, created in the same transaction.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Summary is the identity shown to a merchant confirming a scan.
type Summary struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
}

func (u *User) Summary() Summary {
	return Summary{ID: u.ID, FullName: u.FullName, Email: u.Email}
}

// IsValidRole checks if role is one the ledger knows about
func IsValidRole(role string) bool {
	switch Role(role) {
	case RoleCitizen, RoleMerchant, RoleAdmin:
		return true
	}
	return false
}

package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// UserStatus is the lifecycle state of an account. Accounts are never hard deleted.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// User represents the account.
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	Role      Role
	Status    UserStatus
	Teams     []uuid.UUID // back-reference, mutated only by the membership manager
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive returns true if the account is active.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// InTeam reports whether teamID is in the user's back-reference list.
func (u *User) InTeam(teamID uuid.UUID) bool {
	return slices.Contains(u.Teams, teamID)
}

// Principal returns the authenticated actor view of the user.
func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Role: u.Role, Status: u.Status}
}

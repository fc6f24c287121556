package domain

import "time"

// Role is the access-control category assigned to a user.
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleRider, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// PhoneNumberMaxLength is the E.164 maximum length plus the leading '+'.
const PhoneNumberMaxLength = 16

// User represents a rider, driver or administrator.
type User struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	Email        string
	PhoneNumber  string
	Role         Role
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

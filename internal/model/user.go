package model

import "time"

// Role is the authorization role of a user.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleOrganizer Role = "ORGANIZER"
	RoleClient    Role = "CLIENT"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleOrganizer || r == RoleClient
}

// CanOrganize reports whether users with role r may create events.
func (r Role) CanOrganize() bool {
	return r == RoleOrganizer || r == RoleAdmin
}

// User represents an application user record as stored in the
// `users` table. The json tags are omitted here because these structs
// are used by the repository layer; handlers define their own response
// types.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email (unique, lower-cased)
	PasswordHash string    // users.password_hash (bcrypt)
	FirstName    string    // users.first_name
	LastName     string    // users.last_name
	Phone        string    // users.phone
	Role         Role      // users.role
	Active       bool      // users.is_active
	CreatedAt    time.Time // users.created_at
}

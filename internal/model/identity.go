package model

import "github.com/google/uuid"

// Role is the caller's role as asserted by the identity provider.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
	// RoleSystem is used by background workers acting on the engine.
	RoleSystem Role = "system"
)

// Valid reports whether r is a role the API accepts in tokens.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleInstructor || r == RoleAdmin
}

// Actor identifies the caller of an operation.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

// SystemActor is the identity used by background workers.
var SystemActor = Actor{Role: RoleSystem}

// IsAdmin reports whether the actor has administrative rights.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsStaff reports whether the actor is an instructor or an admin.
func (a Actor) IsStaff() bool { return a.Role == RoleInstructor || a.Role == RoleAdmin }

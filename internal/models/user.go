package models

import "time"

// UserRole is the access level of an operator.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleSecretary  UserRole = "SECRETARIA"
)

var (
	// TransitionOperatorRoles may commit or simulate a transition.
	TransitionOperatorRoles = []UserRole{RoleSuperAdmin, RoleAdmin}
	// TransitionReaderRoles may inspect readiness, runs and the audit trail.
	TransitionReaderRoles = []UserRole{RoleSuperAdmin, RoleAdmin, RoleSecretary}
)

// CanRunTransition reports whether the role is allowed to start a transition.
func (r UserRole) CanRunTransition() bool {
	for _, allowed := range TransitionOperatorRoles {
		if r == allowed {
			return true
		}
	}
	return false
}

// User is an operator of the secretariat.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Info is the public projection of the operator.
func (u *User) Info() UserInfo {
	return UserInfo{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role}
}

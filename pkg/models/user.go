package models

import (
	"slices"
	"time"
)

// User is an account of the tagging backend.
type User struct {
	ID        int        `json:"id"`
	Username  string     `json:"username"`
	Role      string     `json:"role"` // 'admin', 'editor', 'viewer'
	IsActive  bool       `json:"is_active"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// IsAdmin reports whether the user may open administrator-only views.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Role constants for backend accounts.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleAdmin, RoleEditor, RoleViewer}

// IsValidRole checks if the given role is valid.
func IsValidRole(role string) bool {
	return slices.Contains(ValidRoles, role)
}

// CreateUserRequest is the body of POST /admin/users.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

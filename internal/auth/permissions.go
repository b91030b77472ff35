package auth

import "errors"

// Role is an authorisation tier.
type Role string

const (
	// RoleViewer may read the session audit trail.
	RoleViewer Role = "viewer"

	// RoleAdmin may additionally trigger refreshes and shut the gateway down.
	RoleAdmin Role = "admin"
)

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermAuditRead     Permission = "audit:read"
	PermRegistryWrite Permission = "registry:refresh"
	PermSystemAdmin   Permission = "system:admin"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {PermAuditRead},
	RoleAdmin:  {PermAuditRead, PermRegistryWrite, PermSystemAdmin},
}

// Errors returned by token handling.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrUnknownRole  = errors.New("unknown role")
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := rolePermissions[r]; !ok {
		return "", ErrUnknownRole
	}
	return r, nil
}

// HasPermission returns true if role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

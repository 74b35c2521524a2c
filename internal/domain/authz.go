package domain

import (
	"slices"
	"strings"
	"time"
)

// Permission identifies one gated operation class on a view.
type Permission string

// Permission values. Item creation through a view requires PermissionCreate.
const (
	PermissionRead      Permission = "read"
	PermissionCreate    Permission = "create"
	PermissionDelete    Permission = "delete"
	PermissionConfigure Permission = "configure"
)

// validPermissions stores supported permission values.
var validPermissions = []Permission{
	PermissionRead,
	PermissionCreate,
	PermissionDelete,
	PermissionConfigure,
}

// DefaultAuthScope is the process-wide fallback scope used when a view
// carries no dedicated authorization scope.
const DefaultAuthScope = "global"

// Grant authorizes one principal for one permission within one scope.
type Grant struct {
	ID         string
	Scope      string
	Principal  string
	Permission Permission
	CreatedAt  time.Time
}

// NewGrant normalizes and validates one grant row.
func NewGrant(id, scope, principal string, permission Permission, now time.Time) (Grant, error) {
	id = strings.TrimSpace(id)
	scope = strings.TrimSpace(scope)
	principal = NormalizePrincipal(principal)
	if id == "" {
		return Grant{}, ErrInvalidID
	}
	if scope == "" || principal == "" {
		return Grant{}, ErrInvalidName
	}
	permission = NormalizePermission(permission)
	if !IsValidPermission(permission) {
		return Grant{}, ErrInvalidPermission
	}
	return Grant{
		ID:         id,
		Scope:      scope,
		Principal:  principal,
		Permission: permission,
		CreatedAt:  now.UTC(),
	}, nil
}

// NormalizePermission canonicalizes permission values.
func NormalizePermission(p Permission) Permission {
	return Permission(strings.TrimSpace(strings.ToLower(string(p))))
}

// IsValidPermission reports whether a permission value is supported.
func IsValidPermission(p Permission) bool {
	return slices.Contains(validPermissions, NormalizePermission(p))
}

// NormalizePrincipal canonicalizes acting-principal identifiers.
func NormalizePrincipal(principal string) string {
	return strings.TrimSpace(principal)
}

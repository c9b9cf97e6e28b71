package auth

import (
	"strings"

	"jobportal/internal/errcode"
)

// Role is the closed set of account types.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

var (
	ErrUnauthenticated = errcode.Unauthenticated("Access denied. No token provided.")
	ErrForbidden       = errcode.Forbidden("Access denied. Insufficient privileges.")
)

// ParseRole normalises s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEmployee
}

// RequireRole 比较已认证身份与路由所需角色，无副作用。
func RequireRole(claims *Claims, role Role) error {
	if claims == nil {
		return ErrUnauthenticated
	}
	if claims.Role != role {
		return ErrForbidden
	}
	return nil
}

// CanActOn reports whether the caller may modify the account identified by email:
// admins may act on anyone, everyone else only on themselves.
func CanActOn(claims *Claims, email string) bool {
	if claims == nil {
		return false
	}
	if claims.Role == RoleAdmin {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(claims.Email), strings.TrimSpace(email))
}

// Package principal defines the authenticated identity threaded through every
// unit of work: who the caller is, what role they hold, and which school
// (tenant) their data access is confined to.
package principal

import (
	"errors"
	"strings"
)

// Role is the closed set of actor kinds.
type Role string

const (
	// RolePlatformOwner operates the platform itself and is not bound to a
	// tenant. All other roles must carry one.
	RolePlatformOwner Role = "platform_owner"
	RoleSchoolAdmin   Role = "school_admin"
	RoleStaff         Role = "staff"
	RoleParent        Role = "parent"
)

var ErrUnknownRole = errors.New("principal: unknown role")

// ParseRole normalizes and validates a role string.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RolePlatformOwner:
		return RolePlatformOwner, nil
	case RoleSchoolAdmin:
		return RoleSchoolAdmin, nil
	case RoleStaff:
		return RoleStaff, nil
	case RoleParent:
		return RoleParent, nil
	default:
		return "", ErrUnknownRole
	}
}

// Principal is an authenticated actor. SchoolID is empty only for platform
// owners.
type Principal struct {
	Subject  string
	Role     Role
	SchoolID string
}

// Valid reports whether the principal satisfies the tenant-binding invariant.
func (p Principal) Valid() bool {
	if p.Subject == "" {
		return false
	}
	if _, err := ParseRole(string(p.Role)); err != nil {
		return false
	}
	if p.Role == RolePlatformOwner {
		return p.SchoolID == ""
	}
	return p.SchoolID != ""
}

// IsPlatformOwner reports whether tenant scoping is bypassed for this actor.
func (p Principal) IsPlatformOwner() bool {
	return p.Role == RolePlatformOwner
}

// HasRole reports whether the principal's role is in the allowed set.
func (p Principal) HasRole(allowed ...Role) bool {
	for _, r := range allowed {
		if p.Role == r {
			return true
		}
	}
	return false
}

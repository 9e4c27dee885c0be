// Package authz is the authorization gate. Operations declare a Capability;
// Evaluate checks it against the request's authn.Identity before the
// operation's resolver is allowed to run.
package authz

import (
	"fmt"
	"strings"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
)

type capabilityKind int

const (
	kindPublic capabilityKind = iota
	kindAuthenticated
	kindHasRole
	kindMinRole
	kindIsStaff
	kindIsAdmin
	kindAll
)

// Capability is a requirement attached to an operation. Build it with the
// constructors below; the zero value is Public.
type Capability struct {
	kind  capabilityKind
	roles []models.Role
	all   []Capability
}

// Public requires nothing. Login, refresh and guardian OTP use it.
func Public() Capability {
	return Capability{kind: kindPublic}
}

// Authenticated requires a resolved principal
func Authenticated() Capability {
	return Capability{kind: kindAuthenticated}
}

// HasRole requires the principal's role to be one of roles
func HasRole(roles ...models.Role) Capability {
	return Capability{kind: kindHasRole, roles: roles}
}

// MinRole requires the principal's role to rank at or above role
func MinRole(role models.Role) Capability {
	return Capability{kind: kindMinRole, roles: []models.Role{role}}
}

// IsStaff requires the principal's staff flag
func IsStaff() Capability {
	return Capability{kind: kindIsStaff}
}

// IsAdmin requires a staff superuser
func IsAdmin() Capability {
	return Capability{kind: kindIsAdmin}
}

// All requires every capability in caps, checked in order
func All(caps ...Capability) Capability {
	return Capability{kind: kindAll, all: caps}
}

// RequiresAuthentication reports whether anonymous callers are rejected
func (c Capability) RequiresAuthentication() bool {
	if c.kind != kindAll {
		return c.kind != kindPublic
	}
	for _, sub := range c.all {
		if sub.RequiresAuthentication() {
			return true
		}
	}
	return false
}

func (c Capability) String() string {
	switch c.kind {
	case kindPublic:
		return "public"
	case kindAuthenticated:
		return "authenticated"
	case kindHasRole:
		return fmt.Sprintf("has_role(%s)", joinRoles(c.roles))
	case kindMinRole:
		return fmt.Sprintf("min_role(%s)", c.roles[0])
	case kindIsStaff:
		return "is_staff"
	case kindIsAdmin:
		return "is_admin"
	case kindAll:
		parts := make([]string, len(c.all))
		for i, sub := range c.all {
			parts[i] = sub.String()
		}
		return "all(" + strings.Join(parts, ", ") + ")"
	default:
		return "unknown"
	}
}

func joinRoles(roles []models.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return strings.Join(names, ", ")
}

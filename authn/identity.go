// Package authn resolves the credential carried by a request into an Identity.
// Resolution never fails: every problem yields an anonymous identity tagged
// with the reason, and the authorization gate decides what that means.
package authn

import (
	"context"
	"errors"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
	"github.com/Poneaswaran/College-Management-System-Backend/tokens"
)

// Reason explains why a request is anonymous
type Reason string

const (
	// ReasonNone means no credential was presented
	ReasonNone                  Reason = ""
	ReasonTokenMalformed        Reason = "TOKEN_MALFORMED"
	ReasonTokenSignatureInvalid Reason = "TOKEN_SIGNATURE_INVALID"
	ReasonTokenExpired          Reason = "TOKEN_EXPIRED"
	ReasonTokenRevoked          Reason = "TOKEN_REVOKED"
	ReasonTokenWrongKind        Reason = "TOKEN_WRONG_KIND"
	ReasonPrincipalInactive     Reason = "PRINCIPAL_INACTIVE_OR_MISSING"
	ReasonStoreUnavailable      Reason = "STORE_UNAVAILABLE"
)

func (r Reason) String() string {
	if r == ReasonNone {
		return "none"
	}
	return string(r)
}

// ReasonForTokenError maps a tokens verification error to a Reason
func ReasonForTokenError(err error) Reason {
	switch {
	case errors.Is(err, tokens.ErrTokenExpired):
		return ReasonTokenExpired
	case errors.Is(err, tokens.ErrSignatureInvalid):
		return ReasonTokenSignatureInvalid
	case errors.Is(err, tokens.ErrWrongKind):
		return ReasonTokenWrongKind
	default:
		return ReasonTokenMalformed
	}
}

// Identity is the per-request result of authentication. The zero value is
// anonymous with no reason.
type Identity struct {
	principal *models.Principal
	claims    *tokens.ParsedClaims
	reason    Reason
}

// Authenticated builds the identity of a verified principal
func Authenticated(principal *models.Principal, claims *tokens.ParsedClaims) Identity {
	return Identity{principal: principal, claims: claims}
}

// Anonymous builds an unauthenticated identity
func Anonymous(reason Reason) Identity {
	return Identity{reason: reason}
}

// IsAuthenticated reports whether a principal was resolved
func (i Identity) IsAuthenticated() bool {
	return i.principal != nil
}

// Principal returns the resolved principal, or nil when anonymous
func (i Identity) Principal() *models.Principal {
	return i.principal
}

// Claims returns the verified access token claims, or nil when anonymous
func (i Identity) Claims() *tokens.ParsedClaims {
	return i.claims
}

// Reason returns why the identity is anonymous
func (i Identity) Reason() Reason {
	return i.reason
}

// Role returns the principal's current role. Anonymous identities have no role.
func (i Identity) Role() models.Role {
	if i.principal == nil {
		return ""
	}
	return i.principal.Role
}

type identityKey struct{}

// WithIdentity attaches identity to ctx
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// FromContext returns the identity attached to ctx, or an anonymous identity
func FromContext(ctx context.Context) Identity {
	if identity, ok := ctx.Value(identityKey{}).(Identity); ok {
		return identity
	}
	return Anonymous(ReasonNone)
}

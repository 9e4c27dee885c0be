package authz

import (
	"context"
	"fmt"
	"slices"

	"github.com/Poneaswaran/College-Management-System-Backend/authn"
	"github.com/Poneaswaran/College-Management-System-Backend/models"
)

// Code is the stable machine-readable kind of a rejection
type Code string

const (
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeForbidden          Code = "FORBIDDEN"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
)

const (
	MessageAuthenticationRequired = "Authentication required. Please login to access this resource."
	MessageTokenExpired           = "Authentication failed: Token has expired"
	MessageTokenInvalid           = "Authentication failed: Invalid token"
	MessageServiceUnavailable     = "Authentication failed: Authentication service unavailable"
	MessageStaffRequired          = "Staff access required."
	MessageAdminRequired          = "Admin access required."
	MessageInvalidCredentials     = "Invalid credentials"
)

// GateError is a typed rejection. Reason is empty for FORBIDDEN and for
// requests that carried no credential.
type GateError struct {
	Code    Code
	Reason  authn.Reason
	Message string
}

func (e *GateError) Error() string {
	return e.Message
}

// AuthenticationFailure builds the rejection for an anonymous identity with reason
func AuthenticationFailure(reason authn.Reason) *GateError {
	switch reason {
	case authn.ReasonNone:
		return &GateError{Code: CodeUnauthenticated, Message: MessageAuthenticationRequired}
	case authn.ReasonTokenExpired:
		return &GateError{Code: CodeTokenExpired, Reason: reason, Message: MessageTokenExpired}
	case authn.ReasonStoreUnavailable:
		return &GateError{Code: CodeUnauthenticated, Reason: reason, Message: MessageServiceUnavailable}
	default:
		return &GateError{Code: CodeTokenInvalid, Reason: reason, Message: MessageTokenInvalid}
	}
}

// InvalidCredentials is the single rejection for failed logins and OTP checks
func InvalidCredentials() *GateError {
	return &GateError{Code: CodeInvalidCredentials, Message: MessageInvalidCredentials}
}

func forbidden(message string) *GateError {
	return &GateError{Code: CodeForbidden, Message: message}
}

// Evaluate checks capability against identity. Authentication is checked
// before any predicate, so FORBIDDEN is only ever returned to a known principal.
func Evaluate(identity authn.Identity, capability Capability) error {
	if !capability.RequiresAuthentication() {
		return nil
	}
	if !identity.IsAuthenticated() {
		return AuthenticationFailure(identity.Reason())
	}
	if gateErr := check(identity.Principal(), capability); gateErr != nil {
		return gateErr
	}
	return nil
}

func check(p *models.Principal, c Capability) *GateError {
	switch c.kind {
	case kindPublic, kindAuthenticated:
		return nil
	case kindHasRole:
		if slices.Contains(c.roles, p.Role) {
			return nil
		}
		return forbidden("Access denied. Required roles: " + joinRoles(c.roles))
	case kindMinRole:
		if p.Role.AtLeast(c.roles[0]) {
			return nil
		}
		return forbidden(fmt.Sprintf("Access denied. Required role: %s or higher", c.roles[0]))
	case kindIsStaff:
		if p.IsStaff {
			return nil
		}
		return forbidden(MessageStaffRequired)
	case kindIsAdmin:
		if p.IsAdmin() {
			return nil
		}
		return forbidden(MessageAdminRequired)
	case kindAll:
		for _, sub := range c.all {
			if gateErr := check(p, sub); gateErr != nil {
				return gateErr
			}
		}
		return nil
	default:
		return forbidden("Access denied.")
	}
}

// Guard wraps fn so it only runs when the identity in ctx satisfies capability.
// Guards nest: the outer capability is checked first.
func Guard[A, R any](capability Capability, fn func(ctx context.Context, args A) (R, error)) func(ctx context.Context, args A) (R, error) {
	return func(ctx context.Context, args A) (R, error) {
		if err := Evaluate(authn.FromContext(ctx), capability); err != nil {
			var zero R
			return zero, err
		}
		return fn(ctx, args)
	}
}

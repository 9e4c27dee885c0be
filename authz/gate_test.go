package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Poneaswaran/College-Management-System-Backend/authn"
	"github.com/Poneaswaran/College-Management-System-Backend/models"
	"github.com/Poneaswaran/College-Management-System-Backend/tokens"
)

func identityFor(role models.Role) authn.Identity {
	p := models.NewPrincipal(role, "hash")
	return authn.Authenticated(p, &tokens.ParsedClaims{PrincipalID: p.ID, Role: role})
}

func requireGateError(t *testing.T, err error) *GateError {
	t.Helper()
	var gateErr *GateError
	require.True(t, errors.As(err, &gateErr), "expected *GateError, got %v", err)
	return gateErr
}

func TestEvaluate_Anonymous(t *testing.T) {
	tests := []struct {
		name    string
		reason  authn.Reason
		code    Code
		message string
	}{
		{"no token", authn.ReasonNone, CodeUnauthenticated, "Authentication required. Please login to access this resource."},
		{"expired", authn.ReasonTokenExpired, CodeTokenExpired, "Authentication failed: Token has expired"},
		{"malformed", authn.ReasonTokenMalformed, CodeTokenInvalid, "Authentication failed: Invalid token"},
		{"bad signature", authn.ReasonTokenSignatureInvalid, CodeTokenInvalid, "Authentication failed: Invalid token"},
		{"wrong kind", authn.ReasonTokenWrongKind, CodeTokenInvalid, "Authentication failed: Invalid token"},
		{"revoked", authn.ReasonTokenRevoked, CodeTokenInvalid, "Authentication failed: Invalid token"},
		{"principal gone", authn.ReasonPrincipalInactive, CodeTokenInvalid, "Authentication failed: Invalid token"},
		{"store down", authn.ReasonStoreUnavailable, CodeUnauthenticated, "Authentication failed: Authentication service unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Anonymous callers get the authentication failure even for a role predicate.
			for _, c := range []Capability{Authenticated(), HasRole(models.RoleAdmin), IsStaff(), IsAdmin()} {
				gateErr := requireGateError(t, Evaluate(authn.Anonymous(tt.reason), c))
				assert.Equal(t, tt.code, gateErr.Code)
				assert.Equal(t, tt.reason, gateErr.Reason)
				assert.Equal(t, tt.message, gateErr.Message)
			}
		})
	}
}

func TestEvaluate_Public(t *testing.T) {
	assert.NoError(t, Evaluate(authn.Anonymous(authn.ReasonNone), Public()))
	assert.NoError(t, Evaluate(authn.Anonymous(authn.ReasonTokenExpired), Public()))
	assert.NoError(t, Evaluate(authn.Anonymous(authn.ReasonNone), Capability{}))
	assert.NoError(t, Evaluate(authn.Anonymous(authn.ReasonNone), All(Public(), Public())))
}

func TestEvaluate_Predicates(t *testing.T) {
	tests := []struct {
		name       string
		role       models.Role
		capability Capability
		allowed    bool
		message    string
	}{
		{"student authenticated", models.RoleStudent, Authenticated(), true, ""},
		{"student in role list", models.RoleStudent, HasRole(models.RoleStudent, models.RoleParent), true, ""},
		{"student not in role list", models.RoleStudent, HasRole(models.RoleFaculty, models.RoleHOD), false, "Access denied. Required roles: FACULTY, HOD"},
		{"student not staff", models.RoleStudent, IsStaff(), false, "Staff access required."},
		{"faculty is staff", models.RoleFaculty, IsStaff(), true, ""},
		{"faculty not admin", models.RoleFaculty, IsAdmin(), false, "Admin access required."},
		{"admin is admin", models.RoleAdmin, IsAdmin(), true, ""},
		{"hod meets faculty floor", models.RoleHOD, MinRole(models.RoleFaculty), true, ""},
		{"parent below student floor", models.RoleParent, MinRole(models.RoleStudent), false, "Access denied. Required role: STUDENT or higher"},
		{"all satisfied", models.RoleHOD, All(Authenticated(), IsStaff(), HasRole(models.RoleHOD)), true, ""},
		{"all stops at first failure", models.RoleStudent, All(IsStaff(), IsAdmin()), false, "Staff access required."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Evaluate(identityFor(tt.role), tt.capability)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			gateErr := requireGateError(t, err)
			assert.Equal(t, CodeForbidden, gateErr.Code)
			assert.Equal(t, tt.message, gateErr.Message)
			assert.Empty(t, gateErr.Reason)
		})
	}
}

func TestEvaluate_AdminNeedsStaffFlag(t *testing.T) {
	p := models.NewPrincipal(models.RoleAdmin, "hash")
	p.IsStaff = false
	err := Evaluate(authn.Authenticated(p, nil), IsAdmin())
	assert.Equal(t, CodeForbidden, requireGateError(t, err).Code)
}

func TestGuard(t *testing.T) {
	calls := 0
	resolver := func(ctx context.Context, args string) (string, error) {
		calls++
		return "ok:" + args, nil
	}
	guarded := Guard(IsStaff(), resolver)

	t.Run("rejected resolver never runs", func(t *testing.T) {
		ctx := authn.WithIdentity(context.Background(), identityFor(models.RoleStudent))
		out, err := guarded(ctx, "x")
		assert.Empty(t, out)
		assert.Equal(t, CodeForbidden, requireGateError(t, err).Code)
		assert.Zero(t, calls)
	})

	t.Run("anonymous context", func(t *testing.T) {
		_, err := guarded(context.Background(), "x")
		assert.Equal(t, CodeUnauthenticated, requireGateError(t, err).Code)
		assert.Zero(t, calls)
	})

	t.Run("nested guards check the outer capability first", func(t *testing.T) {
		nested := Guard(Authenticated(), Guard(IsAdmin(), resolver))
		ctx := authn.WithIdentity(context.Background(), authn.Anonymous(authn.ReasonTokenExpired))
		_, err := nested(ctx, "x")
		assert.Equal(t, CodeTokenExpired, requireGateError(t, err).Code)

		ctx = authn.WithIdentity(context.Background(), identityFor(models.RoleAdmin))
		out, err := nested(ctx, "y")
		require.NoError(t, err)
		assert.Equal(t, "ok:y", out)
		assert.Equal(t, 1, calls)
	})
}

func TestCapability_String(t *testing.T) {
	assert.Equal(t, "public", Public().String())
	assert.Equal(t, "has_role(FACULTY, HOD)", HasRole(models.RoleFaculty, models.RoleHOD).String())
	assert.Equal(t, "all(authenticated, is_staff)", All(Authenticated(), IsStaff()).String())
	assert.True(t, All(Public(), IsAdmin()).RequiresAuthentication())
	assert.False(t, Public().RequiresAuthentication())
}

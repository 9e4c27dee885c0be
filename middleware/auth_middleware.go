package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/authn"
	"github.com/Poneaswaran/College-Management-System-Backend/authz"
	"github.com/Poneaswaran/College-Management-System-Backend/utils"
)

// IdentityResolver turns an Authorization header into an identity
type IdentityResolver interface {
	Resolve(ctx context.Context, authorization string) authn.Identity
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	resolver IdentityResolver
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(resolver IdentityResolver, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
		logger:   logger,
	}
}

// Authenticate resolves the caller and attaches the identity to the request context.
// It never rejects: anonymous requests continue with the failure reason recorded,
// and each operation decides whether it needs an identity.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity := m.resolver.Resolve(ctx, r.Header.Get("Authorization"))

		if identity.IsAuthenticated() {
			m.logger.Debug("request authenticated",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("principal_id", identity.Principal().ID.String()),
				zap.String("role", identity.Role().String()))
		} else if identity.Reason() != authn.ReasonNone {
			m.logger.Debug("request continues anonymously",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("reason", identity.Reason().String()))
		}

		next.ServeHTTP(w, r.WithContext(authn.WithIdentity(ctx, identity)))
	})
}

// RequireCapability rejects requests whose identity does not satisfy capability.
// It must run after Authenticate.
func (m *AuthMiddleware) RequireCapability(capability authz.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity := GetIdentityFromContext(ctx)

			if err := authz.Evaluate(identity, capability); err != nil {
				m.logger.Warn("request denied",
					zap.String("request_id", GetRequestIDFromContext(ctx)),
					zap.String("capability", capability.String()),
					zap.Error(err))
				writeGateError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeGateError(w http.ResponseWriter, err error) {
	var gateErr *authz.GateError
	if !errors.As(err, &gateErr) {
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	status := http.StatusUnauthorized
	if gateErr.Code == authz.CodeForbidden {
		status = http.StatusForbidden
	}

	details := map[string]interface{}{"code": string(gateErr.Code)}
	if gateErr.Reason != authn.ReasonNone {
		details["reason"] = gateErr.Reason.String()
	}
	_ = utils.WriteError(w, status, gateErr.Message, details)
}

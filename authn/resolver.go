package authn

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/internal/observability"
	"github.com/Poneaswaran/College-Management-System-Backend/models"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories"
	"github.com/Poneaswaran/College-Management-System-Backend/tokens"
)

// TokenVerifier verifies signed tokens
type TokenVerifier interface {
	Verify(token string, expected tokens.Kind) (*tokens.ParsedClaims, error)
}

// RevocationChecker answers whether any of the token ids was revoked.
// An error means the answer is unknown.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, ids ...uuid.UUID) (bool, error)
}

// PrincipalLookup loads principals by id
type PrincipalLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error)
}

// Resolver turns an Authorization header into an Identity
type Resolver struct {
	verifier    TokenVerifier
	revocations RevocationChecker
	principals  PrincipalLookup
	logger      *zap.Logger
}

// NewResolver creates a new Resolver
func NewResolver(verifier TokenVerifier, revocations RevocationChecker, principals PrincipalLookup, logger *zap.Logger) *Resolver {
	return &Resolver{
		verifier:    verifier,
		revocations: revocations,
		principals:  principals,
		logger:      logger,
	}
}

// Resolve verifies the bearer credential in authorization. It reads stores but never writes them.
func (r *Resolver) Resolve(ctx context.Context, authorization string) Identity {
	identity := r.resolve(ctx, authorization)
	if identity.IsAuthenticated() {
		observability.IdentityResolutions.WithLabelValues("authenticated").Inc()
	} else {
		observability.IdentityResolutions.WithLabelValues(identity.Reason().String()).Inc()
	}
	return identity
}

func (r *Resolver) resolve(ctx context.Context, authorization string) Identity {
	token, present, ok := ParseBearer(authorization)
	if !present {
		return Anonymous(ReasonNone)
	}
	if !ok {
		return Anonymous(ReasonTokenMalformed)
	}

	claims, err := r.verifier.Verify(token, tokens.KindAccess)
	if err != nil {
		reason := ReasonForTokenError(err)
		r.logger.Debug("access token rejected", zap.String("reason", string(reason)), zap.Error(err))
		return Anonymous(reason)
	}

	revoked, err := r.revocations.IsRevoked(ctx, claims.TokenID, claims.SessionID)
	if err != nil {
		r.logger.Warn("revocation lookup failed, denying request",
			zap.String("principal_id", claims.PrincipalID.String()),
			zap.Error(err))
		return Anonymous(ReasonStoreUnavailable)
	}
	if revoked {
		return Anonymous(ReasonTokenRevoked)
	}

	principal, err := r.principals.GetByID(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Anonymous(ReasonPrincipalInactive)
		}
		r.logger.Warn("principal lookup failed, denying request",
			zap.String("principal_id", claims.PrincipalID.String()),
			zap.Error(err))
		return Anonymous(ReasonStoreUnavailable)
	}
	if !principal.IsActive {
		return Anonymous(ReasonPrincipalInactive)
	}

	return Authenticated(principal, claims)
}

// ParseBearer extracts the token from an Authorization header value.
// present is false when the header is empty; ok is false when it is not
// "Bearer <token>" with a single non-empty token.
func ParseBearer(header string) (token string, present, ok bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false, false
	}

	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", true, false
	}
	token = strings.TrimSpace(rest)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", true, false
	}
	return token, true, true
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/authn"
	"github.com/Poneaswaran/College-Management-System-Backend/internal/observability"
	"github.com/Poneaswaran/College-Management-System-Backend/models"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories"
	"github.com/Poneaswaran/College-Management-System-Backend/tokens"
	"github.com/Poneaswaran/College-Management-System-Backend/utils"
)

// dummyPassword is hashed once at startup so that unknown identifiers cost
// the same verification work as wrong passwords.
const dummyPassword = "cms-timing-equaliser"

// PasswordHasher verifies and produces stored password hashes
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}

// TokenCodec issues and decodes signed tokens
type TokenCodec interface {
	Issue(principal *models.Principal, kind tokens.Kind, sessionID uuid.UUID) (*tokens.Token, error)
	Verify(token string, expected tokens.Kind) (*tokens.ParsedClaims, error)
	Inspect(token string) (*tokens.ParsedClaims, error)
	AccessTTL() time.Duration
}

// LoginInput is a credential login request
type LoginInput struct {
	Identifier string      `json:"username" validate:"required,max=255"`
	Password   string      `json:"password" validate:"required,max=1024"`
	Meta       RequestMeta `json:"-"`
}

// LoginResult is a freshly opened session
type LoginResult struct {
	Access    *tokens.Token     `json:"access"`
	Refresh   *tokens.Token     `json:"refresh"`
	Principal *models.Principal `json:"principal"`
}

// RefreshResult carries the new access token. The refresh token is not rotated.
type RefreshResult struct {
	Access *tokens.Token `json:"access"`
}

// SessionService implements login, refresh, logout and logout-all.
// Every write for one principal runs in a transaction holding that principal's row lock.
type SessionService struct {
	repos       *repositories.Repositories
	txMgr       repositories.TransactionManager
	codec       TokenCodec
	hasher      PasswordHasher
	revocations *RevocationService
	logger      *zap.Logger
	opts        options
	dummyHash   string
}

// NewSessionService creates a new SessionService
func NewSessionService(
	repos *repositories.Repositories,
	txMgr repositories.TransactionManager,
	codec TokenCodec,
	hasher PasswordHasher,
	revocations *RevocationService,
	logger *zap.Logger,
	opts ...Option,
) *SessionService {
	s := &SessionService{
		repos:       repos,
		txMgr:       txMgr,
		codec:       codec,
		hasher:      hasher,
		revocations: revocations,
		logger:      logger,
		opts:        buildOptions(opts),
	}
	if h, err := hasher.Hash(dummyPassword); err == nil {
		s.dummyHash = h
	}
	return s
}

// Login verifies credentials and opens a session. Unknown identifiers, wrong
// passwords and inactive accounts all fail with ErrInvalidCredentials.
func (s *SessionService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	input.Identifier = strings.TrimSpace(input.Identifier)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, NewDomainError(ErrorTypeValidation, "username and password are required", err)
	}

	principal, err := s.repos.Principals.GetByIdentifier(ctx, input.Identifier)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, WrapStoreUnavailable("principal lookup failed", err)
		}
		_, _ = s.hasher.Verify(input.Password, s.dummyHash)
		s.loginFailed(ctx, nil, input.Meta, "unknown_identifier")
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(input.Password, principal.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash is unusable",
			zap.String("principal_id", principal.ID.String()),
			zap.Error(err))
	}
	if !ok {
		s.loginFailed(ctx, &principal.ID, input.Meta, "wrong_password")
		return nil, ErrInvalidCredentials
	}
	if !principal.IsActive {
		s.loginFailed(ctx, &principal.ID, input.Meta, "inactive")
		return nil, ErrInvalidCredentials
	}

	result, err := s.OpenSession(ctx, principal.ID, input.Meta)
	if err != nil {
		if IsInvalidCredentialsError(err) {
			s.loginFailed(ctx, &principal.ID, input.Meta, "inactive")
		}
		return nil, err
	}

	if s.hasher.NeedsRehash(principal.PasswordHash) {
		s.upgradeHash(ctx, principal.ID, input.Password)
	}

	observability.SessionEvents.WithLabelValues("login", "success").Inc()
	s.opts.events.Record(ctx, s.opts.event(models.AuthActionLoginSucceeded, input.Meta).
		WithPrincipal(principal.ID).
		WithSession(result.Refresh.SessionID))

	s.logger.Info("login succeeded",
		zap.String("principal_id", principal.ID.String()),
		zap.String("request_id", input.Meta.RequestID))

	return result, nil
}

// OpenSession issues an access and refresh token pair for an already
// authenticated principal and records the session.
func (s *SessionService) OpenSession(ctx context.Context, principalID uuid.UUID, meta RequestMeta) (*LoginResult, error) {
	return WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, _ repositories.Transaction) (*LoginResult, error) {
		principal, err := s.repos.Principals.LockByID(ctx, principalID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, ErrInvalidCredentials
			}
			return nil, WrapStoreUnavailable("lock principal", err)
		}
		if !principal.IsActive {
			return nil, ErrInvalidCredentials
		}

		sessionID := uuid.New()
		refresh, err := s.codec.Issue(principal, tokens.KindRefresh, sessionID)
		if err != nil {
			return nil, WrapInternal("issue refresh token", err)
		}
		access, err := s.codec.Issue(principal, tokens.KindAccess, sessionID)
		if err != nil {
			return nil, WrapInternal("issue access token", err)
		}

		session := models.NewSession(principal.ID, refresh.ExpiresAt).WithClient(meta.IPAddress, meta.UserAgent)
		session.ID = sessionID
		session.CreatedAt = s.opts.now().UTC()
		if err := s.repos.Sessions.Create(ctx, session); err != nil {
			return nil, WrapStoreUnavailable("create session", err)
		}

		return &LoginResult{Access: access, Refresh: refresh, Principal: principal}, nil
	})
}

// Refresh exchanges a live refresh token for a new access token bound to the same session.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (*RefreshResult, error) {
	claims, err := s.codec.Verify(refreshToken, tokens.KindRefresh)
	if err != nil {
		return nil, s.refreshFailed(authn.ReasonForTokenError(err), err)
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		return nil, s.refreshFailed(authn.ReasonStoreUnavailable, err)
	}
	if revoked {
		return nil, s.refreshFailed(authn.ReasonTokenRevoked, nil)
	}

	session, err := s.repos.Sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, s.refreshFailed(authn.ReasonTokenRevoked, err)
		}
		return nil, s.refreshFailed(authn.ReasonStoreUnavailable, err)
	}
	if !session.IsLive(s.opts.now()) || session.PrincipalID != claims.PrincipalID {
		return nil, s.refreshFailed(authn.ReasonTokenRevoked, nil)
	}

	principal, err := s.repos.Principals.GetByID(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, s.refreshFailed(authn.ReasonPrincipalInactive, err)
		}
		return nil, s.refreshFailed(authn.ReasonStoreUnavailable, err)
	}
	if !principal.IsActive {
		return nil, s.refreshFailed(authn.ReasonPrincipalInactive, nil)
	}

	access, err := s.codec.Issue(principal, tokens.KindAccess, session.ID)
	if err != nil {
		return nil, WrapInternal("issue access token", err)
	}

	observability.SessionEvents.WithLabelValues("refresh", "success").Inc()
	s.opts.events.Record(ctx, s.opts.event(models.AuthActionTokenRefreshed, meta).
		WithPrincipal(principal.ID).
		WithSession(session.ID))

	return &RefreshResult{Access: access}, nil
}

// Logout revokes an access or refresh token together with the session it
// belongs to. Expired but authentic tokens are accepted. Repeating a logout succeeds.
func (s *SessionService) Logout(ctx context.Context, token string, meta RequestMeta) error {
	claims, err := s.codec.Inspect(token)
	if err != nil {
		return Unauthenticated(string(authn.ReasonForTokenError(err)), err)
	}
	return s.LogoutClaims(ctx, claims, meta)
}

// LogoutClaims is Logout for a token that has already been verified
func (s *SessionService) LogoutClaims(ctx context.Context, claims *tokens.ParsedClaims, meta RequestMeta) error {
	now := s.opts.now().UTC()

	entries, err := WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, _ repositories.Transaction) ([]*models.RevocationEntry, error) {
		var entries []*models.RevocationEntry
		if claims.TokenID != claims.SessionID {
			entries = append(entries, s.newEntry(claims.TokenID, claims.PrincipalID, claims.ExpiresAt, models.RevocationReasonLogout, now))
		}

		session, err := s.repos.Sessions.GetByID(ctx, claims.SessionID)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			// Purged sessions are past expiry; only a refresh token's own id still needs recording.
			if claims.Kind == tokens.KindRefresh {
				entries = append(entries, s.newEntry(claims.SessionID, claims.PrincipalID, claims.ExpiresAt, models.RevocationReasonLogout, now))
			}
		case err != nil:
			return nil, WrapStoreUnavailable("load session", err)
		default:
			entries = append(entries, s.newEntry(session.ID, session.PrincipalID, s.sessionMarkerExpiry(session), models.RevocationReasonLogout, now))
			if _, err := s.repos.Sessions.MarkRevoked(ctx, []uuid.UUID{session.ID}, now); err != nil {
				return nil, WrapStoreUnavailable("mark session revoked", err)
			}
		}

		if err := s.repos.Revocations.Revoke(ctx, entries...); err != nil {
			return nil, WrapStoreUnavailable("record revocation", err)
		}
		return entries, nil
	})
	if err != nil {
		observability.SessionEvents.WithLabelValues("logout", "error").Inc()
		return err
	}

	s.revocations.Publish(ctx, entries...)

	observability.SessionEvents.WithLabelValues("logout", "success").Inc()
	s.opts.events.Record(ctx, s.opts.event(models.AuthActionLogout, meta).
		WithPrincipal(claims.PrincipalID).
		WithSession(claims.SessionID))

	return nil
}

// LogoutAll revokes every session of principalID that is live now and returns how many were revoked.
// Sessions opened after the principal's row lock is released are not affected.
func (s *SessionService) LogoutAll(ctx context.Context, principalID uuid.UUID, meta RequestMeta) (int, error) {
	n, err := s.revokeAll(ctx, principalID, models.RevocationReasonLogoutAll)
	if err != nil {
		observability.SessionEvents.WithLabelValues("logout_all", "error").Inc()
		return 0, err
	}

	observability.SessionEvents.WithLabelValues("logout_all", "success").Inc()
	s.opts.events.Record(ctx, s.opts.event(models.AuthActionLogoutAll, meta).
		WithPrincipal(principalID).
		WithDetails(map[string]int{"sessions_revoked": n}))

	return n, nil
}

// ForceLogout is LogoutAll performed by an administrator on another principal
func (s *SessionService) ForceLogout(ctx context.Context, principalID, actorID uuid.UUID, meta RequestMeta) (int, error) {
	n, err := s.revokeAll(ctx, principalID, models.RevocationReasonForced)
	if err != nil {
		observability.SessionEvents.WithLabelValues("forced_logout", "error").Inc()
		return 0, err
	}

	observability.SessionEvents.WithLabelValues("forced_logout", "success").Inc()
	s.opts.events.Record(ctx, s.opts.event(models.AuthActionForcedLogout, meta).
		WithPrincipal(principalID).
		WithDetails(map[string]interface{}{"actor_id": actorID.String(), "sessions_revoked": n}))

	s.logger.Info("forced logout",
		zap.String("principal_id", principalID.String()),
		zap.String("actor_id", actorID.String()),
		zap.Int("sessions_revoked", n))

	return n, nil
}

func (s *SessionService) revokeAll(ctx context.Context, principalID uuid.UUID, reason models.RevocationReason) (int, error) {
	now := s.opts.now().UTC()

	entries, err := WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, _ repositories.Transaction) ([]*models.RevocationEntry, error) {
		if _, err := s.repos.Principals.LockByID(ctx, principalID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, ErrPrincipalNotFound
			}
			return nil, WrapStoreUnavailable("lock principal", err)
		}

		live, err := s.repos.Sessions.ListLive(ctx, principalID, now)
		if err != nil {
			return nil, WrapStoreUnavailable("list sessions", err)
		}
		if len(live) == 0 {
			return nil, nil
		}

		entries := make([]*models.RevocationEntry, len(live))
		ids := make([]uuid.UUID, len(live))
		for i, session := range live {
			entries[i] = s.newEntry(session.ID, principalID, s.sessionMarkerExpiry(session), reason, now)
			ids[i] = session.ID
		}

		if err := s.repos.Revocations.Revoke(ctx, entries...); err != nil {
			return nil, WrapStoreUnavailable("record revocations", err)
		}
		if _, err := s.repos.Sessions.MarkRevoked(ctx, ids, now); err != nil {
			return nil, WrapStoreUnavailable("mark sessions revoked", err)
		}
		return entries, nil
	})
	if err != nil {
		return 0, err
	}

	s.revocations.Publish(ctx, entries...)
	return len(entries), nil
}

// ListSessions returns the principal's live sessions, newest first
func (s *SessionService) ListSessions(ctx context.Context, principalID uuid.UUID) ([]*models.Session, error) {
	sessions, err := s.repos.Sessions.ListLive(ctx, principalID, s.opts.now())
	if err != nil {
		return nil, WrapStoreUnavailable("list sessions", err)
	}
	return sessions, nil
}

// History returns the principal's most recent auth events
func (s *SessionService) History(ctx context.Context, principalID uuid.UUID, limit int) ([]*models.AuthEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	events, err := s.repos.AuthEvents.ListByPrincipal(ctx, principalID, limit, 0)
	if err != nil {
		return nil, WrapStoreUnavailable("list auth events", err)
	}
	return events, nil
}

// sessionMarkerExpiry is how long a session's revocation must outlive the session:
// an access token minted just before the session ended is valid for one more access TTL.
func (s *SessionService) sessionMarkerExpiry(session *models.Session) time.Time {
	return session.ExpiresAt.Add(s.codec.AccessTTL())
}

func (s *SessionService) newEntry(tokenID, principalID uuid.UUID, expiresAt time.Time, reason models.RevocationReason, now time.Time) *models.RevocationEntry {
	e := models.NewRevocationEntry(tokenID, principalID, expiresAt, reason)
	e.RevokedAt = now
	return e
}

func (s *SessionService) upgradeHash(ctx context.Context, principalID uuid.UUID, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.repos.Principals.UpdatePasswordHash(ctx, principalID, hash)
	}
	if err != nil {
		s.logger.Warn("password hash upgrade failed",
			zap.String("principal_id", principalID.String()),
			zap.Error(err))
	}
}

func (s *SessionService) loginFailed(ctx context.Context, principalID *uuid.UUID, meta RequestMeta, cause string) {
	observability.SessionEvents.WithLabelValues("login", "failure").Inc()

	event := s.opts.event(models.AuthActionLoginFailed, meta).WithDetails(map[string]string{"cause": cause})
	if principalID != nil {
		event.WithPrincipal(*principalID)
	}
	s.opts.events.Record(ctx, event)

	s.logger.Info("login failed",
		zap.String("cause", cause),
		zap.String("request_id", meta.RequestID))
}

func (s *SessionService) refreshFailed(reason authn.Reason, err error) error {
	observability.SessionEvents.WithLabelValues("refresh", "failure").Inc()
	if reason == authn.ReasonStoreUnavailable {
		s.logger.Warn("refresh denied, store unavailable", zap.Error(err))
	}
	return Unauthenticated(string(reason), err)
}

// String implements fmt.Stringer for log output without secrets
func (in LoginInput) String() string {
	return fmt.Sprintf("LoginInput{Identifier: %q}", in.Identifier)
}

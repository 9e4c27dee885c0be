package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/internal/observability"
	"github.com/Poneaswaran/College-Management-System-Backend/models"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories"
)

// RevocationCache holds positive revocation markers in front of the ledger
type RevocationCache interface {
	MarkRevoked(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	AnyRevoked(ctx context.Context, ids ...uuid.UUID) (bool, error)
}

// RevocationService answers revocation lookups and maintains the ledger.
// The ledger is authoritative; the cache only ever short-circuits a positive answer.
type RevocationService struct {
	repos  *repositories.Repositories
	cache  RevocationCache
	logger *zap.Logger
	opts   options
}

// NewRevocationService creates a new RevocationService. cache may be nil.
func NewRevocationService(repos *repositories.Repositories, cache RevocationCache, logger *zap.Logger, opts ...Option) *RevocationService {
	return &RevocationService{
		repos:  repos,
		cache:  cache,
		logger: logger,
		opts:   buildOptions(opts),
	}
}

// IsRevoked reports whether any of ids has been revoked. A cache failure falls
// through to the ledger; a ledger failure is returned as ErrorTypeStoreUnavailable.
func (s *RevocationService) IsRevoked(ctx context.Context, ids ...uuid.UUID) (bool, error) {
	if s.cache != nil {
		hit, err := s.cache.AnyRevoked(ctx, ids...)
		switch {
		case err != nil:
			s.logger.Warn("revocation cache lookup failed, using ledger", zap.Error(err))
		case hit:
			observability.RevocationLookups.WithLabelValues("cache_hit").Inc()
			return true, nil
		}
	}

	revoked, err := s.repos.Revocations.AnyRevoked(ctx, ids...)
	if err != nil {
		observability.RevocationLookups.WithLabelValues("error").Inc()
		return false, WrapStoreUnavailable("revocation ledger unavailable", err)
	}
	observability.RevocationLookups.WithLabelValues("ledger").Inc()
	return revoked, nil
}

// Publish copies committed ledger entries into the cache. Call it only after
// the transaction that wrote them has committed.
func (s *RevocationService) Publish(ctx context.Context, entries ...*models.RevocationEntry) {
	if s.cache == nil {
		return
	}
	for _, e := range entries {
		if err := s.cache.MarkRevoked(ctx, e.TokenID, e.ExpiresAt); err != nil {
			s.logger.Warn("failed to cache revocation",
				zap.String("token_id", e.TokenID.String()),
				zap.Error(err))
		}
	}
}

// PurgeResult counts rows removed by PurgeExpired
type PurgeResult struct {
	Revocations  int64
	Sessions     int64
	GuardianOTPs int64
}

// PurgeExpired removes ledger entries, sessions and guardian codes whose expiry has passed.
// An expired token is rejected by its signature check, so its entry is no longer needed.
func (s *RevocationService) PurgeExpired(ctx context.Context) (PurgeResult, error) {
	var result PurgeResult
	cutoff := s.opts.now().UTC()

	n, err := s.repos.Revocations.DeleteExpired(ctx, cutoff)
	if err != nil {
		return result, WrapStoreUnavailable("purge revocations", err)
	}
	result.Revocations = n
	observability.PurgedRows.WithLabelValues("revoked_tokens").Add(float64(n))

	n, err = s.repos.Sessions.DeleteExpired(ctx, cutoff)
	if err != nil {
		return result, WrapStoreUnavailable("purge sessions", err)
	}
	result.Sessions = n
	observability.PurgedRows.WithLabelValues("sessions").Add(float64(n))

	n, err = s.repos.GuardianOTPs.DeleteExpired(ctx, cutoff)
	if err != nil {
		return result, WrapStoreUnavailable("purge guardian codes", err)
	}
	result.GuardianOTPs = n
	observability.PurgedRows.WithLabelValues("guardian_login_otps").Add(float64(n))

	s.logger.Info("purged expired credentials",
		zap.Int64("revocations", result.Revocations),
		zap.Int64("sessions", result.Sessions),
		zap.Int64("guardian_otps", result.GuardianOTPs))

	return result, nil
}

// RunPurgeLoop calls PurgeExpired every interval until ctx is cancelled
func (s *RevocationService) RunPurgeLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.PurgeExpired(ctx); err != nil {
				s.logger.Error("purge failed", zap.Error(err))
			}
		}
	}
}

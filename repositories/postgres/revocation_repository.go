package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
)

// RevocationRepository implements repositories.RevocationRepository over the revoked_tokens table
type RevocationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRevocationRepository creates a new revocation repository
func NewRevocationRepository(db *DB, logger *zap.Logger) *RevocationRepository {
	return &RevocationRepository{
		db:     db,
		logger: logger,
	}
}

// Revoke inserts entries; ids already present keep their first entry.
func (r *RevocationRepository) Revoke(ctx context.Context, entries ...*models.RevocationEntry) error {
	query := `
		INSERT INTO revoked_tokens (token_id, principal_id, reason, revoked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_id) DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	for _, e := range entries {
		if _, err := executor.ExecContext(ctx, query,
			e.TokenID,
			e.PrincipalID,
			e.Reason,
			e.RevokedAt,
			e.ExpiresAt,
		); err != nil {
			return fmt.Errorf("failed to revoke token %s: %w", e.TokenID, err)
		}
	}

	r.logger.Debug("tokens revoked", zap.Int("count", len(entries)))
	return nil
}

// AnyRevoked reports whether any of ids has a ledger entry
func (r *RevocationRepository) AnyRevoked(ctx context.Context, ids ...uuid.UUID) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}

	query := `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = ANY($1))`

	executor := GetExecutor(ctx, r.db)
	var revoked bool
	if err := executor.QueryRowContext(ctx, query, pq.Array(uuidStrings(ids))).Scan(&revoked); err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return revoked, nil
}

// DeleteExpired removes entries for tokens that can no longer verify anyway
func (r *RevocationRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revocations: %w", err)
	}
	return result.RowsAffected()
}

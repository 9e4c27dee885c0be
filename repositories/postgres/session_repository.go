package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories"
)

// SessionRepository implements repositories.SessionRepository
type SessionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new session
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (id, principal_id, expires_at, revoked_at, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		s.ID,
		s.PrincipalID,
		s.ExpiresAt,
		s.RevokedAt,
		s.IPAddress,
		s.UserAgent,
		s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	r.logger.Debug("session created",
		zap.String("id", s.ID.String()),
		zap.String("principal_id", s.PrincipalID.String()))
	return nil
}

// GetByID retrieves a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `
		SELECT id, principal_id, expires_at, revoked_at, ip_address, user_agent, created_at
		FROM sessions
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	s := &models.Session{}
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.PrincipalID,
		&s.ExpiresAt,
		&s.RevokedAt,
		&s.IPAddress,
		&s.UserAgent,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: session %s", repositories.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListLive returns the principal's unrevoked, unexpired sessions, newest first
func (r *SessionRepository) ListLive(ctx context.Context, principalID uuid.UUID, now time.Time) ([]*models.Session, error) {
	query := `
		SELECT id, principal_id, expires_at, revoked_at, ip_address, user_agent, created_at
		FROM sessions
		WHERE principal_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, principalID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s := &models.Session{}
		if err := rows.Scan(
			&s.ID,
			&s.PrincipalID,
			&s.ExpiresAt,
			&s.RevokedAt,
			&s.IPAddress,
			&s.UserAgent,
			&s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// MarkRevoked stamps revoked_at on the given sessions that are not revoked yet
func (r *SessionRepository) MarkRevoked(ctx context.Context, ids []uuid.UUID, revokedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `UPDATE sessions SET revoked_at = $2 WHERE id = ANY($1) AND revoked_at IS NULL`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, pq.Array(uuidStrings(ids)), revokedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// DeleteExpired removes sessions that expired before cutoff
func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

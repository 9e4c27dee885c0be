package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
)

// AuthEventRepository implements repositories.AuthEventRepository
type AuthEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuthEventRepository creates a new auth event repository
func NewAuthEventRepository(db *DB, logger *zap.Logger) *AuthEventRepository {
	return &AuthEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new event
func (r *AuthEventRepository) Insert(ctx context.Context, e *models.AuthEvent) error {
	query := `
		INSERT INTO auth_events (
			id, principal_id, action, session_id, details,
			ip_address, user_agent, request_id, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var details interface{}
	if len(e.Details) > 0 {
		details = []byte(e.Details)
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		e.ID,
		e.PrincipalID,
		e.Action,
		e.SessionID,
		details,
		e.IPAddress,
		e.UserAgent,
		e.RequestID,
		e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}

	r.logger.Debug("auth event inserted", zap.String("id", e.ID.String()), zap.String("action", string(e.Action)))
	return nil
}

// ListByPrincipal returns a principal's events, newest first
func (r *AuthEventRepository) ListByPrincipal(ctx context.Context, principalID uuid.UUID, limit, offset int) ([]*models.AuthEvent, error) {
	query := `
		SELECT id, principal_id, action, session_id, COALESCE(details, 'null'::jsonb),
		       ip_address, user_agent, request_id, timestamp
		FROM auth_events
		WHERE principal_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, principalID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuthEvent
	for rows.Next() {
		e := &models.AuthEvent{}
		var details []byte
		if err := rows.Scan(
			&e.ID,
			&e.PrincipalID,
			&e.Action,
			&e.SessionID,
			&details,
			&e.IPAddress,
			&e.UserAgent,
			&e.RequestID,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan auth event: %w", err)
		}
		e.Details = details
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auth events: %w", err)
	}
	return events, nil
}

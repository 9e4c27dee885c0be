package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories"
)

// GuardianOTPRepository implements repositories.GuardianOTPRepository
type GuardianOTPRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewGuardianOTPRepository creates a new guardian OTP repository
func NewGuardianOTPRepository(db *DB, logger *zap.Logger) *GuardianOTPRepository {
	return &GuardianOTPRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new code
func (r *GuardianOTPRepository) Create(ctx context.Context, otp *models.GuardianOTP) error {
	query := `
		INSERT INTO guardian_login_otps (
			id, student_register_number, guardian_id, code_hash, contact,
			created_at, expires_at, used, attempts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		otp.ID,
		otp.StudentRegisterNumber,
		otp.GuardianID,
		otp.CodeHash,
		otp.Contact,
		otp.CreatedAt,
		otp.ExpiresAt,
		otp.Used,
		otp.Attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to create guardian otp: %w", err)
	}
	return nil
}

// GetLatest returns the newest unused code for a student and contact
func (r *GuardianOTPRepository) GetLatest(ctx context.Context, studentRegisterNumber, contact string) (*models.GuardianOTP, error) {
	query := `
		SELECT id, student_register_number, guardian_id, code_hash, contact,
		       created_at, expires_at, used, attempts
		FROM guardian_login_otps
		WHERE LOWER(student_register_number) = LOWER($1) AND contact = $2 AND NOT used
		ORDER BY created_at DESC
		LIMIT 1
	`

	executor := GetExecutor(ctx, r.db)
	otp := &models.GuardianOTP{}
	err := executor.QueryRowContext(ctx, query, studentRegisterNumber, contact).Scan(
		&otp.ID,
		&otp.StudentRegisterNumber,
		&otp.GuardianID,
		&otp.CodeHash,
		&otp.Contact,
		&otp.CreatedAt,
		&otp.ExpiresAt,
		&otp.Used,
		&otp.Attempts,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: guardian otp", repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get guardian otp: %w", err)
	}
	return otp, nil
}

// ConsumeAttempt spends one verification attempt in a single guarded update
func (r *GuardianOTPRepository) ConsumeAttempt(ctx context.Context, id uuid.UUID, maxAttempts int, now time.Time) (int, error) {
	query := `
		UPDATE guardian_login_otps
		SET attempts = attempts + 1
		WHERE id = $1 AND NOT used AND attempts < $2 AND expires_at > $3
		RETURNING attempts
	`

	executor := GetExecutor(ctx, r.db)
	var attempts int
	err := executor.QueryRowContext(ctx, query, id, maxAttempts, now).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: usable otp %s", repositories.ErrNotFound, id)
		}
		return 0, fmt.Errorf("failed to record otp attempt: %w", err)
	}
	return attempts, nil
}

// MarkUsed consumes a code exactly once
func (r *GuardianOTPRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `UPDATE guardian_login_otps SET used = true WHERE id = $1 AND NOT used`, id)
	if err != nil {
		return fmt.Errorf("failed to consume otp: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: unused otp %s", repositories.ErrNotFound, id)
	}
	return nil
}

// DeleteExpired removes codes that expired before cutoff
func (r *GuardianOTPRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM guardian_login_otps WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otps: %w", err)
	}
	return result.RowsAffected()
}

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

const uniqueViolation = "23505"

const principalColumns = `id, email, register_number, password_hash, role, department_id,
		is_staff, is_superuser, is_active, created_at, updated_at`

// PrincipalRepository implements repositories.PrincipalRepository
type PrincipalRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPrincipalRepository creates a new principal repository
func NewPrincipalRepository(db *DB, logger *zap.Logger) *PrincipalRepository {
	return &PrincipalRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new principal
func (r *PrincipalRepository) Create(ctx context.Context, p *models.Principal) error {
	query := `
		INSERT INTO principals (` + principalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		p.ID,
		p.Email,
		p.RegisterNumber,
		p.PasswordHash,
		p.Role,
		p.DepartmentID,
		p.IsStaff,
		p.IsSuperuser,
		p.IsActive,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: principal identifier already in use", repositories.ErrConflict)
		}
		return fmt.Errorf("failed to create principal: %w", err)
	}

	r.logger.Debug("principal created", zap.String("id", p.ID.String()), zap.String("role", p.Role.String()))
	return nil
}

// GetByID retrieves a principal by ID
func (r *PrincipalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIdentifier retrieves a principal by email or register number, case-insensitively
func (r *PrincipalRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Principal, error) {
	query := `
		SELECT ` + principalColumns + `
		FROM principals
		WHERE LOWER(email) = LOWER($1) OR LOWER(register_number) = LOWER($1)
		ORDER BY created_at
		LIMIT 1
	`
	return r.getOne(ctx, query, identifier)
}

// LockByID retrieves a principal with SELECT ... FOR UPDATE.
// It must run inside a transaction for the lock to outlive the statement.
func (r *PrincipalRepository) LockByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// UpdatePasswordHash replaces the stored verifier
func (r *PrincipalRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `UPDATE principals SET password_hash = $2, updated_at = $3 WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: principal %s", repositories.ErrNotFound, id)
	}
	return nil
}

// GetGuardianLink finds the parent linked to a student through the given contact
func (r *PrincipalRepository) GetGuardianLink(ctx context.Context, studentRegisterNumber, contact string) (*models.GuardianLink, error) {
	query := `
		SELECT gl.guardian_id, gl.student_register_number, gl.relationship, gl.contact
		FROM guardian_links gl
		JOIN principals p ON p.id = gl.guardian_id
		WHERE LOWER(gl.student_register_number) = LOWER($1)
		  AND gl.contact = $2
		  AND p.is_active
		LIMIT 1
	`

	executor := GetExecutor(ctx, r.db)
	link := &models.GuardianLink{}
	err := executor.QueryRowContext(ctx, query, studentRegisterNumber, contact).Scan(
		&link.GuardianID,
		&link.StudentRegisterNumber,
		&link.Relationship,
		&link.Contact,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: guardian link for %s", repositories.ErrNotFound, studentRegisterNumber)
		}
		return nil, fmt.Errorf("failed to get guardian link: %w", err)
	}
	return link, nil
}

func (r *PrincipalRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Principal, error) {
	executor := GetExecutor(ctx, r.db)
	p := &models.Principal{}

	err := executor.QueryRowContext(ctx, query, arg).Scan(
		&p.ID,
		&p.Email,
		&p.RegisterNumber,
		&p.PasswordHash,
		&p.Role,
		&p.DepartmentID,
		&p.IsStaff,
		&p.IsSuperuser,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: principal", repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}
	return p, nil
}

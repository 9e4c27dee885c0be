package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
)

// ErrNotFound is wrapped by every repository when the requested row does not exist.
// Any other error means the store itself failed.
var ErrNotFound = errors.New("not found")

// ErrConflict is wrapped when a write violates a uniqueness constraint
var ErrConflict = errors.New("conflict")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Repositories called with the ctx passed to fn run inside the transaction.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// PrincipalRepository handles principal data operations
type PrincipalRepository interface {
	// Create creates a new principal
	Create(ctx context.Context, principal *models.Principal) error

	// GetByID retrieves a principal by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error)

	// GetByIdentifier retrieves a principal by email or register number, case-insensitively
	GetByIdentifier(ctx context.Context, identifier string) (*models.Principal, error)

	// LockByID retrieves a principal and holds a row lock until the surrounding transaction ends.
	// Lifecycle writes for one principal serialise on this lock.
	LockByID(ctx context.Context, id uuid.UUID) (*models.Principal, error)

	// UpdatePasswordHash replaces the stored verifier
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error

	// GetGuardianLink finds the parent linked to a student through the given contact
	GetGuardianLink(ctx context.Context, studentRegisterNumber, contact string) (*models.GuardianLink, error)
}

// SessionRepository handles refresh-token sessions
type SessionRepository interface {
	// Create persists a new session
	Create(ctx context.Context, session *models.Session) error

	// GetByID retrieves a session by ID (the refresh token's jti)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)

	// ListLive returns sessions of a principal that are neither revoked nor expired at now
	ListLive(ctx context.Context, principalID uuid.UUID, now time.Time) ([]*models.Session, error)

	// MarkRevoked stamps revoked_at on the given sessions; already revoked rows are left unchanged
	MarkRevoked(ctx context.Context, ids []uuid.UUID, revokedAt time.Time) (int64, error)

	// DeleteExpired removes sessions that expired before cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// RevocationRepository is the authoritative revocation ledger
type RevocationRepository interface {
	// Revoke records entries. Revoking an id twice is not an error.
	Revoke(ctx context.Context, entries ...*models.RevocationEntry) error

	// AnyRevoked reports whether any of the ids has an entry
	AnyRevoked(ctx context.Context, ids ...uuid.UUID) (bool, error)

	// DeleteExpired removes entries whose expires_at is before cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// GuardianOTPRepository handles guardian one-time codes
type GuardianOTPRepository interface {
	// Create stores a new code
	Create(ctx context.Context, otp *models.GuardianOTP) error

	// GetLatest returns the newest unused code for a student and contact
	GetLatest(ctx context.Context, studentRegisterNumber, contact string) (*models.GuardianOTP, error)

	// ConsumeAttempt spends one verification attempt and returns the new count.
	// It returns ErrNotFound when the code is used, expired at now, or has
	// already spent maxAttempts.
	ConsumeAttempt(ctx context.Context, id uuid.UUID, maxAttempts int, now time.Time) (int, error)

	// MarkUsed consumes a code. It returns ErrNotFound if the code was already used.
	MarkUsed(ctx context.Context, id uuid.UUID) error

	// DeleteExpired removes codes that expired before cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuthEventRepository handles the authentication audit trail
type AuthEventRepository interface {
	// Insert inserts a new event
	Insert(ctx context.Context, event *models.AuthEvent) error

	// ListByPrincipal returns a principal's events, newest first
	ListByPrincipal(ctx context.Context, principalID uuid.UUID, limit, offset int) ([]*models.AuthEvent, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Principals   PrincipalRepository
	Sessions     SessionRepository
	Revocations  RevocationRepository
	GuardianOTPs GuardianOTPRepository
	AuthEvents   AuthEventRepository
}

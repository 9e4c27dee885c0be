package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/config"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return Wrap(db, logger), nil
}

// Wrap adopts an already opened pool. Tests use it with sqlmock.
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// InitSchema creates the credential store tables when they do not exist
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS principals (
			id UUID PRIMARY KEY,
			email VARCHAR(254) UNIQUE,
			register_number VARCHAR(20) UNIQUE,
			password_hash TEXT NOT NULL,
			role VARCHAR(30) NOT NULL,
			department_id UUID,
			is_staff BOOLEAN NOT NULL DEFAULT false,
			is_superuser BOOLEAN NOT NULL DEFAULT false,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (email IS NOT NULL OR register_number IS NOT NULL)
		);

		CREATE TABLE IF NOT EXISTS guardian_links (
			guardian_id UUID NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
			student_register_number VARCHAR(20) NOT NULL,
			relationship VARCHAR(50) NOT NULL,
			contact VARCHAR(254) NOT NULL,
			PRIMARY KEY (guardian_id, student_register_number)
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			principal_id UUID NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ,
			ip_address VARCHAR(45),
			user_agent TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS revoked_tokens (
			token_id UUID PRIMARY KEY,
			principal_id UUID NOT NULL,
			reason VARCHAR(30) NOT NULL,
			revoked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS guardian_login_otps (
			id UUID PRIMARY KEY,
			student_register_number VARCHAR(20) NOT NULL,
			guardian_id UUID NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
			code_hash CHAR(64) NOT NULL,
			contact VARCHAR(254) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ NOT NULL,
			used BOOLEAN NOT NULL DEFAULT false,
			attempts INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS auth_events (
			id UUID PRIMARY KEY,
			principal_id UUID,
			action VARCHAR(50) NOT NULL,
			session_id UUID,
			details JSONB,
			ip_address VARCHAR(45),
			user_agent TEXT,
			request_id VARCHAR(255),
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_email_lower ON principals(LOWER(email));
		CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_register_number_lower ON principals(LOWER(register_number));
		CREATE INDEX IF NOT EXISTS idx_guardian_links_student ON guardian_links(student_register_number);
		CREATE INDEX IF NOT EXISTS idx_sessions_principal_id ON sessions(principal_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
		CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expires_at ON revoked_tokens(expires_at);
		CREATE INDEX IF NOT EXISTS idx_revoked_tokens_principal_id ON revoked_tokens(principal_id);
		CREATE INDEX IF NOT EXISTS idx_guardian_login_otps_lookup ON guardian_login_otps(student_register_number, contact);
		CREATE INDEX IF NOT EXISTS idx_auth_events_principal_id ON auth_events(principal_id);
		CREATE INDEX IF NOT EXISTS idx_auth_events_timestamp ON auth_events(timestamp);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}

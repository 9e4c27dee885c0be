package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return Wrap(sqlDB, zap.NewNop()), mock
}

var principalColumnNames = []string{
	"id", "email", "register_number", "password_hash", "role", "department_id",
	"is_staff", "is_superuser", "is_active", "created_at", "updated_at",
}

func TestPrincipalRepository_GetByIdentifier(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPrincipalRepository(db, zap.NewNop())
	ctx := context.Background()

	t.Run("found by register number", func(t *testing.T) {
		id := uuid.New()
		now := time.Now().UTC()
		mock.ExpectQuery("LOWER\\(register_number\\) = LOWER\\(\\$1\\)").
			WithArgs("reg2025cse0001").
			WillReturnRows(sqlmock.NewRows(principalColumnNames).
				AddRow(id.String(), nil, "REG2025CSE0001", "$argon2id$x", "STUDENT", nil, false, false, true, now, now))

		p, err := repo.GetByIdentifier(ctx, "reg2025cse0001")
		require.NoError(t, err)
		assert.Equal(t, id, p.ID)
		assert.Nil(t, p.Email)
		require.NotNil(t, p.RegisterNumber)
		assert.Equal(t, "REG2025CSE0001", *p.RegisterNumber)
		assert.Equal(t, models.RoleStudent, p.Role)
		assert.True(t, p.IsActive)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("FROM principals").
			WithArgs("ghost@college.edu").
			WillReturnRows(sqlmock.NewRows(principalColumnNames))

		_, err := repo.GetByIdentifier(ctx, "ghost@college.edu")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("store failure is not ErrNotFound", func(t *testing.T) {
		mock.ExpectQuery("FROM principals").
			WithArgs("x").
			WillReturnError(errors.New("connection reset"))

		_, err := repo.GetByIdentifier(ctx, "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, repositories.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrincipalRepository_CreateConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPrincipalRepository(db, zap.NewNop())

	p := models.NewPrincipal(models.RoleFaculty, "hash").WithEmail("dup@college.edu")
	mock.ExpectExec("INSERT INTO principals").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := repo.Create(context.Background(), p)
	assert.ErrorIs(t, err, repositories.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrincipalRepository_LockByIDInTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPrincipalRepository(db, zap.NewNop())
	txMgr := NewTransactionManager(db, zap.NewNop())
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(principalColumnNames).
			AddRow(id.String(), "hod@college.edu", nil, "h", "HOD", nil, true, false, true, now, now))
	mock.ExpectCommit()

	err := txMgr.InTransaction(context.Background(), func(ctx context.Context, _ repositories.Transaction) error {
		p, err := repo.LockByID(ctx, id)
		if err != nil {
			return err
		}
		assert.Equal(t, models.RoleHOD, p.Role)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	txMgr := NewTransactionManager(db, zap.NewNop())
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := txMgr.InTransaction(context.Background(), func(context.Context, repositories.Transaction) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_RejectsNesting(t *testing.T) {
	db, mock := newMockDB(t)
	txMgr := NewTransactionManager(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := txMgr.InTransaction(context.Background(), func(ctx context.Context, _ repositories.Transaction) error {
		return txMgr.InTransaction(ctx, func(context.Context, repositories.Transaction) error { return nil })
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db, zap.NewNop())
	ctx := context.Background()
	principalID := uuid.New()
	now := time.Now().UTC()

	t.Run("create", func(t *testing.T) {
		s := models.NewSession(principalID, now.Add(time.Hour)).WithClient("10.1.1.1", "ua")
		mock.ExpectExec("INSERT INTO sessions").
			WithArgs(s.ID, principalID, s.ExpiresAt, nil, "10.1.1.1", "ua", s.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Create(ctx, s))
	})

	t.Run("list live", func(t *testing.T) {
		a, b := uuid.New(), uuid.New()
		mock.ExpectQuery("revoked_at IS NULL AND expires_at > \\$2").
			WithArgs(principalID, now).
			WillReturnRows(sqlmock.NewRows([]string{"id", "principal_id", "expires_at", "revoked_at", "ip_address", "user_agent", "created_at"}).
				AddRow(a.String(), principalID.String(), now.Add(time.Hour), nil, "", "", now).
				AddRow(b.String(), principalID.String(), now.Add(2*time.Hour), nil, "", "", now))

		sessions, err := repo.ListLive(ctx, principalID, now)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, a, sessions[0].ID)
		assert.Nil(t, sessions[1].RevokedAt)
	})

	t.Run("mark revoked", func(t *testing.T) {
		mock.ExpectExec("UPDATE sessions SET revoked_at").
			WithArgs(sqlmock.AnyArg(), now).
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := repo.MarkRevoked(ctx, []uuid.UUID{uuid.New(), uuid.New()}, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("mark revoked with no ids skips the store", func(t *testing.T) {
		n, err := repo.MarkRevoked(ctx, nil, now)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("get missing", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery("FROM sessions").WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		_, err := repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevocationRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRevocationRepository(db, zap.NewNop())
	ctx := context.Background()

	t.Run("revoke is idempotent at the store", func(t *testing.T) {
		e := models.NewRevocationEntry(uuid.New(), uuid.New(), time.Now().Add(time.Hour), models.RevocationReasonLogout)
		mock.ExpectExec("ON CONFLICT \\(token_id\\) DO NOTHING").
			WithArgs(e.TokenID, e.PrincipalID, e.Reason, e.RevokedAt, e.ExpiresAt).
			WillReturnResult(sqlmock.NewResult(0, 0))
		require.NoError(t, repo.Revoke(ctx, e))
	})

	t.Run("any revoked", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		revoked, err := repo.AnyRevoked(ctx, uuid.New(), uuid.New())
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("ledger failure surfaces", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnError(errors.New("timeout"))

		_, err := repo.AnyRevoked(ctx, uuid.New())
		assert.Error(t, err)
	})

	t.Run("purge", func(t *testing.T) {
		cutoff := time.Now().UTC()
		mock.ExpectExec("DELETE FROM revoked_tokens WHERE expires_at < \\$1").
			WithArgs(cutoff).
			WillReturnResult(sqlmock.NewResult(0, 7))

		n, err := repo.DeleteExpired(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardianOTPRepository_MarkUsedTwice(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGuardianOTPRepository(db, zap.NewNop())
	id := uuid.New()

	mock.ExpectExec("SET used = true").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET used = true").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkUsed(context.Background(), id))
	assert.ErrorIs(t, repo.MarkUsed(context.Background(), id), repositories.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardianOTPRepository_ConsumeAttempt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGuardianOTPRepository(db, zap.NewNop())
	ctx := context.Background()
	id := uuid.New()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	t.Run("attempt left", func(t *testing.T) {
		mock.ExpectQuery("SET attempts = attempts \\+ 1\\s+WHERE id = \\$1 AND NOT used AND attempts < \\$2 AND expires_at > \\$3").
			WithArgs(id, 5, now).
			WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(3))

		n, err := repo.ConsumeAttempt(ctx, id, 5, now)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("cap reached", func(t *testing.T) {
		mock.ExpectQuery("SET attempts = attempts").
			WithArgs(id, 5, now).
			WillReturnRows(sqlmock.NewRows([]string{"attempts"}))

		_, err := repo.ConsumeAttempt(ctx, id, 5, now)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("store error", func(t *testing.T) {
		mock.ExpectQuery("SET attempts = attempts").
			WithArgs(id, 5, now).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.ConsumeAttempt(ctx, id, 5, now)
		require.Error(t, err)
		assert.NotErrorIs(t, err, repositories.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthEventRepository_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuthEventRepository(db, zap.NewNop())

	e := models.NewAuthEvent(models.AuthActionLoginFailed).
		WithRequest("req-9", "127.0.0.1", "ua").
		WithDetails(map[string]string{"identifier": "x"})

	mock.ExpectExec("INSERT INTO auth_events").
		WithArgs(e.ID, nil, e.Action, nil, sqlmock.AnyArg(), "127.0.0.1", "ua", "req-9", e.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

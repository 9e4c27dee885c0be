package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "principal not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "principal not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeStoreUnavailable,
				Message: "revocation ledger unavailable",
				Err:     errors.New("connection reset"),
			},
			wantMsg: "store_unavailable: revocation ledger unavailable (connection reset)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeInvalidCredentials,
				Message: "Invalid credentials",
			},
			wantMsg: "invalid_credentials: Invalid credentials",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
	assert.ErrorIs(t, fmt.Errorf("login: %w", domainErr), baseErr)
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same error type",
			err:    NewDomainError(ErrorTypeInvalidCredentials, "bad password", nil),
			target: ErrInvalidCredentials,
			want:   true,
		},
		{
			name:   "different error type",
			err:    NewDomainError(ErrorTypeValidation, "validation", nil),
			target: ErrInvalidCredentials,
			want:   false,
		},
		{
			name:   "wrapped domain error",
			err:    fmt.Errorf("refresh: %w", Unauthenticated("TOKEN_REVOKED", nil)),
			target: ErrUnauthenticated,
			want:   true,
		},
		{
			name:   "plain error",
			err:    errors.New("plain"),
			target: ErrStoreUnavailable,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeRateLimit, "too many attempts", nil).
		WithDetail("retry_after", 30)

	assert.Equal(t, 30, err.Details["retry_after"])

	var nilDetails DomainError
	nilDetails.WithDetail("k", "v")
	require.NotNil(t, nilDetails.Details)
}

func TestErrorTypeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", ErrPrincipalNotFound, IsNotFoundError},
		{"validation", ErrInvalidInput, IsValidationError},
		{"invalid credentials", ErrInvalidCredentials, IsInvalidCredentialsError},
		{"unauthenticated", ErrUnauthenticated, IsUnauthenticatedError},
		{"forbidden", ErrForbidden, IsForbiddenError},
		{"rate limit", ErrRateLimitExceeded, IsRateLimitError},
		{"conflict", ErrDuplicateIdentifier, IsConflictError},
		{"store unavailable", WrapStoreUnavailable("ledger", errors.New("down")), IsStoreUnavailableError},
		{"internal", WrapInternal("sign", errors.New("x")), IsInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.err)))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestGetErrorTypeAndReason(t *testing.T) {
	err := fmt.Errorf("verify: %w", Unauthenticated("TOKEN_EXPIRED", errors.New("token expired")))

	assert.Equal(t, ErrorTypeUnauthenticated, GetErrorType(err))
	assert.Equal(t, "TOKEN_EXPIRED", GetErrorReason(err))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
	assert.Empty(t, GetErrorReason(ErrInvalidCredentials))
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}

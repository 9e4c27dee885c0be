package models

import (
	"time"

	"github.com/google/uuid"
)

// RevocationReason records why a token id was revoked
type RevocationReason string

const (
	RevocationReasonLogout    RevocationReason = "logout"
	RevocationReasonLogoutAll RevocationReason = "logout_all"
	RevocationReasonForced    RevocationReason = "forced"
	RevocationReasonSecurity  RevocationReason = "security"
)

// RevocationEntry marks a token id (jti or session id) as no longer acceptable.
// Entries are kept at least until ExpiresAt, after which the token is dead anyway.
type RevocationEntry struct {
	TokenID     uuid.UUID        `json:"token_id" db:"token_id"`
	PrincipalID uuid.UUID        `json:"principal_id" db:"principal_id"`
	Reason      RevocationReason `json:"reason" db:"reason"`
	RevokedAt   time.Time        `json:"revoked_at" db:"revoked_at"`
	ExpiresAt   time.Time        `json:"expires_at" db:"expires_at"`
}

// TableName returns the table name for the RevocationEntry model
func (RevocationEntry) TableName() string {
	return "revoked_tokens"
}

// NewRevocationEntry creates an entry revoked now
func NewRevocationEntry(tokenID, principalID uuid.UUID, expiresAt time.Time, reason RevocationReason) *RevocationEntry {
	return &RevocationEntry{
		TokenID:     tokenID,
		PrincipalID: principalID,
		Reason:      reason,
		RevokedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}
}

// Expired reports whether the entry may be garbage-collected at now.
func (e *RevocationEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

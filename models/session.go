package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is the server-side record of one issued refresh token.
// Its ID is the refresh token's jti and doubles as the sid of every access token minted under it.
type Session struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	PrincipalID uuid.UUID  `json:"principal_id" db:"principal_id"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	IPAddress   string     `json:"ip_address" db:"ip_address"`
	UserAgent   string     `json:"user_agent" db:"user_agent"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Session model
func (Session) TableName() string {
	return "sessions"
}

// NewSession creates a session for principalID that ends at expiresAt
func NewSession(principalID uuid.UUID, expiresAt time.Time) *Session {
	return &Session{
		ID:          uuid.New(),
		PrincipalID: principalID,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}
}

// WithClient records where the session was opened from
func (s *Session) WithClient(ipAddress, userAgent string) *Session {
	s.IPAddress = ipAddress
	s.UserAgent = userAgent
	return s
}

// IsLive reports whether the session is neither revoked nor expired at now.
func (s *Session) IsLive(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

package tokens

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
)

// Kind distinguishes access tokens from refresh tokens. It is part of the signed payload.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the signed payload of every token the codec issues.
// Subject carries the principal id, ID the jti and SessionID the refresh token id.
type Claims struct {
	jwt.RegisteredClaims
	Role      models.Role `json:"role"`
	Kind      Kind        `json:"kind"`
	SessionID string      `json:"sid"`
}

// Token is an issued, signed token together with the ids needed to track it.
type Token struct {
	Value     string    `json:"token"`
	Kind      Kind      `json:"kind"`
	ID        uuid.UUID `json:"-"`
	SessionID uuid.UUID `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ParsedClaims is Claims with its identifiers decoded.
type ParsedClaims struct {
	PrincipalID uuid.UUID
	TokenID     uuid.UUID
	SessionID   uuid.UUID
	Role        models.Role
	Kind        Kind
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

func (c *Claims) parse() (*ParsedClaims, error) {
	principalID, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a principal id", ErrTokenMalformed)
	}
	tokenID, err := uuid.Parse(c.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: jti is not a uuid", ErrTokenMalformed)
	}
	sessionID, err := uuid.Parse(c.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: sid is not a uuid", ErrTokenMalformed)
	}
	if c.Kind != KindAccess && c.Kind != KindRefresh {
		return nil, fmt.Errorf("%w: unknown token kind %q", ErrTokenMalformed, c.Kind)
	}

	parsed := &ParsedClaims{
		PrincipalID: principalID,
		TokenID:     tokenID,
		SessionID:   sessionID,
		Role:        c.Role,
		Kind:        c.Kind,
	}
	if c.IssuedAt != nil {
		parsed.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		parsed.ExpiresAt = c.ExpiresAt.Time
	}
	return parsed, nil
}

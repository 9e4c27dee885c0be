package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
)

var (
	// ErrTokenMalformed is returned when the token cannot be decoded or its claims are unusable
	ErrTokenMalformed = errors.New("token malformed")

	// ErrSignatureInvalid is returned when the signature does not verify under the configured key
	ErrSignatureInvalid = errors.New("token signature invalid")

	// ErrTokenExpired is returned when the token is authentic but past its expiry
	ErrTokenExpired = errors.New("token expired")

	// ErrWrongKind is returned when a refresh token is presented as an access token or vice versa
	ErrWrongKind = errors.New("wrong token kind")
)

const signingAlgorithm = "HS256"

// Config holds configuration for Codec
type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Codec issues and verifies HS256 access and refresh tokens.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures a Codec
type Option func(*Codec)

// WithClock replaces the wall clock used for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a new token codec
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	c := &Codec{
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the lifetime of access tokens
func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

// RefreshTTL returns the lifetime of refresh tokens
func (c *Codec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

// Issue signs a token of the given kind for principal under sessionID.
// A refresh token's jti is the session id itself; an access token gets a fresh jti.
func (c *Codec) Issue(principal *models.Principal, kind Kind, sessionID uuid.UUID) (*Token, error) {
	var ttl time.Duration
	tokenID := sessionID
	switch kind {
	case KindAccess:
		ttl = c.accessTTL
		tokenID = uuid.New()
	case KindRefresh:
		ttl = c.refreshTTL
	default:
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}

	now := c.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   principal.ID.String(),
			ID:        tokenID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:      principal.Role,
		Kind:      kind,
		SessionID: sessionID.String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	return &Token{
		Value:     signed,
		Kind:      kind,
		ID:        tokenID,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks signature, expiry and kind. Signature is checked before expiry,
// so a forged expired token reports ErrSignatureInvalid.
func (c *Codec) Verify(tokenString string, expected Kind) (*ParsedClaims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, c.keyFunc,
		jwt.WithValidMethods([]string{signingAlgorithm}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
		jwt.WithLeeway(0),
	)
	if err != nil {
		return nil, classify(err)
	}

	parsed, err := claims.parse()
	if err != nil {
		return nil, err
	}
	if parsed.Kind != expected {
		return nil, fmt.Errorf("%w: expected %s token, got %s", ErrWrongKind, expected, parsed.Kind)
	}
	return parsed, nil
}

// Inspect checks the signature only. Expiry and kind are ignored so that an
// authentic token can still be revoked after it expires.
func (c *Codec) Inspect(tokenString string) (*ParsedClaims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, c.keyFunc,
		jwt.WithValidMethods([]string{signingAlgorithm}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, classify(err)
	}
	return claims.parse()
}

func (c *Codec) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return c.secret, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}

package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. These provide sensible security defaults but
// can be overridden per-service via configuration.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 60 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenTypeAccess is the only token type minted as a JWT. Refresh tokens are
// opaque strings in a distinct namespace and are never JWT-decodable.
const TokenTypeAccess = "access"

// Claims are the access-token claims used across the service. The subject is
// the username; keep changes additive to preserve compatibility.
type Claims struct {
	jwt.RegisteredClaims

	// UserID is the stable user identifier, independent of username.
	UserID string `json:"uid,omitempty"`

	// TokenType discriminates access tokens from anything else that might
	// be presented at the boundary. Always "access" for minted tokens.
	TokenType string `json:"typ,omitempty"`

	// MFAVerified marks that the bearer completed an MFA challenge during
	// this session. Embedded in the token rather than server-side session
	// state so it survives horizontal scaling.
	MFAVerified bool `json:"mfa,omitempty"`
}

// NewAccessClaims builds minimally-correct access-token claims.
func NewAccessClaims(
	username, userID, issuer string,
	mfaVerified bool,
	ttl time.Duration,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:      userID,
		TokenType:   TokenTypeAccess,
		MFAVerified: mfaVerified,
	}
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't used
// before it is valid (nbf).
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}

package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
	ErrTokenType   = errors.New("jwtx: wrong token type")
)

// Verifier checks a raw signed token and returns its claims.
type Verifier interface {
	Verify(raw string) (Claims, error)
}

// Codec signs and verifies access tokens with a single shared HS256 secret.
// Tokens are self-contained: validity is purely a signature + expiry check,
// no database lookup required.
type Codec struct {
	secret []byte
	issuer string
}

// NewCodec builds a Codec from the shared signing secret.
func NewCodec(secret []byte, issuer string) *Codec {
	return &Codec{secret: secret, issuer: issuer}
}

// Issuer returns the issuer stamped into signed tokens.
func (c *Codec) Issuer() string {
	return c.issuer
}

// Sign serializes and signs the claims.
func (c *Codec) Sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify parses and validates a signed token, returning its claims. It
// enforces the HS256 algorithm, the signature, expiry/nbf, the issuer, and
// the "access" token type. Expiry is reported as ErrExpired so callers can
// distinguish stale tokens from forged ones.
func (c *Codec) Verify(raw string) (Claims, error) {
	var claims Claims

	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrAlgMismatch
		}
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return Claims{}, ErrNotYetValid
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		case errors.Is(err, ErrAlgMismatch):
			return Claims{}, ErrAlgMismatch
		default:
			return Claims{}, ErrMalformed
		}
	}

	if c.issuer != "" && claims.Issuer != c.issuer {
		return Claims{}, ErrIssuer
	}
	if claims.TokenType != TokenTypeAccess {
		return Claims{}, ErrTokenType
	}

	return claims, nil
}

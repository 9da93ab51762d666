package domain

import "time"

// TokenPair is what the token endpoint returns: the short-lived access token
// (JWT) and the opaque refresh token, plus expiry metadata for the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"` // always "bearer"
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	ExpiresIn    int    `json:"expires_in"` // seconds until the access token expires
}

// RefreshToken models the stored refresh token record. Only the SHA-256
// fingerprint of the opaque token value is persisted.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	UserAgent string
	IPAddress string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is the redacted view of an active refresh token, for the
// session-listing endpoint. The token value (and its hash) are omitted.
type Session struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session redacts the refresh token record down to listing metadata.
func (t RefreshToken) Session() Session {
	return Session{
		ID:        t.ID,
		UserAgent: t.UserAgent,
		IPAddress: t.IPAddress,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	}
}

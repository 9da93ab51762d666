package domain

import "time"

// Roles a user can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string
	Username     string
	Email        *string // optional, unique when set
	FullName     string
	PasswordHash string // argon2 encoded
	Role         string // "user" or "admin"
	Disabled     bool
	MFAEnabled   bool       // true only after the pending secret was confirmed
	MFASecret    *string    // TOTP secret (nullable, base32 encoded)
	MFASetupAt   *time.Time // when setup was last initiated (nullable)
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the outward-facing view of a user, safe to serialize.
type Profile struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      *string    `json:"email,omitempty"`
	FullName   string     `json:"full_name,omitempty"`
	Role       string     `json:"role"`
	Disabled   bool       `json:"disabled"`
	MFAEnabled bool       `json:"mfa_enabled"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Profile projects the user onto its public view. The password hash and MFA
// secret never leave the domain layer.
func (u User) Profile() Profile {
	return Profile{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Role:       u.Role,
		Disabled:   u.Disabled,
		MFAEnabled: u.MFAEnabled,
		LastLogin:  u.LastLogin,
		CreatedAt:  u.CreatedAt,
	}
}

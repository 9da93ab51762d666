package store

import (
	"context"
	"errors"

	"github.com/bluewhale/auth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	BackupCodes() BackupCodes

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. This is the
	// recommended way to handle multi-step operations that must be atomic.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the username or email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during credential verification.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUserByEmail checks email uniqueness on registration and profile update.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// UpdateProfile mutates email and/or full name and bumps updated_at.
	// Nil fields are left untouched.
	UpdateProfile(ctx context.Context, userID string, email *string, fullName *string) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// UpdateLastLogin stamps last_login with the current time.
	UpdateLastLogin(ctx context.Context, userID string) error

	// SetDisabled flips the account's disabled flag. Disabling does not
	// revoke tokens; enforcement happens at authentication time.
	SetDisabled(ctx context.Context, userID string, disabled bool) error

	// SetPendingMFA stores a freshly generated TOTP secret and setup time
	// without enabling MFA. Overwrites any previous pending secret.
	SetPendingMFA(ctx context.Context, userID string, secret string) error

	// EnableMFA flips mfa_enabled after the pending secret was confirmed.
	EnableMFA(ctx context.Context, userID string) error

	// DisableMFA clears mfa_enabled, the secret, and the setup timestamp.
	DisableMFA(ctx context.Context, userID string) error
}

type RefreshTokens interface {
	// Create stores a new refresh token record.
	Create(ctx context.Context, t domain.RefreshToken) error

	// GetByHash returns the token record by its fingerprint regardless of
	// revocation state; callers decide how to treat revoked/expired rows.
	GetByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// Revoke flips revoked=1 and reports whether a row actually changed
	// state, making repeat revocations observable no-ops.
	Revoke(ctx context.Context, hash string) (bool, error)

	// RevokeAllForUser revokes every non-revoked token for a user and
	// returns the count affected ("logout all devices").
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)

	// ListActiveForUser returns non-revoked, non-expired tokens for a user.
	ListActiveForUser(ctx context.Context, userID string) ([]domain.RefreshToken, error)

	// DeleteExpired removes rows past expires_at (housekeeping only; expiry
	// is enforced at lookup time regardless).
	DeleteExpired(ctx context.Context) (int64, error)
}

type BackupCodes interface {
	// Create stores one hashed backup code for a user.
	Create(ctx context.Context, userID string, codeHash string) error

	// ListHashes returns all stored code hashes for a user. Needed because
	// codes are salted-hashed: matching requires verifying against each.
	ListHashes(ctx context.Context, userID string) ([]string, error)

	// Delete removes a specific code hash and reports whether a row was
	// deleted. The single-row delete is the compare-and-remove point that
	// keeps backup codes single-use under concurrent verification.
	Delete(ctx context.Context, userID string, codeHash string) (bool, error)

	// DeleteAll removes every backup code for a user.
	DeleteAll(ctx context.Context, userID string) error

	// Count returns the number of remaining codes for a user.
	Count(ctx context.Context, userID string) (int, error)
}

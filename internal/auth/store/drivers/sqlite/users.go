package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/bluewhale/auth/internal/auth/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, email, full_name, password_hash, role, disabled,
	mfa_enabled, mfa_secret, mfa_setup_at, last_login, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u       domain.User
		email   sql.NullString
		secret  sql.NullString
		setupAt sql.NullTime
		login   sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Username, &email, &u.FullName, &u.PasswordHash, &u.Role, &u.Disabled,
		&u.MFAEnabled, &secret, &setupAt, &login, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.Email = mapNullString(email)
	u.MFASecret = mapNullString(secret)
	u.MFASetupAt = mapNullTime(setupAt)
	u.LastLogin = mapNullTime(login)
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, full_name, password_hash, role, disabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, mapOptionalString(u.Email), u.FullName, u.PasswordHash, u.Role, u.Disabled, now, now,
	)
	return mapConstraint(err)
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) UpdateProfile(ctx context.Context, userID string, email *string, fullName *string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET email = COALESCE(?, email),
		    full_name = COALESCE(?, full_name),
		    updated_at = ?
		WHERE id = ?`,
		mapOptionalString(email), mapOptionalString(fullName), now, userID,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), userID,
	)
	return err
}

func (r *usersRepo) UpdateLastLogin(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`,
		now, now, userID,
	)
	return err
}

func (r *usersRepo) SetDisabled(ctx context.Context, userID string, disabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET disabled = ?, updated_at = ? WHERE id = ?`,
		disabled, time.Now().UTC(), userID,
	)
	return err
}

func (r *usersRepo) SetPendingMFA(ctx context.Context, userID string, secret string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_secret = ?, mfa_setup_at = ?, mfa_enabled = 0, updated_at = ?
		WHERE id = ?`,
		secret, now, now, userID,
	)
	return err
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET mfa_enabled = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID,
	)
	return err
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_enabled = 0, mfa_secret = NULL, mfa_setup_at = NULL, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), userID,
	)
	return err
}

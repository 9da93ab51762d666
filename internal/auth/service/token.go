package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluewhale/auth/internal/auth/domain"
	"github.com/bluewhale/auth/internal/auth/store"
	"github.com/bluewhale/auth/pkg/cryptox"
	"github.com/bluewhale/auth/pkg/idx"
	"github.com/bluewhale/auth/pkg/jwtx"
)

var (
	ErrInvalidRefresh = errors.New("invalid_refresh_token")
	ErrExpiredRefresh = errors.New("expired_refresh_token")
)

type TokenService struct {
	Store store.Store
	Codec *jwtx.Codec
	Users *UserService
	MFA   *MFAService

	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// LoginParams carries the credential grant fields.
type LoginParams struct {
	Username  string
	Password  string
	MFACode   string
	UserAgent string
	IPAddress string
}

// LoginResult is either a token pair or an MFA challenge, never both.
type LoginResult struct {
	Pair      *domain.TokenPair
	Challenge *domain.MFAChallenge
}

// Login verifies credentials and issues an access/refresh token pair. When
// the account has MFA enabled and no code was supplied, the result carries a
// challenge instead of tokens so the client can retry with a code.
func (s *TokenService) Login(ctx context.Context, p LoginParams) (LoginResult, error) {
	u, err := s.Users.Authenticate(ctx, p.Username, p.Password)
	if err != nil {
		return LoginResult{}, err
	}

	mfaVerified := false
	if u.MFAEnabled {
		if p.MFACode == "" {
			return LoginResult{Challenge: &domain.MFAChallenge{
				Detail:      "MFA code required",
				MFARequired: true,
				Username:    u.Username,
			}}, nil
		}

		ok, err := s.MFA.VerifyCode(ctx, u, p.MFACode)
		if err != nil {
			return LoginResult{}, err
		}
		if !ok {
			return LoginResult{}, ErrInvalidMFACode
		}
		mfaVerified = true
	}

	if err := s.Store.Users().UpdateLastLogin(ctx, u.ID); err != nil {
		return LoginResult{}, err
	}

	pair, err := s.issuePair(ctx, u, mfaVerified, p.UserAgent, p.IPAddress)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Pair: &pair}, nil
}

func (s *TokenService) issuePair(ctx context.Context, u domain.User, mfaVerified bool, userAgent, ip string) (domain.TokenPair, error) {
	now := time.Now().UTC()

	access, err := s.signAccess(u, mfaVerified, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	opaque, err := cryptox.GenerateToken(cryptox.TokenSize512)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: cryptox.FingerprintToken(opaque),
		UserAgent: userAgent,
		IPAddress: ip,
		ExpiresAt: now.Add(s.RefreshTTL),
	}
	if err := s.Store.RefreshTokens().Create(ctx, rt); err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: opaque,
		TokenType:    "bearer",
		UserID:       u.ID,
		Username:     u.Username,
		ExpiresIn:    int(s.AccessTTL.Seconds()),
	}, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. The
// refresh token itself is not rotated; it stays valid until its expiry or
// revocation. Expired tokens found in the ledger are revoked on sight.
func (s *TokenService) Refresh(ctx context.Context, opaque string) (domain.TokenPair, error) {
	fp := cryptox.FingerprintToken(opaque)

	rt, err := s.Store.RefreshTokens().GetByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, err
	}
	if rt.Revoked {
		return domain.TokenPair{}, ErrInvalidRefresh
	}
	if time.Now().UTC().After(rt.ExpiresAt) {
		// Retire the row so the ledger does not accumulate dead tokens
		// that housekeeping has not reached yet.
		if _, err := s.Store.RefreshTokens().Revoke(ctx, fp); err != nil {
			return domain.TokenPair{}, err
		}
		return domain.TokenPair{}, ErrExpiredRefresh
	}

	u, err := s.Store.Users().GetUserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, err
	}
	if u.Disabled {
		return domain.TokenPair{}, ErrInactiveUser
	}

	// Access tokens minted through refresh never carry the mfa claim; a
	// step-up flow has to re-verify a code to get it back.
	access, err := s.signAccess(u, false, time.Now().UTC())
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken: access,
		TokenType:   "bearer",
		UserID:      u.ID,
		Username:    u.Username,
		ExpiresIn:   int(s.AccessTTL.Seconds()),
	}, nil
}

// StepUp verifies an MFA code for an already authenticated user and issues
// a fresh access token carrying the mfa claim.
func (s *TokenService) StepUp(ctx context.Context, userID, code string) (domain.TokenPair, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if u.Disabled {
		return domain.TokenPair{}, ErrInactiveUser
	}

	ok, err := s.MFA.VerifyCode(ctx, u, code)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if !ok {
		return domain.TokenPair{}, ErrInvalidMFACode
	}

	access, err := s.signAccess(u, true, time.Now().UTC())
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken: access,
		TokenType:   "bearer",
		UserID:      u.ID,
		Username:    u.Username,
		ExpiresIn:   int(s.AccessTTL.Seconds()),
	}, nil
}

// Logout revokes a single refresh token. Unknown and already revoked tokens
// are a no-op so logout never fails for a client holding a stale cookie.
func (s *TokenService) Logout(ctx context.Context, opaque string) error {
	if opaque == "" {
		return nil
	}
	_, err := s.Store.RefreshTokens().Revoke(ctx, cryptox.FingerprintToken(opaque))
	return err
}

// LogoutAll revokes every active refresh token a user holds and reports how
// many sessions were ended.
func (s *TokenService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	return s.Store.RefreshTokens().RevokeAllForUser(ctx, userID)
}

// ListSessions returns the user's active sessions as redacted views. Token
// material never leaves the store.
func (s *TokenService) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	tokens, err := s.Store.RefreshTokens().ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sessions := make([]domain.Session, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, t.Session())
	}
	return sessions, nil
}

func (s *TokenService) signAccess(u domain.User, mfaVerified bool, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(u.Username, u.ID, s.Codec.Issuer(), mfaVerified, s.AccessTTL, now)
	access, err := s.Codec.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return access, nil
}

package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"github.com/pquerna/otp/totp"

	"github.com/bluewhale/auth/internal/auth/domain"
	"github.com/bluewhale/auth/internal/auth/store"
	"github.com/bluewhale/auth/pkg/cryptox"
)

var (
	ErrMFAAlreadyEnabled = errors.New("mfa_already_enabled")
	ErrMFANotEnabled     = errors.New("mfa_not_enabled")
	ErrSetupNotInitiated = errors.New("mfa_setup_not_initiated")
	ErrInvalidMFACode    = errors.New("invalid_mfa_code")
)

const (
	backupCodeCount  = 10
	backupCodeLength = 8

	// Base32 alphabet keeps codes unambiguous when read aloud.
	backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
)

type MFAService struct {
	Store  store.Store
	Issuer string
}

// Setup provisions a pending TOTP secret for a user and pre-generates a
// fresh set of hashed backup codes. The secret stays pending until the user
// confirms possession of it via Enable. Calling Setup again before enabling
// replaces the pending secret and its backup codes.
func (s *MFAService) Setup(ctx context.Context, userID string) (domain.MFASetup, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.MFASetup{}, err
	}
	if u.MFAEnabled {
		return domain.MFASetup{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.Username,
	})
	if err != nil {
		return domain.MFASetup{}, fmt.Errorf("failed to generate totp key: %w", err)
	}

	// Plaintext backup codes are only ever handed out by
	// RegenerateBackupCodes, which requires a live TOTP check.
	_, hashes, err := generateBackupCodes()
	if err != nil {
		return domain.MFASetup{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetPendingMFA(ctx, userID, key.Secret()); err != nil {
			return err
		}
		if err := tx.BackupCodes().DeleteAll(ctx, userID); err != nil {
			return err
		}
		for _, h := range hashes {
			if err := tx.BackupCodes().Create(ctx, userID, h); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.MFASetup{}, err
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return domain.MFASetup{}, fmt.Errorf("failed to render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.MFASetup{}, fmt.Errorf("failed to encode qr code: %w", err)
	}

	return domain.MFASetup{
		Secret: key.Secret(),
		QRCode: base64.StdEncoding.EncodeToString(buf.Bytes()),
		URI:    key.URL(),
	}, nil
}

const qrSize = 256

// Enable confirms a pending TOTP secret with a live code and flips MFA on.
func (s *MFAService) Enable(ctx context.Context, userID, code string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.MFAEnabled {
		return ErrMFAAlreadyEnabled
	}
	if u.MFASecret == nil {
		return ErrSetupNotInitiated
	}
	if !totp.Validate(code, *u.MFASecret) {
		return ErrInvalidMFACode
	}
	return s.Store.Users().EnableMFA(ctx, userID)
}

// Disable verifies a live TOTP code and removes the secret and all backup
// codes for the user.
func (s *MFAService) Disable(ctx context.Context, userID, code string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.MFAEnabled || u.MFASecret == nil {
		return ErrMFANotEnabled
	}
	if !totp.Validate(code, *u.MFASecret) {
		return ErrInvalidMFACode
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().DisableMFA(ctx, userID); err != nil {
			return err
		}
		return tx.BackupCodes().DeleteAll(ctx, userID)
	})
}

// VerifyCode accepts either a live TOTP code or an unused backup code for a
// user with MFA enabled. A backup code that matches is consumed and can never
// be used again, even under concurrent attempts.
func (s *MFAService) VerifyCode(ctx context.Context, u domain.User, code string) (bool, error) {
	if !u.MFAEnabled || u.MFASecret == nil {
		return false, ErrMFANotEnabled
	}
	if totp.Validate(code, *u.MFASecret) {
		return true, nil
	}
	return s.consumeBackupCode(ctx, u.ID, code)
}

func (s *MFAService) consumeBackupCode(ctx context.Context, userID, code string) (bool, error) {
	normalized := normalizeBackupCode(code)
	if len(normalized) != backupCodeLength {
		return false, nil
	}

	hashes, err := s.Store.BackupCodes().ListHashes(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, h := range hashes {
		if err := cryptox.VerifyPassword(normalized, h); err != nil {
			continue
		}
		// The delete is the single-use point: only the caller that removes
		// the row wins when two requests race on the same code.
		return s.Store.BackupCodes().Delete(ctx, userID, h)
	}
	return false, nil
}

// RegenerateBackupCodes replaces all backup codes for a user after a live
// TOTP check and returns the new plaintext codes exactly once.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.MFAEnabled || u.MFASecret == nil {
		return nil, ErrMFANotEnabled
	}
	if !totp.Validate(code, *u.MFASecret) {
		return nil, ErrInvalidMFACode
	}

	codes, hashes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAll(ctx, userID); err != nil {
			return err
		}
		for _, h := range hashes {
			if err := tx.BackupCodes().Create(ctx, userID, h); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}

// BackupCodesRemaining reports how many unused backup codes a user has left.
func (s *MFAService) BackupCodesRemaining(ctx context.Context, userID string) (int, error) {
	return s.Store.BackupCodes().Count(ctx, userID)
}

func generateBackupCodes() (codes []string, hashes []string, err error) {
	codes = make([]string, 0, backupCodeCount)
	hashes = make([]string, 0, backupCodeCount)
	for range backupCodeCount {
		raw := make([]byte, backupCodeLength)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		buf := make([]byte, backupCodeLength)
		for i, b := range raw {
			buf[i] = backupCodeAlphabet[int(b)%len(backupCodeAlphabet)]
		}

		plain := string(buf)
		hash, err := cryptox.HashPassword(plain)
		if err != nil {
			return nil, nil, err
		}

		codes = append(codes, formatBackupCode(plain))
		hashes = append(hashes, hash)
	}
	return codes, hashes, nil
}

func formatBackupCode(code string) string {
	return code[:4] + "-" + code[4:]
}

func normalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.ReplaceAll(code, "-", "")
}

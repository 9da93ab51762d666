package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bluewhale/auth/internal/auth/service"
	"github.com/bluewhale/auth/internal/auth/store"
	"github.com/bluewhale/auth/pkg/httpx"
	"github.com/bluewhale/auth/pkg/slogx"
)

// MFAHandler handles all MFA-related endpoints.
type MFAHandler struct {
	MFAService   *service.MFAService
	TokenService *service.TokenService
	Cookies      CookieWriter
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

func decodeCode(r *http.Request) (string, bool) {
	var req mfaCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", false
	}
	return strings.TrimSpace(req.Code), true
}

// HandleSetup handles POST /v1/auth/mfa/setup. It provisions a pending TOTP
// secret and returns it with a QR code for authenticator enrollment.
func (h *MFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	setup, err := h.MFAService.Setup(ctx, httpx.UserIDFromCtx(ctx))
	if err != nil {
		if errors.Is(err, service.ErrMFAAlreadyEnabled) {
			httpx.WriteDetail(w, http.StatusBadRequest, "MFA is already enabled")
			return
		}
		log.Error("mfa setup failed", "err", err)
		httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, setup)
}

// HandleEnable handles POST /v1/auth/mfa/enable. Confirms the pending secret with
// a live code and turns enforcement on.
func (h *MFAHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	code, ok := decodeCode(r)
	if !ok || code == "" {
		httpx.WriteDetail(w, http.StatusBadRequest, "MFA code is required")
		return
	}

	userID := httpx.UserIDFromCtx(ctx)
	if err := h.MFAService.Enable(ctx, userID, code); err != nil {
		switch {
		case errors.Is(err, service.ErrMFAAlreadyEnabled):
			httpx.WriteDetail(w, http.StatusBadRequest, "MFA is already enabled")
		case errors.Is(err, service.ErrSetupNotInitiated):
			httpx.WriteDetail(w, http.StatusBadRequest, "MFA setup has not been initiated")
		case errors.Is(err, service.ErrInvalidMFACode):
			httpx.WriteDetail(w, http.StatusUnauthorized, "Invalid MFA code")
		default:
			log.Error("mfa enable failed", "err", err)
			httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	log.Info("mfa enabled", "user_id", userID)
	httpx.WriteDetail(w, http.StatusOK, "MFA enabled")
}

// HandleDisable handles POST /v1/auth/mfa/disable. Requires a live TOTP code so a
// hijacked session cannot silently strip the second factor.
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	code, ok := decodeCode(r)
	if !ok || code == "" {
		httpx.WriteDetail(w, http.StatusBadRequest, "MFA code is required")
		return
	}

	userID := httpx.UserIDFromCtx(ctx)
	if err := h.MFAService.Disable(ctx, userID, code); err != nil {
		switch {
		case errors.Is(err, service.ErrMFANotEnabled):
			httpx.WriteDetail(w, http.StatusBadRequest, "MFA is not enabled")
		case errors.Is(err, service.ErrInvalidMFACode):
			httpx.WriteDetail(w, http.StatusUnauthorized, "Invalid MFA code")
		default:
			log.Error("mfa disable failed", "err", err)
			httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	log.Info("mfa disabled", "user_id", userID)
	httpx.WriteDetail(w, http.StatusOK, "MFA disabled")
}

// HandleVerify handles POST /v1/auth/mfa/verify. Accepts a TOTP or backup code
// and returns a fresh access token carrying the mfa claim, so clients can
// step up mid-session without re-entering the password.
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	code, ok := decodeCode(r)
	if !ok || code == "" {
		httpx.WriteDetail(w, http.StatusBadRequest, "MFA code is required")
		return
	}

	pair, err := h.TokenService.StepUp(ctx, httpx.UserIDFromCtx(ctx), code)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			httpx.WriteDetail(w, http.StatusUnauthorized, "User no longer exists")
		case errors.Is(err, service.ErrInactiveUser):
			httpx.WriteDetail(w, http.StatusBadRequest, "Inactive user")
		case errors.Is(err, service.ErrMFANotEnabled):
			httpx.WriteDetail(w, http.StatusBadRequest, "MFA is not enabled")
		case errors.Is(err, service.ErrInvalidMFACode):
			httpx.WriteDetail(w, http.StatusUnauthorized, "Invalid MFA code")
		default:
			log.Error("mfa verify failed", "err", err)
			httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.Cookies.SetAccess(w, pair.AccessToken)
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleBackupCodes handles POST /v1/auth/mfa/backup-codes. Regenerates the full
// backup code set after a live TOTP check and returns the plaintext codes
// exactly once.
func (h *MFAHandler) HandleBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	code, ok := decodeCode(r)
	if !ok || code == "" {
		httpx.WriteDetail(w, http.StatusBadRequest, "MFA code is required")
		return
	}

	codes, err := h.MFAService.RegenerateBackupCodes(ctx, httpx.UserIDFromCtx(ctx), code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMFANotEnabled):
			httpx.WriteDetail(w, http.StatusBadRequest, "MFA is not enabled")
		case errors.Is(err, service.ErrInvalidMFACode):
			httpx.WriteDetail(w, http.StatusUnauthorized, "Invalid MFA code")
		default:
			log.Error("backup code regeneration failed", "err", err)
			httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

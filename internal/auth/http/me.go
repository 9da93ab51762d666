package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bluewhale/auth/internal/auth/service"
	"github.com/bluewhale/auth/internal/auth/store"
	"github.com/bluewhale/auth/pkg/httpx"
	"github.com/bluewhale/auth/pkg/slogx"
)

// MeHandler serves GET and PUT /v1/auth/me.
type MeHandler struct {
	UserService *service.UserService
}

type profileUpdateRequest struct {
	Email           *string `json:"email"`
	FullName        *string `json:"full_name"`
	Password        *string `json:"password"`
	CurrentPassword *string `json:"current_password"`
}

func (h *MeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	u, err := h.UserService.GetUserByID(ctx, httpx.UserIDFromCtx(ctx))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteDetail(w, http.StatusUnauthorized, "User no longer exists")
			return
		}
		log.Error("failed to load user", "err", err)
		httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if u.Disabled {
		httpx.WriteDetail(w, http.StatusBadRequest, "Inactive user")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, u.Profile())
}

func (h *MeHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	u, err := h.UserService.UpdateProfile(ctx, httpx.UserIDFromCtx(ctx), service.ProfileUpdateParams{
		Email:           req.Email,
		FullName:        req.FullName,
		Password:        req.Password,
		CurrentPassword: req.CurrentPassword,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateUser):
			httpx.WriteDetail(w, http.StatusBadRequest, "Email already registered")
		case errors.Is(err, service.ErrWrongPassword):
			httpx.WriteDetail(w, http.StatusBadRequest, "Current password is incorrect")
		case errors.Is(err, store.ErrNotFound):
			httpx.WriteDetail(w, http.StatusUnauthorized, "User no longer exists")
		default:
			log.Error("profile update failed", "err", err)
			httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, u.Profile())
}

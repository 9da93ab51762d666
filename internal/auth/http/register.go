package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bluewhale/auth/internal/auth/service"
	"github.com/bluewhale/auth/pkg/httpx"
	"github.com/bluewhale/auth/pkg/slogx"
)

// RegisterHandler serves POST /v1/auth/register.
type RegisterHandler struct {
	UserService *service.UserService
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	u, err := h.UserService.Register(ctx, service.RegisterParams{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateUser):
			httpx.WriteDetail(w, http.StatusBadRequest, "Username or email already registered")
		case errors.Is(err, service.ErrInvalidCredentials):
			httpx.WriteDetail(w, http.StatusBadRequest, "Username and password are required")
		default:
			log.Error("registration failed", "err", err)
			httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	log.Info("user registered", "user_id", u.ID, "username", u.Username)
	httpx.WriteJSON(w, http.StatusCreated, u.Profile())
}

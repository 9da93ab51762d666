package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/bluewhale/auth/internal/auth/service"
	"github.com/bluewhale/auth/internal/auth/store"
	"github.com/bluewhale/auth/pkg/httpx"
	"github.com/bluewhale/auth/pkg/jwtx"
	"github.com/bluewhale/auth/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store   store.Store
	limiter httpx.RateLimitStore

	// CookieSecure controls the Secure attribute on session cookies. Off in
	// local development so plain-HTTP testing works.
	CookieSecure bool

	// RedisPing is set when rate limiting runs against a shared redis so the
	// readiness probe covers it.
	RedisPing  func(context.Context) error
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	TokenService *service.TokenService
	UserService  *service.UserService
	MFAService   *service.MFAService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	limiter httpx.RateLimitStore,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		limiter:      limiter,
		logger:       logger,
		AccessTTL:    jwtx.DefaultAccessTokenTTL,
		RefreshTTL:   jwtx.DefaultRefreshTokenTTL,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSessions()
	r.registerMFA()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	registerHandler := &RegisterHandler{UserService: r.UserService}
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(registerHandler,
			httpx.RateLimitByIP(r.limiter, "register", httpx.RegisterLimit),
		),
	)

	// The credential grant is the brute-force target, so it carries the
	// tightest per-IP budget.
	tokenHandler := &TokenHandler{
		TokenService: r.TokenService,
		Cookies:      r.cookies(),
	}
	r.Mux.Handle("POST /v1/auth/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(r.limiter, "login", httpx.LoginLimit),
		),
	)

	refreshHandler := &RefreshHandler{
		TokenService: r.TokenService,
		Cookies:      r.cookies(),
	}
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(refreshHandler,
			httpx.RateLimitByIP(r.limiter, "refresh", httpx.RefreshLimit),
		),
	)

	meHandler := &MeHandler{UserService: r.UserService}
	r.Mux.Handle("GET /v1/auth/me",
		httpx.Chain(http.HandlerFunc(meHandler.HandleGet),
			httpx.AuthnMiddleware(r.verifier),
		),
	)
	r.Mux.Handle("PUT /v1/auth/me",
		httpx.Chain(http.HandlerFunc(meHandler.HandlePut),
			httpx.AuthnMiddleware(r.verifier),
			httpx.CSRFMiddleware(),
			httpx.RateLimitByIP(r.limiter, "password", httpx.PasswordChangeLimit),
		),
	)

	csrfHandler := &CSRFHandler{Cookies: r.cookies()}
	r.Mux.Handle("GET /v1/auth/csrf", csrfHandler)
}

func (r *Router) registerSessions() {
	logoutHandler := &LogoutHandler{
		TokenService: r.TokenService,
		Cookies:      r.cookies(),
	}

	// Logout needs no access token: a client with an expired session must
	// still be able to clear its cookies and retire the refresh token.
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(logoutHandler.HandleLogout),
			httpx.CSRFMiddleware(),
		),
	)

	r.Mux.Handle("POST /v1/auth/logout/all",
		httpx.Chain(http.HandlerFunc(logoutHandler.HandleLogoutAll),
			httpx.AuthnMiddleware(r.verifier),
			httpx.CSRFMiddleware(),
		),
	)

	sessionsHandler := &SessionsHandler{TokenService: r.TokenService}
	r.Mux.Handle("GET /v1/auth/sessions",
		httpx.Chain(sessionsHandler,
			httpx.AuthnMiddleware(r.verifier),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{
		MFAService:   r.MFAService,
		TokenService: r.TokenService,
		Cookies:      r.cookies(),
	}

	secured := func(hf http.HandlerFunc) http.Handler {
		return httpx.Chain(hf,
			httpx.AuthnMiddleware(r.verifier),
			httpx.CSRFMiddleware(),
		)
	}

	// Setup only provisions a pending secret; it changes nothing the user
	// relies on until Enable confirms it, so it skips the CSRF check.
	r.Mux.Handle("POST /v1/auth/mfa/setup",
		httpx.Chain(http.HandlerFunc(h.HandleSetup),
			httpx.AuthnMiddleware(r.verifier),
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa/enable", secured(h.HandleEnable))
	r.Mux.Handle("POST /v1/auth/mfa/disable", secured(h.HandleDisable))
	// Step-up attempts are limited per user so a stolen session cannot walk
	// the six-digit code space.
	r.Mux.Handle("POST /v1/auth/mfa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.AuthnMiddleware(r.verifier),
			httpx.CSRFMiddleware(),
			httpx.RateLimitByUser(r.limiter, "mfa", httpx.MFAVerifyLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa/backup-codes", secured(h.HandleBackupCodes))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.RedisPing))
}

func (r *Router) cookies() CookieWriter {
	return CookieWriter{
		Secure:     r.CookieSecure,
		AccessTTL:  r.AccessTTL,
		RefreshTTL: r.RefreshTTL,
	}
}

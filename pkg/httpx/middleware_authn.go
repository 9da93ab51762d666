package httpx

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/bluewhale/auth/pkg/jwtx"
	"github.com/bluewhale/auth/pkg/slogx"
)

// Cookie names shared between the middleware and the handlers that set them.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	CSRFCookie         = "csrf_token"
)

// AuthnMiddleware authenticates requests with a bearer access token taken
// from the Authorization header, falling back to the access_token cookie so
// browser clients work without a JS token store. The cookie value keeps the
// "Bearer " prefix, mirroring the header form.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw := bearerToken(r)
			if raw == "" {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				writeBearerError(w, "token verification failed")
				log.Warn("jwt verify failed", "err", err)
				return
			}

			if err := claims.ValidateExpiry(); err != nil {
				writeBearerError(w, "token expired")
				return
			}

			ctx = contextWithAuth(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
	}

	c, err := r.Cookie(AccessTokenCookie)
	if err != nil {
		return ""
	}
	val := c.Value
	if decoded, err := url.QueryUnescape(val); err == nil {
		val = decoded
	}
	if !strings.HasPrefix(val, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(val, "Bearer"))
}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.UserID)
	ctx = context.WithValue(ctx, CtxKeyUsername, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}

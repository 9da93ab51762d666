package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluewhale/auth/pkg/httpx"
)

func TestCSRFMiddleware(t *testing.T) {
	h := httpx.CSRFMiddleware()(okHandler())

	token, err := httpx.MintCSRFToken()
	require.NoError(t, err)

	t.Run("GET passes without token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("POST without cookie rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
		req.Header.Set(httpx.CSRFHeader, token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("POST without header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: httpx.CSRFCookie, Value: token})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Body.String(), "CSRF")
	})

	t.Run("POST with mismatched token rejected", func(t *testing.T) {
		other, err := httpx.MintCSRFToken()
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: httpx.CSRFCookie, Value: token})
		req.Header.Set(httpx.CSRFHeader, other)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("POST with bearer header skips the check", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer some.jwt.value")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("POST with matching tokens passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: httpx.CSRFCookie, Value: token})
		req.Header.Set(httpx.CSRFHeader, token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestSetCSRFCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.SetCSRFCookie(rec, "tok123", 3600, true)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	require.Equal(t, httpx.CSRFCookie, c.Name)
	require.Equal(t, "tok123", c.Value)
	require.False(t, c.HttpOnly, "client must be able to read the token back")
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteLaxMode, c.SameSite)
	require.Equal(t, "/", c.Path)
}

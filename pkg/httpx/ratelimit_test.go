package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/bluewhale/auth/pkg/httpx"
)

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"

		ip := httpx.IPKeyExtractor(req)
		require.Equal(t, "192.168.1.1", ip)
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")

		ip := httpx.IPKeyExtractor(req)
		require.Equal(t, "203.0.113.1", ip)
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Real-IP", "203.0.113.2")

		ip := httpx.IPKeyExtractor(req)
		require.Equal(t, "203.0.113.2", ip)
	})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, h http.Handler, ip string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", nil)
	req.RemoteAddr = ip + ":54321"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newRedisStore(t *testing.T) (*httpx.RedisRateLimitStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &httpx.RedisRateLimitStore{Client: rdb}, mr
}

func TestRedisRateLimit(t *testing.T) {
	store, mr := newRedisStore(t)

	cfg := httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute}
	h := httpx.RateLimitByIP(store, "login", cfg)(okHandler())

	t.Run("allows up to the limit", func(t *testing.T) {
		for range 3 {
			rec := doRequest(t, h, "10.0.0.1")
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("rejects over the limit with Retry-After", func(t *testing.T) {
		rec := doRequest(t, h, "10.0.0.1")
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Contains(t, rec.Body.String(), "Too many requests")
	})

	t.Run("other IPs unaffected", func(t *testing.T) {
		rec := doRequest(t, h, "10.0.0.2")
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("window slides", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		rec := doRequest(t, h, "10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRedisRateLimitFailsOpen(t *testing.T) {
	store, mr := newRedisStore(t)

	cfg := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute}
	h := httpx.RateLimitByIP(store, "login", cfg)(okHandler())

	// Exhaust the limit while Redis is up.
	require.Equal(t, http.StatusOK, doRequest(t, h, "10.0.0.1").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(t, h, "10.0.0.1").Code)

	// Once Redis goes away the limiter steps aside rather than locking
	// everyone out.
	mr.Close()
	require.Equal(t, http.StatusOK, doRequest(t, h, "10.0.0.1").Code)
}

func TestLocalRateLimit(t *testing.T) {
	store := &httpx.LocalRateLimitStore{}

	cfg := httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute}
	h := httpx.RateLimitByIP(store, "login", cfg)(okHandler())

	require.Equal(t, http.StatusOK, doRequest(t, h, "10.0.0.1").Code)
	require.Equal(t, http.StatusOK, doRequest(t, h, "10.0.0.1").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(t, h, "10.0.0.1").Code)

	t.Run("per key isolation", func(t *testing.T) {
		require.Equal(t, http.StatusOK, doRequest(t, h, "10.0.0.9").Code)
	})
}

func TestRateLimitByUser(t *testing.T) {
	store := &httpx.LocalRateLimitStore{}

	cfg := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute}
	h := httpx.RateLimitByUser(store, "mfa", cfg)(okHandler())

	asUser := func(ip, userID string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/mfa/verify", nil)
		req.RemoteAddr = ip + ":54321"
		if userID != "" {
			req = req.WithContext(context.WithValue(req.Context(), httpx.CtxKeyUserID, userID))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("keys by user id across IPs", func(t *testing.T) {
		require.Equal(t, http.StatusOK, asUser("10.0.0.1", "user-a"))
		require.Equal(t, http.StatusTooManyRequests, asUser("10.0.0.2", "user-a"))
		require.Equal(t, http.StatusOK, asUser("10.0.0.2", "user-b"))
	})

	t.Run("falls back to IP when anonymous", func(t *testing.T) {
		require.Equal(t, http.StatusOK, asUser("10.0.0.3", ""))
		require.Equal(t, http.StatusTooManyRequests, asUser("10.0.0.3", ""))
	})
}

func TestRateLimitSkipsWhenKeyMissing(t *testing.T) {
	store := &httpx.LocalRateLimitStore{}
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute}

	noKey := func(*http.Request) string { return "" }
	h := httpx.RateLimitMiddleware(store, "login", cfg, noKey)(okHandler())

	for range 5 {
		rec := doRequest(t, h, "10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

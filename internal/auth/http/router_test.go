package http_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	authhttp "github.com/bluewhale/auth/internal/auth/http"
	"github.com/bluewhale/auth/internal/auth/service"
	"github.com/bluewhale/auth/internal/auth/store/drivers/sqlite"
	"github.com/bluewhale/auth/pkg/cryptox"
	"github.com/bluewhale/auth/pkg/httpx"
	"github.com/bluewhale/auth/pkg/jwtx"
	"github.com/bluewhale/auth/pkg/slogx"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "http_test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type testServer struct {
	srv    *httptest.Server
	client *http.Client
	codec  *jwtx.Codec
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL",
		filepath.Join(t.TempDir(), "auth_test.db"))
	st, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	codec := jwtx.NewCodec([]byte("test-secret-test-secret-test-sec"), "bluewhale-test")
	users := &service.UserService{Store: st}
	mfa := &service.MFAService{Store: st, Issuer: "bluewhale-test"}
	tokens := &service.TokenService{
		Store:      st,
		Codec:      codec,
		Users:      users,
		MFA:        mfa,
		AccessTTL:  time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
	}

	logger := slogx.New(slogx.Config{Service: "auth-test", Level: "error", Format: "text"})
	router := authhttp.NewRouter(codec, "test", st, &httpx.LocalRateLimitStore{}, logger)
	router.AccessTTL = time.Hour
	router.RefreshTTL = 7 * 24 * time.Hour
	router.UserService = users
	router.MFAService = mfa
	router.TokenService = tokens
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testServer{
		srv:    srv,
		client: &http.Client{Jar: jar},
		codec:  codec,
	}
}

func (ts *testServer) postJSON(t *testing.T, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+path, strings.NewReader(string(raw)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	return resp
}

func (ts *testServer) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := ts.client.PostForm(ts.srv.URL+path, form)
	require.NoError(t, err)
	return resp
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := ts.client.Get(ts.srv.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return out
}

func (ts *testServer) register(t *testing.T, username, password string) {
	t.Helper()
	resp := ts.postJSON(t, "/v1/auth/register", map[string]string{
		"username":  username,
		"full_name": "Test User",
		"password":  password,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func (ts *testServer) login(t *testing.T, username, password string) map[string]any {
	t.Helper()
	resp := ts.postForm(t, "/v1/auth/token", url.Values{
		"username": {username},
		"password": {password},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody(t, resp)
}

func TestRegisterEndpoint(t *testing.T) {
	ts := newTestServer(t)

	t.Run("creates user without exposing secrets", func(t *testing.T) {
		resp := ts.postJSON(t, "/v1/auth/register", map[string]string{
			"username":  "alice",
			"email":     "alice@example.com",
			"full_name": "Alice Liddell",
			"password":  "correct horse battery staple",
		}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody(t, resp)
		require.Equal(t, "alice", body["username"])
		require.NotContains(t, body, "password_hash")
		require.NotContains(t, body, "mfa_secret")
	})

	t.Run("duplicate username is 400", func(t *testing.T) {
		resp := ts.postJSON(t, "/v1/auth/register", map[string]string{
			"username": "alice",
			"password": "another",
		}, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		body := decodeBody(t, resp)
		require.Contains(t, body["detail"], "already registered")
	})
}

func TestLoginEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice", "hunter2hunter2")

	t.Run("wrong password is 401", func(t *testing.T) {
		resp := ts.postForm(t, "/v1/auth/token", url.Values{
			"username": {"alice"},
			"password": {"wrong"},
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("valid login returns pair and cookies", func(t *testing.T) {
		resp := ts.postForm(t, "/v1/auth/token", url.Values{
			"username": {"alice"},
			"password": {"hunter2hunter2"},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

		var access, refresh *http.Cookie
		for _, c := range resp.Cookies() {
			switch c.Name {
			case httpx.AccessTokenCookie:
				access = c
			case httpx.RefreshTokenCookie:
				refresh = c
			}
		}
		require.NotNil(t, access)
		require.True(t, strings.HasPrefix(access.Value, "Bearer ") ||
			strings.HasPrefix(access.Value, "Bearer%20"))
		require.True(t, access.HttpOnly)
		require.Equal(t, "/", access.Path)
		require.NotNil(t, refresh)
		require.True(t, refresh.HttpOnly)

		body := decodeBody(t, resp)
		require.Equal(t, "bearer", body["token_type"])
		require.NotEmpty(t, body["access_token"])
		require.NotEmpty(t, body["refresh_token"])
	})
}

// TestSessionLifecycle walks the canonical browser flow: register, login,
// call an authenticated endpoint off the cookie, refresh, logout, and then
// watch the dead refresh token bounce.
func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice", "hunter2hunter2")
	ts.login(t, "alice", "hunter2hunter2")

	t.Run("me works off the access cookie", func(t *testing.T) {
		resp := ts.get(t, "/v1/auth/me")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		require.Equal(t, "alice", body["username"])
	})

	t.Run("sessions lists the login", func(t *testing.T) {
		resp := ts.get(t, "/v1/auth/sessions")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		require.Len(t, body["sessions"], 1)
	})

	t.Run("refresh mints a new access token", func(t *testing.T) {
		resp := ts.postForm(t, "/v1/auth/refresh", url.Values{})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		require.NotEmpty(t, body["access_token"])
		require.Empty(t, body["refresh_token"])
	})

	t.Run("logout clears the session", func(t *testing.T) {
		// Pick up a CSRF token first; logout is a state change.
		csrfResp := ts.get(t, "/v1/auth/csrf")
		require.Equal(t, http.StatusOK, csrfResp.StatusCode)
		csrf := decodeBody(t, csrfResp)["csrf_token"].(string)

		req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/v1/auth/logout", nil)
		require.NoError(t, err)
		req.Header.Set(httpx.CSRFHeader, csrf)
		resp, err := ts.client.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("refresh after logout is 401", func(t *testing.T) {
		resp := ts.postForm(t, "/v1/auth/refresh", url.Values{})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("me after logout is 401", func(t *testing.T) {
		resp := ts.get(t, "/v1/auth/me")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestLogoutWithoutCSRF(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice", "hunter2hunter2")
	ts.login(t, "alice", "hunter2hunter2")

	resp := ts.postForm(t, "/v1/auth/logout", url.Values{})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestMFAFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice", "hunter2hunter2")
	login := ts.login(t, "alice", "hunter2hunter2")
	bearer := map[string]string{
		"Authorization": "Bearer " + login["access_token"].(string),
	}

	var secret string

	t.Run("setup returns secret and qr", func(t *testing.T) {
		resp := ts.postJSON(t, "/v1/auth/mfa/setup", nil, bearer)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		secret = body["secret"].(string)
		require.NotEmpty(t, secret)
		require.NotEmpty(t, body["qr_code"])
		require.Contains(t, body["uri"], "otpauth://totp/")
	})

	t.Run("enable with wrong code is 401", func(t *testing.T) {
		resp := ts.postJSON(t, "/v1/auth/mfa/enable", map[string]string{"code": "000000"}, bearer)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("enable with live code", func(t *testing.T) {
		code, err := totp.GenerateCode(secret, time.Now())
		require.NoError(t, err)

		resp := ts.postJSON(t, "/v1/auth/mfa/enable", map[string]string{"code": code}, bearer)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("login now returns a challenge", func(t *testing.T) {
		resp := ts.postForm(t, "/v1/auth/token", url.Values{
			"username": {"alice"},
			"password": {"hunter2hunter2"},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		require.Equal(t, true, body["mfa_required"])
		require.Equal(t, "alice", body["username"])
		require.NotContains(t, body, "access_token")
	})

	t.Run("login with code issues mfa-verified token", func(t *testing.T) {
		code, err := totp.GenerateCode(secret, time.Now())
		require.NoError(t, err)

		resp := ts.postForm(t, "/v1/auth/token", url.Values{
			"username": {"alice"},
			"password": {"hunter2hunter2"},
			"mfa_code": {code},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		claims, err := ts.codec.Verify(body["access_token"].(string))
		require.NoError(t, err)
		require.True(t, claims.MFAVerified)
	})

	t.Run("backup codes regenerate with live code", func(t *testing.T) {
		code, err := totp.GenerateCode(secret, time.Now())
		require.NoError(t, err)

		resp := ts.postJSON(t, "/v1/auth/mfa/backup-codes", map[string]string{"code": code}, bearer)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		require.Len(t, body["backup_codes"], 10)
	})
}

func TestLoginRateLimit(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice", "hunter2hunter2")

	form := url.Values{
		"username": {"alice"},
		"password": {"wrong"},
	}

	var last *http.Response
	for i := 0; i < httpx.LoginLimit.RequestsPerWindow+1; i++ {
		last = ts.postForm(t, "/v1/auth/token", form)
		last.Body.Close()
	}

	require.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	require.NotEmpty(t, last.Header.Get("Retry-After"))
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	t.Run("livez", func(t *testing.T) {
		resp := ts.get(t, "/livez")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		require.Equal(t, "ok", body["status"])
	})

	t.Run("readyz", func(t *testing.T) {
		resp := ts.get(t, "/readyz")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		require.Equal(t, "ok", body["status"])
	})
}

package httpx

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/bluewhale/auth/pkg/idx"
	"github.com/bluewhale/auth/pkg/slogx"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
}

// Per-endpoint rate limit profiles. Credential endpoints get the tightest
// budgets since they are the brute-force targets.
// Each can be overridden via environment variables (see init() below).
var (
	// LoginLimit throttles credential grants per client IP.
	// Override with: RATELIMIT_LOGIN_REQUESTS, RATELIMIT_LOGIN_WINDOW_SEC
	LoginLimit = RateLimitConfig{
		RequestsPerWindow: 5,
		Window:            time.Minute,
	}

	// RegisterLimit throttles account creation per client IP.
	// Override with: RATELIMIT_REGISTER_REQUESTS, RATELIMIT_REGISTER_WINDOW_SEC
	RegisterLimit = RateLimitConfig{
		RequestsPerWindow: 3,
		Window:            time.Hour,
	}

	// RefreshLimit throttles token refreshes per client IP.
	// Override with: RATELIMIT_REFRESH_REQUESTS, RATELIMIT_REFRESH_WINDOW_SEC
	RefreshLimit = RateLimitConfig{
		RequestsPerWindow: 10,
		Window:            time.Minute,
	}

	// PasswordChangeLimit throttles profile/password updates per client IP.
	// Override with: RATELIMIT_PASSWORD_REQUESTS, RATELIMIT_PASSWORD_WINDOW_SEC
	PasswordChangeLimit = RateLimitConfig{
		RequestsPerWindow: 3,
		Window:            time.Hour,
	}

	// MFAVerifyLimit throttles step-up code attempts per authenticated user,
	// since six-digit codes are guessable given enough tries.
	// Override with: RATELIMIT_MFA_REQUESTS, RATELIMIT_MFA_WINDOW_SEC
	MFAVerifyLimit = RateLimitConfig{
		RequestsPerWindow: 5,
		Window:            time.Minute,
	}
)

func init() {
	// Allow overriding rate limits via environment variables (useful for testing)
	LoginLimit = ParseRateLimitFromEnv("LOGIN", LoginLimit)
	RegisterLimit = ParseRateLimitFromEnv("REGISTER", RegisterLimit)
	RefreshLimit = ParseRateLimitFromEnv("REFRESH", RefreshLimit)
	PasswordChangeLimit = ParseRateLimitFromEnv("PASSWORD", PasswordChangeLimit)
	MFAVerifyLimit = ParseRateLimitFromEnv("MFA", MFAVerifyLimit)
}

// ParseRateLimitFromEnv reads rate limit configuration from environment
// variables following the pattern RATELIMIT_{prefix}_{field}, for example
// RATELIMIT_LOGIN_REQUESTS and RATELIMIT_LOGIN_WINDOW_SEC.
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	return config
}

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g. IP address or user ID).
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	// Check X-Forwarded-For header (comma-separated list)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fallback to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// UserIDKeyExtractor extracts the authenticated user id from the request
// context. Returns empty string for anonymous requests.
func UserIDKeyExtractor(r *http.Request) string {
	return UserIDFromCtx(r.Context())
}

// RateLimitDecision is the result of counting one request against a bucket.
type RateLimitDecision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimitStore counts requests per key over a sliding window.
type RateLimitStore interface {
	Take(ctx context.Context, key string, cfg RateLimitConfig) (RateLimitDecision, error)
}

// RedisRateLimitStore implements a sliding window over a Redis sorted set,
// so the count is shared across replicas. Each request is a member scored
// with its arrival time; everything older than the window is dropped before
// counting.
type RedisRateLimitStore struct {
	Client redis.UniversalClient
}

func (s *RedisRateLimitStore) Take(ctx context.Context, key string, cfg RateLimitConfig) (RateLimitDecision, error) {
	now := time.Now()
	cutoff := now.Add(-cfg.Window).UnixMilli()
	rkey := "ratelimit:" + key

	var card *redis.IntCmd
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, rkey, "0", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, rkey, redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: idx.New().String(),
		})
		card = pipe.ZCard(ctx, rkey)
		pipe.Expire(ctx, rkey, cfg.Window)
		return nil
	})
	if err != nil {
		return RateLimitDecision{}, err
	}

	if card.Val() > int64(cfg.RequestsPerWindow) {
		return RateLimitDecision{Allowed: false, RetryAfter: cfg.Window}, nil
	}
	return RateLimitDecision{Allowed: true}, nil
}

// LocalRateLimitStore is the in-process fallback used when no Redis address
// is configured. Counts are per replica, so the effective limit scales with
// the number of instances.
type LocalRateLimitStore struct {
	limiters sync.Map // map[string]*localBucket
	mu       sync.Mutex
	// Cleanup old limiters periodically
	lastCleanup time.Time
}

type localBucket struct {
	lim    *rate.Limiter
	window time.Duration
	// lastSeen is the unix-nano timestamp of the most recent Take, so the
	// sweep can tell an idle bucket from one created a moment ago.
	lastSeen atomic.Int64
}

func (b *localBucket) touch(now time.Time) {
	b.lastSeen.Store(now.UnixNano())
}

func (b *localBucket) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, b.lastSeen.Load()))
}

func (s *LocalRateLimitStore) Take(_ context.Context, key string, cfg RateLimitConfig) (RateLimitDecision, error) {
	b := s.getBucket(key, cfg)
	b.touch(time.Now())

	if b.lim.Allow() {
		return RateLimitDecision{Allowed: true}, nil
	}

	// Peek at when the next token frees up without consuming it.
	reservation := b.lim.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()

	return RateLimitDecision{Allowed: false, RetryAfter: delay}, nil
}

func (s *LocalRateLimitStore) getBucket(key string, cfg RateLimitConfig) *localBucket {
	if b, ok := s.limiters.Load(key); ok {
		return b.(*localBucket)
	}

	perSecond := float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()
	bucket := &localBucket{
		lim:    rate.NewLimiter(rate.Limit(perSecond), cfg.RequestsPerWindow),
		window: cfg.Window,
	}
	bucket.touch(time.Now())
	actual, _ := s.limiters.LoadOrStore(key, bucket)

	s.maybeCleanup()

	return actual.(*localBucket)
}

// maybeCleanup drops buckets that no request has touched for at least a full
// window, so their budget is back to untouched anyway. Runs at most once
// every five minutes so the scan cost stays off the hot path.
func (s *LocalRateLimitStore) maybeCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.lastCleanup) < 5*time.Minute {
		return
	}
	s.lastCleanup = now

	s.limiters.Range(func(key, value any) bool {
		b := value.(*localBucket)
		if b.idleFor(now) > b.window {
			s.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitMiddleware creates a rate limiting middleware backed by the given
// store. A store error fails OPEN: availability of login beats strictness of
// the limiter, and the event is logged for operators.
func RateLimitMiddleware(store RateLimitStore, name string, cfg RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			decision, err := store.Take(ctx, name+":"+key, cfg)
			if err != nil {
				log.Warn("rate limit store unavailable, allowing request",
					"bucket", name,
					"err", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				retryAfter := max(int(decision.RetryAfter.Seconds()), 1)

				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RequestsPerWindow))
				w.Header().Set("X-RateLimit-Window", cfg.Window.String())

				log.Warn("rate limit exceeded",
					"bucket", name,
					"key", key,
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteDetail(w, http.StatusTooManyRequests,
					"Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP creates a rate limiter that limits by client IP address.
func RateLimitByIP(store RateLimitStore, name string, cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(store, name, cfg, IPKeyExtractor)
}

// RateLimitByUser creates a rate limiter keyed by the authenticated user id,
// falling back to the client IP for anonymous requests. It must sit inside
// the authentication middleware to see the user.
func RateLimitByUser(store RateLimitStore, name string, cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(store, name, cfg, func(r *http.Request) string {
		if uid := UserIDKeyExtractor(r); uid != "" {
			return uid
		}
		return IPKeyExtractor(r)
	})
}

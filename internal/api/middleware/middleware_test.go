package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
	"taskhub/internal/pkg/ratelimit"
	"taskhub/internal/session"

	"github.com/gin-gonic/gin"
)

type fakeLimiter struct {
	allowed bool
	wait    time.Duration
	err     error
	waitErr error
	keys    []string
	waits   int
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	f.keys = append(f.keys, key)
	return f.allowed, f.wait, f.err
}

func (f *fakeLimiter) Wait(ctx context.Context, key string, maxWait time.Duration) error {
	f.waits++
	return f.waitErr
}

type fakeValidator struct {
	identity *session.Identity
	err      error
}

func (f *fakeValidator) Validate(ctx context.Context, token string) (*session.Identity, error) {
	return f.identity, f.err
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) {
		if identity := GetIdentity(c); identity != nil {
			c.String(http.StatusOK, identity.UserID)
			return
		}
		c.String(http.StatusOK, "ok")
	})
	return r
}

func serve(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_Rejects(t *testing.T) {
	limiter := &fakeLimiter{allowed: false, wait: 1500 * time.Millisecond}
	w := serve(newEngine(RateLimit(limiter, 0, nil)), nil)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] == "" {
		t.Fatalf("expected limiter keyed by client ip, got %v", limiter.keys)
	}
	if limiter.waits != 0 {
		t.Fatalf("expected no wait when maxWait is 0, got %d", limiter.waits)
	}
}

func TestRateLimit_WaitsForNearToken(t *testing.T) {
	limiter := &fakeLimiter{allowed: false, wait: 100 * time.Millisecond}
	w := serve(newEngine(RateLimit(limiter, 300*time.Millisecond, nil)), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after waiting, got %d", w.Code)
	}
	if limiter.waits != 1 {
		t.Fatalf("expected one wait, got %d", limiter.waits)
	}
}

func TestRateLimit_WaitTimeoutRejects(t *testing.T) {
	limiter := &fakeLimiter{allowed: false, wait: 100 * time.Millisecond, waitErr: ratelimit.ErrRateLimitTimeout}
	w := serve(newEngine(RateLimit(limiter, 300*time.Millisecond, nil)), nil)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After 1, got %q", got)
	}
}

func TestRateLimit_FarTokenSkipsWait(t *testing.T) {
	limiter := &fakeLimiter{allowed: false, wait: 2 * time.Second}
	w := serve(newEngine(RateLimit(limiter, 300*time.Millisecond, nil)), nil)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if limiter.waits != 0 {
		t.Fatalf("expected no wait for a far token, got %d", limiter.waits)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	w := serve(newEngine(RateLimit(&fakeLimiter{err: errors.New("redis down")}, time.Second, nil)), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when limiter errors, got %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := &fakeValidator{identity: &session.Identity{UserID: "u1", Role: model.RoleBasic}}
	bad := &fakeValidator{err: apperr.ErrInvalidToken}
	broken := &fakeValidator{err: errors.New("db down")}

	cases := []struct {
		name      string
		validator TokenValidator
		header    string
		want      int
		body      string
	}{
		{"missing header", ok, "", http.StatusUnauthorized, ""},
		{"wrong scheme", ok, "Token abc", http.StatusUnauthorized, ""},
		{"empty bearer", ok, "Bearer ", http.StatusUnauthorized, ""},
		{"invalid token", bad, "Bearer abc", http.StatusUnauthorized, ""},
		{"store failure", broken, "Bearer abc", http.StatusInternalServerError, ""},
		{"valid", ok, "Bearer abc", http.StatusOK, "u1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := map[string]string{}
			if tc.header != "" {
				header["Authorization"] = tc.header
			}
			w := serve(newEngine(AuthMiddleware(tc.validator, nil)), header)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, w.Code, w.Body.String())
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("expected body %q, got %q", tc.body, w.Body.String())
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	w := serve(r, nil)
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}

	w = serve(r, map[string]string{RequestIDHeader: "req-1"})
	if got := w.Header().Get(RequestIDHeader); got != "req-1" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}

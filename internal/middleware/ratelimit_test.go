package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/licensegate/licensegate/internal/cache"
)

type fakeLimiter struct {
	result *cache.RateLimitResult
	err    error
	lastIP string
}

func (f *fakeLimiter) CheckIPRateLimit(ctx context.Context, ip string, rps, burst int) (*cache.RateLimitResult, error) {
	f.lastIP = ip
	return f.result, f.err
}

func runRateLimited(t *testing.T, cfg RateLimitConfig) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	handler := RateLimitIP(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activate", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, called
}

func TestRateLimitIP_Allowed(t *testing.T) {
	limiter := &fakeLimiter{result: &cache.RateLimitResult{Allowed: true}}
	rec, called := runRateLimited(t, RateLimitConfig{
		Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), Limiter: limiter, Enabled: true, RPS: 5, Burst: 10,
	})

	if !called || rec.Code != http.StatusOK {
		t.Errorf("expected request to pass, status %d", rec.Code)
	}
	if limiter.lastIP != "203.0.113.7" {
		t.Errorf("limiter got ip %q, want 203.0.113.7", limiter.lastIP)
	}
}

func TestRateLimitIP_Denied(t *testing.T) {
	limiter := &fakeLimiter{result: &cache.RateLimitResult{Allowed: false, RetryAfter: 3 * time.Second}}
	rec, called := runRateLimited(t, RateLimitConfig{
		Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), Limiter: limiter, Enabled: true, RPS: 5, Burst: 10,
	})

	if called {
		t.Error("handler should not be called when rate limited")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "3" {
		t.Errorf("Retry-After = %q, want 3", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimitIP_FailOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	_, called := runRateLimited(t, RateLimitConfig{
		Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), Limiter: limiter, Enabled: true, RPS: 5, Burst: 10,
	})

	if !called {
		t.Error("limiter errors should fail open")
	}
}

func TestRateLimitIP_Disabled(t *testing.T) {
	limiter := &fakeLimiter{result: &cache.RateLimitResult{Allowed: false}}
	_, called := runRateLimited(t, RateLimitConfig{Limiter: limiter, Enabled: false})

	if !called {
		t.Error("disabled limiter should pass requests through")
	}
	if limiter.lastIP != "" {
		t.Error("disabled limiter should not be consulted")
	}
}

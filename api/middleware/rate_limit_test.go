package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type countingLimiter struct {
	counts map[string]int64
	scopes []string
	err    error
}

func (c *countingLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if c.err != nil {
		return false, 0, c.err
	}
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[scope]++
	c.scopes = append(c.scopes, scope)
	return c.counts[scope] <= limit, c.counts[scope], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitBlocksAfterLimitPerUser(t *testing.T) {
	store := &countingLimiter{}
	handler := RateLimit(NewRateLimitPolicy("Checkout", time.Minute, 2), store, nil)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("expected first two requests allowed, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third request got %d", codes[2])
	}
	if store.scopes[0] != "checkout:user:user-1" {
		t.Fatalf("unexpected scope %s", store.scopes[0])
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	other = other.WithContext(WithUserID(other.Context(), "user-2"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, other)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected other user allowed got %d", resp.Code)
	}
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	store := &countingLimiter{}
	handler := RateLimit(NewRateLimitPolicy("gift-card", time.Minute, 5), store, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/gift-cards/ABC", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(store.scopes) != 1 || store.scopes[0] != "gift-card:ip:203.0.113.9" {
		t.Fatalf("unexpected scopes %v", store.scopes)
	}
}

func TestRateLimitStoreFailure(t *testing.T) {
	store := &countingLimiter{err: errors.New("redis down")}
	handler := RateLimit(NewRateLimitPolicy("checkout", time.Minute, 1), store, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req = req.WithContext(WithUserID(req.Context(), "user-1"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code == http.StatusOK {
		t.Fatal("expected failure when limiter store errors")
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := &countingLimiter{}
	handler := RateLimit(NewRateLimitPolicy("checkout", 0, 1), store, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(store.scopes) != 0 {
		t.Fatalf("expected limiter untouched, got %v", store.scopes)
	}
}

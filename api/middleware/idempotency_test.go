package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.data[key] = value.(string)
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"checkout", http.MethodPost, "/api/v1/checkout", criticalIdempotencyTTL, true},
		{"order cancel", http.MethodPost, "/api/v1/orders/{orderId}/cancel", criticalIdempotencyTTL, true},
		{"admin refund", http.MethodPost, "/api/admin/v1/orders/{orderId}/refund", criticalIdempotencyTTL, true},
		{"payout mark paid", http.MethodPost, "/api/admin/v1/payouts/{payoutId}/mark-paid", criticalIdempotencyTTL, true},
		{"gift card issue", http.MethodPost, "/api/v1/gift-cards", defaultIdempotencyTTL, true},
		{"payout run", http.MethodPost, "/api/admin/v1/payouts/run", defaultIdempotencyTTL, true},
		{"order list", http.MethodGet, "/api/v1/orders", 0, false},
		{"webhook", http.MethodPost, "/api/v1/webhooks/payments", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout", strings.NewReader(`{"foo":"bar"}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout", strings.NewReader(`{"foo":"bar"}`))
	req.Header.Set("Idempotency-Key", "abc")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected first response 202 got %d", resp.Code)
	}

	replay := requestWithPattern(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout", strings.NewReader(`{"foo":"bar"}`))
	replay.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected replay status 202 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	if rec.Header().Get(IdempotentReplayedHeader) != "true" {
		t.Fatalf("expected replay to be flagged")
	}
	if resp.Header().Get(IdempotentReplayedHeader) != "" {
		t.Fatalf("first response must not be flagged as replay")
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout", strings.NewReader(`{"foo":"bar"}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := requestWithPattern(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout", strings.NewReader(`{"foo":"diff"}`))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyMiddlewareDetectsQueryChange(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	runs := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runs++
		w.WriteHeader(http.StatusOK)
	})

	const pattern = "/api/admin/v1/payouts/run"
	first := requestWithPattern(http.MethodPost, pattern+"?as_of=2024-03-02", pattern, nil)
	first.Header.Set("Idempotency-Key", "run-1")
	mw(handler).ServeHTTP(httptest.NewRecorder(), first)

	repeated := requestWithPattern(http.MethodPost, pattern+"?as_of=2024-03-02", pattern, nil)
	repeated.Header.Set("Idempotency-Key", "run-1")
	replayed := httptest.NewRecorder()
	mw(handler).ServeHTTP(replayed, repeated)
	if replayed.Code != http.StatusOK || replayed.Header().Get(IdempotentReplayedHeader) != "true" {
		t.Fatalf("expected replay of first run, got %d", replayed.Code)
	}

	other := requestWithPattern(http.MethodPost, pattern+"?as_of=2024-04-02", pattern, nil)
	other.Header.Set("Idempotency-Key", "run-1")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, other)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a different as_of, got %d", resp.Code)
	}
	if runs != 1 {
		t.Fatalf("expected handler to run once, ran %d times", runs)
	}
}

func TestIdempotencyMiddlewareDoesNotPersistServerErrors(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout", strings.NewReader(`{"items":[]}`))
		req.Header.Set("Idempotency-Key", "retry-me")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}

	if calls != 2 {
		t.Fatalf("expected retry after server error to reach handler, got %d calls", calls)
	}
	if len(store.data) != 1 {
		t.Fatalf("expected only the successful response stored, got %d records", len(store.data))
	}
}

func TestIdempotencyMiddlewareResolvesPathUnderGroupMount(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/orders/5f7c/cancel", "/api/v1/*", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewareRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	var inner http.Handler
	outerHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// a duplicate arrives while the first request is still running
			dup := requestWithPattern(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout", strings.NewReader(`{"a":1}`))
			dup.Header.Set(IdempotencyKeyHeader, "same")
			dupResp := httptest.NewRecorder()
			inner.ServeHTTP(dupResp, dup)
			if dupResp.Code != http.StatusConflict {
				t.Errorf("expected in-flight duplicate to get 409, got %d", dupResp.Code)
			}
		}
		w.WriteHeader(http.StatusCreated)
	})
	inner = mw(outerHandler)

	req := requestWithPattern(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout", strings.NewReader(`{"a":1}`))
	req.Header.Set(IdempotencyKeyHeader, "same")
	resp := httptest.NewRecorder()
	inner.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if calls != 1 {
		t.Fatalf("duplicate reached the handler: %d calls", calls)
	}
}

func TestIdempotencyMiddlewareReleasesKeyOnPanic(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := requestWithPattern(http.MethodPost, "/api/admin/v1/orders/abc/refund", "/api/admin/v1/orders/{orderId}/refund", strings.NewReader(`{}`))
	req.Header.Set(IdempotencyKeyHeader, "refund-1")
	func() {
		defer func() { _ = recover() }()
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}()

	if len(store.data) != 0 {
		t.Fatalf("expected pending record released after panic, got %v", store.data)
	}
}

func TestIdempotencyMiddlewareRejectsLongKey(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	req := requestWithPattern(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout", strings.NewReader(`{}`))
	req.Header.Set(IdempotencyKeyHeader, strings.Repeat("k", maxIdempotencyKeyLength+1))
	resp := httptest.NewRecorder()
	mw(http.NotFoundHandler()).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMatchTemplate(t *testing.T) {
	cases := []struct {
		template, path string
		want           bool
	}{
		{"/api/v1/orders/{orderId}/cancel", "/api/v1/orders/5f7c/cancel", true},
		{"/api/v1/orders/{orderId}/cancel", "/api/v1/orders/{orderId}/cancel", true},
		{"/api/v1/orders/{orderId}/cancel", "/api/v1/orders/5f7c/cancel/extra", false},
		{"/api/v1/orders/{orderId}/cancel", "/api/v1/orders//cancel", false},
		{"/api/v1/checkout", "/api/v1/checkout/", true},
		{"/api/v1/gift-cards", "/api/v1/gift-cards/GC-1", false},
	}
	for _, tc := range cases {
		if got := matchTemplate(tc.template, tc.path); got != tc.want {
			t.Fatalf("matchTemplate(%q, %q) = %v, want %v", tc.template, tc.path, got, tc.want)
		}
	}
}

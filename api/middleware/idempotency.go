package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketledger-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/marketledger-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader      = "Idempotency-Key"
	IdempotentReplayedHeader  = "Idempotent-Replayed"
	defaultIdempotencyTTL     = 24 * time.Hour
	criticalIdempotencyTTL    = 7 * 24 * time.Hour
	maxIdempotencyKeyLength   = 255
	maxIdempotentBodyBytes    = 1 << 20
	idempotencyStatePending   = "pending"
	idempotencyStateCompleted = "completed"
)

// idempotencyRule binds a route template to a record TTL. Templates use chi
// syntax; a {param} segment matches any single path segment.
type idempotencyRule struct {
	method   string
	template string
	ttl      time.Duration
}

// Money-moving routes keep their records for a week so a client retrying a
// checkout or refund days later still gets the original answer.
var idempotencyRules = []idempotencyRule{
	{http.MethodPost, "/api/v1/checkout", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/orders/{orderId}/cancel", criticalIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/orders/{orderId}/refund", criticalIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/payouts/{payoutId}/mark-paid", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/gift-cards", defaultIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/orders/{orderId}/status", defaultIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/orders/{orderId}/commissions", defaultIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/payouts/run", defaultIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/vendors/{vendorId}/statements", defaultIdempotencyTTL},
}

type idempotencyRecord struct {
	State       string `json:"state"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

// Idempotency makes the routes in idempotencyRules safe to retry. The first
// request reserves the key with a pending record, so a concurrent duplicate
// gets 409 instead of running twice. Completed responses below 500 are
// replayed byte for byte; 5xx responses release the key for a retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			idemKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			switch {
			case idemKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(idemKey) > maxIdempotencyKeyLength:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBodyBytes+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			if len(body) > maxIdempotentBodyBytes {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashRequest(r.URL.Query().Encode(), body)
			key := store.IdempotencyKey(idempotencyScope(r), idemKey)

			pending, _ := json.Marshal(idempotencyRecord{State: idempotencyStatePending, RequestHash: requestHash})
			reserved, err := store.SetNX(ctx, key, string(pending), ttl)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayExisting(w, r, store, key, requestHash, logg)
				return
			}

			// Anything other than a stored record, including a panic in the
			// handler, gives the key back so the client can retry.
			persisted := false
			defer func() {
				if persisted {
					return
				}
				if delErr := store.Del(ctx, key); delErr != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", delErr)
				}
			}()

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			status := rec.statusCode()
			if status >= http.StatusInternalServerError {
				return
			}

			done, _ := json.Marshal(idempotencyRecord{
				State:       idempotencyStateCompleted,
				RequestHash: requestHash,
				Status:      status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
			})
			if setErr := store.Set(ctx, key, string(done), ttl); setErr != nil {
				if logg != nil {
					logg.Error(ctx, "persist idempotency record", setErr)
				}
				return
			}
			persisted = true
		})
	}
}

func replayExisting(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, key, requestHash string, logg *logger.Logger) {
	ctx := r.Context()
	stored, err := store.Get(ctx, key)
	if err != nil && !errors.Is(err, redis.Nil) {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	if stored == "" {
		// expired between SETNX and GET
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotent request state changed, retry"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != requestHash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request"))
		return
	}
	if record.State != idempotencyStateCompleted {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still in progress"))
		return
	}

	body, err := base64.StdEncoding.DecodeString(record.Body)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotent response"))
		return
	}
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(IdempotentReplayedHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(body)
}

// idempotencyScope ties a key to the caller and the concrete resource path so
// two users, or two orders, never share a record.
func idempotencyScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

// hashRequest fingerprints the canonical query string and the body, so a
// replay must repeat both.
func hashRequest(query string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write(payload)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// routePattern prefers the chi template. Group middleware runs before the
// subrouter resolves, where the pattern is still a wildcard mount point, so
// the concrete path is used instead.
func routePattern(r *http.Request) string {
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return pattern
		}
	}
	if path := strings.TrimSuffix(r.URL.Path, "/"); path != "" {
		return path
	}
	return r.URL.Path
}

func routeTTL(method, path string) (time.Duration, bool) {
	if path == "" {
		return 0, false
	}
	for _, rule := range idempotencyRules {
		if rule.method == method && matchTemplate(rule.template, path) {
			return rule.ttl, true
		}
	}
	return 0, false
}

func matchTemplate(template, path string) bool {
	want := strings.Split(strings.Trim(template, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, seg := range want {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if seg != got[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

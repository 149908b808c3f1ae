package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/kitchenstock-backend/api/responses"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/kitchenstock-backend/pkg/redis"
)

const (
	idempotencyHeader      = "Idempotency-Key"
	replayedHeader         = "Idempotent-Replayed"
	maxIdempotencyKeyLen   = 128
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	inFlightTTL            = time.Minute
	inFlightMarker         = "in-flight"
)

// idempotentRoute is a write endpoint that requires an Idempotency-Key.
// Segments written as {} match any single path segment.
type idempotentRoute struct {
	method   string
	segments []string
	ttl      time.Duration
}

func route(method, template string, ttl time.Duration) idempotentRoute {
	return idempotentRoute{method: method, segments: splitPath(template), ttl: ttl}
}

// Stock movements keep their keys for a week so late client retries of a
// delivery or a waste entry are still absorbed. orders/consume is keyed by
// order id inside the engine and is not listed.
var idempotentRoutes = []idempotentRoute{
	route(http.MethodPost, "/api/v1/inventory", defaultIdempotencyTTL),
	route(http.MethodPut, "/api/v1/inventory/{}/stock", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/v1/inventory/{}/restock", criticalIdempotencyTTL),
	route(http.MethodPost, "/api/v1/inventory/{}/waste", criticalIdempotencyTTL),
	route(http.MethodPost, "/api/v1/notifications/{}/read", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/v1/notifications/read-all", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/v1/outbox/dlq/{}/requeue", defaultIdempotencyTTL),
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func (r idempotentRoute) matches(method string, segments []string) bool {
	if r.method != method || len(r.segments) != len(segments) {
		return false
	}
	for i, want := range r.segments {
		if want != "{}" && want != segments[i] {
			return false
		}
	}
	return true
}

// routeTTL reports how long responses for method+path are remembered.
// Matching runs on the concrete path because the middleware sits above the
// subrouters that resolve route patterns.
func routeTTL(method, path string) (time.Duration, bool) {
	segments := splitPath(path)
	for _, r := range idempotentRoutes {
		if r.matches(method, segments) {
			return r.ttl, true
		}
	}
	return 0, false
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the first non-5xx response stored under a staff
// member's Idempotency-Key. A key is claimed before the handler runs so a
// concurrent duplicate is rejected instead of executed twice. A nil store
// disables the middleware.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" || len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation,
					"Idempotency-Key header required (max 128 characters)"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			hash := requestHash(body)
			key := store.IdempotencyKey(buildScope(r), clientKey)

			claimed, err := store.SetNX(ctx, key, inFlightMarker, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayStored(ctx, w, logg, store, key, hash)
				return
			}

			capture := &bodyCapture{statusRecorder: recorderFor(w)}
			next.ServeHTTP(capture, r)

			status := defaultStatus(capture.status)
			if status >= http.StatusInternalServerError {
				// Server errors release the key so the client can retry.
				if err := store.Del(context.WithoutCancel(ctx), key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			stored := storedResponse{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				RequestHash: hash,
			}
			payload, err := json.Marshal(stored)
			if err == nil {
				err = store.Set(context.WithoutCancel(ctx), key, string(payload), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "persist idempotent response", err)
			}
		})
	}
}

func replayStored(ctx context.Context, w http.ResponseWriter, logg *logger.Logger, store pkgredis.IdempotencyStore, key, hash string) {
	raw, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// The claim expired between SetNX and Get; treat it as in flight.
		raw = inFlightMarker
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotent response"))
		return
	}
	if raw == inFlightMarker {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency,
			"a request with this Idempotency-Key is still being processed"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotent response"))
		return
	}
	if stored.RequestHash != hash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency,
			"Idempotency-Key was already used with a different request body"))
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

// buildScope isolates keys per staff member, method and path.
func buildScope(r *http.Request) string {
	return strings.Join([]string{StaffIDFromContext(r.Context()), r.Method, strings.TrimSuffix(r.URL.Path, "/")}, "|")
}

func requestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type bodyCapture struct {
	*statusRecorder
	body bytes.Buffer
}

func (c *bodyCapture) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.statusRecorder.Write(b)
}

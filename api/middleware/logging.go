package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
)

// Logging writes one access line per request once the handler returns.
// Probe and scrape traffic is logged at debug so it does not drown the
// order and stock writes.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	if logg == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := recorderFor(w)
			next.ServeHTTP(rec, r)

			status := defaultStatus(rec.status)
			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"route":       routePattern(r),
				"status":      status,
				"bytes":       rec.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if staffID := StaffIDFromContext(r.Context()); staffID != "" {
				fields["staff_id"] = staffID
			}
			ctx := logg.WithFields(r.Context(), fields)

			switch {
			case isProbe(r.URL.Path):
				logg.Debug(ctx, "request served")
			case status >= http.StatusInternalServerError:
				logg.Warn(ctx, "request failed")
			default:
				logg.Info(ctx, "request served")
			}
		})
	}
}

func isProbe(path string) bool {
	return strings.HasPrefix(path, "/health/") || path == "/metrics"
}

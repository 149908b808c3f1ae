package controllers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/angelmondragon/kitchenstock-backend/api/responses"
	"github.com/angelmondragon/kitchenstock-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
)

const (
	readinessTimeout = 2 * time.Second
	envHeader        = "X-KitchenStock-Env"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DependencyCheck is one entry of the readiness report.
type DependencyCheck struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency in parallel under one shared deadline.
// Any failure answers DEPENDENCY_ERROR with the full report in details.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		checks, healthy := pingAll(ctx, deps)

		if !healthy {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").
				WithDetails(map[string]any{"checks": checks}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

func pingAll(ctx context.Context, deps map[string]Pinger) (map[string]DependencyCheck, bool) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
		checks  = make(map[string]DependencyCheck, len(deps))
	)
	for name, dep := range deps {
		if dep == nil {
			continue
		}
		wg.Go(func() {
			start := time.Now()
			err := dep.Ping(ctx)
			check := DependencyCheck{Status: "up", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				check.Status, check.Error = "down", err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			checks[name] = check
			healthy = healthy && err == nil
		})
	}
	wg.Wait()
	return checks, healthy
}

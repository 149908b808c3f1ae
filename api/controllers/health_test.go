package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kitchenstock-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func healthConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}

func TestHealthReadyReportsEveryDependency(t *testing.T) {
	deps := map[string]Pinger{
		"database": pingFunc(func(context.Context) error { return nil }),
		"redis":    pingFunc(func(context.Context) error { return nil }),
		"unset":    nil,
	}
	rec := httptest.NewRecorder()
	HealthReady(healthConfig(), nil, deps)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", rec.Header().Get(envHeader))
	var body struct {
		Data struct {
			Status string                     `json:"status"`
			Checks map[string]DependencyCheck `json:"checks"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ready", body.Data.Status)
	require.Len(t, body.Data.Checks, 2)
	require.Equal(t, "up", body.Data.Checks["redis"].Status)
}

func TestHealthReadyFailsOnAnyDownDependency(t *testing.T) {
	deps := map[string]Pinger{
		"database": pingFunc(func(context.Context) error { return nil }),
		"redis":    pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	}
	rec := httptest.NewRecorder()
	HealthReady(healthConfig(), nil, deps)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Checks map[string]DependencyCheck `json:"checks"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, string(pkgerrors.CodeDependency), body.Error.Code)
	require.Equal(t, "down", body.Error.Details.Checks["redis"].Status)
	require.Equal(t, "connection refused", body.Error.Details.Checks["redis"].Error)
	require.Equal(t, "up", body.Error.Details.Checks["database"].Status)
}

package responses

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/types"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "responses-test", Output: io.Discard})
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "world", body.Data.(map[string]any)["hello"])
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]int{"count": 1})
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "demo"})
	WriteError(context.Background(), testLogger(), w, err)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, string(pkgerrors.CodeValidation), body.Error.Code)
	require.Equal(t, "bad input", body.Error.Message)
	require.NotNil(t, body.Error.Details)
}

func TestWriteErrorExposesShortfallsForInsufficientStock(t *testing.T) {
	w := httptest.NewRecorder()
	shortfall := map[string]any{
		"shortfalls": []map[string]string{{
			"ingredientId": uuid.NewString(),
			"required":     "300",
			"available":    "120",
		}},
	}
	err := pkgerrors.New(pkgerrors.CodeInsufficientStock, "flour is short").WithDetails(shortfall)
	WriteError(context.Background(), testLogger(), w, err)

	require.Equal(t, http.StatusConflict, w.Code)

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, string(pkgerrors.CodeInsufficientStock), body.Error.Code)
	require.Equal(t, "flour is short", body.Error.Message)
	details, ok := body.Error.Details.(map[string]any)
	require.True(t, ok)
	require.Len(t, details["shortfalls"], 1)
}

func TestWriteErrorHidesStorageDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, errors.New("dial tcp: refused"), "load inventory").
		WithDetails(map[string]string{"host": "db.internal"})
	WriteError(context.Background(), testLogger(), w, err)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "storage unavailable", body.Error.Message)
	require.True(t, body.Error.Retryable)
	require.Nil(t, body.Error.Details)
	require.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestWriteErrorRetryAfterOnlyForRetryableFailures(t *testing.T) {
	conflict := httptest.NewRecorder()
	WriteError(context.Background(), testLogger(), conflict, pkgerrors.New(pkgerrors.CodeStockConflict, "stock changed"))
	require.Equal(t, http.StatusConflict, conflict.Code)
	require.Equal(t, "1", conflict.Header().Get("Retry-After"))

	shortfall := httptest.NewRecorder()
	WriteError(context.Background(), testLogger(), shortfall, pkgerrors.New(pkgerrors.CodeInsufficientStock, "short"))
	require.Empty(t, shortfall.Header().Get("Retry-After"))

	internal := httptest.NewRecorder()
	WriteError(context.Background(), testLogger(), internal, errors.New("boom"))
	require.Empty(t, internal.Header().Get("Retry-After"))
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	require.Nil(t, body.Error.Details)
}

func TestWriteErrorEchoesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	ctx := types.WithRequestID(context.Background(), "till-3-0107")
	WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "ingredient not found"))

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "till-3-0107", body.Error.RequestID)
	require.False(t, body.Error.Retryable)
}

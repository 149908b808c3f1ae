package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenstock-backend/internal/engine"
	pkgAuth "github.com/angelmondragon/kitchenstock-backend/pkg/auth"
	"github.com/angelmondragon/kitchenstock-backend/pkg/config"
	dbpkg "github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/metrics"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})

	dsn := "file:routes_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	eng, err := engine.Build(engine.Params{
		Conn: conn,
		DB:   dbpkg.NewFromConn(conn),
		Config: config.EngineConfig{
			CommitTimeout:        5 * time.Second,
			CompensationAttempts: 2,
			CascadeRetries:       1,
		},
		Logger: logg,
	})
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	reg := prometheus.NewRegistry()
	return NewRouter(Params{
		Config:   cfg,
		Logger:   logg,
		DB:       stubPinger{},
		Engine:   eng,
		Metrics:  metrics.NewHTTPMetrics(reg),
		Gatherer: reg,
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.StaffRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		StaffID: uuid.New(),
		Role:    role,
		JTI:     uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v (%s)", err, resp.Body.String())
	}
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error: %v (%s)", err, resp.Body.String())
	}
	return envelope.Error.Code
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := newTestRouter(t, testConfig())
	resp := doJSON(t, router, http.MethodGet, "/health/live", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-KitchenStock-Env") != "test" {
		t.Fatalf("expected env header")
	}
}

func TestAPIRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(t, testConfig())
	resp := doJSON(t, router, http.MethodGet, "/api/v1/inventory", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestInventoryWritesRequireManager(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	body := map[string]any{"name": "flour", "unit": "g", "initialStock": "100", "minStockLevel": "10", "maxStockLevel": "500"}

	resp := doJSON(t, router, http.MethodPost, "/api/v1/inventory", buildToken(t, cfg, enums.StaffRoleCashier), body)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier got %d", resp.Code)
	}

	resp = doJSON(t, router, http.MethodPost, "/api/v1/inventory", buildToken(t, cfg, enums.StaffRoleManager), body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for manager got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestKitchenCannotSubmitOrders(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	body := map[string]any{
		"orderId": uuid.NewString(),
		"items":   []map[string]any{{"menuItemId": uuid.NewString(), "quantity": 1}},
	}
	resp := doJSON(t, router, http.MethodPost, "/api/v1/orders/consume", buildToken(t, cfg, enums.StaffRoleKitchen), body)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for kitchen got %d", resp.Code)
	}
}

func TestOrderConsumptionFlow(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	manager := buildToken(t, cfg, enums.StaffRoleManager)
	cashier := buildToken(t, cfg, enums.StaffRoleCashier)

	flourID := uuid.New()
	resp := doJSON(t, router, http.MethodPost, "/api/v1/inventory", manager, map[string]any{
		"ingredientId":  flourID.String(),
		"name":          "flour",
		"unit":          "g",
		"initialStock":  "300",
		"minStockLevel": "100",
		"maxStockLevel": "1000",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create ingredient: %d %s", resp.Code, resp.Body.String())
	}

	breadID := uuid.New()
	resp = doJSON(t, router, http.MethodPut, "/api/v1/menu-items/"+breadID.String(), manager, map[string]any{
		"name": "bread",
		"ingredients": []map[string]any{
			{"ingredientId": flourID.String(), "portionPerUnit": "150"},
		},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("sync menu item: %d %s", resp.Code, resp.Body.String())
	}

	unknown := doJSON(t, router, http.MethodPost, "/api/v1/orders/consume", cashier, map[string]any{
		"orderId": uuid.NewString(),
		"items":   []map[string]any{{"menuItemId": uuid.NewString(), "quantity": 1}},
	})
	if unknown.Code != http.StatusUnprocessableEntity || errorCode(t, unknown) != "UNKNOWN_MENU_ITEM" {
		t.Fatalf("expected UNKNOWN_MENU_ITEM got %d %s", unknown.Code, unknown.Body.String())
	}

	short := doJSON(t, router, http.MethodPost, "/api/v1/orders/consume", cashier, map[string]any{
		"orderId": uuid.NewString(),
		"items":   []map[string]any{{"menuItemId": breadID.String(), "quantity": 3}},
	})
	if short.Code != http.StatusConflict || errorCode(t, short) != "INSUFFICIENT_STOCK" {
		t.Fatalf("expected INSUFFICIENT_STOCK got %d %s", short.Code, short.Body.String())
	}

	orderID := uuid.New()
	order := map[string]any{
		"orderId": orderID.String(),
		"items":   []map[string]any{{"menuItemId": breadID.String(), "quantity": 2}},
	}
	resp = doJSON(t, router, http.MethodPost, "/api/v1/orders/consume", cashier, order)
	if resp.Code != http.StatusCreated {
		t.Fatalf("consume order: %d %s", resp.Code, resp.Body.String())
	}
	var result struct {
		Replayed            bool `json:"replayed"`
		ConsumedIngredients     []struct {
			IngredientID string `json:"ingredientId"`
			NewStatus    string `json:"newStatus"`
		} `json:"consumedIngredients"`
		UpdatedMenuItemStatuses []struct {
			MenuItemID string `json:"menuItemId"`
			To         string `json:"to"`
		} `json:"updatedMenuItemStatuses"`
	}
	decodeData(t, resp, &result)
	if len(result.ConsumedIngredients) != 1 || result.ConsumedIngredients[0].NewStatus != string(enums.StockStatusOutOfStock) {
		t.Fatalf("unexpected consumption %+v", result.ConsumedIngredients)
	}
	if len(result.UpdatedMenuItemStatuses) != 1 || result.UpdatedMenuItemStatuses[0].To != string(enums.MenuItemStatusOutOfStock) {
		t.Fatalf("unexpected menu flips %+v", result.UpdatedMenuItemStatuses)
	}

	replay := doJSON(t, router, http.MethodPost, "/api/v1/orders/consume", cashier, order)
	if replay.Code != http.StatusOK {
		t.Fatalf("replay: %d %s", replay.Code, replay.Body.String())
	}
	decodeData(t, replay, &result)
	if !result.Replayed {
		t.Fatalf("expected replayed result")
	}

	history := doJSON(t, router, http.MethodGet, "/api/v1/orders/"+orderID.String()+"/consumption", cashier, nil)
	if history.Code != http.StatusOK {
		t.Fatalf("history: %d %s", history.Code, history.Body.String())
	}
	var records []map[string]any
	decodeData(t, history, &records)
	if len(records) != 1 {
		t.Fatalf("expected one consumption record got %d", len(records))
	}

	var alertsList []struct {
		Type string `json:"type"`
	}
	alertsResp := doJSON(t, router, http.MethodGet, "/api/v1/alerts?ingredientId="+flourID.String(), cashier, nil)
	decodeData(t, alertsResp, &alertsList)
	if len(alertsList) != 1 || alertsList[0].Type != string(enums.AlertTypeOutOfStock) {
		t.Fatalf("expected one out_of_stock alert got %+v", alertsList)
	}

	restock := doJSON(t, router, http.MethodPost, "/api/v1/inventory/"+flourID.String()+"/restock", manager, map[string]any{"quantity": "400"})
	if restock.Code != http.StatusOK {
		t.Fatalf("restock: %d %s", restock.Code, restock.Body.String())
	}

	var availability struct {
		Orderable bool `json:"orderable"`
	}
	decodeData(t, doJSON(t, router, http.MethodGet, "/api/v1/menu-items/"+breadID.String()+"/availability", cashier, nil), &availability)
	if !availability.Orderable {
		t.Fatalf("expected bread orderable after restock")
	}
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	router := newTestRouter(t, testConfig())
	doJSON(t, router, http.MethodGet, "/health/live", "", nil)

	resp := doJSON(t, router, http.MethodGet, "/metrics", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte("http_requests_total")) {
		t.Fatalf("expected http_requests_total in metrics output")
	}
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/kitchenstock-backend/api/controllers"
	"github.com/angelmondragon/kitchenstock-backend/api/middleware"
	"github.com/angelmondragon/kitchenstock-backend/internal/engine"
	"github.com/angelmondragon/kitchenstock-backend/pkg/config"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/metrics"
	"github.com/angelmondragon/kitchenstock-backend/pkg/redis"
)

// Params carries the dependencies the HTTP surface is built from. Redis and
// Gatherer are optional; without Redis the idempotency middleware is a no-op.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	Engine   *engine.Engine
	Metrics  *metrics.HTTPMetrics
	Gatherer prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	cfg, logg, eng := p.Config, p.Logger, p.Engine

	var (
		idempotencyStore redis.IdempotencyStore
		readiness        = map[string]controllers.Pinger{"database": p.DB}
	)
	if p.Redis != nil {
		idempotencyStore = p.Redis
		readiness["redis"] = p.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(p.Metrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(p.Gatherer))
	}

	managers := middleware.RequireRole(logg, enums.StaffRoleManager, enums.StaffRoleSystem)
	cashiers := middleware.RequireRole(logg, enums.StaffRoleCashier, enums.StaffRoleManager, enums.StaffRoleSystem)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(cashiers).Post("/consume", controllers.ConsumeOrder(eng.Orders, logg))
			r.Get("/{orderId}/consumption", controllers.OrderConsumption(eng.History, logg))
		})

		r.Route("/menu-items", func(r chi.Router) {
			r.Get("/", controllers.ListMenuItems(eng.Menu, logg))
			r.Get("/{menuItemId}", controllers.GetMenuItem(eng.Menu, logg))
			r.Get("/{menuItemId}/availability", controllers.MenuItemAvailability(eng.Availability, logg))
			r.With(managers).Put("/{menuItemId}", controllers.SyncMenuItem(eng.Menu, eng.Availability, logg))
			r.With(managers).Put("/{menuItemId}/status", controllers.SetMenuItemStatus(eng.Availability, logg))
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", controllers.ListInventory(eng.Inventory, logg))
			r.With(managers).Post("/", controllers.CreateInventoryItem(eng.Inventory, logg))
			r.With(managers).Get("/reconciliation", controllers.InventoryReconciliation(eng.Inventory, logg))
			r.Route("/{ingredientId}", func(r chi.Router) {
				r.Get("/", controllers.GetInventoryItem(eng.Inventory, logg))
				r.Get("/adjustments", controllers.InventoryAdjustments(eng.Inventory, logg))
				r.Get("/consumption", controllers.IngredientConsumption(eng.History, logg))
				r.Group(func(r chi.Router) {
					r.Use(managers)
					r.Post("/restock", controllers.RestockInventory(eng.Inventory, logg))
					r.Post("/waste", controllers.RecordWaste(eng.Inventory, logg))
					r.Put("/stock", controllers.SetStockLevel(eng.Inventory, logg))
					r.Put("/thresholds", controllers.UpdateThresholds(eng.Inventory, logg))
				})
			})
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", controllers.ListAlerts(eng.Alerts, logg))
			r.With(managers).Post("/{alertId}/resolve", controllers.ResolveAlert(eng.Alerts, logg))
		})

		r.With(managers).Post("/availability/resync", controllers.ResyncAvailability(eng.Availability, eng.Alerts, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(eng.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(eng.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(eng.Notifications, logg))
		})

		r.Route("/outbox/dlq", func(r chi.Router) {
			r.Use(managers)
			r.Get("/", controllers.ListDeadLetters(eng.DLQ, logg))
			r.Get("/{eventId}", controllers.GetDeadLetter(eng.DLQ, logg))
			r.Post("/{eventId}/requeue", controllers.RequeueDeadLetter(eng.DLQ, logg))
		})
	})

	return r
}

// Package engine assembles the consumption engine from its repositories and
// services so every binary wires it the same way.
package engine

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenstock-backend/internal/alerts"
	"github.com/angelmondragon/kitchenstock-backend/internal/availability"
	"github.com/angelmondragon/kitchenstock-backend/internal/batch"
	"github.com/angelmondragon/kitchenstock-backend/internal/consumption"
	"github.com/angelmondragon/kitchenstock-backend/internal/inventory"
	"github.com/angelmondragon/kitchenstock-backend/internal/menu"
	"github.com/angelmondragon/kitchenstock-backend/internal/notifications"
	"github.com/angelmondragon/kitchenstock-backend/internal/orders"
	"github.com/angelmondragon/kitchenstock-backend/internal/stock"
	"github.com/angelmondragon/kitchenstock-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/metrics"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Params carries the shared infrastructure the engine is built on. Cache is
// optional; without it orders skip the distributed lock and replay cache.
type Params struct {
	Conn    *gorm.DB
	DB      txRunner
	Config  config.EngineConfig
	Logger  *logger.Logger
	Metrics *metrics.EngineMetrics
	Cache   orders.Cache
}

// Engine exposes the services the API and workers call into.
type Engine struct {
	Inventory     inventory.Service
	Menu          menu.Service
	Availability  *availability.Cascader
	Alerts        *alerts.Deduplicator
	Orders        orders.Service
	History       *consumption.History
	Notifications notifications.Service
	Outbox        *outbox.Service
	DLQ           *outbox.DLQRepository
	OutboxRepo    *outbox.Repository
}

// Build wires every engine component against one database connection.
func Build(p Params) (*Engine, error) {
	if p.Conn == nil || p.DB == nil || p.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "engine requires a database and logger")
	}

	inventoryRepo := inventory.NewRepository(p.Conn)
	menuRepo := menu.NewRepository(p.Conn)
	ledger := consumption.NewRepository(p.Conn)
	alertRepo := alerts.NewRepository(p.Conn)
	outboxRepo := outbox.NewRepository(p.Conn)
	emitter := outbox.NewService(outboxRepo, p.Logger.Named("outbox"))
	fetcher := batch.NewFetcher(menuRepo, inventoryRepo)

	cascader, err := availability.NewCascader(availability.Params{
		DB:      p.DB,
		Menu:    menuRepo,
		Fetcher: fetcher,
		Outbox:  emitter,
		Logger:  p.Logger.Named("availability"),
		Metrics: p.Metrics,
	})
	if err != nil {
		return nil, err
	}

	dedup, err := alerts.NewDeduplicator(alerts.Params{
		DB:        p.DB,
		Repo:      alertRepo,
		Inventory: inventoryRepo,
		Outbox:    emitter,
		Logger:    p.Logger.Named("alerts"),
		Metrics:   p.Metrics,
	})
	if err != nil {
		return nil, err
	}

	reactor, err := orders.NewReactor(orders.ReactorParams{
		Cascader: cascader,
		Alerts:   dedup,
		Logger:   p.Logger.Named("reactor"),
		Metrics:  p.Metrics,
		Retries:  p.Config.CascadeRetries,
	})
	if err != nil {
		return nil, err
	}

	updater, err := stock.NewUpdater(stock.Params{
		DB:                   p.DB,
		Inventory:            inventoryRepo,
		Ledger:               ledger,
		Outbox:               emitter,
		Logger:               p.Logger.Named("stock"),
		Metrics:              p.Metrics,
		CompensationAttempts: p.Config.CompensationAttempts,
		CommitTimeout:        p.Config.CommitTimeout,
	})
	if err != nil {
		return nil, err
	}

	inventorySvc, err := inventory.NewService(inventory.ServiceParams{
		DB:          p.DB,
		Repo:        inventoryRepo,
		Outbox:      emitter,
		Consumption: ledger,
		Handler:     reactor,
		Logger:      p.Logger.Named("inventory"),
	})
	if err != nil {
		return nil, err
	}

	menuSvc, err := menu.NewService(p.DB, menuRepo)
	if err != nil {
		return nil, err
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		DB:         p.DB,
		Calculator: consumption.NewCalculator(fetcher),
		Updater:    updater,
		Claims:     ledger,
		Reactor:    reactor,
		Outbox:     emitter,
		Cache:      p.Cache,
		Logger:     p.Logger.Named("orders"),
		Metrics:    p.Metrics,
		LockTTL:    p.Config.OrderLockTTL,
		ReplayTTL:  p.Config.ReplayTTL,
	})
	if err != nil {
		return nil, err
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(p.Conn))
	if err != nil {
		return nil, err
	}

	return &Engine{
		Inventory:     inventorySvc,
		Menu:          menuSvc,
		Availability:  cascader,
		Alerts:        dedup,
		Orders:        ordersSvc,
		History:       consumption.NewHistory(ledger),
		Notifications: notificationsSvc,
		Outbox:        emitter,
		DLQ:           outbox.NewDLQRepository(p.Conn),
		OutboxRepo:    outboxRepo,
	}, nil
}

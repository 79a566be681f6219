package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-import/internal/importorder"
	"github.com/odyssey-erp/odyssey-import/internal/inventory"
	"github.com/odyssey-erp/odyssey-import/internal/masterdata"
	"github.com/odyssey-erp/odyssey-import/internal/observability"
	"github.com/odyssey-erp/odyssey-import/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-import/internal/platform/db"
	"github.com/odyssey-erp/odyssey-import/internal/procurement"
	"github.com/odyssey-erp/odyssey-import/internal/rbac"
	"github.com/odyssey-erp/odyssey-import/internal/shared"
	"github.com/odyssey-erp/odyssey-import/internal/shipment"
	"github.com/odyssey-erp/odyssey-import/internal/shipmentimport"
	"github.com/odyssey-erp/odyssey-import/jobs"
)

// Session store prefixes; lock keys live under "lock:".
const (
	shipmentSessionPrefix    = "session:shipment-import"
	importOrderSessionPrefix = "session:import-order"
	plannedSupplyNamespace   = "planned-supply"
)

// Container holds the wired services shared by the server and the worker.
type Container struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	Jobs    *jobs.Client

	Audit       *shared.AuditLogger
	Idempotency *shared.IdempotencyStore
	RBAC        rbac.Middleware

	Masterdata        masterdata.Service
	Inventory         *inventory.Service
	Shipments         *shipment.Service
	ShipmentImport    *shipmentimport.Service
	Procurement       *procurement.Service
	ImportOrders      *importorder.Service
	ImportOrderWizard *importorder.Wizard
}

// NewContainer connects to Postgres and Redis and wires every service.
func NewContainer(ctx context.Context, cfg *Config, logger *slog.Logger) (*Container, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return Wire(cfg, logger, pool, redisClient), nil
}

// Wire builds the service graph on existing connections.
func Wire(cfg *Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient *redis.Client) *Container {
	c := &Container{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		Redis:       redisClient,
		Metrics:     observability.NewMetrics(),
		Jobs:        jobs.NewClient(jobs.RedisOpt(cfg.RedisAddr)),
		Audit:       shared.NewAuditLogger(pool),
		Idempotency: shared.NewIdempotencyStore(pool),
	}
	c.RBAC = rbac.Middleware{Source: rbac.NewService(pool), Logger: logger}
	locker := shared.NewLocker(redisClient)

	c.Masterdata = masterdata.NewService(masterdata.NewRepository(pool))
	c.Inventory = inventory.NewService(inventory.NewRepository(pool), c.Audit, c.Idempotency, logger)

	c.Shipments = shipment.NewService(shipment.ServiceDeps{
		Repo:      shipment.NewRepository(pool),
		Inventory: c.Inventory,
		Routing:   c.Masterdata,
		Cache:     cache.NewVersioned(redisClient, plannedSupplyNamespace, cfg.PlannedSupplyCacheTTL),
		Metrics:   c.Metrics.Import,
		Audit:     c.Audit,
		Logger:    logger,
	})
	c.Inventory.AddObserver(shipment.NewReverser(c.Shipments, logger))

	c.ShipmentImport = shipmentimport.NewService(shipmentimport.Deps{
		Store:       cache.NewStore(redisClient, shipmentSessionPrefix),
		Lines:       c.Shipments,
		Locker:      locker,
		Idempotency: c.Idempotency,
		Metrics:     c.Metrics.Import,
		Notifier:    jobs.GroupNotifier{Queue: c.Jobs, To: cfg.ImportNotifyEmail},
		Logger:      logger,
	}, shipmentimport.Options{
		SessionTTL:     cfg.ImportSessionTTL,
		LockTTL:        cfg.ImportLockTTL,
		PriceTolerance: cfg.PriceTolerance(),
		Locale:         cfg.ImportLocale,
	})

	c.Procurement = procurement.NewService(procurement.NewRepository(pool), c.Inventory, c.Masterdata, c.Shipments, c.Audit, c.Idempotency, logger)

	c.ImportOrders = importorder.NewService(importorder.NewRepository(pool), c.Masterdata, c.Audit, logger)
	c.ImportOrderWizard = importorder.NewWizard(importorder.WizardDeps{
		Store:       cache.NewStore(redisClient, importOrderSessionPrefix),
		Orders:      c.ImportOrders,
		Purchases:   c.Procurement,
		Locker:      locker,
		Idempotency: c.Idempotency,
		Metrics:     c.Metrics.Import,
		Logger:      logger,
	}, importorder.WizardOptions{
		SessionTTL:     cfg.ImportSessionTTL,
		LockTTL:        cfg.ImportLockTTL,
		PriceTolerance: cfg.PriceTolerance(),
		Locale:         cfg.ImportLocale,
	})
	return c
}

// Close releases connections.
func (c *Container) Close() {
	if c.Jobs != nil {
		if err := c.Jobs.Close(); err != nil {
			c.Logger.Warn("jobs client close", slog.Any("error", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

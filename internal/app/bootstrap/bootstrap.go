package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	dropallocationengine "dropvault/contexts/drop-distribution/drop-allocation-engine"
	httpadapter "dropvault/contexts/drop-distribution/drop-allocation-engine/adapters/http"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/adapters/memory"
	postgresadapter "dropvault/contexts/drop-distribution/drop-allocation-engine/adapters/postgres"
	sqliteadapter "dropvault/contexts/drop-distribution/drop-allocation-engine/adapters/sqlite"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/workers"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
	"dropvault/internal/platform/config"
	"dropvault/internal/platform/db"
	"dropvault/internal/platform/httpserver"
	"dropvault/internal/platform/messaging"
	platformotel "dropvault/internal/platform/otel"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const moduleName = "internal/app/bootstrap"

type APIApp struct {
	server   *httpserver.Server
	throttle *httpadapter.Throttle
	closers  []func() error
	tracing  func(context.Context) error
	logger   *slog.Logger
}

type WorkerApp struct {
	outboxRelay  workers.OutboxRelay
	pollInterval time.Duration
	closers      []func() error
	tracing      func(context.Context) error
	logger       *slog.Logger
}

// ProvisionApp exposes the provisioning use case to the provision command.
type ProvisionApp struct {
	Module  dropallocationengine.Module
	closers []func() error
	logger  *slog.Logger
}

// storeSet is the adapter bundle selected by DROP_STORE_DRIVER.
type storeSet struct {
	inventory   ports.InventoryRepository
	requesters  ports.RequesterRepository
	audit       ports.AuditLog
	allocations ports.AllocationStore
	outbox      ports.OutboxRepository
	clock       ports.Clock
	ids         ports.IDGenerator
	closers     []func() error
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, "api")

	tracing, err := platformotel.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		_ = tracing(ctx)
		return nil, err
	}

	throttle := httpadapter.NewThrottle(cfg.GatewayRatePerSecond, cfg.GatewayBurst)
	module, err := newModule(cfg, stores, throttle, logger)
	if err != nil {
		closeAll(stores.closers)
		_ = tracing(ctx)
		return nil, err
	}

	return &APIApp{
		server:   httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort)),
		throttle: throttle,
		closers:  stores.closers,
		tracing:  tracing,
		logger:   logger,
	}, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, "worker")
	if cfg.StoreDriver == config.StoreMemory {
		return nil, errors.New("worker requires DROP_STORE_DRIVER=postgres or sqlite")
	}
	// Rows are marked sent on publish and nothing in-process consumes them.
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, errors.New("worker requires REDIS_ADDR")
	}

	tracing, err := platformotel.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		_ = tracing(ctx)
		return nil, err
	}

	client, err := messaging.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		closeAll(stores.closers)
		_ = tracing(ctx)
		return nil, err
	}
	stores.closers = append(stores.closers, client.Close)
	publisher := messaging.NewRedisPublisher(client, logger)

	module, err := newModule(cfg, stores, nil, logger)
	if err != nil {
		closeAll(stores.closers)
		_ = tracing(ctx)
		return nil, err
	}

	return &WorkerApp{
		outboxRelay:  module.NewOutboxRelay(publisher, cfg.EventTopic, cfg.OutboxBatchSize),
		pollInterval: cfg.OutboxPollEvery,
		closers:      stores.closers,
		tracing:      tracing,
		logger:       logger,
	}, nil
}

func BuildProvision(ctx context.Context) (*ProvisionApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, "provision")
	if cfg.StoreDriver == config.StoreMemory {
		return nil, errors.New("provisioning requires DROP_STORE_DRIVER=postgres or sqlite")
	}

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	module, err := newModule(cfg, stores, nil, logger)
	if err != nil {
		closeAll(stores.closers)
		return nil, err
	}
	return &ProvisionApp{Module: module, closers: stores.closers, logger: logger}, nil
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (storeSet, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pg, err := db.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return storeSet{}, err
		}
		repo := postgresadapter.NewRepository(pg.DB, logger)
		if cfg.AutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				_ = pg.Close()
				return storeSet{}, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		return storeSet{
			inventory:   repo,
			requesters:  repo,
			audit:       repo,
			allocations: repo,
			outbox:      repo,
			clock:       postgresadapter.SystemClock{},
			ids:         postgresadapter.UUIDGenerator{},
			closers:     []func() error{pg.Close},
		}, nil
	case config.StoreSQLite:
		store, err := sqliteadapter.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return storeSet{}, err
		}
		return storeSet{
			inventory:   store,
			requesters:  store,
			audit:       store,
			allocations: store,
			outbox:      store,
			clock:       postgresadapter.SystemClock{},
			ids:         postgresadapter.UUIDGenerator{},
			closers:     []func() error{store.Close},
		}, nil
	default:
		logger.Warn("using in-memory drop store; the pool starts empty and cannot be provisioned",
			"event", "bootstrap_memory_store",
			"module", moduleName,
			"layer", "platform",
		)
		store := memory.NewStore(nil, logger)
		return storeSet{
			inventory:   store,
			requesters:  store,
			audit:       store,
			allocations: store,
			outbox:      store,
			clock:       store,
			ids:         store,
		}, nil
	}
}

func newModule(cfg config.Config, stores storeSet, throttle *httpadapter.Throttle, logger *slog.Logger) (dropallocationengine.Module, error) {
	location, err := cfg.Location()
	if err != nil {
		return dropallocationengine.Module{}, err
	}
	return dropallocationengine.NewModule(dropallocationengine.Dependencies{
		Inventory:          stores.inventory,
		Requesters:         stores.requesters,
		Audit:              stores.audit,
		Allocations:        stores.allocations,
		Outbox:             stores.outbox,
		Clock:              stores.clock,
		IDGenerator:        stores.ids,
		VerificationMarker: cfg.VerificationMarker,
		Location:           location,
		StoreTimeout:       cfg.StoreTimeout,
		Throttle:           throttle,
		Logger:             logger,
	}), nil
}

func (a *APIApp) Run(ctx context.Context) error {
	a.throttle.StartJanitor(ctx)
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", moduleName,
		"layer", "platform",
	)
	return a.server.Start(ctx)
}

func (a *APIApp) Close() error {
	err := closeAll(a.closers)
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(err, a.tracing(ctx))
	}
	return err
}

// Run relays pending outbox rows every poll interval until ctx is cancelled.
// A failed cycle is logged and retried on the next tick.
func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", moduleName,
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if w.runCycle(ctx) && ctx.Err() == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// runCycle relays one batch and reports whether another batch is waiting.
func (w *WorkerApp) runCycle(ctx context.Context) bool {
	report, err := w.outboxRelay.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("outbox relay cycle failed",
				"event", "bootstrap_worker_cycle_failed",
				"module", moduleName,
				"layer", "platform",
				"published", report.Published,
				"rejected", report.Rejected,
				"deferred", report.Deferred,
				"error", err.Error(),
			)
		}
		return false
	}
	if report.Rejected > 0 {
		w.logger.Warn("outbox rows rejected as malformed",
			"event", "bootstrap_worker_rows_rejected",
			"module", moduleName,
			"layer", "platform",
			"rejected", report.Rejected,
		)
	}
	return report.More
}

func (w *WorkerApp) Close() error {
	err := closeAll(w.closers)
	if w.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(err, w.tracing(ctx))
	}
	return err
}

func (p *ProvisionApp) Logger() *slog.Logger {
	return p.logger
}

func (p *ProvisionApp) Close() error {
	return closeAll(p.closers)
}

func newLogger(cfg config.Config, process string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})
	logger := slog.New(handler).With("service", cfg.ServiceName, "process", process)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func closeAll(closers []func() error) error {
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = errors.Join(err, closers[i]())
	}
	return err
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}

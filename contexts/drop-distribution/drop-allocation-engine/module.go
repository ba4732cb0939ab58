package dropallocationengine

import (
	"log/slog"
	"time"

	httpadapter "dropvault/contexts/drop-distribution/drop-allocation-engine/adapters/http"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/adapters/memory"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/commands"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/queries"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/workers"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/services"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
)

// Module is the composition surface of the drop engine. Runtime wiring
// consumes Handler, Provision and NewOutboxRelay; Store is set only by
// NewInMemoryModule for tests and local runs.
type Module struct {
	Handler   httpadapter.Handler
	Provision commands.ProvisionItemsUseCase
	Store     *memory.Store

	outbox ports.OutboxRepository
	clock  ports.Clock
	logger *slog.Logger
}

type Dependencies struct {
	Inventory          ports.InventoryRepository
	Requesters         ports.RequesterRepository
	Audit              ports.AuditLog
	Allocations        ports.AllocationStore
	Outbox             ports.OutboxRepository
	Clock              ports.Clock
	IDGenerator        ports.IDGenerator
	VerificationMarker string
	Location           *time.Location
	StoreTimeout       time.Duration
	Throttle           *httpadapter.Throttle
	Logger             *slog.Logger
}

// NewModule wires the drop use cases against explicit ports.
func NewModule(deps Dependencies) Module {
	marker := deps.VerificationMarker
	if marker == "" {
		marker = services.DefaultVerificationMarker
	}
	location := deps.Location
	if location == nil {
		location = time.UTC
	}

	requestDrop := commands.RequestDropUseCase{
		Inventory:          deps.Inventory,
		Audit:              deps.Audit,
		Allocations:        deps.Allocations,
		Clock:              deps.Clock,
		IDGenerator:        deps.IDGenerator,
		VerificationMarker: marker,
		Location:           location,
		StoreTimeout:       deps.StoreTimeout,
		Logger:             deps.Logger,
	}

	handler := httpadapter.Handler{
		RequestDrop: requestDrop,
		AvailableSummary: queries.GetAvailableSummaryUseCase{
			Inventory: deps.Inventory,
			Logger:    deps.Logger,
		},
		GetRequester: queries.GetRequesterUseCase{
			Requesters: deps.Requesters,
			Logger:     deps.Logger,
		},
		ListAllocations: queries.ListAllocationsUseCase{
			Audit:  deps.Audit,
			Logger: deps.Logger,
		},
		Throttle:           deps.Throttle,
		VerificationMarker: marker,
		Logger:             deps.Logger,
	}

	return Module{
		Handler: handler,
		Provision: commands.ProvisionItemsUseCase{
			Inventory:   deps.Inventory,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			Logger:      deps.Logger,
		},
		outbox: deps.Outbox,
		clock:  deps.Clock,
		logger: deps.Logger,
	}
}

// NewOutboxRelay builds the relay that drains drop.allocated outbox rows into
// publisher.
func (m Module) NewOutboxRelay(publisher ports.EventPublisher, topic string, batchSize int) workers.OutboxRelay {
	return workers.OutboxRelay{
		Outbox:    m.outbox,
		Publisher: publisher,
		Clock:     m.clock,
		Topic:     topic,
		BatchSize: batchSize,
		Logger:    m.logger,
	}
}

// NewInMemoryModule wires the drop use cases against the in-memory store.
func NewInMemoryModule(seedItems []entities.Item, logger *slog.Logger) Module {
	store := memory.NewStore(seedItems, logger)
	module := NewModule(Dependencies{
		Inventory:    store,
		Requesters:   store,
		Audit:        store,
		Allocations:  store,
		Outbox:       store,
		Clock:        store,
		IDGenerator:  store,
		Location:     time.UTC,
		StoreTimeout: 5 * time.Second,
		Throttle:     httpadapter.NewThrottle(1, 5),
		Logger:       logger,
	})
	module.Store = store
	return module
}

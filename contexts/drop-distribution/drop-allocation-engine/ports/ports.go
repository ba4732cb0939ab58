package ports

import (
	"context"
	"time"

	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	contractsv1 "dropvault/contracts/gen/events/v1"
)

// InventoryRepository is the read side of the item pool plus provisioning inserts.
type InventoryRepository interface {
	AvailableCounts(ctx context.Context) ([]entities.CategoryCount, error)
	TotalAvailable(ctx context.Context) (int, error)
	AddItems(ctx context.Context, items []entities.Item) error
}

// RequesterRepository reads the requester ledger.
type RequesterRepository interface {
	GetRequester(ctx context.Context, requesterID string) (entities.Requester, error)
}

// AuditLog reads the append-only allocation trail.
type AuditLog interface {
	HasAllocationOn(ctx context.Context, requesterID string, day entities.CalendarDay) (bool, error)
	ListAllocationsByRequester(ctx context.Context, requesterID string) ([]entities.AllocationEvent, error)
}

// AllocationGrant carries everything the store needs to commit one drop.
type AllocationGrant struct {
	RequesterID string
	Username    string
	DisplayName string
	EventID     string
	OutboxID    string
	OccurredAt  time.Time
	Location    *time.Location
}

// AllocationStore owns the single write boundary of the engine.
type AllocationStore interface {
	// AllocateItem must, in one transaction, reserve a uniformly random available
	// item, upsert the requester, append the allocation event and write the
	// drop.allocated outbox row. It returns ErrPoolExhausted when nothing is
	// available and ErrAlreadyClaimedToday when an allocation event for the
	// requester and day already exists.
	AllocateItem(ctx context.Context, grant AllocationGrant) (entities.Allocation, error)
}

// Clock allows deterministic testing of calendar-day rules.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts item/event/outbox identifier generation.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// OutboxRepository models worker-side outbox polling/acknowledgement. Rows leave
// the pending set either as sent or, when their envelope cannot be relayed, as
// failed with the reason recorded.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
	MarkOutboxFailed(ctx context.Context, outboxID string, reason string, failedAt time.Time) error
}

// EventEnvelope reuses the canonical cross-runtime envelope contract.
type EventEnvelope = contractsv1.Envelope

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

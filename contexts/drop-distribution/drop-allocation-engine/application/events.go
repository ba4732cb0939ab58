package application

import (
	"encoding/json"

	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
)

const (
	AllocatedEventType = "drop.allocated"
	SourceService      = "drop-allocation-engine"
)

// NewAllocatedEnvelope builds the outbox envelope for one allocation, partitioned
// by requester. Item payloads never leave the store through events.
func NewAllocatedEnvelope(eventID string, allocation entities.Allocation) (ports.EventEnvelope, error) {
	data, err := json.Marshal(map[string]string{
		"allocation_event_id": allocation.Event.EventID,
		"requester_id":        allocation.Event.RequesterID,
		"item_id":             allocation.Event.ItemID,
		"category":            allocation.Item.Category,
		"allocation_day":      allocation.Event.AllocationDay.String(),
	})
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        AllocatedEventType,
		OccurredAt:       allocation.Event.OccurredAt.UTC(),
		SourceService:    SourceService,
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "requester_id",
		PartitionKey:     allocation.Event.RequesterID,
		Data:             data,
	}, nil
}

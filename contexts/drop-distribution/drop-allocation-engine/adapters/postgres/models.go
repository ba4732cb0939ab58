package postgresadapter

import (
	"time"

	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"

	"gorm.io/datatypes"
)

type itemModel struct {
	ItemID      string         `gorm:"column:item_id;primaryKey"`
	Category    string         `gorm:"column:category;not null;index:drop_items_available,priority:2"`
	Payload     datatypes.JSON `gorm:"column:payload;type:json;not null"`
	Allocated   bool           `gorm:"column:allocated;not null;default:false;index:drop_items_available,priority:1"`
	AllocatedTo *string        `gorm:"column:allocated_to"`
	AllocatedAt *time.Time     `gorm:"column:allocated_at"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
}

func (itemModel) TableName() string {
	return "drop_items"
}

func itemModelFromEntity(item entities.Item) (itemModel, error) {
	payload, err := item.Payload.MarshalJSON()
	if err != nil {
		return itemModel{}, err
	}
	row := itemModel{
		ItemID:    item.ItemID,
		Category:  item.Category,
		Payload:   datatypes.JSON(payload),
		Allocated: item.Allocated,
		CreatedAt: item.CreatedAt.UTC(),
	}
	if item.AllocatedTo != "" {
		allocatedTo := item.AllocatedTo
		row.AllocatedTo = &allocatedTo
	}
	if item.AllocatedAt != nil {
		allocatedAt := item.AllocatedAt.UTC()
		row.AllocatedAt = &allocatedAt
	}
	return row, nil
}

func (m itemModel) toEntity() (entities.Item, error) {
	payload, err := entities.ParsePayload([]byte(m.Payload))
	if err != nil {
		return entities.Item{}, err
	}
	item := entities.Item{
		ItemID:    m.ItemID,
		Category:  m.Category,
		Payload:   payload,
		Allocated: m.Allocated,
		CreatedAt: m.CreatedAt.UTC(),
	}
	if m.AllocatedTo != nil {
		item.AllocatedTo = *m.AllocatedTo
	}
	if m.AllocatedAt != nil {
		allocatedAt := m.AllocatedAt.UTC()
		item.AllocatedAt = &allocatedAt
	}
	return item, nil
}

type requesterModel struct {
	RequesterID      string    `gorm:"column:requester_id;primaryKey"`
	Username         string    `gorm:"column:username"`
	DisplayName      string    `gorm:"column:display_name"`
	Verified         bool      `gorm:"column:verified;not null;default:false"`
	TotalAllocations int       `gorm:"column:total_allocations;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
	LastSeenAt       time.Time `gorm:"column:last_seen_at;not null"`
}

func (requesterModel) TableName() string {
	return "drop_requesters"
}

func requesterModelFromEntity(requester entities.Requester) requesterModel {
	return requesterModel{
		RequesterID:      requester.RequesterID,
		Username:         requester.Username,
		DisplayName:      requester.DisplayName,
		Verified:         requester.Verified,
		TotalAllocations: requester.TotalAllocations,
		CreatedAt:        requester.CreatedAt.UTC(),
		LastSeenAt:       requester.LastSeenAt.UTC(),
	}
}

func (m requesterModel) toEntity() entities.Requester {
	return entities.Requester{
		RequesterID:      m.RequesterID,
		Username:         m.Username,
		DisplayName:      m.DisplayName,
		Verified:         m.Verified,
		TotalAllocations: m.TotalAllocations,
		CreatedAt:        m.CreatedAt.UTC(),
		LastSeenAt:       m.LastSeenAt.UTC(),
	}
}

// allocationEventModel rows are never updated. The composite unique index is the
// store-level guard against two same-day allocations for one requester.
type allocationEventModel struct {
	EventID       string    `gorm:"column:event_id;primaryKey"`
	RequesterID   string    `gorm:"column:requester_id;not null;uniqueIndex:drop_allocation_events_daily_unique,priority:1"`
	ItemID        string    `gorm:"column:item_id;not null;uniqueIndex:drop_allocation_events_item_unique"`
	Action        string    `gorm:"column:action;not null;uniqueIndex:drop_allocation_events_daily_unique,priority:2"`
	AllocationDay string    `gorm:"column:allocation_day;not null;uniqueIndex:drop_allocation_events_daily_unique,priority:3"`
	OccurredAt    time.Time `gorm:"column:occurred_at;not null"`
}

func (allocationEventModel) TableName() string {
	return "drop_allocation_events"
}

func allocationEventModelFromEntity(event entities.AllocationEvent) allocationEventModel {
	return allocationEventModel{
		EventID:       event.EventID,
		RequesterID:   event.RequesterID,
		ItemID:        event.ItemID,
		Action:        string(event.Action),
		AllocationDay: event.AllocationDay.String(),
		OccurredAt:    event.OccurredAt.UTC(),
	}
}

func (m allocationEventModel) toEntity() entities.AllocationEvent {
	return entities.AllocationEvent{
		EventID:       m.EventID,
		RequesterID:   m.RequesterID,
		ItemID:        m.ItemID,
		Action:        entities.AllocationAction(m.Action),
		AllocationDay: entities.CalendarDay(m.AllocationDay),
		OccurredAt:    m.OccurredAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type;not null"`
	PartitionKey string     `gorm:"column:partition_key;not null"`
	Payload      []byte     `gorm:"column:payload;not null"`
	Status       string     `gorm:"column:status;not null;index"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	SentAt       *time.Time `gorm:"column:sent_at"`
	FailedAt     *time.Time `gorm:"column:failed_at"`
	LastError    string     `gorm:"column:last_error;not null;default:''"`
}

func (outboxModel) TableName() string {
	return "drop_outbox"
}

func (m outboxModel) toPort() ports.OutboxMessage {
	return ports.OutboxMessage{
		OutboxID:     m.OutboxID,
		EventType:    m.EventType,
		PartitionKey: m.PartitionKey,
		Payload:      append([]byte(nil), m.Payload...),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

package entities

import (
	"strings"
	"time"

	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
)

type AllocationAction string

const AllocationActionAllocated AllocationAction = "allocated"

// AllocationEvent is an immutable audit row. AllocationDay is the calendar day of
// OccurredAt in the deployment's configured zone.
type AllocationEvent struct {
	EventID       string
	RequesterID   string
	ItemID        string
	Action        AllocationAction
	AllocationDay CalendarDay
	OccurredAt    time.Time
}

func NewAllocationEvent(
	eventID string,
	requesterID string,
	itemID string,
	occurredAt time.Time,
	loc *time.Location,
) (AllocationEvent, error) {
	if strings.TrimSpace(eventID) == "" ||
		strings.TrimSpace(requesterID) == "" ||
		strings.TrimSpace(itemID) == "" {
		return AllocationEvent{}, domainerrors.ErrInvalidDropRequest
	}
	return AllocationEvent{
		EventID:       eventID,
		RequesterID:   requesterID,
		ItemID:        itemID,
		Action:        AllocationActionAllocated,
		AllocationDay: DayOf(occurredAt, loc),
		OccurredAt:    occurredAt.UTC(),
	}, nil
}

// Allocation is everything one successful drop produced.
type Allocation struct {
	Item      Item
	Requester Requester
	Event     AllocationEvent
}

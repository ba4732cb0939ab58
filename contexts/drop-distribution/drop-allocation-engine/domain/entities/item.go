package entities

import (
	"strings"
	"time"

	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
)

// Item is one unit of inventory. Once Allocated flips to true it never reverts.
type Item struct {
	ItemID      string
	Category    string
	Payload     Payload
	Allocated   bool
	AllocatedTo string
	AllocatedAt *time.Time
	CreatedAt   time.Time
}

func NewItem(itemID string, category string, payload Payload, createdAt time.Time) (Item, error) {
	category = strings.TrimSpace(category)
	if strings.TrimSpace(itemID) == "" || category == "" {
		return Item{}, domainerrors.ErrInvalidItem
	}
	if len(payload) == 0 {
		return Item{}, domainerrors.ErrInvalidPayload
	}
	for _, field := range payload {
		if strings.TrimSpace(field.Name) == "" {
			return Item{}, domainerrors.ErrInvalidPayload
		}
	}
	return Item{
		ItemID:    itemID,
		Category:  category,
		Payload:   payload.Clone(),
		CreatedAt: createdAt.UTC(),
	}, nil
}

// MarkAllocated returns a copy of the item owned by requesterID.
func (i Item) MarkAllocated(requesterID string, at time.Time) (Item, error) {
	if i.Allocated {
		return Item{}, domainerrors.ErrRepositoryInvariantBroke
	}
	allocatedAt := at.UTC()
	i.Allocated = true
	i.AllocatedTo = requesterID
	i.AllocatedAt = &allocatedAt
	i.Payload = i.Payload.Clone()
	return i, nil
}

package entities

import (
	"strings"
	"time"
)

// Requester is the ledger row for an identity that has received at least one drop.
// TotalAllocations is a derived cache; the allocation events are authoritative.
type Requester struct {
	RequesterID      string
	Username         string
	DisplayName      string
	Verified         bool
	TotalAllocations int
	CreatedAt        time.Time
	LastSeenAt       time.Time
}

// RecordAllocation applies one successful allocation to the requester, creating the
// ledger row when existing is nil.
func RecordAllocation(existing *Requester, requesterID string, username string, displayName string, at time.Time) Requester {
	at = at.UTC()
	if existing == nil {
		return Requester{
			RequesterID:      requesterID,
			Username:         strings.TrimSpace(username),
			DisplayName:      displayName,
			Verified:         true,
			TotalAllocations: 1,
			CreatedAt:        at,
			LastSeenAt:       at,
		}
	}

	next := *existing
	if value := strings.TrimSpace(username); value != "" {
		next.Username = value
	}
	next.DisplayName = displayName
	next.Verified = true
	next.TotalAllocations++
	next.LastSeenAt = at
	return next
}

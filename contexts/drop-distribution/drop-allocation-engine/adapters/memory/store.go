package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	application "dropvault/contexts/drop-distribution/drop-allocation-engine/application"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
)

// Store is an in-memory adapter implementing the engine ports for local runtime and
// tests. It is not intended as production persistence.
type Store struct {
	mu          sync.RWMutex
	items       map[string]entities.Item
	itemOrder   []string
	requesters  map[string]entities.Requester
	events      []entities.AllocationEvent
	dailyClaims map[string]string
	outbox      map[string]ports.OutboxMessage
	outboxOrder []string
	outboxSent  map[string]time.Time
	outboxDead  map[string]string
	sequence    uint64
	logger      *slog.Logger
}

// NewStore seeds the item pool.
func NewStore(seedItems []entities.Item, logger *slog.Logger) *Store {
	s := &Store{
		items:       make(map[string]entities.Item, len(seedItems)),
		itemOrder:   make([]string, 0, len(seedItems)),
		requesters:  make(map[string]entities.Requester),
		events:      make([]entities.AllocationEvent, 0),
		dailyClaims: make(map[string]string),
		outbox:      make(map[string]ports.OutboxMessage),
		outboxOrder: make([]string, 0),
		outboxSent:  make(map[string]time.Time),
		outboxDead:  make(map[string]string),
		logger:      application.ResolveLogger(logger),
	}
	for _, item := range seedItems {
		s.items[item.ItemID] = item
		s.itemOrder = append(s.itemOrder, item.ItemID)
	}
	return s
}

func (s *Store) AvailableCounts(_ context.Context) ([]entities.CategoryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, item := range s.items {
		if !item.Allocated {
			counts[item.Category]++
		}
	}
	result := make([]entities.CategoryCount, 0, len(counts))
	for category, count := range counts {
		result = append(result, entities.CategoryCount{Category: category, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Category < result[j].Category
	})
	return result, nil
}

func (s *Store) TotalAvailable(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, item := range s.items {
		if !item.Allocated {
			total++
		}
	}
	return total, nil
}

func (s *Store) AddItems(_ context.Context, items []entities.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if _, exists := s.items[item.ItemID]; exists {
			return domainerrors.ErrRepositoryInvariantBroke
		}
	}
	for _, item := range items {
		s.items[item.ItemID] = item
		s.itemOrder = append(s.itemOrder, item.ItemID)
	}
	return nil
}

// GetItem is used by tests to inspect item state.
func (s *Store) GetItem(_ context.Context, itemID string) (entities.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemID]
	if !ok {
		return entities.Item{}, domainerrors.ErrInvalidItem
	}
	return item, nil
}

func (s *Store) GetRequester(_ context.Context, requesterID string) (entities.Requester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	requester, ok := s.requesters[requesterID]
	if !ok {
		return entities.Requester{}, domainerrors.ErrRequesterNotFound
	}
	return requester, nil
}

func (s *Store) HasAllocationOn(_ context.Context, requesterID string, day entities.CalendarDay) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, event := range s.events {
		if event.RequesterID == requesterID &&
			event.Action == entities.AllocationActionAllocated &&
			event.AllocationDay == day {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListAllocationsByRequester(_ context.Context, requesterID string) ([]entities.AllocationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]entities.AllocationEvent, 0)
	for _, event := range s.events {
		if event.RequesterID == requesterID {
			result = append(result, event)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt.After(result[j].OccurredAt)
	})
	return result, nil
}

// ListAllocationEvents returns the full audit trail in append order.
func (s *Store) ListAllocationEvents(_ context.Context) ([]entities.AllocationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]entities.AllocationEvent(nil), s.events...), nil
}

func (s *Store) AllocateItem(_ context.Context, grant ports.AllocationGrant) (entities.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// One critical section stands in for the transaction: nothing below is applied
	// unless every step succeeds.
	claimKey := dailyClaimKey(grant.RequesterID, entities.DayOf(grant.OccurredAt, grant.Location))
	if _, claimed := s.dailyClaims[claimKey]; claimed {
		return entities.Allocation{}, domainerrors.ErrAlreadyClaimedToday
	}

	item, err := s.reserveRandomAvailable(grant.RequesterID, grant.OccurredAt)
	if err != nil {
		return entities.Allocation{}, err
	}
	event, err := entities.NewAllocationEvent(grant.EventID, grant.RequesterID, item.ItemID, grant.OccurredAt, grant.Location)
	if err != nil {
		return entities.Allocation{}, err
	}

	var existing *entities.Requester
	if row, ok := s.requesters[grant.RequesterID]; ok {
		existing = &row
	}
	requester := entities.RecordAllocation(existing, grant.RequesterID, grant.Username, grant.DisplayName, grant.OccurredAt)
	allocation := entities.Allocation{Item: item, Requester: requester, Event: event}

	envelope, err := application.NewAllocatedEnvelope(grant.OutboxID, allocation)
	if err != nil {
		return entities.Allocation{}, err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return entities.Allocation{}, err
	}
	if _, exists := s.outbox[grant.OutboxID]; exists {
		return entities.Allocation{}, domainerrors.ErrRepositoryInvariantBroke
	}

	s.items[item.ItemID] = item
	s.requesters[requester.RequesterID] = requester
	s.events = append(s.events, event)
	s.dailyClaims[claimKey] = event.EventID
	s.outbox[grant.OutboxID] = ports.OutboxMessage{
		OutboxID:     grant.OutboxID,
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		CreatedAt:    event.OccurredAt,
	}
	s.outboxOrder = append(s.outboxOrder, grant.OutboxID)

	s.logger.Info("allocation persisted in memory store",
		"event", "memory_allocate_item",
		"module", application.ModuleName,
		"layer", "adapter",
		"requester_id", grant.RequesterID,
		"item_id", item.ItemID,
		"allocation_event_id", event.EventID,
	)
	return allocation, nil
}

// reserveRandomAvailable picks uniformly among unallocated items and returns the
// allocated copy. Callers hold s.mu and persist the copy themselves.
func (s *Store) reserveRandomAvailable(requesterID string, at time.Time) (entities.Item, error) {
	available := make([]string, 0, len(s.itemOrder))
	for _, id := range s.itemOrder {
		if !s.items[id].Allocated {
			available = append(available, id)
		}
	}
	if len(available) == 0 {
		return entities.Item{}, domainerrors.ErrPoolExhausted
	}
	picked := s.items[available[rand.IntN(len(available))]]
	return picked.MarkAllocated(requesterID, at)
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	messages := make([]ports.OutboxMessage, 0, limit)
	for _, id := range s.outboxOrder {
		if _, sent := s.outboxSent[id]; sent {
			continue
		}
		if _, dead := s.outboxDead[id]; dead {
			continue
		}
		if msg, ok := s.outbox[id]; ok {
			messages = append(messages, msg)
		}
		if len(messages) >= limit {
			break
		}
	}
	return messages, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outbox[outboxID]; !ok {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	s.outboxSent[outboxID] = sentAt.UTC()
	return nil
}

func (s *Store) MarkOutboxFailed(_ context.Context, outboxID string, reason string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outbox[outboxID]; !ok {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	if _, sent := s.outboxSent[outboxID]; sent {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	s.outboxDead[outboxID] = reason
	return nil
}

// OutboxFailure reports the recorded reason for a failed outbox row.
func (s *Store) OutboxFailure(outboxID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reason, ok := s.outboxDead[outboxID]
	return reason, ok
}

// InjectOutboxMessage appends a raw pending row. Tests use it to stage rows the
// allocation path would never write.
func (s *Store) InjectOutboxMessage(msg ports.OutboxMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outbox[msg.OutboxID] = msg
	s.outboxOrder = append(s.outboxOrder, msg.OutboxID)
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	n := atomic.AddUint64(&s.sequence, 1)
	return fmt.Sprintf("drop-%d", n), nil
}

func dailyClaimKey(requesterID string, day entities.CalendarDay) string {
	return requesterID + "|" + string(entities.AllocationActionAllocated) + "|" + day.String()
}

package commands_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"dropvault/contexts/drop-distribution/drop-allocation-engine/adapters/memory"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/commands"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
)

const verifiedName = "Jane tornettlogs.cc uhq logs"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeItems(t *testing.T, n int) []entities.Item {
	t.Helper()
	items := make([]entities.Item, 0, n)
	for i := 0; i < n; i++ {
		category := "Gift Card"
		if i%2 == 1 {
			category = "Promo Code"
		}
		item, err := entities.NewItem(
			fmt.Sprintf("item-%02d", i),
			category,
			entities.Payload{{Name: "code", Value: fmt.Sprintf("CODE-%02d", i)}, {Name: "value", Value: "10"}},
			time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		)
		if err != nil {
			t.Fatalf("new item: %v", err)
		}
		items = append(items, item)
	}
	return items
}

func newEngine(t *testing.T, items int, clock *fakeClock) (commands.RequestDropUseCase, *memory.Store) {
	t.Helper()
	store := memory.NewStore(makeItems(t, items), quietLogger())
	return commands.RequestDropUseCase{
		Inventory:   store,
		Audit:       store,
		Allocations: store,
		Clock:       clock,
		IDGenerator: store,
		Location:    time.UTC,
		Logger:      quietLogger(),
	}, store
}

func TestRequestDropRequiresRequesterID(t *testing.T) {
	engine, _ := newEngine(t, 1, &fakeClock{now: time.Now()})
	_, err := engine.Execute(context.Background(), commands.RequestDropCommand{RequesterID: "  ", DisplayName: verifiedName})
	if !errors.Is(err, domainerrors.ErrInvalidDropRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestRequestDropRejectsUnverifiedRequester(t *testing.T) {
	engine, store := newEngine(t, 2, &fakeClock{now: time.Now()})

	result, err := engine.Execute(context.Background(), commands.RequestDropCommand{RequesterID: "r-1", DisplayName: "Jane"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome != commands.DropOutcomeNotVerified || result.Allocation != nil {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Available.Total != 2 {
		t.Fatalf("expected summary alongside rejection, got %+v", result.Available)
	}
	total, _ := store.TotalAvailable(context.Background())
	if total != 2 {
		t.Fatalf("unverified request must not allocate, available=%d", total)
	}
	if _, err := store.GetRequester(context.Background(), "r-1"); !errors.Is(err, domainerrors.ErrRequesterNotFound) {
		t.Fatalf("unverified requester must not be recorded, got %v", err)
	}
}

func TestRequestDropAllocatesAndRecordsEverything(t *testing.T) {
	ctx := context.Background()
	engine, store := newEngine(t, 3, &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)})

	result, err := engine.Execute(ctx, commands.RequestDropCommand{
		RequesterID: "r-1",
		Username:    "jane",
		DisplayName: "jane TORNETTLOGS.cc UHQ logs",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome != commands.DropOutcomeAllocated || result.Allocation == nil {
		t.Fatalf("unexpected result %+v", result)
	}
	allocation := result.Allocation
	if allocation.Item.AllocatedTo != "r-1" || len(allocation.Item.Payload) != 2 {
		t.Fatalf("unexpected allocated item %+v", allocation.Item)
	}

	stored, err := store.GetItem(ctx, allocation.Item.ItemID)
	if err != nil || !stored.Allocated || stored.AllocatedTo != "r-1" {
		t.Fatalf("item not persisted as allocated: %+v err=%v", stored, err)
	}
	requester, err := store.GetRequester(ctx, "r-1")
	if err != nil || requester.TotalAllocations != 1 || !requester.Verified || requester.Username != "jane" {
		t.Fatalf("unexpected requester %+v err=%v", requester, err)
	}
	events, _ := store.ListAllocationsByRequester(ctx, "r-1")
	if len(events) != 1 || events[0].ItemID != allocation.Item.ItemID || events[0].AllocationDay != "2026-03-01" {
		t.Fatalf("unexpected audit trail %+v", events)
	}
	pending, _ := store.ListPendingOutbox(ctx, 10)
	if len(pending) != 1 || pending[0].PartitionKey != "r-1" {
		t.Fatalf("expected one pending outbox row, got %+v", pending)
	}
}

func TestRequestDropOncePerCalendarDay(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 23, 58, 0, 0, time.UTC)}
	engine, store := newEngine(t, 5, clock)
	cmd := commands.RequestDropCommand{RequesterID: "r-1", DisplayName: verifiedName}

	first, _ := engine.Execute(ctx, cmd)
	if first.Outcome != commands.DropOutcomeAllocated {
		t.Fatalf("expected first allocation, got %s", first.Outcome)
	}

	clock.Set(time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC))
	second, _ := engine.Execute(ctx, cmd)
	if second.Outcome != commands.DropOutcomeAlreadyClaimedToday {
		t.Fatalf("expected already claimed, got %s", second.Outcome)
	}
	if second.Available.Total != 4 {
		t.Fatalf("expected summary with 4 left, got %+v", second.Available)
	}

	clock.Set(time.Date(2026, 3, 2, 0, 0, 1, 0, time.UTC))
	third, _ := engine.Execute(ctx, cmd)
	if third.Outcome != commands.DropOutcomeAllocated {
		t.Fatalf("expected allocation on the next day, got %s", third.Outcome)
	}

	requester, _ := store.GetRequester(ctx, "r-1")
	if requester.TotalAllocations != 2 {
		t.Fatalf("expected two allocations, got %d", requester.TotalAllocations)
	}
}

func TestRequestDropCalendarDayFollowsConfiguredZone(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)}
	engine, _ := newEngine(t, 3, clock)
	engine.Location = time.FixedZone("UTC+10", 10*60*60)
	cmd := commands.RequestDropCommand{RequesterID: "r-1", DisplayName: verifiedName}

	if result, _ := engine.Execute(ctx, cmd); result.Outcome != commands.DropOutcomeAllocated {
		t.Fatalf("expected allocation, got %s", result.Outcome)
	}
	// still 2026-03-02 at UTC+10
	clock.Set(time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC))
	if result, _ := engine.Execute(ctx, cmd); result.Outcome != commands.DropOutcomeAlreadyClaimedToday {
		t.Fatalf("expected already claimed in configured zone, got %s", result.Outcome)
	}
}

func TestRequestDropPoolExhausted(t *testing.T) {
	ctx := context.Background()
	engine, store := newEngine(t, 1, &fakeClock{now: time.Now()})

	first, _ := engine.Execute(ctx, commands.RequestDropCommand{RequesterID: "r-1", DisplayName: verifiedName})
	if first.Outcome != commands.DropOutcomeAllocated {
		t.Fatalf("expected allocation, got %s", first.Outcome)
	}
	second, _ := engine.Execute(ctx, commands.RequestDropCommand{RequesterID: "r-2", DisplayName: verifiedName})
	if second.Outcome != commands.DropOutcomePoolExhausted {
		t.Fatalf("expected pool exhausted, got %s", second.Outcome)
	}
	if _, err := store.GetRequester(ctx, "r-2"); !errors.Is(err, domainerrors.ErrRequesterNotFound) {
		t.Fatalf("exhausted request must not create a requester row, got %v", err)
	}
	events, _ := store.ListAllocationEvents(ctx)
	if len(events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(events))
	}
}

func TestRequestDropConcurrentRequestersNeverShareAnItem(t *testing.T) {
	const (
		items      = 5
		requesters = 40
	)
	ctx := context.Background()
	engine, store := newEngine(t, items, &fakeClock{now: time.Now()})

	results := make([]commands.RequestDropResult, requesters)
	var wg sync.WaitGroup
	for i := 0; i < requesters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = engine.Execute(ctx, commands.RequestDropCommand{
				RequesterID: fmt.Sprintf("r-%d", i),
				DisplayName: verifiedName,
			})
		}(i)
	}
	wg.Wait()

	seen := make(map[string]string)
	allocated, exhausted := 0, 0
	for i, result := range results {
		switch result.Outcome {
		case commands.DropOutcomeAllocated:
			allocated++
			if owner, dup := seen[result.Allocation.Item.ItemID]; dup {
				t.Fatalf("item %s granted to %s and r-%d", result.Allocation.Item.ItemID, owner, i)
			}
			seen[result.Allocation.Item.ItemID] = fmt.Sprintf("r-%d", i)
		case commands.DropOutcomePoolExhausted:
			exhausted++
		default:
			t.Fatalf("unexpected outcome %s", result.Outcome)
		}
	}
	if allocated != items || exhausted != requesters-items {
		t.Fatalf("allocated=%d exhausted=%d", allocated, exhausted)
	}
	if total, _ := store.TotalAvailable(ctx); total != 0 {
		t.Fatalf("expected empty pool, got %d", total)
	}
}

func TestRequestDropSameRequesterRaceGrantsOnce(t *testing.T) {
	const attempts = 12
	ctx := context.Background()
	engine, store := newEngine(t, attempts, &fakeClock{now: time.Now()})

	results := make([]commands.RequestDropResult, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = engine.Execute(ctx, commands.RequestDropCommand{RequesterID: "r-1", DisplayName: verifiedName})
		}(i)
	}
	wg.Wait()

	allocated := 0
	for _, result := range results {
		switch result.Outcome {
		case commands.DropOutcomeAllocated:
			allocated++
		case commands.DropOutcomeAlreadyClaimedToday:
		default:
			t.Fatalf("unexpected outcome %s", result.Outcome)
		}
	}
	if allocated != 1 {
		t.Fatalf("expected exactly one allocation, got %d", allocated)
	}
	if total, _ := store.TotalAvailable(ctx); total != attempts-1 {
		t.Fatalf("losing attempts must not consume items, available=%d", total)
	}
}

func TestRequestDropAuditMatchesAllocatedItems(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	engine, store := newEngine(t, 6, clock)

	for day := 0; day < 3; day++ {
		clock.Set(time.Date(2026, 3, 1+day, 12, 0, 0, 0, time.UTC))
		for _, requester := range []string{"r-1", "r-2"} {
			if result, _ := engine.Execute(ctx, commands.RequestDropCommand{RequesterID: requester, DisplayName: verifiedName}); result.Outcome != commands.DropOutcomeAllocated {
				t.Fatalf("day %d %s: unexpected outcome %s", day, requester, result.Outcome)
			}
		}
	}

	events, _ := store.ListAllocationEvents(ctx)
	if len(events) != 6 {
		t.Fatalf("expected six audit events, got %d", len(events))
	}
	byItem := make(map[string]entities.AllocationEvent)
	for _, event := range events {
		if _, dup := byItem[event.ItemID]; dup {
			t.Fatalf("item %s has more than one audit event", event.ItemID)
		}
		byItem[event.ItemID] = event
		item, err := store.GetItem(ctx, event.ItemID)
		if err != nil || !item.Allocated || item.AllocatedTo != event.RequesterID {
			t.Fatalf("audit event %+v does not match item %+v", event, item)
		}
	}
	for _, requester := range []string{"r-1", "r-2"} {
		row, _ := store.GetRequester(ctx, requester)
		trail, _ := store.ListAllocationsByRequester(ctx, requester)
		if row.TotalAllocations != len(trail) {
			t.Fatalf("%s: total=%d trail=%d", requester, row.TotalAllocations, len(trail))
		}
	}
}

func TestRequestDropReadsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t, 4, &fakeClock{now: time.Now()})

	first, _ := engine.Execute(ctx, commands.RequestDropCommand{RequesterID: "r-1", DisplayName: "Jane"})
	second, _ := engine.Execute(ctx, commands.RequestDropCommand{RequesterID: "r-1", DisplayName: "Jane"})
	if first.Available.Total != second.Available.Total || len(first.Available.Categories) != len(second.Available.Categories) {
		t.Fatalf("summary changed between reads: %+v vs %+v", first.Available, second.Available)
	}
}

type stubAllocations struct {
	err   error
	block bool
}

func (s stubAllocations) AllocateItem(ctx context.Context, _ ports.AllocationGrant) (entities.Allocation, error) {
	if s.block {
		<-ctx.Done()
		return entities.Allocation{}, ctx.Err()
	}
	return entities.Allocation{}, s.err
}

type failingAudit struct{}

func (failingAudit) HasAllocationOn(context.Context, string, entities.CalendarDay) (bool, error) {
	return false, errors.New("audit unavailable")
}

func (failingAudit) ListAllocationsByRequester(context.Context, string) ([]entities.AllocationEvent, error) {
	return nil, errors.New("audit unavailable")
}

func TestRequestDropStoreFailuresBecomeInternalError(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name      string
		configure func(*commands.RequestDropUseCase)
	}{
		{name: "allocation failure", configure: func(u *commands.RequestDropUseCase) {
			u.Allocations = stubAllocations{err: errors.New("connection reset")}
		}},
		{name: "invariant violation", configure: func(u *commands.RequestDropUseCase) {
			u.Allocations = stubAllocations{err: domainerrors.ErrRepositoryInvariantBroke}
		}},
		{name: "audit failure", configure: func(u *commands.RequestDropUseCase) {
			u.Audit = failingAudit{}
		}},
		{name: "store timeout", configure: func(u *commands.RequestDropUseCase) {
			u.Allocations = stubAllocations{block: true}
			u.StoreTimeout = 20 * time.Millisecond
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, _ := newEngine(t, 2, &fakeClock{now: time.Now()})
			tc.configure(&engine)

			result, err := engine.Execute(ctx, commands.RequestDropCommand{RequesterID: "r-1", DisplayName: verifiedName})
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if result.Outcome != commands.DropOutcomeInternalError || result.Cause == nil {
				t.Fatalf("unexpected result %+v", result)
			}
		})
	}
}

func TestRequestDropStoreReportedDailyConflict(t *testing.T) {
	engine, _ := newEngine(t, 2, &fakeClock{now: time.Now()})
	engine.Allocations = stubAllocations{err: domainerrors.ErrAlreadyClaimedToday}

	result, err := engine.Execute(context.Background(), commands.RequestDropCommand{RequesterID: "r-1", DisplayName: verifiedName})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome != commands.DropOutcomeAlreadyClaimedToday {
		t.Fatalf("expected already claimed, got %s", result.Outcome)
	}
}

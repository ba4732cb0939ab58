package queries_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"dropvault/contexts/drop-distribution/drop-allocation-engine/adapters/memory"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/commands"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/queries"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
)

func newStore(t *testing.T) (*memory.Store, *slog.Logger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var items []entities.Item
	for i, category := range []string{"Promo Code", "Gift Card", "Gift Card"} {
		item, err := entities.NewItem(string(rune('a'+i)), category, entities.Payload{{Name: "code", Value: "X"}}, time.Now())
		if err != nil {
			t.Fatalf("new item: %v", err)
		}
		items = append(items, item)
	}
	return memory.NewStore(items, logger), logger
}

func TestGetAvailableSummarySortsCategories(t *testing.T) {
	store, logger := newStore(t)
	result, err := queries.GetAvailableSummaryUseCase{Inventory: store, Logger: logger}.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	summary := result.Summary
	if summary.Total != 3 || len(summary.Categories) != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Categories[0].Category != "Gift Card" || summary.Categories[0].Count != 2 {
		t.Fatalf("unexpected first category %+v", summary.Categories[0])
	}
}

func TestRequesterQueriesAfterAllocation(t *testing.T) {
	ctx := context.Background()
	store, logger := newStore(t)
	drop := commands.RequestDropUseCase{Inventory: store, Audit: store, Allocations: store, IDGenerator: store, Logger: logger}
	if result, _ := drop.Execute(ctx, commands.RequestDropCommand{RequesterID: "r-1", DisplayName: "r tornettlogs.cc uhq logs"}); result.Outcome != commands.DropOutcomeAllocated {
		t.Fatalf("unexpected outcome %s", result.Outcome)
	}

	requester, err := queries.GetRequesterUseCase{Requesters: store, Logger: logger}.Execute(ctx, queries.GetRequesterQuery{RequesterID: "r-1"})
	if err != nil || requester.Requester.TotalAllocations != 1 {
		t.Fatalf("unexpected requester %+v err=%v", requester, err)
	}
	allocations, err := queries.ListAllocationsUseCase{Audit: store, Logger: logger}.Execute(ctx, queries.ListAllocationsQuery{RequesterID: "r-1"})
	if err != nil || len(allocations.Items) != 1 || allocations.Items[0].Action != entities.AllocationActionAllocated {
		t.Fatalf("unexpected allocations %+v err=%v", allocations, err)
	}
}

func TestRequesterQueriesErrors(t *testing.T) {
	ctx := context.Background()
	store, logger := newStore(t)

	if _, err := (queries.GetRequesterUseCase{Requesters: store, Logger: logger}).Execute(ctx, queries.GetRequesterQuery{RequesterID: "missing"}); !errors.Is(err, domainerrors.ErrRequesterNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := (queries.GetRequesterUseCase{Requesters: store, Logger: logger}).Execute(ctx, queries.GetRequesterQuery{}); !errors.Is(err, domainerrors.ErrInvalidDropRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if _, err := (queries.ListAllocationsUseCase{Audit: store, Logger: logger}).Execute(ctx, queries.ListAllocationsQuery{RequesterID: " "}); !errors.Is(err, domainerrors.ErrInvalidDropRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

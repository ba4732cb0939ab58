package queries

import (
	"context"
	"log/slog"
	"strings"

	application "dropvault/contexts/drop-distribution/drop-allocation-engine/application"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
)

type ListAllocationsQuery struct {
	RequesterID string
}

type ListAllocationsResult struct {
	Items []entities.AllocationEvent
}

type ListAllocationsUseCase struct {
	Audit  ports.AuditLog
	Logger *slog.Logger
}

func (u ListAllocationsUseCase) Execute(ctx context.Context, query ListAllocationsQuery) (ListAllocationsResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(query.RequesterID) == "" {
		return ListAllocationsResult{}, domainerrors.ErrInvalidDropRequest
	}

	items, err := u.Audit.ListAllocationsByRequester(ctx, query.RequesterID)
	if err != nil {
		logger.Error("list allocations failed",
			"event", "list_allocations_failed",
			"module", application.ModuleName,
			"layer", "application",
			"requester_id", query.RequesterID,
			"error", err.Error(),
		)
		return ListAllocationsResult{}, err
	}

	logger.Info("list allocations completed",
		"event", "list_allocations_completed",
		"module", application.ModuleName,
		"layer", "application",
		"requester_id", query.RequesterID,
		"items_count", len(items),
	)
	return ListAllocationsResult{Items: items}, nil
}

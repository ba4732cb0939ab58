package queries

import (
	"context"
	"log/slog"

	application "dropvault/contexts/drop-distribution/drop-allocation-engine/application"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
)

type GetAvailableSummaryResult struct {
	Summary entities.AvailableSummary
}

// GetAvailableSummaryUseCase always reads the store; counts are never cached.
type GetAvailableSummaryUseCase struct {
	Inventory ports.InventoryRepository
	Logger    *slog.Logger
}

func (u GetAvailableSummaryUseCase) Execute(ctx context.Context) (GetAvailableSummaryResult, error) {
	logger := application.ResolveLogger(u.Logger)

	counts, err := u.Inventory.AvailableCounts(ctx)
	if err != nil {
		logger.Error("available counts failed",
			"event", "available_summary_counts_failed",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return GetAvailableSummaryResult{}, err
	}
	total, err := u.Inventory.TotalAvailable(ctx)
	if err != nil {
		logger.Error("total available failed",
			"event", "available_summary_total_failed",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return GetAvailableSummaryResult{}, err
	}

	return GetAvailableSummaryResult{
		Summary: entities.NewAvailableSummary(counts, total),
	}, nil
}

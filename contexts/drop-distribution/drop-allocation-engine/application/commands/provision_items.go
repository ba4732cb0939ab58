package commands

import (
	"context"
	"log/slog"
	"time"

	application "dropvault/contexts/drop-distribution/drop-allocation-engine/application"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
)

type ProvisionItem struct {
	Category string
	Payload  entities.Payload
}

type ProvisionItemsCommand struct {
	Items []ProvisionItem
	// OnlyIfEmpty skips the insert when the pool already has available items.
	OnlyIfEmpty bool
}

type ProvisionItemsResult struct {
	ItemIDs []string
	Skipped bool
}

// ProvisionItemsUseCase loads inventory. It is the only path that creates items;
// the drop workflow never does.
type ProvisionItemsUseCase struct {
	Inventory   ports.InventoryRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

func (u ProvisionItemsUseCase) Execute(ctx context.Context, cmd ProvisionItemsCommand) (ProvisionItemsResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if len(cmd.Items) == 0 {
		return ProvisionItemsResult{}, domainerrors.ErrInvalidItem
	}

	if cmd.OnlyIfEmpty {
		total, err := u.Inventory.TotalAvailable(ctx)
		if err != nil {
			return ProvisionItemsResult{}, err
		}
		if total > 0 {
			logger.Info("provisioning skipped: pool not empty",
				"event", "provision_items_skipped",
				"module", application.ModuleName,
				"layer", "application",
				"available", total,
			)
			return ProvisionItemsResult{Skipped: true}, nil
		}
	}

	now := time.Now().UTC()
	if u.Clock != nil {
		now = u.Clock.Now().UTC()
	}

	items := make([]entities.Item, 0, len(cmd.Items))
	ids := make([]string, 0, len(cmd.Items))
	for _, input := range cmd.Items {
		itemID, err := u.IDGenerator.NewID(ctx)
		if err != nil {
			return ProvisionItemsResult{}, err
		}
		item, err := entities.NewItem(itemID, input.Category, input.Payload, now)
		if err != nil {
			return ProvisionItemsResult{}, err
		}
		items = append(items, item)
		ids = append(ids, itemID)
	}

	if err := u.Inventory.AddItems(ctx, items); err != nil {
		logger.Error("provision items failed",
			"event", "provision_items_failed",
			"module", application.ModuleName,
			"layer", "application",
			"items_count", len(items),
			"error", err.Error(),
		)
		return ProvisionItemsResult{}, err
	}

	logger.Info("provision items completed",
		"event", "provision_items_completed",
		"module", application.ModuleName,
		"layer", "application",
		"items_count", len(items),
	)
	return ProvisionItemsResult{ItemIDs: ids}, nil
}

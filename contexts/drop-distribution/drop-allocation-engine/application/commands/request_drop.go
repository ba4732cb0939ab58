package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "dropvault/contexts/drop-distribution/drop-allocation-engine/application"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/services"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
)

type DropOutcome string

const (
	DropOutcomeNotVerified         DropOutcome = "not_verified"
	DropOutcomeAlreadyClaimedToday DropOutcome = "already_claimed_today"
	DropOutcomeAllocated           DropOutcome = "allocated"
	DropOutcomePoolExhausted       DropOutcome = "pool_exhausted"
	DropOutcomeInternalError       DropOutcome = "internal_error"
)

const defaultStoreTimeout = 5 * time.Second

type RequestDropCommand struct {
	RequesterID string
	Username    string
	DisplayName string
}

// RequestDropResult is returned for every outcome. Allocation is set only for
// DropOutcomeAllocated; Cause only for DropOutcomeInternalError and must not be
// shown to the requester.
type RequestDropResult struct {
	Outcome    DropOutcome
	Available  entities.AvailableSummary
	Allocation *entities.Allocation
	Cause      error
}

type RequestDropUseCase struct {
	Inventory          ports.InventoryRepository
	Audit              ports.AuditLog
	Allocations        ports.AllocationStore
	Clock              ports.Clock
	IDGenerator        ports.IDGenerator
	VerificationMarker string
	Location           *time.Location
	StoreTimeout       time.Duration
	Logger             *slog.Logger
}

// Execute runs the drop workflow in this order:
// 1) available summary
// 2) display name verification
// 3) once-per-day check against the audit log
// 4) one allocation transaction (reserve + requester upsert + audit + outbox).
//
// Only a malformed command is returned as an error; every other failure is folded
// into RequestDropResult.
func (u RequestDropUseCase) Execute(ctx context.Context, cmd RequestDropCommand) (RequestDropResult, error) {
	logger := application.ResolveLogger(u.Logger)
	cmd.RequesterID = strings.TrimSpace(cmd.RequesterID)
	if cmd.RequesterID == "" {
		return RequestDropResult{}, domainerrors.ErrInvalidDropRequest
	}

	ctx, cancel := context.WithTimeout(ctx, u.storeTimeout())
	defer cancel()

	logger.Info("request drop started",
		"event", "request_drop_started",
		"module", application.ModuleName,
		"layer", "application",
		"requester_id", cmd.RequesterID,
	)

	summary, err := u.availableSummary(ctx)
	if err != nil {
		return u.internalError(logger, cmd, entities.AvailableSummary{}, "available_summary", err), nil
	}

	if !services.IsVerified(cmd.DisplayName, u.marker()) {
		logger.Info("request drop rejected: requester not verified",
			"event", "request_drop_not_verified",
			"module", application.ModuleName,
			"layer", "application",
			"requester_id", cmd.RequesterID,
		)
		return RequestDropResult{Outcome: DropOutcomeNotVerified, Available: summary}, nil
	}

	now := u.now()
	day := entities.DayOf(now, u.Location)
	claimed, err := u.Audit.HasAllocationOn(ctx, cmd.RequesterID, day)
	if err != nil {
		return u.internalError(logger, cmd, summary, "daily_limit_check", err), nil
	}
	if claimed {
		logger.Info("request drop rejected: already claimed today",
			"event", "request_drop_already_claimed",
			"module", application.ModuleName,
			"layer", "application",
			"requester_id", cmd.RequesterID,
			"allocation_day", day.String(),
		)
		return RequestDropResult{Outcome: DropOutcomeAlreadyClaimedToday, Available: summary}, nil
	}

	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return u.internalError(logger, cmd, summary, "id_generation", err), nil
	}
	outboxID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return u.internalError(logger, cmd, summary, "id_generation", err), nil
	}

	// Single write boundary: a concurrent claim by the same requester loses on the
	// (requester, action, day) unique key inside this call and comes back as
	// ErrAlreadyClaimedToday with nothing committed.
	allocation, err := u.Allocations.AllocateItem(ctx, ports.AllocationGrant{
		RequesterID: cmd.RequesterID,
		Username:    cmd.Username,
		DisplayName: cmd.DisplayName,
		EventID:     eventID,
		OutboxID:    outboxID,
		OccurredAt:  now,
		Location:    u.Location,
	})
	switch {
	case err == nil:
	case errors.Is(err, domainerrors.ErrPoolExhausted):
		logger.Info("request drop found no available item",
			"event", "request_drop_pool_exhausted",
			"module", application.ModuleName,
			"layer", "application",
			"requester_id", cmd.RequesterID,
		)
		return RequestDropResult{Outcome: DropOutcomePoolExhausted, Available: summary}, nil
	case errors.Is(err, domainerrors.ErrAlreadyClaimedToday):
		logger.Warn("request drop lost a same-day race",
			"event", "request_drop_concurrent_claim",
			"module", application.ModuleName,
			"layer", "application",
			"requester_id", cmd.RequesterID,
			"allocation_day", day.String(),
		)
		return RequestDropResult{Outcome: DropOutcomeAlreadyClaimedToday, Available: summary}, nil
	default:
		return u.internalError(logger, cmd, summary, "allocate_item", err), nil
	}

	logger.Info("drop allocated",
		"event", "request_drop_allocated",
		"module", application.ModuleName,
		"layer", "application",
		"requester_id", cmd.RequesterID,
		"item_id", allocation.Item.ItemID,
		"category", allocation.Item.Category,
		"allocation_event_id", allocation.Event.EventID,
	)

	return RequestDropResult{
		Outcome:    DropOutcomeAllocated,
		Available:  summary,
		Allocation: &allocation,
	}, nil
}

func (u RequestDropUseCase) availableSummary(ctx context.Context) (entities.AvailableSummary, error) {
	counts, err := u.Inventory.AvailableCounts(ctx)
	if err != nil {
		return entities.AvailableSummary{}, err
	}
	total, err := u.Inventory.TotalAvailable(ctx)
	if err != nil {
		return entities.AvailableSummary{}, err
	}
	return entities.NewAvailableSummary(counts, total), nil
}

func (u RequestDropUseCase) internalError(
	logger *slog.Logger,
	cmd RequestDropCommand,
	summary entities.AvailableSummary,
	stage string,
	cause error,
) RequestDropResult {
	attrs := []any{
		"event", "request_drop_failed",
		"module", application.ModuleName,
		"layer", "application",
		"requester_id", cmd.RequesterID,
		"stage", stage,
		"error", cause.Error(),
	}
	if errors.Is(cause, domainerrors.ErrRepositoryInvariantBroke) {
		attrs = append(attrs, "severity", "critical")
	}
	logger.Error("request drop failed", attrs...)
	return RequestDropResult{
		Outcome:   DropOutcomeInternalError,
		Available: summary,
		Cause:     cause,
	}
}

func (u RequestDropUseCase) marker() string {
	if strings.TrimSpace(u.VerificationMarker) == "" {
		return services.DefaultVerificationMarker
	}
	return u.VerificationMarker
}

func (u RequestDropUseCase) storeTimeout() time.Duration {
	if u.StoreTimeout <= 0 {
		return defaultStoreTimeout
	}
	return u.StoreTimeout
}

func (u RequestDropUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

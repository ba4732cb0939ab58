package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	application "dropvault/contexts/drop-distribution/drop-allocation-engine/application"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"

	dailyClaimConstraint = "drop_allocation_events_daily_unique"
)

var tracer = otel.Tracer("dropvault/drop-allocation-engine/postgres")

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the drop tables and the per-day unique index.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&itemModel{},
		&requesterModel{},
		&allocationEventModel{},
		&outboxModel{},
	)
}

func (r *Repository) AvailableCounts(ctx context.Context) ([]entities.CategoryCount, error) {
	var rows []struct {
		Category string
		Count    int
	}
	if err := r.db.WithContext(ctx).
		Model(&itemModel{}).
		Select("category, COUNT(*) AS count").
		Where("allocated = ?", false).
		Group("category").
		Order("category ASC").
		Scan(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]entities.CategoryCount, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.CategoryCount{Category: row.Category, Count: row.Count})
	}
	return items, nil
}

func (r *Repository) TotalAvailable(ctx context.Context) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&itemModel{}).
		Where("allocated = ?", false).
		Count(&count).
		Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *Repository) AddItems(ctx context.Context, items []entities.Item) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]itemModel, 0, len(items))
	for _, item := range items {
		row, err := itemModelFromEntity(item)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(&rows, 200).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrRepositoryInvariantBroke
			}
			return err
		}
		return nil
	})
}

func (r *Repository) GetRequester(ctx context.Context, requesterID string) (entities.Requester, error) {
	var row requesterModel
	err := r.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Requester{}, domainerrors.ErrRequesterNotFound
		}
		return entities.Requester{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) HasAllocationOn(ctx context.Context, requesterID string, day entities.CalendarDay) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&allocationEventModel{}).
		Where("requester_id = ? AND action = ? AND allocation_day = ?",
			requesterID, string(entities.AllocationActionAllocated), day.String()).
		Count(&count).
		Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) ListAllocationsByRequester(ctx context.Context, requesterID string) ([]entities.AllocationEvent, error) {
	var rows []allocationEventModel
	if err := r.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order("occurred_at DESC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]entities.AllocationEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

// AllocateItem commits reservation, requester upsert, audit row and outbox row in
// one transaction. A transient failure (serialization, deadlock, lock timeout)
// retries the whole transaction once.
func (r *Repository) AllocateItem(ctx context.Context, grant ports.AllocationGrant) (entities.Allocation, error) {
	ctx, span := tracer.Start(ctx, "postgres.AllocateItem",
		trace.WithAttributes(attribute.String("requester_id", grant.RequesterID)),
	)
	defer span.End()

	allocation, err := r.allocateOnce(ctx, grant)
	if err != nil && isTransient(err) {
		r.logger.Warn("allocation transaction hit transient failure, retrying once",
			"event", "postgres_allocate_item_retry",
			"module", application.ModuleName,
			"layer", "adapter",
			"requester_id", grant.RequesterID,
			"error", err.Error(),
		)
		allocation, err = r.allocateOnce(ctx, grant)
	}
	if err != nil {
		err = classifyAllocationError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return entities.Allocation{}, err
	}
	span.SetAttributes(attribute.String("item_id", allocation.Item.ItemID))
	return allocation, nil
}

func (r *Repository) allocateOnce(ctx context.Context, grant ports.AllocationGrant) (entities.Allocation, error) {
	var allocation entities.Allocation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := reserveRandomAvailable(tx, grant.RequesterID, grant.OccurredAt)
		if err != nil {
			return err
		}

		requester, err := upsertRequester(tx, grant)
		if err != nil {
			return err
		}

		event, err := entities.NewAllocationEvent(grant.EventID, grant.RequesterID, item.ItemID, grant.OccurredAt, grant.Location)
		if err != nil {
			return err
		}
		eventRow := allocationEventModelFromEntity(event)
		if err := tx.Create(&eventRow).Error; err != nil {
			return err
		}

		allocation = entities.Allocation{Item: item, Requester: requester, Event: event}
		envelope, err := application.NewAllocatedEnvelope(grant.OutboxID, allocation)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(envelope)
		if err != nil {
			return err
		}
		outboxRow := outboxModel{
			OutboxID:     grant.OutboxID,
			EventType:    envelope.EventType,
			PartitionKey: envelope.PartitionKey,
			Payload:      payload,
			Status:       outboxStatusPending,
			CreatedAt:    event.OccurredAt,
		}
		return tx.Create(&outboxRow).Error
	})
	if err != nil {
		return entities.Allocation{}, err
	}
	return allocation, nil
}

// reserveRandomAvailable locks one random unallocated row, skipping rows other
// transactions hold, then flips it with a conditional update.
func reserveRandomAvailable(tx *gorm.DB, requesterID string, at time.Time) (entities.Item, error) {
	var row itemModel
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("allocated = ?", false).
		Order("random()").
		Limit(1).
		Take(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Item{}, domainerrors.ErrPoolExhausted
		}
		return entities.Item{}, err
	}

	allocatedAt := at.UTC()
	result := tx.
		Model(&itemModel{}).
		Where("item_id = ? AND allocated = ?", row.ItemID, false).
		Updates(map[string]any{
			"allocated":    true,
			"allocated_to": requesterID,
			"allocated_at": allocatedAt,
		})
	if result.Error != nil {
		return entities.Item{}, result.Error
	}
	if result.RowsAffected != 1 {
		return entities.Item{}, domainerrors.ErrRepositoryInvariantBroke
	}

	item, err := row.toEntity()
	if err != nil {
		return entities.Item{}, err
	}
	item.Allocated = true
	item.AllocatedTo = requesterID
	item.AllocatedAt = &allocatedAt
	return item, nil
}

func upsertRequester(tx *gorm.DB, grant ports.AllocationGrant) (entities.Requester, error) {
	seen := grant.OccurredAt.UTC()
	row := requesterModelFromEntity(entities.RecordAllocation(nil, grant.RequesterID, grant.Username, grant.DisplayName, seen))
	err := tx.
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "requester_id"}},
				DoUpdates: clause.Assignments(map[string]any{
					"display_name":      row.DisplayName,
					"username":          gorm.Expr("COALESCE(NULLIF(?, ''), drop_requesters.username)", row.Username),
					"verified":          true,
					"total_allocations": gorm.Expr("drop_requesters.total_allocations + 1"),
					"last_seen_at":      seen,
				}),
			},
			clause.Returning{},
		).
		Create(&row).
		Error
	if err != nil {
		return entities.Requester{}, err
	}
	if row.TotalAllocations < 1 {
		return entities.Requester{}, domainerrors.ErrRepositoryInvariantBroke
	}
	return row.toEntity(), nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":  outboxStatusSent,
			"sent_at": sentAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

func (r *Repository) MarkOutboxFailed(ctx context.Context, outboxID string, reason string, failedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ? AND status = ?", outboxID, outboxStatusPending).
		Updates(map[string]any{
			"status":     outboxStatusFailed,
			"failed_at":  failedAt.UTC(),
			"last_error": reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

// classifyAllocationError maps driver failures to domain errors. Domain errors
// raised inside the transaction pass through unchanged.
func classifyAllocationError(err error) error {
	switch {
	case errors.Is(err, domainerrors.ErrPoolExhausted),
		errors.Is(err, domainerrors.ErrAlreadyClaimedToday),
		errors.Is(err, domainerrors.ErrRepositoryInvariantBroke):
		return err
	case isUniqueViolation(err):
		if constraintName(err) == dailyClaimConstraint {
			return domainerrors.ErrAlreadyClaimedToday
		}
		return fmt.Errorf("%w: %v", domainerrors.ErrRepositoryInvariantBroke, err)
	case isTransient(err):
		return fmt.Errorf("%w: %v", domainerrors.ErrTransientStore, err)
	default:
		return fmt.Errorf("allocate item: %w", err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// isTransient reports serialization failures, deadlocks, lock timeouts and
// connection errors the driver marks as safe to retry.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

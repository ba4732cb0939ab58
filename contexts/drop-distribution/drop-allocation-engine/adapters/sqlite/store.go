package sqliteadapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	application "dropvault/contexts/drop-distribution/drop-allocation-engine/application"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/adapters/sqlite/migrations"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
	"dropvault/internal/platform/db/sqlitemigrate"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"

	dailyClaimIndexColumn = "drop_allocation_events.requester_id"
)

var tracer = otel.Tracer("dropvault/drop-allocation-engine/sqlite")

// Store is a single-file SQLite persistence for the drop engine. Writers take
// the database lock at BEGIN (_txlock=immediate) so concurrent allocations
// serialize instead of failing on lock upgrades.
type Store struct {
	sqlDB  *sql.DB
	logger *slog.Logger
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the store at path and applies migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := path +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB, logger: application.ResolveLogger(logger)}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) AvailableCounts(ctx context.Context) ([]entities.CategoryCount, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT category, COUNT(*)
FROM drop_items
WHERE allocated = 0
GROUP BY category
ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("query available counts: %w", err)
	}
	defer rows.Close()

	counts := make([]entities.CategoryCount, 0)
	for rows.Next() {
		var count entities.CategoryCount
		if err := rows.Scan(&count.Category, &count.Count); err != nil {
			return nil, fmt.Errorf("scan available count: %w", err)
		}
		counts = append(counts, count)
	}
	return counts, rows.Err()
}

func (s *Store) TotalAvailable(ctx context.Context) (int, error) {
	var total int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM drop_items WHERE allocated = 0`,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("query total available: %w", err)
	}
	return total, nil
}

func (s *Store) AddItems(ctx context.Context, items []entities.Item) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add items: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO drop_items (item_id, category, payload, allocated, created_at)
VALUES (?, ?, ?, 0, ?)`)
	if err != nil {
		return fmt.Errorf("prepare add items: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		payload, err := item.Payload.MarshalJSON()
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, item.ItemID, item.Category, string(payload), toMillis(item.CreatedAt)); err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("%w: duplicate item %s", domainerrors.ErrRepositoryInvariantBroke, item.ItemID)
			}
			return fmt.Errorf("insert item %s: %w", item.ItemID, err)
		}
	}
	return tx.Commit()
}

// GetItem loads one item regardless of allocation state.
func (s *Store) GetItem(ctx context.Context, itemID string) (entities.Item, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT item_id, category, payload, allocated, allocated_to, allocated_at, created_at
FROM drop_items
WHERE item_id = ?`, itemID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Item{}, domainerrors.ErrInvalidItem
	}
	return item, err
}

func (s *Store) GetRequester(ctx context.Context, requesterID string) (entities.Requester, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT requester_id, username, display_name, verified, total_allocations, created_at, last_seen_at
FROM drop_requesters
WHERE requester_id = ?`, requesterID)
	requester, err := scanRequester(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Requester{}, domainerrors.ErrRequesterNotFound
	}
	if err != nil {
		return entities.Requester{}, fmt.Errorf("get requester: %w", err)
	}
	return requester, nil
}

func (s *Store) HasAllocationOn(ctx context.Context, requesterID string, day entities.CalendarDay) (bool, error) {
	var found int
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT 1 FROM drop_allocation_events
WHERE requester_id = ? AND action = ? AND allocation_day = ?
LIMIT 1`, requesterID, string(entities.AllocationActionAllocated), day.String()).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check daily allocation: %w", err)
	}
	return true, nil
}

func (s *Store) ListAllocationsByRequester(ctx context.Context, requesterID string) ([]entities.AllocationEvent, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT event_id, requester_id, item_id, action, allocation_day, occurred_at
FROM drop_allocation_events
WHERE requester_id = ?
ORDER BY occurred_at DESC, event_id DESC`, requesterID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()

	events := make([]entities.AllocationEvent, 0)
	for rows.Next() {
		var (
			event      entities.AllocationEvent
			action     string
			day        string
			occurredAt int64
		)
		if err := rows.Scan(&event.EventID, &event.RequesterID, &event.ItemID, &action, &day, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		event.Action = entities.AllocationAction(action)
		event.AllocationDay = entities.CalendarDay(day)
		event.OccurredAt = fromMillis(occurredAt)
		events = append(events, event)
	}
	return events, rows.Err()
}

// AllocateItem commits reservation, requester upsert, audit row and outbox row in
// one immediate transaction, retrying once when the database stays busy past
// busy_timeout.
func (s *Store) AllocateItem(ctx context.Context, grant ports.AllocationGrant) (entities.Allocation, error) {
	ctx, span := tracer.Start(ctx, "sqlite.AllocateItem",
		trace.WithAttributes(attribute.String("requester_id", grant.RequesterID)),
	)
	defer span.End()

	allocation, err := s.allocateOnce(ctx, grant)
	if err != nil && isSQLiteBusyError(err) {
		s.logger.Warn("allocation transaction hit busy database, retrying once",
			"event", "sqlite_allocate_item_retry",
			"module", application.ModuleName,
			"layer", "adapter",
			"requester_id", grant.RequesterID,
			"error", err.Error(),
		)
		allocation, err = s.allocateOnce(ctx, grant)
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

func (s *Store) allocateOnce(ctx context.Context, grant ports.AllocationGrant) (entities.Allocation, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return entities.Allocation{}, err
	}
	defer func() { _ = tx.Rollback() }()

	item, err := reserveRandomAvailable(ctx, tx, grant.RequesterID, grant.OccurredAt)
	if err != nil {
		return entities.Allocation{}, err
	}
	requester, err := upsertRequester(ctx, tx, grant)
	if err != nil {
		return entities.Allocation{}, err
	}

	event, err := entities.NewAllocationEvent(grant.EventID, grant.RequesterID, item.ItemID, grant.OccurredAt, grant.Location)
	if err != nil {
		return entities.Allocation{}, err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO drop_allocation_events (event_id, requester_id, item_id, action, allocation_day, occurred_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID,
		event.RequesterID,
		event.ItemID,
		string(event.Action),
		event.AllocationDay.String(),
		toMillis(event.OccurredAt),
	); err != nil {
		return entities.Allocation{}, err
	}

	allocation := entities.Allocation{Item: item, Requester: requester, Event: event}
	envelope, err := application.NewAllocatedEnvelope(grant.OutboxID, allocation)
	if err != nil {
		return entities.Allocation{}, err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return entities.Allocation{}, err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO drop_outbox (outbox_id, event_type, partition_key, payload, status, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		grant.OutboxID,
		envelope.EventType,
		envelope.PartitionKey,
		payload,
		outboxStatusPending,
		toMillis(event.OccurredAt),
	); err != nil {
		return entities.Allocation{}, err
	}

	if err := tx.Commit(); err != nil {
		return entities.Allocation{}, err
	}
	return allocation, nil
}

// reserveRandomAvailable picks and flips one random unallocated row in a single
// statement; the allocated = 0 guard keeps a row from being granted twice.
func reserveRandomAvailable(ctx context.Context, tx *sql.Tx, requesterID string, at time.Time) (entities.Item, error) {
	row := tx.QueryRowContext(ctx, `
UPDATE drop_items
SET allocated = 1, allocated_to = ?, allocated_at = ?
WHERE item_id = (
    SELECT item_id FROM drop_items WHERE allocated = 0 ORDER BY RANDOM() LIMIT 1
) AND allocated = 0
RETURNING item_id, category, payload, allocated, allocated_to, allocated_at, created_at`,
		requesterID,
		toMillis(at),
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Item{}, domainerrors.ErrPoolExhausted
	}
	if err != nil {
		return entities.Item{}, err
	}
	return item, nil
}

func upsertRequester(ctx context.Context, tx *sql.Tx, grant ports.AllocationGrant) (entities.Requester, error) {
	at := toMillis(grant.OccurredAt)
	row := tx.QueryRowContext(ctx, `
INSERT INTO drop_requesters (requester_id, username, display_name, verified, total_allocations, created_at, last_seen_at)
VALUES (?, ?, ?, 1, 1, ?, ?)
ON CONFLICT (requester_id) DO UPDATE SET
    username = COALESCE(NULLIF(excluded.username, ''), drop_requesters.username),
    display_name = excluded.display_name,
    verified = 1,
    total_allocations = drop_requesters.total_allocations + 1,
    last_seen_at = excluded.last_seen_at
RETURNING requester_id, username, display_name, verified, total_allocations, created_at, last_seen_at`,
		grant.RequesterID,
		strings.TrimSpace(grant.Username),
		grant.DisplayName,
		at,
		at,
	)
	return scanRequester(row)
}

func (s *Store) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT outbox_id, event_type, partition_key, payload, created_at
FROM drop_outbox
WHERE status = ?
ORDER BY created_at ASC, outbox_id ASC
LIMIT ?`, outboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", err)
	}
	defer rows.Close()

	messages := make([]ports.OutboxMessage, 0, limit)
	for rows.Next() {
		var (
			msg       ports.OutboxMessage
			createdAt int64
		)
		if err := rows.Scan(&msg.OutboxID, &msg.EventType, &msg.PartitionKey, &msg.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		msg.CreatedAt = fromMillis(createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *Store) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE drop_outbox SET status = ?, sent_at = ? WHERE outbox_id = ?`,
		outboxStatusSent,
		toMillis(sentAt),
		outboxID,
	)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

func (s *Store) MarkOutboxFailed(ctx context.Context, outboxID string, reason string, failedAt time.Time) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE drop_outbox SET status = ?, failed_at = ?, last_error = ? WHERE outbox_id = ? AND status = ?`,
		outboxStatusFailed,
		toMillis(failedAt),
		reason,
		outboxID,
		outboxStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (entities.Item, error) {
	var (
		item        entities.Item
		payload     string
		allocated   int
		allocatedTo sql.NullString
		allocatedAt sql.NullInt64
		createdAt   int64
	)
	if err := row.Scan(&item.ItemID, &item.Category, &payload, &allocated, &allocatedTo, &allocatedAt, &createdAt); err != nil {
		return entities.Item{}, err
	}
	parsed, err := entities.ParsePayload([]byte(payload))
	if err != nil {
		return entities.Item{}, fmt.Errorf("decode payload for item %s: %w", item.ItemID, err)
	}
	item.Payload = parsed
	item.Allocated = allocated == 1
	item.AllocatedTo = allocatedTo.String
	if allocatedAt.Valid {
		at := fromMillis(allocatedAt.Int64)
		item.AllocatedAt = &at
	}
	item.CreatedAt = fromMillis(createdAt)
	return item, nil
}

func scanRequester(row rowScanner) (entities.Requester, error) {
	var (
		requester  entities.Requester
		verified   int
		createdAt  int64
		lastSeenAt int64
	)
	if err := row.Scan(
		&requester.RequesterID,
		&requester.Username,
		&requester.DisplayName,
		&verified,
		&requester.TotalAllocations,
		&createdAt,
		&lastSeenAt,
	); err != nil {
		return entities.Requester{}, err
	}
	requester.Verified = verified == 1
	requester.CreatedAt = fromMillis(createdAt)
	requester.LastSeenAt = fromMillis(lastSeenAt)
	return requester, nil
}

// classifyAllocationError maps driver failures to domain errors. Domain errors
// raised inside the transaction pass through unchanged.
func classifyAllocationError(err error) error {
	switch {
	case errors.Is(err, domainerrors.ErrPoolExhausted),
		errors.Is(err, domainerrors.ErrAlreadyClaimedToday),
		errors.Is(err, domainerrors.ErrRepositoryInvariantBroke):
		return err
	case isConstraintError(err):
		if isDailyClaimConflict(err) {
			return domainerrors.ErrAlreadyClaimedToday
		}
		return fmt.Errorf("%w: %v", domainerrors.ErrRepositoryInvariantBroke, err)
	case isSQLiteBusyError(err):
		return fmt.Errorf("%w: %v", domainerrors.ErrTransientStore, err)
	default:
		return fmt.Errorf("allocate item: %w", err)
	}
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	// Extended codes carry the primary code in the low byte.
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func isSQLiteBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

// isDailyClaimConflict reports a UNIQUE violation on the per-day claim index.
// The extended code separates it from CHECK and trigger failures; the message
// names the index columns, which separates it from the event_id key.
func isDailyClaimConflict(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return false
	}
	return strings.Contains(strings.ToLower(sqliteErr.Error()), dailyClaimIndexColumn)
}

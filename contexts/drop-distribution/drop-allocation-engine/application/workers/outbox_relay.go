package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "dropvault/contexts/drop-distribution/drop-allocation-engine/application"
	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
)

const defaultRelayBatch = 100

// RelayReport counts what one relay cycle did with the pending rows it read.
// Deferred rows were not attempted because the publisher failed first. More is
// set when a full batch went through and further rows may be waiting.
type RelayReport struct {
	Read      int
	Published int
	Rejected  int
	Deferred  int
	More      bool
}

// OutboxRelay moves drop.allocated rows from the outbox to the event bus.
//
// Rows whose envelope is not a well-formed drop.allocated event for the row's
// requester are marked failed and the cycle continues. A publish error stops
// the cycle; the current row and everything after it stay pending.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	Topic     string
	BatchSize int
	Logger    *slog.Logger
}

func (r OutboxRelay) RunOnce(ctx context.Context) (RelayReport, error) {
	logger := application.ResolveLogger(r.Logger)

	pending, err := r.Outbox.ListPendingOutbox(ctx, r.batchSize())
	if err != nil {
		return RelayReport{}, fmt.Errorf("list pending outbox: %w", err)
	}
	report := RelayReport{Read: len(pending)}

	for i, message := range pending {
		envelope, err := decodeAllocated(message)
		if err != nil {
			logger.Warn("outbox row rejected",
				"event", "drop_outbox_row_rejected",
				"module", application.ModuleName,
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"partition_key", message.PartitionKey,
				"error", err.Error(),
			)
			if err := r.Outbox.MarkOutboxFailed(ctx, message.OutboxID, err.Error(), r.now()); err != nil {
				report.Deferred = len(pending) - i
				return report, fmt.Errorf("mark outbox %s failed: %w", message.OutboxID, err)
			}
			report.Rejected++
			continue
		}

		if err := r.Publisher.Publish(ctx, r.topic(), envelope); err != nil {
			report.Deferred = len(pending) - i
			return report, fmt.Errorf("publish allocation %s: %w", envelope.EventID, err)
		}
		if err := r.Outbox.MarkOutboxSent(ctx, message.OutboxID, r.now()); err != nil {
			// Published but unacknowledged: sent again next cycle, consumers dedupe on event_id.
			report.Published++
			report.Deferred = len(pending) - i - 1
			return report, fmt.Errorf("mark outbox %s sent: %w", message.OutboxID, err)
		}
		report.Published++
	}

	report.More = report.Read == r.batchSize()
	if report.Read > 0 {
		logger.Info("drop allocations relayed",
			"event", "drop_outbox_relay_completed",
			"module", application.ModuleName,
			"layer", "worker",
			"read", report.Read,
			"published", report.Published,
			"rejected", report.Rejected,
		)
	}
	return report, nil
}

// decodeAllocated accepts only drop.allocated envelopes keyed by the same
// requester as the outbox row.
func decodeAllocated(message ports.OutboxMessage) (ports.EventEnvelope, error) {
	var envelope ports.EventEnvelope
	if err := json.Unmarshal(message.Payload, &envelope); err != nil {
		return ports.EventEnvelope{}, fmt.Errorf("%w: %v", domainerrors.ErrMalformedOutboxMessage, err)
	}
	switch {
	case envelope.EventType != application.AllocatedEventType:
		return ports.EventEnvelope{}, fmt.Errorf("%w: event type %q", domainerrors.ErrMalformedOutboxMessage, envelope.EventType)
	case strings.TrimSpace(envelope.EventID) == "":
		return ports.EventEnvelope{}, fmt.Errorf("%w: missing event id", domainerrors.ErrMalformedOutboxMessage)
	case strings.TrimSpace(envelope.PartitionKey) == "":
		return ports.EventEnvelope{}, fmt.Errorf("%w: missing requester partition key", domainerrors.ErrMalformedOutboxMessage)
	case message.PartitionKey != "" && envelope.PartitionKey != message.PartitionKey:
		return ports.EventEnvelope{}, fmt.Errorf("%w: partition key %q does not match row %q",
			domainerrors.ErrMalformedOutboxMessage, envelope.PartitionKey, message.PartitionKey)
	}
	return envelope, nil
}

func (r OutboxRelay) batchSize() int {
	if r.BatchSize <= 0 {
		return defaultRelayBatch
	}
	return r.BatchSize
}

func (r OutboxRelay) topic() string {
	if strings.TrimSpace(r.Topic) == "" {
		return application.AllocatedEventType
	}
	return r.Topic
}

func (r OutboxRelay) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock.Now().UTC()
}

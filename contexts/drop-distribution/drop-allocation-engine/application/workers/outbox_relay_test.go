package workers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"dropvault/contexts/drop-distribution/drop-allocation-engine/adapters/memory"
	application "dropvault/contexts/drop-distribution/drop-allocation-engine/application"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/commands"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/workers"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
)

type recordingPublisher struct {
	failAfter int
	published []ports.EventEnvelope
	topics    []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.failAfter >= 0 && len(p.published) >= p.failAfter {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, event)
	p.topics = append(p.topics, topic)
	return nil
}

func seededStore(t *testing.T, allocations int) *memory.Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	items := make([]entities.Item, 0, allocations)
	for i := 0; i < allocations; i++ {
		item, err := entities.NewItem(fmt.Sprintf("item-%d", i), "Gift Card",
			entities.Payload{{Name: "code", Value: fmt.Sprintf("C%d", i)}}, time.Now())
		if err != nil {
			t.Fatalf("new item: %v", err)
		}
		items = append(items, item)
	}
	store := memory.NewStore(items, logger)
	engine := commands.RequestDropUseCase{
		Inventory:   store,
		Audit:       store,
		Allocations: store,
		IDGenerator: store,
		Logger:      logger,
	}
	for i := 0; i < allocations; i++ {
		result, err := engine.Execute(context.Background(), commands.RequestDropCommand{
			RequesterID: fmt.Sprintf("r-%d", i),
			DisplayName: "x tornettlogs.cc uhq logs",
		})
		if err != nil || result.Outcome != commands.DropOutcomeAllocated {
			t.Fatalf("seed allocation %d: %+v err=%v", i, result, err)
		}
	}
	return store
}

func TestOutboxRelayPublishesAndMarksSent(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, 3)
	publisher := &recordingPublisher{failAfter: -1}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher, Topic: "drops", BatchSize: 10}

	report, err := relay.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.Read != 3 || report.Published != 3 || report.Rejected != 0 || report.More {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(publisher.published) != 3 {
		t.Fatalf("expected three published envelopes, got %d", len(publisher.published))
	}
	for i, envelope := range publisher.published {
		if envelope.EventType != application.AllocatedEventType || publisher.topics[i] != "drops" {
			t.Fatalf("unexpected envelope %+v on %s", envelope, publisher.topics[i])
		}
		var data map[string]string
		if err := envelope.Decode(&data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if data["requester_id"] != envelope.PartitionKey || data["item_id"] == "" {
			t.Fatalf("unexpected envelope data %+v", data)
		}
		if _, leaked := data["payload"]; leaked {
			t.Fatalf("item payload must not be published")
		}
	}

	pending, _ := store.ListPendingOutbox(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected nothing pending, got %d", len(pending))
	}
	if report, err := relay.RunOnce(ctx); err != nil || report.Read != 0 || len(publisher.published) != 3 {
		t.Fatalf("second cycle must be a no-op, report=%+v published=%d err=%v", report, len(publisher.published), err)
	}
}

func TestOutboxRelayLeavesFailedRowsPending(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, 3)
	publisher := &recordingPublisher{failAfter: 1}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher}

	report, err := relay.RunOnce(ctx)
	if err == nil {
		t.Fatal("expected publish failure")
	}
	if report.Published != 1 || report.Deferred != 2 || report.More {
		t.Fatalf("unexpected report %+v", report)
	}
	pending, _ := store.ListPendingOutbox(ctx, 10)
	if len(pending) != 2 {
		t.Fatalf("expected two rows left pending, got %d", len(pending))
	}
	if publisher.topics[0] != application.AllocatedEventType {
		t.Fatalf("expected default topic, got %s", publisher.topics[0])
	}

	publisher.failAfter = -1
	if _, err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("retry cycle: %v", err)
	}
	if len(publisher.published) != 3 {
		t.Fatalf("expected retry to publish the rest, got %d", len(publisher.published))
	}
}

func envelopeJSON(t *testing.T, envelope ports.EventEnvelope) []byte {
	t.Helper()
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func TestOutboxRelayRejectsMalformedRowsAndContinues(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, 2)
	store.InjectOutboxMessage(ports.OutboxMessage{OutboxID: "bad-json", PartitionKey: "r-9", Payload: []byte(`{"event_id":`)})
	store.InjectOutboxMessage(ports.OutboxMessage{OutboxID: "wrong-type", PartitionKey: "r-9", Payload: envelopeJSON(t, ports.EventEnvelope{
		EventID: "evt-wrong", EventType: "drop.returned", PartitionKey: "r-9",
	})})
	store.InjectOutboxMessage(ports.OutboxMessage{OutboxID: "no-key", Payload: envelopeJSON(t, ports.EventEnvelope{
		EventID: "evt-nokey", EventType: application.AllocatedEventType,
	})})
	store.InjectOutboxMessage(ports.OutboxMessage{OutboxID: "other-requester", PartitionKey: "r-9", Payload: envelopeJSON(t, ports.EventEnvelope{
		EventID: "evt-other", EventType: application.AllocatedEventType, PartitionKey: "r-8",
	})})
	store.InjectOutboxMessage(ports.OutboxMessage{OutboxID: "late-good", PartitionKey: "r-7", Payload: envelopeJSON(t, ports.EventEnvelope{
		EventID: "evt-late", EventType: application.AllocatedEventType, PartitionKey: "r-7",
	})})

	publisher := &recordingPublisher{failAfter: -1}
	report, err := workers.OutboxRelay{Outbox: store, Publisher: publisher}.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.Read != 7 || report.Published != 3 || report.Rejected != 4 {
		t.Fatalf("unexpected report %+v", report)
	}
	if last := publisher.published[len(publisher.published)-1]; last.EventID != "evt-late" {
		t.Fatalf("rows after a malformed one must still be relayed, last=%s", last.EventID)
	}
	for _, id := range []string{"bad-json", "wrong-type", "no-key", "other-requester"} {
		reason, failed := store.OutboxFailure(id)
		if !failed || reason == "" {
			t.Fatalf("%s: expected failed row with reason, got %q", id, reason)
		}
	}
	if pending, _ := store.ListPendingOutbox(ctx, 10); len(pending) != 0 {
		t.Fatalf("expected nothing pending, got %d", len(pending))
	}
}

func TestOutboxRelayReportsFullBatch(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, 3)
	relay := workers.OutboxRelay{Outbox: store, Publisher: &recordingPublisher{failAfter: -1}, BatchSize: 2}

	first, err := relay.RunOnce(ctx)
	if err != nil || first.Published != 2 || !first.More {
		t.Fatalf("first cycle: report=%+v err=%v", first, err)
	}
	second, err := relay.RunOnce(ctx)
	if err != nil || second.Published != 1 || second.More {
		t.Fatalf("second cycle: report=%+v err=%v", second, err)
	}
}

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"

	"github.com/redis/go-redis/v9"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStream struct {
	args *redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = a
	return redis.NewStringResult("1700000000000-0", f.err)
}

func TestRedisPublisherWritesEnvelopeToStream(t *testing.T) {
	stream := &fakeStream{}
	publisher := NewRedisPublisher(stream, quietLogger(), WithStreamMaxLen(500))

	event := ports.EventEnvelope{
		EventID:      "evt-3",
		EventType:    "drop.allocated",
		PartitionKey: "requester-1",
		Data:         json.RawMessage(`{"item_id":"item-1"}`),
	}
	if err := publisher.Publish(context.Background(), "drop.allocated", event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if stream.args == nil {
		t.Fatal("expected XADD call")
	}
	if stream.args.Stream != "drop.allocated" || stream.args.MaxLen != 500 || !stream.args.Approx {
		t.Fatalf("unexpected xadd args: %+v", stream.args)
	}
	values, ok := stream.args.Values.(map[string]any)
	if !ok {
		t.Fatalf("unexpected values type %T", stream.args.Values)
	}
	if values["partition_key"] != "requester-1" {
		t.Fatalf("unexpected partition key %v", values["partition_key"])
	}
	var decoded ports.EventEnvelope
	if err := json.Unmarshal([]byte(values["envelope"].(string)), &decoded); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if decoded.EventID != "evt-3" {
		t.Fatalf("unexpected envelope %+v", decoded)
	}
}

func TestRedisPublisherReturnsStreamError(t *testing.T) {
	stream := &fakeStream{err: errors.New("connection refused")}
	publisher := NewRedisPublisher(stream, quietLogger())

	if err := publisher.Publish(context.Background(), "drop.allocated", ports.EventEnvelope{EventID: "evt-4"}); err == nil {
		t.Fatal("expected publish error")
	}
}

package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dropvault/contexts/drop-distribution/drop-allocation-engine/adapters/memory"
	application "dropvault/contexts/drop-distribution/drop-allocation-engine/application"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/workers"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
)

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":      ":8080",
		"9090":  ":9090",
		":7070": ":7070",
		" 80 ":  ":80",
	}
	for input, want := range cases {
		if got := normalizeAddr(input); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("debug") != slog.LevelDebug {
		t.Fatal("expected debug level")
	}
	if parseLevel("WARN") != slog.LevelWarn {
		t.Fatal("expected warn level")
	}
	if parseLevel("chatty") != slog.LevelInfo {
		t.Fatal("expected info fallback")
	}
}

func TestCloseAllRunsEveryCloserInReverse(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	err := closeAll([]func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected close order %v", order)
	}
}

func TestBuildWorkerRejectsMemoryStore(t *testing.T) {
	t.Setenv("DROP_STORE_DRIVER", "memory")
	if _, err := BuildWorker(context.Background()); err == nil {
		t.Fatal("expected worker to require a durable store")
	}
}

func TestBuildProvisionWithSQLite(t *testing.T) {
	t.Setenv("DROP_STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "drops.db"))
	t.Setenv("LOG_LEVEL", "error")

	app, err := BuildProvision(context.Background())
	if err != nil {
		t.Fatalf("build provision: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}()
	if app.Module.Provision.Inventory == nil {
		t.Fatal("expected provisioning to be wired to the sqlite store")
	}
}

func TestBuildWorkerRequiresRedis(t *testing.T) {
	t.Setenv("DROP_STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "drops.db"))
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "error")

	app, err := BuildWorker(context.Background())
	if err == nil {
		_ = app.Close()
		t.Fatal("expected worker without a broker to be rejected")
	}
	if !strings.Contains(err.Error(), "REDIS_ADDR") {
		t.Fatalf("error should name REDIS_ADDR, got %v", err)
	}
}

func TestBuildAPIDefaultsToSQLite(t *testing.T) {
	t.Setenv("DROP_STORE_DRIVER", "")
	os.Unsetenv("DROP_STORE_DRIVER")
	path := filepath.Join(t.TempDir(), "data", "drops.db")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")

	app, err := BuildAPI(context.Background())
	if err != nil {
		t.Fatalf("build api: %v", err)
	}
	if err := app.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected sqlite database at %s: %v", path, err)
	}
}

type countingPublisher struct {
	mu     sync.Mutex
	events []string
	want   int
	done   chan struct{}
}

func (p *countingPublisher) Publish(_ context.Context, _ string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.EventID)
	if len(p.events) == p.want {
		close(p.done)
	}
	return nil
}

func TestWorkerDrainsBacklogWithoutWaitingForTick(t *testing.T) {
	const rows = 3
	store := memory.NewStore(nil, nil)
	for i := 0; i < rows; i++ {
		requester := fmt.Sprintf("r-%d", i)
		payload, err := json.Marshal(ports.EventEnvelope{
			EventID:      fmt.Sprintf("evt-%d", i),
			EventType:    application.AllocatedEventType,
			PartitionKey: requester,
		})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		store.InjectOutboxMessage(ports.OutboxMessage{OutboxID: fmt.Sprintf("outbox-%d", i), PartitionKey: requester, Payload: payload})
	}

	publisher := &countingPublisher{want: rows, done: make(chan struct{})}
	app := &WorkerApp{
		outboxRelay:  workers.OutboxRelay{Outbox: store, Publisher: publisher, BatchSize: 1},
		pollInterval: time.Hour,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- app.Run(ctx) }()

	select {
	case <-publisher.done:
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("backlog was not drained before the next tick")
	}
	cancel()
	if err := <-result; err != nil {
		t.Fatalf("run: %v", err)
	}
	if pending, _ := store.ListPendingOutbox(context.Background(), 10); len(pending) != 0 {
		t.Fatalf("expected drained outbox, got %d pending", len(pending))
	}
}

package persistworker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quantdesk/fno-md-ingest/internal/backoff"
	"github.com/quantdesk/fno-md-ingest/internal/bus"
	"github.com/quantdesk/fno-md-ingest/internal/tick"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu        sync.Mutex
	batches   [][]tick.NormalizedTick
	failFirst bool
	called    int
}

func (f *fakeStore) UpsertTicks(ctx context.Context, batch []tick.NormalizedTick, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called++
	if f.failFirst && f.called == 1 {
		return errors.New("transient db error")
	}
	cp := append([]tick.NormalizedTick(nil), batch...)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

type fakeRepublisher struct {
	mu       sync.Mutex
	retries  []int
	dlqCount int
}

func (f *fakeRepublisher) PublishRetry(ctx context.Context, body []byte, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, attempt)
	return nil
}

func (f *fakeRepublisher) PublishDeadLetter(ctx context.Context, body []byte, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dlqCount++
	return nil
}

func makeDelivery(t *testing.T, body []byte) amqp.Delivery {
	t.Helper()
	return amqp.Delivery{Body: body}
}

func validTickBody(t *testing.T) []byte {
	t.Helper()
	body, err := tick.Encode(tick.NormalizedTick{InstrumentToken: 1, Time: time.Unix(0, 0)})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestWorker_batchesBySize(t *testing.T) {
	store := &fakeStore{}
	rep := &fakeRepublisher{}
	w := New(Config{ID: "w1", BatchSize: 2, BatchTimeout: time.Hour}, store, rep, nil, backoff.New(1), testLogger())

	deliveries := make(chan amqp.Delivery, 4)
	for i := 0; i < 4; i++ {
		deliveries <- makeDelivery(t, validTickBody(t))
	}
	close(deliveries)

	if err := w.Run(context.Background(), deliveries); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.count() != 4 {
		t.Fatalf("persisted = %d, want 4", store.count())
	}
	if len(store.batches) != 2 {
		t.Fatalf("batch count = %d, want 2 (batched at size 2)", len(store.batches))
	}
}

func TestWorker_decodeFailure_requeuesThenDeadLetters(t *testing.T) {
	store := &fakeStore{}
	rep := &fakeRepublisher{}
	w := New(Config{ID: "w1", BatchSize: 100, BatchTimeout: time.Hour}, store, rep, nil, backoff.New(1), testLogger())

	bad := amqp.Delivery{Body: []byte("not a valid tick")}
	w.handleDecodeFailure(context.Background(), bad)
	w.handleDecodeFailure(context.Background(), withHeader(bad, 1))
	w.handleDecodeFailure(context.Background(), withHeader(bad, 2))

	if len(rep.retries) != 2 {
		t.Fatalf("retries = %d, want 2", len(rep.retries))
	}
	if rep.dlqCount != 1 {
		t.Fatalf("dlqCount = %d, want 1", rep.dlqCount)
	}
}

func withHeader(d amqp.Delivery, attempts int32) amqp.Delivery {
	d.Headers = amqp.Table{bus.ParseAttemptsHeader: attempts}
	return d
}

func TestWorker_upsertRetriesOnTransientError(t *testing.T) {
	store := &fakeStore{failFirst: true}
	rep := &fakeRepublisher{}
	w := New(Config{ID: "w1", BatchSize: 1, BatchTimeout: time.Hour, NackRetryBase: time.Millisecond, NackRetryMax: 5 * time.Millisecond}, store, rep, nil, backoff.New(1), testLogger())

	deliveries := make(chan amqp.Delivery, 1)
	deliveries <- makeDelivery(t, validTickBody(t))
	close(deliveries)

	if err := w.Run(context.Background(), deliveries); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.count() != 1 {
		t.Fatalf("persisted after retry = %d, want 1", store.count())
	}
	if store.called != 2 {
		t.Fatalf("UpsertTicks called %d times, want 2 (one failure then one success)", store.called)
	}
}

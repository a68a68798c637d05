// Package persistworker implements the persistence workers (C4):
// stateless consumers of the ticks queue that batch-upsert into the
// time-series store, dead-lettering messages that fail to decode three
// times and retrying database errors with exponential backoff.
package persistworker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quantdesk/fno-md-ingest/internal/backoff"
	"github.com/quantdesk/fno-md-ingest/internal/bus"
	"github.com/quantdesk/fno-md-ingest/internal/health"
	"github.com/quantdesk/fno-md-ingest/internal/tick"
)

// maxParseAttempts is the number of decode failures after which a
// message is dead-lettered instead of requeued (so it is requeued
// maxParseAttempts-1 times), per the spec's Decode error policy.
const maxParseAttempts = 3

// DefaultBatchSize and DefaultBatchTimeout mirror the spec's BATCH_SIZE
// and BATCH_TIMEOUT_SECONDS defaults; callers normally pass the values
// from internal/config instead.
const (
	DefaultBatchSize    = 1000
	DefaultBatchTimeout = 5 * time.Second
)

// upserter is the slice of *store.Store the worker needs.
type upserter interface {
	UpsertTicks(ctx context.Context, batch []tick.NormalizedTick, timeout time.Duration) error
}

// republisher is the slice of *bus.Bus the worker needs to requeue or
// dead-letter a message.
type republisher interface {
	PublishRetry(ctx context.Context, body []byte, attempt int) error
	PublishDeadLetter(ctx context.Context, body []byte, reason string) error
}

// healthSetter is the slice of *cache.Cache the worker needs for its
// liveness heartbeat.
type healthSetter interface {
	SetHealth(ctx context.Context, component string, blob []byte)
}

// Config parameterizes one Worker.
type Config struct {
	ID             string
	BatchSize      int
	BatchTimeout   time.Duration
	SQLTimeout     time.Duration
	NackRetryBase  time.Duration
	NackRetryMax   time.Duration
}

// Worker pulls deliveries from a ticks queue channel, batches them up
// to BatchSize or BatchTimeout, and upserts them as one transaction.
type Worker struct {
	cfg   Config
	store upserter
	bus   republisher
	cache healthSetter
	pol   *backoff.Policy
	log   *slog.Logger

	received atomic.Int64
	persisted atomic.Int64
	failed    atomic.Int64
	lastBatchSize atomic.Int64
}

// New builds a Worker.
func New(cfg Config, store upserter, b republisher, cache healthSetter, pol *backoff.Policy, log *slog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.SQLTimeout <= 0 {
		cfg.SQLTimeout = 30 * time.Second
	}
	if cfg.NackRetryBase <= 0 {
		cfg.NackRetryBase = 500 * time.Millisecond
	}
	if cfg.NackRetryMax <= 0 {
		cfg.NackRetryMax = 30 * time.Second
	}
	return &Worker{cfg: cfg, store: store, bus: b, cache: cache, pol: pol, log: log.With("worker", cfg.ID)}
}

// Run consumes deliveries until ctx is cancelled, batching and
// upserting as it goes. The worker finishes its current batch before
// returning, matching the cancellation policy: workers finish their
// current batch, ack it, and exit.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	batch := make([]tick.NormalizedTick, 0, w.cfg.BatchSize)
	pending := make([]amqp.Delivery, 0, w.cfg.BatchSize)
	timer := time.NewTimer(w.cfg.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.commit(ctx, batch, pending)
		batch = batch[:0]
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// ctx is already cancelled, so the final batch is committed
			// under a fresh context bounded by the SQL timeout; otherwise
			// the upsert would fail and the batch would be nacked.
			if len(batch) > 0 {
				finalCtx, cancel := context.WithTimeout(context.Background(), w.cfg.SQLTimeout)
				w.commit(finalCtx, batch, pending)
				cancel()
			}
			return ctx.Err()

		case d, ok := <-deliveries:
			if !ok {
				flush()
				return nil
			}
			w.received.Add(1)

			t, err := tick.Decode(d.Body)
			if err != nil {
				w.handleDecodeFailure(ctx, d)
				continue
			}

			batch = append(batch, t)
			pending = append(pending, d)

			if len(batch) >= w.cfg.BatchSize {
				flush()
				timer.Reset(w.cfg.BatchTimeout)
			}

		case <-timer.C:
			flush()
			timer.Reset(w.cfg.BatchTimeout)
		}
	}
}

func (w *Worker) commit(ctx context.Context, batch []tick.NormalizedTick, pending []amqp.Delivery) {
	w.lastBatchSize.Store(int64(len(batch)))

	attempt := 0
	for {
		err := w.store.UpsertTicks(ctx, batch, w.cfg.SQLTimeout)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			for _, d := range pending {
				d.Nack(false, true)
			}
			return
		}

		w.log.Warn("persistworker: upsert failed, retrying", "error", err, "attempt", attempt, "batch_size", len(batch))
		delay := w.pol.ExponentialDelay(w.cfg.NackRetryBase, w.cfg.NackRetryMax, attempt)
		attempt++
		select {
		case <-ctx.Done():
			for _, d := range pending {
				d.Nack(false, true)
			}
			return
		case <-time.After(delay):
		}
	}

	for _, d := range pending {
		if err := d.Ack(false); err != nil {
			w.log.Warn("persistworker: ack failed", "error", err)
		}
	}
	w.persisted.Add(int64(len(batch)))
	w.publishHeartbeat(ctx)
}

func (w *Worker) handleDecodeFailure(ctx context.Context, d amqp.Delivery) {
	attempts := parseAttempts(d) + 1
	if attempts >= maxParseAttempts {
		w.failed.Add(1)
		if err := w.bus.PublishDeadLetter(ctx, d.Body, "decode failed after 3 attempts"); err != nil {
			w.log.Error("persistworker: dead-letter publish failed", "error", err)
		}
		d.Ack(false)
		return
	}

	if err := w.bus.PublishRetry(ctx, d.Body, attempts); err != nil {
		w.log.Error("persistworker: requeue publish failed", "error", err)
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

func parseAttempts(d amqp.Delivery) int {
	v, ok := d.Headers[bus.ParseAttemptsHeader]
	if !ok {
		return 0
	}
	if n, ok := v.(int32); ok {
		return int(n)
	}
	return 0
}

func (w *Worker) publishHeartbeat(ctx context.Context) {
	if w.cache == nil {
		return
	}
	hb := health.Heartbeat{
		Component:     w.cfg.ID,
		LastEventTime: time.Now(),
		LastBatchSize: int(w.lastBatchSize.Load()),
		Received:      w.received.Load(),
		Parsed:        w.persisted.Load(),
		Failed:        w.failed.Load(),
	}
	blob, err := json.Marshal(hb)
	if err != nil {
		w.log.Error("persistworker: marshal heartbeat", "error", err)
		return
	}
	w.cache.SetHealth(ctx, w.cfg.ID, blob)
}

// Heartbeat returns the current Heartbeat snapshot for internal/health.Registry.
func (w *Worker) Heartbeat() health.Heartbeat {
	return health.Heartbeat{
		Component:     w.cfg.ID,
		LastEventTime: time.Now(),
		LastBatchSize: int(w.lastBatchSize.Load()),
		Received:      w.received.Load(),
		Parsed:        w.persisted.Load(),
		Failed:        w.failed.Load(),
	}
}

// Package bus wraps the RabbitMQ connection used to hand enriched
// ticks from the ingestion pipeline (C3) to the persistence workers
// (C4): a durable queue "ticks" with persistent delivery, and a
// dead-letter queue "ticks.dlq" for messages that fail decode three
// times.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	TicksQueue    = "ticks"
	DeadLetterQueue = "ticks.dlq"
)

// Bus owns the AMQP connection and channel, and declares the topology
// the spec requires at startup.
type Bus struct {
	log  *slog.Logger
	url  string
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Connect dials url and declares the ticks queue and its dead-letter
// queue. The connection is not retried here; callers that need
// reconnect semantics should wrap Connect with backoff.Policy.
func Connect(ctx context.Context, url string, log *slog.Logger) (*Bus, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{})
	if err != nil {
		return nil, fmt.Errorf("bus: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: open channel: %w", err)
	}

	b := &Bus{log: log, url: url, conn: conn, ch: ch}
	if err := b.declareTopology(); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bus) declareTopology() error {
	if _, err := b.ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: declare dlq: %w", err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetterQueue,
	}
	if _, err := b.ch.QueueDeclare(TicksQueue, true, false, false, false, args); err != nil {
		return fmt.Errorf("bus: declare ticks queue: %w", err)
	}
	return nil
}

// Close shuts down the channel and connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Publish sends a persistent-delivery message to the ticks queue. It
// does not block beyond ctx's deadline; the caller (internal/ingest's
// publisher stage) is responsible for backpressure when this returns
// an error repeatedly.
func (b *Bus) Publish(ctx context.Context, body []byte) error {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()

	return ch.PublishWithContext(ctx, "", TicksQueue, false, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// PublishDeadLetter sends a message directly to the dead-letter queue,
// used by persistence workers after three parse failures on the same
// message rather than relying on broker-side dead-lettering (which
// would also fire on transient nacks).
func (b *Bus) PublishDeadLetter(ctx context.Context, body []byte, reason string) error {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()

	return ch.PublishWithContext(ctx, "", DeadLetterQueue, false, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{"reason": reason},
		Body:         body,
	})
}

// ParseAttemptsHeader carries the running decode-failure count on a
// requeued message, since AMQP's own delivery-count is per-channel and
// does not survive a manual requeue-by-republish.
const ParseAttemptsHeader = "x-parse-attempts"

// PublishRetry republishes body to the ticks queue with its parse
// attempt count incremented, used by the persistence workers instead
// of a broker-level nack/requeue so the attempt count survives across
// worker restarts and is visible for dead-lettering after three tries.
func (b *Bus) PublishRetry(ctx context.Context, body []byte, attempt int) error {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()

	return ch.PublishWithContext(ctx, "", TicksQueue, false, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{ParseAttemptsHeader: int32(attempt)},
		Body:         body,
	})
}

// Consume starts delivering messages from the ticks queue to consumers
// identified by tag; prefetch bounds how many unacked messages a
// worker holds at once (used to size a batch at BATCH_SIZE).
func (b *Bus) Consume(ctx context.Context, tag string, prefetch int) (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("bus: qos: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, TicksQueue, tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("bus: consume: %w", err)
	}
	return deliveries, nil
}

// ConsumeDeadLetter starts delivering messages from ticks.dlq, used by
// the dlqinspect CLI for read-only operator triage.
func (b *Bus) ConsumeDeadLetter(ctx context.Context, tag string) (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()

	deliveries, err := ch.ConsumeWithContext(ctx, DeadLetterQueue, tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("bus: consume dlq: %w", err)
	}
	return deliveries, nil
}

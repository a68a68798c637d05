package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantdesk/fno-md-ingest/internal/tick"
)

// tickBus is the slice of *bus.Bus the publisher needs; narrowed to an
// interface so pipeline tests can substitute a fake without a live
// broker.
type tickBus interface {
	Publish(ctx context.Context, body []byte) error
}

// Publisher hands enriched ticks to the bus. It is intentionally
// synchronous: the pipeline's bounded channel between the decoder loop
// and the publisher goroutine is what turns a slow or unreachable bus
// into back-pressure on the transport's reads, rather than an
// unbounded in-memory queue.
type Publisher struct {
	bus tickBus
	log *slog.Logger
}

// NewPublisher wraps b.
func NewPublisher(b tickBus, log *slog.Logger) *Publisher {
	return &Publisher{bus: b, log: log}
}

// Publish encodes t and sends it to the ticks queue. A publish error
// is returned to the caller (the pipeline loop), which is expected to
// retry after a short pause rather than drop the tick: the bus queue
// is the durability boundary, not this call.
func (p *Publisher) Publish(ctx context.Context, t tick.NormalizedTick) error {
	body, err := tick.Encode(t)
	if err != nil {
		return fmt.Errorf("publisher: encode: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.bus.Publish(pctx, body); err != nil {
		return fmt.Errorf("publisher: publish: %w", err)
	}
	return nil
}

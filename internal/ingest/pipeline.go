package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quantdesk/fno-md-ingest/internal/backoff"
	"github.com/quantdesk/fno-md-ingest/internal/health"
)

// DefaultFrameBufferSize bounds the channel between the transport's
// read loop and the merge/enrich/publish worker. A full buffer blocks
// the onFrame callback, which blocks the next ReadMessage call, which
// is the back-pressure the spec's publisher stage requires when the
// bus is unreachable.
const DefaultFrameBufferSize = 2048

// drainTimeout bounds how long Run spends flushing frames still
// buffered when shutdown begins, per the cancellation policy: stop
// accepting new frames, drain what's queued, then stop.
const drainTimeout = 10 * time.Second

type frameEnvelope struct {
	record any
	at     time.Time
}

// Pipeline wires the transport, merger, enricher, and publisher into
// the bounded-queue stages the ingestion pipeline (C3) describes, and
// tracks the counters the health heartbeat reports.
type Pipeline struct {
	component string
	client    *Client
	merger    *Merger
	enricher  *Enricher
	publisher *Publisher
	pol       *backoff.Policy
	log       *slog.Logger

	frames chan frameEnvelope

	received atomic.Int64
	parsed   atomic.Int64
	failed   atomic.Int64
}

// NewPipeline builds a Pipeline. client is constructed by the caller
// (typically cmd/ingestd) with its onFrame callback set to
// Pipeline.OnFrame via the returned Pipeline, since Client and
// Pipeline must be wired to each other.
func NewPipeline(component string, merger *Merger, enricher *Enricher, publisher *Publisher, pol *backoff.Policy, log *slog.Logger) *Pipeline {
	return &Pipeline{
		component: component,
		merger:    merger,
		enricher:  enricher,
		publisher: publisher,
		pol:       pol,
		log:       log,
		frames:    make(chan frameEnvelope, DefaultFrameBufferSize),
	}
}

// AttachClient lets the pipeline report the client's reconnect count
// (Client.Attempts) in its heartbeat; call after NewClient, before Run.
func (p *Pipeline) AttachClient(c *Client) {
	p.client = c
}

// OnFrame is passed to NewClient as the onFrame callback. It blocks
// when the internal buffer is full, which is the intended
// back-pressure path back to the transport's read loop.
func (p *Pipeline) OnFrame(record any, now time.Time) {
	p.received.Add(1)
	p.frames <- frameEnvelope{record: record, at: now}
}

// Run drains frames, merges, enriches, and publishes until ctx is
// cancelled. On cancellation it stops
// pulling new work off the transport and instead drains whatever is
// already buffered, bounded by drainTimeout, before returning.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case env := <-p.frames:
			p.process(ctx, env)
		}
	}
}

// drain flushes any frames still sitting in the buffer when shutdown
// begins, merging/enriching/publishing them like normal processing so
// in-flight ticks are not silently dropped. drainCtx carries its own
// deadline (rather than the already-cancelled Run context) so the bus
// publish inside process can still succeed, while process's own retry
// loop still aborts once that deadline passes — the drain can never
// run longer than drainTimeout.
func (p *Pipeline) drain() {
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case env := <-p.frames:
			p.process(drainCtx, env)
		case <-drainCtx.Done():
			if n := len(p.frames); n > 0 {
				p.log.Warn("ingest: drain timed out, frames still buffered", "dropped", n)
			}
			return
		default:
			return
		}
	}
}

func (p *Pipeline) process(ctx context.Context, env frameEnvelope) {
	out, securityID, ok := p.merger.Feed(env.record, env.at)
	if !ok {
		return
	}

	enriched, err := p.enricher.Enrich(out, securityID)
	if err != nil {
		p.failed.Add(1)
		p.log.Debug("ingest: dropping unresolved tick", "security_id", securityID, "error", err)
		return
	}

	attempt := 0
	for {
		if err := p.publisher.Publish(ctx, enriched); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("ingest: publish failed, retrying", "error", err, "attempt", attempt)
			delay := p.pol.ExponentialDelay(500*time.Millisecond, 30*time.Second, attempt)
			attempt++
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		break
	}

	p.parsed.Add(1)
}

// Heartbeat builds the current health.Heartbeat snapshot for this
// pipeline, for internal/health.Registry.Set and internal/cache.SetHealth.
func (p *Pipeline) Heartbeat() health.Heartbeat {
	hb := health.Heartbeat{
		Component:     p.component,
		LastEventTime: time.Now(),
		Received:      p.received.Load(),
		Parsed:        p.parsed.Load(),
		Failed:        p.failed.Load(),
	}
	if p.client != nil {
		hb.ReconnectAttempts = p.client.Attempts()
	}
	return hb
}

// Command ingestd runs the tick ingestion pipeline (C1-C4): it hydrates
// the instrument master, connects to the tick feed, merges and
// enriches frames, publishes normalized ticks to the bus, and runs a
// pool of persistence workers that batch-upsert them into the store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantdesk/fno-md-ingest/internal/bus"
	"github.com/quantdesk/fno-md-ingest/internal/backoff"
	"github.com/quantdesk/fno-md-ingest/internal/cache"
	"github.com/quantdesk/fno-md-ingest/internal/config"
	"github.com/quantdesk/fno-md-ingest/internal/credential"
	"github.com/quantdesk/fno-md-ingest/internal/health"
	"github.com/quantdesk/fno-md-ingest/internal/ingest"
	"github.com/quantdesk/fno-md-ingest/internal/instrument"
	"github.com/quantdesk/fno-md-ingest/internal/persistworker"
	"github.com/quantdesk/fno-md-ingest/internal/store"
)

const persistWorkerCount = 2

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("ingestd: config load failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn("ingestd: received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	db, err := store.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("ingestd: store open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Error("ingestd: migrate failed", "error", err)
		os.Exit(1)
	}

	redis, err := cache.New(cfg.RedisURL, cfg.CacheOpTimeout, log)
	if err != nil {
		log.Error("ingestd: cache connect failed", "error", err)
		os.Exit(1)
	}
	defer redis.Close()

	broker, err := bus.Connect(ctx, cfg.RabbitMQURL, log)
	if err != nil {
		log.Error("ingestd: bus connect failed", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	instCache := instrument.New(log)
	if err := instCache.Load(ctx, db, redis); err != nil {
		log.Error("ingestd: instrument load failed", "error", err)
		os.Exit(1)
	}

	tokens := credential.NewCacheProvider(credential.NewFileProvider(cfg.AccessTokenFile))
	tok, err := tokens.Get(ctx)
	if err != nil {
		log.Error("ingestd: access token unavailable", "error", err)
		os.Exit(1)
	}

	refs := make([]ingest.InstrumentRef, 0, instCache.Len())
	for _, inst := range instCache.All() {
		refs = append(refs, ingest.InstrumentRef{ExchangeSegment: inst.Segment, SecurityId: inst.SecurityID})
	}
	subscriptions := ingest.BuildSubscriptions(ingest.RequestCodeFull, refs)
	log.Info("ingestd: built subscriptions", "instruments", len(refs), "messages", len(subscriptions))

	pol := backoff.New(time.Now().UnixNano())
	registry := health.NewRegistry()

	merger := ingest.NewMerger(ingest.DefaultMergerCapacity)
	enricher := ingest.NewEnricher(instCache)
	publisher := ingest.NewPublisher(broker, log)
	pipeline := ingest.NewPipeline("ingestd", merger, enricher, publisher, pol, log)

	client := ingest.NewClient(ingest.ClientConfig{
		URL:                  cfg.TickFeedURL,
		AccessToken:          tok.AccessToken,
		ClientID:             cfg.ClientID,
		Subscriptions:        subscriptions,
		MaxReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:       cfg.ReconnectDelay,
	}, log, pol, pipeline.OnFrame)
	pipeline.AttachClient(client)

	errCh := make(chan error, 2+persistWorkerCount)
	go func() { errCh <- pipeline.Run(ctx) }()
	go func() { errCh <- client.Run(ctx) }()

	// Close the transport as soon as shutdown begins, not after the
	// wait loop below: ReadMessage only checks ctx between reads, so
	// without this the read loop (and therefore the drain in
	// pipeline.Run) would stall until the feed's own idle timeout.
	go func() {
		<-ctx.Done()
		client.Close()
	}()

	for i := 0; i < persistWorkerCount; i++ {
		tag := fmt.Sprintf("ingestd-persist-%d", i)
		deliveries, err := broker.Consume(ctx, tag, cfg.BatchSize)
		if err != nil {
			log.Error("ingestd: consume failed", "worker", tag, "error", err)
			os.Exit(1)
		}
		worker := persistworker.New(persistworker.Config{
			ID:           tag,
			BatchSize:    cfg.BatchSize,
			BatchTimeout: time.Duration(cfg.BatchTimeoutSeconds) * time.Second,
			SQLTimeout:   cfg.SQLBatchTimeout,
		}, db, broker, redis, pol, log)
		go func() { errCh <- worker.Run(ctx, deliveries) }()
	}

	go reportHeartbeat(ctx, registry, redis, pipeline, log)

	go func() {
		if err := health.Serve(cfg.HealthAddr, registry); err != nil {
			log.Error("ingestd: health server stopped", "error", err)
		}
	}()

	// Wait for every component to exit. A component error triggers
	// cancellation of the rest; persist workers still finish and ack
	// their current batch before their Run call returns, per the
	// cancellation policy.
	for i := 0; i < cap(errCh); i++ {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			log.Error("ingestd: component exited unexpectedly, shutting down", "error", err)
			cancel()
		}
	}

	log.Info("ingestd: shutdown complete")
}

func reportHeartbeat(ctx context.Context, registry *health.Registry, c *cache.Cache, p *ingest.Pipeline, log *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := p.Heartbeat()
			registry.Set(hb)
			blob, err := json.Marshal(hb)
			if err != nil {
				log.Error("ingestd: marshal heartbeat failed", "error", err)
				continue
			}
			c.SetHealth(ctx, hb.Component, blob)
		}
	}
}

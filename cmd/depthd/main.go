// Command depthd runs one full-depth/signal-core instance (C5) for a
// single SECURITY_ID: it connects to the full-depth WebSocket, merges
// bid/ask sides into snapshots, persists and publishes them, feeds the
// rolling buffer, and runs the 10-second signal evaluation loop.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantdesk/fno-md-ingest/internal/backoff"
	"github.com/quantdesk/fno-md-ingest/internal/cache"
	"github.com/quantdesk/fno-md-ingest/internal/config"
	"github.com/quantdesk/fno-md-ingest/internal/credential"
	"github.com/quantdesk/fno-md-ingest/internal/depth"
	"github.com/quantdesk/fno-md-ingest/internal/health"
	"github.com/quantdesk/fno-md-ingest/internal/ingest"
	"github.com/quantdesk/fno-md-ingest/internal/instrument"
	"github.com/quantdesk/fno-md-ingest/internal/notify"
	"github.com/quantdesk/fno-md-ingest/internal/rollingbuffer"
	"github.com/quantdesk/fno-md-ingest/internal/signalengine"
	"github.com/quantdesk/fno-md-ingest/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("depthd: config load failed", "error", err)
		os.Exit(1)
	}
	if cfg.SecurityID == "" {
		log.Error("depthd: SECURITY_ID is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn("depthd: received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	db, err := store.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("depthd: store open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Error("depthd: migrate failed", "error", err)
		os.Exit(1)
	}

	redis, err := cache.New(cfg.RedisURL, cfg.CacheOpTimeout, log)
	if err != nil {
		log.Error("depthd: cache connect failed", "error", err)
		os.Exit(1)
	}
	defer redis.Close()

	instCache := instrument.New(log)
	if err := instCache.Load(ctx, db, redis); err != nil {
		log.Error("depthd: instrument load failed", "error", err)
		os.Exit(1)
	}

	inst, ok := instCache.ResolveSecurityID(cfg.SecurityID)
	if !ok {
		log.Error("depthd: security id not found in instrument master", "security_id", cfg.SecurityID)
		os.Exit(1)
	}

	tokens := credential.NewCacheProvider(credential.NewFileProvider(cfg.AccessTokenFile))
	tok, err := tokens.Get(ctx)
	if err != nil {
		log.Error("depthd: access token unavailable", "error", err)
		os.Exit(1)
	}

	subscriptions := ingest.BuildSubscriptions(ingest.RequestCodeFullDepth, []ingest.InstrumentRef{
		{ExchangeSegment: inst.Segment, SecurityId: inst.SecurityID},
	})

	pol := backoff.New(time.Now().UnixNano())
	registry := health.NewRegistry()
	buf := rollingbuffer.New(rollingbuffer.DefaultCapacity)
	sink := notify.New(cfg.AlertWebhookURL, cfg.AlertTimeout, log)

	depthPipeline := depth.NewPipeline("depthd", inst.TradingSymbol, cfg.SQLBatchTimeout, db, redis, buf, log)

	client := depth.NewClient(depth.ClientConfig{
		URL:                  cfg.DepthFeedURL,
		AccessToken:          tok.AccessToken,
		ClientID:             cfg.ClientID,
		Subscriptions:        subscriptions,
		MaxReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:       cfg.ReconnectDelay,
	}, log, pol, depthPipeline.OnSide, func() {
		log.Warn("depthd: server requested disconnect", "security_id", cfg.SecurityID)
	})

	analyzer := signalengine.NewAnalyzer(inst.TradingSymbol, inst.SecurityID, inst.TickSize, buf, db, redis, sink, log)

	errCh := make(chan error, 2)
	go func() { errCh <- client.Run(ctx) }()
	go func() { errCh <- analyzer.Run(ctx) }()

	// Close the transport as soon as shutdown begins rather than after
	// the wait loop: ReadMessage only checks ctx between reads, so
	// without this the read loop would stall until the feed's own idle
	// timeout instead of tearing down the connection gracefully.
	go func() {
		<-ctx.Done()
		client.Close()
	}()

	go sweepStaleHalves(ctx, depthPipeline, log)
	go reportDepthHeartbeat(ctx, registry, redis, depthPipeline, client, log)

	go func() {
		if err := health.Serve(cfg.HealthAddr, registry); err != nil {
			log.Error("depthd: health server stopped", "error", err)
		}
	}()

	for i := 0; i < cap(errCh); i++ {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			log.Error("depthd: component exited unexpectedly, shutting down", "error", err)
			cancel()
		}
	}

	log.Info("depthd: shutdown complete")
}

func sweepStaleHalves(ctx context.Context, p *depth.Pipeline, log *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := p.SweepStale(now); n > 0 {
				log.Debug("depthd: swept stale half-snapshots", "count", n)
			}
		}
	}
}

func reportDepthHeartbeat(ctx context.Context, registry *health.Registry, c *cache.Cache, p *depth.Pipeline, client *depth.Client, log *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := p.Heartbeat(client.Attempts(), client.AuthExpired())
			registry.Set(hb)
			blob, err := json.Marshal(hb)
			if err != nil {
				log.Error("depthd: marshal heartbeat failed", "error", err)
				continue
			}
			c.SetHealth(ctx, hb.Component, blob)
		}
	}
}

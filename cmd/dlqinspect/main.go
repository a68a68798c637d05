// Command dlqinspect connects to the message bus and prints every
// message sitting on ticks.dlq in human-readable form, for operator
// triage of ticks that failed to decode three times.
//
// Usage:
//
//	dlqinspect                      # drain and print using RABBITMQ_URL
//	dlqinspect -url amqp://...      # override the broker URL
//	dlqinspect -limit 50            # stop after N messages (0 = unbounded)
//	dlqinspect -hex                 # also dump raw hex alongside decoded output
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantdesk/fno-md-ingest/internal/bus"
	"github.com/quantdesk/fno-md-ingest/internal/config"
	"github.com/quantdesk/fno-md-ingest/internal/tick"
)

func main() {
	url := flag.String("url", "", "broker URL (defaults to RABBITMQ_URL)")
	limit := flag.Int("limit", 0, "stop after N messages (0 = unbounded)")
	showHex := flag.Bool("hex", false, "also dump raw hex alongside decoded output")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	brokerURL := *url
	if brokerURL == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "dlqinspect: config load failed: %v\n", err)
			os.Exit(1)
		}
		brokerURL = cfg.RabbitMQURL
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	broker, err := bus.Connect(ctx, brokerURL, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dlqinspect: connect failed: %v\n", err)
		os.Exit(1)
	}
	defer broker.Close()

	deliveries, err := broker.ConsumeDeadLetter(ctx, "dlqinspect")
	if err != nil {
		fmt.Fprintf(os.Stderr, "dlqinspect: consume failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("dlqinspect: draining ticks.dlq, Ctrl-C to stop")

	count := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("dlqinspect: stopped after %d messages\n", count)
			return
		case d, ok := <-deliveries:
			if !ok {
				fmt.Printf("dlqinspect: channel closed after %d messages\n", count)
				return
			}
			printDelivery(d.Body, d.Headers, *showHex)
			d.Ack(false)
			count++
			if *limit > 0 && count >= *limit {
				fmt.Printf("dlqinspect: reached limit of %d messages\n", *limit)
				return
			}
		}
	}
}

func printDelivery(body []byte, headers map[string]any, showHex bool) {
	reason, _ := headers["reason"].(string)
	if reason == "" {
		reason = "unknown"
	}

	t, err := tick.Decode(body)
	if err != nil {
		fmt.Printf("[dlq] undecodable body (%d bytes), reason=%s, decode_error=%v\n", len(body), reason, err)
	} else {
		fmt.Printf("[dlq] token=%d time=%s last_price=%.2f reason=%s\n", t.InstrumentToken, t.Time, t.LastPrice, reason)
	}

	if showHex {
		fmt.Printf("      hex: %s\n", hex.EncodeToString(body))
	}
}

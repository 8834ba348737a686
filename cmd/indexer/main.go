package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/archive"
	"github.com/your-org/facegate/internal/awsconf"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/directory"
	"github.com/your-org/facegate/internal/indexer"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/recognition"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facegate indexer",
		"workers", cfg.Indexer.WorkerCount,
		"max_deliver", cfg.Indexer.MaxDeliver,
		"notifications", cfg.Indexer.Notifications,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconf.Load(ctx, cfg.AWS)
	if err != nil {
		slog.Error("load aws config", "error", err)
		os.Exit(1)
	}

	matcher := recognition.NewRekognitionMatcher(awsCfg, cfg.Matcher.Timeout)
	if err := matcher.EnsureCollection(ctx, cfg.Matcher.CollectionID); err != nil {
		slog.Error("ensure matcher collection", "collection", cfg.Matcher.CollectionID, "error", err)
		os.Exit(1)
	}

	dir, closeDir, err := directory.NewFromConfig(ctx, cfg, awsCfg)
	if err != nil {
		slog.Error("connect to directory", "error", err)
		os.Exit(1)
	}
	defer closeDir()

	arch, err := archive.NewFromConfig(cfg, awsCfg)
	if err != nil {
		slog.Error("connect to archive", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	ix := indexer.New(matcher, dir, arch, producer, indexer.Options{
		CollectionID: cfg.Matcher.CollectionID,
		// Only S3 objects can be read by the matcher directly.
		FetchImages:   cfg.Archive.Backend != "s3",
		Notifications: cfg.Indexer.Notifications,
	})

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeEnrollments(ctx, cfg.Indexer.Consumer, func(ctx context.Context, d queue.Delivery) error {
		return ix.HandleDelivery(ctx, d, cfg.Indexer.MaxDeliver)
	}, cfg.Indexer.WorkerCount, cfg.Indexer.MaxDeliver)
	if err != nil {
		slog.Error("start enrollment consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		addr := fmt.Sprintf(":%d", cfg.Indexer.MetricsPort)
		slog.Info("indexer metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.EnrollmentQueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down indexer...")
	cancel()

	// Give in-flight messages a moment to ack
	time.Sleep(2 * time.Second)
	slog.Info("indexer stopped")
}

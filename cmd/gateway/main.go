package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/api"
	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/archive"
	"github.com/your-org/facegate/internal/awsconf"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/directory"
	"github.com/your-org/facegate/internal/gateway"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/recognition"
	"github.com/your-org/facegate/internal/staging"
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

	slog.Info("starting facegate gateway",
		"port", cfg.Server.Port,
		"directory", cfg.Directory.Backend,
		"archive", cfg.Archive.Backend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconf.Load(ctx, cfg.AWS)
	if err != nil {
		slog.Error("load aws config", "error", err)
		os.Exit(1)
	}

	matcher := recognition.NewRekognitionMatcher(awsCfg, cfg.Matcher.Timeout)
	if err := matcher.Ping(ctx, cfg.Matcher.CollectionID); err != nil {
		slog.Warn("matcher collection not reachable", "collection", cfg.Matcher.CollectionID, "error", err)
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
	if err := arch.EnsureBuckets(ctx); err != nil {
		slog.Warn("ensure archive buckets", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	area, err := staging.NewArea(cfg.Gateway.StagingDir)
	if err != nil {
		slog.Error("create staging area", "error", err)
		os.Exit(1)
	}

	svc := gateway.NewService(matcher, dir, arch, producer, area, gateway.Options{
		CollectionID:            cfg.Matcher.CollectionID,
		Threshold:               cfg.Matcher.Threshold,
		DegradeOnDirectoryError: cfg.Gateway.DegradeOnDirectoryError,
	})

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Relay indexing outcomes to WebSocket clients
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create status consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeStatus(ctx, "gateway-status-"+uuid.NewString(), func(ctx context.Context, d queue.Delivery) error {
		var status models.IndexingStatus
		if err := json.Unmarshal(d.Data, &status); err != nil {
			slog.Error("unmarshal indexing status", "error", err)
			return nil // Don't retry on unmarshal errors
		}
		hub.BroadcastStatus(status)
		return nil
	})
	if err != nil {
		slog.Warn("start status consumer", "error", err)
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:         cfg.Server.APIKey,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Service:        svc,
		Directory:      dir,
		Hub:            hub,
		Checks: map[string]handlers.Check{
			"directory": dir.Ping,
			"archive":   arch.Ping,
			"matcher": func(ctx context.Context) error {
				return matcher.Ping(ctx, cfg.Matcher.CollectionID)
			},
			"nats": func(context.Context) error { return producer.Ping() },
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gateway...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("gateway stopped")
}

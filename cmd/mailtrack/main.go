package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/mdon/mailtrack/internal/config"
	"github.com/mdon/mailtrack/internal/handlers"
	"github.com/mdon/mailtrack/internal/logging"
	"github.com/mdon/mailtrack/internal/poller"
	"github.com/mdon/mailtrack/internal/processor"
	"github.com/mdon/mailtrack/internal/queue"
	"github.com/mdon/mailtrack/internal/recovery"
	"github.com/mdon/mailtrack/internal/repository"
	"github.com/mdon/mailtrack/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	// Run database migrations
	log.Println("Running database migrations...")
	m, err := migrate.New("file://"+cfg.Database.MigrationsPath, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := repository.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer store.Close()

	if cfg.Queue.MainURL == "" {
		log.Fatalf("queue.main_url is required")
	}
	mainQueue, err := queue.NewSQS(ctx, cfg.Queue.MainURL, queue.SQSOptions{
		Region:   cfg.Queue.Region,
		Endpoint: cfg.Queue.Endpoint,
	})
	if err != nil {
		log.Fatalf("Failed to initialize main queue: %v", err)
	}

	proc := processor.New(store, logger, processor.Options{
		CaptureHeaders:  cfg.Reconciler.CaptureHeaders,
		ClickDedupScope: processor.ClickDedupScope(cfg.Reconciler.ClickDedupScope),
	})

	p := poller.New(mainQueue, proc, logger, poller.Config{
		Enabled:           cfg.Poller.Enabled,
		Interval:          cfg.Poller.Interval,
		MaxBatchSize:      cfg.Poller.MaxBatchSize,
		VisibilityTimeout: cfg.Poller.VisibilityTimeout,
		WaitTime:          cfg.Poller.WaitTime,
		JoinTimeout:       cfg.Poller.JoinTimeout,
	})
	if err := p.Start(ctx); err != nil {
		log.Fatalf("Failed to start poller: %v", err)
	}

	// The dead-letter drainer reprocesses messages the provider moved to
	// the redrive queue. Without a configured DLQ, draining operates on
	// the main queue.
	dlqURL := cfg.Queue.DLQURL
	if dlqURL == "" {
		logger.WarnContext(ctx, "queue.dlq_url not set, dead-letter drain will use the main queue")
		dlqURL = cfg.Queue.MainURL
	}
	dlqQueue, err := queue.NewSQS(ctx, dlqURL, queue.SQSOptions{
		Region:   cfg.Queue.Region,
		Endpoint: cfg.Queue.Endpoint,
	})
	if err != nil {
		log.Fatalf("Failed to initialize dead-letter queue: %v", err)
	}
	drainer := recovery.New(dlqQueue, proc, logger)

	handler := handlers.NewHandler(p, drainer, store, logger)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.InfoContext(ctx, "control API listening",
			"addr", srv.Addr,
			"poller_enabled", cfg.Poller.Enabled,
			"queue_url", cfg.Queue.MainURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.InfoContext(ctx, "shutting down", "signal", sig.String())

	cancel()
	if err := p.Stop(); err != nil {
		logger.WarnContext(context.Background(), "poller stop", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(shutdownCtx, "server shutdown failed", "error", err)
	}
}

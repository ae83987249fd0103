package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netsentry/netsentry/common/httputil"
	"github.com/netsentry/netsentry/common/logging"
	"github.com/netsentry/netsentry/common/queue"
	"github.com/netsentry/netsentry/common/storage"
	"github.com/netsentry/netsentry/worker/internal/config"
	"github.com/netsentry/netsentry/worker/internal/consumer"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("worker"))
	logging.SetDefault(logger)

	slog.Info("Starting worker",
		slog.String("queue", cfg.Queue.Key),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store storage.Store
	if cfg.Database.URL == "" {
		slog.Warn("database.url not set, persisting to in-memory storage")
		store = storage.NewMemoryStore(storage.DefaultMemoryEvents)
	} else {
		if cfg.Database.Migrate {
			if err := storage.Migrate(cfg.Database.URL); err != nil {
				log.Fatalf("Failed to run migrations: %v", err)
			}
		}
		pg, err := storage.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		store = pg
	}
	defer store.Close()

	broker, err := queue.NewRedisBroker(cfg.Redis.URL, cfg.Queue.Key)
	if err != nil {
		log.Fatalf("Failed to configure queue broker: %v", err)
	}

	var wg sync.WaitGroup
	c := consumer.New(broker, store, consumer.Options{
		PopTimeout: cfg.Worker.PopTimeout,
		Backoff:    cfg.Worker.Backoff,
	}, logger.Logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run(ctx)
	}()

	if cfg.Retention.Enabled {
		r := consumer.NewRetention(store, cfg.Retention.Interval, cfg.Retention.MaxAge(), logger.Logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"broker": "ok", "storage": "ok"}
		code := http.StatusOK
		if err := broker.Ping(r.Context()); err != nil {
			status["broker"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if err := store.Ping(r.Context()); err != nil {
			status["storage"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, status)
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("Worker metrics listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server error", logging.Error(err))
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	wg.Wait()
	if err := broker.Close(); err != nil {
		slog.Warn("Failed to close broker", logging.Error(err))
	}
	slog.Info("Worker stopped")
}

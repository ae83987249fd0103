package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/netsentry/netsentry/common/logging"
	"github.com/netsentry/netsentry/common/middleware"
	"github.com/netsentry/netsentry/common/models"
	commonqueue "github.com/netsentry/netsentry/common/queue"
	"github.com/netsentry/netsentry/common/signatures"
	"github.com/netsentry/netsentry/common/storage"
	"github.com/netsentry/netsentry/ingest/internal/auth"
	"github.com/netsentry/netsentry/ingest/internal/config"
	"github.com/netsentry/netsentry/ingest/internal/handlers"
	"github.com/netsentry/netsentry/ingest/internal/hub"
	"github.com/netsentry/netsentry/ingest/internal/queue"
	"github.com/netsentry/netsentry/ingest/internal/ratelimit"
	"github.com/netsentry/netsentry/ingest/internal/scanner"
	"github.com/netsentry/netsentry/ingest/internal/server"
	"github.com/netsentry/netsentry/ingest/internal/service"
	"github.com/netsentry/netsentry/ingest/internal/validator"
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
	).With(logging.Service("ingest"))
	logging.SetDefault(logger)

	slog.Info("Starting ingest gate",
		slog.Int("port", cfg.Server.Port),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	store := openStore(ctx, cfg)
	defer store.Close()

	// Signature rules: file rules seed storage and back the scanner when
	// storage is unreachable.
	var fileRules []models.Signature
	if cfg.Rules.File != "" {
		fileRules, err = signatures.LoadFile(cfg.Rules.File)
		if err != nil {
			slog.Warn("Failed to load signature file, using client defaults",
				slog.String("path", cfg.Rules.File), logging.Error(err))
			fileRules = signatures.ClientDefaults()
		}
	}
	if inserted, err := signatures.Reconcile(ctx, store, fileRules); err != nil {
		slog.Warn("Signature reconciliation failed", logging.Error(err))
	} else if len(inserted) > 0 {
		slog.Info("Seeded signatures", slog.Any("names", inserted))
	}

	sc := scanner.New(store, fileRules, logger.Logger)
	if _, err := sc.Reload(ctx); err != nil {
		slog.Warn("Serving file signatures until storage recovers", logging.Error(err))
	}

	// Durable queue
	broker, err := commonqueue.NewRedisBroker(cfg.Redis.URL, cfg.Queue.Key)
	if err != nil {
		log.Fatalf("Failed to configure queue broker: %v", err)
	}
	defer broker.Close()

	adapter := queue.NewAdapter(broker, queue.Options{
		PushTimeout:   cfg.Queue.PushTimeout,
		FlushInterval: cfg.Queue.FlushInterval,
		BatchSize:     cfg.Queue.BatchSize,
		BufferMax:     cfg.Queue.BufferMax,
	}, logger.Logger)
	// The adapter outlives the request context so events accepted during
	// shutdown still reach the broker.
	adapterCtx, stopAdapter := context.WithCancel(context.Background())
	defer stopAdapter()
	adapterDone := make(chan struct{})
	go func() {
		defer close(adapterDone)
		adapter.Run(adapterCtx)
	}()

	// Broadcast hub
	authenticator := auth.NewAuthenticator(cfg.Auth.Mode, cfg.Auth.JWTSecret)
	liveHub := hub.New(authenticator, cfg.Hub.HeartbeatInterval, logger.Logger)
	if cfg.Hub.NATSURL != "" {
		relay, err := hub.NewNATSRelay(cfg.Hub.NATSURL, cfg.Hub.NATSSubject, liveHub.Deliver, logger.Logger)
		if err != nil {
			slog.Warn("Broadcast relay disabled", slog.String("nats_url", cfg.Hub.NATSURL), logging.Error(err))
		} else {
			liveHub.SetRelay(relay)
			slog.Info("Broadcast relay enabled", slog.String("subject", cfg.Hub.NATSSubject))
		}
	}

	// Rate limiting
	agentLimiter, globalLimiter := newLimiters(cfg)
	defer agentLimiter.Close()
	defer globalLimiter.Close()

	eventValidator, err := validator.NewEventValidator()
	if err != nil {
		log.Fatalf("Failed to compile event schema: %v", err)
	}

	ingestService := service.NewIngestService(adapter, liveHub, sc, store, logger.Logger)
	proxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		log.Fatalf("Invalid server.trusted_proxies: %v", err)
	}
	handler := handlers.NewHandler(ingestService, authenticator, eventValidator, agentLimiter, logger.Logger)
	handler.TrustProxies(proxies)
	router := server.NewRouter(handler, server.Options{
		Live:           liveHub,
		GlobalLimiter:  globalLimiter,
		TrustedProxies: proxies,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", middleware.HeaderRequestID},
		},
		Logger: logger.Logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	tlsEnabled := cfg.Server.TLSCert != "" && cfg.Server.TLSKey != ""
	if tlsEnabled {
		tlsConfig, err := serverTLS(cfg)
		if err != nil {
			log.Fatalf("Failed to configure TLS: %v", err)
		}
		srv.TLSConfig = tlsConfig
	} else if cfg.Auth.Mode == config.AuthModeMTLS {
		log.Fatalf("mtls mode requires server.tls_cert and server.tls_key")
	}

	go func() {
		slog.Info("Ingest gate listening", slog.String("addr", srv.Addr), slog.Bool("tls", tlsEnabled))
		var err error
		if tlsEnabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down ingest gate")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}
	ingestService.Wait()
	liveHub.Close()
	stopAdapter()
	<-adapterDone

	slog.Info("Ingest gate stopped", slog.Int("unflushed", adapter.BufferLen()))
}

// openStore connects to Postgres when configured, otherwise falls back to an
// in-memory store.
func openStore(ctx context.Context, cfg *config.Config) storage.Store {
	if cfg.Database.URL == "" {
		slog.Warn("database.url not set, using in-memory storage")
		return storage.NewMemoryStore(storage.DefaultMemoryEvents)
	}
	if cfg.Database.Migrate {
		if err := storage.Migrate(cfg.Database.URL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}
	store, err := storage.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return store
}

func newLimiters(cfg *config.Config) (agent, global ratelimit.RateLimiter) {
	rl := cfg.RateLimit
	if rl.Backend == "redis" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid redis.url: %v", err)
		}
		client := redis.NewClient(opts)
		slog.Info("Rate limiting backed by redis",
			slog.Int("agent_max", rl.AgentMax), slog.Int("global_max", rl.GlobalMax))
		return ratelimit.NewRedisRateLimiter(client, "agent", rl.AgentMax, rl.Window),
			ratelimit.NewRedisRateLimiter(client, "global", rl.GlobalMax, rl.Window)
	}

	agentLimiter, err := ratelimit.NewMemoryRateLimiter(rl.AgentMax, rl.Window, rl.MaxKeys)
	if err != nil {
		log.Fatalf("Failed to create agent rate limiter: %v", err)
	}
	globalLimiter, err := ratelimit.NewMemoryRateLimiter(rl.GlobalMax, rl.Window, rl.MaxKeys)
	if err != nil {
		log.Fatalf("Failed to create global rate limiter: %v", err)
	}
	return agentLimiter, globalLimiter
}

// serverTLS loads the client CA pool. Certificates are verified when offered,
// so token-mode callers without one are still served.
func serverTLS(cfg *config.Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.Server.TLSCA == "" {
		return tlsConfig, nil
	}
	pem, err := os.ReadFile(cfg.Server.TLSCA)
	if err != nil {
		return nil, fmt.Errorf("read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", cfg.Server.TLSCA)
	}
	tlsConfig.ClientCAs = pool
	tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	return tlsConfig, nil
}

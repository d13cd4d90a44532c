package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/Relay/internal/adapter/a2a"
	"github.com/Strob0t/Relay/internal/adapter/fsstore"
	relayhttp "github.com/Strob0t/Relay/internal/adapter/http"
	relaymcp "github.com/Strob0t/Relay/internal/adapter/mcp"
	relaynats "github.com/Strob0t/Relay/internal/adapter/nats"
	relayotel "github.com/Strob0t/Relay/internal/adapter/otel"
	"github.com/Strob0t/Relay/internal/adapter/postgres"
	"github.com/Strob0t/Relay/internal/adapter/ristretto"
	"github.com/Strob0t/Relay/internal/config"
	"github.com/Strob0t/Relay/internal/logger"
	"github.com/Strob0t/Relay/internal/middleware"
	"github.com/Strob0t/Relay/internal/port/cache"
	"github.com/Strob0t/Relay/internal/port/events"
	"github.com/Strob0t/Relay/internal/port/storage"
	"github.com/Strob0t/Relay/internal/service"
)

const version = "0.1.0"

func main() {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "migrate" {
		if err := runMigrate(args[1:]); err != nil {
			slog.Error("migrate failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}

	cfg, yamlPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, yamlPath)

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"backend", cfg.Storage.Backend,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	// --- Telemetry ---
	providers, err := relayotel.Init(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()

	// --- Storage ---
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// --- Cache ---
	var c cache.Cache = cache.Nop{}
	if cfg.Cache.Enabled {
		rc, err := ristretto.NewMB(cfg.Cache.MaxSizeMB)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		defer rc.Close()
		c = rc
	}

	// --- Events ---
	var pub events.Publisher = events.Noop{}
	if cfg.NATS.Enabled {
		np, err := relaynats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = np.Close() }()
		pub = np
		slog.Info("nats connected", "url", cfg.NATS.URL, "stream", cfg.NATS.Stream)
	}

	// --- Services ---
	messageSvc := service.NewMessageService(store, c, pub)
	registrySvc := service.NewRegistryService(store, c, pub)
	discoverySvc := service.NewDiscoveryService(registrySvc, messageSvc, pub)

	if cfg.Otel.Enabled {
		metrics, err := relayotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		messageSvc.SetMetrics(metrics)
		registrySvc.SetMetrics(metrics)
		discoverySvc.SetMetrics(metrics)
	}

	// --- MCP ---
	if cfg.MCP.Enabled {
		mcpSrv := relaymcp.NewServer(
			relaymcp.ServerConfig{
				Addr:    ":" + cfg.MCP.Port,
				Name:    cfg.Logging.Service,
				Version: version,
			},
			relaymcp.ServerDeps{
				Messages:  messageSvc,
				Registry:  registrySvc,
				Discovery: discoverySvc,
			},
		)
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mcpSrv.Stop(stopCtx); err != nil {
				slog.Error("mcp shutdown", "error", err)
			}
		}()
	}

	// --- HTTP ---
	handlers := relayhttp.NewHandlers(messageSvc, registrySvc, discoverySvc)
	rpc := a2a.NewHandler(a2a.NewAdapter(messageSvc, registrySvc))

	rl := middleware.NewRateLimiter(50, 100)
	defer rl.StartCleanup(time.Minute, 10*time.Minute)()

	r := chi.NewRouter()
	r.Use(rl.Handler)
	r.Use(relayhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(relayhttp.SecurityHeaders)
	// RequestID runs before Logger so the logged request_id is populated.
	r.Use(middleware.RequestID)
	r.Use(relayhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.Otel.Enabled {
		r.Use(relayotel.HTTPMiddleware(cfg.Logging.Service))
	}

	relayhttp.MountRoutes(r, handlers)
	rpc.MountRoutes(r)
	r.Get("/status", statusHandler(holder))

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// SIGHUP reloads the YAML config; SIGINT/SIGTERM shut down.
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)

	go func() {
		for range reload {
			if err := holder.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
				continue
			}
			slog.Info("config reloaded", "path", yamlPath)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-done:
		case <-gctx.Done():
		}
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore opens the configured storage backend. The postgres backend runs
// pending migrations before serving.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		slog.Info("postgres connected")
		return postgres.NewStore(pool), nil
	default:
		store, err := fsstore.Open(cfg.Storage.FSRoot)
		if err != nil {
			return nil, fmt.Errorf("fs store: %w", err)
		}
		slog.Info("fs store opened", "root", cfg.Storage.FSRoot)
		return store, nil
	}
}

// statusHandler reports the active storage backend and build version.
// Liveness lives at /health.
func statusHandler(holder *config.Holder) http.HandlerFunc {
	type statusBody struct {
		Status  string `json:"status"`
		Backend string `json:"backend"`
		Version string `json:"version"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		cfg := holder.Get()
		status := statusBody{
			Status:  "ok",
			Backend: cfg.Storage.Backend,
			Version: version,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}

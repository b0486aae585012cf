// Bridge server — mirrors the UI's graph state, plans agent turns, and runs
// the goal → task → patch → review pipeline behind the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/graphweave/bridge/pkg/agent"
	"github.com/graphweave/bridge/pkg/api"
	"github.com/graphweave/bridge/pkg/chat"
	"github.com/graphweave/bridge/pkg/config"
	"github.com/graphweave/bridge/pkg/layout"
	"github.com/graphweave/bridge/pkg/mirror"
	"github.com/graphweave/bridge/pkg/pipeline"
	"github.com/graphweave/bridge/pkg/profile"
	"github.com/graphweave/bridge/pkg/queue"
	"github.com/graphweave/bridge/pkg/scheduler"
	"github.com/graphweave/bridge/pkg/tools"
	"github.com/graphweave/bridge/pkg/trace"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to bridge.yaml (default ./bridge.yaml)")
	flag.Parse()

	// Load .env before anything reads the environment.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	// 1. Resolve configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// 2. Profile store: Postgres when DATABASE_URL is set, memory otherwise
	var profiles profile.Store
	if cfg.DatabaseURL != "" {
		pg, err := profile.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect profile store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				slog.Error("Error closing profile store", "error", err)
			}
		}()
		profiles = pg
		slog.Info("Profile store: PostgreSQL")
	} else {
		profiles = profile.NewMemoryStore()
		slog.Info("Profile store: in-memory")
	}

	// 3. Core state: mirror, queues, registry, layout, chat, tracer
	m := mirror.New()
	queues := queue.NewManager(cfg.Queue.LeaseTimeout.Std())
	queues.Start()
	registry := tools.NewRegistry(tools.DefaultSpecs())
	engine := layout.NewEngine()
	chatCh := chat.New()
	tracer := trace.New()

	// 4. Pipeline stages and outbox
	outbox := pipeline.NewOutbox(chatCh)
	external := pipeline.NewExternal(cfg.Defaults.SemanticSearchEndpoint)
	planner := pipeline.NewPlanner(queues, registry, chatCh, tracer)
	executor := pipeline.NewExecutor(queues, m, registry, engine, chatCh, tracer,
		external, cfg.Defaults.FuzzyMatchThreshold)
	auditor := pipeline.NewAuditor(queues, m, tracer)
	committer := pipeline.NewCommitter(queues, m, outbox, chatCh, tracer)

	// 5. Scheduler (started lazily by the coordinator on the first goal)
	sched := scheduler.New(cfg.Scheduler.Build(), planner, executor, auditor, committer)

	// 6. Coordinator over the chat-completions client
	coordinator := agent.NewCoordinator(agent.NewHTTPClient(), queues, registry,
		m, profiles, sched)

	// 7. HTTP server
	server := api.NewServer(cfg, m, queues, outbox, chatCh, tracer, engine,
		sched, coordinator, profiles)

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 8. Serve (non-blocking). Binding failures are fatal; anything else is
	// logged and the process keeps draining the pipeline.
	go func() {
		var serveErr error
		if cfg.Server.UseHTTPS {
			slog.Info("HTTPS server listening", "addr", addr)
			serveErr = httpServer.ListenAndServeTLS(cfg.Server.SSLCertPath, cfg.Server.SSLKeyPath)
		} else {
			slog.Info("HTTP server listening", "addr", addr)
			serveErr = httpServer.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logServeError(serveErr, addr)
			if errors.Is(serveErr, syscall.EADDRINUSE) || errors.Is(serveErr, syscall.EACCES) {
				os.Exit(1)
			}
		}
	}()

	slog.Info("Bridge started",
		"port", cfg.Server.Port,
		"tools", len(registry.Names()),
		"fuzzy_threshold", cfg.Defaults.FuzzyMatchThreshold)

	// 9. Wait for a shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("Shutdown signal received", "signal", sig)

	// 10. Graceful shutdown: pipeline first, then queues, then HTTP
	sched.Stop()
	queues.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	slog.Info("Bridge stopped")
}

// logServeError gives binding failures an actionable message.
func logServeError(err error, addr string) {
	switch {
	case errors.Is(err, syscall.EADDRINUSE):
		slog.Error("Address already in use, is another bridge running?", "addr", addr)
	case errors.Is(err, syscall.EACCES):
		slog.Error("Permission denied binding address, ports below 1024 need privileges", "addr", addr)
	default:
		slog.Error("HTTP server error", "error", err)
	}
}

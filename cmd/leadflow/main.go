package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/leadflow/internal/agent"
	"github.com/nidhogg/leadflow/internal/api"
	"github.com/nidhogg/leadflow/internal/auth"
	"github.com/nidhogg/leadflow/internal/config"
	"github.com/nidhogg/leadflow/internal/dispatch"
	"github.com/nidhogg/leadflow/internal/leadgen"
	"github.com/nidhogg/leadflow/internal/messaging"
	"github.com/nidhogg/leadflow/internal/notify"
	"github.com/nidhogg/leadflow/internal/orchestrator"
	"github.com/nidhogg/leadflow/internal/planner"
	"github.com/nidhogg/leadflow/internal/provider"
	pgstore "github.com/nidhogg/leadflow/internal/store"
	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Leadflow...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/leadflow.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize provider router
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Model: pc.Model,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}

	// Initialize workflow store: PostgreSQL, or in-memory for dev
	var store workflow.Store
	var pgStore *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Fatal("PostgreSQL unavailable", zap.Error(pgErr))
		}
		if mErr := ps.Migrate(context.Background(), "migrations"); mErr != nil {
			logger.Fatal("migration failed", zap.Error(mErr))
		}
		pgStore = ps
		store = ps
	} else {
		logger.Warn("no Postgres DSN, using in-memory store (runs are not durable)")
		store = pgstore.NewMemStore()
	}

	// Initialize external collaborators
	leadSource := leadgen.NewClient(cfg.Leadgen.Endpoint, cfg.Leadgen.APIKey, logger)
	var sender messaging.Sender
	if cfg.Messaging.Endpoint != "" {
		sender = messaging.NewHTTPSender(cfg.Messaging.Endpoint, cfg.Messaging.APIKey, cfg.Messaging.From, logger)
	} else {
		logger.Warn("no messaging endpoint, outreach runs dry")
		sender = messaging.NewLogSender(logger)
	}

	// Notifier
	var notifier agent.Notifier = notify.Noop{}
	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.BotToken != "" {
		notifier = notify.NewSlack(cfg.Notify.Slack.BotToken, cfg.Notify.Slack.Channel, logger)
		logger.Info("Slack notifications enabled", zap.String("channel", cfg.Notify.Slack.Channel))
	}

	// Register executor actions
	backoff := time.Duration(cfg.Workflow.BackoffMs) * time.Millisecond
	registry := agent.NewRegistry()
	registry.Register(agent.NewScoutAction(leadSource, backoff, logger))
	registry.Register(agent.NewQualifierAction(logger))
	registry.Register(agent.NewOutreachEmailAction(sender, backoff, logger))
	registry.Register(agent.NewOutreachSMSAction(sender, backoff, logger))
	registry.Register(agent.NewContentWriterAction(router, logger))
	registry.Register(agent.NewCarouselAction(router, logger))
	registry.Register(agent.NewImageAction(router, logger))
	agent.RegisterGenericActions(registry, router, logger)

	// Executor harness; dispatcher is attached below once chosen
	harness := agent.NewHarness(store, registry, nil, notifier, agent.HarnessConfig{
		StepTimeout: time.Duration(cfg.Workflow.StepTimeoutSec) * time.Second,
		FailMode:    agent.FailMode(cfg.Workflow.FailMode),
	}, logger)

	// Chain transport: durable queue by default, direct HTTP as fallback
	var dispatcher agent.Dispatcher
	var queue *dispatch.Queue
	var worker *dispatch.Worker
	if cfg.Workflow.Dispatch != "http" && cfg.Database.Redis.URL != "" {
		q, qErr := dispatch.NewQueue(cfg.Database.Redis.URL, logger)
		if qErr != nil {
			logger.Fatal("Redis unavailable", zap.Error(qErr))
		}
		queue = q
		dispatcher = q
		worker = dispatch.NewWorker(q, harness, cfg.Workflow.WorkerPool, logger)
		worker.Start(context.Background())
	} else {
		baseURL := cfg.Workflow.BaseURL
		if baseURL == "" {
			baseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		}
		dispatcher = dispatch.NewHTTPDispatcher(baseURL, cfg.Auth.InternalToken, logger)
		logger.Info("using HTTP chain dispatch", zap.String("base_url", baseURL))
	}
	harness.SetDispatcher(dispatcher)

	// Planner + orchestrator
	plan := planner.New(router, cfg.Workflow.PlannerModel, logger)
	orch := orchestrator.New(plan, store, dispatcher, logger)

	// Reaper for stalled steps (opt-in)
	var reaper *orchestrator.Reaper
	if cfg.Workflow.Reaper.Enabled {
		reaper = orchestrator.NewReaper(store,
			time.Duration(cfg.Workflow.Reaper.IntervalSec)*time.Second,
			time.Duration(cfg.Workflow.Reaper.LeaseSec)*time.Second,
			logger)
		reaper.Start(context.Background())
	}

	// Build HTTP handler
	verifier := auth.NewStaticVerifier(cfg.Auth.Tokens)
	handler := api.NewHandler(orch, harness, store, verifier, cfg.Auth.InternalToken, logger)

	// Start server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Leadflow listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Leadflow...")
	srv.Shutdown(context.Background())
	if reaper != nil {
		reaper.Stop()
	}
	if worker != nil {
		worker.Stop()
	}
	if queue != nil {
		queue.Close()
	}
	if pgStore != nil {
		pgStore.Close()
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/medicare-wellness/clinic-scheduling/internal/api"
	"github.com/medicare-wellness/clinic-scheduling/internal/assistant"
	"github.com/medicare-wellness/clinic-scheduling/internal/calendly"
	"github.com/medicare-wellness/clinic-scheduling/internal/clinic"
	"github.com/medicare-wellness/clinic-scheduling/internal/config"
	"github.com/medicare-wellness/clinic-scheduling/internal/db"
	"github.com/medicare-wellness/clinic-scheduling/internal/notify"
	redisclient "github.com/medicare-wellness/clinic-scheduling/internal/redis"
	"github.com/medicare-wellness/clinic-scheduling/internal/webhook"
	"github.com/medicare-wellness/clinic-scheduling/pkg/logging"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("running", "env", cfg.Env, "http_port", cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	repo := clinic.NewPgRepository(pgPool)
	reconciler := clinic.NewReconciler(repo, logger)

	calendlyClient := calendly.NewClient(cfg.CalendlyAPIToken, cfg.CalendlyTimeout, logger)
	eventTypeCache := redisclient.NewCache(rdb, "calendly:event_type")
	resolver := calendly.NewResolver(calendlyClient, eventTypeCache, cfg.EventTypeCacheTTL, logger)

	var sender notify.EmailSender = notify.NewStubEmailSender(logger)
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
	}, logger); sg != nil {
		sender = sg
	} else {
		logger.Warn("SENDGRID_API_KEY not set, emails will be logged only")
	}
	mailer := notify.NewConfirmationMailer(sender, cfg.NotifyTimeout, logger)

	var assistantSvc *assistant.Service
	if cfg.GeminiAPIKey != "" {
		llm, err := assistant.NewGeminiClient(rootCtx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("gemini client error: %v", err)
		}
		defer func() {
			if err := llm.Close(); err != nil {
				logger.Error("error closing gemini client", "error", err)
			}
		}()
		assistantSvc = assistant.NewService(llm, assistant.NewRedisMemory(rdb, cfg.ChatHistoryTTL), logger)
	} else {
		logger.Warn("GEMINI_API_KEY not set, assistant endpoints disabled")
	}

	secret := cfg.CalendlyWebhookSecret
	if !cfg.WebhookSecretConfigured() {
		secret = ""
	}
	webhookHandler := webhook.NewHandler(secret, repo, resolver, reconciler, mailer, logger)

	// Registering the webhook subscription is best-effort: the operator may
	// prefer to manage it by hand, and a Calendly outage must not block boot.
	if cfg.CalendlyAPIToken != "" && cfg.WebhookCallbackURL != "" {
		regCtx, cancelReg := context.WithTimeout(rootCtx, 30*time.Second)
		if err := calendlyClient.EnsureSubscription(regCtx, cfg.WebhookCallbackURL); err != nil {
			logger.Warn("webhook subscription registration failed", "error", err)
		}
		cancelReg()
	}

	router := api.NewRouter(api.RouterConfig{
		Repo:       repo,
		Reconciler: reconciler,
		Webhook:    webhookHandler,
		Assistant:  assistantSvc,
		PgPool:     pgPool,
		Redis:      rdb,
		Env:        cfg.Env,
		Version:    version,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	logger.Info("api-server stopped")
}

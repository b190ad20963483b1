package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/medicare-wellness/clinic-scheduling/internal/clinic"
	"github.com/medicare-wellness/clinic-scheduling/internal/config"
	"github.com/medicare-wellness/clinic-scheduling/internal/db"
	"github.com/medicare-wellness/clinic-scheduling/internal/notify"
	"github.com/medicare-wellness/clinic-scheduling/pkg/logging"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("running reminder worker", "env", cfg.Env, "interval", cfg.ReminderInterval.String(), "horizon", cfg.ReminderHorizon.String())

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

	repo := clinic.NewPgRepository(pgPool)

	var sender notify.EmailSender = notify.NewStubEmailSender(logger)
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
	}, logger); sg != nil {
		sender = sg
	} else {
		logger.Warn("SENDGRID_API_KEY not set, reminders will be logged only")
	}
	mailer := notify.NewConfirmationMailer(sender, cfg.NotifyTimeout, logger)

	// Run once at startup
	runOnce(rootCtx, cfg, repo, mailer, logger)

	ticker := time.NewTicker(cfg.ReminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, cfg, repo, mailer, logger)
		}
	}
}

func runOnce(ctx context.Context, cfg config.Config, repo clinic.Repository, mailer *notify.ConfirmationMailer, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	now := time.Now()

	due, err := repo.FindUpcomingUnreminded(runCtx, now, now.Add(cfg.ReminderHorizon))
	if err != nil {
		logger.Error("reminder query failed", "error", err)
		return
	}

	sent := 0
	for _, det := range due {
		// Mark first: a crash mid-run must not double-send on the next tick.
		if err := repo.MarkReminderSent(runCtx, det.ID); err != nil {
			logger.Error("failed to mark reminder sent", "appointment_id", det.ID, "error", err)
			continue
		}
		mailer.SendReminder(runCtx, det)
		sent++
	}

	logger.Info("reminder run complete", "due", len(due), "sent", sent, "elapsed", time.Since(start).String())
}

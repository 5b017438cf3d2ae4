package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/suspectuso/sol-gate/internal/auth"
	"github.com/suspectuso/sol-gate/internal/config"
	"github.com/suspectuso/sol-gate/internal/notifier"
	"github.com/suspectuso/sol-gate/internal/reconcile"
	"github.com/suspectuso/sol-gate/internal/referral"
	"github.com/suspectuso/sol-gate/internal/storage"
	"github.com/suspectuso/sol-gate/internal/telegram"
	"github.com/suspectuso/sol-gate/internal/webhook"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()

	if cfg.BotToken == "" {
		log.Error("BOT_TOKEN is required")
		os.Exit(1)
	}
	if cfg.DepositAddress == "" {
		log.Error("DEPOSIT_ADDRESS is required")
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		log.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Domain engines
	referrals := referral.New(store, log)
	engine := reconcile.New(store, referrals, cfg.DepositAddress,
		cfg.RequiredPayment, cfg.CommissionPercent, log)
	authSvc := auth.New(store, log)

	// Initialize telegram bot
	bot, err := telegram.New(cfg, store, referrals, authSvc, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized")

	// Notification sink
	notify := notifier.New(cfg, store, bot, log)

	// HTTP surfaces: payment webhook + auth bridge
	authHTTP := auth.NewHTTPHandler(authSvc, store, cfg, log)
	server := webhook.NewServer(engine, notify, authHTTP.Routes(), log)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := server.Start(ctx, cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Error("webhook server", "error", err)
		}
	}()

	// Token lifecycle sweep
	go authSvc.StartSweeper(ctx, cfg.SweepInterval)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	bot.Start(ctx)
}

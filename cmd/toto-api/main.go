package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tototycoon/internal/api"
	"tototycoon/internal/auth"
	"tototycoon/internal/config"
	"tototycoon/internal/db"
	"tototycoon/internal/notify"
	"tototycoon/internal/referral"
	"tototycoon/internal/store"
	"tototycoon/internal/store/postgres"
	"tototycoon/internal/store/supabase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("load .env", "err", err)
	}
	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var (
		crediter store.Crediter
		pinger   api.Pinger
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{})
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := postgres.New(pool)
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				logger.Error("migrate failed", "err", err)
				os.Exit(1)
			}
		}
		crediter = pg
		pinger = pool
	} else {
		logger.Info("no DATABASE_URL, crediting through supabase rpc")
		crediter = supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey)
	}

	var verifier referral.Verifier
	notifiers := notify.Multi{}
	if cfg.BotToken != "" {
		verifier = auth.NewInitDataVerifier(cfg.BotToken, cfg.InitDataMaxAge)
		notifiers = append(notifiers, notify.NewTelegram(cfg.BotToken))
	} else {
		logger.Warn("BOT_TOKEN not set: init data verification skipped and telegram notifications disabled")
	}
	if cfg.DiscordBotToken != "" {
		d, err := notify.NewDiscord(cfg.DiscordBotToken, cfg.DiscordChannelID)
		if err != nil {
			logger.Error("discord setup failed", "err", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, d)
	}

	svc := referral.NewService(crediter, referral.Options{
		Verifier: verifier,
		Notifier: notifiers,
		Bonus:    cfg.ReferralBonus,
		Logger:   logger,
	})

	server := api.New(cfg, logger, svc, pinger)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("toto api listening", "addr", cfg.Addr, "referral_bonus", cfg.ReferralBonus)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"studypal/internal/app"
	"studypal/internal/config"
	"studypal/internal/ratelimit"
	"studypal/internal/server"
	"studypal/internal/telegram"
	"studypal/internal/util"
	"studypal/internal/whatsapp"
	"studypal/pkg/ai"
	"studypal/pkg/auth"
	"studypal/pkg/queue"
	"studypal/pkg/storage"
	"studypal/pkg/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}
	util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	objects, err := storage.NewMinioStore(
		cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
	)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}

	jobQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.QueueStream,
		Group:      cfg.QueueGroup,
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init job queue: %w", err)
	}

	chatLimiter, err := ratelimit.NewFixedWindowLimiter(
		jobQueue.Client(), "", cfg.ChatRateLimit, time.Duration(cfg.ChatRateWindowSecond)*time.Second,
	)
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}

	var generator ai.TextGenerator
	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GenerationModel)
		if err != nil {
			return fmt.Errorf("init gemini client: %w", err)
		}
		generator = gemini
	} else {
		slog.Warn("gemini api key not set, AI features disabled")
	}
	responder := ai.NewResponder(generator, cfg.GenerationModel)

	tokens, err := auth.NewTokenManager(cfg.TokenSecret, time.Duration(cfg.TokenTTLMinutes)*time.Minute)
	if err != nil {
		return fmt.Errorf("init token manager: %w", err)
	}

	application, err := app.New(app.Config{
		Store:          dataStore,
		Objects:        objects,
		Queue:          jobQueue,
		Responder:      responder,
		AITimeout:      time.Duration(cfg.AITimeoutSeconds) * time.Second,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
	})
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}

	var whatsAppWebhook http.Handler
	if cfg.WhatsAppAccessToken != "" {
		waClient, err := whatsapp.NewClient(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID)
		if err != nil {
			return fmt.Errorf("init whatsapp client: %w", err)
		}
		whatsAppWebhook = whatsapp.NewWebhook(
			application, waClient, cfg.WhatsAppVerifyToken, cfg.WhatsAppAppSecret, chatLimiter,
		)
		slog.Info("whatsapp webhook enabled")
	}

	var telegramBot *telegram.Bot
	var telegramClient *telegram.Client
	var telegramWebhook http.Handler
	if cfg.TelegramBotToken != "" {
		telegramClient, err = telegram.NewClient(cfg.TelegramBotToken)
		if err != nil {
			return fmt.Errorf("init telegram client: %w", err)
		}
		telegramBot = telegram.NewBot(application, telegramClient, chatLimiter)
		if cfg.TelegramWebhookSecret != "" {
			telegramWebhook = telegram.NewWebhook(telegramBot, cfg.TelegramWebhookSecret)
			slog.Info("telegram webhook enabled")
		}
	}

	srv := server.New(server.Config{
		App:             application,
		Tokens:          tokens,
		ChatLimiter:     chatLimiter,
		WhatsAppWebhook: whatsAppWebhook,
		TelegramWebhook: telegramWebhook,
		AllowedOrigins:  cfg.AllowedOrigins,
		TrustedProxies:  trustedProxies,
		MaxUploadBytes:  int64(cfg.MaxUploadMB) << 20,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		slog.Info("http server listening", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	slog.Info("extraction workers starting", "concurrency", cfg.QueueConcurrency)
	jobQueue.Start(ctx, cfg.QueueConcurrency, func(jobCtx context.Context, job queue.JobStatus) error {
		return application.ProcessDocument(jobCtx, job.DocumentID)
	})

	// Updates arrive via the webhook when a secret is configured;
	// otherwise fall back to long polling.
	if telegramBot != nil && telegramWebhook == nil {
		group.Go(func() error {
			slog.Info("telegram bot polling")
			telegram.Poll(ctx, telegramClient, telegramBot)
			return nil
		})
	}

	return group.Wait()
}

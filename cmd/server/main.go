package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/region23/pnplive/internal/booking"
	"github.com/region23/pnplive/internal/bot"
	"github.com/region23/pnplive/internal/bot/service"
	"github.com/region23/pnplive/internal/bot/session"
	"github.com/region23/pnplive/internal/config"
	"github.com/region23/pnplive/internal/middleware"
	"github.com/region23/pnplive/internal/scheduler/memory"
	"github.com/region23/pnplive/internal/server"
	"github.com/region23/pnplive/internal/storage/sqlite"
	"github.com/region23/pnplive/internal/worker"
	"github.com/region23/pnplive/pkg/logger"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := newLogger(cfg.Log)
	logger.SetDefault(appLogger)
	defer appLogger.Sync()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Fatal("Application stopped with error", logger.Error(err))
	}
	appLogger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, appLogger *logger.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Инициализируем хранилище
	storage, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			appLogger.Error("Error closing storage", logger.Error(err))
		}
	}()
	appLogger.Info("Storage initialized", logger.String("path", cfg.Database.Path))

	engine := booking.NewEngine(storage, booking.Options{
		Location:     cfg.Booking.Location(),
		AllowOverlap: cfg.Booking.AllowOverlap,
		Logger:       appLogger,
	})

	telegramBot, err := tgbot.New(cfg.Telegram.Token, tgbot.WithSkipGetMe())
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	// Напоминания отправляет отдельный notifier, чтобы планировщик не зависел от сервиса бота
	notifier := service.NewNotifier(telegramBot, engine.Bookings, cfg.Booking.Location())
	reminders := memory.NewMemoryScheduler(notifier, engine.Bookings, cfg.Worker.ReminderLead, appLogger)

	sessions := session.New(30*time.Minute, 10*time.Minute)
	limiter := middleware.NewTelegramRateLimiter(30, 25, appLogger)

	botService := service.NewService(telegramBot, engine, reminders, sessions, limiter, cfg, appLogger)
	defer func() {
		if err := botService.Close(); err != nil {
			appLogger.Error("Error stopping bot service", logger.Error(err))
		}
	}()

	dispatcher := bot.NewDispatcher(botService)

	if err := setupWebhook(ctx, telegramBot, cfg.Telegram, appLogger); err != nil {
		return fmt.Errorf("failed to setup webhook: %w", err)
	}

	if err := reminders.Start(ctx); err != nil {
		appLogger.Warn("Failed to reschedule pending reminders", logger.Error(err))
	}

	jobs, err := worker.New(cfg.Worker, engine.Bookings, engine.Windows, engine.Providers, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	jobs.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		if err := jobs.Stop(stopCtx); err != nil {
			appLogger.Warn("Worker did not stop in time", logger.Error(err))
		}
	}()

	srv := server.New(cfg, appLogger, dispatcher, botService, storage, telegramBot)
	if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func newLogger(cfg config.LogConfig) *logger.Logger {
	level := logger.ParseLevel(cfg.Level)
	if cfg.Format == "console" {
		return logger.NewConsole(level)
	}
	return logger.New(level)
}

// setupWebhook настраивает webhook для Telegram бота
func setupWebhook(ctx context.Context, b *tgbot.Bot, cfg config.TelegramConfig, log *logger.Logger) error {
	// Удаляем существующий webhook
	if _, err := b.DeleteWebhook(ctx, &tgbot.DeleteWebhookParams{}); err != nil {
		log.Warn("Failed to delete existing webhook", logger.Error(err))
	}

	params := &tgbot.SetWebhookParams{
		URL:         cfg.WebhookURL,
		SecretToken: cfg.SecretToken,
	}
	if _, err := b.SetWebhook(ctx, params); err != nil {
		return err
	}

	log.Info("Webhook configured", logger.String("url", cfg.WebhookURL))
	return nil
}

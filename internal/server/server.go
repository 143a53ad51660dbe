package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/region23/pnplive/internal/config"
	"github.com/region23/pnplive/internal/middleware"
	"github.com/region23/pnplive/pkg/logger"
	"github.com/region23/pnplive/pkg/metrics"
)

// UpdateHandler обрабатывает обновления Telegram; его реализует bot.Dispatcher
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, bot *tgbot.Bot, update *tgmodels.Update)
}

// Server представляет HTTP сервер с middleware
type Server struct {
	httpServer  *http.Server
	config      *config.Config
	logger      *logger.Logger
	rateLimiter *middleware.RateLimiter
	health      *HealthChecker
	updates     UpdateHandler
	payments    PaymentProcessor
	telegramBot *tgbot.Bot
}

// New создает новый HTTP сервер
func New(
	cfg *config.Config,
	log *logger.Logger,
	updates UpdateHandler,
	payments PaymentProcessor,
	pinger Pinger,
	telegramBot *tgbot.Bot,
) *Server {
	log = log.Named("http")

	server := &Server{
		config:      cfg,
		logger:      log,
		rateLimiter: middleware.NewRateLimiter(cfg.Server.RateLimit, time.Minute, log),
		health:      NewHealthChecker(pinger, Version),
		updates:     updates,
		payments:    payments,
		telegramBot: telegramBot,
	}

	server.httpServer = &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        server.Handler(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	return server
}

// Handler возвращает корневой обработчик со всеми маршрутами и middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", middleware.PrometheusMiddleware("/health", http.HandlerFunc(s.health.HealthHandler)))
	mux.Handle("/webhook", middleware.PrometheusMiddleware("/webhook", http.HandlerFunc(s.handleWebhook)))
	mux.Handle("/payments/webhook", middleware.PrometheusMiddleware("/payments/webhook", http.HandlerFunc(s.handlePaymentWebhook)))
	mux.Handle("/metrics", promhttp.Handler())

	return s.applyMiddleware(mux)
}

// applyMiddleware применяет middleware (последний примененный выполняется первым)
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	h := handler
	h = s.loggingMiddleware(h)
	h = s.requestValidationMiddleware(h)
	h = middleware.HTTPRateLimitMiddleware(s.rateLimiter)(h)
	h = s.securityHeadersMiddleware(h)
	return h
}

// handleWebhook обрабатывает Telegram webhook
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.verifySecretToken(r) {
		s.logger.Warn("Invalid Telegram secret token",
			logger.String("remote_addr", r.RemoteAddr),
			logger.String("user_agent", r.UserAgent()))
		metrics.RecordError("webhook", "unauthorized")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var update tgmodels.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&update); err != nil {
		s.logger.Error("Failed to decode Telegram update", logger.Error(err))
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	s.updates.HandleUpdate(ctx, s.telegramBot, &update)

	s.logger.Debug("Webhook processed",
		logger.Int64("update_id", update.ID),
		logger.Duration("processing_time", time.Since(start)))

	w.WriteHeader(http.StatusOK)
}

// verifySecretToken сверяет заголовок X-Telegram-Bot-Api-Secret-Token с настроенным токеном
func (s *Server) verifySecretToken(r *http.Request) bool {
	expected := s.config.Telegram.SecretToken
	if expected == "" {
		return true
	}
	provided := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// Start запускает сервер и блокируется до отмены контекста
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", logger.String("addr", s.httpServer.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown корректно завершает работу сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s.rateLimiter.Close()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error during server shutdown", logger.Error(err))
		return err
	}

	s.logger.Info("HTTP server shut down successfully")
	return nil
}

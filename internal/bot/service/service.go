package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/region23/pnplive/internal/booking"
	"github.com/region23/pnplive/internal/bot/session"
	"github.com/region23/pnplive/internal/config"
	"github.com/region23/pnplive/internal/middleware"
	"github.com/region23/pnplive/internal/scheduler"
	"github.com/region23/pnplive/internal/storage/models"
	"github.com/region23/pnplive/pkg/errors"
	"github.com/region23/pnplive/pkg/logger"
	"github.com/region23/pnplive/pkg/metrics"
)

// Messenger - часть Telegram API, которой пользуется бот; *bot.Bot ее реализует
type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
}

// Service представляет основной сервис Telegram бота
type Service struct {
	bot       Messenger
	engine    *booking.Engine
	scheduler scheduler.ReminderScheduler
	sessions  *session.Store
	limiter   *middleware.TelegramRateLimiter
	config    *config.Config
	log       *logger.Logger
	now       func() time.Time
}

// NewService создает новый экземпляр сервиса бота. limiter может быть nil
func NewService(
	bot Messenger,
	engine *booking.Engine,
	scheduler scheduler.ReminderScheduler,
	sessions *session.Store,
	limiter *middleware.TelegramRateLimiter,
	config *config.Config,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		bot:       bot,
		engine:    engine,
		scheduler: scheduler,
		sessions:  sessions,
		limiter:   limiter,
		config:    config,
		log:       log.Named("bot"),
		now:       time.Now,
	}
}

// Engine возвращает движок бронирований
func (s *Service) Engine() *booking.Engine {
	return s.engine
}

// Sessions возвращает хранилище состояний диалогов
func (s *Service) Sessions() *session.Store {
	return s.sessions
}

// Logger возвращает логгер бота
func (s *Service) Logger() *logger.Logger {
	return s.log
}

// Location возвращает часовой пояс платформы
func (s *Service) Location() *time.Location {
	return s.engine.Slots.Location()
}

// Now возвращает текущее время
func (s *Service) Now() time.Time {
	return s.now()
}

// DaysAhead возвращает, на сколько дней вперед показывать даты
func (s *Service) DaysAhead() int {
	return s.config.Booking.DaysAhead
}

// SlotLength возвращает длину окна при нарезке интервала
func (s *Service) SlotLength() time.Duration {
	return time.Duration(s.config.Booking.SlotLengthMins) * time.Minute
}

// IsAdmin проверяет, является ли пользователь администратором
func (s *Service) IsAdmin(userID int64) bool {
	return s.config.IsAdmin(userID)
}

// AllowUser проверяет лимит частоты запросов пользователя
func (s *Service) AllowUser(chatID int64) bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.AllowUser(chatID)
}

// SendMessage отправляет сообщение пользователю
func (s *Service) SendMessage(ctx context.Context, chatID int64, text string, replyMarkup tgmodels.ReplyMarkup) error {
	params := &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: replyMarkup,
	}

	_, err := s.bot.SendMessage(ctx, params)
	if err != nil {
		metrics.RecordError("telegram", "send_message")
	}
	return err
}

// SendSimpleMessage отправляет простое текстовое сообщение
func (s *Service) SendSimpleMessage(ctx context.Context, chatID int64, text string) error {
	return s.SendMessage(ctx, chatID, text, nil)
}

// SendError отправляет сообщение об ошибке пользователю
func (s *Service) SendError(ctx context.Context, chatID int64, message string) {
	if err := s.SendSimpleMessage(ctx, chatID, message); err != nil {
		s.log.Error("Failed to send error message",
			logger.Int64("chat_id", chatID),
			logger.Error(err))
	}
}

// SendErrorFor переводит ошибку движка в сообщение пользователю.
// Внутренние ошибки логируются, пользователь видит только общий текст
func (s *Service) SendErrorFor(ctx context.Context, chatID int64, err error) {
	if errors.KindOf(err) == errors.KindInternal {
		s.log.Error("Operation failed",
			logger.Int64("chat_id", chatID),
			logger.Error(err))
		metrics.RecordError("bot", "internal")
	}
	s.SendError(ctx, chatID, UserMessage(err))
}

// AnswerCallbackQuery отвечает на callback query
func (s *Service) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	params := &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackQueryID,
		Text:            text,
	}

	_, err := s.bot.AnswerCallbackQuery(ctx, params)
	return err
}

// DeleteMessage удаляет сообщение
func (s *Service) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	params := &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	}

	_, err := s.bot.DeleteMessage(ctx, params)
	return err
}

// NotifyAdmins рассылает сообщение всем администраторам
func (s *Service) NotifyAdmins(ctx context.Context, text string, replyMarkup tgmodels.ReplyMarkup) {
	for _, adminID := range s.config.Telegram.AdminIDs {
		if err := s.SendMessage(ctx, adminID, text, replyMarkup); err != nil {
			s.log.Warn("Failed to notify admin",
				logger.Int64("admin_id", adminID),
				logger.Error(err))
			metrics.RecordNotification("admin", "error")
			continue
		}
		metrics.RecordNotification("admin", "success")
	}
}

// ConfirmPayment отмечает оплату бронирования. Если бронирование подтверждено этим вызовом,
// планируется напоминание, а пользователь и администраторы получают уведомление
func (s *Service) ConfirmPayment(ctx context.Context, bookingID, transactionRef string) (*models.Booking, bool, error) {
	b, confirmed, err := s.engine.Bookings.ConfirmPayment(ctx, bookingID, transactionRef)
	if err != nil || !confirmed {
		return b, confirmed, err
	}

	s.ScheduleReminder(ctx, b)

	notice, err := s.engine.Bookings.Notice(ctx, b.ID)
	if err != nil {
		s.log.Warn("Failed to build booking notice", logger.String("booking_id", b.ID), logger.Error(err))
		return b, true, nil
	}

	text := fmt.Sprintf("✅ Payment received. Your session with %s is confirmed.\n\n%s",
		notice.ProviderName, FormatBooking(b, s.Location()))
	if err := s.SendSimpleMessage(ctx, notice.RequesterID, text); err != nil {
		s.log.Warn("Failed to notify requester", logger.String("booking_id", b.ID), logger.Error(err))
	}
	s.NotifyAdmins(ctx, fmt.Sprintf("💰 Booking %s with %s is paid and confirmed.", b.ID, notice.ProviderName), nil)
	return b, true, nil
}

// UpdatePaymentStatus записывает статус оплаты, пришедший от платежного шлюза
func (s *Service) UpdatePaymentStatus(ctx context.Context, bookingID string, status models.PaymentStatus, transactionRef string) error {
	return s.engine.Bookings.UpdatePaymentStatus(ctx, bookingID, status, transactionRef)
}

// ScheduleReminder планирует напоминание о сессии; ошибка только логируется
func (s *Service) ScheduleReminder(ctx context.Context, b *models.Booking) {
	if s.scheduler == nil {
		return
	}
	notifyAt := b.ScheduledStart.Add(-s.config.Worker.ReminderLead)
	if err := s.scheduler.Schedule(ctx, b, notifyAt); err != nil {
		s.log.Warn("Failed to schedule reminder",
			logger.String("booking_id", b.ID),
			logger.Error(err))
	}
}

// CancelBooking отменяет бронирование и снимает напоминание
func (s *Service) CancelBooking(ctx context.Context, bookingID, reason string, isAdmin bool) (*booking.CancelResult, error) {
	res, err := s.engine.Bookings.Cancel(ctx, bookingID, reason, isAdmin)
	if err != nil {
		return nil, err
	}
	if s.scheduler != nil {
		if err := s.scheduler.Cancel(ctx, bookingID); err != nil {
			s.log.Warn("Failed to cancel reminder", logger.String("booking_id", bookingID), logger.Error(err))
		}
	}
	return res, nil
}

// ListAvailableDates возвращает дни с открытыми слотами модели на ближайшие DaysAhead дней
func (s *Service) ListAvailableDates(ctx context.Context, providerID int64, minutes int) ([]time.Time, error) {
	return s.engine.Slots.AvailableDates(ctx, providerID, s.now(), s.DaysAhead(), minutes)
}

// ListOpenSlots возвращает будущие слоты модели на дату
func (s *Service) ListOpenSlots(ctx context.Context, providerID int64, date time.Time, minutes int) ([]*models.AvailabilityWindow, error) {
	slots, err := s.engine.Slots.OpenSlots(ctx, providerID, date, minutes)
	if err != nil {
		return nil, err
	}
	return booking.FutureOnly(slots, s.now()), nil
}

// ReschedulePendingNotifications перепланирует ожидающие напоминания
func (s *Service) ReschedulePendingNotifications(ctx context.Context) error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.ReschedulePending(ctx)
}

// Close останавливает планировщик и limiter
func (s *Service) Close() error {
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			return fmt.Errorf("failed to stop scheduler: %w", err)
		}
	}
	return nil
}

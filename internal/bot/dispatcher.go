package bot

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/region23/pnplive/internal/bot/handlers"
	"github.com/region23/pnplive/internal/bot/service"
	"github.com/region23/pnplive/pkg/logger"
	"github.com/region23/pnplive/pkg/metrics"
)

// Dispatcher управляет обработкой входящих обновлений от Telegram
type Dispatcher struct {
	service           *service.Service
	startHandler      *handlers.StartHandler
	myBookingsHandler *handlers.MyBookingsHandler
	adminHandler      *handlers.AdminHandler
	callbackHandler   *handlers.CallbackHandler
	defaultHandler    *handlers.DefaultHandler
}

// NewDispatcher создает новый диспетчер обновлений
func NewDispatcher(svc *service.Service) *Dispatcher {
	start := handlers.NewStartHandler(svc)
	bookingFlow := handlers.NewBookingHandler(svc)
	myBookings := handlers.NewMyBookingsHandler(svc)
	admin := handlers.NewAdminHandler(svc)

	return &Dispatcher{
		service:           svc,
		startHandler:      start,
		myBookingsHandler: myBookings,
		adminHandler:      admin,
		callbackHandler:   handlers.NewCallbackHandler(svc, start, bookingFlow, myBookings, admin),
		defaultHandler:    handlers.NewDefaultHandler(svc, myBookings),
	}
}

// HandleUpdate обрабатывает входящее обновление от Telegram
func (d *Dispatcher) HandleUpdate(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	log := d.service.Logger()

	if update.CallbackQuery != nil {
		user := update.CallbackQuery.From.ID
		log.Debug("Received callback query",
			logger.Int64("user_id", user),
			logger.String("data", update.CallbackQuery.Data))

		if !d.service.AllowUser(user) {
			_ = d.service.AnswerCallbackQuery(ctx, update.CallbackQuery.ID, "Too many requests, please slow down.")
			metrics.RecordRequest("callback", "rate_limited")
			return
		}

		d.callbackHandler.Handle(ctx, bot, update)
		metrics.RecordRequest("callback", "ok")
		return
	}

	if update.Message != nil {
		chatID := update.Message.Chat.ID
		log.Debug("Received message", logger.Int64("chat_id", chatID))

		if !d.service.AllowUser(chatID) {
			d.service.SendError(ctx, chatID, "Too many requests, please slow down.")
			metrics.RecordRequest("message", "rate_limited")
			return
		}

		handler := d.route(update.Message.Text)
		handler(ctx, bot, update)
		metrics.RecordRequest(handlerName(update.Message.Text), "ok")
		return
	}

	log.Debug("Received unsupported update type", logger.Int64("update_id", update.ID))
}

type handlerFunc func(ctx context.Context, bot *tgbot.Bot, update *models.Update)

// route выбирает обработчик сообщения по команде
func (d *Dispatcher) route(text string) handlerFunc {
	command := commandOf(text)
	switch {
	case command == "/start" || command == "/help":
		return d.startHandler.Handle
	case command == "/mybookings":
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			d.myBookingsHandler.List(ctx, update.Message.Chat.ID, update.Message.Chat.ID)
		}
	case handlers.IsAdminCommand(command):
		return d.adminHandler.Handle
	}
	return d.defaultHandler.Handle
}

// commandOf возвращает команду без аргументов и суффикса @botname
func commandOf(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	command, _, _ := strings.Cut(text, " ")
	if i := strings.Index(command, "@"); i > 0 {
		command = command[:i]
	}
	return strings.ToLower(command)
}

func handlerName(text string) string {
	if command := commandOf(text); command != "" {
		return strings.TrimPrefix(command, "/")
	}
	return "message"
}

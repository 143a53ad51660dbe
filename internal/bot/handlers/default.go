package handlers

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	botservice "github.com/region23/pnplive/internal/bot/service"
	"github.com/region23/pnplive/internal/bot/session"
	"github.com/region23/pnplive/pkg/logger"
)

// DefaultHandler обрабатывает сообщения вне команд: ввод причины возврата или подсказку
type DefaultHandler struct {
	service    *botservice.Service
	myBookings *MyBookingsHandler
}

// NewDefaultHandler создает новый обработчик по умолчанию
func NewDefaultHandler(service *botservice.Service, myBookings *MyBookingsHandler) *DefaultHandler {
	return &DefaultHandler{service: service, myBookings: myBookings}
}

// Handle обрабатывает все остальные типы сообщений
func (h *DefaultHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	chat := update.Message.Chat.ID
	user := senderID(update)
	text := strings.TrimSpace(update.Message.Text)

	if st, ok := h.service.Sessions().Get(user); ok && st.Step == session.StepRefundReason && text != "" {
		h.myBookings.SubmitRefund(ctx, chat, user, st.BookingID, text)
		return
	}

	message := "Please tap /start to begin."
	if err := h.service.SendSimpleMessage(ctx, chat, message); err != nil {
		h.service.Logger().Error("Failed to send default message",
			logger.Int64("chat_id", chat),
			logger.Error(err))
	}
}

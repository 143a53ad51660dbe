package handlers

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/region23/pnplive/internal/bot/keyboard"
	botservice "github.com/region23/pnplive/internal/bot/service"
	"github.com/region23/pnplive/pkg/logger"
)

const welcomeText = "Welcome to PNP Live 🎥\n\n" +
	"Book a private video session with one of our performers.\n" +
	"Sessions last 30, 60 or 90 minutes. Bookings open Thursday to Monday."

// StartHandler обрабатывает команду /start
type StartHandler struct {
	service *botservice.Service
}

// NewStartHandler создает новый обработчик команды /start
func NewStartHandler(service *botservice.Service) *StartHandler {
	return &StartHandler{service: service}
}

// Handle обрабатывает команду /start: сбрасывает сценарий и показывает главное меню
func (h *StartHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil || !strings.HasPrefix(update.Message.Text, "/start") {
		return
	}

	chatID := update.Message.Chat.ID
	h.service.Sessions().Clear(senderID(update))
	h.ShowMenu(ctx, chatID, welcomeText)
}

// ShowMenu отправляет главное меню
func (h *StartHandler) ShowMenu(ctx context.Context, chatID int64, text string) {
	if err := h.service.SendMessage(ctx, chatID, text, keyboard.CreateMainMenu()); err != nil {
		h.service.Logger().Error("Failed to send main menu",
			logger.Int64("chat_id", chatID),
			logger.Error(err))
	}
}

// senderID возвращает ID пользователя, от которого пришло обновление
func senderID(update *models.Update) int64 {
	switch {
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From.ID
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.Message != nil:
		return update.Message.Chat.ID
	}
	return 0
}

// chatID возвращает чат, в который нужно отвечать
func chatID(update *models.Update) int64 {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message.Message != nil:
		return update.CallbackQuery.Message.Message.Chat.ID
	case update.CallbackQuery != nil:
		// В личном чате ID чата совпадает с ID пользователя
		return update.CallbackQuery.From.ID
	}
	return 0
}

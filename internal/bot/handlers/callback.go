package handlers

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/region23/pnplive/internal/bot/keyboard"
	botservice "github.com/region23/pnplive/internal/bot/service"
	storagemodels "github.com/region23/pnplive/internal/storage/models"
	"github.com/region23/pnplive/pkg/logger"
)

// CallbackHandler обрабатывает callback query от inline кнопок
type CallbackHandler struct {
	service    *botservice.Service
	start      *StartHandler
	booking    *BookingHandler
	myBookings *MyBookingsHandler
	admin      *AdminHandler
}

// NewCallbackHandler создает новый обработчик callback query
func NewCallbackHandler(
	service *botservice.Service,
	start *StartHandler,
	booking *BookingHandler,
	myBookings *MyBookingsHandler,
	admin *AdminHandler,
) *CallbackHandler {
	return &CallbackHandler{
		service:    service,
		start:      start,
		booking:    booking,
		myBookings: myBookings,
		admin:      admin,
	}
}

// Handle обрабатывает callback query
func (h *CallbackHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	chat := chatID(update)
	user := cb.From.ID
	data := cb.Data

	// Отвечаем сразу, чтобы убрать индикатор загрузки
	if err := h.service.AnswerCallbackQuery(ctx, cb.ID, ""); err != nil {
		h.service.Logger().Debug("Failed to answer callback query", logger.Error(err))
	}

	switch {
	case data == keyboard.PrefixMenu+keyboard.MenuBook:
		h.booking.Begin(ctx, chat, user)
	case data == keyboard.PrefixMenu+keyboard.MenuMine:
		h.myBookings.List(ctx, chat, user)
	case data == keyboard.PrefixMenu+keyboard.MenuBack:
		h.service.Sessions().Clear(user)
		h.start.ShowMenu(ctx, chat, "What would you like to do?")
	case strings.HasPrefix(data, keyboard.PrefixProduct):
		h.booking.SelectProduct(ctx, chat, user, data)
	case strings.HasPrefix(data, keyboard.PrefixProvider):
		h.booking.SelectProvider(ctx, chat, user, data)
	case strings.HasPrefix(data, keyboard.PrefixDuration):
		h.booking.SelectDuration(ctx, chat, user, data)
	case strings.HasPrefix(data, keyboard.PrefixDate):
		h.booking.SelectDate(ctx, chat, user, data)
	case strings.HasPrefix(data, keyboard.PrefixSlot):
		h.booking.SelectSlot(ctx, chat, user, data)
	case strings.HasPrefix(data, keyboard.PrefixPayment):
		h.booking.SelectPayment(ctx, chat, user, data)
	case strings.HasPrefix(data, keyboard.PrefixCancel):
		h.myBookings.Cancel(ctx, chat, user, data)
	case strings.HasPrefix(data, keyboard.PrefixRefund):
		h.myBookings.AskRefundReason(ctx, chat, user, data)
	case strings.HasPrefix(data, keyboard.PrefixFeedback):
		h.myBookings.Rate(ctx, chat, user, data)
	case strings.HasPrefix(data, keyboard.PrefixApprove):
		h.admin.ProcessRefund(ctx, chat, user, strings.TrimPrefix(data, keyboard.PrefixApprove), storagemodels.RefundApproved)
	case strings.HasPrefix(data, keyboard.PrefixReject):
		h.admin.ProcessRefund(ctx, chat, user, strings.TrimPrefix(data, keyboard.PrefixReject), storagemodels.RefundRejected)
	case strings.HasPrefix(data, keyboard.PrefixFrame):
		h.admin.ApplyTimeFrame(ctx, chat, user, data)
	default:
		h.service.Logger().Warn("Unknown callback", logger.String("data", data))
		h.service.SendError(ctx, chat, "Unknown option. Please start again with /start.")
	}
}

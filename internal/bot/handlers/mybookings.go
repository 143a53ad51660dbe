package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/region23/pnplive/internal/bot/keyboard"
	botservice "github.com/region23/pnplive/internal/bot/service"
	"github.com/region23/pnplive/internal/bot/session"
	storagemodels "github.com/region23/pnplive/internal/storage/models"
	"github.com/region23/pnplive/pkg/errors"
	"github.com/region23/pnplive/pkg/logger"
)

// maxListedBookings ограничивает число бронирований в ответе "My bookings"
const maxListedBookings = 10

// MyBookingsHandler показывает бронирования пользователя и обрабатывает действия над ними
type MyBookingsHandler struct {
	service *botservice.Service
}

// NewMyBookingsHandler создает обработчик раздела "My bookings"
func NewMyBookingsHandler(service *botservice.Service) *MyBookingsHandler {
	return &MyBookingsHandler{service: service}
}

func (h *MyBookingsHandler) send(ctx context.Context, chatID int64, text string, markup *models.InlineKeyboardMarkup) {
	var err error
	if markup != nil {
		err = h.service.SendMessage(ctx, chatID, text, markup)
	} else {
		err = h.service.SendSimpleMessage(ctx, chatID, text)
	}
	if err != nil {
		h.service.Logger().Error("Failed to send message",
			logger.Int64("chat_id", chatID),
			logger.Error(err))
	}
}

// List отправляет активные и завершенные бронирования пользователя, каждое со своими кнопками
func (h *MyBookingsHandler) List(ctx context.Context, chatID, userID int64) {
	bookings, err := h.service.Engine().Bookings.ListForRequester(ctx, userID,
		storagemodels.BookingPending, storagemodels.BookingConfirmed, storagemodels.BookingCompleted)
	if err != nil {
		h.service.SendErrorFor(ctx, chatID, err)
		return
	}
	if len(bookings) == 0 {
		h.send(ctx, chatID, "You have no bookings yet.", keyboard.CreateMainMenu())
		return
	}

	// Самые поздние сессии - последними
	if len(bookings) > maxListedBookings {
		bookings = bookings[len(bookings)-maxListedBookings:]
	}

	loc := h.service.Location()
	for _, b := range bookings {
		h.send(ctx, chatID, botservice.FormatBooking(b, loc), keyboard.CreateBookingActions(b))
	}
}

// ownBooking возвращает бронирование, если оно принадлежит пользователю
func (h *MyBookingsHandler) ownBooking(ctx context.Context, userID int64, bookingID string) (*storagemodels.Booking, error) {
	b, err := h.service.Engine().Bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.RequesterID != userID {
		return nil, errors.ErrNotBookingOwner
	}
	return b, nil
}

// Cancel отменяет бронирование пользователя по правилу возврата
func (h *MyBookingsHandler) Cancel(ctx context.Context, chatID, userID int64, data string) {
	bookingID := strings.TrimPrefix(data, keyboard.PrefixCancel)
	b, err := h.ownBooking(ctx, userID, bookingID)
	if err != nil {
		h.service.SendErrorFor(ctx, chatID, err)
		return
	}

	wasPaid := b.PaymentStatus == storagemodels.PaymentPaid
	res, err := h.service.CancelBooking(ctx, bookingID, "cancelled by user", false)
	if err != nil {
		h.service.SendErrorFor(ctx, chatID, err)
		return
	}

	var text string
	switch {
	case res.Refunded:
		text = "Booking cancelled. Your payment will be refunded."
	case wasPaid:
		text = "Booking cancelled. Cancellations less than 15 minutes before the session are not refunded."
	default:
		text = "Booking cancelled."
	}
	h.send(ctx, chatID, text, nil)

	h.service.NotifyAdmins(ctx, fmt.Sprintf("❌ Booking %s cancelled by user %d (refunded: %t)",
		bookingID, userID, res.Refunded), nil)
}

// AskRefundReason переводит пользователя на шаг ввода причины возврата
func (h *MyBookingsHandler) AskRefundReason(ctx context.Context, chatID, userID int64, data string) {
	bookingID := strings.TrimPrefix(data, keyboard.PrefixRefund)
	if _, err := h.ownBooking(ctx, userID, bookingID); err != nil {
		h.service.SendErrorFor(ctx, chatID, err)
		return
	}

	h.service.Sessions().Save(userID, session.State{Step: session.StepRefundReason, BookingID: bookingID})
	h.send(ctx, chatID, "Please tell us briefly why you'd like a refund.", nil)
}

// SubmitRefund создает запрос на возврат с причиной из сообщения пользователя
func (h *MyBookingsHandler) SubmitRefund(ctx context.Context, chatID, userID int64, bookingID, reason string) {
	h.service.Sessions().Clear(userID)

	r, err := h.service.Engine().Bookings.RequestRefund(ctx, bookingID, userID, reason)
	if err != nil {
		h.service.SendErrorFor(ctx, chatID, err)
		return
	}

	h.send(ctx, chatID, "Your refund request has been submitted. We'll get back to you shortly.", nil)
	h.service.NotifyAdmins(ctx, fmt.Sprintf("💸 Refund request %s\nBooking: %s\nUser: %d\nAmount: $%d\nReason: %s",
		r.ID, r.BookingID, userID, r.AmountUSD, r.Reason), keyboard.CreateRefundDecisionKeyboard(r.ID))
}

// Rate сохраняет оценку завершенной сессии
func (h *MyBookingsHandler) Rate(ctx context.Context, chatID, userID int64, data string) {
	bookingID, rating, err := keyboard.ParseFeedback(data)
	if err != nil {
		h.service.SendError(ctx, chatID, "Invalid rating.")
		return
	}

	if _, err := h.service.Engine().Bookings.SubmitFeedback(ctx, bookingID, userID, rating, ""); err != nil {
		h.service.SendErrorFor(ctx, chatID, err)
		return
	}
	h.send(ctx, chatID, "Thanks for your feedback! ⭐", nil)
}

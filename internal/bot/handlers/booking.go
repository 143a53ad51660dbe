package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/region23/pnplive/internal/booking"
	"github.com/region23/pnplive/internal/bot/keyboard"
	botservice "github.com/region23/pnplive/internal/bot/service"
	"github.com/region23/pnplive/internal/bot/session"
	storagemodels "github.com/region23/pnplive/internal/storage/models"
	"github.com/region23/pnplive/pkg/logger"
)

const sessionExpiredText = "Your booking session has expired. Please start again with /start."

// BookingHandler ведет сценарий бронирования:
// продукт -> модель -> длительность -> дата -> окно -> способ оплаты
type BookingHandler struct {
	service *botservice.Service
}

// NewBookingHandler создает обработчик сценария бронирования
func NewBookingHandler(service *botservice.Service) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) send(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) {
	if err := h.service.SendMessage(ctx, chatID, text, markup); err != nil {
		h.service.Logger().Error("Failed to send message",
			logger.Int64("chat_id", chatID),
			logger.Error(err))
	}
}

// Begin начинает сценарий с выбора продукта
func (h *BookingHandler) Begin(ctx context.Context, chatID, userID int64) {
	h.service.Sessions().Save(userID, session.State{Step: session.StepProvider})
	h.send(ctx, chatID, "What would you like to book?", keyboard.CreateProductKeyboard())
}

// SelectProduct запоминает продукт и показывает активных моделей
func (h *BookingHandler) SelectProduct(ctx context.Context, chatID, userID int64, data string) {
	product := strings.TrimPrefix(data, keyboard.PrefixProduct)
	if product != storagemodels.ProductPNPLive && product != storagemodels.ProductMeetGreet {
		h.service.SendError(ctx, chatID, "Unknown option. Please start again with /start.")
		return
	}

	providers, err := h.service.Engine().Providers.ListActive(ctx)
	if err != nil {
		h.service.SendErrorFor(ctx, chatID, err)
		return
	}
	if len(providers) == 0 {
		h.service.Sessions().Clear(userID)
		h.send(ctx, chatID, "No performers are available right now. Please check back later.", nil)
		return
	}

	h.service.Sessions().Update(userID, func(st *session.State) {
		st.Step = session.StepProvider
		st.Product = product
	})
	h.send(ctx, chatID, "Choose a performer (🟢 online now):", keyboard.CreateProviderKeyboard(providers))
}

// SelectProvider запоминает модель и показывает длительности с ценами
func (h *BookingHandler) SelectProvider(ctx context.Context, chatID, userID int64, data string) {
	providerID, err := keyboard.ParseID(data, keyboard.PrefixProvider)
	if err != nil {
		h.service.SendError(ctx, chatID, "Invalid performer. Please start again with /start.")
		return
	}

	p, err := h.service.Engine().Providers.GetActive(ctx, providerID)
	if err != nil {
		h.service.SendErrorFor(ctx, chatID, err)
		return
	}

	h.service.Sessions().Update(userID, func(st *session.State) {
		st.Step = session.StepDuration
		st.ProviderID = p.ID
	})

	text := fmt.Sprintf("%s %s", p.Name, p.Handle())
	if p.Bio != "" {
		text += "\n" + p.Bio
	}
	if avg, count, err := h.service.Engine().Bookings.ProviderRating(ctx, p.ID); err == nil && count > 0 {
		text += fmt.Sprintf("\n⭐ %.1f (%d reviews)", avg, count)
	}
	h.send(ctx, chatID, text+"\n\nHow long should the session be?", keyboard.CreateDurationKeyboard())
}

// SelectDuration запоминает длительность и показывает дни со свободными окнами
func (h *BookingHandler) SelectDuration(ctx context.Context, chatID, userID int64, data string) {
	minutes, err := strconv.Atoi(strings.TrimPrefix(data, keyboard.PrefixDuration))
	if err == nil {
		_, err = booking.PriceFor(minutes)
	}
	if err != nil {
		h.service.SendError(ctx, chatID, botservice.UserMessage(err))
		return
	}

	st, ok := h.service.Sessions().Get(userID)
	if !ok || st.ProviderID == 0 {
		h.service.SendError(ctx, chatID, sessionExpiredText)
		return
	}

	dates, err := h.service.ListAvailableDates(ctx, st.ProviderID, minutes)
	if err != nil {
		h.service.SendErrorFor(ctx, chatID, err)
		return
	}

	h.service.Sessions().Update(userID, func(st *session.State) {
		st.Step = session.StepDate
		st.DurationMinutes = minutes
	})

	if len(dates) == 0 {
		h.send(ctx, chatID, fmt.Sprintf("No open %d-minute slots in the next %d days. Try a shorter session or another performer.",
			minutes, h.service.DaysAhead()), keyboard.CreateMainMenu())
		return
	}
	h.send(ctx, chatID, "Choose a date:", keyboard.CreateDateSelectionKeyboard(dates))
}

// SelectDate показывает свободные окна на выбранный день
func (h *BookingHandler) SelectDate(ctx context.Context, chatID, userID int64, data string) {
	date, err := keyboard.ParseDate(data, h.service.Location())
	if err != nil {
		h.service.SendError(ctx, chatID, "Invalid date. Please choose again.")
		return
	}

	st, ok := h.service.Sessions().Get(userID)
	if !ok || st.ProviderID == 0 || st.DurationMinutes == 0 {
		h.service.SendError(ctx, chatID, sessionExpiredText)
		return
	}

	slots, err := h.service.ListOpenSlots(ctx, st.ProviderID, date, st.DurationMinutes)
	if err != nil {
		h.service.SendErrorFor(ctx, chatID, err)
		return
	}
	if len(slots) == 0 {
		h.send(ctx, chatID, "No open slots left on this date. Please pick another date.", nil)
		return
	}

	h.service.Sessions().Update(userID, func(st *session.State) {
		st.Step = session.StepSlot
		st.Date = date
	})
	h.send(ctx, chatID, fmt.Sprintf("Choose a start time (%s):", h.service.Location()),
		keyboard.CreateSlotSelectionKeyboard(slots, h.service.Location()))
}

// SelectSlot запоминает окно и предлагает способ оплаты
func (h *BookingHandler) SelectSlot(ctx context.Context, chatID, userID int64, data string) {
	windowID, err := keyboard.ParseID(data, keyboard.PrefixSlot)
	if err != nil {
		h.service.SendError(ctx, chatID, "Invalid slot. Please choose again.")
		return
	}

	st, ok := h.service.Sessions().Get(userID)
	if !ok || st.DurationMinutes == 0 {
		h.service.SendError(ctx, chatID, sessionExpiredText)
		return
	}

	price, _ := booking.PriceFor(st.DurationMinutes)
	h.service.Sessions().Update(userID, func(st *session.State) {
		st.Step = session.StepPayment
		st.WindowID = windowID
	})
	h.send(ctx, chatID, fmt.Sprintf("%d minutes · $%d\nHow would you like to pay?", st.DurationMinutes, price),
		keyboard.CreatePaymentKeyboard())
}

// SelectPayment атомарно резервирует окно и создает бронирование
func (h *BookingHandler) SelectPayment(ctx context.Context, chatID, userID int64, data string) {
	method := strings.TrimPrefix(data, keyboard.PrefixPayment)

	st, ok := h.service.Sessions().Get(userID)
	if !ok || st.Step != session.StepPayment || st.WindowID == 0 {
		h.service.SendError(ctx, chatID, sessionExpiredText)
		return
	}

	b, err := h.service.Engine().Bookings.Reserve(ctx, booking.ReserveRequest{
		RequesterID:     userID,
		WindowID:        st.WindowID,
		DurationMinutes: st.DurationMinutes,
		PaymentMethod:   method,
		Product:         st.Product,
	})
	if err != nil {
		h.service.SendErrorFor(ctx, chatID, err)
		return
	}

	h.service.Sessions().Clear(userID)

	loc := h.service.Location()
	h.send(ctx, chatID, fmt.Sprintf("🎉 Your slot is reserved!\n\n%s\n\nBooking ID: %s\nComplete the payment to confirm your session.",
		botservice.FormatBooking(b, loc), b.ID), nil)

	h.service.NotifyAdmins(ctx, fmt.Sprintf("🆕 New booking %s from user %d\n%s",
		b.ID, userID, botservice.FormatBooking(b, loc)), nil)
}

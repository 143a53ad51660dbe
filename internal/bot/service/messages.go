package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/region23/pnplive/internal/storage/models"
	"github.com/region23/pnplive/pkg/errors"
)

// Тексты для конкретных ошибок; остальные получают текст по категории
var codeMessages = map[string]string{
	"INVALID_DURATION":         "Please choose a 30, 60 or 90 minute session.",
	"WINDOW_TOO_SHORT":         "This slot is too short for the selected duration. Please pick another one.",
	"DOUBLE_BOOKING":           "You already have a booking at this time.",
	"WINDOW_ALREADY_BOOKED":    "Sorry, someone just booked this slot. Please pick another one.",
	"WINDOW_UNAVAILABLE":       "This slot is no longer available. Please pick another one.",
	"WINDOW_OVERLAP":           "This window overlaps an existing one.",
	"BOOKING_CANCELLED":        "This booking is already cancelled.",
	"BOOKING_COMPLETED":        "This session is already completed.",
	"BOOKING_NOT_PAID":         "This booking has not been paid yet.",
	"NOT_BOOKING_OWNER":        "This booking belongs to someone else.",
	"REFUND_WINDOW_CLOSED":     "Refund requests are accepted only until 15 minutes after the session starts.",
	"REFUND_ALREADY_PROCESSED": "This refund request has already been processed.",
	"REFUND_ALREADY_REQUESTED": "A refund for this booking has already been requested.",
	"BOOKING_NOT_COMPLETED":    "You can rate a session once it is completed.",
	"FEEDBACK_EXISTS":          "You have already rated this session.",
	"PROVIDER_NOT_FOUND":       "This performer is not available right now.",
	"INVALID_TIME_FRAME":       "The time frame must start in the future and last at most 12 hours.",
}

var kindMessages = map[errors.Kind]string{
	errors.KindValidation: "That doesn't look right. Please check your input and try again.",
	errors.KindNotFound:   "Not found. It may have been removed.",
	errors.KindConflict:   "This action is no longer possible. Please refresh and try again.",
	errors.KindInternal:   "Something went wrong on our side. Please try again later.",
}

// UserMessage возвращает текст ошибки для пользователя
func UserMessage(err error) string {
	if botErr, ok := errors.GetBotError(err); ok {
		if msg, ok := codeMessages[botErr.Code]; ok {
			return msg
		}
	}
	return kindMessages[errors.KindOf(err)]
}

var statusIcons = map[models.BookingStatus]string{
	models.BookingPending:   "⏳",
	models.BookingConfirmed: "✅",
	models.BookingCompleted: "🏁",
	models.BookingCancelled: "❌",
	models.BookingRefunded:  "💸",
}

// FormatBooking описывает бронирование для пользователя во времени платформы
func FormatBooking(b *models.Booking, loc *time.Location) string {
	var sb strings.Builder
	start := b.ScheduledStart.In(loc)

	fmt.Fprintf(&sb, "%s %s\n", statusIcons[b.Status], productLabel(b.Product))
	fmt.Fprintf(&sb, "🗓 %s, %s-%s (%s)\n", start.Format("Mon, Jan 2"), start.Format("15:04"),
		b.EndTime().In(loc).Format("15:04"), loc.String())
	fmt.Fprintf(&sb, "⏱ %d min · $%d\n", b.DurationMinutes, b.PriceUSD)
	fmt.Fprintf(&sb, "Status: %s · Payment: %s", b.Status, b.PaymentStatus)
	if b.VideoRoom != "" {
		fmt.Fprintf(&sb, "\nRoom: %s", b.VideoRoom)
	}
	return sb.String()
}

func productLabel(product string) string {
	if product == models.ProductMeetGreet {
		return "Meet & Greet"
	}
	return "PNP Live"
}

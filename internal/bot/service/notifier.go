package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"

	"github.com/region23/pnplive/internal/booking"
	"github.com/region23/pnplive/internal/scheduler"
	"github.com/region23/pnplive/internal/storage/models"
)

// Notifier отправляет напоминания о сессиях через Telegram
type Notifier struct {
	bot    Messenger
	ledger *booking.Ledger
	loc    *time.Location
}

// NewNotifier создает отправителя напоминаний
func NewNotifier(bot Messenger, ledger *booking.Ledger, loc *time.Location) *Notifier {
	return &Notifier{bot: bot, ledger: ledger, loc: loc}
}

// SendBookingReminder напоминает пользователю о сессии. Бронирование перечитывается,
// чтобы не напоминать об отмененной после планирования сессии
func (n *Notifier) SendBookingReminder(ctx context.Context, b *models.Booking) error {
	notice, err := n.ledger.Notice(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("failed to load booking %s: %w", b.ID, err)
	}
	if notice.Booking.Status != models.BookingConfirmed {
		return nil
	}

	text := fmt.Sprintf("⏰ Reminder: your session with %s starts soon.\n\n%s",
		notice.ProviderName, FormatBooking(notice.Booking, n.loc))
	_, err = n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: notice.RequesterID,
		Text:   text,
	})
	return err
}

var _ scheduler.ReminderSender = (*Notifier)(nil)

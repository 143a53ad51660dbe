package scheduler

import (
	"context"
	"time"

	"github.com/region23/pnplive/internal/storage/models"
)

// ReminderScheduler определяет интерфейс для планирования напоминаний о сессиях
type ReminderScheduler interface {
	// Schedule планирует напоминание для бронирования
	Schedule(ctx context.Context, booking *models.Booking, notifyAt time.Time) error

	// Cancel отменяет запланированное напоминание
	Cancel(ctx context.Context, bookingID string) error

	// ReschedulePending восстанавливает напоминания для оплаченных предстоящих сессий
	ReschedulePending(ctx context.Context) error

	// Start запускает планировщик
	Start(ctx context.Context) error

	// Stop останавливает планировщик
	Stop() error
}

// ReminderSender определяет интерфейс для отправки напоминаний
type ReminderSender interface {
	// SendBookingReminder отправляет напоминание о предстоящей сессии
	SendBookingReminder(ctx context.Context, booking *models.Booking) error
}

// BookingSource отдает бронирования, для которых нужно напоминание
type BookingSource interface {
	// UpcomingPaid возвращает подтвержденные оплаченные сессии, начинающиеся после now
	UpcomingPaid(ctx context.Context, now time.Time) ([]*models.Booking, error)
}

package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/region23/pnplive/internal/scheduler"
	"github.com/region23/pnplive/internal/storage/models"
	"github.com/region23/pnplive/pkg/logger"
	"github.com/region23/pnplive/pkg/metrics"
)

// reminderTimer - запись таймера; сработавший таймер удаляет из карты только свою запись
type reminderTimer struct {
	timer *time.Timer
}

// MemoryScheduler реализует планировщик напоминаний в памяти.
// Таймеры не переживают перезапуск, поэтому при старте вызывается ReschedulePending
type MemoryScheduler struct {
	timers   map[string]*reminderTimer
	mu       sync.RWMutex
	sender   scheduler.ReminderSender
	source   scheduler.BookingSource
	lead     time.Duration
	log      *logger.Logger
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  bool
	stopOnce sync.Once
}

// NewMemoryScheduler создает новый планировщик в памяти.
// lead - за сколько до начала сессии отправлять напоминание
func NewMemoryScheduler(sender scheduler.ReminderSender, source scheduler.BookingSource, lead time.Duration, log *logger.Logger) *MemoryScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = logger.NewNop()
	}

	return &MemoryScheduler{
		timers: make(map[string]*reminderTimer),
		sender: sender,
		source: source,
		lead:   lead,
		log:    log.Named("scheduler"),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start запускает планировщик и восстанавливает напоминания из хранилища
func (s *MemoryScheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()

	if stopped {
		return fmt.Errorf("scheduler is stopped")
	}

	return s.ReschedulePending(ctx)
}

// NotifyAt возвращает момент напоминания для бронирования
func (s *MemoryScheduler) NotifyAt(b *models.Booking) time.Time {
	return b.ScheduledStart.Add(-s.lead)
}

// Schedule планирует напоминание для бронирования. Повторный вызов заменяет таймер
func (s *MemoryScheduler) Schedule(ctx context.Context, booking *models.Booking, notifyAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}

	s.scheduleLocked(booking, notifyAt)
	return nil
}

func (s *MemoryScheduler) scheduleLocked(booking *models.Booking, notifyAt time.Time) {
	if entry, exists := s.timers[booking.ID]; exists {
		entry.timer.Stop()
		delete(s.timers, booking.ID)
	}

	delay := notifyAt.Sub(s.now())
	if delay <= 0 {
		// Сессия еще не началась, а время напоминания уже прошло
		if booking.ScheduledStart.After(s.now()) {
			go s.handleReminder(booking, nil)
		}
		return
	}

	entry := &reminderTimer{}
	entry.timer = time.AfterFunc(delay, func() {
		s.handleReminder(booking, entry)
	})
	s.timers[booking.ID] = entry
	metrics.SetPendingReminders(float64(len(s.timers)))
}

// Cancel отменяет запланированное напоминание
func (s *MemoryScheduler) Cancel(ctx context.Context, bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.timers[bookingID]; exists {
		entry.timer.Stop()
		delete(s.timers, bookingID)
		metrics.SetPendingReminders(float64(len(s.timers)))
	}

	return nil
}

// ReschedulePending сбрасывает таймеры и планирует напоминания для всех
// подтвержденных оплаченных сессий, которые еще не начались
func (s *MemoryScheduler) ReschedulePending(ctx context.Context) error {
	if s.source == nil {
		return nil
	}

	bookings, err := s.source.UpcomingPaid(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to load upcoming bookings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}

	for bookingID, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, bookingID)
	}

	for _, b := range bookings {
		s.scheduleLocked(b, s.NotifyAt(b))
	}
	metrics.SetPendingReminders(float64(len(s.timers)))

	s.log.Info("Reminders rescheduled", logger.Int("count", len(bookings)))
	return nil
}

// Stop останавливает планировщик
func (s *MemoryScheduler) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.stopped = true

		for bookingID, entry := range s.timers {
			entry.timer.Stop()
			delete(s.timers, bookingID)
		}
		metrics.SetPendingReminders(0)

		s.cancel()
	})

	return nil
}

// handleReminder отправляет напоминание. Запись в карте удаляется, только если
// ее не заменил более поздний вызов Schedule
func (s *MemoryScheduler) handleReminder(booking *models.Booking, fired *reminderTimer) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if fired != nil && s.timers[booking.ID] == fired {
		delete(s.timers, booking.ID)
		metrics.SetPendingReminders(float64(len(s.timers)))
	}
	s.mu.Unlock()

	if err := s.sender.SendBookingReminder(s.ctx, booking); err != nil {
		s.log.Error("Failed to send reminder",
			logger.String("booking_id", booking.ID),
			logger.Error(err))
		metrics.RecordNotification("reminder", "error")
		return
	}
	metrics.RecordNotification("reminder", "success")
}

// GetActiveTimersCount возвращает количество активных таймеров
func (s *MemoryScheduler) GetActiveTimersCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.timers)
}

var _ scheduler.ReminderScheduler = (*MemoryScheduler)(nil)

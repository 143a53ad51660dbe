package booking

import (
	"context"
	"strconv"
	"time"

	"github.com/region23/pnplive/internal/storage"
	"github.com/region23/pnplive/internal/storage/models"
	apperrors "github.com/region23/pnplive/pkg/errors"
	"github.com/region23/pnplive/pkg/logger"
	"github.com/region23/pnplive/pkg/metrics"
)

// Ledger ведет жизненный цикл бронирований
type Ledger struct {
	store storage.Storage
	log   *logger.Logger
	now   func() time.Time
}

// CreateRequest - параметры бронирования на заданное время без резервирования окна
type CreateRequest struct {
	RequesterID     int64
	ProviderID      int64
	DurationMinutes int
	ScheduledStart  time.Time
	PaymentMethod   string
	// Product - продуктовая линия; пустое значение означает pnp_live
	Product string
}

// ReserveRequest - параметры атомарного бронирования конкретного окна
type ReserveRequest struct {
	RequesterID     int64
	WindowID        int64
	DurationMinutes int
	PaymentMethod   string
	Product         string
}

// CancelResult описывает исход отмены
type CancelResult struct {
	Booking  *models.Booking
	Refunded bool
	// WindowReleaseErr заполнен, если окно не удалось освободить; отмена при этом сохранена
	WindowReleaseErr error
}

// Notice - данные для уведомления о бронировании
type Notice struct {
	Booking      *models.Booking
	ProviderName string
	RequesterID  int64
}

func validateProduct(product string) error {
	switch product {
	case "", models.ProductMeetGreet, models.ProductPNPLive:
		return nil
	}
	return apperrors.ErrInvalidProduct.WithContext(map[string]string{"product": product})
}

func validatePaymentMethod(method string) error {
	switch method {
	case models.PaymentMethodCard, models.PaymentMethodCrypto:
		return nil
	}
	return apperrors.ErrInvalidPaymentMethod.WithContext(map[string]string{"payment_method": method})
}

// Create создает бронирование в статусе pending. Окно не резервируется: вызывающий
// отдельно вызывает Availability.MarkBooked; для одного шага используйте Reserve
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (*models.Booking, error) {
	price, err := PriceFor(req.DurationMinutes)
	if err != nil {
		return nil, err
	}
	if err := validatePaymentMethod(req.PaymentMethod); err != nil {
		return nil, err
	}
	if err := validateProduct(req.Product); err != nil {
		return nil, err
	}

	p, err := l.store.GetProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperrors.ErrProviderNotFound.WithContext(map[string]int64{"provider_id": req.ProviderID})
	}

	b := &models.Booking{
		RequesterID:     req.RequesterID,
		ProviderID:      req.ProviderID,
		DurationMinutes: req.DurationMinutes,
		PriceUSD:        price,
		Product:         req.Product,
		ScheduledStart:  req.ScheduledStart,
		PaymentMethod:   req.PaymentMethod,
		Status:          models.BookingPending,
		PaymentStatus:   models.PaymentPending,
	}
	if err := l.store.CreateBooking(ctx, b); err != nil {
		if apperrors.IsConflict(err) {
			metrics.RecordBookingConflict("double_booking")
		}
		return nil, err
	}

	metrics.RecordBookingCreated(strconv.Itoa(b.DurationMinutes))
	l.log.Info("Booking created",
		logger.String("booking_id", b.ID),
		logger.Int64("requester_id", b.RequesterID),
		logger.Int64("provider_id", b.ProviderID))
	return b, nil
}

// Reserve атомарно занимает окно и создает бронирование на его начало.
// Проигравший гонку за окно получает ConflictError, и никакой записи о бронировании не остается
func (l *Ledger) Reserve(ctx context.Context, req ReserveRequest) (*models.Booking, error) {
	price, err := PriceFor(req.DurationMinutes)
	if err != nil {
		return nil, err
	}
	if err := validatePaymentMethod(req.PaymentMethod); err != nil {
		return nil, err
	}
	if err := validateProduct(req.Product); err != nil {
		return nil, err
	}

	b := &models.Booking{
		RequesterID:     req.RequesterID,
		DurationMinutes: req.DurationMinutes,
		PriceUSD:        price,
		Product:         req.Product,
		PaymentMethod:   req.PaymentMethod,
		Status:          models.BookingPending,
		PaymentStatus:   models.PaymentPending,
	}
	if err := l.store.ReserveWindow(ctx, b, req.WindowID, l.now()); err != nil {
		if apperrors.IsConflict(err) {
			reason := "window_booked"
			if apperrors.Is(err, apperrors.ErrDoubleBooking) {
				reason = "double_booking"
			}
			metrics.RecordBookingConflict(reason)
		}
		return nil, err
	}

	metrics.RecordBookingCreated(strconv.Itoa(b.DurationMinutes))
	l.log.Info("Window reserved",
		logger.String("booking_id", b.ID),
		logger.Int64("window_id", req.WindowID),
		logger.Int64("requester_id", b.RequesterID))
	return b, nil
}

// Get возвращает бронирование
func (l *Ledger) Get(ctx context.Context, id string) (*models.Booking, error) {
	return l.store.GetBooking(ctx, id)
}

// ListForRequester возвращает бронирования пользователя; без статусов - все
func (l *Ledger) ListForRequester(ctx context.Context, requesterID int64, statuses ...models.BookingStatus) ([]*models.Booking, error) {
	return l.store.ListBookings(ctx, storage.BookingFilter{RequesterID: &requesterID, Statuses: statuses})
}

// ListForProvider возвращает бронирования модели; без статусов - все
func (l *Ledger) ListForProvider(ctx context.Context, providerID int64, statuses ...models.BookingStatus) ([]*models.Booking, error) {
	return l.store.ListBookings(ctx, storage.BookingFilter{ProviderID: &providerID, Statuses: statuses})
}

// UpcomingForProvider возвращает неотмененные бронирования модели на ближайшие hoursAhead часов
func (l *Ledger) UpcomingForProvider(ctx context.Context, providerID int64, hoursAhead int) ([]*models.Booking, error) {
	now := l.now()
	until := now.Add(time.Duration(hoursAhead) * time.Hour)
	return l.store.ListBookings(ctx, storage.BookingFilter{
		ProviderID: &providerID,
		Statuses:   []models.BookingStatus{models.BookingPending, models.BookingConfirmed},
		StartFrom:  &now,
		StartTo:    &until,
	})
}

// UpcomingPaid возвращает подтвержденные оплаченные сессии, начинающиеся после now
func (l *Ledger) UpcomingPaid(ctx context.Context, now time.Time) ([]*models.Booking, error) {
	return l.store.ListBookings(ctx, storage.BookingFilter{
		Statuses:      []models.BookingStatus{models.BookingConfirmed},
		PaymentStatus: []models.PaymentStatus{models.PaymentPaid},
		StartFrom:     &now,
	})
}

// UpdateStatus заменяет статус без проверки допустимости перехода
func (l *Ledger) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error {
	if !status.Valid() {
		return apperrors.ErrInvalidStatus.WithContext(map[string]string{"status": string(status)})
	}
	return l.store.UpdateBookingStatus(ctx, id, status)
}

// UpdatePaymentStatus заменяет статус оплаты независимо от статуса бронирования
func (l *Ledger) UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus, transactionRef string) error {
	if !status.Valid() {
		return apperrors.ErrInvalidPaymentStatus.WithContext(map[string]string{"payment_status": string(status)})
	}
	return l.store.UpdatePaymentStatus(ctx, id, status, transactionRef)
}

// ConfirmPayment отмечает оплату и переводит pending в confirmed.
// Второй результат true, если бронирование подтверждено именно этим вызовом.
// Оплата отмененного бронирования отклоняется как ConflictError
func (l *Ledger) ConfirmPayment(ctx context.Context, id, transactionRef string) (*models.Booking, bool, error) {
	confirmed, err := l.store.ConfirmPayment(ctx, id, transactionRef)
	if err != nil {
		return nil, false, err
	}

	b, err := l.store.GetBooking(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if confirmed {
		l.log.Info("Booking confirmed", logger.String("booking_id", id))
	}
	return b, confirmed, nil
}

// Cancel отменяет бронирование. Оплаченное бронирование возвращается, если это разрешает
// IsRefundEligible, иначе оплата помечается failed. Окно освобождается после сохранения отмены;
// ошибка освобождения только логируется и возвращается в CancelResult
func (l *Ledger) Cancel(ctx context.Context, id, reason string, isAdmin bool) (*CancelResult, error) {
	b, err := l.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case models.BookingCancelled:
		return nil, apperrors.ErrBookingCancelled
	case models.BookingCompleted:
		return nil, apperrors.ErrBookingCompleted
	}

	now := l.now()
	eligible := IsRefundEligible(b.ScheduledStart, now, isAdmin)

	params := storage.CancelParams{
		BookingID:   id,
		Reason:      reason,
		PaymentFrom: models.PaymentPaid,
		PaymentTo:   models.PaymentFailed,
	}
	refunded := b.PaymentStatus == models.PaymentPaid && eligible
	if refunded {
		params.PaymentTo = models.PaymentRefunded

		processedBy := "system"
		if isAdmin {
			processedBy = "admin"
		}
		params.Refund = &models.RefundRequest{
			BookingID:   b.ID,
			RequesterID: b.RequesterID,
			AmountUSD:   b.PriceUSD,
			Reason:      reason,
			Status:      models.RefundApproved,
			ProcessedBy: processedBy,
			ProcessedAt: &now,
		}
	}

	if err := l.store.CancelBooking(ctx, params); err != nil {
		return nil, err
	}
	metrics.RecordBookingCancelled(refunded)

	result := &CancelResult{Refunded: refunded}
	if _, err := l.store.ReleaseBookingWindows(ctx, id); err != nil {
		l.log.Error("Failed to release window after cancellation",
			logger.String("booking_id", id),
			logger.Error(err))
		metrics.RecordError("ledger", "window_release")
		result.WindowReleaseErr = err
	} else {
		metrics.RecordWindowReleased("cancel")
	}

	l.log.Info("Booking cancelled",
		logger.String("booking_id", id),
		logger.Bool("refunded", refunded),
		logger.Bool("by_admin", isAdmin))

	updated, err := l.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	result.Booking = updated
	return result, nil
}

// Complete завершает оплаченное бронирование. Неоплаченное отклоняется как ValidationError при любом статусе,
// отмененное - как ConflictError; уже завершенное возвращается без изменений
func (l *Ledger) Complete(ctx context.Context, id string) (*models.Booking, error) {
	b, err := l.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case b.PaymentStatus != models.PaymentPaid:
		return nil, apperrors.ErrBookingNotPaid.WithContext(map[string]string{"payment_status": string(b.PaymentStatus)})
	case b.Status == models.BookingCancelled:
		return nil, apperrors.ErrBookingCancelled
	case b.Status == models.BookingCompleted:
		return b, nil
	}

	if err := l.store.CompleteBooking(ctx, id, l.now()); err != nil {
		return nil, err
	}
	metrics.BookingsCompleted.Inc()

	return l.store.GetBooking(ctx, id)
}

// AutoCompleteDue завершает подтвержденные оплаченные бронирования, закончившиеся до now.
// Ошибка на одной строке логируется и не прерывает проход; строка останется в выборке следующего прохода
func (l *Ledger) AutoCompleteDue(ctx context.Context, now time.Time) (completed int, failed int, err error) {
	due, err := l.store.ListBookings(ctx, storage.BookingFilter{
		Statuses:      []models.BookingStatus{models.BookingConfirmed},
		PaymentStatus: []models.PaymentStatus{models.PaymentPaid},
		EndBefore:     &now,
	})
	if err != nil {
		return 0, 0, err
	}

	for _, b := range due {
		if err := l.store.CompleteBooking(ctx, b.ID, now); err != nil {
			failed++
			metrics.JobRowFailures.WithLabelValues("auto_complete").Inc()
			l.log.Error("Failed to auto-complete booking",
				logger.String("booking_id", b.ID),
				logger.Error(err))
			continue
		}
		completed++
		metrics.BookingsCompleted.Inc()
	}

	if completed > 0 || failed > 0 {
		l.log.Info("Auto-complete sweep finished",
			logger.Int("completed", completed),
			logger.Int("failed", failed))
	}
	return completed, failed, nil
}

// AttachVideoRoom сохраняет описание видеокомнаты, выданное внешним сервисом
func (l *Ledger) AttachVideoRoom(ctx context.Context, id, room string) error {
	return l.store.AttachVideoRoom(ctx, id, room)
}

// Notice собирает данные для уведомления о бронировании
func (l *Ledger) Notice(ctx context.Context, id string) (*Notice, error) {
	b, err := l.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	p, err := l.store.GetProvider(ctx, b.ProviderID)
	if err != nil {
		return nil, err
	}

	return &Notice{Booking: b, ProviderName: p.Name, RequesterID: b.RequesterID}, nil
}

package storage

import (
	"context"
	"time"

	"github.com/region23/pnplive/internal/storage/models"
)

// ProviderRepository определяет интерфейс для работы с моделями
type ProviderRepository interface {
	CreateProvider(ctx context.Context, p *models.Provider) error
	GetProvider(ctx context.Context, id int64) (*models.Provider, error)
	ListProviders(ctx context.Context, activeOnly bool) ([]*models.Provider, error)
	SetProviderActive(ctx context.Context, id int64, active bool) error
	SetProviderOnline(ctx context.Context, id int64, online bool, at time.Time) error
	MarkStaleProvidersOffline(ctx context.Context, lastSeenBefore time.Time) (int64, error)
}

// WindowRepository определяет интерфейс для работы с окнами доступности
type WindowRepository interface {
	CreateWindow(ctx context.Context, w *models.AvailabilityWindow, allowOverlap bool) error
	GetWindow(ctx context.Context, id int64) (*models.AvailabilityWindow, error)
	ListWindows(ctx context.Context, providerID int64) ([]*models.AvailabilityWindow, error)
	ListOpenWindows(ctx context.Context, providerID int64, from, to time.Time) ([]*models.AvailabilityWindow, error)
	MarkWindowBooked(ctx context.Context, windowID int64, bookingID string) error
	ReleaseWindow(ctx context.Context, windowID int64) error
	ReleaseBookingWindows(ctx context.Context, bookingID string) (int64, error)
	DeleteWindow(ctx context.Context, windowID int64) error
	ListOrphanedWindows(ctx context.Context) ([]*models.AvailabilityWindow, error)
}

// BookingFilter задает условия выборки бронирований; пустые поля не ограничивают выборку
type BookingFilter struct {
	RequesterID   *int64
	ProviderID    *int64
	Statuses      []models.BookingStatus
	PaymentStatus []models.PaymentStatus
	StartFrom     *time.Time // включительно
	StartTo       *time.Time // не включительно
	EndBefore     *time.Time
	Limit         int
}

// CancelParams описывает отмену бронирования. Статус оплаты меняется с PaymentFrom на PaymentTo,
// только если к моменту записи он не изменился; Refund, если задан, сохраняется в той же транзакции
type CancelParams struct {
	BookingID   string
	Reason      string
	PaymentFrom models.PaymentStatus
	PaymentTo   models.PaymentStatus
	Refund      *models.RefundRequest
}

// BookingRepository определяет интерфейс для работы с бронированиями
type BookingRepository interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	ReserveWindow(ctx context.Context, b *models.Booking, windowID int64, at time.Time) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) error
	UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus, transactionRef string) error
	ConfirmPayment(ctx context.Context, id string, transactionRef string) (bool, error)
	CancelBooking(ctx context.Context, p CancelParams) error
	CompleteBooking(ctx context.Context, id string, at time.Time) error
	AttachVideoRoom(ctx context.Context, id, room string) error
}

// RefundRepository определяет интерфейс для работы с запросами на возврат
type RefundRepository interface {
	CreateRefundRequest(ctx context.Context, r *models.RefundRequest) error
	GetRefundRequest(ctx context.Context, id string) (*models.RefundRequest, error)
	ListRefundRequests(ctx context.Context, status models.RefundStatus) ([]*models.RefundRequest, error)
	ProcessRefundRequest(ctx context.Context, id string, status models.RefundStatus, processedBy string, at time.Time) error
}

// FeedbackRepository определяет интерфейс для работы с отзывами
type FeedbackRepository interface {
	CreateFeedback(ctx context.Context, f *models.Feedback) error
	ProviderRating(ctx context.Context, providerID int64) (float64, int, error)
}

// StatsRepository определяет интерфейс для агрегатных отчетов
type StatsRepository interface {
	BookingStatistics(ctx context.Context, from, to time.Time) (*models.Statistics, error)
	RevenueByProvider(ctx context.Context, from, to time.Time) ([]*models.ProviderRevenue, error)
}

// Storage объединяет все репозитории в единый интерфейс
type Storage interface {
	ProviderRepository
	WindowRepository
	BookingRepository
	RefundRepository
	FeedbackRepository
	StatsRepository
	Close() error
	Ping(ctx context.Context) error
}

package booking

import (
	"context"
	"strings"
	"time"

	"github.com/region23/pnplive/internal/storage/models"
	apperrors "github.com/region23/pnplive/pkg/errors"
)

// SubmitFeedback сохраняет отзыв владельца о завершенной сессии, один на бронирование
func (l *Ledger) SubmitFeedback(ctx context.Context, bookingID string, requesterID int64, rating int, comments string) (*models.Feedback, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.ErrInvalidRating
	}

	b, err := l.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.RequesterID != requesterID {
		return nil, apperrors.ErrNotBookingOwner
	}
	if b.Status != models.BookingCompleted {
		return nil, apperrors.ErrBookingNotCompleted
	}

	f := &models.Feedback{
		BookingID:   b.ID,
		RequesterID: requesterID,
		ProviderID:  b.ProviderID,
		Rating:      rating,
		Comments:    strings.TrimSpace(comments),
	}
	if err := l.store.CreateFeedback(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// ProviderRating возвращает среднюю оценку модели и число отзывов
func (l *Ledger) ProviderRating(ctx context.Context, providerID int64) (float64, int, error) {
	return l.store.ProviderRating(ctx, providerID)
}

// Statistics возвращает агрегаты по сессиям, начинающимся в [from, to)
func (l *Ledger) Statistics(ctx context.Context, from, to time.Time) (*models.Statistics, error) {
	if !from.Before(to) {
		return nil, apperrors.ErrInvalidTimeRange
	}
	return l.store.BookingStatistics(ctx, from, to)
}

// RevenueByProvider возвращает оплаченную выручку по моделям за [from, to)
func (l *Ledger) RevenueByProvider(ctx context.Context, from, to time.Time) ([]*models.ProviderRevenue, error) {
	if !from.Before(to) {
		return nil, apperrors.ErrInvalidTimeRange
	}
	return l.store.RevenueByProvider(ctx, from, to)
}

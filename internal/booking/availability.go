package booking

import (
	"context"
	"time"

	"github.com/region23/pnplive/internal/storage"
	"github.com/region23/pnplive/internal/storage/models"
	apperrors "github.com/region23/pnplive/pkg/errors"
	"github.com/region23/pnplive/pkg/logger"
	"github.com/region23/pnplive/pkg/metrics"
)

// Availability управляет окнами доступности моделей
type Availability struct {
	store        storage.WindowRepository
	allowOverlap bool
	log          *logger.Logger
	now          func() time.Time
}

// AddWindow создает свободное окно [start, end)
func (a *Availability) AddWindow(ctx context.Context, providerID int64, start, end time.Time) (*models.AvailabilityWindow, error) {
	if !start.Before(end) {
		return nil, apperrors.ErrInvalidTimeRange
	}

	w := &models.AvailabilityWindow{ProviderID: providerID, Start: start, End: end}
	if err := a.store.CreateWindow(ctx, w, a.allowOverlap); err != nil {
		return nil, err
	}

	metrics.WindowsCreated.Inc()
	return w, nil
}

// ListWindows возвращает все окна модели, включая занятые
func (a *Availability) ListWindows(ctx context.Context, providerID int64) ([]*models.AvailabilityWindow, error) {
	return a.store.ListWindows(ctx, providerID)
}

// ListOpenWindows возвращает свободные окна, пересекающиеся с [from, to)
func (a *Availability) ListOpenWindows(ctx context.Context, providerID int64, from, to time.Time) ([]*models.AvailabilityWindow, error) {
	return a.store.ListOpenWindows(ctx, providerID, from, to)
}

// MarkBooked занимает свободное окно за бронированием
func (a *Availability) MarkBooked(ctx context.Context, windowID int64, bookingID string) error {
	if err := a.store.MarkWindowBooked(ctx, windowID, bookingID); err != nil {
		if apperrors.IsConflict(err) {
			metrics.RecordBookingConflict("window_booked")
		}
		return err
	}
	return nil
}

// Release освобождает окно; повторный вызов и отсутствующее окно ошибкой не считаются
func (a *Availability) Release(ctx context.Context, windowID int64) error {
	if err := a.store.ReleaseWindow(ctx, windowID); err != nil {
		return err
	}
	metrics.RecordWindowReleased("manual")
	return nil
}

// Delete удаляет свободное окно
func (a *Availability) Delete(ctx context.Context, windowID int64) error {
	return a.store.DeleteWindow(ctx, windowID)
}

// Reconcile освобождает окна, оставшиеся занятыми за отмененными или несуществующими бронированиями.
// Ошибка на одном окне не прерывает проход
func (a *Availability) Reconcile(ctx context.Context) (int, error) {
	orphans, err := a.store.ListOrphanedWindows(ctx)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, w := range orphans {
		if err := a.store.ReleaseWindow(ctx, w.ID); err != nil {
			a.log.Error("Failed to release orphaned window",
				logger.Int64("window_id", w.ID),
				logger.Error(err))
			metrics.JobRowFailures.WithLabelValues("reconcile").Inc()
			continue
		}
		released++
		metrics.RecordWindowReleased("reconcile")
	}

	if released > 0 {
		a.log.Info("Released orphaned windows", logger.Int("count", released))
	}
	return released, nil
}

package booking

import (
	"context"
	"time"

	"github.com/region23/pnplive/internal/storage"
	"github.com/region23/pnplive/internal/storage/models"
	apperrors "github.com/region23/pnplive/pkg/errors"
)

// allocatorStore - то, что нужно подбору слотов от хранилища
type allocatorStore interface {
	storage.ProviderRepository
	storage.WindowRepository
}

// Allocator подбирает окна, в которые помещается сессия заданной длительности
type Allocator struct {
	store allocatorStore
	loc   *time.Location
}

// Location возвращает часовой пояс, в котором считаются границы дня
func (a *Allocator) Location() *time.Location {
	return a.loc
}

// OpenSlots возвращает свободные окна модели в день date длиной не меньше minutes, по возрастанию начала.
// Пустой результат - не ошибка; отсутствующая или неактивная модель - ErrProviderNotFound
func (a *Allocator) OpenSlots(ctx context.Context, providerID int64, date time.Time, minutes int) ([]*models.AvailabilityWindow, error) {
	if _, err := PriceFor(minutes); err != nil {
		return nil, err
	}

	p, err := a.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperrors.ErrProviderNotFound.WithContext(map[string]int64{"provider_id": providerID})
	}

	from, to := DayBounds(date, a.loc)
	windows, err := a.store.ListOpenWindows(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}

	slots := make([]*models.AvailabilityWindow, 0, len(windows))
	for _, w := range windows {
		if w.Booked || !w.Fits(minutes) {
			continue
		}
		slots = append(slots, w)
	}
	return slots, nil
}

// AvailableDates возвращает дни из ближайших days, в которых есть слот не раньше now
func (a *Allocator) AvailableDates(ctx context.Context, providerID int64, now time.Time, days, minutes int) ([]time.Time, error) {
	var dates []time.Time
	day, _ := DayBounds(now, a.loc)
	for i := 0; i < days; i++ {
		slots, err := a.OpenSlots(ctx, providerID, day, minutes)
		if err != nil {
			return nil, err
		}
		if len(FutureOnly(slots, now)) > 0 {
			dates = append(dates, day)
		}
		day = day.AddDate(0, 0, 1)
	}
	return dates, nil
}

// FutureOnly отбрасывает окна, которые уже начались
func FutureOnly(windows []*models.AvailabilityWindow, now time.Time) []*models.AvailabilityWindow {
	out := windows[:0:0]
	for _, w := range windows {
		if w.Start.After(now) {
			out = append(out, w)
		}
	}
	return out
}

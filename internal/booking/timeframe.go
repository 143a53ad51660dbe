package booking

import (
	"context"
	"time"

	"github.com/region23/pnplive/internal/storage/models"
	apperrors "github.com/region23/pnplive/pkg/errors"
	"github.com/region23/pnplive/pkg/logger"
)

// MaxTimeFrame - максимальная длина интервала, который админ создает за один раз
const MaxTimeFrame = 12 * time.Hour

// TimeFrame - типовой интервал работы модели внутри дня
type TimeFrame struct {
	Key       string
	Label     string
	StartHour int
	EndHour   int // 24 означает полночь следующего дня
}

var suggestedFrames = []TimeFrame{
	{Key: "afternoon", Label: "Afternoon (12:00-16:00)", StartHour: 12, EndHour: 16},
	{Key: "evening", Label: "Evening (17:00-21:00)", StartHour: 17, EndHour: 21},
	{Key: "night", Label: "Night (21:00-24:00)", StartHour: 21, EndHour: 24},
}

// SuggestedTimeFrames возвращает типовые интервалы для админского меню
func SuggestedTimeFrames() []TimeFrame {
	out := make([]TimeFrame, len(suggestedFrames))
	copy(out, suggestedFrames)
	return out
}

// FindTimeFrame ищет типовой интервал по ключу
func FindTimeFrame(key string) (TimeFrame, bool) {
	for _, f := range suggestedFrames {
		if f.Key == key {
			return f, true
		}
	}
	return TimeFrame{}, false
}

// IsBookableDay проверяет, что день недели входит в окно четверг-понедельник
func IsBookableDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Tuesday, time.Wednesday:
		return false
	}
	return true
}

// NextBookableDay возвращает начало ближайшего рабочего дня, начиная с дня from
func NextBookableDay(from time.Time, loc *time.Location) time.Time {
	day, _ := DayBounds(from, loc)
	for !IsBookableDay(day) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// On возвращает границы интервала в указанный день по местным часам,
// так что в дни перехода на летнее время интервал не сдвигается
func (f TimeFrame) On(day time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, f.StartHour, 0, 0, 0, loc), time.Date(y, m, d, f.EndHour, 0, 0, 0, loc)
}

// ValidateTimeFrame проверяет интервал, заданный админом
func ValidateTimeFrame(start, end, now time.Time) error {
	switch {
	case !start.Before(end):
		return apperrors.ErrInvalidTimeRange
	case !start.After(now):
		return apperrors.ErrInvalidTimeFrame.WithContext("time frame must start in the future")
	case end.Sub(start) > MaxTimeFrame:
		return apperrors.ErrInvalidTimeFrame.WithContext("time frame must not exceed 12 hours")
	}
	return nil
}

// CreateWindowsForTimeFrame нарезает интервал на последовательные окна длиной slot.
// Окна, пересекающиеся с существующими, пропускаются; хвост короче slot отбрасывается
func (a *Availability) CreateWindowsForTimeFrame(ctx context.Context, providerID int64, start, end time.Time, slot time.Duration) ([]*models.AvailabilityWindow, error) {
	if err := ValidateTimeFrame(start, end, a.now()); err != nil {
		return nil, err
	}
	if slot <= 0 {
		return nil, apperrors.ErrInvalidDuration
	}

	var created []*models.AvailabilityWindow
	for cur := start; !cur.Add(slot).After(end); cur = cur.Add(slot) {
		w, err := a.AddWindow(ctx, providerID, cur, cur.Add(slot))
		if err != nil {
			if apperrors.Is(err, apperrors.ErrWindowOverlap) {
				a.log.Debug("Skipping overlapping window",
					logger.Int64("provider_id", providerID),
					logger.Time("start", cur))
				continue
			}
			return created, err
		}
		created = append(created, w)
	}

	a.log.Info("Time frame windows created",
		logger.Int64("provider_id", providerID),
		logger.Int("count", len(created)))
	return created, nil
}

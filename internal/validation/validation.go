package validation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/region23/pnplive/pkg/errors"
)

// DateLayout - формат даты в аргументах команд
const DateLayout = "2006-01-02"

// Регулярные выражения для валидации
var (
	dateRegex   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRegex   = regexp.MustCompile(`^\d{2}:\d{2}$`)
	handleRegex = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)
)

// ValidateID разбирает положительный числовой идентификатор
func ValidateID(idStr string) (int64, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		return 0, errors.ErrInvalidID.WithContext("id не может быть пустым")
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, errors.ErrInvalidID.WithError(err).WithContext(map[string]interface{}{
			"input": idStr,
		})
	}

	if id <= 0 {
		return 0, errors.ErrInvalidID.WithContext(map[string]interface{}{
			"input":  idStr,
			"reason": "id должен быть положительным числом",
		})
	}

	return id, nil
}

// ValidateDate разбирает дату YYYY-MM-DD как полночь в часовом поясе loc
func ValidateDate(dateStr string, loc *time.Location) (time.Time, error) {
	if !dateRegex.MatchString(dateStr) {
		return time.Time{}, errors.ErrInvalidDate.WithContext(map[string]interface{}{
			"date":   dateStr,
			"reason": "дата должна быть в формате YYYY-MM-DD",
		})
	}

	date, err := time.ParseInLocation(DateLayout, dateStr, loc)
	if err != nil {
		return time.Time{}, errors.ErrInvalidDate.WithError(err).WithContext(map[string]interface{}{
			"date": dateStr,
		})
	}

	return date, nil
}

// ValidateClock разбирает время HH:MM и возвращает смещение от начала дня
func ValidateClock(timeStr string) (time.Duration, error) {
	if !timeRegex.MatchString(timeStr) {
		return 0, errors.ErrInvalidTimeRange.WithContext(map[string]interface{}{
			"time":   timeStr,
			"reason": "время должно быть в формате HH:MM",
		})
	}

	parsed, err := time.Parse("15:04", timeStr)
	if err != nil {
		return 0, errors.ErrInvalidTimeRange.WithError(err).WithContext(map[string]interface{}{
			"time": timeStr,
		})
	}

	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}

// ValidateWindowRange собирает интервал окна из даты и двух времен HH:MM.
// Если конец не позже начала, окно заканчивается на следующий день (например 22:00-00:30)
func ValidateWindowRange(dateStr, fromStr, toStr string, loc *time.Location) (time.Time, time.Time, error) {
	day, err := ValidateDate(dateStr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from, err := ValidateClock(fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := ValidateClock(toStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from == to {
		return time.Time{}, time.Time{}, errors.ErrInvalidTimeRange.WithContext(map[string]interface{}{
			"from":   fromStr,
			"to":     toStr,
			"reason": "время окончания должно отличаться от времени начала",
		})
	}

	start := atClock(day, from, loc)
	end := atClock(day, to, loc)
	if !end.After(start) {
		end = atClock(day.AddDate(0, 0, 1), to, loc)
	}
	return start, end, nil
}

// atClock возвращает момент day + offset по настенным часам loc
func atClock(day time.Time, offset time.Duration, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(offset/time.Hour), int(offset%time.Hour/time.Minute), 0, 0, loc)
}

// ValidateProviderName проверяет отображаемое имя модели
func ValidateProviderName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.ErrInvalidProvider.WithContext("имя не может быть пустым")
	}

	if len(name) > 100 {
		return errors.ErrInvalidProvider.WithContext("имя слишком длинное (максимум 100 символов)")
	}

	return nil
}

// ValidateHandle проверяет Telegram username модели (без @); пустой допустим
func ValidateHandle(handle string) error {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil
	}

	if !handleRegex.MatchString(handle) {
		return errors.ErrInvalidProvider.WithContext(map[string]interface{}{
			"handle": handle,
			"reason": "username может содержать только латиницу, цифры и _ (3-32 символа)",
		})
	}

	return nil
}

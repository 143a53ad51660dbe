package booking

import (
	apperrors "github.com/region23/pnplive/pkg/errors"
)

// priceTable - единственный источник цен: длительность в минутах -> цена в USD
var priceTable = map[int]int{
	30: 60,
	60: 100,
	90: 250,
}

// Durations возвращает допустимые длительности по возрастанию
func Durations() []int {
	return []int{30, 60, 90}
}

// PriceFor возвращает цену сессии; любая длительность вне таблицы недопустима
func PriceFor(minutes int) (int, error) {
	price, ok := priceTable[minutes]
	if !ok {
		return 0, apperrors.ErrInvalidDuration.WithContext(map[string]int{"duration_minutes": minutes})
	}
	return price, nil
}

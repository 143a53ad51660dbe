// Package booking реализует движок окон доступности и бронирований:
// окна моделей, подбор слотов, журнал бронирований и правила возврата.
package booking

import (
	"time"

	"github.com/region23/pnplive/internal/storage"
	"github.com/region23/pnplive/pkg/logger"
)

// Options настраивает движок
type Options struct {
	// Location задает часовой пояс, в котором дата превращается в [начало дня, следующее начало дня)
	Location *time.Location
	// AllowOverlap разрешает пересекающиеся окна одной модели
	AllowOverlap bool
	Logger       *logger.Logger
	// Now подменяется в тестах
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Engine объединяет компоненты движка поверх одного хранилища
type Engine struct {
	Providers *Directory
	Windows   *Availability
	Slots     *Allocator
	Bookings  *Ledger
}

// NewEngine собирает движок
func NewEngine(store storage.Storage, opts Options) *Engine {
	opts.setDefaults()
	log := opts.Logger.Named("booking")

	windows := &Availability{
		store:        store,
		allowOverlap: opts.AllowOverlap,
		log:          log.Named("availability"),
		now:          opts.Now,
	}

	return &Engine{
		Providers: &Directory{store: store, log: log.Named("providers"), now: opts.Now},
		Windows:   windows,
		Slots:     &Allocator{store: store, loc: opts.Location},
		Bookings: &Ledger{
			store: store,
			log:   log.Named("ledger"),
			now:   opts.Now,
		},
	}
}

// DayBounds возвращает [начало дня, начало следующего дня) для даты в часовом поясе loc
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

package keyboard

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/region23/pnplive/internal/booking"
	storagemodels "github.com/region23/pnplive/internal/storage/models"
)

// Префиксы callback data
const (
	PrefixMenu     = "MENU:"
	PrefixProduct  = "PRD:"
	PrefixProvider = "PRV:"
	PrefixDuration = "DUR:"
	PrefixDate     = "DATE:"
	PrefixSlot     = "SLOT:"
	PrefixPayment  = "PAY:"
	PrefixCancel   = "CNL:"
	PrefixRefund   = "RFD:"
	PrefixApprove  = "RFA:"
	PrefixReject   = "RFR:"
	PrefixFeedback = "FBK:"
	PrefixFrame    = "TFR:"

	MenuBook = "book"
	MenuMine = "mine"
	MenuBack = "back"

	dateLayout = "2006-01-02"
)

func row(buttons ...models.InlineKeyboardButton) []models.InlineKeyboardButton {
	return buttons
}

func button(text, data string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: text, CallbackData: data}
}

func backRow() []models.InlineKeyboardButton {
	return row(button("« Back", PrefixMenu+MenuBack))
}

// CreateRemoveKeyboard создает объект для удаления клавиатуры
func CreateRemoveKeyboard() *models.ReplyKeyboardRemove {
	return &models.ReplyKeyboardRemove{
		RemoveKeyboard: true,
	}
}

// CreateMainMenu создает главное меню
func CreateMainMenu() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			row(button("📅 Book a private session", PrefixMenu+MenuBook)),
			row(button("🗂 My bookings", PrefixMenu+MenuMine)),
		},
	}
}

// CreateProductKeyboard создает выбор продуктовой линии
func CreateProductKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			row(button("🎥 PNP Live", PrefixProduct+storagemodels.ProductPNPLive)),
			row(button("🤝 Meet & Greet", PrefixProduct+storagemodels.ProductMeetGreet)),
			backRow(),
		},
	}
}

// CreateProviderKeyboard создает выбор модели
func CreateProviderKeyboard(providers []*storagemodels.Provider) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(providers)+1)
	for _, p := range providers {
		text := p.Name
		if p.IsOnline {
			text = "🟢 " + text
		}
		rows = append(rows, row(button(text, fmt.Sprintf("%s%d", PrefixProvider, p.ID))))
	}
	rows = append(rows, backRow())

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// CreateDurationKeyboard создает выбор длительности с ценами
func CreateDurationKeyboard() *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	for _, minutes := range booking.Durations() {
		price, _ := booking.PriceFor(minutes)
		text := fmt.Sprintf("%d min - $%d", minutes, price)
		rows = append(rows, row(button(text, fmt.Sprintf("%s%d", PrefixDuration, minutes))))
	}
	rows = append(rows, backRow())

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// CreateDateSelectionKeyboard создает inline клавиатуру для выбора даты
func CreateDateSelectionKeyboard(dates []time.Time) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(dates)+1)
	for _, d := range dates {
		rows = append(rows, row(button(d.Format("Mon, Jan 2"), PrefixDate+d.Format(dateLayout))))
	}
	rows = append(rows, backRow())

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// CreateSlotSelectionKeyboard создает inline клавиатуру для выбора окна
func CreateSlotSelectionKeyboard(windows []*storagemodels.AvailabilityWindow, loc *time.Location) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(windows)+1)
	for _, w := range windows {
		text := fmt.Sprintf("%s-%s", w.Start.In(loc).Format("15:04"), w.End.In(loc).Format("15:04"))
		rows = append(rows, row(button(text, fmt.Sprintf("%s%d", PrefixSlot, w.ID))))
	}
	rows = append(rows, backRow())

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// CreatePaymentKeyboard создает выбор способа оплаты
func CreatePaymentKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			row(button("💳 Credit card", PrefixPayment+storagemodels.PaymentMethodCard)),
			row(button("🪙 Crypto", PrefixPayment+storagemodels.PaymentMethodCrypto)),
			backRow(),
		},
	}
}

// CreateBookingActions создает кнопки действий над бронированием.
// Для завершенных - оценка, для активных - отмена и запрос возврата
func CreateBookingActions(b *storagemodels.Booking) *models.InlineKeyboardMarkup {
	switch b.Status {
	case storagemodels.BookingCompleted:
		var ratings []models.InlineKeyboardButton
		for i := 1; i <= 5; i++ {
			ratings = append(ratings, button(strconv.Itoa(i)+"⭐", fmt.Sprintf("%s%s:%d", PrefixFeedback, b.ID, i)))
		}
		return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{ratings}}
	case storagemodels.BookingPending, storagemodels.BookingConfirmed:
		rows := [][]models.InlineKeyboardButton{row(button("❌ Cancel", PrefixCancel+b.ID))}
		if b.PaymentStatus == storagemodels.PaymentPaid {
			rows = append(rows, row(button("💸 Request refund", PrefixRefund+b.ID)))
		}
		return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
	}
	return nil
}

// CreateRefundDecisionKeyboard создает кнопки решения по возврату для администратора
func CreateRefundDecisionKeyboard(refundID string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			row(
				button("✅ Approve", PrefixApprove+refundID),
				button("🚫 Reject", PrefixReject+refundID),
			),
		},
	}
}

// CreateTimeFrameKeyboard создает выбор типового интервала для модели на день
func CreateTimeFrameKeyboard(providerID int64, day time.Time) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	for _, f := range booking.SuggestedTimeFrames() {
		data := fmt.Sprintf("%s%d:%s:%s", PrefixFrame, providerID, day.Format(dateLayout), f.Key)
		rows = append(rows, row(button(f.Label, data)))
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// ParseID разбирает числовой ID после префикса
func ParseID(data, prefix string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id in callback %q", data)
	}
	return id, nil
}

// ParseDate разбирает дату после префикса в часовом поясе loc
func ParseDate(data string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimPrefix(data, PrefixDate), loc)
}

// ParseFeedback разбирает "FBK:<booking>:<rating>"
func ParseFeedback(data string) (string, int, error) {
	rest := strings.TrimPrefix(data, PrefixFeedback)
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid feedback callback %q", data)
	}
	rating, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid rating in callback %q", data)
	}
	return rest[:i], rating, nil
}

// ParseTimeFrame разбирает "TFR:<provider>:<date>:<key>"
func ParseTimeFrame(data string, loc *time.Location) (int64, time.Time, string, error) {
	parts := strings.Split(strings.TrimPrefix(data, PrefixFrame), ":")
	if len(parts) != 3 {
		return 0, time.Time{}, "", fmt.Errorf("invalid time frame callback %q", data)
	}
	providerID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, time.Time{}, "", fmt.Errorf("invalid provider in callback %q", data)
	}
	day, err := time.ParseInLocation(dateLayout, parts[1], loc)
	if err != nil {
		return 0, time.Time{}, "", fmt.Errorf("invalid date in callback %q", data)
	}
	return providerID, day, parts[2], nil
}

package models

import "time"

// Provider представляет модель, с которой можно забронировать сессию
type Provider struct {
	ID         int64      `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Username   string     `json:"username" db:"username"`
	Bio        string     `json:"bio,omitempty" db:"bio"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	IsOnline   bool       `json:"is_online" db:"is_online"`
	LastOnline *time.Time `json:"last_online,omitempty" db:"last_online"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Handle возвращает @username модели или ее имя, если username не задан
func (p *Provider) Handle() string {
	if p.Username == "" {
		return p.Name
	}
	return "@" + p.Username
}

// AvailabilityWindow представляет непрерывный интервал, доступный для бронирования
type AvailabilityWindow struct {
	ID         int64     `json:"id" db:"id"`
	ProviderID int64     `json:"provider_id" db:"provider_id"`
	Start      time.Time `json:"start" db:"start_at"`
	End        time.Time `json:"end" db:"end_at"`
	Booked     bool      `json:"booked" db:"booked"`
	BookingID  *string   `json:"booking_id,omitempty" db:"booking_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Duration возвращает длину окна
func (w *AvailabilityWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Fits проверяет, помещается ли сессия указанной длительности в окно
func (w *AvailabilityWindow) Fits(minutes int) bool {
	return w.Duration() >= time.Duration(minutes)*time.Minute
}

// Overlaps проверяет пересечение с полуоткрытым интервалом [start, end)
func (w *AvailabilityWindow) Overlaps(start, end time.Time) bool {
	return w.Start.Before(end) && start.Before(w.End)
}

// BookingStatus - статус жизненного цикла бронирования
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingRefunded  BookingStatus = "refunded"
)

// Valid проверяет, что статус входит в перечисление
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCompleted, BookingCancelled, BookingRefunded:
		return true
	}
	return false
}

// PaymentStatus - статус оплаты, независимый от статуса бронирования
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Valid проверяет, что статус оплаты входит в перечисление
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// Способы оплаты
const (
	PaymentMethodCard   = "credit_card"
	PaymentMethodCrypto = "crypto"
)

// Продуктовые линии: одна модель бронирования обслуживает обе
const (
	ProductMeetGreet = "meet_greet"
	ProductPNPLive   = "pnp_live"
)

// Booking представляет бронирование окна доступности пользователем
type Booking struct {
	ID              string        `json:"id" db:"id"`
	RequesterID     int64         `json:"requester_id" db:"requester_id"`
	ProviderID      int64         `json:"provider_id" db:"provider_id"`
	WindowID        *int64        `json:"window_id,omitempty" db:"window_id"`
	DurationMinutes int           `json:"duration_minutes" db:"duration_minutes"`
	PriceUSD        int           `json:"price_usd" db:"price_usd"`
	Product         string        `json:"product" db:"product"`
	ScheduledStart  time.Time     `json:"scheduled_start" db:"scheduled_start"`
	PaymentMethod   string        `json:"payment_method" db:"payment_method"`
	Status          BookingStatus `json:"status" db:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status" db:"payment_status"`
	TransactionRef  string        `json:"transaction_ref,omitempty" db:"transaction_ref"`
	VideoRoom       string        `json:"video_room,omitempty" db:"video_room"`
	CancelReason    string        `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// EndTime возвращает время окончания сессии
func (b *Booking) EndTime() time.Time {
	return b.ScheduledStart.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// IsActive возвращает true для бронирований, которые еще занимают время модели
func (b *Booking) IsActive() bool {
	return b.Status == BookingPending || b.Status == BookingConfirmed
}

// RefundStatus - статус запроса на возврат
type RefundStatus string

const (
	RefundPending  RefundStatus = "pending"
	RefundApproved RefundStatus = "approved"
	RefundRejected RefundStatus = "rejected"
)

// RefundRequest представляет запрос на возврат средств за бронирование
type RefundRequest struct {
	ID          string       `json:"id" db:"id"`
	BookingID   string       `json:"booking_id" db:"booking_id"`
	RequesterID int64        `json:"requester_id" db:"requester_id"`
	AmountUSD   int          `json:"amount_usd" db:"amount_usd"`
	Reason      string       `json:"reason" db:"reason"`
	Status      RefundStatus `json:"status" db:"status"`
	ProcessedBy string       `json:"processed_by,omitempty" db:"processed_by"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// Feedback представляет отзыв пользователя о завершенной сессии
type Feedback struct {
	ID          int64     `json:"id" db:"id"`
	BookingID   string    `json:"booking_id" db:"booking_id"`
	RequesterID int64     `json:"requester_id" db:"requester_id"`
	ProviderID  int64     `json:"provider_id" db:"provider_id"`
	Rating      int       `json:"rating" db:"rating"`
	Comments    string    `json:"comments,omitempty" db:"comments"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Statistics - агрегаты по бронированиям за период
type Statistics struct {
	TotalBookings     int   `json:"total_bookings"`
	PendingBookings   int   `json:"pending_bookings"`
	ConfirmedBookings int   `json:"confirmed_bookings"`
	CompletedBookings int   `json:"completed_bookings"`
	CancelledBookings int   `json:"cancelled_bookings"`
	TotalRevenueUSD   int64 `json:"total_revenue_usd"`
	PaidRevenueUSD    int64 `json:"paid_revenue_usd"`
}

// ProviderRevenue - выручка одной модели за период
type ProviderRevenue struct {
	ProviderID     int64  `json:"provider_id"`
	Name           string `json:"name"`
	Bookings       int    `json:"bookings"`
	PaidRevenueUSD int64  `json:"paid_revenue_usd"`
}

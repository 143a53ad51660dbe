package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind определяет категорию ошибки, по которой вызывающий код выбирает сообщение пользователю
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// BotError представляет ошибку бота с кодом и контекстом
type BotError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Kind    Kind        `json:"kind"`
	Err     error       `json:"-"`
	Context interface{} `json:"context,omitempty"`
}

// Error реализует интерфейс error
func (e *BotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap позволяет использовать errors.Is и errors.As
func (e *BotError) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по коду, поэтому копии из WithContext совпадают с исходной
func (e *BotError) Is(target error) bool {
	t, ok := target.(*BotError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithContext добавляет контекст к ошибке
func (e *BotError) WithContext(ctx interface{}) *BotError {
	return &BotError{
		Code:    e.Code,
		Message: e.Message,
		Kind:    e.Kind,
		Err:     e.Err,
		Context: ctx,
	}
}

// WithError добавляет underlying ошибку
func (e *BotError) WithError(err error) *BotError {
	return &BotError{
		Code:    e.Code,
		Message: e.Message,
		Kind:    e.Kind,
		Err:     err,
		Context: e.Context,
	}
}

// Предопределенные ошибки
var (
	// Ошибки валидации
	ErrInvalidDuration = &BotError{
		Code:    "INVALID_DURATION",
		Message: "длительность должна быть 30, 60 или 90 минут",
		Kind:    KindValidation,
	}

	ErrInvalidTimeRange = &BotError{
		Code:    "INVALID_TIME_RANGE",
		Message: "начало должно быть раньше окончания",
		Kind:    KindValidation,
	}

	ErrInvalidStatus = &BotError{
		Code:    "INVALID_STATUS",
		Message: "некорректный статус бронирования",
		Kind:    KindValidation,
	}

	ErrInvalidPaymentStatus = &BotError{
		Code:    "INVALID_PAYMENT_STATUS",
		Message: "некорректный статус оплаты",
		Kind:    KindValidation,
	}

	ErrInvalidRefundDecision = &BotError{
		Code:    "INVALID_REFUND_DECISION",
		Message: "решение по возврату должно быть approved или rejected",
		Kind:    KindValidation,
	}

	ErrBookingNotPaid = &BotError{
		Code:    "BOOKING_NOT_PAID",
		Message: "бронирование не оплачено",
		Kind:    KindValidation,
	}

	ErrNotBookingOwner = &BotError{
		Code:    "NOT_BOOKING_OWNER",
		Message: "бронирование принадлежит другому пользователю",
		Kind:    KindValidation,
	}

	ErrInvalidRating = &BotError{
		Code:    "INVALID_RATING",
		Message: "оценка должна быть от 1 до 5",
		Kind:    KindValidation,
	}

	ErrWindowTooShort = &BotError{
		Code:    "WINDOW_TOO_SHORT",
		Message: "окно короче выбранной длительности",
		Kind:    KindValidation,
	}

	ErrInvalidTimeFrame = &BotError{
		Code:    "INVALID_TIME_FRAME",
		Message: "некорректный временной интервал",
		Kind:    KindValidation,
	}

	ErrInvalidPaymentMethod = &BotError{
		Code:    "INVALID_PAYMENT_METHOD",
		Message: "неизвестный способ оплаты",
		Kind:    KindValidation,
	}

	ErrInvalidProduct = &BotError{
		Code:    "INVALID_PRODUCT",
		Message: "неизвестная продуктовая линия",
		Kind:    KindValidation,
	}

	ErrInvalidProvider = &BotError{
		Code:    "INVALID_PROVIDER",
		Message: "у модели должно быть имя",
		Kind:    KindValidation,
	}

	ErrInvalidID = &BotError{
		Code:    "INVALID_ID",
		Message: "некорректный идентификатор",
		Kind:    KindValidation,
	}

	ErrInvalidDate = &BotError{
		Code:    "INVALID_DATE",
		Message: "некорректная дата",
		Kind:    KindValidation,
	}

	// Ошибки поиска
	ErrProviderNotFound = &BotError{
		Code:    "PROVIDER_NOT_FOUND",
		Message: "модель не найдена или неактивна",
		Kind:    KindNotFound,
	}

	ErrBookingNotFound = &BotError{
		Code:    "BOOKING_NOT_FOUND",
		Message: "бронирование не найдено",
		Kind:    KindNotFound,
	}

	ErrWindowNotFound = &BotError{
		Code:    "WINDOW_NOT_FOUND",
		Message: "окно доступности не найдено",
		Kind:    KindNotFound,
	}

	ErrRefundNotFound = &BotError{
		Code:    "REFUND_NOT_FOUND",
		Message: "запрос на возврат не найден",
		Kind:    KindNotFound,
	}

	// Конфликты состояния
	ErrDoubleBooking = &BotError{
		Code:    "DOUBLE_BOOKING",
		Message: "у пользователя уже есть бронирование на это время",
		Kind:    KindConflict,
	}

	ErrWindowAlreadyBooked = &BotError{
		Code:    "WINDOW_ALREADY_BOOKED",
		Message: "окно уже забронировано",
		Kind:    KindConflict,
	}

	ErrWindowUnavailable = &BotError{
		Code:    "WINDOW_UNAVAILABLE",
		Message: "окно недоступно для бронирования",
		Kind:    KindConflict,
	}

	ErrWindowOverlap = &BotError{
		Code:    "WINDOW_OVERLAP",
		Message: "окно пересекается с существующим",
		Kind:    KindConflict,
	}

	ErrBookingCancelled = &BotError{
		Code:    "BOOKING_CANCELLED",
		Message: "бронирование уже отменено",
		Kind:    KindConflict,
	}

	ErrBookingCompleted = &BotError{
		Code:    "BOOKING_COMPLETED",
		Message: "бронирование уже завершено",
		Kind:    KindConflict,
	}

	ErrRefundWindowClosed = &BotError{
		Code:    "REFUND_WINDOW_CLOSED",
		Message: "возврат можно запросить не позже 15 минут после начала",
		Kind:    KindConflict,
	}

	ErrRefundAlreadyProcessed = &BotError{
		Code:    "REFUND_ALREADY_PROCESSED",
		Message: "запрос на возврат уже обработан",
		Kind:    KindConflict,
	}

	ErrRefundAlreadyRequested = &BotError{
		Code:    "REFUND_ALREADY_REQUESTED",
		Message: "по бронированию уже есть открытый или одобренный возврат",
		Kind:    KindConflict,
	}

	ErrBookingNotCompleted = &BotError{
		Code:    "BOOKING_NOT_COMPLETED",
		Message: "отзыв можно оставить только после завершения",
		Kind:    KindConflict,
	}

	ErrFeedbackExists = &BotError{
		Code:    "FEEDBACK_EXISTS",
		Message: "отзыв уже оставлен",
		Kind:    KindConflict,
	}

	// Системные ошибки
	ErrDatabaseConnection = &BotError{
		Code:    "DATABASE_CONNECTION",
		Message: "ошибка подключения к базе данных",
		Kind:    KindInternal,
	}

	ErrConfigurationInvalid = &BotError{
		Code:    "CONFIGURATION_INVALID",
		Message: "некорректная конфигурация",
		Kind:    KindInternal,
	}

	ErrTelegramAPI = &BotError{
		Code:    "TELEGRAM_API",
		Message: "ошибка Telegram API",
		Kind:    KindInternal,
	}

	ErrSchedulerUnavailable = &BotError{
		Code:    "SCHEDULER_UNAVAILABLE",
		Message: "планировщик недоступен",
		Kind:    KindInternal,
	}
)

// NewBotError создает новую ошибку бота
func NewBotError(code, message string, kind Kind) *BotError {
	return &BotError{
		Code:    code,
		Message: message,
		Kind:    kind,
	}
}

// Wrap оборачивает обычную ошибку в BotError
func Wrap(err error, code, message string) *BotError {
	return &BotError{
		Code:    code,
		Message: message,
		Kind:    KindInternal,
		Err:     err,
	}
}

// IsBotError проверяет, является ли ошибка BotError
func IsBotError(err error) bool {
	_, ok := GetBotError(err)
	return ok
}

// GetBotError извлекает BotError из цепочки ошибок
func GetBotError(err error) (*BotError, bool) {
	var botErr *BotError
	if stderrors.As(err, &botErr) {
		return botErr, true
	}
	return nil, false
}

// KindOf возвращает категорию ошибки; всё, что не BotError, считается внутренней ошибкой
func KindOf(err error) Kind {
	if botErr, ok := GetBotError(err); ok && botErr.Kind != "" {
		return botErr.Kind
	}
	return KindInternal
}

func IsValidation(err error) bool { return err != nil && KindOf(err) == KindValidation }

func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

func IsConflict(err error) bool { return err != nil && KindOf(err) == KindConflict }

// Is и As реэкспортированы, чтобы пакетам не приходилось импортировать два errors
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

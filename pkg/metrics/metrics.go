package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики бота и движка бронирований
var (
	// Общие метрики
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pnplive_bot_requests_total",
			Help: "Общее количество обработанных обновлений Telegram",
		},
		[]string{"handler", "status"},
	)

	// Метрики окон доступности
	WindowsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pnplive_windows_created_total",
			Help: "Общее количество созданных окон доступности",
		},
	)

	WindowsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pnplive_windows_released_total",
			Help: "Освобожденные окна доступности",
		},
		[]string{"source"}, // cancel, refund, reconcile
	)

	// Метрики бронирований
	BookingsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pnplive_bookings_created_total",
			Help: "Общее количество созданных бронирований",
		},
		[]string{"duration"},
	)

	BookingConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pnplive_booking_conflicts_total",
			Help: "Отклоненные попытки бронирования",
		},
		[]string{"reason"},
	)

	BookingsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pnplive_bookings_cancelled_total",
			Help: "Общее количество отмененных бронирований",
		},
		[]string{"refunded"},
	)

	BookingsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pnplive_bookings_completed_total",
			Help: "Общее количество завершенных бронирований",
		},
	)

	// Метрики возвратов
	RefundRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pnplive_refund_requests_total",
			Help: "Запросы на возврат от пользователей",
		},
	)

	RefundsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pnplive_refunds_processed_total",
			Help: "Обработанные запросы на возврат",
		},
		[]string{"decision"},
	)

	// Метрики фоновых задач
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pnplive_job_runs_total",
			Help: "Запуски фоновых задач",
		},
		[]string{"job", "status"},
	)

	JobRowFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pnplive_job_row_failures_total",
			Help: "Строки, пропущенные фоновой задачей из-за ошибки",
		},
		[]string{"job"},
	)

	// Метрики уведомлений
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pnplive_notifications_sent_total",
			Help: "Общее количество отправленных уведомлений",
		},
		[]string{"type", "status"},
	)

	PendingReminders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pnplive_pending_reminders",
			Help: "Количество запланированных напоминаний",
		},
	)

	// Метрики webhook оплаты
	PaymentWebhooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pnplive_payment_webhooks_total",
			Help: "Входящие уведомления платежного шлюза",
		},
		[]string{"payment_status", "result"},
	)

	// Метрики производительности
	MemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pnplive_memory_usage_bytes",
			Help: "Использование памяти в байтах",
		},
	)

	GoroutinesCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pnplive_goroutines_count",
			Help: "Количество активных горутин",
		},
	)

	// Метрики ошибок
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pnplive_errors_total",
			Help: "Общее количество ошибок",
		},
		[]string{"component", "error_type"},
	)

	// Метрики HTTP сервера
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pnplive_http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pnplive_http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordRequest записывает метрику обработки обновления
func RecordRequest(handler, status string) {
	RequestsTotal.WithLabelValues(handler, status).Inc()
}

// RecordBookingCreated записывает метрику создания бронирования
func RecordBookingCreated(duration string) {
	BookingsCreated.WithLabelValues(duration).Inc()
}

// RecordBookingConflict записывает отклоненную попытку бронирования
func RecordBookingConflict(reason string) {
	BookingConflicts.WithLabelValues(reason).Inc()
}

// RecordBookingCancelled записывает метрику отмены
func RecordBookingCancelled(refunded bool) {
	label := "false"
	if refunded {
		label = "true"
	}
	BookingsCancelled.WithLabelValues(label).Inc()
}

// RecordWindowReleased записывает освобождение окна
func RecordWindowReleased(source string) {
	WindowsReleased.WithLabelValues(source).Inc()
}

// RecordJobRun записывает запуск фоновой задачи
func RecordJobRun(job, status string) {
	JobRuns.WithLabelValues(job, status).Inc()
}

// RecordNotification записывает метрику отправки уведомления
func RecordNotification(notificationType, status string) {
	NotificationsSent.WithLabelValues(notificationType, status).Inc()
}

// RecordError записывает метрику ошибки
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordHTTPRequest записывает метрику HTTP запроса
func RecordHTTPRequest(method, endpoint, status string) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}

// SetPendingReminders устанавливает количество запланированных напоминаний
func SetPendingReminders(count float64) {
	PendingReminders.Set(count)
}

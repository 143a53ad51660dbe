package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/region23/pnplive/internal/storage"
	"github.com/region23/pnplive/internal/storage/models"
	apperrors "github.com/region23/pnplive/pkg/errors"
)

const bookingColumns = `id, requester_id, provider_id, window_id, duration_minutes, price_usd, product, scheduled_start,
	payment_method, status, payment_status, transaction_ref, video_room, cancel_reason,
	created_at, updated_at, completed_at, cancelled_at`

// CreateBooking сохраняет бронирование, если у пользователя нет другого активного на то же время
func (s *SQLiteStorage) CreateBooking(ctx context.Context, b *models.Booking) error {
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertBooking(ctx, tx, b, now)
	})
}

// ReserveWindow атомарно занимает окно и создает бронирование на его начало.
// Модель и время начала берутся из окна; окно, начавшееся не позже at, недоступно.
// При любой ошибке не меняется ни окно, ни таблица бронирований
func (s *SQLiteStorage) ReserveWindow(ctx context.Context, b *models.Booking, windowID int64, at time.Time) error {
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		w, err := getWindow(ctx, tx, windowID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return apperrors.ErrWindowUnavailable.WithContext(map[string]int64{"window_id": windowID})
			}
			return err
		}
		if !w.Start.After(at) {
			return apperrors.ErrWindowUnavailable.WithContext(map[string]any{"window_id": windowID, "start": w.Start})
		}
		if w.Booked {
			return apperrors.ErrWindowAlreadyBooked.WithContext(map[string]int64{"window_id": windowID})
		}
		if !w.Fits(b.DurationMinutes) {
			return apperrors.ErrWindowTooShort
		}

		var active int
		err = tx.QueryRowContext(ctx, `SELECT is_active FROM providers WHERE id = ?`, w.ProviderID).Scan(&active)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && active == 0) {
			return apperrors.ErrProviderNotFound.WithContext(map[string]int64{"provider_id": w.ProviderID})
		}
		if err != nil {
			return fmt.Errorf("failed to check provider: %w", err)
		}

		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if err := markWindowBooked(ctx, tx, windowID, b.ID, now); err != nil {
			return err
		}

		b.ProviderID = w.ProviderID
		b.ScheduledStart = w.Start
		b.WindowID = &windowID
		return insertBooking(ctx, tx, b, now)
	})
}

func insertBooking(ctx context.Context, tx *sql.Tx, b *models.Booking, now time.Time) error {
	var existing int
	query := `SELECT COUNT(*) FROM bookings
			  WHERE requester_id = ? AND scheduled_start = ? AND status <> 'cancelled'`
	if err := tx.QueryRowContext(ctx, query, b.RequesterID, toUnix(b.ScheduledStart)).Scan(&existing); err != nil {
		return fmt.Errorf("failed to check double booking: %w", err)
	}
	if existing > 0 {
		return apperrors.ErrDoubleBooking.WithContext(map[string]any{
			"requester_id":    b.RequesterID,
			"scheduled_start": b.ScheduledStart,
		})
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = models.BookingPending
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = models.PaymentPending
	}
	if b.Product == "" {
		b.Product = models.ProductPNPLive
	}
	b.CreatedAt = now.UTC().Truncate(time.Second)
	b.UpdatedAt = b.CreatedAt
	b.ScheduledStart = b.ScheduledStart.UTC().Truncate(time.Second)

	var windowID sql.NullInt64
	if b.WindowID != nil {
		windowID = sql.NullInt64{Int64: *b.WindowID, Valid: true}
	}

	query = `INSERT INTO bookings (id, requester_id, provider_id, window_id, duration_minutes, price_usd,
				product, scheduled_start, payment_method, status, payment_status, transaction_ref, video_room,
				created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, query,
		b.ID, b.RequesterID, b.ProviderID, windowID, b.DurationMinutes, b.PriceUSD, b.Product,
		toUnix(b.ScheduledStart), b.PaymentMethod, string(b.Status), string(b.PaymentStatus),
		b.TransactionRef, b.VideoRoom, toUnix(b.CreatedAt), toUnix(b.UpdatedAt))
	if err != nil {
		// Частичный уникальный индекс ловит гонку двух транзакций, прошедших проверку выше
		if isUniqueViolation(err) {
			return apperrors.ErrDoubleBooking.WithError(err)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	return nil
}

// GetBooking получает бронирование по ID
func (s *SQLiteStorage) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(ctx, s.db, id)
}

func getBooking(ctx context.Context, q queryer, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`

	b, err := scanBooking(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrBookingNotFound.WithContext(map[string]string{"booking_id": id})
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// ListBookings возвращает бронирования по фильтру, отсортированные по времени начала
func (s *SQLiteStorage) ListBookings(ctx context.Context, f storage.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []any
	)

	if f.RequesterID != nil {
		where = append(where, `requester_id = ?`)
		args = append(args, *f.RequesterID)
	}
	if f.ProviderID != nil {
		where = append(where, `provider_id = ?`)
		args = append(args, *f.ProviderID)
	}
	if len(f.Statuses) > 0 {
		where = append(where, `status IN (`+placeholders(len(f.Statuses))+`)`)
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	if len(f.PaymentStatus) > 0 {
		where = append(where, `payment_status IN (`+placeholders(len(f.PaymentStatus))+`)`)
		for _, st := range f.PaymentStatus {
			args = append(args, string(st))
		}
	}
	if f.StartFrom != nil {
		where = append(where, `scheduled_start >= ?`)
		args = append(args, toUnix(*f.StartFrom))
	}
	if f.StartTo != nil {
		where = append(where, `scheduled_start < ?`)
		args = append(args, toUnix(*f.StartTo))
	}
	if f.EndBefore != nil {
		where = append(where, `scheduled_start + duration_minutes * 60 < ?`)
		args = append(args, toUnix(*f.EndBefore))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY scheduled_start, created_at`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}

	return bookings, rows.Err()
}

// UpdateBookingStatus заменяет статус бронирования без проверки переходов
func (s *SQLiteStorage) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) error {
	if !status.Valid() {
		return apperrors.ErrInvalidStatus
	}

	query := `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, string(status), toUnix(s.now()), id)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDoubleBooking.WithError(err)
		}
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return expectRow(result, apperrors.ErrBookingNotFound)
}

// UpdatePaymentStatus заменяет статус оплаты; пустой transactionRef оставляет прежнюю ссылку
func (s *SQLiteStorage) UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus, transactionRef string) error {
	if !status.Valid() {
		return apperrors.ErrInvalidPaymentStatus
	}

	query := `UPDATE bookings SET payment_status = ?,
				transaction_ref = CASE WHEN ? = '' THEN transaction_ref ELSE ? END,
				updated_at = ?
			  WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, string(status), transactionRef, transactionRef, toUnix(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return expectRow(result, apperrors.ErrBookingNotFound)
}

// ConfirmPayment помечает бронирование оплаченным и переводит pending в confirmed.
// Возвращает true, если статус бронирования изменился в этом вызове. Оплата отмененного
// или возвращенного бронирования отклоняется, и бронирование не меняется
func (s *SQLiteStorage) ConfirmPayment(ctx context.Context, id string, transactionRef string) (bool, error) {
	now := toUnix(s.now())
	confirmed := false

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		b, err := getBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if b.Status == models.BookingCancelled || b.Status == models.BookingRefunded {
			return apperrors.ErrBookingCancelled.WithContext(map[string]string{
				"booking_id":     id,
				"payment_status": string(b.PaymentStatus),
			})
		}

		query := `UPDATE bookings SET payment_status = 'paid',
					transaction_ref = CASE WHEN ? = '' THEN transaction_ref ELSE ? END,
					updated_at = ?
				  WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, transactionRef, transactionRef, now, id); err != nil {
			return fmt.Errorf("failed to mark booking paid: %w", err)
		}

		query = `UPDATE bookings SET status = 'confirmed', updated_at = ? WHERE id = ? AND status = 'pending'`
		result, err := tx.ExecContext(ctx, query, now, id)
		if err != nil {
			return fmt.Errorf("failed to confirm booking: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		confirmed = n == 1
		return nil
	})

	return confirmed, err
}

// CancelBooking отменяет бронирование, если оно не отменено и не завершено.
// Ожидающий запрос на возврат закрывается в той же транзакции
func (s *SQLiteStorage) CancelBooking(ctx context.Context, p storage.CancelParams) error {
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE bookings SET status = 'cancelled', cancel_reason = ?, cancelled_at = ?, updated_at = ?,
					payment_status = CASE WHEN payment_status = ? THEN ? ELSE payment_status END
				  WHERE id = ? AND status NOT IN ('cancelled', 'completed')`
		result, err := tx.ExecContext(ctx, query, p.Reason, toUnix(now), toUnix(now),
			string(p.PaymentFrom), string(p.PaymentTo), p.BookingID)
		if err != nil {
			return fmt.Errorf("failed to cancel booking: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rowsAffected == 0 {
			b, err := getBooking(ctx, tx, p.BookingID)
			if err != nil {
				return err
			}
			if b.Status == models.BookingCompleted {
				return apperrors.ErrBookingCompleted
			}
			return apperrors.ErrBookingCancelled
		}

		return settleOpenRefund(ctx, tx, p.BookingID, p.Refund, now)
	})
}

// CompleteBooking завершает оплаченное и не отмененное бронирование; повторный вызов ничего не меняет.
// Неоплаченное бронирование отклоняется раньше проверки статуса
func (s *SQLiteStorage) CompleteBooking(ctx context.Context, id string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE bookings SET status = 'completed', completed_at = ?, updated_at = ?
				  WHERE id = ? AND status NOT IN ('cancelled', 'completed') AND payment_status = 'paid'`
		result, err := tx.ExecContext(ctx, query, toUnix(at), toUnix(s.now()), id)
		if err != nil {
			return fmt.Errorf("failed to complete booking: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rowsAffected == 1 {
			return nil
		}

		b, err := getBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		switch {
		case b.PaymentStatus != models.PaymentPaid:
			return apperrors.ErrBookingNotPaid
		case b.Status == models.BookingCancelled:
			return apperrors.ErrBookingCancelled
		case b.Status == models.BookingCompleted:
			return nil
		}
		return fmt.Errorf("booking %s was not completed", id)
	})
}

// AttachVideoRoom сохраняет описание видеокомнаты, выданное внешним сервисом
func (s *SQLiteStorage) AttachVideoRoom(ctx context.Context, id, room string) error {
	query := `UPDATE bookings SET video_room = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, room, toUnix(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to attach video room: %w", err)
	}
	return expectRow(result, apperrors.ErrBookingNotFound)
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                        models.Booking
		windowID                 sql.NullInt64
		start                    int64
		status, paymentStatus    string
		createdAt, updatedAt     int64
		completedAt, cancelledAt sql.NullInt64
	)
	err := row.Scan(&b.ID, &b.RequesterID, &b.ProviderID, &windowID, &b.DurationMinutes, &b.PriceUSD, &b.Product, &start,
		&b.PaymentMethod, &status, &paymentStatus, &b.TransactionRef, &b.VideoRoom, &b.CancelReason,
		&createdAt, &updatedAt, &completedAt, &cancelledAt)
	if err != nil {
		return nil, err
	}

	if windowID.Valid {
		id := windowID.Int64
		b.WindowID = &id
	}
	b.ScheduledStart = fromUnix(start)
	b.Status = models.BookingStatus(status)
	b.PaymentStatus = models.PaymentStatus(paymentStatus)
	b.CreatedAt = fromUnix(createdAt)
	b.UpdatedAt = fromUnix(updatedAt)
	b.CompletedAt = fromNullUnix(completedAt)
	b.CancelledAt = fromNullUnix(cancelledAt)
	return &b, nil
}

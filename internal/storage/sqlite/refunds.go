package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/region23/pnplive/internal/storage/models"
	apperrors "github.com/region23/pnplive/pkg/errors"
)

const refundColumns = `id, booking_id, requester_id, amount_usd, reason, status, processed_by, processed_at, created_at`

// CreateRefundRequest сохраняет запрос на возврат
func (s *SQLiteStorage) CreateRefundRequest(ctx context.Context, r *models.RefundRequest) error {
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertRefundRequest(ctx, tx, r, now)
	})
}

func insertRefundRequest(ctx context.Context, tx *sql.Tx, r *models.RefundRequest, now time.Time) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = models.RefundPending
	}
	r.CreatedAt = now.UTC().Truncate(time.Second)

	query := `INSERT INTO refund_requests (id, booking_id, requester_id, amount_usd, reason, status,
				processed_by, processed_at, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, query, r.ID, r.BookingID, r.RequesterID, r.AmountUSD, r.Reason,
		string(r.Status), r.ProcessedBy, nullableUnix(r.ProcessedAt), toUnix(r.CreatedAt))
	if err != nil {
		// На бронирование допускается один неотклоненный запрос
		if isUniqueViolation(err) {
			return apperrors.ErrRefundAlreadyRequested.WithError(err).
				WithContext(map[string]string{"booking_id": r.BookingID})
		}
		return fmt.Errorf("failed to create refund request: %w", err)
	}
	return nil
}

// settleOpenRefund закрывает ожидающий запрос по бронированию при его отмене.
// С записью о возврате ожидающий запрос становится этой записью, без нее отклоняется
func settleOpenRefund(ctx context.Context, tx *sql.Tx, bookingID string, refund *models.RefundRequest, now time.Time) error {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM refund_requests WHERE booking_id = ? AND status = 'pending'`, bookingID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		if refund == nil {
			return nil
		}
		return insertRefundRequest(ctx, tx, refund, now)
	}
	if err != nil {
		return fmt.Errorf("failed to find open refund request: %w", err)
	}

	status, processedBy, processedAt := models.RefundRejected, "system", now
	if refund != nil {
		status, processedBy = refund.Status, refund.ProcessedBy
		if refund.ProcessedAt != nil {
			processedAt = *refund.ProcessedAt
		}
	}

	query := `UPDATE refund_requests SET status = ?, processed_by = ?, processed_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, string(status), processedBy, toUnix(processedAt), id); err != nil {
		return fmt.Errorf("failed to settle refund request: %w", err)
	}
	if refund != nil {
		refund.ID = id
	}
	return nil
}

// GetRefundRequest получает запрос на возврат по ID
func (s *SQLiteStorage) GetRefundRequest(ctx context.Context, id string) (*models.RefundRequest, error) {
	return getRefundRequest(ctx, s.db, id)
}

func getRefundRequest(ctx context.Context, q queryer, id string) (*models.RefundRequest, error) {
	query := `SELECT ` + refundColumns + ` FROM refund_requests WHERE id = ?`

	r, err := scanRefund(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrRefundNotFound.WithContext(map[string]string{"refund_id": id})
		}
		return nil, fmt.Errorf("failed to get refund request: %w", err)
	}
	return r, nil
}

// ListRefundRequests возвращает запросы с указанным статусом, старые первыми; пустой статус - все
func (s *SQLiteStorage) ListRefundRequests(ctx context.Context, status models.RefundStatus) ([]*models.RefundRequest, error) {
	query := `SELECT ` + refundColumns + ` FROM refund_requests`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list refund requests: %w", err)
	}
	defer rows.Close()

	var refunds []*models.RefundRequest
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refund request: %w", err)
		}
		refunds = append(refunds, r)
	}

	return refunds, rows.Err()
}

// ProcessRefundRequest фиксирует решение по запросу. Одобрение в той же транзакции
// отменяет бронирование и помечает оплату возвращенной; для уже отмененного или возвращенного
// бронирования одобрение отклоняется
func (s *SQLiteStorage) ProcessRefundRequest(ctx context.Context, id string, status models.RefundStatus, processedBy string, at time.Time) error {
	if status != models.RefundApproved && status != models.RefundRejected {
		return apperrors.ErrInvalidRefundDecision
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := getRefundRequest(ctx, tx, id)
		if err != nil {
			return err
		}

		if status == models.RefundApproved && r.Status == models.RefundPending {
			b, err := getBooking(ctx, tx, r.BookingID)
			if err != nil {
				return err
			}
			if b.Status == models.BookingCancelled || b.Status == models.BookingRefunded ||
				b.PaymentStatus == models.PaymentRefunded {
				return apperrors.ErrBookingCancelled.WithContext(map[string]string{
					"refund_id":  id,
					"booking_id": b.ID,
				})
			}
		}

		query := `UPDATE refund_requests SET status = ?, processed_by = ?, processed_at = ?
				  WHERE id = ? AND status = 'pending'`
		result, err := tx.ExecContext(ctx, query, string(status), processedBy, toUnix(at), id)
		if err != nil {
			return fmt.Errorf("failed to process refund request: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rowsAffected == 0 {
			return apperrors.ErrRefundAlreadyProcessed.WithContext(map[string]string{"refund_id": id})
		}

		if status != models.RefundApproved {
			return nil
		}

		query = `UPDATE bookings SET status = 'cancelled', payment_status = 'refunded',
					cancelled_at = COALESCE(cancelled_at, ?), updated_at = ?
				  WHERE id = ?`
		result, err = tx.ExecContext(ctx, query, toUnix(at), toUnix(s.now()), r.BookingID)
		if err != nil {
			return fmt.Errorf("failed to refund booking: %w", err)
		}
		return expectRow(result, apperrors.ErrBookingNotFound)
	})
}

func scanRefund(row rowScanner) (*models.RefundRequest, error) {
	var (
		r           models.RefundRequest
		status      string
		processedAt sql.NullInt64
		createdAt   int64
	)
	err := row.Scan(&r.ID, &r.BookingID, &r.RequesterID, &r.AmountUSD, &r.Reason, &status,
		&r.ProcessedBy, &processedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	r.Status = models.RefundStatus(status)
	r.ProcessedAt = fromNullUnix(processedAt)
	r.CreatedAt = fromUnix(createdAt)
	return &r, nil
}

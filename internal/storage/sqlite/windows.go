package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/region23/pnplive/internal/storage/models"
	apperrors "github.com/region23/pnplive/pkg/errors"
)

const windowColumns = `id, provider_id, start_at, end_at, booked, booking_id, created_at, updated_at`

// CreateWindow создает свободное окно; без allowOverlap пересечение с окнами той же модели запрещено
func (s *SQLiteStorage) CreateWindow(ctx context.Context, w *models.AvailabilityWindow, allowOverlap bool) error {
	if !w.Start.Before(w.End) {
		return apperrors.ErrInvalidTimeRange
	}

	now := s.now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM providers WHERE id = ?`, w.ProviderID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check provider: %w", err)
		}
		if exists == 0 {
			return apperrors.ErrProviderNotFound.WithContext(map[string]int64{"provider_id": w.ProviderID})
		}

		if !allowOverlap {
			var overlapping int
			query := `SELECT COUNT(*) FROM availability_windows
					  WHERE provider_id = ? AND start_at < ? AND end_at > ?`
			if err := tx.QueryRowContext(ctx, query, w.ProviderID, toUnix(w.End), toUnix(w.Start)).Scan(&overlapping); err != nil {
				return fmt.Errorf("failed to check window overlap: %w", err)
			}
			if overlapping > 0 {
				return apperrors.ErrWindowOverlap
			}
		}

		query := `INSERT INTO availability_windows (provider_id, start_at, end_at, booked, created_at, updated_at)
				  VALUES (?, ?, ?, 0, ?, ?)`
		result, err := tx.ExecContext(ctx, query, w.ProviderID, toUnix(w.Start), toUnix(w.End), toUnix(now), toUnix(now))
		if err != nil {
			return fmt.Errorf("failed to create window: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get window ID: %w", err)
		}

		w.ID = id
		w.Booked = false
		w.BookingID = nil
		w.CreatedAt = now.Truncate(time.Second)
		w.UpdatedAt = w.CreatedAt
		return nil
	})
}

// GetWindow получает окно по ID
func (s *SQLiteStorage) GetWindow(ctx context.Context, id int64) (*models.AvailabilityWindow, error) {
	return getWindow(ctx, s.db, id)
}

func getWindow(ctx context.Context, q queryer, id int64) (*models.AvailabilityWindow, error) {
	query := `SELECT ` + windowColumns + ` FROM availability_windows WHERE id = ?`

	w, err := scanWindow(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrWindowNotFound.WithContext(map[string]int64{"window_id": id})
		}
		return nil, fmt.Errorf("failed to get window: %w", err)
	}
	return w, nil
}

// ListWindows возвращает все окна модели по возрастанию начала, включая забронированные
func (s *SQLiteStorage) ListWindows(ctx context.Context, providerID int64) ([]*models.AvailabilityWindow, error) {
	query := `SELECT ` + windowColumns + ` FROM availability_windows
			  WHERE provider_id = ? ORDER BY start_at, id`

	return s.queryWindows(ctx, query, providerID)
}

// ListOpenWindows возвращает свободные окна, пересекающиеся с [from, to)
func (s *SQLiteStorage) ListOpenWindows(ctx context.Context, providerID int64, from, to time.Time) ([]*models.AvailabilityWindow, error) {
	query := `SELECT ` + windowColumns + ` FROM availability_windows
			  WHERE provider_id = ? AND booked = 0 AND start_at < ? AND end_at > ?
			  ORDER BY start_at, id`

	return s.queryWindows(ctx, query, providerID, toUnix(to), toUnix(from))
}

// MarkWindowBooked бронирует окно только если оно сейчас свободно и привязывает его к бронированию
func (s *SQLiteStorage) MarkWindowBooked(ctx context.Context, windowID int64, bookingID string) error {
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := markWindowBooked(ctx, tx, windowID, bookingID, now); err != nil {
			return err
		}

		query := `UPDATE bookings SET window_id = ?, updated_at = ? WHERE id = ? AND window_id IS NULL`
		if _, err := tx.ExecContext(ctx, query, windowID, toUnix(now), bookingID); err != nil {
			return fmt.Errorf("failed to link booking to window: %w", err)
		}
		return nil
	})
}

func markWindowBooked(ctx context.Context, q queryer, windowID int64, bookingID string, now time.Time) error {
	query := `UPDATE availability_windows SET booked = 1, booking_id = ?, updated_at = ?
			  WHERE id = ? AND booked = 0`

	result, err := q.ExecContext(ctx, query, bookingID, toUnix(now), windowID)
	if err != nil {
		return fmt.Errorf("failed to mark window booked: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	// Окно либо занято, либо отсутствует; оба случая - конфликт для вызывающего
	if _, err := getWindow(ctx, q, windowID); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.ErrWindowUnavailable.WithContext(map[string]int64{"window_id": windowID})
		}
		return err
	}
	return apperrors.ErrWindowAlreadyBooked.WithContext(map[string]int64{"window_id": windowID})
}

// ReleaseWindow освобождает окно; отсутствующее или свободное окно не считается ошибкой
func (s *SQLiteStorage) ReleaseWindow(ctx context.Context, windowID int64) error {
	return releaseWindow(ctx, s.db, windowID, s.now())
}

func releaseWindow(ctx context.Context, q queryer, windowID int64, now time.Time) error {
	query := `UPDATE availability_windows SET booked = 0, booking_id = NULL, updated_at = ?
			  WHERE id = ? AND booked = 1`

	if _, err := q.ExecContext(ctx, query, toUnix(now), windowID); err != nil {
		return fmt.Errorf("failed to release window: %w", err)
	}
	return nil
}

// ReleaseBookingWindows освобождает все окна, занятые бронированием
func (s *SQLiteStorage) ReleaseBookingWindows(ctx context.Context, bookingID string) (int64, error) {
	query := `UPDATE availability_windows SET booked = 0, booking_id = NULL, updated_at = ?
			  WHERE booking_id = ? AND booked = 1`

	result, err := s.db.ExecContext(ctx, query, toUnix(s.now()), bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to release booking windows: %w", err)
	}
	return result.RowsAffected()
}

// DeleteWindow удаляет свободное окно
func (s *SQLiteStorage) DeleteWindow(ctx context.Context, windowID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM availability_windows WHERE id = ? AND booked = 0`, windowID)
		if err != nil {
			return fmt.Errorf("failed to delete window: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rowsAffected == 1 {
			return nil
		}

		if _, err := getWindow(ctx, tx, windowID); err != nil {
			return err
		}
		return apperrors.ErrWindowAlreadyBooked.WithContext(map[string]int64{"window_id": windowID})
	})
}

// ListOrphanedWindows возвращает занятые окна, чье бронирование отменено, возвращено или отсутствует
func (s *SQLiteStorage) ListOrphanedWindows(ctx context.Context) ([]*models.AvailabilityWindow, error) {
	query := `SELECT w.id, w.provider_id, w.start_at, w.end_at, w.booked, w.booking_id, w.created_at, w.updated_at
			  FROM availability_windows w
			  LEFT JOIN bookings b ON b.id = w.booking_id
			  WHERE w.booked = 1 AND (b.id IS NULL OR b.status IN ('cancelled', 'refunded'))
			  ORDER BY w.start_at, w.id`

	return s.queryWindows(ctx, query)
}

func (s *SQLiteStorage) queryWindows(ctx context.Context, query string, args ...any) ([]*models.AvailabilityWindow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	defer rows.Close()

	var windows []*models.AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan window: %w", err)
		}
		windows = append(windows, w)
	}

	return windows, rows.Err()
}

func scanWindow(row rowScanner) (*models.AvailabilityWindow, error) {
	var (
		w                    models.AvailabilityWindow
		start, end           int64
		booked               int
		bookingID            sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&w.ID, &w.ProviderID, &start, &end, &booked, &bookingID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	w.Start = fromUnix(start)
	w.End = fromUnix(end)
	w.Booked = booked == 1
	if bookingID.Valid {
		id := bookingID.String
		w.BookingID = &id
	}
	w.CreatedAt = fromUnix(createdAt)
	w.UpdatedAt = fromUnix(updatedAt)
	return &w, nil
}

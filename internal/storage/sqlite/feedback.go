package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/region23/pnplive/internal/storage/models"
	apperrors "github.com/region23/pnplive/pkg/errors"
)

// CreateFeedback сохраняет отзыв; на одно бронирование допускается один отзыв
func (s *SQLiteStorage) CreateFeedback(ctx context.Context, f *models.Feedback) error {
	if f.Rating < 1 || f.Rating > 5 {
		return apperrors.ErrInvalidRating
	}

	now := s.now().UTC().Truncate(time.Second)
	query := `INSERT INTO feedback (booking_id, requester_id, provider_id, rating, comments, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query, f.BookingID, f.RequesterID, f.ProviderID, f.Rating, f.Comments, toUnix(now))
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrFeedbackExists
		}
		return fmt.Errorf("failed to create feedback: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get feedback ID: %w", err)
	}

	f.ID = id
	f.CreatedAt = now
	return nil
}

// ProviderRating возвращает среднюю оценку модели и количество отзывов
func (s *SQLiteStorage) ProviderRating(ctx context.Context, providerID int64) (float64, int, error) {
	var (
		avg   sql.NullFloat64
		count int
	)
	query := `SELECT AVG(rating), COUNT(*) FROM feedback WHERE provider_id = ?`

	if err := s.db.QueryRowContext(ctx, query, providerID).Scan(&avg, &count); err != nil {
		return 0, 0, fmt.Errorf("failed to get provider rating: %w", err)
	}
	return avg.Float64, count, nil
}

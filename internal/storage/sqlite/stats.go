package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/region23/pnplive/internal/storage/models"
)

// BookingStatistics считает бронирования и выручку по сессиям, начинающимся в [from, to)
func (s *SQLiteStorage) BookingStatistics(ctx context.Context, from, to time.Time) (*models.Statistics, error) {
	query := `SELECT
				COUNT(*),
				COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status = 'confirmed' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(price_usd), 0),
				COALESCE(SUM(CASE WHEN payment_status = 'paid' THEN price_usd ELSE 0 END), 0)
			  FROM bookings
			  WHERE scheduled_start >= ? AND scheduled_start < ?`

	var st models.Statistics
	err := s.db.QueryRowContext(ctx, query, toUnix(from), toUnix(to)).Scan(
		&st.TotalBookings, &st.PendingBookings, &st.ConfirmedBookings, &st.CompletedBookings,
		&st.CancelledBookings, &st.TotalRevenueUSD, &st.PaidRevenueUSD,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking statistics: %w", err)
	}
	return &st, nil
}

// RevenueByProvider возвращает оплаченную выручку по моделям, по убыванию выручки
func (s *SQLiteStorage) RevenueByProvider(ctx context.Context, from, to time.Time) ([]*models.ProviderRevenue, error) {
	query := `SELECT p.id, p.name, COUNT(b.id),
				COALESCE(SUM(CASE WHEN b.payment_status = 'paid' THEN b.price_usd ELSE 0 END), 0) AS revenue
			  FROM providers p
			  JOIN bookings b ON b.provider_id = p.id
			  WHERE b.scheduled_start >= ? AND b.scheduled_start < ?
			  GROUP BY p.id, p.name
			  ORDER BY revenue DESC, p.id`

	rows, err := s.db.QueryContext(ctx, query, toUnix(from), toUnix(to))
	if err != nil {
		return nil, fmt.Errorf("failed to get revenue by provider: %w", err)
	}
	defer rows.Close()

	var result []*models.ProviderRevenue
	for rows.Next() {
		r := &models.ProviderRevenue{}
		if err := rows.Scan(&r.ProviderID, &r.Name, &r.Bookings, &r.PaidRevenueUSD); err != nil {
			return nil, fmt.Errorf("failed to scan provider revenue: %w", err)
		}
		result = append(result, r)
	}

	return result, rows.Err()
}

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

const providerColumns = `id, name, username, bio, is_active, is_online, last_online, created_at, updated_at`

// CreateProvider сохраняет новую модель
func (s *SQLiteStorage) CreateProvider(ctx context.Context, p *models.Provider) error {
	now := s.now().UTC()
	query := `INSERT INTO providers (name, username, bio, is_active, is_online, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		p.Name, p.Username, p.Bio, boolToInt(p.IsActive), boolToInt(p.IsOnline), toUnix(now), toUnix(now))
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get provider ID: %w", err)
	}

	p.ID = id
	p.CreatedAt = now.Truncate(time.Second)
	p.UpdatedAt = p.CreatedAt
	return nil
}

// GetProvider получает модель по ID
func (s *SQLiteStorage) GetProvider(ctx context.Context, id int64) (*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = ?`

	p, err := scanProvider(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrProviderNotFound.WithContext(map[string]int64{"provider_id": id})
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return p, nil
}

// ListProviders возвращает модели, отсортированные по имени
func (s *SQLiteStorage) ListProviders(ctx context.Context, activeOnly bool) ([]*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, p)
	}

	return providers, rows.Err()
}

// SetProviderActive включает или выключает модель (мягкое удаление)
func (s *SQLiteStorage) SetProviderActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE providers SET is_active = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, boolToInt(active), toUnix(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	return expectRow(result, apperrors.ErrProviderNotFound)
}

// SetProviderOnline обновляет онлайн-статус модели; время активности пишется только при переходе в онлайн
func (s *SQLiteStorage) SetProviderOnline(ctx context.Context, id int64, online bool, at time.Time) error {
	query := `UPDATE providers SET is_online = ?, updated_at = ?`
	args := []any{boolToInt(online), toUnix(s.now())}
	if online {
		query += `, last_online = ?`
		args = append(args, toUnix(at))
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update provider online status: %w", err)
	}
	return expectRow(result, apperrors.ErrProviderNotFound)
}

// MarkStaleProvidersOffline переводит в офлайн модели без активности с указанного момента
func (s *SQLiteStorage) MarkStaleProvidersOffline(ctx context.Context, lastSeenBefore time.Time) (int64, error) {
	query := `UPDATE providers SET is_online = 0, updated_at = ?
			  WHERE is_online = 1 AND (last_online IS NULL OR last_online < ?)`

	result, err := s.db.ExecContext(ctx, query, toUnix(s.now()), toUnix(lastSeenBefore))
	if err != nil {
		return 0, fmt.Errorf("failed to mark providers offline: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (*models.Provider, error) {
	var (
		p                    models.Provider
		active, online       int
		lastOnline           sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Username, &p.Bio, &active, &online, &lastOnline, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.IsActive = active == 1
	p.IsOnline = online == 1
	p.LastOnline = fromNullUnix(lastOnline)
	p.CreatedAt = fromUnix(createdAt)
	p.UpdatedAt = fromUnix(updatedAt)
	return &p, nil
}

// expectRow возвращает notFound, если запрос не затронул ни одной строки
func expectRow(result sql.Result, notFound *apperrors.BotError) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

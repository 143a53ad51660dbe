package booking

import (
	"context"
	"strings"
	"time"

	"github.com/region23/pnplive/internal/storage"
	"github.com/region23/pnplive/internal/storage/models"
	"github.com/region23/pnplive/internal/validation"
	apperrors "github.com/region23/pnplive/pkg/errors"
	"github.com/region23/pnplive/pkg/logger"
)

const (
	// OfflineAfter - время без активности, после которого модель считается офлайн
	OfflineAfter = 30 * time.Minute
	// OnlineBefore - модель выходит в онлайн, если оплаченная сессия начинается в пределах этого времени
	OnlineBefore = 15 * time.Minute
)

type directoryStore interface {
	storage.ProviderRepository
	storage.BookingRepository
}

// Directory - справочник моделей
type Directory struct {
	store directoryStore
	log   *logger.Logger
	now   func() time.Time
}

// Create добавляет активную модель
func (d *Directory) Create(ctx context.Context, name, username, bio string) (*models.Provider, error) {
	if err := validation.ValidateProviderName(name); err != nil {
		return nil, err
	}
	if err := validation.ValidateHandle(username); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)

	p := &models.Provider{
		Name:     name,
		Username: strings.TrimPrefix(strings.TrimSpace(username), "@"),
		Bio:      strings.TrimSpace(bio),
		IsActive: true,
	}
	if err := d.store.CreateProvider(ctx, p); err != nil {
		return nil, err
	}

	d.log.Info("Provider created", logger.Int64("provider_id", p.ID), logger.String("name", p.Name))
	return p, nil
}

// Get возвращает модель независимо от флага активности
func (d *Directory) Get(ctx context.Context, id int64) (*models.Provider, error) {
	return d.store.GetProvider(ctx, id)
}

// GetActive возвращает модель, если она активна
func (d *Directory) GetActive(ctx context.Context, id int64) (*models.Provider, error) {
	p, err := d.store.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperrors.ErrProviderNotFound.WithContext(map[string]int64{"provider_id": id})
	}
	return p, nil
}

// ListActive возвращает активные модели
func (d *Directory) ListActive(ctx context.Context) ([]*models.Provider, error) {
	return d.store.ListProviders(ctx, true)
}

// Deactivate скрывает модель; бронирования и окна остаются для истории
func (d *Directory) Deactivate(ctx context.Context, id int64) error {
	if err := d.store.SetProviderActive(ctx, id, false); err != nil {
		return err
	}
	d.log.Info("Provider deactivated", logger.Int64("provider_id", id))
	return nil
}

// SetOnline отмечает активность модели
func (d *Directory) SetOnline(ctx context.Context, id int64, online bool) error {
	return d.store.SetProviderOnline(ctx, id, online, d.now())
}

// RefreshOnlineStatus переводит в офлайн неактивных дольше OfflineAfter и включает онлайн
// моделям, у которых оплаченная сессия начинается в ближайшие OnlineBefore
func (d *Directory) RefreshOnlineStatus(ctx context.Context) (offline int, online int, err error) {
	now := d.now()

	n, err := d.store.MarkStaleProvidersOffline(ctx, now.Add(-OfflineAfter))
	if err != nil {
		return 0, 0, err
	}

	until := now.Add(OnlineBefore)
	upcoming, err := d.store.ListBookings(ctx, storage.BookingFilter{
		Statuses:      []models.BookingStatus{models.BookingConfirmed},
		PaymentStatus: []models.PaymentStatus{models.PaymentPaid},
		StartFrom:     &now,
		StartTo:       &until,
	})
	if err != nil {
		return int(n), 0, err
	}

	seen := make(map[int64]bool)
	for _, b := range upcoming {
		if seen[b.ProviderID] {
			continue
		}
		seen[b.ProviderID] = true
		if err := d.store.SetProviderOnline(ctx, b.ProviderID, true, now); err != nil {
			d.log.Warn("Failed to set provider online",
				logger.Int64("provider_id", b.ProviderID),
				logger.Error(err))
			continue
		}
		online++
	}

	return int(n), online, nil
}

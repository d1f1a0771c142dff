package service

import (
	"context"

	"stock-ledger-service/internal/availability"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GetAvailability projects per-day availability from the last committed
// snapshot. In-flight transactions are not visible; with the cache enabled a
// result may additionally be up to the cache TTL old if invalidation failed.
func (s *ledgerService) GetAvailability(ctx context.Context, productID uuid.UUID, r models.DateRange) ([]availability.Day, error) {
	r, err := s.validateRange(r)
	if err != nil {
		return nil, err
	}

	var cacheKey string
	if s.cache != nil {
		days, key, err := s.cache.Lookup(ctx, productID, r)
		if err != nil {
			s.log.Warn("Кэш доступности недоступен", zap.String("product_id", productID.String()), zap.Error(err))
		} else if days != nil {
			return days, nil
		}
		cacheKey = key
	}

	var snap availability.Snapshot
	err = s.inSnapshot(ctx, productID, func(tx *repository.Repository) error {
		st, err := loadStock(ctx, tx, productID)
		if err != nil {
			return err
		}
		items, err := tx.Items.ListByProduct(ctx, productID, nil)
		if err != nil {
			return err
		}
		active, err := tx.Assignments.ListActiveOverlapping(ctx, productID, r)
		if err != nil {
			return err
		}
		snap = availability.Snapshot{Stock: *st, Items: items, Assignments: active}
		return nil
	})
	if err != nil {
		return nil, err
	}

	days := availability.Compute(snap, r)

	if cacheKey != "" {
		if err := s.cache.Store(ctx, cacheKey, days); err != nil {
			s.log.Warn("Не удалось сохранить доступность в кэш", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return days, nil
}

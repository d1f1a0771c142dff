package repository

import (
	"context"

	"stock-ledger-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdjustmentRepo — журнал только на добавление: ни Update, ни Delete нет.
type AdjustmentRepo interface {
	Append(ctx context.Context, adj *models.StockAdjustment) error
	ListByProduct(ctx context.Context, productID uuid.UUID, limit, offset int) ([]models.StockAdjustment, int64, error)
	SumDeltas(ctx context.Context, productID uuid.UUID) (int64, error)
}

type adjustmentRepo struct{ db *gorm.DB }

func NewAdjustmentRepo(db *gorm.DB) AdjustmentRepo { return &adjustmentRepo{db: db} }

func (r *adjustmentRepo) Append(ctx context.Context, adj *models.StockAdjustment) error {
	return r.db.WithContext(ctx).Create(adj).Error
}

func (r *adjustmentRepo) ListByProduct(ctx context.Context, productID uuid.UUID, limit, offset int) ([]models.StockAdjustment, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.StockAdjustment{}).Where("product_id = ?", productID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset = NormalizePage(limit, offset)

	var list []models.StockAdjustment
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *adjustmentRepo) SumDeltas(ctx context.Context, productID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&models.StockAdjustment{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&sum).Error
	return sum, err
}

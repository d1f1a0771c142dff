package repository

import (
	"context"
	"errors"

	"stock-ledger-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ItemRepo interface {
	CreateBatch(ctx context.Context, items []models.TrackedItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.TrackedItem, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.TrackedItem, error)
	ListByProduct(ctx context.Context, productID uuid.UUID, status *models.ItemStatus) ([]models.TrackedItem, error)
	// CountOwned считает единицы, не выведенные из оборота.
	CountOwned(ctx context.Context, productID uuid.UUID) (int64, error)
	Update(ctx context.Context, it *models.TrackedItem) error
	SerialExists(ctx context.Context, serials []string) ([]string, error)
}

type itemRepo struct{ db *gorm.DB }

func NewItemRepo(db *gorm.DB) ItemRepo { return &itemRepo{db: db} }

func (r *itemRepo) CreateBatch(ctx context.Context, items []models.TrackedItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(items, 100).Error
}

func (r *itemRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.TrackedItem, error) {
	var it models.TrackedItem
	err := r.db.WithContext(ctx).First(&it, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *itemRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.TrackedItem, error) {
	if len(ids) == 0 {
		return []models.TrackedItem{}, nil
	}
	var list []models.TrackedItem
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("serial_number ASC").Find(&list).Error
	return list, err
}

func (r *itemRepo) ListByProduct(ctx context.Context, productID uuid.UUID, status *models.ItemStatus) ([]models.TrackedItem, error) {
	q := r.db.WithContext(ctx).Where("product_id = ?", productID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var list []models.TrackedItem
	err := q.Order("serial_number ASC").Find(&list).Error
	return list, err
}

func (r *itemRepo) CountOwned(ctx context.Context, productID uuid.UUID) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&models.TrackedItem{}).
		Where("product_id = ? AND status <> ?", productID, models.ItemRetired).
		Count(&cnt).Error
	return cnt, err
}

func (r *itemRepo) Update(ctx context.Context, it *models.TrackedItem) error {
	tx := r.db.WithContext(ctx).
		Model(&models.TrackedItem{}).
		Where("id = ?", it.ID).
		Updates(map[string]any{
			"status":                it.Status,
			"current_assignment_id": it.CurrentAssignmentID,
			"updated_at":            gorm.Expr("now()"),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *itemRepo) SerialExists(ctx context.Context, serials []string) ([]string, error) {
	if len(serials) == 0 {
		return nil, nil
	}
	var found []string
	err := r.db.WithContext(ctx).
		Model(&models.TrackedItem{}).
		Where("serial_number IN ?", serials).
		Pluck("serial_number", &found).Error
	return found, err
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"stock-ledger-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StockRepo interface {
	Get(ctx context.Context, productID uuid.UUID) (*models.MasterStock, error)
	// Save пишет счётчики при совпадении версии и увеличивает st.Version.
	// Несовпадение версии — ErrSerialization.
	Save(ctx context.Context, st *models.MasterStock) error
}

type stockRepo struct{ db *gorm.DB }

func NewStockRepo(db *gorm.DB) StockRepo { return &stockRepo{db: db} }

func (r *stockRepo) Get(ctx context.Context, productID uuid.UUID) (*models.MasterStock, error) {
	var st models.MasterStock
	err := r.db.WithContext(ctx).First(&st, "product_id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *stockRepo) Save(ctx context.Context, st *models.MasterStock) error {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE master_stocks
SET bulk_pool_count    = @bulk,
    tracked_item_count = @tracked,
    version            = version + 1,
    updated_at         = now()
WHERE product_id = @pid
  AND version = @version
`, map[string]any{
		"pid":     st.ProductID,
		"bulk":    st.BulkPoolCount,
		"tracked": st.TrackedItemCount,
		"version": st.Version,
	})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: master stock %s changed since version %d", ErrSerialization, st.ProductID, st.Version)
	}
	st.Version++
	return nil
}

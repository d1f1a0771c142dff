package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"stock-ledger-service/internal/availability"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *ledgerService) GetStock(ctx context.Context, productID uuid.UUID) (*models.MasterStock, error) {
	st, err := s.repo.Stocks.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrProductNotFound
	}
	return st, nil
}

func (s *ledgerService) ConvertBulkToTracked(ctx context.Context, productID uuid.UUID, n int32, reason string) (*StockResult, error) {
	if err := checkQuantity(n, s.opt.MaxBatch); err != nil {
		return nil, err
	}

	var res *StockResult
	err := s.inProductTx(ctx, "convert", productID, func(tx *repository.Repository) error {
		st, err := loadStock(ctx, tx, productID)
		if err != nil {
			return err
		}
		if n > st.BulkPoolCount {
			return fmt.Errorf("%w: requested %d, bulk pool %d", ErrInsufficientBulk, n, st.BulkPoolCount)
		}
		// конвертация уменьшает пул так же, как списание
		if err := s.checkBulkCommitments(ctx, tx, productID, st.BulkPoolCount-n); err != nil {
			return err
		}

		ids, err := s.createItems(ctx, tx, productID, n)
		if err != nil {
			return err
		}

		if err := addCounts(st, -n, n); err != nil {
			return err
		}
		adj, err := s.commitStock(ctx, tx, st, models.OpConvert, -n, n, reason, nil)
		if err != nil {
			return err
		}
		res = &StockResult{Stock: *st, Adjustment: *adj, ItemIDs: ids}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Конвертация bulk -> tracked",
		zap.String("product_id", productID.String()),
		zap.Int32("quantity", n),
		zap.Int32("bulk", res.Stock.BulkPoolCount),
		zap.Int32("tracked", res.Stock.TrackedItemCount),
	)
	s.afterCommit(ctx, productID, stockEvent(res.Adjustment, s.now()))
	return res, nil
}

func (s *ledgerService) AddTrackedStock(ctx context.Context, productID uuid.UUID, n int32, reason string) (*StockResult, error) {
	if err := checkQuantity(n, s.opt.MaxBatch); err != nil {
		return nil, err
	}

	var res *StockResult
	err := s.inProductTx(ctx, "add_tracked", productID, func(tx *repository.Repository) error {
		st, err := loadStock(ctx, tx, productID)
		if err != nil {
			return err
		}

		if err := addCounts(st, 0, n); err != nil {
			return err
		}
		ids, err := s.createItems(ctx, tx, productID, n)
		if err != nil {
			return err
		}

		adj, err := s.commitStock(ctx, tx, st, models.OpAddTracked, 0, n, reason, nil)
		if err != nil {
			return err
		}
		res = &StockResult{Stock: *st, Adjustment: *adj, ItemIDs: ids}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Добавлены tracked единицы",
		zap.String("product_id", productID.String()),
		zap.Int32("quantity", n),
		zap.Int32("tracked", res.Stock.TrackedItemCount),
	)
	s.afterCommit(ctx, productID, stockEvent(res.Adjustment, s.now()))
	return res, nil
}

func (s *ledgerService) AdjustBulkStock(ctx context.Context, productID uuid.UUID, delta int32, reason string) (*StockResult, error) {
	if delta == 0 || delta == math.MinInt32 {
		return nil, ErrInvalidQuantity
	}
	if err := checkQuantity(abs32(delta), s.opt.MaxQuantity); err != nil {
		return nil, err
	}

	op := models.OpAddBulk
	if delta < 0 {
		op = models.OpRemoveBulk
	}

	var res *StockResult
	err := s.inProductTx(ctx, strings.ToLower(string(op)), productID, func(tx *repository.Repository) error {
		st, err := loadStock(ctx, tx, productID)
		if err != nil {
			return err
		}

		if delta < 0 {
			if -delta > st.BulkPoolCount {
				return fmt.Errorf("%w: removing %d, bulk pool %d", ErrInsufficientBulk, -delta, st.BulkPoolCount)
			}
			if err := s.checkBulkCommitments(ctx, tx, productID, st.BulkPoolCount+delta); err != nil {
				return err
			}
		}

		if err := addCounts(st, delta, 0); err != nil {
			return err
		}
		adj, err := s.commitStock(ctx, tx, st, op, delta, 0, reason, nil)
		if err != nil {
			return err
		}
		res = &StockResult{Stock: *st, Adjustment: *adj}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Изменён bulk пул",
		zap.String("product_id", productID.String()),
		zap.Int32("delta", delta),
		zap.Int32("bulk", res.Stock.BulkPoolCount),
	)
	s.afterCommit(ctx, productID, stockEvent(res.Adjustment, s.now()))
	return res, nil
}

func (s *ledgerService) ListAdjustments(ctx context.Context, productID uuid.UUID, limit, offset int) ([]models.StockAdjustment, int64, error) {
	if _, err := s.GetStock(ctx, productID); err != nil {
		return nil, 0, err
	}
	return s.repo.Adjustments.ListByProduct(ctx, productID, limit, offset)
}

func (s *ledgerService) ListItems(ctx context.Context, productID uuid.UUID, status *models.ItemStatus) ([]models.TrackedItem, error) {
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *status)
	}
	if _, err := s.GetStock(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.Items.ListByProduct(ctx, productID, status)
}

// ReconcileStock checks that the owned total is explained by the adjustment
// log and that tracked_item_count matches the non-retired items.
func (s *ledgerService) ReconcileStock(ctx context.Context, productID uuid.UUID) (*ReconcileReport, error) {
	var rep ReconcileReport
	err := s.inSnapshot(ctx, productID, func(tx *repository.Repository) error {
		st, err := loadStock(ctx, tx, productID)
		if err != nil {
			return err
		}
		p, err := tx.Products.GetByID(ctx, productID)
		if err != nil {
			return err
		}
		sum, err := tx.Adjustments.SumDeltas(ctx, productID)
		if err != nil {
			return err
		}
		owned, err := tx.Items.CountOwned(ctx, productID)
		if err != nil {
			return err
		}

		rep = ReconcileReport{
			ProductID:        productID,
			BulkPoolCount:    st.BulkPoolCount,
			TrackedItemCount: st.TrackedItemCount,
			Total:            st.Total(),
			AdjustmentSum:    sum,
			OwnedItems:       owned,
			CheckedAt:        s.now(),
		}
		if p != nil {
			rep.UnitCost = p.UnitCost
			rep.OwnedValue = p.UnitCost.Mul(decimal.NewFromInt32(st.Total()))
		}
		rep.Consistent = int64(rep.Total) == sum && owned == int64(st.TrackedItemCount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !rep.Consistent {
		invariant := "total == sum(adjustment deltas)"
		if rep.OwnedItems != int64(rep.TrackedItemCount) {
			invariant = "tracked_item_count == non-retired items"
		}
		cv := &ConstraintViolationError{
			Invariant: invariant,
			Err:       fmt.Errorf("total=%d sum=%d tracked=%d owned=%d", rep.Total, rep.AdjustmentSum, rep.TrackedItemCount, rep.OwnedItems),
		}
		s.logFailure("reconcile", productID, cv)
		return &rep, cv
	}
	return &rep, nil
}

// checkBulkCommitments rejects a bulk pool size below the peak bulk
// reservation from today onwards.
func (s *ledgerService) checkBulkCommitments(ctx context.Context, tx *repository.Repository, productID uuid.UUID, newBulk int32) error {
	from := s.today()
	active, err := tx.Assignments.ListActiveFrom(ctx, productID, from)
	if err != nil {
		return err
	}
	if peak := availability.MaxBulkReservedFrom(active, from); peak > int64(newBulk) {
		return fmt.Errorf("%w: %d units promised from %s, bulk pool would be %d",
			ErrWouldOversell, peak, from.Format(models.DateLayout), newBulk)
	}
	return nil
}

func (s *ledgerService) createItems(ctx context.Context, tx *repository.Repository, productID uuid.UUID, n int32) ([]uuid.UUID, error) {
	prefix := "ITEM"
	if p, err := tx.Products.GetByID(ctx, productID); err != nil {
		return nil, err
	} else if p != nil {
		prefix = strings.ToUpper(p.SKU)
	}

	now := s.now()
	items := make([]models.TrackedItem, n)
	ids := make([]uuid.UUID, n)
	for i := range items {
		id := uuid.New()
		items[i] = models.TrackedItem{
			ID:           id,
			ProductID:    productID,
			SerialNumber: serialFor(prefix, id),
			Status:       models.ItemAvailable,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		ids[i] = id
	}
	if err := tx.Items.CreateBatch(ctx, items); err != nil {
		return nil, err
	}
	return ids, nil
}

func serialFor(prefix string, id uuid.UUID) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
}

// commitStock checks the counters, saves st and appends the matching adjustment.
func (s *ledgerService) commitStock(ctx context.Context, tx *repository.Repository, st *models.MasterStock,
	op models.OperationType, bulkDelta, trackedDelta int32, reason string, ref *uuid.UUID,
) (*models.StockAdjustment, error) {
	if st.BulkPoolCount < 0 || st.TrackedItemCount < 0 {
		return nil, &ConstraintViolationError{
			Invariant: "bulk_pool_count >= 0 and tracked_item_count >= 0",
			Err:       fmt.Errorf("bulk=%d tracked=%d", st.BulkPoolCount, st.TrackedItemCount),
		}
	}

	if trackedDelta != 0 {
		owned, err := tx.Items.CountOwned(ctx, st.ProductID)
		if err != nil {
			return nil, err
		}
		if owned != int64(st.TrackedItemCount) {
			return nil, &ConstraintViolationError{
				Invariant: "tracked_item_count == non-retired items",
				Err:       fmt.Errorf("tracked=%d owned=%d", st.TrackedItemCount, owned),
			}
		}
	}

	if err := tx.Stocks.Save(ctx, st); err != nil {
		return nil, err
	}

	adj := &models.StockAdjustment{
		ID:            uuid.New(),
		ProductID:     st.ProductID,
		OperationType: op,
		Delta:         bulkDelta + trackedDelta,
		BulkDelta:     bulkDelta,
		TrackedDelta:  trackedDelta,
		BulkAfter:     st.BulkPoolCount,
		TrackedAfter:  st.TrackedItemCount,
		Reason:        strings.TrimSpace(reason),
		Actor:         actorOf(ctx),
		ReferenceID:   ref,
		CreatedAt:     s.now(),
	}
	if err := tx.Adjustments.Append(ctx, adj); err != nil {
		return nil, err
	}
	return adj, nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

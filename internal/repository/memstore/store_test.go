package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/repository"
	"stock-ledger-service/internal/repository/memstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProduct(t *testing.T, repo *repository.Repository, sku string) uuid.UUID {
	t.Helper()
	p := &models.Product{SKU: sku, Name: "Chair " + sku, IsActive: true}
	require.NoError(t, repo.Products.Create(context.Background(), p))
	return p.ID
}

func setBulk(t *testing.T, repo *repository.Repository, pid uuid.UUID, n int32) {
	t.Helper()
	err := repo.WithProductTx(context.Background(), pid, func(tx *repository.Repository) error {
		st, err := tx.Stocks.Get(context.Background(), pid)
		if err != nil {
			return err
		}
		st.BulkPoolCount = n
		return tx.Stocks.Save(context.Background(), st)
	})
	require.NoError(t, err)
}

func TestInProductTx_RollbackOnError(t *testing.T) {
	store := memstore.New()
	repo := store.Repository()
	ctx := context.Background()
	pid := newProduct(t, repo, "CH-1")
	setBulk(t, repo, pid, 5)

	boom := errors.New("boom")
	err := repo.WithProductTx(ctx, pid, func(tx *repository.Repository) error {
		st, err := tx.Stocks.Get(ctx, pid)
		require.NoError(t, err)
		st.BulkPoolCount = 50
		require.NoError(t, tx.Stocks.Save(ctx, st))
		require.NoError(t, tx.Items.CreateBatch(ctx, []models.TrackedItem{{ProductID: pid, SerialNumber: "CH-1-A"}}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	st, err := repo.Stocks.Get(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, int32(5), st.BulkPoolCount)

	items, err := repo.Items.ListByProduct(ctx, pid, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestInProductTx_UnknownProduct(t *testing.T) {
	repo := memstore.New().Repository()
	err := repo.WithProductTx(context.Background(), uuid.New(), func(*repository.Repository) error { return nil })
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInProductTx_NegativeStockRejected(t *testing.T) {
	repo := memstore.New().Repository()
	ctx := context.Background()
	pid := newProduct(t, repo, "CH-2")

	err := repo.WithProductTx(ctx, pid, func(tx *repository.Repository) error {
		st, err := tx.Stocks.Get(ctx, pid)
		if err != nil {
			return err
		}
		st.BulkPoolCount = -1
		return tx.Stocks.Save(ctx, st)
	})

	var ce *repository.ConstraintError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "chk_master_stocks_non_negative", ce.Constraint)

	st, err := repo.Stocks.Get(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, int32(0), st.BulkPoolCount)
}

func TestInProductTx_OverlappingHoldsRejected(t *testing.T) {
	repo := memstore.New().Repository()
	ctx := context.Background()
	pid := newProduct(t, repo, "CH-3")
	itemID := uuid.New()
	day := func(s string) time.Time {
		d, err := models.ParseDay(s)
		require.NoError(t, err)
		return d
	}

	hold := func(from, to string) *models.Assignment {
		return &models.Assignment{
			ProductID: pid, JobID: uuid.New(), Kind: models.AssignmentTracked,
			StartDate: day(from), EndDate: day(to),
			Items: []models.AssignmentItem{{ItemID: itemID, ProductID: pid, StartDate: day(from), EndDate: day(to)}},
		}
	}

	err := repo.WithProductTx(ctx, pid, func(tx *repository.Repository) error {
		if err := tx.Items.CreateBatch(ctx, []models.TrackedItem{{ID: itemID, ProductID: pid, SerialNumber: "CH-3-A"}}); err != nil {
			return err
		}
		if err := tx.Assignments.Create(ctx, hold("2024-06-01", "2024-06-03")); err != nil {
			return err
		}
		return tx.Assignments.Create(ctx, hold("2024-06-04", "2024-06-05"))
	})
	require.NoError(t, err)

	err = repo.WithProductTx(ctx, pid, func(tx *repository.Repository) error {
		return tx.Assignments.Create(ctx, hold("2024-06-03", "2024-06-04"))
	})
	var ce *repository.ConstraintError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "ex_assignment_items_no_overlap", ce.Constraint)

	active, err := repo.Assignments.ListActiveByItem(ctx, itemID)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestInProductTx_SerialUniqueAcrossProducts(t *testing.T) {
	repo := memstore.New().Repository()
	ctx := context.Background()
	a := newProduct(t, repo, "CH-4")
	b := newProduct(t, repo, "CH-5")

	create := func(pid uuid.UUID, serial string) error {
		return repo.WithProductTx(ctx, pid, func(tx *repository.Repository) error {
			return tx.Items.CreateBatch(ctx, []models.TrackedItem{{ProductID: pid, SerialNumber: serial}})
		})
	}
	require.NoError(t, create(a, "SN-001"))

	var ce *repository.ConstraintError
	require.True(t, errors.As(create(b, "sn-001"), &ce))
	assert.NoError(t, create(b, "SN-002"))

	taken, err := repo.Items.SerialExists(ctx, []string{"SN-001", "SN-003"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SN-001"}, taken)
}

func TestStocks_StaleVersion(t *testing.T) {
	repo := memstore.New().Repository()
	ctx := context.Background()
	pid := newProduct(t, repo, "CH-6")

	stale, err := repo.Stocks.Get(ctx, pid)
	require.NoError(t, err)
	setBulk(t, repo, pid, 3)

	err = repo.WithProductTx(ctx, pid, func(tx *repository.Repository) error {
		stale.BulkPoolCount = 10
		return tx.Stocks.Save(ctx, stale)
	})
	assert.ErrorIs(t, err, repository.ErrSerialization)
}

func TestInSnapshot_ReadOnlyAndIsolated(t *testing.T) {
	store := memstore.New()
	repo := store.Repository()
	ctx := context.Background()
	pid := newProduct(t, repo, "CH-7")
	setBulk(t, repo, pid, 4)

	entered, proceed := make(chan struct{}), make(chan struct{})
	var seen int32
	done := make(chan error, 1)
	go func() {
		done <- repo.WithSnapshot(ctx, pid, func(tx *repository.Repository) error {
			close(entered)
			<-proceed
			st, err := tx.Stocks.Get(ctx, pid)
			if err != nil {
				return err
			}
			seen = st.BulkPoolCount
			return tx.Adjustments.Append(ctx, &models.StockAdjustment{ProductID: pid, OperationType: models.OpAddBulk, Delta: 1, BulkDelta: 1})
		})
	}()

	<-entered
	setBulk(t, repo, pid, 9)
	close(proceed)

	err := <-done
	require.Error(t, err)
	assert.Equal(t, int32(4), seen)
}

func TestInProductTx_LockTimeout(t *testing.T) {
	store := memstore.New()
	repo := store.Repository()
	pid := newProduct(t, repo, "CH-8")

	held, release := make(chan struct{}), make(chan struct{})
	go func() {
		_ = store.InProductTx(context.Background(), pid, func(*repository.Repository) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := store.InProductTx(ctx, pid, func(*repository.Repository) error { return nil })
	assert.ErrorIs(t, err, repository.ErrTxTimeout)

	// другой товар не заблокирован
	other := newProduct(t, repo, "CH-9")
	assert.NoError(t, store.InProductTx(context.Background(), other, func(*repository.Repository) error { return nil }))
}

package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stock-ledger-service/internal/migrate"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/repository"
	"stock-ledger-service/internal/service"
	"stock-ledger-service/pkg/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := testutil.SetupTestPostgres(t)
	if err := migrate.MigrateLedgerDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := models.ParseDay(s)
	if err != nil {
		t.Fatalf("ParseDay(%q): %v", s, err)
	}
	return d
}

func createProduct(t *testing.T, repo *repository.Repository, sku string) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:       uuid.New(),
		SKU:      sku,
		Name:     "Folding table " + sku,
		UnitCost: decimal.RequireFromString("42.00"),
		IsActive: true,
	}
	if err := repo.Products.Create(context.Background(), p); err != nil {
		t.Fatalf("Create product: %v", err)
	}
	return p
}

func TestProductRepo_CreateAndGet(t *testing.T) {
	db := setupDB(t)
	repo := repository.New(db)
	ctx := context.Background()

	p := createProduct(t, repo, "TBL-001")

	got, err := repo.Products.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.SKU != "TBL-001" || !got.UnitCost.Equal(decimal.RequireFromString("42")) {
		t.Fatalf("GetByID mismatch: %+v", got)
	}

	// SKU уникален без учёта регистра
	bySKU, err := repo.Products.GetBySKU(ctx, "tbl-001")
	if err != nil {
		t.Fatalf("GetBySKU: %v", err)
	}
	if bySKU == nil || bySKU.ID != p.ID {
		t.Fatalf("GetBySKU mismatch: %+v", bySKU)
	}

	dup := &models.Product{ID: uuid.New(), SKU: "tbl-001", Name: "dup", IsActive: true}
	err = repository.TranslateError(repo.Products.Create(ctx, dup))
	var ce *repository.ConstraintError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConstraintError for duplicate sku, got %v", err)
	}

	// вместе с товаром создаётся пустая строка склада
	st, err := repo.Stocks.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Stocks.Get: %v", err)
	}
	if st == nil || st.Total() != 0 {
		t.Fatalf("stock row mismatch: %+v", st)
	}

	missing, err := repo.Products.GetByID(ctx, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("expected nil,nil for missing product, got %v, %v", missing, err)
	}
}

func TestProductRepo_List(t *testing.T) {
	db := setupDB(t)
	repo := repository.New(db)
	ctx := context.Background()

	for _, sku := range []string{"TBL-A", "TBL-B", "CHR-A"} {
		createProduct(t, repo, sku)
	}

	list, total, err := repo.Products.List(ctx, repository.ProductListFilter{Query: "tbl", Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("expected 2 tables, got total=%d len=%d", total, len(list))
	}

	page, total, err := repo.Products.List(ctx, repository.ProductListFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if total != 3 || len(page) != 1 {
		t.Fatalf("page mismatch: total=%d len=%d", total, len(page))
	}
}

func TestStockRepo_OptimisticVersion(t *testing.T) {
	db := setupDB(t)
	repo := repository.New(db)
	ctx := context.Background()
	p := createProduct(t, repo, "TBL-V")

	st, _ := repo.Stocks.Get(ctx, p.ID)
	stale := *st

	st.BulkPoolCount = 7
	if err := repo.Stocks.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if st.Version != stale.Version+1 {
		t.Fatalf("version not bumped: %d", st.Version)
	}

	stale.BulkPoolCount = 1
	if err := repo.Stocks.Save(ctx, &stale); !errors.Is(err, repository.ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}

	// CHECK не даёт уйти в минус даже в обход сервиса
	st.BulkPoolCount = -1
	err := repository.TranslateError(repo.Stocks.Save(ctx, st))
	var ce *repository.ConstraintError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConstraintError, got %v", err)
	}
}

func TestAssignmentRepo_ItemHoldsExcluded(t *testing.T) {
	db := setupDB(t)
	repo := repository.New(db)
	ctx := context.Background()
	p := createProduct(t, repo, "TBL-X")

	item := models.TrackedItem{ID: uuid.New(), ProductID: p.ID, SerialNumber: "TBL-X-0001", Status: models.ItemAvailable}
	if err := repo.Items.CreateBatch(ctx, []models.TrackedItem{item}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	hold := func(from, to string) *models.Assignment {
		id := uuid.New()
		return &models.Assignment{
			ID: id, ProductID: p.ID, JobID: uuid.New(), Kind: models.AssignmentTracked,
			StartDate: mustDay(t, from), EndDate: mustDay(t, to),
			Items: []models.AssignmentItem{{AssignmentID: id, ItemID: item.ID, ProductID: p.ID, StartDate: mustDay(t, from), EndDate: mustDay(t, to)}},
		}
	}

	first := hold("2024-06-01", "2024-06-03")
	if err := repo.Assignments.Create(ctx, first); err != nil {
		t.Fatalf("Create first: %v", err)
	}

	err := repository.TranslateError(repo.Assignments.Create(ctx, hold("2024-06-03", "2024-06-05")))
	var ce *repository.ConstraintError
	if !errors.As(err, &ce) || ce.Constraint != "ex_assignment_items_no_overlap" {
		t.Fatalf("expected exclusion violation, got %v", err)
	}

	if err := repo.Assignments.Create(ctx, hold("2024-06-04", "2024-06-05")); err != nil {
		t.Fatalf("Create adjacent: %v", err)
	}

	active, err := repo.Assignments.ListActiveByItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListActiveByItem: %v", err)
	}
	if len(active) != 2 || active[0].ID != first.ID {
		t.Fatalf("ListActiveByItem mismatch: %+v", active)
	}

	ok, err := repo.Assignments.MarkReleased(ctx, first.ID, time.Now().UTC())
	if err != nil || !ok {
		t.Fatalf("MarkReleased: %v %v", ok, err)
	}
	ok, err = repo.Assignments.MarkReleased(ctx, first.ID, time.Now().UTC())
	if err != nil || ok {
		t.Fatalf("second MarkReleased should be a no-op: %v %v", ok, err)
	}

	// после снятия период снова свободен
	if err := repo.Assignments.Create(ctx, hold("2024-06-02", "2024-06-03")); err != nil {
		t.Fatalf("Create after release: %v", err)
	}
}

func TestAdjustmentRepo_AppendOnly(t *testing.T) {
	db := setupDB(t)
	repo := repository.New(db)
	ctx := context.Background()
	p := createProduct(t, repo, "TBL-L")

	for _, d := range []int32{5, -2} {
		op := models.OpAddBulk
		if d < 0 {
			op = models.OpRemoveBulk
		}
		adj := &models.StockAdjustment{ID: uuid.New(), ProductID: p.ID, OperationType: op, Delta: d, BulkDelta: d, Actor: "test"}
		if err := repo.Adjustments.Append(ctx, adj); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	sum, err := repo.Adjustments.SumDeltas(ctx, p.ID)
	if err != nil || sum != 3 {
		t.Fatalf("SumDeltas = %d, %v", sum, err)
	}

	list, total, err := repo.Adjustments.ListByProduct(ctx, p.ID, 10, 0)
	if err != nil || total != 2 || len(list) != 2 {
		t.Fatalf("ListByProduct: total=%d len=%d err=%v", total, len(list), err)
	}

	if err := db.Exec(`UPDATE stock_adjustments SET delta = 100 WHERE product_id = ?`, p.ID).Error; err == nil {
		t.Fatal("expected update of stock_adjustments to be rejected")
	}
	if err := db.Exec(`DELETE FROM stock_adjustments WHERE product_id = ?`, p.ID).Error; err == nil {
		t.Fatal("expected delete from stock_adjustments to be rejected")
	}
}

func TestInProductTx_Rollback(t *testing.T) {
	db := setupDB(t)
	repo := repository.New(db)
	ctx := context.Background()
	p := createProduct(t, repo, "TBL-R")

	boom := errors.New("boom")
	err := repo.WithProductTx(ctx, p.ID, func(tx *repository.Repository) error {
		st, err := tx.Stocks.Get(ctx, p.ID)
		if err != nil {
			return err
		}
		st.BulkPoolCount = 99
		if err := tx.Stocks.Save(ctx, st); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	st, _ := repo.Stocks.Get(ctx, p.ID)
	if st.BulkPoolCount != 0 {
		t.Fatalf("rollback failed, bulk=%d", st.BulkPoolCount)
	}

	if err := repo.WithProductTx(ctx, uuid.New(), func(*repository.Repository) error { return nil }); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// Полный путь сервиса поверх postgres: блокировка строки склада и ретраи.
func TestLedger_ConcurrentReservePostgres(t *testing.T) {
	db := setupDB(t)
	repo := repository.New(db)
	ctx := context.Background()

	opt := service.DefaultOptions()
	opt.MaxRetries = 10
	svc := service.NewLedgerService(repo, zap.NewNop(), opt).
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) })

	r := models.DateRange{Start: mustDay(t, "2024-06-01"), End: mustDay(t, "2024-06-03")}

	tests := []struct {
		sku          string
		pool         int32
		callers      int
		wantOK       int
		wantDenied   int
		wantReserved int32
	}{
		{sku: "TENT-PG-EVEN", pool: 12, callers: 4, wantOK: 4, wantDenied: 0, wantReserved: 12},
		{sku: "TENT-PG-FILL", pool: 10, callers: 6, wantOK: 5, wantDenied: 1, wantReserved: 10},
		{sku: "TENT-PG-REST", pool: 10, callers: 3, wantOK: 2, wantDenied: 1, wantReserved: 8},
	}

	for _, tt := range tests {
		t.Run(tt.sku, func(t *testing.T) {
			p, err := svc.RegisterProduct(ctx, service.ProductInput{SKU: tt.sku, Name: "Tent", UnitCost: decimal.RequireFromString("10"), IsActive: true})
			if err != nil {
				t.Fatalf("RegisterProduct: %v", err)
			}
			if _, err := svc.AdjustBulkStock(ctx, p.ID, tt.pool, "initial"); err != nil {
				t.Fatalf("AdjustBulkStock: %v", err)
			}

			each := tt.pool / int32(tt.callers)
			if tt.pool%int32(tt.callers) != 0 {
				each++
			}

			var (
				wg         sync.WaitGroup
				mu         sync.Mutex
				ok, denied int
				unexpected []error
			)
			for i := 0; i < tt.callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := svc.Reserve(ctx, service.ReserveInput{ProductID: p.ID, JobID: uuid.New(), Range: r, BulkQuantity: each})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						ok++
					case errors.Is(err, service.ErrOverbooked):
						denied++
					default:
						unexpected = append(unexpected, err)
					}
				}()
			}
			wg.Wait()

			if len(unexpected) > 0 {
				t.Fatalf("unexpected errors: %v", unexpected)
			}
			if ok != tt.wantOK || denied != tt.wantDenied {
				t.Fatalf("expected %d ok / %d overbooked, got %d / %d", tt.wantOK, tt.wantDenied, ok, denied)
			}

			days, err := svc.GetAvailability(ctx, p.ID, r)
			if err != nil {
				t.Fatalf("GetAvailability: %v", err)
			}
			for _, d := range days {
				if d.BulkReserved != tt.wantReserved || d.BulkAvailable != tt.pool-tt.wantReserved {
					t.Fatalf("day %s: reserved=%d available=%d", d.Date.Format(models.DateLayout), d.BulkReserved, d.BulkAvailable)
				}
			}

			rep, err := svc.ReconcileStock(ctx, p.ID)
			if err != nil || !rep.Consistent {
				t.Fatalf("ReconcileStock: %+v %v", rep, err)
			}
		})
	}
}

package service

import (
	"context"
	"time"

	"stock-ledger-service/internal/availability"
	"stock-ledger-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProductInput struct {
	SKU      string
	Name     string
	UnitCost decimal.Decimal
	IsActive bool
}

type ProductListFilter struct {
	Query      string
	OnlyActive *bool
	Limit      int
	Offset     int
}

// StockResult is the committed state after a stock operation.
type StockResult struct {
	Stock      models.MasterStock
	Adjustment models.StockAdjustment
	ItemIDs    []uuid.UUID // созданные единицы (convert / add tracked)
}

type ReconcileReport struct {
	ProductID        uuid.UUID
	BulkPoolCount    int32
	TrackedItemCount int32
	Total            int32
	AdjustmentSum    int64
	OwnedItems       int64
	UnitCost         decimal.Decimal
	OwnedValue       decimal.Decimal
	Consistent       bool
	CheckedAt        time.Time
}

type ReserveInput struct {
	ProductID      uuid.UUID
	JobID          uuid.UUID
	JobNumber      string
	CustomerName   string
	Range          models.DateRange
	BulkQuantity   int32
	TrackedItemIDs []uuid.UUID
}

type ReserveResult struct {
	Assignments []models.Assignment
}

func (r ReserveResult) AssignmentIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Assignments))
	for _, a := range r.Assignments {
		ids = append(ids, a.ID)
	}
	return ids
}

type LedgerService interface {
	// catalog
	RegisterProduct(ctx context.Context, in ProductInput) (*models.Product, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, f ProductListFilter) ([]models.Product, int64, error)

	// stock
	GetStock(ctx context.Context, productID uuid.UUID) (*models.MasterStock, error)
	ConvertBulkToTracked(ctx context.Context, productID uuid.UUID, n int32, reason string) (*StockResult, error)
	AddTrackedStock(ctx context.Context, productID uuid.UUID, n int32, reason string) (*StockResult, error)
	AdjustBulkStock(ctx context.Context, productID uuid.UUID, delta int32, reason string) (*StockResult, error)
	ListAdjustments(ctx context.Context, productID uuid.UUID, limit, offset int) ([]models.StockAdjustment, int64, error)
	ReconcileStock(ctx context.Context, productID uuid.UUID) (*ReconcileReport, error)

	// tracked items
	ListItems(ctx context.Context, productID uuid.UUID, status *models.ItemStatus) ([]models.TrackedItem, error)
	TransitionItem(ctx context.Context, itemID uuid.UUID, to models.ItemStatus, reason string) (*models.TrackedItem, error)

	// availability
	GetAvailability(ctx context.Context, productID uuid.UUID, r models.DateRange) ([]availability.Day, error)

	// reservations
	Reserve(ctx context.Context, in ReserveInput) (*ReserveResult, error)
	Release(ctx context.Context, assignmentID uuid.UUID) (bool, error)
	ReleaseJob(ctx context.Context, jobID uuid.UUID) (int64, error)
	GetAssignment(ctx context.Context, assignmentID uuid.UUID) (*models.Assignment, error)
}

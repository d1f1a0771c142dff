package dto

import (
	"time"

	"stock-ledger-service/internal/availability"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateProductRequest struct {
	SKU      string          `json:"sku" binding:"required,max=64"`
	Name     string          `json:"name" binding:"required,max=256"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	IsActive *bool           `json:"is_active"`
}

type ProductResponse struct {
	ID        string `json:"id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	UnitCost  string `json:"unit_cost"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

type ListProductsResponse struct {
	Products   []ProductResponse `json:"products"`
	Total      int64             `json:"total"`
	NextOffset int               `json:"next_offset"`
}

type StockResponse struct {
	ProductID        string `json:"product_id"`
	BulkPoolCount    int32  `json:"bulk_pool_count"`
	TrackedItemCount int32  `json:"tracked_item_count"`
	Total            int32  `json:"total"`
	Version          int64  `json:"version"`
	UpdatedAt        string `json:"updated_at"`
}

// ConvertRequest / AddTrackedRequest
// Пределы в binding совпадают с service.DefaultMaxBatch и DefaultMaxQuantity.
type QuantityRequest struct {
	Quantity int32  `json:"quantity" binding:"required,min=1,max=10000"`
	Reason   string `json:"reason" binding:"max=512"`
}

// AdjustBulkRequest: delta > 0 приход, delta < 0 списание
type AdjustBulkRequest struct {
	Delta  int32  `json:"delta" binding:"required,min=-1000000,max=1000000"`
	Reason string `json:"reason" binding:"max=512"`
}

type AdjustmentResponse struct {
	ID            string  `json:"id"`
	OperationType string  `json:"operation_type"`
	Delta         int32   `json:"delta"`
	BulkDelta     int32   `json:"bulk_delta"`
	TrackedDelta  int32   `json:"tracked_delta"`
	BulkAfter     int32   `json:"bulk_after"`
	TrackedAfter  int32   `json:"tracked_after"`
	Reason        string  `json:"reason,omitempty"`
	Actor         string  `json:"actor"`
	ReferenceID   *string `json:"reference_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

type StockResultResponse struct {
	Stock      StockResponse      `json:"stock"`
	Adjustment AdjustmentResponse `json:"adjustment"`
	ItemIDs    []string           `json:"item_ids,omitempty"`
}

type ListAdjustmentsResponse struct {
	Adjustments []AdjustmentResponse `json:"adjustments"`
	Total       int64                `json:"total"`
	NextOffset  int                  `json:"next_offset"`
}

type ReconcileResponse struct {
	ProductID        string `json:"product_id"`
	BulkPoolCount    int32  `json:"bulk_pool_count"`
	TrackedItemCount int32  `json:"tracked_item_count"`
	Total            int32  `json:"total"`
	AdjustmentSum    int64  `json:"adjustment_sum"`
	OwnedItems       int64  `json:"owned_items"`
	UnitCost         string `json:"unit_cost"`
	OwnedValue       string `json:"owned_value"`
	Consistent       bool   `json:"consistent"`
	CheckedAt        string `json:"checked_at"`
}

type ItemResponse struct {
	ID                  string  `json:"id"`
	ProductID           string  `json:"product_id"`
	SerialNumber        string  `json:"serial_number"`
	Status              string  `json:"status"`
	CurrentAssignmentID *string `json:"current_assignment_id,omitempty"`
	UpdatedAt           string  `json:"updated_at"`
}

type TransitionItemRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason" binding:"max=512"`
}

type ConflictResponse struct {
	AssignmentID string   `json:"assignment_id"`
	JobID        string   `json:"job_id"`
	JobNumber    string   `json:"job_number,omitempty"`
	CustomerName string   `json:"customer_name,omitempty"`
	Kind         string   `json:"kind"`
	Quantity     int32    `json:"quantity,omitempty"`
	ItemIDs      []string `json:"item_ids,omitempty"`
}

type AvailabilityDayResponse struct {
	Date             string             `json:"date"`
	TotalAvailable   int32              `json:"total_available"`
	BulkAvailable    int32              `json:"bulk_available"`
	TrackedAvailable int32              `json:"tracked_available"`
	BulkReserved     int32              `json:"bulk_reserved"`
	TrackedReserved  int32              `json:"tracked_reserved"`
	Conflicts        []ConflictResponse `json:"conflicts"`
}

type AvailabilityResponse struct {
	ProductID string                    `json:"product_id"`
	From      string                    `json:"from"`
	To        string                    `json:"to"`
	Days      []AvailabilityDayResponse `json:"days"`
}

type ReserveRequest struct {
	ProductID      string   `json:"product_id" binding:"required,uuid"`
	JobID          string   `json:"job_id" binding:"required,uuid"`
	JobNumber      string   `json:"job_number" binding:"max=64"`
	CustomerName   string   `json:"customer_name" binding:"max=256"`
	StartDate      string   `json:"start_date" binding:"required"`
	EndDate        string   `json:"end_date" binding:"required"`
	BulkQuantity   int32    `json:"bulk_quantity" binding:"min=0,max=1000000"`
	TrackedItemIDs []string `json:"tracked_item_ids" binding:"max=10000,dive,uuid"`
}

type AssignmentResponse struct {
	ID           string   `json:"id"`
	ProductID    string   `json:"product_id"`
	JobID        string   `json:"job_id"`
	JobNumber    string   `json:"job_number,omitempty"`
	CustomerName string   `json:"customer_name,omitempty"`
	Kind         string   `json:"kind"`
	Quantity     int32    `json:"quantity,omitempty"`
	ItemIDs      []string `json:"item_ids,omitempty"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	CreatedAt    string   `json:"created_at"`
	ReleasedAt   *string  `json:"released_at,omitempty"`
}

type ReserveResponse struct {
	Assignments []AssignmentResponse `json:"assignments"`
}

type ReleaseResponse struct {
	Released bool `json:"released"`
}

type ReleaseJobResponse struct {
	Released int64 `json:"released"`
}

func ToProduct(p *models.Product) ProductResponse {
	return ProductResponse{
		ID:        p.ID.String(),
		SKU:       p.SKU,
		Name:      p.Name,
		UnitCost:  p.UnitCost.StringFixed(2),
		IsActive:  p.IsActive,
		CreatedAt: formatTime(p.CreatedAt),
	}
}

func ToStock(s *models.MasterStock) StockResponse {
	return StockResponse{
		ProductID:        s.ProductID.String(),
		BulkPoolCount:    s.BulkPoolCount,
		TrackedItemCount: s.TrackedItemCount,
		Total:            s.Total(),
		Version:          s.Version,
		UpdatedAt:        formatTime(s.UpdatedAt),
	}
}

func ToAdjustment(a *models.StockAdjustment) AdjustmentResponse {
	return AdjustmentResponse{
		ID:            a.ID.String(),
		OperationType: string(a.OperationType),
		Delta:         a.Delta,
		BulkDelta:     a.BulkDelta,
		TrackedDelta:  a.TrackedDelta,
		BulkAfter:     a.BulkAfter,
		TrackedAfter:  a.TrackedAfter,
		Reason:        a.Reason,
		Actor:         a.Actor,
		ReferenceID:   uuidPtr(a.ReferenceID),
		CreatedAt:     formatTime(a.CreatedAt),
	}
}

func ToStockResult(r *service.StockResult) StockResultResponse {
	return StockResultResponse{
		Stock:      ToStock(&r.Stock),
		Adjustment: ToAdjustment(&r.Adjustment),
		ItemIDs:    uuidStrings(r.ItemIDs),
	}
}

func ToReconcile(r *service.ReconcileReport) ReconcileResponse {
	return ReconcileResponse{
		ProductID:        r.ProductID.String(),
		BulkPoolCount:    r.BulkPoolCount,
		TrackedItemCount: r.TrackedItemCount,
		Total:            r.Total,
		AdjustmentSum:    r.AdjustmentSum,
		OwnedItems:       r.OwnedItems,
		UnitCost:         r.UnitCost.StringFixed(2),
		OwnedValue:       r.OwnedValue.StringFixed(2),
		Consistent:       r.Consistent,
		CheckedAt:        formatTime(r.CheckedAt),
	}
}

func ToItem(it *models.TrackedItem) ItemResponse {
	return ItemResponse{
		ID:                  it.ID.String(),
		ProductID:           it.ProductID.String(),
		SerialNumber:        it.SerialNumber,
		Status:              string(it.Status),
		CurrentAssignmentID: uuidPtr(it.CurrentAssignmentID),
		UpdatedAt:           formatTime(it.UpdatedAt),
	}
}

func ToAvailability(productID uuid.UUID, r models.DateRange, days []availability.Day) AvailabilityResponse {
	out := AvailabilityResponse{
		ProductID: productID.String(),
		From:      r.Start.Format(models.DateLayout),
		To:        r.End.Format(models.DateLayout),
		Days:      make([]AvailabilityDayResponse, 0, len(days)),
	}
	for _, d := range days {
		day := AvailabilityDayResponse{
			Date:             d.Date.Format(models.DateLayout),
			TotalAvailable:   d.TotalAvailable,
			BulkAvailable:    d.BulkAvailable,
			TrackedAvailable: d.TrackedAvailable,
			BulkReserved:     d.BulkReserved,
			TrackedReserved:  d.TrackedReserved,
			Conflicts:        make([]ConflictResponse, 0, len(d.Conflicts)),
		}
		for _, c := range d.Conflicts {
			day.Conflicts = append(day.Conflicts, ConflictResponse{
				AssignmentID: c.AssignmentID.String(),
				JobID:        c.JobID.String(),
				JobNumber:    c.JobNumber,
				CustomerName: c.CustomerName,
				Kind:         string(c.Kind),
				Quantity:     c.Quantity,
				ItemIDs:      uuidStrings(c.ItemIDs),
			})
		}
		out.Days = append(out.Days, day)
	}
	return out
}

func ToAssignment(a *models.Assignment) AssignmentResponse {
	out := AssignmentResponse{
		ID:           a.ID.String(),
		ProductID:    a.ProductID.String(),
		JobID:        a.JobID.String(),
		JobNumber:    a.JobNumber,
		CustomerName: a.CustomerName,
		Kind:         string(a.Kind),
		StartDate:    a.StartDate.Format(models.DateLayout),
		EndDate:      a.EndDate.Format(models.DateLayout),
		CreatedAt:    formatTime(a.CreatedAt),
	}
	if q, ok := a.Bulk(); ok {
		out.Quantity = q
	}
	// для снятой брони показываем все единицы, для активной — удерживаемые
	if a.IsReleased() {
		for _, it := range a.Items {
			out.ItemIDs = append(out.ItemIDs, it.ItemID.String())
		}
		rel := formatTime(*a.ReleasedAt)
		out.ReleasedAt = &rel
	} else if ids, ok := a.TrackedItemIDs(); ok {
		out.ItemIDs = uuidStrings(ids)
	}
	return out
}

func NextOffset(offset, returned int, total int64) int {
	next := offset + returned
	if returned == 0 || int64(next) >= total {
		return -1
	}
	return next
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func uuidPtr(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func uuidStrings(ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

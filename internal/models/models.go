package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID       uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SKU      string          `gorm:"type:text;not null"`
	Name     string          `gorm:"type:text;not null"`
	UnitCost decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	IsActive bool            `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Product) TableName() string {
	return "products"
}

// MasterStock — единственный источник истины о количестве единиц товара.
// Version растёт на каждом коммите, меняющем строку.
type MasterStock struct {
	ProductID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	BulkPoolCount    int32     `gorm:"not null;default:0"`
	TrackedItemCount int32     `gorm:"not null;default:0"`
	Version          int64     `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (MasterStock) TableName() string {
	return "master_stocks"
}

func (s MasterStock) Total() int32 {
	return s.BulkPoolCount + s.TrackedItemCount
}

type TrackedItem struct {
	ID                  uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID           uuid.UUID  `gorm:"type:uuid;not null;index"`
	SerialNumber        string     `gorm:"type:text;not null;uniqueIndex"`
	Status              ItemStatus `gorm:"type:text;not null;default:'AVAILABLE';index"`
	CurrentAssignmentID *uuid.UUID `gorm:"type:uuid"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (TrackedItem) TableName() string {
	return "tracked_items"
}

type AssignmentKind string

const (
	AssignmentBulk    AssignmentKind = "BULK"
	AssignmentTracked AssignmentKind = "TRACKED"
)

// Assignment is a hold of capacity for a job over an inclusive date range.
// BULK assignments carry Quantity and no Items; TRACKED ones carry Items and
// a zero Quantity. Use Bulk / TrackedItemIDs instead of reading the fields.
type Assignment struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID    uuid.UUID      `gorm:"type:uuid;not null;index:ix_assignments_product_dates,priority:1"`
	JobID        uuid.UUID      `gorm:"type:uuid;not null;index"`
	JobNumber    string         `gorm:"type:text;not null;default:''"`
	CustomerName string         `gorm:"type:text;not null;default:''"`
	Kind         AssignmentKind `gorm:"type:text;not null"`
	Quantity     int32          `gorm:"not null;default:0"`
	StartDate    time.Time      `gorm:"type:date;not null;index:ix_assignments_product_dates,priority:2"`
	EndDate      time.Time      `gorm:"type:date;not null;index:ix_assignments_product_dates,priority:3"`

	Items []AssignmentItem `gorm:"foreignKey:AssignmentID;constraint:OnDelete:CASCADE"`

	CreatedAt  time.Time  `gorm:"not null;default:now()"`
	ReleasedAt *time.Time `gorm:"index"`
}

func (Assignment) TableName() string {
	return "assignments"
}

func (a Assignment) Range() DateRange {
	return DateRange{Start: a.StartDate, End: a.EndDate}
}

func (a Assignment) IsReleased() bool {
	return a.ReleasedAt != nil
}

// Bulk returns the held quantity when a is a bulk assignment.
func (a Assignment) Bulk() (int32, bool) {
	if a.Kind != AssignmentBulk {
		return 0, false
	}
	return a.Quantity, true
}

// TrackedItemIDs returns the items still held by a tracked assignment.
func (a Assignment) TrackedItemIDs() ([]uuid.UUID, bool) {
	if a.Kind != AssignmentTracked {
		return nil, false
	}
	ids := make([]uuid.UUID, 0, len(a.Items))
	for _, it := range a.Items {
		if it.ReleasedAt == nil {
			ids = append(ids, it.ItemID)
		}
	}
	return ids, true
}

// AssignmentItem — удержание конкретной единицы. Даты продублированы из
// assignments для EXCLUDE-ограничения на пересечение периодов.
type AssignmentItem struct {
	AssignmentID uuid.UUID `gorm:"type:uuid;primaryKey"`
	ItemID       uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	ProductID    uuid.UUID `gorm:"type:uuid;not null"`
	StartDate    time.Time `gorm:"type:date;not null"`
	EndDate      time.Time `gorm:"type:date;not null"`
	ReleasedAt   *time.Time
}

func (AssignmentItem) TableName() string {
	return "assignment_items"
}

type OperationType string

const (
	OpConvert       OperationType = "CONVERT"
	OpAddTracked    OperationType = "ADD_TRACKED"
	OpAddBulk       OperationType = "ADD_BULK"
	OpRemoveBulk    OperationType = "REMOVE_BULK"
	OpRetireTracked OperationType = "RETIRE_TRACKED"
)

// StockAdjustment is an append-only record of a MasterStock change. Delta is
// the change of the owned total; BulkDelta and TrackedDelta split it.
type StockAdjustment struct {
	ID            uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID     uuid.UUID     `gorm:"type:uuid;not null;index:ix_adjustments_product_created,priority:1"`
	OperationType OperationType `gorm:"type:text;not null"`
	Delta         int32         `gorm:"not null"`
	BulkDelta     int32         `gorm:"not null"`
	TrackedDelta  int32         `gorm:"not null"`
	BulkAfter     int32         `gorm:"not null"`
	TrackedAfter  int32         `gorm:"not null"`
	Reason        string        `gorm:"type:text;not null;default:''"`
	Actor         string        `gorm:"type:text;not null;default:'system'"`
	ReferenceID   *uuid.UUID    `gorm:"type:uuid"`

	CreatedAt time.Time `gorm:"not null;default:now();index:ix_adjustments_product_created,priority:2"`
}

func (StockAdjustment) TableName() string {
	return "stock_adjustments"
}

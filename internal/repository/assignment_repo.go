package repository

import (
	"context"
	"errors"
	"time"

	"stock-ledger-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AssignmentRepo interface {
	// Create сохраняет назначение вместе с его assignment_items.
	Create(ctx context.Context, a *models.Assignment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Assignment, error)

	// Активные назначения товара, пересекающие диапазон
	ListActiveOverlapping(ctx context.Context, productID uuid.UUID, r models.DateRange) ([]models.Assignment, error)
	// Активные назначения товара, заканчивающиеся не раньше from
	ListActiveFrom(ctx context.Context, productID uuid.UUID, from time.Time) ([]models.Assignment, error)
	ListActiveByItem(ctx context.Context, itemID uuid.UUID) ([]models.Assignment, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Assignment, error)

	// MarkReleased снимает назначение и все его удержания; false, если уже снято.
	MarkReleased(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// ReleaseItem снимает удержание одной единицы; false, если уже снято.
	ReleaseItem(ctx context.Context, assignmentID, itemID uuid.UUID, at time.Time) (bool, error)
}

type assignmentRepo struct{ db *gorm.DB }

func NewAssignmentRepo(db *gorm.DB) AssignmentRepo { return &assignmentRepo{db: db} }

func (r *assignmentRepo) Create(ctx context.Context, a *models.Assignment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *assignmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	var a models.Assignment
	err := r.db.WithContext(ctx).Preload("Items").First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepo) ListActiveOverlapping(ctx context.Context, productID uuid.UUID, rng models.DateRange) ([]models.Assignment, error) {
	var list []models.Assignment
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("product_id = ? AND released_at IS NULL", productID).
		Where("start_date <= ? AND end_date >= ?", models.Day(rng.End), models.Day(rng.Start)).
		Order("start_date ASC, created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *assignmentRepo) ListActiveFrom(ctx context.Context, productID uuid.UUID, from time.Time) ([]models.Assignment, error) {
	var list []models.Assignment
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("product_id = ? AND released_at IS NULL AND end_date >= ?", productID, models.Day(from)).
		Order("start_date ASC, created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *assignmentRepo) ListActiveByItem(ctx context.Context, itemID uuid.UUID) ([]models.Assignment, error) {
	var list []models.Assignment
	err := r.db.WithContext(ctx).
		Preload("Items").
		Joins("JOIN assignment_items ai ON ai.assignment_id = assignments.id").
		Where("ai.item_id = ? AND ai.released_at IS NULL AND assignments.released_at IS NULL", itemID).
		Order("assignments.start_date ASC").
		Find(&list).Error
	return list, err
}

func (r *assignmentRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Assignment, error) {
	var list []models.Assignment
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *assignmentRepo) MarkReleased(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ? AND released_at IS NULL", id).
		Update("released_at", at)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected == 0 {
		return false, nil
	}

	err := r.db.WithContext(ctx).
		Model(&models.AssignmentItem{}).
		Where("assignment_id = ? AND released_at IS NULL", id).
		Update("released_at", at).Error
	return true, err
}

func (r *assignmentRepo) ReleaseItem(ctx context.Context, assignmentID, itemID uuid.UUID, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.AssignmentItem{}).
		Where("assignment_id = ? AND item_id = ? AND released_at IS NULL", assignmentID, itemID).
		Update("released_at", at)
	return tx.RowsAffected > 0, tx.Error
}

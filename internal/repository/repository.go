package repository

import (
	"context"
	"database/sql"
	"errors"

	"stock-ledger-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Transactor opens the isolation units of the ledger. Every write against a
// product runs in InProductTx; readers use InSnapshot and never block writers.
type Transactor interface {
	InProductTx(ctx context.Context, productID uuid.UUID, fn func(tx *Repository) error) error
	InSnapshot(ctx context.Context, productID uuid.UUID, fn func(tx *Repository) error) error
}

type Repository struct {
	Products    ProductRepo
	Stocks      StockRepo
	Items       ItemRepo
	Assignments AssignmentRepo
	Adjustments AdjustmentRepo

	Transactor Transactor
}

// WithProductTx runs fn in a transaction that owns productID until commit.
// Returns ErrNotFound when the product has no MasterStock row.
func (r *Repository) WithProductTx(ctx context.Context, productID uuid.UUID, fn func(tx *Repository) error) error {
	return r.Transactor.InProductTx(ctx, productID, fn)
}

// WithSnapshot runs read-only fn against a snapshot consistent as of its start.
func (r *Repository) WithSnapshot(ctx context.Context, productID uuid.UUID, fn func(tx *Repository) error) error {
	return r.Transactor.InSnapshot(ctx, productID, fn)
}

func buildRepository(db *gorm.DB) *Repository {
	return &Repository{
		Products:    NewProductRepo(db),
		Stocks:      NewStockRepo(db),
		Items:       NewItemRepo(db),
		Assignments: NewAssignmentRepo(db),
		Adjustments: NewAdjustmentRepo(db),
	}
}

// New builds the postgres-backed repository.
func New(db *gorm.DB) *Repository {
	r := buildRepository(db)
	r.Transactor = &gormTransactor{db: db}
	return r
}

type gormTransactor struct{ db *gorm.DB }

func (t *gormTransactor) InProductTx(ctx context.Context, productID uuid.UUID, fn func(tx *Repository) error) error {
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Все записи по одному товару сериализуются блокировкой строки master_stocks
		var st models.MasterStock
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ?", productID).
			Take(&st).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		txRepo := buildRepository(tx)
		txRepo.Transactor = Nested(txRepo)
		return fn(txRepo)
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	return TranslateError(err)
}

func (t *gormTransactor) InSnapshot(ctx context.Context, _ uuid.UUID, fn func(tx *Repository) error) error {
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := buildRepository(tx)
		txRepo.Transactor = Nested(txRepo)
		return fn(txRepo)
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	return TranslateError(err)
}

type nested struct{ repo *Repository }

// Nested returns a Transactor that reuses an already open transaction.
func Nested(repo *Repository) Transactor { return nested{repo: repo} }

func (n nested) InProductTx(_ context.Context, _ uuid.UUID, fn func(tx *Repository) error) error {
	return fn(n.repo)
}

func (n nested) InSnapshot(_ context.Context, _ uuid.UUID, fn func(tx *Repository) error) error {
	return fn(n.repo)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterProduct is the catalog hook: a product starts with an empty
// MasterStock and gets capacity only through stock operations.
func (s *ledgerService) RegisterProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	sku := strings.TrimSpace(in.SKU)
	name := strings.TrimSpace(in.Name)
	if sku == "" || name == "" {
		return nil, fmt.Errorf("%w: sku and name are required", ErrInvalidInput)
	}
	if in.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost must be >= 0", ErrInvalidInput)
	}

	if existing, err := s.repo.Products.GetBySKU(ctx, sku); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrSKUAlreadyExists
	}

	now := s.now()
	p := &models.Product{
		ID:        uuid.New(),
		SKU:       sku,
		Name:      name,
		UnitCost:  in.UnitCost.Round(2),
		IsActive:  in.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Products.Create(ctx, p); err != nil {
		var ce *repository.ConstraintError
		if errors.As(repository.TranslateError(err), &ce) {
			return nil, ErrSKUAlreadyExists
		}
		return nil, err
	}

	s.log.Info("Товар зарегистрирован", zap.String("product_id", p.ID.String()), zap.String("sku", p.SKU))
	return p, nil
}

func (s *ledgerService) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	p, err := s.repo.Products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (s *ledgerService) ListProducts(ctx context.Context, f ProductListFilter) ([]models.Product, int64, error) {
	return s.repo.Products.List(ctx, repository.ProductListFilter{
		Query:      f.Query,
		OnlyActive: f.OnlyActive,
		Limit:      f.Limit,
		Offset:     f.Offset,
	})
}

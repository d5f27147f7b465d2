package products

import (
	"context"
	"errors"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, errors.New("invalid product ID")
	}
	return s.repo.Get(ctx, id)
}

// GetMany loads products for the supplied IDs. Missing IDs are simply absent
// from the result; callers decide whether absence is an error.
func (s *Service) GetMany(ctx context.Context, ids []int64) ([]Product, error) {
	return s.repo.ListByIDs(ctx, ids)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	product.IsActive = true
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, id int64, product Product) error {
	if id <= 0 {
		return errors.New("invalid product ID")
	}
	if err := s.validate(product); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, product)
}

// AdjustStock applies a signed delta to the stock counter.
func (s *Service) AdjustStock(ctx context.Context, id int64, delta int64) error {
	if id <= 0 {
		return errors.New("invalid product ID")
	}
	if delta == 0 {
		return errors.New("stock delta must be non-zero")
	}
	return s.repo.AdjustStock(ctx, id, delta)
}

func (s *Service) validate(product Product) error {
	if product.Name == "" {
		return errors.New("product name required")
	}
	if product.Price.IsNegative() {
		return errors.New("product price must not be negative")
	}
	if product.Stock < 0 {
		return errors.New("product stock must not be negative")
	}
	return nil
}

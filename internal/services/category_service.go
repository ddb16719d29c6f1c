package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"dues/internal/core"
	"dues/internal/log"
	"dues/internal/storage"
)

// ErrCategoryInUse is returned when a category still has transactions or
// bills filed under it.
var ErrCategoryInUse = fmt.Errorf("category is in use: %w", core.ErrInUse)

type CategoryService struct {
	categories storage.CategoryRepository
	audit      *AuditLog
	logger     *log.Logger
}

func NewCategoryService(repos storage.Repositories, audit *AuditLog, logger *log.Logger) *CategoryService {
	if logger == nil {
		logger = log.Discard()
	}
	return &CategoryService{
		categories: repos.Categories,
		audit:      audit,
		logger:     logger.WithComponent(log.ComponentLedger),
	}
}

func (s *CategoryService) List(ctx context.Context) ([]core.Category, error) {
	cats, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (s *CategoryService) Add(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("validate category: %w", err)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := s.categories.InsertCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	s.audit.recordCreate(ctx, core.EntityCategory, c.ID, fmt.Sprintf("Added category %s", c.Name))
	return c, nil
}

func (s *CategoryService) Remove(ctx context.Context, id string) error {
	before, err := s.categories.GetCategory(ctx, id)
	if err != nil {
		return fmt.Errorf("get category %s: %w", id, err)
	}
	if err := s.categories.DeleteCategory(ctx, id); err != nil {
		if errors.Is(err, core.ErrInUse) {
			s.logger.InfoContext(ctx, "Category still referenced", log.FieldCategoryID, id)
			return fmt.Errorf("delete category %s: %w", before.Name, ErrCategoryInUse)
		}
		return fmt.Errorf("delete category: %w", err)
	}
	s.audit.recordDelete(ctx, core.EntityCategory, id, fmt.Sprintf("Removed category %s", before.Name), before)
	return nil
}

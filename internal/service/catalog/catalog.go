// Package catalog serves product and category reads and the admin mutations.
// Hot read paths go through the shared cache component; every mutation
// invalidates the keys it touches.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/trowool/yarnshop/internal/cache"
	"github.com/trowool/yarnshop/internal/logging"
	"github.com/trowool/yarnshop/internal/models"
)

var ErrNotFound = errors.New("not found")

const (
	categoriesKey = "catalog:categories"
	categoriesTTL = time.Hour
	productKeyFmt = "catalog:product:%d"
	productTTL    = 5 * time.Minute
)

type Service struct {
	DB    *gorm.DB
	Cache *cache.Cache
}

func productKey(id uint) string {
	return fmt.Sprintf(productKeyFmt, id)
}

func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if found, err := s.Cache.GetJSON(ctx, categoriesKey, &categories); found {
		return categories, nil
	} else if err != nil {
		logging.FromContext(ctx).Warn("category cache read failed", "error", err)
	}

	if err := s.DB.WithContext(ctx).Order("id ASC").Find(&categories).Error; err != nil {
		return nil, err
	}

	if err := s.Cache.SetJSON(ctx, categoriesKey, categories, categoriesTTL); err != nil {
		logging.FromContext(ctx).Warn("category cache write failed", "error", err)
	}
	return categories, nil
}

// Products lists the catalog newest first, optionally filtered by category.
// categoryID 0 means no filter.
func (s *Service) Products(ctx context.Context, categoryID uint, offset, limit int) ([]models.Product, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.Product{})
	if categoryID != 0 {
		q = q.Where("category_id = ?", categoryID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.Product
	err := q.Preload("Images").
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) Product(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if found, err := s.Cache.GetJSON(ctx, productKey(id), &product); found {
		return &product, nil
	} else if err != nil {
		logging.FromContext(ctx).Warn("product cache read failed", "id", id, "error", err)
	}

	err := s.DB.WithContext(ctx).Preload("Images").First(&product, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := s.Cache.SetJSON(ctx, productKey(id), &product, productTTL); err != nil {
		logging.FromContext(ctx).Warn("product cache write failed", "id", id, "error", err)
	}
	return &product, nil
}

func (s *Service) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := s.DB.WithContext(ctx).Create(product).Error; err != nil {
		return err
	}
	return s.invalidate(ctx, product.ID)
}

func (s *Service) UpdateProduct(ctx context.Context, product *models.Product) error {
	if err := s.DB.WithContext(ctx).Save(product).Error; err != nil {
		return err
	}
	return s.invalidate(ctx, product.ID)
}

func (s *Service) DeleteProduct(ctx context.Context, id uint) error {
	if err := s.DB.WithContext(ctx).Delete(&models.Product{}, id).Error; err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *Service) invalidate(ctx context.Context, productID uint) error {
	if err := s.Cache.Invalidate(ctx, productKey(productID), categoriesKey); err != nil {
		logging.FromContext(ctx).Warn("cache invalidation failed", "id", productID, "error", err)
	}
	return nil
}

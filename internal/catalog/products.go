package catalog

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openmerce/openmerce/internal/domain"
	"github.com/openmerce/openmerce/internal/errs"
	"github.com/openmerce/openmerce/pkg/common"
)

// ProductInput carries product create/update fields. Monetary amounts
// are minor currency units.
type ProductInput struct {
	Name              string
	Slug              string
	Sku               string
	Description       string
	ShortDescription  string
	Price             int64
	ComparePrice      int64
	Cost              int64
	StockQuantity     int
	LowStockThreshold int
	TrackInventory    bool
	IsActive          bool
	IsFeatured        bool
	MainImage         string
	CategoryIDs       []int64
}

func (in *ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return errs.Validationf("name", "is required")
	}
	if strings.TrimSpace(in.Sku) == "" {
		return errs.Validationf("sku", "is required")
	}
	if in.Price < 0 {
		return errs.Validationf("price", "must not be negative")
	}
	if in.StockQuantity < 0 {
		return errs.Validationf("stock_quantity", "must not be negative")
	}
	return nil
}

// CreateProduct inserts a product and links its categories.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	product := &domain.Product{
		ID:                common.UUIDint64(),
		Name:              strings.TrimSpace(in.Name),
		Slug:              strings.TrimSpace(in.Slug),
		Sku:               strings.TrimSpace(in.Sku),
		Description:       in.Description,
		ShortDescription:  in.ShortDescription,
		Price:             in.Price,
		ComparePrice:      in.ComparePrice,
		Cost:              in.Cost,
		StockQuantity:     in.StockQuantity,
		LowStockThreshold: in.LowStockThreshold,
		TrackInventory:    in.TrackInventory,
		IsActive:          in.IsActive,
		IsFeatured:        in.IsFeatured,
		MainImage:         in.MainImage,
	}
	if product.Slug == "" {
		product.Slug = common.Slugify(product.Name)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.Product{}).
			Where("slug = ? OR sku = ?", product.Slug, product.Sku).Count(&n).Error; err != nil {
			return errors.Wrap(err, "check slug/sku")
		}
		if n > 0 {
			return errors.Wrapf(errs.ErrUniquenessConflict, "slug %q or sku %q", product.Slug, product.Sku)
		}

		cats, err := s.loadCategories(tx, in.CategoryIDs)
		if err != nil {
			return err
		}
		product.Categories = cats

		return errors.Wrap(tx.Create(product).Error, "create product")
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("product created", zap.String("sku", product.Sku), zap.Int64("id", product.ID))
	return product, nil
}

// UpdateProduct applies changed fields and replaces category links
// when CategoryIDs is non-nil.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var product domain.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "product %d", id)
			}
			return errors.Wrap(err, "load product")
		}

		slug := strings.TrimSpace(in.Slug)
		if slug == "" {
			slug = product.Slug
		}
		sku := strings.TrimSpace(in.Sku)

		var n int64
		if err := tx.Model(&domain.Product{}).
			Where("(slug = ? OR sku = ?) AND id <> ?", slug, sku, id).Count(&n).Error; err != nil {
			return errors.Wrap(err, "check slug/sku")
		}
		if n > 0 {
			return errors.Wrapf(errs.ErrUniquenessConflict, "slug %q or sku %q", slug, sku)
		}

		product.Name = strings.TrimSpace(in.Name)
		product.Slug = slug
		product.Sku = sku
		product.Description = in.Description
		product.ShortDescription = in.ShortDescription
		product.Price = in.Price
		product.ComparePrice = in.ComparePrice
		product.Cost = in.Cost
		product.StockQuantity = in.StockQuantity
		product.LowStockThreshold = in.LowStockThreshold
		product.TrackInventory = in.TrackInventory
		product.IsActive = in.IsActive
		product.IsFeatured = in.IsFeatured
		product.MainImage = in.MainImage

		if err := tx.Save(&product).Error; err != nil {
			return errors.Wrap(err, "update product")
		}

		if in.CategoryIDs != nil {
			cats, err := s.loadCategories(tx, in.CategoryIDs)
			if err != nil {
				return err
			}
			if err := tx.Model(&product).Association("Categories").Replace(cats); err != nil {
				return errors.Wrap(err, "replace categories")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// DeleteProduct soft-deletes a product. Historical order items keep
// their snapshots; cancellation simply skips restocking it.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&domain.Product{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete product")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(errs.ErrNotFound, "product %d", id)
	}
	return nil
}

// AdjustStock applies a manual stock correction. Negative deltas are
// conditional so the stored quantity can never go below zero.
func (s *Service) AdjustStock(ctx context.Context, id int64, delta int) error {
	if delta == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product domain.Product
		if err := tx.First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "product %d", id)
			}
			return errors.Wrap(err, "load product")
		}

		query := tx.Model(&domain.Product{}).Where("id = ?", id)
		if delta < 0 {
			query = query.Where("stock_quantity >= ?", -delta)
		}
		res := query.UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", delta))
		if res.Error != nil {
			return errors.Wrap(res.Error, "adjust stock")
		}
		if res.RowsAffected == 0 {
			return &errs.InsufficientStockError{
				ProductID: product.ID,
				Product:   product.Name,
				Requested: -delta,
				Available: product.StockQuantity,
			}
		}
		return nil
	})
}

// LowStockProducts lists active tracked products at or below their
// low-stock threshold. The scheduler's scan job reports on these.
func (s *Service) LowStockProducts(ctx context.Context) ([]*domain.Product, error) {
	var rows []*domain.Product
	err := s.db.WithContext(ctx).
		Where("track_inventory = ? AND is_active = ?", true, true).
		Where("stock_quantity <= low_stock_threshold").
		Order("stock_quantity ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "query low stock products")
	}
	return rows, nil
}

// GetProduct loads one product with its categories.
func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	err := s.db.WithContext(ctx).Preload("Categories").First(&product, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(errs.ErrNotFound, "product %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load product")
	}
	return &product, nil
}

// ProductsInCategory lists active products of a category. With
// includeSubtree the listing is broadened to all descendant
// categories.
func (s *Service) ProductsInCategory(ctx context.Context, categoryID int64, includeSubtree bool) ([]*domain.Product, error) {
	ids := []int64{categoryID}
	if includeSubtree {
		desc, err := s.DescendantIDs(ctx, categoryID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, desc...)
	}

	var rows []*domain.Product
	err := s.db.WithContext(ctx).Model(&domain.Product{}).
		Joins("JOIN product_categories pc ON pc.product_id = products.id").
		Where("pc.category_id IN ?", ids).
		Where("products.is_active = ?", true).
		Distinct().
		Order("products.created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "query category products")
	}
	return rows, nil
}

func (s *Service) loadCategories(tx *gorm.DB, ids []int64) ([]*domain.Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var cats []*domain.Category
	if err := tx.Find(&cats, ids).Error; err != nil {
		return nil, errors.Wrap(err, "load categories")
	}
	if len(cats) != len(ids) {
		return nil, errors.Wrap(errs.ErrNotFound, "one or more categories")
	}
	return cats, nil
}

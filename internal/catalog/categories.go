package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openmerce/openmerce/internal/domain"
	"github.com/openmerce/openmerce/internal/errs"
	"github.com/openmerce/openmerce/pkg/common"
)

// maxTreeDepth bounds every ancestor walk. The parent graph is kept
// acyclic by SetParent, but stored data is never trusted: a walk that
// exceeds this many hops stops hard instead of spinning.
const maxTreeDepth = 512

// Service maintains the category tree and the product catalog.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CategoryInput carries category create/update fields.
type CategoryInput struct {
	Name        string
	Slug        string
	Description string
	Image       string
	ParentID    *int64
	IsActive    bool
	SortOrder   int
}

// CreateCategory inserts a category. When no slug is given one is
// derived from the name and suffixed until unique.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*domain.Category, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, errs.Validationf("name", "is required")
	}

	cat := &domain.Category{
		ID:          common.UUIDint64(),
		Name:        strings.TrimSpace(in.Name),
		Slug:        strings.TrimSpace(in.Slug),
		Description: in.Description,
		Image:       in.Image,
		IsActive:    in.IsActive,
		SortOrder:   in.SortOrder,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.ParentID != nil {
			var parent domain.Category
			if err := tx.First(&parent, *in.ParentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errors.Wrapf(errs.ErrNotFound, "parent category %d", *in.ParentID)
				}
				return errors.Wrap(err, "load parent category")
			}
			cat.ParentID = in.ParentID
		}

		if cat.Slug == "" {
			slug, err := s.uniqueSlug(tx, common.Slugify(cat.Name), 0)
			if err != nil {
				return err
			}
			cat.Slug = slug
		} else {
			var n int64
			if err := tx.Model(&domain.Category{}).Where("slug = ?", cat.Slug).Count(&n).Error; err != nil {
				return errors.Wrap(err, "check slug")
			}
			if n > 0 {
				return errors.Wrapf(errs.ErrUniquenessConflict, "slug %q", cat.Slug)
			}
		}

		return errors.Wrap(tx.Create(cat).Error, "create category")
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("category created", zap.String("slug", cat.Slug), zap.Int64("id", cat.ID))
	return cat, nil
}

// UpdateCategory applies non-hierarchy fields. Parent changes go
// through SetParent so every reparent is cycle-checked.
func (s *Service) UpdateCategory(ctx context.Context, id int64, in CategoryInput) (*domain.Category, error) {
	var cat domain.Category
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&cat, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "category %d", id)
			}
			return errors.Wrap(err, "load category")
		}

		if name := strings.TrimSpace(in.Name); name != "" {
			cat.Name = name
		}
		if slug := strings.TrimSpace(in.Slug); slug != "" && slug != cat.Slug {
			var n int64
			if err := tx.Model(&domain.Category{}).
				Where("slug = ? AND id <> ?", slug, id).Count(&n).Error; err != nil {
				return errors.Wrap(err, "check slug")
			}
			if n > 0 {
				return errors.Wrapf(errs.ErrUniquenessConflict, "slug %q", slug)
			}
			cat.Slug = slug
		}
		cat.Description = in.Description
		cat.Image = in.Image
		cat.IsActive = in.IsActive
		cat.SortOrder = in.SortOrder

		return errors.Wrap(tx.Save(&cat).Error, "update category")
	})
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// SetParent reparents a category, or moves it to top level when
// parentID is nil. Rejects self-parenting and any assignment that
// would introduce a cycle.
func (s *Service) SetParent(ctx context.Context, id int64, parentID *int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cat domain.Category
		if err := tx.First(&cat, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "category %d", id)
			}
			return errors.Wrap(err, "load category")
		}

		if parentID != nil {
			if *parentID == id {
				return errs.ErrSelfParent
			}
			var parent domain.Category
			if err := tx.First(&parent, *parentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errors.Wrapf(errs.ErrNotFound, "parent category %d", *parentID)
				}
				return errors.Wrap(err, "load parent category")
			}
			ok, err := s.ancestorChainClearOf(tx, *parentID, id)
			if err != nil {
				return err
			}
			if !ok {
				return errs.ErrCircularReference
			}
		}

		return errors.Wrap(tx.Model(&domain.Category{}).Where("id = ?", id).
			Update("parent_id", parentID).Error, "update parent")
	})
}

// ancestorChainClearOf walks upward from startID and reports whether
// forbiddenID is absent from the chain. The walk is iterative with a
// visited set; a pre-existing cycle in stored data terminates the walk
// rather than looping.
func (s *Service) ancestorChainClearOf(tx *gorm.DB, startID, forbiddenID int64) (bool, error) {
	visited := map[int64]bool{}
	current := startID
	for hops := 0; hops < maxTreeDepth; hops++ {
		if current == forbiddenID {
			return false, nil
		}
		if visited[current] {
			return true, nil
		}
		visited[current] = true

		var cat domain.Category
		if err := tx.Select("id", "parent_id").First(&cat, current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return true, nil
			}
			return false, errors.Wrap(err, "walk ancestors")
		}
		if cat.ParentID == nil {
			return true, nil
		}
		current = *cat.ParentID
	}
	return true, nil
}

// DeleteCategory removes a category. Deletion is refused while any
// product or child category still references it; there is deliberately
// no cascade.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cat domain.Category
		if err := tx.First(&cat, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "category %d", id)
			}
			return errors.Wrap(err, "load category")
		}

		var productCount int64
		err := tx.Model(&domain.Product{}).
			Joins("JOIN product_categories pc ON pc.product_id = products.id").
			Where("pc.category_id = ?", id).
			Count(&productCount).Error
		if err != nil {
			return errors.Wrap(err, "count category products")
		}
		if productCount > 0 {
			return errors.Wrapf(errs.ErrHasProducts, "category %q has %d products", cat.Slug, productCount)
		}

		var childCount int64
		if err := tx.Model(&domain.Category{}).Where("parent_id = ?", id).Count(&childCount).Error; err != nil {
			return errors.Wrap(err, "count children")
		}
		if childCount > 0 {
			return errors.Wrapf(errs.ErrHasChildren, "category %q has %d subcategories", cat.Slug, childCount)
		}

		return errors.Wrap(tx.Delete(&cat).Error, "delete category")
	})
}

// Tree returns the category forest depth-first, children ordered by
// (sort_order, name) at every level. It is recomputed on each call.
func (s *Service) Tree(ctx context.Context, activeOnly bool) ([]*domain.CategoryNode, error) {
	query := s.db.WithContext(ctx).Model(&domain.Category{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var cats []*domain.Category
	if err := query.Order("sort_order ASC, name ASC").Find(&cats).Error; err != nil {
		return nil, errors.Wrap(err, "load categories")
	}

	nodes := make(map[int64]*domain.CategoryNode, len(cats))
	for _, c := range cats {
		nodes[c.ID] = &domain.CategoryNode{Category: *c, Children: []*domain.CategoryNode{}}
	}

	var roots []*domain.CategoryNode
	for _, c := range cats {
		node := nodes[c.ID]
		if c.ParentID != nil {
			if parent, ok := nodes[*c.ParentID]; ok && *c.ParentID != c.ID {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	// Input order already follows (sort_order, name); appends preserve
	// it per level, so only the root slice needs a final sort when
	// orphaned subtrees were promoted.
	sort.SliceStable(roots, func(i, j int) bool {
		if roots[i].SortOrder != roots[j].SortOrder {
			return roots[i].SortOrder < roots[j].SortOrder
		}
		return roots[i].Name < roots[j].Name
	})
	return roots, nil
}

// DescendantIDs collects every category reachable below id, excluding
// id itself. The walk is breadth-first with a visited set so malformed
// cyclic data cannot loop it.
func (s *Service) DescendantIDs(ctx context.Context, id int64) ([]int64, error) {
	var cats []*domain.Category
	err := s.db.WithContext(ctx).Model(&domain.Category{}).
		Select("id", "parent_id").Find(&cats).Error
	if err != nil {
		return nil, errors.Wrap(err, "load categories")
	}

	children := make(map[int64][]int64, len(cats))
	for _, c := range cats {
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c.ID)
		}
	}

	var out []int64
	visited := map[int64]bool{id: true}
	queue := append([]int64{}, children[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if visited[next] {
			continue
		}
		visited[next] = true
		out = append(out, next)
		queue = append(queue, children[next]...)
	}
	return out, nil
}

// ReorderItem assigns a new sibling position to one category.
type ReorderItem struct {
	ID        int64
	SortOrder int
}

// Reorder applies a batch of sort_order changes in one transaction.
func (s *Service) Reorder(ctx context.Context, items []ReorderItem) error {
	if len(items) == 0 {
		return errs.Validationf("categories", "at least one entry is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, it := range items {
			res := tx.Model(&domain.Category{}).Where("id = ?", it.ID).
				Update("sort_order", it.SortOrder)
			if res.Error != nil {
				return errors.Wrap(res.Error, "update sort order")
			}
			if res.RowsAffected == 0 {
				return errors.Wrapf(errs.ErrNotFound, "category %d", it.ID)
			}
		}
		return nil
	})
}

// GetCategoryBySlug loads one category by its slug.
func (s *Service) GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	var cat domain.Category
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(errs.ErrNotFound, "category %q", slug)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load category")
	}
	return &cat, nil
}

func (s *Service) uniqueSlug(tx *gorm.DB, base string, excludeID int64) (string, error) {
	if base == "" {
		base = "category"
	}
	slug := base
	for i := 1; ; i++ {
		var n int64
		query := tx.Model(&domain.Category{}).Where("slug = ?", slug)
		if excludeID != 0 {
			query = query.Where("id <> ?", excludeID)
		}
		if err := query.Count(&n).Error; err != nil {
			return "", errors.Wrap(err, "check slug")
		}
		if n == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

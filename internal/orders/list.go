package orders

import (
	"context"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"

	"github.com/openmerce/openmerce/internal/domain"
	"github.com/openmerce/openmerce/internal/errs"
)

// ListFilter narrows an order listing. FromDate/ToDate accept any
// layout dateparse understands; blank fields are ignored.
type ListFilter struct {
	CustomerID    int64
	Status        string
	PaymentStatus string
	FromDate      string
	ToDate        string
	Offset        int
	Limit         int
}

const defaultListLimit = 50

// List returns matching orders newest first plus the unpaginated
// total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*domain.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&domain.Order{})

	if filter.CustomerID != 0 {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PaymentStatus != "" {
		query = query.Where("payment_status = ?", filter.PaymentStatus)
	}
	if strings.TrimSpace(filter.FromDate) != "" {
		from, err := dateparse.ParseAny(filter.FromDate)
		if err != nil {
			return nil, 0, errs.Validationf("from_date", "unparseable date %q", filter.FromDate)
		}
		query = query.Where("created_at >= ?", from)
	}
	if strings.TrimSpace(filter.ToDate) != "" {
		to, err := dateparse.ParseAny(filter.ToDate)
		if err != nil {
			return nil, 0, errs.Validationf("to_date", "unparseable date %q", filter.ToDate)
		}
		query = query.Where("created_at <= ?", to)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var rows []*domain.Order
	err := query.Preload("Items").
		Order("created_at DESC").
		Offset(filter.Offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "query orders")
	}
	return rows, total, nil
}

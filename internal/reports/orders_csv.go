package reports

import (
	"context"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/openmerce/openmerce/internal/orders"
	"github.com/openmerce/openmerce/pkg/common"
)

// OrderExportRow is one CSV line of the order export.
type OrderExportRow struct {
	OrderNumber   string `csv:"order_number"`
	CustomerID    int64  `csv:"customer_id"`
	Status        string `csv:"status"`
	PaymentStatus string `csv:"payment_status"`
	PaymentMethod string `csv:"payment_method"`
	Items         int    `csv:"items"`
	Subtotal      string `csv:"subtotal"`
	ShippingFee   string `csv:"shipping_fee"`
	Discount      string `csv:"discount"`
	Total         string `csv:"total"`
	Currency      string `csv:"currency"`
	CreatedAt     string `csv:"created_at"`
}

// Exporter renders order listings as CSV for back-office use.
type Exporter struct {
	orders *orders.Service
}

func NewExporter(svc *orders.Service) *Exporter {
	return &Exporter{orders: svc}
}

// ExportCSV writes every order matching the filter. Pagination fields
// on the filter are ignored; the export walks the full result set in
// pages.
func (e *Exporter) ExportCSV(ctx context.Context, filter orders.ListFilter, w io.Writer) error {
	const pageSize = 500
	filter.Limit = pageSize

	var rows []*OrderExportRow
	for offset := 0; ; offset += pageSize {
		filter.Offset = offset
		page, total, err := e.orders.List(ctx, filter)
		if err != nil {
			return err
		}
		for _, o := range page {
			rows = append(rows, &OrderExportRow{
				OrderNumber:   o.OrderNumber,
				CustomerID:    o.CustomerID,
				Status:        o.Status,
				PaymentStatus: o.PaymentStatus,
				PaymentMethod: o.PaymentMethod,
				Items:         len(o.Items),
				Subtotal:      common.FormatAmount(o.Subtotal),
				ShippingFee:   common.FormatAmount(o.ShippingFee),
				Discount:      common.FormatAmount(o.Discount),
				Total:         common.FormatAmount(o.Total),
				Currency:      o.Currency,
				CreatedAt:     o.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		if int64(offset+len(page)) >= total || len(page) == 0 {
			break
		}
	}

	return errors.Wrap(gocsv.Marshal(&rows, w), "write csv")
}

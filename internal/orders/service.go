package orders

import (
	"context"
	"strings"
	"time"

	"github.com/asaskevich/EventBus"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openmerce/openmerce/internal/domain"
	"github.com/openmerce/openmerce/internal/errs"
	"github.com/openmerce/openmerce/internal/events"
	"github.com/openmerce/openmerce/pkg/common"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Service implements the order workflow: placement with stock
// reservation, cancellation with stock restoration, and status
// transitions. Every mutation runs inside a single database
// transaction.
type Service struct {
	db       *gorm.DB
	bus      EventBus.Bus
	Currency string
}

// NewService creates an order service. bus may be nil when no
// subscribers are interested in order events.
func NewService(db *gorm.DB, bus EventBus.Bus) *Service {
	return &Service{db: db, bus: bus, Currency: "USD"}
}

// LineItem is one requested product line.
type LineItem struct {
	ProductID int64
	Quantity  int
}

// PlaceOrderInput carries everything needed to create an order.
type PlaceOrderInput struct {
	CustomerID      int64
	Items           []LineItem
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
	ShippingFee     int64
	Notes           string
}

var paymentMethods = map[string]bool{
	domain.PaymentMethodCOD:          true,
	domain.PaymentMethodBankTransfer: true,
	domain.PaymentMethodCreditCard:   true,
}

func (in *PlaceOrderInput) validate() error {
	if in.CustomerID == 0 {
		return errs.Validationf("customer_id", "is required")
	}
	if len(in.Items) == 0 {
		return errs.Validationf("items", "at least one item is required")
	}
	for _, it := range in.Items {
		if it.ProductID == 0 {
			return errs.Validationf("items.product_id", "is required")
		}
		if it.Quantity < 1 {
			return errs.Validationf("items.quantity", "must be at least 1")
		}
	}
	if !paymentMethods[in.PaymentMethod] {
		return errs.Validationf("payment_method", "unsupported method %q", in.PaymentMethod)
	}
	if in.ShippingFee < 0 {
		return errs.Validationf("shipping_fee", "must not be negative")
	}
	addr := in.ShippingAddress
	for field, v := range map[string]string{
		"recipient_name": addr.RecipientName,
		"phone":          addr.Phone,
		"street_address": addr.StreetAddress,
		"city":           addr.City,
		"postal_code":    addr.PostalCode,
		"country":        addr.Country,
	} {
		if strings.TrimSpace(v) == "" {
			return errs.Validationf("shipping_address."+field, "is required")
		}
	}
	return nil
}

// PlaceOrder creates an order atomically: the header, one snapshot
// item per line and the stock decrements all commit together or not
// at all. Stock is reserved with a conditional decrement so that
// concurrent orders can never oversell a tracked product.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*domain.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	addrJSON, err := json.Marshal(in.ShippingAddress)
	if err != nil {
		return nil, errors.Wrap(err, "marshal shipping address")
	}

	order := &domain.Order{
		ID:              common.UUIDint64(),
		OrderNumber:     common.GenerateOrderNumber(),
		CustomerID:      in.CustomerID,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   in.PaymentMethod,
		ShippingFee:     in.ShippingFee,
		Currency:        s.Currency,
		Notes:           in.Notes,
		ShippingAddress: string(addrJSON),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer domain.Customer
		if err := tx.First(&customer, in.CustomerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "customer %d", in.CustomerID)
			}
			return errors.Wrap(err, "load customer")
		}

		// Header first with placeholder totals; the unique index on
		// order_number is the final arbiter of number uniqueness.
		if err := tx.Create(order).Error; err != nil {
			if isDuplicate(err) {
				return errors.Wrap(errs.ErrUniquenessConflict, "order number")
			}
			return errors.Wrap(err, "create order")
		}

		var subtotal int64
		for _, it := range in.Items {
			var product domain.Product
			if err := tx.First(&product, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errors.Wrapf(errs.ErrNotFound, "product %d", it.ProductID)
				}
				return errors.Wrap(err, "load product")
			}

			if product.TrackInventory {
				// Conditional decrement: the WHERE clause is the
				// oversell gate, not the read above.
				res := tx.Model(&domain.Product{}).
					Where("id = ? AND stock_quantity >= ?", product.ID, it.Quantity).
					UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", it.Quantity))
				if res.Error != nil {
					return errors.Wrap(res.Error, "decrement stock")
				}
				if res.RowsAffected == 0 {
					return &errs.InsufficientStockError{
						ProductID: product.ID,
						Product:   product.Name,
						Requested: it.Quantity,
						Available: product.StockQuantity,
					}
				}
			}

			item := &domain.OrderItem{
				ID:          common.UUIDint64(),
				OrderID:     order.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				ProductSku:  product.Sku,
				Price:       product.Price,
				Quantity:    it.Quantity,
				Subtotal:    product.Price * int64(it.Quantity),
			}
			if err := tx.Create(item).Error; err != nil {
				return errors.Wrap(err, "create order item")
			}
			order.Items = append(order.Items, item)
			subtotal += item.Subtotal
		}

		order.Subtotal = subtotal
		order.Total = orderTotal(order)
		return tx.Model(&domain.Order{}).Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"subtotal": order.Subtotal,
				"total":    order.Total,
			}).Error
	})
	if err != nil {
		order.Items = nil
		return nil, err
	}

	zap.L().Info("order placed",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("customer_id", order.CustomerID),
		zap.Int64("total", order.Total))
	s.publish(events.TopicOrderCreated, order)
	return order, nil
}

// CancelOrder cancels a pending or processing order and restores the
// reserved stock. Restoration is best-effort against the current
// catalog: items whose product has since been removed are skipped.
func (s *Service) CancelOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	var order domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "order %d", orderID)
			}
			return errors.Wrap(err, "load order")
		}

		if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusProcessing {
			return &errs.InvalidStateTransitionError{From: order.Status, To: domain.OrderStatusCancelled}
		}

		for _, it := range order.Items {
			var product domain.Product
			if err := tx.First(&product, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return errors.Wrap(err, "load product")
			}
			if !product.TrackInventory {
				continue
			}
			if err := tx.Model(&domain.Product{}).Where("id = ?", product.ID).
				UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", it.Quantity)).Error; err != nil {
				return errors.Wrap(err, "restore stock")
			}
		}

		order.Status = domain.OrderStatusCancelled
		return tx.Model(&domain.Order{}).Where("id = ?", order.ID).
			Update("status", domain.OrderStatusCancelled).Error
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("order cancelled", zap.String("order_number", order.OrderNumber))
	s.publish(events.TopicOrderCancelled, &order)
	return &order, nil
}

// allowedTransitions is the strict status table. Any change outside
// it is rejected with an InvalidStateTransitionError.
var allowedTransitions = map[string]map[string]bool{
	domain.OrderStatusPending: {
		domain.OrderStatusProcessing: true,
		domain.OrderStatusCancelled:  true,
		domain.OrderStatusRefunded:   true,
	},
	domain.OrderStatusProcessing: {
		domain.OrderStatusShipped:   true,
		domain.OrderStatusCancelled: true,
		domain.OrderStatusRefunded:  true,
	},
	domain.OrderStatusShipped: {
		domain.OrderStatusDelivered: true,
		domain.OrderStatusRefunded:  true,
	},
	domain.OrderStatusDelivered: {
		domain.OrderStatusRefunded: true,
	},
	domain.OrderStatusCancelled: {
		domain.OrderStatusRefunded: true,
	},
	domain.OrderStatusRefunded: {},
}

// UpdateStatus moves an order through the status machine. Transitions
// to shipped and delivered stamp their timestamps. Cancellation is
// delegated to CancelOrder so stock restoration is never bypassed.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, newStatus string) (*domain.Order, error) {
	if _, known := allowedTransitions[newStatus]; !known {
		return nil, errs.Validationf("status", "unknown status %q", newStatus)
	}
	if newStatus == domain.OrderStatusCancelled {
		return s.CancelOrder(ctx, orderID)
	}

	var order domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "order %d", orderID)
			}
			return errors.Wrap(err, "load order")
		}

		if !allowedTransitions[order.Status][newStatus] {
			return &errs.InvalidStateTransitionError{From: order.Status, To: newStatus}
		}

		updates := map[string]interface{}{"status": newStatus}
		now := time.Now()
		switch newStatus {
		case domain.OrderStatusShipped:
			order.ShippedAt = &now
			updates["shipped_at"] = now
		case domain.OrderStatusDelivered:
			order.DeliveredAt = &now
			updates["delivered_at"] = now
		}
		order.Status = newStatus
		return tx.Model(&domain.Order{}).Where("id = ?", order.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.TopicOrderStatus, &order)
	return &order, nil
}

// MarkPaid records a successful payment.
func (s *Service) MarkPaid(ctx context.Context, orderID int64) (*domain.Order, error) {
	var order domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "order %d", orderID)
			}
			return errors.Wrap(err, "load order")
		}
		if order.PaymentStatus != domain.PaymentStatusPending {
			return errs.Validationf("payment_status", "order is %s", order.PaymentStatus)
		}
		now := time.Now()
		order.PaymentStatus = domain.PaymentStatusPaid
		order.PaidAt = &now
		return tx.Model(&domain.Order{}).Where("id = ?", order.ID).
			Updates(map[string]interface{}{"payment_status": domain.PaymentStatusPaid, "paid_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Get loads an order with its items.
func (s *Service) Get(ctx context.Context, orderID int64) (*domain.Order, error) {
	var order domain.Order
	err := s.db.WithContext(ctx).Preload("Items").First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(errs.ErrNotFound, "order %d", orderID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}
	return &order, nil
}

func orderTotal(o *domain.Order) int64 {
	return o.Subtotal + o.Tax + o.ShippingFee - o.Discount
}

func (s *Service) publish(topic string, order *domain.Order) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(topic, events.OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Status:      order.Status,
		Total:       order.Total,
	})
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key")
}

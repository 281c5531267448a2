package domain

import "time"

// Order statuses.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// Payment statuses.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Payment methods accepted at order creation.
const (
	PaymentMethodCOD          = "cod"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCreditCard   = "credit_card"
)

// ShippingAddress is the address snapshot embedded in an order. It is
// copied at creation time so later address edits never change
// historical orders.
type ShippingAddress struct {
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	StreetAddress string `json:"street_address"`
	City          string `json:"city"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
}

// Order is an order header. Monetary amounts are minor currency units.
// Invariant: Total == Subtotal + Tax + ShippingFee - Discount.
type Order struct {
	ID              int64        `gorm:"primaryKey" json:"id,string"`
	OrderNumber     string       `gorm:"size:64;uniqueIndex" json:"order_number"`
	CustomerID      int64        `gorm:"index" json:"customer_id,string"`
	Status          string       `gorm:"size:32;index" json:"status"`
	PaymentStatus   string       `gorm:"size:32;index" json:"payment_status"`
	PaymentMethod   string       `gorm:"size:32" json:"payment_method"`
	Subtotal        int64        `json:"subtotal"`
	Tax             int64        `json:"tax"`
	ShippingFee     int64        `json:"shipping_fee"`
	Discount        int64        `json:"discount"`
	Total           int64        `json:"total"`
	Currency        string       `gorm:"size:8" json:"currency"`
	Notes           string       `json:"notes"`
	ShippingAddress string       `gorm:"type:text" json:"shipping_address"`
	Items           []*OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	PaidAt          *time.Time   `json:"paid_at,omitempty"`
	ShippedAt       *time.Time   `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time   `json:"delivered_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// TableName Specify table name
func (Order) TableName() string {
	return "orders"
}

// OrderItem snapshots a product line at order time. Immutable once
// created.
type OrderItem struct {
	ID          int64     `gorm:"primaryKey" json:"id,string"`
	OrderID     int64     `gorm:"index" json:"order_id,string"`
	ProductID   int64     `gorm:"index" json:"product_id,string"`
	ProductName string    `json:"product_name"`
	ProductSku  string    `gorm:"size:64" json:"product_sku"`
	Price       int64     `json:"price"`
	Quantity    int       `json:"quantity"`
	Subtotal    int64     `json:"subtotal"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName Specify table name
func (OrderItem) TableName() string {
	return "order_items"
}

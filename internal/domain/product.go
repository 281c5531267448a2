package domain

import (
	"time"

	"gorm.io/gorm"
)

// Product is a catalog item. All monetary amounts are stored in minor
// currency units (cents).
type Product struct {
	ID                int64          `gorm:"primaryKey" json:"id,string"`
	Name              string         `gorm:"index" json:"name"`
	Slug              string         `gorm:"size:255;uniqueIndex" json:"slug"`
	Sku               string         `gorm:"size:64;uniqueIndex" json:"sku"`
	Description       string         `json:"description"`
	ShortDescription  string         `gorm:"size:512" json:"short_description"`
	Price             int64          `json:"price"`
	ComparePrice      int64          `json:"compare_price"`
	Cost              int64          `json:"cost"`
	StockQuantity     int            `json:"stock_quantity"`
	LowStockThreshold int            `json:"low_stock_threshold"`
	TrackInventory    bool           `json:"track_inventory"`
	IsActive          bool           `json:"is_active"`
	IsFeatured        bool           `json:"is_featured"`
	MainImage         string         `gorm:"size:1024" json:"main_image"`
	Categories        []*Category    `gorm:"many2many:product_categories" json:"categories,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName Specify table name
func (Product) TableName() string {
	return "products"
}

// InStock reports whether the product can currently be sold.
// Untracked products have unlimited virtual stock.
func (p *Product) InStock() bool {
	if !p.TrackInventory {
		return true
	}
	return p.StockQuantity > 0
}

// LowStock reports whether a tracked product has fallen to or below its
// low-stock threshold.
func (p *Product) LowStock() bool {
	if !p.TrackInventory {
		return false
	}
	return p.StockQuantity <= p.LowStockThreshold
}

package domain

import (
	"time"

	"gorm.io/gorm"
)

// Category is a node in the catalog tree. ParentID is nil for
// top-level categories. The parent graph must stay acyclic; the
// catalog service validates every reparent before writing.
type Category struct {
	ID          int64          `gorm:"primaryKey" json:"id,string"`
	Name        string         `gorm:"index" json:"name"`
	Slug        string         `gorm:"size:255;uniqueIndex" json:"slug"`
	Description string         `json:"description"`
	Image       string         `gorm:"size:1024" json:"image"`
	ParentID    *int64         `gorm:"index" json:"parent_id,omitempty"`
	IsActive    bool           `json:"is_active"`
	SortOrder   int            `json:"sort_order"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName Specify table name
func (Category) TableName() string {
	return "categories"
}

// CategoryNode is a category with its resolved children, as returned
// by the tree operation. Children are ordered by (sort_order, name).
type CategoryNode struct {
	Category
	Children []*CategoryNode `json:"children"`
}

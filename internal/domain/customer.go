package domain

import "time"

// Customer is a storefront buyer.
type Customer struct {
	ID        int64     `gorm:"primaryKey" json:"id,string"`
	Name      string    `gorm:"index" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex" json:"email"`
	Phone     string    `gorm:"size:32" json:"phone"`
	Remark    string    `json:"remark"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Customer) TableName() string {
	return "customers"
}

// Address belongs to a customer. At most one address per customer has
// IsDefault set; the customers service maintains that transactionally.
type Address struct {
	ID            int64     `gorm:"primaryKey" json:"id,string"`
	CustomerID    int64     `gorm:"index" json:"customer_id,string"`
	Label         string    `gorm:"size:32" json:"label"`
	RecipientName string    `json:"recipient_name"`
	Phone         string    `gorm:"size:32" json:"phone"`
	StreetAddress string    `json:"street_address"`
	City          string    `gorm:"size:100" json:"city"`
	State         string    `gorm:"size:100" json:"state"`
	PostalCode    string    `gorm:"size:20" json:"postal_code"`
	Country       string    `gorm:"size:100" json:"country"`
	IsDefault     bool      `json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Address) TableName() string {
	return "addresses"
}

package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	&SysUser{},
	// Catalog
	&Category{},
	&Product{},
	// Customers
	&Customer{},
	&Address{},
	// Orders
	&Order{},
	&OrderItem{},
}

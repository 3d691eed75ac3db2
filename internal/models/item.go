package models

import "time"

// Item: a stocked product, counted in bottles. Cases are converted with BottlesPerCase.
type Item struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TenantID       uint      `gorm:"not null;uniqueIndex:idx_items_tenant_sku" json:"tenant_id"`
	Name           string    `gorm:"size:100;not null" json:"name"`
	SKU            string    `gorm:"size:50;not null;uniqueIndex:idx_items_tenant_sku" json:"sku"`
	SizeLabel      string    `gorm:"size:20;not null" json:"size_label"` // 500ml, 1L, 1.5L ...
	BottlesPerCase int       `gorm:"not null" json:"bottles_per_case"`
	CasePrice      float64   `gorm:"not null;default:0" json:"case_price"`
	BottlePrice    float64   `gorm:"not null;default:0" json:"bottle_price"`
	StockBottles   int       `gorm:"not null;default:0" json:"stock_bottles"`
	EmptyBottles   int       `gorm:"not null;default:0" json:"empty_bottles"`
	ReorderLevel   int       `gorm:"not null;default:0" json:"reorder_level"`
	Active         bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TotalBottles converts a cases + loose bottles pair to bottles.
func (i Item) TotalBottles(cases, bottles int) int {
	return cases*i.BottlesPerCase + bottles
}

// SplitBottles is the inverse of TotalBottles.
func (i Item) SplitBottles(total int) (cases, bottles int) {
	if i.BottlesPerCase <= 0 {
		return 0, total
	}
	return total / i.BottlesPerCase, total % i.BottlesPerCase
}

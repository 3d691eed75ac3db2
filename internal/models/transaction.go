package models

import "time"

type TransactionType string

const (
	TransactionLoading   TransactionType = "loading"   // warehouse -> lorry
	TransactionUnloading TransactionType = "unloading" // lorry -> warehouse
	TransactionSale      TransactionType = "sale"      // lorry -> customer
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionLoading, TransactionUnloading, TransactionSale:
		return true
	}
	return false
}

type Transaction struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	TenantID     uint            `gorm:"index;not null" json:"tenant_id"`
	LorryID      uint            `gorm:"index;not null" json:"lorry_id"`
	Lorry        Lorry           `json:"-"`
	ItemID       uint            `gorm:"index;not null" json:"item_id"`
	Item         Item            `json:"-"`
	Type         TransactionType `gorm:"size:20;not null;index" json:"type"`
	Date         time.Time       `gorm:"index;not null" json:"date"`
	Cases        int             `gorm:"not null;default:0" json:"cases"`
	Bottles      int             `gorm:"not null;default:0" json:"bottles"`
	TotalBottles int             `gorm:"not null" json:"total_bottles"`
	Amount       float64         `gorm:"not null;default:0" json:"amount"` // sale value, 0 for loading/unloading
	Note         string          `gorm:"size:255" json:"note"`
	CreatedBy    uint            `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type ReturnKind string

const (
	ReturnExpiry ReturnKind = "expiry" // spoiled stock, written off
	ReturnEmpty  ReturnKind = "empty"  // reclaimed empty containers
)

func (k ReturnKind) Valid() bool {
	return k == ReturnExpiry || k == ReturnEmpty
}

type Return struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	TenantID     uint       `gorm:"index;not null" json:"tenant_id"`
	LorryID      uint       `gorm:"index;not null" json:"lorry_id"`
	Lorry        Lorry      `json:"-"`
	ItemID       uint       `gorm:"index;not null" json:"item_id"`
	Item         Item       `json:"-"`
	Kind         ReturnKind `gorm:"size:20;not null;index" json:"kind"`
	Date         time.Time  `gorm:"index;not null" json:"date"`
	Cases        int        `gorm:"not null;default:0" json:"cases"`
	Bottles      int        `gorm:"not null;default:0" json:"bottles"`
	TotalBottles int        `gorm:"not null" json:"total_bottles"`
	Note         string     `gorm:"size:255" json:"note"`
	CreatedBy    uint       `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

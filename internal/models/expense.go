package models

import "time"

type ExpenseStatus string

const (
	ExpenseStatusPending       ExpenseStatus = "pending"
	ExpenseStatusPaid          ExpenseStatus = "paid"
	ExpenseStatusPartiallyPaid ExpenseStatus = "partially_paid"
	ExpenseStatusCancelled     ExpenseStatus = "cancelled"
)

func (s ExpenseStatus) Valid() bool {
	switch s {
	case ExpenseStatusPending, ExpenseStatusPaid, ExpenseStatusPartiallyPaid, ExpenseStatusCancelled:
		return true
	}
	return false
}

type ExpenseCategory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"index;not null" json:"tenant_id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Expense struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	TenantID    uint            `gorm:"index;not null" json:"tenant_id"`
	CategoryID  uint            `gorm:"index;not null" json:"category_id"`
	Category    ExpenseCategory `json:"-"`
	LorryID     *uint           `gorm:"index" json:"lorry_id"` // fuel, repairs ... charged to a lorry
	Date        time.Time       `gorm:"index;not null" json:"date"`
	DueDate     *time.Time      `json:"due_date"`
	Vendor      string          `gorm:"size:100" json:"vendor"`
	Amount      float64         `gorm:"not null" json:"amount"`
	PaidAmount  float64         `gorm:"not null;default:0" json:"paid_amount"`
	Status      ExpenseStatus   `gorm:"size:20;not null;index" json:"status"`
	Description string          `gorm:"size:255" json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Payments []ExpensePayment `gorm:"foreignKey:ExpenseID;constraint:OnDelete:CASCADE" json:"-"`
}

func (e Expense) Outstanding() float64 {
	if e.Status == ExpenseStatusCancelled {
		return 0
	}
	if out := e.Amount - e.PaidAmount; out > 0 {
		return out
	}
	return 0
}

// ExpensePayment: a (partial) settlement of an expense.
type ExpensePayment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"index;not null" json:"tenant_id"`
	ExpenseID uint      `gorm:"index;not null" json:"expense_id"`
	Date      time.Time `gorm:"not null" json:"date"`
	Amount    float64   `gorm:"not null" json:"amount"`
	Note      string    `gorm:"size:255" json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

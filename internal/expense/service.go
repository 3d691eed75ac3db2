package expense

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"depot-backend/internal/audit"
	"depot-backend/internal/database"
	"depot-backend/internal/models"

	"gorm.io/gorm"
)

const EntityExpense = "expense"

var (
	ErrExpenseNotFound   = errors.New("expense not found")
	ErrCategoryNotFound  = errors.New("expense category not found")
	ErrCategoryInUse     = errors.New("expense category is used by expenses")
	ErrDuplicateCategory = errors.New("an expense category with this name already exists")
	ErrExpenseCancelled  = errors.New("expense is cancelled")
	ErrOverpayment       = errors.New("payment exceeds the outstanding amount")
	ErrAmountBelowPaid   = errors.New("amount cannot be lower than the amount already paid")
	ErrPaidExceedsAmount = errors.New("paid_amount cannot exceed amount")
)

func init() {
	audit.Register(EntityExpense, expenseUndoer{})
}

const cent = 0.005

// DeriveStatus: cancelled is terminal, otherwise the paid share decides.
func DeriveStatus(amount, paid float64, cancelled bool) models.ExpenseStatus {
	switch {
	case cancelled:
		return models.ExpenseStatusCancelled
	case paid >= amount-cent:
		return models.ExpenseStatusPaid
	case paid > cent:
		return models.ExpenseStatusPartiallyPaid
	default:
		return models.ExpenseStatusPending
	}
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// Snapshot is what the audit log stores for an expense, payments included.
type Snapshot struct {
	Expense  models.Expense          `json:"expense"`
	Payments []models.ExpensePayment `json:"payments"`
}

func snapshotOf(tx *gorm.DB, e models.Expense) (Snapshot, error) {
	var payments []models.ExpensePayment
	if err := tx.Where("expense_id = ?", e.ID).Order("id").Find(&payments).Error; err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Expense: e, Payments: payments}, nil
}

// FindExpense loads an expense of the tenant.
func FindExpense(db *gorm.DB, tenantID, id uint) (models.Expense, error) {
	var e models.Expense
	err := db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e, ErrExpenseNotFound
	}
	return e, err
}

func findCategory(db *gorm.DB, tenantID, id uint) (models.ExpenseCategory, error) {
	var cat models.ExpenseCategory
	err := db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cat, ErrCategoryNotFound
	}
	return cat, err
}

type PaymentInput struct {
	Date   time.Time
	Amount float64
	Note   string
}

// AddPayment records a payment and moves the expense status forward.
func AddPayment(tx *gorm.DB, e *models.Expense, in PaymentInput) (models.ExpensePayment, error) {
	if e.Status == models.ExpenseStatusCancelled {
		return models.ExpensePayment{}, ErrExpenseCancelled
	}
	if e.PaidAmount+in.Amount > e.Amount+cent {
		return models.ExpensePayment{}, ErrOverpayment
	}

	p := models.ExpensePayment{
		TenantID:  e.TenantID,
		ExpenseID: e.ID,
		Date:      in.Date,
		Amount:    roundMoney(in.Amount),
		Note:      in.Note,
	}
	if err := tx.Create(&p).Error; err != nil {
		return p, fmt.Errorf("expense: create payment: %w", err)
	}

	e.PaidAmount = roundMoney(e.PaidAmount + p.Amount)
	e.Status = DeriveStatus(e.Amount, e.PaidAmount, false)
	if err := tx.Model(e).Updates(map[string]any{
		"paid_amount": e.PaidAmount,
		"status":      e.Status,
	}).Error; err != nil {
		return p, fmt.Errorf("expense: update totals: %w", err)
	}
	return p, nil
}

type expenseUndoer struct{}

func decodeSnapshot(raw []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("expense: decode snapshot: %w", err)
	}
	return s, nil
}

func (expenseUndoer) UndoCreate(tx *gorm.DB, entityID uint) error {
	if err := tx.Where("expense_id = ?", entityID).Delete(&models.ExpensePayment{}).Error; err != nil {
		return err
	}
	res := tx.Delete(&models.Expense{}, entityID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

// UndoUpdate reverts only what the logged update changed. Header fields that differ
// between the snapshots go back, payments the update added are removed, and payments
// recorded since stay. Paid amount and status are derived again from what is left.
func (expenseUndoer) UndoUpdate(tx *gorm.DB, entityID uint, before, after []byte) error {
	b, err := decodeSnapshot(before)
	if err != nil {
		return err
	}
	a, err := decodeSnapshot(after)
	if err != nil {
		return err
	}

	var e models.Expense
	if err := database.ForUpdate(tx).First(&e, entityID).Error; err != nil {
		return ErrExpenseNotFound
	}

	had := make(map[uint]bool, len(b.Payments))
	for _, p := range b.Payments {
		had[p.ID] = true
	}
	kept := make(map[uint]bool, len(a.Payments))
	var added []uint
	for _, p := range a.Payments {
		kept[p.ID] = true
		if !had[p.ID] {
			added = append(added, p.ID)
		}
	}
	if len(added) > 0 {
		if err := tx.Where("expense_id = ? AND id IN ?", entityID, added).Delete(&models.ExpensePayment{}).Error; err != nil {
			return err
		}
	}
	for _, p := range b.Payments {
		if kept[p.ID] {
			continue
		}
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("expense: restore payment: %w", err)
		}
	}

	be, ae := b.Expense, a.Expense
	if be.CategoryID != ae.CategoryID {
		if _, err := findCategory(tx, e.TenantID, be.CategoryID); err != nil {
			return err
		}
		e.CategoryID = be.CategoryID
	}
	if !sameID(be.LorryID, ae.LorryID) {
		e.LorryID = be.LorryID
	}
	if !be.Date.Equal(ae.Date) {
		e.Date = be.Date
	}
	if !sameTime(be.DueDate, ae.DueDate) {
		e.DueDate = be.DueDate
	}
	if be.Vendor != ae.Vendor {
		e.Vendor = be.Vendor
	}
	if be.Description != ae.Description {
		e.Description = be.Description
	}
	if be.Amount != ae.Amount {
		e.Amount = be.Amount
	}
	cancelled := e.Status == models.ExpenseStatusCancelled
	if wasCancelled := be.Status == models.ExpenseStatusCancelled; wasCancelled != (ae.Status == models.ExpenseStatusCancelled) {
		cancelled = wasCancelled
	}

	var paid float64
	if err := tx.Model(&models.ExpensePayment{}).Where("expense_id = ?", entityID).
		Select("COALESCE(SUM(amount), 0)").Scan(&paid).Error; err != nil {
		return err
	}
	e.PaidAmount = roundMoney(paid)
	if e.PaidAmount > e.Amount+cent {
		return ErrAmountBelowPaid
	}
	e.Status = DeriveStatus(e.Amount, e.PaidAmount, cancelled)
	return tx.Omit("Category").Save(&e).Error
}

func sameID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (expenseUndoer) UndoDelete(tx *gorm.DB, before []byte) error {
	s, err := decodeSnapshot(before)
	if err != nil {
		return err
	}
	if _, err := findCategory(tx, s.Expense.TenantID, s.Expense.CategoryID); err != nil {
		return err
	}
	if err := tx.Select("*").Create(&s.Expense).Error; err != nil {
		return err
	}
	if len(s.Payments) > 0 {
		return tx.Create(&s.Payments).Error
	}
	return nil
}

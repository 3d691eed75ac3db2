// Package transaction records lorry stock movements (loading, unloading, sale)
// and expiry / empty returns, keeping warehouse and lorry stock consistent.
package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"depot-backend/internal/audit"
	"depot-backend/internal/database"
	"depot-backend/internal/inventory"
	"depot-backend/internal/lorry"
	"depot-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	EntityTransaction = "transaction"
	EntityReturn      = "return"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrReturnNotFound      = errors.New("return not found")
	ErrInsufficientStock   = errors.New("not enough stock in the warehouse")
	ErrExceedsLorryStock   = errors.New("quantity exceeds the stock on the lorry")
	ErrNegativeEmpties     = errors.New("empty bottle count cannot go below zero")
	ErrInactiveLorry       = errors.New("lorry is inactive")
	ErrInactiveItem        = errors.New("item is inactive")
	ErrEmptyQuantity       = errors.New("quantity must be greater than zero")
	ErrNegativeQuantity    = errors.New("cases and bottles cannot be negative")
)

func init() {
	audit.Register(EntityTransaction, transactionUndoer{})
	audit.Register(EntityReturn, returnUndoer{})
}

type Input struct {
	Type      models.TransactionType
	LorryID   uint
	ItemID    uint
	Date      time.Time
	Cases     int
	Bottles   int
	Amount    *float64
	Note      string
	CreatedBy uint
}

type ReturnInput struct {
	Kind      models.ReturnKind
	LorryID   uint
	ItemID    uint
	Date      time.Time
	Cases     int
	Bottles   int
	Note      string
	CreatedBy uint
}

func quantity(item models.Item, cases, bottles int) (int, error) {
	if cases < 0 || bottles < 0 {
		return 0, ErrNegativeQuantity
	}
	total := item.TotalBottles(cases, bottles)
	if total <= 0 {
		return 0, ErrEmptyQuantity
	}
	return total, nil
}

// SaleValue prices cases and loose bottles with the item's list prices.
func SaleValue(item models.Item, cases, bottles int) float64 {
	return math.Round((float64(cases)*item.CasePrice+float64(bottles)*item.BottlePrice)*100) / 100
}

func lockItem(tx *gorm.DB, tenantID, itemID uint) (models.Item, error) {
	return inventory.FindItem(database.ForUpdate(tx), tenantID, itemID)
}

func lockLorry(tx *gorm.DB, tenantID, lorryID uint) (models.Lorry, error) {
	return lorry.FindLorry(database.ForUpdate(tx), tenantID, lorryID)
}

func lorryHolds(tx *gorm.DB, lorryID, itemID uint, total int) error {
	onHand, err := lorry.OnHand(tx, lorryID)
	if err != nil {
		return err
	}
	if onHand[itemID] < total {
		return ErrExceedsLorryStock
	}
	return nil
}

func setStock(tx *gorm.DB, item *models.Item, stock int) error {
	item.StockBottles = stock
	return tx.Model(item).Update("stock_bottles", stock).Error
}

// applyEffect moves stock for t, or takes it back when reverse is set.
// Lorry on-hand checks count t as not yet inserted (forward) or still present (reverse).
func applyEffect(tx *gorm.DB, t models.Transaction, reverse bool) error {
	item, err := lockItem(tx, t.TenantID, t.ItemID)
	if err != nil {
		return err
	}
	if _, err := lockLorry(tx, t.TenantID, t.LorryID); err != nil {
		return err
	}

	switch t.Type {
	case models.TransactionLoading:
		if reverse {
			if err := lorryHolds(tx, t.LorryID, t.ItemID, t.TotalBottles); err != nil {
				return err
			}
			return setStock(tx, &item, item.StockBottles+t.TotalBottles)
		}
		if item.StockBottles < t.TotalBottles {
			return ErrInsufficientStock
		}
		return setStock(tx, &item, item.StockBottles-t.TotalBottles)

	case models.TransactionUnloading:
		if reverse {
			if item.StockBottles < t.TotalBottles {
				return ErrInsufficientStock
			}
			return setStock(tx, &item, item.StockBottles-t.TotalBottles)
		}
		if err := lorryHolds(tx, t.LorryID, t.ItemID, t.TotalBottles); err != nil {
			return err
		}
		return setStock(tx, &item, item.StockBottles+t.TotalBottles)

	case models.TransactionSale:
		if reverse {
			return nil
		}
		return lorryHolds(tx, t.LorryID, t.ItemID, t.TotalBottles)
	}
	return fmt.Errorf("transaction: unknown type %q", t.Type)
}

// Record validates and stores a movement, applying its stock effect.
func Record(tx *gorm.DB, tenantID uint, in Input) (models.Transaction, error) {
	item, err := inventory.FindItem(tx, tenantID, in.ItemID)
	if err != nil {
		return models.Transaction{}, err
	}
	l, err := lorry.FindLorry(tx, tenantID, in.LorryID)
	if err != nil {
		return models.Transaction{}, err
	}
	if !l.Active {
		return models.Transaction{}, ErrInactiveLorry
	}
	if !item.Active {
		return models.Transaction{}, ErrInactiveItem
	}
	total, err := quantity(item, in.Cases, in.Bottles)
	if err != nil {
		return models.Transaction{}, err
	}

	t := models.Transaction{
		TenantID:     tenantID,
		LorryID:      l.ID,
		ItemID:       item.ID,
		Type:         in.Type,
		Date:         in.Date,
		Cases:        in.Cases,
		Bottles:      in.Bottles,
		TotalBottles: total,
		Note:         in.Note,
		CreatedBy:    in.CreatedBy,
	}
	if in.Type == models.TransactionSale {
		if in.Amount != nil {
			t.Amount = math.Round(*in.Amount*100) / 100
		} else {
			t.Amount = SaleValue(item, in.Cases, in.Bottles)
		}
	}

	if err := applyEffect(tx, t, false); err != nil {
		return t, err
	}
	if err := tx.Omit(clause.Associations).Create(&t).Error; err != nil {
		return t, fmt.Errorf("transaction: create: %w", err)
	}
	return t, nil
}

// Reverse undoes the stock effect of t and removes it.
func Reverse(tx *gorm.DB, t models.Transaction) error {
	if err := applyEffect(tx, t, true); err != nil {
		return err
	}
	return tx.Delete(&models.Transaction{}, t.ID).Error
}

// FindTransaction loads a transaction of the tenant.
func FindTransaction(db *gorm.DB, tenantID, id uint) (models.Transaction, error) {
	var t models.Transaction
	err := db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return t, ErrTransactionNotFound
	}
	return t, err
}

func applyReturn(tx *gorm.DB, r models.Return, reverse bool) error {
	if r.Kind != models.ReturnEmpty {
		return nil
	}
	item, err := lockItem(tx, r.TenantID, r.ItemID)
	if err != nil {
		return err
	}
	empties := item.EmptyBottles + r.TotalBottles
	if reverse {
		empties = item.EmptyBottles - r.TotalBottles
		if empties < 0 {
			return ErrNegativeEmpties
		}
	}
	return tx.Model(&item).Update("empty_bottles", empties).Error
}

// RecordReturn stores an expiry or empty return. Empties go back on the item's empty count.
func RecordReturn(tx *gorm.DB, tenantID uint, in ReturnInput) (models.Return, error) {
	item, err := inventory.FindItem(tx, tenantID, in.ItemID)
	if err != nil {
		return models.Return{}, err
	}
	l, err := lorry.FindLorry(tx, tenantID, in.LorryID)
	if err != nil {
		return models.Return{}, err
	}
	total, err := quantity(item, in.Cases, in.Bottles)
	if err != nil {
		return models.Return{}, err
	}

	r := models.Return{
		TenantID:     tenantID,
		LorryID:      l.ID,
		ItemID:       item.ID,
		Kind:         in.Kind,
		Date:         in.Date,
		Cases:        in.Cases,
		Bottles:      in.Bottles,
		TotalBottles: total,
		Note:         in.Note,
		CreatedBy:    in.CreatedBy,
	}
	if err := applyReturn(tx, r, false); err != nil {
		return r, err
	}
	if err := tx.Omit(clause.Associations).Create(&r).Error; err != nil {
		return r, fmt.Errorf("transaction: create return: %w", err)
	}
	return r, nil
}

func ReverseReturn(tx *gorm.DB, r models.Return) error {
	if err := applyReturn(tx, r, true); err != nil {
		return err
	}
	return tx.Delete(&models.Return{}, r.ID).Error
}

// FindReturn loads a return of the tenant.
func FindReturn(db *gorm.DB, tenantID, id uint) (models.Return, error) {
	var r models.Return
	err := db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r, ErrReturnNotFound
	}
	return r, err
}

type transactionUndoer struct{}

func (transactionUndoer) UndoCreate(tx *gorm.DB, entityID uint) error {
	var t models.Transaction
	if err := tx.First(&t, entityID).Error; err != nil {
		return ErrTransactionNotFound
	}
	return Reverse(tx, t)
}

func (transactionUndoer) UndoUpdate(*gorm.DB, uint, []byte, []byte) error {
	return audit.ErrNotUndoable
}

func (transactionUndoer) UndoDelete(tx *gorm.DB, before []byte) error {
	var t models.Transaction
	if err := json.Unmarshal(before, &t); err != nil {
		return fmt.Errorf("transaction: decode snapshot: %w", err)
	}
	if err := applyEffect(tx, t, false); err != nil {
		return err
	}
	return tx.Select("*").Create(&t).Error
}

type returnUndoer struct{}

func (returnUndoer) UndoCreate(tx *gorm.DB, entityID uint) error {
	var r models.Return
	if err := tx.First(&r, entityID).Error; err != nil {
		return ErrReturnNotFound
	}
	return ReverseReturn(tx, r)
}

func (returnUndoer) UndoUpdate(*gorm.DB, uint, []byte, []byte) error {
	return audit.ErrNotUndoable
}

func (returnUndoer) UndoDelete(tx *gorm.DB, before []byte) error {
	var r models.Return
	if err := json.Unmarshal(before, &r); err != nil {
		return fmt.Errorf("transaction: decode snapshot: %w", err)
	}
	if err := applyReturn(tx, r, false); err != nil {
		return err
	}
	return tx.Select("*").Create(&r).Error
}

package inventory

import (
	"encoding/json"
	"fmt"

	"depot-backend/internal/audit"
	"depot-backend/internal/database"
	"depot-backend/internal/models"

	"gorm.io/gorm"
)

func init() {
	audit.Register(EntityItem, itemUndoer{})
}

// itemUndoer restores catalogue fields from the snapshot but only reverses the
// stock change the logged update made; later transactions keep their effect.
type itemUndoer struct {
	audit.ModelUndoer[models.Item]
}

func (itemUndoer) UndoCreate(tx *gorm.DB, entityID uint) error {
	if err := ensureUnused(tx, entityID); err != nil {
		return err
	}
	return audit.ModelUndoer[models.Item]{}.UndoCreate(tx, entityID)
}

func (itemUndoer) UndoUpdate(tx *gorm.DB, entityID uint, before, after []byte) error {
	var prev, next models.Item
	if err := json.Unmarshal(before, &prev); err != nil {
		return fmt.Errorf("inventory: decode snapshot: %w", err)
	}
	if err := json.Unmarshal(after, &next); err != nil {
		return fmt.Errorf("inventory: decode snapshot: %w", err)
	}

	var cur models.Item
	if err := database.ForUpdate(tx).First(&cur, entityID).Error; err != nil {
		return err
	}
	taken, err := skuTaken(tx, cur.TenantID, prev.SKU, cur.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateSKU
	}

	stock := cur.StockBottles + prev.StockBottles - next.StockBottles
	if stock < 0 {
		return ErrNegativeStock
	}
	prev.StockBottles = stock
	prev.EmptyBottles = cur.EmptyBottles
	return tx.Save(&prev).Error
}

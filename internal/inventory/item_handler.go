package inventory

import (
	"errors"
	"fmt"
	"strings"

	"depot-backend/internal/audit"
	"depot-backend/internal/auth"
	"depot-backend/internal/cache"
	"depot-backend/internal/database"
	"depot-backend/internal/httpx"
	"depot-backend/internal/models"
	"depot-backend/internal/report"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const EntityItem = "item"

var (
	ErrItemNotFound  = errors.New("item not found")
	ErrDuplicateSKU  = errors.New("an item with this SKU already exists")
	ErrItemInUse     = errors.New("item has recorded transactions; deactivate it instead")
	ErrNegativeStock = errors.New("adjustment would make stock negative")
)

type CreateItemRequest struct {
	TenantID       *uint   `json:"tenant_id"`
	Name           string  `json:"name" validate:"required,max=100"`
	SKU            string  `json:"sku" validate:"required,max=50"`
	SizeLabel      string  `json:"size_label" validate:"required,max=20"`
	BottlesPerCase int     `json:"bottles_per_case" validate:"gt=0"`
	CasePrice      float64 `json:"case_price" validate:"gte=0"`
	BottlePrice    float64 `json:"bottle_price" validate:"gte=0"`
	StockBottles   int     `json:"stock_bottles" validate:"gte=0"`
	ReorderLevel   int     `json:"reorder_level" validate:"gte=0"`
}

type UpdateItemRequest struct {
	Name           *string  `json:"name" validate:"omitempty,min=1,max=100"`
	SKU            *string  `json:"sku" validate:"omitempty,min=1,max=50"`
	SizeLabel      *string  `json:"size_label" validate:"omitempty,min=1,max=20"`
	BottlesPerCase *int     `json:"bottles_per_case" validate:"omitempty,gt=0"`
	CasePrice      *float64 `json:"case_price" validate:"omitempty,gte=0"`
	BottlePrice    *float64 `json:"bottle_price" validate:"omitempty,gte=0"`
	ReorderLevel   *int     `json:"reorder_level" validate:"omitempty,gte=0"`
	Active         *bool    `json:"active"`
}

type AdjustStockRequest struct {
	DeltaBottles int    `json:"delta_bottles" validate:"required"`
	Reason       string `json:"reason" validate:"required,max=200"`
}

type ItemResponse struct {
	models.Item
	StockCases        int  `json:"stock_cases"`
	StockLooseBottles int  `json:"stock_loose_bottles"`
	LowStock          bool `json:"low_stock"`
}

func toItemResponse(it models.Item) ItemResponse {
	cases, loose := it.SplitBottles(it.StockBottles)
	return ItemResponse{
		Item:              it,
		StockCases:        cases,
		StockLooseBottles: loose,
		LowStock:          it.Active && it.StockBottles <= it.ReorderLevel,
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.NewError(fiber.StatusNotFound, ErrItemNotFound.Error())
	case errors.Is(err, ErrDuplicateSKU), errors.Is(err, ErrItemInUse), errors.Is(err, ErrNegativeStock):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return err
}

// FindItem loads an item of the tenant.
func FindItem(db *gorm.DB, tenantID, id uint) (models.Item, error) {
	var it models.Item
	err := db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&it).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return it, ErrItemNotFound
	}
	return it, err
}

func skuTaken(db *gorm.DB, tenantID uint, sku string, exceptID uint) (bool, error) {
	var n int64
	err := db.Model(&models.Item{}).
		Where("tenant_id = ? AND sku = ? AND id <> ?", tenantID, sku, exceptID).
		Count(&n).Error
	return n > 0, err
}

func normalizeSKU(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// GET /api/items?active=true&q=water
func ListItemsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}

		dbq := database.DB.Where("tenant_id = ?", tenantID)
		switch c.Query("active") {
		case "":
		case "true":
			dbq = dbq.Where("active = ?", true)
		case "false":
			dbq = dbq.Where("active = ?", false)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "active must be true or false")
		}
		if q := strings.TrimSpace(c.Query("q")); q != "" {
			like := "%" + strings.ToLower(q) + "%"
			dbq = dbq.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
		}

		var items []models.Item
		if err := dbq.Find(&items).Error; err != nil {
			return err
		}
		report.SortItems(items)

		resp := make([]ItemResponse, 0, len(items))
		for _, it := range items {
			resp = append(resp, toItemResponse(it))
		}
		return c.JSON(resp)
	}
}

// GET /api/items/low-stock
func LowStockHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}

		var items []models.Item
		if err := database.DB.
			Where("tenant_id = ? AND active = ? AND stock_bottles <= reorder_level", tenantID, true).
			Find(&items).Error; err != nil {
			return err
		}
		report.SortItems(items)

		resp := make([]ItemResponse, 0, len(items))
		for _, it := range items {
			resp = append(resp, toItemResponse(it))
		}
		return c.JSON(resp)
	}
}

// GET /api/items/:id
func GetItemHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		it, err := FindItem(database.DB, tenantID, id)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(toItemResponse(it))
	}
}

// POST /api/items
func CreateItemHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateItemRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		tenantID, err := auth.ResolveTenantFromBody(c, body.TenantID)
		if err != nil {
			return err
		}
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		it := models.Item{
			TenantID:       tenantID,
			Name:           strings.TrimSpace(body.Name),
			SKU:            normalizeSKU(body.SKU),
			SizeLabel:      strings.TrimSpace(body.SizeLabel),
			BottlesPerCase: body.BottlesPerCase,
			CasePrice:      body.CasePrice,
			BottlePrice:    body.BottlePrice,
			StockBottles:   body.StockBottles,
			ReorderLevel:   body.ReorderLevel,
			Active:         true,
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			taken, err := skuTaken(tx, tenantID, it.SKU, 0)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateSKU
			}
			if err := tx.Create(&it).Error; err != nil {
				return err
			}
			return audit.WriteLog(audit.LogOptions{
				DB:          tx,
				TenantID:    &tenantID,
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  EntityItem,
				EntityID:    it.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Item created: %s (%s)", it.Name, it.SKU),
				After:       it,
			})
		})
		if err != nil {
			return mapError(err)
		}

		cache.Invalidate(tenantID)
		return c.Status(fiber.StatusCreated).JSON(toItemResponse(it))
	}
}

// PUT /api/items/:id
func UpdateItemHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body UpdateItemRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		var it models.Item
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			it, err = FindItem(database.ForUpdate(tx), tenantID, id)
			if err != nil {
				return err
			}
			before := it

			if body.SKU != nil {
				sku := normalizeSKU(*body.SKU)
				taken, err := skuTaken(tx, tenantID, sku, it.ID)
				if err != nil {
					return err
				}
				if taken {
					return ErrDuplicateSKU
				}
				it.SKU = sku
			}
			if body.Name != nil {
				it.Name = strings.TrimSpace(*body.Name)
			}
			if body.SizeLabel != nil {
				it.SizeLabel = strings.TrimSpace(*body.SizeLabel)
			}
			if body.BottlesPerCase != nil {
				it.BottlesPerCase = *body.BottlesPerCase
			}
			if body.CasePrice != nil {
				it.CasePrice = *body.CasePrice
			}
			if body.BottlePrice != nil {
				it.BottlePrice = *body.BottlePrice
			}
			if body.ReorderLevel != nil {
				it.ReorderLevel = *body.ReorderLevel
			}
			if body.Active != nil {
				it.Active = *body.Active
			}

			if err := tx.Save(&it).Error; err != nil {
				return err
			}
			return audit.WriteLog(audit.LogOptions{
				DB:          tx,
				TenantID:    &tenantID,
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  EntityItem,
				EntityID:    it.ID,
				Action:      models.AuditActionUpdate,
				Description: "Item updated: " + it.Name,
				Before:      before,
				After:       it,
			})
		})
		if err != nil {
			return mapError(err)
		}

		cache.Invalidate(tenantID)
		return c.JSON(toItemResponse(it))
	}
}

// POST /api/items/:id/adjust
func AdjustStockHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body AdjustStockRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		var it models.Item
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			it, err = FindItem(database.ForUpdate(tx), tenantID, id)
			if err != nil {
				return err
			}
			before := it
			if it.StockBottles+body.DeltaBottles < 0 {
				return ErrNegativeStock
			}
			it.StockBottles += body.DeltaBottles
			if err := tx.Model(&it).Update("stock_bottles", it.StockBottles).Error; err != nil {
				return err
			}
			return audit.WriteLog(audit.LogOptions{
				DB:          tx,
				TenantID:    &tenantID,
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  EntityItem,
				EntityID:    it.ID,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("Stock adjusted by %+d bottles: %s", body.DeltaBottles, strings.TrimSpace(body.Reason)),
				Before:      before,
				After:       it,
			})
		})
		if err != nil {
			return mapError(err)
		}

		cache.Invalidate(tenantID)
		return c.JSON(toItemResponse(it))
	}
}

// DELETE /api/items/:id
func DeleteItemHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			it, err := FindItem(tx, tenantID, id)
			if err != nil {
				return err
			}
			if err := ensureUnused(tx, it.ID); err != nil {
				return err
			}
			if err := tx.Model(&models.Scale{}).Where("item_id = ?", it.ID).Update("item_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Delete(&it).Error; err != nil {
				return err
			}
			return audit.WriteLog(audit.LogOptions{
				DB:          tx,
				TenantID:    &tenantID,
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  EntityItem,
				EntityID:    it.ID,
				Action:      models.AuditActionDelete,
				Description: fmt.Sprintf("Item deleted: %s (%s)", it.Name, it.SKU),
				Before:      it,
			})
		})
		if err != nil {
			return mapError(err)
		}

		cache.Invalidate(tenantID)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func ensureUnused(tx *gorm.DB, itemID uint) error {
	var n int64
	if err := tx.Model(&models.Transaction{}).Where("item_id = ?", itemID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		if err := tx.Model(&models.Return{}).Where("item_id = ?", itemID).Count(&n).Error; err != nil {
			return err
		}
	}
	if n > 0 {
		return ErrItemInUse
	}
	return nil
}

package expense

import (
	"strings"

	"depot-backend/internal/auth"
	"depot-backend/internal/cache"
	"depot-backend/internal/database"
	"depot-backend/internal/httpx"
	"depot-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CategoryRequest struct {
	TenantID *uint  `json:"tenant_id"`
	Name     string `json:"name" validate:"required,max=100"`
}

func categoryTaken(db *gorm.DB, tenantID uint, name string, exceptID uint) (bool, error) {
	var n int64
	q := db.Model(&models.ExpenseCategory{}).Where("tenant_id = ? AND LOWER(name) = ?", tenantID, strings.ToLower(name))
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// GET /api/expense-categories
func ListCategoriesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		var cats []models.ExpenseCategory
		if err := database.DB.Where("tenant_id = ?", tenantID).Order("name ASC").Find(&cats).Error; err != nil {
			return err
		}
		return c.JSON(cats)
	}
}

// POST /api/expense-categories
func CreateCategoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CategoryRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		tenantID, err := auth.ResolveTenantFromBody(c, body.TenantID)
		if err != nil {
			return err
		}
		name := strings.TrimSpace(body.Name)
		if name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name is required")
		}

		taken, err := categoryTaken(database.DB, tenantID, name, 0)
		if err != nil {
			return err
		}
		if taken {
			return mapError(ErrDuplicateCategory)
		}

		cat := models.ExpenseCategory{TenantID: tenantID, Name: name}
		if err := database.DB.Create(&cat).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(cat)
	}
}

// PUT /api/expense-categories/:id
func UpdateCategoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body CategoryRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		name := strings.TrimSpace(body.Name)
		if name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name is required")
		}

		cat, err := findCategory(database.DB, tenantID, id)
		if err != nil {
			return mapError(err)
		}
		taken, err := categoryTaken(database.DB, tenantID, name, cat.ID)
		if err != nil {
			return err
		}
		if taken {
			return mapError(ErrDuplicateCategory)
		}

		cat.Name = name
		if err := database.DB.Save(&cat).Error; err != nil {
			return err
		}
		cache.Invalidate(tenantID)
		return c.JSON(cat)
	}
}

// DELETE /api/expense-categories/:id
func DeleteCategoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			cat, err := findCategory(tx, tenantID, id)
			if err != nil {
				return err
			}
			var n int64
			if err := tx.Model(&models.Expense{}).Where("category_id = ?", cat.ID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrCategoryInUse
			}
			return tx.Delete(&cat).Error
		})
		if err != nil {
			return mapError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

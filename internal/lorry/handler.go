package lorry

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

const EntityLorry = "lorry"

var (
	ErrLorryNotFound    = errors.New("lorry not found")
	ErrDuplicateLorry   = errors.New("a lorry with this registration number already exists")
	ErrLorryHasActivity = errors.New("lorry has recorded transactions; deactivate it instead")
)

func init() {
	audit.Register(EntityLorry, lorryUndoer{})
}

type CreateLorryRequest struct {
	TenantID       *uint  `json:"tenant_id"`
	RegistrationNo string `json:"registration_no" validate:"required,max=30"`
	DriverName     string `json:"driver_name" validate:"max=100"`
	DriverPhone    string `json:"driver_phone" validate:"max=50"`
	CapacityCases  int    `json:"capacity_cases" validate:"gte=0"`
}

type UpdateLorryRequest struct {
	RegistrationNo *string `json:"registration_no" validate:"omitempty,min=1,max=30"`
	DriverName     *string `json:"driver_name" validate:"omitempty,max=100"`
	DriverPhone    *string `json:"driver_phone" validate:"omitempty,max=50"`
	CapacityCases  *int    `json:"capacity_cases" validate:"omitempty,gte=0"`
	Active         *bool   `json:"active"`
}

type StockLine struct {
	ItemID        uint   `json:"item_id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	SizeLabel     string `json:"size_label"`
	OnHandBottles int    `json:"on_hand_bottles"`
	Cases         int    `json:"cases"`
	LooseBottles  int    `json:"loose_bottles"`
}

// NormalizeRegistration upper-cases and drops whitespace: "gr 1234-20" -> "GR1234-20".
func NormalizeRegistration(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrLorryNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.NewError(fiber.StatusNotFound, ErrLorryNotFound.Error())
	case errors.Is(err, ErrDuplicateLorry), errors.Is(err, ErrLorryHasActivity):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return err
}

// FindLorry loads a lorry of the tenant.
func FindLorry(db *gorm.DB, tenantID, id uint) (models.Lorry, error) {
	var l models.Lorry
	err := db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return l, ErrLorryNotFound
	}
	return l, err
}

func registrationTaken(db *gorm.DB, tenantID uint, reg string, exceptID uint) (bool, error) {
	var n int64
	err := db.Model(&models.Lorry{}).
		Where("tenant_id = ? AND registration_no = ? AND id <> ?", tenantID, reg, exceptID).
		Count(&n).Error
	return n > 0, err
}

// OnHand returns loaded - unloaded - sold bottles per item currently on the lorry.
func OnHand(db *gorm.DB, lorryID uint) (map[uint]int, error) {
	type row struct {
		ItemID uint
		Type   models.TransactionType
		Total  int
	}
	var rows []row
	if err := db.Model(&models.Transaction{}).
		Select("item_id, type, SUM(total_bottles) AS total").
		Where("lorry_id = ?", lorryID).
		Group("item_id, type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[uint]int)
	for _, r := range rows {
		switch r.Type {
		case models.TransactionLoading:
			out[r.ItemID] += r.Total
		case models.TransactionUnloading, models.TransactionSale:
			out[r.ItemID] -= r.Total
		}
	}
	return out, nil
}

// GET /api/lorries?active=true
func ListLorriesHandler() fiber.Handler {
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

		var lorries []models.Lorry
		if err := dbq.Order("registration_no ASC").Find(&lorries).Error; err != nil {
			return err
		}
		return c.JSON(lorries)
	}
}

// GET /api/lorries/:id
func GetLorryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		l, err := FindLorry(database.DB, tenantID, id)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(l)
	}
}

// GET /api/lorries/:id/stock
func LorryStockHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		l, err := FindLorry(database.DB, tenantID, id)
		if err != nil {
			return mapError(err)
		}

		onHand, err := OnHand(database.DB, l.ID)
		if err != nil {
			return err
		}
		ids := make([]uint, 0, len(onHand))
		for itemID, n := range onHand {
			if n != 0 {
				ids = append(ids, itemID)
			}
		}

		var items []models.Item
		if len(ids) > 0 {
			if err := database.DB.Where("id IN ?", ids).Find(&items).Error; err != nil {
				return err
			}
		}
		report.SortItems(items)

		lines := make([]StockLine, 0, len(items))
		total := 0
		for _, it := range items {
			n := onHand[it.ID]
			cases, loose := it.SplitBottles(n)
			lines = append(lines, StockLine{
				ItemID:        it.ID,
				SKU:           it.SKU,
				Name:          it.Name,
				SizeLabel:     it.SizeLabel,
				OnHandBottles: n,
				Cases:         cases,
				LooseBottles:  loose,
			})
			total += n
		}

		return c.JSON(fiber.Map{
			"lorry":         l,
			"items":         lines,
			"total_bottles": total,
		})
	}
}

// POST /api/lorries
func CreateLorryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateLorryRequest
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

		l := models.Lorry{
			TenantID:       tenantID,
			RegistrationNo: NormalizeRegistration(body.RegistrationNo),
			DriverName:     strings.TrimSpace(body.DriverName),
			DriverPhone:    strings.TrimSpace(body.DriverPhone),
			CapacityCases:  body.CapacityCases,
			Active:         true,
		}
		if l.RegistrationNo == "" {
			return fiber.NewError(fiber.StatusBadRequest, "registration_no is required")
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			taken, err := registrationTaken(tx, tenantID, l.RegistrationNo, 0)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateLorry
			}
			if err := tx.Create(&l).Error; err != nil {
				return err
			}
			return audit.WriteLog(audit.LogOptions{
				DB:          tx,
				TenantID:    &tenantID,
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  EntityLorry,
				EntityID:    l.ID,
				Action:      models.AuditActionCreate,
				Description: "Lorry created: " + l.RegistrationNo,
				After:       l,
			})
		})
		if err != nil {
			return mapError(err)
		}

		cache.Invalidate(tenantID)
		return c.Status(fiber.StatusCreated).JSON(l)
	}
}

// PUT /api/lorries/:id
func UpdateLorryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body UpdateLorryRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		var l models.Lorry
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			if l, err = FindLorry(tx, tenantID, id); err != nil {
				return err
			}
			before := l

			if body.RegistrationNo != nil {
				reg := NormalizeRegistration(*body.RegistrationNo)
				taken, err := registrationTaken(tx, tenantID, reg, l.ID)
				if err != nil {
					return err
				}
				if taken {
					return ErrDuplicateLorry
				}
				l.RegistrationNo = reg
			}
			if body.DriverName != nil {
				l.DriverName = strings.TrimSpace(*body.DriverName)
			}
			if body.DriverPhone != nil {
				l.DriverPhone = strings.TrimSpace(*body.DriverPhone)
			}
			if body.CapacityCases != nil {
				l.CapacityCases = *body.CapacityCases
			}
			if body.Active != nil {
				l.Active = *body.Active
			}

			if err := tx.Save(&l).Error; err != nil {
				return err
			}
			return audit.WriteLog(audit.LogOptions{
				DB:          tx,
				TenantID:    &tenantID,
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  EntityLorry,
				EntityID:    l.ID,
				Action:      models.AuditActionUpdate,
				Description: "Lorry updated: " + l.RegistrationNo,
				Before:      before,
				After:       l,
			})
		})
		if err != nil {
			return mapError(err)
		}

		cache.Invalidate(tenantID)
		return c.JSON(l)
	}
}

// DELETE /api/lorries/:id
func DeleteLorryHandler() fiber.Handler {
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
			l, err := FindLorry(tx, tenantID, id)
			if err != nil {
				return err
			}
			if err := ensureIdle(tx, l.ID); err != nil {
				return err
			}
			if err := tx.Model(&models.Expense{}).Where("lorry_id = ?", l.ID).Update("lorry_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Delete(&l).Error; err != nil {
				return err
			}
			return audit.WriteLog(audit.LogOptions{
				DB:          tx,
				TenantID:    &tenantID,
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  EntityLorry,
				EntityID:    l.ID,
				Action:      models.AuditActionDelete,
				Description: fmt.Sprintf("Lorry deleted: %s", l.RegistrationNo),
				Before:      l,
			})
		})
		if err != nil {
			return mapError(err)
		}

		cache.Invalidate(tenantID)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func ensureIdle(tx *gorm.DB, lorryID uint) error {
	var n int64
	if err := tx.Model(&models.Transaction{}).Where("lorry_id = ?", lorryID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		if err := tx.Model(&models.Return{}).Where("lorry_id = ?", lorryID).Count(&n).Error; err != nil {
			return err
		}
	}
	if n > 0 {
		return ErrLorryHasActivity
	}
	return nil
}

type lorryUndoer struct {
	audit.ModelUndoer[models.Lorry]
}

func (lorryUndoer) UndoCreate(tx *gorm.DB, entityID uint) error {
	if err := ensureIdle(tx, entityID); err != nil {
		return err
	}
	return audit.ModelUndoer[models.Lorry]{}.UndoCreate(tx, entityID)
}

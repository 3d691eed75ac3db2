package telemetry

import (
	"errors"
	"regexp"
	"strings"

	"depot-backend/internal/auth"
	"depot-backend/internal/database"
	"depot-backend/internal/httpx"
	"depot-backend/internal/inventory"
	"depot-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultReadingLimit = 50
	maxReadingLimit     = 500
)

// serials become an MQTT topic level, so wildcards and separators are out
var serialPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

var (
	ErrScaleNotFound   = errors.New("scale not found")
	ErrDuplicateSerial = errors.New("a scale with this serial already exists")
)

type CreateScaleRequest struct {
	TenantID    *uint   `json:"tenant_id"`
	Serial      string  `json:"serial" validate:"required,max=64"`
	Name        string  `json:"name" validate:"max=100"`
	ItemID      *uint   `json:"item_id"`
	TareGrams   float64 `json:"tare_grams" validate:"gte=0"`
	BottleGrams float64 `json:"bottle_grams" validate:"gte=0"`
}

type UpdateScaleRequest struct {
	Name        *string  `json:"name" validate:"omitempty,max=100"`
	ItemID      *uint    `json:"item_id"`
	ClearItem   bool     `json:"clear_item"`
	TareGrams   *float64 `json:"tare_grams" validate:"omitempty,gte=0"`
	BottleGrams *float64 `json:"bottle_grams" validate:"omitempty,gte=0"`
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrScaleNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, inventory.ErrItemNotFound):
		return fiber.NewError(fiber.StatusBadRequest, "item_id does not belong to this tenant")
	case errors.Is(err, ErrDuplicateSerial):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return err
}

// FindScale loads a scale of the tenant.
func FindScale(db *gorm.DB, tenantID, id uint) (models.Scale, error) {
	var s models.Scale
	err := db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s, ErrScaleNotFound
	}
	return s, err
}

func loadScale(c *fiber.Ctx) (models.Scale, error) {
	tenantID, err := auth.ResolveTenantFromQuery(c)
	if err != nil {
		return models.Scale{}, err
	}
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return models.Scale{}, err
	}
	s, err := FindScale(database.DB, tenantID, id)
	if err != nil {
		return s, mapError(err)
	}
	return s, nil
}

// GET /api/scales
func ListScalesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		var scales []models.Scale
		if err := database.DB.Where("tenant_id = ?", tenantID).Order("serial ASC").Find(&scales).Error; err != nil {
			return err
		}
		return c.JSON(scales)
	}
}

// GET /api/scales/:id
func GetScaleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := loadScale(c)
		if err != nil {
			return err
		}
		return c.JSON(s)
	}
}

// POST /api/scales
func CreateScaleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateScaleRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		tenantID, err := auth.ResolveTenantFromBody(c, body.TenantID)
		if err != nil {
			return err
		}

		serial := strings.TrimSpace(body.Serial)
		if !serialPattern.MatchString(serial) {
			return fiber.NewError(fiber.StatusBadRequest, "serial may only contain letters, digits and . _ : -")
		}
		s := models.Scale{
			TenantID:    tenantID,
			Serial:      serial,
			Name:        strings.TrimSpace(body.Name),
			ItemID:      body.ItemID,
			TareGrams:   body.TareGrams,
			BottleGrams: body.BottleGrams,
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if body.ItemID != nil {
				if _, err := inventory.FindItem(tx, tenantID, *body.ItemID); err != nil {
					return err
				}
			}
			// serials are unique across tenants, the topic carries no tenant
			var n int64
			if err := tx.Model(&models.Scale{}).Where("serial = ?", serial).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrDuplicateSerial
			}
			return tx.Create(&s).Error
		})
		if err != nil {
			return mapError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(s)
	}
}

// PUT /api/scales/:id
func UpdateScaleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := loadScale(c)
		if err != nil {
			return err
		}
		var body UpdateScaleRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		if body.Name != nil {
			s.Name = strings.TrimSpace(*body.Name)
		}
		if body.ClearItem {
			s.ItemID = nil
		} else if body.ItemID != nil {
			if _, err := inventory.FindItem(database.DB, s.TenantID, *body.ItemID); err != nil {
				return mapError(err)
			}
			s.ItemID = body.ItemID
		}
		if body.TareGrams != nil {
			s.TareGrams = *body.TareGrams
		}
		if body.BottleGrams != nil {
			s.BottleGrams = *body.BottleGrams
		}

		if err := database.DB.Save(&s).Error; err != nil {
			return err
		}
		return c.JSON(s)
	}
}

// DELETE /api/scales/:id
func DeleteScaleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := loadScale(c)
		if err != nil {
			return err
		}
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("scale_id = ?", s.ID).Delete(&models.ScaleReading{}).Error; err != nil {
				return err
			}
			return tx.Delete(&s).Error
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/scales/:id/readings?limit=
func ReadingsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := loadScale(c)
		if err != nil {
			return err
		}

		limit := defaultReadingLimit
		if v, ok, err := httpx.QueryUint(c, "limit"); err != nil {
			return err
		} else if ok && v > 0 {
			limit = int(v)
		}
		if limit > maxReadingLimit {
			limit = maxReadingLimit
		}

		var readings []models.ScaleReading
		if err := database.DB.Where("scale_id = ?", s.ID).
			Order("read_at DESC, id DESC").
			Limit(limit).
			Find(&readings).Error; err != nil {
			return err
		}
		return c.JSON(readings)
	}
}

func latestReading(db *gorm.DB, scaleID uint) (*models.ScaleReading, error) {
	var r models.ScaleReading
	err := db.Where("scale_id = ?", scaleID).Order("read_at DESC, id DESC").First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GET /api/scales/:id/latest
func LatestReadingHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := loadScale(c)
		if err != nil {
			return err
		}
		r, err := latestReading(database.DB, s.ID)
		if err != nil {
			return err
		}
		if r == nil {
			return fiber.NewError(fiber.StatusNotFound, "scale has no readings yet")
		}
		return c.JSON(fiber.Map{"scale": s, "reading": r})
	}
}

// POST /api/scales/:id/tare
// The scale zeroes itself on the command, so the stored software tare is cleared
// and later readings arrive already net of the container.
func TareScaleHandler(bridge *Bridge) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if bridge == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "scale bridge is not running")
		}
		s, err := loadScale(c)
		if err != nil {
			return err
		}

		if err := bridge.SendTare(s.Serial); err != nil {
			zap.L().Warn("tare command failed", zap.String("serial", s.Serial), zap.Error(err))
			return fiber.NewError(fiber.StatusBadGateway, "could not reach the scale broker")
		}

		if s.TareGrams != 0 {
			s.TareGrams = 0
			if err := database.DB.Model(&s).Update("tare_grams", 0).Error; err != nil {
				return err
			}
		}
		return c.Status(fiber.StatusAccepted).JSON(s)
	}
}

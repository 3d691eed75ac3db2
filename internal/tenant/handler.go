package tenant

import (
	"errors"
	"strings"

	"depot-backend/internal/auth"
	"depot-backend/internal/database"
	"depot-backend/internal/httpx"
	"depot-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type TenantResponse struct {
	ID           uint                `json:"id"`
	PublicID     string              `json:"public_id"`
	Name         string              `json:"name"`
	Slug         string              `json:"slug"`
	ContactEmail string              `json:"contact_email"`
	Phone        string              `json:"phone"`
	Status       models.TenantStatus `json:"status"`
	UserCount    int64               `json:"user_count"`
	CreatedAt    string              `json:"created_at"`
}

type CreateTenantRequest struct {
	Name          string `json:"name" validate:"required,max=100"`
	Slug          string `json:"slug" validate:"omitempty,max=60"`
	ContactEmail  string `json:"contact_email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"max=50"`
	AdminName     string `json:"admin_name" validate:"required,max=100"`
	AdminEmail    string `json:"admin_email" validate:"required,email"`
	AdminPassword string `json:"admin_password" validate:"required,min=8"`
}

type UpdateTenantRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=100"`
	ContactEmail *string `json:"contact_email" validate:"omitempty,email"`
	Phone        *string `json:"phone" validate:"omitempty,max=50"`
}

func toTenantResponse(t models.Tenant, users int64) TenantResponse {
	return TenantResponse{
		ID:           t.ID,
		PublicID:     t.PublicID,
		Name:         t.Name,
		Slug:         t.Slug,
		ContactEmail: t.ContactEmail,
		Phone:        t.Phone,
		Status:       t.Status,
		UserCount:    users,
		CreatedAt:    t.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.NewError(fiber.StatusNotFound, "tenant not found")
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrHasActivity):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidSlug):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}

// POST /api/tenants
func CreateTenantHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateTenantRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		res, err := Provision(database.DB, ProvisionInput{
			Name:          body.Name,
			Slug:          strings.ToLower(body.Slug),
			ContactEmail:  body.ContactEmail,
			Phone:         body.Phone,
			AdminName:     body.AdminName,
			AdminEmail:    body.AdminEmail,
			AdminPassword: body.AdminPassword,
		})
		if err != nil {
			return mapError(err)
		}

		zap.L().Info("tenant provisioned",
			zap.Uint("tenant_id", res.Tenant.ID),
			zap.String("slug", res.Tenant.Slug),
		)

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"tenant": toTenantResponse(res.Tenant, 1),
			"admin":  auth.ToUserResponse(res.Admin),
		})
	}
}

// GET /api/tenants?status=active
func ListTenantsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.Tenant{})
		if s := c.Query("status"); s != "" {
			dbq = dbq.Where("status = ?", s)
		}

		var tenants []models.Tenant
		if err := dbq.Order("name ASC").Find(&tenants).Error; err != nil {
			return err
		}

		type countRow struct {
			TenantID uint
			N        int64
		}
		var counts []countRow
		if err := database.DB.Model(&models.User{}).
			Select("tenant_id, COUNT(*) AS n").
			Where("tenant_id IS NOT NULL").
			Group("tenant_id").
			Scan(&counts).Error; err != nil {
			return err
		}
		byTenant := make(map[uint]int64, len(counts))
		for _, r := range counts {
			byTenant[r.TenantID] = r.N
		}

		resp := make([]TenantResponse, 0, len(tenants))
		for _, t := range tenants {
			resp = append(resp, toTenantResponse(t, byTenant[t.ID]))
		}
		return c.JSON(resp)
	}
}

func loadTenant(c *fiber.Ctx) (models.Tenant, error) {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return models.Tenant{}, err
	}
	var t models.Tenant
	if err := database.DB.First(&t, id).Error; err != nil {
		return models.Tenant{}, mapError(err)
	}
	return t, nil
}

// GET /api/tenants/:id
func GetTenantHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		t, err := loadTenant(c)
		if err != nil {
			return err
		}
		var users int64
		if err := database.DB.Model(&models.User{}).Where("tenant_id = ?", t.ID).Count(&users).Error; err != nil {
			return err
		}
		return c.JSON(toTenantResponse(t, users))
	}
}

// PUT /api/tenants/:id
func UpdateTenantHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		t, err := loadTenant(c)
		if err != nil {
			return err
		}

		var body UpdateTenantRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			var n int64
			if err := database.DB.Model(&models.Tenant{}).
				Where("name = ? AND id <> ?", name, t.ID).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return fiber.NewError(fiber.StatusConflict, ErrDuplicate.Error())
			}
			t.Name = name
		}
		if body.ContactEmail != nil {
			t.ContactEmail = strings.TrimSpace(*body.ContactEmail)
		}
		if body.Phone != nil {
			t.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := database.DB.Save(&t).Error; err != nil {
			return err
		}
		return c.JSON(toTenantResponse(t, 0))
	}
}

func statusHandler(status models.TenantStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		t, err := SetStatus(database.DB, id, status)
		if err != nil {
			return mapError(err)
		}
		zap.L().Info("tenant status changed",
			zap.Uint("tenant_id", t.ID),
			zap.String("status", string(status)),
		)
		return c.JSON(toTenantResponse(*t, 0))
	}
}

// POST /api/tenants/:id/suspend
func SuspendTenantHandler() fiber.Handler {
	return statusHandler(models.TenantStatusSuspended)
}

// POST /api/tenants/:id/activate
func ActivateTenantHandler() fiber.Handler {
	return statusHandler(models.TenantStatusActive)
}

// DELETE /api/tenants/:id
func DeleteTenantHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		if err := Delete(database.DB, id); err != nil {
			return mapError(err)
		}
		zap.L().Info("tenant deleted", zap.Uint("tenant_id", id))
		return c.SendStatus(fiber.StatusNoContent)
	}
}

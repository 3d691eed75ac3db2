package auth

import (
	"strconv"

	"depot-backend/internal/database"
	"depot-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Actor is the authenticated caller as stored in the audit log.
type Actor struct {
	UserID   uint
	Name     string
	Role     models.UserRole
	TenantID *uint
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleSuperAdmin || a.Role == models.RoleTenantAdmin
}

// CurrentUser loads the caller's user row.
func CurrentUser(c *fiber.Ctx) (Actor, error) {
	userID, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return Actor{}, fiber.NewError(fiber.StatusForbidden, "user missing from token")
	}

	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		return Actor{}, fiber.NewError(fiber.StatusUnauthorized, "user no longer exists")
	}

	return Actor{
		UserID:   user.ID,
		Name:     user.Name,
		Role:     user.Role,
		TenantID: user.TenantID,
	}, nil
}

func pinnedTenant(c *fiber.Ctx) (uint, bool, error) {
	role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
	if !ok {
		return 0, false, fiber.NewError(fiber.StatusForbidden, "role missing from token")
	}
	if role == models.RoleSuperAdmin {
		return 0, false, nil
	}
	tPtr, ok := c.Locals(CtxTenantIDKey).(*uint)
	if !ok || tPtr == nil {
		return 0, false, fiber.NewError(fiber.StatusForbidden, "tenant missing from token")
	}
	return *tPtr, true, nil
}

// ResolveTenantFromBody: tenant users are pinned to their own tenant, the super admin names one in the body.
func ResolveTenantFromBody(c *fiber.Ctx, bodyTenantID *uint) (uint, error) {
	tid, pinned, err := pinnedTenant(c)
	if err != nil || pinned {
		return tid, err
	}
	if bodyTenantID == nil || *bodyTenantID == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "tenant_id is required")
	}
	return *bodyTenantID, nil
}

// ResolveTenantFromQuery is ResolveTenantFromBody for ?tenant_id=.
func ResolveTenantFromQuery(c *fiber.Ctx) (uint, error) {
	tid, pinned, err := pinnedTenant(c)
	if err != nil || pinned {
		return tid, err
	}
	raw := c.Query("tenant_id")
	if raw == "" {
		return 0, fiber.NewError(fiber.StatusBadRequest, "tenant_id is required")
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "tenant_id is invalid")
	}
	return uint(v), nil
}

package auth

import (
	"strings"

	"depot-backend/internal/config"
	"depot-backend/internal/database"
	"depot-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserRoleKey = "user_role"
	CtxTenantIDKey = "tenant_id"
)

func JWTMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization must be 'Bearer <token>'")
		}

		claims, err := ParseToken(cfg.JWTSecret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxTenantIDKey, claims.TenantID)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "role missing from token")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "you are not allowed to do this")
	}
}

// RequireAdmin lets tenant admins and the platform super admin through.
func RequireAdmin() fiber.Handler {
	return RequireRole(models.RoleSuperAdmin, models.RoleTenantAdmin)
}

// RequireActiveTenant rejects tenant users whose tenant has been suspended or removed.
func RequireActiveTenant() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tid, ok := c.Locals(CtxTenantIDKey).(*uint)
		if !ok || tid == nil {
			return c.Next()
		}

		var tenant models.Tenant
		if err := database.DB.Select("id", "status").First(&tenant, *tid).Error; err != nil {
			return fiber.NewError(fiber.StatusForbidden, "tenant not found")
		}
		if !tenant.IsActive() {
			return fiber.NewError(fiber.StatusForbidden, "tenant is suspended")
		}
		return c.Next()
	}
}

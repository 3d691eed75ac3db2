package tenant

import (
	"strings"

	"depot-backend/internal/auth"
	"depot-backend/internal/database"
	"depot-backend/internal/httpx"
	"depot-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateUserRequest struct {
	TenantID *uint           `json:"tenant_id"`
	Name     string          `json:"name" validate:"required,max=100"`
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=8"`
	Role     models.UserRole `json:"role" validate:"required,oneof=tenant_admin staff"`
}

// GET /api/users
func ListUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}

		var users []models.User
		if err := database.DB.Where("tenant_id = ?", tenantID).Order("name ASC").Find(&users).Error; err != nil {
			return err
		}

		resp := make([]auth.UserResponse, 0, len(users))
		for _, u := range users {
			resp = append(resp, auth.ToUserResponse(u))
		}
		return c.JSON(resp)
	}
}

// POST /api/users
func CreateUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		tenantID, err := auth.ResolveTenantFromBody(c, body.TenantID)
		if err != nil {
			return err
		}

		var t models.Tenant
		if err := database.DB.First(&t, tenantID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "tenant not found")
		}

		email := auth.NormalizeEmail(body.Email)
		var n int64
		if err := database.DB.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fiber.NewError(fiber.StatusConflict, "email already in use")
		}

		hash, err := auth.HashPassword(body.Password)
		if err != nil {
			return err
		}

		user := models.User{
			TenantID:     &t.ID,
			Name:         strings.TrimSpace(body.Name),
			Email:        email,
			PasswordHash: hash,
			Role:         body.Role,
		}
		if err := database.DB.Create(&user).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(auth.ToUserResponse(user))
	}
}

// DELETE /api/users/:id
func DeleteUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		if actor.UserID == id {
			return fiber.NewError(fiber.StatusBadRequest, "you cannot delete your own account")
		}

		var user models.User
		if err := database.DB.First(&user, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		if user.Role == models.RoleSuperAdmin {
			return fiber.NewError(fiber.StatusForbidden, "super admins cannot be deleted here")
		}
		if actor.Role != models.RoleSuperAdmin {
			if user.TenantID == nil || actor.TenantID == nil || *user.TenantID != *actor.TenantID {
				return fiber.NewError(fiber.StatusNotFound, "user not found")
			}
		}

		if err := database.DB.Delete(&user).Error; err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

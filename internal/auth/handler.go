package auth

import (
	"errors"
	"strings"

	"depot-backend/internal/config"
	"depot-backend/internal/database"
	"depot-backend/internal/httpx"
	"depot-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterSuperAdminRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type UserResponse struct {
	ID       uint            `json:"id"`
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Role     models.UserRole `json:"role"`
	TenantID *uint           `json:"tenant_id"`
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// POST /api/auth/register-super-admin (only while no super admin exists)
func RegisterSuperAdminHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterSuperAdminRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		body.Email = NormalizeEmail(body.Email)

		var count int64
		if err := database.DB.Model(&models.User{}).
			Where("role = ?", models.RoleSuperAdmin).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusForbidden, "a super admin already exists")
		}

		hash, err := HashPassword(body.Password)
		if err != nil {
			return err
		}

		user := models.User{
			Name:         strings.TrimSpace(body.Name),
			Email:        body.Email,
			PasswordHash: hash,
			Role:         models.RoleSuperAdmin,
		}
		if err := database.DB.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusConflict, "user could not be created, email may be taken")
		}

		zap.L().Info("super admin registered", zap.Uint("user_id", user.ID))

		return c.Status(fiber.StatusCreated).JSON(ToUserResponse(user))
	}
}

// POST /api/auth/login
func LoginHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		body.Email = NormalizeEmail(body.Email)

		var user models.User
		if err := database.DB.Preload("Tenant").Where("email = ?", body.Email).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "email or password is wrong")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "email or password is wrong")
		}

		if user.Tenant != nil && !user.Tenant.IsActive() {
			return fiber.NewError(fiber.StatusForbidden, "tenant is suspended")
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.JWTTTL, &user)
		if err != nil {
			return err
		}

		resp := fiber.Map{
			"token": token,
			"user":  ToUserResponse(user),
		}
		if user.Tenant != nil {
			resp["tenant"] = fiber.Map{
				"id":   user.Tenant.ID,
				"name": user.Tenant.Name,
				"slug": user.Tenant.Slug,
			}
		}
		return c.JSON(resp)
	}
}

// GET /api/auth/me
func MeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals(CtxUserIDKey).(uint)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "user missing from token")
		}

		var user models.User
		if err := database.DB.Preload("Tenant").First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "user no longer exists")
			}
			return err
		}

		resp := fiber.Map{"user": ToUserResponse(user)}
		if user.Tenant != nil {
			resp["tenant"] = fiber.Map{
				"id":     user.Tenant.ID,
				"name":   user.Tenant.Name,
				"slug":   user.Tenant.Slug,
				"status": user.Tenant.Status,
			}
		}
		return c.JSON(resp)
	}
}

// PUT /api/auth/password
func ChangePasswordHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ChangePasswordRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		userID, ok := c.Locals(CtxUserIDKey).(uint)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "user missing from token")
		}

		var user models.User
		if err := database.DB.First(&user, userID).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "user no longer exists")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.OldPassword)); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "old password is wrong")
		}

		hash, err := HashPassword(body.NewPassword)
		if err != nil {
			return err
		}
		if err := database.DB.Model(&user).Update("password_hash", hash).Error; err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func ToUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		TenantID: u.TenantID,
	}
}

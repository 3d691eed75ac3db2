package audit

import (
	"errors"

	"depot-backend/internal/auth"
	"depot-backend/internal/database"
	"depot-backend/internal/httpx"
	"depot-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const timestampLayout = "2006-01-02 15:04:05"

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	TenantID    *uint              `json:"tenant_id"`
	UserID      uint               `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	IsUndone    bool               `json:"is_undone"`
	UndoneBy    *uint              `json:"undone_by"`
	UndoneAt    *string            `json:"undone_at"`
}

func toResponse(l models.AuditLog) AuditLogResponse {
	var undoneAt *string
	if l.UndoneAt != nil {
		s := l.UndoneAt.UTC().Format(timestampLayout)
		undoneAt = &s
	}
	return AuditLogResponse{
		ID:          l.ID,
		CreatedAt:   l.CreatedAt.UTC().Format(timestampLayout),
		TenantID:    l.TenantID,
		UserID:      l.UserID,
		UserName:    l.UserName,
		EntityType:  l.EntityType,
		EntityID:    l.EntityID,
		Action:      l.Action,
		Description: l.Description,
		IsUndone:    l.IsUndone,
		UndoneBy:    l.UndoneBy,
		UndoneAt:    undoneAt,
	}
}

// GET /api/audit-logs?entity_type=expense&entity_id=1&user_id=2&limit=100
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}

		dbq := database.DB.Model(&models.AuditLog{}).Where("tenant_id = ?", tenantID)

		if uid, ok, err := httpx.QueryUint(c, "user_id"); err != nil {
			return err
		} else if ok {
			dbq = dbq.Where("user_id = ?", uid)
		}
		if et := c.Query("entity_type"); et != "" {
			dbq = dbq.Where("entity_type = ?", et)
		}
		if eid, ok, err := httpx.QueryUint(c, "entity_id"); err != nil {
			return err
		} else if ok {
			dbq = dbq.Where("entity_id = ?", eid)
		}

		limit := c.QueryInt("limit", 200)
		if limit <= 0 || limit > 1000 {
			limit = 200
		}

		var logs []models.AuditLog
		if err := dbq.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
			return err
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, toResponse(l))
		}
		return c.JSON(resp)
	}
}

// POST /api/audit-logs/:id/undo
func UndoAuditLogHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		logID, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}

		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		var entry models.AuditLog
		if err := database.DB.First(&entry, logID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "audit log not found")
			}
			return err
		}

		if !actor.IsAdmin() {
			return fiber.NewError(fiber.StatusForbidden, "you are not allowed to undo changes")
		}
		if actor.Role != models.RoleSuperAdmin &&
			(entry.TenantID == nil || actor.TenantID == nil || *entry.TenantID != *actor.TenantID) {
			return fiber.NewError(fiber.StatusNotFound, "audit log not found")
		}

		if err := UndoLog(logID, actor.UserID, actor.Name); err != nil {
			var fe *fiber.Error
			switch {
			case errors.As(err, &fe):
				return fe
			case errors.Is(err, ErrAlreadyUndone), errors.Is(err, ErrNotUndoable):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			default:
				return fiber.NewError(fiber.StatusConflict, "change could not be undone: "+err.Error())
			}
		}

		return c.JSON(fiber.Map{"message": "change undone"})
	}
}

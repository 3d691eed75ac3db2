package audit_test

import (
	"fmt"
	"testing"

	"depot-backend/internal/audit"
	"depot-backend/internal/auth"
	"depot-backend/internal/models"
	"depot-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entityCategory = "test_category"

func init() {
	audit.Register(entityCategory, audit.ModelUndoer[models.ExpenseCategory]{})
}

func newApp() *fiber.App {
	app := testutil.NewApp()
	api := app.Group("/api", auth.JWTMiddleware(testutil.Config()))
	api.Get("/audit-logs", audit.ListAuditLogsHandler())
	api.Post("/audit-logs/:id/undo", auth.RequireAdmin(), audit.UndoAuditLogHandler())
	return app
}

func TestListAndUndo(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Aqua")
	other := testutil.CreateTenant(t, db, "Other")
	app := newApp()

	cat := models.ExpenseCategory{TenantID: fx.Tenant.ID, Name: "Tyres"}
	require.NoError(t, db.Create(&cat).Error)
	require.NoError(t, audit.WriteLog(audit.LogOptions{
		TenantID: &fx.Tenant.ID, UserID: fx.Admin.ID, UserName: fx.Admin.Name,
		EntityType: entityCategory, EntityID: cat.ID, Action: models.AuditActionCreate,
		Description: "Category created: Tyres", After: cat,
	}))
	require.NoError(t, audit.WriteLog(audit.LogOptions{
		TenantID: &other.Tenant.ID, UserID: other.Admin.ID, UserName: other.Admin.Name,
		EntityType: "mystery", EntityID: 1, Action: models.AuditActionCreate,
	}))

	var logs []audit.AuditLogResponse
	testutil.Decode(t, testutil.Do(t, app, &fx.Staff, "GET", "/api/audit-logs", nil), &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, entityCategory, logs[0].EntityType)
	id := logs[0].ID

	testutil.Decode(t, testutil.Do(t, app, &fx.Staff, "GET", "/api/audit-logs?entity_type=nothing", nil), &logs)
	assert.Empty(t, logs)

	path := fmt.Sprintf("/api/audit-logs/%d/undo", id)
	resp := testutil.Do(t, app, &fx.Staff, "POST", path, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = testutil.Do(t, app, &other.Admin, "POST", path, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.Admin, "POST", path, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var n int64
	db.Model(&models.ExpenseCategory{}).Where("id = ?", cat.ID).Count(&n)
	assert.Zero(t, n)

	testutil.Decode(t, testutil.Do(t, app, &fx.Staff, "GET", "/api/audit-logs", nil), &logs)
	require.Len(t, logs, 2)
	assert.Equal(t, models.AuditActionUndo, logs[0].Action)
	assert.True(t, logs[1].IsUndone)
	require.NotNil(t, logs[1].UndoneBy)
	assert.Equal(t, fx.Admin.ID, *logs[1].UndoneBy)

	resp = testutil.Do(t, app, &fx.Admin, "POST", path, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var mystery models.AuditLog
	require.NoError(t, db.Where("entity_type = ?", "mystery").First(&mystery).Error)
	resp = testutil.Do(t, app, &other.Admin, "POST", fmt.Sprintf("/api/audit-logs/%d/undo", mystery.ID), nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUndoDeleteRestoresRow(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Aqua")

	cat := models.ExpenseCategory{TenantID: fx.Tenant.ID, Name: "Tolls"}
	require.NoError(t, db.Create(&cat).Error)
	require.NoError(t, db.Delete(&cat).Error)
	require.NoError(t, audit.WriteLog(audit.LogOptions{
		TenantID: &fx.Tenant.ID, UserID: fx.Admin.ID, UserName: fx.Admin.Name,
		EntityType: entityCategory, EntityID: cat.ID, Action: models.AuditActionDelete, Before: cat,
	}))

	var entry models.AuditLog
	require.NoError(t, db.Order("id DESC").First(&entry).Error)
	require.NoError(t, audit.UndoLog(entry.ID, fx.Admin.ID, fx.Admin.Name))

	var restored models.ExpenseCategory
	require.NoError(t, db.First(&restored, cat.ID).Error)
	assert.Equal(t, "Tolls", restored.Name)

	assert.ErrorIs(t, audit.UndoLog(entry.ID, fx.Admin.ID, fx.Admin.Name), audit.ErrAlreadyUndone)
}

func TestUndoHandlerRejectsStaffWithoutMiddleware(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Aqua")
	app := testutil.NewApp()
	app.Post("/undo/:id", auth.JWTMiddleware(testutil.Config()), audit.UndoAuditLogHandler())

	cat := models.ExpenseCategory{TenantID: fx.Tenant.ID, Name: "Tyres"}
	require.NoError(t, db.Create(&cat).Error)
	require.NoError(t, audit.WriteLog(audit.LogOptions{
		TenantID: &fx.Tenant.ID, UserID: fx.Admin.ID, UserName: fx.Admin.Name,
		EntityType: entityCategory, EntityID: cat.ID, Action: models.AuditActionCreate, After: cat,
	}))
	var entry models.AuditLog
	require.NoError(t, db.Order("id DESC").First(&entry).Error)

	resp := testutil.Do(t, app, &fx.Staff, "POST", fmt.Sprintf("/undo/%d", entry.ID), nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.SuperAdmin, "POST", fmt.Sprintf("/undo/%d", entry.ID), nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

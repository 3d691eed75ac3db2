package lorry_test

import (
	"fmt"
	"testing"

	"depot-backend/internal/auth"
	"depot-backend/internal/lorry"
	"depot-backend/internal/models"
	"depot-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	cfg := testutil.Config()
	app := testutil.NewApp()
	api := app.Group("/api", auth.JWTMiddleware(cfg))

	lorries := api.Group("/lorries")
	lorries.Get("/", lorry.ListLorriesHandler())
	lorries.Get("/:id", lorry.GetLorryHandler())
	lorries.Get("/:id/stock", lorry.LorryStockHandler())
	lorries.Post("/", auth.RequireAdmin(), lorry.CreateLorryHandler())
	lorries.Put("/:id", auth.RequireAdmin(), lorry.UpdateLorryHandler())
	lorries.Delete("/:id", auth.RequireAdmin(), lorry.DeleteLorryHandler())
	return app
}

func TestNormalizeRegistration(t *testing.T) {
	assert.Equal(t, "GR1234-20", lorry.NormalizeRegistration(" gr 1234-20 "))
	assert.Equal(t, "", lorry.NormalizeRegistration("   "))
}

func TestCreateAndUpdateLorry(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Aqua")
	app := newApp()

	resp := testutil.Do(t, app, &fx.Admin, "POST", "/api/lorries",
		map[string]any{"registration_no": "gr 1234 20", "driver_name": "Kofi", "capacity_cases": 300})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var l models.Lorry
	testutil.Decode(t, resp, &l)
	assert.Equal(t, "GR123420", l.RegistrationNo)
	assert.True(t, l.Active)

	resp = testutil.Do(t, app, &fx.Admin, "POST", "/api/lorries", map[string]any{"registration_no": "GR123420"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.Admin, "POST", "/api/lorries", map[string]any{"registration_no": "  "})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.Admin, "PUT", fmt.Sprintf("/api/lorries/%d", l.ID),
		map[string]any{"driver_name": "Ama", "active": false})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	testutil.Decode(t, resp, &l)
	assert.Equal(t, "Ama", l.DriverName)
	assert.False(t, l.Active)

	resp = testutil.Do(t, app, &fx.Staff, "GET", "/api/lorries?active=true", nil)
	var list []models.Lorry
	testutil.Decode(t, resp, &list)
	assert.Empty(t, list)

	resp = testutil.Do(t, app, &fx.Staff, "PUT", fmt.Sprintf("/api/lorries/%d", l.ID), map[string]any{"driver_name": "X"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestLorryStockAndDelete(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Aqua")
	app := newApp()

	big := models.Item{TenantID: fx.Tenant.ID, SKU: "B", Name: "Big", SizeLabel: "1.5L", BottlesPerCase: 12, Active: true}
	small := models.Item{TenantID: fx.Tenant.ID, SKU: "S", Name: "Small", SizeLabel: "500ml", BottlesPerCase: 24, Active: true}
	require.NoError(t, db.Create(&big).Error)
	require.NoError(t, db.Create(&small).Error)
	l := models.Lorry{TenantID: fx.Tenant.ID, RegistrationNo: "L1", Active: true}
	idle := models.Lorry{TenantID: fx.Tenant.ID, RegistrationNo: "L2", Active: true}
	require.NoError(t, db.Create(&l).Error)
	require.NoError(t, db.Create(&idle).Error)

	date := testutil.Date("2025-03-01")
	txs := []models.Transaction{
		{TenantID: fx.Tenant.ID, LorryID: l.ID, ItemID: small.ID, Type: models.TransactionLoading, Date: date, TotalBottles: 100},
		{TenantID: fx.Tenant.ID, LorryID: l.ID, ItemID: small.ID, Type: models.TransactionSale, Date: date, TotalBottles: 40},
		{TenantID: fx.Tenant.ID, LorryID: l.ID, ItemID: small.ID, Type: models.TransactionUnloading, Date: date, TotalBottles: 10},
		{TenantID: fx.Tenant.ID, LorryID: l.ID, ItemID: big.ID, Type: models.TransactionLoading, Date: date, TotalBottles: 30},
	}
	require.NoError(t, db.Create(&txs).Error)

	resp := testutil.Do(t, app, &fx.Staff, "GET", fmt.Sprintf("/api/lorries/%d/stock", l.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var stock struct {
		Items        []lorry.StockLine `json:"items"`
		TotalBottles int               `json:"total_bottles"`
	}
	testutil.Decode(t, resp, &stock)
	require.Len(t, stock.Items, 2)
	assert.Equal(t, "S", stock.Items[0].SKU)
	assert.Equal(t, 50, stock.Items[0].OnHandBottles)
	assert.Equal(t, 2, stock.Items[0].Cases)
	assert.Equal(t, 2, stock.Items[0].LooseBottles)
	assert.Equal(t, 30, stock.Items[1].OnHandBottles)
	assert.Equal(t, 80, stock.TotalBottles)

	resp = testutil.Do(t, app, &fx.Admin, "DELETE", fmt.Sprintf("/api/lorries/%d", l.ID), nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.Admin, "DELETE", fmt.Sprintf("/api/lorries/%d", idle.ID), nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	other := testutil.CreateTenant(t, db, "Other")
	resp = testutil.Do(t, app, &other.Staff, "GET", fmt.Sprintf("/api/lorries/%d/stock", l.ID), nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

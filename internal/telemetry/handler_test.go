package telemetry_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"depot-backend/internal/auth"
	"depot-backend/internal/models"
	"depot-backend/internal/telemetry"
	"depot-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(bridge *telemetry.Bridge) *fiber.App {
	cfg := testutil.Config()
	app := testutil.NewApp()
	api := app.Group("/api", auth.JWTMiddleware(cfg))

	scales := api.Group("/scales")
	scales.Get("/", telemetry.ListScalesHandler())
	scales.Get("/:id", telemetry.GetScaleHandler())
	scales.Get("/:id/readings", telemetry.ReadingsHandler())
	scales.Get("/:id/latest", telemetry.LatestReadingHandler())
	scales.Post("/", auth.RequireAdmin(), telemetry.CreateScaleHandler())
	scales.Put("/:id", auth.RequireAdmin(), telemetry.UpdateScaleHandler())
	scales.Delete("/:id", auth.RequireAdmin(), telemetry.DeleteScaleHandler())
	scales.Post("/:id/tare", auth.RequireAdmin(), telemetry.TareScaleHandler(bridge))
	return app
}

func TestScaleCRUD(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Aqua")
	other := testutil.CreateTenant(t, db, "Other")
	app := newApp(nil)

	item := models.Item{TenantID: fx.Tenant.ID, SKU: "W", Name: "Water", SizeLabel: "1L", BottlesPerCase: 12, Active: true}
	require.NoError(t, db.Create(&item).Error)
	foreign := models.Item{TenantID: other.Tenant.ID, SKU: "W", Name: "Water", SizeLabel: "1L", BottlesPerCase: 12, Active: true}
	require.NoError(t, db.Create(&foreign).Error)

	resp := testutil.Do(t, app, &fx.Admin, "POST", "/api/scales",
		map[string]any{"serial": "SC-1", "name": "Bay 1", "item_id": item.ID, "bottle_grams": 1040})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var s models.Scale
	testutil.Decode(t, resp, &s)
	assert.Equal(t, "SC-1", s.Serial)

	resp = testutil.Do(t, app, &other.Admin, "POST", "/api/scales", map[string]any{"serial": "SC-1"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.Admin, "POST", "/api/scales", map[string]any{"serial": "bad/serial"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.Admin, "POST", "/api/scales", map[string]any{"serial": "SC-2", "item_id": foreign.ID})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.Staff, "POST", "/api/scales", map[string]any{"serial": "SC-3"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.Admin, "PUT", fmt.Sprintf("/api/scales/%d", s.ID),
		map[string]any{"tare_grams": 350, "clear_item": true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	testutil.Decode(t, resp, &s)
	assert.Equal(t, 350.0, s.TareGrams)
	assert.Nil(t, s.ItemID)

	resp = testutil.Do(t, app, &other.Staff, "GET", fmt.Sprintf("/api/scales/%d", s.ID), nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var list []models.Scale
	testutil.Decode(t, testutil.Do(t, app, &fx.Staff, "GET", "/api/scales", nil), &list)
	assert.Len(t, list, 1)

	require.NoError(t, db.Create(&models.ScaleReading{TenantID: fx.Tenant.ID, ScaleID: s.ID, GrossGrams: 1, ReadAt: time.Now()}).Error)
	resp = testutil.Do(t, app, &fx.Admin, "DELETE", fmt.Sprintf("/api/scales/%d", s.ID), nil)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	var n int64
	db.Model(&models.ScaleReading{}).Count(&n)
	assert.Zero(t, n)
}

func TestReadingsAndLatest(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Aqua")
	scale := createScale(t, db, fx.Tenant.ID, "SC-1", 0, 500)
	app := newApp(nil)

	resp := testutil.Do(t, app, &fx.Staff, "GET", fmt.Sprintf("/api/scales/%d/latest", scale.ID), nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		require.NoError(t, db.Create(&models.ScaleReading{
			TenantID: fx.Tenant.ID, ScaleID: scale.ID, GrossGrams: float64(i * 100),
			ReadAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	var readings []models.ScaleReading
	testutil.Decode(t, testutil.Do(t, app, &fx.Staff, "GET", fmt.Sprintf("/api/scales/%d/readings", scale.ID), nil), &readings)
	require.Len(t, readings, 50)
	assert.Equal(t, 5900.0, readings[0].GrossGrams)

	testutil.Decode(t, testutil.Do(t, app, &fx.Staff, "GET", fmt.Sprintf("/api/scales/%d/readings?limit=5", scale.ID), nil), &readings)
	assert.Len(t, readings, 5)

	testutil.Decode(t, testutil.Do(t, app, &fx.Staff, "GET", fmt.Sprintf("/api/scales/%d/readings?limit=9999", scale.ID), nil), &readings)
	assert.Len(t, readings, 60)

	resp = testutil.Do(t, app, &fx.Staff, "GET", fmt.Sprintf("/api/scales/%d/readings?limit=abc", scale.ID), nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var latest struct {
		Reading models.ScaleReading `json:"reading"`
	}
	testutil.Decode(t, testutil.Do(t, app, &fx.Staff, "GET", fmt.Sprintf("/api/scales/%d/latest", scale.ID), nil), &latest)
	assert.Equal(t, 5900.0, latest.Reading.GrossGrams)
}

func TestTare(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Aqua")
	scale := createScale(t, db, fx.Tenant.ID, "SC-1", 300, 500)
	require.NoError(t, db.Create(&models.ScaleReading{TenantID: fx.Tenant.ID, ScaleID: scale.ID, GrossGrams: 420, ReadAt: time.Now()}).Error)

	resp := testutil.Do(t, newApp(nil), &fx.Admin, "POST", fmt.Sprintf("/api/scales/%d/tare", scale.ID), nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	broker := newFakeBroker()
	bridge := telemetry.NewBridge(broker, db, telemetry.Options{Prefix: "scales"})
	app := newApp(bridge)
	resp = testutil.Do(t, app, &fx.Admin, "POST", fmt.Sprintf("/api/scales/%d/tare", scale.ID), nil)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	var s models.Scale
	testutil.Decode(t, resp, &s)
	assert.Zero(t, s.TareGrams)

	pubs, _, _ := broker.snapshot()
	require.Len(t, pubs, 1)
	assert.Equal(t, "scales/SC-1/cmd", pubs[0].topic)
	assert.Contains(t, string(pubs[0].payload), `"cmd":"tare"`)

	// the zeroed scale now reports two bottles
	r, err := bridge.RecordWeight("SC-1", []byte("1000"))
	require.NoError(t, err)
	assert.Equal(t, 1000.0, r.NetGrams)
	assert.Equal(t, 2, r.EstimatedBottles)

	broker.pubErr = errors.New("broker down")
	require.NoError(t, db.Model(&models.Scale{}).Where("id = ?", scale.ID).Update("tare_grams", 250).Error)
	resp = testutil.Do(t, app, &fx.Admin, "POST", fmt.Sprintf("/api/scales/%d/tare", scale.ID), nil)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	var stored models.Scale
	require.NoError(t, db.First(&stored, scale.ID).Error)
	assert.Equal(t, 250.0, stored.TareGrams)
}

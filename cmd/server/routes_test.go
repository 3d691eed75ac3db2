package main

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"depot-backend/internal/cache"
	"depot-backend/internal/metrics"
	"depot-backend/internal/models"
	"depot-backend/internal/report"
	"depot-backend/internal/testutil"
	"depot-backend/internal/transaction"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthAndMetrics(t *testing.T) {
	testutil.NewDB(t)
	app := newApp(testutil.Config(), metrics.New(), nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "depot_http_requests_total")
	assert.Contains(t, string(body), `route="/api/health"`)
}

func TestLoginAndScopedRoutes(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Aqua")
	app := newApp(testutil.Config(), nil, nil)

	resp := testutil.Do(t, app, nil, "POST", "/api/auth/login",
		map[string]string{"email": fx.Staff.Email, "password": "password123"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var login struct {
		Token string `json:"token"`
	}
	testutil.Decode(t, resp, &login)
	assert.NotEmpty(t, login.Token)

	resp = testutil.Do(t, app, nil, "GET", "/api/items", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.Staff, "GET", "/api/items", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.Staff, "GET", "/api/tenants", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.Admin, "POST", "/api/scales/1/tare", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, db.Model(&fx.Tenant).Update("status", models.TenantStatusSuspended).Error)
	resp = testutil.Do(t, app, &fx.Staff, "GET", "/api/items", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestUndoRefreshesCachedReports(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Aqua")
	app := newApp(testutil.Config(), nil, nil)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	prev := cache.Default
	cache.Default = cache.New(client, time.Minute)
	t.Cleanup(func() { cache.Default = prev })

	item := models.Item{TenantID: fx.Tenant.ID, SKU: "W1", Name: "Water 1L", SizeLabel: "1L", BottlesPerCase: 12, StockBottles: 100, Active: true}
	require.NoError(t, db.Create(&item).Error)
	lorry := models.Lorry{TenantID: fx.Tenant.ID, RegistrationNo: "GR1", Active: true}
	require.NoError(t, db.Create(&lorry).Error)

	today := time.Now().UTC().Format("2006-01-02")
	for _, body := range []map[string]any{
		{"type": "loading", "lorry_id": lorry.ID, "item_id": item.ID, "date": today, "bottles": 20},
		{"type": "sale", "lorry_id": lorry.ID, "item_id": item.ID, "date": today, "bottles": 20, "amount": 20},
	} {
		resp := testutil.Do(t, app, &fx.Staff, "POST", "/api/transactions", body)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	var ov report.OverviewResponse
	testutil.Decode(t, testutil.Do(t, app, &fx.Staff, "GET", "/api/reports/overview", nil), &ov)
	assert.Equal(t, 20.0, ov.Revenue)
	assert.Equal(t, 20, ov.BottlesSold)

	var sale models.AuditLog
	require.NoError(t, db.Where("entity_type = ? AND action = ?", transaction.EntityTransaction, models.AuditActionCreate).
		Order("id DESC").First(&sale).Error)
	resp := testutil.Do(t, app, &fx.Admin, "POST", fmt.Sprintf("/api/audit-logs/%d/undo", sale.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	testutil.Decode(t, testutil.Do(t, app, &fx.Staff, "GET", "/api/reports/overview", nil), &ov)
	assert.Zero(t, ov.Revenue)
	assert.Zero(t, ov.BottlesSold)
}

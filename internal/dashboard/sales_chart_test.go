package dashboard

import (
	"testing"
	"time"

	"depot-backend/internal/auth"
	"depot-backend/internal/models"
	"depot-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *testing.T, now time.Time) {
	prev := clock
	clock = func() time.Time { return now }
	t.Cleanup(func() { clock = prev })
}

func TestChartRange(t *testing.T) {
	now := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC) // Wednesday

	from, to := ChartRange(PeriodDaily, 7, now)
	assert.Equal(t, "2025-03-06", from.Format("2006-01-02"))
	assert.Equal(t, "2025-03-12", to.Format("2006-01-02"))

	from, to = ChartRange(PeriodWeekly, 2, now)
	assert.Equal(t, "2025-03-03", from.Format("2006-01-02"))
	assert.Equal(t, "2025-03-16", to.Format("2006-01-02"))

	from, to = ChartRange(PeriodMonthly, 12, now)
	assert.Equal(t, "2024-04-01", from.Format("2006-01-02"))
	assert.Equal(t, "2025-03-31", to.Format("2006-01-02"))
}

func TestSalesChartHandler(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Aqua")
	other := testutil.CreateTenant(t, db, "Other")
	fixedClock(t, time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC))

	item := models.Item{TenantID: fx.Tenant.ID, SKU: "W", Name: "Water", SizeLabel: "1L", BottlesPerCase: 12, Active: true}
	require.NoError(t, db.Create(&item).Error)
	lorry := models.Lorry{TenantID: fx.Tenant.ID, RegistrationNo: "AAA1", Active: true}
	require.NoError(t, db.Create(&lorry).Error)

	sale := func(tenantID uint, typ models.TransactionType, day string, bottles int, amount float64) models.Transaction {
		return models.Transaction{TenantID: tenantID, LorryID: lorry.ID, ItemID: item.ID, Type: typ,
			Date: testutil.Date(day), TotalBottles: bottles, Amount: amount}
	}
	txs := []models.Transaction{
		sale(fx.Tenant.ID, models.TransactionSale, "2025-03-10", 10, 5),
		sale(fx.Tenant.ID, models.TransactionSale, "2025-03-12", 20, 10.5),
		sale(fx.Tenant.ID, models.TransactionSale, "2025-03-04", 4, 2),
		sale(fx.Tenant.ID, models.TransactionSale, "2025-02-15", 1, 1),
		sale(fx.Tenant.ID, models.TransactionLoading, "2025-03-12", 100, 0),
		sale(other.Tenant.ID, models.TransactionSale, "2025-03-12", 99, 99),
	}
	require.NoError(t, db.Create(&txs).Error)

	app := testutil.NewApp()
	app.Get("/api/dashboard/sales-chart", auth.JWTMiddleware(testutil.Config()), SalesChartHandler())

	var daily SalesChartResponse
	testutil.Decode(t, testutil.Do(t, app, &fx.Staff, "GET", "/api/dashboard/sales-chart?count=3", nil), &daily)
	assert.Equal(t, PeriodDaily, daily.Period)
	assert.Equal(t, "2025-03-10", daily.From)
	require.Len(t, daily.Points, 3)
	assert.Equal(t, 5.0, daily.Points[0].Revenue)
	assert.Zero(t, daily.Points[1].Sales)
	assert.Equal(t, 10.5, daily.Points[2].Revenue)
	assert.Equal(t, SalesChartTotals{Revenue: 15.5, Bottles: 30, Sales: 2}, daily.GrandTotals)

	var weekly SalesChartResponse
	testutil.Decode(t, testutil.Do(t, app, &fx.Staff, "GET", "/api/dashboard/sales-chart?period=weekly&count=2", nil), &weekly)
	require.Len(t, weekly.Points, 2)
	assert.Equal(t, "2025-03-03", weekly.Points[0].Label)
	assert.Equal(t, 4, weekly.Points[0].Bottles)
	assert.Equal(t, 15.5, weekly.Points[1].Revenue)
	assert.Equal(t, 17.5, weekly.GrandTotals.Revenue)

	var monthly SalesChartResponse
	testutil.Decode(t, testutil.Do(t, app, &fx.Staff, "GET", "/api/dashboard/sales-chart?period=monthly&count=2", nil), &monthly)
	require.Len(t, monthly.Points, 2)
	assert.Equal(t, "2025-02-01", monthly.Points[0].Label)
	assert.Equal(t, 1.0, monthly.Points[0].Revenue)
	assert.Equal(t, SalesChartTotals{Revenue: 18.5, Bottles: 35, Sales: 4}, monthly.GrandTotals)

	resp := testutil.Do(t, app, &fx.Staff, "GET", "/api/dashboard/sales-chart?period=yearly", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp = testutil.Do(t, app, &fx.Staff, "GET", "/api/dashboard/sales-chart?count=0", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

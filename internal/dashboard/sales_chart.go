package dashboard

import (
	"math"
	"time"

	"depot-backend/internal/auth"
	"depot-backend/internal/database"
	"depot-backend/internal/httpx"
	"depot-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"

	maxBuckets = 366
)

var clock = time.Now

type SalesChartPoint struct {
	Label   string  `json:"label"` // day / week start (Monday) / month start
	Revenue float64 `json:"revenue"`
	Bottles int     `json:"bottles"`
	Sales   int     `json:"sales"`
}

type SalesChartTotals struct {
	Revenue float64 `json:"revenue"`
	Bottles int     `json:"bottles"`
	Sales   int     `json:"sales"`
}

type SalesChartResponse struct {
	TenantID    uint              `json:"tenant_id"`
	Period      string            `json:"period"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	Points      []SalesChartPoint `json:"points"`
	GrandTotals SalesChartTotals  `json:"grand_totals"`
}

func defaultCount(period string) int {
	switch period {
	case PeriodWeekly:
		return 8
	case PeriodMonthly:
		return 12
	}
	return 7
}

func bucketStart(period string, t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch period {
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodMonthly:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return day
}

func step(period string, t time.Time, n int) time.Time {
	switch period {
	case PeriodWeekly:
		return t.AddDate(0, 0, 7*n)
	case PeriodMonthly:
		return t.AddDate(0, n, 0)
	}
	return t.AddDate(0, 0, n)
}

// ChartRange returns the first bucket start and the last day covered by count buckets ending at now.
func ChartRange(period string, count int, now time.Time) (time.Time, time.Time) {
	last := bucketStart(period, now)
	first := step(period, last, -(count - 1))
	return first, step(period, last, 1).AddDate(0, 0, -1)
}

// BuildSalesChart buckets sale transactions into count consecutive periods ending at now.
// Empty buckets are kept so the chart has no gaps.
func BuildSalesChart(period string, count int, now time.Time, txs []models.Transaction) ([]SalesChartPoint, SalesChartTotals) {
	first, _ := ChartRange(period, count, now)

	points := make([]SalesChartPoint, count)
	index := make(map[time.Time]int, count)
	for i := range points {
		b := step(period, first, i)
		points[i].Label = b.Format(httpx.DateLayout)
		index[b] = i
	}

	var totals SalesChartTotals
	for _, t := range txs {
		if t.Type != models.TransactionSale {
			continue
		}
		i, ok := index[bucketStart(period, t.Date)]
		if !ok {
			continue
		}
		points[i].Revenue += t.Amount
		points[i].Bottles += t.TotalBottles
		points[i].Sales++
		totals.Revenue += t.Amount
		totals.Bottles += t.TotalBottles
		totals.Sales++
	}
	for i := range points {
		points[i].Revenue = math.Round(points[i].Revenue*100) / 100
	}
	totals.Revenue = math.Round(totals.Revenue*100) / 100
	return points, totals
}

// GET /api/dashboard/sales-chart?period=daily&count=7&tenant_id=1
func SalesChartHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}

		period := c.Query("period", PeriodDaily)
		switch period {
		case PeriodDaily, PeriodWeekly, PeriodMonthly:
		default:
			return fiber.NewError(fiber.StatusBadRequest, "period must be daily, weekly or monthly")
		}

		count := defaultCount(period)
		if v, ok, err := httpx.QueryUint(c, "count"); err != nil {
			return err
		} else if ok {
			if v == 0 || v > maxBuckets {
				return fiber.NewError(fiber.StatusBadRequest, "count must be between 1 and 366")
			}
			count = int(v)
		}

		now := clock()
		from, to := ChartRange(period, count, now)

		var txs []models.Transaction
		if err := database.DB.
			Where("tenant_id = ? AND type = ? AND date >= ? AND date <= ?",
				tenantID, models.TransactionSale, from, httpx.EndOfDay(to)).
			Find(&txs).Error; err != nil {
			return err
		}

		points, totals := BuildSalesChart(period, count, now, txs)
		return c.JSON(SalesChartResponse{
			TenantID:    tenantID,
			Period:      period,
			From:        from.Format(httpx.DateLayout),
			To:          to.Format(httpx.DateLayout),
			Points:      points,
			GrandTotals: totals,
		})
	}
}

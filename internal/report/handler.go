package report

import (
	"bytes"
	"fmt"
	"time"

	"depot-backend/internal/auth"
	"depot-backend/internal/cache"
	"depot-backend/internal/database"
	"depot-backend/internal/httpx"
	"depot-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// MaxRangeDays bounds every report date range.
const MaxRangeDays = 366

type OverviewResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
	Overview
}

type LorryPerformanceResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
	LorryPerformance
}

type DailySalesResponse struct {
	From   string       `json:"from"`
	To     string       `json:"to"`
	Points []DailyPoint `json:"points"`
}

// period is everything a tenant recorded between from and to (inclusive).
type period struct {
	lorries    []models.Lorry
	items      []models.Item
	txs        []models.Transaction
	returns    []models.Return
	expenses   []models.Expense
	categories []models.ExpenseCategory
}

func inRange(db *gorm.DB, tenantID uint, from, to time.Time) *gorm.DB {
	return db.Where("tenant_id = ? AND date >= ? AND date <= ?", tenantID, from, httpx.EndOfDay(to))
}

func loadPeriod(db *gorm.DB, tenantID uint, from, to time.Time, withMasterData bool) (period, error) {
	var p period
	if err := inRange(db, tenantID, from, to).Find(&p.txs).Error; err != nil {
		return p, err
	}
	if err := inRange(db, tenantID, from, to).Find(&p.returns).Error; err != nil {
		return p, err
	}
	if !withMasterData {
		return p, nil
	}
	if err := inRange(db, tenantID, from, to).Find(&p.expenses).Error; err != nil {
		return p, err
	}
	if err := db.Where("tenant_id = ?", tenantID).Find(&p.lorries).Error; err != nil {
		return p, err
	}
	if err := db.Where("tenant_id = ?", tenantID).Find(&p.items).Error; err != nil {
		return p, err
	}
	if err := db.Where("tenant_id = ?", tenantID).Find(&p.categories).Error; err != nil {
		return p, err
	}
	return p, nil
}

func scopeAndRange(c *fiber.Ctx) (uint, time.Time, time.Time, error) {
	tenantID, err := auth.ResolveTenantFromQuery(c)
	if err != nil {
		return 0, time.Time{}, time.Time{}, err
	}
	from, to, err := httpx.DateRange(c, time.Now(), MaxRangeDays)
	if err != nil {
		return 0, time.Time{}, time.Time{}, err
	}
	return tenantID, from, to, nil
}

func rangeParts(name string, from, to time.Time) []string {
	return []string{name, from.Format(httpx.DateLayout), to.Format(httpx.DateLayout)}
}

// LorryPerformanceFor computes the lorry performance report of a tenant.
func LorryPerformanceFor(db *gorm.DB, tenantID uint, from, to time.Time) (LorryPerformanceResponse, error) {
	p, err := loadPeriod(db, tenantID, from, to, true)
	if err != nil {
		return LorryPerformanceResponse{}, err
	}
	return LorryPerformanceResponse{
		From:             from.Format(httpx.DateLayout),
		To:               to.Format(httpx.DateLayout),
		LorryPerformance: BuildLorryPerformance(p.lorries, p.txs, p.returns, p.expenses),
	}, nil
}

// GET /api/reports/overview?from=&to=
func OverviewHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, from, to, err := scopeAndRange(c)
		if err != nil {
			return err
		}

		out, err := cache.Fetch(c.UserContext(), cache.Default, tenantID, rangeParts("overview", from, to),
			func() (OverviewResponse, error) {
				p, err := loadPeriod(database.DB, tenantID, from, to, true)
				if err != nil {
					return OverviewResponse{}, err
				}
				return OverviewResponse{
					From:     from.Format(httpx.DateLayout),
					To:       to.Format(httpx.DateLayout),
					Overview: BuildOverview(p.items, p.txs, p.returns, p.expenses, p.categories),
				}, nil
			})
		if err != nil {
			return err
		}
		return c.JSON(out)
	}
}

// GET /api/reports/lorry-performance?from=&to=
func LorryPerformanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, from, to, err := scopeAndRange(c)
		if err != nil {
			return err
		}

		out, err := cache.Fetch(c.UserContext(), cache.Default, tenantID, rangeParts("lorry-performance", from, to),
			func() (LorryPerformanceResponse, error) {
				return LorryPerformanceFor(database.DB, tenantID, from, to)
			})
		if err != nil {
			return err
		}
		return c.JSON(out)
	}
}

// GET /api/reports/daily-sales?from=&to=
func DailySalesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, from, to, err := scopeAndRange(c)
		if err != nil {
			return err
		}

		out, err := cache.Fetch(c.UserContext(), cache.Default, tenantID, rangeParts("daily-sales", from, to),
			func() (DailySalesResponse, error) {
				p, err := loadPeriod(database.DB, tenantID, from, to, false)
				if err != nil {
					return DailySalesResponse{}, err
				}
				return DailySalesResponse{
					From:   from.Format(httpx.DateLayout),
					To:     to.Format(httpx.DateLayout),
					Points: BuildDailySales(p.txs, from, to),
				}, nil
			})
		if err != nil {
			return err
		}
		return c.JSON(out)
	}
}

var performanceHeader = []any{
	"Registration", "Driver", "Loaded", "Unloaded", "Sold", "Revenue",
	"Expiry", "Empty", "Expenses", "Sell-through %", "Return rate %", "Net",
}

func performanceRow(r LorryPerformanceRow) []any {
	return []any{
		r.RegistrationNo, r.DriverName, r.LoadedBottles, r.UnloadedBottles, r.SoldBottles, r.Revenue,
		r.ExpiryBottles, r.EmptyBottles, r.Expenses, r.SellThroughPct, r.ReturnRatePct, r.Net,
	}
}

// WriteLorryPerformance renders the report as a single-sheet workbook.
func WriteLorryPerformance(rep LorryPerformanceResponse) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Lorry performance"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	rows := [][]any{{"Period", rep.From, rep.To}, {}, performanceHeader}
	for _, r := range rep.Rows {
		rows = append(rows, performanceRow(r))
	}
	rows = append(rows, performanceRow(rep.Totals))

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sheet, "A", "B", 18); err != nil {
		return nil, err
	}
	return f.WriteToBuffer()
}

// GET /api/reports/lorry-performance/export?from=&to=
func ExportLorryPerformanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, from, to, err := scopeAndRange(c)
		if err != nil {
			return err
		}

		rep, err := LorryPerformanceFor(database.DB, tenantID, from, to)
		if err != nil {
			return err
		}
		buf, err := WriteLorryPerformance(rep)
		if err != nil {
			return err
		}

		name := fmt.Sprintf("lorry-performance_%s_%s.xlsx", rep.From, rep.To)
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, name))
		return c.Send(buf.Bytes())
	}
}

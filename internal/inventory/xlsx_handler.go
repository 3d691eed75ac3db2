package inventory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"depot-backend/internal/audit"
	"depot-backend/internal/auth"
	"depot-backend/internal/cache"
	"depot-backend/internal/database"
	"depot-backend/internal/models"
	"depot-backend/internal/report"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var itemColumns = []string{"SKU", "Name", "Size", "Bottles/Case", "Case price", "Bottle price", "Reorder level"}

// ItemRow is one parsed spreadsheet line.
type ItemRow struct {
	Line           int
	SKU            string
	Name           string
	SizeLabel      string
	BottlesPerCase int
	CasePrice      float64
	BottlePrice    float64
	ReorderLevel   int
}

type RowError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors"`
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func parseNumber(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

// ParseItemRows reads SKU, Name, Size, Bottles/Case, Case price, Bottle price, Reorder level.
// A first row whose first cell says "SKU" is treated as a header. Blank rows are skipped.
func ParseItemRows(rows [][]string) (parsed []ItemRow, skipped int, errs []RowError) {
	start := 0
	if len(rows) > 0 && strings.EqualFold(cell(rows[0], 0), "sku") {
		start = 1
	}

	for i := start; i < len(rows); i++ {
		row := rows[i]
		line := i + 1

		blank := true
		for _, v := range row {
			if strings.TrimSpace(v) != "" {
				blank = false
				break
			}
		}
		if blank {
			skipped++
			continue
		}

		r := ItemRow{
			Line:      line,
			SKU:       normalizeSKU(cell(row, 0)),
			Name:      cell(row, 1),
			SizeLabel: cell(row, 2),
		}
		if r.SKU == "" || r.Name == "" || r.SizeLabel == "" {
			errs = append(errs, RowError{Line: line, Error: "sku, name and size are required"})
			continue
		}

		bpc, err := strconv.Atoi(cell(row, 3))
		if err != nil || bpc <= 0 {
			errs = append(errs, RowError{Line: line, Error: "bottles per case must be a whole number greater than 0"})
			continue
		}
		r.BottlesPerCase = bpc

		if r.CasePrice, err = parseNumber(cell(row, 4)); err != nil || r.CasePrice < 0 {
			errs = append(errs, RowError{Line: line, Error: "case price must be a number >= 0"})
			continue
		}
		if r.BottlePrice, err = parseNumber(cell(row, 5)); err != nil || r.BottlePrice < 0 {
			errs = append(errs, RowError{Line: line, Error: "bottle price must be a number >= 0"})
			continue
		}
		if raw := cell(row, 6); raw != "" {
			reorder, err := strconv.Atoi(raw)
			if err != nil || reorder < 0 {
				errs = append(errs, RowError{Line: line, Error: "reorder level must be a whole number >= 0"})
				continue
			}
			r.ReorderLevel = reorder
		}

		parsed = append(parsed, r)
	}
	return parsed, skipped, errs
}

// ImportItems upserts rows by SKU inside one DB transaction.
func ImportItems(db *gorm.DB, tenantID uint, actor auth.Actor, rows []ItemRow) (ImportResult, error) {
	var res ImportResult
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, r := range rows {
			var it models.Item
			err := tx.Where("tenant_id = ? AND sku = ?", tenantID, r.SKU).First(&it).Error
			switch {
			case err == nil:
				before := it
				it.Name = r.Name
				it.SizeLabel = r.SizeLabel
				it.BottlesPerCase = r.BottlesPerCase
				it.CasePrice = r.CasePrice
				it.BottlePrice = r.BottlePrice
				it.ReorderLevel = r.ReorderLevel
				if err := tx.Save(&it).Error; err != nil {
					return err
				}
				if err := audit.WriteLog(audit.LogOptions{
					DB: tx, TenantID: &tenantID, UserID: actor.UserID, UserName: actor.Name,
					EntityType: EntityItem, EntityID: it.ID, Action: models.AuditActionUpdate,
					Description: "Item updated by import: " + it.Name,
					Before:      before, After: it,
				}); err != nil {
					return err
				}
				res.Updated++
			case errors.Is(err, gorm.ErrRecordNotFound):
				it = models.Item{
					TenantID:       tenantID,
					SKU:            r.SKU,
					Name:           r.Name,
					SizeLabel:      r.SizeLabel,
					BottlesPerCase: r.BottlesPerCase,
					CasePrice:      r.CasePrice,
					BottlePrice:    r.BottlePrice,
					ReorderLevel:   r.ReorderLevel,
					Active:         true,
				}
				if err := tx.Create(&it).Error; err != nil {
					return err
				}
				if err := audit.WriteLog(audit.LogOptions{
					DB: tx, TenantID: &tenantID, UserID: actor.UserID, UserName: actor.Name,
					EntityType: EntityItem, EntityID: it.ID, Action: models.AuditActionCreate,
					Description: "Item created by import: " + it.Name,
					After:       it,
				}); err != nil {
					return err
				}
				res.Created++
			default:
				return err
			}
		}
		return nil
	})
	return res, err
}

// POST /api/items/import (multipart, field "file")
func ImportItemsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "only .xlsx files are accepted")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return err
		}
		defer file.Close()

		book, err := excelize.OpenReader(file)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "spreadsheet could not be read")
		}
		defer book.Close()

		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "spreadsheet has no sheets")
		}
		rows, err := book.GetRows(sheets[0])
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "sheet could not be read")
		}

		parsed, skipped, rowErrs := ParseItemRows(rows)
		res, err := ImportItems(database.DB, tenantID, actor, parsed)
		if err != nil {
			return err
		}
		res.Skipped = skipped
		res.Errors = rowErrs
		if res.Errors == nil {
			res.Errors = []RowError{}
		}

		zap.L().Info("items imported",
			zap.Uint("tenant_id", tenantID),
			zap.Int("created", res.Created),
			zap.Int("updated", res.Updated),
			zap.Int("errors", len(rowErrs)),
		)
		if res.Created+res.Updated > 0 {
			cache.Invalidate(tenantID)
		}
		return c.JSON(res)
	}
}

// GET /api/items/export
func ExportItemsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}

		var items []models.Item
		if err := database.DB.Where("tenant_id = ?", tenantID).Find(&items).Error; err != nil {
			return err
		}
		report.SortItems(items)

		book := excelize.NewFile()
		defer book.Close()
		const sheet = "Stock"
		if err := book.SetSheetName("Sheet1", sheet); err != nil {
			return err
		}

		header := append([]any{}, toAny(itemColumns)...)
		header = append(header, "Stock (cases)", "Stock (bottles)", "Stock total", "Empty bottles", "Active")
		if err := book.SetSheetRow(sheet, "A1", &header); err != nil {
			return err
		}
		for i, it := range items {
			cases, loose := it.SplitBottles(it.StockBottles)
			row := []any{
				it.SKU, it.Name, it.SizeLabel, it.BottlesPerCase, it.CasePrice, it.BottlePrice,
				it.ReorderLevel, cases, loose, it.StockBottles, it.EmptyBottles, it.Active,
			}
			axis, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			if err := book.SetSheetRow(sheet, axis, &row); err != nil {
				return err
			}
		}

		buf, err := book.WriteToBuffer()
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, xlsxContentType)
		c.Set(fiber.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename="stock-%s.xlsx"`, time.Now().UTC().Format("2006-01-02")))
		return c.Send(buf.Bytes())
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

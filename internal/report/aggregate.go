package report

import (
	"math"
	"sort"
	"strings"
	"time"

	"depot-backend/internal/models"
)

const unknownSize = "Unknown"

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Percent returns part/whole*100 rounded to two decimals, 0 when whole is 0.
func Percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return round2(part / whole * 100)
}

type LorryPerformanceRow struct {
	LorryID         uint    `json:"lorry_id"`
	RegistrationNo  string  `json:"registration_no"`
	DriverName      string  `json:"driver_name"`
	LoadedBottles   int     `json:"loaded_bottles"`
	UnloadedBottles int     `json:"unloaded_bottles"`
	SoldBottles     int     `json:"sold_bottles"`
	Revenue         float64 `json:"revenue"`
	ExpiryBottles   int     `json:"expiry_bottles"`
	EmptyBottles    int     `json:"empty_bottles"`
	Expenses        float64 `json:"expenses"`
	SellThroughPct  float64 `json:"sell_through_pct"`
	ReturnRatePct   float64 `json:"return_rate_pct"`
	Net             float64 `json:"net"`
}

func (r *LorryPerformanceRow) finish() {
	r.Revenue = round2(r.Revenue)
	r.Expenses = round2(r.Expenses)
	r.SellThroughPct = Percent(float64(r.SoldBottles), float64(r.LoadedBottles))
	r.ReturnRatePct = Percent(float64(r.UnloadedBottles), float64(r.LoadedBottles))
	r.Net = round2(r.Revenue - r.Expenses)
}

type LorryPerformance struct {
	Rows   []LorryPerformanceRow `json:"rows"`
	Totals LorryPerformanceRow   `json:"totals"`
}

// BuildLorryPerformance joins activity onto lorries by ID. Rows for unknown lorries are ignored.
func BuildLorryPerformance(lorries []models.Lorry, txs []models.Transaction, returns []models.Return, expenses []models.Expense) LorryPerformance {
	rows := make([]LorryPerformanceRow, len(lorries))
	byID := make(map[uint]*LorryPerformanceRow, len(lorries))
	for i, l := range lorries {
		rows[i] = LorryPerformanceRow{
			LorryID:        l.ID,
			RegistrationNo: l.RegistrationNo,
			DriverName:     l.DriverName,
		}
		byID[l.ID] = &rows[i]
	}

	for _, t := range txs {
		r, ok := byID[t.LorryID]
		if !ok {
			continue
		}
		switch t.Type {
		case models.TransactionLoading:
			r.LoadedBottles += t.TotalBottles
		case models.TransactionUnloading:
			r.UnloadedBottles += t.TotalBottles
		case models.TransactionSale:
			r.SoldBottles += t.TotalBottles
			r.Revenue += t.Amount
		}
	}

	for _, ret := range returns {
		r, ok := byID[ret.LorryID]
		if !ok {
			continue
		}
		switch ret.Kind {
		case models.ReturnExpiry:
			r.ExpiryBottles += ret.TotalBottles
		case models.ReturnEmpty:
			r.EmptyBottles += ret.TotalBottles
		}
	}

	for _, e := range expenses {
		if e.LorryID == nil || e.Status == models.ExpenseStatusCancelled {
			continue
		}
		if r, ok := byID[*e.LorryID]; ok {
			r.Expenses += e.Amount
		}
	}

	totals := LorryPerformanceRow{RegistrationNo: "TOTAL"}
	for i := range rows {
		r := &rows[i]
		totals.LoadedBottles += r.LoadedBottles
		totals.UnloadedBottles += r.UnloadedBottles
		totals.SoldBottles += r.SoldBottles
		totals.Revenue += r.Revenue
		totals.ExpiryBottles += r.ExpiryBottles
		totals.EmptyBottles += r.EmptyBottles
		totals.Expenses += r.Expenses
		r.finish()
	}
	totals.finish()

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Revenue != rows[j].Revenue {
			return rows[i].Revenue > rows[j].Revenue
		}
		return rows[i].RegistrationNo < rows[j].RegistrationNo
	})

	return LorryPerformance{Rows: rows, Totals: totals}
}

type SizeRow struct {
	SizeLabel     string  `json:"size_label"`
	SoldBottles   int     `json:"sold_bottles"`
	Revenue       float64 `json:"revenue"`
	RevenueShare  float64 `json:"revenue_share_pct"`
	ExpiryBottles int     `json:"expiry_bottles"`
}

type CategoryRow struct {
	CategoryID uint    `json:"category_id"`
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Total      float64 `json:"total"`
	Share      float64 `json:"share_pct"`
}

type StatusRow struct {
	Status models.ExpenseStatus `json:"status"`
	Count  int                  `json:"count"`
	Total  float64              `json:"total"`
}

type Overview struct {
	Revenue            float64       `json:"revenue"`
	BottlesSold        int           `json:"bottles_sold"`
	BottlesLoaded      int           `json:"bottles_loaded"`
	BottlesUnloaded    int           `json:"bottles_unloaded"`
	ExpiryBottles      int           `json:"expiry_bottles"`
	EmptyBottles       int           `json:"empty_bottles"`
	SellThroughPct     float64       `json:"sell_through_pct"`
	ExpenseTotal       float64       `json:"expense_total"`
	ExpensePaid        float64       `json:"expense_paid"`
	ExpenseOutstanding float64       `json:"expense_outstanding"`
	Net                float64       `json:"net"`
	BySize             []SizeRow     `json:"by_size"`
	ByCategory         []CategoryRow `json:"by_category"`
	ByStatus           []StatusRow   `json:"by_status"`
}

var statusOrder = []models.ExpenseStatus{
	models.ExpenseStatusPending,
	models.ExpenseStatusPartiallyPaid,
	models.ExpenseStatusPaid,
	models.ExpenseStatusCancelled,
}

// BuildOverview summarises one period. Cancelled expenses only show up in ByStatus.
func BuildOverview(items []models.Item, txs []models.Transaction, returns []models.Return, expenses []models.Expense, categories []models.ExpenseCategory) Overview {
	sizeOf := make(map[uint]string, len(items))
	for _, it := range items {
		label := strings.TrimSpace(it.SizeLabel)
		if label == "" {
			label = unknownSize
		}
		sizeOf[it.ID] = label
	}
	size := func(itemID uint) string {
		if s, ok := sizeOf[itemID]; ok {
			return s
		}
		return unknownSize
	}

	var ov Overview
	bySize := map[string]*SizeRow{}
	sizeRow := func(label string) *SizeRow {
		r, ok := bySize[label]
		if !ok {
			r = &SizeRow{SizeLabel: label}
			bySize[label] = r
		}
		return r
	}

	for _, t := range txs {
		switch t.Type {
		case models.TransactionLoading:
			ov.BottlesLoaded += t.TotalBottles
		case models.TransactionUnloading:
			ov.BottlesUnloaded += t.TotalBottles
		case models.TransactionSale:
			ov.BottlesSold += t.TotalBottles
			ov.Revenue += t.Amount
			r := sizeRow(size(t.ItemID))
			r.SoldBottles += t.TotalBottles
			r.Revenue += t.Amount
		}
	}

	for _, ret := range returns {
		switch ret.Kind {
		case models.ReturnExpiry:
			ov.ExpiryBottles += ret.TotalBottles
			sizeRow(size(ret.ItemID)).ExpiryBottles += ret.TotalBottles
		case models.ReturnEmpty:
			ov.EmptyBottles += ret.TotalBottles
		}
	}

	catName := make(map[uint]string, len(categories))
	for _, c := range categories {
		catName[c.ID] = c.Name
	}
	byCat := map[uint]*CategoryRow{}
	byStatus := map[models.ExpenseStatus]*StatusRow{}
	for _, s := range statusOrder {
		byStatus[s] = &StatusRow{Status: s}
	}

	for _, e := range expenses {
		if sr, ok := byStatus[e.Status]; ok {
			sr.Count++
			sr.Total += e.Amount
		}
		if e.Status == models.ExpenseStatusCancelled {
			continue
		}
		ov.ExpenseTotal += e.Amount
		ov.ExpensePaid += e.PaidAmount
		ov.ExpenseOutstanding += e.Outstanding()

		cr, ok := byCat[e.CategoryID]
		if !ok {
			cr = &CategoryRow{CategoryID: e.CategoryID, Name: catName[e.CategoryID]}
			byCat[e.CategoryID] = cr
		}
		cr.Count++
		cr.Total += e.Amount
	}

	ov.Revenue = round2(ov.Revenue)
	ov.ExpenseTotal = round2(ov.ExpenseTotal)
	ov.ExpensePaid = round2(ov.ExpensePaid)
	ov.ExpenseOutstanding = round2(ov.ExpenseOutstanding)
	ov.Net = round2(ov.Revenue - ov.ExpenseTotal)
	ov.SellThroughPct = Percent(float64(ov.BottlesSold), float64(ov.BottlesLoaded))

	ov.BySize = make([]SizeRow, 0, len(bySize))
	for _, r := range bySize {
		r.Revenue = round2(r.Revenue)
		r.RevenueShare = Percent(r.Revenue, ov.Revenue)
		ov.BySize = append(ov.BySize, *r)
	}
	sort.Slice(ov.BySize, func(i, j int) bool {
		return SizeLabelLess(ov.BySize[i].SizeLabel, ov.BySize[j].SizeLabel)
	})

	ov.ByCategory = make([]CategoryRow, 0, len(byCat))
	for _, r := range byCat {
		r.Total = round2(r.Total)
		r.Share = Percent(r.Total, ov.ExpenseTotal)
		ov.ByCategory = append(ov.ByCategory, *r)
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		if ov.ByCategory[i].Total != ov.ByCategory[j].Total {
			return ov.ByCategory[i].Total > ov.ByCategory[j].Total
		}
		return ov.ByCategory[i].Name < ov.ByCategory[j].Name
	})

	ov.ByStatus = make([]StatusRow, 0, len(statusOrder))
	for _, s := range statusOrder {
		r := byStatus[s]
		r.Total = round2(r.Total)
		ov.ByStatus = append(ov.ByStatus, *r)
	}
	return ov
}

type DailyPoint struct {
	Date        string  `json:"date"`
	SoldBottles int     `json:"sold_bottles"`
	Revenue     float64 `json:"revenue"`
}

// BuildDailySales returns one point per day from..to inclusive, zero days included.
func BuildDailySales(txs []models.Transaction, from, to time.Time) []DailyPoint {
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return []DailyPoint{}
	}

	days := int(to.Sub(from).Hours()/24) + 1
	points := make([]DailyPoint, days)
	for i := range points {
		points[i].Date = from.AddDate(0, 0, i).Format("2006-01-02")
	}

	for _, t := range txs {
		if t.Type != models.TransactionSale {
			continue
		}
		d := truncateDay(t.Date)
		if d.Before(from) || d.After(to) {
			continue
		}
		i := int(d.Sub(from).Hours() / 24)
		points[i].SoldBottles += t.TotalBottles
		points[i].Revenue += t.Amount
	}
	for i := range points {
		points[i].Revenue = round2(points[i].Revenue)
	}
	return points
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

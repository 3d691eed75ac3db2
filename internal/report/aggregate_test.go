package report

import (
	"sort"
	"testing"
	"time"

	"depot-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func uintPtr(v uint) *uint { return &v }

func TestParseVolume(t *testing.T) {
	cases := []struct {
		label string
		ml    float64
		ok    bool
	}{
		{"500ml", 500, true},
		{"500 ML", 500, true},
		{"1L", 1000, true},
		{"1.5 l", 1500, true},
		{"2,5ltr", 2500, true},
		{"5 Litre", 5000, true},
		{"330", 330, true},
		{"Jumbo", 0, false},
		{"", 0, false},
		{"1L pack", 0, false},
	}
	for _, tc := range cases {
		ml, ok := ParseVolume(tc.label)
		assert.Equal(t, tc.ok, ok, tc.label)
		assert.InDelta(t, tc.ml, ml, 0.001, tc.label)
	}
}

func TestSizeLabelOrder(t *testing.T) {
	labels := []string{"Jumbo", "1.5L", "500ml", "Crate", "1L", "250 ml", "20L", "1000ml"}
	sort.Slice(labels, func(i, j int) bool { return SizeLabelLess(labels[i], labels[j]) })
	assert.Equal(t, []string{"250 ml", "500ml", "1000ml", "1L", "1.5L", "20L", "Crate", "Jumbo"}, labels)
}

func TestSortItemsBySizeThenName(t *testing.T) {
	items := []models.Item{
		{Name: "Still", SizeLabel: "1L"},
		{Name: "Sparkling", SizeLabel: "500ml"},
		{Name: "Alkaline", SizeLabel: "1L"},
		{Name: "Gift box", SizeLabel: "Other"},
	}
	SortItems(items)
	names := []string{items[0].Name, items[1].Name, items[2].Name, items[3].Name}
	assert.Equal(t, []string{"Sparkling", "Alkaline", "Still", "Gift box"}, names)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(5, 0))
	assert.Equal(t, 33.33, Percent(1, 3))
	assert.Equal(t, 66.67, Percent(2, 3))
	assert.Equal(t, 100.0, Percent(4, 4))
}

func fixtures() ([]models.Lorry, []models.Item, []models.Transaction, []models.Return, []models.Expense, []models.ExpenseCategory) {
	lorries := []models.Lorry{
		{ID: 1, RegistrationNo: "AAA111", DriverName: "Kofi"},
		{ID: 2, RegistrationNo: "BBB222", DriverName: "Ama"},
		{ID: 3, RegistrationNo: "CCC333"},
	}
	items := []models.Item{
		{ID: 10, SizeLabel: "1.5L", BottlesPerCase: 12},
		{ID: 11, SizeLabel: "500ml", BottlesPerCase: 24},
	}
	txs := []models.Transaction{
		{LorryID: 1, ItemID: 11, Type: models.TransactionLoading, TotalBottles: 240, Date: day("2025-01-01")},
		{LorryID: 1, ItemID: 11, Type: models.TransactionSale, TotalBottles: 180, Amount: 90, Date: day("2025-01-01")},
		{LorryID: 1, ItemID: 11, Type: models.TransactionUnloading, TotalBottles: 60, Date: day("2025-01-02")},
		{LorryID: 2, ItemID: 10, Type: models.TransactionLoading, TotalBottles: 120, Date: day("2025-01-01")},
		{LorryID: 2, ItemID: 10, Type: models.TransactionSale, TotalBottles: 30, Amount: 210, Date: day("2025-01-03")},
		{LorryID: 99, ItemID: 10, Type: models.TransactionSale, TotalBottles: 1, Amount: 1, Date: day("2025-01-03")},
	}
	returns := []models.Return{
		{LorryID: 1, ItemID: 11, Kind: models.ReturnExpiry, TotalBottles: 4},
		{LorryID: 2, ItemID: 10, Kind: models.ReturnEmpty, TotalBottles: 25},
	}
	categories := []models.ExpenseCategory{{ID: 1, Name: "Fuel"}, {ID: 2, Name: "Rent"}}
	expenses := []models.Expense{
		{CategoryID: 1, LorryID: uintPtr(1), Amount: 40, PaidAmount: 40, Status: models.ExpenseStatusPaid},
		{CategoryID: 1, LorryID: uintPtr(2), Amount: 20, PaidAmount: 5, Status: models.ExpenseStatusPartiallyPaid},
		{CategoryID: 2, Amount: 100, Status: models.ExpenseStatusPending},
		{CategoryID: 2, LorryID: uintPtr(1), Amount: 500, Status: models.ExpenseStatusCancelled},
	}
	return lorries, items, txs, returns, expenses, categories
}

func TestBuildLorryPerformance(t *testing.T) {
	lorries, _, txs, returns, expenses, _ := fixtures()
	perf := BuildLorryPerformance(lorries, txs, returns, expenses)

	require.Len(t, perf.Rows, 3)
	assert.Equal(t, "BBB222", perf.Rows[0].RegistrationNo, "sorted by revenue")
	assert.Equal(t, "AAA111", perf.Rows[1].RegistrationNo)
	assert.Equal(t, "CCC333", perf.Rows[2].RegistrationNo, "idle lorry still listed")

	a := perf.Rows[1]
	assert.Equal(t, 240, a.LoadedBottles)
	assert.Equal(t, 180, a.SoldBottles)
	assert.Equal(t, 60, a.UnloadedBottles)
	assert.Equal(t, 4, a.ExpiryBottles)
	assert.Equal(t, 40.0, a.Expenses, "cancelled expense excluded")
	assert.Equal(t, 75.0, a.SellThroughPct)
	assert.Equal(t, 25.0, a.ReturnRatePct)
	assert.Equal(t, 50.0, a.Net)

	b := perf.Rows[0]
	assert.Equal(t, 25, b.EmptyBottles)
	assert.Equal(t, 25.0, b.SellThroughPct)
	assert.Equal(t, 190.0, b.Net)

	idle := perf.Rows[2]
	assert.Zero(t, idle.SellThroughPct)
	assert.Zero(t, idle.Net)

	assert.Equal(t, "TOTAL", perf.Totals.RegistrationNo)
	assert.Equal(t, 360, perf.Totals.LoadedBottles)
	assert.Equal(t, 210, perf.Totals.SoldBottles)
	assert.Equal(t, 300.0, perf.Totals.Revenue, "sales by unknown lorries are not attributed")
	assert.Equal(t, 58.33, perf.Totals.SellThroughPct)
}

func TestBuildOverview(t *testing.T) {
	_, items, txs, returns, expenses, categories := fixtures()
	ov := BuildOverview(items, txs, returns, expenses, categories)

	assert.Equal(t, 301.0, ov.Revenue)
	assert.Equal(t, 211, ov.BottlesSold)
	assert.Equal(t, 360, ov.BottlesLoaded)
	assert.Equal(t, 60, ov.BottlesUnloaded)
	assert.Equal(t, 4, ov.ExpiryBottles)
	assert.Equal(t, 25, ov.EmptyBottles)
	assert.Equal(t, 160.0, ov.ExpenseTotal)
	assert.Equal(t, 45.0, ov.ExpensePaid)
	assert.Equal(t, 115.0, ov.ExpenseOutstanding)
	assert.Equal(t, 141.0, ov.Net)

	require.Len(t, ov.BySize, 2)
	assert.Equal(t, "500ml", ov.BySize[0].SizeLabel)
	assert.Equal(t, 180, ov.BySize[0].SoldBottles)
	assert.Equal(t, 29.9, ov.BySize[0].RevenueShare)
	assert.Equal(t, 4, ov.BySize[0].ExpiryBottles)
	assert.Equal(t, "1.5L", ov.BySize[1].SizeLabel)
	assert.Equal(t, 211.0, ov.BySize[1].Revenue)

	require.Len(t, ov.ByCategory, 2)
	assert.Equal(t, "Rent", ov.ByCategory[0].Name)
	assert.Equal(t, 62.5, ov.ByCategory[0].Share)
	assert.Equal(t, "Fuel", ov.ByCategory[1].Name)
	assert.Equal(t, 2, ov.ByCategory[1].Count)

	require.Len(t, ov.ByStatus, 4)
	assert.Equal(t, models.ExpenseStatusCancelled, ov.ByStatus[3].Status)
	assert.Equal(t, 1, ov.ByStatus[3].Count)
	assert.Equal(t, 500.0, ov.ByStatus[3].Total)
}

func TestBuildOverviewEmpty(t *testing.T) {
	ov := BuildOverview(nil, nil, nil, nil, nil)
	assert.Zero(t, ov.Revenue)
	assert.Empty(t, ov.BySize)
	assert.Len(t, ov.ByStatus, 4)
}

func TestBuildDailySalesFillsGaps(t *testing.T) {
	_, _, txs, _, _, _ := fixtures()
	points := BuildDailySales(txs, day("2024-12-31"), day("2025-01-04"))

	require.Len(t, points, 5)
	assert.Equal(t, "2024-12-31", points[0].Date)
	assert.Zero(t, points[0].SoldBottles)
	assert.Equal(t, 180, points[1].SoldBottles)
	assert.Zero(t, points[2].SoldBottles)
	assert.Equal(t, 31, points[3].SoldBottles)
	assert.Equal(t, 211.0, points[3].Revenue)
	assert.Equal(t, "2025-01-04", points[4].Date)

	assert.Empty(t, BuildDailySales(txs, day("2025-01-04"), day("2025-01-01")))
}

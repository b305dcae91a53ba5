package report

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"kedeaceh/pos/internal/domain"
)

// ErrInvalidWindow is returned when a report window has start after end.
var ErrInvalidWindow = errors.New("report: window start is after end")

const (
	// DefaultMinStock is assumed when a product has no threshold configured.
	DefaultMinStock = 10

	// DefaultCostRatio estimates cost of goods as a flat share of the sale
	// price when no purchase price is recorded.
	DefaultCostRatio = 0.75

	// DefaultOpexRatio estimates operational overhead as a flat share of
	// revenue.
	DefaultOpexRatio = 0.05
)

var monthNames = [12]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// weekdayNames is indexed by time.Weekday (Sunday = 0).
var weekdayNames = [7]string{
	"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu",
}

// Engine computes reports from sale transactions and the product catalog.
// Every method is a pure function of its arguments plus the engine's
// configured ratios; callers pass transactions already filtered to the
// window they care about.
type Engine struct {
	CostRatio float64
	OpexRatio float64
	Location  *time.Location
}

func NewEngine() *Engine {
	return &Engine{
		CostRatio: DefaultCostRatio,
		OpexRatio: DefaultOpexRatio,
		Location:  time.Local,
	}
}

func (e *Engine) loc() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.Local
}

// profitRatio is the share of revenue left after the estimated cost of
// goods and operational overhead.
func (e *Engine) profitRatio() float64 {
	return 1 - e.CostRatio - e.OpexRatio
}

// ValidateWindow rejects inverted report windows before any aggregation
// runs.
func ValidateWindow(start, end time.Time) error {
	if start.After(end) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}

type Summary struct {
	TotalSales         float64 `json:"total_sales"`
	TotalTransactions  int     `json:"total_transactions"`
	CashTotal          float64 `json:"cash_total"`
	TransferTotal      float64 `json:"transfer_total"`
	EstimatedProfit    float64 `json:"estimated_profit"`
	AverageTransaction float64 `json:"average_transaction"`
}

func (e *Engine) Summarize(txs []domain.Transaction) Summary {
	var s Summary
	for _, tx := range txs {
		s.TotalSales += tx.Total
		s.CashTotal += tx.Cash
		s.TransferTotal += tx.Transfer
	}
	s.TotalTransactions = len(txs)
	s.EstimatedProfit = s.TotalSales * e.profitRatio()
	s.AverageTransaction = safeDiv(s.TotalSales, float64(len(txs)))
	return s
}

type CashierStats struct {
	Name               string    `json:"name"`
	Transactions       int       `json:"transactions"`
	TotalSales         float64   `json:"total_sales"`
	CashTotal          float64   `json:"cash_total"`
	TransferTotal      float64   `json:"transfer_total"`
	Items              int       `json:"items"`
	AverageTransaction float64   `json:"average_transaction"`
	FirstTransaction   time.Time `json:"first_transaction"`
	LastTransaction    time.Time `json:"last_transaction"`
}

type CashierReport struct {
	Cashiers          []CashierStats `json:"cashiers"`
	TotalCashiers     int            `json:"total_cashiers"`
	TotalTransactions int            `json:"total_transactions"`
	TotalSales        float64        `json:"total_sales"`
	AveragePerCashier float64        `json:"average_per_cashier"`
	TopCashier        string         `json:"top_cashier"`
}

// ByCashier groups sales by the kasir display string exactly as recorded.
// An empty name groups under "Unknown".
func (e *Engine) ByCashier(txs []domain.Transaction) CashierReport {
	groups := map[string]*CashierStats{}
	for _, tx := range txs {
		name := tx.Kasir
		if name == "" {
			name = "Unknown"
		}
		g, ok := groups[name]
		if !ok {
			g = &CashierStats{Name: name, FirstTransaction: tx.Timestamp, LastTransaction: tx.Timestamp}
			groups[name] = g
		}
		g.Transactions++
		g.TotalSales += tx.Total
		g.CashTotal += tx.Cash
		g.TransferTotal += tx.Transfer
		g.Items += len(tx.Items)
		if tx.Timestamp.Before(g.FirstTransaction) {
			g.FirstTransaction = tx.Timestamp
		}
		if tx.Timestamp.After(g.LastTransaction) {
			g.LastTransaction = tx.Timestamp
		}
	}

	report := CashierReport{Cashiers: make([]CashierStats, 0, len(groups))}
	for _, g := range groups {
		g.AverageTransaction = safeDiv(g.TotalSales, float64(g.Transactions))
		report.Cashiers = append(report.Cashiers, *g)
		report.TotalSales += g.TotalSales
		report.TotalTransactions += g.Transactions
	}
	slices.SortFunc(report.Cashiers, func(a, b CashierStats) int {
		if c := cmpFloatDesc(a.TotalSales, b.TotalSales); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	report.TotalCashiers = len(report.Cashiers)
	report.AveragePerCashier = safeDiv(report.TotalSales, float64(report.TotalCashiers))
	if len(report.Cashiers) > 0 {
		report.TopCashier = report.Cashiers[0].Name
	}
	return report
}

type ProductStats struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Total    float64 `json:"total"`
}

type CategoryStats struct {
	Category     string         `json:"category"`
	Sales        float64        `json:"sales"`
	Quantity     int            `json:"quantity"`
	Transactions int            `json:"transactions"`
	AveragePrice float64        `json:"average_price"`
	Share        float64        `json:"share"`
	TopProducts  []ProductStats `json:"top_products"`
}

type CategoryReport struct {
	Categories  []CategoryStats `json:"categories"`
	TotalSales  float64         `json:"total_sales"`
	TotalItems  int             `json:"total_items"`
	TopCategory string          `json:"top_category"`
}

// ByCategory explodes transactions into line items and rolls them up per
// category. The transactions counter counts line items, not distinct
// receipts, matching how the shop has always read this report.
func (e *Engine) ByCategory(txs []domain.Transaction) CategoryReport {
	type catAcc struct {
		CategoryStats
		products map[string]*ProductStats
	}
	groups := map[string]*catAcc{}
	for _, tx := range txs {
		for _, item := range tx.Items {
			cat := item.Category
			if cat == "" {
				cat = domain.CategoryOther
			}
			g, ok := groups[cat]
			if !ok {
				g = &catAcc{CategoryStats: CategoryStats{Category: cat}, products: map[string]*ProductStats{}}
				groups[cat] = g
			}
			lineTotal := item.Price * float64(item.Quantity)
			g.Sales += lineTotal
			g.Quantity += item.Quantity
			g.Transactions++

			key := item.Code
			if key == "" {
				key = item.Name
			}
			p, ok := g.products[key]
			if !ok {
				p = &ProductStats{Code: item.Code, Name: item.Name}
				g.products[key] = p
			}
			p.Quantity += item.Quantity
			p.Total += lineTotal
		}
	}

	report := CategoryReport{Categories: make([]CategoryStats, 0, len(groups))}
	for _, g := range groups {
		g.AveragePrice = safeDiv(g.Sales, float64(g.Quantity))
		g.TopProducts = topProducts(g.products, 3)
		report.Categories = append(report.Categories, g.CategoryStats)
		report.TotalSales += g.Sales
		report.TotalItems += g.Quantity
	}
	slices.SortFunc(report.Categories, func(a, b CategoryStats) int {
		if c := cmpFloatDesc(a.Sales, b.Sales); c != 0 {
			return c
		}
		return strings.Compare(a.Category, b.Category)
	})
	for i := range report.Categories {
		report.Categories[i].Share = safeDiv(report.Categories[i].Sales, report.TotalSales) * 100
	}
	if len(report.Categories) > 0 {
		report.TopCategory = report.Categories[0].Category
	}
	return report
}

// TopProducts ranks line items across the given transactions by quantity
// sold. Items group by product code, falling back to the name for legacy
// rows recorded without one.
func (e *Engine) TopProducts(txs []domain.Transaction, n int) []ProductStats {
	acc := map[string]*ProductStats{}
	for _, tx := range txs {
		for _, item := range tx.Items {
			key := item.Code
			if key == "" {
				key = item.Name
			}
			p, ok := acc[key]
			if !ok {
				p = &ProductStats{Code: item.Code, Name: item.Name}
				acc[key] = p
			}
			p.Quantity += item.Quantity
			p.Total += item.Price * float64(item.Quantity)
		}
	}
	return topProducts(acc, n)
}

func topProducts(acc map[string]*ProductStats, n int) []ProductStats {
	out := make([]ProductStats, 0, len(acc))
	for _, p := range acc {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b ProductStats) int {
		if a.Quantity != b.Quantity {
			return b.Quantity - a.Quantity
		}
		return strings.Compare(a.Name, b.Name)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

type HourStats struct {
	Hour         int     `json:"hour"`
	Transactions int     `json:"transactions"`
	TotalSales   float64 `json:"total_sales"`
	AverageValue float64 `json:"average_value"`
}

type WeekdayStats struct {
	Day          string  `json:"day"`
	Transactions int     `json:"transactions"`
	TotalSales   float64 `json:"total_sales"`
}

type PeakHoursReport struct {
	Hours          []HourStats    `json:"hours"`
	Weekdays       []WeekdayStats `json:"weekdays"`
	TopHours       []HourStats    `json:"top_hours"`
	BusiestHour    int            `json:"busiest_hour"`
	BusiestDay     string         `json:"busiest_day"`
	AveragePerHour float64        `json:"average_per_hour"`
}

// PeakHours buckets sales into the 24 local hours of day and the 7
// weekdays.
func (e *Engine) PeakHours(txs []domain.Transaction) PeakHoursReport {
	report := PeakHoursReport{
		Hours:    make([]HourStats, 24),
		Weekdays: make([]WeekdayStats, 7),
	}
	for h := range report.Hours {
		report.Hours[h].Hour = h
	}
	for d := range report.Weekdays {
		report.Weekdays[d].Day = weekdayNames[d]
	}

	total := 0
	for _, tx := range txs {
		local := tx.Timestamp.In(e.loc())
		h := local.Hour()
		report.Hours[h].Transactions++
		report.Hours[h].TotalSales += tx.Total
		d := int(local.Weekday())
		report.Weekdays[d].Transactions++
		report.Weekdays[d].TotalSales += tx.Total
		total++
	}
	for h := range report.Hours {
		report.Hours[h].AverageValue = safeDiv(report.Hours[h].TotalSales, float64(report.Hours[h].Transactions))
	}

	top := slices.Clone(report.Hours)
	slices.SortFunc(top, func(a, b HourStats) int {
		if a.Transactions != b.Transactions {
			return b.Transactions - a.Transactions
		}
		return a.Hour - b.Hour
	})
	if len(top) > 5 {
		top = top[:5]
	}
	report.TopHours = top
	if total > 0 {
		report.BusiestHour = top[0].Hour
		best := 0
		for d := 1; d < 7; d++ {
			if report.Weekdays[d].Transactions > report.Weekdays[best].Transactions {
				best = d
			}
		}
		report.BusiestDay = weekdayNames[best]
	}
	report.AveragePerHour = round1(float64(total) / 24)
	return report
}

type MonthStats struct {
	Month        string  `json:"month"`
	Sales        float64 `json:"sales"`
	Transactions int     `json:"transactions"`
	Items        int     `json:"items"`
}

type DayStats struct {
	Date  string  `json:"date"`
	Sales float64 `json:"sales"`
}

type QuarterStats struct {
	Quarter int     `json:"quarter"`
	Sales   float64 `json:"sales"`
}

type TrendReport struct {
	Year           int            `json:"year"`
	Months         []MonthStats   `json:"months"`
	Days           []DayStats     `json:"days"`
	Weekdays       []WeekdayStats `json:"weekdays"`
	Quarters       []QuarterStats `json:"quarters"`
	TotalSales     float64        `json:"total_sales"`
	BestMonth      string         `json:"best_month"`
	BestDay        string         `json:"best_day"`
	BusiestWeekday string         `json:"busiest_weekday"`
	Growth         float64        `json:"growth"`
	AverageMonthly float64        `json:"average_monthly"`
}

// YearlyTrend rolls a calendar year of sales into monthly, daily, weekday
// and quarterly views. Growth compares the second half of the year against
// the first and is zero when the first half had no sales.
func (e *Engine) YearlyTrend(txs []domain.Transaction, year int) TrendReport {
	report := TrendReport{
		Year:     year,
		Months:   make([]MonthStats, 12),
		Weekdays: make([]WeekdayStats, 7),
		Quarters: make([]QuarterStats, 4),
	}
	for m := range report.Months {
		report.Months[m].Month = monthNames[m]
	}
	for d := range report.Weekdays {
		report.Weekdays[d].Day = weekdayNames[d]
	}
	for q := range report.Quarters {
		report.Quarters[q].Quarter = q + 1
	}

	daily := map[string]float64{}
	for _, tx := range txs {
		local := tx.Timestamp.In(e.loc())
		if local.Year() != year {
			continue
		}
		m := int(local.Month()) - 1
		report.Months[m].Sales += tx.Total
		report.Months[m].Transactions++
		report.Months[m].Items += len(tx.Items)
		report.TotalSales += tx.Total

		daily[local.Format("2006-01-02")] += tx.Total

		d := int(local.Weekday())
		report.Weekdays[d].Transactions++
		report.Weekdays[d].TotalSales += tx.Total
	}

	report.Days = make([]DayStats, 0, len(daily))
	for date, sales := range daily {
		report.Days = append(report.Days, DayStats{Date: date, Sales: sales})
	}
	slices.SortFunc(report.Days, func(a, b DayStats) int {
		return strings.Compare(a.Date, b.Date)
	})

	var firstHalf, secondHalf float64
	for m := 0; m < 12; m++ {
		if m < 6 {
			firstHalf += report.Months[m].Sales
		} else {
			secondHalf += report.Months[m].Sales
		}
		report.Quarters[m/3].Sales += report.Months[m].Sales
	}
	if firstHalf > 0 {
		report.Growth = (secondHalf - firstHalf) / firstHalf * 100
	}

	if report.TotalSales > 0 {
		best := 0
		for m := 1; m < 12; m++ {
			if report.Months[m].Sales > report.Months[best].Sales {
				best = m
			}
		}
		report.BestMonth = monthNames[best]

		bestDay := ""
		for _, d := range report.Days {
			if bestDay == "" || daily[d.Date] > daily[bestDay] {
				bestDay = d.Date
			}
		}
		report.BestDay = bestDay

		busiest := 0
		for d := 1; d < 7; d++ {
			if report.Weekdays[d].TotalSales > report.Weekdays[busiest].TotalSales {
				busiest = d
			}
		}
		report.BusiestWeekday = weekdayNames[busiest]
	}
	report.AverageMonthly = report.TotalSales / 12
	return report
}

type CategoryProfit struct {
	Category string  `json:"category"`
	Revenue  float64 `json:"revenue"`
	Cost     float64 `json:"cost"`
	Profit   float64 `json:"profit"`
}

type DayProfit struct {
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
	Profit  float64 `json:"profit"`
}

type ProfitReport struct {
	TotalSales      float64          `json:"total_sales"`
	EstimatedCost   float64          `json:"estimated_cost"`
	GrossProfit     float64          `json:"gross_profit"`
	OperationalCost float64          `json:"operational_cost"`
	NetProfit       float64          `json:"net_profit"`
	Margin          float64          `json:"margin"`
	ByCategory      []CategoryProfit `json:"by_category"`
	ByDay           []DayProfit      `json:"by_day"`
}

// ProfitLoss estimates profit with the configured cost ratios. The shop
// does not track purchase prices per sale line, so cost is a flat share of
// revenue.
func (e *Engine) ProfitLoss(txs []domain.Transaction) ProfitReport {
	var report ProfitReport
	byCat := map[string]*CategoryProfit{}
	byDay := map[string]*DayProfit{}

	for _, tx := range txs {
		report.TotalSales += tx.Total
		report.EstimatedCost += tx.Total * e.CostRatio

		local := tx.Timestamp.In(e.loc())
		date := local.Format("2006-01-02")
		d, ok := byDay[date]
		if !ok {
			d = &DayProfit{Date: date}
			byDay[date] = d
		}
		d.Revenue += tx.Total
		d.Cost += tx.Total * e.CostRatio

		for _, item := range tx.Items {
			cat := item.Category
			if cat == "" {
				cat = domain.CategoryOther
			}
			c, ok := byCat[cat]
			if !ok {
				c = &CategoryProfit{Category: cat}
				byCat[cat] = c
			}
			lineRevenue := item.Price * float64(item.Quantity)
			c.Revenue += lineRevenue
			c.Cost += lineRevenue * e.CostRatio
		}
	}

	report.GrossProfit = report.TotalSales - report.EstimatedCost
	report.OperationalCost = report.TotalSales * e.OpexRatio
	report.NetProfit = report.GrossProfit - report.OperationalCost
	report.Margin = safeDiv(report.GrossProfit, report.TotalSales) * 100

	report.ByCategory = make([]CategoryProfit, 0, len(byCat))
	for _, c := range byCat {
		c.Profit = c.Revenue - c.Cost
		report.ByCategory = append(report.ByCategory, *c)
	}
	slices.SortFunc(report.ByCategory, func(a, b CategoryProfit) int {
		if c := cmpFloatDesc(a.Profit, b.Profit); c != 0 {
			return c
		}
		return strings.Compare(a.Category, b.Category)
	})

	report.ByDay = make([]DayProfit, 0, len(byDay))
	for _, d := range byDay {
		d.Profit = d.Revenue - d.Cost
		report.ByDay = append(report.ByDay, *d)
	}
	slices.SortFunc(report.ByDay, func(a, b DayProfit) int {
		return strings.Compare(b.Date, a.Date)
	})
	return report
}

type SupplierStats struct {
	Supplier      string         `json:"supplier"`
	TotalProducts int            `json:"total_products"`
	TotalStock    int            `json:"total_stock"`
	TotalValue    float64        `json:"total_value"`
	Categories    map[string]int `json:"categories"`
}

type SupplierReport struct {
	Suppliers      []SupplierStats `json:"suppliers"`
	TotalSuppliers int             `json:"total_suppliers"`
	TotalValue     float64         `json:"total_value"`
	TopSupplier    string          `json:"top_supplier"`
}

// BySupplier values each product's stock at its purchase price, estimated
// at 80% of the sale price when none is recorded.
func (e *Engine) BySupplier(products []domain.Product) SupplierReport {
	groups := map[string]*SupplierStats{}
	for _, p := range products {
		name := p.Supplier
		if name == "" {
			name = "Unknown"
		}
		g, ok := groups[name]
		if !ok {
			g = &SupplierStats{Supplier: name, Categories: map[string]int{}}
			groups[name] = g
		}
		g.TotalProducts++
		g.TotalStock += p.Stock
		g.TotalValue += stockValue(p)
		cat := p.Category
		if cat == "" {
			cat = domain.CategoryOther
		}
		g.Categories[cat]++
	}

	report := SupplierReport{Suppliers: make([]SupplierStats, 0, len(groups))}
	for _, g := range groups {
		report.Suppliers = append(report.Suppliers, *g)
		report.TotalValue += g.TotalValue
	}
	slices.SortFunc(report.Suppliers, func(a, b SupplierStats) int {
		if c := cmpFloatDesc(a.TotalValue, b.TotalValue); c != 0 {
			return c
		}
		return strings.Compare(a.Supplier, b.Supplier)
	})
	report.TotalSuppliers = len(report.Suppliers)
	if len(report.Suppliers) > 0 {
		report.TopSupplier = report.Suppliers[0].Supplier
	}
	return report
}

// Stock status classes, checked in order.
const (
	StockOut      = "out"
	StockCritical = "critical"
	StockLow      = "low"
	StockSafe     = "safe"
)

// StockStatus classifies a stock level against its minimum threshold. A
// zero or negative threshold falls back to DefaultMinStock.
func StockStatus(stock, minStock int) string {
	if minStock <= 0 {
		minStock = DefaultMinStock
	}
	switch {
	case stock == 0:
		return StockOut
	case stock <= minStock:
		return StockCritical
	case stock <= minStock*2:
		return StockLow
	default:
		return StockSafe
	}
}

type InventoryItem struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Stock    int    `json:"stock"`
	MinStock int    `json:"min_stock"`
	Status   string `json:"status"`
}

type InventoryReport struct {
	TotalProducts int             `json:"total_products"`
	TotalStock    int             `json:"total_stock"`
	TotalValue    float64         `json:"total_value"`
	OutCount      int             `json:"out_count"`
	CriticalCount int             `json:"critical_count"`
	LowCount      int             `json:"low_count"`
	SafeCount     int             `json:"safe_count"`
	Attention     []InventoryItem `json:"attention"`
}

// InventorySummary classifies every product and lists those that need
// restocking (out or critical first, then low).
func (e *Engine) InventorySummary(products []domain.Product) InventoryReport {
	var report InventoryReport
	for _, p := range products {
		report.TotalProducts++
		report.TotalStock += p.Stock
		report.TotalValue += stockValue(p)
		status := StockStatus(p.Stock, p.MinStock)
		switch status {
		case StockOut:
			report.OutCount++
		case StockCritical:
			report.CriticalCount++
		case StockLow:
			report.LowCount++
		default:
			report.SafeCount++
		}
		if status != StockSafe {
			report.Attention = append(report.Attention, InventoryItem{
				Code:     p.Code,
				Name:     p.Name,
				Stock:    p.Stock,
				MinStock: p.MinStock,
				Status:   status,
			})
		}
	}
	slices.SortFunc(report.Attention, func(a, b InventoryItem) int {
		if r := statusRank(a.Status) - statusRank(b.Status); r != 0 {
			return r
		}
		if a.Stock != b.Stock {
			return a.Stock - b.Stock
		}
		return strings.Compare(a.Name, b.Name)
	})
	return report
}

func statusRank(status string) int {
	switch status {
	case StockOut:
		return 0
	case StockCritical:
		return 1
	case StockLow:
		return 2
	default:
		return 3
	}
}

func stockValue(p domain.Product) float64 {
	unitCost := p.PurchasePrice
	if unitCost == 0 {
		unitCost = p.Price * 0.8
	}
	return unitCost * float64(p.Stock)
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func cmpFloatDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

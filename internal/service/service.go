package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"kedeaceh/pos/internal/cache"
	"kedeaceh/pos/internal/domain"
	"kedeaceh/pos/internal/report"
	"kedeaceh/pos/internal/store"
	"kedeaceh/pos/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo          store.Repository
	engine        *report.Engine
	reports       cache.ReportCache
	reportTTL     time.Duration
	loc           *time.Location
	monthlyTarget float64

	// salesVersion is folded into every report cache key and bumped on
	// each write, so cached reports never outlive the data they summarize.
	salesVersion atomic.Int64
}

func New(repo store.Repository, engine *report.Engine, reports cache.ReportCache, reportTTL time.Duration, monthlyTarget float64) *Service {
	if engine == nil {
		engine = report.NewEngine()
	}
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL < time.Second {
		reportTTL = 30 * time.Second
	}
	loc := engine.Location
	if loc == nil {
		loc = time.Local
	}

	return &Service{
		repo:          repo,
		engine:        engine,
		reports:       reports,
		reportTTL:     reportTTL,
		loc:           loc,
		monthlyTarget: monthlyTarget,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, code string) (domain.Product, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	product, err := s.repo.GetProductByCode(ctx, code)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return domain.Product{}, fmt.Errorf("owner role required")
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.Code == "" || req.Name == "" {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	if req.Category == "" {
		req.Category = domain.CategoryOther
	}
	if !domain.ValidCategory(req.Category) {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	if req.Price <= 0 || req.PurchasePrice < 0 || req.Stock < 0 || req.MinStock < 0 {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	if req.MinStock == 0 {
		req.MinStock = report.DefaultMinStock
	}

	now := time.Now().UTC()
	product := domain.Product{
		Code:          req.Code,
		Name:          req.Name,
		Category:      req.Category,
		Price:         req.Price,
		PurchasePrice: req.PurchasePrice,
		Stock:         req.Stock,
		MinStock:      req.MinStock,
		Unit:          strings.TrimSpace(req.Unit),
		Supplier:      strings.TrimSpace(req.Supplier),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.bumpVersion()
	log.Printf("[audit] product_create code=%s by=%s price=%.0f stock=%d", created.Code, actor.Email, created.Price, created.Stock)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, code string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return domain.Product{}, fmt.Errorf("owner role required")
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Product{}, store.ErrInvalidTransaction
	}

	existing, err := s.repo.GetProductByCode(ctx, code)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if !domain.ValidCategory(category) {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		updated.Category = category
	}
	if req.Price != nil {
		if *req.Price <= 0 {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		updated.Price = *req.Price
	}
	if req.PurchasePrice != nil {
		if *req.PurchasePrice < 0 {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		updated.PurchasePrice = *req.PurchasePrice
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		updated.MinStock = *req.MinStock
	}
	if req.Unit != nil {
		updated.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.Supplier != nil {
		updated.Supplier = strings.TrimSpace(*req.Supplier)
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.bumpVersion()
	log.Printf("[audit] product_update code=%s by=%s", saved.Code, actor.Email)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, code string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return fmt.Errorf("owner role required")
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return store.ErrInvalidTransaction
	}
	if err := s.repo.DeleteProduct(ctx, code); err != nil {
		return err
	}

	s.bumpVersion()
	log.Printf("[audit] product_delete code=%s by=%s", code, actor.Email)
	return nil
}

// Checkout snapshots the cart against the current catalog and persists the
// sale. Stock is decremented by the store in the same atomic step, so a
// cart with any short line fails as a whole.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Transaction, error) {
	actor, _ := ActorFromContext(ctx)

	items := normalizeCart(req.Items)
	if len(items) == 0 {
		return domain.Transaction{}, fmt.Errorf("%w: empty cart", store.ErrInvalidTransaction)
	}
	if req.Cash < 0 || req.Transfer < 0 {
		return domain.Transaction{}, fmt.Errorf("%w: negative payment", store.ErrInvalidTransaction)
	}

	lines := make([]domain.LineItem, 0, len(items))
	var total float64
	for _, item := range items {
		product, err := s.repo.GetProductByCode(ctx, item.Code)
		if err != nil {
			return domain.Transaction{}, err
		}
		lines = append(lines, domain.LineItem{
			Code:     product.Code,
			Name:     product.Name,
			Category: product.Category,
			Price:    product.Price,
			Quantity: item.Quantity,
			Unit:     product.Unit,
		})
		total += product.Price * float64(item.Quantity)
	}

	change := req.Cash + req.Transfer - total
	if change < 0 {
		return domain.Transaction{}, fmt.Errorf("%w: payment short by %.0f", store.ErrInvalidTransaction, -change)
	}

	kasir := strings.TrimSpace(req.Kasir)
	if kasir == "" {
		kasir = actor.DisplayName
	}
	if kasir == "" {
		kasir = actor.Email
	}

	tx := domain.Transaction{
		ID:        xid.New("tx"),
		Items:     lines,
		Total:     total,
		Cash:      req.Cash,
		Transfer:  req.Transfer,
		Change:    change,
		Kasir:     kasir,
		Type:      domain.TxTypeSale,
		Timestamp: time.Now().UTC(),
	}

	created, err := s.repo.CreateSale(ctx, tx)
	if err != nil {
		return domain.Transaction{}, err
	}

	s.bumpVersion()
	log.Printf("[audit] checkout id=%s kasir=%s total=%.0f items=%d", created.ID, created.Kasir, created.Total, len(created.Items))
	return *created, nil
}

func (s *Service) ListTransactions(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	if err := report.ValidateWindow(from, to); err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, from, to)
}

func (s *Service) RecentTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 5
	}
	return s.repo.ListRecentSales(ctx, limit)
}

// AdjustStock applies a manual add or remove and records the audit trail
// entry. Removing more than the current stock is rejected rather than
// clamped.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return domain.Product{}, fmt.Errorf("owner role required")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" || req.Amount < 1 {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	if req.Type != domain.StockAdjustAdd && req.Type != domain.StockAdjustRemove {
		return domain.Product{}, fmt.Errorf("%w: unknown adjustment type %q", store.ErrInvalidTransaction, req.Type)
	}

	product, err := s.repo.GetProductByCode(ctx, code)
	if err != nil {
		return domain.Product{}, err
	}

	newStock := product.Stock + req.Amount
	adjustment := req.Amount
	if req.Type == domain.StockAdjustRemove {
		newStock = product.Stock - req.Amount
		adjustment = -req.Amount
		if newStock < 0 {
			return domain.Product{}, store.ErrInsufficientStock
		}
	}

	entry := domain.StockHistory{
		ID:          xid.New("adj"),
		ProductCode: product.Code,
		ProductName: product.Name,
		OldStock:    product.Stock,
		NewStock:    newStock,
		Adjustment:  adjustment,
		Type:        req.Type,
		Note:        strings.TrimSpace(req.Note),
		User:        actor.Email,
		Timestamp:   time.Now().UTC(),
	}

	updated, err := s.repo.AdjustStock(ctx, code, newStock, entry)
	if err != nil {
		return domain.Product{}, err
	}

	s.bumpVersion()
	log.Printf("[audit] stock_adjust code=%s by=%s %d -> %d", code, actor.Email, entry.OldStock, entry.NewStock)
	return *updated, nil
}

func (s *Service) ListStockHistory(ctx context.Context, code string, limit int) ([]domain.StockHistory, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListStockHistory(ctx, code, limit)
}

// CloseDay rolls up one business day of sales into a closing record. A day
// can only be closed once.
func (s *Service) CloseDay(ctx context.Context, date string) (domain.DailyClosing, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return domain.DailyClosing{}, fmt.Errorf("owner role required")
	}

	date = strings.TrimSpace(date)
	if date == "" {
		date = time.Now().In(s.loc).Format("2006-01-02")
	}
	from, to, err := s.dayWindow(date)
	if err != nil {
		return domain.DailyClosing{}, fmt.Errorf("%w: bad date %q", store.ErrInvalidTransaction, date)
	}

	txs, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return domain.DailyClosing{}, err
	}
	summary := s.engine.Summarize(txs)

	closing := domain.DailyClosing{
		ID:                xid.New("close"),
		Date:              date,
		TotalSales:        summary.TotalSales,
		TotalTransactions: summary.TotalTransactions,
		CashTotal:         summary.CashTotal,
		TransferTotal:     summary.TransferTotal,
		Profit:            summary.EstimatedProfit,
		ClosedBy:          actor.Email,
		ClosedAt:          time.Now().UTC(),
	}

	created, err := s.repo.CreateDailyClosing(ctx, closing)
	if err != nil {
		return domain.DailyClosing{}, err
	}

	log.Printf("[audit] daily_closing date=%s by=%s total=%.0f txs=%d", date, actor.Email, created.TotalSales, created.TotalTransactions)
	return *created, nil
}

func (s *Service) ListDailyClosings(ctx context.Context, limit int) ([]domain.DailyClosing, error) {
	if limit < 1 {
		limit = 31
	}
	return s.repo.ListDailyClosings(ctx, limit)
}

func (s *Service) SummaryReport(ctx context.Context, from, to time.Time) (report.Summary, error) {
	return cached(ctx, s, "summary", from, to, func(txs []domain.Transaction) report.Summary {
		return s.engine.Summarize(txs)
	})
}

func (s *Service) CashierReport(ctx context.Context, from, to time.Time) (report.CashierReport, error) {
	return cached(ctx, s, "cashiers", from, to, func(txs []domain.Transaction) report.CashierReport {
		return s.engine.ByCashier(txs)
	})
}

func (s *Service) CategoryReport(ctx context.Context, from, to time.Time) (report.CategoryReport, error) {
	return cached(ctx, s, "categories", from, to, func(txs []domain.Transaction) report.CategoryReport {
		return s.engine.ByCategory(txs)
	})
}

func (s *Service) PeakHoursReport(ctx context.Context, from, to time.Time) (report.PeakHoursReport, error) {
	return cached(ctx, s, "peak-hours", from, to, func(txs []domain.Transaction) report.PeakHoursReport {
		return s.engine.PeakHours(txs)
	})
}

func (s *Service) ProfitReport(ctx context.Context, from, to time.Time) (report.ProfitReport, error) {
	return cached(ctx, s, "profit", from, to, func(txs []domain.Transaction) report.ProfitReport {
		return s.engine.ProfitLoss(txs)
	})
}

// TopProductsReport ranks over the entire sales history, the way the shop
// has always picked its best sellers.
func (s *Service) TopProductsReport(ctx context.Context, n int) ([]report.ProductStats, error) {
	if n < 1 {
		n = 5
	}
	txs, err := s.repo.ListAllSales(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.TopProducts(txs, n), nil
}

func (s *Service) TrendReport(ctx context.Context, year int) (report.TrendReport, error) {
	if year < 1 {
		year = time.Now().In(s.loc).Year()
	}
	from := time.Date(year, 1, 1, 0, 0, 0, 0, s.loc)
	to := from.AddDate(1, 0, 0).Add(-time.Nanosecond)
	return cached(ctx, s, "trend", from, to, func(txs []domain.Transaction) report.TrendReport {
		return s.engine.YearlyTrend(txs, year)
	})
}

func (s *Service) SupplierReport(ctx context.Context) (report.SupplierReport, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return report.SupplierReport{}, err
	}
	return s.engine.BySupplier(products), nil
}

func (s *Service) InventoryReport(ctx context.Context) (report.InventoryReport, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return report.InventoryReport{}, err
	}
	return s.engine.InventorySummary(products), nil
}

type DashboardWeek struct {
	TotalSales float64 `json:"total_sales"`
	Growth     float64 `json:"growth"`
}

type DashboardMonth struct {
	TotalSales float64 `json:"total_sales"`
	Target     float64 `json:"target"`
	Progress   float64 `json:"progress"`
}

type Dashboard struct {
	Date        string                 `json:"date"`
	Today       report.Summary         `json:"today"`
	Week        DashboardWeek          `json:"week"`
	Month       DashboardMonth         `json:"month"`
	TopProducts []report.ProductStats  `json:"top_products"`
	LowStock    []report.InventoryItem `json:"low_stock"`
	Recent      []domain.Transaction   `json:"recent"`
}

// Dashboard assembles the owner's landing view for one day.
func (s *Service) Dashboard(ctx context.Context, date string) (Dashboard, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		date = time.Now().In(s.loc).Format("2006-01-02")
	}
	dayFrom, dayTo, err := s.dayWindow(date)
	if err != nil {
		return Dashboard{}, fmt.Errorf("%w: bad date %q", store.ErrInvalidTransaction, date)
	}

	today, err := s.SummaryReport(ctx, dayFrom, dayTo)
	if err != nil {
		return Dashboard{}, err
	}

	weekFrom := dayFrom.AddDate(0, 0, -6)
	weekTxs, err := s.repo.ListSales(ctx, weekFrom, dayTo)
	if err != nil {
		return Dashboard{}, err
	}
	week := s.engine.Summarize(weekTxs)

	prevTxs, err := s.repo.ListSales(ctx, weekFrom.AddDate(0, 0, -7), weekFrom.Add(-time.Nanosecond))
	if err != nil {
		return Dashboard{}, err
	}
	prev := s.engine.Summarize(prevTxs)
	var growth float64
	if prev.TotalSales > 0 {
		growth = (week.TotalSales - prev.TotalSales) / prev.TotalSales * 100
	}

	monthFrom := time.Date(dayFrom.Year(), dayFrom.Month(), 1, 0, 0, 0, 0, s.loc)
	monthTxs, err := s.repo.ListSales(ctx, monthFrom, dayTo)
	if err != nil {
		return Dashboard{}, err
	}
	month := s.engine.Summarize(monthTxs)
	var progress float64
	if s.monthlyTarget > 0 {
		progress = month.TotalSales / s.monthlyTarget * 100
	}

	top, err := s.TopProductsReport(ctx, 5)
	if err != nil {
		return Dashboard{}, err
	}

	inventory, err := s.InventoryReport(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	lowStock := inventory.Attention
	if len(lowStock) > 5 {
		lowStock = lowStock[:5]
	}

	recent, err := s.repo.ListRecentSales(ctx, 5)
	if err != nil {
		return Dashboard{}, err
	}

	return Dashboard{
		Date:        date,
		Today:       today,
		Week:        DashboardWeek{TotalSales: week.TotalSales, Growth: growth},
		Month:       DashboardMonth{TotalSales: month.TotalSales, Target: s.monthlyTarget, Progress: progress},
		TopProducts: top,
		LowStock:    lowStock,
		Recent:      recent,
	}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserInfo, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return nil, fmt.Errorf("owner role required")
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserInfo, 0, len(users))
	for _, u := range users {
		out = append(out, domain.UserInfo{
			Email:       u.Email,
			Role:        u.Role,
			DisplayName: u.DisplayName,
			Active:      u.Active,
			CreatedAt:   u.CreatedAt,
		})
	}
	return out, nil
}

func (s *Service) bumpVersion() {
	s.salesVersion.Add(1)
}

func (s *Service) dayWindow(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return day, day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

// cached runs the window query and aggregation unless an identical report
// was computed since the last write.
func cached[T any](ctx context.Context, s *Service, name string, from, to time.Time, compute func([]domain.Transaction) T) (T, error) {
	var zero T
	if err := report.ValidateWindow(from, to); err != nil {
		return zero, err
	}

	key := fmt.Sprintf("report:%s:%d:%d:v%d", name, from.UnixNano(), to.UnixNano(), s.salesVersion.Load())
	if payload, ok, err := s.reports.Get(ctx, key); err == nil && ok {
		var result T
		if err := json.Unmarshal(payload, &result); err == nil {
			return result, nil
		}
	} else if err != nil {
		log.Printf("[service] WARN: report cache get failed key=%s: %v", key, err)
	}

	txs, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return zero, err
	}
	result := compute(txs)

	if payload, err := json.Marshal(result); err == nil {
		if err := s.reports.Set(ctx, key, payload, s.reportTTL); err != nil {
			log.Printf("[service] WARN: report cache set failed key=%s: %v", key, err)
		}
	}
	return result, nil
}

func normalizeCart(items []domain.CartItem) []domain.CartItem {
	merged := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		code := strings.ToUpper(strings.TrimSpace(item.Code))
		if code == "" || item.Quantity < 1 {
			continue
		}
		if _, seen := merged[code]; !seen {
			order = append(order, code)
		}
		merged[code] += item.Quantity
	}
	out := make([]domain.CartItem, 0, len(order))
	for _, code := range order {
		out = append(out, domain.CartItem{Code: code, Quantity: merged[code]})
	}
	return out
}

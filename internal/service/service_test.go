package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"kedeaceh/pos/internal/domain"
	"kedeaceh/pos/internal/report"
	"kedeaceh/pos/internal/store"
	"kedeaceh/pos/internal/store/memory"
)

func newTestService() *Service {
	engine := report.NewEngine()
	engine.Location = time.UTC
	return New(memory.NewSeeded(), engine, nil, time.Minute, 0)
}

func ownerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Email: "owner@kedeaceh.id", Role: domain.RoleOwner, DisplayName: "Pemilik Toko",
	})
}

func kasirCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Email: "kasir@kedeaceh.id", Role: domain.RoleKasir, DisplayName: "Kasir Pagi",
	})
}

// recordingCache counts cache traffic so tests can observe memoization.
type recordingCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
	sets int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{data: map[string][]byte{}}
}

func (c *recordingCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.data[key]
	if ok {
		c.hits++
	}
	return payload, ok, nil
}

func (c *recordingCache) Set(_ context.Context, key string, payload []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.data[key] = payload
	return nil
}

func TestCheckout(t *testing.T) {
	svc := newTestService()

	tx, err := svc.Checkout(kasirCtx(), domain.CheckoutRequest{
		Items: []domain.CartItem{
			{Code: "MAK001", Quantity: 2},
			{Code: "MIN002", Quantity: 1},
		},
		Cash: 15000,
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if tx.Total != 12000 {
		t.Fatalf("total: expected 12000, got %.2f", tx.Total)
	}
	if tx.Change != 3000 {
		t.Fatalf("change: expected 3000, got %.2f", tx.Change)
	}
	if tx.Kasir != "Kasir Pagi" {
		t.Fatalf("expected kasir to default to actor display name, got %q", tx.Kasir)
	}
	if tx.Type != domain.TxTypeSale {
		t.Fatalf("expected type sale, got %q", tx.Type)
	}
	if len(tx.Items) != 2 || tx.Items[0].Name != "Mie Goreng Instan" {
		t.Fatalf("expected catalog snapshot in line items, got %+v", tx.Items)
	}

	product, err := svc.GetProduct(context.Background(), "MAK001")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 118 {
		t.Fatalf("stock: expected 118 after selling 2, got %d", product.Stock)
	}
}

func TestCheckoutMergesDuplicateLines(t *testing.T) {
	svc := newTestService()

	tx, err := svc.Checkout(kasirCtx(), domain.CheckoutRequest{
		Items: []domain.CartItem{
			{Code: "mak001", Quantity: 1},
			{Code: "MAK001", Quantity: 2},
		},
		Cash: 20000,
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if len(tx.Items) != 1 {
		t.Fatalf("expected duplicate cart lines merged, got %d lines", len(tx.Items))
	}
	if tx.Items[0].Code != "MAK001" || tx.Items[0].Quantity != 3 {
		t.Fatalf("unexpected merged line: %+v", tx.Items[0])
	}
}

func TestCheckoutShortPayment(t *testing.T) {
	svc := newTestService()

	_, err := svc.Checkout(kasirCtx(), domain.CheckoutRequest{
		Items: []domain.CartItem{{Code: "MAK001", Quantity: 2}},
		Cash:  5000,
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for short payment, got %v", err)
	}

	product, _ := svc.GetProduct(context.Background(), "MAK001")
	if product.Stock != 120 {
		t.Fatalf("stock must be untouched after rejected payment, got %d", product.Stock)
	}
}

func TestCheckoutInsufficientStockFailsWholeSale(t *testing.T) {
	svc := newTestService()

	// SEM002 is seeded with zero stock, so the whole cart must be rejected
	// and MAK001 untouched.
	_, err := svc.Checkout(kasirCtx(), domain.CheckoutRequest{
		Items: []domain.CartItem{
			{Code: "MAK001", Quantity: 1},
			{Code: "SEM002", Quantity: 1},
		},
		Cash: 100000,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	product, _ := svc.GetProduct(context.Background(), "MAK001")
	if product.Stock != 120 {
		t.Fatalf("stock must be untouched after failed sale, got %d", product.Stock)
	}
}

func TestCheckoutUnknownProduct(t *testing.T) {
	svc := newTestService()
	_, err := svc.Checkout(kasirCtx(), domain.CheckoutRequest{
		Items: []domain.CartItem{{Code: "NOPE999", Quantity: 1}},
		Cash:  10000,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc := newTestService()
	_, err := svc.Checkout(kasirCtx(), domain.CheckoutRequest{Cash: 10000})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for empty cart, got %v", err)
	}
}

func TestCreateProductDefaults(t *testing.T) {
	svc := newTestService()

	product, err := svc.CreateProduct(ownerCtx(), domain.ProductCreateRequest{
		Code:  " lain002 ",
		Name:  "Korek Api",
		Price: 2000,
		Stock: 24,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.Code != "LAIN002" {
		t.Fatalf("expected code uppercased and trimmed, got %q", product.Code)
	}
	if product.Category != domain.CategoryOther {
		t.Fatalf("expected category default lainnya, got %q", product.Category)
	}
	if product.MinStock != report.DefaultMinStock {
		t.Fatalf("expected min stock default %d, got %d", report.DefaultMinStock, product.MinStock)
	}
}

func TestCreateProductRejectsUnknownCategory(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateProduct(ownerCtx(), domain.ProductCreateRequest{
		Code: "X1", Name: "Misc", Category: "elektronik", Price: 1000,
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction, got %v", err)
	}
}

func TestProductWritesRequireOwner(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(kasirCtx(), domain.ProductCreateRequest{
		Code: "X1", Name: "Misc", Price: 1000,
	})
	if err == nil || !strings.Contains(err.Error(), "owner role required") {
		t.Fatalf("expected owner role error for create, got %v", err)
	}

	name := "Renamed"
	_, err = svc.UpdateProduct(kasirCtx(), "MAK001", domain.ProductUpdateRequest{Name: &name})
	if err == nil || !strings.Contains(err.Error(), "owner role required") {
		t.Fatalf("expected owner role error for update, got %v", err)
	}

	if err := svc.DeleteProduct(kasirCtx(), "MAK001"); err == nil || !strings.Contains(err.Error(), "owner role required") {
		t.Fatalf("expected owner role error for delete, got %v", err)
	}
}

func TestUpdateProductPartial(t *testing.T) {
	svc := newTestService()

	price := 4000.0
	updated, err := svc.UpdateProduct(ownerCtx(), "MAK001", domain.ProductUpdateRequest{Price: &price})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.Price != 4000 {
		t.Fatalf("expected price updated, got %.2f", updated.Price)
	}
	if updated.Name != "Mie Goreng Instan" || updated.Stock != 120 {
		t.Fatalf("untouched fields must survive: %+v", updated)
	}
}

func TestAdjustStock(t *testing.T) {
	svc := newTestService()

	product, err := svc.AdjustStock(ownerCtx(), domain.StockAdjustRequest{
		Code: "GAS001", Amount: 10, Type: domain.StockAdjustAdd, Note: "restock pangkalan",
	})
	if err != nil {
		t.Fatalf("adjust add: %v", err)
	}
	if product.Stock != 18 {
		t.Fatalf("expected stock 18 after adding 10, got %d", product.Stock)
	}

	product, err = svc.AdjustStock(ownerCtx(), domain.StockAdjustRequest{
		Code: "GAS001", Amount: 3, Type: domain.StockAdjustRemove,
	})
	if err != nil {
		t.Fatalf("adjust remove: %v", err)
	}
	if product.Stock != 15 {
		t.Fatalf("expected stock 15 after removing 3, got %d", product.Stock)
	}

	history, err := svc.ListStockHistory(context.Background(), "GAS001", 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].User != "owner@kedeaceh.id" {
		t.Fatalf("expected actor recorded on entry, got %q", history[0].User)
	}
}

func TestAdjustStockCannotGoNegative(t *testing.T) {
	svc := newTestService()
	_, err := svc.AdjustStock(ownerCtx(), domain.StockAdjustRequest{
		Code: "GAS001", Amount: 9, Type: domain.StockAdjustRemove,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock removing below zero, got %v", err)
	}
}

func TestAdjustStockRequiresOwner(t *testing.T) {
	svc := newTestService()
	_, err := svc.AdjustStock(kasirCtx(), domain.StockAdjustRequest{
		Code: "GAS001", Amount: 1, Type: domain.StockAdjustAdd,
	})
	if err == nil || !strings.Contains(err.Error(), "owner role required") {
		t.Fatalf("expected owner role error, got %v", err)
	}
}

func TestCloseDayOnlyOnce(t *testing.T) {
	svc := newTestService()

	_, err := svc.Checkout(kasirCtx(), domain.CheckoutRequest{
		Items: []domain.CartItem{{Code: "MIN002", Quantity: 2}},
		Cash:  10000,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	closing, err := svc.CloseDay(ownerCtx(), today)
	if err != nil {
		t.Fatalf("close day: %v", err)
	}
	if closing.TotalSales != 10000 || closing.TotalTransactions != 1 {
		t.Fatalf("unexpected closing totals: %+v", closing)
	}
	if closing.Profit != 10000*0.2 {
		t.Fatalf("expected estimated profit 2000, got %.2f", closing.Profit)
	}
	if closing.ClosedBy != "owner@kedeaceh.id" {
		t.Fatalf("expected closer recorded, got %q", closing.ClosedBy)
	}

	_, err = svc.CloseDay(ownerCtx(), today)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on second closing, got %v", err)
	}
}

func TestCloseDayRejectsBadDate(t *testing.T) {
	svc := newTestService()
	_, err := svc.CloseDay(ownerCtx(), "31-12-2025")
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for bad date, got %v", err)
	}
}

func TestListTransactionsRejectsInvertedWindow(t *testing.T) {
	svc := newTestService()
	now := time.Now().UTC()
	_, err := svc.ListTransactions(context.Background(), now, now.AddDate(0, 0, -1))
	if !errors.Is(err, report.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestReportMemoization(t *testing.T) {
	engine := report.NewEngine()
	engine.Location = time.UTC
	reports := newRecordingCache()
	svc := New(memory.NewSeeded(), engine, reports, time.Minute, 0)

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)

	if _, err := svc.SummaryReport(context.Background(), from, to); err != nil {
		t.Fatalf("first summary: %v", err)
	}
	if _, err := svc.SummaryReport(context.Background(), from, to); err != nil {
		t.Fatalf("second summary: %v", err)
	}
	if reports.hits != 1 || reports.sets != 1 {
		t.Fatalf("expected one miss then one hit, got hits=%d sets=%d", reports.hits, reports.sets)
	}

	// A write bumps the version, so the same window recomputes.
	if _, err := svc.Checkout(kasirCtx(), domain.CheckoutRequest{
		Items: []domain.CartItem{{Code: "MIN001", Quantity: 1}},
		Cash:  5000,
	}); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	summary, err := svc.SummaryReport(context.Background(), from, to)
	if err != nil {
		t.Fatalf("third summary: %v", err)
	}
	if reports.sets != 2 {
		t.Fatalf("expected recompute after a sale, got sets=%d", reports.sets)
	}
	if summary.TotalTransactions != 1 {
		t.Fatalf("expected fresh summary to include the new sale, got %+v", summary)
	}
}

func TestDashboard(t *testing.T) {
	svc := newTestService()

	if _, err := svc.Checkout(kasirCtx(), domain.CheckoutRequest{
		Items: []domain.CartItem{{Code: "MIN002", Quantity: 3}},
		Cash:  15000,
	}); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	dash, err := svc.Dashboard(context.Background(), "")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.Today.TotalSales != 15000 || dash.Today.TotalTransactions != 1 {
		t.Fatalf("unexpected today summary: %+v", dash.Today)
	}
	if dash.Week.TotalSales != 15000 {
		t.Fatalf("unexpected week total: %+v", dash.Week)
	}
	if len(dash.TopProducts) == 0 || dash.TopProducts[0].Code != "MIN002" {
		t.Fatalf("expected MIN002 as top product, got %+v", dash.TopProducts)
	}
	// SEM002 is seeded out of stock, so the low stock list is never empty.
	if len(dash.LowStock) == 0 || dash.LowStock[0].Code != "SEM002" {
		t.Fatalf("expected SEM002 first in low stock, got %+v", dash.LowStock)
	}
	if len(dash.Recent) != 1 {
		t.Fatalf("expected one recent transaction, got %d", len(dash.Recent))
	}
}

func TestListUsersRequiresOwner(t *testing.T) {
	svc := newTestService()

	if _, err := svc.ListUsers(kasirCtx()); err == nil {
		t.Fatalf("expected owner role error for kasir")
	}
	users, err := svc.ListUsers(ownerCtx())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 seeded users, got %d", len(users))
	}
	for _, u := range users {
		if u.Email == "" || u.Role == "" {
			t.Fatalf("user info missing fields: %+v", u)
		}
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"kedeaceh/pos/internal/domain"
	"kedeaceh/pos/internal/store"
)

func TestCreateSaleDecrementsStockAtomically(t *testing.T) {
	databaseURL := os.Getenv("KEDEACEH_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KEDEACEH_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	code := fmt.Sprintf("IT%d", stamp)
	txID := fmt.Sprintf("tx-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE code = $1`, code)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (code, name, category, price, purchase_price, stock, min_stock, unit, supplier, created_at, updated_at)
		VALUES ($1, 'Produk Integrasi', 'lainnya', 6000, 4800, 10, 5, 'pcs', '', now(), now())
	`, code); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	now := time.Now().UTC()
	tx := domain.Transaction{
		ID: txID,
		Items: []domain.LineItem{
			{Code: code, Name: "Produk Integrasi", Category: "lainnya", Price: 6000, Quantity: 2, Unit: "pcs"},
		},
		Total: 12000, Cash: 15000, Change: 3000,
		Kasir: "Kasir Integrasi", Type: domain.TxTypeSale, Timestamp: now,
	}
	if _, err := s.CreateSale(ctx, tx); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	var stock int
	if err := s.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE code = $1`, code).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 8 {
		t.Fatalf("expected stock 8 after selling 2, got %d", stock)
	}

	// Selling more than remains must fail and leave the row untouched.
	over := tx
	over.ID = txID + "-over"
	over.Items = []domain.LineItem{
		{Code: code, Name: "Produk Integrasi", Category: "lainnya", Price: 6000, Quantity: 20, Unit: "pcs"},
	}
	if _, err := s.CreateSale(ctx, over); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE code = $1`, code).Scan(&stock); err != nil {
		t.Fatalf("query stock after failed sale: %v", err)
	}
	if stock != 8 {
		t.Fatalf("expected stock unchanged at 8 after failed sale, got %d", stock)
	}
}

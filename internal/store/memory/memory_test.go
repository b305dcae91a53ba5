package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"kedeaceh/pos/internal/domain"
	"kedeaceh/pos/internal/store"
)

func TestCreateSaleAllOrNothing(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// SEM002 is seeded out of stock. The MAK001 line must not be decremented
	// when a later line fails.
	_, err := s.CreateSale(ctx, domain.Transaction{
		Items: []domain.LineItem{
			{Code: "MAK001", Quantity: 2},
			{Code: "SEM002", Quantity: 1},
		},
		Timestamp: time.Now().UTC(),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	product, err := s.GetProductByCode(ctx, "MAK001")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 120 {
		t.Fatalf("expected stock untouched at 120, got %d", product.Stock)
	}
}

func TestCreateSaleDecrementsEveryLine(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateSale(ctx, domain.Transaction{
		Items: []domain.LineItem{
			{Code: "MAK001", Quantity: 2},
			{Code: "MIN001", Quantity: 3},
		},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated transaction id")
	}

	mak, _ := s.GetProductByCode(ctx, "MAK001")
	min, _ := s.GetProductByCode(ctx, "MIN001")
	if mak.Stock != 118 || min.Stock != 197 {
		t.Fatalf("unexpected stocks after sale: MAK001=%d MIN001=%d", mak.Stock, min.Stock)
	}
}

func TestListSalesWindow(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{0, 24 * time.Hour, 48 * time.Hour} {
		_, err := s.CreateSale(ctx, domain.Transaction{
			Items:     []domain.LineItem{{Code: "MIN001", Quantity: 1}},
			Total:     float64(1000 * (i + 1)),
			Timestamp: base.Add(offset),
		})
		if err != nil {
			t.Fatalf("create sale %d: %v", i, err)
		}
	}

	from := base.Add(12 * time.Hour)
	to := base.Add(60 * time.Hour)
	txs, err := s.ListSales(ctx, from, to)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 sales in window, got %d", len(txs))
	}
	if !txs[0].Timestamp.After(txs[1].Timestamp) {
		t.Fatalf("expected newest first ordering")
	}
}

func TestDailyClosingConflict(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	closing := domain.DailyClosing{Date: "2025-03-10", ClosedAt: time.Now().UTC()}
	if _, err := s.CreateDailyClosing(ctx, closing); err != nil {
		t.Fatalf("first closing: %v", err)
	}
	if _, err := s.CreateDailyClosing(ctx, closing); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := s.GetDailyClosing(ctx, "2025-03-10")
	if err != nil {
		t.Fatalf("get closing: %v", err)
	}
	if got.ID == "" {
		t.Fatalf("expected generated closing id")
	}
}

func TestUpdateProductPreservesStock(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	existing, _ := s.GetProductByCode(ctx, "MAK001")
	changed := *existing
	changed.Price = 4000
	changed.Stock = 9999 // must be ignored, stock only moves through sales and adjustments

	updated, err := s.UpdateProduct(ctx, changed)
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.Stock != 120 {
		t.Fatalf("expected stock preserved at 120, got %d", updated.Stock)
	}
	if updated.Price != 4000 {
		t.Fatalf("expected price updated, got %.2f", updated.Price)
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"tiendapc/backend/internal/domain"
	"tiendapc/backend/internal/store"
)

func TestTransferStockIsAllOrNothing(t *testing.T) {
	databaseURL := os.Getenv("TIENDAPC_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TIENDAPC_TEST_DATABASE_URL to run postgres integration test")
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
	skuA := fmt.Sprintf("SKU-TR-A-%d", stamp)
	skuB := fmt.Sprintf("SKU-TR-B-%d", stamp)
	srcID := fmt.Sprintf("alm-tr-src-%d", stamp)
	dstID := fmt.Sprintf("alm-tr-dst-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_movements WHERE sku IN ($1, $2)`, skuA, skuB)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock WHERE sku IN ($1, $2)`, skuA, skuB)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE sku IN ($1, $2)`, skuA, skuB)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM warehouses WHERE id IN ($1, $2)`, srcID, dstID)
	})

	for _, id := range []string{srcID, dstID} {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO warehouses (id, name, address, active)
			VALUES ($1, $1, 'Av. Prueba 100', true)
		`, id); err != nil {
			t.Fatalf("insert warehouse: %v", err)
		}
	}
	for _, sku := range []string{skuA, skuB} {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO products (sku, name, brand_id, category_id, description, price_cents, cost_cents, active, created_at, updated_at)
			VALUES ($1, 'Producto de prueba', null, null, '', 10000, 6000, true, now(), now())
		`, sku); err != nil {
			t.Fatalf("insert product: %v", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO stock (warehouse_id, sku, qty) VALUES ($1, $2, 10)
	`, srcID, skuA); err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO stock (warehouse_id, sku, qty) VALUES ($1, $2, 1)
	`, srcID, skuB); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	// One line covers, the other falls short; nothing may move.
	err = s.TransferStock(ctx, domain.TransferRequest{
		SourceWarehouseID:      srcID,
		DestinationWarehouseID: dstID,
		Lines: []domain.TransferLine{
			{SKU: skuA, Qty: 5},
			{SKU: skuB, Qty: 3},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT qty FROM stock WHERE warehouse_id = $1 AND sku = $2
	`, srcID, skuA).Scan(&qty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if qty != 10 {
		t.Fatalf("expected source stock untouched at 10, got %d", qty)
	}

	// Repeated lines for one SKU draw from the same balance.
	err = s.TransferStock(ctx, domain.TransferRequest{
		SourceWarehouseID:      srcID,
		DestinationWarehouseID: dstID,
		Lines: []domain.TransferLine{
			{SKU: skuA, Qty: 6},
			{SKU: skuA, Qty: 6},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for repeated lines, got %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT qty FROM stock WHERE warehouse_id = $1 AND sku = $2
	`, srcID, skuA).Scan(&qty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if qty != 10 {
		t.Fatalf("expected source stock untouched at 10, got %d", qty)
	}

	err = s.TransferStock(ctx, domain.TransferRequest{
		SourceWarehouseID:      srcID,
		DestinationWarehouseID: dstID,
		Lines: []domain.TransferLine{
			{SKU: skuA, Qty: 5},
		},
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT qty FROM stock WHERE warehouse_id = $1 AND sku = $2
	`, dstID, skuA).Scan(&qty); err != nil {
		t.Fatalf("query destination stock: %v", err)
	}
	if qty != 5 {
		t.Fatalf("expected destination stock 5, got %d", qty)
	}

	var movements int
	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM inventory_movements WHERE sku = $1
	`, skuA).Scan(&movements); err != nil {
		t.Fatalf("query movements: %v", err)
	}
	if movements != 2 {
		t.Fatalf("expected paired transfer movements, got %d", movements)
	}
}

package pdf

import (
	"bytes"
	"testing"
	"time"

	"tiendapc/backend/internal/domain"
)

func TestOrderReceiptProducesPDF(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	order := domain.Order{
		ID:            "ord-1",
		Number:        "P260314-AB12CD",
		UserID:        "cliente",
		SubtotalCents: 20000,
		TaxCents:      3600,
		TotalCents:    23600,
		Status:        domain.OrderStatusPendiente,
		CreatedAt:     now,
		Items: []domain.OrderLine{
			{SKU: "SKU-TEC-01", Name: "Teclado mecánico K120", Qty: 2, UnitPriceCents: 10000, TotalCents: 20000},
		},
	}

	payload, err := OrderReceipt(order)
	if err != nil {
		t.Fatalf("render receipt failed: %v", err)
	}
	if !bytes.HasPrefix(payload, []byte("%PDF")) {
		t.Fatalf("expected PDF magic bytes, got %q", payload[:8])
	}
	if len(payload) < 1000 {
		t.Fatalf("suspiciously small PDF (%d bytes)", len(payload))
	}
}

func TestMoneyFormatsSoles(t *testing.T) {
	if got := money(23600); got != "S/ 236.00" {
		t.Fatalf("expected S/ 236.00, got %q", got)
	}
	if got := money(5); got != "S/ 0.05" {
		t.Fatalf("expected S/ 0.05, got %q", got)
	}
}

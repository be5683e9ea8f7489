package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tiendapc/backend/internal/cache"
	"tiendapc/backend/internal/domain"
	"tiendapc/backend/internal/store"
	"tiendapc/backend/internal/store/memory"
	"tiendapc/backend/internal/sunat"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopCatalogCache{}, sunat.New("", ""), 18, "alm-principal", time.Minute)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func customerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cliente", Role: domain.RoleCustomer})
}

func TestBrowseCatalogHidesInactiveAndAppliesPromo(t *testing.T) {
	svc := newTestService()

	page, err := svc.BrowseCatalog(context.Background(), domain.CatalogFilter{})
	if err != nil {
		t.Fatalf("browse catalog failed: %v", err)
	}
	if page.Total != 5 {
		t.Fatalf("expected 5 active products, got %d", page.Total)
	}

	var promoPrice int64
	for _, item := range page.Items {
		if item.SKU == "SKU-OLD-01" {
			t.Fatalf("inactive product leaked into the public catalog")
		}
		if item.SKU == "SKU-MOU-01" {
			promoPrice = item.EffectivePriceCents
		}
	}
	if promoPrice != 3900 {
		t.Fatalf("expected promo price 3900 for SKU-MOU-01, got %d", promoPrice)
	}
	if len(page.Brands) == 0 || len(page.Categories) == 0 {
		t.Fatalf("expected facet lists to be attached")
	}
}

func TestBrowseCatalogClampsPagination(t *testing.T) {
	svc := newTestService()

	small, err := svc.BrowseCatalog(context.Background(), domain.CatalogFilter{Page: -3, PageSize: 2})
	if err != nil {
		t.Fatalf("browse catalog failed: %v", err)
	}
	if small.Page != 1 || small.PageSize != 12 {
		t.Fatalf("expected page 1 size 12, got page %d size %d", small.Page, small.PageSize)
	}

	large, err := svc.BrowseCatalog(context.Background(), domain.CatalogFilter{PageSize: 500})
	if err != nil {
		t.Fatalf("browse catalog failed: %v", err)
	}
	if large.PageSize != 48 {
		t.Fatalf("expected page size clamped to 48, got %d", large.PageSize)
	}
}

func TestCartTotalsUseSnapshotPriceAndTax(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	view, err := svc.AddToCart(ctx, "cart-test-1", domain.CartAddRequest{SKU: "SKU-TEC-01", Qty: 2})
	if err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	if view.SubtotalCents != 20000 {
		t.Fatalf("expected subtotal 20000, got %d", view.SubtotalCents)
	}
	if view.TaxCents != 3600 {
		t.Fatalf("expected IGV 3600, got %d", view.TaxCents)
	}
	if view.TotalCents != 23600 {
		t.Fatalf("expected total 23600, got %d", view.TotalCents)
	}

	// The promo price wins over the list price at add time.
	view, err = svc.AddToCart(ctx, "cart-test-1", domain.CartAddRequest{SKU: "SKU-MOU-01", Qty: 1})
	if err != nil {
		t.Fatalf("add promo product failed: %v", err)
	}
	for _, line := range view.Lines {
		if line.SKU == "SKU-MOU-01" && line.UnitPriceCents != 3900 {
			t.Fatalf("expected snapshot price 3900, got %d", line.UnitPriceCents)
		}
	}
}

func TestCheckoutCreatesPendingOrderAndClearsCart(t *testing.T) {
	svc := newTestService()
	ctx := customerCtx()

	if _, err := svc.AddToCart(ctx, "cart-checkout", domain.CartAddRequest{SKU: "SKU-TEC-01", Qty: 2}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}

	resp, err := svc.ConfirmCheckout(ctx, "cart-checkout")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	order := resp.Order
	if order.Status != domain.OrderStatusPendiente {
		t.Fatalf("expected status Pendiente, got %s", order.Status)
	}
	if order.SubtotalCents != 20000 || order.TaxCents != 3600 || order.TotalCents != 23600 {
		t.Fatalf("unexpected totals: %d/%d/%d", order.SubtotalCents, order.TaxCents, order.TotalCents)
	}
	if order.UserID != "cliente" {
		t.Fatalf("expected order owner cliente, got %s", order.UserID)
	}
	if !strings.HasPrefix(order.Number, "P") {
		t.Fatalf("unexpected order number %s", order.Number)
	}

	view, err := svc.GetCart(ctx, "cart-checkout")
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(view.Lines) != 0 {
		t.Fatalf("expected cart to be emptied after checkout, got %d lines", len(view.Lines))
	}

	rows, err := svc.ListStock(adminCtx(), "alm-principal")
	if err != nil {
		t.Fatalf("list stock failed: %v", err)
	}
	for _, row := range rows {
		if row.SKU == "SKU-TEC-01" && row.Qty != 38 {
			t.Fatalf("expected stock 38 after checkout, got %d", row.Qty)
		}
	}
}

func TestCheckoutAllowsNegativeStock(t *testing.T) {
	svc := newTestService()
	ctx := customerCtx()

	if _, err := svc.AddToCart(ctx, "cart-neg", domain.CartAddRequest{SKU: "SKU-GPU-01", Qty: 10}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	if _, err := svc.ConfirmCheckout(ctx, "cart-neg"); err != nil {
		t.Fatalf("checkout above stock level should not fail: %v", err)
	}

	rows, err := svc.ListStock(adminCtx(), "alm-principal")
	if err != nil {
		t.Fatalf("list stock failed: %v", err)
	}
	for _, row := range rows {
		if row.SKU == "SKU-GPU-01" && row.Qty != -4 {
			t.Fatalf("expected stock -4 after oversell, got %d", row.Qty)
		}
	}
}

func TestCheckoutRequiresLogin(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.AddToCart(ctx, "cart-anon", domain.CartAddRequest{SKU: "SKU-TEC-01", Qty: 1}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	if _, err := svc.ConfirmCheckout(ctx, "cart-anon"); err == nil {
		t.Fatalf("expected anonymous checkout to fail")
	}
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	svc := newTestService()

	if _, err := svc.ConfirmCheckout(customerCtx(), "cart-empty"); err == nil {
		t.Fatalf("expected empty cart checkout to fail")
	}
}

func TestTransferStockAllOrNothing(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	err := svc.TransferStock(ctx, domain.TransferRequest{
		SourceWarehouseID:      "alm-principal",
		DestinationWarehouseID: "alm-secundario",
		Lines: []domain.TransferLine{
			{SKU: "SKU-TEC-01", Qty: 10},
			{SKU: "SKU-GPU-01", Qty: 50},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	rows, err := svc.ListStock(ctx, "alm-principal")
	if err != nil {
		t.Fatalf("list stock failed: %v", err)
	}
	for _, row := range rows {
		if row.SKU == "SKU-TEC-01" && row.Qty != 40 {
			t.Fatalf("expected untouched stock 40 after failed transfer, got %d", row.Qty)
		}
	}

	err = svc.TransferStock(ctx, domain.TransferRequest{
		SourceWarehouseID:      "alm-principal",
		DestinationWarehouseID: "alm-secundario",
		Lines: []domain.TransferLine{
			{SKU: "SKU-TEC-01", Qty: 10},
		},
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	rows, err = svc.ListStock(ctx, "alm-secundario")
	if err != nil {
		t.Fatalf("list stock failed: %v", err)
	}
	for _, row := range rows {
		if row.SKU == "SKU-TEC-01" && row.Qty != 25 {
			t.Fatalf("expected destination stock 25, got %d", row.Qty)
		}
	}
}

func TestTransferStockSumsRepeatedSKULines(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	// Two lines that fit individually but overdraw the 6 units on hand.
	err := svc.TransferStock(ctx, domain.TransferRequest{
		SourceWarehouseID:      "alm-principal",
		DestinationWarehouseID: "alm-secundario",
		Lines: []domain.TransferLine{
			{SKU: "SKU-GPU-01", Qty: 4},
			{SKU: "SKU-GPU-01", Qty: 4},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	rows, err := svc.ListStock(ctx, "alm-principal")
	if err != nil {
		t.Fatalf("list stock failed: %v", err)
	}
	for _, row := range rows {
		if row.SKU == "SKU-GPU-01" && row.Qty != 6 {
			t.Fatalf("expected untouched stock 6 after rejected transfer, got %d", row.Qty)
		}
	}

	err = svc.TransferStock(ctx, domain.TransferRequest{
		SourceWarehouseID:      "alm-principal",
		DestinationWarehouseID: "alm-secundario",
		Lines: []domain.TransferLine{
			{SKU: "SKU-GPU-01", Qty: 3},
			{SKU: "SKU-GPU-01", Qty: 3},
		},
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	rows, err = svc.ListStock(ctx, "alm-secundario")
	if err != nil {
		t.Fatalf("list stock failed: %v", err)
	}
	for _, row := range rows {
		if row.SKU == "SKU-GPU-01" && row.Qty != 6 {
			t.Fatalf("expected destination stock 6, got %d", row.Qty)
		}
	}
}

func TestAdjustStockRecordsLedgerEntry(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	row, err := svc.AdjustStock(ctx, domain.StockAdjustmentRequest{
		SKU:         "SKU-RAM-01",
		WarehouseID: "alm-principal",
		Delta:       -5,
		Reason:      "merma por inventario",
	})
	if err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}
	if row.Qty != 20 {
		t.Fatalf("expected qty 20 after adjustment, got %d", row.Qty)
	}

	movements, err := svc.ListMovements(ctx, domain.MovementFilter{SKU: "SKU-RAM-01"})
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) == 0 {
		t.Fatalf("expected a movement to be recorded")
	}
	last := movements[0]
	if last.Type != domain.MovementAjusteSalida {
		t.Fatalf("expected AJUSTE_SALIDA, got %s", last.Type)
	}
	if last.Reference != domain.MovementRefAjusteManual {
		t.Fatalf("expected reference AJUSTE_MANUAL, got %s", last.Reference)
	}
}

func TestAdjustStockCreatesMissingPairRow(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	// SKU-MON-01 has no stock row in the secondary warehouse yet.
	row, err := svc.AdjustStock(ctx, domain.StockAdjustmentRequest{
		SKU:         "SKU-MON-01",
		WarehouseID: "alm-secundario",
		Delta:       7,
		Reason:      "reubicación de saldo inicial",
	})
	if err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}
	if row.Qty != 7 {
		t.Fatalf("expected created row with qty 7, got %d", row.Qty)
	}

	movements, err := svc.ListMovements(ctx, domain.MovementFilter{SKU: "SKU-MON-01", WarehouseID: "alm-secundario"})
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected exactly one movement, got %d", len(movements))
	}
	if movements[0].Type != domain.MovementAjusteEntrada {
		t.Fatalf("expected AJUSTE_ENTRADA, got %s", movements[0].Type)
	}
	if movements[0].Qty != 7 {
		t.Fatalf("expected movement qty 7, got %d", movements[0].Qty)
	}
	if movements[0].Reference != domain.MovementRefAjusteManual {
		t.Fatalf("expected reference AJUSTE_MANUAL, got %s", movements[0].Reference)
	}
}

func TestAdjustStockRequiresReason(t *testing.T) {
	svc := newTestService()

	_, err := svc.AdjustStock(adminCtx(), domain.StockAdjustmentRequest{
		SKU:         "SKU-RAM-01",
		WarehouseID: "alm-principal",
		Delta:       3,
	})
	if err == nil {
		t.Fatalf("expected adjustment without reason to fail")
	}
}

func TestPurchaseOrderReceiveLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		SupplierID:  "prov-intcomex",
		WarehouseID: "alm-secundario",
		Lines: []domain.PurchaseOrderLine{
			{SKU: "SKU-GPU-01", Qty: 4, UnitCostCents: 110000},
			{SKU: "SKU-RAM-01", Qty: 10, UnitCostCents: 11000},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	if po.Status != domain.POStatusEmitida {
		t.Fatalf("expected status Emitida, got %s", po.Status)
	}
	if po.SubtotalCents != 550000 {
		t.Fatalf("expected subtotal 550000, got %d", po.SubtotalCents)
	}

	partial, err := svc.ReceivePurchaseOrder(ctx, po.ID, domain.ReceiveRequest{
		Reference: "GUIA-001",
		Lines:     []domain.ReceiptLine{{SKU: "SKU-GPU-01", QtyReceived: 2}},
	})
	if err != nil {
		t.Fatalf("partial receive failed: %v", err)
	}
	if partial.Status != domain.POStatusRecibidaParcial {
		t.Fatalf("expected Recibida Parcial, got %s", partial.Status)
	}

	full, err := svc.ReceivePurchaseOrder(ctx, po.ID, domain.ReceiveRequest{
		Reference: "GUIA-002",
		Lines: []domain.ReceiptLine{
			{SKU: "SKU-GPU-01", QtyReceived: 2},
			{SKU: "SKU-RAM-01", QtyReceived: 10},
		},
	})
	if err != nil {
		t.Fatalf("final receive failed: %v", err)
	}
	if full.Status != domain.POStatusCompletada {
		t.Fatalf("expected Completada, got %s", full.Status)
	}

	rows, err := svc.ListStock(ctx, "alm-secundario")
	if err != nil {
		t.Fatalf("list stock failed: %v", err)
	}
	for _, row := range rows {
		if row.SKU == "SKU-RAM-01" && row.Qty != 20 {
			t.Fatalf("expected RAM stock 20 after receipts, got %d", row.Qty)
		}
	}

	_, err = svc.ReceivePurchaseOrder(ctx, po.ID, domain.ReceiveRequest{
		Lines: []domain.ReceiptLine{{SKU: "SKU-GPU-01", QtyReceived: 1}},
	})
	if err == nil {
		t.Fatalf("expected receive against a completed order to fail")
	}

	receipts, err := svc.ListReceipts(ctx, po.ID)
	if err != nil {
		t.Fatalf("list receipts failed: %v", err)
	}
	if len(receipts) != 2 {
		t.Fatalf("expected 2 receipts, got %d", len(receipts))
	}
}

func TestSupplierStaleVersionReportsNotFound(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.UpdateSupplier(ctx, "prov-intcomex", domain.SupplierUpdateRequest{
		RUC:     "20100038146",
		Name:    "Intcomex Perú S.A.C.",
		Active:  true,
		Version: 99,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected stale update to report not found, got %v", err)
	}

	updated, err := svc.UpdateSupplier(ctx, "prov-intcomex", domain.SupplierUpdateRequest{
		RUC:     "20100038146",
		Name:    "Intcomex Perú S.A.C.",
		Phone:   "01-6109801",
		Active:  true,
		Version: 1,
	})
	if err != nil {
		t.Fatalf("current-version update failed: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", updated.Version)
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	svc := newTestService()
	ctx := customerCtx()

	if _, err := svc.AddToCart(ctx, "cart-flow", domain.CartAddRequest{SKU: "SKU-MON-01", Qty: 1}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	resp, err := svc.ConfirmCheckout(ctx, "cart-flow")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	orderID := resp.Order.ID
	admin := adminCtx()

	if _, err := svc.SetOrderStatus(admin, orderID, domain.OrderStatusEnviado); err == nil {
		t.Fatalf("expected Pendiente -> Enviado to be rejected")
	}

	paid, err := svc.MarkOrderPaid(admin, orderID, "OP-998877")
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if paid.Status != domain.OrderStatusPagado || paid.PaidAt == nil {
		t.Fatalf("expected paid order with timestamp, got %s", paid.Status)
	}

	shipped, err := svc.ShipOrder(admin, orderID, domain.OrderShipRequest{Courier: "Olva", Tracking: "OLV-123"})
	if err != nil {
		t.Fatalf("ship failed: %v", err)
	}
	if shipped.Status != domain.OrderStatusEnviado || shipped.Tracking != "OLV-123" {
		t.Fatalf("unexpected shipped order: %s %s", shipped.Status, shipped.Tracking)
	}

	done, err := svc.SetOrderStatus(admin, orderID, domain.OrderStatusCompletado)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if done.Status != domain.OrderStatusCompletado {
		t.Fatalf("expected Completado, got %s", done.Status)
	}

	if _, err := svc.SetOrderStatus(admin, orderID, domain.OrderStatusCancelado); err == nil {
		t.Fatalf("expected cancel of a completed order to be rejected")
	}
}

func TestCustomersOnlySeeTheirOwnOrders(t *testing.T) {
	svc := newTestService()
	ctx := customerCtx()

	if _, err := svc.AddToCart(ctx, "cart-own", domain.CartAddRequest{SKU: "SKU-TEC-01", Qty: 1}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	resp, err := svc.ConfirmCheckout(ctx, "cart-own")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	other := WithActor(context.Background(), domain.Actor{Username: "otro", Role: domain.RoleCustomer})
	if _, err := svc.GetOrder(other, resp.Order.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected foreign order lookup to report not found, got %v", err)
	}

	if _, err := svc.GetOrder(adminCtx(), resp.Order.ID); err != nil {
		t.Fatalf("admin lookup failed: %v", err)
	}
}

func TestReorderSkipsInactiveProducts(t *testing.T) {
	svc := newTestService()
	ctx := customerCtx()

	if _, err := svc.AddToCart(ctx, "cart-re", domain.CartAddRequest{SKU: "SKU-TEC-01", Qty: 1}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	if _, err := svc.AddToCart(ctx, "cart-re", domain.CartAddRequest{SKU: "SKU-MOU-01", Qty: 2}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	resp, err := svc.ConfirmCheckout(ctx, "cart-re")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if err := svc.DeleteProduct(adminCtx(), "SKU-TEC-01"); err != nil {
		t.Fatalf("deactivate product failed: %v", err)
	}

	view, err := svc.Reorder(ctx, "cart-re", resp.Order.ID)
	if err != nil {
		t.Fatalf("reorder failed: %v", err)
	}
	if len(view.Lines) != 1 {
		t.Fatalf("expected only the still-active product, got %d lines", len(view.Lines))
	}
	if view.Lines[0].SKU != "SKU-MOU-01" || view.Lines[0].Qty != 2 {
		t.Fatalf("unexpected reorder line %+v", view.Lines[0])
	}
}

func TestDeleteProductDeactivatesInsteadOfRemoving(t *testing.T) {
	svc := newTestService()
	admin := adminCtx()

	if err := svc.DeleteProduct(admin, "SKU-TEC-01"); err != nil {
		t.Fatalf("delete product failed: %v", err)
	}
	if _, err := svc.GetCatalogProduct(context.Background(), "SKU-TEC-01"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deactivated product to vanish from the catalog, got %v", err)
	}

	products, _, err := svc.AdminListProducts(admin, domain.CatalogFilter{Query: "SKU-TEC-01"})
	if err != nil {
		t.Fatalf("admin list failed: %v", err)
	}
	found := false
	for _, p := range products {
		if p.SKU == "SKU-TEC-01" {
			found = true
			if p.Active {
				t.Fatalf("expected product to be inactive")
			}
		}
	}
	if !found {
		t.Fatalf("expected the admin list to keep the deactivated product")
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(customerCtx(), domain.ProductCreateRequest{
		SKU:        "SKU-NUEVO-01",
		Name:       "Auriculares G435",
		BrandID:    "brand-logitech",
		CategoryID: "cat-perifericos",
		PriceCents: 15900,
		CostCents:  9900,
	})
	if err == nil {
		t.Fatalf("expected non-admin create product to fail")
	}
}

func TestSalesReportOnlyIncludesPaidAndCompleted(t *testing.T) {
	svc := newTestService()
	ctx := customerCtx()
	admin := adminCtx()

	if _, err := svc.AddToCart(ctx, "cart-rep-1", domain.CartAddRequest{SKU: "SKU-TEC-01", Qty: 1}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	paidResp, err := svc.ConfirmCheckout(ctx, "cart-rep-1")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if _, err := svc.MarkOrderPaid(admin, paidResp.Order.ID, "OP-1"); err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}

	if _, err := svc.AddToCart(ctx, "cart-rep-2", domain.CartAddRequest{SKU: "SKU-RAM-01", Qty: 1}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	if _, err := svc.ConfirmCheckout(ctx, "cart-rep-2"); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	report, err := svc.SalesReport(admin, nil, nil)
	if err != nil {
		t.Fatalf("sales report failed: %v", err)
	}
	if len(report.Rows) != 1 {
		t.Fatalf("expected 1 sales row, got %d", len(report.Rows))
	}
	if report.TotalCents != paidResp.Order.TotalCents {
		t.Fatalf("expected total %d, got %d", paidResp.Order.TotalCents, report.TotalCents)
	}

	payload, err := svc.SalesReportCSV(admin, nil, nil)
	if err != nil {
		t.Fatalf("csv export failed: %v", err)
	}
	text := string(payload)
	if !strings.HasPrefix(text, "Numero,Fecha,Total,Estado") {
		t.Fatalf("unexpected csv header: %q", text)
	}
	if !strings.Contains(text, paidResp.Order.Number) {
		t.Fatalf("expected csv to include order %s", paidResp.Order.Number)
	}
	if !strings.Contains(text, "118.00") {
		t.Fatalf("expected formatted total 118.00 in csv, got %q", text)
	}
}

func TestSunatLookupFallsBackToDemoData(t *testing.T) {
	svc := newTestService()

	info, err := svc.LookupSupplierRUC(adminCtx(), "20100038146")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if info.RUC != "20100038146" || info.Name == "" {
		t.Fatalf("expected demo company data, got %+v", info)
	}

	if _, err := svc.LookupSupplierRUC(adminCtx(), "12345"); err == nil {
		t.Fatalf("expected short RUC to be rejected")
	}
}

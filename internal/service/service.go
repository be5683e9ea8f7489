package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"tiendapc/backend/internal/cache"
	"tiendapc/backend/internal/domain"
	"tiendapc/backend/internal/store"
	"tiendapc/backend/internal/sunat"
	"tiendapc/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	catalogMinPageSize = 12
	catalogMaxPageSize = 48
)

type Service struct {
	repo             store.Repository
	catalogCache     cache.CatalogCache
	sunat            *sunat.Client
	taxRatePercent   float64
	salesWarehouseID string
	catalogCacheTTL  time.Duration
}

func New(repo store.Repository, catalogCache cache.CatalogCache, sunatClient *sunat.Client, taxRatePercent float64, salesWarehouseID string, catalogCacheTTL time.Duration) *Service {
	if catalogCache == nil {
		catalogCache = cache.NoopCatalogCache{}
	}
	if salesWarehouseID == "" {
		salesWarehouseID = "alm-principal"
	}

	return &Service{
		repo:             repo,
		catalogCache:     catalogCache,
		sunat:            sunatClient,
		taxRatePercent:   taxRatePercent,
		salesWarehouseID: salesWarehouseID,
		catalogCacheTTL:  catalogCacheTTL,
	}
}

func (s *Service) BrowseCatalog(ctx context.Context, filter domain.CatalogFilter) (domain.CatalogPage, error) {
	filter.IncludeInactive = false
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < catalogMinPageSize {
		filter.PageSize = catalogMinPageSize
	}
	if filter.PageSize > catalogMaxPageSize {
		filter.PageSize = catalogMaxPageSize
	}

	key := catalogCacheKey(filter)
	if cached, ok, err := s.catalogCache.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: catalog cache read failed: %v", err)
	} else if ok {
		return *cached, nil
	}

	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return domain.CatalogPage{}, err
	}

	now := time.Now().UTC()
	items := make([]domain.CatalogProduct, 0, len(products))
	for _, p := range products {
		items = append(items, domain.CatalogProduct{
			Product:             p,
			EffectivePriceCents: s.effectivePrice(ctx, p, now),
		})
	}

	brands, err := s.repo.ListBrands(ctx)
	if err != nil {
		return domain.CatalogPage{}, err
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return domain.CatalogPage{}, err
	}

	page := domain.CatalogPage{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		Brands:     brands,
		Categories: categories,
	}

	if err := s.catalogCache.Set(ctx, key, &page, s.catalogCacheTTL); err != nil {
		log.Printf("[service] WARN: catalog cache write failed: %v", err)
	}
	return page, nil
}

func (s *Service) GetCatalogProduct(ctx context.Context, sku string) (domain.CatalogProduct, error) {
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.CatalogProduct{}, err
	}
	if !product.Active {
		return domain.CatalogProduct{}, store.ErrNotFound
	}
	return domain.CatalogProduct{
		Product:             *product,
		EffectivePriceCents: s.effectivePrice(ctx, *product, time.Now().UTC()),
	}, nil
}

// effectivePrice is the list price unless a promo window covers the
// given instant.
func (s *Service) effectivePrice(ctx context.Context, product domain.Product, at time.Time) int64 {
	promo, ok, err := s.repo.GetActivePromoPrice(ctx, product.SKU, at)
	if err != nil {
		log.Printf("[service] WARN: promo lookup failed sku=%s: %v", product.SKU, err)
		return product.PriceCents
	}
	if ok && promo < product.PriceCents {
		return promo
	}
	return product.PriceCents
}

func catalogCacheKey(filter domain.CatalogFilter) string {
	return fmt.Sprintf("catalog:%s|%s|%s|%d|%d|%s|%d|%d",
		filter.CategoryID, filter.BrandID, strings.ToLower(strings.TrimSpace(filter.Query)),
		filter.MinPriceCents, filter.MaxPriceCents, filter.Sort, filter.Page, filter.PageSize)
}

func (s *Service) AdminListProducts(ctx context.Context, filter domain.CatalogFilter) ([]domain.Product, int, error) {
	filter.IncludeInactive = true
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 50
	}
	if filter.PageSize > 200 {
		filter.PageSize = 200
	}
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	if req.SKU == "" || req.Name == "" || req.PriceCents < 1 || req.CostCents < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:         req.SKU,
		Name:        req.Name,
		BrandID:     req.BrandID,
		CategoryID:  req.CategoryID,
		Description: strings.TrimSpace(req.Description),
		PriceCents:  req.PriceCents,
		CostCents:   req.CostCents,
		Active:      true,
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, sku string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}

	product := *existing
	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.BrandID != nil {
		product.BrandID = *req.BrandID
	}
	if req.CategoryID != nil {
		product.CategoryID = *req.CategoryID
	}
	if req.Description != nil {
		product.Description = strings.TrimSpace(*req.Description)
	}
	if req.PriceCents != nil {
		product.PriceCents = *req.PriceCents
	}
	if req.CostCents != nil {
		product.CostCents = *req.CostCents
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	if product.Name == "" || product.PriceCents < 1 || product.CostCents < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *updated, nil
}

// DeleteProduct deactivates instead of removing; movement and order
// history keeps pointing at the SKU.
func (s *Service) DeleteProduct(ctx context.Context, sku string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return err
	}
	if !product.Active {
		return nil
	}
	product.Active = false
	_, err = s.repo.UpdateProduct(ctx, *product)
	return err
}

func (s *Service) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	return s.repo.ListBrands(ctx)
}

func (s *Service) CreateBrand(ctx context.Context, name string) (domain.Brand, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Brand{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Brand{}, store.ErrInvalidInput
	}
	created, err := s.repo.CreateBrand(ctx, domain.Brand{Name: name})
	if err != nil {
		return domain.Brand{}, err
	}
	return *created, nil
}

func (s *Service) DeleteBrand(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteBrand(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, store.ErrInvalidInput
	}
	created, err := s.repo.CreateCategory(ctx, domain.Category{Name: name})
	if err != nil {
		return domain.Category{}, err
	}
	return *created, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteCategory(ctx, id)
}

func (s *Service) CreatePriceRule(ctx context.Context, req domain.PriceRuleCreateRequest) (domain.PriceRule, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PriceRule{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return domain.PriceRule{}, fmt.Errorf("starts_at: %w", store.ErrInvalidInput)
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil {
		return domain.PriceRule{}, fmt.Errorf("ends_at: %w", store.ErrInvalidInput)
	}
	if req.SKU == "" || req.PromoPriceCents < 1 || !endsAt.After(startsAt) {
		return domain.PriceRule{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetProductBySKU(ctx, req.SKU); err != nil {
		return domain.PriceRule{}, err
	}

	created, err := s.repo.CreatePriceRule(ctx, domain.PriceRule{
		SKU:             req.SKU,
		PromoPriceCents: req.PromoPriceCents,
		StartsAt:        startsAt.UTC(),
		EndsAt:          endsAt.UTC(),
		Active:          true,
	})
	if err != nil {
		return domain.PriceRule{}, err
	}
	return *created, nil
}

func (s *Service) ListPriceRules(ctx context.Context, sku string) ([]domain.PriceRule, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListPriceRules(ctx, strings.ToUpper(strings.TrimSpace(sku)))
}

func (s *Service) ListWarehouses(ctx context.Context) ([]domain.Warehouse, error) {
	return s.repo.ListWarehouses(ctx)
}

func (s *Service) CreateWarehouse(ctx context.Context, req domain.WarehouseCreateRequest) (domain.Warehouse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Warehouse{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Warehouse{}, store.ErrInvalidInput
	}
	created, err := s.repo.CreateWarehouse(ctx, domain.Warehouse{
		Name:    req.Name,
		Address: strings.TrimSpace(req.Address),
		Active:  true,
	})
	if err != nil {
		return domain.Warehouse{}, err
	}
	return *created, nil
}

func (s *Service) UpdateWarehouse(ctx context.Context, id string, req domain.WarehouseUpdateRequest) (domain.Warehouse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Warehouse{}, err
	}

	existing, err := s.repo.GetWarehouse(ctx, id)
	if err != nil {
		return domain.Warehouse{}, err
	}
	warehouse := *existing
	if req.Name != nil {
		warehouse.Name = strings.TrimSpace(*req.Name)
	}
	if req.Address != nil {
		warehouse.Address = strings.TrimSpace(*req.Address)
	}
	if req.Active != nil {
		warehouse.Active = *req.Active
	}
	if warehouse.Name == "" {
		return domain.Warehouse{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateWarehouse(ctx, warehouse)
	if err != nil {
		return domain.Warehouse{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteWarehouse(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if id == s.salesWarehouseID {
		return fmt.Errorf("sales warehouse cannot be deleted: %w", store.ErrInvalidInput)
	}
	return s.repo.DeleteWarehouse(ctx, id)
}

func (s *Service) ListStock(ctx context.Context, warehouseID string) ([]domain.StockListRow, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListStock(ctx, warehouseID)
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockRow, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockRow{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Reason = strings.TrimSpace(req.Reason)
	if req.SKU == "" || req.WarehouseID == "" || req.Delta == 0 || req.Reason == "" {
		return domain.StockRow{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetProductBySKU(ctx, req.SKU); err != nil {
		return domain.StockRow{}, err
	}
	if _, err := s.repo.GetWarehouse(ctx, req.WarehouseID); err != nil {
		return domain.StockRow{}, err
	}

	row, err := s.repo.AdjustStock(ctx, req)
	if err != nil {
		return domain.StockRow{}, err
	}
	return *row, nil
}

func (s *Service) TransferStock(ctx context.Context, req domain.TransferRequest) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	if req.SourceWarehouseID == "" || req.DestinationWarehouseID == "" || len(req.Lines) == 0 {
		return store.ErrInvalidInput
	}
	if req.SourceWarehouseID == req.DestinationWarehouseID {
		return fmt.Errorf("source and destination must differ: %w", store.ErrInvalidInput)
	}
	for i := range req.Lines {
		req.Lines[i].SKU = strings.ToUpper(strings.TrimSpace(req.Lines[i].SKU))
		if req.Lines[i].SKU == "" || req.Lines[i].Qty < 1 {
			return store.ErrInvalidInput
		}
	}

	return s.repo.TransferStock(ctx, req)
}

func (s *Service) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) GetCart(ctx context.Context, token string) (domain.CartView, error) {
	userID := ""
	if actor, ok := ActorFromContext(ctx); ok {
		userID = actor.Username
	}
	if _, err := s.repo.GetOrCreateCart(ctx, token, userID); err != nil {
		return domain.CartView{}, err
	}
	return s.buildCartView(ctx, token)
}

func (s *Service) AddToCart(ctx context.Context, token string, req domain.CartAddRequest) (domain.CartView, error) {
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	if req.SKU == "" {
		return domain.CartView{}, store.ErrInvalidInput
	}
	if req.Qty < 1 {
		req.Qty = 1
	}

	product, err := s.repo.GetProductBySKU(ctx, req.SKU)
	if err != nil {
		return domain.CartView{}, err
	}
	if !product.Active {
		return domain.CartView{}, store.ErrNotFound
	}

	userID := ""
	if actor, ok := ActorFromContext(ctx); ok {
		userID = actor.Username
	}
	if _, err := s.repo.GetOrCreateCart(ctx, token, userID); err != nil {
		return domain.CartView{}, err
	}

	// Price is snapshotted at add time; a promo active right now wins
	// over the list price.
	unitPrice := s.effectivePrice(ctx, *product, time.Now().UTC())
	if _, err := s.repo.UpsertCartLine(ctx, domain.CartLine{
		CartToken:      token,
		SKU:            req.SKU,
		Qty:            req.Qty,
		UnitPriceCents: unitPrice,
	}); err != nil {
		return domain.CartView{}, err
	}

	return s.buildCartView(ctx, token)
}

func (s *Service) UpdateCartLine(ctx context.Context, token string, lineID string, qty int) (domain.CartView, error) {
	if qty < 1 {
		if err := s.repo.RemoveCartLine(ctx, token, lineID); err != nil {
			return domain.CartView{}, err
		}
		return s.buildCartView(ctx, token)
	}
	if err := s.repo.SetCartLineQty(ctx, token, lineID, qty); err != nil {
		return domain.CartView{}, err
	}
	return s.buildCartView(ctx, token)
}

func (s *Service) RemoveCartLine(ctx context.Context, token string, lineID string) (domain.CartView, error) {
	if err := s.repo.RemoveCartLine(ctx, token, lineID); err != nil {
		return domain.CartView{}, err
	}
	return s.buildCartView(ctx, token)
}

func (s *Service) ClearCart(ctx context.Context, token string) error {
	return s.repo.ClearCart(ctx, token)
}

func (s *Service) buildCartView(ctx context.Context, token string) (domain.CartView, error) {
	lines, err := s.repo.ListCartLines(ctx, token)
	if err != nil {
		return domain.CartView{}, err
	}

	skus := make([]string, 0, len(lines))
	for _, line := range lines {
		skus = append(skus, line.SKU)
	}
	products, err := s.repo.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return domain.CartView{}, err
	}

	view := domain.CartView{Token: token, Lines: make([]domain.CartViewLine, 0, len(lines))}
	for _, line := range lines {
		lineTotal := line.UnitPriceCents * int64(line.Qty)
		view.Lines = append(view.Lines, domain.CartViewLine{
			ID:             line.ID,
			SKU:            line.SKU,
			Name:           products[line.SKU].Name,
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
			TotalCents:     lineTotal,
		})
		view.SubtotalCents += lineTotal
	}
	view.TaxCents = s.taxFor(view.SubtotalCents)
	view.TotalCents = view.SubtotalCents + view.TaxCents
	return view, nil
}

func (s *Service) taxFor(subtotalCents int64) int64 {
	return int64(math.Round(float64(subtotalCents) * s.taxRatePercent / 100))
}

func (s *Service) PreviewCheckout(ctx context.Context, token string) (domain.CheckoutPreview, error) {
	view, err := s.buildCartView(ctx, token)
	if err != nil {
		return domain.CheckoutPreview{}, err
	}
	if len(view.Lines) == 0 {
		return domain.CheckoutPreview{}, fmt.Errorf("cart is empty: %w", store.ErrInvalidInput)
	}
	return domain.CheckoutPreview{
		Lines:         view.Lines,
		SubtotalCents: view.SubtotalCents,
		TaxCents:      view.TaxCents,
		TotalCents:    view.TotalCents,
		TaxRate:       s.taxRatePercent,
	}, nil
}

// ConfirmCheckout turns the cart into a pending order. Totals come from
// the snapshotted line prices, the sale is written against the sales
// warehouse without an availability check and the cart is emptied, all
// in one atomic store call.
func (s *Service) ConfirmCheckout(ctx context.Context, token string) (domain.CheckoutResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CheckoutResponse{}, fmt.Errorf("login required")
	}

	view, err := s.buildCartView(ctx, token)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if len(view.Lines) == 0 {
		return domain.CheckoutResponse{}, fmt.Errorf("cart is empty: %w", store.ErrInvalidInput)
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:            xid.New("ord"),
		Number:        generateNumber("P", now),
		UserID:        actor.Username,
		SubtotalCents: view.SubtotalCents,
		TaxCents:      view.TaxCents,
		TotalCents:    view.TotalCents,
		Status:        domain.OrderStatusPendiente,
		CreatedAt:     now,
		Items:         make([]domain.OrderLine, 0, len(view.Lines)),
	}
	for _, line := range view.Lines {
		order.Items = append(order.Items, domain.OrderLine{
			SKU:            line.SKU,
			Name:           line.Name,
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
			TotalCents:     line.TotalCents,
		})
	}

	created, err := s.repo.CreateCheckout(ctx, order, token, s.salesWarehouseID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	return domain.CheckoutResponse{Order: *created}, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Order{}, fmt.Errorf("login required")
	}

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if actor.Role != domain.RoleAdmin && order.UserID != actor.Username {
		return domain.Order{}, store.ErrNotFound
	}
	return *order, nil
}

func (s *Service) ListMyOrders(ctx context.Context, page int, pageSize int) ([]domain.Order, int, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, 0, fmt.Errorf("login required")
	}
	return s.repo.ListOrdersByUser(ctx, actor.Username, page, pageSize)
}

// Reorder copies a past order's lines back into the cart at today's
// effective prices, skipping products that have since gone inactive.
func (s *Service) Reorder(ctx context.Context, token string, orderID string) (domain.CartView, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return domain.CartView{}, err
	}

	for _, item := range order.Items {
		if _, err := s.AddToCart(ctx, token, domain.CartAddRequest{SKU: item.SKU, Qty: item.Qty}); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Printf("[service] WARN: reorder skipped unavailable sku=%s order=%s", item.SKU, order.Number)
				continue
			}
			return domain.CartView{}, err
		}
	}
	return s.buildCartView(ctx, token)
}

func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListOrders(ctx, filter)
}

func (s *Service) SetOrderStatus(ctx context.Context, id string, status string) (domain.Order, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Order{}, err
	}
	if !domain.IsOrderStatus(status) {
		return domain.Order{}, fmt.Errorf("unknown status %q: %w", status, store.ErrInvalidInput)
	}

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !domain.CanTransitionOrder(order.Status, status) {
		return domain.Order{}, fmt.Errorf("cannot move order from %s to %s: %w", order.Status, status, store.ErrInvalidInput)
	}

	updated, err := s.repo.SetOrderStatus(ctx, id, status)
	if err != nil {
		return domain.Order{}, err
	}
	return *updated, nil
}

func (s *Service) MarkOrderPaid(ctx context.Context, id string, reference string) (domain.Order, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Order{}, err
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.Order{}, fmt.Errorf("payment reference required: %w", store.ErrInvalidInput)
	}

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !domain.CanTransitionOrder(order.Status, domain.OrderStatusPagado) {
		return domain.Order{}, fmt.Errorf("cannot mark order %s as paid: %w", order.Status, store.ErrInvalidInput)
	}

	updated, err := s.repo.MarkOrderPaid(ctx, id, reference, time.Now().UTC())
	if err != nil {
		return domain.Order{}, err
	}
	return *updated, nil
}

func (s *Service) ShipOrder(ctx context.Context, id string, req domain.OrderShipRequest) (domain.Order, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Order{}, err
	}
	req.Courier = strings.TrimSpace(req.Courier)
	req.Tracking = strings.TrimSpace(req.Tracking)
	if req.Courier == "" || req.Tracking == "" {
		return domain.Order{}, fmt.Errorf("courier and tracking required: %w", store.ErrInvalidInput)
	}

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !domain.CanTransitionOrder(order.Status, domain.OrderStatusEnviado) {
		return domain.Order{}, fmt.Errorf("cannot ship order in status %s: %w", order.Status, store.ErrInvalidInput)
	}

	updated, err := s.repo.RecordOrderShipment(ctx, id, req.Courier, req.Tracking, time.Now().UTC())
	if err != nil {
		return domain.Order{}, err
	}
	return *updated, nil
}

func (s *Service) ListSuppliers(ctx context.Context, query string, onlyActive *bool) ([]domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListSuppliers(ctx, query, onlyActive)
}

func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}
	supplier, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}

	req.RUC = strings.TrimSpace(req.RUC)
	req.Name = strings.TrimSpace(req.Name)
	if len(req.RUC) != 11 || req.Name == "" {
		return domain.Supplier{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		RUC:     req.RUC,
		Name:    req.Name,
		Contact: strings.TrimSpace(req.Contact),
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
		Active:  true,
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return *created, nil
}

// UpdateSupplier applies an optimistic-concurrency update: the caller
// sends the version it loaded and loses with "not found" if someone
// saved in between.
func (s *Service) UpdateSupplier(ctx context.Context, id string, req domain.SupplierUpdateRequest) (domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}

	req.RUC = strings.TrimSpace(req.RUC)
	req.Name = strings.TrimSpace(req.Name)
	if len(req.RUC) != 11 || req.Name == "" || req.Version < 1 {
		return domain.Supplier{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateSupplier(ctx, domain.Supplier{
		ID:      id,
		RUC:     req.RUC,
		Name:    req.Name,
		Contact: strings.TrimSpace(req.Contact),
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
		Active:  req.Active,
		Version: req.Version,
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteSupplier(ctx, id)
}

func (s *Service) LookupSupplierRUC(ctx context.Context, ruc string) (*sunat.RUCInfo, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if s.sunat == nil {
		return nil, fmt.Errorf("ruc lookup is not configured")
	}
	return s.sunat.LookupRUC(ctx, ruc)
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}

	if req.SupplierID == "" || req.WarehouseID == "" || len(req.Lines) == 0 {
		return domain.PurchaseOrder{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetSupplier(ctx, req.SupplierID); err != nil {
		return domain.PurchaseOrder{}, err
	}
	if _, err := s.repo.GetWarehouse(ctx, req.WarehouseID); err != nil {
		return domain.PurchaseOrder{}, err
	}

	now := time.Now().UTC()
	po := domain.PurchaseOrder{
		ID:          xid.New("oc"),
		Number:      generateNumber("OC", now),
		SupplierID:  req.SupplierID,
		WarehouseID: req.WarehouseID,
		Currency:    "PEN",
		Status:      domain.POStatusEmitida,
		IssuedAt:    now,
		Items:       make([]domain.PurchaseOrderLine, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		line.SKU = strings.ToUpper(strings.TrimSpace(line.SKU))
		if line.SKU == "" || line.Qty < 1 || line.UnitCostCents < 1 {
			return domain.PurchaseOrder{}, store.ErrInvalidInput
		}
		if _, err := s.repo.GetProductBySKU(ctx, line.SKU); err != nil {
			return domain.PurchaseOrder{}, fmt.Errorf("sku %s: %w", line.SKU, err)
		}
		line.TotalCents = line.UnitCostCents * int64(line.Qty)
		po.SubtotalCents += line.TotalCents
		po.Items = append(po.Items, line)
	}
	po.TaxCents = s.taxFor(po.SubtotalCents)
	po.TotalCents = po.SubtotalCents + po.TaxCents

	created, err := s.repo.CreatePurchaseOrder(ctx, po)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *created, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListPurchaseOrders(ctx, status, limit)
}

// ReceivePurchaseOrder records one receiving event against an open
// purchase order. Partial receipts leave the order in Recibida Parcial;
// the order completes once every line is received in full.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, req domain.ReceiveRequest) (domain.PurchaseOrder, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}
	if len(req.Lines) == 0 {
		return domain.PurchaseOrder{}, store.ErrInvalidInput
	}
	for i := range req.Lines {
		req.Lines[i].SKU = strings.ToUpper(strings.TrimSpace(req.Lines[i].SKU))
		if req.Lines[i].SKU == "" || req.Lines[i].QtyReceived < 1 {
			return domain.PurchaseOrder{}, store.ErrInvalidInput
		}
	}

	updated, err := s.repo.CreateReceipt(ctx, domain.Receipt{
		PurchaseOrderID: purchaseOrderID,
		Reference:       strings.TrimSpace(req.Reference),
		Note:            strings.TrimSpace(req.Note),
		CreatedAt:       time.Now().UTC(),
		Items:           req.Lines,
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *updated, nil
}

func (s *Service) ListReceipts(ctx context.Context, purchaseOrderID string) ([]domain.Receipt, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListReceipts(ctx, purchaseOrderID)
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	return nil
}

func generateNumber(prefix string, at time.Time) string {
	id := xid.New(prefix)
	parts := strings.Split(id, "-")
	suffix := parts[len(parts)-1]
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return fmt.Sprintf("%s%s-%s", prefix, at.Format("060102"), strings.ToUpper(suffix))
}

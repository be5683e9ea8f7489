package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tiendapc/backend/internal/domain"
	"tiendapc/backend/internal/store"
	"tiendapc/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	brands           map[string]domain.Brand
	categories       map[string]domain.Category
	products         map[string]domain.Product
	priceRules       map[string]domain.PriceRule
	warehouses       map[string]domain.Warehouse
	stock            map[string]map[string]int
	movements        []domain.InventoryMovement
	carts            map[string]domain.Cart
	cartLines        map[string][]domain.CartLine
	ordersByID       map[string]*domain.Order
	suppliersByID    map[string]domain.Supplier
	purchaseOrders   map[string]*domain.PurchaseOrder
	receiptsByPO     map[string][]domain.Receipt
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		brands:          map[string]domain.Brand{},
		categories:      map[string]domain.Category{},
		products:        map[string]domain.Product{},
		priceRules:      map[string]domain.PriceRule{},
		warehouses:      map[string]domain.Warehouse{},
		stock:           map[string]map[string]int{},
		movements:       []domain.InventoryMovement{},
		carts:           map[string]domain.Cart{},
		cartLines:       map[string][]domain.CartLine{},
		ordersByID:      map[string]*domain.Order{},
		suppliersByID:   map[string]domain.Supplier{},
		purchaseOrders:  map[string]*domain.PurchaseOrder{},
		receiptsByPO:    map[string][]domain.Receipt{},
		usersByUsername: map[string]domain.UserAccount{},
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Passwords come from SEED_ADMIN_PASSWORD and SEED_CUSTOMER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. Production
// deployments use PostgreSQL (DATABASE_URL) and never hit this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	customerPwd := envOr("SEED_CUSTOMER_PASSWORD", "cliente123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CUSTOMER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CUSTOMER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cliente", customerPwd, domain.RoleCustomer},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			continue
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key string, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// NewSeeded returns a store preloaded with a small PC-shop catalog, two
// warehouses with opening stock and the dev user accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	s.brands = map[string]domain.Brand{
		"brand-logitech": {ID: "brand-logitech", Name: "Logitech"},
		"brand-asus":     {ID: "brand-asus", Name: "Asus"},
		"brand-kingston": {ID: "brand-kingston", Name: "Kingston"},
	}
	s.categories = map[string]domain.Category{
		"cat-perifericos": {ID: "cat-perifericos", Name: "Periféricos"},
		"cat-componentes": {ID: "cat-componentes", Name: "Componentes"},
		"cat-monitores":   {ID: "cat-monitores", Name: "Monitores"},
	}

	products := []domain.Product{
		{SKU: "SKU-TEC-01", Name: "Teclado mecánico K120", BrandID: "brand-logitech", CategoryID: "cat-perifericos", PriceCents: 10000, CostCents: 6500, Active: true},
		{SKU: "SKU-MOU-01", Name: "Mouse inalámbrico M185", BrandID: "brand-logitech", CategoryID: "cat-perifericos", PriceCents: 4500, CostCents: 2800, Active: true},
		{SKU: "SKU-GPU-01", Name: "Tarjeta de video RTX 4060", BrandID: "brand-asus", CategoryID: "cat-componentes", PriceCents: 145000, CostCents: 118000, Active: true},
		{SKU: "SKU-RAM-01", Name: "Memoria Fury 16GB DDR4", BrandID: "brand-kingston", CategoryID: "cat-componentes", PriceCents: 18000, CostCents: 12500, Active: true},
		{SKU: "SKU-MON-01", Name: "Monitor ProArt 27\"", BrandID: "brand-asus", CategoryID: "cat-monitores", PriceCents: 95000, CostCents: 72000, Active: true},
		{SKU: "SKU-OLD-01", Name: "Teclado PS/2 descontinuado", BrandID: "brand-logitech", CategoryID: "cat-perifericos", PriceCents: 2000, CostCents: 1000, Active: false},
	}
	for _, p := range products {
		s.products[p.SKU] = p
	}

	s.warehouses = map[string]domain.Warehouse{
		"alm-principal":  {ID: "alm-principal", Name: "Almacén Principal", Address: "Av. Industrial 500, Lima", Active: true},
		"alm-secundario": {ID: "alm-secundario", Name: "Almacén Secundario", Address: "Jr. Comercio 120, Callao", Active: true},
	}
	s.stock = map[string]map[string]int{
		"alm-principal": {
			"SKU-TEC-01": 40,
			"SKU-MOU-01": 80,
			"SKU-GPU-01": 6,
			"SKU-RAM-01": 25,
			"SKU-MON-01": 10,
		},
		"alm-secundario": {
			"SKU-TEC-01": 15,
			"SKU-RAM-01": 10,
		},
	}

	rule := domain.PriceRule{
		ID:              "rule-mou-lanzamiento",
		SKU:             "SKU-MOU-01",
		PromoPriceCents: 3900,
		StartsAt:        now.Add(-24 * time.Hour),
		EndsAt:          now.Add(30 * 24 * time.Hour),
		Active:          true,
	}
	s.priceRules[rule.ID] = rule

	supplier := domain.Supplier{
		ID:        "prov-intcomex",
		RUC:       "20100038146",
		Name:      "Intcomex Perú S.A.C.",
		Contact:   "Mesa de partes",
		Phone:     "01-6109800",
		Email:     "ventas@intcomex.pe",
		Address:   "Av. Argentina 2415, Lima",
		Active:    true,
		Version:   1,
		CreatedAt: now,
	}
	s.suppliersByID[supplier.ID] = supplier

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListBrands(_ context.Context) ([]domain.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	brands := make([]domain.Brand, 0, len(s.brands))
	for _, b := range s.brands {
		brands = append(brands, b)
	}
	sort.Slice(brands, func(i, j int) bool { return brands[i].Name < brands[j].Name })
	return brands, nil
}

func (s *Store) CreateBrand(_ context.Context, brand domain.Brand) (*domain.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if brand.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if brand.ID == "" {
		brand.ID = xid.New("brand")
	}
	for _, existing := range s.brands {
		if strings.EqualFold(existing.Name, brand.Name) {
			return nil, store.ErrDuplicate
		}
	}
	s.brands[brand.ID] = brand
	created := brand
	return &created, nil
}

func (s *Store) DeleteBrand(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.brands[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.brands, id)
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrDuplicate
		}
	}
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.CatalogFilter) ([]domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Product, 0, len(s.products))
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	for _, p := range s.products {
		if !filter.IncludeInactive && !p.Active {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if filter.BrandID != "" && p.BrandID != filter.BrandID {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) && !strings.Contains(strings.ToLower(p.SKU), query) {
			continue
		}
		if filter.MinPriceCents > 0 && p.PriceCents < filter.MinPriceCents {
			continue
		}
		if filter.MaxPriceCents > 0 && p.PriceCents > filter.MaxPriceCents {
			continue
		}
		matched = append(matched, p)
	}

	switch filter.Sort {
	case "precioAsc":
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].PriceCents != matched[j].PriceCents {
				return matched[i].PriceCents < matched[j].PriceCents
			}
			return matched[i].Name < matched[j].Name
		})
	case "precioDesc":
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].PriceCents != matched[j].PriceCents {
				return matched[i].PriceCents > matched[j].PriceCents
			}
			return matched[i].Name < matched[j].Name
		})
	case "nombre":
		sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	default:
		sort.Slice(matched, func(i, j int) bool { return matched[i].SKU < matched[j].SKU })
	}

	total := len(matched)
	if filter.Page > 0 && filter.PageSize > 0 {
		start := (filter.Page - 1) * filter.PageSize
		if start >= total {
			return []domain.Product{}, total, nil
		}
		end := start + filter.PageSize
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}

	return matched, total, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[sku]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) GetProductsBySKUs(_ context.Context, skus []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(skus))
	for _, sku := range skus {
		if product, ok := s.products[sku]; ok {
			result[sku] = product
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.SKU]; exists {
		return nil, store.ErrDuplicate
	}
	product.Active = true
	s.products[product.SKU] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.SKU]; !exists {
		return nil, store.ErrNotFound
	}
	s.products[product.SKU] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[sku]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, sku)
	return nil
}

func (s *Store) CreatePriceRule(_ context.Context, rule domain.PriceRule) (*domain.PriceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.SKU == "" || rule.PromoPriceCents < 1 || !rule.EndsAt.After(rule.StartsAt) {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.products[rule.SKU]; !ok {
		return nil, store.ErrNotFound
	}
	if rule.ID == "" {
		rule.ID = xid.New("rule")
	}
	rule.Active = true
	s.priceRules[rule.ID] = rule
	created := rule
	return &created, nil
}

func (s *Store) ListPriceRules(_ context.Context, sku string) ([]domain.PriceRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]domain.PriceRule, 0, len(s.priceRules))
	for _, rule := range s.priceRules {
		if sku != "" && rule.SKU != sku {
			continue
		}
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].StartsAt.Before(rules[j].StartsAt) })
	return rules, nil
}

func (s *Store) GetActivePromoPrice(_ context.Context, sku string, at time.Time) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rule := range s.priceRules {
		if rule.Active && rule.SKU == sku && !at.Before(rule.StartsAt) && !at.After(rule.EndsAt) {
			return rule.PromoPriceCents, true, nil
		}
	}
	return 0, false, nil
}

func (s *Store) ListWarehouses(_ context.Context) ([]domain.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	warehouses := make([]domain.Warehouse, 0, len(s.warehouses))
	for _, w := range s.warehouses {
		warehouses = append(warehouses, w)
	}
	sort.Slice(warehouses, func(i, j int) bool { return warehouses[i].Name < warehouses[j].Name })
	return warehouses, nil
}

func (s *Store) GetWarehouse(_ context.Context, id string) (*domain.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	warehouse, ok := s.warehouses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := warehouse
	return &found, nil
}

func (s *Store) CreateWarehouse(_ context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if warehouse.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if warehouse.ID == "" {
		warehouse.ID = xid.New("alm")
	}
	warehouse.Active = true
	s.warehouses[warehouse.ID] = warehouse
	created := warehouse
	return &created, nil
}

func (s *Store) UpdateWarehouse(_ context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if warehouse.ID == "" || warehouse.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.warehouses[warehouse.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.warehouses[warehouse.ID] = warehouse
	updated := warehouse
	return &updated, nil
}

func (s *Store) DeleteWarehouse(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.warehouses[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.warehouses, id)
	return nil
}

func (s *Store) ListStock(_ context.Context, warehouseID string) ([]domain.StockListRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.StockListRow, 0, 64)
	for whID, bySKU := range s.stock {
		if warehouseID != "" && whID != warehouseID {
			continue
		}
		warehouse := s.warehouses[whID]
		for sku, qty := range bySKU {
			product := s.products[sku]
			rows = append(rows, domain.StockListRow{
				SKU:           sku,
				ProductName:   product.Name,
				WarehouseID:   whID,
				WarehouseName: warehouse.Name,
				Qty:           qty,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].WarehouseName != rows[j].WarehouseName {
			return rows[i].WarehouseName < rows[j].WarehouseName
		}
		return rows[i].ProductName < rows[j].ProductName
	})
	return rows, nil
}

func (s *Store) GetStockQty(_ context.Context, sku string, warehouseID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stock[warehouseID][sku], nil
}

func (s *Store) AdjustStock(_ context.Context, req domain.StockAdjustmentRequest) (*domain.StockRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.SKU == "" || req.WarehouseID == "" || req.Delta == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.products[req.SKU]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.warehouses[req.WarehouseID]; !ok {
		return nil, store.ErrNotFound
	}

	if s.stock[req.WarehouseID] == nil {
		s.stock[req.WarehouseID] = map[string]int{}
	}
	s.stock[req.WarehouseID][req.SKU] += req.Delta

	movementType := domain.MovementAjusteEntrada
	if req.Delta < 0 {
		movementType = domain.MovementAjusteSalida
	}
	s.movements = append(s.movements, domain.InventoryMovement{
		ID:          xid.New("mov"),
		WarehouseID: req.WarehouseID,
		SKU:         req.SKU,
		Type:        movementType,
		Reference:   domain.MovementRefAjusteManual,
		Qty:         req.Delta,
		Note:        req.Reason,
		CreatedAt:   time.Now().UTC(),
	})

	row := domain.StockRow{SKU: req.SKU, WarehouseID: req.WarehouseID, Qty: s.stock[req.WarehouseID][req.SKU]}
	return &row, nil
}

func (s *Store) TransferStock(_ context.Context, req domain.TransferRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.SourceWarehouseID == "" || req.DestinationWarehouseID == "" || len(req.Lines) == 0 {
		return store.ErrInvalidInput
	}
	if req.SourceWarehouseID == req.DestinationWarehouseID {
		return store.ErrInvalidInput
	}
	if _, ok := s.warehouses[req.SourceWarehouseID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.warehouses[req.DestinationWarehouseID]; !ok {
		return store.ErrNotFound
	}

	// Validate every line before any write so a short line aborts the
	// whole transfer. Lines repeating a SKU draw from one balance, so
	// the source must cover the summed quantity per SKU.
	needBySKU := make(map[string]int, len(req.Lines))
	for _, line := range req.Lines {
		if line.Qty < 1 {
			return store.ErrInvalidInput
		}
		if _, ok := s.products[line.SKU]; !ok {
			return fmt.Errorf("sku %s: %w", line.SKU, store.ErrNotFound)
		}
		needBySKU[line.SKU] += line.Qty
	}
	for sku, need := range needBySKU {
		if s.stock[req.SourceWarehouseID][sku] < need {
			return fmt.Errorf("sku %s: %w", sku, store.ErrInsufficientStock)
		}
	}

	if s.stock[req.DestinationWarehouseID] == nil {
		s.stock[req.DestinationWarehouseID] = map[string]int{}
	}
	now := time.Now().UTC()
	reference := xid.New("transfer")
	for _, line := range req.Lines {
		s.stock[req.SourceWarehouseID][line.SKU] -= line.Qty
		s.stock[req.DestinationWarehouseID][line.SKU] += line.Qty
		s.movements = append(s.movements,
			domain.InventoryMovement{
				ID:          xid.New("mov"),
				WarehouseID: req.SourceWarehouseID,
				SKU:         line.SKU,
				Type:        domain.MovementTransferSalida,
				Reference:   reference,
				Qty:         -line.Qty,
				CreatedAt:   now,
			},
			domain.InventoryMovement{
				ID:          xid.New("mov"),
				WarehouseID: req.DestinationWarehouseID,
				SKU:         line.SKU,
				Type:        domain.MovementTransferEntrada,
				Reference:   reference,
				Qty:         line.Qty,
				CreatedAt:   now,
			},
		)
	}
	return nil
}

func (s *Store) ListMovements(_ context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	result := make([]domain.InventoryMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0 && len(result) < limit; i-- {
		mov := s.movements[i]
		if filter.SKU != "" && mov.SKU != filter.SKU {
			continue
		}
		if filter.WarehouseID != "" && mov.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.Type != "" && mov.Type != filter.Type {
			continue
		}
		result = append(result, mov)
	}
	return result, nil
}

func (s *Store) GetOrCreateCart(_ context.Context, token string, userID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" {
		return nil, store.ErrInvalidInput
	}
	cart, ok := s.carts[token]
	if !ok {
		cart = domain.Cart{Token: token, UserID: userID, CreatedAt: time.Now().UTC()}
	} else if cart.UserID == "" && userID != "" {
		cart.UserID = userID
	}
	s.carts[token] = cart
	found := cart
	return &found, nil
}

func (s *Store) ListCartLines(_ context.Context, cartToken string) ([]domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := s.cartLines[cartToken]
	result := make([]domain.CartLine, len(lines))
	copy(result, lines)
	return result, nil
}

func (s *Store) UpsertCartLine(_ context.Context, line domain.CartLine) (*domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if line.CartToken == "" || line.SKU == "" || line.Qty < 1 || line.UnitPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.carts[line.CartToken]; !ok {
		return nil, store.ErrNotFound
	}

	lines := s.cartLines[line.CartToken]
	for i := range lines {
		if lines[i].SKU == line.SKU {
			lines[i].Qty += line.Qty
			saved := lines[i]
			return &saved, nil
		}
	}

	if line.ID == "" {
		line.ID = xid.New("cline")
	}
	s.cartLines[line.CartToken] = append(lines, line)
	saved := line
	return &saved, nil
}

func (s *Store) SetCartLineQty(_ context.Context, cartToken string, lineID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 1 {
		return store.ErrInvalidInput
	}
	lines := s.cartLines[cartToken]
	for i := range lines {
		if lines[i].ID == lineID {
			lines[i].Qty = qty
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) RemoveCartLine(_ context.Context, cartToken string, lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.cartLines[cartToken]
	for i := range lines {
		if lines[i].ID == lineID {
			s.cartLines[cartToken] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ClearCart(_ context.Context, cartToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cartLines, cartToken)
	return nil
}

func (s *Store) CreateCheckout(_ context.Context, order domain.Order, cartToken string, salesWarehouseID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(order.Items) == 0 || order.UserID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.warehouses[salesWarehouseID]; !ok {
		return nil, fmt.Errorf("sales warehouse %s: %w", salesWarehouseID, store.ErrNotFound)
	}

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPendiente
	}

	for _, item := range order.Items {
		if _, ok := s.products[item.SKU]; !ok {
			return nil, fmt.Errorf("sku %s: %w", item.SKU, store.ErrNotFound)
		}
	}

	if s.stock[salesWarehouseID] == nil {
		s.stock[salesWarehouseID] = map[string]int{}
	}
	for _, item := range order.Items {
		product := s.products[item.SKU]
		// The pair is created lazily; no availability check, the balance
		// may go negative.
		s.stock[salesWarehouseID][item.SKU] -= item.Qty
		s.movements = append(s.movements, domain.InventoryMovement{
			ID:            xid.New("mov"),
			WarehouseID:   salesWarehouseID,
			SKU:           item.SKU,
			Type:          domain.MovementVenta,
			Reference:     order.Number,
			Qty:           -item.Qty,
			UnitCostCents: product.CostCents,
			CreatedAt:     order.CreatedAt,
		})
	}

	saved := order
	s.ordersByID[order.ID] = &saved
	delete(s.cartLines, cartToken)

	result := cloneOrder(&saved)
	return result, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) ListOrdersByUser(_ context.Context, userID string, page int, pageSize int) ([]domain.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Order, 0, 16)
	for _, order := range s.ordersByID {
		if order.UserID == userID {
			matched = append(matched, order)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if page > 0 && pageSize > 0 {
		start := (page - 1) * pageSize
		if start >= total {
			return []domain.Order{}, total, nil
		}
		end := start + pageSize
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}

	result := make([]domain.Order, 0, len(matched))
	for _, order := range matched {
		result = append(result, *cloneOrder(order))
	}
	return result, total, nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	matched := make([]*domain.Order, 0, 32)
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	for _, order := range s.ordersByID {
		if query != "" && !strings.Contains(strings.ToLower(order.Number), query) && !strings.Contains(strings.ToLower(order.UserID), query) {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.From != nil && order.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && order.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, order)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]domain.Order, 0, len(matched))
	for _, order := range matched {
		result = append(result, *cloneOrder(order))
	}
	return result, nil
}

func (s *Store) SetOrderStatus(_ context.Context, id string, status string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !domain.IsOrderStatus(status) {
		return nil, store.ErrInvalidInput
	}
	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	order.Status = status
	return cloneOrder(order), nil
}

func (s *Store) MarkOrderPaid(_ context.Context, id string, reference string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	order.PaymentReference = reference
	paidAt := at.UTC()
	order.PaidAt = &paidAt
	if order.Status == domain.OrderStatusPendiente {
		order.Status = domain.OrderStatusPagado
	}
	return cloneOrder(order), nil
}

func (s *Store) RecordOrderShipment(_ context.Context, id string, courier string, tracking string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	order.Courier = courier
	order.Tracking = tracking
	shippedAt := at.UTC()
	order.ShippedAt = &shippedAt
	if order.Status == domain.OrderStatusPagado {
		order.Status = domain.OrderStatusEnviado
	}
	return cloneOrder(order), nil
}

func (s *Store) ListSales(_ context.Context, from *time.Time, to *time.Time) ([]domain.SalesRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.SalesRow, 0, 32)
	for _, order := range s.ordersByID {
		if order.Status != domain.OrderStatusPagado && order.Status != domain.OrderStatusCompletado {
			continue
		}
		if from != nil && order.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && order.CreatedAt.After(*to) {
			continue
		}
		rows = append(rows, domain.SalesRow{
			Number:     order.Number,
			Date:       order.CreatedAt,
			TotalCents: order.TotalCents,
			Status:     order.Status,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

func (s *Store) ListSuppliers(_ context.Context, query string, onlyActive *bool) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		if query != "" &&
			!strings.Contains(strings.ToLower(supplier.RUC), query) &&
			!strings.Contains(strings.ToLower(supplier.Name), query) &&
			!strings.Contains(strings.ToLower(supplier.Phone), query) &&
			!strings.Contains(strings.ToLower(supplier.Email), query) {
			continue
		}
		if onlyActive != nil && supplier.Active != *onlyActive {
			continue
		}
		suppliers = append(suppliers, supplier)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].Name < suppliers[j].Name })
	return suppliers, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := supplier
	return &found, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.RUC == "" || supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.suppliersByID {
		if existing.RUC == supplier.RUC {
			return nil, store.ErrDuplicate
		}
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("prov")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	supplier.Active = true
	supplier.Version = 1
	s.suppliersByID[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" || supplier.RUC == "" || supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	existing, ok := s.suppliersByID[supplier.ID]
	if !ok || existing.Version != supplier.Version {
		// A concurrent edit looks the same as a missing row.
		return nil, store.ErrNotFound
	}
	for id, other := range s.suppliersByID {
		if id != supplier.ID && other.RUC == supplier.RUC {
			return nil, store.ErrDuplicate
		}
	}
	supplier.CreatedAt = existing.CreatedAt
	supplier.Version = existing.Version + 1
	s.suppliersByID[supplier.ID] = supplier
	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliersByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.suppliersByID, id)
	return nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if po.SupplierID == "" || po.WarehouseID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.suppliersByID[po.SupplierID]; !ok {
		return nil, fmt.Errorf("supplier %s: %w", po.SupplierID, store.ErrNotFound)
	}
	if _, ok := s.warehouses[po.WarehouseID]; !ok {
		return nil, fmt.Errorf("warehouse %s: %w", po.WarehouseID, store.ErrNotFound)
	}
	for _, line := range po.Items {
		if _, ok := s.products[line.SKU]; !ok {
			return nil, fmt.Errorf("sku %s: %w", line.SKU, store.ErrNotFound)
		}
	}

	if po.ID == "" {
		po.ID = xid.New("oc")
	}
	if po.IssuedAt.IsZero() {
		po.IssuedAt = time.Now().UTC()
	}
	if po.Status == "" {
		po.Status = domain.POStatusEmitida
	}
	if po.Currency == "" {
		po.Currency = "PEN"
	}

	saved := po
	s.purchaseOrders[po.ID] = &saved
	return clonePurchaseOrder(&saved), nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePurchaseOrder(po), nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}

	matched := make([]*domain.PurchaseOrder, 0, len(s.purchaseOrders))
	for _, po := range s.purchaseOrders {
		if status != "" && po.Status != status {
			continue
		}
		matched = append(matched, po)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].IssuedAt.After(matched[j].IssuedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]domain.PurchaseOrder, 0, len(matched))
	for _, po := range matched {
		result = append(result, *clonePurchaseOrder(po))
	}
	return result, nil
}

func (s *Store) CreateReceipt(_ context.Context, receipt domain.Receipt) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if receipt.PurchaseOrderID == "" || len(receipt.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	po, ok := s.purchaseOrders[receipt.PurchaseOrderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if po.Status == domain.POStatusCompletada {
		return nil, fmt.Errorf("purchase order %s already completed: %w", po.Number, store.ErrInvalidInput)
	}

	orderedBySKU := make(map[string]int, len(po.Items))
	costBySKU := make(map[string]int64, len(po.Items))
	for _, line := range po.Items {
		orderedBySKU[line.SKU] += line.Qty
		costBySKU[line.SKU] = line.UnitCostCents
	}
	for _, line := range receipt.Items {
		if line.QtyReceived < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, onOrder := orderedBySKU[line.SKU]; !onOrder {
			return nil, fmt.Errorf("sku %s is not on purchase order %s: %w", line.SKU, po.Number, store.ErrInvalidInput)
		}
	}

	if receipt.ID == "" {
		receipt.ID = xid.New("rec")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}

	if s.stock[po.WarehouseID] == nil {
		s.stock[po.WarehouseID] = map[string]int{}
	}
	for _, line := range receipt.Items {
		s.stock[po.WarehouseID][line.SKU] += line.QtyReceived
		s.movements = append(s.movements, domain.InventoryMovement{
			ID:            xid.New("mov"),
			WarehouseID:   po.WarehouseID,
			SKU:           line.SKU,
			Type:          domain.MovementCompraRecepcion,
			Reference:     receipt.ID,
			Qty:           line.QtyReceived,
			UnitCostCents: costBySKU[line.SKU],
			Note:          receipt.Reference,
			CreatedAt:     receipt.CreatedAt,
		})
	}

	s.receiptsByPO[po.ID] = append(s.receiptsByPO[po.ID], receipt)

	receivedBySKU := make(map[string]int, len(orderedBySKU))
	for _, past := range s.receiptsByPO[po.ID] {
		for _, line := range past.Items {
			receivedBySKU[line.SKU] += line.QtyReceived
		}
	}
	complete := true
	for sku, ordered := range orderedBySKU {
		if receivedBySKU[sku] < ordered {
			complete = false
			break
		}
	}
	if complete {
		po.Status = domain.POStatusCompletada
	} else {
		po.Status = domain.POStatusRecibidaParcial
	}

	return clonePurchaseOrder(po), nil
}

func (s *Store) ListReceipts(_ context.Context, purchaseOrderID string) ([]domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipts := s.receiptsByPO[purchaseOrderID]
	result := make([]domain.Receipt, len(receipts))
	copy(result, receipts)
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrDuplicate
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneOrder(order *domain.Order) *domain.Order {
	clone := *order
	clone.Items = make([]domain.OrderLine, len(order.Items))
	copy(clone.Items, order.Items)
	if order.PaidAt != nil {
		paidAt := *order.PaidAt
		clone.PaidAt = &paidAt
	}
	if order.ShippedAt != nil {
		shippedAt := *order.ShippedAt
		clone.ShippedAt = &shippedAt
	}
	return &clone
}

func clonePurchaseOrder(po *domain.PurchaseOrder) *domain.PurchaseOrder {
	clone := *po
	clone.Items = make([]domain.PurchaseOrderLine, len(po.Items))
	copy(clone.Items, po.Items)
	return &clone
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tiendapc/backend/internal/domain"
	"tiendapc/backend/internal/store"
	"tiendapc/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM brands
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := make([]domain.Brand, 0, 32)
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return brands, nil
}

func (s *Store) CreateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error) {
	if brand.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if brand.ID == "" {
		brand.ID = xid.New("brand")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brands (id, name)
		VALUES ($1,$2)
	`, brand.ID, brand.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := brand
	return &created, nil
}

func (s *Store) DeleteBrand(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "brands", id)
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name)
		VALUES ($1,$2)
	`, category.ID, category.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := category
	return &created, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "categories", id)
}

func (s *Store) ListProducts(ctx context.Context, filter domain.CatalogFilter) ([]domain.Product, int, error) {
	conditions := make([]string, 0, 6)
	args := make([]any, 0, 6)

	if !filter.IncludeInactive {
		conditions = append(conditions, "active = true")
	}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if filter.BrandID != "" {
		args = append(args, filter.BrandID)
		conditions = append(conditions, fmt.Sprintf("brand_id = $%d", len(args)))
	}
	if query := strings.TrimSpace(filter.Query); query != "" {
		args = append(args, "%"+query+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR sku ILIKE $%d)", len(args), len(args)))
	}
	if filter.MinPriceCents > 0 {
		args = append(args, filter.MinPriceCents)
		conditions = append(conditions, fmt.Sprintf("price_cents >= $%d", len(args)))
	}
	if filter.MaxPriceCents > 0 {
		args = append(args, filter.MaxPriceCents)
		conditions = append(conditions, fmt.Sprintf("price_cents <= $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	orderBy := "sku"
	switch filter.Sort {
	case "precioAsc":
		orderBy = "price_cents, name"
	case "precioDesc":
		orderBy = "price_cents DESC, name"
	case "nombre":
		orderBy = "name"
	}

	paging := ""
	if filter.Page > 0 && filter.PageSize > 0 {
		args = append(args, filter.PageSize)
		paging = fmt.Sprintf("LIMIT $%d", len(args))
		args = append(args, (filter.Page-1)*filter.PageSize)
		paging += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT sku, name, brand_id, category_id, description, price_cents, cost_cents, active,
			count(*) OVER() AS total
		FROM products
		%s
		ORDER BY %s
		%s
	`, where, orderBy, paging), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	total := 0
	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.BrandID, &p.CategoryID, &p.Description, &p.PriceCents, &p.CostCents, &p.Active, &total); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT sku, name, brand_id, category_id, description, price_cents, cost_cents, active
		FROM products
		WHERE sku = $1
	`, sku).Scan(&p.SKU, &p.Name, &p.BrandID, &p.CategoryID, &p.Description, &p.PriceCents, &p.CostCents, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, brand_id, category_id, description, price_cents, cost_cents, active
		FROM products
		WHERE sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.BrandID, &p.CategoryID, &p.Description, &p.PriceCents, &p.CostCents, &p.Active); err != nil {
			return nil, err
		}
		result[p.SKU] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	product.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, brand_id, category_id, description, price_cents, cost_cents, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
	`, product.SKU, product.Name, nullIfEmpty(product.BrandID), nullIfEmpty(product.CategoryID),
		product.Description, product.PriceCents, product.CostCents, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, brand_id = $3, category_id = $4, description = $5,
			price_cents = $6, cost_cents = $7, active = $8, updated_at = now()
		WHERE sku = $1
	`, product.SKU, product.Name, nullIfEmpty(product.BrandID), nullIfEmpty(product.CategoryID),
		product.Description, product.PriceCents, product.CostCents, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, sku string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE sku = $1`, sku)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreatePriceRule(ctx context.Context, rule domain.PriceRule) (*domain.PriceRule, error) {
	if rule.SKU == "" || rule.PromoPriceCents < 1 || !rule.EndsAt.After(rule.StartsAt) {
		return nil, store.ErrInvalidInput
	}
	if rule.ID == "" {
		rule.ID = xid.New("rule")
	}
	rule.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_rules (id, sku, promo_price_cents, starts_at, ends_at, active)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, rule.ID, rule.SKU, rule.PromoPriceCents, rule.StartsAt, rule.EndsAt, rule.Active)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := rule
	return &created, nil
}

func (s *Store) ListPriceRules(ctx context.Context, sku string) ([]domain.PriceRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, promo_price_cents, starts_at, ends_at, active
		FROM price_rules
		WHERE $1 = '' OR sku = $1
		ORDER BY starts_at
	`, sku)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]domain.PriceRule, 0, 16)
	for rows.Next() {
		var rule domain.PriceRule
		if err := rows.Scan(&rule.ID, &rule.SKU, &rule.PromoPriceCents, &rule.StartsAt, &rule.EndsAt, &rule.Active); err != nil {
			return nil, err
		}
		rule.StartsAt = rule.StartsAt.UTC()
		rule.EndsAt = rule.EndsAt.UTC()
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *Store) GetActivePromoPrice(ctx context.Context, sku string, at time.Time) (int64, bool, error) {
	var price int64
	err := s.db.QueryRowContext(ctx, `
		SELECT promo_price_cents
		FROM price_rules
		WHERE active = true AND sku = $1 AND starts_at <= $2 AND ends_at >= $2
		ORDER BY starts_at DESC
		LIMIT 1
	`, sku, at).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return price, true, nil
}

func (s *Store) ListWarehouses(ctx context.Context) ([]domain.Warehouse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, address, active
		FROM warehouses
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	warehouses := make([]domain.Warehouse, 0, 8)
	for rows.Next() {
		var w domain.Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.Address, &w.Active); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return warehouses, nil
}

func (s *Store) GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error) {
	var w domain.Warehouse
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, address, active
		FROM warehouses
		WHERE id = $1
	`, id).Scan(&w.ID, &w.Name, &w.Address, &w.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (s *Store) CreateWarehouse(ctx context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error) {
	if warehouse.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if warehouse.ID == "" {
		warehouse.ID = xid.New("alm")
	}
	warehouse.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warehouses (id, name, address, active)
		VALUES ($1,$2,$3,$4)
	`, warehouse.ID, warehouse.Name, warehouse.Address, warehouse.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := warehouse
	return &created, nil
}

func (s *Store) UpdateWarehouse(ctx context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error) {
	if warehouse.ID == "" || warehouse.Name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE warehouses
		SET name = $2, address = $3, active = $4
		WHERE id = $1
	`, warehouse.ID, warehouse.Name, warehouse.Address, warehouse.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := warehouse
	return &updated, nil
}

func (s *Store) DeleteWarehouse(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "warehouses", id)
}

func (s *Store) ListStock(ctx context.Context, warehouseID string) ([]domain.StockListRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.sku, p.name, st.warehouse_id, w.name, st.qty
		FROM stock st
		JOIN products p ON p.sku = st.sku
		JOIN warehouses w ON w.id = st.warehouse_id
		WHERE $1 = '' OR st.warehouse_id = $1
		ORDER BY w.name, p.name
	`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StockListRow, 0, 64)
	for rows.Next() {
		var row domain.StockListRow
		if err := rows.Scan(&row.SKU, &row.ProductName, &row.WarehouseID, &row.WarehouseName, &row.Qty); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetStockQty(ctx context.Context, sku string, warehouseID string) (int, error) {
	var qty int
	err := s.db.QueryRowContext(ctx, `
		SELECT qty
		FROM stock
		WHERE warehouse_id = $1 AND sku = $2
	`, warehouseID, sku).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return qty, nil
}

func (s *Store) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (*domain.StockRow, error) {
	if req.SKU == "" || req.WarehouseID == "" || req.Delta == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var qty int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO stock (warehouse_id, sku, qty)
		VALUES ($1,$2,$3)
		ON CONFLICT (warehouse_id, sku) DO UPDATE SET qty = stock.qty + EXCLUDED.qty
		RETURNING qty
	`, req.WarehouseID, req.SKU, req.Delta).Scan(&qty)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	movementType := domain.MovementAjusteEntrada
	if req.Delta < 0 {
		movementType = domain.MovementAjusteSalida
	}
	if err := insertMovement(ctx, tx, domain.InventoryMovement{
		ID:          xid.New("mov"),
		WarehouseID: req.WarehouseID,
		SKU:         req.SKU,
		Type:        movementType,
		Reference:   domain.MovementRefAjusteManual,
		Qty:         req.Delta,
		Note:        req.Reason,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	row := domain.StockRow{SKU: req.SKU, WarehouseID: req.WarehouseID, Qty: qty}
	return &row, nil
}

func (s *Store) TransferStock(ctx context.Context, req domain.TransferRequest) error {
	if req.SourceWarehouseID == "" || req.DestinationWarehouseID == "" || len(req.Lines) == 0 {
		return store.ErrInvalidInput
	}
	if req.SourceWarehouseID == req.DestinationWarehouseID {
		return store.ErrInvalidInput
	}
	for _, line := range req.Lines {
		if line.SKU == "" || line.Qty < 1 {
			return store.ErrInvalidInput
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, warehouseID := range []string{req.SourceWarehouseID, req.DestinationWarehouseID} {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM warehouses WHERE id = $1)`, warehouseID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("warehouse %s: %w", warehouseID, store.ErrNotFound)
		}
	}

	// Every line must be coverable by the source before any row changes.
	// Lines repeating a SKU draw from one balance, so the source must
	// cover the summed quantity per SKU.
	needBySKU := make(map[string]int, len(req.Lines))
	skus := make([]string, 0, len(req.Lines))
	for _, line := range req.Lines {
		if _, seen := needBySKU[line.SKU]; !seen {
			skus = append(skus, line.SKU)
		}
		needBySKU[line.SKU] += line.Qty
	}
	for _, sku := range skus {
		var qty int
		err := tx.QueryRowContext(ctx, `
			SELECT qty FROM stock
			WHERE warehouse_id = $1 AND sku = $2
			FOR UPDATE
		`, req.SourceWarehouseID, sku).Scan(&qty)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if qty < needBySKU[sku] {
			return fmt.Errorf("sku %s: %w", sku, store.ErrInsufficientStock)
		}
	}

	now := time.Now().UTC()
	reference := xid.New("transfer")
	for _, line := range req.Lines {
		_, err := tx.ExecContext(ctx, `
			UPDATE stock SET qty = qty - $3
			WHERE warehouse_id = $1 AND sku = $2
		`, req.SourceWarehouseID, line.SKU, line.Qty)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock (warehouse_id, sku, qty)
			VALUES ($1,$2,$3)
			ON CONFLICT (warehouse_id, sku) DO UPDATE SET qty = stock.qty + EXCLUDED.qty
		`, req.DestinationWarehouseID, line.SKU, line.Qty)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("sku %s: %w", line.SKU, store.ErrNotFound)
			}
			return err
		}

		if err := insertMovement(ctx, tx, domain.InventoryMovement{
			ID:          xid.New("mov"),
			WarehouseID: req.SourceWarehouseID,
			SKU:         line.SKU,
			Type:        domain.MovementTransferSalida,
			Reference:   reference,
			Qty:         -line.Qty,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if err := insertMovement(ctx, tx, domain.InventoryMovement{
			ID:          xid.New("mov"),
			WarehouseID: req.DestinationWarehouseID,
			SKU:         line.SKU,
			Type:        domain.MovementTransferEntrada,
			Reference:   reference,
			Qty:         line.Qty,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	conditions := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.SKU != "" {
		args = append(args, filter.SKU)
		conditions = append(conditions, fmt.Sprintf("sku = $%d", len(args)))
	}
	if filter.WarehouseID != "" {
		args = append(args, filter.WarehouseID)
		conditions = append(conditions, fmt.Sprintf("warehouse_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, warehouse_id, sku, type, COALESCE(reference,''), qty, unit_cost_cents, COALESCE(note,''), created_at
		FROM inventory_movements
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d
	`, where, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.InventoryMovement, 0, limit)
	for rows.Next() {
		var m domain.InventoryMovement
		if err := rows.Scan(&m.ID, &m.WarehouseID, &m.SKU, &m.Type, &m.Reference, &m.Qty, &m.UnitCostCents, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) GetOrCreateCart(ctx context.Context, token string, userID string) (*domain.Cart, error) {
	if token == "" {
		return nil, store.ErrInvalidInput
	}

	var cart domain.Cart
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO carts (token, user_id, created_at)
		VALUES ($1,$2,now())
		ON CONFLICT (token) DO UPDATE SET user_id = COALESCE(NULLIF(carts.user_id, ''), EXCLUDED.user_id)
		RETURNING token, COALESCE(user_id,''), created_at
	`, token, nullIfEmpty(userID)).Scan(&cart.Token, &cart.UserID, &cart.CreatedAt)
	if err != nil {
		return nil, err
	}
	cart.CreatedAt = cart.CreatedAt.UTC()
	return &cart, nil
}

func (s *Store) ListCartLines(ctx context.Context, cartToken string) ([]domain.CartLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cart_token, sku, qty, unit_price_cents
		FROM cart_lines
		WHERE cart_token = $1
		ORDER BY id
	`, cartToken)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0, 8)
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ID, &line.CartToken, &line.SKU, &line.Qty, &line.UnitPriceCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) UpsertCartLine(ctx context.Context, line domain.CartLine) (*domain.CartLine, error) {
	if line.CartToken == "" || line.SKU == "" || line.Qty < 1 || line.UnitPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if line.ID == "" {
		line.ID = xid.New("cline")
	}

	// Adding a SKU already in the cart bumps its quantity and keeps the
	// original price snapshot.
	var saved domain.CartLine
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cart_lines (id, cart_token, sku, qty, unit_price_cents)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (cart_token, sku) DO UPDATE SET qty = cart_lines.qty + EXCLUDED.qty
		RETURNING id, cart_token, sku, qty, unit_price_cents
	`, line.ID, line.CartToken, line.SKU, line.Qty, line.UnitPriceCents).
		Scan(&saved.ID, &saved.CartToken, &saved.SKU, &saved.Qty, &saved.UnitPriceCents)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &saved, nil
}

func (s *Store) SetCartLineQty(ctx context.Context, cartToken string, lineID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE cart_lines SET qty = $3
		WHERE cart_token = $1 AND id = $2
	`, cartToken, lineID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RemoveCartLine(ctx context.Context, cartToken string, lineID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cart_lines
		WHERE cart_token = $1 AND id = $2
	`, cartToken, lineID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ClearCart(ctx context.Context, cartToken string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_token = $1`, cartToken)
	return err
}

func (s *Store) CreateCheckout(ctx context.Context, order domain.Order, cartToken string, salesWarehouseID string) (*domain.Order, error) {
	if len(order.Items) == 0 || order.UserID == "" {
		return nil, store.ErrInvalidInput
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, number, user_id, subtotal_cents, tax_cents, total_cents, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, order.ID, order.Number, order.UserID, order.SubtotalCents, order.TaxCents, order.TotalCents, order.Status, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, sku, name, qty, unit_price_cents, total_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, order.ID, item.SKU, item.Name, item.Qty, item.UnitPriceCents, item.TotalCents)
		if err != nil {
			return nil, err
		}

		// Checkout never blocks on availability; the balance may go
		// negative and is reconciled through manual adjustments.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock (warehouse_id, sku, qty)
			VALUES ($1,$2,$3)
			ON CONFLICT (warehouse_id, sku) DO UPDATE SET qty = stock.qty + EXCLUDED.qty
		`, salesWarehouseID, item.SKU, -item.Qty)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, fmt.Errorf("sku %s: %w", item.SKU, store.ErrNotFound)
			}
			return nil, err
		}

		var costCents int64
		if err := tx.QueryRowContext(ctx, `SELECT cost_cents FROM products WHERE sku = $1`, item.SKU).Scan(&costCents); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("sku %s: %w", item.SKU, store.ErrNotFound)
			}
			return nil, err
		}
		if err := insertMovement(ctx, tx, domain.InventoryMovement{
			ID:            xid.New("mov"),
			WarehouseID:   salesWarehouseID,
			SKU:           item.SKU,
			Type:          domain.MovementVenta,
			Reference:     order.Number,
			Qty:           -item.Qty,
			UnitCostCents: costCents,
			CreatedAt:     order.CreatedAt,
		}); err != nil {
			return nil, err
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_token = $1`, cartToken); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := order
	return &created, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.scanOrderRow(s.db.QueryRowContext(ctx, `
		SELECT id, number, user_id, subtotal_cents, tax_cents, total_cents, status,
			COALESCE(payment_reference,''), paid_at, COALESCE(courier,''), COALESCE(tracking,''), shipped_at, created_at
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}

	items, err := s.listOrderLines(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string, page int, pageSize int) ([]domain.Order, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, user_id, subtotal_cents, tax_cents, total_cents, status,
			COALESCE(payment_reference,''), paid_at, COALESCE(courier,''), COALESCE(tracking,''), shipped_at, created_at,
			count(*) OVER() AS total
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	total := 0
	orders := make([]domain.Order, 0, pageSize)
	for rows.Next() {
		var o domain.Order
		var paidAt, shippedAt sql.NullTime
		if err := rows.Scan(&o.ID, &o.Number, &o.UserID, &o.SubtotalCents, &o.TaxCents, &o.TotalCents, &o.Status,
			&o.PaymentReference, &paidAt, &o.Courier, &o.Tracking, &shippedAt, &o.CreatedAt, &total); err != nil {
			return nil, 0, err
		}
		applyOrderTimes(&o, paidAt, shippedAt)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	conditions := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if query := strings.TrimSpace(filter.Query); query != "" {
		args = append(args, "%"+query+"%")
		conditions = append(conditions, fmt.Sprintf("(number ILIKE $%d OR user_id ILIKE $%d)", len(args), len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, number, user_id, subtotal_cents, tax_cents, total_cents, status,
			COALESCE(payment_reference,''), paid_at, COALESCE(courier,''), COALESCE(tracking,''), shipped_at, created_at
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d
	`, where, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		var o domain.Order
		var paidAt, shippedAt sql.NullTime
		if err := rows.Scan(&o.ID, &o.Number, &o.UserID, &o.SubtotalCents, &o.TaxCents, &o.TotalCents, &o.Status,
			&o.PaymentReference, &paidAt, &o.Courier, &o.Tracking, &shippedAt, &o.CreatedAt); err != nil {
			return nil, err
		}
		applyOrderTimes(&o, paidAt, shippedAt)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) SetOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error) {
	if !domain.IsOrderStatus(status) {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $2
		WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetOrderByID(ctx, id)
}

func (s *Store) MarkOrderPaid(ctx context.Context, id string, reference string, at time.Time) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_reference = $2, paid_at = $3,
			status = CASE WHEN status = $4 THEN $5 ELSE status END
		WHERE id = $1
	`, id, reference, at.UTC(), domain.OrderStatusPendiente, domain.OrderStatusPagado)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetOrderByID(ctx, id)
}

func (s *Store) RecordOrderShipment(ctx context.Context, id string, courier string, tracking string, at time.Time) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET courier = $2, tracking = $3, shipped_at = $4,
			status = CASE WHEN status = $5 THEN $6 ELSE status END
		WHERE id = $1
	`, id, courier, tracking, at.UTC(), domain.OrderStatusPagado, domain.OrderStatusEnviado)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetOrderByID(ctx, id)
}

func (s *Store) ListSales(ctx context.Context, from *time.Time, to *time.Time) ([]domain.SalesRow, error) {
	conditions := []string{"status = ANY($1)"}
	args := []any{[]string{domain.OrderStatusPagado, domain.OrderStatusCompletado}}
	if from != nil {
		args = append(args, *from)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT number, created_at, total_cents, status
		FROM orders
		WHERE %s
		ORDER BY created_at
	`, strings.Join(conditions, " AND ")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SalesRow, 0, 64)
	for rows.Next() {
		var row domain.SalesRow
		if err := rows.Scan(&row.Number, &row.Date, &row.TotalCents, &row.Status); err != nil {
			return nil, err
		}
		row.Date = row.Date.UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListSuppliers(ctx context.Context, query string, onlyActive *bool) ([]domain.Supplier, error) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if query = strings.TrimSpace(query); query != "" {
		args = append(args, "%"+query+"%")
		conditions = append(conditions, fmt.Sprintf(
			"(ruc ILIKE $%d OR name ILIKE $%d OR phone ILIKE $%d OR email ILIKE $%d)",
			len(args), len(args), len(args), len(args)))
	}
	if onlyActive != nil {
		args = append(args, *onlyActive)
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, ruc, name, COALESCE(contact,''), COALESCE(phone,''), COALESCE(email,''), COALESCE(address,''), active, version, created_at
		FROM suppliers
		%s
		ORDER BY name
	`, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sp domain.Supplier
		if err := rows.Scan(&sp.ID, &sp.RUC, &sp.Name, &sp.Contact, &sp.Phone, &sp.Email, &sp.Address, &sp.Active, &sp.Version, &sp.CreatedAt); err != nil {
			return nil, err
		}
		sp.CreatedAt = sp.CreatedAt.UTC()
		suppliers = append(suppliers, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var sp domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, ruc, name, COALESCE(contact,''), COALESCE(phone,''), COALESCE(email,''), COALESCE(address,''), active, version, created_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&sp.ID, &sp.RUC, &sp.Name, &sp.Contact, &sp.Phone, &sp.Email, &sp.Address, &sp.Active, &sp.Version, &sp.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sp.CreatedAt = sp.CreatedAt.UTC()
	return &sp, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.RUC == "" || supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("prov")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	supplier.Active = true
	supplier.Version = 1

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, ruc, name, contact, phone, email, address, active, version, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, supplier.ID, supplier.RUC, supplier.Name, nullIfEmpty(supplier.Contact), nullIfEmpty(supplier.Phone),
		nullIfEmpty(supplier.Email), nullIfEmpty(supplier.Address), supplier.Active, supplier.Version, supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := supplier
	return &created, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" || supplier.RUC == "" || supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}

	// The version in the request must match the stored row. A concurrent
	// edit bumps the version, so the stale request updates nothing and is
	// reported as not found.
	res, err := s.db.ExecContext(ctx, `
		UPDATE suppliers
		SET ruc = $3, name = $4, contact = $5, phone = $6, email = $7, address = $8, active = $9,
			version = version + 1
		WHERE id = $1 AND version = $2
	`, supplier.ID, supplier.Version, supplier.RUC, supplier.Name, nullIfEmpty(supplier.Contact),
		nullIfEmpty(supplier.Phone), nullIfEmpty(supplier.Email), nullIfEmpty(supplier.Address), supplier.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetSupplier(ctx, supplier.ID)
}

func (s *Store) DeleteSupplier(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "suppliers", id)
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.SupplierID == "" || po.WarehouseID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidInput
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, number, supplier_id, warehouse_id, currency, subtotal_cents, tax_cents, total_cents, status, issued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, po.ID, po.Number, po.SupplierID, po.WarehouseID, po.Currency, po.SubtotalCents, po.TaxCents, po.TotalCents, po.Status, po.IssuedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for _, line := range po.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_order_lines (purchase_order_id, sku, qty, unit_cost_cents, total_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, po.ID, line.SKU, line.Qty, line.UnitCostCents, line.TotalCents)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, fmt.Errorf("sku %s: %w", line.SKU, store.ErrNotFound)
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := po
	return &created, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, supplier_id, warehouse_id, currency, subtotal_cents, tax_cents, total_cents, status, issued_at
		FROM purchase_orders
		WHERE id = $1
	`, id).Scan(&po.ID, &po.Number, &po.SupplierID, &po.WarehouseID, &po.Currency,
		&po.SubtotalCents, &po.TaxCents, &po.TotalCents, &po.Status, &po.IssuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	po.IssuedAt = po.IssuedAt.UTC()

	items, err := s.listPurchaseOrderLines(ctx, id)
	if err != nil {
		return nil, err
	}
	po.Items = items
	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, supplier_id, warehouse_id, currency, subtotal_cents, tax_cents, total_cents, status, issued_at
		FROM purchase_orders
		WHERE $1 = '' OR status = $1
		ORDER BY issued_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.PurchaseOrder, 0, limit)
	for rows.Next() {
		var po domain.PurchaseOrder
		if err := rows.Scan(&po.ID, &po.Number, &po.SupplierID, &po.WarehouseID, &po.Currency,
			&po.SubtotalCents, &po.TaxCents, &po.TotalCents, &po.Status, &po.IssuedAt); err != nil {
			return nil, err
		}
		po.IssuedAt = po.IssuedAt.UTC()
		result = append(result, po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		items, err := s.listPurchaseOrderLines(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Items = items
	}
	return result, nil
}

func (s *Store) CreateReceipt(ctx context.Context, receipt domain.Receipt) (*domain.PurchaseOrder, error) {
	if receipt.PurchaseOrderID == "" || len(receipt.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, line := range receipt.Items {
		if line.SKU == "" || line.QtyReceived < 1 {
			return nil, store.ErrInvalidInput
		}
	}
	if receipt.ID == "" {
		receipt.ID = xid.New("rec")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var poNumber, poStatus, warehouseID string
	err = tx.QueryRowContext(ctx, `
		SELECT number, status, warehouse_id
		FROM purchase_orders
		WHERE id = $1
		FOR UPDATE
	`, receipt.PurchaseOrderID).Scan(&poNumber, &poStatus, &warehouseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if poStatus == domain.POStatusCompletada {
		return nil, fmt.Errorf("purchase order %s already completed: %w", poNumber, store.ErrInvalidInput)
	}

	orderedBySKU := map[string]int{}
	costBySKU := map[string]int64{}
	lineRows, err := tx.QueryContext(ctx, `
		SELECT sku, qty, unit_cost_cents
		FROM purchase_order_lines
		WHERE purchase_order_id = $1
	`, receipt.PurchaseOrderID)
	if err != nil {
		return nil, err
	}
	for lineRows.Next() {
		var sku string
		var qty int
		var cost int64
		if err := lineRows.Scan(&sku, &qty, &cost); err != nil {
			lineRows.Close()
			return nil, err
		}
		orderedBySKU[sku] += qty
		costBySKU[sku] = cost
	}
	if err := lineRows.Err(); err != nil {
		lineRows.Close()
		return nil, err
	}
	lineRows.Close()

	for _, line := range receipt.Items {
		if _, onOrder := orderedBySKU[line.SKU]; !onOrder {
			return nil, fmt.Errorf("sku %s is not on purchase order %s: %w", line.SKU, poNumber, store.ErrInvalidInput)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts (id, purchase_order_id, reference, note, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, receipt.ID, receipt.PurchaseOrderID, nullIfEmpty(receipt.Reference), nullIfEmpty(receipt.Note), receipt.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, line := range receipt.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO receipt_lines (receipt_id, sku, qty_received)
			VALUES ($1,$2,$3)
		`, receipt.ID, line.SKU, line.QtyReceived)
		if err != nil {
			return nil, err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock (warehouse_id, sku, qty)
			VALUES ($1,$2,$3)
			ON CONFLICT (warehouse_id, sku) DO UPDATE SET qty = stock.qty + EXCLUDED.qty
		`, warehouseID, line.SKU, line.QtyReceived)
		if err != nil {
			return nil, err
		}

		if err := insertMovement(ctx, tx, domain.InventoryMovement{
			ID:            xid.New("mov"),
			WarehouseID:   warehouseID,
			SKU:           line.SKU,
			Type:          domain.MovementCompraRecepcion,
			Reference:     receipt.ID,
			Qty:           line.QtyReceived,
			UnitCostCents: costBySKU[line.SKU],
			Note:          receipt.Reference,
			CreatedAt:     receipt.CreatedAt,
		}); err != nil {
			return nil, err
		}
	}

	// Recompute status from the full receipt history: complete only when
	// every ordered SKU has been received in full.
	receivedBySKU := map[string]int{}
	receivedRows, err := tx.QueryContext(ctx, `
		SELECT rl.sku, SUM(rl.qty_received)
		FROM receipt_lines rl
		JOIN receipts r ON r.id = rl.receipt_id
		WHERE r.purchase_order_id = $1
		GROUP BY rl.sku
	`, receipt.PurchaseOrderID)
	if err != nil {
		return nil, err
	}
	for receivedRows.Next() {
		var sku string
		var qty int
		if err := receivedRows.Scan(&sku, &qty); err != nil {
			receivedRows.Close()
			return nil, err
		}
		receivedBySKU[sku] = qty
	}
	if err := receivedRows.Err(); err != nil {
		receivedRows.Close()
		return nil, err
	}
	receivedRows.Close()

	newStatus := domain.POStatusCompletada
	for sku, ordered := range orderedBySKU {
		if receivedBySKU[sku] < ordered {
			newStatus = domain.POStatusRecibidaParcial
			break
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $2
		WHERE id = $1
	`, receipt.PurchaseOrderID, newStatus)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetPurchaseOrder(ctx, receipt.PurchaseOrderID)
}

func (s *Store) ListReceipts(ctx context.Context, purchaseOrderID string) ([]domain.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, purchase_order_id, COALESCE(reference,''), COALESCE(note,''), created_at
		FROM receipts
		WHERE purchase_order_id = $1
		ORDER BY created_at
	`, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]domain.Receipt, 0, 8)
	for rows.Next() {
		var r domain.Receipt
		if err := rows.Scan(&r.ID, &r.PurchaseOrderID, &r.Reference, &r.Note, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range receipts {
		lineRows, err := s.db.QueryContext(ctx, `
			SELECT sku, qty_received
			FROM receipt_lines
			WHERE receipt_id = $1
			ORDER BY sku
		`, receipts[i].ID)
		if err != nil {
			return nil, err
		}
		for lineRows.Next() {
			var line domain.ReceiptLine
			if err := lineRows.Scan(&line.SKU, &line.QtyReceived); err != nil {
				lineRows.Close()
				return nil, err
			}
			receipts[i].Items = append(receipts[i].Items, line)
		}
		if err := lineRows.Err(); err != nil {
			lineRows.Close()
			return nil, err
		}
		lineRows.Close()
	}
	return receipts, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) deleteByID(ctx context.Context, table string, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) scanOrderRow(row *sql.Row) (*domain.Order, error) {
	var o domain.Order
	var paidAt, shippedAt sql.NullTime
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &o.SubtotalCents, &o.TaxCents, &o.TotalCents, &o.Status,
		&o.PaymentReference, &paidAt, &o.Courier, &o.Tracking, &shippedAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	applyOrderTimes(&o, paidAt, shippedAt)
	return &o, nil
}

func (s *Store) listOrderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, qty, unit_price_cents, total_cents
		FROM order_lines
		WHERE order_id = $1
		ORDER BY sku
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderLine, 0, 8)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.SKU, &line.Name, &line.Qty, &line.UnitPriceCents, &line.TotalCents); err != nil {
			return nil, err
		}
		items = append(items, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) listPurchaseOrderLines(ctx context.Context, purchaseOrderID string) ([]domain.PurchaseOrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, qty, unit_cost_cents, total_cents
		FROM purchase_order_lines
		WHERE purchase_order_id = $1
		ORDER BY sku
	`, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderLine, 0, 8)
	for rows.Next() {
		var line domain.PurchaseOrderLine
		if err := rows.Scan(&line.SKU, &line.Qty, &line.UnitCostCents, &line.TotalCents); err != nil {
			return nil, err
		}
		items = append(items, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func insertMovement(ctx context.Context, tx *sql.Tx, m domain.InventoryMovement) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, warehouse_id, sku, type, reference, qty, unit_cost_cents, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, m.ID, m.WarehouseID, m.SKU, m.Type, nullIfEmpty(m.Reference), m.Qty, m.UnitCostCents, nullIfEmpty(m.Note), m.CreatedAt)
	return err
}

func applyOrderTimes(o *domain.Order, paidAt sql.NullTime, shippedAt sql.NullTime) {
	o.CreatedAt = o.CreatedAt.UTC()
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		o.PaidAt = &t
	}
	if shippedAt.Valid {
		t := shippedAt.Time.UTC()
		o.ShippedAt = &t
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

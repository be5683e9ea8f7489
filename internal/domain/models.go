package domain

import "time"

type Brand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	BrandID     string `json:"brand_id"`
	CategoryID  string `json:"category_id"`
	Description string `json:"description,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	CostCents   int64  `json:"cost_cents,omitempty"`
	Active      bool   `json:"active"`
}

type ProductCreateRequest struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	BrandID     string `json:"brand_id"`
	CategoryID  string `json:"category_id"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	CostCents   int64  `json:"cost_cents"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	BrandID     *string `json:"brand_id,omitempty"`
	CategoryID  *string `json:"category_id,omitempty"`
	Description *string `json:"description,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	CostCents   *int64  `json:"cost_cents,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// PriceRule is a time-windowed promotional price for one product. While a
// rule is active its price replaces the list price at cart-add time.
type PriceRule struct {
	ID              string    `json:"id"`
	SKU             string    `json:"sku"`
	PromoPriceCents int64     `json:"promo_price_cents"`
	StartsAt        time.Time `json:"starts_at"`
	EndsAt          time.Time `json:"ends_at"`
	Active          bool      `json:"active"`
}

type PriceRuleCreateRequest struct {
	SKU             string `json:"sku"`
	PromoPriceCents int64  `json:"promo_price_cents"`
	StartsAt        string `json:"starts_at"`
	EndsAt          string `json:"ends_at"`
}

type Warehouse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Active  bool   `json:"active"`
}

type WarehouseCreateRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type WarehouseUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Address *string `json:"address,omitempty"`
	Active  *bool   `json:"active,omitempty"`
}

// StockRow is the quantity of one product in one warehouse. Rows are
// created lazily on the first movement that touches the pair.
type StockRow struct {
	SKU         string `json:"sku"`
	WarehouseID string `json:"warehouse_id"`
	Qty         int    `json:"qty"`
}

// StockListRow is a stock row joined with product and warehouse names for
// the admin stock grid.
type StockListRow struct {
	SKU           string `json:"sku"`
	ProductName   string `json:"product_name"`
	WarehouseID   string `json:"warehouse_id"`
	WarehouseName string `json:"warehouse_name"`
	Qty           int    `json:"qty"`
}

// InventoryMovement is one append-only ledger entry. Qty is signed:
// negative for outgoing stock, positive for incoming. Entries are never
// updated or deleted.
type InventoryMovement struct {
	ID            string    `json:"id"`
	WarehouseID   string    `json:"warehouse_id"`
	SKU           string    `json:"sku"`
	Type          string    `json:"type"`
	Reference     string    `json:"reference,omitempty"`
	Qty           int       `json:"qty"`
	UnitCostCents int64     `json:"unit_cost_cents"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type MovementFilter struct {
	SKU         string
	WarehouseID string
	Type        string
	Limit       int
}

type StockAdjustmentRequest struct {
	SKU         string `json:"sku"`
	WarehouseID string `json:"warehouse_id"`
	Delta       int    `json:"delta"`
	Reason      string `json:"reason"`
}

type TransferLine struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type TransferRequest struct {
	SourceWarehouseID      string         `json:"source_warehouse_id"`
	DestinationWarehouseID string         `json:"destination_warehouse_id"`
	Lines                  []TransferLine `json:"lines"`
}

type Cart struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CartLine snapshots the unit price at the moment the product was added;
// later list-price or promo changes do not touch existing lines.
type CartLine struct {
	ID             string `json:"id"`
	CartToken      string `json:"-"`
	SKU            string `json:"sku"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type CartViewLine struct {
	ID             string `json:"id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}

type CartView struct {
	Token         string         `json:"token"`
	Lines         []CartViewLine `json:"lines"`
	SubtotalCents int64          `json:"subtotal_cents"`
	TaxCents      int64          `json:"tax_cents"`
	TotalCents    int64          `json:"total_cents"`
}

type CartAddRequest struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type CartUpdateRequest struct {
	Qty int `json:"qty"`
}

type OrderLine struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}

type Order struct {
	ID               string      `json:"id"`
	Number           string      `json:"number"`
	UserID           string      `json:"user_id"`
	SubtotalCents    int64       `json:"subtotal_cents"`
	TaxCents         int64       `json:"tax_cents"`
	TotalCents       int64       `json:"total_cents"`
	Status           string      `json:"status"`
	PaymentReference string      `json:"payment_reference,omitempty"`
	PaidAt           *time.Time  `json:"paid_at,omitempty"`
	Courier          string      `json:"courier,omitempty"`
	Tracking         string      `json:"tracking,omitempty"`
	ShippedAt        *time.Time  `json:"shipped_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	Items            []OrderLine `json:"items,omitempty"`
}

type OrderFilter struct {
	Query  string
	Status string
	From   *time.Time
	To     *time.Time
	Limit  int
}

type CheckoutPreview struct {
	Lines         []CartViewLine `json:"lines"`
	SubtotalCents int64          `json:"subtotal_cents"`
	TaxCents      int64          `json:"tax_cents"`
	TotalCents    int64          `json:"total_cents"`
	TaxRate       float64        `json:"tax_rate_percent"`
}

type CheckoutResponse struct {
	Order Order `json:"order"`
}

type OrderStatusRequest struct {
	Status string `json:"status"`
}

type OrderPayRequest struct {
	Reference string `json:"reference"`
}

type OrderShipRequest struct {
	Courier  string `json:"courier"`
	Tracking string `json:"tracking"`
}

type Supplier struct {
	ID        string    `json:"id"`
	RUC       string    `json:"ruc"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	Active    bool      `json:"active"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	RUC     string `json:"ruc"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type SupplierUpdateRequest struct {
	RUC     string `json:"ruc"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Active  bool   `json:"active"`
	Version int    `json:"version"`
}

type PurchaseOrderLine struct {
	SKU           string `json:"sku"`
	Qty           int    `json:"qty"`
	UnitCostCents int64  `json:"unit_cost_cents"`
	TotalCents    int64  `json:"total_cents"`
}

type PurchaseOrder struct {
	ID            string              `json:"id"`
	Number        string              `json:"number"`
	SupplierID    string              `json:"supplier_id"`
	WarehouseID   string              `json:"warehouse_id"`
	Currency      string              `json:"currency"`
	SubtotalCents int64               `json:"subtotal_cents"`
	TaxCents      int64               `json:"tax_cents"`
	TotalCents    int64               `json:"total_cents"`
	Status        string              `json:"status"`
	IssuedAt      time.Time           `json:"issued_at"`
	Items         []PurchaseOrderLine `json:"items"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID  string              `json:"supplier_id"`
	WarehouseID string              `json:"warehouse_id"`
	Lines       []PurchaseOrderLine `json:"lines"`
}

type ReceiptLine struct {
	SKU         string `json:"sku"`
	QtyReceived int    `json:"qty_received"`
}

type Receipt struct {
	ID              string        `json:"id"`
	PurchaseOrderID string        `json:"purchase_order_id"`
	Reference       string        `json:"reference,omitempty"`
	Note            string        `json:"note,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	Items           []ReceiptLine `json:"items"`
}

type ReceiveRequest struct {
	Reference string        `json:"reference"`
	Note      string        `json:"note"`
	Lines     []ReceiptLine `json:"lines"`
}

type SalesRow struct {
	Number     string    `json:"numero"`
	Date       time.Time `json:"fecha"`
	TotalCents int64     `json:"total_cents"`
	Status     string    `json:"estado"`
}

type SalesReport struct {
	Rows       []SalesRow `json:"rows"`
	TotalCents int64      `json:"total_cents"`
}

type CatalogFilter struct {
	CategoryID    string
	BrandID       string
	Query         string
	MinPriceCents int64
	MaxPriceCents int64
	Sort          string
	Page          int
	PageSize      int
	// IncludeInactive is only honored for the admin product list; the
	// public catalog always filters to active products.
	IncludeInactive bool
}

type CatalogProduct struct {
	Product
	EffectivePriceCents int64 `json:"effective_price_cents"`
}

type CatalogPage struct {
	Items      []CatalogProduct `json:"items"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	Brands     []Brand          `json:"brands"`
	Categories []Category       `json:"categories"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// Order statuses. The source data kept the status as free text mutated by
// whoever clicked last; here the values are enumerated and transitions
// validated.
const (
	OrderStatusPendiente  = "Pendiente"
	OrderStatusPagado     = "Pagado"
	OrderStatusEnviado    = "Enviado"
	OrderStatusCompletado = "Completado"
	OrderStatusCancelado  = "Cancelado"
)

// Purchase order statuses, recomputed from receipts.
const (
	POStatusEmitida         = "Emitida"
	POStatusRecibidaParcial = "Recibida Parcial"
	POStatusCompletada      = "Completada"
)

// Inventory movement type tags, matching the ledger vocabulary of the
// existing schema.
const (
	MovementVenta           = "VENTA"
	MovementAjusteEntrada   = "AJUSTE_ENTRADA"
	MovementAjusteSalida    = "AJUSTE_SALIDA"
	MovementTransferSalida  = "TRANSFER_SALIDA"
	MovementTransferEntrada = "TRANSFER_ENTRADA"
	MovementCompraRecepcion = "COMPRA_RECEPCION"
)

const MovementRefAjusteManual = "AJUSTE_MANUAL"

var orderTransitions = map[string][]string{
	OrderStatusPendiente: {OrderStatusPagado, OrderStatusCancelado},
	OrderStatusPagado:    {OrderStatusEnviado, OrderStatusCancelado},
	OrderStatusEnviado:   {OrderStatusCompletado},
}

// CanTransitionOrder reports whether an order may move from one status to
// another.
func CanTransitionOrder(from string, to string) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsOrderStatus reports whether value is one of the known order statuses.
func IsOrderStatus(value string) bool {
	switch value {
	case OrderStatusPendiente, OrderStatusPagado, OrderStatusEnviado,
		OrderStatusCompletado, OrderStatusCancelado:
		return true
	}
	return false
}

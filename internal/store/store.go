package store

import (
	"context"
	"errors"
	"time"

	"tiendapc/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
)

// Repository is the persistence contract shared by the postgres and
// in-memory stores. Multi-row mutations (checkout, receiving, transfer)
// are atomic inside the implementation.
type Repository interface {
	ListBrands(ctx context.Context) ([]domain.Brand, error)
	CreateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error)
	DeleteBrand(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListProducts(ctx context.Context, filter domain.CatalogFilter) ([]domain.Product, int, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, sku string) error

	CreatePriceRule(ctx context.Context, rule domain.PriceRule) (*domain.PriceRule, error)
	ListPriceRules(ctx context.Context, sku string) ([]domain.PriceRule, error)
	GetActivePromoPrice(ctx context.Context, sku string, at time.Time) (int64, bool, error)

	ListWarehouses(ctx context.Context) ([]domain.Warehouse, error)
	GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error)
	CreateWarehouse(ctx context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error)
	UpdateWarehouse(ctx context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error)
	DeleteWarehouse(ctx context.Context, id string) error

	ListStock(ctx context.Context, warehouseID string) ([]domain.StockListRow, error)
	GetStockQty(ctx context.Context, sku string, warehouseID string) (int, error)
	AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (*domain.StockRow, error)
	TransferStock(ctx context.Context, req domain.TransferRequest) error
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error)

	GetOrCreateCart(ctx context.Context, token string, userID string) (*domain.Cart, error)
	ListCartLines(ctx context.Context, cartToken string) ([]domain.CartLine, error)
	UpsertCartLine(ctx context.Context, line domain.CartLine) (*domain.CartLine, error)
	SetCartLineQty(ctx context.Context, cartToken string, lineID string, qty int) error
	RemoveCartLine(ctx context.Context, cartToken string, lineID string) error
	ClearCart(ctx context.Context, cartToken string) error

	// CreateCheckout persists the order header and lines, ensures a stock
	// row per line in the sales warehouse, appends one negative VENTA
	// movement per line and deletes the cart lines, all atomically. Stock
	// is allowed to go negative.
	CreateCheckout(ctx context.Context, order domain.Order, cartToken string, salesWarehouseID string) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID string, page int, pageSize int) ([]domain.Order, int, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	SetOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error)
	MarkOrderPaid(ctx context.Context, id string, reference string, at time.Time) (*domain.Order, error)
	RecordOrderShipment(ctx context.Context, id string, courier string, tracking string, at time.Time) (*domain.Order, error)
	ListSales(ctx context.Context, from *time.Time, to *time.Time) ([]domain.SalesRow, error)

	ListSuppliers(ctx context.Context, query string, onlyActive *bool) ([]domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	// UpdateSupplier matches on id AND version; a stale version behaves as
	// not found.
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id string) error

	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error)
	// CreateReceipt records one receiving event, increments stock in the
	// order's warehouse, appends positive COMPRA_RECEPCION movements and
	// recomputes the order status, all atomically. Returns the updated
	// purchase order.
	CreateReceipt(ctx context.Context, receipt domain.Receipt) (*domain.PurchaseOrder, error)
	ListReceipts(ctx context.Context, purchaseOrderID string) ([]domain.Receipt, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

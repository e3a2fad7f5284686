package store

import (
	"context"
	"errors"
	"time"

	"befit/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
	ErrConflict = errors.New("already exists")
)

// Repository owns every mutable collection of the store. The service
// layer is its only consumer; callers receive value copies, never live
// references into the collections.
type Repository interface {
	// Users
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	DeleteUser(ctx context.Context, userID string) error

	// Products
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetProductByReference(ctx context.Context, reference string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	// AdjustStock decrements stock by delta (negative delta restocks),
	// clamping the result at zero. Targets the variation when
	// variationID is set and the product has variations, the flat count
	// otherwise. Returns the resulting stock value.
	AdjustStock(ctx context.Context, productID string, variationID string, delta int) (int, error)

	// Suppliers
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetSupplier(ctx context.Context, supplierID string) (*domain.Supplier, error)
	GetSupplierByName(ctx context.Context, name string) (*domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, supplierID string) error

	// Catalog services
	ListCatalogServices(ctx context.Context) ([]domain.CatalogService, error)
	CreateCatalogService(ctx context.Context, svc domain.CatalogService) (*domain.CatalogService, error)
	UpdateCatalogService(ctx context.Context, svc domain.CatalogService) (*domain.CatalogService, error)
	DeleteCatalogService(ctx context.Context, serviceID string) error

	// Operations
	ListOperations(ctx context.Context) ([]domain.Operation, error)
	CreateOperation(ctx context.Context, op domain.Operation) (*domain.Operation, error)
	UpdateOperation(ctx context.Context, op domain.Operation) (*domain.Operation, error)
	DeleteOperation(ctx context.Context, operationID string) error

	// Clients and their debts
	ListClients(ctx context.Context) ([]domain.Client, error)
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)
	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	DeleteClient(ctx context.Context, clientID string) error
	AppendDebts(ctx context.Context, clientID string, debts []domain.ClientDebt) error
	MarkDebtPaid(ctx context.Context, clientID string, debtID string, at time.Time) (*domain.ClientDebt, error)
	MarkAllDebtsPaid(ctx context.Context, clientID string, at time.Time) ([]domain.ClientDebt, error)
	UpdateDebtDueDate(ctx context.Context, clientID string, debtID string, due time.Time) error
	SumUnpaidDebts(ctx context.Context) (int64, error)

	// Sales (most-recent-first)
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)
	InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	SetSaleStatus(ctx context.Context, saleID string, status string) (*domain.Sale, error)

	// Budgets
	ListBudgets(ctx context.Context) ([]domain.Budget, error)
	GetBudget(ctx context.Context, budgetID string) (*domain.Budget, error)
	CreateBudget(ctx context.Context, budget domain.Budget) (*domain.Budget, error)
	UpdateBudget(ctx context.Context, budget domain.Budget) (*domain.Budget, error)
	DeleteBudget(ctx context.Context, budgetID string) error
	SetBudgetStatus(ctx context.Context, budgetID string, status string) error

	// Cash session. OpenCashSession replaces the whole session (the
	// previous movement log is discarded); AppendCashMovement appends
	// the movement and applies balanceDelta to the running balance in
	// the same step; CloseCashSession stamps the close time and appends
	// the snapshot movement without touching the balance.
	GetCashSession(ctx context.Context) (*domain.CashSession, error)
	OpenCashSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error)
	AppendCashMovement(ctx context.Context, movement domain.CashMovement, balanceDelta int64) (*domain.CashSession, error)
	CloseCashSession(ctx context.Context, at time.Time, movement domain.CashMovement) (*domain.CashSession, error)

	// Audit trail (append-only, most-recent-first)
	AppendAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	// Store settings
	GetStoreConfig(ctx context.Context) (*domain.StoreConfig, error)
	UpdateStoreConfig(ctx context.Context, cfg domain.StoreConfig) error
}

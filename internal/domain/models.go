package domain

import "time"

// Roles mirror the store's staff hierarchy. Role checks in the service
// layer are string comparisons against these values.
const (
	RoleAdmin   = "ADMIN"
	RoleCashier = "CAIXA"
	RoleManager = "GERENTE"
)

type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserAccount is the internal persistence model for auth credentials.
type UserAccount struct {
	ID           string
	Name         string
	Username     string
	PasswordHash string
	Role         string
	Permissions  []string
	Active       bool
	CreatedAt    time.Time
}

type UserCreateRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

type Actor struct {
	UserID   string
	Username string
	Name     string
	Role     string
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductVariation struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Stock     int    `json:"stock"`
}

// Product carries a flat Stock count that is authoritative only when
// Variations is empty; with variations present the flat count stays 0
// and per-variation stock is authoritative.
type Product struct {
	ID         string             `json:"id"`
	Reference  string             `json:"reference"`
	Name       string             `json:"name"`
	PriceCents int64              `json:"price_cents"`
	Stock      int                `json:"stock"`
	SupplierID string             `json:"supplier_id,omitempty"`
	Variations []ProductVariation `json:"variations"`
	ImageURL   string             `json:"image_url,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// TotalStock sums variation stock when variations exist, otherwise the
// flat count.
func (p Product) TotalStock() int {
	if len(p.Variations) == 0 {
		return p.Stock
	}
	total := 0
	for _, v := range p.Variations {
		total += v.Stock
	}
	return total
}

type ProductCreateRequest struct {
	Reference  string             `json:"reference"`
	Name       string             `json:"name"`
	PriceCents int64              `json:"price_cents"`
	Stock      int                `json:"stock"`
	SupplierID string             `json:"supplier_id,omitempty"`
	Variations []ProductVariation `json:"variations,omitempty"`
	ImageURL   string             `json:"image_url,omitempty"`
}

type ProductUpdateRequest struct {
	Reference  *string             `json:"reference,omitempty"`
	Name       *string             `json:"name,omitempty"`
	PriceCents *int64              `json:"price_cents,omitempty"`
	Stock      *int                `json:"stock,omitempty"`
	SupplierID *string             `json:"supplier_id,omitempty"`
	Variations *[]ProductVariation `json:"variations,omitempty"`
	ImageURL   *string             `json:"image_url,omitempty"`
}

// CatalogService is a billable service offering (the store sells a few
// services alongside goods). Named to avoid colliding with the service
// package.
type CatalogService struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ActivityCode  string `json:"activity_code"`
	CNAE          string `json:"cnae,omitempty"`
	PriceCents    int64  `json:"price_cents"`
	MunicipalCode string `json:"municipal_code,omitempty"`
}

const (
	OperationInbound  = "ENTRADA"
	OperationOutbound = "SAIDA"
)

type Operation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	MovesStock  bool   `json:"moves_stock"`
	Active      bool   `json:"active"`
	CFOP        string `json:"cfop,omitempty"`
}

type ClientDebt struct {
	ID                string     `json:"id"`
	SaleID            string     `json:"sale_id"`
	DueDate           time.Time  `json:"due_date"`
	AmountCents       int64      `json:"amount_cents"`
	InstallmentNumber int        `json:"installment_number"`
	TotalInstallments int        `json:"total_installments"`
	Paid              bool       `json:"paid"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
}

type Client struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Document string       `json:"document"`
	Phone    string       `json:"phone"`
	City     string       `json:"city"`
	Active   bool         `json:"active"`
	Debts    []ClientDebt `json:"debts"`
}

// UnpaidCents sums the client's outstanding installments.
func (c Client) UnpaidCents() int64 {
	var total int64
	for _, d := range c.Debts {
		if !d.Paid {
			total += d.AmountCents
		}
	}
	return total
}

type ClientCreateRequest struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
	City     string `json:"city"`
}

type ClientUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Document *string `json:"document,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	City     *string `json:"city,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

// Payment method tags, kept in the original Portuguese wire values.
const (
	PaymentCash   = "DINHEIRO"
	PaymentCredit = "CARTAO_CREDITO"
	PaymentDebit  = "CARTAO_DEBITO"
	PaymentPix    = "PIX"
	PaymentCarne  = "CARNE"
)

type PaymentPart struct {
	Method       string `json:"method"`
	AmountCents  int64  `json:"amount_cents"`
	Installments int    `json:"installments,omitempty"`
}

type PaymentDetails struct {
	Parts          []PaymentPart `json:"parts"`
	TotalPaidCents int64         `json:"total_paid_cents"`
	ChangeCents    int64         `json:"change_cents"`
}

// CartItem is a snapshot of the product (and optional variation) at the
// moment it entered the cart; later price or catalog edits do not
// rewrite it.
type CartItem struct {
	UID            string `json:"uid"`
	ProductID      string `json:"product_id"`
	Reference      string `json:"reference"`
	ProductName    string `json:"product_name"`
	VariationID    string `json:"variation_id,omitempty"`
	Color          string `json:"color,omitempty"`
	Size           string `json:"size,omitempty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

const (
	SaleCompleted = "COMPLETED"
	SaleCancelled = "CANCELLED"
)

type Sale struct {
	ID             string         `json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	ClientID       string         `json:"client_id,omitempty"`
	ClientName     string         `json:"client_name,omitempty"`
	FiscalDocument string         `json:"fiscal_document,omitempty"`
	ShippingCents  int64          `json:"shipping_cents,omitempty"`
	TotalCents     int64          `json:"total_cents"`
	Items          []CartItem     `json:"items"`
	Payment        PaymentDetails `json:"payment"`
	Status         string         `json:"status"`
	OriginBudgetID string         `json:"origin_budget_id,omitempty"`
}

type RecordSaleRequest struct {
	ClientID       string        `json:"client_id,omitempty"`
	FiscalDocument string        `json:"fiscal_document,omitempty"`
	ShippingCents  int64         `json:"shipping_cents,omitempty"`
	Items          []CartItem    `json:"items"`
	Payments       []PaymentPart `json:"payments"`
	OriginBudgetID string        `json:"origin_budget_id,omitempty"`
}

// RecordSaleResult surfaces the fail-soft paths of settlement: a cash
// sale against a closed register keeps CashMovementRecorded false, and
// Carnê parts without a client turn up in SkippedCarneParts instead of
// producing debts.
type RecordSaleResult struct {
	Sale                 Sale  `json:"sale"`
	ChangeCents          int64 `json:"change_cents"`
	NetCashCents         int64 `json:"net_cash_cents"`
	CashMovementRecorded bool  `json:"cash_movement_recorded"`
	DebtsCreated         int   `json:"debts_created"`
	SkippedCarneParts    int   `json:"skipped_carne_parts"`
}

// Cash movement types. OPEN carries the starting float, CLOSE a final
// balance snapshot; only SALE, WITHDRAWAL, DEPOSIT and DEBT_PAYMENT
// move the balance after opening.
const (
	MovementOpen        = "OPEN"
	MovementClose       = "CLOSE"
	MovementSale        = "SALE"
	MovementWithdrawal  = "WITHDRAWAL"
	MovementDeposit     = "DEPOSIT"
	MovementDebtPayment = "DEBT_PAYMENT"
)

type CashMovement struct {
	ID          string    `json:"id"`
	At          time.Time `json:"at"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description"`
}

// SignedCents is the movement's contribution to the running balance.
// OPEN and CLOSE contribute nothing: OPEN's amount already is the start
// balance and CLOSE is a snapshot.
func (m CashMovement) SignedCents() int64 {
	switch m.Type {
	case MovementWithdrawal:
		return -m.AmountCents
	case MovementSale, MovementDeposit, MovementDebtPayment:
		return m.AmountCents
	default:
		return 0
	}
}

type CashSession struct {
	Open              bool           `json:"open"`
	OpenedAt          *time.Time     `json:"opened_at,omitempty"`
	ClosedAt          *time.Time     `json:"closed_at,omitempty"`
	StartBalanceCents int64          `json:"start_balance_cents"`
	BalanceCents      int64          `json:"balance_cents"`
	Movements         []CashMovement `json:"movements"`
}

const (
	BudgetOpen      = "ABERTO"
	BudgetApproved  = "APROVADO"
	BudgetCancelled = "CANCELADO"
	BudgetConverted = "CONVERTIDO_VENDA"
)

type Budget struct {
	ID              string     `json:"id"`
	IssuedAt        time.Time  `json:"issued_at"`
	ValidUntil      time.Time  `json:"valid_until"`
	ClientID        string     `json:"client_id,omitempty"`
	ClientName      string     `json:"client_name"`
	ShippingCents   int64      `json:"shipping_cents,omitempty"`
	DeliveryAddress string     `json:"delivery_address,omitempty"`
	TotalCents      int64      `json:"total_cents"`
	Items           []CartItem `json:"items"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
}

type BudgetCreateRequest struct {
	ClientID        string     `json:"client_id,omitempty"`
	ClientName      string     `json:"client_name"`
	ShippingCents   int64      `json:"shipping_cents,omitempty"`
	DeliveryAddress string     `json:"delivery_address,omitempty"`
	ValidityDays    int        `json:"validity_days,omitempty"`
	Items           []CartItem `json:"items"`
	Notes           string     `json:"notes,omitempty"`
}

type BudgetUpdateRequest struct {
	ClientID        *string     `json:"client_id,omitempty"`
	ClientName      *string     `json:"client_name,omitempty"`
	ShippingCents   *int64      `json:"shipping_cents,omitempty"`
	DeliveryAddress *string     `json:"delivery_address,omitempty"`
	ValidUntil      *time.Time  `json:"valid_until,omitempty"`
	Items           *[]CartItem `json:"items,omitempty"`
	Status          *string     `json:"status,omitempty"`
	Notes           *string     `json:"notes,omitempty"`
}

// ConvertBudgetRequest settles a budget as a sale. When Payments is
// empty the whole total is taken as a single cash payment.
type ConvertBudgetRequest struct {
	Payments       []PaymentPart `json:"payments,omitempty"`
	FiscalDocument string        `json:"fiscal_document,omitempty"`
}

type AuditLog struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	Action   string    `json:"action"`
	Details  string    `json:"details"`
}

type StoreConfig struct {
	StoreName          string `json:"store_name"`
	StoreAddress       string `json:"store_address"`
	PrimaryColor       string `json:"primary_color"`
	LowStockThreshold  int    `json:"low_stock_threshold"`
	BudgetValidityDays int    `json:"budget_validity_days"`
}

// ImportSummary reports what an inventory import did, including the
// rows it dropped, so fail-soft skipping stays observable.
type ImportSummary struct {
	GroupsProcessed  int `json:"groups_processed"`
	ProductsCreated  int `json:"products_created"`
	ProductsUpdated  int `json:"products_updated"`
	VariationsAdded  int `json:"variations_added"`
	SuppliersCreated int `json:"suppliers_created"`
	SkippedRows      int `json:"skipped_rows"`
}

type DashboardSummary struct {
	Date                  string `json:"date"`
	SalesCount            int    `json:"sales_count"`
	SalesTotalCents       int64  `json:"sales_total_cents"`
	CashBalanceCents      int64  `json:"cash_balance_cents"`
	RegisterOpen          bool   `json:"register_open"`
	TotalReceivablesCents int64  `json:"total_receivables_cents"`
	LowStockProducts      int    `json:"low_stock_products"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

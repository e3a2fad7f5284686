package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"befit/backend/internal/domain"
	"befit/backend/internal/store"
	"befit/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	usersByID       map[string]domain.UserAccount
	productsByID    map[string]domain.Product
	suppliersByID   map[string]domain.Supplier
	servicesByID    map[string]domain.CatalogService
	operationsByID  map[string]domain.Operation
	clientsByID     map[string]domain.Client
	sales           []domain.Sale
	budgetsByID     map[string]domain.Budget
	cashSession     domain.CashSession
	auditLogs       []domain.AuditLog
	storeConfig     domain.StoreConfig
}

// seedUsers builds the initial user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// hardcoded dev defaults are used with a warning when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "caixa123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		name     string
		username string
		password string
		role     string
	}{
		{"Administrador", "admin", adminPwd, domain.RoleAdmin},
		{"Caixa Loja", "caixa", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		id := xid.New("user")
		users[id] = domain.UserAccount{
			ID:           id,
			Name:         u.name,
			Username:     u.username,
			PasswordHash: string(hash),
			Role:         u.role,
			Active:       true,
			CreatedAt:    now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	suppliers := []domain.Supplier{
		{ID: xid.New("sup"), Name: "Malhas Sul Confeccoes", Phone: "(47) 3333-1020", CreatedAt: now},
		{ID: xid.New("sup"), Name: "Fitwear Distribuidora", Phone: "(11) 4002-8922", CreatedAt: now},
	}

	products := []domain.Product{
		{
			ID: xid.New("prod"), Reference: "LEG-001", Name: "Legging Alta Compressao",
			PriceCents: 8990, SupplierID: suppliers[0].ID, ImageURL: "https://placehold.co/200",
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: xid.New("prod"), Reference: "TOP-010", Name: "Top Fitness Basico",
			PriceCents: 4590, SupplierID: suppliers[0].ID, ImageURL: "https://placehold.co/200",
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: xid.New("prod"), Reference: "ACC-005", Name: "Garrafa Squeeze 750ml",
			PriceCents: 2500, Stock: 40, SupplierID: suppliers[1].ID,
			ImageURL: "https://placehold.co/200", CreatedAt: now, UpdatedAt: now,
		},
	}
	products[0].Variations = []domain.ProductVariation{
		{ID: xid.New("var"), ProductID: products[0].ID, Color: "Preto", Size: "P", Stock: 8},
		{ID: xid.New("var"), ProductID: products[0].ID, Color: "Preto", Size: "M", Stock: 12},
		{ID: xid.New("var"), ProductID: products[0].ID, Color: "Vinho", Size: "M", Stock: 5},
	}
	products[1].Variations = []domain.ProductVariation{
		{ID: xid.New("var"), ProductID: products[1].ID, Color: "Rosa", Size: "M", Stock: 10},
		{ID: xid.New("var"), ProductID: products[1].ID, Color: "Preto", Size: "G", Stock: 6},
	}

	clients := []domain.Client{
		{ID: xid.New("cli"), Name: "Maria Oliveira", Document: "123.456.789-00", Phone: "(47) 99911-2233", City: "Blumenau", Active: true, Debts: []domain.ClientDebt{}},
		{ID: xid.New("cli"), Name: "Joana Souza", Document: "987.654.321-00", Phone: "(47) 98822-3344", City: "Gaspar", Active: true, Debts: []domain.ClientDebt{}},
	}

	operations := []domain.Operation{
		{ID: xid.New("op"), Name: "Venda ao Consumidor", Description: "Venda padrao no balcao", Type: domain.OperationOutbound, MovesStock: true, Active: true, CFOP: "5102"},
		{ID: xid.New("op"), Name: "Entrada de Mercadoria", Description: "Recebimento de fornecedor", Type: domain.OperationInbound, MovesStock: true, Active: true, CFOP: "1102"},
	}

	s := &Store{
		usersByID:      seedUsers(),
		productsByID:   make(map[string]domain.Product, len(products)),
		suppliersByID:  make(map[string]domain.Supplier, len(suppliers)),
		servicesByID:   make(map[string]domain.CatalogService),
		operationsByID: make(map[string]domain.Operation, len(operations)),
		clientsByID:    make(map[string]domain.Client, len(clients)),
		sales:          make([]domain.Sale, 0, 64),
		budgetsByID:    make(map[string]domain.Budget),
		auditLogs:      make([]domain.AuditLog, 0, 128),
		cashSession: domain.CashSession{
			Movements: []domain.CashMovement{},
		},
		storeConfig: domain.StoreConfig{
			StoreName:          "BEFIT MODA FITNESS",
			StoreAddress:       "Rua da Moda, 123 - Centro",
			PrimaryColor:       "#A66B5D",
			LowStockThreshold:  5,
			BudgetValidityDays: 15,
		},
	}
	for _, p := range products {
		s.productsByID[p.ID] = p
	}
	for _, sup := range suppliers {
		s.suppliersByID[sup.ID] = sup
	}
	for _, op := range operations {
		s.operationsByID[op.ID] = op
	}
	for _, c := range clients {
		s.clientsByID[c.ID] = c
	}
	return s
}

// New returns an empty store with default settings, used by tests that
// want full control over the fixture data.
func New() *Store {
	s := NewSeeded()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.productsByID = make(map[string]domain.Product)
	s.suppliersByID = make(map[string]domain.Supplier)
	s.clientsByID = make(map[string]domain.Client)
	s.operationsByID = make(map[string]domain.Operation)
	return s
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.Username == "" || user.PasswordHash == "" || user.Role == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.usersByID {
		if strings.EqualFold(existing.Username, user.Username) {
			return nil, store.ErrConflict
		}
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	created := user
	return &created, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.usersByID {
		if strings.EqualFold(u.Username, username) {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.ID == "" || user.Username == "" || user.Role == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByID[user.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.usersByID[user.ID] = user
	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByID[userID]; !exists {
		return store.ErrNotFound
	}
	delete(s.usersByID, userID)
	return nil
}

// --- products ---

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.productsByID[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneProduct(p)
	return &found, nil
}

func (s *Store) GetProductByReference(_ context.Context, reference string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.productsByID {
		if strings.EqualFold(p.Reference, reference) {
			found := cloneProduct(p)
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	for i := range product.Variations {
		if product.Variations[i].ID == "" {
			product.Variations[i].ID = xid.New("var")
		}
		product.Variations[i].ProductID = product.ID
	}
	// With variations present the flat count is authoritative-zero.
	if len(product.Variations) > 0 {
		product.Stock = 0
	}
	s.productsByID[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.productsByID[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	for i := range product.Variations {
		if product.Variations[i].ID == "" {
			product.Variations[i].ID = xid.New("var")
		}
		product.Variations[i].ProductID = product.ID
	}
	if len(product.Variations) > 0 {
		product.Stock = 0
	}
	s.productsByID[product.ID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productsByID[productID]; !exists {
		return store.ErrNotFound
	}
	delete(s.productsByID, productID)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, variationID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.productsByID[productID]
	if !exists {
		return 0, store.ErrNotFound
	}

	if variationID != "" && len(p.Variations) > 0 {
		for i := range p.Variations {
			if p.Variations[i].ID != variationID {
				continue
			}
			next := p.Variations[i].Stock - delta
			if next < 0 {
				next = 0
			}
			p.Variations[i].Stock = next
			s.productsByID[productID] = p
			return next, nil
		}
		return 0, store.ErrNotFound
	}

	next := p.Stock - delta
	if next < 0 {
		next = 0
	}
	p.Stock = next
	s.productsByID[productID] = p
	return next, nil
}

// --- suppliers ---

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, sup := range s.suppliersByID {
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) GetSupplier(_ context.Context, supplierID string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sup, exists := s.suppliersByID[supplierID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := sup
	return &found, nil
}

func (s *Store) GetSupplierByName(_ context.Context, name string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sup := range s.suppliersByID {
		if strings.EqualFold(sup.Name, name) {
			found := sup
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliersByID[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" || supplier.Name == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliersByID[supplier.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.suppliersByID[supplier.ID] = supplier
	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(_ context.Context, supplierID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliersByID[supplierID]; !exists {
		return store.ErrNotFound
	}
	delete(s.suppliersByID, supplierID)
	return nil
}

// --- catalog services ---

func (s *Store) ListCatalogServices(_ context.Context) ([]domain.CatalogService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]domain.CatalogService, 0, len(s.servicesByID))
	for _, svc := range s.servicesByID {
		services = append(services, svc)
	}
	slices.SortFunc(services, func(a, b domain.CatalogService) int {
		return cmpString(a.Name, b.Name)
	})
	return services, nil
}

func (s *Store) CreateCatalogService(_ context.Context, svc domain.CatalogService) (*domain.CatalogService, error) {
	if svc.Name == "" || svc.PriceCents < 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if svc.ID == "" {
		svc.ID = xid.New("svc")
	}
	s.servicesByID[svc.ID] = svc
	created := svc
	return &created, nil
}

func (s *Store) UpdateCatalogService(_ context.Context, svc domain.CatalogService) (*domain.CatalogService, error) {
	if svc.ID == "" || svc.Name == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.servicesByID[svc.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.servicesByID[svc.ID] = svc
	updated := svc
	return &updated, nil
}

func (s *Store) DeleteCatalogService(_ context.Context, serviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.servicesByID[serviceID]; !exists {
		return store.ErrNotFound
	}
	delete(s.servicesByID, serviceID)
	return nil
}

// --- operations ---

func (s *Store) ListOperations(_ context.Context) ([]domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := make([]domain.Operation, 0, len(s.operationsByID))
	for _, op := range s.operationsByID {
		ops = append(ops, op)
	}
	slices.SortFunc(ops, func(a, b domain.Operation) int {
		return cmpString(a.Name, b.Name)
	})
	return ops, nil
}

func (s *Store) CreateOperation(_ context.Context, op domain.Operation) (*domain.Operation, error) {
	if op.Name == "" || (op.Type != domain.OperationInbound && op.Type != domain.OperationOutbound) {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if op.ID == "" {
		op.ID = xid.New("op")
	}
	s.operationsByID[op.ID] = op
	created := op
	return &created, nil
}

func (s *Store) UpdateOperation(_ context.Context, op domain.Operation) (*domain.Operation, error) {
	if op.ID == "" || op.Name == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.operationsByID[op.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.operationsByID[op.ID] = op
	updated := op
	return &updated, nil
}

func (s *Store) DeleteOperation(_ context.Context, operationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.operationsByID[operationID]; !exists {
		return store.ErrNotFound
	}
	delete(s.operationsByID, operationID)
	return nil
}

// --- clients & debts ---

func (s *Store) ListClients(_ context.Context) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]domain.Client, 0, len(s.clientsByID))
	for _, c := range s.clientsByID {
		clients = append(clients, cloneClient(c))
	}
	slices.SortFunc(clients, func(a, b domain.Client) int {
		return cmpString(a.Name, b.Name)
	})
	return clients, nil
}

func (s *Store) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.clientsByID[clientID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneClient(c)
	return &found, nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	if client.Name == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client.ID == "" {
		client.ID = xid.New("cli")
	}
	if client.Debts == nil {
		client.Debts = []domain.ClientDebt{}
	}
	s.clientsByID[client.ID] = cloneClient(client)
	created := cloneClient(client)
	return &created, nil
}

func (s *Store) UpdateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	if client.ID == "" || client.Name == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.clientsByID[client.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	// Debts are owned by the ledger operations, not by client edits.
	client.Debts = existing.Debts
	s.clientsByID[client.ID] = client
	updated := cloneClient(client)
	return &updated, nil
}

func (s *Store) DeleteClient(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clientsByID[clientID]; !exists {
		return store.ErrNotFound
	}
	delete(s.clientsByID, clientID)
	return nil
}

func (s *Store) AppendDebts(_ context.Context, clientID string, debts []domain.ClientDebt) error {
	if len(debts) == 0 {
		return store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.clientsByID[clientID]
	if !exists {
		return store.ErrNotFound
	}
	c.Debts = append(c.Debts, debts...)
	s.clientsByID[clientID] = c
	return nil
}

func (s *Store) MarkDebtPaid(_ context.Context, clientID string, debtID string, at time.Time) (*domain.ClientDebt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.clientsByID[clientID]
	if !exists {
		return nil, store.ErrNotFound
	}
	for i := range c.Debts {
		if c.Debts[i].ID != debtID {
			continue
		}
		if c.Debts[i].Paid {
			return nil, store.ErrInvalid
		}
		c.Debts[i].Paid = true
		paidAt := at
		c.Debts[i].PaidAt = &paidAt
		s.clientsByID[clientID] = c
		paid := c.Debts[i]
		return &paid, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) MarkAllDebtsPaid(_ context.Context, clientID string, at time.Time) ([]domain.ClientDebt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.clientsByID[clientID]
	if !exists {
		return nil, store.ErrNotFound
	}
	paid := make([]domain.ClientDebt, 0, len(c.Debts))
	for i := range c.Debts {
		if c.Debts[i].Paid {
			continue
		}
		c.Debts[i].Paid = true
		paidAt := at
		c.Debts[i].PaidAt = &paidAt
		paid = append(paid, c.Debts[i])
	}
	s.clientsByID[clientID] = c
	return paid, nil
}

func (s *Store) UpdateDebtDueDate(_ context.Context, clientID string, debtID string, due time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.clientsByID[clientID]
	if !exists {
		return store.ErrNotFound
	}
	for i := range c.Debts {
		if c.Debts[i].ID != debtID {
			continue
		}
		// A settled installment keeps its history.
		if c.Debts[i].Paid {
			return store.ErrInvalid
		}
		c.Debts[i].DueDate = due
		s.clientsByID[clientID] = c
		return nil
	}
	return store.ErrNotFound
}

func (s *Store) SumUnpaidDebts(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, c := range s.clientsByID {
		total += c.UnpaidCents()
	}
	return total, nil
}

// --- sales ---

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 || limit > len(s.sales) {
		limit = len(s.sales)
	}
	result := make([]domain.Sale, 0, limit)
	for _, sale := range s.sales[:limit] {
		result = append(result, cloneSale(sale))
	}
	return result, nil
}

func (s *Store) GetSale(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sale := range s.sales {
		if sale.ID == saleID {
			found := cloneSale(sale)
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) InsertSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	// Most-recent-first ordering.
	s.sales = append([]domain.Sale{cloneSale(sale)}, s.sales...)
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) SetSaleStatus(_ context.Context, saleID string, status string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sales {
		if s.sales[i].ID != saleID {
			continue
		}
		s.sales[i].Status = status
		updated := cloneSale(s.sales[i])
		return &updated, nil
	}
	return nil, store.ErrNotFound
}

// --- budgets ---

func (s *Store) ListBudgets(_ context.Context) ([]domain.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	budgets := make([]domain.Budget, 0, len(s.budgetsByID))
	for _, b := range s.budgetsByID {
		budgets = append(budgets, cloneBudget(b))
	}
	slices.SortFunc(budgets, func(a, b domain.Budget) int {
		if a.IssuedAt.Equal(b.IssuedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.IssuedAt.After(b.IssuedAt) {
			return -1
		}
		return 1
	})
	return budgets, nil
}

func (s *Store) GetBudget(_ context.Context, budgetID string) (*domain.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.budgetsByID[budgetID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneBudget(b)
	return &found, nil
}

func (s *Store) CreateBudget(_ context.Context, budget domain.Budget) (*domain.Budget, error) {
	if len(budget.Items) == 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if budget.ID == "" {
		budget.ID = xid.New("budget")
	}
	if budget.IssuedAt.IsZero() {
		budget.IssuedAt = time.Now().UTC()
	}
	if budget.Status == "" {
		budget.Status = domain.BudgetOpen
	}
	s.budgetsByID[budget.ID] = cloneBudget(budget)
	created := cloneBudget(budget)
	return &created, nil
}

func (s *Store) UpdateBudget(_ context.Context, budget domain.Budget) (*domain.Budget, error) {
	if budget.ID == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.budgetsByID[budget.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.budgetsByID[budget.ID] = cloneBudget(budget)
	updated := cloneBudget(budget)
	return &updated, nil
}

func (s *Store) DeleteBudget(_ context.Context, budgetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.budgetsByID[budgetID]; !exists {
		return store.ErrNotFound
	}
	delete(s.budgetsByID, budgetID)
	return nil
}

func (s *Store) SetBudgetStatus(_ context.Context, budgetID string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.budgetsByID[budgetID]
	if !exists {
		return store.ErrNotFound
	}
	b.Status = status
	s.budgetsByID[budgetID] = b
	return nil
}

// --- cash session ---

func (s *Store) GetCashSession(_ context.Context) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session := cloneSession(s.cashSession)
	return &session, nil
}

func (s *Store) OpenCashSession(_ context.Context, session domain.CashSession) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cashSession.Open {
		return nil, store.ErrConflict
	}
	s.cashSession = cloneSession(session)
	opened := cloneSession(session)
	return &opened, nil
}

func (s *Store) AppendCashMovement(_ context.Context, movement domain.CashMovement, balanceDelta int64) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cashSession.Open {
		return nil, store.ErrInvalid
	}
	s.cashSession.Movements = append(s.cashSession.Movements, movement)
	s.cashSession.BalanceCents += balanceDelta
	session := cloneSession(s.cashSession)
	return &session, nil
}

func (s *Store) CloseCashSession(_ context.Context, at time.Time, movement domain.CashMovement) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cashSession.Open {
		return nil, store.ErrInvalid
	}
	s.cashSession.Open = false
	closedAt := at
	s.cashSession.ClosedAt = &closedAt
	s.cashSession.Movements = append(s.cashSession.Movements, movement)
	session := cloneSession(s.cashSession)
	return &session, nil
}

// --- audit trail ---

func (s *Store) AppendAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	s.auditLogs = append([]domain.AuditLog{entry}, s.auditLogs...)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 || limit > len(s.auditLogs) {
		limit = len(s.auditLogs)
	}
	result := make([]domain.AuditLog, limit)
	copy(result, s.auditLogs[:limit])
	return result, nil
}

// --- settings ---

func (s *Store) GetStoreConfig(_ context.Context) (*domain.StoreConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := s.storeConfig
	return &cfg, nil
}

func (s *Store) UpdateStoreConfig(_ context.Context, cfg domain.StoreConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.storeConfig = cfg
	return nil
}

// --- clone helpers ---

func cloneProduct(p domain.Product) domain.Product {
	out := p
	out.Variations = make([]domain.ProductVariation, len(p.Variations))
	copy(out.Variations, p.Variations)
	return out
}

func cloneClient(c domain.Client) domain.Client {
	out := c
	out.Debts = make([]domain.ClientDebt, len(c.Debts))
	copy(out.Debts, c.Debts)
	return out
}

func cloneSale(sale domain.Sale) domain.Sale {
	out := sale
	out.Items = make([]domain.CartItem, len(sale.Items))
	copy(out.Items, sale.Items)
	out.Payment.Parts = make([]domain.PaymentPart, len(sale.Payment.Parts))
	copy(out.Payment.Parts, sale.Payment.Parts)
	return out
}

func cloneBudget(b domain.Budget) domain.Budget {
	out := b
	out.Items = make([]domain.CartItem, len(b.Items))
	copy(out.Items, b.Items)
	return out
}

func cloneSession(session domain.CashSession) domain.CashSession {
	out := session
	out.Movements = make([]domain.CashMovement, len(session.Movements))
	copy(out.Movements, session.Movements)
	return out
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

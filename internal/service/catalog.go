package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"befit/backend/internal/domain"
	"befit/backend/internal/store"
	"befit/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, productID)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}

	req.Reference = strings.ToUpper(strings.TrimSpace(req.Reference))
	req.Name = strings.TrimSpace(req.Name)
	if req.Reference == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: reference and name required", store.ErrInvalid)
	}
	if req.PriceCents < 0 || req.Stock < 0 {
		return nil, fmt.Errorf("%w: negative price or stock", store.ErrInvalid)
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:         xid.New("prod"),
		Reference:  req.Reference,
		Name:       req.Name,
		PriceCents: req.PriceCents,
		SupplierID: req.SupplierID,
		ImageURL:   req.ImageURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if len(req.Variations) > 0 {
		for _, v := range req.Variations {
			if v.Stock < 0 {
				return nil, fmt.Errorf("%w: negative variation stock", store.ErrInvalid)
			}
			v.ID = xid.New("var")
			v.ProductID = product.ID
			product.Variations = append(product.Variations, v)
		}
	} else {
		product.Stock = req.Stock
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "PRODUTO_CRIADO", fmt.Sprintf("produto=%s ref=%s preco=%d estoque=%d", created.ID, created.Reference, created.PriceCents, created.TotalStock()))
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Reference != nil {
		reference := strings.ToUpper(strings.TrimSpace(*req.Reference))
		if reference == "" {
			return nil, fmt.Errorf("%w: empty reference", store.ErrInvalid)
		}
		updated.Reference = reference
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty name", store.ErrInvalid)
		}
		updated.Name = name
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return nil, fmt.Errorf("%w: negative price", store.ErrInvalid)
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, fmt.Errorf("%w: negative stock", store.ErrInvalid)
		}
		updated.Stock = *req.Stock
	}
	if req.SupplierID != nil {
		updated.SupplierID = *req.SupplierID
	}
	if req.Variations != nil {
		variations := make([]domain.ProductVariation, 0, len(*req.Variations))
		for _, v := range *req.Variations {
			if v.Stock < 0 {
				return nil, fmt.Errorf("%w: negative variation stock", store.ErrInvalid)
			}
			if v.ID == "" {
				v.ID = xid.New("var")
			}
			v.ProductID = updated.ID
			variations = append(variations, v)
		}
		updated.Variations = variations
	}
	if req.ImageURL != nil {
		updated.ImageURL = *req.ImageURL
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "PRODUTO_ATUALIZADO", fmt.Sprintf("produto=%s ref=%s preco=%d", saved.ID, saved.Reference, saved.PriceCents))
	return saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, productID); err != nil {
		return err
	}
	s.logAudit(ctx, "PRODUTO_REMOVIDO", fmt.Sprintf("produto=%s", productID))
	return nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, fmt.Errorf("%w: supplier name required", store.ErrInvalid)
	}
	supplier.ID = xid.New("sup")
	supplier.CreatedAt = time.Now().UTC()

	created, err := s.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "FORNECEDOR_CRIADO", fmt.Sprintf("fornecedor=%s nome=%s", created.ID, created.Name))
	return created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.ID == "" || supplier.Name == "" {
		return nil, fmt.Errorf("%w: supplier id and name required", store.ErrInvalid)
	}

	saved, err := s.repo.UpdateSupplier(ctx, supplier)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "FORNECEDOR_ATUALIZADO", fmt.Sprintf("fornecedor=%s nome=%s", saved.ID, saved.Name))
	return saved, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, supplierID string) error {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteSupplier(ctx, supplierID); err != nil {
		return err
	}
	s.logAudit(ctx, "FORNECEDOR_REMOVIDO", fmt.Sprintf("fornecedor=%s", supplierID))
	return nil
}

func (s *Service) ListCatalogServices(ctx context.Context) ([]domain.CatalogService, error) {
	return s.repo.ListCatalogServices(ctx)
}

func (s *Service) CreateCatalogService(ctx context.Context, svc domain.CatalogService) (*domain.CatalogService, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}

	svc.Name = strings.TrimSpace(svc.Name)
	if svc.Name == "" {
		return nil, fmt.Errorf("%w: service name required", store.ErrInvalid)
	}
	if svc.PriceCents < 0 {
		return nil, fmt.Errorf("%w: negative price", store.ErrInvalid)
	}
	svc.ID = xid.New("svc")

	created, err := s.repo.CreateCatalogService(ctx, svc)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "SERVICO_CRIADO", fmt.Sprintf("servico=%s nome=%s", created.ID, created.Name))
	return created, nil
}

func (s *Service) UpdateCatalogService(ctx context.Context, svc domain.CatalogService) (*domain.CatalogService, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}

	svc.Name = strings.TrimSpace(svc.Name)
	if svc.ID == "" || svc.Name == "" {
		return nil, fmt.Errorf("%w: service id and name required", store.ErrInvalid)
	}

	saved, err := s.repo.UpdateCatalogService(ctx, svc)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "SERVICO_ATUALIZADO", fmt.Sprintf("servico=%s nome=%s", saved.ID, saved.Name))
	return saved, nil
}

func (s *Service) DeleteCatalogService(ctx context.Context, serviceID string) error {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteCatalogService(ctx, serviceID); err != nil {
		return err
	}
	s.logAudit(ctx, "SERVICO_REMOVIDO", fmt.Sprintf("servico=%s", serviceID))
	return nil
}

func (s *Service) ListOperations(ctx context.Context) ([]domain.Operation, error) {
	return s.repo.ListOperations(ctx)
}

func (s *Service) CreateOperation(ctx context.Context, op domain.Operation) (*domain.Operation, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}

	op.Name = strings.TrimSpace(op.Name)
	if op.Name == "" {
		return nil, fmt.Errorf("%w: operation name required", store.ErrInvalid)
	}
	if op.Type != domain.OperationInbound && op.Type != domain.OperationOutbound {
		return nil, fmt.Errorf("%w: operation type must be %s or %s", store.ErrInvalid, domain.OperationInbound, domain.OperationOutbound)
	}
	op.ID = xid.New("op")

	created, err := s.repo.CreateOperation(ctx, op)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "OPERACAO_CRIADA", fmt.Sprintf("operacao=%s nome=%s tipo=%s", created.ID, created.Name, created.Type))
	return created, nil
}

func (s *Service) UpdateOperation(ctx context.Context, op domain.Operation) (*domain.Operation, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}

	op.Name = strings.TrimSpace(op.Name)
	if op.ID == "" || op.Name == "" {
		return nil, fmt.Errorf("%w: operation id and name required", store.ErrInvalid)
	}
	if op.Type != domain.OperationInbound && op.Type != domain.OperationOutbound {
		return nil, fmt.Errorf("%w: operation type must be %s or %s", store.ErrInvalid, domain.OperationInbound, domain.OperationOutbound)
	}

	saved, err := s.repo.UpdateOperation(ctx, op)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "OPERACAO_ATUALIZADA", fmt.Sprintf("operacao=%s nome=%s", saved.ID, saved.Name))
	return saved, nil
}

func (s *Service) DeleteOperation(ctx context.Context, operationID string) error {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteOperation(ctx, operationID); err != nil {
		return err
	}
	s.logAudit(ctx, "OPERACAO_REMOVIDA", fmt.Sprintf("operacao=%s", operationID))
	return nil
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.repo.ListClients(ctx)
}

func (s *Service) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	return s.repo.GetClient(ctx, clientID)
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (*domain.Client, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: client name required", store.ErrInvalid)
	}

	client := domain.Client{
		ID:       xid.New("cli"),
		Name:     req.Name,
		Document: strings.TrimSpace(req.Document),
		Phone:    strings.TrimSpace(req.Phone),
		City:     strings.TrimSpace(req.City),
		Active:   true,
	}

	created, err := s.repo.CreateClient(ctx, client)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "CLIENTE_CRIADO", fmt.Sprintf("cliente=%s nome=%s", created.ID, created.Name))
	return created, nil
}

func (s *Service) UpdateClient(ctx context.Context, clientID string, req domain.ClientUpdateRequest) (*domain.Client, error) {
	existing, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty client name", store.ErrInvalid)
		}
		updated.Name = name
	}
	if req.Document != nil {
		updated.Document = strings.TrimSpace(*req.Document)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.City != nil {
		updated.City = strings.TrimSpace(*req.City)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateClient(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "CLIENTE_ATUALIZADO", fmt.Sprintf("cliente=%s nome=%s", saved.ID, saved.Name))
	return saved, nil
}

func (s *Service) DeleteClient(ctx context.Context, clientID string) error {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteClient(ctx, clientID); err != nil {
		return err
	}
	s.logAudit(ctx, "CLIENTE_REMOVIDO", fmt.Sprintf("cliente=%s", clientID))
	return nil
}

// ListUsers returns staff accounts without their password hashes.
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}

	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, publicUser(account))
	}
	return users, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (*domain.User, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Name == "" || req.Username == "" {
		return nil, fmt.Errorf("%w: name and username required", store.ErrInvalid)
	}
	if len(req.Password) < 6 {
		return nil, fmt.Errorf("%w: password must have at least 6 characters", store.ErrInvalid)
	}
	if !validRole(req.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", store.ErrInvalid, req.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		ID:           xid.New("user"),
		Name:         req.Name,
		Username:     req.Username,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "USUARIO_CRIADO", fmt.Sprintf("usuario=%s login=%s papel=%s", created.ID, created.Username, created.Role))
	user := publicUser(*created)
	return &user, nil
}

func (s *Service) UpdateUser(ctx context.Context, userID string, req domain.UserUpdateRequest) (*domain.User, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}

	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	var existing *domain.UserAccount
	for i := range accounts {
		if accounts[i].ID == userID {
			existing = &accounts[i]
			break
		}
	}
	if existing == nil {
		return nil, store.ErrNotFound
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty name", store.ErrInvalid)
		}
		updated.Name = name
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			return nil, fmt.Errorf("%w: password must have at least 6 characters", store.ErrInvalid)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		updated.PasswordHash = string(hash)
	}
	if req.Role != nil {
		if !validRole(*req.Role) {
			return nil, fmt.Errorf("%w: unknown role %q", store.ErrInvalid, *req.Role)
		}
		updated.Role = *req.Role
	}
	if req.Active != nil {
		if !*req.Active && existing.ID == actor.UserID {
			return nil, fmt.Errorf("%w: cannot deactivate own account", store.ErrInvalid)
		}
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateUser(ctx, updated)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "USUARIO_ATUALIZADO", fmt.Sprintf("usuario=%s login=%s papel=%s ativo=%t", saved.ID, saved.Username, saved.Role, saved.Active))
	user := publicUser(*saved)
	return &user, nil
}

func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if userID == actor.UserID {
		return fmt.Errorf("%w: cannot delete own account", store.ErrInvalid)
	}
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logAudit(ctx, "USUARIO_REMOVIDO", fmt.Sprintf("usuario=%s", userID))
	return nil
}

func (s *Service) StoreConfig(ctx context.Context) (*domain.StoreConfig, error) {
	return s.repo.GetStoreConfig(ctx)
}

func (s *Service) UpdateStoreConfig(ctx context.Context, cfg domain.StoreConfig) (*domain.StoreConfig, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}

	cfg.StoreName = strings.TrimSpace(cfg.StoreName)
	if cfg.StoreName == "" {
		return nil, fmt.Errorf("%w: store name required", store.ErrInvalid)
	}
	if cfg.LowStockThreshold < 0 || cfg.BudgetValidityDays < 0 {
		return nil, fmt.Errorf("%w: negative threshold", store.ErrInvalid)
	}

	if err := s.repo.UpdateStoreConfig(ctx, cfg); err != nil {
		return nil, err
	}

	s.logAudit(ctx, "CONFIG_ATUALIZADA", fmt.Sprintf("loja=%s", cfg.StoreName))
	return &cfg, nil
}

func validRole(role string) bool {
	switch role {
	case domain.RoleAdmin, domain.RoleCashier, domain.RoleManager:
		return true
	}
	return false
}

func publicUser(account domain.UserAccount) domain.User {
	return domain.User{
		ID:          account.ID,
		Name:        account.Name,
		Username:    account.Username,
		Role:        account.Role,
		Permissions: account.Permissions,
		Active:      account.Active,
		CreatedAt:   account.CreatedAt,
	}
}

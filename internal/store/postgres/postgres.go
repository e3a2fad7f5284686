package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"befit/backend/internal/domain"
	"befit/backend/internal/store"
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

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			permissions JSONB NOT NULL DEFAULT '[]',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS suppliers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			contact TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			reference TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			price_cents BIGINT NOT NULL DEFAULT 0,
			stock INTEGER NOT NULL DEFAULT 0,
			supplier_id TEXT NOT NULL DEFAULT '',
			variations JSONB NOT NULL DEFAULT '[]',
			image_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS catalog_services (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			activity_code TEXT NOT NULL DEFAULT '',
			cnae TEXT NOT NULL DEFAULT '',
			price_cents BIGINT NOT NULL DEFAULT 0,
			municipal_code TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS operations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			moves_stock BOOLEAN NOT NULL DEFAULT false,
			active BOOLEAN NOT NULL DEFAULT true,
			cfop TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			document TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT true,
			debts JSONB NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			client_id TEXT NOT NULL DEFAULT '',
			client_name TEXT NOT NULL DEFAULT '',
			fiscal_document TEXT NOT NULL DEFAULT '',
			shipping_cents BIGINT NOT NULL DEFAULT 0,
			total_cents BIGINT NOT NULL,
			items JSONB NOT NULL,
			payment JSONB NOT NULL,
			status TEXT NOT NULL,
			origin_budget_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS budgets (
			id TEXT PRIMARY KEY,
			issued_at TIMESTAMPTZ NOT NULL,
			valid_until TIMESTAMPTZ NOT NULL,
			client_id TEXT NOT NULL DEFAULT '',
			client_name TEXT NOT NULL,
			shipping_cents BIGINT NOT NULL DEFAULT 0,
			delivery_address TEXT NOT NULL DEFAULT '',
			total_cents BIGINT NOT NULL,
			items JSONB NOT NULL,
			status TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS cash_session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			open BOOLEAN NOT NULL DEFAULT false,
			opened_at TIMESTAMPTZ,
			closed_at TIMESTAMPTZ,
			start_balance_cents BIGINT NOT NULL DEFAULT 0,
			balance_cents BIGINT NOT NULL DEFAULT 0,
			movements JSONB NOT NULL DEFAULT '[]'
		)`,
		`INSERT INTO cash_session (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			at TIMESTAMPTZ NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			user_name TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS store_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			store_name TEXT NOT NULL DEFAULT '',
			store_address TEXT NOT NULL DEFAULT '',
			primary_color TEXT NOT NULL DEFAULT '',
			low_stock_threshold INTEGER NOT NULL DEFAULT 5,
			budget_validity_days INTEGER NOT NULL DEFAULT 7
		)`,
		`INSERT INTO store_config (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.ID == "" || user.Username == "" {
		return nil, store.ErrInvalid
	}
	permissions, err := json.Marshal(user.Permissions)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, username, password_hash, role, permissions, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, user.ID, user.Name, user.Username, user.PasswordHash, user.Role, permissions, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := user
	return &created, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, username, password_hash, role, permissions, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, username, password_hash, role, permissions, active, created_at
		FROM users
		WHERE lower(username) = lower($1)
	`, username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.ID == "" {
		return nil, store.ErrInvalid
	}
	permissions, err := json.Marshal(user.Permissions)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, password_hash = $3, role = $4, permissions = $5, active = $6
		WHERE id = $1
	`, user.ID, user.Name, user.PasswordHash, user.Role, permissions, user.Active)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.UserAccount, error) {
	var user domain.UserAccount
	var permissions []byte
	if err := row.Scan(&user.ID, &user.Name, &user.Username, &user.PasswordHash, &user.Role, &permissions, &user.Active, &user.CreatedAt); err != nil {
		return domain.UserAccount{}, err
	}
	if err := json.Unmarshal(permissions, &user.Permissions); err != nil {
		return domain.UserAccount{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

// Products

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference, name, price_cents, stock, supplier_id, variations, image_url, created_at, updated_at
		FROM products
		ORDER BY reference
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, reference, name, price_cents, stock, supplier_id, variations, image_url, created_at, updated_at
		FROM products
		WHERE id = $1
	`, productID)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductByReference(ctx context.Context, reference string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, reference, name, price_cents, stock, supplier_id, variations, image_url, created_at, updated_at
		FROM products
		WHERE upper(reference) = upper($1)
	`, reference)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Reference == "" || product.Name == "" {
		return nil, store.ErrInvalid
	}
	variations, err := json.Marshal(product.Variations)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, reference, name, price_cents, stock, supplier_id, variations, image_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ID, product.Reference, product.Name, product.PriceCents, product.Stock, product.SupplierID, variations, product.ImageURL, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Reference == "" || product.Name == "" {
		return nil, store.ErrInvalid
	}
	variations, err := json.Marshal(product.Variations)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET reference = $2, name = $3, price_cents = $4, stock = $5, supplier_id = $6, variations = $7, image_url = $8, updated_at = $9
		WHERE id = $1
	`, product.ID, product.Reference, product.Name, product.PriceCents, product.Stock, product.SupplierID, variations, product.ImageURL, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, productID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) AdjustStock(ctx context.Context, productID string, variationID string, delta int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT stock, variations FROM products WHERE id = $1 FOR UPDATE
	`, productID)
	var stock int
	var variationsRaw []byte
	if err := row.Scan(&stock, &variationsRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	var variations []domain.ProductVariation
	if err := json.Unmarshal(variationsRaw, &variations); err != nil {
		return 0, err
	}

	result := 0
	if variationID != "" && len(variations) > 0 {
		found := false
		for i := range variations {
			if variations[i].ID == variationID {
				variations[i].Stock -= delta
				if variations[i].Stock < 0 {
					variations[i].Stock = 0
				}
				result = variations[i].Stock
				found = true
				break
			}
		}
		if !found {
			return 0, store.ErrNotFound
		}
		updated, err := json.Marshal(variations)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE products SET variations = $2, updated_at = now() WHERE id = $1`, productID, updated); err != nil {
			return 0, err
		}
	} else {
		stock -= delta
		if stock < 0 {
			stock = 0
		}
		result = stock
		if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`, productID, stock); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return result, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var product domain.Product
	var variations []byte
	if err := row.Scan(&product.ID, &product.Reference, &product.Name, &product.PriceCents, &product.Stock, &product.SupplierID, &variations, &product.ImageURL, &product.CreatedAt, &product.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	if err := json.Unmarshal(variations, &product.Variations); err != nil {
		return domain.Product{}, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return product, nil
}

// Suppliers

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact, phone, created_at FROM suppliers ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var supplier domain.Supplier
		if err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.Contact, &supplier.Phone, &supplier.CreatedAt); err != nil {
			return nil, err
		}
		supplier.CreatedAt = supplier.CreatedAt.UTC()
		suppliers = append(suppliers, supplier)
	}
	return suppliers, rows.Err()
}

func (s *Store) GetSupplier(ctx context.Context, supplierID string) (*domain.Supplier, error) {
	return s.getSupplierWhere(ctx, `id = $1`, supplierID)
}

func (s *Store) GetSupplierByName(ctx context.Context, name string) (*domain.Supplier, error) {
	return s.getSupplierWhere(ctx, `lower(name) = lower($1)`, name)
}

func (s *Store) getSupplierWhere(ctx context.Context, where string, arg any) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, contact, phone, created_at FROM suppliers WHERE `+where,
		arg,
	).Scan(&supplier.ID, &supplier.Name, &supplier.Contact, &supplier.Phone, &supplier.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	supplier.CreatedAt = supplier.CreatedAt.UTC()
	return &supplier, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" || supplier.Name == "" {
		return nil, store.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact, phone, created_at) VALUES ($1,$2,$3,$4,$5)
	`, supplier.ID, supplier.Name, supplier.Contact, supplier.Phone, supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := supplier
	return &created, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" || supplier.Name == "" {
		return nil, store.ErrInvalid
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE suppliers SET name = $2, contact = $3, phone = $4 WHERE id = $1
	`, supplier.ID, supplier.Name, supplier.Contact, supplier.Phone)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, supplierID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, supplierID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Catalog services

func (s *Store) ListCatalogServices(ctx context.Context) ([]domain.CatalogService, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, activity_code, cnae, price_cents, municipal_code FROM catalog_services ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.CatalogService, 0, 16)
	for rows.Next() {
		var svc domain.CatalogService
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.ActivityCode, &svc.CNAE, &svc.PriceCents, &svc.MunicipalCode); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (s *Store) CreateCatalogService(ctx context.Context, svc domain.CatalogService) (*domain.CatalogService, error) {
	if svc.ID == "" || svc.Name == "" {
		return nil, store.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_services (id, name, activity_code, cnae, price_cents, municipal_code)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, svc.ID, svc.Name, svc.ActivityCode, svc.CNAE, svc.PriceCents, svc.MunicipalCode)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := svc
	return &created, nil
}

func (s *Store) UpdateCatalogService(ctx context.Context, svc domain.CatalogService) (*domain.CatalogService, error) {
	if svc.ID == "" || svc.Name == "" {
		return nil, store.ErrInvalid
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE catalog_services
		SET name = $2, activity_code = $3, cnae = $4, price_cents = $5, municipal_code = $6
		WHERE id = $1
	`, svc.ID, svc.Name, svc.ActivityCode, svc.CNAE, svc.PriceCents, svc.MunicipalCode)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := svc
	return &updated, nil
}

func (s *Store) DeleteCatalogService(ctx context.Context, serviceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_services WHERE id = $1`, serviceID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Operations

func (s *Store) ListOperations(ctx context.Context) ([]domain.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, type, moves_stock, active, cfop FROM operations ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	operations := make([]domain.Operation, 0, 16)
	for rows.Next() {
		var op domain.Operation
		if err := rows.Scan(&op.ID, &op.Name, &op.Description, &op.Type, &op.MovesStock, &op.Active, &op.CFOP); err != nil {
			return nil, err
		}
		operations = append(operations, op)
	}
	return operations, rows.Err()
}

func (s *Store) CreateOperation(ctx context.Context, op domain.Operation) (*domain.Operation, error) {
	if op.ID == "" || op.Name == "" {
		return nil, store.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (id, name, description, type, moves_stock, active, cfop)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, op.ID, op.Name, op.Description, op.Type, op.MovesStock, op.Active, op.CFOP)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := op
	return &created, nil
}

func (s *Store) UpdateOperation(ctx context.Context, op domain.Operation) (*domain.Operation, error) {
	if op.ID == "" || op.Name == "" {
		return nil, store.ErrInvalid
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE operations
		SET name = $2, description = $3, type = $4, moves_stock = $5, active = $6, cfop = $7
		WHERE id = $1
	`, op.ID, op.Name, op.Description, op.Type, op.MovesStock, op.Active, op.CFOP)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := op
	return &updated, nil
}

func (s *Store) DeleteOperation(ctx context.Context, operationID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM operations WHERE id = $1`, operationID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Clients and debts

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, document, phone, city, active, debts FROM clients ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 64)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

func (s *Store) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, document, phone, city, active, debts FROM clients WHERE id = $1
	`, clientID)
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &client, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if client.ID == "" || client.Name == "" {
		return nil, store.ErrInvalid
	}
	debts, err := json.Marshal(client.Debts)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, document, phone, city, active, debts)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, client.ID, client.Name, client.Document, client.Phone, client.City, client.Active, debts)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := client
	return &created, nil
}

// UpdateClient leaves the debt ledger alone; debts change only through
// the debt operations.
func (s *Store) UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if client.ID == "" || client.Name == "" {
		return nil, store.ErrInvalid
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE clients SET name = $2, document = $3, phone = $4, city = $5, active = $6 WHERE id = $1
	`, client.ID, client.Name, client.Document, client.Phone, client.City, client.Active)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetClient(ctx, client.ID)
}

func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, clientID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) AppendDebts(ctx context.Context, clientID string, debts []domain.ClientDebt) error {
	if len(debts) == 0 {
		return nil
	}
	_, err := s.mutateDebts(ctx, clientID, func(existing []domain.ClientDebt) ([]domain.ClientDebt, []domain.ClientDebt, error) {
		return append(existing, debts...), debts, nil
	})
	return err
}

func (s *Store) MarkDebtPaid(ctx context.Context, clientID string, debtID string, at time.Time) (*domain.ClientDebt, error) {
	changed, err := s.mutateDebts(ctx, clientID, func(existing []domain.ClientDebt) ([]domain.ClientDebt, []domain.ClientDebt, error) {
		for i := range existing {
			if existing[i].ID != debtID {
				continue
			}
			if existing[i].Paid {
				return nil, nil, store.ErrInvalid
			}
			existing[i].Paid = true
			paidAt := at
			existing[i].PaidAt = &paidAt
			return existing, []domain.ClientDebt{existing[i]}, nil
		}
		return nil, nil, store.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &changed[0], nil
}

func (s *Store) MarkAllDebtsPaid(ctx context.Context, clientID string, at time.Time) ([]domain.ClientDebt, error) {
	return s.mutateDebts(ctx, clientID, func(existing []domain.ClientDebt) ([]domain.ClientDebt, []domain.ClientDebt, error) {
		paid := make([]domain.ClientDebt, 0, len(existing))
		for i := range existing {
			if existing[i].Paid {
				continue
			}
			existing[i].Paid = true
			paidAt := at
			existing[i].PaidAt = &paidAt
			paid = append(paid, existing[i])
		}
		return existing, paid, nil
	})
}

func (s *Store) UpdateDebtDueDate(ctx context.Context, clientID string, debtID string, due time.Time) error {
	_, err := s.mutateDebts(ctx, clientID, func(existing []domain.ClientDebt) ([]domain.ClientDebt, []domain.ClientDebt, error) {
		for i := range existing {
			if existing[i].ID != debtID {
				continue
			}
			if existing[i].Paid {
				return nil, nil, store.ErrInvalid
			}
			existing[i].DueDate = due
			return existing, []domain.ClientDebt{existing[i]}, nil
		}
		return nil, nil, store.ErrNotFound
	})
	return err
}

func (s *Store) SumUnpaidDebts(ctx context.Context) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT debts FROM clients`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total int64
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return 0, err
		}
		var debts []domain.ClientDebt
		if err := json.Unmarshal(raw, &debts); err != nil {
			return 0, err
		}
		for _, debt := range debts {
			if !debt.Paid {
				total += debt.AmountCents
			}
		}
	}
	return total, rows.Err()
}

// mutateDebts runs a read-modify-write cycle on a client's debt ledger
// under a row lock. The mutate callback returns the full new ledger and
// the subset it touched.
func (s *Store) mutateDebts(ctx context.Context, clientID string, mutate func([]domain.ClientDebt) ([]domain.ClientDebt, []domain.ClientDebt, error)) ([]domain.ClientDebt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	if err := tx.QueryRowContext(ctx, `SELECT debts FROM clients WHERE id = $1 FOR UPDATE`, clientID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	var debts []domain.ClientDebt
	if err := json.Unmarshal(raw, &debts); err != nil {
		return nil, err
	}

	updated, changed, err := mutate(debts)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(updated)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE clients SET debts = $2 WHERE id = $1`, clientID, encoded); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return changed, nil
}

func scanClient(row rowScanner) (domain.Client, error) {
	var client domain.Client
	var debts []byte
	if err := row.Scan(&client.ID, &client.Name, &client.Document, &client.Phone, &client.City, &client.Active, &debts); err != nil {
		return domain.Client{}, err
	}
	if err := json.Unmarshal(debts, &client.Debts); err != nil {
		return domain.Client{}, err
	}
	return client, nil
}

// Sales

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	query := `
		SELECT id, created_at, client_id, client_name, fiscal_document, shipping_cents, total_cents, items, payment, status, origin_budget_id
		FROM sales
		ORDER BY created_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (s *Store) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, client_id, client_name, fiscal_document, shipping_cents, total_cents, items, payment, status, origin_budget_id
		FROM sales
		WHERE id = $1
	`, saleID)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalid
	}
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, err
	}
	payment, err := json.Marshal(sale.Payment)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales (id, created_at, client_id, client_name, fiscal_document, shipping_cents, total_cents, items, payment, status, origin_budget_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.CreatedAt, sale.ClientID, sale.ClientName, sale.FiscalDocument, sale.ShippingCents, sale.TotalCents, items, payment, sale.Status, sale.OriginBudgetID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	inserted := sale
	return &inserted, nil
}

func (s *Store) SetSaleStatus(ctx context.Context, saleID string, status string) (*domain.Sale, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sales SET status = $2 WHERE id = $1`, saleID, status)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, saleID)
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var items, payment []byte
	if err := row.Scan(&sale.ID, &sale.CreatedAt, &sale.ClientID, &sale.ClientName, &sale.FiscalDocument, &sale.ShippingCents, &sale.TotalCents, &items, &payment, &sale.Status, &sale.OriginBudgetID); err != nil {
		return domain.Sale{}, err
	}
	if err := json.Unmarshal(items, &sale.Items); err != nil {
		return domain.Sale{}, err
	}
	if err := json.Unmarshal(payment, &sale.Payment); err != nil {
		return domain.Sale{}, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

// Budgets

func (s *Store) ListBudgets(ctx context.Context) ([]domain.Budget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issued_at, valid_until, client_id, client_name, shipping_cents, delivery_address, total_cents, items, status, notes
		FROM budgets
		ORDER BY issued_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	budgets := make([]domain.Budget, 0, 32)
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, budget)
	}
	return budgets, rows.Err()
}

func (s *Store) GetBudget(ctx context.Context, budgetID string) (*domain.Budget, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, issued_at, valid_until, client_id, client_name, shipping_cents, delivery_address, total_cents, items, status, notes
		FROM budgets
		WHERE id = $1
	`, budgetID)
	budget, err := scanBudget(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &budget, nil
}

func (s *Store) CreateBudget(ctx context.Context, budget domain.Budget) (*domain.Budget, error) {
	if budget.ID == "" || len(budget.Items) == 0 {
		return nil, store.ErrInvalid
	}
	items, err := json.Marshal(budget.Items)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO budgets (id, issued_at, valid_until, client_id, client_name, shipping_cents, delivery_address, total_cents, items, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, budget.ID, budget.IssuedAt, budget.ValidUntil, budget.ClientID, budget.ClientName, budget.ShippingCents, budget.DeliveryAddress, budget.TotalCents, items, budget.Status, budget.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := budget
	return &created, nil
}

func (s *Store) UpdateBudget(ctx context.Context, budget domain.Budget) (*domain.Budget, error) {
	if budget.ID == "" || len(budget.Items) == 0 {
		return nil, store.ErrInvalid
	}
	items, err := json.Marshal(budget.Items)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE budgets
		SET valid_until = $2, client_id = $3, client_name = $4, shipping_cents = $5, delivery_address = $6, total_cents = $7, items = $8, status = $9, notes = $10
		WHERE id = $1
	`, budget.ID, budget.ValidUntil, budget.ClientID, budget.ClientName, budget.ShippingCents, budget.DeliveryAddress, budget.TotalCents, items, budget.Status, budget.Notes)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := budget
	return &updated, nil
}

func (s *Store) DeleteBudget(ctx context.Context, budgetID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = $1`, budgetID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) SetBudgetStatus(ctx context.Context, budgetID string, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE budgets SET status = $2 WHERE id = $1`, budgetID, status)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanBudget(row rowScanner) (domain.Budget, error) {
	var budget domain.Budget
	var items []byte
	if err := row.Scan(&budget.ID, &budget.IssuedAt, &budget.ValidUntil, &budget.ClientID, &budget.ClientName, &budget.ShippingCents, &budget.DeliveryAddress, &budget.TotalCents, &items, &budget.Status, &budget.Notes); err != nil {
		return domain.Budget{}, err
	}
	if err := json.Unmarshal(items, &budget.Items); err != nil {
		return domain.Budget{}, err
	}
	budget.IssuedAt = budget.IssuedAt.UTC()
	budget.ValidUntil = budget.ValidUntil.UTC()
	return budget, nil
}

// Cash session (single row, id = 1)

func (s *Store) GetCashSession(ctx context.Context) (*domain.CashSession, error) {
	return s.getCashSession(ctx, s.db.QueryRowContext)
}

type queryRowFunc func(ctx context.Context, query string, args ...any) *sql.Row

func (s *Store) getCashSession(ctx context.Context, queryRow queryRowFunc) (*domain.CashSession, error) {
	var session domain.CashSession
	var openedAt, closedAt sql.NullTime
	var movements []byte
	err := queryRow(ctx, `
		SELECT open, opened_at, closed_at, start_balance_cents, balance_cents, movements
		FROM cash_session WHERE id = 1
	`).Scan(&session.Open, &openedAt, &closedAt, &session.StartBalanceCents, &session.BalanceCents, &movements)
	if err != nil {
		return nil, err
	}
	if openedAt.Valid {
		t := openedAt.Time.UTC()
		session.OpenedAt = &t
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		session.ClosedAt = &t
	}
	if err := json.Unmarshal(movements, &session.Movements); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) OpenCashSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.getCashSession(ctx, tx.QueryRowContext)
	if err != nil {
		return nil, err
	}
	if current.Open {
		return nil, store.ErrConflict
	}

	movements, err := json.Marshal(session.Movements)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE cash_session
		SET open = true, opened_at = $1, closed_at = NULL, start_balance_cents = $2, balance_cents = $3, movements = $4
		WHERE id = 1
	`, session.OpenedAt, session.StartBalanceCents, session.BalanceCents, movements); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetCashSession(ctx)
}

func (s *Store) AppendCashMovement(ctx context.Context, movement domain.CashMovement, balanceDelta int64) (*domain.CashSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.getCashSession(ctx, tx.QueryRowContext)
	if err != nil {
		return nil, err
	}
	if !current.Open {
		return nil, store.ErrInvalid
	}

	current.Movements = append(current.Movements, movement)
	movements, err := json.Marshal(current.Movements)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE cash_session SET balance_cents = balance_cents + $1, movements = $2 WHERE id = 1
	`, balanceDelta, movements); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetCashSession(ctx)
}

func (s *Store) CloseCashSession(ctx context.Context, at time.Time, movement domain.CashMovement) (*domain.CashSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.getCashSession(ctx, tx.QueryRowContext)
	if err != nil {
		return nil, err
	}
	if !current.Open {
		return nil, store.ErrInvalid
	}

	current.Movements = append(current.Movements, movement)
	movements, err := json.Marshal(current.Movements)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE cash_session SET open = false, closed_at = $1, movements = $2 WHERE id = 1
	`, at, movements); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetCashSession(ctx)
}

// Audit trail

func (s *Store) AppendAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, at, user_id, user_name, action, details)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.At, entry.UserID, entry.UserName, entry.Action, entry.Details)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, user_id, user_name, action, details
		FROM audit_logs
		ORDER BY at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.At, &entry.UserID, &entry.UserName, &entry.Action, &entry.Details); err != nil {
			return nil, err
		}
		entry.At = entry.At.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// Store settings

func (s *Store) GetStoreConfig(ctx context.Context) (*domain.StoreConfig, error) {
	var cfg domain.StoreConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT store_name, store_address, primary_color, low_stock_threshold, budget_validity_days
		FROM store_config WHERE id = 1
	`).Scan(&cfg.StoreName, &cfg.StoreAddress, &cfg.PrimaryColor, &cfg.LowStockThreshold, &cfg.BudgetValidityDays)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) UpdateStoreConfig(ctx context.Context, cfg domain.StoreConfig) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE store_config
		SET store_name = $1, store_address = $2, primary_color = $3, low_stock_threshold = $4, budget_validity_days = $5
		WHERE id = 1
	`, cfg.StoreName, cfg.StoreAddress, cfg.PrimaryColor, cfg.LowStockThreshold, cfg.BudgetValidityDays)
	return err
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"befit/backend/internal/domain"
	"befit/backend/internal/store"
)

func TestAdjustStockClampsFlatStockAtZero(t *testing.T) {
	repo := New()
	ctx := context.Background()

	created, err := repo.CreateProduct(ctx, domain.Product{
		ID: "prod-1", Reference: "REF-1", Name: "Garrafa", PriceCents: 1990, Stock: 3,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	left, err := repo.AdjustStock(ctx, created.ID, "", 5)
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if left != 0 {
		t.Fatalf("expected stock clamped at 0, got %d", left)
	}
}

func TestAdjustStockRoundTripRestoresStock(t *testing.T) {
	repo := New()
	ctx := context.Background()

	created, err := repo.CreateProduct(ctx, domain.Product{
		ID: "prod-rt", Reference: "REF-RT", Name: "Top", PriceCents: 5990, Stock: 5,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	if _, err := repo.AdjustStock(ctx, created.ID, "", 2); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	restored, err := repo.AdjustStock(ctx, created.ID, "", -2)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if restored != 5 {
		t.Fatalf("round trip should restore 5, got %d", restored)
	}

	// Once the first adjustment clamps at zero the round trip is lossy.
	if _, err := repo.AdjustStock(ctx, created.ID, "", 8); err != nil {
		t.Fatalf("over-decrement: %v", err)
	}
	after, err := repo.AdjustStock(ctx, created.ID, "", -8)
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if after != 8 {
		t.Fatalf("clamped floor loses the overshoot: expected 8, got %d", after)
	}
}

func TestAdjustStockTargetsVariation(t *testing.T) {
	repo := New()
	ctx := context.Background()

	created, err := repo.CreateProduct(ctx, domain.Product{
		ID: "prod-2", Reference: "REF-2", Name: "Legging", PriceCents: 8990,
		Variations: []domain.ProductVariation{
			{ID: "var-a", Color: "Preto", Size: "P", Stock: 8},
			{ID: "var-b", Color: "Preto", Size: "M", Stock: 12},
		},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	left, err := repo.AdjustStock(ctx, created.ID, "var-a", 3)
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if left != 5 {
		t.Fatalf("expected 5 left on variation, got %d", left)
	}

	product, err := repo.GetProduct(ctx, created.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Variations[1].Stock != 12 {
		t.Fatalf("sibling variation must be untouched, got %d", product.Variations[1].Stock)
	}

	if _, err := repo.AdjustStock(ctx, created.ID, "var-missing", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown variation, got %v", err)
	}
}

func TestInsertSaleKeepsMostRecentFirst(t *testing.T) {
	repo := New()
	ctx := context.Background()

	item := domain.CartItem{ProductID: "p", Quantity: 1, UnitPriceCents: 100, SubtotalCents: 100}
	first, err := repo.InsertSale(ctx, domain.Sale{Items: []domain.CartItem{item}, Status: domain.SaleCompleted})
	if err != nil {
		t.Fatalf("insert first: %v", err)
	}
	second, err := repo.InsertSale(ctx, domain.Sale{Items: []domain.CartItem{item}, Status: domain.SaleCompleted})
	if err != nil {
		t.Fatalf("insert second: %v", err)
	}

	sales, err := repo.ListSales(ctx, 0)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 sales, got %d", len(sales))
	}
	if sales[0].ID != second.ID || sales[1].ID != first.ID {
		t.Fatalf("sales not most-recent-first: %s, %s", sales[0].ID, sales[1].ID)
	}

	limited, err := repo.ListSales(ctx, 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != second.ID {
		t.Fatalf("limit must keep the newest sale")
	}
}

func TestOpenCashSessionReplacesPreviousLog(t *testing.T) {
	repo := New()
	ctx := context.Background()
	now := time.Now().UTC()

	open := domain.CashSession{
		Open: true, OpenedAt: &now, StartBalanceCents: 1000, BalanceCents: 1000,
		Movements: []domain.CashMovement{{ID: "mov-open", Type: domain.MovementOpen, AmountCents: 1000, At: now}},
	}
	if _, err := repo.OpenCashSession(ctx, open); err != nil {
		t.Fatalf("open session: %v", err)
	}
	if _, err := repo.OpenCashSession(ctx, open); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict reopening, got %v", err)
	}

	if _, err := repo.AppendCashMovement(ctx, domain.CashMovement{ID: "mov-1", Type: domain.MovementSale, AmountCents: 500, At: now}, 500); err != nil {
		t.Fatalf("append movement: %v", err)
	}
	if _, err := repo.CloseCashSession(ctx, now, domain.CashMovement{ID: "mov-close", Type: domain.MovementClose, At: now}); err != nil {
		t.Fatalf("close session: %v", err)
	}
	if _, err := repo.AppendCashMovement(ctx, domain.CashMovement{ID: "mov-2", Type: domain.MovementSale, AmountCents: 100, At: now}, 100); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid appending to closed session, got %v", err)
	}

	reopened, err := repo.OpenCashSession(ctx, domain.CashSession{
		Open: true, OpenedAt: &now, StartBalanceCents: 2000, BalanceCents: 2000,
		Movements: []domain.CashMovement{{ID: "mov-open-2", Type: domain.MovementOpen, AmountCents: 2000, At: now}},
	})
	if err != nil {
		t.Fatalf("reopen session: %v", err)
	}
	if len(reopened.Movements) != 1 || reopened.BalanceCents != 2000 {
		t.Fatalf("reopen must start a fresh log, got %d movements balance %d", len(reopened.Movements), reopened.BalanceCents)
	}
	if reopened.ClosedAt != nil {
		t.Fatalf("reopened session must not carry a close timestamp")
	}
}

func TestMarkDebtPaidRejectsSecondPayment(t *testing.T) {
	repo := New()
	ctx := context.Background()
	now := time.Now().UTC()

	client, err := repo.CreateClient(ctx, domain.Client{ID: "cli-1", Name: "Maria"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if err := repo.AppendDebts(ctx, client.ID, []domain.ClientDebt{
		{ID: "debt-1", SaleID: "sale-1", AmountCents: 5000, DueDate: now.AddDate(0, 1, 0), InstallmentNumber: 1, TotalInstallments: 1},
	}); err != nil {
		t.Fatalf("append debts: %v", err)
	}

	paid, err := repo.MarkDebtPaid(ctx, client.ID, "debt-1", now)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if !paid.Paid || paid.PaidAt == nil {
		t.Fatalf("expected settled installment")
	}

	if _, err := repo.MarkDebtPaid(ctx, client.ID, "debt-1", now); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid on second payment, got %v", err)
	}
	if _, err := repo.MarkDebtPaid(ctx, client.ID, "debt-missing", now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown debt, got %v", err)
	}
}

func TestUpdateClientPreservesDebts(t *testing.T) {
	repo := New()
	ctx := context.Background()
	now := time.Now().UTC()

	client, err := repo.CreateClient(ctx, domain.Client{ID: "cli-2", Name: "Joana", Phone: "11 99999-0000"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if err := repo.AppendDebts(ctx, client.ID, []domain.ClientDebt{
		{ID: "debt-2", SaleID: "sale-2", AmountCents: 3000, DueDate: now.AddDate(0, 1, 0)},
	}); err != nil {
		t.Fatalf("append debts: %v", err)
	}

	updated := *client
	updated.Phone = "11 98888-1111"
	updated.Debts = nil
	saved, err := repo.UpdateClient(ctx, updated)
	if err != nil {
		t.Fatalf("update client: %v", err)
	}
	if saved.Phone != "11 98888-1111" {
		t.Fatalf("phone not updated")
	}
	if len(saved.Debts) != 1 {
		t.Fatalf("client edit must not drop the ledger, got %d debts", len(saved.Debts))
	}
}

func TestSumUnpaidDebtsSkipsSettledInstallments(t *testing.T) {
	repo := New()
	ctx := context.Background()
	now := time.Now().UTC()

	client, err := repo.CreateClient(ctx, domain.Client{ID: "cli-3", Name: "Paula"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if err := repo.AppendDebts(ctx, client.ID, []domain.ClientDebt{
		{ID: "debt-a", AmountCents: 4000, DueDate: now},
		{ID: "debt-b", AmountCents: 6000, DueDate: now},
	}); err != nil {
		t.Fatalf("append debts: %v", err)
	}
	if _, err := repo.MarkDebtPaid(ctx, client.ID, "debt-a", now); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	total, err := repo.SumUnpaidDebts(ctx)
	if err != nil {
		t.Fatalf("sum unpaid: %v", err)
	}
	if total != 6000 {
		t.Fatalf("expected 6000 outstanding, got %d", total)
	}
}

func TestSeededStoreKeepsLoginAccounts(t *testing.T) {
	repo := New()
	ctx := context.Background()

	admin, err := repo.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("seeded admin missing: %v", err)
	}
	if admin.Role != domain.RoleAdmin || !admin.Active {
		t.Fatalf("unexpected admin account %+v", admin)
	}

	cfg, err := repo.GetStoreConfig(ctx)
	if err != nil {
		t.Fatalf("store config: %v", err)
	}
	if cfg.LowStockThreshold <= 0 || cfg.BudgetValidityDays <= 0 {
		t.Fatalf("config defaults missing: %+v", cfg)
	}
}

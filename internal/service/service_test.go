package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"befit/backend/internal/domain"
	"befit/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, context.Context) {
	t.Helper()
	svc := New(memory.New(), nil, zap.NewNop(), time.Second)
	ctx := WithActor(context.Background(), domain.Actor{
		UserID:   "user-test",
		Username: "admin",
		Name:     "Administrador",
		Role:     domain.RoleAdmin,
	})
	return svc, ctx
}

func seedProduct(t *testing.T, svc *Service, ctx context.Context, reference string, priceCents int64, stock int) *domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Reference:  reference,
		Name:       "Produto " + reference,
		PriceCents: priceCents,
		Stock:      stock,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func seedClient(t *testing.T, svc *Service, ctx context.Context, name string) *domain.Client {
	t.Helper()
	client, err := svc.CreateClient(ctx, domain.ClientCreateRequest{Name: name})
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return client
}

func cartItem(product *domain.Product, qty int) domain.CartItem {
	return domain.CartItem{
		ProductID:      product.ID,
		Reference:      product.Reference,
		ProductName:    product.Name,
		UnitPriceCents: product.PriceCents,
		Quantity:       qty,
	}
}

func TestRecordSaleHybridPaymentMovesNetCash(t *testing.T) {
	svc, ctx := newTestService(t)
	product := seedProduct(t, svc, ctx, "LEG-001", 2000, 10)

	if _, err := svc.OpenRegister(ctx, 0); err != nil {
		t.Fatalf("open register: %v", err)
	}

	result, err := svc.RecordSale(ctx, domain.RecordSaleRequest{
		Items: []domain.CartItem{cartItem(product, 2)},
		Payments: []domain.PaymentPart{
			{Method: domain.PaymentCash, AmountCents: 5000},
		},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	if result.ChangeCents != 1000 {
		t.Fatalf("expected change 1000, got %d", result.ChangeCents)
	}
	if result.NetCashCents != 4000 {
		t.Fatalf("expected net cash 4000, got %d", result.NetCashCents)
	}
	if !result.CashMovementRecorded {
		t.Fatalf("expected cash movement to be recorded")
	}

	session, err := svc.CashSession(ctx)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.BalanceCents != 4000 {
		t.Fatalf("expected drawer balance 4000, got %d", session.BalanceCents)
	}

	updated, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if updated.Stock != 8 {
		t.Fatalf("expected stock 8 after sale, got %d", updated.Stock)
	}
}

func TestRecordSaleCashWithClosedRegisterDropsMovement(t *testing.T) {
	svc, ctx := newTestService(t)
	product := seedProduct(t, svc, ctx, "TOP-010", 3000, 5)

	result, err := svc.RecordSale(ctx, domain.RecordSaleRequest{
		Items: []domain.CartItem{cartItem(product, 1)},
		Payments: []domain.PaymentPart{
			{Method: domain.PaymentCash, AmountCents: 3000},
		},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	if result.CashMovementRecorded {
		t.Fatalf("expected cash movement to be dropped with register closed")
	}
	if result.Sale.Status != domain.SaleCompleted {
		t.Fatalf("sale should still complete, got status %s", result.Sale.Status)
	}

	session, err := svc.CashSession(ctx)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.BalanceCents != 0 || len(session.Movements) != 0 {
		t.Fatalf("expected untouched session, got balance=%d movements=%d", session.BalanceCents, len(session.Movements))
	}
}

func TestRecordSaleRejectsInsufficientPayment(t *testing.T) {
	svc, ctx := newTestService(t)
	product := seedProduct(t, svc, ctx, "ACC-005", 2500, 3)

	_, err := svc.RecordSale(ctx, domain.RecordSaleRequest{
		Items: []domain.CartItem{cartItem(product, 2)},
		Payments: []domain.PaymentPart{
			{Method: domain.PaymentCash, AmountCents: 4999},
		},
	})
	if !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
}

func TestRecordSaleCarneGeneratesMonthlyInstallments(t *testing.T) {
	svc, ctx := newTestService(t)
	product := seedProduct(t, svc, ctx, "LEG-002", 30000, 5)
	client := seedClient(t, svc, ctx, "Maria Oliveira")

	before := time.Now().UTC()
	result, err := svc.RecordSale(ctx, domain.RecordSaleRequest{
		ClientID: client.ID,
		Items:    []domain.CartItem{cartItem(product, 1)},
		Payments: []domain.PaymentPart{
			{Method: domain.PaymentCarne, AmountCents: 30000, Installments: 3},
		},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if result.DebtsCreated != 3 {
		t.Fatalf("expected 3 debts, got %d", result.DebtsCreated)
	}

	stored, err := svc.GetClient(ctx, client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if len(stored.Debts) != 3 {
		t.Fatalf("expected 3 stored debts, got %d", len(stored.Debts))
	}
	for i, debt := range stored.Debts {
		if debt.AmountCents != 10000 {
			t.Fatalf("installment %d expected 10000, got %d", i+1, debt.AmountCents)
		}
		if debt.InstallmentNumber != i+1 || debt.TotalInstallments != 3 {
			t.Fatalf("installment %d has wrong numbering %d/%d", i+1, debt.InstallmentNumber, debt.TotalInstallments)
		}
		want := before.AddDate(0, i+1, 0)
		if debt.DueDate.Format("2006-01-02") != want.Format("2006-01-02") {
			t.Fatalf("installment %d due %s, want %s", i+1, debt.DueDate.Format("2006-01-02"), want.Format("2006-01-02"))
		}
		if debt.SaleID != result.Sale.ID {
			t.Fatalf("installment %d not linked to sale", i+1)
		}
	}
}

func TestRecordSaleCarneRemainderLandsOnEarliestInstallments(t *testing.T) {
	svc, ctx := newTestService(t)
	product := seedProduct(t, svc, ctx, "LEG-003", 10000, 5)
	client := seedClient(t, svc, ctx, "Joana Souza")

	_, err := svc.RecordSale(ctx, domain.RecordSaleRequest{
		ClientID: client.ID,
		Items:    []domain.CartItem{cartItem(product, 1)},
		Payments: []domain.PaymentPart{
			{Method: domain.PaymentCarne, AmountCents: 10000, Installments: 3},
		},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	stored, err := svc.GetClient(ctx, client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	amounts := []int64{}
	var sum int64
	for _, debt := range stored.Debts {
		amounts = append(amounts, debt.AmountCents)
		sum += debt.AmountCents
	}
	if sum != 10000 {
		t.Fatalf("installments sum %d, want 10000", sum)
	}
	if amounts[0] != 3334 || amounts[1] != 3333 || amounts[2] != 3333 {
		t.Fatalf("unexpected split %v", amounts)
	}
}

func TestRecordSaleCarneWithoutClientSkipsInstallments(t *testing.T) {
	svc, ctx := newTestService(t)
	product := seedProduct(t, svc, ctx, "LEG-004", 5000, 5)

	result, err := svc.RecordSale(ctx, domain.RecordSaleRequest{
		Items: []domain.CartItem{cartItem(product, 1)},
		Payments: []domain.PaymentPart{
			{Method: domain.PaymentCarne, AmountCents: 5000, Installments: 2},
		},
	})
	if err != nil {
		t.Fatalf("record sale should not fail: %v", err)
	}
	if result.SkippedCarneParts != 1 {
		t.Fatalf("expected 1 skipped carne part, got %d", result.SkippedCarneParts)
	}
	if result.DebtsCreated != 0 {
		t.Fatalf("expected no debts, got %d", result.DebtsCreated)
	}
}

func TestReturnSaleRestocksWithoutTouchingCash(t *testing.T) {
	svc, ctx := newTestService(t)
	product := seedProduct(t, svc, ctx, "TOP-011", 4000, 5)

	if _, err := svc.OpenRegister(ctx, 1000); err != nil {
		t.Fatalf("open register: %v", err)
	}

	result, err := svc.RecordSale(ctx, domain.RecordSaleRequest{
		Items: []domain.CartItem{cartItem(product, 2)},
		Payments: []domain.PaymentPart{
			{Method: domain.PaymentCash, AmountCents: 8000},
		},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	afterSale, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if afterSale.Stock != 3 {
		t.Fatalf("expected stock 3 after sale, got %d", afterSale.Stock)
	}
	sessionBefore, err := svc.CashSession(ctx)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}

	returned, err := svc.ReturnSale(ctx, result.Sale.ID)
	if err != nil {
		t.Fatalf("return sale: %v", err)
	}
	if returned.Status != domain.SaleCancelled {
		t.Fatalf("expected cancelled status, got %s", returned.Status)
	}

	afterReturn, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if afterReturn.Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", afterReturn.Stock)
	}

	sessionAfter, err := svc.CashSession(ctx)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sessionAfter.BalanceCents != sessionBefore.BalanceCents {
		t.Fatalf("return must not touch the drawer: %d != %d", sessionAfter.BalanceCents, sessionBefore.BalanceCents)
	}

	if _, err := svc.ReturnSale(ctx, result.Sale.ID); !errors.Is(err, ErrSaleCancelled) {
		t.Fatalf("second return expected ErrSaleCancelled, got %v", err)
	}
}

func TestOpenRegisterTwiceConflicts(t *testing.T) {
	svc, ctx := newTestService(t)

	if _, err := svc.OpenRegister(ctx, 5000); err != nil {
		t.Fatalf("open register: %v", err)
	}
	if _, err := svc.OpenRegister(ctx, 1000); !errors.Is(err, ErrRegisterOpen) {
		t.Fatalf("expected ErrRegisterOpen, got %v", err)
	}
}

func TestCloseRegisterWhenClosedFails(t *testing.T) {
	svc, ctx := newTestService(t)
	if _, err := svc.CloseRegister(ctx); !errors.Is(err, ErrRegisterClosed) {
		t.Fatalf("expected ErrRegisterClosed, got %v", err)
	}
}

func TestCashMovementsKeepBalanceInvariant(t *testing.T) {
	svc, ctx := newTestService(t)

	if _, err := svc.OpenRegister(ctx, 10000); err != nil {
		t.Fatalf("open register: %v", err)
	}

	if _, err := svc.AddCashMovement(ctx, domain.MovementDeposit, 2500, "Suprimento troco"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	session, err := svc.AddCashMovement(ctx, domain.MovementWithdrawal, 4000, "Sangria almoco")
	if err != nil {
		t.Fatalf("withdrawal: %v", err)
	}

	derived := session.StartBalanceCents
	for _, movement := range session.Movements {
		derived += movement.SignedCents()
	}
	if derived != session.BalanceCents {
		t.Fatalf("balance invariant broken: derived %d, stored %d", derived, session.BalanceCents)
	}
	if session.BalanceCents != 8500 {
		t.Fatalf("expected balance 8500, got %d", session.BalanceCents)
	}
}

func TestAddCashMovementRejectsUnknownType(t *testing.T) {
	svc, ctx := newTestService(t)
	if _, err := svc.OpenRegister(ctx, 0); err != nil {
		t.Fatalf("open register: %v", err)
	}
	if _, err := svc.AddCashMovement(ctx, domain.MovementSale, 100, "venda manual"); err == nil {
		t.Fatalf("expected SALE movements to be rejected on the manual path")
	}
}

func TestPayDebtRequiresOpenRegister(t *testing.T) {
	svc, ctx := newTestService(t)
	client := seedClient(t, svc, ctx, "Ana Lima")

	if _, err := svc.PayDebt(ctx, client.ID, "debt-x"); !errors.Is(err, ErrRegisterClosed) {
		t.Fatalf("expected ErrRegisterClosed, got %v", err)
	}
	if _, err := svc.PayAllDebts(ctx, client.ID); !errors.Is(err, ErrRegisterClosed) {
		t.Fatalf("expected ErrRegisterClosed for pay-all, got %v", err)
	}
}

func TestPayDebtMovesCashAndMarksInstallment(t *testing.T) {
	svc, ctx := newTestService(t)
	product := seedProduct(t, svc, ctx, "LEG-005", 20000, 5)
	client := seedClient(t, svc, ctx, "Paula Reis")

	if _, err := svc.OpenRegister(ctx, 0); err != nil {
		t.Fatalf("open register: %v", err)
	}
	if _, err := svc.RecordSale(ctx, domain.RecordSaleRequest{
		ClientID: client.ID,
		Items:    []domain.CartItem{cartItem(product, 1)},
		Payments: []domain.PaymentPart{
			{Method: domain.PaymentCarne, AmountCents: 20000, Installments: 2},
		},
	}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	stored, err := svc.GetClient(ctx, client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	first := stored.Debts[0]

	debt, err := svc.PayDebt(ctx, client.ID, first.ID)
	if err != nil {
		t.Fatalf("pay debt: %v", err)
	}
	if !debt.Paid || debt.PaidAt == nil {
		t.Fatalf("expected paid installment with timestamp")
	}

	session, err := svc.CashSession(ctx)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.BalanceCents != debt.AmountCents {
		t.Fatalf("expected drawer balance %d, got %d", debt.AmountCents, session.BalanceCents)
	}

	if _, err := svc.PayDebt(ctx, client.ID, first.ID); err == nil {
		t.Fatalf("paying the same installment twice must fail")
	}
}

func TestPayAllDebtsWithNothingUnpaid(t *testing.T) {
	svc, ctx := newTestService(t)
	client := seedClient(t, svc, ctx, "Rita Campos")

	if _, err := svc.OpenRegister(ctx, 0); err != nil {
		t.Fatalf("open register: %v", err)
	}
	if _, err := svc.PayAllDebts(ctx, client.ID); !errors.Is(err, ErrNoUnpaidDebts) {
		t.Fatalf("expected ErrNoUnpaidDebts, got %v", err)
	}

	session, err := svc.CashSession(ctx)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.BalanceCents != 0 {
		t.Fatalf("balance must stay 0, got %d", session.BalanceCents)
	}
}

func TestPayAllDebtsSettlesEverythingWithOneMovement(t *testing.T) {
	svc, ctx := newTestService(t)
	product := seedProduct(t, svc, ctx, "LEG-006", 30000, 5)
	client := seedClient(t, svc, ctx, "Carla Nunes")

	if _, err := svc.OpenRegister(ctx, 0); err != nil {
		t.Fatalf("open register: %v", err)
	}
	if _, err := svc.RecordSale(ctx, domain.RecordSaleRequest{
		ClientID: client.ID,
		Items:    []domain.CartItem{cartItem(product, 1)},
		Payments: []domain.PaymentPart{
			{Method: domain.PaymentCarne, AmountCents: 30000, Installments: 3},
		},
	}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	paid, err := svc.PayAllDebts(ctx, client.ID)
	if err != nil {
		t.Fatalf("pay all: %v", err)
	}
	if len(paid) != 3 {
		t.Fatalf("expected 3 settled installments, got %d", len(paid))
	}

	session, err := svc.CashSession(ctx)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.BalanceCents != 30000 {
		t.Fatalf("expected balance 30000, got %d", session.BalanceCents)
	}
	debtMovements := 0
	for _, movement := range session.Movements {
		if movement.Type == domain.MovementDebtPayment {
			debtMovements++
		}
	}
	if debtMovements != 1 {
		t.Fatalf("expected one aggregate movement, got %d", debtMovements)
	}

	receivables, err := svc.TotalReceivables(ctx)
	if err != nil {
		t.Fatalf("receivables: %v", err)
	}
	if receivables != 0 {
		t.Fatalf("expected zero receivables, got %d", receivables)
	}
}

func TestConvertBudgetToSaleFlow(t *testing.T) {
	svc, ctx := newTestService(t)
	product := seedProduct(t, svc, ctx, "LEG-007", 10000, 10)
	client := seedClient(t, svc, ctx, "Bia Costa")

	budget, err := svc.CreateBudget(ctx, domain.BudgetCreateRequest{
		ClientID: client.ID,
		Items:    []domain.CartItem{cartItem(product, 2)},
	})
	if err != nil {
		t.Fatalf("create budget: %v", err)
	}
	if budget.Status != domain.BudgetOpen {
		t.Fatalf("expected open budget, got %s", budget.Status)
	}
	if budget.TotalCents != 20000 {
		t.Fatalf("expected budget total 20000, got %d", budget.TotalCents)
	}

	if _, err := svc.OpenRegister(ctx, 0); err != nil {
		t.Fatalf("open register: %v", err)
	}

	result, err := svc.ConvertBudgetToSale(ctx, budget.ID, domain.ConvertBudgetRequest{})
	if err != nil {
		t.Fatalf("convert budget: %v", err)
	}
	if result.Sale.OriginBudgetID != budget.ID {
		t.Fatalf("sale must reference the budget")
	}
	if result.ChangeCents != 0 {
		t.Fatalf("default cash payment should have no change, got %d", result.ChangeCents)
	}

	converted, err := svc.GetBudget(ctx, budget.ID)
	if err != nil {
		t.Fatalf("get budget: %v", err)
	}
	if converted.Status != domain.BudgetConverted {
		t.Fatalf("expected converted status, got %s", converted.Status)
	}

	updated, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if updated.Stock != 8 {
		t.Fatalf("conversion must decrement stock once, got %d", updated.Stock)
	}

	if _, err := svc.ConvertBudgetToSale(ctx, budget.ID, domain.ConvertBudgetRequest{}); !errors.Is(err, ErrBudgetConverted) {
		t.Fatalf("second conversion expected ErrBudgetConverted, got %v", err)
	}

	newNotes := "entregar sexta"
	if _, err := svc.UpdateBudget(ctx, budget.ID, domain.BudgetUpdateRequest{Notes: &newNotes}); !errors.Is(err, ErrBudgetConverted) {
		t.Fatalf("editing a converted budget expected ErrBudgetConverted, got %v", err)
	}
}

func TestUpdateDebtDueDateRejectsPaidInstallment(t *testing.T) {
	svc, ctx := newTestService(t)
	product := seedProduct(t, svc, ctx, "LEG-008", 10000, 5)
	client := seedClient(t, svc, ctx, "Duda Melo")

	if _, err := svc.OpenRegister(ctx, 0); err != nil {
		t.Fatalf("open register: %v", err)
	}
	if _, err := svc.RecordSale(ctx, domain.RecordSaleRequest{
		ClientID: client.ID,
		Items:    []domain.CartItem{cartItem(product, 1)},
		Payments: []domain.PaymentPart{
			{Method: domain.PaymentCarne, AmountCents: 10000, Installments: 1},
		},
	}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	stored, err := svc.GetClient(ctx, client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	debtID := stored.Debts[0].ID

	newDue := time.Now().UTC().AddDate(0, 2, 0)
	if err := svc.UpdateDebtDueDate(ctx, client.ID, debtID, newDue); err != nil {
		t.Fatalf("update due date: %v", err)
	}

	if _, err := svc.PayDebt(ctx, client.ID, debtID); err != nil {
		t.Fatalf("pay debt: %v", err)
	}
	if err := svc.UpdateDebtDueDate(ctx, client.ID, debtID, newDue); err == nil {
		t.Fatalf("expected due date change on paid installment to fail")
	}
}

func TestRecordSaleRequiresItemsAndPayments(t *testing.T) {
	svc, ctx := newTestService(t)

	if _, err := svc.RecordSale(ctx, domain.RecordSaleRequest{}); err == nil {
		t.Fatalf("expected empty sale to be rejected")
	}

	product := seedProduct(t, svc, ctx, "LEG-009", 1000, 5)
	if _, err := svc.RecordSale(ctx, domain.RecordSaleRequest{
		Items: []domain.CartItem{cartItem(product, 1)},
	}); err == nil {
		t.Fatalf("expected sale without payments to be rejected")
	}
}

func TestManagementRequiresElevatedRole(t *testing.T) {
	svc, _ := newTestService(t)
	cashierCtx := WithActor(context.Background(), domain.Actor{
		UserID: "user-caixa", Username: "caixa", Name: "Caixa", Role: domain.RoleCashier,
	})

	if _, err := svc.CreateProduct(cashierCtx, domain.ProductCreateRequest{Reference: "X", Name: "X"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier product create, got %v", err)
	}
	if _, err := svc.ListUsers(cashierCtx); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier user list, got %v", err)
	}
}

func TestDashboardSummaryCountsTodaySales(t *testing.T) {
	svc, ctx := newTestService(t)
	product := seedProduct(t, svc, ctx, "LEG-010", 2000, 20)

	if _, err := svc.OpenRegister(ctx, 0); err != nil {
		t.Fatalf("open register: %v", err)
	}
	if _, err := svc.RecordSale(ctx, domain.RecordSaleRequest{
		Items: []domain.CartItem{cartItem(product, 1)},
		Payments: []domain.PaymentPart{
			{Method: domain.PaymentPix, AmountCents: 2000},
		},
	}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	summary, err := svc.DashboardSummary(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if summary.SalesCount != 1 || summary.SalesTotalCents != 2000 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !summary.RegisterOpen {
		t.Fatalf("expected open register in summary")
	}
}

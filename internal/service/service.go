package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"befit/backend/internal/cache"
	"befit/backend/internal/domain"
	"befit/backend/internal/store"
	"befit/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var (
	ErrForbidden           = errors.New("insufficient role")
	ErrRegisterClosed      = errors.New("cash register is closed")
	ErrRegisterOpen        = errors.New("cash register is already open")
	ErrSaleCancelled       = errors.New("sale already cancelled")
	ErrNoUnpaidDebts       = errors.New("client has no unpaid debts")
	ErrBudgetConverted     = errors.New("budget already converted to a sale")
	ErrInsufficientPayment = errors.New("payments do not cover the sale total")
)

type Service struct {
	repo       store.Repository
	summaries  cache.SummaryCache
	logger     *zap.Logger
	summaryTTL time.Duration
}

func New(repo store.Repository, summaries cache.SummaryCache, logger *zap.Logger, summaryTTL time.Duration) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if summaryTTL <= 0 {
		summaryTTL = 30 * time.Second
	}

	return &Service{
		repo:       repo,
		summaries:  summaries,
		logger:     logger,
		summaryTTL: summaryTTL,
	}
}

func (s *Service) requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, ErrForbidden
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, ErrForbidden
}

// RecordSale settles a finished cart: it snapshots the sale, decrements
// stock, moves net cash into the open register and generates Carnê
// installments. Cash against a closed register and Carnê parts without
// a client are dropped rather than failing the sale; the result reports
// both.
func (s *Service) RecordSale(ctx context.Context, req domain.RecordSaleRequest) (domain.RecordSaleResult, error) {
	if len(req.Items) == 0 {
		return domain.RecordSaleResult{}, fmt.Errorf("%w: sale needs at least one item", store.ErrInvalid)
	}
	if req.ShippingCents < 0 {
		return domain.RecordSaleResult{}, fmt.Errorf("%w: negative shipping", store.ErrInvalid)
	}
	if len(req.Payments) == 0 {
		return domain.RecordSaleResult{}, fmt.Errorf("%w: sale needs at least one payment", store.ErrInvalid)
	}

	items := make([]domain.CartItem, 0, len(req.Items))
	var itemsTotal int64
	for _, item := range req.Items {
		if item.Quantity < 1 || item.UnitPriceCents < 0 {
			return domain.RecordSaleResult{}, fmt.Errorf("%w: bad quantity or price on %q", store.ErrInvalid, item.ProductName)
		}
		item.SubtotalCents = item.UnitPriceCents * int64(item.Quantity)
		if item.UID == "" {
			item.UID = xid.New("item")
		}
		itemsTotal += item.SubtotalCents
		items = append(items, item)
	}
	totalCents := itemsTotal + req.ShippingCents

	var paidCents int64
	for _, part := range req.Payments {
		if part.AmountCents <= 0 {
			return domain.RecordSaleResult{}, fmt.Errorf("%w: payment parts must be positive", store.ErrInvalid)
		}
		switch part.Method {
		case domain.PaymentCash, domain.PaymentCredit, domain.PaymentDebit, domain.PaymentPix, domain.PaymentCarne:
		default:
			return domain.RecordSaleResult{}, fmt.Errorf("%w: unknown payment method %q", store.ErrInvalid, part.Method)
		}
		paidCents += part.AmountCents
	}
	if paidCents < totalCents {
		return domain.RecordSaleResult{}, ErrInsufficientPayment
	}
	changeCents := paidCents - totalCents

	clientName := ""
	if req.ClientID != "" {
		client, err := s.repo.GetClient(ctx, req.ClientID)
		if err != nil {
			return domain.RecordSaleResult{}, err
		}
		clientName = client.Name
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:             xid.New("sale"),
		CreatedAt:      now,
		ClientID:       req.ClientID,
		ClientName:     clientName,
		FiscalDocument: req.FiscalDocument,
		ShippingCents:  req.ShippingCents,
		TotalCents:     totalCents,
		Items:          items,
		Payment: domain.PaymentDetails{
			Parts:          req.Payments,
			TotalPaidCents: paidCents,
			ChangeCents:    changeCents,
		},
		Status:         domain.SaleCompleted,
		OriginBudgetID: req.OriginBudgetID,
	}

	inserted, err := s.repo.InsertSale(ctx, sale)
	if err != nil {
		return domain.RecordSaleResult{}, err
	}

	for _, item := range inserted.Items {
		if item.ProductID == "" {
			continue
		}
		if _, err := s.repo.AdjustStock(ctx, item.ProductID, item.VariationID, item.Quantity); err != nil {
			s.logger.Warn("stock adjustment skipped",
				zap.String("sale_id", inserted.ID),
				zap.String("product_id", item.ProductID),
				zap.Error(err))
		}
	}

	if inserted.OriginBudgetID != "" {
		if err := s.repo.SetBudgetStatus(ctx, inserted.OriginBudgetID, domain.BudgetConverted); err != nil {
			s.logger.Warn("origin budget not marked converted",
				zap.String("budget_id", inserted.OriginBudgetID),
				zap.Error(err))
		}
	}

	result := domain.RecordSaleResult{
		Sale:        *inserted,
		ChangeCents: changeCents,
	}

	var cashInCents int64
	for _, part := range inserted.Payment.Parts {
		if part.Method == domain.PaymentCash {
			cashInCents += part.AmountCents
		}
	}
	result.NetCashCents = cashInCents - changeCents

	if result.NetCashCents != 0 {
		session, err := s.repo.GetCashSession(ctx)
		if err != nil {
			return domain.RecordSaleResult{}, err
		}
		if session.Open {
			movement := domain.CashMovement{
				ID:          xid.New("mov"),
				At:          now,
				Type:        domain.MovementSale,
				AmountCents: result.NetCashCents,
				Description: fmt.Sprintf("Venda %s", inserted.ID),
			}
			if _, err := s.repo.AppendCashMovement(ctx, movement, movement.SignedCents()); err != nil {
				return domain.RecordSaleResult{}, err
			}
			result.CashMovementRecorded = true
		} else {
			s.logger.Warn("cash received with register closed, movement not recorded",
				zap.String("sale_id", inserted.ID),
				zap.Int64("net_cash_cents", result.NetCashCents))
		}
	}

	for _, part := range inserted.Payment.Parts {
		if part.Method != domain.PaymentCarne {
			continue
		}
		if inserted.ClientID == "" {
			result.SkippedCarneParts++
			s.logger.Warn("carne part without client, no installments generated",
				zap.String("sale_id", inserted.ID),
				zap.Int64("amount_cents", part.AmountCents))
			continue
		}
		debts := buildInstallments(inserted.ID, part, now)
		if err := s.repo.AppendDebts(ctx, inserted.ClientID, debts); err != nil {
			return domain.RecordSaleResult{}, err
		}
		result.DebtsCreated += len(debts)
		s.logAudit(ctx, "CARNE_GERADO", fmt.Sprintf("venda=%s cliente=%s parcelas=%d total=%d", inserted.ID, inserted.ClientID, len(debts), part.AmountCents))
	}

	s.logAudit(ctx, "VENDA_REGISTRADA", fmt.Sprintf("venda=%s total=%d pago=%d troco=%d itens=%d", inserted.ID, totalCents, paidCents, changeCents, len(inserted.Items)))

	return result, nil
}

// buildInstallments splits a Carnê part into n monthly installments.
// Division leftovers land one cent at a time on the earliest
// installments so the amounts always sum back to the part.
func buildInstallments(saleID string, part domain.PaymentPart, from time.Time) []domain.ClientDebt {
	n := part.Installments
	if n < 1 {
		n = 1
	}
	base := part.AmountCents / int64(n)
	remainder := part.AmountCents - base*int64(n)

	debts := make([]domain.ClientDebt, 0, n)
	for i := 1; i <= n; i++ {
		amount := base
		if int64(i) <= remainder {
			amount++
		}
		debts = append(debts, domain.ClientDebt{
			ID:                xid.New("debt"),
			SaleID:            saleID,
			DueDate:           from.AddDate(0, i, 0),
			AmountCents:       amount,
			InstallmentNumber: i,
			TotalInstallments: n,
		})
	}
	return debts
}

// ReturnSale cancels a completed sale and restocks its items. The cash
// drawer is left untouched; refunds are handled at the counter.
func (s *Service) ReturnSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status == domain.SaleCancelled {
		return nil, ErrSaleCancelled
	}

	updated, err := s.repo.SetSaleStatus(ctx, saleID, domain.SaleCancelled)
	if err != nil {
		return nil, err
	}

	for _, item := range updated.Items {
		if item.ProductID == "" {
			continue
		}
		if _, err := s.repo.AdjustStock(ctx, item.ProductID, item.VariationID, -item.Quantity); err != nil {
			s.logger.Warn("restock skipped on sale return",
				zap.String("sale_id", updated.ID),
				zap.String("product_id", item.ProductID),
				zap.Error(err))
		}
	}

	s.logAudit(ctx, "VENDA_CANCELADA", fmt.Sprintf("venda=%s total=%d", updated.ID, updated.TotalCents))
	return updated, nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListSales(ctx, limit)
}

func (s *Service) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	return s.repo.GetSale(ctx, saleID)
}

func (s *Service) CashSession(ctx context.Context) (*domain.CashSession, error) {
	return s.repo.GetCashSession(ctx)
}

// OpenRegister starts a fresh drawer session. The previous session's
// movement log is discarded; anyone who needs it keeps the audit trail.
func (s *Service) OpenRegister(ctx context.Context, startBalanceCents int64) (*domain.CashSession, error) {
	if startBalanceCents < 0 {
		return nil, fmt.Errorf("%w: negative opening balance", store.ErrInvalid)
	}

	current, err := s.repo.GetCashSession(ctx)
	if err != nil {
		return nil, err
	}
	if current.Open {
		return nil, ErrRegisterOpen
	}

	now := time.Now().UTC()
	session := domain.CashSession{
		Open:              true,
		OpenedAt:          &now,
		StartBalanceCents: startBalanceCents,
		BalanceCents:      startBalanceCents,
		Movements: []domain.CashMovement{{
			ID:          xid.New("mov"),
			At:          now,
			Type:        domain.MovementOpen,
			AmountCents: startBalanceCents,
			Description: "Abertura de caixa",
		}},
	}

	opened, err := s.repo.OpenCashSession(ctx, session)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrRegisterOpen
		}
		return nil, err
	}

	s.logAudit(ctx, "CAIXA_ABERTO", fmt.Sprintf("saldo_inicial=%d", startBalanceCents))
	return opened, nil
}

func (s *Service) CloseRegister(ctx context.Context) (*domain.CashSession, error) {
	current, err := s.repo.GetCashSession(ctx)
	if err != nil {
		return nil, err
	}
	if !current.Open {
		return nil, ErrRegisterClosed
	}

	now := time.Now().UTC()
	movement := domain.CashMovement{
		ID:          xid.New("mov"),
		At:          now,
		Type:        domain.MovementClose,
		AmountCents: current.BalanceCents,
		Description: "Fechamento de caixa",
	}

	closed, err := s.repo.CloseCashSession(ctx, now, movement)
	if err != nil {
		if errors.Is(err, store.ErrInvalid) {
			return nil, ErrRegisterClosed
		}
		return nil, err
	}

	s.logAudit(ctx, "CAIXA_FECHADO", fmt.Sprintf("saldo_final=%d", movement.AmountCents))
	return closed, nil
}

// AddCashMovement records a manual drawer adjustment: SANGRIA
// (withdrawal) or SUPRIMENTO (deposit). Sales and debt receipts go
// through their own flows.
func (s *Service) AddCashMovement(ctx context.Context, movementType string, amountCents int64, description string) (*domain.CashSession, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("%w: movement amount must be positive", store.ErrInvalid)
	}
	if movementType != domain.MovementWithdrawal && movementType != domain.MovementDeposit {
		return nil, fmt.Errorf("%w: unsupported movement type %q", store.ErrInvalid, movementType)
	}

	current, err := s.repo.GetCashSession(ctx)
	if err != nil {
		return nil, err
	}
	if !current.Open {
		return nil, ErrRegisterClosed
	}

	movement := domain.CashMovement{
		ID:          xid.New("mov"),
		At:          time.Now().UTC(),
		Type:        movementType,
		AmountCents: amountCents,
		Description: strings.TrimSpace(description),
	}

	session, err := s.repo.AppendCashMovement(ctx, movement, movement.SignedCents())
	if err != nil {
		if errors.Is(err, store.ErrInvalid) {
			return nil, ErrRegisterClosed
		}
		return nil, err
	}

	action := "SUPRIMENTO"
	if movementType == domain.MovementWithdrawal {
		action = "SANGRIA"
	}
	s.logAudit(ctx, action, fmt.Sprintf("valor=%d descricao=%s", amountCents, movement.Description))

	return session, nil
}

// PayDebt receives one Carnê installment in cash at the counter. The
// register must be open because the money lands in the drawer.
func (s *Service) PayDebt(ctx context.Context, clientID string, debtID string) (*domain.ClientDebt, error) {
	current, err := s.repo.GetCashSession(ctx)
	if err != nil {
		return nil, err
	}
	if !current.Open {
		return nil, ErrRegisterClosed
	}

	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	debt, err := s.repo.MarkDebtPaid(ctx, clientID, debtID, now)
	if err != nil {
		return nil, err
	}

	movement := domain.CashMovement{
		ID:          xid.New("mov"),
		At:          now,
		Type:        domain.MovementDebtPayment,
		AmountCents: debt.AmountCents,
		Description: fmt.Sprintf("Recebimento carnê %d/%d - %s", debt.InstallmentNumber, debt.TotalInstallments, client.Name),
	}
	if _, err := s.repo.AppendCashMovement(ctx, movement, movement.SignedCents()); err != nil {
		return nil, err
	}

	s.logAudit(ctx, "PAGAMENTO_DIVIDA", fmt.Sprintf("cliente=%s divida=%s valor=%d", clientID, debt.ID, debt.AmountCents))
	return debt, nil
}

// PayAllDebts settles every unpaid installment of a client at once,
// recording a single aggregate drawer movement.
func (s *Service) PayAllDebts(ctx context.Context, clientID string) ([]domain.ClientDebt, error) {
	current, err := s.repo.GetCashSession(ctx)
	if err != nil {
		return nil, err
	}
	if !current.Open {
		return nil, ErrRegisterClosed
	}

	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	paid, err := s.repo.MarkAllDebtsPaid(ctx, clientID, now)
	if err != nil {
		return nil, err
	}
	if len(paid) == 0 {
		return nil, ErrNoUnpaidDebts
	}

	var totalCents int64
	for _, debt := range paid {
		totalCents += debt.AmountCents
	}

	movement := domain.CashMovement{
		ID:          xid.New("mov"),
		At:          now,
		Type:        domain.MovementDebtPayment,
		AmountCents: totalCents,
		Description: fmt.Sprintf("Quitação total carnê - %s (%d parcelas)", client.Name, len(paid)),
	}
	if _, err := s.repo.AppendCashMovement(ctx, movement, movement.SignedCents()); err != nil {
		return nil, err
	}

	s.logAudit(ctx, "PAGAMENTO_TOTAL_DIVIDAS", fmt.Sprintf("cliente=%s parcelas=%d valor=%d", clientID, len(paid), totalCents))
	return paid, nil
}

func (s *Service) UpdateDebtDueDate(ctx context.Context, clientID string, debtID string, due time.Time) error {
	if due.IsZero() {
		return fmt.Errorf("%w: due date required", store.ErrInvalid)
	}
	if err := s.repo.UpdateDebtDueDate(ctx, clientID, debtID, due); err != nil {
		return err
	}
	s.logAudit(ctx, "VENCIMENTO_ALTERADO", fmt.Sprintf("cliente=%s divida=%s vencimento=%s", clientID, debtID, due.Format("2006-01-02")))
	return nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 200
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

// RecordActivity writes a free-form audit entry for events that happen
// outside the service layer, such as logins.
func (s *Service) RecordActivity(ctx context.Context, action string, details string) {
	s.logAudit(ctx, action, details)
}

func (s *Service) logAudit(ctx context.Context, action string, details string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Name: "Sistema"}
	}

	if err := s.repo.AppendAuditLog(ctx, domain.AuditLog{
		ID:       xid.New("audit"),
		At:       time.Now().UTC(),
		UserID:   actor.UserID,
		UserName: actor.Name,
		Action:   action,
		Details:  details,
	}); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

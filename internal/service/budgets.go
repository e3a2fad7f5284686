package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"befit/backend/internal/domain"
	"befit/backend/internal/store"
	"befit/backend/internal/xid"
)

func (s *Service) ListBudgets(ctx context.Context) ([]domain.Budget, error) {
	return s.repo.ListBudgets(ctx)
}

func (s *Service) GetBudget(ctx context.Context, budgetID string) (*domain.Budget, error) {
	return s.repo.GetBudget(ctx, budgetID)
}

func (s *Service) CreateBudget(ctx context.Context, req domain.BudgetCreateRequest) (*domain.Budget, error) {
	req.ClientName = strings.TrimSpace(req.ClientName)
	if req.ClientName == "" && req.ClientID == "" {
		return nil, fmt.Errorf("%w: budget needs a client", store.ErrInvalid)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: budget needs at least one item", store.ErrInvalid)
	}
	if req.ShippingCents < 0 {
		return nil, fmt.Errorf("%w: negative shipping", store.ErrInvalid)
	}

	if req.ClientID != "" {
		client, err := s.repo.GetClient(ctx, req.ClientID)
		if err != nil {
			return nil, err
		}
		req.ClientName = client.Name
	}

	items := make([]domain.CartItem, 0, len(req.Items))
	var itemsTotal int64
	for _, item := range req.Items {
		if item.Quantity < 1 || item.UnitPriceCents < 0 {
			return nil, fmt.Errorf("%w: bad quantity or price on %q", store.ErrInvalid, item.ProductName)
		}
		item.SubtotalCents = item.UnitPriceCents * int64(item.Quantity)
		if item.UID == "" {
			item.UID = xid.New("item")
		}
		itemsTotal += item.SubtotalCents
		items = append(items, item)
	}

	validityDays := req.ValidityDays
	if validityDays < 1 {
		cfg, err := s.repo.GetStoreConfig(ctx)
		if err != nil {
			return nil, err
		}
		validityDays = cfg.BudgetValidityDays
		if validityDays < 1 {
			validityDays = 7
		}
	}

	now := time.Now().UTC()
	budget := domain.Budget{
		ID:              xid.New("budget"),
		IssuedAt:        now,
		ValidUntil:      now.AddDate(0, 0, validityDays),
		ClientID:        req.ClientID,
		ClientName:      req.ClientName,
		ShippingCents:   req.ShippingCents,
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		TotalCents:      itemsTotal + req.ShippingCents,
		Items:           items,
		Status:          domain.BudgetOpen,
		Notes:           strings.TrimSpace(req.Notes),
	}

	created, err := s.repo.CreateBudget(ctx, budget)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "ORCAMENTO_CRIADO", fmt.Sprintf("orcamento=%s cliente=%s total=%d", created.ID, created.ClientName, created.TotalCents))
	return created, nil
}

// UpdateBudget edits an open or approved budget. Converted budgets are
// frozen; they document the sale that came out of them.
func (s *Service) UpdateBudget(ctx context.Context, budgetID string, req domain.BudgetUpdateRequest) (*domain.Budget, error) {
	existing, err := s.repo.GetBudget(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	if existing.Status == domain.BudgetConverted {
		return nil, ErrBudgetConverted
	}

	updated := *existing
	if req.ClientID != nil {
		updated.ClientID = *req.ClientID
		if updated.ClientID != "" {
			client, err := s.repo.GetClient(ctx, updated.ClientID)
			if err != nil {
				return nil, err
			}
			updated.ClientName = client.Name
		}
	}
	if req.ClientName != nil {
		name := strings.TrimSpace(*req.ClientName)
		if name == "" && updated.ClientID == "" {
			return nil, fmt.Errorf("%w: budget needs a client", store.ErrInvalid)
		}
		if name != "" {
			updated.ClientName = name
		}
	}
	if req.ShippingCents != nil {
		if *req.ShippingCents < 0 {
			return nil, fmt.Errorf("%w: negative shipping", store.ErrInvalid)
		}
		updated.ShippingCents = *req.ShippingCents
	}
	if req.DeliveryAddress != nil {
		updated.DeliveryAddress = strings.TrimSpace(*req.DeliveryAddress)
	}
	if req.ValidUntil != nil {
		updated.ValidUntil = *req.ValidUntil
	}
	if req.Items != nil {
		if len(*req.Items) == 0 {
			return nil, fmt.Errorf("%w: budget needs at least one item", store.ErrInvalid)
		}
		items := make([]domain.CartItem, 0, len(*req.Items))
		for _, item := range *req.Items {
			if item.Quantity < 1 || item.UnitPriceCents < 0 {
				return nil, fmt.Errorf("%w: bad quantity or price on %q", store.ErrInvalid, item.ProductName)
			}
			item.SubtotalCents = item.UnitPriceCents * int64(item.Quantity)
			if item.UID == "" {
				item.UID = xid.New("item")
			}
			items = append(items, item)
		}
		updated.Items = items
	}
	if req.Status != nil {
		switch *req.Status {
		case domain.BudgetOpen, domain.BudgetApproved, domain.BudgetCancelled:
			updated.Status = *req.Status
		case domain.BudgetConverted:
			return nil, fmt.Errorf("%w: conversion happens through the sale flow", store.ErrInvalid)
		default:
			return nil, fmt.Errorf("%w: unknown budget status %q", store.ErrInvalid, *req.Status)
		}
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}

	var itemsTotal int64
	for _, item := range updated.Items {
		itemsTotal += item.SubtotalCents
	}
	updated.TotalCents = itemsTotal + updated.ShippingCents

	saved, err := s.repo.UpdateBudget(ctx, updated)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "ORCAMENTO_ATUALIZADO", fmt.Sprintf("orcamento=%s status=%s total=%d", saved.ID, saved.Status, saved.TotalCents))
	return saved, nil
}

func (s *Service) DeleteBudget(ctx context.Context, budgetID string) error {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteBudget(ctx, budgetID); err != nil {
		return err
	}
	s.logAudit(ctx, "ORCAMENTO_REMOVIDO", fmt.Sprintf("orcamento=%s", budgetID))
	return nil
}

// ConvertBudgetToSale settles a budget through the regular sale flow,
// so stock, cash and Carnê behavior stay identical to a counter sale.
// The sale carries the budget id and the budget flips to converted.
func (s *Service) ConvertBudgetToSale(ctx context.Context, budgetID string, req domain.ConvertBudgetRequest) (domain.RecordSaleResult, error) {
	budget, err := s.repo.GetBudget(ctx, budgetID)
	if err != nil {
		return domain.RecordSaleResult{}, err
	}
	if budget.Status == domain.BudgetConverted {
		return domain.RecordSaleResult{}, ErrBudgetConverted
	}
	if budget.Status == domain.BudgetCancelled {
		return domain.RecordSaleResult{}, fmt.Errorf("%w: budget is cancelled", store.ErrInvalid)
	}

	payments := req.Payments
	if len(payments) == 0 {
		payments = []domain.PaymentPart{{Method: domain.PaymentCash, AmountCents: budget.TotalCents}}
	}

	result, err := s.RecordSale(ctx, domain.RecordSaleRequest{
		ClientID:       budget.ClientID,
		FiscalDocument: req.FiscalDocument,
		ShippingCents:  budget.ShippingCents,
		Items:          budget.Items,
		Payments:       payments,
		OriginBudgetID: budget.ID,
	})
	if err != nil {
		return domain.RecordSaleResult{}, err
	}

	s.logAudit(ctx, "ORCAMENTO_CONVERTIDO", fmt.Sprintf("orcamento=%s venda=%s total=%d", budget.ID, result.Sale.ID, result.Sale.TotalCents))
	return result, nil
}

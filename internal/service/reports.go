package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"befit/backend/internal/domain"
)

// TotalReceivables sums every unpaid Carnê installment across clients.
func (s *Service) TotalReceivables(ctx context.Context) (int64, error) {
	return s.repo.SumUnpaidDebts(ctx)
}

// DailyCashBalance is the running drawer balance of the current
// session, open or closed.
func (s *Service) DailyCashBalance(ctx context.Context) (int64, error) {
	session, err := s.repo.GetCashSession(ctx)
	if err != nil {
		return 0, err
	}
	return session.BalanceCents, nil
}

// DashboardSummary aggregates today's numbers for the back-office
// landing page. Results are cached per day with a short TTL; a cache
// failure degrades to a recompute.
func (s *Service) DashboardSummary(ctx context.Context) (*domain.DashboardSummary, error) {
	today := time.Now().UTC().Format("2006-01-02")
	cacheKey := "dashboard:" + today

	if cached, ok, err := s.summaries.Get(ctx, cacheKey); err != nil {
		s.logger.Warn("summary cache read failed", zap.Error(err))
	} else if ok {
		return cached, nil
	}

	summary := &domain.DashboardSummary{Date: today}

	sales, err := s.repo.ListSales(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, sale := range sales {
		if sale.Status != domain.SaleCompleted {
			continue
		}
		if sale.CreatedAt.UTC().Format("2006-01-02") != today {
			continue
		}
		summary.SalesCount++
		summary.SalesTotalCents += sale.TotalCents
	}

	session, err := s.repo.GetCashSession(ctx)
	if err != nil {
		return nil, err
	}
	summary.RegisterOpen = session.Open
	summary.CashBalanceCents = session.BalanceCents

	receivables, err := s.repo.SumUnpaidDebts(ctx)
	if err != nil {
		return nil, err
	}
	summary.TotalReceivablesCents = receivables

	cfg, err := s.repo.GetStoreConfig(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	for _, product := range products {
		if product.TotalStock() <= cfg.LowStockThreshold {
			summary.LowStockProducts++
		}
	}

	if err := s.summaries.Set(ctx, cacheKey, summary, s.summaryTTL); err != nil {
		s.logger.Warn("summary cache write failed", zap.Error(err))
	}

	return summary, nil
}

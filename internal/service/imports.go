package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"befit/backend/internal/domain"
	"befit/backend/internal/inventory"
	"befit/backend/internal/store"
	"befit/backend/internal/xid"
)

// ImportInventory merges a CSV document into the catalog. Rows are
// grouped by reference: an existing product absorbs quantities into
// matching variations (color and size compared case-insensitively) and
// grows new ones; an unknown reference becomes a fresh product with one
// variation per row. Prices only move when the document carries a
// positive price. Suppliers named in the document are created on
// demand.
func (s *Service) ImportInventory(ctx context.Context, document string) (domain.ImportSummary, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.ImportSummary{}, err
	}

	parsed, err := inventory.Parse(document)
	if err != nil {
		return domain.ImportSummary{}, fmt.Errorf("%w: %v", store.ErrInvalid, err)
	}

	summary := domain.ImportSummary{SkippedRows: parsed.SkippedRows}
	now := time.Now().UTC()

	for _, reference := range parsed.References {
		rows := parsed.Groups[reference]
		if len(rows) == 0 {
			continue
		}
		base := rows[0]

		supplierID, created, err := s.ensureSupplier(ctx, base.SupplierName)
		if err != nil {
			return summary, err
		}
		if created {
			summary.SuppliersCreated++
		}

		existing, err := s.repo.GetProductByReference(ctx, reference)
		switch {
		case err == nil:
			added, err := s.mergeIntoProduct(ctx, existing, rows, now)
			if err != nil {
				return summary, err
			}
			summary.ProductsUpdated++
			summary.VariationsAdded += added
		case errors.Is(err, store.ErrNotFound):
			product := domain.Product{
				ID:         xid.New("prod"),
				Reference:  reference,
				Name:       base.Name,
				PriceCents: base.PriceCents,
				SupplierID: supplierID,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			for _, row := range rows {
				product.Variations = append(product.Variations, domain.ProductVariation{
					ID:        xid.New("var"),
					ProductID: product.ID,
					Color:     row.Color,
					Size:      row.Size,
					Stock:     row.Quantity,
				})
			}
			if _, err := s.repo.CreateProduct(ctx, product); err != nil {
				return summary, err
			}
			summary.ProductsCreated++
			summary.VariationsAdded += len(product.Variations)
		default:
			return summary, err
		}
		summary.GroupsProcessed++
	}

	s.logAudit(ctx, "ESTOQUE_IMPORTADO", fmt.Sprintf("grupos=%d criados=%d atualizados=%d variacoes=%d fornecedores=%d ignorados=%d",
		summary.GroupsProcessed, summary.ProductsCreated, summary.ProductsUpdated, summary.VariationsAdded, summary.SuppliersCreated, summary.SkippedRows))

	return summary, nil
}

func (s *Service) mergeIntoProduct(ctx context.Context, existing *domain.Product, rows []inventory.Row, now time.Time) (int, error) {
	updated := *existing
	updated.Variations = append([]domain.ProductVariation(nil), existing.Variations...)

	added := 0
	for _, row := range rows {
		idx := -1
		for i, v := range updated.Variations {
			if strings.EqualFold(v.Color, row.Color) && strings.EqualFold(v.Size, row.Size) {
				idx = i
				break
			}
		}
		if idx >= 0 {
			updated.Variations[idx].Stock += row.Quantity
		} else {
			updated.Variations = append(updated.Variations, domain.ProductVariation{
				ID:        xid.New("var"),
				ProductID: updated.ID,
				Color:     row.Color,
				Size:      row.Size,
				Stock:     row.Quantity,
			})
			added++
		}
		if row.PriceCents > 0 {
			updated.PriceCents = row.PriceCents
		}
	}
	updated.UpdatedAt = now

	if _, err := s.repo.UpdateProduct(ctx, updated); err != nil {
		return 0, err
	}
	return added, nil
}

func (s *Service) ensureSupplier(ctx context.Context, name string) (string, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, nil
	}

	supplier, err := s.repo.GetSupplierByName(ctx, name)
	if err == nil {
		return supplier.ID, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", false, err
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", false, err
	}
	return created.ID, true, nil
}

// ExportInventory renders the catalog back into the import CSV shape.
func (s *Service) ExportInventory(ctx context.Context) (string, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return "", err
	}
	suppliers, err := s.repo.ListSuppliers(ctx)
	if err != nil {
		return "", err
	}

	names := make(map[string]string, len(suppliers))
	for _, supplier := range suppliers {
		names[supplier.ID] = supplier.Name
	}

	return inventory.Export(products, func(supplierID string) string {
		return names[supplierID]
	}), nil
}

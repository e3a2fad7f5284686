// Package inventory implements the delimited-text inventory format:
// Qtd,Nome,Referencia,Cor,Tamanho,Preco,Fornecedor. Parsing tolerates
// quoted fields and Brazilian decimal notation; malformed rows are
// counted and skipped, never fatal.
package inventory

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"befit/backend/internal/domain"
)

// Header is the canonical column order for both import and export.
const Header = "Qtd,Nome,Referencia,Cor,Tamanho,Preco,Fornecedor"

// Row is one parsed inventory line.
type Row struct {
	Quantity     int
	Name         string
	Reference    string
	Color        string
	Size         string
	PriceCents   int64
	SupplierName string
}

// ParseResult groups rows by product reference, preserving first-seen
// group order and per-group row order.
type ParseResult struct {
	References  []string
	Groups      map[string][]Row
	SkippedRows int
}

// Parse reads the whole document. The first line is treated as a header
// and ignored. Rows with fewer than 7 fields or without a reference are
// skipped and counted.
func Parse(text string) (*ParseResult, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read inventory document: %w", err)
	}

	result := &ParseResult{Groups: make(map[string][]Row)}
	for i, record := range records {
		if i == 0 {
			continue
		}
		if isBlankRecord(record) {
			continue
		}
		if len(record) < 7 {
			result.SkippedRows++
			continue
		}

		row := Row{
			Quantity:     parseQuantity(record[0]),
			Name:         strings.TrimSpace(record[1]),
			Reference:    strings.TrimSpace(record[2]),
			Color:        strings.TrimSpace(record[3]),
			Size:         strings.TrimSpace(record[4]),
			PriceCents:   ParsePriceCents(record[5]),
			SupplierName: strings.TrimSpace(record[6]),
		}
		if row.Reference == "" {
			result.SkippedRows++
			continue
		}

		if _, seen := result.Groups[row.Reference]; !seen {
			result.References = append(result.References, row.Reference)
		}
		result.Groups[row.Reference] = append(result.Groups[row.Reference], row)
	}
	return result, nil
}

func isBlankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func parseQuantity(raw string) int {
	qty, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || qty < 0 {
		return 0
	}
	return qty
}

// ParsePriceCents accepts both 1234.56 and the Brazilian 1.234,56
// notation (an optional R$ prefix is stripped). When a comma is present
// it is the decimal separator and dots are thousands separators.
// Unparseable input yields 0.
func ParsePriceCents(raw string) int64 {
	cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "R$"))
	if cleaned == "" {
		return 0
	}
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value < 0 {
		return 0
	}
	return int64(value*100 + 0.5)
}

// FormatPrice renders centavos in the dot-decimal form used on export.
func FormatPrice(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// Export mirrors the import shape: one row per variation, or a single
// row with empty color/size for products without variations. The
// supplierName callback resolves a product's supplier id to its name.
func Export(products []domain.Product, supplierName func(supplierID string) string) string {
	var sb strings.Builder
	sb.WriteString(Header)
	sb.WriteByte('\n')

	writer := csv.NewWriter(&sb)
	for _, p := range products {
		supplier := supplierName(p.SupplierID)
		if len(p.Variations) == 0 {
			writer.Write([]string{
				strconv.Itoa(p.Stock), p.Name, p.Reference, "", "",
				FormatPrice(p.PriceCents), supplier,
			})
			continue
		}
		for _, v := range p.Variations {
			writer.Write([]string{
				strconv.Itoa(v.Stock), p.Name, p.Reference, v.Color, v.Size,
				FormatPrice(p.PriceCents), supplier,
			})
		}
	}
	writer.Flush()
	return sb.String()
}

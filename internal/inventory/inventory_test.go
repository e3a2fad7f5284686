package inventory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"befit/backend/internal/domain"
)

func TestParseGroupsRowsByReference(t *testing.T) {
	document := Header + "\n" +
		"3,Legging Compress,LEG-001,Preto,P,89.90,Malhas Sul\n" +
		"2,Legging Compress,LEG-001,Preto,M,89.90,Malhas Sul\n" +
		"10,Top Fit,TOP-010,Rosa,M,\"R$ 59,90\",Confec Rio\n"

	parsed, err := Parse(document)
	require.NoError(t, err)
	require.Equal(t, []string{"LEG-001", "TOP-010"}, parsed.References)
	require.Len(t, parsed.Groups["LEG-001"], 2)
	require.Equal(t, 0, parsed.SkippedRows)

	top := parsed.Groups["TOP-010"][0]
	require.Equal(t, 10, top.Quantity)
	require.Equal(t, "Rosa", top.Color)
	require.Equal(t, "M", top.Size)
	require.Equal(t, int64(5990), top.PriceCents)
	require.Equal(t, "Confec Rio", top.SupplierName)
}

func TestParseSkipsShortAndReferencelessRows(t *testing.T) {
	document := Header + "\n" +
		"3,so duas colunas\n" +
		"1,Sem Ref,,Preto,P,10.00,Fornecedor\n" +
		"\n" +
		"2,Valida,REF-1,Azul,G,25.00,Fornecedor\n"

	parsed, err := Parse(document)
	require.NoError(t, err)
	require.Equal(t, 2, parsed.SkippedRows)
	require.Equal(t, []string{"REF-1"}, parsed.References)
}

func TestParseToleratesNegativeAndJunkNumbers(t *testing.T) {
	document := Header + "\n" +
		"-5,Qtd Negativa,REF-2,Preto,P,abc,Fornecedor\n"

	parsed, err := Parse(document)
	require.NoError(t, err)
	row := parsed.Groups["REF-2"][0]
	require.Equal(t, 0, row.Quantity)
	require.Equal(t, int64(0), row.PriceCents)
}

func TestParsePriceCents(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{"89.90", 8990},
		{"R$ 89,90", 8990},
		{"1.234,56", 123456},
		{"1234.56", 123456},
		{"R$1.000,00", 100000},
		{"0", 0},
		{"", 0},
		{"abc", 0},
		{"-10,00", 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ParsePriceCents(tc.raw), "input %q", tc.raw)
	}
}

func TestFormatPrice(t *testing.T) {
	require.Equal(t, "89.90", FormatPrice(8990))
	require.Equal(t, "0.05", FormatPrice(5))
	require.Equal(t, "1234.00", FormatPrice(123400))
}

func TestExportWritesOneRowPerVariation(t *testing.T) {
	products := []domain.Product{
		{
			Reference:  "LEG-001",
			Name:       "Legging Compress",
			PriceCents: 8990,
			SupplierID: "sup-1",
			Variations: []domain.ProductVariation{
				{Color: "Preto", Size: "P", Stock: 3},
				{Color: "Preto", Size: "M", Stock: 2},
			},
		},
		{
			Reference:  "ACC-005",
			Name:       "Garrafa Squeeze",
			PriceCents: 1990,
			Stock:      40,
		},
	}

	out := Export(products, func(supplierID string) string {
		if supplierID == "sup-1" {
			return "Malhas Sul"
		}
		return ""
	})

	parsed, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, []string{"LEG-001", "ACC-005"}, parsed.References)
	require.Len(t, parsed.Groups["LEG-001"], 2)
	require.Equal(t, "Malhas Sul", parsed.Groups["LEG-001"][0].SupplierName)

	acc := parsed.Groups["ACC-005"]
	require.Len(t, acc, 1)
	require.Equal(t, 40, acc[0].Quantity)
	require.Empty(t, acc[0].Color)
	require.Empty(t, acc[0].SupplierName)
}

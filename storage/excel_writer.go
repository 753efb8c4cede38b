package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
)

const (
	sheetResults       = "Resultados"
	sheetComparables   = "Comparables"
	sheetOpportunities = "Oportunidades"
	sheetSummary       = "Resumen"

	// linkLabel is the fixed display text for listing URLs; the raw URL is
	// never rendered verbatim.
	linkLabel = "Abrir"
)

// ExcelWriter renders a search result as a spreadsheet: consolidated
// listings, comparables per group, opportunities and a summary sheet.
type ExcelWriter struct {
	path string
}

// NewExcelWriter creates a writer targeting the given .xlsx path.
func NewExcelWriter(path string) *ExcelWriter {
	return &ExcelWriter{path: path}
}

// Export writes the workbook. Opportunities are ordered by absolute ARS
// difference descending; the other sheets keep the result's ordering.
func (w *ExcelWriter) Export(result *models.SearchResult) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("xlsx: create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetResults)
	for _, name := range []string{sheetComparables, sheetOpportunities, sheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("xlsx: create sheet %s: %w", name, err)
		}
	}

	linkStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Color: "1265BE", Underline: "single"},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("xlsx: link style: %w", err)
	}

	if err := w.writeResults(f, result, linkStyle); err != nil {
		return err
	}
	if err := w.writeComparables(f, result, linkStyle); err != nil {
		return err
	}
	if err := w.writeOpportunities(f, result, linkStyle); err != nil {
		return err
	}
	if err := w.writeSummary(f, result); err != nil {
		return err
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("xlsx: save %q: %w", w.path, err)
	}
	return nil
}

func (w *ExcelWriter) writeResults(f *excelize.File, result *models.SearchResult, linkStyle int) error {
	headers := []string{"Vehículo", "Año", "Km", "Caja", "Precio", "Moneda", "Moneda asumida", "Precio USD", "Precio ARS", "Link"}
	if err := writeHeader(f, sheetResults, headers); err != nil {
		return err
	}

	for i, l := range result.Listings {
		row := i + 2
		values := []interface{}{
			l.Title, l.Year, l.Km, string(l.Transmission),
			l.PriceAmount, string(l.PriceCurrency), l.AssumedCurrency,
			l.PriceUSD, l.PriceARS,
		}
		if err := writeRow(f, sheetResults, row, values); err != nil {
			return err
		}
		if err := writeLink(f, sheetResults, len(values)+1, row, l.URL, linkStyle); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(sheetResults, "A", "A", 55)
	return nil
}

func (w *ExcelWriter) writeComparables(f *excelize.File, result *models.SearchResult, linkStyle int) error {
	headers := []string{"Vehículo", "Año", "Precio ARS", "Promedio grupo", "Tamaño grupo", "Diferencia", "% diferencia", "Link"}
	if err := writeHeader(f, sheetComparables, headers); err != nil {
		return err
	}

	row := 2
	for _, g := range result.Groups {
		if g.MemberCount < 2 {
			continue
		}
		for _, m := range g.Members {
			diff := g.AveragePrice - m.PriceARS
			values := []interface{}{
				m.Title, m.Year, m.PriceARS, g.AveragePrice, g.MemberCount,
				diff, diff / g.AveragePrice,
			}
			if err := writeRow(f, sheetComparables, row, values); err != nil {
				return err
			}
			if err := writeLink(f, sheetComparables, len(values)+1, row, m.URL, linkStyle); err != nil {
				return err
			}
			row++
		}
	}

	_ = f.SetColWidth(sheetComparables, "A", "A", 55)
	return nil
}

func (w *ExcelWriter) writeOpportunities(f *excelize.File, result *models.SearchResult, linkStyle int) error {
	headers := []string{
		"Vehículo", "Año", "Link", "Precio ($ ARS)", "Precio de mercado promedio ($ ARS)",
		"Tamaño del grupo analizado", "Diferencia ($ ARS)", "Porcentaje de diferencia",
	}
	if err := writeHeader(f, sheetOpportunities, headers); err != nil {
		return err
	}

	ordered := make([]*models.Opportunity, len(result.Opportunities))
	copy(ordered, result.Opportunities)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DiffARS > ordered[j].DiffARS
	})

	for i, o := range ordered {
		row := i + 2
		if err := writeRow(f, sheetOpportunities, row, []interface{}{o.Listing.Title, o.Listing.Year}); err != nil {
			return err
		}
		if err := writeLink(f, sheetOpportunities, 3, row, o.Listing.URL, linkStyle); err != nil {
			return err
		}
		rest := []interface{}{o.Listing.PriceARS, o.GroupAverage, o.GroupSize, o.DiffARS, o.DiscountPct}
		for c, v := range rest {
			cell, err := excelize.CoordinatesToCellName(c+4, row)
			if err != nil {
				return fmt.Errorf("xlsx: cell name: %w", err)
			}
			if err := f.SetCellValue(sheetOpportunities, cell, v); err != nil {
				return fmt.Errorf("xlsx: set cell: %w", err)
			}
		}
	}

	_ = f.SetColWidth(sheetOpportunities, "A", "A", 55)
	return nil
}

func (w *ExcelWriter) writeSummary(f *excelize.File, result *models.SearchResult) error {
	if err := writeHeader(f, sheetSummary, []string{"key", "value"}); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"raw_listings", result.RawCount},
		{"kept_listings", len(result.Listings)},
		{"dropped_listings", result.Dropped},
		{"groups", len(result.Groups)},
		{"opportunities_count", len(result.Opportunities)},
	}
	for _, yc := range result.ByYear {
		rows = append(rows, []interface{}{fmt.Sprintf("items_year_%d", yc.Year), yc.Items})
	}

	for i, r := range rows {
		if err := writeRow(f, sheetSummary, i+2, r); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	for c, h := range headers {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return fmt.Errorf("xlsx: cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("xlsx: write header: %w", err)
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for c, v := range values {
		cell, err := excelize.CoordinatesToCellName(c+1, row)
		if err != nil {
			return fmt.Errorf("xlsx: cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("xlsx: set cell: %w", err)
		}
	}
	return nil
}

// writeLink writes the fixed "Abrir" label with the listing URL behind it.
// Empty URLs render as a dash.
func writeLink(f *excelize.File, sheet string, col, row int, url string, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("xlsx: cell name: %w", err)
	}
	if url == "" {
		return f.SetCellValue(sheet, cell, "-")
	}
	if err := f.SetCellValue(sheet, cell, linkLabel); err != nil {
		return fmt.Errorf("xlsx: link label: %w", err)
	}
	if err := f.SetCellHyperLink(sheet, cell, url, "External"); err != nil {
		return fmt.Errorf("xlsx: hyperlink: %w", err)
	}
	return f.SetCellStyle(sheet, cell, cell, style)
}

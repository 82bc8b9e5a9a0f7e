package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVExporter renders a Dataset as RFC 4180 CSV with a header row.
type CSVExporter struct {
	bom bool
}

// CSVOption customises a CSVExporter.
type CSVOption func(*CSVExporter)

// WithBOM prefixes the output with a UTF-8 byte order mark so spreadsheet
// tools pick the right encoding for names with diacritics.
func WithBOM() CSVOption {
	return func(e *CSVExporter) { e.bom = true }
}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter(opts ...CSVOption) *CSVExporter {
	e := &CSVExporter{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render encodes data. Cells that a spreadsheet would evaluate as a formula
// are prefixed with a quote.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	buf := &bytes.Buffer{}
	if e.bom {
		buf.Write(utf8BOM)
	}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.titles()); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range data.Rows {
		record := data.record(row)
		for j, cell := range record {
			record[j] = neutralizeFormula(cell)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func neutralizeFormula(cell string) string {
	if cell == "" || !strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
		return cell
	}
	return "'" + cell
}

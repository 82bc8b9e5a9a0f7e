package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth  = 277.0 // A4 landscape minus margins
	pdfLineHeight = 5.0
)

// PDFExporter renders a Dataset as a landscape table with wrapped cells.
type PDFExporter struct {
	now func() time.Time
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{now: time.Now}
}

// Render produces the document. title is printed above the table.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, fmt.Errorf("pdf: %w", err)
	}
	widths := columnWidths(data.Columns)

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, t := range data.titles() {
			pdf.CellFormat(widths[i], 7, tr(t), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}

	pdf.AddPage()
	if title != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 8, tr(title), "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(0, 5, "Generated "+e.now().UTC().Format(time.RFC1123), "", 1, "L", false, 0, "")
	pdf.Ln(2)
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range data.Rows {
		cells := data.record(row)
		lines := make([][]string, len(cells))
		height := 0
		for i, value := range cells {
			lines[i] = pdf.SplitText(tr(value), widths[i]-2)
			if len(lines[i]) == 0 {
				lines[i] = []string{""}
			}
			if len(lines[i]) > height {
				height = len(lines[i])
			}
		}
		rowHeight := float64(height) * pdfLineHeight
		if pdf.GetY()+rowHeight > pageHeight-bottom-5 {
			pdf.AddPage()
			header()
		}
		x, y := pdf.GetXY()
		for i := range cells {
			pdf.Rect(x, y, widths[i], rowHeight, "D")
			for n, line := range lines[i] {
				pdf.SetXY(x+1, y+float64(n)*pdfLineHeight)
				pdf.CellFormat(widths[i]-2, pdfLineHeight, line, "", 0, "L", false, 0, "")
			}
			x += widths[i]
		}
		pdf.SetXY(10, y+rowHeight)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(cols []Column) []float64 {
	total := 0.0
	for _, col := range cols {
		total += weight(col)
	}
	widths := make([]float64, len(cols))
	for i, col := range cols {
		widths[i] = pdfPageWidth * weight(col) / total
	}
	return widths
}

func weight(col Column) float64 {
	if col.Weight <= 0 {
		return 1
	}
	return col.Weight
}

package evidence

import (
	"fmt"

	"github.com/fabworks/fabops/backend/internal/audit"
	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageBreakY = 260.0
	pdfRowHeight  = 6.0
)

type pdfColumn struct {
	header string
	width  float64
}

var pdfEventColumns = []pdfColumn{
	{"Timestamp", 40},
	{"Entity", 28},
	{"Change", 30},
	{"Ver", 10},
	{"User", 30},
	{"Reason", 52},
}

var pdfDocumentColumns = []pdfColumn{
	{"Name", 70},
	{"Type", 40},
	{"Upload Date", 40},
	{"Uploaded By", 40},
}

// writePDF renders an evidence package as a paginated document: a title
// block with the package fingerprint, the events table, a documents table
// when documents exist, and a page-number footer. Total page count is only
// known after layout, so footers use gofpdf's alias substitution pass.
func writePDF(pkg Package, path string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Legal Evidence Package", false)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Legal Evidence Package", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Package hash (SHA-256): %s", pkg.Metadata.PackageHash), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Events: %d    Documents: %d", pkg.Metadata.TotalHistoryEntries, pkg.Metadata.TotalDocuments), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s by %s", isoTime(pkg.Metadata.GeneratedAt), pkg.Metadata.GeneratedBy), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	writeTableHeader(pdf, pdfEventColumns)
	for _, entry := range pkg.Evidence.Timeline {
		if pdf.GetY() > pdfPageBreakY {
			pdf.AddPage()
			writeTableHeader(pdf, pdfEventColumns)
		}
		writeEventRow(pdf, entry)
	}

	if len(pkg.Documents) > 0 {
		pdf.Ln(8)
		if pdf.GetY() > pdfPageBreakY {
			pdf.AddPage()
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Documents", "", 1, "L", false, 0, "")
		writeTableHeader(pdf, pdfDocumentColumns)
		for _, document := range pkg.Documents {
			if pdf.GetY() > pdfPageBreakY {
				pdf.AddPage()
				writeTableHeader(pdf, pdfDocumentColumns)
			}
			writeDocumentRow(pdf, document)
		}
	}

	return pdf.OutputFileAndClose(path)
}

func writeTableHeader(pdf *gofpdf.Fpdf, columns []pdfColumn) {
	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for _, column := range columns {
		pdf.CellFormat(column.width, pdfRowHeight, column.header, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func writeEventRow(pdf *gofpdf.Fpdf, entry audit.Entry) {
	pdf.SetFont("Helvetica", "", 7)
	cells := []string{
		isoTime(entry.CreatedAt),
		fmt.Sprintf("%s#%s", entry.EntityType, idPrefix(entry.EntityID)),
		string(entry.ChangeType),
		fmt.Sprintf("%d", entry.Version),
		entry.ChangedBy,
		entry.ChangeReason,
	}
	for i, column := range pdfEventColumns {
		pdf.CellFormat(column.width, pdfRowHeight, truncate(cells[i], int(column.width/1.6)), "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}

func writeDocumentRow(pdf *gofpdf.Fpdf, document DocumentRecord) {
	pdf.SetFont("Helvetica", "", 7)
	cells := []string{
		document.Name,
		document.MimeType,
		isoTime(document.UploadedAt),
		document.UploadedBy,
	}
	for i, column := range pdfDocumentColumns {
		pdf.CellFormat(column.width, pdfRowHeight, truncate(cells[i], int(column.width/1.6)), "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}

func idPrefix(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(value string, limit int) string {
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}

package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/udsgate/internal/verify"
)

// SaveSessionPDF renders a decode session report into a PDF document.
func SaveSessionPDF(rep SessionReport, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Decode Session Report", false)
	pdf.SetAuthor("udsctl", false)
	pdf.SetCreator("udsctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Decode Session Report")
	addSessionSummarySection(pdf, rep)
	addMessagesSection(pdf, rep.Messages)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

// SaveAcceptancePDF renders a schema lint acceptance report into a PDF
// document.
func SaveAcceptancePDF(rep verify.AcceptanceReport, schemaName, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Schema Lint Report", false)
	pdf.SetAuthor("udsctl", false)
	pdf.SetCreator("udsctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Schema Lint Report")
	addAcceptanceSummarySection(pdf, rep, schemaName)
	addFindingsSection(pdf, rep.Findings)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSessionSummarySection(pdf *gofpdf.Fpdf, rep SessionReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Schema", value: emptyFallback(rep.Schema, "-")},
		{label: "Generated", value: rep.GeneratedAt.Format(time.RFC3339)},
		{label: "Session Digest", value: shortDigest(rep.Digest)},
		{label: "Messages", value: strconv.Itoa(rep.Summary.Messages)},
		{label: "Decoded", value: strconv.Itoa(rep.Summary.Decoded)},
		{label: "Failed", value: strconv.Itoa(rep.Summary.Failed)},
		{label: "Warnings", value: strconv.Itoa(rep.Summary.Warnings)},
		{label: "Overall", value: passLabel(rep.Summary.Pass)},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addMessagesSection(pdf *gofpdf.Fpdf, messages []DecodedMessage) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Messages")
	pdf.Ln(9)

	if len(messages) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No messages decoded.", "", "L", false)
		return
	}

	widths := []float64{60, 120}
	for i, msg := range messages {
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s", i+1, msg.Coded)
		if msg.Structure != "" {
			header += fmt.Sprintf(" -> %s / %s", msg.Service, msg.Structure)
		}
		pdf.MultiCell(0, 5, header, "", "L", false)

		if msg.Error != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, "Error: "+msg.Error, "", "L", false)
			pdf.Ln(2)
			continue
		}

		names := make([]string, 0, len(msg.Values))
		for name := range msg.Values {
			names = append(names, name)
		}
		sort.Strings(names)
		pdf.SetFont("Helvetica", "", 9)
		for _, name := range names {
			renderTableRow(pdf, widths, []string{name, msg.Values[name]}, 5.0)
		}

		if len(msg.Warnings) > 0 {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, "Warnings: "+strings.Join(msg.Warnings, "; "), "", "L", false)
		}
		pdf.Ln(2)
	}
}

func addAcceptanceSummarySection(pdf *gofpdf.Fpdf, rep verify.AcceptanceReport, schemaName string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Schema", value: emptyFallback(schemaName, "-")},
		{label: "Total Findings", value: strconv.Itoa(rep.Summary.Total)},
		{label: "Errors", value: strconv.Itoa(rep.Summary.Errors)},
		{label: "Warnings", value: strconv.Itoa(rep.Summary.Warnings)},
		{label: "Overall", value: passLabel(rep.Summary.Pass)},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addFindingsSection(pdf *gofpdf.Fpdf, findings []verify.Diagnostic) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Findings")
	pdf.Ln(9)

	if len(findings) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No findings recorded.", "", "L", false)
		return
	}

	for i, d := range findings {
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s (%s)", i+1, d.RuleId, severityLabel(d.Severity))
		pdf.MultiCell(0, 5, header, "", "L", false)

		if msg := strings.TrimSpace(d.Message); msg != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, msg, "", "L", false)
		}

		meta := findingMetadata(d)
		if meta != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, meta, "", "L", false)
		}

		if len(d.Refs) > 0 {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, "Refs: "+strings.Join(d.Refs, ", "), "", "L", false)
		}

		pdf.Ln(2)
	}
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		cellText := strings.Join(lines, "\n")
		pdf.MultiCell(widths[i], lineHeight, cellText, "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func severityLabel(sev verify.Severity) string {
	if s := strings.TrimSpace(string(sev)); s != "" {
		return s
	}
	return "UNKNOWN"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

func shortDigest(digest string) string {
	if len(digest) > 16 {
		return digest[:16] + "..."
	}
	return emptyFallback(digest, "-")
}

func findingMetadata(d verify.Diagnostic) string {
	parts := make([]string, 0, 5)
	if !d.Ts.IsZero() {
		parts = append(parts, d.Ts.Format(time.RFC3339))
	}
	if d.Schema != "" {
		parts = append(parts, "Schema "+d.Schema)
	}
	if d.Structure != "" {
		parts = append(parts, "Structure "+d.Structure)
	}
	if d.Parameter != "" {
		parts = append(parts, "Parameter "+d.Parameter)
	}
	if d.Service != "" {
		parts = append(parts, "Service "+d.Service)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " / ")
}

// Package report renders completed-call PDF reports and dispatches them to
// staff by email.
package report

import (
	"bytes"
	"fmt"

	"callsight/internal/calls"

	"github.com/go-pdf/fpdf"
)

// PDFRenderer produces the call report document from a stored call record.
type PDFRenderer struct {
	// Firm is the letterhead printed at the top of every report.
	Firm string
}

func NewPDFRenderer(firm string) *PDFRenderer {
	if firm == "" {
		firm = "Call Report"
	}
	return &PDFRenderer{Firm: firm}
}

func (r *PDFRenderer) Render(c calls.Call) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 18, 18)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(44, 90, 160)
	pdf.CellFormat(0, 10, r.Firm, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(51, 51, 51)
	pdf.CellFormat(0, 8, "Call Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	r.section(pdf, "Call Information", [][2]string{
		{"Phone Number", orUnknown(c.PhoneNumber)},
		{"From Number", orUnknown(c.FromNumber)},
		{"Date/Time", c.CreatedAt.Format("2006-01-02 15:04:05 MST")},
		{"Status", string(c.Status)},
		{"Pathway", orUnknown(c.Pathway)},
		{"Duration", formatDuration(c.DurationSeconds)},
	})

	if c.Summary != "" {
		r.textSection(pdf, "Summary", c.Summary)
	}
	if c.Issues != "" {
		r.textSection(pdf, "Issues", c.Issues)
	}
	if c.TransferredTo != "" {
		r.textSection(pdf, "Transferred To", c.TransferredTo)
	}

	turns := calls.ParseTranscript(c.Transcript)
	if len(turns) > 0 {
		r.heading(pdf, "Transcript")
		for _, t := range turns {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.SetTextColor(59, 130, 246)
			pdf.MultiCell(0, 5, speakerLabel(t), "", "L", false)
			pdf.SetFont("Helvetica", "", 10)
			pdf.SetTextColor(55, 65, 81)
			pdf.MultiCell(0, 5, t.Text, "", "L", false)
			pdf.Ln(2)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("report: pdf render: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) heading(pdf *fpdf.Fpdf, title string) {
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(44, 90, 160)
	pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func (r *PDFRenderer) section(pdf *fpdf.Fpdf, title string, rows [][2]string) {
	r.heading(pdf, title)
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(51, 51, 51)
		pdf.CellFormat(45, 6, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, row[1], "", "L", false)
	}
}

func (r *PDFRenderer) textSection(pdf *fpdf.Fpdf, title, body string) {
	r.heading(pdf, title)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(55, 65, 81)
	pdf.MultiCell(0, 5, body, "", "L", false)
}

func speakerLabel(t calls.Turn) string {
	if t.Speaker == "" {
		return "Unknown:"
	}
	return t.Speaker + ":"
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

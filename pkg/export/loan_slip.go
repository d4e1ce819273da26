package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// SlipLine is one lent physical unit printed on a loan slip.
type SlipLine struct {
	Kind  string
	Code  string
	Title string
}

// LoanSlip carries the data printed on the borrower's receipt.
type LoanSlip struct {
	LoanID       string
	BorrowerName string
	Category     string
	StartAt      time.Time
	DueAt        time.Time
	Lines        []SlipLine
}

// LoanSlipRenderer renders loan slips into a single-page PDF.
type LoanSlipRenderer struct {
	title string
}

// NewLoanSlipRenderer constructs a renderer. An empty title uses a default heading.
func NewLoanSlipRenderer(title string) *LoanSlipRenderer {
	if title == "" {
		title = "Loan slip"
	}
	return &LoanSlipRenderer{title: title}
}

var slipHeaders = []string{"#", "Type", "Code", "Title"}

// Render creates the PDF document for a loan.
func (r *LoanSlipRenderer) Render(slip LoanSlip) ([]byte, error) {
	if slip.LoanID == "" {
		return nil, fmt.Errorf("loan slip requires a loan id")
	}
	if len(slip.Lines) == 0 {
		return nil, fmt.Errorf("loan slip requires at least one unit")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, strings.ToUpper(r.title), "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "", 10)
	meta := [][2]string{
		{"Loan", slip.LoanID},
		{"Borrower", slip.BorrowerName},
		{"Category", slip.Category},
		{"Start", slip.StartAt.Format("2006-01-02 15:04")},
		{"Due", slip.DueAt.Format("2006-01-02 15:04")},
	}
	for _, row := range meta {
		pdf.CellFormat(35, 7, row[0]+":", "", 0, "", false, 0, "")
		pdf.CellFormat(0, 7, row[1], "", 1, "", false, 0, "")
	}
	pdf.Ln(4)

	widths := []float64{10, 40, 50, 90}
	pdf.SetFont("Arial", "B", 10)
	for i, header := range slipHeaders {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for i, line := range slip.Lines {
		cells := []string{fmt.Sprintf("%d", i+1), line.Kind, line.Code, line.Title}
		for j, value := range cells {
			pdf.CellFormat(widths[j], 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render loan slip: %w", err)
	}
	return buf.Bytes(), nil
}

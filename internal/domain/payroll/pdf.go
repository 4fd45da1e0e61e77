package payroll

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

const payslipDateLayout = "2006-01-02"

type payslipLine struct {
	label  string
	amount decimal.Decimal
}

// RenderPayslipPDF writes a single-page A4 payslip to w.
func RenderPayslipPDF(w io.Writer, p Payslip, f *CurrencyFormatter) error {
	if f == nil {
		f = defaultFormatter
	}
	c := p.Calculation

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Payslip", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Payslip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	if p.CompanyName != "" {
		pdf.Cell(0, 7, fmt.Sprintf("Company: %s", p.CompanyName))
		pdf.Ln(6)
	}
	pdf.Cell(0, 7, fmt.Sprintf("Employee: %s", p.EmployeeName))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Employee ID: %s", p.EmployeeID))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s to %s", p.PeriodStart.Format(payslipDateLayout), p.PeriodEnd.Format(payslipDateLayout)))
	pdf.Ln(10)

	section(pdf, f, "Earnings", []payslipLine{
		{"Basic salary", c.BaseSalary},
		{"Housing allowance", c.HousingAllowance},
		{"Transport allowance", c.TransportAllowance},
		{"Lunch allowance", c.LunchAllowance},
		{"Other allowances", c.OtherAllowances},
		{"Bonuses", c.Bonuses},
	}, payslipLine{"Gross pay", c.GrossPay})

	section(pdf, f, "Deductions", []payslipLine{
		{"NAPSA (employee)", c.NapsaEmployee},
		{"NHIMA (employee)", c.NhimaEmployee},
		{"PAYE", c.Paye},
		{"Other deductions", c.OtherDeductions},
	}, payslipLine{"Total deductions", c.TotalDeductions})

	section(pdf, f, "Employer contributions", []payslipLine{
		{"NAPSA (employer)", c.NapsaEmployer},
		{"NHIMA (employer)", c.NhimaEmployer},
	}, payslipLine{})

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(120, 7, "Taxable income", "", 0, "L", false, 0, "")
	pdf.CellFormat(60, 7, f.Format(c.TaxableIncome), "", 1, "R", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(120, 9, "Net pay", "T", 0, "L", false, 0, "")
	pdf.CellFormat(60, 9, f.Format(c.NetPay), "T", 1, "R", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render payslip: %w", err)
	}
	return nil
}

func section(pdf *gofpdf.Fpdf, f *CurrencyFormatter, title string, lines []payslipLine, total payslipLine) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(180, 8, title, "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range lines {
		if line.amount.IsZero() {
			continue
		}
		pdf.CellFormat(120, 6, line.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, f.Format(line.amount), "", 1, "R", false, 0, "")
	}
	if total.label != "" {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(120, 7, total.label, "T", 0, "L", false, 0, "")
		pdf.CellFormat(60, 7, f.Format(total.amount), "T", 1, "R", false, 0, "")
	}
	pdf.Ln(4)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"paydesk/internal/domain/payroll"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "payslip",
		Short:         "Offline payroll calculator",
		Long:          "Calculate payslips and PAYE from YAML files without a database, unseal archived payslips and issue API tokens.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCalcCmd(), newTaxCmd(), newUnsealCmd(), newTokenCmd())
	return root
}

func newCalcCmd() *cobra.Command {
	var inputPath, tablePath, pdfPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Calculate one employee's payslip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := loadTable(tablePath)
			if err != nil {
				return err
			}
			var comp compensationFile
			if err := readYAML(inputPath, &comp); err != nil {
				return err
			}
			input, err := comp.input()
			if err != nil {
				return err
			}
			if err := input.Validate(); err != nil {
				return err
			}
			calc, err := payroll.CalculatePayroll(input, table.Rates, table.Brackets)
			if err != nil {
				return err
			}

			if pdfPath != "" {
				if err := writePDF(pdfPath, comp, calc, table.Formatter); err != nil {
					return err
				}
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(calc)
			}
			return printCalculation(cmd.OutOrStdout(), calc, table.Formatter)
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "compensation YAML file")
	cmd.Flags().StringVarP(&tablePath, "table", "t", "", "statutory table YAML file (defaults to the built-in table)")
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "also write the payslip PDF to this path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the breakdown as JSON")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newTaxCmd() *cobra.Command {
	var tablePath string

	cmd := &cobra.Command{
		Use:   "tax <taxable-income>",
		Short: "Compute PAYE for a taxable income",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			income, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("income %q is not a decimal amount", args[0])
			}
			table, err := loadTable(tablePath)
			if err != nil {
				return err
			}
			tax, err := payroll.CalculateProgressiveTax(income, table.Brackets)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Taxable income\t%s\nPAYE\t%s\n", table.Formatter.Format(income), table.Formatter.Format(tax))
			return err
		},
	}
	cmd.Flags().StringVarP(&tablePath, "table", "t", "", "statutory table YAML file (defaults to the built-in table)")
	return cmd
}

func printCalculation(w io.Writer, calc payroll.PayrollCalculation, f *payroll.CurrencyFormatter) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	rows := []struct {
		label string
		value decimal.Decimal
	}{
		{"Base salary", calc.BaseSalary},
		{"Allowances", calc.TotalAllowances},
		{"Bonuses", calc.Bonuses},
		{"Gross pay", calc.GrossPay},
		{"NAPSA (employee)", calc.NapsaEmployee},
		{"NHIMA (employee)", calc.NhimaEmployee},
		{"Taxable income", calc.TaxableIncome},
		{"PAYE", calc.Paye},
		{"Other deductions", calc.OtherDeductions},
		{"Total deductions", calc.TotalDeductions},
		{"Net pay", calc.NetPay},
		{"NAPSA (employer)", calc.NapsaEmployer},
		{"NHIMA (employer)", calc.NhimaEmployer},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t\n", row.label, f.Format(row.value)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func writePDF(path string, comp compensationFile, calc payroll.PayrollCalculation, f *payroll.CurrencyFormatter) error {
	start, end, err := comp.period()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	slip := payroll.Payslip{
		CompanyName:  comp.Company,
		EmployeeName: comp.Employee.Name,
		EmployeeID:   comp.Employee.ID,
		PeriodStart:  start,
		PeriodEnd:    end,
		Calculation:  calc,
	}
	if err := payroll.RenderPayslipPDF(out, slip, f); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

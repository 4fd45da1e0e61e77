package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateProgressiveTax returns the tax owed on taxableIncome. A bracket
// matches when min < income <= max, so income equal to a bracket's minimum
// is taxed in the bracket below it. Income above every bounded bracket uses
// the bracket with the highest minimum; income below the lowest minimum is
// untaxed.
func CalculateProgressiveTax(taxableIncome decimal.Decimal, brackets []TaxBracket) (decimal.Decimal, error) {
	if len(brackets) == 0 {
		return decimal.Zero, fmt.Errorf("%w: tax bracket set is empty", ErrInvalidConfiguration)
	}

	sorted := SortBrackets(brackets)
	for _, bracket := range sorted {
		if !taxableIncome.GreaterThan(bracket.MinAmount) {
			continue
		}
		if bracket.MaxAmount.Valid && taxableIncome.GreaterThan(bracket.MaxAmount.Decimal) {
			continue
		}
		return bracketTax(taxableIncome, bracket), nil
	}

	top := sorted[len(sorted)-1]
	if taxableIncome.GreaterThan(top.MinAmount) {
		return bracketTax(taxableIncome, top), nil
	}
	return decimal.Zero, nil
}

func bracketTax(income decimal.Decimal, bracket TaxBracket) decimal.Decimal {
	marginal := income.Sub(bracket.MinAmount).Mul(bracket.Rate).Div(hundred)
	return bracket.FixedAmount.Add(marginal)
}

// CalculatePayroll composes the payslip breakdown. Employer contributions
// are informational and never reach NetPay. Nothing is rounded and NetPay
// may come out negative.
func CalculatePayroll(input CompensationInput, rates StatutoryRates, brackets []TaxBracket) (PayrollCalculation, error) {
	out := PayrollCalculation{CompensationInput: input}

	out.TotalAllowances = input.HousingAllowance.
		Add(input.TransportAllowance).
		Add(input.LunchAllowance).
		Add(input.OtherAllowances)
	out.GrossPay = input.BaseSalary.Add(out.TotalAllowances).Add(input.Bonuses)

	out.NapsaEmployee = percentOf(out.GrossPay, rates.NapsaEmployeeRate)
	out.NapsaEmployer = percentOf(out.GrossPay, rates.NapsaEmployerRate)
	out.NhimaEmployee = percentOf(out.GrossPay, rates.NhimaEmployeeRate)
	out.NhimaEmployer = percentOf(out.GrossPay, rates.NhimaEmployerRate)

	// Only the employee pension contribution is pre-tax.
	out.TaxableIncome = out.GrossPay.Sub(out.NapsaEmployee)

	paye, err := CalculateProgressiveTax(out.TaxableIncome, brackets)
	if err != nil {
		return PayrollCalculation{}, err
	}
	out.Paye = paye

	out.TotalDeductions = out.NapsaEmployee.
		Add(out.NhimaEmployee).
		Add(out.Paye).
		Add(input.OtherDeductions)
	out.NetPay = out.GrossPay.Sub(out.TotalDeductions)
	return out, nil
}

func percentOf(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

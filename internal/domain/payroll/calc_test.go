package payroll

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

func bounded(lower, upper, rate, fixed string) TaxBracket {
	u := d(upper)
	return NewBracket(d(lower), &u, d(rate), d(fixed))
}

func unbounded(lower, rate, fixed string) TaxBracket {
	return NewBracket(d(lower), nil, d(rate), d(fixed))
}

// zambianBrackets mirrors a typical monthly PAYE table with cumulative fixed
// amounts precomputed for each band.
func zambianBrackets() []TaxBracket {
	return []TaxBracket{
		bounded("0", "5100", "0", "0"),
		bounded("5100", "7100", "20", "0"),
		bounded("7100", "9200", "30", "400"),
		unbounded("9200", "37", "1030"),
	}
}

func TestCalculatePayrollBaseOnly(t *testing.T) {
	for _, base := range []string{"0", "1", "5100", "7500.55", "123456.789"} {
		calc, err := CalculatePayroll(CompensationInput{BaseSalary: d(base)}, DefaultStatutoryRates(), zambianBrackets())
		require.NoError(t, err)

		assertDecimal(t, base, calc.GrossPay, "grossPay")
		assertDecimal(t, "0", calc.TotalAllowances, "totalAllowances")
		want := calc.NapsaEmployee.Add(calc.NhimaEmployee).Add(calc.Paye)
		assert.Truef(t, want.Equal(calc.TotalDeductions), "base %s: deductions %s != %s", base, calc.TotalDeductions, want)
	}
}

func TestTotalAllowancesIsOrderIndependent(t *testing.T) {
	amounts := []string{"1200.10", "0.05", "333.33", "999999.99"}
	perms := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}

	var first decimal.Decimal
	for i, p := range perms {
		input := CompensationInput{
			BaseSalary:         d("1000"),
			HousingAllowance:   d(amounts[p[0]]),
			TransportAllowance: d(amounts[p[1]]),
			LunchAllowance:     d(amounts[p[2]]),
			OtherAllowances:    d(amounts[p[3]]),
		}
		calc, err := CalculatePayroll(input, DefaultStatutoryRates(), zambianBrackets())
		require.NoError(t, err)
		assertDecimal(t, "1001533.47", calc.TotalAllowances, "totalAllowances")
		if i == 0 {
			first = calc.TotalAllowances
			continue
		}
		assert.True(t, first.Equal(calc.TotalAllowances))
	}
}

func TestProgressiveTaxIsMonotonic(t *testing.T) {
	brackets := zambianBrackets()
	step := d("37.5")
	prev := decimal.Zero
	for income := decimal.Zero; income.LessThan(d("20000")); income = income.Add(step) {
		tax, err := CalculateProgressiveTax(income, brackets)
		require.NoError(t, err)
		require.Falsef(t, tax.LessThan(prev), "tax fell from %s to %s at income %s", prev, tax, income)
		prev = tax
	}
}

func TestProgressiveTaxBoundaryUsesLowerBracket(t *testing.T) {
	brackets := []TaxBracket{
		bounded("0", "4000", "0", "0"),
		bounded("4000", "4800", "25", "0"),
	}

	tax, err := CalculateProgressiveTax(d("4000"), brackets)
	require.NoError(t, err)
	assertDecimal(t, "0", tax, "tax at 4000")

	tax, err = CalculateProgressiveTax(d("4000.01"), brackets)
	require.NoError(t, err)
	assertDecimal(t, "0.0025", tax, "tax at 4000.01")
}

func TestProgressiveTaxEmptyBrackets(t *testing.T) {
	_, err := CalculateProgressiveTax(d("1000"), nil)
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = CalculatePayroll(CompensationInput{BaseSalary: d("1000")}, DefaultStatutoryRates(), []TaxBracket{})
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestCalculatePayrollScenario(t *testing.T) {
	input := CompensationInput{
		BaseSalary:         d("10000"),
		HousingAllowance:   d("2000"),
		TransportAllowance: d("1000"),
		LunchAllowance:     d("500"),
	}
	calc, err := CalculatePayroll(input, DefaultStatutoryRates(), zambianBrackets())
	require.NoError(t, err)

	assertDecimal(t, "3500", calc.TotalAllowances, "totalAllowances")
	assertDecimal(t, "13500", calc.GrossPay, "grossPay")
	assertDecimal(t, "675", calc.NapsaEmployee, "napsaEmployee")
	assertDecimal(t, "675", calc.NapsaEmployer, "napsaEmployer")
	assertDecimal(t, "135", calc.NhimaEmployee, "nhimaEmployee")
	assertDecimal(t, "135", calc.NhimaEmployer, "nhimaEmployer")
	assertDecimal(t, "12825", calc.TaxableIncome, "taxableIncome")
	assertDecimal(t, "2371.25", calc.Paye, "paye")
	assertDecimal(t, "3181.25", calc.TotalDeductions, "totalDeductions")
	assertDecimal(t, "10318.75", calc.NetPay, "netPay")
	assert.Equal(t, input, calc.CompensationInput)
}

func TestProgressiveTaxTopBracketIsUncapped(t *testing.T) {
	brackets := zambianBrackets()
	low, err := CalculateProgressiveTax(d("20000"), brackets)
	require.NoError(t, err)
	high, err := CalculateProgressiveTax(d("50000"), brackets)
	require.NoError(t, err)

	assertDecimal(t, "11100", high.Sub(low), "tax difference")
	assertDecimal(t, "5026", low, "tax at 20000")
}

func TestProgressiveTaxFallsBackToHighestBracket(t *testing.T) {
	// every bracket bounded: income above the last max still uses its rate
	brackets := []TaxBracket{
		bounded("100", "200", "20", "10"),
		bounded("0", "100", "10", "0"),
	}
	tax, err := CalculateProgressiveTax(d("300"), brackets)
	require.NoError(t, err)
	assertDecimal(t, "50", tax, "tax at 300")
}

func TestProgressiveTaxBelowFirstThreshold(t *testing.T) {
	brackets := []TaxBracket{
		bounded("1000", "2000", "10", "0"),
		unbounded("2000", "20", "100"),
	}
	for _, income := range []string{"0", "500", "1000"} {
		tax, err := CalculateProgressiveTax(d(income), brackets)
		require.NoError(t, err)
		assertDecimal(t, "0", tax, "tax at "+income)
	}
}

func TestCalculatePayrollOtherDeductionsAndBonuses(t *testing.T) {
	input := CompensationInput{
		BaseSalary:      d("4000"),
		Bonuses:         d("1000"),
		OtherDeductions: d("250"),
	}
	calc, err := CalculatePayroll(input, DefaultStatutoryRates(), zambianBrackets())
	require.NoError(t, err)

	assertDecimal(t, "0", calc.TotalAllowances, "totalAllowances")
	assertDecimal(t, "5000", calc.GrossPay, "grossPay")
	assertDecimal(t, "4750", calc.TaxableIncome, "taxableIncome")
	assertDecimal(t, "0", calc.Paye, "paye")
	assertDecimal(t, "550", calc.TotalDeductions, "totalDeductions")
	assertDecimal(t, "4450", calc.NetPay, "netPay")
}

func TestCalculatePayrollAllowsNegativeNet(t *testing.T) {
	input := CompensationInput{BaseSalary: d("1000"), OtherDeductions: d("5000")}
	calc, err := CalculatePayroll(input, DefaultStatutoryRates(), zambianBrackets())
	require.NoError(t, err)
	assert.True(t, calc.NetPay.IsNegative())
	assertDecimal(t, "-4060", calc.NetPay, "netPay")
}

func TestCalculatePayrollDoesNotRound(t *testing.T) {
	rates := StatutoryRates{
		NapsaEmployeeRate: d("3.333"),
		NapsaEmployerRate: d("0"),
		NhimaEmployeeRate: d("0"),
		NhimaEmployerRate: d("0"),
	}
	calc, err := CalculatePayroll(CompensationInput{BaseSalary: d("100.01")}, rates, zambianBrackets())
	require.NoError(t, err)
	assertDecimal(t, "3.3333333", calc.NapsaEmployee, "napsaEmployee")
}

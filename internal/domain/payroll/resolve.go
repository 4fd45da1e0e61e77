package payroll

import "fmt"

// ResolveCompensation builds the engine input for one employee, preferring
// the active contract over the flat base salary. It returns the source used.
func ResolveCompensation(employee EmployeeCompensation, adjustment EmployeeAdjustment) (CompensationInput, string, error) {
	input := CompensationInput{
		Bonuses:         adjustment.Bonuses,
		OtherDeductions: adjustment.OtherDeductions,
	}

	switch {
	case employee.Contract != nil:
		input.BaseSalary = employee.Contract.BaseSalary
		input.HousingAllowance = employee.Contract.HousingAllowance
		input.TransportAllowance = employee.Contract.TransportAllowance
		input.LunchAllowance = employee.Contract.LunchAllowance
		input.OtherAllowances = employee.Contract.OtherAllowances
		return input, SourceContract, nil
	case employee.BaseSalary.Valid:
		input.BaseSalary = employee.BaseSalary.Decimal
		return input, SourceBaseSalary, nil
	default:
		return CompensationInput{}, "", fmt.Errorf("%w: %s", ErrNoCompensation, employee.EmployeeID)
	}
}

func recordWarnings(calc PayrollCalculation) []string {
	warnings := []string{}
	if calc.NetPay.IsNegative() {
		warnings = append(warnings, WarningNegativeNet)
	}
	if calc.Paye.IsZero() && calc.GrossPay.IsPositive() {
		warnings = append(warnings, WarningZeroTax)
	}
	return warnings
}

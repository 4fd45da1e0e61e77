package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Validate rejects negative amounts. CalculatePayroll does not call it; the
// run orchestrator and the HTTP layer do.
func (c CompensationInput) Validate() error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"baseSalary", c.BaseSalary},
		{"housingAllowance", c.HousingAllowance},
		{"transportAllowance", c.TransportAllowance},
		{"lunchAllowance", c.LunchAllowance},
		{"otherAllowances", c.OtherAllowances},
		{"bonuses", c.Bonuses},
		{"otherDeductions", c.OtherDeductions},
	}
	for _, field := range fields {
		if field.value.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidInput, field.name)
		}
	}
	return nil
}

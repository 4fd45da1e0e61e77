package payroll

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// ValidateBrackets checks that a bracket set, sorted by minimum, is
// contiguous and non-overlapping with only the last bracket unbounded.
func ValidateBrackets(brackets []TaxBracket) error {
	if len(brackets) == 0 {
		return fmt.Errorf("%w: tax bracket set is empty", ErrInvalidConfiguration)
	}

	sorted := SortBrackets(brackets)
	for i, bracket := range sorted {
		if bracket.MinAmount.IsNegative() {
			return fmt.Errorf("%w: bracket %d has a negative minimum", ErrInvalidConfiguration, i+1)
		}
		if bracket.Rate.IsNegative() || bracket.Rate.GreaterThan(hundred) {
			return fmt.Errorf("%w: bracket %d rate must be between 0 and 100", ErrInvalidConfiguration, i+1)
		}
		if bracket.FixedAmount.IsNegative() {
			return fmt.Errorf("%w: bracket %d has a negative fixed amount", ErrInvalidConfiguration, i+1)
		}

		last := i == len(sorted)-1
		if !bracket.MaxAmount.Valid {
			if !last {
				return fmt.Errorf("%w: only the last bracket may be unbounded", ErrInvalidConfiguration)
			}
			continue
		}
		if !bracket.MaxAmount.Decimal.GreaterThan(bracket.MinAmount) {
			return fmt.Errorf("%w: bracket %d maximum must exceed its minimum", ErrInvalidConfiguration, i+1)
		}
		if !last && !sorted[i+1].MinAmount.Equal(bracket.MaxAmount.Decimal) {
			return fmt.Errorf("%w: bracket %d must start at %s", ErrInvalidConfiguration, i+2, bracket.MaxAmount.Decimal)
		}
	}
	return nil
}

// SortBrackets returns a copy ordered by ascending minimum.
func SortBrackets(brackets []TaxBracket) []TaxBracket {
	sorted := slices.Clone(brackets)
	slices.SortStableFunc(sorted, func(a, b TaxBracket) int {
		return a.MinAmount.Cmp(b.MinAmount)
	})
	return sorted
}

// NewBracket builds a bracket; a nil max marks the unbounded top bracket.
func NewBracket(lower decimal.Decimal, upper *decimal.Decimal, rate, fixed decimal.Decimal) TaxBracket {
	b := TaxBracket{MinAmount: lower, Rate: rate, FixedAmount: fixed}
	if upper != nil {
		b.MaxAmount = decimal.NewNullDecimal(*upper)
	}
	return b
}

// DefaultTaxBrackets is the monthly PAYE table loaded for new tenants.
func DefaultTaxBrackets() []TaxBracket {
	band := func(lower, upper int64, rate, fixed int64) TaxBracket {
		u := decimal.NewFromInt(upper)
		return NewBracket(decimal.NewFromInt(lower), &u, decimal.NewFromInt(rate), decimal.NewFromInt(fixed))
	}
	return []TaxBracket{
		band(0, 5100, 0, 0),
		band(5100, 7100, 20, 0),
		band(7100, 9200, 30, 400),
		NewBracket(decimal.NewFromInt(9200), nil, decimal.NewFromInt(37), decimal.NewFromInt(1030)),
	}
}

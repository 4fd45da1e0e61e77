package payroll

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const (
	DefaultCurrencyCode   = "ZMW"
	DefaultCurrencySymbol = "K"
)

// CurrencyFormatter renders amounts for payslips and reports. Rounding to
// two places happens here and nowhere in the engine.
type CurrencyFormatter struct {
	Code   string
	Symbol string
}

func NewCurrencyFormatter(code, symbol string) (*CurrencyFormatter, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown currency %q", ErrInvalidConfiguration, code)
	}
	if symbol == "" {
		symbol = unit.String()
	}
	return &CurrencyFormatter{Code: unit.String(), Symbol: symbol}, nil
}

func (f *CurrencyFormatter) Format(amount decimal.Decimal) string {
	rounded := amount.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}
	whole, frac, _ := strings.Cut(rounded.StringFixed(2), ".")
	return sign + f.Symbol + groupThousands(whole) + "." + frac
}

// groupThousands works on the digit string so amounts beyond float64
// precision keep every digit.
func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

var defaultFormatter = &CurrencyFormatter{Code: DefaultCurrencyCode, Symbol: DefaultCurrencySymbol}

// FormatCurrency formats amount in the default currency, e.g. K1,234.50.
func FormatCurrency(amount decimal.Decimal) string {
	return defaultFormatter.Format(amount)
}

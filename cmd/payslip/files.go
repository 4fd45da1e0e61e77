package main

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"paydesk/internal/domain/payroll"
)

// tableFile is the on-disk statutory configuration: currency, contribution
// rates and the PAYE bands. Amounts are strings so no precision is lost.
type tableFile struct {
	Currency struct {
		Code   string `yaml:"code"`
		Symbol string `yaml:"symbol"`
	} `yaml:"currency"`
	Rates    map[string]string `yaml:"rates"`
	Brackets []bracketRow      `yaml:"brackets"`
}

type bracketRow struct {
	Min   string `yaml:"min"`
	Max   string `yaml:"max,omitempty"`
	Rate  string `yaml:"rate"`
	Fixed string `yaml:"fixed"`
}

type compensationFile struct {
	Company  string `yaml:"company"`
	Employee struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"employee"`
	Period struct {
		Start string `yaml:"start"`
		End   string `yaml:"end"`
	} `yaml:"period"`
	BaseSalary         string `yaml:"base_salary"`
	HousingAllowance   string `yaml:"housing_allowance"`
	TransportAllowance string `yaml:"transport_allowance"`
	LunchAllowance     string `yaml:"lunch_allowance"`
	OtherAllowances    string `yaml:"other_allowances"`
	Bonuses            string `yaml:"bonuses"`
	OtherDeductions    string `yaml:"other_deductions"`
}

type statutoryTable struct {
	Formatter *payroll.CurrencyFormatter
	Rates     payroll.StatutoryRates
	Brackets  []payroll.TaxBracket
}

func readYAML(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func amount(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %q is not a decimal amount", field, raw)
	}
	return value, nil
}

// loadTable falls back to the built-in defaults when path is empty. Rate
// keys missing from the file keep their default value.
func loadTable(path string) (statutoryTable, error) {
	if path == "" {
		return statutoryTable{
			Formatter: mustFormatter("ZMW", "K"),
			Rates:     payroll.DefaultStatutoryRates(),
			Brackets:  payroll.DefaultTaxBrackets(),
		}, nil
	}

	var file tableFile
	if err := readYAML(path, &file); err != nil {
		return statutoryTable{}, err
	}

	code, symbol := file.Currency.Code, file.Currency.Symbol
	if code == "" {
		code, symbol = "ZMW", "K"
	}
	formatter, err := payroll.NewCurrencyFormatter(code, symbol)
	if err != nil {
		return statutoryTable{}, err
	}

	known := payroll.DefaultStatutoryRates().Settings()
	settings := make(map[string]decimal.Decimal, len(file.Rates))
	for key, raw := range file.Rates {
		if _, ok := known[key]; !ok {
			return statutoryTable{}, fmt.Errorf("rates: unknown key %q", key)
		}
		value, err := amount("rates."+key, raw)
		if err != nil {
			return statutoryTable{}, err
		}
		settings[key] = value
	}
	rates := payroll.RatesFromSettings(settings)
	if err := rates.Validate(); err != nil {
		return statutoryTable{}, err
	}

	brackets := make([]payroll.TaxBracket, 0, len(file.Brackets))
	for i, row := range file.Brackets {
		bracket, err := row.toBracket(i)
		if err != nil {
			return statutoryTable{}, err
		}
		brackets = append(brackets, bracket)
	}
	if err := payroll.ValidateBrackets(brackets); err != nil {
		return statutoryTable{}, err
	}

	return statutoryTable{Formatter: formatter, Rates: rates, Brackets: brackets}, nil
}

func (row bracketRow) toBracket(i int) (payroll.TaxBracket, error) {
	prefix := fmt.Sprintf("brackets[%d]", i)
	minAmount, err := amount(prefix+".min", row.Min)
	if err != nil {
		return payroll.TaxBracket{}, err
	}
	rate, err := amount(prefix+".rate", row.Rate)
	if err != nil {
		return payroll.TaxBracket{}, err
	}
	fixed, err := amount(prefix+".fixed", row.Fixed)
	if err != nil {
		return payroll.TaxBracket{}, err
	}
	bracket := payroll.TaxBracket{MinAmount: minAmount, Rate: rate, FixedAmount: fixed}
	if row.Max != "" {
		maxAmount, err := amount(prefix+".max", row.Max)
		if err != nil {
			return payroll.TaxBracket{}, err
		}
		bracket.MaxAmount = decimal.NewNullDecimal(maxAmount)
	}
	return bracket, nil
}

func (c compensationFile) input() (payroll.CompensationInput, error) {
	var in payroll.CompensationInput
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"base_salary", c.BaseSalary, &in.BaseSalary},
		{"housing_allowance", c.HousingAllowance, &in.HousingAllowance},
		{"transport_allowance", c.TransportAllowance, &in.TransportAllowance},
		{"lunch_allowance", c.LunchAllowance, &in.LunchAllowance},
		{"other_allowances", c.OtherAllowances, &in.OtherAllowances},
		{"bonuses", c.Bonuses, &in.Bonuses},
		{"other_deductions", c.OtherDeductions, &in.OtherDeductions},
	}
	for _, f := range fields {
		value, err := amount(f.name, f.raw)
		if err != nil {
			return payroll.CompensationInput{}, err
		}
		*f.dst = value
	}
	return in, nil
}

func (c compensationFile) period() (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if c.Period.Start != "" {
		if start, err = time.Parse("2006-01-02", c.Period.Start); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("period.start: %w", err)
		}
	}
	if c.Period.End != "" {
		if end, err = time.Parse("2006-01-02", c.Period.End); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("period.end: %w", err)
		}
	}
	return start, end, nil
}

func mustFormatter(code, symbol string) *payroll.CurrencyFormatter {
	f, err := payroll.NewCurrencyFormatter(code, symbol)
	if err != nil {
		panic(err)
	}
	return f
}

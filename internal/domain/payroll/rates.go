package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	defaultNapsaRate = decimal.NewFromInt(5)
	defaultNhimaRate = decimal.NewFromInt(1)
)

// DefaultStatutoryRates returns 5% pension and 1% health on both sides.
func DefaultStatutoryRates() StatutoryRates {
	return StatutoryRates{
		NapsaEmployeeRate: defaultNapsaRate,
		NapsaEmployerRate: defaultNapsaRate,
		NhimaEmployeeRate: defaultNhimaRate,
		NhimaEmployerRate: defaultNhimaRate,
	}
}

// RatesFromSettings maps persisted setting rows onto StatutoryRates. Keys
// that are absent keep their default.
func RatesFromSettings(settings map[string]decimal.Decimal) StatutoryRates {
	rates := DefaultStatutoryRates()
	if v, ok := settings[SettingNapsaEmployeeRate]; ok {
		rates.NapsaEmployeeRate = v
	}
	if v, ok := settings[SettingNapsaEmployerRate]; ok {
		rates.NapsaEmployerRate = v
	}
	if v, ok := settings[SettingNhimaEmployeeRate]; ok {
		rates.NhimaEmployeeRate = v
	}
	if v, ok := settings[SettingNhimaEmployerRate]; ok {
		rates.NhimaEmployerRate = v
	}
	return rates
}

// Settings is the inverse of RatesFromSettings.
func (r StatutoryRates) Settings() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		SettingNapsaEmployeeRate: r.NapsaEmployeeRate,
		SettingNapsaEmployerRate: r.NapsaEmployerRate,
		SettingNhimaEmployeeRate: r.NhimaEmployeeRate,
		SettingNhimaEmployerRate: r.NhimaEmployerRate,
	}
}

func (r StatutoryRates) Validate() error {
	for _, key := range []string{SettingNapsaEmployeeRate, SettingNapsaEmployerRate, SettingNhimaEmployeeRate, SettingNhimaEmployerRate} {
		value := r.Settings()[key]
		if value.IsNegative() || value.GreaterThan(hundred) {
			return fmt.Errorf("%w: %s must be between 0 and 100", ErrInvalidConfiguration, key)
		}
	}
	return nil
}

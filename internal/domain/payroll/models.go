package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// CompensationInput is one employee's pay components for a period.
type CompensationInput struct {
	BaseSalary         decimal.Decimal `json:"baseSalary"`
	HousingAllowance   decimal.Decimal `json:"housingAllowance"`
	TransportAllowance decimal.Decimal `json:"transportAllowance"`
	LunchAllowance     decimal.Decimal `json:"lunchAllowance"`
	OtherAllowances    decimal.Decimal `json:"otherAllowances"`
	Bonuses            decimal.Decimal `json:"bonuses"`
	OtherDeductions    decimal.Decimal `json:"otherDeductions"`
}

// StatutoryRates are contribution percentages (0-100) applied against gross pay.
type StatutoryRates struct {
	NapsaEmployeeRate decimal.Decimal `json:"napsaEmployeeRate"`
	NapsaEmployerRate decimal.Decimal `json:"napsaEmployerRate"`
	NhimaEmployeeRate decimal.Decimal `json:"nhimaEmployeeRate"`
	NhimaEmployerRate decimal.Decimal `json:"nhimaEmployerRate"`
}

// TaxBracket is one row of a progressive income-tax table. An invalid
// MaxAmount marks the unbounded top bracket.
type TaxBracket struct {
	MinAmount   decimal.Decimal     `json:"minAmount"`
	MaxAmount   decimal.NullDecimal `json:"maxAmount"`
	Rate        decimal.Decimal     `json:"rate"`
	FixedAmount decimal.Decimal     `json:"fixedAmount"`
}

// PayrollCalculation is the full payslip breakdown for one employee.
type PayrollCalculation struct {
	CompensationInput

	TotalAllowances decimal.Decimal `json:"totalAllowances"`
	GrossPay        decimal.Decimal `json:"grossPay"`
	NapsaEmployee   decimal.Decimal `json:"napsaEmployee"`
	NapsaEmployer   decimal.Decimal `json:"napsaEmployer"`
	NhimaEmployee   decimal.Decimal `json:"nhimaEmployee"`
	NhimaEmployer   decimal.Decimal `json:"nhimaEmployer"`
	TaxableIncome   decimal.Decimal `json:"taxableIncome"`
	Paye            decimal.Decimal `json:"paye"`
	TotalDeductions decimal.Decimal `json:"totalDeductions"`
	NetPay          decimal.Decimal `json:"netPay"`
}

type Contract struct {
	ID                 string
	BaseSalary         decimal.Decimal
	HousingAllowance   decimal.Decimal
	TransportAllowance decimal.Decimal
	LunchAllowance     decimal.Decimal
	OtherAllowances    decimal.Decimal
}

// EmployeeCompensation is what the store knows about an employee's pay.
// Contract is nil when the employee has no active contract.
type EmployeeCompensation struct {
	EmployeeID string
	FullName   string
	Contract   *Contract
	BaseSalary decimal.NullDecimal
}

type EmployeeAdjustment struct {
	EmployeeID      string          `json:"employeeId" validate:"required"`
	Bonuses         decimal.Decimal `json:"bonuses"`
	OtherDeductions decimal.Decimal `json:"otherDeductions"`
}

type RunRequest struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	EmployeeIDs []string
	Adjustments []EmployeeAdjustment
}

type Run struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"-"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	Status      string    `json:"status"`
	Processed   int       `json:"processed"`
	Failed      int       `json:"failed"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Record struct {
	ID                 string    `json:"id"`
	RunID              string    `json:"runId"`
	EmployeeID         string    `json:"employeeId"`
	EmployeeName       string    `json:"employeeName,omitempty"`
	PeriodStart        time.Time `json:"periodStart"`
	PeriodEnd          time.Time `json:"periodEnd"`
	CompensationSource string    `json:"compensationSource"`
	Status             string    `json:"status"`
	Warnings           []string  `json:"warnings"`
	CreatedAt          time.Time `json:"createdAt"`
	PayrollCalculation
}

type RunFailure struct {
	EmployeeID string `json:"employeeId"`
	Reason     string `json:"reason"`
}

type RunResult struct {
	Run      Run          `json:"run"`
	Records  []Record     `json:"records"`
	Failures []RunFailure `json:"failures"`
}

type RecordFilter struct {
	EmployeeID  string
	RunID       string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// Payslip carries everything the PDF renderer prints.
type Payslip struct {
	CompanyName  string
	EmployeeName string
	EmployeeID   string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Calculation  PayrollCalculation
}

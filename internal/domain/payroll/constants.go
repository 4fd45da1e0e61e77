package payroll

const (
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"

	RecordStatusDraft = "draft"

	WarningNegativeNet = "negative_net"
	WarningZeroTax     = "zero_tax"

	SourceContract   = "contract"
	SourceBaseSalary = "base_salary"

	ContractStatusActive = "active"
	EmployeeStatusActive = "active"

	SettingNapsaEmployeeRate = "napsa_employee_rate"
	SettingNapsaEmployerRate = "napsa_employer_rate"
	SettingNhimaEmployeeRate = "nhima_employee_rate"
	SettingNhimaEmployerRate = "nhima_employer_rate"
)

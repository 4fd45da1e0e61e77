package payroll

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid payroll configuration")
	ErrInvalidInput         = errors.New("invalid compensation input")
	ErrNoCompensation       = errors.New("employee has no active contract or base salary")
	ErrEmployeeNotFound     = errors.New("employee not found")
	ErrRecordNotFound       = errors.New("payroll record not found")
	ErrEmptySelection       = errors.New("no employees selected for payroll run")
	ErrInvalidPeriod        = errors.New("payroll period start must be on or before end")
)

package payroll

import (
	"context"

	"github.com/shopspring/decimal"
)

type StoreAPI interface {
	LoadSettings(ctx context.Context, tenantID string) (map[string]decimal.Decimal, error)
	SaveSettings(ctx context.Context, tenantID string, settings map[string]decimal.Decimal) error
	ActiveBrackets(ctx context.Context, tenantID string) ([]TaxBracket, error)
	ReplaceBrackets(ctx context.Context, tenantID string, brackets []TaxBracket) error
	EmployeeCompensation(ctx context.Context, tenantID, employeeID string) (EmployeeCompensation, error)
	CompanyName(ctx context.Context, tenantID string) (string, error)
	InsertRun(ctx context.Context, run Run, records []Record) error
	CountRecords(ctx context.Context, tenantID string, filter RecordFilter) (int, error)
	ListRecords(ctx context.Context, tenantID string, filter RecordFilter, limit, offset int) ([]Record, error)
	GetRecord(ctx context.Context, tenantID, recordID string) (Record, error)
}

package payroll

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"paydesk/internal/requestctx"
)

// RunObserver receives one callback per finished payroll run.
type RunObserver interface {
	ObserveRun(status string, processed, failed int, duration time.Duration)
}

type Service struct {
	store     StoreAPI
	formatter *CurrencyFormatter
	observer  RunObserver
	archive   *PayslipArchive
	now       func() time.Time
	newID     func() string
}

func NewService(store StoreAPI, formatter *CurrencyFormatter, observer RunObserver, archive *PayslipArchive) *Service {
	if formatter == nil {
		formatter = defaultFormatter
	}
	return &Service{
		store:     store,
		formatter: formatter,
		observer:  observer,
		archive:   archive,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *Service) Formatter() *CurrencyFormatter {
	return s.formatter
}

// ActiveConfiguration loads the tenant's statutory rates (defaults filled)
// and its active bracket set.
func (s *Service) ActiveConfiguration(ctx context.Context, tenantID string) (StatutoryRates, []TaxBracket, error) {
	settings, err := s.store.LoadSettings(ctx, tenantID)
	if err != nil {
		return StatutoryRates{}, nil, fmt.Errorf("load payroll settings: %w", err)
	}
	brackets, err := s.store.ActiveBrackets(ctx, tenantID)
	if err != nil {
		return StatutoryRates{}, nil, fmt.Errorf("load tax brackets: %w", err)
	}
	return RatesFromSettings(settings), brackets, nil
}

// Preview calculates a payslip with the tenant's active configuration
// without persisting anything.
func (s *Service) Preview(ctx context.Context, tenantID string, input CompensationInput) (PayrollCalculation, error) {
	if err := input.Validate(); err != nil {
		return PayrollCalculation{}, err
	}
	rates, brackets, err := s.ActiveConfiguration(ctx, tenantID)
	if err != nil {
		return PayrollCalculation{}, err
	}
	return CalculatePayroll(input, rates, brackets)
}

// RunPayroll calculates and persists one record per selected employee.
// Employees are processed sequentially; a failing employee is reported in
// RunResult.Failures and does not stop the others. Records are inserted
// together at the end, and an insert failure fails the whole run.
func (s *Service) RunPayroll(ctx context.Context, tenantID, actorID string, req RunRequest) (RunResult, error) {
	if req.PeriodEnd.Before(req.PeriodStart) {
		return RunResult{}, ErrInvalidPeriod
	}
	employeeIDs := uniqueIDs(req.EmployeeIDs)
	if len(employeeIDs) == 0 {
		return RunResult{}, ErrEmptySelection
	}

	rates, brackets, err := s.ActiveConfiguration(ctx, tenantID)
	if err != nil {
		return RunResult{}, err
	}
	if len(brackets) == 0 {
		return RunResult{}, fmt.Errorf("%w: no active tax brackets", ErrInvalidConfiguration)
	}

	adjustments := make(map[string]EmployeeAdjustment, len(req.Adjustments))
	for _, adj := range req.Adjustments {
		adjustments[adj.EmployeeID] = adj
	}

	started := s.now()
	run := Run{
		ID:          s.newID(),
		TenantID:    tenantID,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		CreatedBy:   actorID,
		CreatedAt:   started,
	}
	records := []Record{}
	failures := []RunFailure{}

	for _, employeeID := range employeeIDs {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		record, err := s.calculateEmployee(ctx, tenantID, employeeID, adjustments[employeeID], rates, brackets)
		if err != nil {
			requestctx.Logger(ctx).Warn("payroll employee calculation failed", "tenantId", tenantID, "employeeId", employeeID, "err", err)
			failures = append(failures, RunFailure{EmployeeID: employeeID, Reason: err.Error()})
			continue
		}
		record.ID = s.newID()
		record.RunID = run.ID
		record.PeriodStart = req.PeriodStart
		record.PeriodEnd = req.PeriodEnd
		record.Status = RecordStatusDraft
		record.CreatedAt = started
		records = append(records, record)
	}

	run.Processed = len(records)
	run.Failed = len(failures)
	switch {
	case len(records) == 0:
		run.Status = RunStatusFailed
	case len(failures) > 0:
		run.Status = RunStatusPartial
	default:
		run.Status = RunStatusCompleted
	}

	if err := s.store.InsertRun(ctx, run, records); err != nil {
		requestctx.Logger(ctx).Error("payroll run insert failed", "tenantId", tenantID, "runId", run.ID, "records", len(records), "err", err)
		s.observe(RunStatusFailed, 0, len(employeeIDs), started)
		return RunResult{}, fmt.Errorf("persist payroll run: %w", err)
	}
	s.observe(run.Status, run.Processed, run.Failed, started)
	return RunResult{Run: run, Records: records, Failures: failures}, nil
}

func (s *Service) calculateEmployee(ctx context.Context, tenantID, employeeID string, adj EmployeeAdjustment, rates StatutoryRates, brackets []TaxBracket) (Record, error) {
	if _, err := uuid.Parse(employeeID); err != nil {
		return Record{}, fmt.Errorf("%w: %s", ErrEmployeeNotFound, employeeID)
	}
	employee, err := s.store.EmployeeCompensation(ctx, tenantID, employeeID)
	if err != nil {
		return Record{}, err
	}
	input, source, err := ResolveCompensation(employee, adj)
	if err != nil {
		return Record{}, err
	}
	if err := input.Validate(); err != nil {
		return Record{}, err
	}
	calc, err := CalculatePayroll(input, rates, brackets)
	if err != nil {
		return Record{}, err
	}
	return Record{
		EmployeeID:         employee.EmployeeID,
		EmployeeName:       employee.FullName,
		CompensationSource: source,
		Warnings:           recordWarnings(calc),
		PayrollCalculation: calc,
	}, nil
}

func (s *Service) observe(status string, processed, failed int, started time.Time) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveRun(status, processed, failed, s.now().Sub(started))
}

func (s *Service) ListRecords(ctx context.Context, tenantID string, filter RecordFilter, limit, offset int) ([]Record, int, error) {
	total, err := s.store.CountRecords(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	records, err := s.store.ListRecords(ctx, tenantID, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *Service) GetRecord(ctx context.Context, tenantID, recordID string) (Record, error) {
	if _, err := uuid.Parse(recordID); err != nil {
		return Record{}, ErrRecordNotFound
	}
	return s.store.GetRecord(ctx, tenantID, recordID)
}

func (s *Service) GetRates(ctx context.Context, tenantID string) (StatutoryRates, error) {
	settings, err := s.store.LoadSettings(ctx, tenantID)
	if err != nil {
		return StatutoryRates{}, err
	}
	return RatesFromSettings(settings), nil
}

func (s *Service) UpdateRates(ctx context.Context, tenantID string, rates StatutoryRates) error {
	if err := rates.Validate(); err != nil {
		return err
	}
	return s.store.SaveSettings(ctx, tenantID, rates.Settings())
}

func (s *Service) GetBrackets(ctx context.Context, tenantID string) ([]TaxBracket, error) {
	brackets, err := s.store.ActiveBrackets(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return SortBrackets(brackets), nil
}

func (s *Service) ReplaceBrackets(ctx context.Context, tenantID string, brackets []TaxBracket) error {
	if err := ValidateBrackets(brackets); err != nil {
		return err
	}
	return s.store.ReplaceBrackets(ctx, tenantID, SortBrackets(brackets))
}

// PayslipPDF renders the payslip for a stored record. When an archive is
// configured the document is also written there.
func (s *Service) PayslipPDF(ctx context.Context, tenantID, recordID string) ([]byte, Record, error) {
	record, err := s.GetRecord(ctx, tenantID, recordID)
	if err != nil {
		return nil, Record{}, err
	}
	company, err := s.store.CompanyName(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			requestctx.Logger(ctx).Warn("payslip company lookup failed", "tenantId", tenantID, "err", err)
		}
		company = ""
	}

	var buf bytes.Buffer
	slip := Payslip{
		CompanyName:  company,
		EmployeeName: record.EmployeeName,
		EmployeeID:   record.EmployeeID,
		PeriodStart:  record.PeriodStart,
		PeriodEnd:    record.PeriodEnd,
		Calculation:  record.PayrollCalculation,
	}
	if err := RenderPayslipPDF(&buf, slip, s.formatter); err != nil {
		return nil, Record{}, err
	}

	if s.archive != nil {
		if _, err := s.archive.Save(record.ID, buf.Bytes()); err != nil {
			requestctx.Logger(ctx).Warn("payslip archive failed", "recordId", record.ID, "err", err)
		}
	}
	return buf.Bytes(), record, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

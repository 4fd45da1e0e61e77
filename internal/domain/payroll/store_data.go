package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func (s *Store) LoadSettings(ctx context.Context, tenantID string) (map[string]decimal.Decimal, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT setting_key, setting_value::text
    FROM payroll_settings
    WHERE tenant_id = $1
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := map[string]decimal.Decimal{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		value, err := parseDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", key, err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (s *Store) SaveSettings(ctx context.Context, tenantID string, settings map[string]decimal.Decimal) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for key, value := range settings {
		if _, err := tx.Exec(ctx, `
      INSERT INTO payroll_settings (tenant_id, setting_key, setting_value)
      VALUES ($1,$2,$3)
      ON CONFLICT (tenant_id, setting_key)
      DO UPDATE SET setting_value = EXCLUDED.setting_value, updated_at = now()
    `, tenantID, key, value.String()); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ActiveBrackets(ctx context.Context, tenantID string) ([]TaxBracket, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT min_amount::text, max_amount::text, rate::text, fixed_amount::text
    FROM tax_brackets
    WHERE tenant_id = $1 AND is_active = true
    ORDER BY min_amount
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var brackets []TaxBracket
	for rows.Next() {
		var minRaw, rateRaw, fixedRaw string
		var maxRaw *string
		if err := rows.Scan(&minRaw, &maxRaw, &rateRaw, &fixedRaw); err != nil {
			return nil, err
		}
		var bracket TaxBracket
		if bracket.MinAmount, err = parseDecimal(minRaw); err != nil {
			return nil, err
		}
		if bracket.MaxAmount, err = parseNullDecimal(maxRaw); err != nil {
			return nil, err
		}
		if bracket.Rate, err = parseDecimal(rateRaw); err != nil {
			return nil, err
		}
		if bracket.FixedAmount, err = parseDecimal(fixedRaw); err != nil {
			return nil, err
		}
		brackets = append(brackets, bracket)
	}
	return brackets, rows.Err()
}

// ReplaceBrackets deactivates the current set and inserts the new one in a
// single transaction.
func (s *Store) ReplaceBrackets(ctx context.Context, tenantID string, brackets []TaxBracket) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
    UPDATE tax_brackets SET is_active = false
    WHERE tenant_id = $1 AND is_active = true
  `, tenantID); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, bracket := range brackets {
		batch.Queue(`
      INSERT INTO tax_brackets (tenant_id, min_amount, max_amount, rate, fixed_amount, is_active)
      VALUES ($1,$2,$3,$4,$5,true)
    `, tenantID, bracket.MinAmount.String(), nullDecimalParam(bracket.MaxAmount), bracket.Rate.String(), bracket.FixedAmount.String())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) EmployeeCompensation(ctx context.Context, tenantID, employeeID string) (EmployeeCompensation, error) {
	var out EmployeeCompensation
	var salaryRaw, contractID *string
	var contractBase, housing, transport, lunch, other *string
	err := s.DB.QueryRow(ctx, `
    SELECT e.id::text, e.first_name || ' ' || e.last_name, e.base_salary::text,
           c.id::text, c.base_salary::text, c.housing_allowance::text, c.transport_allowance::text,
           c.lunch_allowance::text, c.other_allowances::text
    FROM employees e
    LEFT JOIN LATERAL (
      SELECT ec.id, ec.base_salary, ec.housing_allowance, ec.transport_allowance, ec.lunch_allowance, ec.other_allowances
      FROM employee_contracts ec
      WHERE ec.tenant_id = e.tenant_id AND ec.employee_id = e.id AND ec.status = $3
      ORDER BY ec.start_date DESC
      LIMIT 1
    ) c ON true
    WHERE e.tenant_id = $1 AND e.id = $2 AND e.status = $4
  `, tenantID, employeeID, ContractStatusActive, EmployeeStatusActive).Scan(
		&out.EmployeeID, &out.FullName, &salaryRaw,
		&contractID, &contractBase, &housing, &transport, &lunch, &other,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return EmployeeCompensation{}, ErrEmployeeNotFound
	}
	if err != nil {
		return EmployeeCompensation{}, err
	}

	if out.BaseSalary, err = parseNullDecimal(salaryRaw); err != nil {
		return EmployeeCompensation{}, err
	}
	if contractID != nil {
		contract := &Contract{ID: *contractID}
		for _, field := range []struct {
			raw *string
			dst *decimal.Decimal
		}{
			{contractBase, &contract.BaseSalary},
			{housing, &contract.HousingAllowance},
			{transport, &contract.TransportAllowance},
			{lunch, &contract.LunchAllowance},
			{other, &contract.OtherAllowances},
		} {
			value, err := parseNullDecimal(field.raw)
			if err != nil {
				return EmployeeCompensation{}, err
			}
			*field.dst = value.Decimal
		}
		out.Contract = contract
	}
	return out, nil
}

func (s *Store) CompanyName(ctx context.Context, tenantID string) (string, error) {
	var name string
	if err := s.DB.QueryRow(ctx, "SELECT name FROM tenants WHERE id = $1", tenantID).Scan(&name); err != nil {
		return "", err
	}
	return name, nil
}

// InsertRun writes the run header and every record in one transaction.
func (s *Store) InsertRun(ctx context.Context, run Run, records []Record) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
    INSERT INTO payroll_runs (id, tenant_id, period_start, period_end, status, processed, failed, created_by, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  `, run.ID, run.TenantID, run.PeriodStart, run.PeriodEnd, run.Status, run.Processed, run.Failed, run.CreatedBy, run.CreatedAt); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, record := range records {
		warningsJSON, err := json.Marshal(record.Warnings)
		if err != nil {
			return err
		}
		c := record.PayrollCalculation
		batch.Queue(`
      INSERT INTO payroll_records (
        id, tenant_id, run_id, employee_id, period_start, period_end, compensation_source, status, warnings_json,
        base_salary, housing_allowance, transport_allowance, lunch_allowance, other_allowances, bonuses, other_deductions,
        total_allowances, gross_pay, napsa_employee, napsa_employer, nhima_employee, nhima_employer,
        taxable_income, paye, total_deductions, net_pay, created_at
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
    `,
			record.ID, run.TenantID, run.ID, record.EmployeeID, record.PeriodStart, record.PeriodEnd,
			record.CompensationSource, record.Status, warningsJSON,
			c.BaseSalary.String(), c.HousingAllowance.String(), c.TransportAllowance.String(), c.LunchAllowance.String(),
			c.OtherAllowances.String(), c.Bonuses.String(), c.OtherDeductions.String(),
			c.TotalAllowances.String(), c.GrossPay.String(), c.NapsaEmployee.String(), c.NapsaEmployer.String(),
			c.NhimaEmployee.String(), c.NhimaEmployer.String(),
			c.TaxableIncome.String(), c.Paye.String(), c.TotalDeductions.String(), c.NetPay.String(), record.CreatedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const recordColumns = `
  r.id::text, r.run_id::text, r.employee_id::text, e.first_name || ' ' || e.last_name,
  r.period_start, r.period_end, r.compensation_source, r.status, r.warnings_json, r.created_at,
  r.base_salary::text, r.housing_allowance::text, r.transport_allowance::text, r.lunch_allowance::text,
  r.other_allowances::text, r.bonuses::text, r.other_deductions::text,
  r.total_allowances::text, r.gross_pay::text, r.napsa_employee::text, r.napsa_employer::text,
  r.nhima_employee::text, r.nhima_employer::text, r.taxable_income::text, r.paye::text,
  r.total_deductions::text, r.net_pay::text`

func scanRecord(row pgx.Row) (Record, error) {
	var record Record
	var warningsJSON []byte
	raw := make([]string, 17)
	dest := []any{
		&record.ID, &record.RunID, &record.EmployeeID, &record.EmployeeName,
		&record.PeriodStart, &record.PeriodEnd, &record.CompensationSource, &record.Status, &warningsJSON, &record.CreatedAt,
	}
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	if err := row.Scan(dest...); err != nil {
		return Record{}, err
	}

	c := &record.PayrollCalculation
	targets := []*decimal.Decimal{
		&c.BaseSalary, &c.HousingAllowance, &c.TransportAllowance, &c.LunchAllowance,
		&c.OtherAllowances, &c.Bonuses, &c.OtherDeductions,
		&c.TotalAllowances, &c.GrossPay, &c.NapsaEmployee, &c.NapsaEmployer,
		&c.NhimaEmployee, &c.NhimaEmployer, &c.TaxableIncome, &c.Paye,
		&c.TotalDeductions, &c.NetPay,
	}
	for i, target := range targets {
		value, err := parseDecimal(raw[i])
		if err != nil {
			return Record{}, err
		}
		*target = value
	}
	if err := json.Unmarshal(warningsJSON, &record.Warnings); err != nil || record.Warnings == nil {
		record.Warnings = []string{}
	}
	return record, nil
}

func buildRecordFilter(prefix, tenantID string, filter RecordFilter) (string, []any) {
	query := prefix + " FROM payroll_records r JOIN employees e ON r.employee_id = e.id WHERE r.tenant_id = $1"
	args := []any{tenantID}
	if filter.EmployeeID != "" {
		query += fmt.Sprintf(" AND r.employee_id = $%d", len(args)+1)
		args = append(args, filter.EmployeeID)
	}
	if filter.RunID != "" {
		query += fmt.Sprintf(" AND r.run_id = $%d", len(args)+1)
		args = append(args, filter.RunID)
	}
	if filter.PeriodStart != nil {
		query += fmt.Sprintf(" AND r.period_start >= $%d", len(args)+1)
		args = append(args, *filter.PeriodStart)
	}
	if filter.PeriodEnd != nil {
		query += fmt.Sprintf(" AND r.period_end <= $%d", len(args)+1)
		args = append(args, *filter.PeriodEnd)
	}
	return query, args
}

func (s *Store) CountRecords(ctx context.Context, tenantID string, filter RecordFilter) (int, error) {
	query, args := buildRecordFilter("SELECT COUNT(1)", tenantID, filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListRecords(ctx context.Context, tenantID string, filter RecordFilter, limit, offset int) ([]Record, error) {
	query, args := buildRecordFilter("SELECT "+recordColumns, tenantID, filter)
	query += fmt.Sprintf(" ORDER BY r.period_start DESC, e.last_name, e.first_name LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *Store) GetRecord(ctx context.Context, tenantID, recordID string) (Record, error) {
	query, args := buildRecordFilter("SELECT "+recordColumns, tenantID, RecordFilter{})
	query += " AND r.id = $2"
	args = append(args, recordID)
	record, err := scanRecord(s.DB.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return record, err
}

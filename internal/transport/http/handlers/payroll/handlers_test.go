package payrollhandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydesk/internal/domain/auth"
	"paydesk/internal/domain/payroll"
	"paydesk/internal/transport/http/middleware"
)

const (
	testSecret  = "handler-test-secret"
	tenantID    = "9f0c0000-0000-4000-8000-000000000001"
	empContract = "11111111-1111-4111-8111-111111111111"
	empNoPay    = "33333333-3333-4333-8333-333333333333"
	recordID    = "55555555-5555-4555-8555-555555555555"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type memoryStore struct {
	settings  map[string]decimal.Decimal
	brackets  []payroll.TaxBracket
	employees map[string]payroll.EmployeeCompensation
	records   map[string]payroll.Record
	runs      []payroll.Run
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		brackets: payroll.DefaultTaxBrackets(),
		employees: map[string]payroll.EmployeeCompensation{
			empContract: {
				EmployeeID: empContract,
				FullName:   "Chanda Mwale",
				Contract: &payroll.Contract{
					ID:               "c1",
					BaseSalary:       dec("10000"),
					HousingAllowance: dec("2000"),
				},
			},
			empNoPay: {EmployeeID: empNoPay, FullName: "Nobody Paid"},
		},
		records: map[string]payroll.Record{},
	}
}

func (m *memoryStore) LoadSettings(context.Context, string) (map[string]decimal.Decimal, error) {
	return m.settings, nil
}

func (m *memoryStore) SaveSettings(_ context.Context, _ string, settings map[string]decimal.Decimal) error {
	m.settings = settings
	return nil
}

func (m *memoryStore) ActiveBrackets(context.Context, string) ([]payroll.TaxBracket, error) {
	return m.brackets, nil
}

func (m *memoryStore) ReplaceBrackets(_ context.Context, _ string, brackets []payroll.TaxBracket) error {
	m.brackets = brackets
	return nil
}

func (m *memoryStore) EmployeeCompensation(_ context.Context, _ string, employeeID string) (payroll.EmployeeCompensation, error) {
	emp, ok := m.employees[employeeID]
	if !ok {
		return payroll.EmployeeCompensation{}, payroll.ErrEmployeeNotFound
	}
	return emp, nil
}

func (m *memoryStore) CompanyName(context.Context, string) (string, error) {
	return "Kafue Traders", nil
}

func (m *memoryStore) InsertRun(_ context.Context, run payroll.Run, records []payroll.Record) error {
	m.runs = append(m.runs, run)
	for _, rec := range records {
		m.records[rec.ID] = rec
	}
	return nil
}

func (m *memoryStore) CountRecords(context.Context, string, payroll.RecordFilter) (int, error) {
	return len(m.records), nil
}

func (m *memoryStore) ListRecords(_ context.Context, _ string, _ payroll.RecordFilter, limit, _ int) ([]payroll.Record, error) {
	out := []payroll.Record{}
	for _, rec := range m.records {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *memoryStore) GetRecord(_ context.Context, _ string, id string) (payroll.Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return payroll.Record{}, payroll.ErrRecordNotFound
	}
	return rec, nil
}

type auditCall struct {
	action, entityType, entityID string
}

type fakeAudit struct {
	calls []auditCall
}

func (f *fakeAudit) Record(_ context.Context, _, _, action, entityType, entityID, _, _ string, _, _ any) error {
	f.calls = append(f.calls, auditCall{action, entityType, entityID})
	return nil
}

type memoryIdempotency struct {
	hashes    map[middleware.IdempotencyScope]string
	responses map[middleware.IdempotencyScope]json.RawMessage
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{
		hashes:    map[middleware.IdempotencyScope]string{},
		responses: map[middleware.IdempotencyScope]json.RawMessage{},
	}
}

func (m *memoryIdempotency) Lookup(_ context.Context, scope middleware.IdempotencyScope) (string, json.RawMessage, bool, error) {
	hash, ok := m.hashes[scope]
	return hash, m.responses[scope], ok, nil
}

func (m *memoryIdempotency) Store(_ context.Context, scope middleware.IdempotencyScope, hash string, response json.RawMessage) (bool, error) {
	if existing, ok := m.hashes[scope]; ok && existing != hash {
		return false, nil
	}
	m.hashes[scope] = hash
	m.responses[scope] = response
	return true, nil
}

type harness struct {
	store   *memoryStore
	audit   *fakeAudit
	handler *Handler
	router  http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemoryStore()
	recorder := &fakeAudit{}
	service := payroll.NewService(store, nil, nil, nil)
	h := NewHandler(service, recorder, auth.NewRolePermissionStore(), middleware.NewIdempotency(newMemoryIdempotency()), time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Auth(testSecret))
	r.Route("/api/v1", h.RegisterRoutes)
	return &harness{store: store, audit: recorder, handler: h, router: r}
}

func (h *harness) do(t *testing.T, role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return h.doWithKey(t, role, method, path, body, "")
}

func (h *harness) doWithKey(t *testing.T, role, method, path, body, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(middleware.IdempotencyHeader, key)
	}
	if role != "" {
		token, err := auth.GenerateToken(testSecret, auth.Claims{UserID: "user-1", TenantID: tenantID, RoleName: role}, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestCalculatePreview(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, auth.RoleManager, http.MethodPost, "/api/v1/payroll/calculate", `{"baseSalary":"10000","housingAllowance":2000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var calc payroll.PayrollCalculation
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &calc))
	assert.True(t, dec("12000").Equal(calc.GrossPay))
	assert.True(t, dec("600").Equal(calc.NapsaEmployee))
	assert.Empty(t, h.store.runs)
}

func TestCalculateRejectsNegativeInput(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, auth.RoleManager, http.MethodPost, "/api/v1/payroll/calculate", `{"baseSalary":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeEnvelope(t, rec).Error.Code)
}

func TestRunPayrollIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	body := `{"periodStart":"2024-01-01","periodEnd":"2024-01-31","employeeIds":["` + empContract + `","` + empNoPay + `"],"adjustments":[{"employeeId":"` + empContract + `","bonuses":"500"}]}`
	rec := h.do(t, auth.RolePayroll, http.MethodPost, "/api/v1/payroll/runs", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result payroll.RunResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.Equal(t, payroll.RunStatusPartial, result.Run.Status)
	require.Len(t, result.Records, 1)
	assert.True(t, dec("12500").Equal(result.Records[0].GrossPay))
	require.Len(t, result.Failures, 1)
	assert.Equal(t, empNoPay, result.Failures[0].EmployeeID)

	require.Len(t, h.audit.calls, 1)
	assert.Equal(t, "payroll.run", h.audit.calls[0].action)
	assert.Equal(t, result.Run.ID, h.audit.calls[0].entityID)
}

func TestRunPayrollReplaysIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	body := `{"periodStart":"2024-01-01","periodEnd":"2024-01-31","employeeIds":["` + empContract + `"]}`

	first := h.doWithKey(t, auth.RolePayroll, http.MethodPost, "/api/v1/payroll/runs", body, "run-jan")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := h.doWithKey(t, auth.RolePayroll, http.MethodPost, "/api/v1/payroll/runs", body, "run-jan")
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())

	assert.JSONEq(t, string(decodeEnvelope(t, first).Data), string(decodeEnvelope(t, second).Data))
	assert.Len(t, h.store.runs, 1)
	assert.Len(t, h.audit.calls, 1)

	other := `{"periodStart":"2024-02-01","periodEnd":"2024-02-29","employeeIds":["` + empContract + `"]}`
	conflict := h.doWithKey(t, auth.RolePayroll, http.MethodPost, "/api/v1/payroll/runs", other, "run-jan")
	assert.Equal(t, http.StatusConflict, conflict.Code)
	assert.Equal(t, "idempotency_conflict", decodeEnvelope(t, conflict).Error.Code)
	assert.Len(t, h.store.runs, 1)
}

func TestRunPayrollValidation(t *testing.T) {
	h := newHarness(t)
	cases := map[string]string{
		"empty selection": `{"periodStart":"2024-01-01","periodEnd":"2024-01-31","employeeIds":[]}`,
		"bad date":        `{"periodStart":"Jan 1","periodEnd":"2024-01-31","employeeIds":["x"]}`,
		"reversed period": `{"periodStart":"2024-02-01","periodEnd":"2024-01-31","employeeIds":["x"]}`,
		"not json":        `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := h.do(t, auth.RolePayroll, http.MethodPost, "/api/v1/payroll/runs", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation_error", decodeEnvelope(t, rec).Error.Code)
		})
	}
	assert.Empty(t, h.store.runs)
}

func TestRunPayrollWithoutBracketsIsUnprocessable(t *testing.T) {
	h := newHarness(t)
	h.store.brackets = nil
	body := `{"periodStart":"2024-01-01","periodEnd":"2024-01-31","employeeIds":["` + empContract + `"]}`
	rec := h.do(t, auth.RolePayroll, http.MethodPost, "/api/v1/payroll/runs", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_configuration", decodeEnvelope(t, rec).Error.Code)
	assert.Empty(t, h.store.runs)
}

func TestPermissionsPerRoute(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, "", http.MethodGet, "/api/v1/payroll/records", "").Code)
	assert.Equal(t, http.StatusForbidden, h.do(t, auth.RoleEmployee, http.MethodGet, "/api/v1/payroll/records", "").Code)
	assert.Equal(t, http.StatusForbidden, h.do(t, auth.RoleManager, http.MethodPost, "/api/v1/payroll/runs", `{}`).Code)
	assert.Equal(t, http.StatusForbidden, h.do(t, auth.RoleHR, http.MethodPut, "/api/v1/payroll/settings/rates", `{}`).Code)
}

func TestRecordsAndPayslip(t *testing.T) {
	h := newHarness(t)
	h.store.records[recordID] = payroll.Record{
		ID:          recordID,
		EmployeeID:  empContract,
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		PayrollCalculation: payroll.PayrollCalculation{
			CompensationInput: payroll.CompensationInput{BaseSalary: dec("5000")},
			GrossPay:          dec("5000"),
			NetPay:            dec("4700"),
		},
	}

	list := h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/records?limit=10", "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.Equal(t, "1", list.Header().Get("X-Total-Count"))

	assert.Equal(t, http.StatusBadRequest, h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/records?periodStart=someday", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/records?period=2024-13", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/records?limit=ten", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/records?periodStart=2024-02-01&periodEnd=2024-01-31", "").Code)
	assert.Equal(t, http.StatusOK, h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/records?period=2024-01", "").Code)
	assert.Equal(t, http.StatusOK, h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/records?employeeId="+empContract, "").Code)

	get := h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/records/"+recordID, "")
	require.Equal(t, http.StatusOK, get.Code)
	assert.Contains(t, string(decodeEnvelope(t, get).Data), `"netPay":"4700"`)

	missing := h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/records/not-a-uuid", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)

	pdf := h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/records/"+recordID+"/payslip", "")
	require.Equal(t, http.StatusOK, pdf.Code)
	assert.Equal(t, "application/pdf", pdf.Header().Get("Content-Type"))
	assert.Contains(t, pdf.Header().Get("Content-Disposition"), "payslip-"+empContract+"-2024-01.pdf")
	assert.True(t, strings.HasPrefix(pdf.Body.String(), "%PDF-"))

	require.Len(t, h.audit.calls, 1)
	assert.Equal(t, "payroll.payslip.download", h.audit.calls[0].action)

	export := h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/records/export", "")
	require.Equal(t, http.StatusOK, export.Code)
	assert.Equal(t, "text/csv", export.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(export.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], recordID+","+empContract+",,2024-01-01,2024-01-31,5000.00,"))
	assert.Contains(t, lines[1], ",4700.00,")
	assert.Equal(t, "1", export.Header().Get("X-Total-Count"))
	assert.Empty(t, export.Header().Get("X-Truncated"))
}

func failedFields(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Fields []struct {
					Field string `json:"field"`
				} `json:"fields"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "validation_error", env.Error.Code)
	fields := []string{}
	for _, f := range env.Error.Details.Fields {
		fields = append(fields, f.Field)
	}
	return fields
}

func TestRecordFilterRejectsMalformedIDs(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/api/v1/payroll/records", "/api/v1/payroll/records/export"} {
		rec := h.do(t, auth.RoleHR, http.MethodGet, path+"?employeeId=nope&runId=x", "")
		require.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, []string{"employeeId", "runId"}, failedFields(t, rec), path)
	}
}

func TestRecordFilterRejectsPeriodWithExplicitRange(t *testing.T) {
	h := newHarness(t)

	for _, query := range []string{"period=2024-01&periodStart=2024-01-01", "period=2024-01&periodEnd=2024-01-31"} {
		rec := h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/records?"+query, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
		assert.Equal(t, []string{"period"}, failedFields(t, rec), query)
	}
}

func TestExportRegisterReportsTruncation(t *testing.T) {
	h := newHarness(t)
	h.handler.ExportLimit = 1
	for _, id := range []string{recordID, "66666666-6666-4666-8666-666666666666"} {
		h.store.records[id] = payroll.Record{
			ID:          id,
			EmployeeID:  empContract,
			PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		}
	}

	export := h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/records/export", "")
	require.Equal(t, http.StatusOK, export.Code)
	assert.Equal(t, "2", export.Header().Get("X-Total-Count"))
	assert.Equal(t, "true", export.Header().Get("X-Truncated"))
	lines := strings.Split(strings.TrimSpace(export.Body.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestRatesSettings(t *testing.T) {
	h := newHarness(t)

	get := h.do(t, auth.RoleHR, http.MethodGet, "/api/v1/payroll/settings/rates", "")
	require.Equal(t, http.StatusOK, get.Code)
	var rates payroll.StatutoryRates
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, get).Data, &rates))
	assert.True(t, dec("5").Equal(rates.NapsaEmployeeRate))

	bad := h.do(t, auth.RolePayroll, http.MethodPut, "/api/v1/payroll/settings/rates", `{"napsaEmployeeRate":"120","napsaEmployerRate":"5","nhimaEmployeeRate":"1","nhimaEmployerRate":"1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, bad.Code)

	put := h.do(t, auth.RolePayroll, http.MethodPut, "/api/v1/payroll/settings/rates", `{"napsaEmployeeRate":"4.5","napsaEmployerRate":"5","nhimaEmployeeRate":"1","nhimaEmployerRate":"1"}`)
	require.Equal(t, http.StatusOK, put.Code, put.Body.String())
	assert.True(t, dec("4.5").Equal(h.store.settings[payroll.SettingNapsaEmployeeRate]))

	require.Len(t, h.audit.calls, 1)
	assert.Equal(t, "payroll.settings.rates.update", h.audit.calls[0].action)
}

func TestBracketsSettings(t *testing.T) {
	h := newHarness(t)

	gap := `{"brackets":[{"minAmount":"0","maxAmount":"100","rate":"0","fixedAmount":"0"},{"minAmount":"200","maxAmount":null,"rate":"10","fixedAmount":"0"}]}`
	assert.Equal(t, http.StatusUnprocessableEntity, h.do(t, auth.RolePayroll, http.MethodPut, "/api/v1/payroll/settings/brackets", gap).Code)

	valid := `{"brackets":[{"minAmount":"1000","maxAmount":null,"rate":"25","fixedAmount":"0"},{"minAmount":"0","maxAmount":"1000","rate":"0","fixedAmount":"0"}]}`
	put := h.do(t, auth.RolePayroll, http.MethodPut, "/api/v1/payroll/settings/brackets", valid)
	require.Equal(t, http.StatusOK, put.Code, put.Body.String())
	require.Len(t, h.store.brackets, 2)
	assert.True(t, h.store.brackets[0].MinAmount.IsZero())

	get := h.do(t, auth.RoleManager, http.MethodGet, "/api/v1/payroll/settings/brackets", "")
	require.Equal(t, http.StatusOK, get.Code)
	var payload bracketsPayload
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, get).Data, &payload))
	require.Len(t, payload.Brackets, 2)
	assert.False(t, payload.Brackets[1].MaxAmount.Valid)
}

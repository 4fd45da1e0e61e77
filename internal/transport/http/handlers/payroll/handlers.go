package payrollhandler

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/domain/payroll"
	"paydesk/internal/requestctx"
	"paydesk/internal/transport/http/api"
	"paydesk/internal/transport/http/middleware"
	"paydesk/internal/transport/http/shared"
)

const (
	idempotencyEndpointRun = "payroll.run"
	registerExportLimit    = 10000
	truncatedHeader        = "X-Truncated"
)

type Handler struct {
	Service    *payroll.Service
	Audit      audit.Recorder
	Perms      middleware.PermissionStore
	Idem       *middleware.Idempotency
	RunTimeout time.Duration
	// ExportLimit caps the rows in one register export.
	ExportLimit int
}

func NewHandler(service *payroll.Service, recorder audit.Recorder, perms middleware.PermissionStore, idem *middleware.Idempotency, runTimeout time.Duration) *Handler {
	return &Handler{Service: service, Audit: recorder, Perms: perms, Idem: idem, RunTimeout: runTimeout, ExportLimit: registerExportLimit}
}

type runPayload struct {
	PeriodStart string                       `json:"periodStart" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string                       `json:"periodEnd" validate:"required,datetime=2006-01-02"`
	EmployeeIDs []string                     `json:"employeeIds" validate:"required,min=1,max=5000,dive,required"`
	Adjustments []payroll.EmployeeAdjustment `json:"adjustments" validate:"omitempty,dive"`
}

type bracketsPayload struct {
	Brackets []payroll.TaxBracket `json:"brackets" validate:"required"`
}

type runAuditState struct {
	PeriodStart string `json:"periodStart"`
	PeriodEnd   string `json:"periodEnd"`
	Status      string `json:"status"`
	Processed   int    `json:"processed"`
	Failed      int    `json:"failed"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Post("/calculate", h.handleCalculate)
		r.With(middleware.RequirePermission(auth.PermPayrollRun, h.Perms)).Post("/runs", h.handleRunPayroll)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/records", h.handleListRecords)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/records/export", h.handleExportRegister)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/records/{recordID}", h.handleGetRecord)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/records/{recordID}/payslip", h.handleDownloadPayslip)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/settings/rates", h.handleGetRates)
		r.With(middleware.RequirePermission(auth.PermPayrollSettings, h.Perms)).Put("/settings/rates", h.handleUpdateRates)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/settings/brackets", h.handleGetBrackets)
		r.With(middleware.RequirePermission(auth.PermPayrollSettings, h.Perms)).Put("/settings/brackets", h.handleReplaceBrackets)
	})
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var input payroll.CompensationInput
	if !shared.DecodeJSON(w, r, &input, middleware.GetRequestID(r.Context())) {
		return
	}

	calc, err := h.Service.Preview(r.Context(), user.TenantID, input)
	if err != nil {
		h.fail(w, r, err, "payroll_calculate_failed", "failed to calculate payroll")
		return
	}
	api.Success(w, calc, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRunPayroll(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", requestID)
			return
		}
		api.Fail(w, http.StatusBadRequest, "invalid_request", "failed to read request body", requestID)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var payload runPayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	validator := shared.NewValidator()
	start, _ := validator.Date("periodStart", payload.PeriodStart)
	end, _ := validator.Date("periodEnd", payload.PeriodEnd)
	validator.DateOrder("periodStart", start, "periodEnd", end)
	if validator.Reject(w, requestID) {
		return
	}

	scope := middleware.IdempotencyScope{
		TenantID: user.TenantID,
		UserID:   user.UserID,
		Endpoint: idempotencyEndpointRun,
		Key:      r.Header.Get(middleware.IdempotencyHeader),
	}
	stored, replayed, err := h.Idem.Replay(r.Context(), scope, raw)
	switch {
	case errors.Is(err, middleware.ErrIdempotencyConflict):
		api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different payload", requestID)
		return
	case err != nil:
		requestctx.Logger(r.Context()).Warn("idempotency lookup failed", "err", err)
	case replayed:
		api.Created(w, stored, requestID)
		return
	}

	ctx := r.Context()
	if h.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.RunTimeout)
		defer cancel()
	}

	result, err := h.Service.RunPayroll(ctx, user.TenantID, user.UserID, payroll.RunRequest{
		PeriodStart: start,
		PeriodEnd:   end,
		EmployeeIDs: payload.EmployeeIDs,
		Adjustments: payload.Adjustments,
	})
	if err != nil {
		h.fail(w, r, err, "payroll_run_failed", "failed to run payroll")
		return
	}

	after := runAuditState{
		PeriodStart: payload.PeriodStart,
		PeriodEnd:   payload.PeriodEnd,
		Status:      result.Run.Status,
		Processed:   result.Run.Processed,
		Failed:      result.Run.Failed,
	}
	h.record(r, user, audit.ActionPayrollRun, audit.EntityPayrollRun, result.Run.ID, nil, after)

	if err := h.Idem.Remember(r.Context(), scope, raw, result); err != nil {
		requestctx.Logger(r.Context()).Warn("idempotency save failed", "err", err)
	}

	api.Created(w, result, requestID)
}

func recordFilterFromQuery(r *http.Request, validator *shared.Validator) payroll.RecordFilter {
	query := r.URL.Query()
	filter := payroll.RecordFilter{}
	if raw := query.Get("employeeId"); raw != "" {
		filter.EmployeeID, _ = validator.UUID("employeeId", raw)
	}
	if raw := query.Get("runId"); raw != "" {
		filter.RunID, _ = validator.UUID("runId", raw)
	}
	if raw := query.Get("period"); raw != "" {
		if query.Get("periodStart") != "" || query.Get("periodEnd") != "" {
			validator.Add("period", "cannot be combined with periodStart or periodEnd")
			return filter
		}
		if start, end, ok := validator.Month("period", raw); ok {
			filter.PeriodStart, filter.PeriodEnd = &start, &end
		}
		return filter
	}
	if raw := query.Get("periodStart"); raw != "" {
		if start, ok := validator.Date("periodStart", raw); ok {
			filter.PeriodStart = &start
		}
	}
	if raw := query.Get("periodEnd"); raw != "" {
		if end, ok := validator.Date("periodEnd", raw); ok {
			filter.PeriodEnd = &end
		}
	}
	if filter.PeriodStart != nil && filter.PeriodEnd != nil {
		validator.DateOrder("periodStart", *filter.PeriodStart, "periodEnd", *filter.PeriodEnd)
	}
	return filter
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	validator := shared.NewValidator()
	filter := recordFilterFromQuery(r, validator)
	page := shared.ParsePage(r.URL.Query(), validator, 50, 200)
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	records, total, err := h.Service.ListRecords(r.Context(), user.TenantID, filter, page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err, "payroll_records_failed", "failed to list payroll records")
		return
	}

	shared.SetTotalCount(w, total)
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

// handleExportRegister writes the filtered records as a CSV payroll
// register. Amounts are rounded to two places for the export only.
func (h *Handler) handleExportRegister(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	validator := shared.NewValidator()
	filter := recordFilterFromQuery(r, validator)
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	limit := h.ExportLimit
	if limit <= 0 {
		limit = registerExportLimit
	}
	records, total, err := h.Service.ListRecords(r.Context(), user.TenantID, filter, limit, 0)
	if err != nil {
		h.fail(w, r, err, "export_failed", "failed to export register")
		return
	}

	shared.SetTotalCount(w, total)
	if total > len(records) {
		w.Header().Set(truncatedHeader, "true")
	}
	api.Attachment(w, "text/csv", "payroll-register.csv")
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"record_id", "employee_id", "employee_name", "period_start", "period_end", "gross_pay", "napsa_employee", "nhima_employee", "paye", "other_deductions", "total_deductions", "net_pay", "napsa_employer", "nhima_employer"}); err != nil {
		slog.Warn("export register header write failed", "err", err)
	}
	for _, rec := range records {
		c := rec.PayrollCalculation
		row := []string{rec.ID, rec.EmployeeID, rec.EmployeeName, rec.PeriodStart.Format("2006-01-02"), rec.PeriodEnd.Format("2006-01-02")}
		for _, amount := range []decimal.Decimal{c.GrossPay, c.NapsaEmployee, c.NhimaEmployee, c.Paye, c.OtherDeductions, c.TotalDeductions, c.NetPay, c.NapsaEmployer, c.NhimaEmployer} {
			row = append(row, amount.StringFixed(2))
		}
		if err := writer.Write(row); err != nil {
			slog.Warn("export register row write failed", "err", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.Warn("export register flush failed", "err", err)
	}
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	record, err := h.Service.GetRecord(r.Context(), user.TenantID, chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, err, "payroll_record_failed", "failed to load payroll record")
		return
	}
	api.Success(w, record, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDownloadPayslip(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	pdf, record, err := h.Service.PayslipPDF(r.Context(), user.TenantID, chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, err, "payslip_failed", "failed to render payslip")
		return
	}
	h.record(r, user, audit.ActionPayslipDownload, audit.EntityPayrollRecord, record.ID, nil, nil)

	api.Attachment(w, "application/pdf", payslipFilename(record))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		slog.Warn("payslip write failed", "err", err, "recordId", record.ID)
	}
}

func payslipFilename(record payroll.Record) string {
	return fmt.Sprintf("payslip-%s-%s.pdf", record.EmployeeID, record.PeriodEnd.Format("2006-01"))
}

func (h *Handler) handleGetRates(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	rates, err := h.Service.GetRates(r.Context(), user.TenantID)
	if err != nil {
		h.fail(w, r, err, "payroll_settings_failed", "failed to load statutory rates")
		return
	}
	api.Success(w, rates, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateRates(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var rates payroll.StatutoryRates
	if !shared.DecodeJSON(w, r, &rates, middleware.GetRequestID(r.Context())) {
		return
	}

	before, err := h.Service.GetRates(r.Context(), user.TenantID)
	if err != nil {
		slog.Warn("rates snapshot failed", "err", err, "tenantId", user.TenantID)
	}
	if err := h.Service.UpdateRates(r.Context(), user.TenantID, rates); err != nil {
		h.fail(w, r, err, "payroll_settings_failed", "failed to update statutory rates")
		return
	}
	h.record(r, user, audit.ActionRatesUpdate, audit.EntityPayrollSettings, user.TenantID, before, rates)
	api.Success(w, rates, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetBrackets(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	brackets, err := h.Service.GetBrackets(r.Context(), user.TenantID)
	if err != nil {
		h.fail(w, r, err, "payroll_settings_failed", "failed to load tax brackets")
		return
	}
	api.Success(w, bracketsPayload{Brackets: brackets}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReplaceBrackets(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload bracketsPayload
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}

	before, err := h.Service.GetBrackets(r.Context(), user.TenantID)
	if err != nil {
		slog.Warn("brackets snapshot failed", "err", err, "tenantId", user.TenantID)
	}
	if err := h.Service.ReplaceBrackets(r.Context(), user.TenantID, payload.Brackets); err != nil {
		h.fail(w, r, err, "payroll_settings_failed", "failed to replace tax brackets")
		return
	}
	sorted := payroll.SortBrackets(payload.Brackets)
	h.record(r, user, audit.ActionBracketsReplace, audit.EntityTaxBrackets, user.TenantID, bracketsPayload{Brackets: before}, bracketsPayload{Brackets: sorted})
	api.Success(w, bracketsPayload{Brackets: sorted}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) record(r *http.Request, user auth.UserContext, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, action, entityType, entityID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, after); err != nil {
		slog.Warn("audit record failed", "err", err, "action", action, "entityId", entityID)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, payroll.ErrInvalidInput),
		errors.Is(err, payroll.ErrInvalidPeriod),
		errors.Is(err, payroll.ErrEmptySelection):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), requestID)
	case errors.Is(err, payroll.ErrInvalidConfiguration):
		api.Fail(w, http.StatusUnprocessableEntity, "invalid_configuration", err.Error(), requestID)
	case errors.Is(err, payroll.ErrRecordNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "payroll record not found", requestID)
	case errors.Is(err, context.DeadlineExceeded):
		api.Fail(w, http.StatusGatewayTimeout, "timeout", "payroll request timed out", requestID)
	default:
		slog.Error("payroll request failed", "err", err, "code", code, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, code, message, requestID)
	}
}

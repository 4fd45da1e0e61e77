package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Created(rec, map[string]string{"id": "run-1"}, "req-1")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"id":"run-1"},"requestId":"req-1"}`, rec.Body.String())
}

func TestFailWithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	FailWithDetails(rec, http.StatusBadRequest, "validation_error", "payload validation failed", map[string]any{"fields": []string{"employeeIds"}}, "req-2")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var env struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Contains(t, env.Error.Details, "fields")
}

func TestFailOmitsDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, http.StatusNotFound, "not_found", "record not found", "")
	assert.NotContains(t, rec.Body.String(), "details")
}

func TestAttachmentHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	Attachment(rec, "text/csv", "payroll register.csv")

	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="payroll register.csv"`, rec.Header().Get("Content-Disposition"))
}

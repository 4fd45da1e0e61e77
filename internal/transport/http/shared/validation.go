package shared

import (
	"cmp"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"paydesk/internal/transport/http/api"
)

type ValidationIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Validator collects field issues for query strings and path values.
// JSON bodies go through DecodeJSON instead. A nil *Validator ignores Add.
type Validator struct {
	issues []ValidationIssue
}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Add(field, reason string) {
	if v == nil || strings.TrimSpace(reason) == "" {
		return
	}
	v.issues = append(v.issues, ValidationIssue{Field: strings.TrimSpace(field), Reason: strings.TrimSpace(reason)})
}

func (v *Validator) Date(field, raw string) (time.Time, bool) {
	parsed, err := ParseDate(raw)
	if err != nil || parsed.IsZero() {
		v.Add(field, "must be a valid date in YYYY-MM-DD format")
		return time.Time{}, false
	}
	return parsed, true
}

// UUID returns raw in canonical form, so store filters never see a value the
// database would refuse to cast.
func (v *Validator) UUID(field, raw string) (string, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		v.Add(field, "must be a valid UUID")
		return "", false
	}
	return id.String(), true
}

// Month returns the first and last day of a YYYY-MM value.
func (v *Validator) Month(field, raw string) (time.Time, time.Time, bool) {
	start, end, err := ParseMonth(raw)
	if err != nil {
		v.Add(field, "must be a valid month in YYYY-MM format")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (v *Validator) DateOrder(startField string, start time.Time, endField string, end time.Time) {
	if start.IsZero() || end.IsZero() || !end.Before(start) {
		return
	}
	v.Add(startField, "must be on or before "+endField)
	v.Add(endField, "must be on or after "+startField)
}

func (v *Validator) HasIssues() bool {
	return v != nil && len(v.issues) > 0
}

// Issues returns a sorted copy so responses are stable across requests.
func (v *Validator) Issues() []ValidationIssue {
	if !v.HasIssues() {
		return nil
	}
	out := slices.Clone(v.issues)
	slices.SortStableFunc(out, func(a, b ValidationIssue) int {
		if c := cmp.Compare(a.Field, b.Field); c != 0 {
			return c
		}
		return cmp.Compare(a.Reason, b.Reason)
	})
	return out
}

// Reject writes a 400 with the collected issues and reports whether it did.
func (v *Validator) Reject(w http.ResponseWriter, requestID string) bool {
	if !v.HasIssues() {
		return false
	}
	FailValidation(w, requestID, v.Issues())
	return true
}

func FailValidation(w http.ResponseWriter, requestID string, issues []ValidationIssue) {
	api.FailWithDetails(w, http.StatusBadRequest, "validation_error", "payload validation failed", map[string]any{"fields": issues}, requestID)
}

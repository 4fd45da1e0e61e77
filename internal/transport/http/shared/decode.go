package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"paydesk/internal/transport/http/api"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// DecodeJSON reads a JSON body into dst and runs its validate tags. It
// writes the 400 (or 413 for an oversized body) response itself and returns
// false when the payload is rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, requestID string) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", requestID)
			return false
		}
		FailValidation(w, requestID, []ValidationIssue{{Field: "body", Reason: "invalid json: " + err.Error()}})
		return false
	}
	if issues := StructIssues(dst); len(issues) > 0 {
		FailValidation(w, requestID, issues)
		return false
	}
	return true
}

// StructIssues runs go-playground validation on v and converts the failures
// into field issues keyed by JSON path.
func StructIssues(v any) []ValidationIssue {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationIssue{{Field: "body", Reason: err.Error()}}
	}
	out := NewValidator()
	for _, fe := range fieldErrs {
		out.Add(jsonPath(fe.Namespace()), issueReason(fe))
	}
	return out.Issues()
}

func jsonPath(namespace string) string {
	_, path, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return path
}

func issueReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "max":
		return fmt.Sprintf("must contain at most %s item(s)", fe.Param())
	case "datetime":
		return "must be a valid date in YYYY-MM-DD format"
	case "uuid":
		return "must be a valid UUID"
	case "len":
		return fmt.Sprintf("must have length %s", fe.Param())
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

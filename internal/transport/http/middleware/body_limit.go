package middleware

import (
	"net/http"

	"paydesk/internal/transport/http/api"
)

// BodyLimit caps request bodies on mutating methods. Requests that declare
// an oversized Content-Length are refused before the handler runs; the rest
// are wrapped so decoding fails once the cap is crossed.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes <= 0 || !hasBody(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", GetRequestID(r.Context()))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

package middleware

import "net/http"

// Every response is JSON, CSV or a payslip PDF, so nothing may be framed,
// sniffed or cached.
var apiSecurityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
	{"Cache-Control", "no-store"},
}

const hstsValue = "max-age=63072000; includeSubDomains"

func SecureHeaders(isProd bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers := w.Header()
			for _, h := range apiSecurityHeaders {
				headers.Set(h[0], h[1])
			}
			if isProd {
				headers.Set("Strict-Transport-Security", hstsValue)
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"paydesk/internal/requestctx"
	"paydesk/internal/transport/http/api"
	"paydesk/internal/transport/http/shared"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*windowLimiter)

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(l *windowLimiter) {
		if fn != nil {
			l.keyFn = fn
		}
	}
}

func withClock(now func() time.Time) RateLimitOption {
	return func(l *windowLimiter) { l.now = now }
}

// RateLimit allows limit requests per key in each fixed window. The key is
// the authenticated user, or the client IP for anonymous calls. A limit of
// zero disables the check.
func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	l := newWindowLimiter(limit, window, opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.admit(w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// SensitiveMutationRateLimit gives payroll runs and settings changes their
// own budget of half the base limit. Reads and previews pass untouched.
func SensitiveMutationRateLimit(baseLimit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	l := newWindowLimiter(max(baseLimit/2, 1), window, opts...)
	if baseLimit <= 0 {
		l.limit = 0
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSensitiveMutation(r) && !l.admit(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.TenantID + ":" + user.UserID
	}
	return "ip:" + shared.ClientIP(r)
}

type rateWindow struct {
	count int
	reset time.Time
}

type rateDecision struct {
	allowed   bool
	remaining int
	resetIn   time.Duration
}

type windowLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	keyFn     RateLimitKeyFunc
	now       func() time.Time
	windows   map[string]*rateWindow
	nextSweep time.Time
}

func newWindowLimiter(limit int, window time.Duration, opts ...RateLimitOption) *windowLimiter {
	l := &windowLimiter{
		limit:   limit,
		window:  window,
		keyFn:   actorOrIPKey,
		now:     time.Now,
		windows: map[string]*rateWindow{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *windowLimiter) allow(key string) rateDecision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextSweep) {
		for k, win := range l.windows {
			if now.After(win.reset) {
				delete(l.windows, k)
			}
		}
		l.nextSweep = now.Add(l.window)
	}

	win, ok := l.windows[key]
	if !ok || now.After(win.reset) {
		win = &rateWindow{reset: now.Add(l.window)}
		l.windows[key] = win
	}
	win.count++
	return rateDecision{
		allowed:   win.count <= l.limit,
		remaining: max(l.limit-win.count, 0),
		resetIn:   win.reset.Sub(now),
	}
}

func (l *windowLimiter) admit(w http.ResponseWriter, r *http.Request) bool {
	if l.limit <= 0 {
		return true
	}
	key := l.keyFn(r)
	decision := l.allow(key)
	resetSec := ceilSeconds(decision.resetIn)

	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(decision.remaining))
	headers.Set("X-RateLimit-Reset", strconv.Itoa(resetSec))
	if decision.allowed {
		return true
	}

	headers.Set("Retry-After", strconv.Itoa(max(resetSec, 1)))
	requestctx.Logger(r.Context()).Warn("rate limit exceeded", "key", key, "method", r.Method, "path", r.URL.Path, "limit", l.limit)
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func isSensitiveMutation(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	path := normalizedAPIPath(r.URL.Path)
	return path == "/payroll/runs" || strings.HasPrefix(path, "/payroll/settings/")
}

func normalizedAPIPath(path string) string {
	cleaned := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(path), "/api/v1"), "/")
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return cleaned
}

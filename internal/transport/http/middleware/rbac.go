package middleware

import (
	"context"
	"net/http"

	"paydesk/internal/requestctx"
	"paydesk/internal/transport/http/api"
)

type PermissionStore interface {
	HasPermission(ctx context.Context, role, permission string) (bool, error)
}

// RequirePermission guards a route. Anonymous callers get 401, callers whose
// role lacks the permission get 403 naming the permission they were missing.
func RequirePermission(permission string, store PermissionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)
			user, ok := GetUser(ctx)
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
				return
			}

			allowed, err := store.HasPermission(ctx, user.RoleName, permission)
			switch {
			case err != nil:
				requestctx.Logger(ctx).Error("permission lookup failed", "role", user.RoleName, "permission", permission, "err", err)
				api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", requestID)
			case !allowed:
				requestctx.Logger(ctx).Info("permission denied", "role", user.RoleName, "permission", permission, "path", r.URL.Path)
				api.FailWithDetails(w, http.StatusForbidden, "forbidden", "insufficient permissions", map[string]string{"permission": permission}, requestID)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

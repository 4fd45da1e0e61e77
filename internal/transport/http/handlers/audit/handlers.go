package audithandler

import (
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/transport/http/api"
	"paydesk/internal/transport/http/middleware"
	"paydesk/internal/transport/http/shared"
)

const exportLimit = 10000

type EventReader interface {
	Count(ctx context.Context, tenantID string, filter audit.Filter) (int, error)
	List(ctx context.Context, tenantID string, filter audit.Filter, includeDetails bool, limit, offset int) ([]audit.Event, error)
}

type Handler struct {
	Events EventReader
	Perms  middleware.PermissionStore
}

func NewHandler(events EventReader, perms middleware.PermissionStore) *Handler {
	return &Handler{Events: events, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events", h.handleListEvents)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events/export", h.handleExportEvents)
	})
}

func filterFromQuery(r *http.Request) audit.Filter {
	query := r.URL.Query()
	return audit.Filter{
		Action:     query.Get("action"),
		EntityType: query.Get("entityType"),
		EntityID:   query.Get("entityId"),
		ActorUser:  query.Get("actorUserId"),
	}
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	validator := shared.NewValidator()
	page := shared.ParsePage(r.URL.Query(), validator, 100, 500)
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	filter := filterFromQuery(r)
	includeDetails := r.URL.Query().Get("includeDetails") == "true"
	total, err := h.Events.Count(r.Context(), user.TenantID, filter)
	if err != nil {
		slog.Warn("audit count failed", "err", err)
	}

	events, err := h.Events.List(r.Context(), user.TenantID, filter, includeDetails, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", middleware.GetRequestID(r.Context()))
		return
	}

	shared.SetTotalCount(w, total)
	api.Success(w, events, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	events, err := h.Events.List(r.Context(), user.TenantID, filterFromQuery(r), false, exportLimit, 0)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", middleware.GetRequestID(r.Context()))
		return
	}

	api.Attachment(w, "text/csv", "audit-events.csv")
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "actor_user_id", "action", "entity_type", "entity_id", "request_id", "ip", "created_at"}); err != nil {
		slog.Warn("audit export header failed", "err", err)
	}
	for _, evt := range events {
		if err := writer.Write([]string{evt.ID, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, evt.RequestID, evt.IP, evt.CreatedAt.UTC().Format(time.RFC3339)}); err != nil {
			slog.Warn("audit export row failed", "err", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.Warn("audit export flush failed", "err", err)
	}
}

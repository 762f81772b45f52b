package serverapp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"salesql/internal/assistant"
	"salesql/internal/logging"
	"salesql/internal/middleware"
	"salesql/internal/observability"
	"salesql/internal/salesmodel"
)

// Asker answers one question. *assistant.Assistant implements it.
type Asker interface {
	Ask(ctx context.Context, req assistant.Request) assistant.Response
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type askHandlerConfig struct {
	maxBytes int64
	timeout  time.Duration
	claims   middleware.ClaimNames
	metrics  *observability.AssistantMetrics
	security *observability.SecurityMetrics
}

// askHandler serves POST /v1/ask. Every pipeline outcome, including
// clarifications and failures, is a 200 with the outcome in the body.
func askHandler(asker Asker, cfg askHandlerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{"method not allowed"})
			return
		}
		if cfg.maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.maxBytes)
		}

		var req assistant.Request
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{"request body too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, errorBody{"invalid JSON request: " + err.Error()})
			return
		}
		req.Question = strings.TrimSpace(req.Question)
		if req.Question == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{"question is required"})
			return
		}
		if req.Route != "" {
			route, ok := salesmodel.ParseRoute(string(req.Route))
			if !ok {
				writeJSON(w, http.StatusBadRequest, errorBody{"route must be primary or shipment"})
				return
			}
			req.Route = route
		}

		if access, ok := middleware.AccessFromContext(r.Context(), cfg.claims); ok && access.Restricted() {
			if status, msg := applyAccess(&req, access); status != 0 {
				cfg.security.RecordUnauthorizedAttempt(r.Context(), r.URL.Path, "claims")
				writeJSON(w, status, errorBody{msg})
				return
			}
			if access.Tables != nil {
				cfg.security.RecordClaimRestriction(r.Context(), "tables")
			}
			if access.Route != "" {
				cfg.security.RecordClaimRestriction(r.Context(), "route")
			}
		}

		ctx := r.Context()
		if cfg.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}
		ctx = observability.ContextWithAssistantMetrics(ctx, cfg.metrics)

		writeJSON(w, http.StatusOK, asker.Ask(ctx, req))
	}
}

// applyAccess narrows req to what the caller's token allows. It returns a
// non-zero status when nothing the caller asked for is permitted.
func applyAccess(req *assistant.Request, access middleware.Access) (int, string) {
	if access.Route != "" {
		pinned, ok := salesmodel.ParseRoute(access.Route)
		if !ok {
			return http.StatusForbidden, "token route claim is not a known route"
		}
		if req.Route != "" && req.Route != pinned {
			return http.StatusForbidden, "route " + string(req.Route) + " is not permitted"
		}
		req.Route = pinned
	}

	if access.Tables == nil {
		return 0, ""
	}
	if len(req.AllowedTables) == 0 {
		req.AllowedTables = slices.Clone(access.Tables)
	} else {
		var kept []string
		for _, t := range req.AllowedTables {
			if slices.Contains(access.Tables, t) {
				kept = append(kept, t)
			}
		}
		req.AllowedTables = kept
	}
	if len(req.AllowedTables) == 0 {
		return http.StatusForbidden, "no permitted tables"
	}
	return 0, ""
}

// healthHandler pings the database with a short timeout.
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if db == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "not configured"})
			return
		}
		if err := db.PingContext(ctx); err != nil {
			logging.FromContext(r.Context()).Error("health check failed",
				slog.String("check", "database"),
				slog.String("error", err.Error()),
			)
			// Details stay in the log.
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "ok"})
	}
}

// Invalidator drops cached distinct values. *entity.CachedValues implements it.
type Invalidator interface {
	InvalidateAll(ctx context.Context) (int, error)
}

// cacheInvalidateHandler serves POST /admin/cache/invalidate.
func cacheInvalidateHandler(inv Invalidator, metrics *observability.AssistantMetrics, security *observability.SecurityMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{"method not allowed"})
			return
		}
		ctx := observability.ContextWithAssistantMetrics(r.Context(), metrics)
		logger := logging.FromContext(ctx)

		removed, err := inv.InvalidateAll(ctx)
		security.RecordAdminEndpointAccess(ctx, "cache_invalidate", true, err == nil)
		if err != nil {
			logger.Error("distinct cache invalidation failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody{"cache invalidation failed"})
			return
		}
		logger.Info("distinct cache invalidated", slog.Int("removed", removed))
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "removed": removed})
	}
}

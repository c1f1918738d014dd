package serverapp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"cypher-graphql/internal/audit"
	"cypher-graphql/internal/auth"
	"cypher-graphql/internal/logging"
)

const (
	schemaReloadTimeout = 15 * time.Second
	defaultAuditLimit   = 50
	maxAuditLimit       = 500
)

type snapshotSource interface {
	RefreshNow(ctx context.Context) error
}

type fingerprintSource interface {
	Fingerprint() string
}

type auditReader interface {
	Recent(ctx context.Context, limit uint64) ([]audit.Entry, error)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// healthHandler reports Neo4j connectivity and the active schema
// fingerprint. A nil checker or manager is reported as unchecked.
func healthHandler(checker connectivityChecker, manager fingerprintSource, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		body := map[string]string{"status": "healthy", "neo4j": "unchecked", "schema": "unchecked"}
		status := http.StatusOK

		if manager != nil {
			if fp := manager.Fingerprint(); fp != "" {
				body["schema"] = fp
			} else {
				body["schema"] = "not_ready"
				body["status"] = "unhealthy"
				status = http.StatusServiceUnavailable
			}
		}

		if checker != nil {
			ctx := r.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			if err := checker.VerifyConnectivity(ctx); err != nil {
				reqLogger.Error("health check failed",
					slog.String("check", "neo4j"),
					slog.String("error", err.Error()),
				)
				body["neo4j"] = "failed"
				body["status"] = "unhealthy"
				status = http.StatusServiceUnavailable
			} else {
				body["neo4j"] = "ok"
			}
		}

		writeJSON(w, status, body)
	}
}

func schemaReloadHandler(manager snapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		reqLogger := logging.FromContext(r.Context())
		caller := auth.FromContext(r.Context())
		reqLogger.Info("admin endpoint accessed",
			slog.String("operation", "schema_reload"),
			slog.Bool("authenticated", caller.Authenticated),
			slog.String("subject", caller.Subject),
		)

		ctx, cancel := context.WithTimeout(r.Context(), schemaReloadTimeout)
		defer cancel()
		if err := manager.RefreshNow(ctx); err != nil {
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			// Compile errors can name type definition details; keep them in logs.
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "schema reload failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type auditEntryView struct {
	RequestID  string                 `json:"requestId"`
	Subject    string                 `json:"subject"`
	Mutation   string                 `json:"mutation"`
	Node       string                 `json:"node"`
	Items      int                    `json:"items"`
	Cypher     string                 `json:"cypher"`
	Params     map[string]interface{} `json:"params"`
	Outcome    string                 `json:"outcome"`
	DurationMS int64                  `json:"durationMs"`
	At         time.Time              `json:"at"`
}

// auditListHandler serves GET /admin/audit?limit=N, newest first.
func auditListHandler(store auditReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		limit := defaultAuditLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxAuditLimit)
		}

		entries, err := store.Recent(r.Context(), uint64(limit))
		if err != nil {
			logging.FromContext(r.Context()).Error("audit listing failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "audit listing failed"})
			return
		}
		views := make([]auditEntryView, 0, len(entries))
		for _, e := range entries {
			views = append(views, auditEntryView{
				RequestID:  e.RequestID,
				Subject:    e.Subject,
				Mutation:   e.Mutation,
				Node:       e.Node,
				Items:      e.Items,
				Cypher:     e.Cypher,
				Params:     e.Params,
				Outcome:    e.Outcome,
				DurationMS: e.Duration.Milliseconds(),
				At:         e.At,
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"entries": views})
	}
}

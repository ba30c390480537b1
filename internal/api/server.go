// Package api exposes the assistant over HTTP (chi) and MCP. The HTTP
// surface covers customer queries, document ingestion, and health; the
// MCP server exposes knowledge search and slot listing to MCP clients.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/kalambet/concierge/internal/ingest"
	"github.com/kalambet/concierge/internal/retrieval"
	"github.com/kalambet/concierge/internal/storage"
)

const (
	maxQueryBodySize    = 64 << 10 // 64KB
	maxDocumentBodySize = 10 << 20 // 10MB
)

// QueryHandler processes one customer turn. Satisfied by *supervisor.Supervisor.
type QueryHandler interface {
	HandleQuery(ctx context.Context, customerID, threadID, userQuery string) (string, error)
}

// Deps holds the wiring for the HTTP handler.
type Deps struct {
	Supervisor QueryHandler
	Store      *storage.Store
	Ingestor   *ingest.Ingestor
	Provider   *retrieval.Provider
	Token      string // empty disables bearer auth
}

// NewHandler builds the HTTP router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", handleHealth(deps))

	r.Route("/v1", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(bearerAuth(deps.Token))
		}
		r.Post("/query", handleQuery(deps))
		r.Post("/documents", handleIngestDocument(deps))
		r.Get("/documents", handleListDocuments(deps))
	})

	return r
}

type queryRequest struct {
	CustomerID string `json:"customer_id"`
	ThreadID   string `json:"thread_id"`
	UserQuery  string `json:"user_query"`
}

type queryResponse struct {
	ThreadID string `json:"thread_id"`
	Response string `json:"response"`
}

func handleQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxQueryBodySize)
		defer r.Body.Close()

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.CustomerID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "customer_id is required")
			return
		}
		if strings.TrimSpace(req.UserQuery) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_query is required")
			return
		}
		// A missing thread ID starts a fresh conversation; the assigned ID
		// comes back in the response for the client to continue on.
		if req.ThreadID == "" {
			req.ThreadID = uuid.New().String()
		}

		reply, err := deps.Supervisor.HandleQuery(r.Context(), req.CustomerID, req.ThreadID, req.UserQuery)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "processing query: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, queryResponse{ThreadID: req.ThreadID, Response: reply})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Provider == nil || deps.Provider.Engine() == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "retrieval engine not initialized")
			return
		}
		if err := deps.Store.DB().PingContext(r.Context()); err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "storage unavailable: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/idiolect/internal/ingest"
	"github.com/kalambet/idiolect/internal/observe"
	"github.com/kalambet/idiolect/internal/storage"
	"github.com/kalambet/idiolect/internal/style"
)

const maxRequestBodySize = 1 << 20 // 1MB

// MessageRequest is the body of POST /messages.
type MessageRequest struct {
	StyleKey string `json:"style_key"`
	Role     string `json:"role"`
	Content  string `json:"content"`
}

// MessageResponse reports whether a logged message was learned from.
type MessageResponse struct {
	ID            string `json:"id"`
	Learned       bool   `json:"learned"`
	TotalMessages int    `json:"total_messages"`
}

type AppDeps struct {
	Store          *storage.Store // message log and job queue
	Styles         *style.Manager
	Token          string
	Metrics        *observe.Metrics // optional
	MetricsHandler http.Handler     // optional; served at /metrics without auth
}

// NewAppHandler returns the idiolect REST API. Everything except /health and
// /metrics requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	if deps.Metrics != nil {
		r.Use(observe.Middleware(deps.Metrics, routePattern))
	}

	r.Get("/health", handleHealth)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/messages", handlePostMessage(deps))
		r.Get("/messages", handleListMessages(deps))
		r.Get("/styles", handleListStyles(deps))
		r.Post("/styles/rebuild", handleRebuildAll(deps))
		r.Get("/styles/{key}/profile", handleGetProfile(deps))
		r.Get("/styles/{key}/summary", handleGetSummary(deps))
		r.Post("/styles/{key}/rebuild", handleRebuild(deps))
	})

	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handlePostMessage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.StyleKey) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "style_key is required")
			return
		}
		if req.Role == "" {
			req.Role = storage.RoleUser
		}
		if req.Role != storage.RoleUser && req.Role != storage.RoleAssistant {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "role must be %q or %q", storage.RoleUser, storage.RoleAssistant)
			return
		}

		resp, err := logAndLearn(deps.Store, deps.Styles, req)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "failed to save message: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// logAndLearn appends the message to the log and, for user messages, folds it
// into the style profile. Learning is best-effort: a failure is logged and
// reported as learned=false, never as a request error.
func logAndLearn(store *storage.Store, styles *style.Manager, req MessageRequest) (MessageResponse, error) {
	m, err := store.SaveMessage(storage.Message{
		StyleKey: req.StyleKey,
		Role:     req.Role,
		Content:  req.Content,
	})
	if err != nil {
		return MessageResponse{}, err
	}

	resp := MessageResponse{ID: m.ID}
	if req.Role != storage.RoleUser {
		return resp, nil
	}
	p, err := styles.UpdateProfile(req.StyleKey, req.Content)
	if err != nil {
		slog.Warn("style learning failed", "style_key", req.StyleKey, "message_id", m.ID, "error", err)
		return resp, nil
	}
	resp.Learned = true
	resp.TotalMessages = p.TotalMessages
	return resp, nil
}

func handleListMessages(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		key := r.URL.Query().Get("style_key")

		msgs, err := deps.Store.GetRecentMessages(key, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "failed to list messages: %v", err)
			return
		}
		if msgs == nil {
			msgs = []storage.Message{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleListStyles(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := deps.Styles.ListKeys()
		if err != nil {
			styleError(w, err)
			return
		}
		if keys == nil {
			keys = []string{}
		}
		writeJSON(w, http.StatusOK, keys)
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Styles.GetProfile(chi.URLParam(r, "key"))
		if err != nil {
			styleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleGetSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Styles.GetProfileSummary(chi.URLParam(r, "key"))
		if err != nil {
			styleError(w, err)
			return
		}
		if r.URL.Query().Get("format") == "prompt" {
			writeJSON(w, http.StatusOK, map[string]string{"prompt": s.Prompt()})
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleRebuild(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if strings.TrimSpace(key) == "" {
			styleError(w, style.ErrInvalidKey)
			return
		}

		if r.URL.Query().Get("wait") == "true" {
			p, err := deps.Styles.RebuildFromHistory(r.Context(), key)
			if err != nil {
				styleError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, p)
			return
		}
		enqueueRebuild(w, deps.Store, key)
	}
}

func handleRebuildAll(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("wait") == "true" {
			keys, err := deps.Styles.RebuildAll(r.Context(), parseIntParam(r, "concurrency", 4, 16))
			if err != nil {
				styleError(w, err)
				return
			}
			if keys == nil {
				keys = []string{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"rebuilt": keys})
			return
		}
		enqueueRebuild(w, deps.Store, "")
	}
}

func enqueueRebuild(w http.ResponseWriter, store *storage.Store, key string) {
	job, err := ingest.NewRebuildJob(key)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to create job: %v", err)
		return
	}
	if err := store.EnqueueJob(job); err != nil {
		httpError(w, http.StatusInternalServerError, "storage_error", "failed to enqueue job: %v", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     job.ID,
		"status": "queued",
	})
}

// styleError maps style package errors onto HTTP status codes.
func styleError(w http.ResponseWriter, err error) {
	var corrupt *style.CorruptProfileError
	var storageErr *style.StorageError
	switch {
	case errors.Is(err, style.ErrInvalidKey):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.As(err, &corrupt):
		httpError(w, http.StatusConflict, "corrupt_profile_error", "%v", err)
	case errors.As(err, &storageErr):
		httpError(w, http.StatusInternalServerError, "storage_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

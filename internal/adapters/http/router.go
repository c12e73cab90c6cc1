package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/tanya-lalin/internal/config"
	"github.com/kirillkom/tanya-lalin/internal/core/ports"
)

const (
	apiVersion      = "2.0.0"
	maxRequestBytes = 64 << 10
)

// VectorCounter reports the size of the legal chunk collection for health checks.
type VectorCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Metrics is the HTTP-facing part of the metrics package.
type Metrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
	RecordRejected(reason string)
	RecordChatTurn(outcome string, duration time.Duration)
}

type Router struct {
	cfg     config.Config
	chat    ports.ChatService
	vectors VectorCounter
	metrics Metrics
	logger  *slog.Logger
}

type RouterOption func(*Router)

func WithMetrics(m Metrics) RouterOption {
	return func(rt *Router) { rt.metrics = m }
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(cfg config.Config, chat ports.ChatService, vectors VectorCounter, opts ...RouterOption) *Router {
	rt := &Router{
		cfg:     cfg,
		chat:    chat,
		vectors: vectors,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /api/v1/health", rt.health)
	mux.HandleFunc("POST /api/v1/chat", rt.postChat)
	mux.HandleFunc("GET /api/v1/chat/{session_id}/history", rt.getHistory)
	mux.HandleFunc("DELETE /api/v1/chat/{session_id}", rt.deleteSession)

	var rejects rejectRecorder
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
		rejects = rt.metrics
	}

	var handler http.Handler = mux
	handler = backpressureWithRecorder(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, rejects)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rejects)
	handler = corsMiddleware(rt.cfg.CORSOrigins, handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = recoverMiddleware(rt.logger, handler)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "healthy",
		"version":   apiVersion,
		"timestamp": time.Now().UTC(),
	}
	if rt.vectors == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	count, err := rt.vectors.Count(ctx)
	if err != nil {
		rt.logger.Warn("health_vector_count_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		resp["status"] = "degraded"
		resp["error"] = "vector store unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp["vector_store_count"] = count
	writeJSON(w, http.StatusOK, resp)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (rt *Router) postChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.recordChat("invalid", start)
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := rt.chat.Chat(r.Context(), ports.ChatRequest{
		SessionID: strings.TrimSpace(req.SessionID),
		Message:   req.Message,
	})
	if err != nil {
		rt.recordChat("error", start)
		rt.writeDomainError(w, r, "chat", err)
		return
	}

	outcome := "ok"
	switch {
	case result.Degraded:
		outcome = "degraded"
	case len(result.RetrievedChunks) == 0:
		outcome = "no_context"
	}
	rt.recordChat(outcome, start)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) getHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	session, err := rt.chat.History(r.Context(), sessionID)
	if err != nil {
		rt.writeDomainError(w, r, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"messages":   session.Messages,
		"created_at": session.CreatedAt,
		"updated_at": session.LastActivity,
	})
}

func (rt *Router) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	deleted, err := rt.chat.DeleteSession(r.Context(), sessionID)
	if err != nil {
		rt.writeDomainError(w, r, "delete_session", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Session tidak ditemukan.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "Session berhasil dihapus.",
		"session_id": sessionID,
	})
}

func (rt *Router) recordChat(outcome string, start time.Time) {
	if rt.metrics != nil {
		rt.metrics.RecordChatTurn(outcome, time.Since(start))
	}
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	status := mapErrorToHTTPStatus(err)
	attrs := []any{
		"request_id", requestIDFromContext(r.Context()),
		"operation", operation,
		"status", status,
		"error", err,
	}
	if status >= 500 {
		rt.logger.Error("request_failed", attrs...)
	} else {
		rt.logger.Warn("request_failed", attrs...)
	}
	writeError(w, status, publicErrorMessage(status, err))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Package httpapi is the read-only facade over ports.WorkflowService: list
// and inspect sessions, submit new ones, resume paused ones, and stream a
// session's step transitions as Server-Sent Events. A /metrics endpoint
// exposes the same counters internal/telemetry feeds.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/makerflow/runner/internal/core/ports"
	coreerrors "github.com/makerflow/runner/pkg/errors"
)

// Server wires ports.WorkflowService handlers onto a net/http.ServeMux.
type Server struct {
	Service ports.WorkflowService
	Logger  *slog.Logger
	mux     *http.ServeMux
}

func NewServer(service ports.WorkflowService, logger *slog.Logger) *Server {
	s := &Server{Service: service, Logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /v1/sessions", s.listSessions)
	s.mux.HandleFunc("POST /v1/sessions", s.createSession)
	s.mux.HandleFunc("GET /v1/sessions/{id}", s.getSession)
	s.mux.HandleFunc("POST /v1/sessions/{id}/resume", s.resumeSession)
	s.mux.HandleFunc("GET /v1/sessions/{id}/events", s.streamSessionEvents)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Domain    string `json:"domain"`
	Prompt    string `json:"prompt"`
	Status    string `json:"status"`
	UpdatedAt int64  `json:"updated_at"`
}

func toSessionResponse(r ports.SessionRecord) sessionResponse {
	return sessionResponse{SessionID: r.SessionID, Domain: r.Domain, Prompt: r.Prompt, Status: r.Status, UpdatedAt: r.UpdatedAt}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	records, err := s.Service.ListSessions(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]sessionResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toSessionResponse(rec))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

type createSessionRequest struct {
	Domain string `json:"domain"`
	Prompt string `json:"prompt"`
	DryRun bool   `json:"dry_run"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Domain == "" || req.Prompt == "" {
		http.Error(w, "domain and prompt are required", http.StatusBadRequest)
		return
	}

	if req.DryRun {
		plan, err := s.Service.DryRunProbe(r.Context(), req.Domain, req.Prompt)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"steps": plan.Steps})
		return
	}

	result, err := s.Service.RunSession(r.Context(), req.Domain, req.Prompt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, result)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wc, status, err := s.Service.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": wc.SessionID,
		"domain":     wc.Domain,
		"prompt":     wc.Prompt,
		"status":     status,
		"steps":      wc.Steps,
		"metrics":    wc.Metrics,
	})
}

func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := s.Service.ResumeSession(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// streamSessionEvents polls the session's persisted status and pushes an
// SSE frame whenever it changes, closing when the session reaches a
// terminal state or the client disconnects.
func (s *Server) streamSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastStatus := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, status, err := s.Service.GetSession(ctx, id)
			if err != nil {
				fmtSSE(w, "error", map[string]any{"error": err.Error()})
				flusher.Flush()
				return
			}
			if status == lastStatus {
				continue
			}
			lastStatus = status
			fmtSSE(w, "status", map[string]any{"session_id": id, "status": status})
			flusher.Flush()
			if status == "completed" || status == "failed" {
				return
			}
		}
	}
}

func fmtSSE(w http.ResponseWriter, event string, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + event + "\n"))
	w.Write([]byte("data: "))
	w.Write(body)
	w.Write([]byte("\n\n"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var invalidState *coreerrors.InvalidStateError
	var configErr *coreerrors.ConfigError
	var persistErr *coreerrors.PersistenceError
	switch {
	case errors.As(err, &invalidState), errors.As(err, &configErr):
		status = http.StatusBadRequest
	case errors.As(err, &persistErr) && persistErr.Op == "load_session":
		status = http.StatusNotFound
	}

	s.Logger.Error("request failed", "error", err)
	http.Error(w, err.Error(), status)
}

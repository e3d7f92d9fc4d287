// File: internal/server/server.go
package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/glasswing-dev/webnav/internal/action"
	"github.com/glasswing-dev/webnav/internal/config"
	"github.com/glasswing-dev/webnav/internal/navigator"
)

// jsonEnc encodes SSE events. json-iterator keeps the per-step encoding cheap;
// every step event carries a base64 screenshot.
var jsonEnc = jsoniter.ConfigCompatibleWithStandardLibrary

// runRequest is the control-surface payload for starting a run.
type runRequest struct {
	Goal      string `json:"goal"`
	StartURL  string `json:"start_url"`
	Headless  *bool  `json:"headless"`
	SessionID string `json:"session_id"`
}

// stepEvent is the per-iteration wire event.
type stepEvent struct {
	Type       string `json:"type"`
	Step       int    `json:"step"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
	Screenshot string `json:"screenshot"`
	ElapsedMS  int64  `json:"elapsed_ms"`
}

// Server exposes the step loop as a cancellable server-pushed event stream
// keyed by session id.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *navigator.StopRegistry
	runner   navigator.Runner
	version  string
}

// New builds the HTTP front end over the given runner.
func New(cfg *config.Config, runner navigator.Runner, version string, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger.Named("server"),
		registry: navigator.NewStopRegistry(),
		runner:   runner,
		version:  version,
	}
}

// Registry exposes the session registry, primarily for tests.
func (s *Server) Registry() *navigator.StopRegistry {
	return s.registry
}

// Handler assembles the route table wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("POST /stop/{session_id}", s.handleStop)
	mux.HandleFunc("GET /health", s.handleHealth)

	if dir := s.cfg.Server.StaticDir; dir != "" {
		if _, err := os.Stat(dir); err == nil {
			mux.Handle("GET /", http.FileServer(http.Dir(dir)))
		}
	}

	return corsMiddleware(mux)
}

// ListenAndServe builds the http.Server. Shutdown is the caller's concern.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// corsMiddleware allows any origin so a UI can reach the API from any host.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "webnav",
		"version": s.version,
	})
}

// handleStop signals a running session to stop after its current step.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	signal, ok := s.registry.Lookup(sessionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("session %q not found or already finished", sessionID),
		})
		return
	}
	signal.Set()
	s.logger.Info("Stop requested", zap.String("session_id", sessionID))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "stopping",
		"session_id": sessionID,
	})
}

// handleRun starts a navigation run and streams its results as SSE events.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.cfg.LLM.APIKey == "" {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "gemini API key is not configured",
		})
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Goal == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "goal is required"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	stop := navigator.NewStopSignal()
	s.registry.Add(sessionID, stop)
	// Cleanup must run on every exit path so cancellation state never leaks
	// across sessions.
	defer s.registry.Remove(sessionID)

	logger := s.logger.With(zap.String("session_id", sessionID))
	logger.Info("Run starting", zap.String("goal", req.Goal))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Run panicked", zap.Any("panic", rec))
			s.writeEvent(w, flusher, map[string]any{
				"type":    "error",
				"message": fmt.Sprintf("internal error: %v", rec),
			})
		}
	}()

	s.writeEvent(w, flusher, map[string]any{"type": "session", "session_id": sessionID})

	headless := s.cfg.Browser.Headless
	if req.Headless != nil {
		headless = *req.Headless
	}

	results, err := s.runner(r.Context(), navigator.RunOptions{
		Goal:     req.Goal,
		StartURL: req.StartURL,
		Headless: headless,
	}, stop)
	if err != nil {
		logger.Error("Run failed to start", zap.Error(err))
		s.writeEvent(w, flusher, map[string]any{"type": "error", "message": err.Error()})
		return
	}

	for result := range results {
		if stop.Stopped() {
			s.writeEvent(w, flusher, map[string]any{
				"type":    "stopped",
				"message": "session cancelled by client",
			})
			logger.Info("Run cancelled mid-stream")
			return
		}

		s.writeEvent(w, flusher, stepEvent{
			Type:       "step",
			Step:       result.Step,
			Action:     string(result.Action.Kind),
			Reason:     result.Action.Reason,
			Message:    result.Message,
			Success:    result.Success,
			Screenshot: base64.StdEncoding.EncodeToString(result.Screenshot),
			ElapsedMS:  result.ElapsedMS,
		})

		switch result.Action.Kind {
		case action.KindDone:
			s.writeEvent(w, flusher, map[string]any{"type": "done", "message": result.Action.Reason})
			logger.Info("Run finished", zap.Int("steps", result.Step))
			return
		case action.KindFail:
			s.writeEvent(w, flusher, map[string]any{"type": "error", "message": result.Action.Reason})
			logger.Info("Run ended in failure", zap.Int("steps", result.Step))
			return
		}
	}

	// The loop ended without a terminal action: either the stop signal fired
	// between steps or the step ceiling was reached.
	if stop.Stopped() {
		s.writeEvent(w, flusher, map[string]any{
			"type":    "stopped",
			"message": "session cancelled by client",
		})
		logger.Info("Run cancelled")
		return
	}
	logger.Warn("Run ended at step ceiling")
}

func (s *Server) writeEvent(w http.ResponseWriter, flusher http.Flusher, event any) {
	payload, err := jsonEnc.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to encode event", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

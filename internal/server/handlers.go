package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jypengpeng/CanvasLMS-Agent/internal/agent"
	"github.com/jypengpeng/CanvasLMS-Agent/internal/canvas"
	"github.com/jypengpeng/CanvasLMS-Agent/internal/config"
	"github.com/jypengpeng/CanvasLMS-Agent/internal/tools"
)

type chatRequest struct {
	Message     string `json:"message"`
	CanvasToken string `json:"canvas_token"`
}

type chatResponse struct {
	Answer string `json:"answer"`
}

type toolTestRequest struct {
	Tool        string `json:"tool"`
	CanvasToken string `json:"canvas_token"`
	CourseName  string `json:"course_name"`
}

type toolTestResponse struct {
	Result string `json:"result"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	token := strings.TrimSpace(req.CanvasToken)
	if token == "" {
		writeError(w, http.StatusBadRequest, "canvas_token is required")
		return
	}

	run := s.runConfig(r)
	log.Printf("[server] POST /api/chat req_id=%s", run.RequestID)

	answer, err := s.agent.Answer(r.Context(), req.Message, token, run)
	if err != nil {
		status := statusFor(err)
		log.Printf("[server] chat failed status=%d req_id=%s: %v", status, run.RequestID, err)
		writeError(w, status, publicError(err, status))
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Answer: answer})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleToolTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req toolTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token := strings.TrimSpace(req.CanvasToken)
	if token == "" {
		writeError(w, http.StatusBadRequest, "canvas_token is required")
		return
	}
	if strings.TrimSpace(s.cfg.Canvas.BaseURL) == "" {
		writeError(w, http.StatusInternalServerError, config.ErrMissingCanvasBase.Error())
		return
	}

	requestID := r.Header.Get("X-REQUEST-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	client := canvas.New(s.cfg.Canvas.BaseURL, token, requestID)
	set := tools.NewSet(client, requestID)

	var (
		result string
		err    error
	)
	switch strings.TrimSpace(req.Tool) {
	case tools.NameListCourses:
		result, err = set.ListMyCourses(r.Context())
	case tools.NameUpcomingAssignments:
		result, err = set.UpcomingAssignments(r.Context())
	case tools.NameAnnouncements:
		result, err = set.Announcements(r.Context(), strings.TrimSpace(req.CourseName))
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown tool %q", req.Tool))
		return
	}
	if err != nil {
		status := statusFor(err)
		log.Printf("[server] tool_test %s failed status=%d req_id=%s: %v", req.Tool, status, requestID, err)
		writeError(w, status, publicError(err, status))
		return
	}

	writeJSON(w, http.StatusOK, toolTestResponse{Result: result})
}

// runConfig shadows the process defaults with per-request header
// overrides. The shared Config is never mutated.
func (s *Server) runConfig(r *http.Request) config.RunConfig {
	run := s.cfg.RunDefaults()

	if v := r.Header.Get("X-LLM-BASE"); v != "" {
		run.LLMBaseURL = v
	}
	if v := r.Header.Get("X-LLM-KEY"); v != "" {
		run.LLMAPIKey = v
	}
	if v := r.Header.Get("X-LLM-MODEL"); v != "" {
		run.LLMModel = v
	}
	if v := r.Header.Get("X-AGENT-VERBOSE"); v != "" {
		if parsed, ok := config.ParseBool(v); ok {
			run.Verbose = parsed
		}
	}
	run.RequestID = r.Header.Get("X-REQUEST-ID")
	if run.RequestID == "" {
		run.RequestID = uuid.NewString()
	}

	return run
}

// statusFor maps a failure kind to its HTTP status. Timeout is checked
// before transport so a timed-out call is reported as 504, not 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, canvas.ErrAuthentication), errors.Is(err, agent.ErrLLMAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, canvas.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, canvas.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, canvas.ErrTransport), errors.Is(err, canvas.ErrParse),
		errors.Is(err, agent.ErrNonconvergence), errors.Is(err, agent.ErrEmptyAnswer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicError picks the body text for a failed request. Configuration
// gaps are operator-fixable and safe to name; any other unexpected
// failure stays opaque.
func publicError(err error, status int) string {
	if status != http.StatusInternalServerError {
		return err.Error()
	}
	if errors.Is(err, config.ErrMissingLLMBase) ||
		errors.Is(err, config.ErrMissingLLMKey) ||
		errors.Is(err, config.ErrMissingCanvasBase) {
		return err.Error()
	}
	return "internal server error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package server

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/internal/mcp"
	"github.com/deskpilot/deskpilot/internal/orchestrator"
	"github.com/deskpilot/deskpilot/pkg/types"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Prompt     string `json:"prompt"`
	SessionKey int    `json:"sessionKey,omitempty"`
}

// ChatResponse is the reply to POST /chat.
type ChatResponse struct {
	Reply      string `json:"reply"`
	SessionKey int    `json:"sessionKey"`
}

// ToolInfo describes one registered tool.
type ToolInfo struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": len(s.orch.Sessions()),
		"model":    s.orch.Watermark(),
	})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "prompt is required")
		return
	}
	if req.SessionKey <= 0 {
		req.SessionKey = int(orchestrator.DefaultSessionKey)
	}

	start := time.Now()
	res, err := s.orch.Send(r.Context(), req.Prompt, orchestrator.SessionKey(req.SessionKey))
	if s.metrics != nil {
		s.metrics.ObserveChat(time.Since(start), err)
	}
	if s.history != nil {
		if herr := s.history.Exchange(r.Context(), req.SessionKey, req.Prompt, res.Attachment, res.Reply, err); herr != nil {
			logging.Warn().Err(herr).Int("session_key", req.SessionKey).Msg("failed to record history")
		}
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeBackendError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Reply: res.Reply, SessionKey: req.SessionKey})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Sessions())
}

// sessionKey parses the {key} URL parameter, answering 400 itself.
func sessionKey(w http.ResponseWriter, r *http.Request) (int, bool) {
	key, err := strconv.Atoi(chi.URLParam(r, "key"))
	if err != nil || key <= 0 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "session key must be a positive integer")
		return 0, false
	}
	return key, true
}

func (s *Server) compactSession(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}

	result := s.orch.CompactSession(r.Context(), orchestrator.SessionKey(key))
	switch {
	case result.Success:
		writeJSON(w, http.StatusOK, result)
	case result.Error == orchestrator.ErrNoActiveSession.Error():
		writeError(w, http.StatusNotFound, ErrCodeNotFound, result.Error)
	default:
		writeError(w, http.StatusBadGateway, ErrCodeBackendError, result.Error)
	}
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "history is disabled")
		return
	}

	entries, err := s.history.List(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "history is disabled")
		return
	}

	if err := s.history.Clear(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

func (s *Server) getAttachment(w http.ResponseWriter, r *http.Request) {
	a := s.orch.PendingAttachment()
	if a == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no pending attachment")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// setAttachment stages a file for the next chat message. The type defaults
// to file; the path must exist.
func (s *Server) setAttachment(w http.ResponseWriter, r *http.Request) {
	var a types.Attachment
	if !decodeBody(w, r, &a) {
		return
	}
	if a.Path == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is required")
		return
	}
	switch a.Type {
	case "":
		a.Type = types.AttachmentFile
	case types.AttachmentFile, types.AttachmentImage:
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "type must be file or image")
		return
	}
	if _, err := os.Stat(a.Path); err != nil {
		writeErrorWithDetails(w, http.StatusBadRequest, ErrCodeInvalidRequest, "attachment not readable", map[string]any{
			"path":  a.Path,
			"error": err.Error(),
		})
		return
	}

	s.orch.SetPendingAttachment(&a)
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) clearAttachment(w http.ResponseWriter, r *http.Request) {
	s.orch.SetPendingAttachment(nil)
	writeSuccess(w)
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.orch.ListModels(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeBackendError, err.Error())
		return
	}
	if models == nil {
		models = []types.Model{}
	}
	writeJSON(w, http.StatusOK, models)
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	tools := s.tools.List()
	out := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolInfo{ID: t.ID(), Description: t.Description(), Parameters: t.Parameters()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) mcpStatus(w http.ResponseWriter, r *http.Request) {
	if s.mcp == nil {
		writeJSON(w, http.StatusOK, []mcp.ServerStatus{})
		return
	}
	writeJSON(w, http.StatusOK, s.mcp.Status())
}

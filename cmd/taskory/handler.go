package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/m-mizutani/taskory"
)

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// writeEngineError maps API-misuse sentinels to 4xx and everything else
// to 500.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, taskory.ErrNoActivePlan),
		errors.Is(err, taskory.ErrNoPendingPermission),
		errors.Is(err, taskory.ErrUnknownTask),
		errors.Is(err, taskory.ErrPlanNotApprovable),
		errors.Is(err, taskory.ErrPlanTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("engine request failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	turn, err := s.engine.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

type approveRequest struct {
	SessionID string `json:"session_id"`
}

func (s *server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	turn, err := s.engine.Approve(r.Context(), req.SessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

type confirmRequest struct {
	SessionID string `json:"session_id"`
	TaskID    string `json:"task_id"`
	Allow     bool   `json:"allow"`
}

func (s *server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "session_id and task_id are required")
		return
	}

	turn, err := s.engine.Confirm(r.Context(), req.SessionID, req.TaskID, req.Allow)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (s *server) handlePlan(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	inspection, err := s.engine.Inspect(r.Context(), sessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inspection)
}

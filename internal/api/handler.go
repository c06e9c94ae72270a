// Package api exposes the adaptive engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-adaptive/internal/adaptive"
)

const maxBodyBytes = 1 << 16

// Engine is the subset of adaptive.Engine the handlers call.
type Engine interface {
	GetNextQuestion(ctx context.Context, learnerID string) (adaptive.NextQuestion, error)
	SubmitAnswer(ctx context.Context, learnerID, questionID string, correct bool) (adaptive.AnswerResult, error)
	GetProgress(ctx context.Context, learnerID string) (adaptive.Progress, error)
	History(ctx context.Context, learnerID string) ([]adaptive.HistoryEntry, error)
	Enroll(ctx context.Context, learnerID string) (int, error)
}

// Handler serves the learner-facing routes.
type Handler struct {
	engine Engine
}

// NewHandler creates a handler backed by engine.
func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /next-question", h.handleNextQuestion)
	mux.HandleFunc("POST /submit-answer", h.handleSubmitAnswer)
	mux.HandleFunc("GET /student-progress/{learnerID}", h.handleProgress)
	mux.HandleFunc("GET /analytics/{learnerID}", h.handleAnalytics)
	mux.HandleFunc("POST /learners/{learnerID}/enroll", h.handleEnroll)
}

type nextQuestionRequest struct {
	LearnerID string `json:"learnerId"`
}

type submitAnswerRequest struct {
	LearnerID  string `json:"learnerId"`
	QuestionID string `json:"questionId"`
	IsCorrect  *bool  `json:"isCorrect"`
}

type analyticsResponse struct {
	Logs []adaptive.HistoryEntry `json:"logs"`
}

type enrollResponse struct {
	Created int `json:"created"`
}

func (h *Handler) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	var req nextQuestionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	learnerID, ok := parseLearnerID(w, req.LearnerID)
	if !ok {
		return
	}

	res, err := h.engine.GetNextQuestion(r.Context(), learnerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	learnerID, ok := parseLearnerID(w, req.LearnerID)
	if !ok {
		return
	}
	questionID := strings.TrimSpace(req.QuestionID)
	if questionID == "" {
		writeError(w, http.StatusBadRequest, "questionId is required")
		return
	}
	if req.IsCorrect == nil {
		writeError(w, http.StatusBadRequest, "isCorrect is required")
		return
	}

	res, err := h.engine.SubmitAnswer(r.Context(), learnerID, questionID, *req.IsCorrect)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := parseLearnerID(w, r.PathValue("learnerID"))
	if !ok {
		return
	}

	p, err := h.engine.GetProgress(r.Context(), learnerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := parseLearnerID(w, r.PathValue("learnerID"))
	if !ok {
		return
	}

	logs, err := h.engine.History(r.Context(), learnerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []adaptive.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, analyticsResponse{Logs: logs})
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := parseLearnerID(w, r.PathValue("learnerID"))
	if !ok {
		return
	}

	n, err := h.engine.Enroll(r.Context(), learnerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollResponse{Created: n})
}

// fail maps engine errors to responses. Storage causes are logged, never
// returned to the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, adaptive.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, adaptive.ErrNotSeeded):
		writeError(w, http.StatusNotFound, "learner not enrolled")
	case errors.Is(err, adaptive.ErrEmptyGraph):
		writeError(w, http.StatusNotFound, "no concepts configured")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func parseLearnerID(w http.ResponseWriter, raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		writeError(w, http.StatusBadRequest, "learnerId must be a UUID")
		return "", false
	}
	return id.String(), true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

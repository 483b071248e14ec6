// Package chi is the HTTP surface: login against the roster, SSE answer
// streaming, topic classification, conversation history, usage, health,
// and metrics.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Ding0127/qa-chatbot/internal/domain"
	healthuc "github.com/Ding0127/qa-chatbot/internal/usecase/health"
	usageuc "github.com/Ding0127/qa-chatbot/internal/usecase/usage"
)

// askService runs the RAG pipeline for one question.
type askService interface {
	Answer(ctx context.Context, userID string, ageGroup domain.AgeGroup, query string) domain.AnswerStream
}

// classifyService assigns a curriculum topic to a question.
type classifyService interface {
	Classify(ctx context.Context, question string) string
}

// historyService reads a user's recorded turns.
type historyService interface {
	History(ctx context.Context, userID string) ([]domain.Turn, error)
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	roster   map[string]domain.AgeGroup
	ask      askService
	classify classifyService
	history  historyService
	health   *healthuc.Service
	usage    *usageuc.Service
	logger   *zap.Logger
}

// NewServer creates the HTTP API server. roster maps user ids to their
// age group; classify and history may be nil to disable those routes.
func NewServer(
	roster map[string]domain.AgeGroup,
	ask askService,
	classify classifyService,
	history historyService,
	health *healthuc.Service,
	usage *usageuc.Service,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		roster:   roster,
		ask:      ask,
		classify: classify,
		history:  history,
		health:   health,
		usage:    usage,
		logger:   logger,
	}
}

// Register mounts all routes on the router. Middleware is the caller's
// concern.
func (s *Server) Register(r chi.Router) {
	r.Post("/login", s.handleLogin)
	r.Post("/ask", s.handleAsk)
	if s.classify != nil {
		r.Post("/classify", s.handleClassify)
	}
	if s.history != nil {
		r.Get("/logs/{userID}", s.handleLogs)
	}
	r.Get("/usage", s.handleUsage)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

type loginRequest struct {
	UserID string `json:"user_id"`
}

type loginResponse struct {
	UserID   string `json:"user_id"`
	AgeGroup string `json:"age_group"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id is required")
		return
	}

	group, ok := s.roster[req.UserID]
	if !ok {
		writeError(w, http.StatusNotFound, "user_not_found", "User ID not found")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{UserID: req.UserID, AgeGroup: group.String()})
}

type askRequest struct {
	UserID   string `json:"user_id,omitempty"`
	AgeGroup string `json:"age_group,omitempty"`
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "question is required")
		return
	}

	group, err := s.resolveAgeGroup(&req)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user_not_found", "User ID not found")
			return
		}
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	stream := s.ask.Answer(r.Context(), req.UserID, group, req.Question)
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for {
		value, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn("Answer stream failed mid-flight", zap.Error(err))
			break
		}

		// Each event carries the full cumulative answer so far.
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if err := enc.Encode(map[string]string{"answer": value}); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return
		}
		flusher.Flush()
	}

	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// resolveAgeGroup prefers the roster over a self-declared age group.
func (s *Server) resolveAgeGroup(req *askRequest) (domain.AgeGroup, error) {
	if req.UserID != "" {
		group, ok := s.roster[req.UserID]
		if !ok {
			return "", domain.ErrUserNotFound
		}
		return group, nil
	}
	return domain.ParseAgeGroup(req.AgeGroup)
}

type classifyRequest struct {
	Question string `json:"question"`
}

type classifyResponse struct {
	Topic string `json:"topic"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "question is required")
		return
	}

	topic := s.classify.Classify(r.Context(), req.Question)
	writeJSON(w, http.StatusOK, classifyResponse{Topic: topic})
}

type logsResponse struct {
	UserID string        `json:"user_id"`
	Turns  []domain.Turn `json:"turns"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, ok := s.roster[userID]; !ok {
		writeError(w, http.StatusNotFound, "user_not_found", "User ID not found")
		return
	}

	turns, err := s.history.History(r.Context(), userID)
	if err != nil {
		s.logger.Error("Failed to read conversation log",
			zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read conversation log")
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}

	writeJSON(w, http.StatusOK, logsResponse{UserID: userID, Turns: turns})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	period := usageuc.Period(r.URL.Query().Get("period"))
	report := s.usage.GetReport(r.Context(), period)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

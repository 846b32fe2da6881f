// Package api provides the HTTP server for questforge.
// All user-scoped routes live under /api/v1/users/{userID}; activity events
// go through the engagement Processor, reads through the insight services.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/questforge/questforge/internal/app/engagement"
	"github.com/questforge/questforge/internal/domain"
	"github.com/questforge/questforge/internal/health"
)

// Version is reported by /api/version.
const Version = "0.1.0"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Services bundles the engagement services the API serves.
type Services struct {
	Processor     *engagement.Processor
	Quests        *engagement.QuestService
	Boss          *engagement.BossService
	Insights      *engagement.InsightService
	Notifications *engagement.NotificationService
}

// Server is the questforge HTTP API server.
type Server struct {
	svc            Services
	checker        *health.Checker
	validate       *validator.Validate
	metricsEnabled bool
	cors           bool
	timeout        time.Duration
}

// NewServer creates a new API server.
func NewServer(svc Services) *Server {
	return &Server{
		svc:      svc,
		validate: validator.New(),
		timeout:  30 * time.Second,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// EnableCORS adds permissive CORS headers for browser clients.
func (s *Server) EnableCORS() { s.cors = true }

// SetHealthChecker reports the checker's results on /health.
func (s *Server) SetHealthChecker(c *health.Checker) { s.checker = c }

// SetRequestTimeout bounds each request. Non-positive values are ignored.
func (s *Server) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	if s.cors {
		r.Use(corsMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/achievements", s.handleAchievementCatalog)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Use(s.requireUserID)

			r.Get("/status", s.handleStatus)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/skill-trees", s.handleSkillTrees)
			r.Get("/achievements", s.handleAchievements)
			r.Get("/xp-history", s.handleXPHistory)

			r.Get("/tasks", s.handleListTasks)
			r.Post("/tasks", s.handleCreateTask)
			r.Post("/tasks/{taskID}/complete", s.handleCompleteTask)

			r.Post("/focus-sessions", s.handleStartFocus)
			r.Post("/focus-sessions/{sessionID}/end", s.handleEndFocus)

			r.Get("/quests", s.handleAllQuests)
			r.Get("/quests/{cadence}", s.handleQuests)
			r.Post("/quests/{questID}/complete", s.handleCompleteQuest)
			r.Post("/global-quests/{questID}/complete", s.handleCompleteGlobalQuest)

			r.Get("/boss/today", s.handleBossToday)
			r.Get("/boss/{challengeID}/exam", s.handleExamPaper)
			r.Post("/boss/{challengeID}/submit", s.handleSubmitExam)
			r.Get("/boss/{challengeID}/result", s.handleExamResult)

			r.Get("/notifications", s.handlePendingNotifications)
			r.Post("/notifications/shown", s.handleMarkShown)
		})
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.checker.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.checker.Statuses(),
	})
}

// ─── Request Helpers ────────────────────────────────────────────────────────

type userIDParam struct {
	UserID string `validate:"required,max=128,printascii"`
}

// requireUserID rejects malformed user IDs before any handler runs.
func (s *Server) requireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.validate.Struct(userIDParam{UserID: chi.URLParam(r, "userID")}); err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string { return chi.URLParam(r, "userID") }

// decode reads a JSON body into v and validates it. An empty body decodes
// as the zero value. It writes the error response and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// queryInt parses an integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// ─── Responses ──────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    http.StatusText(status),
		},
	})
}

// writeDomainError maps engagement errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuestNotFound),
		errors.Is(err, domain.ErrChallengeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrTaskAlreadyCompleted),
		errors.Is(err, domain.ErrSessionAlreadyEnded),
		errors.Is(err, domain.ErrExamAlreadySubmitted),
		errors.Is(err, domain.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrQuestExpired),
		errors.Is(err, domain.ErrChallengeExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, domain.ErrUnknownCadence),
		errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

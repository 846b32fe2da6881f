package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/questforge/questforge/internal/app/engagement"
	"github.com/questforge/questforge/internal/domain"
)

// ─── Progression (/api/v1/users/{userID}/...) ───────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Insights.Status(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Insights.Dashboard(r.Context(), userID(r), queryInt(r, "days", 0))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSkillTrees(w http.ResponseWriter, r *http.Request) {
	trees, err := s.svc.Insights.SkillTrees(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"skill_trees": trees})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Insights.Achievements(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	unlocked := 0
	for _, a := range list {
		if a.Unlocked {
			unlocked++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"achievements": list,
		"unlocked":     unlocked,
		"total":        len(list),
	})
}

func (s *Server) handleAchievementCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"achievements": s.svc.Processor.Evaluator().Definitions(),
	})
}

func (s *Server) handleXPHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.Insights.XPHistory(r.Context(), userID(r), queryInt(r, "limit", 0))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.XPEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.svc.Insights.Leaderboard(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if board == nil {
		board = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": board})
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

type createTaskRequest struct {
	Title            string `json:"title" validate:"required,max=200"`
	Description      string `json:"description" validate:"max=2000"`
	SkillTree        string `json:"skill_tree" validate:"omitempty,oneof=Mind Knowledge Discipline Fitness"`
	Difficulty       int    `json:"difficulty" validate:"omitempty,min=1,max=5"`
	EstimatedMinutes int    `json:"estimated_minutes" validate:"min=0,max=1440"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !s.decode(w, r, &req) {
		return
	}
	task, err := s.svc.Processor.CreateTask(r.Context(), userID(r), engagement.NewTask{
		Title:            req.Title,
		Description:      req.Description,
		SkillTree:        domain.SkillTree(req.SkillTree),
		Difficulty:       req.Difficulty,
		EstimatedMinutes: req.EstimatedMinutes,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var completed *bool
	if v := r.URL.Query().Get("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "completed must be true or false")
			return
		}
		completed = &b
	}
	tasks, err := s.svc.Insights.Tasks(r.Context(), userID(r), completed, queryInt(r, "limit", 0))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Processor.CompleteTask(r.Context(), userID(r), chi.URLParam(r, "taskID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ─── Focus Sessions ─────────────────────────────────────────────────────────

type startFocusRequest struct {
	Mode string `json:"mode" validate:"omitempty,max=32"`
}

type endFocusRequest struct {
	Minutes    int  `json:"minutes" validate:"min=0,max=1440"`
	Successful bool `json:"successful"`
}

func (s *Server) handleStartFocus(w http.ResponseWriter, r *http.Request) {
	var req startFocusRequest
	if !s.decode(w, r, &req) {
		return
	}
	session, err := s.svc.Processor.StartFocusSession(r.Context(), userID(r), req.Mode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleEndFocus(w http.ResponseWriter, r *http.Request) {
	var req endFocusRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.svc.Processor.EndFocusSession(r.Context(), userID(r),
		chi.URLParam(r, "sessionID"), req.Minutes, req.Successful)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ─── Notifications ──────────────────────────────────────────────────────────

type markShownRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,max=100,dive,gt=0"`
}

func (s *Server) handlePendingNotifications(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	pending, err := s.svc.Notifications.Pending(r.Context(), uid, queryInt(r, "limit", 0))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	today, err := s.svc.Notifications.TodayCount(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if pending == nil {
		pending = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": pending,
		"today_count":   today,
		"policy":        s.svc.Notifications.Policy(),
	})
}

func (s *Server) handleMarkShown(w http.ResponseWriter, r *http.Request) {
	var req markShownRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Notifications.MarkShown(r.Context(), userID(r), req.IDs); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": len(req.IDs)})
}

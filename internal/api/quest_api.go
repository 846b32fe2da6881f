package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/questforge/questforge/internal/domain"
)

// ─── Quests ─────────────────────────────────────────────────────────────────

// questView adds the derived completion percentage to a quest.
type questView struct {
	domain.Quest
	ProgressPct float64 `json:"progress_pct"`
}

func viewQuests(qs []domain.Quest) []questView {
	out := make([]questView, len(qs))
	for i, q := range qs {
		out[i] = questView{Quest: q, ProgressPct: q.ProgressPct()}
	}
	return out
}

func (s *Server) handleAllQuests(w http.ResponseWriter, r *http.Request) {
	all, err := s.svc.Quests.All(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make(map[domain.Cadence][]questView, len(all))
	for cadence, qs := range all {
		out[cadence] = viewQuests(qs)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQuests(w http.ResponseWriter, r *http.Request) {
	cadence := domain.Cadence(chi.URLParam(r, "cadence"))
	qs, err := s.svc.Quests.GetOrCreate(r.Context(), cadence, userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cadence": cadence,
		"quests":  viewQuests(qs),
	})
}

func (s *Server) handleCompleteQuest(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Processor.CompleteQuest(r.Context(), userID(r), chi.URLParam(r, "questID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCompleteGlobalQuest(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Processor.CompleteGlobalQuest(r.Context(), userID(r), chi.URLParam(r, "questID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ─── Boss Challenges ────────────────────────────────────────────────────────

type submitExamRequest struct {
	Answers map[string]string `json:"answers" validate:"required,max=20,dive,keys,max=8,endkeys,max=8"`
}

func (s *Server) handleBossToday(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Boss.Today(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleExamPaper(w http.ResponseWriter, r *http.Request) {
	challengeID := chi.URLParam(r, "challengeID")
	paper, err := s.svc.Boss.ExamPaper(r.Context(), userID(r), challengeID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"challenge_id": challengeID,
		"questions":    paper,
	})
}

func (s *Server) handleSubmitExam(w http.ResponseWriter, r *http.Request) {
	var req submitExamRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.svc.Processor.SubmitExam(r.Context(), userID(r), chi.URLParam(r, "challengeID"), req.Answers)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExamResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Boss.Result(r.Context(), userID(r), chi.URLParam(r, "challengeID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

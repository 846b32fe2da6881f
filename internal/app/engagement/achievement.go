package engagement

import (
	"github.com/questforge/questforge/internal/domain"
)

// Evaluator checks achievement predicates against a stats snapshot.
// It holds no per-user state: unlocking is decided by the caller comparing
// the evaluated set with what the user already has.
type Evaluator struct {
	definitions []domain.AchievementDef
}

// NewEvaluator creates an evaluator over the given definitions.
func NewEvaluator(defs []domain.AchievementDef) *Evaluator {
	return &Evaluator{definitions: append([]domain.AchievementDef(nil), defs...)}
}

// Evaluate returns the IDs of every achievement whose predicate holds,
// in catalog order. Same input, same output.
func (e *Evaluator) Evaluate(stats domain.StatsSnapshot) []string {
	var ids []string
	for _, def := range e.definitions {
		if def.Predicate != nil && def.Predicate(stats) {
			ids = append(ids, def.ID)
		}
	}
	return ids
}

// NewlyUnlocked returns the definitions that hold for stats but are not in unlocked.
func (e *Evaluator) NewlyUnlocked(stats domain.StatsSnapshot, unlocked map[string]bool) []domain.AchievementDef {
	var out []domain.AchievementDef
	for _, id := range e.Evaluate(stats) {
		if unlocked[id] {
			continue
		}
		if def, ok := e.Definition(id); ok {
			out = append(out, def)
		}
	}
	return out
}

// Definition looks up an achievement by ID.
func (e *Evaluator) Definition(id string) (domain.AchievementDef, bool) {
	for _, def := range e.definitions {
		if def.ID == id {
			return def, true
		}
	}
	return domain.AchievementDef{}, false
}

// Definitions returns all achievement definitions (for display).
func (e *Evaluator) Definitions() []domain.AchievementDef {
	return append([]domain.AchievementDef(nil), e.definitions...)
}

// ─── Achievement Definitions ────────────────────────────────────────────────

func defaultAchievements() []domain.AchievementDef {
	return []domain.AchievementDef{
		// ── Tasks ──────────────────────────────────────────────────────
		{
			ID: "first_task", Title: "First Steps", Description: "Complete your first task", Icon: "🎯",
			Predicate: func(s domain.StatsSnapshot) bool { return s.TasksCompleted >= 1 },
		},
		{
			ID: "task_10", Title: "Warrior", Description: "Complete 10 tasks", Icon: "🛡️",
			Predicate: func(s domain.StatsSnapshot) bool { return s.TasksCompleted >= 10 },
		},
		{
			ID: "task_50", Title: "Champion", Description: "Complete 50 tasks", Icon: "🏆",
			Predicate: func(s domain.StatsSnapshot) bool { return s.TasksCompleted >= 50 },
		},
		{
			ID: "task_100", Title: "Legend", Description: "Complete 100 tasks", Icon: "👑",
			Predicate: func(s domain.StatsSnapshot) bool { return s.TasksCompleted >= 100 },
		},
		{
			ID: "speed_demon", Title: "Speed Demon", Description: "Complete 5 tasks in one day", Icon: "⚡",
			Predicate: func(s domain.StatsSnapshot) bool { return s.TasksToday >= 5 },
		},

		// ── Streaks ────────────────────────────────────────────────────
		{
			ID: "streak_3", Title: "Consistent", Description: "Maintain a 3-day streak", Icon: "🕯️",
			Predicate: func(s domain.StatsSnapshot) bool { return s.CurrentStreak >= 3 },
		},
		{
			ID: "week_warrior", Title: "Week Warrior", Description: "Maintain a 7-day streak", Icon: "🔥",
			Predicate: func(s domain.StatsSnapshot) bool { return s.CurrentStreak >= 7 },
		},
		{
			ID: "streak_30", Title: "Unstoppable", Description: "Maintain a 30-day streak", Icon: "🌟",
			Predicate: func(s domain.StatsSnapshot) bool { return s.CurrentStreak >= 30 },
		},

		// ── Levels ─────────────────────────────────────────────────────
		{
			ID: "level_5", Title: "On the Rise", Description: "Reach level 5", Icon: "📈",
			Predicate: func(s domain.StatsSnapshot) bool { return s.Level >= 5 },
		},
		{
			ID: "level_10", Title: "Rising Star", Description: "Reach level 10", Icon: "⭐",
			Predicate: func(s domain.StatsSnapshot) bool { return s.Level >= 10 },
		},

		// ── Focus & Discipline ─────────────────────────────────────────
		{
			ID: "focus_master", Title: "Focus Master", Description: "Complete 100 focus sessions", Icon: "🧠",
			Predicate: func(s domain.StatsSnapshot) bool { return s.TotalFocusSessions >= 100 },
		},
		{
			ID: "discipline_god", Title: "Discipline God", Description: "Reach 90+ discipline score", Icon: "👑",
			Predicate: func(s domain.StatsSnapshot) bool { return s.DisciplineScore >= 90 },
		},
	}
}

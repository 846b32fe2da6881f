package engagement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/questforge/questforge/internal/domain"
)

// ─── Burnout Detection ──────────────────────────────────────────────────────

const (
	burnoutWindow       = 7
	burnoutAvgMinutes   = 360.0
	burnoutSuccessFloor = 0.5
)

// DetectBurnout classifies burnout risk from the user's most recent seven
// focus sessions (by start time). Fewer than seven sessions is low risk.
func DetectBurnout(sessions []domain.FocusSession) domain.BurnoutReport {
	if len(sessions) < burnoutWindow {
		return domain.BurnoutReport{RiskLevel: domain.RiskLow, Message: "Not enough data yet"}
	}

	recent := append([]domain.FocusSession(nil), sessions...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].StartTime.Before(recent[j].StartTime) })
	recent = recent[len(recent)-burnoutWindow:]

	var minutes, successes int
	for _, s := range recent {
		minutes += s.DurationMinutes
		if s.Successful {
			successes++
		}
	}
	avg := float64(minutes) / burnoutWindow
	rate := float64(successes) / burnoutWindow

	switch {
	case avg > burnoutAvgMinutes:
		return domain.BurnoutReport{RiskLevel: domain.RiskHigh, Message: "Warning: Overworking detected. Take breaks."}
	case rate < burnoutSuccessFloor:
		return domain.BurnoutReport{RiskLevel: domain.RiskMedium, Message: "Focus success rate dropping. Try shorter sessions."}
	default:
		return domain.BurnoutReport{RiskLevel: domain.RiskLow, Message: "You're doing great!"}
	}
}

// ─── Optimal Time ───────────────────────────────────────────────────────────

const optimalMinSessions = 10

// SuggestOptimalTime recommends a study hour from successful sessions,
// bucketed by UTC start hour. Ties go to the earliest hour.
func SuggestOptimalTime(sessions []domain.FocusSession) string {
	if len(sessions) < optimalMinSessions {
		return "Try studying in the morning for better focus."
	}

	var buckets [24]int
	found := false
	for _, s := range sessions {
		if !s.Successful || s.StartTime.IsZero() {
			continue
		}
		buckets[s.StartTime.UTC().Hour()]++
		found = true
	}
	if !found {
		return "Complete more sessions for recommendations."
	}

	best := 0
	for h := 1; h < 24; h++ {
		if buckets[h] > buckets[best] {
			best = h
		}
	}

	switch {
	case best < 12:
		return fmt.Sprintf("Your peak performance is at %d:00. Morning power!", best)
	case best < 17:
		return fmt.Sprintf("You focus best at %d:00. Afternoon warrior!", best)
	default:
		return fmt.Sprintf("You're most productive at %d:00. Night owl mode!", best)
	}
}

// ─── Insights ───────────────────────────────────────────────────────────────

// Dashboard window bounds, in days.
const (
	DefaultDashboardDays = 30
	MaxDashboardDays     = 365
	seriesDays           = 7
)

// InsightService aggregates read-only views over a user's progress.
type InsightService struct {
	store   Store
	catalog *Catalog
	cfg     settings
}

// NewInsightService creates an insight service.
func NewInsightService(store Store, catalog *Catalog, opts ...Option) *InsightService {
	return &InsightService{store: store, catalog: catalog, cfg: newSettings(opts)}
}

// Status describes a user's progression record with level progress.
type Status struct {
	Record   domain.ProgressionRecord `json:"record"`
	Progress Progress                 `json:"progress"`
	Streak   StreakUpdate             `json:"streak_if_active_now"`
}

// Status returns the user's record, creating it on first use.
func (s *InsightService) Status(ctx context.Context, userID string) (Status, error) {
	now := s.cfg.clock()
	rec, err := ensureRecord(ctx, s.store, userID, now)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Record:   rec,
		Progress: LevelProgress(rec.TotalXP),
		Streak:   UpdateStreak(rec.LastActive, now, rec.CurrentStreak),
	}, nil
}

// Dashboard returns totals over the last days (default 30, max 365), the
// wellness heuristics, and a seven-day series ending today (UTC).
func (s *InsightService) Dashboard(ctx context.Context, userID string, days int) (domain.Dashboard, error) {
	if days <= 0 {
		days = DefaultDashboardDays
	}
	if days > MaxDashboardDays {
		days = MaxDashboardDays
	}
	now := s.cfg.clock()
	rec, err := ensureRecord(ctx, s.store, userID, now)
	if err != nil {
		return domain.Dashboard{}, err
	}

	windowStart := now.Add(-time.Duration(days) * day)
	seriesStart := startOfDay(now).Add(-(seriesDays - 1) * day)
	since := windowStart
	if seriesStart.Before(since) {
		since = seriesStart
	}

	tasks, err := s.store.CompletedTasksSince(ctx, userID, since)
	if err != nil {
		return domain.Dashboard{}, fmt.Errorf("load tasks: %w", err)
	}
	sessions, err := s.store.ListFocusSessions(ctx, userID, since, 0)
	if err != nil {
		return domain.Dashboard{}, fmt.Errorf("load sessions: %w", err)
	}

	d := domain.Dashboard{
		WindowDays:      days,
		Level:           rec.Level,
		TotalXP:         rec.TotalXP,
		NextLevelXP:     XPForNextLevel(rec.Level),
		DisciplineScore: rec.DisciplineScore,
		CurrentStreak:   rec.CurrentStreak,
		LongestStreak:   rec.LongestStreak,
	}

	series := make([]domain.DailyActivity, seriesDays)
	index := make(map[string]int, seriesDays)
	for i := range series {
		key := domain.DayKey(seriesStart.Add(time.Duration(i) * day))
		series[i].Date = key
		index[key] = i
	}

	for _, t := range tasks {
		if !t.CompletedAt.Before(windowStart) {
			d.TotalTasks++
		}
		if i, ok := index[domain.DayKey(t.CompletedAt)]; ok {
			series[i].Tasks++
		}
	}
	var windowSessions []domain.FocusSession
	for _, fs := range sessions {
		if !fs.StartTime.Before(windowStart) {
			d.TotalFocusTime += fs.DurationMinutes
			windowSessions = append(windowSessions, fs)
		}
		if i, ok := index[domain.DayKey(fs.StartTime)]; ok {
			series[i].FocusMinutes += fs.DurationMinutes
		}
	}

	d.Burnout = DetectBurnout(windowSessions)
	d.OptimalTime = SuggestOptimalTime(windowSessions)
	d.Weekly = series
	return d, nil
}

// SkillTrees returns XP and level for every skill tree, in display order.
func (s *InsightService) SkillTrees(ctx context.Context, userID string) ([]domain.SkillTreeXP, error) {
	raw, err := s.store.SkillTreeXP(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load skill trees: %w", err)
	}
	out := make([]domain.SkillTreeXP, 0, len(domain.SkillTrees))
	for _, tree := range domain.SkillTrees {
		xp := raw[tree]
		out = append(out, domain.SkillTreeXP{Tree: tree, TotalXP: xp, Level: ComputeLevel(xp)})
	}
	return out, nil
}

// XPHistory returns the user's most recent ledger entries.
func (s *InsightService) XPHistory(ctx context.Context, userID string, limit int) ([]domain.XPEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.XPHistory(ctx, userID, limit)
}

// Leaderboard returns the top users by total XP.
func (s *InsightService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.store.Leaderboard(ctx, limit)
}

// Tasks lists a user's tasks, newest first. A nil completed lists all.
func (s *InsightService) Tasks(ctx context.Context, userID string, completed *bool, limit int) ([]domain.Task, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListTasks(ctx, userID, completed, limit)
}

// AchievementStatus is one achievement definition with the user's unlock state.
type AchievementStatus struct {
	domain.AchievementDef
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// Achievements returns every achievement in catalog order, marking the unlocked ones.
func (s *InsightService) Achievements(ctx context.Context, userID string) ([]AchievementStatus, error) {
	have, err := s.store.UnlockedAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}
	at := make(map[string]time.Time, len(have))
	for _, a := range have {
		at[a.ID] = a.UnlockedAt
	}

	defs := s.catalog.Achievements()
	out := make([]AchievementStatus, len(defs))
	for i, def := range defs {
		out[i] = AchievementStatus{AchievementDef: def}
		if t, ok := at[def.ID]; ok {
			t := t
			out[i].Unlocked = true
			out[i].UnlockedAt = &t
		}
	}
	return out, nil
}

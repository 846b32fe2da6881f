// Package domain holds the pure types of the questforge progression engine.
// The engagement types cover the per-user progression record, the XP ledger,
// achievements, and notifications.
package domain

import "time"

// ─── Progression Record ─────────────────────────────────────────────────────

// Progression bounds.
const (
	MinLevel               = 1
	MaxLevel               = 1000
	MinDiscipline          = 0
	MaxDiscipline          = 100
	DefaultDisciplineScore = 50
)

// ProgressionRecord is the per-user accumulator mutated by activity events.
// Every write goes through a compare-and-swap on Version.
type ProgressionRecord struct {
	UserID             string    `json:"user_id"`
	TotalXP            int64     `json:"total_xp"`
	Level              int       `json:"level"`
	CurrentStreak      int       `json:"current_streak"`
	LongestStreak      int       `json:"longest_streak"`
	DisciplineScore    int       `json:"discipline_score"`
	LastActive         time.Time `json:"last_active"`
	TasksCompleted     int64     `json:"tasks_completed"`
	TasksToday         int       `json:"tasks_today"`
	TasksTodayDate     string    `json:"tasks_today_date"` // "2006-01-02" (UTC)
	TotalFocusSessions int64     `json:"total_focus_sessions"`
	CreatedAt          time.Time `json:"created_at"`
	Version            int64     `json:"version"`
}

// NewProgressionRecord returns the starting record for a user.
// LastActive starts at creation time, so the first day never extends a streak.
func NewProgressionRecord(userID string, now time.Time) ProgressionRecord {
	return ProgressionRecord{
		UserID:          userID,
		Level:           MinLevel,
		DisciplineScore: DefaultDisciplineScore,
		LastActive:      now,
		CreatedAt:       now,
	}
}

// Stats returns the snapshot fed to achievement predicates.
// TasksToday is reported as 0 once the UTC day has rolled over.
func (r ProgressionRecord) Stats(now time.Time) StatsSnapshot {
	today := 0
	if r.TasksTodayDate == DayKey(now) {
		today = r.TasksToday
	}
	return StatsSnapshot{
		TasksCompleted:     r.TasksCompleted,
		TasksToday:         today,
		CurrentStreak:      r.CurrentStreak,
		Level:              r.Level,
		TotalFocusSessions: r.TotalFocusSessions,
		DisciplineScore:    r.DisciplineScore,
	}
}

// DayKey formats t as its UTC calendar day.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ─── XP Ledger ──────────────────────────────────────────────────────────────

// XPSource categorizes how XP was earned.
type XPSource string

const (
	XPTaskCompleted  XPSource = "TASK_COMPLETED"
	XPQuestCompleted XPSource = "QUEST_COMPLETED"
	XPBossExam       XPSource = "BOSS_EXAM"
)

// XPEntry is one row of the append-only XP ledger.
// Balance is the user's total XP after the entry was applied.
type XPEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Source    XPSource  `json:"source"`
	Amount    int64     `json:"amount"`
	Forfeited int64     `json:"forfeited,omitempty"` // penalty withheld from this award
	RefID     string    `json:"ref_id"`
	Balance   int64     `json:"balance"`
}

// ─── Skill Trees ────────────────────────────────────────────────────────────

// SkillTree names a progression track tasks can be filed under.
type SkillTree string

const (
	SkillMind       SkillTree = "Mind"
	SkillKnowledge  SkillTree = "Knowledge"
	SkillDiscipline SkillTree = "Discipline"
	SkillFitness    SkillTree = "Fitness"
)

// SkillTrees lists every skill tree in display order.
var SkillTrees = []SkillTree{SkillMind, SkillKnowledge, SkillDiscipline, SkillFitness}

// SkillTreeXP is the XP a user has accumulated in one skill tree.
type SkillTreeXP struct {
	Tree    SkillTree `json:"skill_tree"`
	TotalXP int64     `json:"total_xp"`
	Level   int       `json:"level"`
}

// ─── Achievement Types ──────────────────────────────────────────────────────

// AchievementDef defines a single achievement's requirements.
type AchievementDef struct {
	ID          string                   `json:"id"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Icon        string                   `json:"icon"`
	Predicate   func(StatsSnapshot) bool `json:"-"`
}

// UnlockedAchievement records when a user earned an achievement.
type UnlockedAchievement struct {
	ID         string    `json:"id"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// StatsSnapshot is the read-only view achievement predicates evaluate.
type StatsSnapshot struct {
	TasksCompleted     int64 `json:"tasks_completed"`
	TasksToday         int   `json:"tasks_today"`
	CurrentStreak      int   `json:"current_streak"`
	Level              int   `json:"level"`
	TotalFocusSessions int64 `json:"total_focus_sessions"`
	DisciplineScore    int   `json:"discipline_score"`
}

// ─── Notification Types ─────────────────────────────────────────────────────

// NotificationType categorizes notifications.
type NotificationType string

const (
	NotifyAchievement   NotificationType = "achievement"
	NotifyLevelUp       NotificationType = "level_up"
	NotifyQuestComplete NotificationType = "quest_complete"
	NotifyBossResult    NotificationType = "boss_result"
)

// Notification is a user-facing message.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	CreatedAt time.Time        `json:"created_at"`
	Shown     bool             `json:"shown"`
}

// NotificationPolicy governs how often notifications are stored per user.
type NotificationPolicy struct {
	MaxPerDay  int    `json:"max_per_day"`
	QuietStart string `json:"quiet_start"` // "22:00"
	QuietEnd   string `json:"quiet_end"`   // "08:00"
}

// DefaultNotificationPolicy returns the default policy.
func DefaultNotificationPolicy() NotificationPolicy {
	return NotificationPolicy{
		MaxPerDay:  5,
		QuietStart: "22:00",
		QuietEnd:   "08:00",
	}
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"user_id"`
	TotalXP       int64  `json:"total_xp"`
	Level         int    `json:"level"`
	CurrentStreak int    `json:"current_streak"`
}

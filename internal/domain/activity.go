package domain

import "time"

// ─── Activity Units ─────────────────────────────────────────────────────────

// Task is a unit of work the user completes once for XP.
// XPReward is the base reward; completion applies the streak multiplier then in force.
type Task struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	SkillTree        SkillTree `json:"skill_tree"`
	Difficulty       int       `json:"difficulty"`
	EstimatedMinutes int       `json:"estimated_minutes"`
	XPReward         int64     `json:"xp_reward"`
	Completed        bool      `json:"completed"`
	CreatedAt        time.Time `json:"created_at"`
	CompletedAt      time.Time `json:"completed_at,omitempty"`
}

// FocusSession is a timed focus block. It is open until Ended is set.
type FocusSession struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Mode            string    `json:"mode"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	Successful      bool      `json:"successful"`
	Ended           bool      `json:"ended"`
}

// ─── Insights ───────────────────────────────────────────────────────────────

// RiskLevel classifies burnout risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// BurnoutReport is the result of a burnout analysis.
type BurnoutReport struct {
	RiskLevel RiskLevel `json:"risk_level"`
	Message   string    `json:"message"`
}

// DailyActivity is one day of the dashboard series.
type DailyActivity struct {
	Date         string `json:"date"`
	Tasks        int    `json:"tasks"`
	FocusMinutes int    `json:"focus_minutes"`
}

// Dashboard aggregates a user's recent activity.
type Dashboard struct {
	WindowDays      int             `json:"window_days"`
	TotalTasks      int             `json:"total_tasks"`
	TotalFocusTime  int             `json:"total_focus_time"`
	Level           int             `json:"current_level"`
	TotalXP         int64           `json:"total_xp"`
	NextLevelXP     int64           `json:"next_level_xp"`
	DisciplineScore int             `json:"discipline_score"`
	CurrentStreak   int             `json:"current_streak"`
	LongestStreak   int             `json:"longest_streak"`
	Burnout         BurnoutReport   `json:"burnout_risk"`
	OptimalTime     string          `json:"optimal_time"`
	Weekly          []DailyActivity `json:"weekly_data"`
}

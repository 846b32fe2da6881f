package domain

import "time"

// ─── Boss Challenge ─────────────────────────────────────────────────────────

// BossChallenge is the single daily high-stakes activity for a user.
type BossChallenge struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Day           string    `json:"date"` // UTC day key
	ChallengeText string    `json:"challenge_text"`
	Difficulty    int       `json:"difficulty"`
	XPReward      int64     `json:"xp_reward"`
	Completed     bool      `json:"completed"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ExamQuestion is one multiple-choice question of the boss exam.
type ExamQuestion struct {
	ID      string   `json:"id"` // "q1".."q5"
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"`
}

// Grade is a letter grade band.
type Grade string

const (
	GradeAStar Grade = "A*"
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
	GradeF     Grade = "F"
)

// GradeResult is the pure output of grading a score.
type GradeResult struct {
	Score            float64 `json:"score"`
	Grade            Grade   `json:"grade"`
	XPMultiplier     float64 `json:"xp_multiplier"`
	XPPenalty        int64   `json:"xp_penalty"`
	ExtraDailyQuests int     `json:"extra_daily_quests"`
}

// ExamResult is the immutable record of a graded boss exam.
type ExamResult struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	ChallengeID string `json:"challenge_id"`
	Correct     int    `json:"correct"`
	Total       int    `json:"total"`
	GradeResult
	XPGained     int64     `json:"xp_gained"`
	ExtraApplied bool      `json:"extra_applied"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

package domain

import "time"

// ─── Quest Types ────────────────────────────────────────────────────────────

// QuestType names the kind of activity that advances a quest.
type QuestType string

const (
	QuestTasks     QuestType = "tasks"
	QuestFocus     QuestType = "focus"
	QuestStreak    QuestType = "streak"
	QuestSkill     QuestType = "skill"
	QuestStudy     QuestType = "study"
	QuestHabit     QuestType = "habit"
	QuestChallenge QuestType = "challenge"
	QuestXP        QuestType = "xp"
	QuestPractice  QuestType = "practice"
)

// Valid reports whether t is a known quest type.
func (t QuestType) Valid() bool {
	switch t {
	case QuestTasks, QuestFocus, QuestStreak, QuestSkill, QuestStudy,
		QuestHabit, QuestChallenge, QuestXP, QuestPractice:
		return true
	}
	return false
}

// Cadence is the window a quest set is generated for.
type Cadence string

const (
	CadenceDaily    Cadence = "daily"
	CadenceWeekly   Cadence = "weekly"
	CadenceMonthly  Cadence = "monthly"
	CadenceMicro    Cadence = "micro"
	CadenceBeginner Cadence = "beginner"
	CadenceGlobal   Cadence = "global"
)

// ParseCadence converts a string into a user-generated cadence.
// Global is rejected: global quests are never generated per user.
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(s); c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly, CadenceMicro, CadenceBeginner:
		return c, nil
	}
	return "", ErrUnknownCadence
}

// QuestUnit says what a quest's target counts.
type QuestUnit string

const (
	UnitCount   QuestUnit = "count"
	UnitMinutes QuestUnit = "minutes"
)

// QuestSource records where a quest instance came from.
type QuestSource string

const (
	SourceAI       QuestSource = "ai"
	SourceTemplate QuestSource = "template"
	SourceAuthored QuestSource = "authored"
)

// QuestTemplate is static catalog data, or a descriptor returned by the AI.
type QuestTemplate struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	XPReward    int64     `json:"xpReward"`
	Target      int       `json:"target"`
	Type        QuestType `json:"type"`
	Unit        QuestUnit `json:"unit,omitempty"`
	Difficulty  string    `json:"difficulty"`
	Category    string    `json:"category"`
}

// Quest is a per-user (or global) quest instance.
type Quest struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id,omitempty"`
	Cadence     Cadence     `json:"cadence"`
	Batch       string      `json:"batch,omitempty"` // generated set this instance belongs to
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Type        QuestType   `json:"type"`
	Unit        QuestUnit   `json:"unit"`
	Difficulty  string      `json:"difficulty"`
	Category    string      `json:"category"`
	Progress    int         `json:"progress"`
	Target      int         `json:"target"`
	XPReward    int64       `json:"xp_reward"`
	Completed   bool        `json:"completed"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time  `json:"expires_at"` // nil = never expires
	Source      QuestSource `json:"source"`
	CreatedAt   time.Time   `json:"created_at"`
}

// IsExpired reports whether the quest deadline has passed at now.
func (q Quest) IsExpired(now time.Time) bool {
	return q.ExpiresAt != nil && !now.Before(*q.ExpiresAt)
}

// ProgressPct returns completion percentage (0-100).
func (q Quest) ProgressPct() float64 {
	if q.Target <= 0 {
		return 100.0
	}
	pct := float64(q.Progress) / float64(q.Target) * 100.0
	if pct > 100.0 {
		pct = 100.0
	}
	return pct
}

// Advance applies delta to progress, capped at target.
// Completed quests are terminal; it returns true only on the transition to completed.
func (q *Quest) Advance(delta int, now time.Time) bool {
	if q.Completed || delta <= 0 {
		return false
	}
	q.Progress += delta
	if q.Progress > q.Target {
		q.Progress = q.Target
	}
	if q.Progress >= q.Target {
		q.Completed = true
		q.CompletedAt = now
		return true
	}
	return false
}

// Raise lifts progress to at least value (streak-style quests track a level, not a sum).
func (q *Quest) Raise(value int, now time.Time) bool {
	if value <= q.Progress {
		return false
	}
	return q.Advance(value-q.Progress, now)
}

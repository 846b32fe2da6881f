package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// TextGenerator abstracts the external AI text service (prompt in, text out).
// Implementations must honour ctx cancellation; callers treat every error as
// a signal to fall back to deterministic content.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest is a single prompt for the text service.
type GenerateRequest struct {
	System string
	Prompt string
}

// ProgressionCommit is everything one activity event writes, applied atomically.
// Record carries the new state; Record.Version is the version it was read at.
type ProgressionCommit struct {
	Record              ProgressionRecord
	CompleteTaskID      string
	EndSession          *FocusSession
	QuestUpdates        []Quest
	GlobalUpdates       []Quest
	Unlocks             []UnlockedAchievement
	Ledger              []XPEntry
	SkillXP             map[SkillTree]int64
	Notifications       []Notification
	CompleteChallengeID string
	Exam                *ExamResult
}

package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency.

var (
	// Lookup errors
	ErrUserNotFound      = errors.New("progression record not found")
	ErrTaskNotFound      = errors.New("task not found")
	ErrSessionNotFound   = errors.New("focus session not found")
	ErrQuestNotFound     = errors.New("quest not found")
	ErrChallengeNotFound = errors.New("boss challenge not found")

	// One-way transitions
	ErrTaskAlreadyCompleted = errors.New("task already completed")
	ErrSessionAlreadyEnded  = errors.New("focus session already ended")
	ErrExamAlreadySubmitted = errors.New("boss exam already submitted for this challenge")
	ErrQuestExpired         = errors.New("quest has expired")
	ErrChallengeExpired     = errors.New("boss challenge belongs to a previous day")

	// Input errors
	ErrUnknownCadence = errors.New("unknown quest cadence")
	ErrInvalidInput   = errors.New("invalid input")

	// Concurrency: the optimistic retry loop gave up; the activity was not recorded.
	ErrConcurrentUpdate = errors.New("progression record changed concurrently, retries exhausted")

	// Text generation
	ErrGeneratorDisabled   = errors.New("text generator is disabled")
	ErrGeneratorUnparsable = errors.New("text generator returned no usable quests")
)

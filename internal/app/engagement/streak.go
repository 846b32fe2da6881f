// Package engagement implements the questforge progression and rules engine.
// Leveling, streaks, grading, achievements, quests, boss challenges, and
// the wellness heuristics all live here; storage and the AI text service
// are reached through interfaces.
package engagement

import (
	"math"
	"time"
)

// StreakBand classifies the time elapsed since the last activity.
// It is derived per evaluation and never stored.
type StreakBand string

const (
	BandActive StreakBand = "active" // same day: streak unchanged
	BandGrace  StreakBand = "grace"  // next day: streak extends
	BandBroken StreakBand = "broken" // gap of two days or more: reset
)

// MaxStreakMultiplier caps the reward multiplier.
const MaxStreakMultiplier = 3.0

const (
	day     = 24 * time.Hour
	twoDays = 48 * time.Hour
)

// StreakUpdate is the result of evaluating a streak at a point in time.
type StreakUpdate struct {
	Streak     int        `json:"streak"`
	Multiplier float64    `json:"multiplier"`
	Band       StreakBand `json:"band"`
}

// UpdateStreak computes the new streak and reward multiplier.
//
//	elapsed < 24h        → (current, 1.0)
//	24h <= elapsed < 48h → (current+1, min(1 + 0.1·(current+1), 3.0))
//	elapsed >= 48h       → (0, 1.0)
//
// A lastActive in the future counts as the active band.
func UpdateStreak(lastActive, now time.Time, currentStreak int) StreakUpdate {
	if currentStreak < 0 {
		currentStreak = 0
	}
	elapsed := now.Sub(lastActive)

	switch {
	case elapsed < day:
		return StreakUpdate{Streak: currentStreak, Multiplier: 1.0, Band: BandActive}
	case elapsed < twoDays:
		next := currentStreak + 1
		return StreakUpdate{Streak: next, Multiplier: streakMultiplier(next), Band: BandGrace}
	default:
		return StreakUpdate{Streak: 0, Multiplier: 1.0, Band: BandBroken}
	}
}

// streakMultiplier returns 1 + 0.1·streak capped at 3.0, rounded to one
// decimal so 1.6 is exactly 1.6.
func streakMultiplier(streak int) float64 {
	m := math.Round((1.0+0.1*float64(streak))*10) / 10
	if m > MaxStreakMultiplier {
		return MaxStreakMultiplier
	}
	return m
}

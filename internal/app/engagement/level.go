package engagement

import (
	"math"

	"github.com/questforge/questforge/internal/domain"
)

// Task input bounds. Callers clamp before computing rewards.
const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// ComputeXPReward returns floor((difficulty*20 + minutes*2) * multiplier).
// Inputs are not validated; use ClampDifficulty and ClampMinutes first.
func ComputeXPReward(difficulty, estimatedMinutes int, multiplier float64) int64 {
	base := float64(difficulty*20 + estimatedMinutes*2)
	return int64(math.Floor(base * multiplier))
}

// ClampDifficulty bounds a task difficulty to 1-5.
func ClampDifficulty(d int) int {
	if d < MinDifficulty {
		return MinDifficulty
	}
	if d > MaxDifficulty {
		return MaxDifficulty
	}
	return d
}

// ClampMinutes bounds an estimated duration to >= 0.
func ClampMinutes(m int) int {
	if m < 0 {
		return 0
	}
	return m
}

// ComputeLevel returns floor(sqrt(totalXP/100)) + 1, clamped to [1, 1000].
func ComputeLevel(totalXP int64) int {
	if totalXP <= 0 {
		return domain.MinLevel
	}
	level := int(math.Floor(math.Sqrt(float64(totalXP)/100))) + 1
	if level > domain.MaxLevel {
		return domain.MaxLevel
	}
	return level
}

// XPForNextLevel returns the total XP at which level+1 begins (level²·100).
// At the level cap it returns 0.
func XPForNextLevel(level int) int64 {
	if level >= domain.MaxLevel {
		return 0
	}
	if level < domain.MinLevel {
		level = domain.MinLevel
	}
	return int64(level) * int64(level) * 100
}

// xpForLevel returns the total XP at which level begins.
func xpForLevel(level int) int64 {
	if level <= domain.MinLevel {
		return 0
	}
	return int64(level-1) * int64(level-1) * 100
}

// Progress describes where a total XP sits inside its level.
type Progress struct {
	Level       int     `json:"level"`
	TotalXP     int64   `json:"total_xp"`
	XPIntoLevel int64   `json:"xp_into_level"`
	LevelSpan   int64   `json:"level_span"`
	NextLevelXP int64   `json:"next_level_xp"`
	Percent     float64 `json:"percent"`
}

// LevelProgress returns the level for totalXP and progress toward the next one.
// At the level cap Percent is 100 and NextLevelXP is 0.
func LevelProgress(totalXP int64) Progress {
	level := ComputeLevel(totalXP)
	p := Progress{Level: level, TotalXP: totalXP, NextLevelXP: XPForNextLevel(level)}
	if level >= domain.MaxLevel {
		p.Percent = 100
		return p
	}
	floor := xpForLevel(level)
	p.XPIntoLevel = totalXP - floor
	p.LevelSpan = p.NextLevelXP - floor
	if p.LevelSpan > 0 {
		p.Percent = float64(p.XPIntoLevel) / float64(p.LevelSpan) * 100
	}
	if p.Percent < 0 {
		p.Percent = 0
	}
	if p.Percent > 100 {
		p.Percent = 100
	}
	return p
}

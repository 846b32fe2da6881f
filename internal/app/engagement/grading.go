package engagement

import (
	"math"
	"strings"

	"github.com/questforge/questforge/internal/domain"
)

// PassingScore is the lowest score without a penalty.
const PassingScore = 50.0

// gradeBands is ordered from the highest floor down; the first match wins.
var gradeBands = []struct {
	floor      float64
	grade      domain.Grade
	multiplier float64
}{
	{95, domain.GradeAStar, 2.0},
	{85, domain.GradeA, 1.5},
	{70, domain.GradeB, 1.2},
	{50, domain.GradeC, 1.0},
	{40, domain.GradeD, 0.5},
	{0, domain.GradeF, 0.0},
}

// GradeExam maps a percentage score in [0, 100] to its grade band.
// The score is rounded to one decimal first. Below 50 the result carries
// an XP penalty of floor((50-s)*10) and max(1, floor((50-s)/10)) extra daily quests.
func GradeExam(score float64) domain.GradeResult {
	tenths := int64(math.Round(score * 10))
	s := float64(tenths) / 10

	res := domain.GradeResult{Score: s, Grade: domain.GradeF}
	for _, b := range gradeBands {
		if s >= b.floor {
			res.Grade = b.grade
			res.XPMultiplier = b.multiplier
			break
		}
	}

	// Work in tenths of a point so (50-s)*10 is exact.
	if deficit := int64(PassingScore*10) - tenths; deficit > 0 {
		res.XPPenalty = deficit
		res.ExtraDailyQuests = int(deficit / 100)
		if res.ExtraDailyQuests < 1 {
			res.ExtraDailyQuests = 1
		}
	}
	return res
}

// ScoreAnswers counts case-insensitive matches against key.
// Missing or malformed answers count as incorrect. Score is correct/total*100.
func ScoreAnswers(answers, key map[string]string) (correct, total int, score float64) {
	total = len(key)
	if total == 0 {
		return 0, 0, 0
	}
	for id, want := range key {
		got, ok := answers[id]
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(got), want) {
			correct++
		}
	}
	return correct, total, float64(correct) / float64(total) * 100
}

package engagement

import (
	"math"

	"github.com/questforge/questforge/internal/domain"
)

// Catalog holds the static game content: quest templates, the boss challenge
// pool, the boss exam paper, and the achievement definitions. It is built
// once and never mutated; accessors return copies.
type Catalog struct {
	daily        []domain.QuestTemplate
	weekly       []scaledTemplate
	monthly      []scaledTemplate
	micro        []domain.QuestTemplate
	beginner     []domain.QuestTemplate
	bossPool     []string
	exam         []domain.ExamQuestion
	answerKey    map[string]string
	achievements []domain.AchievementDef
}

// scaledTemplate grows its reward linearly with level: XPReward + level*perLevel.
type scaledTemplate struct {
	domain.QuestTemplate
	perLevel int64
}

// Set sizes per cadence.
const (
	DailyQuestCount    = 5
	WeeklyQuestCount   = 5
	MonthlyQuestCount  = 4
	MicroQuestCount    = 8
	BeginnerQuestCount = 5

	// BeginnerMaxLevel is the first level at which beginner quests are hidden.
	BeginnerMaxLevel = 5
)

// DefaultCatalog returns the built-in game content.
func DefaultCatalog() *Catalog {
	return &Catalog{
		daily:        dailyTemplates,
		weekly:       weeklyTemplates,
		monthly:      monthlyTemplates,
		micro:        microTemplates,
		beginner:     beginnerTemplates,
		bossPool:     bossPool,
		exam:         examPaper,
		answerKey:    examAnswerKey,
		achievements: defaultAchievements(),
	}
}

// Templates returns the fallback templates for a cadence with rewards scaled
// for level. Daily rewards scale as floor(xp*(1+level*0.05)); weekly and
// monthly as base + level*k; micro and beginner are fixed.
func (c *Catalog) Templates(cadence domain.Cadence, level int) []domain.QuestTemplate {
	switch cadence {
	case domain.CadenceDaily:
		out := make([]domain.QuestTemplate, len(c.daily))
		for i, t := range c.daily {
			t.XPReward = int64(math.Floor(float64(t.XPReward) * (1 + float64(level)*0.05)))
			out[i] = t
		}
		return out
	case domain.CadenceWeekly:
		return scaleLinear(c.weekly, level)
	case domain.CadenceMonthly:
		return scaleLinear(c.monthly, level)
	case domain.CadenceMicro:
		return append([]domain.QuestTemplate(nil), c.micro...)
	case domain.CadenceBeginner:
		return append([]domain.QuestTemplate(nil), c.beginner...)
	}
	return nil
}

func scaleLinear(in []scaledTemplate, level int) []domain.QuestTemplate {
	out := make([]domain.QuestTemplate, len(in))
	for i, t := range in {
		q := t.QuestTemplate
		q.XPReward += int64(level) * t.perLevel
		out[i] = q
	}
	return out
}

// BossPool returns the boss challenge texts.
func (c *Catalog) BossPool() []string {
	return append([]string(nil), c.bossPool...)
}

// ExamPaper returns the boss exam questions without the answers.
func (c *Catalog) ExamPaper() []domain.ExamQuestion {
	out := make([]domain.ExamQuestion, len(c.exam))
	for i, q := range c.exam {
		q.Choices = append([]string(nil), q.Choices...)
		out[i] = q
	}
	return out
}

// AnswerKey returns the boss exam answer key, question ID → choice letter.
func (c *Catalog) AnswerKey() map[string]string {
	out := make(map[string]string, len(c.answerKey))
	for k, v := range c.answerKey {
		out[k] = v
	}
	return out
}

// Achievements returns the achievement definitions in catalog order.
func (c *Catalog) Achievements() []domain.AchievementDef {
	return append([]domain.AchievementDef(nil), c.achievements...)
}

// ─── Quest Templates ────────────────────────────────────────────────────────

var dailyTemplates = []domain.QuestTemplate{
	{Title: "Complete 3 Study Tasks", Description: "Finish 3 tasks of any difficulty", XPReward: 50, Target: 3, Type: domain.QuestTasks, Unit: domain.UnitCount, Difficulty: "easy", Category: "productivity"},
	{Title: "Focus for 30 minutes", Description: "Complete a focused study session", XPReward: 40, Target: 30, Type: domain.QuestFocus, Unit: domain.UnitMinutes, Difficulty: "easy", Category: "productivity"},
	{Title: "Maintain your streak", Description: "Keep your daily streak alive", XPReward: 30, Target: 1, Type: domain.QuestStreak, Unit: domain.UnitCount, Difficulty: "easy", Category: "discipline"},
	{Title: "Level up one skill tree", Description: "Earn XP in any skill tree", XPReward: 60, Target: 1, Type: domain.QuestSkill, Unit: domain.UnitCount, Difficulty: "medium", Category: "learning"},
	{Title: "Complete AI Study session", Description: "Use AI Coach for learning", XPReward: 50, Target: 1, Type: domain.QuestStudy, Unit: domain.UnitCount, Difficulty: "medium", Category: "learning"},
	{Title: "Pomodoro Master", Description: "Complete 4 Pomodoro cycles", XPReward: 70, Target: 4, Type: domain.QuestFocus, Unit: domain.UnitCount, Difficulty: "medium", Category: "productivity"},
	{Title: "Early Bird", Description: "Complete a task before 10 AM", XPReward: 40, Target: 1, Type: domain.QuestHabit, Unit: domain.UnitCount, Difficulty: "easy", Category: "discipline"},
	{Title: "Task Crusher", Description: "Complete 5 tasks in one day", XPReward: 80, Target: 5, Type: domain.QuestTasks, Unit: domain.UnitCount, Difficulty: "hard", Category: "productivity"},
}

var weeklyTemplates = []scaledTemplate{
	{domain.QuestTemplate{Title: "Weekly Warrior", Description: "Complete 20 tasks this week", XPReward: 200, Target: 20, Type: domain.QuestTasks, Unit: domain.UnitCount, Difficulty: "medium", Category: "productivity"}, 10},
	{domain.QuestTemplate{Title: "7-Day Streak Master", Description: "Maintain a 7-day streak", XPReward: 300, Target: 7, Type: domain.QuestStreak, Unit: domain.UnitCount, Difficulty: "hard", Category: "discipline"}, 15},
	{domain.QuestTemplate{Title: "Boss Hunter", Description: "Complete 3 Boss Challenges", XPReward: 250, Target: 3, Type: domain.QuestChallenge, Unit: domain.UnitCount, Difficulty: "hard", Category: "productivity"}, 12},
	{domain.QuestTemplate{Title: "XP Grinder", Description: "Earn 1000 XP this week", XPReward: 150, Target: 1000, Type: domain.QuestXP, Unit: domain.UnitCount, Difficulty: "medium", Category: "productivity"}, 8},
	{domain.QuestTemplate{Title: "Skill Master", Description: "Gain levels in all 4 skill trees", XPReward: 280, Target: 4, Type: domain.QuestSkill, Unit: domain.UnitCount, Difficulty: "hard", Category: "learning"}, 14},
}

var monthlyTemplates = []scaledTemplate{
	{domain.QuestTemplate{Title: "Monthly Marathon", Description: "Complete 100 tasks this month", XPReward: 800, Target: 100, Type: domain.QuestTasks, Unit: domain.UnitCount, Difficulty: "hard", Category: "productivity"}, 40},
	{domain.QuestTemplate{Title: "Unstoppable Force", Description: "Achieve a 30-day streak", XPReward: 1200, Target: 30, Type: domain.QuestStreak, Unit: domain.UnitCount, Difficulty: "legendary", Category: "discipline"}, 60},
	{domain.QuestTemplate{Title: "Skill Tree Champion", Description: "Reach level 10 in any skill tree", XPReward: 1000, Target: 10, Type: domain.QuestSkill, Unit: domain.UnitCount, Difficulty: "hard", Category: "learning"}, 50},
	{domain.QuestTemplate{Title: "XP Legend", Description: "Earn 5000 XP this month", XPReward: 900, Target: 5000, Type: domain.QuestXP, Unit: domain.UnitCount, Difficulty: "hard", Category: "productivity"}, 45},
}

var microTemplates = []domain.QuestTemplate{
	{Title: "Quick Win", Description: "Complete 1 easy task", XPReward: 15, Target: 1, Type: domain.QuestTasks, Unit: domain.UnitCount, Difficulty: "easy", Category: "productivity"},
	{Title: "5-Min Focus", Description: "Focus for 5 minutes", XPReward: 10, Target: 5, Type: domain.QuestFocus, Unit: domain.UnitMinutes, Difficulty: "easy", Category: "productivity"},
	{Title: "Skill Boost", Description: "Complete any task in Mind tree", XPReward: 20, Target: 1, Type: domain.QuestSkill, Unit: domain.UnitCount, Difficulty: "easy", Category: "learning"},
	{Title: "Habit Stack", Description: "Complete 2 tasks in a row", XPReward: 25, Target: 2, Type: domain.QuestHabit, Unit: domain.UnitCount, Difficulty: "easy", Category: "discipline"},
	{Title: "Speed Demon", Description: "Complete a task in under 10 min", XPReward: 20, Target: 1, Type: domain.QuestTasks, Unit: domain.UnitCount, Difficulty: "easy", Category: "productivity"},
	{Title: "Morning Ritual", Description: "Complete 1 task before noon", XPReward: 15, Target: 1, Type: domain.QuestHabit, Unit: domain.UnitCount, Difficulty: "easy", Category: "discipline"},
	{Title: "Knowledge Seeker", Description: "Complete 1 Knowledge tree task", XPReward: 20, Target: 1, Type: domain.QuestSkill, Unit: domain.UnitCount, Difficulty: "easy", Category: "learning"},
	{Title: "Micro Focus", Description: "Do a 10-minute focus session", XPReward: 18, Target: 10, Type: domain.QuestFocus, Unit: domain.UnitMinutes, Difficulty: "easy", Category: "productivity"},
}

var beginnerTemplates = []domain.QuestTemplate{
	{Title: "5-Minute Vocabulary", Description: "Learn 5 new words in any language", XPReward: 20, Target: 5, Type: domain.QuestStudy, Unit: domain.UnitCount, Difficulty: "easy", Category: "language"},
	{Title: "Grammar Basics", Description: "Complete a basic grammar lesson", XPReward: 25, Target: 1, Type: domain.QuestStudy, Unit: domain.UnitCount, Difficulty: "easy", Category: "language"},
	{Title: "Practice Pronunciation", Description: "Practice speaking for 10 minutes", XPReward: 30, Target: 10, Type: domain.QuestPractice, Unit: domain.UnitMinutes, Difficulty: "easy", Category: "language"},
	{Title: "Math Warm-up", Description: "Solve 5 basic math problems", XPReward: 25, Target: 5, Type: domain.QuestPractice, Unit: domain.UnitCount, Difficulty: "easy", Category: "stem"},
	{Title: "Number Sense", Description: "Complete mental math exercises", XPReward: 20, Target: 1, Type: domain.QuestPractice, Unit: domain.UnitCount, Difficulty: "easy", Category: "stem"},
	{Title: "Science Explorer", Description: "Watch a 5-min science video", XPReward: 20, Target: 5, Type: domain.QuestStudy, Unit: domain.UnitMinutes, Difficulty: "easy", Category: "stem"},
	{Title: "Experiment Time", Description: "Learn about a scientific concept", XPReward: 30, Target: 1, Type: domain.QuestStudy, Unit: domain.UnitCount, Difficulty: "easy", Category: "stem"},
	{Title: "Code Your First Program", Description: `Write a simple "Hello World" program`, XPReward: 35, Target: 1, Type: domain.QuestPractice, Unit: domain.UnitCount, Difficulty: "easy", Category: "stem"},
	{Title: "Learn Basic Syntax", Description: "Study programming basics for 10 minutes", XPReward: 25, Target: 10, Type: domain.QuestStudy, Unit: domain.UnitMinutes, Difficulty: "easy", Category: "stem"},
	{Title: "Reading Time", Description: "Read for 15 minutes", XPReward: 20, Target: 15, Type: domain.QuestStudy, Unit: domain.UnitMinutes, Difficulty: "easy", Category: "general"},
	{Title: "Note Taking Practice", Description: "Take organized notes from any lesson", XPReward: 25, Target: 1, Type: domain.QuestPractice, Unit: domain.UnitCount, Difficulty: "easy", Category: "general"},
}

// ─── Boss Content ───────────────────────────────────────────────────────────

var bossPool = []string{
	"Complete 5 high-difficulty tasks",
	"Study for 2 hours without breaks",
	"Complete all tasks in your weakest skill tree",
	"Achieve a perfect focus session (no distractions)",
	"Complete tasks worth 500+ XP today",
}

var examPaper = []domain.ExamQuestion{
	{ID: "q1", Prompt: "What is the primary benefit of breaking tasks into micro-wins?", Choices: []string{
		"A) Less work overall",
		"B) Instant dopamine rewards that reinforce positive habits",
		"C) Avoiding responsibility",
		"D) Making tasks harder",
	}},
	{ID: "q2", Prompt: "How does the streak multiplier work?", Choices: []string{
		"A) 5% per day",
		"B) 10% per day up to 3x maximum",
		"C) 20% per day",
		"D) No multiplier exists",
	}},
	{ID: "q3", Prompt: "What happens when you score below 50% on a boss exam?", Choices: []string{
		"A) Nothing",
		"B) XP penalty and extra daily quests",
		"C) Account deletion",
		"D) Level reset",
	}},
	{ID: "q4", Prompt: "Which skill tree focuses on mental agility?", Choices: []string{
		"A) Knowledge",
		"B) Discipline",
		"C) Mind",
		"D) Fitness",
	}},
	{ID: "q5", Prompt: "What is the maximum level in the system?", Choices: []string{
		"A) 100",
		"B) 500",
		"C) 1000",
		"D) Unlimited",
	}},
}

var examAnswerKey = map[string]string{"q1": "B", "q2": "B", "q3": "B", "q4": "C", "q5": "C"}

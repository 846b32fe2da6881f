package engagement_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/questforge/questforge/internal/app/engagement"
	"github.com/questforge/questforge/internal/domain"
	"github.com/questforge/questforge/internal/infra/sqlite"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testClock is a settable time source. Times are whole seconds because
// the store keeps Unix seconds.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// env wires every engagement service over one store and one clock.
type env struct {
	db       *sqlite.DB
	clock    *testClock
	catalog  *engagement.Catalog
	proc     *engagement.Processor
	quests   *engagement.QuestService
	boss     *engagement.BossService
	insights *engagement.InsightService
	notes    *engagement.NotificationService
}

var start = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newEnv(t *testing.T, gen domain.TextGenerator, extra ...engagement.Option) *env {
	t.Helper()
	db := testDB(t)
	return newEnvWithStore(t, db, db, gen, extra...)
}

func newEnvWithStore(t *testing.T, db *sqlite.DB, store engagement.Store, gen domain.TextGenerator, extra ...engagement.Option) *env {
	t.Helper()
	clock := &testClock{now: start}
	catalog := engagement.DefaultCatalog()
	opts := append([]engagement.Option{
		engagement.WithClock(clock.Now),
		engagement.WithRand(rand.New(rand.NewSource(7))),
		engagement.WithRetryPolicy(engagement.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}),
	}, extra...)
	return &env{
		db:       db,
		clock:    clock,
		catalog:  catalog,
		proc:     engagement.NewProcessor(store, catalog, opts...),
		quests:   engagement.NewQuestService(store, gen, catalog, opts...),
		boss:     engagement.NewBossService(store, catalog, opts...),
		insights: engagement.NewInsightService(store, catalog, opts...),
		notes:    engagement.NewNotificationService(store, opts...),
	}
}

// seedRecord stores a record for userID with the given streak state.
func (e *env) seedRecord(t *testing.T, userID string, mutate func(*domain.ProgressionRecord)) {
	t.Helper()
	ctx := context.Background()
	rec, err := e.db.EnsureProgression(ctx, domain.NewProgressionRecord(userID, e.clock.Now()))
	if err != nil {
		t.Fatalf("ensure record: %v", err)
	}
	mutate(&rec)
	if err := e.db.CommitProgression(ctx, domain.ProgressionCommit{Record: rec}); err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func (e *env) task(t *testing.T, userID string, in engagement.NewTask) domain.Task {
	t.Helper()
	if in.Title == "" {
		in.Title = "Task"
	}
	task, err := e.proc.CreateTask(context.Background(), userID, in)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (e *env) insertQuests(t *testing.T, userID string, quests ...domain.Quest) []domain.Quest {
	t.Helper()
	expires := e.clock.Now().Add(12 * time.Hour)
	for i := range quests {
		q := &quests[i]
		q.ID = userID + "-" + q.Title
		q.UserID = userID
		q.Batch = "manual"
		if q.Cadence == "" {
			q.Cadence = domain.CadenceDaily
		}
		if q.Unit == "" {
			q.Unit = domain.UnitCount
		}
		if q.ExpiresAt == nil {
			q.ExpiresAt = &expires
		}
		q.Source = domain.SourceTemplate
		q.CreatedAt = e.clock.Now()
	}
	if err := e.db.InsertQuestSet(context.Background(), quests, ""); err != nil {
		t.Fatalf("insert quests: %v", err)
	}
	return quests
}

// ═══════════════════════════════════════════════════════════════════════════
// Leveling Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestComputeXPReward(t *testing.T) {
	tests := []struct {
		difficulty, minutes int
		mult                float64
		want                int64
	}{
		{3, 30, 1.0, 120},
		{1, 0, 1.0, 20},
		{5, 60, 1.0, 220},
		{3, 30, 1.6, 192},
		{2, 15, 1.1, 77}, // 70 * 1.1 = 77.00000000000001
		{5, 0, 3.0, 300},
	}
	for _, tt := range tests {
		got := engagement.ComputeXPReward(tt.difficulty, tt.minutes, tt.mult)
		if got != tt.want {
			t.Errorf("ComputeXPReward(%d, %d, %.1f) = %d, want %d", tt.difficulty, tt.minutes, tt.mult, got, tt.want)
		}
	}
}

func TestClampInputs(t *testing.T) {
	if engagement.ClampDifficulty(0) != 1 || engagement.ClampDifficulty(9) != 5 || engagement.ClampDifficulty(3) != 3 {
		t.Error("ClampDifficulty should bound to 1-5")
	}
	if engagement.ClampMinutes(-10) != 0 || engagement.ClampMinutes(45) != 45 {
		t.Error("ClampMinutes should floor at 0")
	}
}

func TestComputeLevel(t *testing.T) {
	tests := []struct {
		xp   int64
		want int
	}{
		{0, 1},
		{-50, 1},
		{99, 1},
		{100, 2},
		{250, 2},
		{400, 3},
		{10_000, 11},
		{1 << 40, 1000},
	}
	for _, tt := range tests {
		if got := engagement.ComputeLevel(tt.xp); got != tt.want {
			t.Errorf("ComputeLevel(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}

func TestComputeLevel_BoundedAndMonotonic(t *testing.T) {
	prev := 0
	for xp := int64(0); xp < 2_000_000; xp += 977 {
		level := engagement.ComputeLevel(xp)
		if level < domain.MinLevel || level > domain.MaxLevel {
			t.Fatalf("ComputeLevel(%d) = %d out of bounds", xp, level)
		}
		if level < prev {
			t.Fatalf("ComputeLevel(%d) = %d decreased from %d", xp, level, prev)
		}
		if next := engagement.XPForNextLevel(level); next <= xp {
			t.Fatalf("XPForNextLevel(%d) = %d should exceed %d", level, next, xp)
		}
		prev = level
	}
}

func TestXPForNextLevel(t *testing.T) {
	if got := engagement.XPForNextLevel(1); got != 100 {
		t.Errorf("XPForNextLevel(1) = %d, want 100", got)
	}
	if got := engagement.XPForNextLevel(2); got != 400 {
		t.Errorf("XPForNextLevel(2) = %d, want 400", got)
	}
	for _, level := range []int{1000, 1001, 5000} {
		if got := engagement.XPForNextLevel(level); got != 0 {
			t.Errorf("XPForNextLevel(%d) = %d, want 0", level, got)
		}
	}
	for level := 1; level < 1000; level++ {
		if engagement.XPForNextLevel(level) <= 0 {
			t.Fatalf("XPForNextLevel(%d) should be positive", level)
		}
	}
}

func TestLevelProgress(t *testing.T) {
	p := engagement.LevelProgress(250)
	if p.Level != 2 || p.XPIntoLevel != 150 || p.LevelSpan != 300 || p.NextLevelXP != 400 {
		t.Errorf("LevelProgress(250) = %+v", p)
	}
	if p.Percent != 50 {
		t.Errorf("Percent = %.2f, want 50", p.Percent)
	}

	capped := engagement.LevelProgress(1 << 40)
	if capped.Level != 1000 || capped.Percent != 100 || capped.NextLevelXP != 0 {
		t.Errorf("capped progress = %+v", capped)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestUpdateStreak(t *testing.T) {
	now := start
	tests := []struct {
		name    string
		elapsed time.Duration
		current int
		want    engagement.StreakUpdate
	}{
		{"same day", 2 * time.Hour, 5, engagement.StreakUpdate{Streak: 5, Multiplier: 1.0, Band: engagement.BandActive}},
		{"next day", 30 * time.Hour, 5, engagement.StreakUpdate{Streak: 6, Multiplier: 1.6, Band: engagement.BandGrace}},
		{"exactly 24h", 24 * time.Hour, 0, engagement.StreakUpdate{Streak: 1, Multiplier: 1.1, Band: engagement.BandGrace}},
		{"broken", 50 * time.Hour, 5, engagement.StreakUpdate{Streak: 0, Multiplier: 1.0, Band: engagement.BandBroken}},
		{"exactly 48h", 48 * time.Hour, 9, engagement.StreakUpdate{Streak: 0, Multiplier: 1.0, Band: engagement.BandBroken}},
		{"capped", 30 * time.Hour, 40, engagement.StreakUpdate{Streak: 41, Multiplier: 3.0, Band: engagement.BandGrace}},
		{"future last active", -time.Hour, 3, engagement.StreakUpdate{Streak: 3, Multiplier: 1.0, Band: engagement.BandActive}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engagement.UpdateStreak(now.Add(-tt.elapsed), now, tt.current)
			if got != tt.want {
				t.Errorf("UpdateStreak = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestUpdateStreak_MultiplierBounds(t *testing.T) {
	for streak := 0; streak < 200; streak++ {
		for _, elapsed := range []time.Duration{time.Hour, 30 * time.Hour, 72 * time.Hour} {
			u := engagement.UpdateStreak(start.Add(-elapsed), start, streak)
			if u.Multiplier < 1.0 || u.Multiplier > engagement.MaxStreakMultiplier {
				t.Fatalf("streak %d elapsed %v: multiplier %.2f out of [1, 3]", streak, elapsed, u.Multiplier)
			}
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Grading Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestGradeExam(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.GradeResult
	}{
		{96, domain.GradeResult{Score: 96, Grade: domain.GradeAStar, XPMultiplier: 2.0}},
		{95, domain.GradeResult{Score: 95, Grade: domain.GradeAStar, XPMultiplier: 2.0}},
		{90, domain.GradeResult{Score: 90, Grade: domain.GradeA, XPMultiplier: 1.5}},
		{70, domain.GradeResult{Score: 70, Grade: domain.GradeB, XPMultiplier: 1.2}},
		{50, domain.GradeResult{Score: 50, Grade: domain.GradeC, XPMultiplier: 1.0}},
		{48.7, domain.GradeResult{Score: 48.7, Grade: domain.GradeD, XPMultiplier: 0.5, XPPenalty: 13, ExtraDailyQuests: 1}},
		{42.3, domain.GradeResult{Score: 42.3, Grade: domain.GradeD, XPMultiplier: 0.5, XPPenalty: 77, ExtraDailyQuests: 1}},
		{20, domain.GradeResult{Score: 20, Grade: domain.GradeF, XPMultiplier: 0, XPPenalty: 300, ExtraDailyQuests: 3}},
		{0, domain.GradeResult{Score: 0, Grade: domain.GradeF, XPMultiplier: 0, XPPenalty: 500, ExtraDailyQuests: 5}},
	}
	for _, tt := range tests {
		if got := engagement.GradeExam(tt.score); got != tt.want {
			t.Errorf("GradeExam(%.1f) = %+v, want %+v", tt.score, got, tt.want)
		}
	}
}

func TestGradeExam_PenaltyIffFailing(t *testing.T) {
	for tenths := 0; tenths <= 1000; tenths++ {
		score := float64(tenths) / 10
		g := engagement.GradeExam(score)
		failing := score < engagement.PassingScore
		if failing != (g.ExtraDailyQuests >= 1) {
			t.Fatalf("score %.1f: extra quests %d", score, g.ExtraDailyQuests)
		}
		if failing != (g.XPPenalty > 0) {
			t.Fatalf("score %.1f: penalty %d", score, g.XPPenalty)
		}
		if g.Grade == "" {
			t.Fatalf("score %.1f: no grade band", score)
		}
	}
}

func TestScoreAnswers(t *testing.T) {
	key := map[string]string{"q1": "B", "q2": "B", "q3": "B", "q4": "C", "q5": "C"}

	correct, total, score := engagement.ScoreAnswers(map[string]string{"q1": "b", "q2": " B ", "q4": "A"}, key)
	if correct != 2 || total != 5 || score != 40 {
		t.Errorf("ScoreAnswers = %d/%d (%.1f), want 2/5 (40)", correct, total, score)
	}

	correct, _, score = engagement.ScoreAnswers(nil, key)
	if correct != 0 || score != 0 {
		t.Errorf("empty answers = %d (%.1f), want 0", correct, score)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestEvaluator_Evaluate(t *testing.T) {
	ev := engagement.NewEvaluator(engagement.DefaultCatalog().Achievements())
	stats := domain.StatsSnapshot{TasksCompleted: 10, TasksToday: 2, CurrentStreak: 7, Level: 5, DisciplineScore: 60}

	got := ev.Evaluate(stats)
	want := []string{"first_task", "task_10", "streak_3", "week_warrior", "level_5"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Evaluate = %v, want %v", got, want)
	}

	again := ev.Evaluate(stats)
	if strings.Join(again, ",") != strings.Join(got, ",") {
		t.Error("Evaluate should be deterministic")
	}
	if len(ev.Evaluate(domain.StatsSnapshot{})) != 0 {
		t.Error("zero stats should unlock nothing")
	}
}

func TestEvaluator_NewlyUnlocked(t *testing.T) {
	ev := engagement.NewEvaluator(engagement.DefaultCatalog().Achievements())
	stats := domain.StatsSnapshot{TasksCompleted: 1, TasksToday: 5, DisciplineScore: 95}

	fresh := ev.NewlyUnlocked(stats, map[string]bool{"first_task": true})
	var ids []string
	for _, d := range fresh {
		ids = append(ids, d.ID)
	}
	if strings.Join(ids, ",") != "speed_demon,discipline_god" {
		t.Errorf("NewlyUnlocked = %v", ids)
	}

	if _, ok := ev.Definition("focus_master"); !ok {
		t.Error("focus_master should be defined")
	}
	if _, ok := ev.Definition("nope"); ok {
		t.Error("unknown achievement should not be found")
	}
	if len(ev.Definitions()) != 12 {
		t.Errorf("expected 12 definitions, got %d", len(ev.Definitions()))
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Quest Progress Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestQuestAdvance_CappedAndTerminal(t *testing.T) {
	q := domain.Quest{Target: 3}
	deltas := []int{1, 0, -4, 5, 2}
	completedSeen := false
	for _, d := range deltas {
		q.Advance(d, start)
		if q.Progress > q.Target || q.Progress < 0 {
			t.Fatalf("progress %d out of [0, %d]", q.Progress, q.Target)
		}
		if completedSeen && !q.Completed {
			t.Fatal("completed must be monotonic")
		}
		completedSeen = q.Completed
	}
	if !q.Completed || q.Progress != 3 {
		t.Errorf("quest = %+v, want completed at 3", q)
	}
	if q.Advance(1, start) {
		t.Error("completed quest must not transition again")
	}

	streak := domain.Quest{Target: 7}
	streak.Raise(4, start)
	streak.Raise(2, start)
	if streak.Progress != 4 {
		t.Errorf("Raise should keep the high-water mark, got %d", streak.Progress)
	}
}

func TestCatalog_Templates(t *testing.T) {
	c := engagement.DefaultCatalog()

	daily := c.Templates(domain.CadenceDaily, 10)
	if len(daily) != 8 {
		t.Fatalf("expected 8 daily templates, got %d", len(daily))
	}
	if daily[0].XPReward != 75 { // floor(50 * 1.5)
		t.Errorf("daily reward at level 10 = %d, want 75", daily[0].XPReward)
	}

	weekly := c.Templates(domain.CadenceWeekly, 1)
	if len(weekly) != 5 || weekly[0].XPReward != 210 {
		t.Errorf("weekly = %d templates, first reward %d", len(weekly), weekly[0].XPReward)
	}
	monthly := c.Templates(domain.CadenceMonthly, 2)
	if len(monthly) != 4 || monthly[0].XPReward != 880 {
		t.Errorf("monthly = %d templates, first reward %d", len(monthly), monthly[0].XPReward)
	}

	// Accessors hand out copies.
	daily[0].Title = "mutated"
	if c.Templates(domain.CadenceDaily, 10)[0].Title == "mutated" {
		t.Error("Templates should return a copy")
	}
	key := c.AnswerKey()
	key["q1"] = "Z"
	if c.AnswerKey()["q1"] != "B" {
		t.Error("AnswerKey should return a copy")
	}
	if len(c.ExamPaper()) != 5 {
		t.Errorf("expected 5 exam questions, got %d", len(c.ExamPaper()))
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Boss Challenge Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestGenerateBossChallenge(t *testing.T) {
	pool := engagement.DefaultCatalog().BossPool()
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		level      int
		difficulty int
		reward     int64
	}{
		{1, 1, 110},
		{4, 1, 140},
		{5, 2, 250},
		{12, 3, 420},
		{20, 5, 700},
		{100, 5, 1500},
	}
	for _, tt := range tests {
		c := engagement.GenerateBossChallenge(tt.level, pool, rng)
		if c.Difficulty != tt.difficulty || c.XPReward != tt.reward {
			t.Errorf("level %d: difficulty %d reward %d, want %d / %d",
				tt.level, c.Difficulty, c.XPReward, tt.difficulty, tt.reward)
		}
		found := false
		for _, p := range pool {
			if p == c.ChallengeText {
				found = true
			}
		}
		if !found {
			t.Errorf("challenge text %q not from pool", c.ChallengeText)
		}
	}
}

func TestBossService_OnePerDay(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	first, err := e.boss.Today(ctx, "alice")
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if first.Difficulty != 1 || first.XPReward != 110 || first.Day != "2026-03-10" {
		t.Errorf("unexpected challenge: %+v", first)
	}
	again, _ := e.boss.Today(ctx, "alice")
	if again.ID != first.ID {
		t.Error("same day should return the same challenge")
	}

	e.clock.Advance(24 * time.Hour)
	next, _ := e.boss.Today(ctx, "alice")
	if next.ID == first.ID || next.Day != "2026-03-11" {
		t.Errorf("next day should get a new challenge, got %+v", next)
	}

	paper, err := e.boss.ExamPaper(ctx, "alice", first.ID)
	if err != nil || len(paper) != 5 {
		t.Errorf("ExamPaper = %d questions, %v", len(paper), err)
	}
	if _, err := e.boss.ExamPaper(ctx, "bob", first.ID); !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Errorf("other user's paper: expected ErrChallengeNotFound, got %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Wellness Tests
// ═══════════════════════════════════════════════════════════════════════════

func sessions(n, minutes, successful int, hour int) []domain.FocusSession {
	out := make([]domain.FocusSession, n)
	for i := range out {
		out[i] = domain.FocusSession{
			StartTime:       time.Date(2026, 3, 1+i, hour, 0, 0, 0, time.UTC),
			DurationMinutes: minutes,
			Successful:      i < successful,
			Ended:           true,
		}
	}
	return out
}

func TestDetectBurnout(t *testing.T) {
	tests := []struct {
		name     string
		sessions []domain.FocusSession
		want     domain.RiskLevel
		message  string
	}{
		{"not enough data", sessions(6, 500, 6, 9), domain.RiskLow, "Not enough data yet"},
		{"overworking", sessions(7, 400, 7, 9), domain.RiskHigh, "Warning: Overworking detected. Take breaks."},
		{"low success", sessions(7, 30, 3, 9), domain.RiskMedium, "Focus success rate dropping. Try shorter sessions."},
		{"healthy", sessions(7, 30, 4, 9), domain.RiskLow, "You're doing great!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engagement.DetectBurnout(tt.sessions)
			if got.RiskLevel != tt.want || got.Message != tt.message {
				t.Errorf("DetectBurnout = %+v, want %s %q", got, tt.want, tt.message)
			}
		})
	}
}

func TestDetectBurnout_UsesMostRecentSeven(t *testing.T) {
	s := sessions(8, 30, 8, 9)
	s[0].DurationMinutes = 10_000 // oldest: outside the window
	// Shuffle order; recency is by start time.
	s[0], s[7] = s[7], s[0]
	if got := engagement.DetectBurnout(s); got.RiskLevel != domain.RiskLow {
		t.Errorf("oldest session should be ignored, got %+v", got)
	}
}

func TestSuggestOptimalTime(t *testing.T) {
	if got := engagement.SuggestOptimalTime(sessions(9, 30, 9, 14)); got != "Try studying in the morning for better focus." {
		t.Errorf("few sessions: %q", got)
	}
	if got := engagement.SuggestOptimalTime(sessions(10, 30, 0, 14)); got != "Complete more sessions for recommendations." {
		t.Errorf("no successes: %q", got)
	}
	if got := engagement.SuggestOptimalTime(sessions(10, 30, 10, 14)); got != "You focus best at 14:00. Afternoon warrior!" {
		t.Errorf("afternoon: %q", got)
	}
	if got := engagement.SuggestOptimalTime(sessions(10, 30, 10, 21)); got != "You're most productive at 21:00. Night owl mode!" {
		t.Errorf("night: %q", got)
	}

	tie := append(sessions(5, 30, 5, 20), sessions(5, 30, 5, 9)...)
	if got := engagement.SuggestOptimalTime(tie); got != "Your peak performance is at 9:00. Morning power!" {
		t.Errorf("tie should pick the earliest hour: %q", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Activity Processor Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestProcessor_CompleteTask(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	task := e.task(t, "alice", engagement.NewTask{Title: "Report", SkillTree: domain.SkillKnowledge, Difficulty: 3, EstimatedMinutes: 30})
	if task.XPReward != 120 {
		t.Fatalf("base reward = %d, want 120", task.XPReward)
	}

	out, err := e.proc.CompleteTask(ctx, "alice", task.ID)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if out.XPGained != 120 || out.TotalXP != 120 || out.Level != 2 || !out.LeveledUp {
		t.Errorf("outcome = %+v", out)
	}
	if out.Record.DisciplineScore != 51 || out.Record.TasksCompleted != 1 || out.Record.TasksToday != 1 {
		t.Errorf("record = %+v", out.Record)
	}
	if len(out.NewAchievements) != 1 || out.NewAchievements[0].ID != "first_task" {
		t.Errorf("achievements = %+v", out.NewAchievements)
	}

	skills, _ := e.insights.SkillTrees(ctx, "alice")
	if skills[1].Tree != domain.SkillKnowledge || skills[1].TotalXP != 120 || skills[1].Level != 2 {
		t.Errorf("skill trees = %+v", skills)
	}

	pending, _ := e.notes.Pending(ctx, "alice", 10)
	if len(pending) != 2 {
		t.Errorf("expected level-up and achievement notifications, got %d", len(pending))
	}

	if _, err := e.proc.CompleteTask(ctx, "alice", task.ID); !errors.Is(err, domain.ErrTaskAlreadyCompleted) {
		t.Errorf("second completion: expected ErrTaskAlreadyCompleted, got %v", err)
	}
	if _, err := e.proc.CompleteTask(ctx, "alice", "missing"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("unknown task: expected ErrTaskNotFound, got %v", err)
	}

	// Achievements unlock once.
	second := e.task(t, "alice", engagement.NewTask{Difficulty: 1})
	out, _ = e.proc.CompleteTask(ctx, "alice", second.ID)
	if len(out.NewAchievements) != 0 {
		t.Errorf("first_task unlocked twice: %+v", out.NewAchievements)
	}
}

func TestProcessor_CreateTaskValidation(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	if _, err := e.proc.CreateTask(ctx, "alice", engagement.NewTask{Title: "  "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("blank title: expected ErrInvalidInput, got %v", err)
	}
	if _, err := e.proc.CreateTask(ctx, "alice", engagement.NewTask{Title: "x", SkillTree: "Cooking"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("unknown tree: expected ErrInvalidInput, got %v", err)
	}

	task, err := e.proc.CreateTask(ctx, "alice", engagement.NewTask{Title: "x", Difficulty: 12, EstimatedMinutes: -5})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Difficulty != 5 || task.EstimatedMinutes != 0 || task.XPReward != 100 {
		t.Errorf("clamped task = %+v", task)
	}
}

func TestProcessor_StreakMultiplierApplies(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	e.seedRecord(t, "alice", func(r *domain.ProgressionRecord) {
		r.CurrentStreak, r.LongestStreak = 5, 5
		r.LastActive = start.Add(-30 * time.Hour)
	})

	task := e.task(t, "alice", engagement.NewTask{Difficulty: 3, EstimatedMinutes: 30})
	out, err := e.proc.CompleteTask(ctx, "alice", task.ID)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if out.Streak.Streak != 6 || out.Streak.Multiplier != 1.6 || out.Streak.Band != engagement.BandGrace {
		t.Errorf("streak = %+v", out.Streak)
	}
	if out.XPGained != 192 {
		t.Errorf("XPGained = %d, want 192", out.XPGained)
	}
	if out.Record.LongestStreak != 6 || !out.Record.LastActive.Equal(start) {
		t.Errorf("record = %+v", out.Record)
	}

	// Same day again: streak holds, no multiplier.
	e.clock.Advance(time.Hour)
	task = e.task(t, "alice", engagement.NewTask{Difficulty: 3, EstimatedMinutes: 30})
	out, _ = e.proc.CompleteTask(ctx, "alice", task.ID)
	if out.Streak.Streak != 6 || out.XPGained != 120 {
		t.Errorf("same-day outcome: streak %d xp %d", out.Streak.Streak, out.XPGained)
	}
}

func TestProcessor_BrokenStreak(t *testing.T) {
	e := newEnv(t, nil)
	e.seedRecord(t, "alice", func(r *domain.ProgressionRecord) {
		r.CurrentStreak, r.LongestStreak = 5, 5
		r.LastActive = start.Add(-50 * time.Hour)
	})

	task := e.task(t, "alice", engagement.NewTask{Difficulty: 3, EstimatedMinutes: 30})
	out, err := e.proc.CompleteTask(context.Background(), "alice", task.ID)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if out.Record.CurrentStreak != 0 || out.Record.LongestStreak != 5 || out.XPGained != 120 {
		t.Errorf("broken streak outcome: %+v", out.Record)
	}
}

func TestProcessor_FocusSession(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	s, err := e.proc.StartFocusSession(ctx, "alice", "")
	if err != nil {
		t.Fatalf("StartFocusSession: %v", err)
	}
	if s.Mode != "pomodoro" || s.Ended {
		t.Errorf("session = %+v", s)
	}

	e.clock.Advance(25 * time.Minute)
	out, err := e.proc.EndFocusSession(ctx, "alice", s.ID, 25, true)
	if err != nil {
		t.Fatalf("EndFocusSession: %v", err)
	}
	if out.XPGained != 0 || out.Record.TotalFocusSessions != 1 || out.Record.DisciplineScore != 52 {
		t.Errorf("focus outcome = %+v", out)
	}
	if out.Session == nil || !out.Session.Ended || out.Session.DurationMinutes != 25 {
		t.Errorf("ended session = %+v", out.Session)
	}

	if _, err := e.proc.EndFocusSession(ctx, "alice", s.ID, 25, true); !errors.Is(err, domain.ErrSessionAlreadyEnded) {
		t.Errorf("expected ErrSessionAlreadyEnded, got %v", err)
	}

	failed, _ := e.proc.StartFocusSession(ctx, "alice", "deep")
	out, _ = e.proc.EndFocusSession(ctx, "alice", failed.ID, 5, false)
	if out.Record.TotalFocusSessions != 2 || out.Record.DisciplineScore != 52 {
		t.Errorf("failed session should count but add no discipline: %+v", out.Record)
	}
}

func TestProcessor_QuestProgress(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	e.seedRecord(t, "alice", func(*domain.ProgressionRecord) {})

	e.insertQuests(t, "alice",
		domain.Quest{Title: "tasks", Type: domain.QuestTasks, Target: 2, XPReward: 50},
		domain.Quest{Title: "focus", Type: domain.QuestFocus, Unit: domain.UnitMinutes, Target: 30, XPReward: 40},
		domain.Quest{Title: "xp", Type: domain.QuestXP, Target: 100, XPReward: 20},
		domain.Quest{Title: "skill", Type: domain.QuestSkill, Target: 1, XPReward: 60},
		domain.Quest{Title: "habit", Type: domain.QuestHabit, Target: 1, XPReward: 10},
	)

	task := e.task(t, "alice", engagement.NewTask{SkillTree: domain.SkillMind, Difficulty: 3, EstimatedMinutes: 30})
	out, err := e.proc.CompleteTask(ctx, "alice", task.ID)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if len(out.CompletedQuests) != 2 {
		t.Fatalf("expected xp and skill quests to complete, got %+v", out.CompletedQuests)
	}
	if out.XPGained != 200 { // 120 task + 20 xp quest + 60 skill quest
		t.Errorf("XPGained = %d, want 200", out.XPGained)
	}

	q, _ := e.db.GetQuest(ctx, "alice", "alice-tasks")
	if q.Progress != 1 || q.Completed {
		t.Errorf("tasks quest = %+v", q)
	}
	habit, _ := e.db.GetQuest(ctx, "alice", "alice-habit")
	if habit.Progress != 0 {
		t.Errorf("habit quests advance only by explicit completion, got %d", habit.Progress)
	}

	for _, minutes := range []int{20, 15} {
		s, _ := e.proc.StartFocusSession(ctx, "alice", "")
		out, err = e.proc.EndFocusSession(ctx, "alice", s.ID, minutes, true)
		if err != nil {
			t.Fatalf("EndFocusSession: %v", err)
		}
	}
	focus, _ := e.db.GetQuest(ctx, "alice", "alice-focus")
	if !focus.Completed || focus.Progress != 30 {
		t.Errorf("focus quest = %+v", focus)
	}
	if out.XPGained != 40 {
		t.Errorf("focus quest reward = %d, want 40", out.XPGained)
	}

	// The ledger always sums to the record's total.
	history, _ := e.db.XPHistory(ctx, "alice", 100)
	var sum int64
	for _, h := range history {
		sum += h.Amount
	}
	if sum != out.TotalXP {
		t.Errorf("ledger sum %d != total XP %d", sum, out.TotalXP)
	}
	if history[0].Balance != out.TotalXP {
		t.Errorf("latest balance %d != total XP %d", history[0].Balance, out.TotalXP)
	}
}

func TestProcessor_CompleteQuest(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	e.seedRecord(t, "alice", func(*domain.ProgressionRecord) {})

	soon := start.Add(time.Hour)
	e.insertQuests(t, "alice",
		domain.Quest{Title: "habit", Type: domain.QuestHabit, Target: 1, XPReward: 40},
		domain.Quest{Title: "short", Type: domain.QuestStudy, Target: 3, XPReward: 30, ExpiresAt: &soon},
	)

	out, err := e.proc.CompleteQuest(ctx, "alice", "alice-habit")
	if err != nil {
		t.Fatalf("CompleteQuest: %v", err)
	}
	if out.XPGained != 40 || out.Quest == nil || !out.Quest.Completed {
		t.Errorf("outcome = %+v", out)
	}

	out, err = e.proc.CompleteQuest(ctx, "alice", "alice-habit")
	if err != nil {
		t.Fatalf("re-completion should be a no-op, got %v", err)
	}
	if out.XPGained != 0 || out.TotalXP != 40 {
		t.Errorf("no-op outcome = %+v", out)
	}
	history, _ := e.db.XPHistory(ctx, "alice", 10)
	if len(history) != 1 {
		t.Errorf("quest XP awarded %d times", len(history))
	}

	e.clock.Advance(2 * time.Hour)
	if _, err := e.proc.CompleteQuest(ctx, "alice", "alice-short"); !errors.Is(err, domain.ErrQuestExpired) {
		t.Errorf("expected ErrQuestExpired, got %v", err)
	}
	if _, err := e.proc.CompleteQuest(ctx, "bob", "alice-habit"); !errors.Is(err, domain.ErrQuestNotFound) {
		t.Errorf("other user's quest: expected ErrQuestNotFound, got %v", err)
	}
}

func TestProcessor_GlobalQuest(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	expires := start.Add(48 * time.Hour)
	g, err := e.quests.PublishGlobal(ctx, domain.QuestTemplate{
		Title: "Community sprint", Type: domain.QuestTasks, Target: 2, XPReward: 100,
	}, &expires)
	if err != nil {
		t.Fatalf("PublishGlobal: %v", err)
	}

	for i := 0; i < 2; i++ {
		task := e.task(t, "alice", engagement.NewTask{Difficulty: 1})
		out, err := e.proc.CompleteTask(ctx, "alice", task.ID)
		if err != nil {
			t.Fatalf("CompleteTask: %v", err)
		}
		if i == 1 && (len(out.CompletedQuests) != 1 || out.CompletedQuests[0].ID != g.ID) {
			t.Errorf("global quest should complete on the second task: %+v", out.CompletedQuests)
		}
	}

	bobView, _ := e.quests.GetOrCreate(ctx, domain.CadenceGlobal, "bob")
	if len(bobView) != 1 || bobView[0].Progress != 0 {
		t.Errorf("bob's view = %+v", bobView)
	}
	out, err := e.proc.CompleteGlobalQuest(ctx, "bob", g.ID)
	if err != nil || out.XPGained != 100 {
		t.Errorf("CompleteGlobalQuest = %+v, %v", out, err)
	}

	e.clock.Advance(72 * time.Hour)
	if _, err := e.proc.CompleteGlobalQuest(ctx, "carol", g.ID); !errors.Is(err, domain.ErrQuestExpired) {
		t.Errorf("expected ErrQuestExpired, got %v", err)
	}
}

func TestProcessor_SubmitExam(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	c, err := e.boss.Today(ctx, "alice")
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	out, err := e.proc.SubmitExam(ctx, "alice", c.ID, e.catalog.AnswerKey())
	if err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}
	if out.Exam == nil || out.Exam.Grade != domain.GradeAStar || out.Exam.XPGained != 220 {
		t.Fatalf("exam = %+v", out.Exam)
	}
	if out.XPGained != 220 || out.Record.DisciplineScore != 55 {
		t.Errorf("outcome = %+v", out)
	}

	if _, err := e.proc.SubmitExam(ctx, "alice", c.ID, e.catalog.AnswerKey()); !errors.Is(err, domain.ErrExamAlreadySubmitted) {
		t.Errorf("expected ErrExamAlreadySubmitted, got %v", err)
	}
	stored, err := e.boss.Result(ctx, "alice", c.ID)
	if err != nil || stored.ID != out.Exam.ID {
		t.Errorf("Result = %+v, %v", stored, err)
	}
}

func TestProcessor_SubmitExamRejectsPreviousDay(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	yesterday, err := e.boss.Today(ctx, "alice")
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	e.clock.Advance(30 * time.Hour)
	today, err := e.boss.Today(ctx, "alice")
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if today.ID == yesterday.ID {
		t.Fatal("a new day should issue a new challenge")
	}

	if _, err := e.proc.SubmitExam(ctx, "alice", yesterday.ID, e.catalog.AnswerKey()); !errors.Is(err, domain.ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
	out, err := e.proc.SubmitExam(ctx, "alice", today.ID, e.catalog.AnswerKey())
	if err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}
	if out.Record.TotalXP != out.XPGained {
		t.Errorf("TotalXP = %d, want only today's award %d", out.Record.TotalXP, out.XPGained)
	}
}

func TestProcessor_FailedExamAddsDailyQuests(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	c, _ := e.boss.Today(ctx, "alice")
	out, err := e.proc.SubmitExam(ctx, "alice", c.ID, map[string]string{"q1": "B"})
	if err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}
	if out.Exam.Grade != domain.GradeF || out.Exam.XPPenalty != 300 || out.Exam.ExtraDailyQuests != 3 {
		t.Fatalf("exam = %+v", out.Exam)
	}
	if out.XPGained != 0 || out.Record.DisciplineScore != 50 {
		t.Errorf("outcome = %+v", out)
	}

	history, _ := e.db.XPHistory(ctx, "alice", 10)
	if len(history) != 1 || history[0].Amount != 0 || history[0].Forfeited != 300 {
		t.Errorf("ledger = %+v", history)
	}

	daily, err := e.quests.GetOrCreate(ctx, domain.CadenceDaily, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(daily) != engagement.DailyQuestCount+3 {
		t.Errorf("expected %d daily quests, got %d", engagement.DailyQuestCount+3, len(daily))
	}

	e.clock.Advance(24 * time.Hour)
	daily, _ = e.quests.GetOrCreate(ctx, domain.CadenceDaily, "alice")
	if len(daily) != engagement.DailyQuestCount {
		t.Errorf("penalty should apply once, got %d quests", len(daily))
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Concurrency Tests
// ═══════════════════════════════════════════════════════════════════════════

// conflictingStore bumps the record version behind the processor's back
// before the next n commits, forcing compare-and-swap failures.
type conflictingStore struct {
	*sqlite.DB
	mu        sync.Mutex
	conflicts int
	commits   int
}

func (s *conflictingStore) CommitProgression(ctx context.Context, c domain.ProgressionCommit) error {
	s.mu.Lock()
	s.commits++
	bump := s.conflicts > 0
	if bump {
		s.conflicts--
	}
	s.mu.Unlock()

	if bump {
		rec, err := s.DB.GetProgression(ctx, c.Record.UserID)
		if err != nil {
			return err
		}
		if err := s.DB.CommitProgression(ctx, domain.ProgressionCommit{Record: rec}); err != nil {
			return err
		}
	}
	return s.DB.CommitProgression(ctx, c)
}

func TestProcessor_RetriesOnConflict(t *testing.T) {
	db := testDB(t)
	store := &conflictingStore{DB: db, conflicts: 2}
	e := newEnvWithStore(t, db, store, nil)
	ctx := context.Background()

	task := e.task(t, "alice", engagement.NewTask{Difficulty: 3, EstimatedMinutes: 30})
	out, err := e.proc.CompleteTask(ctx, "alice", task.ID)
	if err != nil {
		t.Fatalf("CompleteTask should succeed after retries: %v", err)
	}
	if store.commits != 3 {
		t.Errorf("expected 3 commit attempts, got %d", store.commits)
	}
	if out.TotalXP != 120 {
		t.Errorf("TotalXP = %d, want 120", out.TotalXP)
	}
	history, _ := db.XPHistory(ctx, "alice", 10)
	if len(history) != 1 {
		t.Errorf("XP must be awarded once, got %d ledger entries", len(history))
	}
}

func TestProcessor_RetriesExhausted(t *testing.T) {
	db := testDB(t)
	store := &conflictingStore{DB: db, conflicts: 100}
	e := newEnvWithStore(t, db, store, nil)
	ctx := context.Background()

	task := e.task(t, "alice", engagement.NewTask{Difficulty: 3, EstimatedMinutes: 30})
	_, err := e.proc.CompleteTask(ctx, "alice", task.ID)
	if !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	if store.commits != 3 {
		t.Errorf("expected 3 attempts, got %d", store.commits)
	}

	got, _ := db.GetTask(ctx, "alice", task.ID)
	if got.Completed {
		t.Error("task must not be completed when the unit was not recorded")
	}
	rec, _ := db.GetProgression(ctx, "alice")
	if rec.TotalXP != 0 {
		t.Errorf("TotalXP = %d, want 0", rec.TotalXP)
	}
}

func TestProcessor_ConcurrentTasks(t *testing.T) {
	e := newEnv(t, nil, engagement.WithRetryPolicy(engagement.RetryPolicy{
		MaxAttempts: 50, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond,
	}))
	ctx := context.Background()

	const n = 8
	tasks := make([]domain.Task, n)
	for i := range tasks {
		tasks[i] = e.task(t, "alice", engagement.NewTask{Difficulty: 1})
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, task := range tasks {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := e.proc.CompleteTask(ctx, "alice", id)
			errs <- err
		}(task.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CompleteTask: %v", err)
		}
	}

	rec, _ := e.db.GetProgression(ctx, "alice")
	if rec.TasksCompleted != n || rec.TotalXP != n*20 {
		t.Errorf("record after concurrent tasks = %+v", rec)
	}
}

func TestRetryPolicy(t *testing.T) {
	p := engagement.DefaultRetryPolicy()
	if p.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", p.MaxAttempts)
	}
	wants := map[int]time.Duration{1: 10 * time.Millisecond, 2: 20 * time.Millisecond, 5: 160 * time.Millisecond, 6: 200 * time.Millisecond, 30: 200 * time.Millisecond}
	for attempt, want := range wants {
		if got := p.Backoff(attempt); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, want)
		}
	}

	calls := 0
	boom := errors.New("boom")
	err := p.Do(context.Background(), func() error { calls++; return boom })
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("non-conflict errors must not retry: %v after %d calls", err, calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.Do(ctx, func() error { return domain.ErrConcurrentUpdate })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Quest Service Tests
// ═══════════════════════════════════════════════════════════════════════════

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	prompt string
	text   string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, req domain.GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompt = req.Prompt
	return f.text, f.err
}

func TestQuestService_DailyWindow(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	first, err := e.quests.GetOrCreate(ctx, domain.CadenceDaily, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(first) != engagement.DailyQuestCount {
		t.Fatalf("expected %d quests, got %d", engagement.DailyQuestCount, len(first))
	}
	midnight := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	for _, q := range first {
		if q.Source != domain.SourceTemplate || q.Batch != first[0].Batch || q.Progress != 0 {
			t.Errorf("unexpected quest %+v", q)
		}
		if q.ExpiresAt == nil || !q.ExpiresAt.Equal(midnight) {
			t.Errorf("daily quest should expire at midnight, got %v", q.ExpiresAt)
		}
	}

	again, _ := e.quests.GetOrCreate(ctx, domain.CadenceDaily, "alice")
	if again[0].ID != first[0].ID {
		t.Error("same window should return the stored set")
	}

	e.clock.Advance(15 * time.Hour) // 00:00 next day
	next, _ := e.quests.GetOrCreate(ctx, domain.CadenceDaily, "alice")
	if next[0].Batch == first[0].Batch {
		t.Error("a new day should generate a new set")
	}
}

func TestQuestService_Cadences(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	all, err := e.quests.All(ctx, "alice")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	want := map[domain.Cadence]int{
		domain.CadenceDaily:    5,
		domain.CadenceWeekly:   engagement.WeeklyQuestCount,
		domain.CadenceMonthly:  engagement.MonthlyQuestCount,
		domain.CadenceMicro:    8,
		domain.CadenceBeginner: 5,
		domain.CadenceGlobal:   0,
	}
	for cadence, n := range want {
		if len(all[cadence]) != n {
			t.Errorf("%s: expected %d quests, got %d", cadence, n, len(all[cadence]))
		}
	}
	if all[domain.CadenceMicro][0].ExpiresAt != nil {
		t.Error("micro quests should not expire")
	}
	weekly := all[domain.CadenceWeekly]
	if weekly[0].ExpiresAt == nil || !weekly[0].ExpiresAt.Equal(start.Add(7*24*time.Hour)) {
		t.Errorf("weekly expiry = %v", weekly[0].ExpiresAt)
	}

	if _, err := e.quests.GetOrCreate(ctx, "yearly", "alice"); !errors.Is(err, domain.ErrUnknownCadence) {
		t.Errorf("expected ErrUnknownCadence, got %v", err)
	}
}

func TestQuestService_BeginnerHiddenFromLevel5(t *testing.T) {
	e := newEnv(t, nil)
	e.seedRecord(t, "alice", func(r *domain.ProgressionRecord) {
		r.TotalXP = 1600
		r.Level = engagement.ComputeLevel(r.TotalXP)
	})

	quests, err := e.quests.GetOrCreate(context.Background(), domain.CadenceBeginner, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(quests) != 0 {
		t.Errorf("level 5 user should see no beginner quests, got %d", len(quests))
	}
}

func TestQuestService_MicroRegeneratesWhenDone(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	micro, _ := e.quests.GetOrCreate(ctx, domain.CadenceMicro, "alice")
	for _, q := range micro[:len(micro)-1] {
		if _, err := e.proc.CompleteQuest(ctx, "alice", q.ID); err != nil {
			t.Fatalf("CompleteQuest: %v", err)
		}
	}
	same, _ := e.quests.GetOrCreate(ctx, domain.CadenceMicro, "alice")
	if same[0].Batch != micro[0].Batch {
		t.Fatal("set with open quests should be kept")
	}

	if _, err := e.proc.CompleteQuest(ctx, "alice", micro[len(micro)-1].ID); err != nil {
		t.Fatalf("CompleteQuest: %v", err)
	}
	fresh, _ := e.quests.GetOrCreate(ctx, domain.CadenceMicro, "alice")
	if fresh[0].Batch == micro[0].Batch {
		t.Error("completed micro set should regenerate")
	}
}

func TestQuestService_AIQuests(t *testing.T) {
	gen := &fakeGenerator{text: `Sure! [
		{"title":"Read 20 pages","description":"Any book","xpReward":40,"target":20,"type":"study","difficulty":"easy","category":"learning"},
		{"title":"","xpReward":40,"target":1,"type":"tasks"},
		{"title":"Deep work","xpReward":45,"target":50,"type":"focus"},
		{"title":"Ship it","xpReward":50,"target":3,"type":"tasks"},
		{"title":"Stretch","xpReward":20,"target":1,"type":"habit"},
		{"title":"Flashcards","xpReward":30,"target":1,"type":"STUDY"},
		{"title":"Extra","xpReward":30,"target":1,"type":"habit"}
	]`}
	e := newEnv(t, gen)
	ctx := context.Background()

	quests, err := e.quests.GetOrCreate(ctx, domain.CadenceDaily, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(quests) != engagement.DailyQuestCount {
		t.Fatalf("expected %d quests, got %d", engagement.DailyQuestCount, len(quests))
	}
	if quests[0].Source != domain.SourceAI || quests[0].Title != "Read 20 pages" {
		t.Errorf("first quest = %+v", quests[0])
	}
	if quests[1].Title != "Deep work" || quests[1].Unit != domain.UnitMinutes {
		t.Errorf("untitled entry should be skipped and focus should count minutes: %+v", quests[1])
	}
	if quests[4].Type != domain.QuestStudy {
		t.Errorf("type should be normalized, got %q", quests[4].Type)
	}

	// Beginner quests never ask the text service.
	before := gen.calls
	if _, err := e.quests.GetOrCreate(ctx, domain.CadenceBeginner, "alice"); err != nil {
		t.Fatalf("GetOrCreate beginner: %v", err)
	}
	if gen.calls != before {
		t.Error("beginner generation should not call the text service")
	}
}

func TestQuestService_WeeklyPromptMatchesCatalog(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("offline")}
	e := newEnv(t, gen)

	quests, err := e.quests.GetOrCreate(context.Background(), domain.CadenceWeekly, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(quests) != engagement.WeeklyQuestCount {
		t.Errorf("fallback returned %d quests, want %d", len(quests), engagement.WeeklyQuestCount)
	}
	want := fmt.Sprintf("Generate %d weekly quests", engagement.WeeklyQuestCount)
	if !strings.Contains(gen.prompt, want) {
		t.Errorf("prompt %q should contain %q", gen.prompt, want)
	}
}

// blockingGenerator waits until its context is done.
type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ domain.GenerateRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestQuestService_AITimeoutFallsBack(t *testing.T) {
	e := newEnv(t, blockingGenerator{}, engagement.WithAITimeout(50*time.Millisecond))

	begin := time.Now()
	quests, err := e.quests.GetOrCreate(context.Background(), domain.CadenceDaily, "alice")
	elapsed := time.Since(begin)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("generation took %v, should be bounded by the ai timeout", elapsed)
	}
	if len(quests) != engagement.DailyQuestCount {
		t.Fatalf("expected %d quests, got %d", engagement.DailyQuestCount, len(quests))
	}
	for _, q := range quests {
		if q.Source != domain.SourceTemplate {
			t.Errorf("quest %q source = %s, want template", q.Title, q.Source)
		}
	}
}

func TestQuestService_AIFailureFallsBack(t *testing.T) {
	for name, gen := range map[string]*fakeGenerator{
		"error":       {err: errors.New("connection refused")},
		"unparsable":  {text: "I'd rather not."},
		"all invalid": {text: `[{"title":"x","xpReward":0,"target":1,"type":"tasks"}]`},
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, gen)
			quests, err := e.quests.GetOrCreate(context.Background(), domain.CadenceWeekly, "alice")
			if err != nil {
				t.Fatalf("GetOrCreate: %v", err)
			}
			if len(quests) != 5 || quests[0].Source != domain.SourceTemplate {
				t.Errorf("expected template fallback, got %d quests from %s", len(quests), quests[0].Source)
			}
		})
	}
}

func TestQuestService_ConcurrentGenerationCollapses(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	const n = 8
	batches := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			quests, err := e.quests.GetOrCreate(ctx, domain.CadenceDaily, "alice")
			if err != nil || len(quests) == 0 {
				batches <- "error"
				return
			}
			batches <- quests[0].Batch
		}()
	}
	wg.Wait()
	close(batches)

	seen := map[string]bool{}
	for b := range batches {
		seen[b] = true
	}
	if len(seen) != 1 || seen["error"] {
		t.Errorf("expected one shared set, got batches %v", seen)
	}
}

func TestQuestService_PublishGlobalValidation(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	past := start.Add(-time.Hour)
	if _, err := e.quests.PublishGlobal(ctx, domain.QuestTemplate{Title: "x", Type: domain.QuestTasks, Target: 1, XPReward: 10}, &past); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("past expiry: expected ErrInvalidInput, got %v", err)
	}
	if _, err := e.quests.PublishGlobal(ctx, domain.QuestTemplate{Title: "x", Type: "dance", Target: 1, XPReward: 10}, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("unknown type: expected ErrInvalidInput, got %v", err)
	}
	q, err := e.quests.PublishGlobal(ctx, domain.QuestTemplate{Title: "Forever", Type: domain.QuestHabit, Target: 1, XPReward: 10}, nil)
	if err != nil || q.ExpiresAt != nil || q.Cadence != domain.CadenceGlobal {
		t.Errorf("PublishGlobal = %+v, %v", q, err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Notification & Insight Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestNotifications_DailyCap(t *testing.T) {
	policy := domain.NotificationPolicy{MaxPerDay: 1, QuietStart: "22:00", QuietEnd: "08:00"}
	e := newEnv(t, nil, engagement.WithNotificationPolicy(policy))
	ctx := context.Background()

	task := e.task(t, "alice", engagement.NewTask{Difficulty: 3, EstimatedMinutes: 30})
	if _, err := e.proc.CompleteTask(ctx, "alice", task.ID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	count, _ := e.notes.TodayCount(ctx, "alice")
	if count != 1 {
		t.Errorf("TodayCount = %d, want 1", count)
	}

	pending, _ := e.notes.Pending(ctx, "alice", 0)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}
	if err := e.notes.MarkShown(ctx, "alice", []int64{pending[0].ID}); err != nil {
		t.Fatalf("MarkShown: %v", err)
	}
	pending, _ = e.notes.Pending(ctx, "alice", 0)
	if len(pending) != 0 {
		t.Errorf("expected none pending, got %d", len(pending))
	}
}

func TestNotifications_QuietHours(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	e.clock.Advance(14 * time.Hour) // 23:00 UTC

	task := e.task(t, "alice", engagement.NewTask{Difficulty: 3, EstimatedMinutes: 30})
	out, err := e.proc.CompleteTask(ctx, "alice", task.ID)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if !out.LeveledUp {
		t.Fatal("expected a level up")
	}
	pending, _ := e.notes.Pending(ctx, "alice", 10)
	if len(pending) != 0 {
		t.Errorf("quiet hours should suppress notifications, got %d", len(pending))
	}
}

func TestInsights_Dashboard(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		task := e.task(t, "alice", engagement.NewTask{Difficulty: 1})
		if _, err := e.proc.CompleteTask(ctx, "alice", task.ID); err != nil {
			t.Fatalf("CompleteTask: %v", err)
		}
	}
	s, _ := e.proc.StartFocusSession(ctx, "alice", "")
	if _, err := e.proc.EndFocusSession(ctx, "alice", s.ID, 45, true); err != nil {
		t.Fatalf("EndFocusSession: %v", err)
	}

	d, err := e.insights.Dashboard(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.WindowDays != 30 || d.TotalTasks != 2 || d.TotalFocusTime != 45 {
		t.Errorf("dashboard totals = %+v", d)
	}
	if len(d.Weekly) != 7 || d.Weekly[6].Date != "2026-03-10" || d.Weekly[6].Tasks != 2 || d.Weekly[6].FocusMinutes != 45 {
		t.Errorf("weekly series = %+v", d.Weekly)
	}
	if d.Burnout.RiskLevel != domain.RiskLow || d.NextLevelXP != 100 {
		t.Errorf("dashboard = %+v", d)
	}

	wide, _ := e.insights.Dashboard(ctx, "alice", 10_000)
	if wide.WindowDays != engagement.MaxDashboardDays {
		t.Errorf("window should cap at %d, got %d", engagement.MaxDashboardDays, wide.WindowDays)
	}
}

func TestInsights_StatusAndLeaderboard(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	status, err := e.insights.Status(ctx, "newbie")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Record.Level != 1 || status.Record.DisciplineScore != 50 || status.Progress.NextLevelXP != 100 {
		t.Errorf("new user status = %+v", status)
	}

	for _, user := range []string{"alice", "bob"} {
		task := e.task(t, user, engagement.NewTask{Difficulty: 3, EstimatedMinutes: 30})
		if user == "bob" {
			task2 := e.task(t, user, engagement.NewTask{Difficulty: 1})
			e.proc.CompleteTask(ctx, user, task2.ID)
		}
		e.proc.CompleteTask(ctx, user, task.ID)
	}

	board, err := e.insights.Leaderboard(ctx, 0)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board) != 3 || board[0].UserID != "bob" || board[0].TotalXP != 140 || board[1].UserID != "alice" {
		t.Errorf("leaderboard = %+v", board)
	}

	history, _ := e.insights.XPHistory(ctx, "bob", 0)
	if len(history) != 2 || history[0].Balance != 140 {
		t.Errorf("bob history = %+v", history)
	}
}

func TestInsights_AchievementsAndTasks(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	done := e.task(t, "alice", engagement.NewTask{Difficulty: 1})
	e.task(t, "alice", engagement.NewTask{Difficulty: 2})
	if _, err := e.proc.CompleteTask(ctx, "alice", done.ID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	list, err := e.insights.Achievements(ctx, "alice")
	if err != nil {
		t.Fatalf("Achievements: %v", err)
	}
	if len(list) != 12 {
		t.Fatalf("expected 12 achievements, got %d", len(list))
	}
	if list[0].ID != "first_task" || !list[0].Unlocked || list[0].UnlockedAt == nil {
		t.Errorf("first_task = %+v", list[0])
	}
	for _, a := range list[1:] {
		if a.Unlocked {
			t.Errorf("%s should still be locked", a.ID)
		}
	}

	open := false
	tasks, _ := e.insights.Tasks(ctx, "alice", &open, 0)
	if len(tasks) != 1 || tasks[0].Completed {
		t.Errorf("open tasks = %+v", tasks)
	}
	all, _ := e.insights.Tasks(ctx, "alice", nil, 0)
	if len(all) != 2 {
		t.Errorf("expected 2 tasks, got %d", len(all))
	}
}

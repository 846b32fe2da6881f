package engagement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/questforge/questforge/internal/domain"
	"github.com/questforge/questforge/internal/infra/metrics"
)

// Processor applies activity events to a user's progression.
// Each event is one unit: read a snapshot, compute streak, XP and level,
// discipline, quest progress, achievements and notifications, then commit
// everything with a compare-and-swap on the record version. Conflicts rerun
// the whole unit under the retry policy.
type Processor struct {
	store     Store
	evaluator *Evaluator
	catalog   *Catalog
	cfg       settings
}

// NewProcessor creates an activity processor.
func NewProcessor(store Store, catalog *Catalog, opts ...Option) *Processor {
	return &Processor{
		store:     store,
		evaluator: NewEvaluator(catalog.Achievements()),
		catalog:   catalog,
		cfg:       newSettings(opts),
	}
}

// Evaluator returns the achievement evaluator the processor unlocks with.
func (p *Processor) Evaluator() *Evaluator { return p.evaluator }

// Outcome is what one activity event did to a user's progression.
type Outcome struct {
	XPGained        int64                    `json:"xp_gained"`
	TotalXP         int64                    `json:"total_xp"`
	Level           int                      `json:"level"`
	LeveledUp       bool                     `json:"leveled_up"`
	Streak          StreakUpdate             `json:"streak"`
	NewAchievements []domain.AchievementDef  `json:"new_achievements"`
	CompletedQuests []domain.Quest           `json:"completed_quests"`
	Task            *domain.Task             `json:"task,omitempty"`
	Session         *domain.FocusSession     `json:"session,omitempty"`
	Exam            *domain.ExamResult       `json:"exam,omitempty"`
	Quest           *domain.Quest            `json:"quest,omitempty"`
	Record          domain.ProgressionRecord `json:"record"`
}

// ─── Activity Units ─────────────────────────────────────────────────────────

// NewTask is the input for CreateTask. Difficulty and minutes are clamped.
type NewTask struct {
	Title            string
	Description      string
	SkillTree        domain.SkillTree
	Difficulty       int
	EstimatedMinutes int
}

// CreateTask stores a new open task. Its XPReward is the base reward
// (multiplier 1.0); completion pays out with the streak multiplier then in force.
func (p *Processor) CreateTask(ctx context.Context, userID string, in NewTask) (domain.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Task{}, fmt.Errorf("%w: task title is required", domain.ErrInvalidInput)
	}
	if in.SkillTree != "" && !validSkillTree(in.SkillTree) {
		return domain.Task{}, fmt.Errorf("%w: unknown skill tree %q", domain.ErrInvalidInput, in.SkillTree)
	}
	now := p.cfg.clock()
	if _, err := ensureRecord(ctx, p.store, userID, now); err != nil {
		return domain.Task{}, err
	}

	difficulty := ClampDifficulty(in.Difficulty)
	minutes := ClampMinutes(in.EstimatedMinutes)
	t := domain.Task{
		ID:               uuid.NewString(),
		UserID:           userID,
		Title:            title,
		Description:      in.Description,
		SkillTree:        in.SkillTree,
		Difficulty:       difficulty,
		EstimatedMinutes: minutes,
		XPReward:         ComputeXPReward(difficulty, minutes, 1.0),
		CreatedAt:        now,
	}
	if err := p.store.InsertTask(ctx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// StartFocusSession opens a focus session. An empty mode means "pomodoro".
func (p *Processor) StartFocusSession(ctx context.Context, userID, mode string) (domain.FocusSession, error) {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		mode = "pomodoro"
	}
	now := p.cfg.clock()
	if _, err := ensureRecord(ctx, p.store, userID, now); err != nil {
		return domain.FocusSession{}, err
	}
	s := domain.FocusSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Mode:      mode,
		StartTime: now,
	}
	if err := p.store.InsertFocusSession(ctx, s); err != nil {
		return domain.FocusSession{}, fmt.Errorf("insert focus session: %w", err)
	}
	return s, nil
}

// CompleteTask marks a task done and pays its XP with the current streak multiplier.
func (p *Processor) CompleteTask(ctx context.Context, userID, taskID string) (Outcome, error) {
	return p.run(ctx, userID, "task", func(u *unit) error {
		task, err := p.store.GetTask(ctx, userID, taskID)
		if err != nil {
			return err
		}
		if task.Completed {
			return domain.ErrTaskAlreadyCompleted
		}

		xp := ComputeXPReward(ClampDifficulty(task.Difficulty), ClampMinutes(task.EstimatedMinutes), u.streak.Multiplier)
		u.award(domain.XPTaskCompleted, xp, 0, task.ID)

		u.rec.TasksCompleted++
		today := domain.DayKey(u.now)
		if u.rec.TasksTodayDate == today {
			u.rec.TasksToday++
		} else {
			u.rec.TasksToday = 1
			u.rec.TasksTodayDate = today
		}
		u.addDiscipline(1)

		if task.SkillTree != "" {
			u.commit.SkillXP = map[domain.SkillTree]int64{task.SkillTree: xp}
		}
		u.commit.CompleteTaskID = task.ID

		task.Completed = true
		task.CompletedAt = u.now
		u.out.Task = &task

		u.event = questEvent{tasks: 1, skill: task.SkillTree != "", xp: xp}
		return nil
	})
}

// EndFocusSession closes an open session. Sessions earn no XP; they count
// toward stats and focus quests, and a successful one adds discipline.
func (p *Processor) EndFocusSession(ctx context.Context, userID, sessionID string, minutes int, successful bool) (Outcome, error) {
	return p.run(ctx, userID, "focus", func(u *unit) error {
		s, err := p.store.GetFocusSession(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		if s.Ended {
			return domain.ErrSessionAlreadyEnded
		}

		s.EndTime = u.now
		s.DurationMinutes = ClampMinutes(minutes)
		s.Successful = successful
		s.Ended = true
		u.commit.EndSession = &s
		u.out.Session = &s

		u.rec.TotalFocusSessions++
		if successful {
			u.addDiscipline(2)
			u.event = questEvent{focusCount: 1, focusMinutes: s.DurationMinutes}
		}
		return nil
	})
}

// SubmitExam grades answers for a boss challenge. XP gained is
// max(0, floor(reward*multiplier) - penalty); the ledger records the award
// together with the forfeited penalty. Only today's challenge can be submitted.
func (p *Processor) SubmitExam(ctx context.Context, userID, challengeID string, answers map[string]string) (Outcome, error) {
	return p.run(ctx, userID, "exam", func(u *unit) error {
		c, err := p.store.GetBossChallengeByID(ctx, userID, challengeID)
		if err != nil {
			return err
		}
		if c.Completed {
			return domain.ErrExamAlreadySubmitted
		}
		if c.Day != domain.DayKey(u.now) {
			return domain.ErrChallengeExpired
		}

		correct, total, score := ScoreAnswers(answers, p.catalog.AnswerKey())
		g := GradeExam(score)
		gained := int64(math.Floor(float64(c.XPReward)*g.XPMultiplier)) - g.XPPenalty
		if gained < 0 {
			gained = 0
		}
		u.award(domain.XPBossExam, gained, g.XPPenalty, c.ID)
		if g.Score >= PassingScore {
			u.addDiscipline(5)
		}

		exam := domain.ExamResult{
			ID:          uuid.NewString(),
			UserID:      userID,
			ChallengeID: c.ID,
			Correct:     correct,
			Total:       total,
			GradeResult: g,
			XPGained:    gained,
			SubmittedAt: u.now,
		}
		u.commit.CompleteChallengeID = c.ID
		u.commit.Exam = &exam
		u.out.Exam = &exam

		body := fmt.Sprintf("Grade %s (%.1f%%): +%d XP", g.Grade, g.Score, gained)
		if g.ExtraDailyQuests > 0 {
			body += fmt.Sprintf(", %d extra daily quests tomorrow", g.ExtraDailyQuests)
		}
		u.notify(domain.NotifyBossResult, "Boss exam graded", body)

		u.event = questEvent{challenges: 1, xp: gained}
		return nil
	})
}

// CompleteQuest completes one of the user's quests outright and pays its reward.
// Completing an already completed quest is a no-op; an expired quest fails.
func (p *Processor) CompleteQuest(ctx context.Context, userID, questID string) (Outcome, error) {
	return p.completeQuest(ctx, userID, questID, false)
}

// CompleteGlobalQuest completes a global quest for the user.
func (p *Processor) CompleteGlobalQuest(ctx context.Context, userID, questID string) (Outcome, error) {
	return p.completeQuest(ctx, userID, questID, true)
}

func (p *Processor) completeQuest(ctx context.Context, userID, questID string, global bool) (Outcome, error) {
	load := p.store.GetQuest
	if global {
		load = p.store.GetGlobalQuest
	}
	return p.run(ctx, userID, "quest", func(u *unit) error {
		q, err := load(ctx, userID, questID)
		if err != nil {
			return err
		}
		if q.Completed {
			u.out.Quest = &q
			return errNoop
		}
		if q.IsExpired(u.now) {
			return domain.ErrQuestExpired
		}

		q.Advance(q.Target-q.Progress, u.now)
		u.completeQuest(q)
		u.out.Quest = &q
		u.skipQuest = q.ID
		return nil
	})
}

// ─── Unit of Work ───────────────────────────────────────────────────────────

// errNoop ends a unit without writing anything.
var errNoop = errors.New("no-op")

// questEvent says how far an activity event advances each quest type.
type questEvent struct {
	tasks        int
	skill        bool
	xp           int64
	focusCount   int
	focusMinutes int
	challenges   int
}

// unit is the in-memory state of one attempt at an activity event.
type unit struct {
	now       time.Time
	before    domain.ProgressionRecord
	rec       domain.ProgressionRecord
	streak    StreakUpdate
	commit    domain.ProgressionCommit
	event     questEvent
	skipQuest string
	notes     []domain.Notification
	out       Outcome
}

func newUnit(rec domain.ProgressionRecord, now time.Time) *unit {
	u := &unit{now: now, before: rec, rec: rec}
	u.streak = UpdateStreak(rec.LastActive, now, rec.CurrentStreak)
	u.rec.CurrentStreak = u.streak.Streak
	if u.rec.CurrentStreak > u.rec.LongestStreak {
		u.rec.LongestStreak = u.rec.CurrentStreak
	}
	if now.After(u.rec.LastActive) {
		u.rec.LastActive = now
	}
	return u
}

// award adds XP and appends the matching ledger entry.
func (u *unit) award(source domain.XPSource, amount, forfeited int64, refID string) {
	u.rec.TotalXP += amount
	u.commit.Ledger = append(u.commit.Ledger, domain.XPEntry{
		UserID:    u.rec.UserID,
		Timestamp: u.now,
		Source:    source,
		Amount:    amount,
		Forfeited: forfeited,
		RefID:     refID,
		Balance:   u.rec.TotalXP,
	})
}

func (u *unit) addDiscipline(delta int) {
	d := u.rec.DisciplineScore + delta
	if d > domain.MaxDiscipline {
		d = domain.MaxDiscipline
	}
	if d < domain.MinDiscipline {
		d = domain.MinDiscipline
	}
	u.rec.DisciplineScore = d
}

func (u *unit) notify(typ domain.NotificationType, title, body string) {
	u.notes = append(u.notes, domain.Notification{
		UserID:    u.rec.UserID,
		Type:      typ,
		Title:     title,
		Body:      body,
		CreatedAt: u.now,
	})
}

// completeQuest records a quest that has just transitioned to completed.
func (u *unit) completeQuest(q domain.Quest) {
	if q.Cadence == domain.CadenceGlobal {
		u.commit.GlobalUpdates = append(u.commit.GlobalUpdates, q)
	} else {
		u.commit.QuestUpdates = append(u.commit.QuestUpdates, q)
	}
	u.award(domain.XPQuestCompleted, q.XPReward, 0, q.ID)
	u.out.CompletedQuests = append(u.out.CompletedQuests, q)
	u.notify(domain.NotifyQuestComplete, "Quest complete: "+q.Title, fmt.Sprintf("+%d XP", q.XPReward))
}

// run executes one activity event under the compare-and-swap retry policy.
func (p *Processor) run(ctx context.Context, userID, kind string, apply func(*unit) error) (Outcome, error) {
	var out Outcome
	err := p.cfg.retry.Do(ctx, func() error {
		now := p.cfg.clock()
		rec, err := ensureRecord(ctx, p.store, userID, now)
		if err != nil {
			return err
		}

		u := newUnit(rec, now)
		if err := apply(u); err != nil {
			if errors.Is(err, errNoop) {
				out = u.out
				out.TotalXP, out.Level, out.Record = rec.TotalXP, rec.Level, rec
				out.Streak = StreakUpdate{Streak: rec.CurrentStreak, Multiplier: 1.0, Band: BandActive}
			}
			return err
		}
		if err := p.advanceQuests(ctx, u); err != nil {
			return err
		}
		if err := p.finish(ctx, u); err != nil {
			return err
		}

		u.commit.Record = u.rec
		u.commit.Record.Version = rec.Version
		if err := p.store.CommitProgression(ctx, u.commit); err != nil {
			return err
		}
		u.rec.Version = rec.Version + 1
		u.out.Record = u.rec
		out = u.out
		record(kind, u)
		return nil
	})
	if errors.Is(err, errNoop) {
		return out, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// advanceQuests moves every open quest the event touches, including global ones.
func (p *Processor) advanceQuests(ctx context.Context, u *unit) error {
	open, err := p.store.ListOpenQuests(ctx, u.rec.UserID, u.now)
	if err != nil {
		return fmt.Errorf("load open quests: %w", err)
	}
	globals, err := p.store.ListGlobalQuests(ctx, u.rec.UserID, u.now)
	if err != nil {
		return fmt.Errorf("load global quests: %w", err)
	}

	for _, q := range append(open, globals...) {
		if q.Completed || q.ID == u.skipQuest {
			continue
		}
		if q.Cadence == domain.CadenceBeginner && u.before.Level >= BeginnerMaxLevel {
			continue
		}

		prev := q.Progress
		var done bool
		switch q.Type {
		case domain.QuestStreak:
			done = q.Raise(u.rec.CurrentStreak, u.now)
		default:
			done = q.Advance(u.event.delta(q), u.now)
		}
		switch {
		case done:
			u.completeQuest(q)
		case q.Progress != prev:
			if q.Cadence == domain.CadenceGlobal {
				u.commit.GlobalUpdates = append(u.commit.GlobalUpdates, q)
			} else {
				u.commit.QuestUpdates = append(u.commit.QuestUpdates, q)
			}
		}
	}
	return nil
}

// delta returns how far the event advances q.
func (e questEvent) delta(q domain.Quest) int {
	switch q.Type {
	case domain.QuestTasks:
		return e.tasks
	case domain.QuestSkill:
		if e.skill {
			return 1
		}
	case domain.QuestXP:
		if e.xp > math.MaxInt32 {
			return math.MaxInt32
		}
		return int(e.xp)
	case domain.QuestFocus:
		if q.Unit == domain.UnitMinutes {
			return e.focusMinutes
		}
		return e.focusCount
	case domain.QuestChallenge:
		return e.challenges
	}
	return 0
}

// finish settles level, achievements and notifications once all XP is in.
func (p *Processor) finish(ctx context.Context, u *unit) error {
	u.rec.Level = ComputeLevel(u.rec.TotalXP)
	leveledUp := u.rec.Level > u.before.Level
	if leveledUp {
		body := "Maximum level reached"
		if next := XPForNextLevel(u.rec.Level); next > 0 {
			body = fmt.Sprintf("%d XP to level %d", next-u.rec.TotalXP, u.rec.Level+1)
		}
		u.notify(domain.NotifyLevelUp, fmt.Sprintf("Level %d reached", u.rec.Level), body)
	}

	have, err := p.store.UnlockedAchievements(ctx, u.rec.UserID)
	if err != nil {
		return fmt.Errorf("load achievements: %w", err)
	}
	unlocked := make(map[string]bool, len(have))
	for _, a := range have {
		unlocked[a.ID] = true
	}
	for _, def := range p.evaluator.NewlyUnlocked(u.rec.Stats(u.now), unlocked) {
		u.commit.Unlocks = append(u.commit.Unlocks, domain.UnlockedAchievement{ID: def.ID, UnlockedAt: u.now})
		u.out.NewAchievements = append(u.out.NewAchievements, def)
		u.notify(domain.NotifyAchievement, def.Icon+" "+def.Title, def.Description)
	}

	notes, err := admitNotifications(ctx, p.store, p.cfg.notify, u.rec.UserID, u.now, u.notes)
	if err != nil {
		return err
	}
	u.commit.Notifications = notes

	u.out.XPGained = u.rec.TotalXP - u.before.TotalXP
	u.out.TotalXP = u.rec.TotalXP
	u.out.Level = u.rec.Level
	u.out.LeveledUp = leveledUp
	u.out.Streak = u.streak
	return nil
}

// record publishes metrics for a committed unit.
func record(kind string, u *unit) {
	metrics.ActivityEvents.WithLabelValues(kind).Inc()
	metrics.StreakBands.WithLabelValues(string(u.streak.Band)).Inc()
	for _, e := range u.commit.Ledger {
		metrics.XPAwarded.WithLabelValues(string(e.Source)).Add(float64(e.Amount))
		if e.Forfeited > 0 {
			metrics.XPForfeited.Add(float64(e.Forfeited))
		}
	}
	for _, q := range u.out.CompletedQuests {
		metrics.QuestsCompleted.WithLabelValues(string(q.Cadence)).Inc()
	}
	for _, a := range u.commit.Unlocks {
		metrics.AchievementsUnlocked.WithLabelValues(a.ID).Inc()
	}
	if u.commit.Exam != nil {
		metrics.ExamGrades.WithLabelValues(string(u.commit.Exam.Grade)).Inc()
	}
	if u.out.LeveledUp {
		metrics.LevelUps.Inc()
		log.Printf("[engagement] %s reached level %d", u.rec.UserID, u.rec.Level)
	}
}

func validSkillTree(t domain.SkillTree) bool {
	for _, s := range domain.SkillTrees {
		if s == t {
			return true
		}
	}
	return false
}

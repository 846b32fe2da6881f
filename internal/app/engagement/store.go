package engagement

import (
	"context"
	"math/rand"
	"time"

	"github.com/questforge/questforge/internal/domain"
)

// Store is the persistence the engagement services depend on.
// *sqlite.DB implements it.
type Store interface {
	// Progression record
	GetProgression(ctx context.Context, userID string) (domain.ProgressionRecord, error)
	EnsureProgression(ctx context.Context, rec domain.ProgressionRecord) (domain.ProgressionRecord, error)
	CommitProgression(ctx context.Context, c domain.ProgressionCommit) error
	UnlockedAchievements(ctx context.Context, userID string) ([]domain.UnlockedAchievement, error)
	SkillTreeXP(ctx context.Context, userID string) (map[domain.SkillTree]int64, error)
	XPHistory(ctx context.Context, userID string, limit int) ([]domain.XPEntry, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)

	// Activity units
	InsertTask(ctx context.Context, t domain.Task) error
	GetTask(ctx context.Context, userID, id string) (domain.Task, error)
	ListTasks(ctx context.Context, userID string, completed *bool, limit int) ([]domain.Task, error)
	CompletedTasksSince(ctx context.Context, userID string, since time.Time) ([]domain.Task, error)
	InsertFocusSession(ctx context.Context, s domain.FocusSession) error
	GetFocusSession(ctx context.Context, userID, id string) (domain.FocusSession, error)
	ListFocusSessions(ctx context.Context, userID string, since time.Time, limit int) ([]domain.FocusSession, error)

	// Quests
	InsertQuestSet(ctx context.Context, quests []domain.Quest, consumeExamID string) error
	LatestQuestSet(ctx context.Context, userID string, cadence domain.Cadence) ([]domain.Quest, error)
	GetQuest(ctx context.Context, userID, id string) (domain.Quest, error)
	ListOpenQuests(ctx context.Context, userID string, now time.Time) ([]domain.Quest, error)
	InsertGlobalQuest(ctx context.Context, q domain.Quest) error
	ListGlobalQuests(ctx context.Context, userID string, now time.Time) ([]domain.Quest, error)
	GetGlobalQuest(ctx context.Context, userID, id string) (domain.Quest, error)

	// Boss challenges
	CreateBossChallenge(ctx context.Context, c domain.BossChallenge) (domain.BossChallenge, error)
	GetBossChallenge(ctx context.Context, userID, day string) (domain.BossChallenge, error)
	GetBossChallengeByID(ctx context.Context, userID, id string) (domain.BossChallenge, error)
	GetExamByChallenge(ctx context.Context, userID, challengeID string) (domain.ExamResult, error)
	PendingExtraQuests(ctx context.Context, userID string) (*domain.ExamResult, error)

	// Notifications
	CountNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error)
	PendingNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	MarkNotificationsShown(ctx context.Context, userID string, ids []int64) error
}

// Rand is the injected random source. *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// globalRand uses the math/rand top-level source, which is safe for concurrent use.
type globalRand struct{}

func (globalRand) Intn(n int) int                     { return rand.Intn(n) }
func (globalRand) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// ─── Options ────────────────────────────────────────────────────────────────

type settings struct {
	now       func() time.Time
	rng       Rand
	retry     RetryPolicy
	notify    domain.NotificationPolicy
	aiTimeout time.Duration
}

// Option configures an engagement service.
type Option func(*settings)

// WithClock sets the time source. Calendar boundaries use its UTC value.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithRand sets the random source used for shuffles and picks.
func WithRand(r Rand) Option {
	return func(s *settings) { s.rng = r }
}

// WithRetryPolicy sets the compare-and-swap retry bounds.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *settings) { s.retry = p }
}

// WithNotificationPolicy sets the per-user notification limits.
func WithNotificationPolicy(p domain.NotificationPolicy) Option {
	return func(s *settings) { s.notify = p }
}

// WithAITimeout bounds each quest generation call to the text service.
func WithAITimeout(d time.Duration) Option {
	return func(s *settings) { s.aiTimeout = d }
}

func newSettings(opts []Option) settings {
	s := settings{
		now:       func() time.Time { return time.Now().UTC() },
		rng:       globalRand{},
		retry:     DefaultRetryPolicy(),
		notify:    domain.DefaultNotificationPolicy(),
		aiTimeout: 20 * time.Second,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s settings) clock() time.Time {
	return s.now().UTC()
}

package engagement

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/questforge/questforge/internal/domain"
)

// GenerateBossChallenge builds a challenge for a user at level:
// difficulty = clamp(floor(level/5)+1, 1, 5), reward = difficulty*100 + level*10,
// text drawn uniformly from pool. IDs and timestamps are left to the caller.
func GenerateBossChallenge(level int, pool []string, rng Rand) domain.BossChallenge {
	if level < domain.MinLevel {
		level = domain.MinLevel
	}
	difficulty := ClampDifficulty(level/5 + 1)
	c := domain.BossChallenge{
		Difficulty: difficulty,
		XPReward:   int64(difficulty*100 + level*10),
	}
	if len(pool) > 0 {
		c.ChallengeText = pool[rng.Intn(len(pool))]
	}
	return c
}

// BossService hands out the one boss challenge per user per UTC day.
// Exam submission is an activity event and goes through the Processor.
type BossService struct {
	store   Store
	catalog *Catalog
	cfg     settings
}

// NewBossService creates a boss challenge service.
func NewBossService(store Store, catalog *Catalog, opts ...Option) *BossService {
	return &BossService{store: store, catalog: catalog, cfg: newSettings(opts)}
}

// Today returns the user's challenge for the current UTC day, creating it on first request.
func (b *BossService) Today(ctx context.Context, userID string) (domain.BossChallenge, error) {
	now := b.cfg.clock()
	dayKey := domain.DayKey(now)

	existing, err := b.store.GetBossChallenge(ctx, userID, dayKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrChallengeNotFound) {
		return existing, fmt.Errorf("load boss challenge: %w", err)
	}

	rec, err := ensureRecord(ctx, b.store, userID, now)
	if err != nil {
		return domain.BossChallenge{}, err
	}
	c := GenerateBossChallenge(rec.Level, b.catalog.BossPool(), b.cfg.rng)
	c.ID = uuid.NewString()
	c.UserID = userID
	c.Day = dayKey
	c.CreatedAt = now

	stored, err := b.store.CreateBossChallenge(ctx, c)
	if err != nil {
		return stored, fmt.Errorf("create boss challenge: %w", err)
	}
	if stored.ID == c.ID {
		log.Printf("[boss] %s: difficulty %d, reward %d XP", userID, stored.Difficulty, stored.XPReward)
	}
	return stored, nil
}

// ExamPaper returns the questions for a challenge's exam.
// It fails if the challenge does not belong to the user.
func (b *BossService) ExamPaper(ctx context.Context, userID, challengeID string) ([]domain.ExamQuestion, error) {
	if _, err := b.store.GetBossChallengeByID(ctx, userID, challengeID); err != nil {
		return nil, err
	}
	return b.catalog.ExamPaper(), nil
}

// Result returns the graded exam for a challenge.
func (b *BossService) Result(ctx context.Context, userID, challengeID string) (domain.ExamResult, error) {
	return b.store.GetExamByChallenge(ctx, userID, challengeID)
}

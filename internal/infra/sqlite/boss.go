package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/questforge/questforge/internal/domain"
)

// ─── Boss Challenges ────────────────────────────────────────────────────────

const challengeColumns = `id, user_id, day, challenge_text, difficulty, xp_reward, completed, completed_at, created_at`

// CreateBossChallenge stores c unless the user already has a challenge for
// c.Day, and returns whichever challenge is stored for that day.
func (d *DB) CreateBossChallenge(ctx context.Context, c domain.BossChallenge) (domain.BossChallenge, error) {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO boss_challenges (`+challengeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Day, c.ChallengeText, c.Difficulty, c.XPReward, c.Completed,
		nullableUnix(c.CompletedAt), c.CreatedAt.Unix(),
	)
	if err != nil {
		return c, fmt.Errorf("insert boss challenge: %w", err)
	}
	return d.GetBossChallenge(ctx, c.UserID, c.Day)
}

// GetBossChallenge returns the user's challenge for a UTC day key.
func (d *DB) GetBossChallenge(ctx context.Context, userID, day string) (domain.BossChallenge, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM boss_challenges WHERE user_id = ? AND day = ?`, userID, day)
	c, err := scanChallenge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c, domain.ErrChallengeNotFound
	}
	return c, err
}

// GetBossChallengeByID returns a user's challenge by ID.
func (d *DB) GetBossChallengeByID(ctx context.Context, userID, id string) (domain.BossChallenge, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM boss_challenges WHERE id = ? AND user_id = ?`, id, userID)
	c, err := scanChallenge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c, domain.ErrChallengeNotFound
	}
	return c, err
}

func scanChallenge(s scanner) (domain.BossChallenge, error) {
	var c domain.BossChallenge
	var completedAt sql.NullInt64
	var createdAt int64
	err := s.Scan(&c.ID, &c.UserID, &c.Day, &c.ChallengeText, &c.Difficulty, &c.XPReward,
		&c.Completed, &completedAt, &createdAt)
	if err != nil {
		return c, err
	}
	c.CompletedAt = fromNullUnix(completedAt)
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	return c, nil
}

// ─── Exam Results ───────────────────────────────────────────────────────────

const examColumns = `id, user_id, challenge_id, score, grade, xp_multiplier, xp_penalty,
	extra_daily_quests, correct, total, xp_gained, extra_applied, submitted_at`

// GetExamByChallenge returns the graded exam for a challenge.
func (d *DB) GetExamByChallenge(ctx context.Context, userID, challengeID string) (domain.ExamResult, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+examColumns+` FROM exam_results WHERE challenge_id = ? AND user_id = ?`,
		challengeID, userID)
	e, err := scanExam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, domain.ErrChallengeNotFound
	}
	return e, err
}

// PendingExtraQuests returns the latest failing exam whose extra daily quests
// have not been granted yet, or nil if there is none.
func (d *DB) PendingExtraQuests(ctx context.Context, userID string) (*domain.ExamResult, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+examColumns+` FROM exam_results
		 WHERE user_id = ? AND extra_daily_quests > 0 AND extra_applied = 0
		 ORDER BY submitted_at DESC, rowid DESC LIMIT 1`, userID)
	e, err := scanExam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExamResults returns a user's graded exams, newest first.
func (d *DB) ListExamResults(ctx context.Context, userID string, limit int) ([]domain.ExamResult, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+examColumns+` FROM exam_results WHERE user_id = ?
		 ORDER BY submitted_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExamResult
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertExamTx(ctx context.Context, tx *sql.Tx, e domain.ExamResult) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO exam_results (`+examColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.ChallengeID, e.Score, string(e.Grade), e.XPMultiplier, e.XPPenalty,
		e.ExtraDailyQuests, e.Correct, e.Total, e.XPGained, e.ExtraApplied, e.SubmittedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert exam result: %w", err)
	}
	return nil
}

func scanExam(s scanner) (domain.ExamResult, error) {
	var e domain.ExamResult
	var grade string
	var submitted int64
	err := s.Scan(&e.ID, &e.UserID, &e.ChallengeID, &e.Score, &grade, &e.XPMultiplier, &e.XPPenalty,
		&e.ExtraDailyQuests, &e.Correct, &e.Total, &e.XPGained, &e.ExtraApplied, &submitted)
	if err != nil {
		return e, err
	}
	e.Grade = domain.Grade(grade)
	e.SubmittedAt = time.Unix(submitted, 0).UTC()
	return e, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/questforge/questforge/internal/domain"
)

// ─── Progression Record ─────────────────────────────────────────────────────

const progressionColumns = `user_id, total_xp, level, current_streak, longest_streak, discipline_score,
	last_active, tasks_completed, tasks_today, tasks_today_date, total_focus_sessions, created_at, version`

// GetProgression returns the record for userID, or domain.ErrUserNotFound.
func (d *DB) GetProgression(ctx context.Context, userID string) (domain.ProgressionRecord, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+progressionColumns+` FROM progression WHERE user_id = ?`, userID)
	rec, err := scanProgression(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, domain.ErrUserNotFound
	}
	return rec, err
}

// EnsureProgression inserts rec if the user has no record yet and returns the stored one.
func (d *DB) EnsureProgression(ctx context.Context, rec domain.ProgressionRecord) (domain.ProgressionRecord, error) {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO progression (`+progressionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		rec.UserID, rec.TotalXP, rec.Level, rec.CurrentStreak, rec.LongestStreak, rec.DisciplineScore,
		rec.LastActive.Unix(), rec.TasksCompleted, rec.TasksToday, rec.TasksTodayDate,
		rec.TotalFocusSessions, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return rec, fmt.Errorf("insert progression: %w", err)
	}
	return d.GetProgression(ctx, rec.UserID)
}

// CommitProgression applies one activity unit atomically.
// The record row is updated only if its version still equals c.Record.Version;
// otherwise nothing is written and domain.ErrConcurrentUpdate is returned.
func (d *DB) CommitProgression(ctx context.Context, c domain.ProgressionCommit) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		r := c.Record
		res, err := tx.ExecContext(ctx,
			`UPDATE progression SET
				total_xp = ?, level = ?, current_streak = ?, longest_streak = ?, discipline_score = ?,
				last_active = ?, tasks_completed = ?, tasks_today = ?, tasks_today_date = ?,
				total_focus_sessions = ?, version = version + 1
			 WHERE user_id = ? AND version = ?`,
			r.TotalXP, r.Level, r.CurrentStreak, r.LongestStreak, r.DisciplineScore,
			r.LastActive.Unix(), r.TasksCompleted, r.TasksToday, r.TasksTodayDate,
			r.TotalFocusSessions, r.UserID, r.Version,
		)
		if err != nil {
			return fmt.Errorf("update progression: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrConcurrentUpdate
		}

		if c.CompleteTaskID != "" {
			if err := completeTaskTx(ctx, tx, r.UserID, c.CompleteTaskID, r.LastActive); err != nil {
				return err
			}
		}
		if c.EndSession != nil {
			if err := endSessionTx(ctx, tx, *c.EndSession); err != nil {
				return err
			}
		}
		for _, q := range c.QuestUpdates {
			if err := updateQuestTx(ctx, tx, q); err != nil {
				return err
			}
		}
		for _, q := range c.GlobalUpdates {
			if err := upsertGlobalProgressTx(ctx, tx, r.UserID, q); err != nil {
				return err
			}
		}
		for _, a := range c.Unlocks {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO achievements (user_id, id, unlocked_at) VALUES (?, ?, ?)`,
				r.UserID, a.ID, a.UnlockedAt.Unix(),
			); err != nil {
				return fmt.Errorf("unlock %s: %w", a.ID, err)
			}
		}
		for tree, xp := range c.SkillXP {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO skill_trees (user_id, tree, total_xp) VALUES (?, ?, ?)
				 ON CONFLICT(user_id, tree) DO UPDATE SET total_xp = total_xp + excluded.total_xp`,
				r.UserID, string(tree), xp,
			); err != nil {
				return fmt.Errorf("skill tree %s: %w", tree, err)
			}
		}
		if c.CompleteChallengeID != "" {
			res, err := tx.ExecContext(ctx,
				`UPDATE boss_challenges SET completed = 1, completed_at = ?
				 WHERE id = ? AND user_id = ? AND completed = 0`,
				r.LastActive.Unix(), c.CompleteChallengeID, r.UserID,
			)
			if err != nil {
				return fmt.Errorf("complete challenge: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return domain.ErrExamAlreadySubmitted
			}
		}
		if c.Exam != nil {
			if err := insertExamTx(ctx, tx, *c.Exam); err != nil {
				return err
			}
		}
		for _, e := range c.Ledger {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO xp_ledger (user_id, timestamp, source, amount, forfeited, ref_id, balance)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.UserID, e.Timestamp.Unix(), string(e.Source), e.Amount, e.Forfeited, e.RefID, e.Balance,
			); err != nil {
				return fmt.Errorf("ledger entry: %w", err)
			}
		}
		for _, n := range c.Notifications {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO notifications (user_id, type, title, body, created_at, shown)
				 VALUES (?, ?, ?, ?, ?, 0)`,
				r.UserID, string(n.Type), n.Title, n.Body, n.CreatedAt.Unix(),
			); err != nil {
				return fmt.Errorf("notification: %w", err)
			}
		}
		return nil
	})
}

// Leaderboard returns the top users by total XP.
func (d *DB) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id, total_xp, level, current_streak FROM progression
		 ORDER BY total_xp DESC, user_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.TotalXP, &e.Level, &e.CurrentStreak); err != nil {
			return nil, err
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out, rows.Err()
}

// SkillTreeXP returns the raw per-tree XP totals for a user.
func (d *DB) SkillTreeXP(ctx context.Context, userID string) (map[domain.SkillTree]int64, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT tree, total_xp FROM skill_trees WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.SkillTree]int64)
	for rows.Next() {
		var tree string
		var xp int64
		if err := rows.Scan(&tree, &xp); err != nil {
			return nil, err
		}
		out[domain.SkillTree(tree)] = xp
	}
	return out, rows.Err()
}

// UnlockedAchievements returns the achievements a user has earned, newest first.
func (d *DB) UnlockedAchievements(ctx context.Context, userID string) ([]domain.UnlockedAchievement, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, unlocked_at FROM achievements WHERE user_id = ? ORDER BY unlocked_at DESC, id ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UnlockedAchievement
	for rows.Next() {
		var a domain.UnlockedAchievement
		var at int64
		if err := rows.Scan(&a.ID, &at); err != nil {
			return nil, err
		}
		a.UnlockedAt = time.Unix(at, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanProgression(s scanner) (domain.ProgressionRecord, error) {
	var r domain.ProgressionRecord
	var lastActive, createdAt int64
	err := s.Scan(&r.UserID, &r.TotalXP, &r.Level, &r.CurrentStreak, &r.LongestStreak,
		&r.DisciplineScore, &lastActive, &r.TasksCompleted, &r.TasksToday, &r.TasksTodayDate,
		&r.TotalFocusSessions, &createdAt, &r.Version)
	if err != nil {
		return r, err
	}
	r.LastActive = time.Unix(lastActive, 0).UTC()
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	return r, nil
}

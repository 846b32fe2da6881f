package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/questforge/questforge/internal/domain"
)

// ─── Tasks ──────────────────────────────────────────────────────────────────

const taskColumns = `id, user_id, title, description, skill_tree, difficulty, estimated_minutes,
	xp_reward, completed, created_at, completed_at`

// InsertTask creates a new task.
func (d *DB) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Description, string(t.SkillTree), t.Difficulty,
		t.EstimatedMinutes, t.XPReward, t.Completed, t.CreatedAt.Unix(), nullableUnix(t.CompletedAt),
	)
	return err
}

// GetTask retrieves a user's task by ID, or domain.ErrTaskNotFound.
func (d *DB) GetTask(ctx context.Context, userID, id string) (domain.Task, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return t, domain.ErrTaskNotFound
	}
	return t, err
}

// ListTasks returns a user's tasks, newest first. A nil completed lists all.
func (d *DB) ListTasks(ctx context.Context, userID string, completed *bool, limit int) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{userID}
	if completed != nil {
		query += ` AND completed = ?`
		args = append(args, *completed)
	}
	query += ` ORDER BY created_at DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CompletedTasksSince returns tasks completed at or after since.
func (d *DB) CompletedTasksSince(ctx context.Context, userID string, since time.Time) ([]domain.Task, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ? AND completed = 1 AND completed_at >= ?
		 ORDER BY completed_at DESC`, userID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func completeTaskTx(ctx context.Context, tx *sql.Tx, userID, id string, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET completed = 1, completed_at = ? WHERE id = ? AND user_id = ? AND completed = 0`,
		at.Unix(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTaskAlreadyCompleted
	}
	return nil
}

func scanTask(s scanner) (domain.Task, error) {
	var t domain.Task
	var skill string
	var createdAt int64
	var completedAt sql.NullInt64
	err := s.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &skill, &t.Difficulty,
		&t.EstimatedMinutes, &t.XPReward, &t.Completed, &createdAt, &completedAt)
	if err != nil {
		return t, err
	}
	t.SkillTree = domain.SkillTree(skill)
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.CompletedAt = fromNullUnix(completedAt)
	return t, nil
}

// ─── Focus Sessions ─────────────────────────────────────────────────────────

const sessionColumns = `id, user_id, mode, start_time, end_time, duration_minutes, successful, ended`

// InsertFocusSession records a started (or already ended) focus session.
func (d *DB) InsertFocusSession(ctx context.Context, s domain.FocusSession) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO focus_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Mode, s.StartTime.Unix(), nullableUnix(s.EndTime),
		s.DurationMinutes, s.Successful, s.Ended,
	)
	return err
}

// GetFocusSession retrieves a user's session by ID, or domain.ErrSessionNotFound.
func (d *DB) GetFocusSession(ctx context.Context, userID, id string) (domain.FocusSession, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM focus_sessions WHERE id = ? AND user_id = ?`, id, userID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s, domain.ErrSessionNotFound
	}
	return s, err
}

// ListFocusSessions returns a user's ended sessions started at or after since,
// in chronological order. limit <= 0 means no limit.
func (d *DB) ListFocusSessions(ctx context.Context, userID string, since time.Time, limit int) ([]domain.FocusSession, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM (
			SELECT `+sessionColumns+` FROM focus_sessions
			WHERE user_id = ? AND ended = 1 AND start_time >= ?
			ORDER BY start_time DESC, id DESC LIMIT ?
		 ) ORDER BY start_time ASC, id ASC`,
		userID, since.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.FocusSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func endSessionTx(ctx context.Context, tx *sql.Tx, s domain.FocusSession) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE focus_sessions SET end_time = ?, duration_minutes = ?, successful = ?, ended = 1
		 WHERE id = ? AND user_id = ? AND ended = 0`,
		s.EndTime.Unix(), s.DurationMinutes, s.Successful, s.ID, s.UserID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionAlreadyEnded
	}
	return nil
}

func scanSession(s scanner) (domain.FocusSession, error) {
	var fs domain.FocusSession
	var start int64
	var end sql.NullInt64
	err := s.Scan(&fs.ID, &fs.UserID, &fs.Mode, &start, &end, &fs.DurationMinutes, &fs.Successful, &fs.Ended)
	if err != nil {
		return fs, err
	}
	fs.StartTime = time.Unix(start, 0).UTC()
	fs.EndTime = fromNullUnix(end)
	return fs, nil
}

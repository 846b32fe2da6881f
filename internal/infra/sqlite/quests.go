package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/questforge/questforge/internal/domain"
)

// ─── Per-user Quests ────────────────────────────────────────────────────────

const questColumns = `id, user_id, cadence, batch, title, description, type, unit, difficulty, category,
	progress, target, xp_reward, completed, completed_at, expires_at, source, created_at`

// InsertQuestSet stores a freshly generated quest set in one transaction.
// When consumeExamID is set, that exam's extra daily quests are marked applied
// in the same transaction so they are granted exactly once.
func (d *DB) InsertQuestSet(ctx context.Context, quests []domain.Quest, consumeExamID string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range quests {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO quests (`+questColumns+`)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				q.ID, q.UserID, string(q.Cadence), q.Batch, q.Title, q.Description,
				string(q.Type), string(q.Unit), q.Difficulty, q.Category,
				q.Progress, q.Target, q.XPReward, q.Completed, nullableUnix(q.CompletedAt),
				nullableUnixPtr(q.ExpiresAt), string(q.Source), q.CreatedAt.Unix(),
			); err != nil {
				return fmt.Errorf("insert quest %q: %w", q.Title, err)
			}
		}
		if consumeExamID == "" {
			return nil
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE exam_results SET extra_applied = 1 WHERE id = ? AND extra_applied = 0`, consumeExamID)
		if err != nil {
			return fmt.Errorf("consume exam penalty: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrConcurrentUpdate
		}
		return nil
	})
}

// LatestQuestSet returns the most recently generated set of the given cadence,
// in creation order. It returns nil when the user has never had one.
func (d *DB) LatestQuestSet(ctx context.Context, userID string, cadence domain.Cadence) ([]domain.Quest, error) {
	var batch string
	err := d.db.QueryRowContext(ctx,
		`SELECT batch FROM quests WHERE user_id = ? AND cadence = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		userID, string(cadence)).Scan(&batch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.queryQuests(ctx,
		`SELECT `+questColumns+` FROM quests WHERE user_id = ? AND batch = ? ORDER BY rowid ASC`,
		userID, batch)
}

// GetQuest retrieves a user's quest by ID, or domain.ErrQuestNotFound.
func (d *DB) GetQuest(ctx context.Context, userID, id string) (domain.Quest, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+questColumns+` FROM quests WHERE id = ? AND user_id = ?`, id, userID)
	q, err := scanQuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return q, domain.ErrQuestNotFound
	}
	return q, err
}

// ListOpenQuests returns the user's incomplete, unexpired quests across all cadences.
func (d *DB) ListOpenQuests(ctx context.Context, userID string, now time.Time) ([]domain.Quest, error) {
	return d.queryQuests(ctx,
		`SELECT `+questColumns+` FROM quests
		 WHERE user_id = ? AND completed = 0 AND (expires_at IS NULL OR expires_at > ?)
		 ORDER BY rowid ASC`,
		userID, now.Unix())
}

// DeleteExpiredQuests purges quest rows whose deadline passed before cutoff.
// Returns the number of per-user and global rows removed.
func (d *DB) DeleteExpiredQuests(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM quests WHERE expires_at IS NOT NULL AND expires_at < ?`, cutoff.Unix())
		if err != nil {
			return fmt.Errorf("purge quests: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM global_quest_progress WHERE quest_id IN (
				SELECT id FROM global_quests WHERE expires_at IS NOT NULL AND expires_at < ?)`,
			cutoff.Unix()); err != nil {
			return fmt.Errorf("purge global progress: %w", err)
		}
		res, err = tx.ExecContext(ctx,
			`DELETE FROM global_quests WHERE expires_at IS NOT NULL AND expires_at < ?`, cutoff.Unix())
		if err != nil {
			return fmt.Errorf("purge global quests: %w", err)
		}
		n, _ = res.RowsAffected()
		total += n
		return nil
	})
	return total, err
}

func (d *DB) queryQuests(ctx context.Context, query string, args ...any) ([]domain.Quest, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quests []domain.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		quests = append(quests, q)
	}
	return quests, rows.Err()
}

func updateQuestTx(ctx context.Context, tx *sql.Tx, q domain.Quest) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE quests SET progress = ?, completed = ?, completed_at = ?
		 WHERE id = ? AND user_id = ? AND completed = 0`,
		q.Progress, q.Completed, nullableUnix(q.CompletedAt), q.ID, q.UserID,
	)
	if err != nil {
		return fmt.Errorf("update quest: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

func scanQuest(s scanner) (domain.Quest, error) {
	var q domain.Quest
	var cadence, typ, unit, source string
	var completedAt, expiresAt sql.NullInt64
	var createdAt int64
	err := s.Scan(&q.ID, &q.UserID, &cadence, &q.Batch, &q.Title, &q.Description, &typ, &unit,
		&q.Difficulty, &q.Category, &q.Progress, &q.Target, &q.XPReward, &q.Completed,
		&completedAt, &expiresAt, &source, &createdAt)
	if err != nil {
		return q, err
	}
	q.Cadence = domain.Cadence(cadence)
	q.Type = domain.QuestType(typ)
	q.Unit = domain.QuestUnit(unit)
	q.Source = domain.QuestSource(source)
	q.CompletedAt = fromNullUnix(completedAt)
	q.ExpiresAt = fromNullUnixPtr(expiresAt)
	q.CreatedAt = time.Unix(createdAt, 0).UTC()
	return q, nil
}

// ─── Global Quests ──────────────────────────────────────────────────────────

const globalColumns = `g.id, g.title, g.description, g.type, g.unit, g.difficulty, g.category,
	g.target, g.xp_reward, g.expires_at, g.created_at`

// InsertGlobalQuest publishes a quest visible to every user.
func (d *DB) InsertGlobalQuest(ctx context.Context, q domain.Quest) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO global_quests (id, title, description, type, unit, difficulty, category,
			target, xp_reward, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Title, q.Description, string(q.Type), string(q.Unit), q.Difficulty, q.Category,
		q.Target, q.XPReward, nullableUnixPtr(q.ExpiresAt), q.CreatedAt.Unix(),
	)
	return err
}

// ListGlobalQuests returns unexpired global quests merged with userID's progress.
func (d *DB) ListGlobalQuests(ctx context.Context, userID string, now time.Time) ([]domain.Quest, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+globalColumns+`, COALESCE(p.progress, 0), COALESCE(p.completed, 0), p.completed_at
		 FROM global_quests g
		 LEFT JOIN global_quest_progress p ON p.quest_id = g.id AND p.user_id = ?
		 WHERE g.expires_at IS NULL OR g.expires_at > ?
		 ORDER BY g.created_at ASC, g.id ASC`,
		userID, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quests []domain.Quest
	for rows.Next() {
		q, err := scanGlobalQuest(rows, userID)
		if err != nil {
			return nil, err
		}
		quests = append(quests, q)
	}
	return quests, rows.Err()
}

// GetGlobalQuest returns one global quest with userID's progress, expired or not.
func (d *DB) GetGlobalQuest(ctx context.Context, userID, id string) (domain.Quest, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+globalColumns+`, COALESCE(p.progress, 0), COALESCE(p.completed, 0), p.completed_at
		 FROM global_quests g
		 LEFT JOIN global_quest_progress p ON p.quest_id = g.id AND p.user_id = ?
		 WHERE g.id = ?`,
		userID, id)
	q, err := scanGlobalQuest(row, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return q, domain.ErrQuestNotFound
	}
	return q, err
}

func upsertGlobalProgressTx(ctx context.Context, tx *sql.Tx, userID string, q domain.Quest) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO global_quest_progress (user_id, quest_id, progress, completed, completed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, quest_id) DO UPDATE SET
			progress = excluded.progress,
			completed = excluded.completed,
			completed_at = excluded.completed_at
		 WHERE global_quest_progress.completed = 0`,
		userID, q.ID, q.Progress, q.Completed, nullableUnix(q.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("global quest progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

func scanGlobalQuest(s scanner, userID string) (domain.Quest, error) {
	var q domain.Quest
	var typ, unit string
	var expiresAt, completedAt sql.NullInt64
	var createdAt int64
	err := s.Scan(&q.ID, &q.Title, &q.Description, &typ, &unit, &q.Difficulty, &q.Category,
		&q.Target, &q.XPReward, &expiresAt, &createdAt, &q.Progress, &q.Completed, &completedAt)
	if err != nil {
		return q, err
	}
	q.UserID = userID
	q.Cadence = domain.CadenceGlobal
	q.Type = domain.QuestType(typ)
	q.Unit = domain.QuestUnit(unit)
	q.Source = domain.SourceAuthored
	q.ExpiresAt = fromNullUnixPtr(expiresAt)
	q.CompletedAt = fromNullUnix(completedAt)
	q.CreatedAt = time.Unix(createdAt, 0).UTC()
	return q, nil
}

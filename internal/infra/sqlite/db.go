// Package sqlite provides SQLite-based persistent storage for questforge.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS progression (
			user_id              TEXT PRIMARY KEY,
			total_xp             INTEGER NOT NULL DEFAULT 0,
			level                INTEGER NOT NULL DEFAULT 1,
			current_streak       INTEGER NOT NULL DEFAULT 0,
			longest_streak       INTEGER NOT NULL DEFAULT 0,
			discipline_score     INTEGER NOT NULL DEFAULT 50,
			last_active          INTEGER NOT NULL,
			tasks_completed      INTEGER NOT NULL DEFAULT 0,
			tasks_today          INTEGER NOT NULL DEFAULT 0,
			tasks_today_date     TEXT NOT NULL DEFAULT '',
			total_focus_sessions INTEGER NOT NULL DEFAULT 0,
			created_at           INTEGER NOT NULL,
			version              INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progression_xp ON progression(total_xp DESC)`,

		// Activity units
		`CREATE TABLE IF NOT EXISTS tasks (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL,
			title             TEXT NOT NULL,
			description       TEXT NOT NULL DEFAULT '',
			skill_tree        TEXT NOT NULL DEFAULT '',
			difficulty        INTEGER NOT NULL,
			estimated_minutes INTEGER NOT NULL,
			xp_reward         INTEGER NOT NULL,
			completed         BOOLEAN NOT NULL DEFAULT 0,
			created_at        INTEGER NOT NULL,
			completed_at      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS focus_sessions (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			mode             TEXT NOT NULL DEFAULT 'normal',
			start_time       INTEGER NOT NULL,
			end_time         INTEGER,
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			successful       BOOLEAN NOT NULL DEFAULT 0,
			ended            BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_focus_user ON focus_sessions(user_id, start_time)`,

		// Quests
		`CREATE TABLE IF NOT EXISTS quests (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			cadence      TEXT NOT NULL,
			batch        TEXT NOT NULL,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			type         TEXT NOT NULL,
			unit         TEXT NOT NULL DEFAULT 'count',
			difficulty   TEXT NOT NULL DEFAULT 'medium',
			category     TEXT NOT NULL DEFAULT 'productivity',
			progress     INTEGER NOT NULL DEFAULT 0,
			target       INTEGER NOT NULL,
			xp_reward    INTEGER NOT NULL,
			completed    BOOLEAN NOT NULL DEFAULT 0,
			completed_at INTEGER,
			expires_at   INTEGER,
			source       TEXT NOT NULL,
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quests_user ON quests(user_id, cadence, created_at)`,
		`CREATE TABLE IF NOT EXISTS global_quests (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type        TEXT NOT NULL,
			unit        TEXT NOT NULL DEFAULT 'count',
			difficulty  TEXT NOT NULL DEFAULT 'medium',
			category    TEXT NOT NULL DEFAULT 'productivity',
			target      INTEGER NOT NULL,
			xp_reward   INTEGER NOT NULL,
			expires_at  INTEGER,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS global_quest_progress (
			user_id      TEXT NOT NULL,
			quest_id     TEXT NOT NULL,
			progress     INTEGER NOT NULL DEFAULT 0,
			completed    BOOLEAN NOT NULL DEFAULT 0,
			completed_at INTEGER,
			PRIMARY KEY (user_id, quest_id)
		)`,

		// Achievements (unlocked facts only; definitions live in code)
		`CREATE TABLE IF NOT EXISTS achievements (
			user_id     TEXT NOT NULL,
			id          TEXT NOT NULL,
			unlocked_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, id)
		)`,

		// Boss challenges and exams
		`CREATE TABLE IF NOT EXISTS boss_challenges (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			day            TEXT NOT NULL,
			challenge_text TEXT NOT NULL,
			difficulty     INTEGER NOT NULL,
			xp_reward      INTEGER NOT NULL,
			completed      BOOLEAN NOT NULL DEFAULT 0,
			completed_at   INTEGER,
			created_at     INTEGER NOT NULL,
			UNIQUE (user_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS exam_results (
			id                 TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			challenge_id       TEXT NOT NULL UNIQUE,
			score              REAL NOT NULL,
			grade              TEXT NOT NULL,
			xp_multiplier      REAL NOT NULL,
			xp_penalty         INTEGER NOT NULL,
			extra_daily_quests INTEGER NOT NULL,
			correct            INTEGER NOT NULL,
			total              INTEGER NOT NULL,
			xp_gained          INTEGER NOT NULL,
			extra_applied      BOOLEAN NOT NULL DEFAULT 0,
			submitted_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exam_user ON exam_results(user_id, submitted_at)`,

		// XP ledger (append-only)
		`CREATE TABLE IF NOT EXISTS xp_ledger (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id   TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			source    TEXT NOT NULL,
			amount    INTEGER NOT NULL,
			forfeited INTEGER NOT NULL DEFAULT 0,
			ref_id    TEXT NOT NULL DEFAULT '',
			balance   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_ledger_user ON xp_ledger(user_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS skill_trees (
			user_id  TEXT NOT NULL,
			tree     TEXT NOT NULL,
			total_xp INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, tree)
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			type       TEXT NOT NULL,
			title      TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			shown      BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at)`,
	}

	for i, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success.
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullableUnixPtr(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return nullableUnix(*t)
}

func fromNullUnix(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(n.Int64, 0).UTC()
}

func fromNullUnixPtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

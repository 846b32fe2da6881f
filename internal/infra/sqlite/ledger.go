package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/questforge/questforge/internal/domain"
)

// ─── XP Ledger ──────────────────────────────────────────────────────────────

// XPHistory returns a user's ledger entries, newest first.
func (d *DB) XPHistory(ctx context.Context, userID string, limit int) ([]domain.XPEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, timestamp, source, amount, forfeited, ref_id, balance
		 FROM xp_ledger WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.XPEntry
	for rows.Next() {
		var e domain.XPEntry
		var ts int64
		var source string
		if err := rows.Scan(&e.ID, &e.UserID, &ts, &source, &e.Amount, &e.Forfeited, &e.RefID, &e.Balance); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		e.Source = domain.XPSource(source)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LedgerBalance sums every ledger amount for a user. It must equal the
// record's TotalXP.
func (d *DB) LedgerBalance(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM xp_ledger WHERE user_id = ?`, userID).Scan(&sum)
	return sum, err
}

// ─── Notifications ──────────────────────────────────────────────────────────

// CountNotificationsSince counts notifications stored for a user at or after since.
func (d *DB) CountNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND created_at >= ?`,
		userID, since.Unix()).Scan(&n)
	return n, err
}

// PendingNotifications returns unshown notifications, oldest first.
func (d *DB) PendingNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, type, title, body, created_at, shown
		 FROM notifications WHERE user_id = ? AND shown = 0
		 ORDER BY id ASC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var typ string
		var created int64
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Body, &created, &n.Shown); err != nil {
			return nil, err
		}
		n.Type = domain.NotificationType(typ)
		n.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationsShown flags the given notifications as delivered.
func (d *DB) MarkNotificationsShown(ctx context.Context, userID string, ids []int64) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE notifications SET shown = 1 WHERE id = ? AND user_id = ?`, id, userID); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteShownNotifications removes delivered notifications created before cutoff.
func (d *DB) DeleteShownNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE shown = 1 AND created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

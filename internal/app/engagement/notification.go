package engagement

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/questforge/questforge/internal/domain"
)

// NotificationService reads a user's notification queue.
// Notifications are written by the Processor as part of an activity event,
// after the policy has been applied:
//   - At most MaxPerDay stored per user per UTC day
//   - None stored during quiet hours (UTC)
//   - Only achievement unlocks, level ups, quest completions and exam results
type NotificationService struct {
	store Store
	cfg   settings
}

// NewNotificationService creates a notification service.
func NewNotificationService(store Store, opts ...Option) *NotificationService {
	return &NotificationService{store: store, cfg: newSettings(opts)}
}

// Pending returns unshown notifications, oldest first.
func (n *NotificationService) Pending(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return n.store.PendingNotifications(ctx, userID, limit)
}

// MarkShown marks notifications as shown.
func (n *NotificationService) MarkShown(ctx context.Context, userID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return n.store.MarkNotificationsShown(ctx, userID, ids)
}

// TodayCount returns how many notifications were stored today (UTC).
func (n *NotificationService) TodayCount(ctx context.Context, userID string) (int, error) {
	return n.store.CountNotificationsSince(ctx, userID, startOfDay(n.cfg.clock()))
}

// Policy returns the current notification policy.
func (n *NotificationService) Policy() domain.NotificationPolicy {
	return n.cfg.notify
}

// admitNotifications returns the candidates the policy lets through at now.
// Suppressed notifications are dropped, not deferred.
func admitNotifications(ctx context.Context, store Store, policy domain.NotificationPolicy,
	userID string, now time.Time, candidates []domain.Notification) ([]domain.Notification, error) {
	if len(candidates) == 0 || policy.MaxPerDay <= 0 {
		return nil, nil
	}
	if isQuietHour(policy, now) {
		return nil, nil
	}

	sent, err := store.CountNotificationsSince(ctx, userID, startOfDay(now))
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}
	room := policy.MaxPerDay - sent
	if room <= 0 {
		return nil, nil
	}
	if len(candidates) > room {
		candidates = candidates[:room]
	}
	return candidates, nil
}

// isQuietHour returns true if t (UTC) falls within the policy's quiet hours.
func isQuietHour(policy domain.NotificationPolicy, t time.Time) bool {
	startHour, startMin := parseHHMM(policy.QuietStart)
	endHour, endMin := parseHHMM(policy.QuietEnd)

	t = t.UTC()
	timeMinutes := t.Hour()*60 + t.Minute()
	startMinutes := startHour*60 + startMin
	endMinutes := endHour*60 + endMin

	if startMinutes > endMinutes {
		// Wraps midnight: e.g., 22:00 – 08:00
		return timeMinutes >= startMinutes || timeMinutes < endMinutes
	}
	// Same day range; equal bounds disable quiet hours
	return timeMinutes >= startMinutes && timeMinutes < endMinutes
}

// parseHHMM parses "HH:MM" into hour and minute.
func parseHHMM(s string) (int, int) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h, m
}

// ValidClock reports whether s is a "HH:MM" time of day.
func ValidClock(s string) bool {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	return err1 == nil && err2 == nil && h >= 0 && h < 24 && m >= 0 && m < 60
}

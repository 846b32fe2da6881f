package daemon

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/questforge/questforge/internal/infra/metrics"
)

// Purger is the storage surface the housekeeping job needs.
type Purger interface {
	DeleteExpiredQuests(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteShownNotifications(ctx context.Context, cutoff time.Time) (int64, error)
}

// Housekeeping purges quest and notification rows long past their use.
// Quest rollover itself is lazy; this job only keeps the tables small.
type Housekeeping struct {
	store     Purger
	retention time.Duration
	now       func() time.Time
	cron      *cron.Cron
}

// NewHousekeeping schedules the purge on a standard five-field cron spec.
func NewHousekeeping(store Purger, schedule string, retention time.Duration) (*Housekeeping, error) {
	h := &Housekeeping{
		store:     store,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
	}
	if _, err := h.cron.AddFunc(schedule, func() {
		if _, err := h.RunOnce(context.Background()); err != nil {
			log.Printf("[housekeeping] purge failed: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule housekeeping %q: %w", schedule, err)
	}
	return h, nil
}

// Run starts the scheduler and blocks until ctx is done.
func (h *Housekeeping) Run(ctx context.Context) error {
	h.cron.Start()
	<-ctx.Done()

	// Stop waits for a running purge to finish.
	stopCtx := h.cron.Stop()
	<-stopCtx.Done()
	return nil
}

// RunOnce purges everything older than the retention window and returns
// the number of rows removed.
func (h *Housekeeping) RunOnce(ctx context.Context) (int64, error) {
	cutoff := h.now().Add(-h.retention)

	quests, err := h.store.DeleteExpiredQuests(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge quests: %w", err)
	}
	metrics.HousekeepingPurged.WithLabelValues("quests").Add(float64(quests))

	notes, err := h.store.DeleteShownNotifications(ctx, cutoff)
	if err != nil {
		return quests, fmt.Errorf("purge notifications: %w", err)
	}
	metrics.HousekeepingPurged.WithLabelValues("notifications").Add(float64(notes))

	if quests+notes > 0 {
		log.Printf("[housekeeping] purged %d quests, %d notifications older than %s",
			quests, notes, cutoff.Format(time.RFC3339))
	}
	return quests + notes, nil
}

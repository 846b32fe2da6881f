// Package metrics provides Prometheus metrics for questforge.
// Counters, gauges, and histograms for progression events, quest generation,
// the AI text service, storage contention, and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Progression ────────────────────────────────────────────────────────────

// XPAwarded tracks XP granted, by ledger source.
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "xp_awarded_total",
	Help:      "Total XP awarded.",
}, []string{"source"})

// XPForfeited tracks XP withheld by failing boss exams.
var XPForfeited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "xp_forfeited_total",
	Help:      "Total XP withheld as exam penalties.",
})

// LevelUps counts level transitions.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "level_ups_total",
	Help:      "Total level-up events.",
})

// ActivityEvents counts committed activity units by kind.
var ActivityEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "activity_events_total",
	Help:      "Committed activity events.",
}, []string{"kind"})

// AchievementsUnlocked counts unlocks by achievement ID.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "achievements_unlocked_total",
	Help:      "Achievement unlocks.",
}, []string{"id"})

// StreakBands counts streak evaluations by band.
var StreakBands = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "streak_band_total",
	Help:      "Streak evaluations by band.",
}, []string{"band"})

// ─── Quests ─────────────────────────────────────────────────────────────────

// QuestSetsGenerated counts generated quest sets by cadence and source.
var QuestSetsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "quest_sets_generated_total",
	Help:      "Quest sets generated.",
}, []string{"cadence", "source"})

// QuestsCompleted counts quest completions by cadence.
var QuestsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "quests_completed_total",
	Help:      "Quest completions.",
}, []string{"cadence"})

// ─── Boss Exams ─────────────────────────────────────────────────────────────

// ExamGrades counts graded exams by letter grade.
var ExamGrades = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "exam_grades_total",
	Help:      "Graded boss exams.",
}, []string{"grade"})

// ─── AI Text Service ────────────────────────────────────────────────────────

// AILatency tracks text generation latency in seconds.
var AILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "questforge",
	Name:      "ai_latency_seconds",
	Help:      "Text generation request duration in seconds.",
	Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
}, []string{"model"})

// AIFailures counts failed generations by reason.
var AIFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "ai_failures_total",
	Help:      "Failed text generations.",
}, []string{"reason"})

// AICacheHits counts responses served from the generation cache.
var AICacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "ai_cache_hits_total",
	Help:      "Text generations served from cache.",
})

// ─── Storage ────────────────────────────────────────────────────────────────

// CASConflicts counts optimistic-concurrency conflicts on the progression record.
var CASConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "cas_conflicts_total",
	Help:      "Progression record version conflicts.",
})

// CASExhausted counts activity events rejected after all retries.
var CASExhausted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "cas_exhausted_total",
	Help:      "Activity events that exhausted their retries.",
})

// HousekeepingPurged counts rows removed by the housekeeping job.
var HousekeepingPurged = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "housekeeping_purged_total",
	Help:      "Rows purged by housekeeping.",
}, []string{"table"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1 = healthy, 0 = unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "questforge",
	Name:      "health_check_status",
	Help:      "Health check status (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries counts auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "questforge",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts.",
}, []string{"check"})

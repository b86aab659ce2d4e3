package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	XPAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_xp_awarded_total",
			Help: "Total positive XP committed to the ledger",
		},
		[]string{"category"},
	)
	AwardsDenied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_awards_denied_total",
			Help: "Awards refused by an idempotency window",
		},
	)
	LevelUps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_level_ups_total",
			Help: "Level boundary crossings",
		},
	)
	AchievementsUnlocked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_achievements_unlocked_total",
			Help: "One-time achievements unlocked",
		},
	)
	ValidationsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_validations_resolved_total",
			Help: "Peer validations reaching a terminal state",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(XPAwarded)
	prometheus.MustRegister(AwardsDenied)
	prometheus.MustRegister(LevelUps)
	prometheus.MustRegister(AchievementsUnlocked)
	prometheus.MustRegister(ValidationsResolved)
}

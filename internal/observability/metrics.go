package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	habitsCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "habit_ledger",
		Subsystem: "habits",
		Name:      "created_total",
		Help:      "Number of habits created.",
	})

	habitsDeletedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "habit_ledger",
		Subsystem: "habits",
		Name:      "deleted_total",
		Help:      "Number of habits deleted together with their completions.",
	})

	togglesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "habit_ledger",
		Subsystem: "completions",
		Name:      "toggles_total",
		Help:      "Number of completion toggles, labeled by the resulting state.",
	}, []string{"state"})

	lastToggleGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "habit_ledger",
		Subsystem: "completions",
		Name:      "last_toggle_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completion toggle.",
	})

	summaryDaysGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "habit_ledger",
		Subsystem: "summary",
		Name:      "days",
		Help:      "Number of days reported by the most recent summary.",
	})
)

func init() {
	prometheus.MustRegister(habitsCreatedCounter, habitsDeletedCounter, togglesCounter, lastToggleGauge, summaryDaysGauge)
}

// RecordHabitCreated counts a created habit.
func RecordHabitCreated() {
	habitsCreatedCounter.Inc()
}

// RecordHabitDeleted counts a deleted habit.
func RecordHabitDeleted() {
	habitsDeletedCounter.Inc()
}

// RecordCompletionToggled counts a toggle and updates the toggle watermark.
func RecordCompletionToggled(completed bool, ts time.Time) {
	state := "cleared"
	if completed {
		state = "completed"
	}
	togglesCounter.WithLabelValues(state).Inc()
	if ts.IsZero() {
		return
	}
	lastToggleGauge.Set(float64(ts.Unix()))
}

// RecordSummaryDays records how many days the latest summary returned.
func RecordSummaryDays(n int) {
	summaryDaysGauge.Set(float64(n))
}

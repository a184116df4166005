package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reminderRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_runs_total",
			Help: "Dispatcher ticks by outcome",
		},
		[]string{"outcome"},
	)

	remindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_reminders_sent_total",
			Help: "Individual reminder notifications handed to the gateway",
		},
	)

	reminderEventFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminder_event_failures_total",
			Help: "Events skipped in a tick due to an error (retried next tick)",
		},
	)

	rsvpOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsvp_operations_total",
			Help: "Join/leave operations by status",
		},
		[]string{"operation", "status"},
	)
)

// Dispatcher tick outcomes.
const (
	RunOK      = "ok"
	RunEmpty   = "empty"
	RunError   = "error"
	RunSkipped = "skipped"
)

func TrackReminderRun(outcome string)    { reminderRuns.WithLabelValues(outcome).Inc() }
func TrackReminderSent()                 { remindersSent.Inc() }
func TrackReminderEventFailure()         { reminderEventFailures.Inc() }
func TrackRSVP(operation, status string) { rsvpOperations.WithLabelValues(operation, status).Inc() }

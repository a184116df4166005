// Package reminder runs the periodic job that notifies opted-in attendees
// roughly one hour before their event starts, at most once per event.
package reminder

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tunetip/events-service/internal/model"
	"github.com/tunetip/events-service/internal/monitoring"
	"github.com/tunetip/events-service/internal/notify"
	"go.uber.org/zap"
)

// Selection window, relative to "now": events starting between 55 and 65
// minutes out, inclusive on both ends. The window is twice the default
// 5-minute cadence, so an event still lands inside at least one tick even
// when a run is delayed or skipped.
const (
	windowLead  = 55 * time.Minute
	windowTrail = 65 * time.Minute
)

// Window maps now to the reminder selection interval. Pure; the store
// applies it together with the reminder_sent filter.
func Window(now time.Time) (from, to time.Time) {
	return now.Add(windowLead), now.Add(windowTrail)
}

// EventSource is the read/mark path the dispatcher needs from the events
// service.
type EventSource interface {
	EventsDueForReminder(ctx context.Context, from, to time.Time) ([]model.Event, error)
	OptedInAttendees(ctx context.Context, eventID uint64) ([]model.RSVP, error)
	MarkReminderSent(ctx context.Context, eventID uint64) error
}

// Dispatcher holds no per-run state; idempotency across ticks lives entirely
// in the reminder_sent column.
type Dispatcher struct {
	source         EventSource
	gateway        notify.Gateway
	log            *zap.SugaredLogger
	gatewayTimeout time.Duration

	running atomic.Bool
}

// NewDispatcher wires the dispatcher. gatewayTimeout bounds each
// notification call so one hanging attendee cannot stall a whole tick.
func NewDispatcher(source EventSource, gateway notify.Gateway, logger *zap.SugaredLogger, gatewayTimeout time.Duration) *Dispatcher {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 10 * time.Second
	}
	return &Dispatcher{
		source:         source,
		gateway:        gateway,
		log:            logger,
		gatewayTimeout: gatewayTimeout,
	}
}

// Run ticks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, cadence time.Duration) {
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	d.log.Infof("reminder dispatcher started, cadence %s", cadence)
	for {
		select {
		case <-ctx.Done():
			d.log.Info("reminder dispatcher stopped")
			return
		case <-ticker.C:
			d.Tick(ctx, time.Now())
		}
	}
}

// Tick is one dispatcher invocation. It never returns an error and never
// panics the host: a selection failure is logged and the tick abandoned, a
// failure on one event is logged and the loop moves on so the remaining
// events still get their reminders. An event is only marked sent after its
// notification loop ran; a failure before that leaves reminder_sent false
// and the next tick retries it.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) {
	// Overlapping ticks could both read a not-yet-marked event and
	// double-send, so a tick that finds the previous one still running
	// backs off and lets the next tick pick up the window.
	if !d.running.CompareAndSwap(false, true) {
		d.log.Warn("reminder tick still running, skipping this tick")
		monitoring.TrackReminderRun(monitoring.RunSkipped)
		return
	}
	defer d.running.Store(false)

	from, to := Window(now)
	due, err := d.source.EventsDueForReminder(ctx, from, to)
	if err != nil {
		d.log.Errorf("select events for reminder: %v", err)
		monitoring.TrackReminderRun(monitoring.RunError)
		return
	}
	if len(due) == 0 {
		monitoring.TrackReminderRun(monitoring.RunEmpty)
		return
	}

	d.log.Infof("sending reminders for %d event(s)", len(due))
	for i := range due {
		if err := d.dispatchEvent(ctx, &due[i]); err != nil {
			d.log.Errorf("reminders for event %d: %v", due[i].ID, err)
			monitoring.TrackReminderEventFailure()
		}
	}
	monitoring.TrackReminderRun(monitoring.RunOK)
}

// dispatchEvent notifies one event's opted-in attendees and flips the sent
// flag. A gateway failure for a single attendee is logged but does not stop
// the loop or block mark-sent: retrying the whole event for one failed
// delivery would re-notify everyone else.
func (d *Dispatcher) dispatchEvent(ctx context.Context, ev *model.Event) error {
	attendees, err := d.source.OptedInAttendees(ctx, ev.ID)
	if err != nil {
		return err
	}

	d.log.Infof("event %d %q: notifying %d attendee(s)", ev.ID, ev.Title, len(attendees))
	for _, a := range attendees {
		if err := d.send(ctx, a.UserID, ev); err != nil {
			d.log.Errorf("notify user %d for event %d: %v", a.UserID, ev.ID, err)
			continue
		}
		monitoring.TrackReminderSent()
	}

	return d.source.MarkReminderSent(ctx, ev.ID)
}

func (d *Dispatcher) send(ctx context.Context, userID uint64, ev *model.Event) error {
	callCtx, cancel := context.WithTimeout(ctx, d.gatewayTimeout)
	defer cancel()
	return d.gateway.SendEventReminder(callCtx, userID, ev.ID, ev.Title, ev.StartTime)
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/tunetip/events-service/internal/model"
	"github.com/tunetip/events-service/internal/page"
	"github.com/tunetip/events-service/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventsService glues the attendance ledger, event CRUD and the reminder
// read path to the repository.
type EventsService struct {
	repo repo.Store
	log  *zap.SugaredLogger
}

// NewEventsService returns EventsService.
func NewEventsService(r repo.Store, logger *zap.SugaredLogger) *EventsService {
	return &EventsService{repo: r, log: logger}
}

// CreateEventInput carries the caller-supplied event fields.
type CreateEventInput struct {
	Title       string
	Description string
	EventType   string
	StartTime   time.Time
	EndTime     *time.Time
	Venue       *string
	StreamURL   *string
	TicketURL   *string
	IsVirtual   bool
}

// UpdateEventInput patches an event; nil fields are left untouched.
type UpdateEventInput struct {
	Title       *string
	Description *string
	EventType   *string
	StartTime   *time.Time
	EndTime     *time.Time
	Venue       *string
	StreamURL   *string
	TicketURL   *string
	IsVirtual   *bool
}

// Create validates and persists a new event for the artist.
func (s *EventsService) Create(ctx context.Context, artistID uint64, in CreateEventInput) (*model.Event, error) {
	if !model.ValidEventType(in.EventType) {
		return nil, ErrInvalidEventType
	}
	if !in.StartTime.After(time.Now()) {
		return nil, ErrEventInPast
	}
	ev := &model.Event{
		ArtistID:    artistID,
		Title:       in.Title,
		Description: in.Description,
		EventType:   in.EventType,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Venue:       in.Venue,
		StreamURL:   in.StreamURL,
		TicketURL:   in.TicketURL,
		IsVirtual:   in.IsVirtual,
	}
	if err := s.repo.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Get returns one event by id.
func (s *EventsService) Get(ctx context.Context, id uint64) (*model.Event, error) {
	return s.getEvent(ctx, id)
}

// Update applies a partial edit; only the owning artist may edit, and a
// changed start time must still be in the future.
func (s *EventsService) Update(ctx context.Context, id, artistID uint64, in UpdateEventInput) (*model.Event, error) {
	ev, err := s.getEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.ArtistID != artistID {
		return nil, ErrNotOwner
	}
	if in.StartTime != nil {
		if !in.StartTime.After(time.Now()) {
			return nil, ErrEventInPast
		}
		ev.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		ev.EndTime = in.EndTime
	}
	if in.Title != nil {
		ev.Title = *in.Title
	}
	if in.Description != nil {
		ev.Description = *in.Description
	}
	if in.EventType != nil {
		if !model.ValidEventType(*in.EventType) {
			return nil, ErrInvalidEventType
		}
		ev.EventType = *in.EventType
	}
	if in.Venue != nil {
		ev.Venue = in.Venue
	}
	if in.StreamURL != nil {
		ev.StreamURL = in.StreamURL
	}
	if in.TicketURL != nil {
		ev.TicketURL = in.TicketURL
	}
	if in.IsVirtual != nil {
		ev.IsVirtual = *in.IsVirtual
	}
	if err := s.repo.SaveEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Delete removes an event and cascades to its rsvps; owner only.
func (s *EventsService) Delete(ctx context.Context, id, artistID uint64) error {
	ev, err := s.getEvent(ctx, id)
	if err != nil {
		return err
	}
	if ev.ArtistID != artistID {
		return ErrNotOwner
	}
	return s.repo.DeleteEvent(ctx, ev)
}

// ListByArtist pages an artist's events by start time ascending.
func (s *EventsService) ListByArtist(ctx context.Context, artistID uint64, f page.Filter) (page.Result[model.Event], error) {
	pg, limit, offset := f.Normalize()
	events, total, err := s.repo.EventsByArtist(ctx, artistID, limit, offset)
	if err != nil {
		return page.Result[model.Event]{}, err
	}
	return page.NewResult(events, total, pg, limit), nil
}

// Feed returns upcoming events from the followed artists, soonest first.
// An empty follow set short-circuits to an empty page without touching the
// store; "IN ()" is neither match-all nor match-none across databases.
func (s *EventsService) Feed(ctx context.Context, artistIDs []uint64, f page.Filter) (page.Result[model.Event], error) {
	pg, limit, offset := f.Normalize()
	if len(artistIDs) == 0 {
		return page.NewResult[model.Event](nil, 0, pg, limit), nil
	}
	events, total, err := s.repo.FeedEvents(ctx, artistIDs, time.Now(), limit, offset)
	if err != nil {
		return page.Result[model.Event]{}, err
	}
	return page.NewResult(events, total, pg, limit), nil
}

// Join records userID's attendance. Pre-checks run on fresh reads outside
// the transaction to keep it short; the unique index on (event_id, user_id)
// closes the race, and a duplicate insert maps to the same ErrAlreadyJoined
// as the pre-check. Row insert and counter increment commit atomically.
func (s *EventsService) Join(ctx context.Context, eventID, userID uint64, reminderEnabled bool) (*model.RSVP, error) {
	ev, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.StartTime.After(time.Now()) {
		return nil, ErrEventInPast
	}
	if _, err := s.repo.GetRSVP(ctx, eventID, userID); err == nil {
		return nil, ErrAlreadyJoined
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	rec := &model.RSVP{EventID: eventID, UserID: userID, ReminderEnabled: reminderEnabled}
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateRSVP(ctx, tx, rec); err != nil {
			if repo.IsUniqueViolation(err) {
				return ErrAlreadyJoined
			}
			return err
		}
		if err := s.repo.IncrementRSVPCount(ctx, tx, eventID); err != nil {
			// the event vanished between the pre-check and the
			// transaction; keep the outcome inside the taxonomy
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.refreshCountCache(ctx, eventID)
	return rec, nil
}

// Leave removes userID's attendance; row delete and guarded counter
// decrement commit atomically. An underflowing decrement is surfaced as
// repo.ErrCounterUnderflow, never clamped.
func (s *EventsService) Leave(ctx context.Context, eventID, userID uint64) error {
	ev, err := s.getEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !ev.StartTime.After(time.Now()) {
		return ErrEventInPast
	}
	rec, err := s.repo.GetRSVP(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRSVPNotFound
		}
		return err
	}

	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeleteRSVP(ctx, tx, rec.ID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRSVPNotFound
			}
			return err
		}
		return s.repo.DecrementRSVPCount(ctx, tx, eventID)
	})
	if err != nil {
		return err
	}
	s.refreshCountCache(ctx, eventID)
	return nil
}

// ListAttendees pages an event's rsvps by creation time ascending. The total
// is recomputed from live rows, not read from rsvp_count, so counter drift
// stays observable.
func (s *EventsService) ListAttendees(ctx context.Context, eventID uint64, f page.Filter) (page.Result[model.RSVP], error) {
	if _, err := s.getEvent(ctx, eventID); err != nil {
		return page.Result[model.RSVP]{}, err
	}
	pg, limit, offset := f.Normalize()
	rows, total, err := s.repo.ListRSVPs(ctx, eventID, limit, offset)
	if err != nil {
		return page.Result[model.RSVP]{}, err
	}
	return page.NewResult(rows, total, pg, limit), nil
}

// AttendeeCount serves the maintained counter, cache first.
func (s *EventsService) AttendeeCount(ctx context.Context, eventID uint64) (int64, error) {
	if count, err := s.repo.GetCachedRSVPCount(ctx, eventID); err == nil {
		return count, nil
	}
	ev, err := s.getEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if err := s.repo.CacheRSVPCount(ctx, eventID, ev.RSVPCount); err != nil {
		s.log.Warnf("cache rsvp count: %v", err)
	}
	return ev.RSVPCount, nil
}

// EventsDueForReminder, OptedInAttendees and MarkReminderSent form the
// dispatcher's read/mark path (reminder.EventSource).

func (s *EventsService) EventsDueForReminder(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	return s.repo.EventsDueForReminder(ctx, from, to)
}

func (s *EventsService) OptedInAttendees(ctx context.Context, eventID uint64) ([]model.RSVP, error) {
	return s.repo.RSVPsWithReminder(ctx, eventID)
}

func (s *EventsService) MarkReminderSent(ctx context.Context, eventID uint64) error {
	return s.repo.MarkReminderSent(ctx, eventID)
}

// Repo exposes underlying repository (unit tests helper).
func (s *EventsService) Repo() repo.Store {
	return s.repo
}

func (s *EventsService) getEvent(ctx context.Context, id uint64) (*model.Event, error) {
	ev, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return ev, nil
}

// refreshCountCache re-reads the committed counter and caches it; cache
// writes are best-effort.
func (s *EventsService) refreshCountCache(ctx context.Context, eventID uint64) {
	ev, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return
	}
	if err := s.repo.CacheRSVPCount(ctx, eventID, ev.RSVPCount); err != nil {
		s.log.Warnf("cache rsvp count: %v", err)
	}
}

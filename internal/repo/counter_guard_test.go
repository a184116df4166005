package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tunetip/events-service/internal/logger"
	"github.com/tunetip/events-service/internal/model"
)

func newTestRepo(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Event{}, &model.RSVP{}))

	log, err := logger.New("error")
	require.NoError(t, err)
	return NewRepository(db, nil, log), db
}

func TestDecrement_GuardedAgainstUnderflow(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	ev := &model.Event{
		ArtistID: 1, Title: "Show", Description: "d",
		EventType: model.EventTypeConcert, StartTime: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(ev).Error)

	// decrement at zero is refused and surfaced
	err := db.Transaction(func(tx *gorm.DB) error {
		return r.DecrementRSVPCount(ctx, tx, ev.ID)
	})
	assert.ErrorIs(t, err, ErrCounterUnderflow)

	// increment then decrement round-trips to zero
	err = db.Transaction(func(tx *gorm.DB) error {
		return r.IncrementRSVPCount(ctx, tx, ev.ID)
	})
	assert.NoError(t, err)
	err = db.Transaction(func(tx *gorm.DB) error {
		return r.DecrementRSVPCount(ctx, tx, ev.ID)
	})
	assert.NoError(t, err)

	got, err := r.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.RSVPCount)
}

func TestCreateRSVP_DuplicateHitsUniqueIndex(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	ev := &model.Event{
		ArtistID: 1, Title: "Show", Description: "d",
		EventType: model.EventTypeConcert, StartTime: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(ev).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		return r.CreateRSVP(ctx, tx, &model.RSVP{EventID: ev.ID, UserID: 9})
	})
	require.NoError(t, err)

	// same pair again: the index refuses it even without the pre-check
	err = db.Transaction(func(tx *gorm.DB) error {
		return r.CreateRSVP(ctx, tx, &model.RSVP{EventID: ev.ID, UserID: 9})
	})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	// a different user on the same event is fine
	err = db.Transaction(func(tx *gorm.DB) error {
		return r.CreateRSVP(ctx, tx, &model.RSVP{EventID: ev.ID, UserID: 10})
	})
	assert.NoError(t, err)
}

func TestEventsDueForReminder_FiltersSentFlag(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	due := &model.Event{
		ArtistID: 1, Title: "Due", Description: "d",
		EventType: model.EventTypeConcert, StartTime: now.Add(time.Hour),
	}
	sent := &model.Event{
		ArtistID: 1, Title: "Sent", Description: "d",
		EventType: model.EventTypeConcert, StartTime: now.Add(time.Hour),
		ReminderSent: true,
	}
	require.NoError(t, db.Create(due).Error)
	require.NoError(t, db.Create(sent).Error)

	events, err := r.EventsDueForReminder(ctx, now.Add(55*time.Minute), now.Add(65*time.Minute))
	assert.NoError(t, err)
	if assert.Len(t, events, 1) {
		assert.Equal(t, due.ID, events[0].ID)
	}
}

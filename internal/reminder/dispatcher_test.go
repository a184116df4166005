package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tunetip/events-service/internal/logger"
	"github.com/tunetip/events-service/internal/model"
	"github.com/tunetip/events-service/internal/repo"
	"github.com/tunetip/events-service/internal/service"
)

type sentCall struct {
	userID  uint64
	eventID uint64
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []sentCall
	// errFor returns an error for these user ids
	errFor map[uint64]error
}

func (g *fakeGateway) SendEventReminder(_ context.Context, userID, eventID uint64, _ string, _ time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.errFor[userID]; ok {
		return err
	}
	g.calls = append(g.calls, sentCall{userID: userID, eventID: eventID})
	return nil
}

func (g *fakeGateway) sent() []sentCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentCall(nil), g.calls...)
}

type fakeSource struct {
	mu          sync.Mutex
	events      []model.Event
	rsvps       map[uint64][]model.RSVP
	marked      map[uint64]bool
	selectErr   error
	attendeeErr map[uint64]error
	markErr     map[uint64]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		rsvps:       map[uint64][]model.RSVP{},
		marked:      map[uint64]bool{},
		attendeeErr: map[uint64]error{},
		markErr:     map[uint64]error{},
	}
}

func (f *fakeSource) addEvent(id uint64, start time.Time, attendees ...uint64) {
	f.events = append(f.events, model.Event{ID: id, Title: fmt.Sprintf("event-%d", id), StartTime: start})
	for _, u := range attendees {
		f.rsvps[id] = append(f.rsvps[id], model.RSVP{EventID: id, UserID: u, ReminderEnabled: true})
	}
}

func (f *fakeSource) EventsDueForReminder(_ context.Context, from, to time.Time) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	var due []model.Event
	for _, ev := range f.events {
		if f.marked[ev.ID] {
			continue
		}
		if !ev.StartTime.Before(from) && !ev.StartTime.After(to) {
			due = append(due, ev)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (f *fakeSource) OptedInAttendees(_ context.Context, eventID uint64) ([]model.RSVP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.attendeeErr[eventID]; ok {
		return nil, err
	}
	return f.rsvps[eventID], nil
}

func (f *fakeSource) MarkReminderSent(_ context.Context, eventID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.markErr[eventID]; ok {
		return err
	}
	f.marked[eventID] = true
	return nil
}

func (f *fakeSource) isMarked(id uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marked[id]
}

func testLog(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	l, err := logger.New("error")
	require.NoError(t, err)
	return l
}

func TestWindow(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	from, to := Window(now)
	assert.Equal(t, now.Add(55*time.Minute), from)
	assert.Equal(t, now.Add(65*time.Minute), to)
}

func TestTick_NoCandidatesIsNoop(t *testing.T) {
	src := newFakeSource()
	gw := &fakeGateway{}
	d := NewDispatcher(src, gw, testLog(t), time.Second)

	d.Tick(context.Background(), time.Now())

	assert.Empty(t, gw.sent())
}

func TestTick_SendsAndMarks(t *testing.T) {
	now := time.Now()
	src := newFakeSource()
	src.addEvent(1, now.Add(time.Hour), 101, 102)
	gw := &fakeGateway{}
	d := NewDispatcher(src, gw, testLog(t), time.Second)

	d.Tick(context.Background(), now)

	assert.ElementsMatch(t, []sentCall{{101, 1}, {102, 1}}, gw.sent())
	assert.True(t, src.isMarked(1))
}

func TestTick_SelectionFailureSwallowed(t *testing.T) {
	src := newFakeSource()
	src.selectErr = errors.New("db down")
	gw := &fakeGateway{}
	d := NewDispatcher(src, gw, testLog(t), time.Second)

	assert.NotPanics(t, func() { d.Tick(context.Background(), time.Now()) })
	assert.Empty(t, gw.sent())
}

func TestTick_PartialFailureIsolation(t *testing.T) {
	now := time.Now()
	src := newFakeSource()
	src.addEvent(1, now.Add(time.Hour), 101)
	src.addEvent(2, now.Add(time.Hour), 201)
	src.attendeeErr[1] = errors.New("lookup failed")
	gw := &fakeGateway{}
	d := NewDispatcher(src, gw, testLog(t), time.Second)

	d.Tick(context.Background(), now)

	// event 2 was delivered and marked despite event 1 failing
	assert.Equal(t, []sentCall{{201, 2}}, gw.sent())
	assert.True(t, src.isMarked(2))
	// event 1 stays unmarked so the next tick retries it
	assert.False(t, src.isMarked(1))

	delete(src.attendeeErr, 1)
	d.Tick(context.Background(), now)
	assert.True(t, src.isMarked(1))
	assert.ElementsMatch(t, []sentCall{{201, 2}, {101, 1}}, gw.sent())
}

func TestTick_SecondRunSendsNothing(t *testing.T) {
	now := time.Now()
	src := newFakeSource()
	src.addEvent(1, now.Add(time.Hour), 101)
	gw := &fakeGateway{}
	d := NewDispatcher(src, gw, testLog(t), time.Second)

	d.Tick(context.Background(), now)
	d.Tick(context.Background(), now)

	// reminder_sent from the first run excludes the event from the second
	assert.Equal(t, []sentCall{{101, 1}}, gw.sent())
}

func TestTick_GatewayFailureStillMarks(t *testing.T) {
	now := time.Now()
	src := newFakeSource()
	src.addEvent(1, now.Add(time.Hour), 101, 102)
	gw := &fakeGateway{errFor: map[uint64]error{101: errors.New("push service 503")}}
	d := NewDispatcher(src, gw, testLog(t), time.Second)

	d.Tick(context.Background(), now)

	// the failed attendee does not block the rest or the mark-sent step
	assert.Equal(t, []sentCall{{102, 1}}, gw.sent())
	assert.True(t, src.isMarked(1))
}

func TestTick_MarkFailureLeavesEventForRetry(t *testing.T) {
	now := time.Now()
	src := newFakeSource()
	src.addEvent(1, now.Add(time.Hour), 101)
	src.markErr[1] = errors.New("write failed")
	gw := &fakeGateway{}
	d := NewDispatcher(src, gw, testLog(t), time.Second)

	d.Tick(context.Background(), now)
	assert.False(t, src.isMarked(1))
}

type blockingGateway struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (g *blockingGateway) SendEventReminder(context.Context, uint64, uint64, string, time.Time) error {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	g.started <- struct{}{}
	<-g.release
	return nil
}

func TestTick_OverlappingRunSkipped(t *testing.T) {
	now := time.Now()
	src := newFakeSource()
	src.addEvent(1, now.Add(time.Hour), 101)
	gw := &blockingGateway{started: make(chan struct{}), release: make(chan struct{})}
	d := NewDispatcher(src, gw, testLog(t), time.Minute)

	done := make(chan struct{})
	go func() {
		d.Tick(context.Background(), now)
		close(done)
	}()
	<-gw.started

	// first tick is mid-send; this one must back off without dispatching
	d.Tick(context.Background(), now)
	gw.mu.Lock()
	assert.Equal(t, 1, gw.calls)
	gw.mu.Unlock()

	close(gw.release)
	<-done
	assert.True(t, src.isMarked(1))
}

// End-to-end over the real service and an sqlite store: event at now+58m with
// one opted-in and one opted-out attendee.
func TestDispatch_EndToEnd(t *testing.T) {
	svc, ctx := newStoreBackedService(t)

	start := time.Now().Add(58 * time.Minute)
	ev, err := svc.Create(ctx, 7, service.CreateEventInput{
		Title: "Album Listening Party", Description: "d",
		EventType: model.EventTypeAlbumRelease, StartTime: start,
	})
	require.NoError(t, err)
	_, err = svc.Join(ctx, ev.ID, 101, true)
	require.NoError(t, err)
	_, err = svc.Join(ctx, ev.ID, 102, false)
	require.NoError(t, err)

	gw := &fakeGateway{}
	d := NewDispatcher(svc, gw, testLog(t), time.Second)
	d.Tick(ctx, time.Now())

	assert.Equal(t, []sentCall{{101, ev.ID}}, gw.sent())
	after, err := svc.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, after.ReminderSent)

	// immediate rerun sends nothing more
	d.Tick(ctx, time.Now())
	assert.Len(t, gw.sent(), 1)
}

func TestDispatch_WindowBoundaries(t *testing.T) {
	svc, ctx := newStoreBackedService(t)
	now := time.Now()

	mk := func(offset time.Duration) *model.Event {
		ev := &model.Event{
			ArtistID: 7, Title: fmt.Sprintf("at %s", offset), Description: "d",
			EventType: model.EventTypeLiveStream, StartTime: now.Add(offset),
		}
		require.NoError(t, svc.Repo().DB(ctx).Create(ev).Error)
		return ev
	}

	justBefore := mk(55*time.Minute - time.Second)
	lowerEdge := mk(55 * time.Minute)
	upperEdge := mk(65 * time.Minute)
	justAfter := mk(65*time.Minute + time.Second)

	gw := &fakeGateway{}
	d := NewDispatcher(svc, gw, testLog(t), time.Second)
	d.Tick(ctx, now)

	marked := func(ev *model.Event) bool {
		got, err := svc.Get(ctx, ev.ID)
		require.NoError(t, err)
		return got.ReminderSent
	}
	assert.False(t, marked(justBefore))
	assert.True(t, marked(lowerEdge))
	assert.True(t, marked(upperEdge))
	assert.False(t, marked(justAfter))
}

func newStoreBackedService(t *testing.T) (*service.EventsService, context.Context) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Event{}, &model.RSVP{}))

	rdb, _ := redismock.NewClientMock()
	log, err := logger.New("error")
	require.NoError(t, err)

	return service.NewEventsService(repo.NewRepository(db, rdb, log), log), context.Background()
}

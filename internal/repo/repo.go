package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tunetip/events-service/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrCounterUnderflow is returned when a decrement would drive rsvp_count
// below zero. That means the counter and the rsvp rows have diverged; it is
// surfaced, never clamped.
var ErrCounterUnderflow = errors.New("rsvp count would go negative")

const countCacheTTL = 5 * time.Minute

// Store restricts the repository surface (方便单元测试 mock)
type Store interface {
	DB(ctx context.Context) *gorm.DB

	GetEvent(ctx context.Context, id uint64) (*model.Event, error)
	CreateEvent(ctx context.Context, e *model.Event) error
	SaveEvent(ctx context.Context, e *model.Event) error
	DeleteEvent(ctx context.Context, e *model.Event) error
	EventsByArtist(ctx context.Context, artistID uint64, limit, offset int) ([]model.Event, int64, error)
	FeedEvents(ctx context.Context, artistIDs []uint64, after time.Time, limit, offset int) ([]model.Event, int64, error)

	GetRSVP(ctx context.Context, eventID, userID uint64) (*model.RSVP, error)
	ListRSVPs(ctx context.Context, eventID uint64, limit, offset int) ([]model.RSVP, int64, error)
	RSVPsWithReminder(ctx context.Context, eventID uint64) ([]model.RSVP, error)
	CreateRSVP(ctx context.Context, tx *gorm.DB, r *model.RSVP) error
	DeleteRSVP(ctx context.Context, tx *gorm.DB, id uint64) error
	IncrementRSVPCount(ctx context.Context, tx *gorm.DB, eventID uint64) error
	DecrementRSVPCount(ctx context.Context, tx *gorm.DB, eventID uint64) error

	EventsDueForReminder(ctx context.Context, from, to time.Time) ([]model.Event, error)
	MarkReminderSent(ctx context.Context, eventID uint64) error

	CacheRSVPCount(ctx context.Context, eventID uint64, count int64) error
	GetCachedRSVPCount(ctx context.Context, eventID uint64) (int64, error)
}

// Repository implements Store on gorm + redis.
type Repository struct {
	db  *gorm.DB
	rdb *redis.Client
	log *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// IsUniqueViolation reports whether err is a duplicate-key failure from the
// (event_id, user_id) index. Covers gorm's translated error plus the raw
// postgres and sqlite messages for drivers opened without TranslateError.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// GetEvent is a point read; returns gorm.ErrRecordNotFound when absent.
func (r *Repository) GetEvent(ctx context.Context, id uint64) (*model.Event, error) {
	var e model.Event
	if err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) CreateEvent(ctx context.Context, e *model.Event) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *Repository) SaveEvent(ctx context.Context, e *model.Event) error {
	return r.db.WithContext(ctx).Save(e).Error
}

// DeleteEvent removes the event and, via the FK cascade, its rsvp rows.
func (r *Repository) DeleteEvent(ctx context.Context, e *model.Event) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", e.ID).Delete(&model.RSVP{}).Error; err != nil {
			return err
		}
		return tx.Delete(e).Error
	})
}

// EventsByArtist pages an artist's events by start time.
func (r *Repository) EventsByArtist(ctx context.Context, artistID uint64, limit, offset int) ([]model.Event, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Event{}).Where("artist_id = ?", artistID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var events []model.Event
	err := q.Order("start_time asc").Limit(limit).Offset(offset).Find(&events).Error
	return events, total, err
}

// FeedEvents pages upcoming events by the given artists. Callers must
// short-circuit an empty artist set before reaching here.
func (r *Repository) FeedEvents(ctx context.Context, artistIDs []uint64, after time.Time, limit, offset int) ([]model.Event, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Event{}).
		Where("artist_id IN ? AND start_time > ?", artistIDs, after)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var events []model.Event
	err := q.Order("start_time asc").Limit(limit).Offset(offset).Find(&events).Error
	return events, total, err
}

// GetRSVP fetches the live row for one (event, user) pair.
func (r *Repository) GetRSVP(ctx context.Context, eventID, userID uint64) (*model.RSVP, error) {
	var rec model.RSVP
	if err := r.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRSVPs pages an event's rsvps by creation time ascending. The total is
// recomputed from live rows rather than read from rsvp_count, so drift in the
// maintained counter stays visible.
func (r *Repository) ListRSVPs(ctx context.Context, eventID uint64, limit, offset int) ([]model.RSVP, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.RSVP{}).Where("event_id = ?", eventID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []model.RSVP
	err := q.Order("created_at asc").Order("id asc").Limit(limit).Offset(offset).Find(&rows).Error
	return rows, total, err
}

// RSVPsWithReminder returns the attendees who opted in at join time.
func (r *Repository) RSVPsWithReminder(ctx context.Context, eventID uint64) ([]model.RSVP, error) {
	var rows []model.RSVP
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND reminder_enabled = ?", eventID, true).
		Order("created_at asc").
		Find(&rows).Error
	return rows, err
}

// CreateRSVP inserts inside the caller's transaction. A racing duplicate
// fails the unique index; callers map that through IsUniqueViolation.
// The insert selects its fields explicitly: gorm otherwise omits a false
// ReminderEnabled because the column carries a default, silently storing an
// opted-out attendee as opted in.
func (r *Repository) CreateRSVP(ctx context.Context, tx *gorm.DB, rec *model.RSVP) error {
	return tx.WithContext(ctx).
		Select("EventID", "UserID", "ReminderEnabled", "CreatedAt").
		Create(rec).Error
}

// DeleteRSVP removes one row inside the caller's transaction.
func (r *Repository) DeleteRSVP(ctx context.Context, tx *gorm.DB, id uint64) error {
	res := tx.WithContext(ctx).Delete(&model.RSVP{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncrementRSVPCount bumps the counter atomically; concurrent joins on the
// same event serialize on this row write.
func (r *Repository) IncrementRSVPCount(ctx context.Context, tx *gorm.DB, eventID uint64) error {
	res := tx.WithContext(ctx).Model(&model.Event{}).
		Where("id = ?", eventID).
		Update("rsvp_count", gorm.Expr("rsvp_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DecrementRSVPCount is guarded so the counter can never go negative; an
// underflow means the counter lost sync with the rsvp rows and is surfaced.
func (r *Repository) DecrementRSVPCount(ctx context.Context, tx *gorm.DB, eventID uint64) error {
	res := tx.WithContext(ctx).Model(&model.Event{}).
		Where("id = ? AND rsvp_count > 0", eventID).
		Update("rsvp_count", gorm.Expr("rsvp_count - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCounterUnderflow
	}
	return nil
}

// EventsDueForReminder is the window range read: events starting inside
// [from, to] that have not been reminded yet.
func (r *Repository) EventsDueForReminder(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("start_time >= ? AND start_time <= ? AND reminder_sent = ?", from, to, false).
		Order("start_time asc").
		Find(&events).Error
	return events, err
}

// MarkReminderSent flips the monotonic flag.
func (r *Repository) MarkReminderSent(ctx context.Context, eventID uint64) error {
	return r.db.WithContext(ctx).Model(&model.Event{}).
		Where("id = ?", eventID).
		Update("reminder_sent", true).Error
}

// CacheRSVPCount writes Redis.
func (r *Repository) CacheRSVPCount(ctx context.Context, eventID uint64, count int64) error {
	return r.rdb.Set(ctx, rsvpCountKey(eventID), count, countCacheTTL).Err()
}

// GetCachedRSVPCount reads Redis.
func (r *Repository) GetCachedRSVPCount(ctx context.Context, eventID uint64) (int64, error) {
	return r.rdb.Get(ctx, rsvpCountKey(eventID)).Int64()
}

func rsvpCountKey(eventID uint64) string { return fmt.Sprintf("rsvps:%d", eventID) }

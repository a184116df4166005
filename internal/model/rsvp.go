package model

import "time"

// RSVP is one fan's intent to attend one event. Rows are created by join and
// deleted by leave, never updated in place; ReminderEnabled is fixed at join
// time. The unique index on (event_id, user_id) is the store-level backstop
// against racing duplicate joins.
type RSVP struct {
	ID              uint64    `gorm:"primaryKey" json:"id"`
	EventID         uint64    `gorm:"not null;uniqueIndex:idx_event_user;index" json:"event_id"`
	UserID          uint64    `gorm:"not null;uniqueIndex:idx_event_user;index" json:"user_id"`
	ReminderEnabled bool      `gorm:"not null;default:true" json:"reminder_enabled"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`

	Event *Event `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (RSVP) TableName() string { return "event_rsvps" }

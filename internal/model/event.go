package model

import "time"

// Event types accepted by the API.
const (
	EventTypeLiveStream   = "live_stream"
	EventTypeConcert      = "concert"
	EventTypeMeetGreet    = "meet_greet"
	EventTypeAlbumRelease = "album_release"
)

// ValidEventType reports whether t is one of the known event types.
func ValidEventType(t string) bool {
	switch t {
	case EventTypeLiveStream, EventTypeConcert, EventTypeMeetGreet, EventTypeAlbumRelease:
		return true
	}
	return false
}

type Event struct {
	ID          uint64 `gorm:"primaryKey" json:"id"`
	ArtistID    uint64 `gorm:"not null;index:idx_artist_start" json:"artist_id"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text;not null" json:"description"`
	EventType   string `gorm:"size:32;not null" json:"event_type"`

	StartTime time.Time  `gorm:"not null;index:idx_artist_start" json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Venue     *string `gorm:"size:255" json:"venue,omitempty"`
	StreamURL *string `gorm:"size:500" json:"stream_url,omitempty"`
	TicketURL *string `gorm:"size:500" json:"ticket_url,omitempty"`
	IsVirtual bool    `gorm:"not null;default:false" json:"is_virtual"`

	// RSVPCount is maintained exclusively by the attendance ledger's
	// transactional increment/decrement; never assign it directly.
	RSVPCount int64 `gorm:"not null;default:0" json:"rsvp_count"`

	// ReminderSent flips false->true once, written only by the reminder
	// dispatcher's mark-sent step.
	ReminderSent bool `gorm:"not null;default:false" json:"reminder_sent"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Event) TableName() string { return "artist_events" }

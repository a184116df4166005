package service

import "errors"

// Closed set of outcomes the transport layer translates to HTTP statuses.
// Callers branch with errors.Is; anything outside this set is a 500.
var (
	// ErrEventNotFound means the event id does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrRSVPNotFound means no live rsvp row exists for the (event, user) pair.
	ErrRSVPNotFound = errors.New("rsvp not found")

	// ErrEventInPast rejects create/update/join/leave against an event whose
	// start time is not strictly in the future.
	ErrEventInPast = errors.New("event start time must be in the future")

	// ErrAlreadyJoined is the duplicate-join conflict, whether caught by the
	// pre-check or by the unique index during insert.
	ErrAlreadyJoined = errors.New("already rsvped to this event")

	// ErrNotOwner rejects mutation of another artist's event.
	ErrNotOwner = errors.New("event belongs to another artist")

	// ErrInvalidEventType rejects unknown event type strings.
	ErrInvalidEventType = errors.New("invalid event type")
)

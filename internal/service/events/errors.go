package events

import "errors"

var (
	ErrEventNotFound = errors.New("event not found")
	ErrForbidden     = errors.New("no permission for this event")
	ErrDateInPast    = errors.New("event date must be in the future")
)

package domain

import (
	"time"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Event lives in the inventory store (MongoDB). ID is the document
// ObjectID rendered as a hex string and is treated as opaque everywhere
// outside the mongo repository.
type Event struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Date             time.Time      `json:"date"`
	Location         string         `json:"location"`
	TotalTickets     int            `json:"total_tickets"`
	AvailableTickets int            `json:"available_tickets"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedBy        int64          `json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Booking lives in the booking store (PostgreSQL). EventID is a
// cross-store reference into the inventory store with no referential
// integrity; EventTitle is a snapshot taken at booking time so listings
// survive later event edits or deletion.
type Booking struct {
	ID          int64         `json:"id"`
	UserID      int64         `json:"user_id"`
	EventID     string        `json:"event_id"`
	EventTitle  string        `json:"event_title"`
	Status      BookingStatus `json:"status"`
	BookingDate time.Time     `json:"booking_date"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// BookingWithEvent pairs a booking row with the live event document when
// it is still reachable. Event is nil when the event no longer exists;
// callers fall back to the denormalized snapshot on the booking.
type BookingWithEvent struct {
	Booking Booking `json:"booking"`
	Event   *Event  `json:"event,omitempty"`
}

// EventUpdate holds the optional fields of an event update. A nil field
// is left untouched. Changing TotalTickets shifts availableTickets by
// the same delta, clamped at zero.
type EventUpdate struct {
	Title        *string
	Description  *string
	Date         *time.Time
	Location     *string
	TotalTickets *int
	Metadata     map[string]any
}

// EventFilter narrows and pages an event listing.
type EventFilter struct {
	Upcoming bool
	Search   string
	Page     int
	Limit    int
}

// Principal is the already-authenticated caller handed to us by the
// gateway. Token verification happens upstream.
type Principal struct {
	UserID int64
	Role   string
}

const (
	RoleAdmin     = "admin"
	RoleOrganizer = "organizer"
	RoleUser      = "user"
)

// AuditRecord is the fire-and-forget outcome record emitted once per
// saga decision and per event mutation. Delivery is best-effort and is
// never awaited for correctness.
type AuditRecord struct {
	Action    string         `json:"action"`
	Level     string         `json:"level"`
	UserID    int64          `json:"user_id,omitempty"`
	EventID   string         `json:"event_id,omitempty"`
	BookingID int64          `json:"booking_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	IP        string         `json:"ip,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	AuditLevelInfo    = "info"
	AuditLevelWarning = "warning"
	AuditLevelError   = "error"
)

package httpgin

import (
	"time"

	"github.com/avelychko/bookgo/internal/domain"
)

type BookTicketRequest struct {
	EventID string `json:"event_id" binding:"required"`
}

type CreateEventRequest struct {
	Title        string         `json:"title" binding:"required,max=200"`
	Description  string         `json:"description" binding:"required"`
	Date         string         `json:"date" binding:"required"`
	Location     string         `json:"location" binding:"required"`
	TotalTickets int            `json:"total_tickets" binding:"required,gte=1"`
	Metadata     map[string]any `json:"metadata"`
}

type UpdateEventRequest struct {
	Title        *string        `json:"title"`
	Description  *string        `json:"description"`
	Date         *string        `json:"date"`
	Location     *string        `json:"location"`
	TotalTickets *int           `json:"total_tickets"`
	Metadata     map[string]any `json:"metadata"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type BookTicketResponse struct {
	Booking domain.Booking `json:"booking"`
	Event   domain.Event   `json:"event"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

type ListEventsResponse struct {
	Events     []domain.Event `json:"events"`
	Pagination Pagination     `json:"pagination"`
}

type MyBookingsResponse struct {
	Results  int                       `json:"results"`
	Bookings []domain.BookingWithEvent `json:"bookings"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/avelychko/bookgo/internal/domain"
	redisrepo "github.com/avelychko/bookgo/internal/repository/redis"
	"github.com/avelychko/bookgo/internal/service"
	"github.com/avelychko/bookgo/internal/service/booking"
	"github.com/avelychko/bookgo/internal/service/events"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/events", handleListEvents(svcs))
	r.GET("/events/:id", handleGetEvent(svcs))

	// Event management
	ev := r.Group("/events", IdentityMiddleware())
	{
		ev.POST("", RequireRole(domain.RoleAdmin, domain.RoleOrganizer), handleCreateEvent(svcs))
		ev.PATCH("/:id", handleUpdateEvent(svcs))
		ev.DELETE("/:id", handleDeleteEvent(svcs))
	}

	// Bookings
	bk := r.Group("/bookings", IdentityMiddleware())
	{
		bk.POST("", handleBookTicket(svcs, idem))
		bk.GET("/my-bookings", handleMyBookings(svcs))
		bk.PATCH("/:id/cancel", handleCancelBooking(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List events
// @Param    page     query  int     false "page number"
// @Param    limit    query  int     false "page size"
// @Param    upcoming query  bool    false "only future events"
// @Param    search   query  string  false "title search"
// @Success  200  {object}  ListEventsResponse
// @Router   /events [get]
func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := domain.EventFilter{
			Page:     parseIntDefault(c.Query("page"), 1),
			Limit:    parseIntDefault(c.Query("limit"), 10),
			Upcoming: c.Query("upcoming") == "true",
			Search:   c.Query("search"),
		}
		if f.Page <= 0 {
			f.Page = 1
		}
		if f.Limit <= 0 {
			f.Limit = 10
		}

		items, total, err := svcs.Events.List(c.Request.Context(), f)
		if err != nil {
			respondErr(c, err)
			return
		}

		pages := total / int64(f.Limit)
		if total%int64(f.Limit) != 0 {
			pages++
		}

		resp := ListEventsResponse{
			Events: items,
			Pagination: Pagination{
				Page:  f.Page,
				Limit: f.Limit,
				Total: total,
				Pages: pages,
			},
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, resp, "public, max-age=15", true)
	}
}

// @Summary  Get event
// @Param    id  path  string  true  "Event ID"
// @Success  200  {object}  domain.Event
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := svcs.Events.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, e, "public, max-age=60", true)
	}
}

// @Summary  Create event
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} domain.Event
// @Failure  400 {object} ErrorResponse
// @Router   /events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing identity"})
			return
		}

		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		date, err := parseRFC3339(req.Date)
		if err != nil {
			badRequest(c, "invalid date (RFC3339)")
			return
		}

		e, err := svcs.Events.Create(c.Request.Context(), p, domain.Event{
			Title:        req.Title,
			Description:  req.Description,
			Date:         date,
			Location:     req.Location,
			TotalTickets: req.TotalTickets,
			Metadata:     req.Metadata,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, e)
	}
}

// @Summary  Update event
// @Param    id  path  string  true  "Event ID"
// @Param    req body  UpdateEventRequest true "payload"
// @Success  200 {object} domain.Event
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id} [patch]
func handleUpdateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing identity"})
			return
		}

		var req UpdateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		f := domain.EventUpdate{
			Title:        req.Title,
			Description:  req.Description,
			Location:     req.Location,
			TotalTickets: req.TotalTickets,
			Metadata:     req.Metadata,
		}
		if req.Date != nil {
			date, err := parseRFC3339(*req.Date)
			if err != nil {
				badRequest(c, "invalid date (RFC3339)")
				return
			}
			f.Date = &date
		}

		e, err := svcs.Events.Update(c.Request.Context(), p, c.Param("id"), f)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, e)
	}
}

// @Summary  Delete event
// @Param    id  path  string  true  "Event ID"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id} [delete]
func handleDeleteEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing identity"})
			return
		}

		if err := svcs.Events.Delete(c.Request.Context(), p, c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// @Summary  Book a ticket (idempotent)
// @Param    req body  BookTicketRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} BookTicketResponse
// @Failure  400 {object} ErrorResponse "sold out / expired / duplicate"
// @Failure  404 {object} ErrorResponse "event not found"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /bookings [post]
func handleBookTicket(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing identity"})
			return
		}

		var req BookTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(p.UserID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		rlKey := "ip:" + c.ClientIP()

		b, ev, err := svcs.Booking.BookTicket(
			c.Request.Context(),
			p.UserID,
			req.EventID,
			rlKey,
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := BookTicketResponse{Booking: *b, Event: *ev}

		if idemStorageKey != "" && idem != nil {
			jb, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(jb))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  List the caller's bookings
// @Success  200 {object} MyBookingsResponse
// @Router   /bookings/my-bookings [get]
func handleMyBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing identity"})
			return
		}

		items, err := svcs.Booking.ListMyBookings(c.Request.Context(), p.UserID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, MyBookingsResponse{
			Results:  len(items),
			Bookings: items,
		})
	}
}

// @Summary  Cancel a booking
// @Param    id  path  int  true  "Booking ID"
// @Success  200 {object} domain.Booking
// @Failure  400 {object} ErrorResponse "already cancelled"
// @Failure  404 {object} ErrorResponse "booking or event not found"
// @Router   /bookings/{id}/cancel [patch]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing identity"})
			return
		}

		bookingID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		b, err := svcs.Booking.CancelBooking(c.Request.Context(), p.UserID, bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, b)
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// booking service
	case errors.Is(err, booking.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
		return
	case errors.Is(err, booking.ErrAssociatedEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "associated event not found"})
		return
	case errors.Is(err, booking.ErrSoldOut):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no tickets available for this event"})
		return
	case errors.Is(err, booking.ErrEventExpired):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "this event has already passed"})
		return
	case errors.Is(err, booking.ErrDuplicateBooking):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "you have already booked a ticket for this event"})
		return
	case errors.Is(err, booking.ErrAlreadyCancelled):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "booking is already cancelled"})
		return
	case errors.Is(err, booking.ErrRateLimited):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
		return
	// events service
	case errors.Is(err, events.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, events.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "no permission for this event"})
		return
	case errors.Is(err, events.ErrDateInPast):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "event date must be in the future"})
		return
	}

	// Infrastructure failures surface as a generic 500 without leaking
	// internals; details are already logged by the service layer.
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

package httpgin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/avelychko/bookgo/internal/domain"
	"github.com/avelychko/bookgo/internal/repository"
	"github.com/avelychko/bookgo/internal/service"
	"github.com/avelychko/bookgo/internal/service/booking"
	"github.com/avelychko/bookgo/internal/service/events"
	"github.com/avelychko/bookgo/internal/uow"
)

type memInventory struct {
	events map[string]*domain.Event
}

func (m *memInventory) TryReserve(ctx context.Context, eventID string) (*domain.Event, error) {
	e, ok := m.events[eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !e.Date.After(time.Now()) {
		return nil, repository.ErrEventExpired
	}
	if e.AvailableTickets <= 0 {
		return nil, repository.ErrSoldOut
	}
	e.AvailableTickets--
	cp := *e
	return &cp, nil
}

func (m *memInventory) Release(ctx context.Context, eventID string) (*domain.Event, error) {
	e, ok := m.events[eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e.AvailableTickets++
	cp := *e
	return &cp, nil
}

func (m *memInventory) Revoke(ctx context.Context, eventID string) error {
	e, ok := m.events[eventID]
	if !ok {
		return repository.ErrNotFound
	}
	e.AvailableTickets--
	return nil
}

func (m *memInventory) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	e, ok := m.events[eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memInventory) Create(ctx context.Context, e *domain.Event) (*domain.Event, error) {
	cp := *e
	cp.ID = fmt.Sprintf("ev-%d", len(m.events)+1)
	cp.AvailableTickets = cp.TotalTickets
	m.events[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memInventory) Update(ctx context.Context, eventID string, u domain.EventUpdate) (*domain.Event, error) {
	e, ok := m.events[eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if u.Title != nil {
		e.Title = *u.Title
	}
	cp := *e
	return &cp, nil
}

func (m *memInventory) Delete(ctx context.Context, eventID string) error {
	if _, ok := m.events[eventID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.events, eventID)
	return nil
}

func (m *memInventory) List(ctx context.Context, f domain.EventFilter) ([]domain.Event, int64, error) {
	var out []domain.Event
	for _, e := range m.events {
		out = append(out, *e)
	}
	return out, int64(len(out)), nil
}

type memBookings struct {
	rows   []domain.Booking
	nextID int64
}

func (m *memBookings) InTx(
	ctx context.Context,
	fn func(ctx context.Context, tx booking.BookingTx, after func(uow.AfterCommit)) error,
) error {
	staged := make([]domain.Booking, len(m.rows))
	copy(staged, m.rows)

	tx := &memTx{rows: staged, nextID: m.nextID}

	var hooks []uow.AfterCommit
	if err := fn(ctx, tx, func(h uow.AfterCommit) { hooks = append(hooks, h) }); err != nil {
		return err
	}

	m.rows = tx.rows
	m.nextID = tx.nextID
	for _, h := range hooks {
		h(ctx)
	}
	return nil
}

func (m *memBookings) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memTx struct {
	rows   []domain.Booking
	nextID int64
}

func (t *memTx) FindConfirmed(ctx context.Context, userID int64, eventID string) (*domain.Booking, error) {
	for i := range t.rows {
		r := t.rows[i]
		if r.UserID == userID && r.EventID == eventID && r.Status == domain.BookingConfirmed {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *memTx) InsertConfirmed(ctx context.Context, b *domain.Booking) error {
	b.ID = t.nextID
	t.nextID++
	b.Status = domain.BookingConfirmed
	b.BookingDate = time.Now()
	t.rows = append(t.rows, *b)
	return nil
}

func (t *memTx) FindOwned(ctx context.Context, bookingID, userID int64) (*domain.Booking, error) {
	for i := range t.rows {
		r := t.rows[i]
		if r.ID == bookingID && r.UserID == userID {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *memTx) UpdateStatus(ctx context.Context, bookingID int64, status domain.BookingStatus) error {
	for i := range t.rows {
		if t.rows[i].ID == bookingID {
			t.rows[i].Status = status
			return nil
		}
	}
	return repository.ErrNotFound
}

type nopAuditor struct{}

func (nopAuditor) Record(ctx context.Context, rec domain.AuditRecord) {}

func testRouter(inv *memInventory, bookings *memBookings) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.DiscardHandler)

	svcs := &service.Services{
		Booking: booking.New(inv, bookings, nopAuditor{}, nil, nil, nil, logger, booking.Config{}),
		Events:  events.New(inv, nil, nil, nopAuditor{}, logger, events.Config{}),
	}

	return NewRouter(svcs, nil, logger)
}

func seedInventory() *memInventory {
	return &memInventory{events: map[string]*domain.Event{
		"ev-1": {
			ID:               "ev-1",
			Title:            "Go Conference",
			Date:             time.Now().Add(24 * time.Hour),
			TotalTickets:     100,
			AvailableTickets: 2,
			CreatedBy:        1,
		},
	}}
}

func doJSON(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func asUser(id string) map[string]string {
	return map[string]string{"X-User-ID": id}
}

func TestRouter_Bookings(t *testing.T) {
	t.Run("books a ticket", func(t *testing.T) {
		inv := seedInventory()
		r := testRouter(inv, &memBookings{nextID: 1})

		w := doJSON(r, http.MethodPost, "/bookings", `{"event_id":"ev-1"}`, asUser("42"))
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}

		var resp BookTicketResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response: %v", err)
		}
		if resp.Booking.UserID != 42 || resp.Booking.EventID != "ev-1" {
			t.Fatalf("unexpected booking %+v", resp.Booking)
		}
		if resp.Event.AvailableTickets != 1 {
			t.Fatalf("expected 1 ticket left in snapshot, got %d", resp.Event.AvailableTickets)
		}
	})

	t.Run("requires identity", func(t *testing.T) {
		r := testRouter(seedInventory(), &memBookings{nextID: 1})

		w := doJSON(r, http.MethodPost, "/bookings", `{"event_id":"ev-1"}`, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("unknown event maps to 404", func(t *testing.T) {
		r := testRouter(seedInventory(), &memBookings{nextID: 1})

		w := doJSON(r, http.MethodPost, "/bookings", `{"event_id":"missing"}`, asUser("42"))
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})

	t.Run("sold out maps to 400", func(t *testing.T) {
		inv := seedInventory()
		inv.events["ev-1"].AvailableTickets = 0
		r := testRouter(inv, &memBookings{nextID: 1})

		w := doJSON(r, http.MethodPost, "/bookings", `{"event_id":"ev-1"}`, asUser("42"))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("duplicate maps to 400", func(t *testing.T) {
		r := testRouter(seedInventory(), &memBookings{nextID: 1})

		if w := doJSON(r, http.MethodPost, "/bookings", `{"event_id":"ev-1"}`, asUser("42")); w.Code != http.StatusCreated {
			t.Fatalf("setup booking failed: %d", w.Code)
		}
		w := doJSON(r, http.MethodPost, "/bookings", `{"event_id":"ev-1"}`, asUser("42"))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("cancel returns the ticket", func(t *testing.T) {
		inv := seedInventory()
		r := testRouter(inv, &memBookings{nextID: 1})

		if w := doJSON(r, http.MethodPost, "/bookings", `{"event_id":"ev-1"}`, asUser("42")); w.Code != http.StatusCreated {
			t.Fatalf("setup booking failed: %d", w.Code)
		}

		w := doJSON(r, http.MethodPatch, "/bookings/1/cancel", "", asUser("42"))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if got := inv.events["ev-1"].AvailableTickets; got != 2 {
			t.Fatalf("expected ticket returned, got %d available", got)
		}

		// second cancel is rejected
		w = doJSON(r, http.MethodPatch, "/bookings/1/cancel", "", asUser("42"))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 on double cancel, got %d", w.Code)
		}
	})

	t.Run("lists own bookings", func(t *testing.T) {
		r := testRouter(seedInventory(), &memBookings{nextID: 1})

		if w := doJSON(r, http.MethodPost, "/bookings", `{"event_id":"ev-1"}`, asUser("42")); w.Code != http.StatusCreated {
			t.Fatalf("setup booking failed: %d", w.Code)
		}

		w := doJSON(r, http.MethodGet, "/bookings/my-bookings", "", asUser("42"))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}

		var resp MyBookingsResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response: %v", err)
		}
		if resp.Results != 1 {
			t.Fatalf("expected 1 booking, got %d", resp.Results)
		}
	})
}

func TestRouter_Events(t *testing.T) {
	t.Run("get event sets an ETag", func(t *testing.T) {
		r := testRouter(seedInventory(), &memBookings{nextID: 1})

		w := doJSON(r, http.MethodGet, "/events/ev-1", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}

		etag := w.Header().Get("ETag")
		if etag == "" {
			t.Fatalf("expected an ETag header")
		}

		w = doJSON(r, http.MethodGet, "/events/ev-1", "", map[string]string{"If-None-Match": etag})
		if w.Code != http.StatusNotModified {
			t.Fatalf("expected 304, got %d", w.Code)
		}
	})

	t.Run("unknown event maps to 404", func(t *testing.T) {
		r := testRouter(seedInventory(), &memBookings{nextID: 1})

		w := doJSON(r, http.MethodGet, "/events/missing", "", nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})

	t.Run("plain users cannot create events", func(t *testing.T) {
		r := testRouter(seedInventory(), &memBookings{nextID: 1})

		body := `{"title":"x","description":"y","date":"2030-01-01T10:00:00Z","location":"z","total_tickets":10}`
		w := doJSON(r, http.MethodPost, "/events", body, asUser("42"))
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})

	t.Run("organizers create events", func(t *testing.T) {
		r := testRouter(seedInventory(), &memBookings{nextID: 1})

		body := `{"title":"x","description":"y","date":"2030-01-01T10:00:00Z","location":"z","total_tickets":10}`
		w := doJSON(r, http.MethodPost, "/events", body, map[string]string{
			"X-User-ID":   "7",
			"X-User-Role": domain.RoleOrganizer,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}

		var e domain.Event
		if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
			t.Fatalf("invalid response: %v", err)
		}
		if e.CreatedBy != 7 || e.AvailableTickets != 10 {
			t.Fatalf("unexpected event %+v", e)
		}
	})

	t.Run("non-creator cannot update", func(t *testing.T) {
		r := testRouter(seedInventory(), &memBookings{nextID: 1})

		w := doJSON(r, http.MethodPatch, "/events/ev-1", `{"title":"new"}`, map[string]string{
			"X-User-ID":   "99",
			"X-User-Role": domain.RoleOrganizer,
		})
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})

	t.Run("health", func(t *testing.T) {
		r := testRouter(seedInventory(), &memBookings{nextID: 1})

		w := doJSON(r, http.MethodGet, "/healthz", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})
}

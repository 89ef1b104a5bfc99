package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelychko/bookgo/internal/domain"
	"github.com/avelychko/bookgo/internal/repository"
	redisrepo "github.com/avelychko/bookgo/internal/repository/redis"
)

// Inventory is the event side of the inventory-store adapter.
type Inventory interface {
	Get(ctx context.Context, eventID string) (*domain.Event, error)
	Create(ctx context.Context, e *domain.Event) (*domain.Event, error)
	Update(ctx context.Context, eventID string, f domain.EventUpdate) (*domain.Event, error)
	Delete(ctx context.Context, eventID string) error
	List(ctx context.Context, f domain.EventFilter) ([]domain.Event, int64, error)
}

// Auditor receives one record per event mutation, best-effort.
type Auditor interface {
	Record(ctx context.Context, rec domain.AuditRecord)
}

type Config struct {
	EventSummaryTTL time.Duration
	DefaultPageSize int
	MaxPageSize     int
}

// Service owns event CRUD around the ticket counters. Counter changes
// here are admin-driven capacity adjustments; booking-driven changes go
// through the saga coordinator only.
type Service struct {
	inv    Inventory
	cache  *redisrepo.Cache
	pubsub *redisrepo.EventsPubSub
	audit  Auditor
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

func New(
	inv Inventory,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	audit Auditor,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.EventSummaryTTL <= 0 {
		cfg.EventSummaryTTL = 60 * time.Second
	}

	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 10
	}

	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}

	return &Service{
		inv:    inv,
		cache:  cache,
		pubsub: pubsub,
		audit:  audit,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Create inserts a new event with its full ticket allotment available.
//
// Returns:
//   - error: events.ErrDateInPast when the event date is not in the future.
func (s *Service) Create(ctx context.Context, p domain.Principal, e domain.Event) (*domain.Event, error) {
	const op = "service.events.Create"

	if !e.Date.After(s.now()) {
		return nil, fmt.Errorf("%s:%w", op, ErrDateInPast)
	}

	e.CreatedBy = p.UserID

	created, err := s.inv.Create(ctx, &e)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.audit.Record(ctx, domain.AuditRecord{
		Action:  "EVENT_CREATED",
		Level:   domain.AuditLevelInfo,
		UserID:  p.UserID,
		EventID: created.ID,
		Details: map[string]any{"event_title": created.Title},
	})

	return created, nil
}

// Get retrieves an event by ID through the read cache.
//
// Returns:
//   - error: events.ErrEventNotFound if the event is not found.
func (s *Service) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	const op = "service.events.Get"

	if s.cache == nil {
		e, err := s.inv.Get(ctx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
			}

			return nil, fmt.Errorf("%s:%w", op, err)
		}

		return e, nil
	}

	key := redisrepo.KeyEventSummary(eventID)

	event, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.EventSummaryTTL,
		func(ctx context.Context) (domain.Event, error) {
			e, err := s.inv.Get(ctx, eventID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Event{}, ErrEventNotFound
				}

				return domain.Event{}, err
			}

			return *e, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &event, nil
}

// List returns a page of events plus the total matching the filter.
func (s *Service) List(ctx context.Context, f domain.EventFilter) ([]domain.Event, int64, error) {
	const op = "service.events.List"

	if f.Limit <= 0 {
		f.Limit = s.cfg.DefaultPageSize
	}

	if f.Limit > s.cfg.MaxPageSize {
		f.Limit = s.cfg.MaxPageSize
	}

	items, total, err := s.inv.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("%s:%w", op, err)
	}

	return items, total, nil
}

// Update applies the given changes if the caller created the event or
// is an admin. A totalTickets change shifts availableTickets by the
// same delta, clamped at zero.
//
// Returns:
//   - error: events.ErrEventNotFound if the event is not found.
//   - error: events.ErrForbidden if the caller may not touch this event.
func (s *Service) Update(
	ctx context.Context,
	p domain.Principal,
	eventID string,
	f domain.EventUpdate,
) (*domain.Event, error) {
	const op = "service.events.Update"

	if err := s.authorize(ctx, p, eventID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	updated, err := s.inv.Update(ctx, eventID, f)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.invalidate(ctx, eventID)
	s.audit.Record(ctx, domain.AuditRecord{
		Action:  "EVENT_UPDATED",
		Level:   domain.AuditLevelInfo,
		UserID:  p.UserID,
		EventID: eventID,
		Details: map[string]any{"event_title": updated.Title},
	})

	return updated, nil
}

// Delete removes the event. Existing bookings keep their denormalized
// snapshot; the cross-store reference is not enforced.
//
// Returns:
//   - error: events.ErrEventNotFound if the event is not found.
//   - error: events.ErrForbidden if the caller may not touch this event.
func (s *Service) Delete(ctx context.Context, p domain.Principal, eventID string) error {
	const op = "service.events.Delete"

	if err := s.authorize(ctx, p, eventID); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := s.inv.Delete(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return fmt.Errorf("%s:%w", op, err)
	}

	s.invalidate(ctx, eventID)
	s.audit.Record(ctx, domain.AuditRecord{
		Action:  "EVENT_DELETED",
		Level:   domain.AuditLevelInfo,
		UserID:  p.UserID,
		EventID: eventID,
	})

	return nil
}

func (s *Service) authorize(ctx context.Context, p domain.Principal, eventID string) error {
	e, err := s.inv.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}

		return err
	}

	if e.CreatedBy != p.UserID && p.Role != domain.RoleAdmin {
		return ErrForbidden
	}

	return nil
}

func (s *Service) invalidate(ctx context.Context, eventID string) {
	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, eventID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishEventChanged(ctx, eventID)
	}
}

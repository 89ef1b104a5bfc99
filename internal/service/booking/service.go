package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelychko/bookgo/internal/domain"
	"github.com/avelychko/bookgo/internal/repository"
	redisrepo "github.com/avelychko/bookgo/internal/repository/redis"
	"github.com/avelychko/bookgo/internal/uow"
)

// Inventory is the inventory-store adapter. All operations are
// single-document atomic.
type Inventory interface {
	TryReserve(ctx context.Context, eventID string) (*domain.Event, error)
	Release(ctx context.Context, eventID string) (*domain.Event, error)
	Revoke(ctx context.Context, eventID string) error
	Get(ctx context.Context, eventID string) (*domain.Event, error)
}

// BookingTx is the booking-store surface available inside one
// transaction.
type BookingTx interface {
	FindConfirmed(ctx context.Context, userID int64, eventID string) (*domain.Booking, error)
	InsertConfirmed(ctx context.Context, b *domain.Booking) error
	FindOwned(ctx context.Context, bookingID, userID int64) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, bookingID int64, status domain.BookingStatus) error
}

// Bookings is the booking-store adapter. InTx opens a transaction per
// request; hooks registered via after run only once the commit is
// durable.
type Bookings interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx BookingTx, after func(uow.AfterCommit)) error) error
	ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error)
}

// Auditor receives one record per saga outcome, best-effort.
type Auditor interface {
	Record(ctx context.Context, rec domain.AuditRecord)
}

type Config struct {
	// StoreTimeout bounds every individual store operation so no saga
	// step can suspend indefinitely.
	StoreTimeout time.Duration
}

// Service coordinates the cross-store booking saga. It owns the
// invariant "decremented inventory iff a confirmed booking row exists";
// each store only owns its local row-level invariants.
type Service struct {
	inv      Inventory
	bookings Bookings
	audit    Auditor
	cache    *redisrepo.Cache
	pubsub   *redisrepo.EventsPubSub
	limiter  *redisrepo.SlidingWindowLimiter
	logger   *slog.Logger
	cfg      Config
}

func New(
	inv Inventory,
	bookings Bookings,
	audit Auditor,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}

	return &Service{
		inv:      inv,
		bookings: bookings,
		audit:    audit,
		cache:    cache,
		pubsub:   pubsub,
		limiter:  limiter,
		logger:   logger,
		cfg:      cfg,
	}
}

// BookTicket reserves one ticket for the event and records a confirmed
// booking, or leaves both stores unchanged. The inventory decrement is
// the single conditional atomic write that resolves last-ticket races;
// everything after it is covered by the compensation ledger until both
// stores are durable.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: ID of the already-authenticated caller.
//   - eventID: opaque inventory-store identifier of the event.
//   - rlKey: rate-limiter key, usually derived from the client IP; empty
//     disables limiting for this call.
//
// Returns:
//   - *domain.Booking: the confirmed booking.
//   - *domain.Event: the event snapshot right after the reservation.
//   - error: booking.ErrEventNotFound, booking.ErrEventExpired,
//     booking.ErrSoldOut, booking.ErrDuplicateBooking,
//     booking.ErrRateLimited, or an infrastructure error.
func (s *Service) BookTicket(
	ctx context.Context,
	userID int64,
	eventID string,
	rlKey string,
) (*domain.Booking, *domain.Event, error) {
	const op = "service.booking.BookTicket"

	if s.limiter != nil && rlKey != "" {
		ok, _, _, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, nil, fmt.Errorf("%s:%w", op, ErrRateLimited)
		}
	}

	// Step 1: conditional atomic decrement. Nothing is mutated unless
	// this matches, so failures here need no compensation.
	rctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	ev, err := s.inv.TryReserve(rctx, eventID)
	cancel()
	if err != nil {
		rerr := translateReserveErr(err)
		if isDomainRejection(rerr) {
			s.auditReject(ctx, "TICKET_BOOKING_REJECTED", userID, eventID, 0, rerr)
		} else {
			s.logger.Error("reservation failed", "user_id", userID, "event_id", eventID, "error", rerr)
			s.audit.Record(ctx, domain.AuditRecord{
				Action:  "TICKET_BOOKING_FAILED",
				Level:   domain.AuditLevelError,
				UserID:  userID,
				EventID: eventID,
				Details: map[string]any{"error": rerr.Error()},
			})
		}
		return nil, nil, fmt.Errorf("%s:%w", op, rerr)
	}

	// Inventory is now decremented. From here on the saga runs to a
	// decided outcome even if the caller disconnects.
	sctx := context.WithoutCancel(ctx)

	led := newLedger(s.logger)
	led.add("release ticket", eventID, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
		defer cancel()
		_, err := s.inv.Release(rctx, eventID)
		return err
	})

	booking := domain.Booking{
		UserID:     userID,
		EventID:    eventID,
		EventTitle: ev.Title,
	}

	txCtx, cancelTx := context.WithTimeout(sctx, s.cfg.StoreTimeout)
	defer cancelTx()

	err = s.bookings.InTx(txCtx, func(ctx context.Context, tx BookingTx, after func(uow.AfterCommit)) error {
		_, err := tx.FindConfirmed(ctx, userID, eventID)
		if err == nil {
			return ErrDuplicateBooking
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if err := tx.InsertConfirmed(ctx, &booking); err != nil {
			// Unique-index backstop for two first-time bookings racing
			// past the read above.
			if errors.Is(err, repository.ErrConflict) {
				return ErrDuplicateBooking
			}
			return err
		}

		after(func(ctx context.Context) {
			s.invalidateEvent(ctx, eventID)
			s.audit.Record(ctx, domain.AuditRecord{
				Action:    "TICKET_BOOKED",
				Level:     domain.AuditLevelInfo,
				UserID:    userID,
				EventID:   eventID,
				BookingID: booking.ID,
				Details:   map[string]any{"event_title": ev.Title},
			})
		})

		return nil
	})
	if err != nil {
		// Undo the decrement before reporting anything.
		led.run(sctx, err)

		if errors.Is(err, ErrDuplicateBooking) {
			s.auditReject(sctx, "TICKET_BOOKING_REJECTED", userID, eventID, 0, ErrDuplicateBooking)
			return nil, nil, fmt.Errorf("%s:%w", op, ErrDuplicateBooking)
		}

		s.logger.Error("booking saga failed", "user_id", userID, "event_id", eventID, "error", err)
		s.audit.Record(sctx, domain.AuditRecord{
			Action:  "TICKET_BOOKING_FAILED",
			Level:   domain.AuditLevelError,
			UserID:  userID,
			EventID: eventID,
			Details: map[string]any{"error": err.Error()},
		})
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	// Both stores are durable; the inverse must never run now.
	led.clear()

	return &booking, ev, nil
}

// CancelBooking transitions a confirmed booking owned by the caller to
// cancelled and returns its ticket to inventory, atomically across
// stores, or makes no change.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: ID of the already-authenticated caller.
//   - bookingID: booking-store identifier of the booking to cancel.
//
// Returns:
//   - *domain.Booking: the booking after the transition.
//   - error: booking.ErrBookingNotFound, booking.ErrAlreadyCancelled,
//     booking.ErrAssociatedEventNotFound, or an infrastructure error.
func (s *Service) CancelBooking(
	ctx context.Context,
	userID int64,
	bookingID int64,
) (*domain.Booking, error) {
	const op = "service.booking.CancelBooking"

	// A cancellation that started is carried to a decided outcome; the
	// caller's disconnect must not strand a half-returned ticket.
	sctx := context.WithoutCancel(ctx)

	led := newLedger(s.logger)

	var cancelled domain.Booking

	txCtx, cancelTx := context.WithTimeout(sctx, s.cfg.StoreTimeout)
	defer cancelTx()

	err := s.bookings.InTx(txCtx, func(ctx context.Context, tx BookingTx, after func(uow.AfterCommit)) error {
		b, err := tx.FindOwned(ctx, bookingID, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		if b.Status == domain.BookingCancelled {
			return ErrAlreadyCancelled
		}

		if err := tx.UpdateStatus(ctx, b.ID, domain.BookingCancelled); err != nil {
			return err
		}

		// Return the ticket before committing the row. If the event is
		// gone the transaction rolls back and the booking stays
		// confirmed rather than silently losing the ticket.
		rctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
		_, err = s.inv.Release(rctx, b.EventID)
		cancel()
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrAssociatedEventNotFound
			}
			return err
		}

		led.add("revoke released ticket", b.EventID, func(ctx context.Context) error {
			rctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
			defer cancel()
			return s.inv.Revoke(rctx, b.EventID)
		})

		cancelled = *b
		cancelled.Status = domain.BookingCancelled

		after(func(ctx context.Context) {
			s.invalidateEvent(ctx, b.EventID)
			s.audit.Record(ctx, domain.AuditRecord{
				Action:    "BOOKING_CANCELLED",
				Level:     domain.AuditLevelInfo,
				UserID:    userID,
				EventID:   b.EventID,
				BookingID: b.ID,
			})
		})

		return nil
	})
	if err != nil {
		// The increment may already be applied; undo it before
		// reporting.
		led.run(sctx, err)

		switch {
		case errors.Is(err, ErrBookingNotFound),
			errors.Is(err, ErrAlreadyCancelled),
			errors.Is(err, ErrAssociatedEventNotFound):
			s.auditReject(sctx, "BOOKING_CANCELLATION_REJECTED", userID, "", bookingID, err)
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		s.logger.Error("cancellation saga failed", "user_id", userID, "booking_id", bookingID, "error", err)
		s.audit.Record(sctx, domain.AuditRecord{
			Action:    "BOOKING_CANCELLATION_FAILED",
			Level:     domain.AuditLevelError,
			UserID:    userID,
			BookingID: bookingID,
			Details:   map[string]any{"error": err.Error()},
		})
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	led.clear()

	return &cancelled, nil
}

// ListMyBookings returns all bookings of the caller, enriched with the
// live event document where it still exists. Enrichment is best-effort;
// a missing or unreachable event falls back to the snapshot stored on
// the booking row.
func (s *Service) ListMyBookings(ctx context.Context, userID int64) ([]domain.BookingWithEvent, error) {
	const op = "service.booking.ListMyBookings"

	rows, err := s.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	out := make([]domain.BookingWithEvent, 0, len(rows))
	for _, b := range rows {
		item := domain.BookingWithEvent{Booking: b}

		gctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
		ev, err := s.inv.Get(gctx, b.EventID)
		cancel()
		if err == nil {
			item.Event = ev
		}

		out = append(out, item)
	}

	return out, nil
}

func (s *Service) invalidateEvent(ctx context.Context, eventID string) {
	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, eventID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishEventChanged(ctx, eventID)
	}
}

func (s *Service) auditReject(ctx context.Context, action string, userID int64, eventID string, bookingID int64, rerr error) {
	s.logger.Warn("saga rejected",
		"action", action,
		"user_id", userID,
		"event_id", eventID,
		"booking_id", bookingID,
		"reason", rerr,
	)
	s.audit.Record(ctx, domain.AuditRecord{
		Action:    action,
		Level:     domain.AuditLevelWarning,
		UserID:    userID,
		EventID:   eventID,
		BookingID: bookingID,
		Details:   map[string]any{"reason": rerr.Error()},
	})
}

func isDomainRejection(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrEventExpired) ||
		errors.Is(err, ErrSoldOut) ||
		errors.Is(err, ErrDuplicateBooking) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrAssociatedEventNotFound)
}

func translateReserveErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrEventNotFound
	case errors.Is(err, repository.ErrEventExpired):
		return ErrEventExpired
	case errors.Is(err, repository.ErrSoldOut):
		return ErrSoldOut
	default:
		return err
	}
}

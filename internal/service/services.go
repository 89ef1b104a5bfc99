package service

import (
	"context"
	"log/slog"

	"github.com/avelychko/bookgo/internal/domain"
	mongorepo "github.com/avelychko/bookgo/internal/repository/mongo"
	postgresrepo "github.com/avelychko/bookgo/internal/repository/postgres"
	redisrepo "github.com/avelychko/bookgo/internal/repository/redis"
	"github.com/avelychko/bookgo/internal/service/booking"
	"github.com/avelychko/bookgo/internal/service/events"
	"github.com/avelychko/bookgo/internal/uow"
)

type Services struct {
	Booking *booking.Service
	Events  *events.Service
}

type Config struct {
	Booking booking.Config
	Events  events.Config
}

func NewServices(
	store *postgresrepo.Store,
	inv *mongorepo.EventRepo,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	auditor booking.Auditor,
	logger *slog.Logger,
	cfg Config,
) *Services {
	bookings := &pgBookings{
		store: store,
		uow:   uow.NewUoW(store),
	}

	return &Services{
		Booking: booking.New(inv, bookings, auditor, cache, pubsub, limiter, logger, cfg.Booking),
		Events:  events.New(inv, cache, pubsub, auditor, logger, cfg.Events),
	}
}

// pgBookings adapts the postgres store and unit of work to the
// booking-store surface the saga coordinator works against.
type pgBookings struct {
	store *postgresrepo.Store
	uow   *uow.UoW
}

func (p *pgBookings) InTx(
	ctx context.Context,
	fn func(ctx context.Context, tx booking.BookingTx, after func(uow.AfterCommit)) error,
) error {
	return p.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		return fn(ctx, p.store.Bookings().With(tx), after)
	})
}

func (p *pgBookings) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	return p.store.Bookings().ListByUser(ctx, userID)
}

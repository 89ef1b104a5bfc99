package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avelychko/bookgo/internal/audit"
	"github.com/avelychko/bookgo/internal/config"
	"github.com/avelychko/bookgo/internal/mongodb"
	"github.com/avelychko/bookgo/internal/postgres"
	"github.com/avelychko/bookgo/internal/rabbitmq"
	redisx "github.com/avelychko/bookgo/internal/redis"
	mongorepo "github.com/avelychko/bookgo/internal/repository/mongo"
	postgresrepo "github.com/avelychko/bookgo/internal/repository/postgres"
	redisrepo "github.com/avelychko/bookgo/internal/repository/redis"
	"github.com/avelychko/bookgo/internal/service"
	"github.com/avelychko/bookgo/internal/service/booking"
	httpgin "github.com/avelychko/bookgo/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	consumer   *audit.Consumer
	publisher  *audit.Publisher
	cache      *redisrepo.Cache
	pubsub     *redisrepo.EventsPubSub
	closers    []func()
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	mongoClient, err := mongodb.New(context.Background(), mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mongodb: %w", err)
	}
	mongoDB := mongoClient.Database(cfg.Mongo.Database)

	rdb, err := redisx.New(context.Background(), redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	amqpConn, err := rabbitmq.New(rabbitmq.Config{URL: cfg.AMQP.URL})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rabbitmq: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	inventory := mongorepo.NewEventRepo(mongoDB)
	auditStore := mongorepo.NewAuditRepo(mongoDB)
	cache := redisrepo.NewCache(rdb)
	pubsub := redisrepo.NewEventsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, redisrepo.RateLimitPrefix("bookings"), 10, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	// Initialize audit pipeline
	publisher, err := audit.NewPublisher(amqpConn, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit publisher: %w", err)
	}
	consumer := audit.NewConsumer(cfg.AMQP.URL, auditStore, logger)

	// Initialize services
	services := service.NewServices(store, inventory, cache, pubsub, limiter, publisher, logger, service.Config{
		Booking: booking.Config{StoreTimeout: cfg.Saga.StoreTimeout},
	})

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		consumer:  consumer,
		publisher: publisher,
		cache:     cache,
		pubsub:    pubsub,
		closers: []func(){
			func() { publisher.Close() },
			func() { _ = amqpConn.Close() },
			func() { _ = rdb.Close() },
			func() { _ = mongoClient.Disconnect(context.Background()) },
			func() { pgxPool.Close() },
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Start audit consumer
	g.Go(func() error {
		a.logger.Info("audit consumer starting")
		return a.consumer.Run(gCtx)
	})

	// Drop cached event summaries when another instance publishes a change
	g.Go(func() error {
		err := a.pubsub.Subscribe(gCtx, func(ctx context.Context, eventID string) {
			_ = a.cache.InvalidateEvent(ctx, eventID)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	err := g.Wait()

	for _, close := range a.closers {
		close()
	}

	return err
}

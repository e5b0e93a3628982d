// Package app assembles the batch service from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"batchtrack/internal/api"
	cache "batchtrack/internal/cache/redis"
	"batchtrack/internal/config"
	"batchtrack/internal/publisher"
	"batchtrack/internal/scheduler"
	"batchtrack/internal/service"
	"batchtrack/internal/source/content"
	"batchtrack/internal/storage/postgres"
	"batchtrack/migrations"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg       *config.Config
	db        *sqlx.DB
	rabbitMQ  *publisher.RabbitMQ
	redis     *cache.RedisCache
	router    *fiber.App
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

// New connects to the database and the optional RabbitMQ and Redis backends
// and wires every component. Call Close when done.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	logger.Info("connected to database")

	a := &App{cfg: cfg, db: db, logger: logger}

	var pub service.Publisher
	if cfg.RabbitMQ.URL != "" {
		a.rabbitMQ, err = publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		pub = a.rabbitMQ
	}

	var itemCache service.ItemCache
	if cfg.Redis.Addr != "" {
		a.redis, err = cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		itemCache = a.redis
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	batchStore := postgres.NewBatchStore(db)
	itemStore := postgres.NewItemStore(db)
	responseStore := postgres.NewApiResponseStore(db)
	txManager := postgres.NewTransactionManager(db)

	src := content.New(content.Config{
		BaseURL:        cfg.Source.BaseURL,
		BatchParam:     cfg.Source.BatchParam,
		Timeout:        cfg.Source.Timeout,
		RateLimit:      cfg.Source.RateLimit,
		MaxAttempts:    cfg.Source.Retry.MaxAttempts,
		InitialBackoff: cfg.Source.Retry.InitialBackoff,
		MaxBackoff:     cfg.Source.Retry.MaxBackoff,
	}, logger)

	syncer := service.NewSyncService(src, batchStore, itemStore, responseStore, txManager, pub, itemCache, logger)
	batches := service.NewBatchService(batchStore, itemStore, responseStore, src, itemCache, cfg.Redis.TTL, logger)
	initializer := service.NewInitializer(batchStore, cfg.Seed.Path, cfg.Seed.Limit, logger)

	handler := api.NewHandler(batches, syncer, initializer, db, logger)
	a.router = api.NewRouter(handler, api.RouterConfig{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, logger)

	if cfg.Sync.Interval > 0 {
		a.scheduler = scheduler.NewScheduler(syncer, cfg.Sync.Interval, cfg.Sync.Timeout, logger)
	}

	return a, nil
}

func (a *App) Router() *fiber.App {
	return a.router
}

func (a *App) Migrate(ctx context.Context) error {
	return migrations.Apply(ctx, a.db, a.logger)
}

// Run serves HTTP and, when configured, the background re-sync until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", "addr", a.cfg.Server.Addr)
		if err := a.router.Listen(a.cfg.Server.Addr); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.router.ShutdownWithContext(shutdownCtx)
	})

	if a.scheduler != nil {
		g.Go(func() error {
			if err := a.scheduler.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("scheduler: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (a *App) Close() error {
	var errs []error
	if a.rabbitMQ != nil {
		errs = append(errs, a.rabbitMQ.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

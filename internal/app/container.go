package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/services"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/subscribers"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/infrastructure/eventcache"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/infrastructure/namecache"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/infrastructure/persistence"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/convert"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/database/postgres"
	_ "github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/schedcache/pkg/config"
	"github.com/felixgeelhaar/schedcache/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	DBConn      database.Connection
	DBDriver    database.Driver
	RedisClient *redis.Client

	// Observability
	Registry *prometheus.Registry
	Metrics  observability.Metrics
	Health   *observability.HealthRegistry

	// Backing store
	ActivityRepo *persistence.ActivityRepository
	OutboxRepo   outbox.Repository
	Breaker      *eventcache.BreakingReader
	NameCache    *namecache.RedisNameResolver

	// Event cache
	Cache          *eventcache.Cache
	ChangeListener *subscribers.ChangeListener

	// Lookup-change delivery
	EventBus         *eventbus.InProcessEventBus
	EventPublisher   eventbus.Publisher
	EventConsumer    *eventbus.RabbitMQConsumer
	LookupSubscriber *subscribers.LookupSubscriber
	OutboxProcessor  *outbox.Processor

	// Command handlers
	ScheduleActivityHandler   *commands.ScheduleActivityHandler
	RescheduleActivityHandler *commands.RescheduleActivityHandler
	CancelActivityHandler     *commands.CancelActivityHandler
	RenameStatusHandler       *commands.RenameStatusHandler
	RenamePartyHandler        *commands.RenamePartyHandler

	// Query handlers
	GetEventsHandler     *queries.GetEventsHandler
	FindFreeSlotsHandler *queries.FindFreeSlotsHandler
	CheckOverlapHandler  *queries.CheckOverlapHandler
}

// NewContainer creates a new dependency injection container.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	if err := c.connectDatabase(ctx); err != nil {
		return nil, err
	}

	// Redis is optional; development falls back to store lookups.
	if err := c.connectRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = observability.NewPrometheusMetrics(c.Registry)

	// Backing store
	c.OutboxRepo = outbox.NewSQLRepository(c.DBConn)
	c.ActivityRepo = persistence.NewActivityRepository(c.DBConn, c.OutboxRepo, logger)

	var reader domain.ActivityReader = c.ActivityRepo
	if cfg.StoreBreakerEnabled {
		breakerCfg := eventcache.DefaultBreakerConfig()
		if cfg.StoreBreakerFailures > 0 {
			breakerCfg.FailureThreshold = convert.IntToUint32Clamped(cfg.StoreBreakerFailures)
		}
		if cfg.StoreBreakerTimeout > 0 {
			breakerCfg.Timeout = cfg.StoreBreakerTimeout
		}
		c.Breaker = eventcache.NewBreakingReader(c.ActivityRepo, breakerCfg, logger, c.Metrics)
		reader = c.Breaker
	}

	var names domain.NameResolver = c.ActivityRepo
	var forgetter subscribers.NameForgetter
	if c.RedisClient != nil {
		c.NameCache = namecache.NewRedisNameResolver(c.RedisClient, c.ActivityRepo, cfg.NameCacheTTL, logger, c.Metrics)
		names = c.NameCache
		forgetter = c.NameCache
	}

	// Event cache
	assembler := services.NewEventAssembler(names, logger)
	c.Cache = eventcache.New(reader, assembler, eventcache.Config{
		Location: loc,
		Logger:   logger,
		Metrics:  c.Metrics,
	})

	// Pre hooks read inside the store transaction, so they bypass the breaker.
	c.ChangeListener = subscribers.NewChangeListener(c.Cache, c.Cache.Pending(), c.ActivityRepo, assembler, logger, c.Metrics)
	c.ActivityRepo.Subscribe(domain.ActivityKindAppointment, c.ChangeListener)
	c.ActivityRepo.Subscribe(domain.ActivityKindTask, c.ChangeListener)

	c.LookupSubscriber = subscribers.NewLookupSubscriber(c.Cache, forgetter, logger)
	if err := c.connectEventBus(); err != nil {
		c.Close()
		return nil, err
	}
	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, outbox.DefaultProcessorConfig(), logger, c.Metrics)

	// Query handlers
	c.GetEventsHandler = queries.NewGetEventsHandler(c.Cache)
	c.FindFreeSlotsHandler = queries.NewFindFreeSlotsHandler(
		services.NewFreeSlotFinder(services.NewCacheGapSource(c.Cache), loc),
	)
	overlaps := services.NewOverlapDetector(c.Cache)
	c.CheckOverlapHandler = queries.NewCheckOverlapHandler(overlaps)

	// Command handlers
	var partyNames commands.ParticipantForgetter
	if c.NameCache != nil {
		partyNames = c.NameCache
	}
	c.ScheduleActivityHandler = commands.NewScheduleActivityHandler(c.ActivityRepo, overlaps)
	c.RescheduleActivityHandler = commands.NewRescheduleActivityHandler(c.ActivityRepo, overlaps, database.NewUnitOfWork(c.DBConn))
	c.CancelActivityHandler = commands.NewCancelActivityHandler(c.ActivityRepo)
	c.RenameStatusHandler = commands.NewRenameStatusHandler(c.ActivityRepo)
	c.RenamePartyHandler = commands.NewRenamePartyHandler(c.ActivityRepo, partyNames, logger)

	c.registerHealthChecks()

	logger.Info("container initialized",
		"driver", c.DBDriver,
		"redis", c.RedisClient != nil,
		"rabbitmq", c.EventConsumer != nil,
		"breaker", c.Breaker != nil,
		"timezone", loc.String(),
	)
	return c, nil
}

func (c *Container) connectDatabase(ctx context.Context) error {
	cfg := c.Config
	driver, err := database.ParseDriver(cfg.DatabaseDriver)
	if err != nil {
		return err
	}
	dbCfg := database.Config{
		Driver:     driver,
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
	}
	if cfg.LocalMode {
		dbCfg.Driver = database.DriverSQLite
	}

	conn, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()
	c.Logger.Info("connected to database", "driver", c.DBDriver)

	// Local stores are created on first use; Postgres is migrated explicitly.
	if c.DBDriver == database.DriverSQLite {
		applied, err := migrations.Run(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to migrate SQLite store: %w", err)
		}
		if len(applied) > 0 {
			c.Logger.Info("applied SQLite migrations", "count", len(applied))
		}
	}
	return nil
}

func (c *Container) connectRedis(ctx context.Context) error {
	cfg := c.Config
	if cfg.RedisURL == "" {
		return nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		if !cfg.IsDevelopment() {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		c.Logger.Warn("invalid Redis URL, names will be read from the store", "error", err)
		return nil
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if !cfg.IsDevelopment() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, names will be read from the store", "error", err)
		return nil
	}

	c.RedisClient = client
	c.Logger.Info("connected to Redis")
	return nil
}

func (c *Container) connectEventBus() error {
	cfg := c.Config
	if cfg.RabbitMQURL != "" {
		err := c.connectRabbitMQ()
		if err == nil {
			return nil
		}
		if !cfg.IsDevelopment() {
			return err
		}
		c.Logger.Warn("RabbitMQ not available, using in-process event bus", "error", err)
	}

	c.EventBus = eventbus.NewInProcessEventBus(c.Logger)
	c.EventBus.RegisterConsumer(c.LookupSubscriber)
	c.EventPublisher = c.EventBus
	return nil
}

func (c *Container) connectRabbitMQ() error {
	cfg := c.Config
	publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, c.Logger)
	if err != nil {
		return err
	}

	consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
		URL:         cfg.RabbitMQURL,
		QueuePrefix: cfg.RabbitMQQueue,
		Logger:      c.Logger,
		Metrics:     c.Metrics,
	}, eventbus.NewConsumerRegistry(c.Logger))
	if err != nil {
		_ = publisher.Close()
		return fmt.Errorf("failed to create RabbitMQ consumer: %w", err)
	}
	if err := consumer.RegisterConsumer(c.LookupSubscriber); err != nil {
		_ = consumer.Close()
		_ = publisher.Close()
		return err
	}

	c.EventPublisher = publisher
	c.EventConsumer = consumer
	return nil
}

func (c *Container) registerHealthChecks() {
	c.Health = observability.NewHealthRegistry()
	c.Health.Register("database", observability.PingCheck("database", true, c.DBConn.Ping))

	if c.RedisClient != nil {
		c.Health.Register("redis", observability.PingCheck("redis", false, func(ctx context.Context) error {
			return c.RedisClient.Ping(ctx).Err()
		}))
	}
	if publisher, ok := c.EventPublisher.(*eventbus.RabbitMQPublisher); ok {
		c.Health.Register("rabbitmq", observability.PingCheck("rabbitmq", false, publisher.Ping))
	}

	c.Health.Register("event_cache", observability.DetailsCheck("event cache ready", c.CacheDetails))
}

// CacheDetails summarizes cache, breaker and outbox state.
func (c *Container) CacheDetails() map[string]any {
	stats := c.Cache.Stats()
	details := map[string]any{
		"buckets": stats.Buckets,
		"pending": stats.Pending,
		"hits":    stats.Hits,
		"misses":  stats.Misses,
		"clears":  stats.Clears,
	}
	if c.Breaker != nil {
		details["breaker"] = c.Breaker.State()
	}
	if c.OutboxProcessor != nil {
		outboxStats := c.OutboxProcessor.GetStats()
		details["outbox_published"] = outboxStats.PublishedCount
		details["outbox_dead"] = outboxStats.DeadCount
	}
	return details
}

// Close closes all connections.
func (c *Container) Close() {
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}

	if c.EventConsumer != nil {
		if err := c.EventConsumer.Close(); err != nil {
			c.Logger.Warn("error closing event consumer", "error", err)
		}
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		} else {
			c.Logger.Info("Redis connection closed")
		}
	}

	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("error closing database connection", "error", err)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DBDriver)
		}
	}
}

package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"bookcatalog-backend/internal/config"
	activityRepo "bookcatalog-backend/internal/domains/activity/repository"
	activityService "bookcatalog-backend/internal/domains/activity/service"
	bookHandler "bookcatalog-backend/internal/domains/book/handler"
	bookRepo "bookcatalog-backend/internal/domains/book/repository"
	bookService "bookcatalog-backend/internal/domains/book/service"
	infraCache "bookcatalog-backend/internal/infrastructure/cache"
	"bookcatalog-backend/internal/infrastructure/database"
	"bookcatalog-backend/internal/infrastructure/isbndb"
	"bookcatalog-backend/internal/infrastructure/storage"
	"bookcatalog-backend/pkg/cache"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container is the root of the dependency graph shared by the API, the worker and the CLI
type Container struct {
	// ========================================
	// INFRASTRUCTURE LAYER
	// ========================================
	Config      *config.Config
	DB          *database.PostgresDB
	Redis       *infraCache.RedisClient
	Cache       cache.Cache // nil when Redis is down at startup
	Storage     *storage.MinIOStorage
	Processor   *storage.ImageProcessor
	ISBNdb      *isbndb.Client
	AsynqClient *asynq.Client

	// ========================================
	// REPOSITORY LAYER
	// ========================================
	DuplicateRepo bookRepo.DuplicateRepository
	EntityRepo    bookRepo.EntityRepository
	BookWriter    bookRepo.BookWriter
	ImportJobRepo bookRepo.ImportJobRepository
	ActivityRepo  activityRepo.Repository

	// ========================================
	// SERVICE LAYER
	// ========================================
	ActivityService   *activityService.ActivityService
	DuplicateDetector *bookService.DuplicateDetector
	EntityResolver    *bookService.EntityResolver
	MediaUploader     *bookService.MediaUploader
	ImportService     *bookService.ImportService

	// ========================================
	// HANDLER LAYER
	// ========================================
	ImportHandler *bookHandler.ImportHandler
}

// ========================================
// CONSTRUCTOR: BUILD CONTAINER
// ========================================

// NewContainer builds the graph in dependency order:
// config, infrastructure, repositories, services, handlers.
func NewContainer() (*Container, error) {
	log.Info().Msg("Initializing DI container")

	c := &Container{}

	// STEP 1: configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg
	log.Info().Str("environment", cfg.App.Environment).Msg("Config loaded")

	// STEP 2: infrastructure
	if err := c.initInfrastructure(); err != nil {
		c.Cleanup()
		return nil, err
	}

	// STEP 3: repositories
	c.initRepositories()

	// STEP 4: services
	c.initServices()

	// STEP 5: handlers
	c.initHandlers()

	log.Info().Msg("DI container initialized")
	return c, nil
}

func (c *Container) initInfrastructure() error {
	cfg := c.Config

	// ----------------------------------------
	// POSTGRES
	// ----------------------------------------
	dbConfig, err := config.LoadDatabaseConfig()
	if err != nil {
		return fmt.Errorf("failed to load database config: %w", err)
	}

	db := database.NewPostgresDB(dbConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	c.DB = db

	// ----------------------------------------
	// REDIS (cache only; failure is not fatal)
	// ----------------------------------------
	c.Redis = infraCache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB)
	if err := c.Redis.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("Redis connection failed, provider cache disabled")
	} else {
		c.Cache = infraCache.NewRedisCache(c.Redis, "bookcatalog")
	}

	// ----------------------------------------
	// MINIO
	// ----------------------------------------
	store, err := storage.NewMinIOStorage(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("failed to init object storage: %w", err)
	}
	c.Storage = store
	c.Processor = storage.NewImageProcessor()

	// ----------------------------------------
	// METADATA PROVIDER
	// ----------------------------------------
	var providerOpts []isbndb.Option
	if c.Cache != nil {
		providerOpts = append(providerOpts, isbndb.WithCache(c.Cache))
	}
	c.ISBNdb = isbndb.NewClient(cfg.ISBNdb, providerOpts...)

	// ----------------------------------------
	// TASK QUEUE
	// ----------------------------------------
	c.AsynqClient = asynq.NewClient(RedisClientOpt(cfg.Redis))

	return nil
}

func (c *Container) initRepositories() {
	pool := c.DB.Pool

	c.DuplicateRepo = bookRepo.NewDuplicateRepository(pool)
	c.EntityRepo = bookRepo.NewEntityRepository(pool)
	c.BookWriter = bookRepo.NewBookWriter(pool, c.Config.Import.AuthorLinkMode)
	c.ImportJobRepo = bookRepo.NewImportJobRepository(pool)
	c.ActivityRepo = activityRepo.NewPostgresRepository(pool)
}

func (c *Container) initServices() {
	c.ActivityService = activityService.NewActivityService(c.ActivityRepo, c.Config.Activity)

	c.DuplicateDetector = bookService.NewDuplicateDetector(c.DuplicateRepo)
	c.EntityResolver = bookService.NewEntityResolver(c.EntityRepo)
	c.MediaUploader = bookService.NewMediaUploader(
		c.Storage,
		c.Processor,
		&http.Client{Timeout: 30 * time.Second},
		c.AsynqClient,
	)

	c.ImportService = bookService.NewImportService(
		c.DuplicateDetector,
		c.EntityResolver,
		c.ISBNdb,
		c.MediaUploader,
		c.BookWriter,
		c.Config.Import,
		bookService.WithRefetch(c.Config.ISBNdb.MaxRetries, c.Config.ISBNdb.InitialDelay),
		bookService.WithActivities(c.ActivityService),
		bookService.WithJobs(c.ImportJobRepo, c.AsynqClient),
	)
}

func (c *Container) initHandlers() {
	c.ImportHandler = bookHandler.NewImportHandler(c.ImportService, c.Config.Import.MaxISBNs)
}

// RedisClientOpt maps the Redis config onto asynq's connection options
func RedisClientOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Host,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// ========================================
// HEALTH
// ========================================

// HealthStatus reports each dependency as "ok" or its error
func (c *Container) HealthStatus(ctx context.Context) (map[string]string, bool) {
	status := map[string]string{}
	healthy := true

	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			return
		}
		status[name] = "ok"
	}

	check("database", c.DB.Ping)
	check("storage", c.Storage.Ping)
	if c.Cache != nil {
		check("redis", c.Cache.Ping)
	} else {
		status["redis"] = "disabled"
	}

	return status, healthy
}

// Cleanup releases connections. Safe on a partially built container.
func (c *Container) Cleanup() {
	log.Info().Msg("Cleaning up container resources")

	if c.AsynqClient != nil {
		if err := c.AsynqClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close asynq client")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis")
		}
	}

	if c.DB != nil {
		_ = c.DB.Close()
	}

	log.Info().Msg("Container cleanup completed")
}

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"job-pipeline/internal/config"
	"job-pipeline/internal/database"
	"job-pipeline/internal/database/migration"
	dbpostgres "job-pipeline/internal/database/postgres"
	"job-pipeline/internal/infrastructure/cache"
	"job-pipeline/internal/infrastructure/fetcher"
	"job-pipeline/internal/infrastructure/llm"
	"job-pipeline/internal/infrastructure/notify"
	"job-pipeline/internal/pipeline"
	"job-pipeline/internal/repository"
	"job-pipeline/migrations"
)

// Container owns the long-lived connections shared by the API server and the
// pipeline worker.
type Container struct {
	Config  config.Config
	Logger  *log.Logger
	DB      database.DB
	Cache   *cache.Redis
	Jobs    repository.JobListingRepository
	Runs    repository.StageRunRepository
	Metrics repository.DailyMetricsRepository
}

func NewContainer(cfg config.Config, logger *log.Logger) (*Container, error) {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := dbpostgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Cache:   cache.NewRedis(cfg.Redis, logger),
		Jobs:    repository.NewPostgresJobListingRepository(db),
		Runs:    repository.NewPostgresStageRunRepository(db),
		Metrics: repository.NewPostgresDailyMetricsRepository(db),
	}, nil
}

func (c *Container) Migrate(ctx context.Context) error {
	sqlDB := c.DB.SQLDB()
	if sqlDB == nil {
		return errors.New("migrations need a database/sql handle")
	}
	return migration.Runner{FS: migrations.FS, Logger: c.Logger}.Run(ctx, sqlDB)
}

// Pipeline wires fetchers, the extractor and the completion webhook around
// the shared repositories.
func (c *Container) Pipeline() (*pipeline.Pipeline, error) {
	extractor, err := llm.NewOpenAIExtractor(c.Config.LLM, c.Logger)
	if err != nil {
		return nil, err
	}
	deps := pipeline.Deps{
		Jobs:      c.Jobs,
		Runs:      c.Runs,
		Metrics:   c.Metrics,
		Fetchers:  fetcher.NewRegistry(c.Config.Fetch, c.Logger),
		Extractor: extractor,
		Cache:     c.Cache,
		Notifier:  notify.NewWebhookNotifier(c.Config.Pipeline.NotifyURL, c.Config.App.InternalToken, c.Logger),
		Logger:    c.Logger,
	}
	return pipeline.New(deps, pipeline.OptionsFrom(c.Config)), nil
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}

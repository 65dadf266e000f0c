package container

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"segstat/adapters/excel"
	"segstat/adapters/postgres"
	"segstat/app"
	"segstat/internal"
	"segstat/internal/config"
	"segstat/internal/normalize"
	"segstat/ports"
)

// Container holds the pipeline dependencies and manages their lifecycle
type Container struct {
	Config config.Pipeline
	Logger *internal.Logger

	// Infrastructure
	DB *sqlx.DB

	// Table IO
	Loader *excel.Loader
	Writer *excel.Writer

	// Persistence, nil without a database
	SummaryRepo ports.SummaryRepository

	Normalizer *normalize.Normalizer
	Pipeline   *app.PipelineService
}

// New creates a container with file-based components only
func New(cfg config.Pipeline, logger *internal.Logger) *Container {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	c := &Container{
		Config:     cfg,
		Logger:     logger,
		Loader:     excel.NewLoader(excel.DefaultExcelConfig(), logger),
		Writer:     excel.NewWriter(),
		Normalizer: normalize.NewNormalizer(normalize.MaxLabelSelector{}),
	}
	c.buildPipeline()
	return c
}

// InitWithDatabase connects to the configured database and enables result persistence.
// It does nothing when no database URL is configured.
func (c *Container) InitWithDatabase(ctx context.Context) error {
	if c.Config.DatabaseURL == "" {
		return nil
	}

	db, err := postgres.Connect(ctx, c.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.DB = db
	c.SummaryRepo = postgres.NewSummaryRepository(db)
	c.buildPipeline()

	c.Logger.Debug("Container initialized with database connection")
	return nil
}

func (c *Container) buildPipeline() {
	c.Pipeline = app.NewPipelineService(c.Loader, c.Writer, c.Normalizer, c.SummaryRepo, c.Logger)
}

// Shutdown releases the database connection
func (c *Container) Shutdown() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

package app

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"PageviewsETL/internal/artifact"
	"PageviewsETL/internal/config"
	"PageviewsETL/internal/directory"
	"PageviewsETL/internal/infrastructure/archive"
	"PageviewsETL/internal/infrastructure/dumps"
	"PageviewsETL/internal/infrastructure/filter"
	"PageviewsETL/internal/infrastructure/storage"
	"PageviewsETL/internal/logging"
	"PageviewsETL/internal/metrics"
	"PageviewsETL/internal/usecase"
)

// Needs tells Open which expensive dependencies a command uses.
type Needs struct {
	Directory bool
	Database  bool
}

// Application wires configs to use cases for a single process run.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	recorder *metrics.Recorder
	db       *sql.DB
}

// New builds an application; nothing is opened until Open.
func New(cfg config.Config, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	runID := uuid.NewString()
	return &Application{
		cfg:      cfg,
		logger:   baseLogger.With("run_id", runID),
		recorder: metrics.New(),
	}
}

// Logger is the run-scoped logger.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}

// Open assembles the pipeline. The company directory is loaded and validated
// here, once per run, so a bad directory fails before any stage starts.
func (a *Application) Open(ctx context.Context, needs Needs) (*usecase.Pipeline, error) {
	deps := usecase.PipelineDeps{
		Layout: artifact.Layout{
			RawDir:       a.cfg.Storage.RawDir,
			ProcessedDir: a.cfg.Storage.ProcessedDir,
		},
		Fetcher: dumps.NewFetcher(a.cfg.Source.BaseURL, a.cfg.Source.UserAgent, nil, a.cfg.Source.Timeout,
			a.logger.With("component", "fetcher")),
		Extractor: archive.NewGunzip(archive.DefaultBufferSize, a.logger.With("component", "decompressor")),
		Recorder:  a.recorder,
		Logger:    a.logger.With("component", "pipeline"),
	}

	var matcher *filter.Matcher
	if needs.Directory {
		dir, err := directory.Load(a.cfg.Companies.Path)
		if err != nil {
			return nil, err
		}
		a.logger.Info("company directory loaded", "path", a.cfg.Companies.Path, "companies", dir.Companies())
		matcher = filter.NewMatcher(dir, a.cfg.Filter.Domains, a.logger.With("component", "filter"))
	}
	deps.Filter = filter.NewFileFilter(matcher, a.logger.With("component", "filter"))

	if needs.Database {
		db, dialect, err := storage.Open(ctx, a.cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
		deps.Repository = storage.NewSQLRepository(db, dialect, a.cfg.Database.BatchSize,
			a.logger.With("component", "storage", "dialect", dialect.Name))
	}

	return usecase.NewPipeline(deps), nil
}

// Index returns a client for the published dump listing.
func (a *Application) Index() *dumps.Index {
	return dumps.NewIndex(a.cfg.Source.BaseURL, a.cfg.Source.UserAgent, nil, a.logger.With("component", "index"))
}

// Close releases the database and flushes metrics.
func (a *Application) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", "error", err)
		}
		a.db = nil
	}
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.recorder.WriteTextfile(path); err != nil {
			a.logger.Warn("metrics not written", "path", path, "error", err)
		}
	}
}

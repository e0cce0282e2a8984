package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PageviewsETL/internal/artifact"
	"PageviewsETL/internal/domain"
	"PageviewsETL/internal/logging"
	"PageviewsETL/internal/ports"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
// Stages whose adapter is nil fail with a configuration error when invoked.
type PipelineDeps struct {
	Layout     artifact.Layout
	Fetcher    ports.DumpFetcher
	Extractor  ports.Extractor
	Filter     ports.RecordFilter
	Repository ports.PageviewRepository
	Recorder   ports.StageRecorder
	Logger     *slog.Logger
}

// Pipeline exposes one entry point per stage. Every entry point takes the
// target hour explicitly and returns a *domain.StageError on failure.
type Pipeline struct {
	layout     artifact.Layout
	fetcher    ports.DumpFetcher
	extractor  ports.Extractor
	filter     ports.RecordFilter
	repository ports.PageviewRepository
	recorder   ports.StageRecorder
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{
		layout:     deps.Layout,
		fetcher:    deps.Fetcher,
		extractor:  deps.Extractor,
		filter:     deps.Filter,
		repository: deps.Repository,
		recorder:   deps.Recorder,
		logger:     logger,
	}
}

// RunResult collects what each stage of a full run produced.
type RunResult struct {
	Fetch      domain.ArtifactResult
	Decompress domain.ArtifactResult
	Filter     domain.FilterResult
	Load       domain.LoadResult
	Report     domain.Report
}

// Fetch downloads the compressed dump for hour.
func (p *Pipeline) Fetch(ctx context.Context, hour time.Time) (domain.ArtifactResult, error) {
	hour = domain.TargetHour(hour)
	var res domain.ArtifactResult
	err := p.stage(ctx, domain.StageFetch, hour, func() error {
		if p.fetcher == nil {
			return missing("fetcher")
		}
		var err error
		res, err = p.fetcher.Fetch(ctx, hour, p.layout.CompressedPath(hour))
		return err
	})
	return res, err
}

// Decompress extracts the dump fetched for hour.
func (p *Pipeline) Decompress(ctx context.Context, hour time.Time) (domain.ArtifactResult, error) {
	hour = domain.TargetHour(hour)
	var res domain.ArtifactResult
	err := p.stage(ctx, domain.StageDecompress, hour, func() error {
		if p.extractor == nil {
			return missing("extractor")
		}
		var err error
		res, err = p.extractor.Extract(ctx, p.layout.CompressedPath(hour), p.layout.ExtractedPath(hour))
		return err
	})
	return res, err
}

// Filter reduces the extracted dump for hour to tracked-company records.
func (p *Pipeline) Filter(ctx context.Context, hour time.Time) (domain.FilterResult, error) {
	hour = domain.TargetHour(hour)
	var res domain.FilterResult
	err := p.stage(ctx, domain.StageFilter, hour, func() error {
		if p.filter == nil {
			return missing("filter")
		}
		var err error
		res, err = p.filter.FilterFile(ctx, p.layout.ExtractedPath(hour), p.layout.FilteredPath(hour), hour)
		if p.recorder != nil {
			p.recorder.ObserveFilter(res.Stats)
		}
		if err != nil {
			return err
		}
		if res.Stats.Matched == 0 {
			p.logger.Warn("no tracked pages matched; check company page titles",
				"hour", hour, "lines", res.Stats.Lines, "malformed", res.Stats.Malformed)
		}
		return nil
	})
	return res, err
}

// Load upserts the filtered artifact for hour in one transaction.
func (p *Pipeline) Load(ctx context.Context, hour time.Time) (domain.LoadResult, error) {
	hour = domain.TargetHour(hour)
	var res domain.LoadResult
	err := p.stage(ctx, domain.StageLoad, hour, func() error {
		if p.filter == nil {
			return missing("filter")
		}
		if p.repository == nil {
			return missing("repository")
		}

		records, err := p.filter.ReadFiltered(p.layout.FilteredPath(hour))
		if err != nil {
			return err
		}
		if err := p.repository.EnsureSchema(ctx); err != nil {
			return err
		}
		affected, err := p.repository.Upsert(ctx, hour, records)
		if err != nil {
			return err
		}
		if p.recorder != nil {
			p.recorder.ObserveLoad(affected)
		}
		res = domain.LoadResult{Records: len(records), RowsAffected: affected}
		return nil
	})
	return res, err
}

// Report returns the ranking stored for hour. The repository reports an empty
// hour as domain.ErrNoData.
func (p *Pipeline) Report(ctx context.Context, hour time.Time) (domain.Report, error) {
	hour = domain.TargetHour(hour)
	var report domain.Report
	err := p.stage(ctx, domain.StageReport, hour, func() error {
		if p.repository == nil {
			return missing("repository")
		}
		rows, err := p.repository.Ranking(ctx, hour)
		if err != nil {
			return err
		}
		report = domain.Report{Hour: hour, Ranking: rows}
		return nil
	})
	return report, err
}

// LoadAndReport is the final orchestrator stage: upsert, then rank.
func (p *Pipeline) LoadAndReport(ctx context.Context, hour time.Time) (domain.LoadResult, domain.Report, error) {
	load, err := p.Load(ctx, hour)
	if err != nil {
		return load, domain.Report{}, err
	}
	report, err := p.Report(ctx, hour)
	return load, report, err
}

// Run executes every stage in order for hour, stopping before the next stage
// once ctx is done. Each stage is idempotent, so a stopped run can be repeated.
func (p *Pipeline) Run(ctx context.Context, hour time.Time) (RunResult, error) {
	hour = domain.TargetHour(hour)
	var (
		result RunResult
		err    error
	)

	if result.Fetch, err = p.Fetch(ctx, hour); err != nil {
		return result, err
	}
	if err := between(ctx, domain.StageDecompress, hour); err != nil {
		return result, err
	}
	if result.Decompress, err = p.Decompress(ctx, hour); err != nil {
		return result, err
	}
	if err := between(ctx, domain.StageFilter, hour); err != nil {
		return result, err
	}
	if result.Filter, err = p.Filter(ctx, hour); err != nil {
		return result, err
	}
	if err := between(ctx, domain.StageLoad, hour); err != nil {
		return result, err
	}
	result.Load, result.Report, err = p.LoadAndReport(ctx, hour)
	return result, err
}

func (p *Pipeline) stage(ctx context.Context, name string, hour time.Time, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStageError(name, hour, err)
	}

	log := p.logger.With("stage", name, "hour", hour.Format(time.RFC3339))
	log.Debug("stage started")
	start := time.Now()

	err := fn()
	elapsed := time.Since(start)
	if p.recorder != nil {
		p.recorder.ObserveStage(name, elapsed, err)
	}

	if err != nil {
		stageErr := domain.NewStageError(name, hour, err)
		log.Error("stage failed", "kind", domain.KindOf(err), "error", err, "elapsed", elapsed)
		return stageErr
	}
	log.Info("stage finished", "elapsed", elapsed)
	return nil
}

func between(ctx context.Context, next string, hour time.Time) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStageError(next, hour, fmt.Errorf("run stopped before %s: %w", next, err))
	}
	return nil
}

func missing(what string) error {
	return fmt.Errorf("%w: %s is not configured", domain.ErrConfig, what)
}

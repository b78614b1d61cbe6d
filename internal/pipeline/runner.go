// Package pipeline runs one export: resolve the dataset in the catalog, load
// it, keep the matching rows, write them out and record the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/statusexport/statusexport/internal/catalog"
	"github.com/statusexport/statusexport/internal/export"
	"github.com/statusexport/statusexport/internal/filter"
	"github.com/statusexport/statusexport/internal/observability"
	"github.com/statusexport/statusexport/internal/table"
)

const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

type Loader interface {
	Load(ctx context.Context, handle catalog.DatasetHandle) (table.Table, error)
}

type Exporter interface {
	Export(ctx context.Context, t table.Table, target export.Target) (export.Result, error)
}

type Committer interface {
	Commit(ctx context.Context, record catalog.RunRecord) error
}

type Runner struct {
	Resolver  catalog.Resolver
	Loader    Loader
	Exporter  Exporter
	Committer Committer
	Metrics   *observability.Metrics
	Logger    *slog.Logger
	Clock     func() time.Time
	NewRunID  func() string
}

type Request struct {
	// JobName only correlates logs and metrics.
	JobName      string
	Database     string
	Table        string
	FilterColumn string
	MatchValue   string
	Target       export.Target
}

type Summary struct {
	RunID       string
	RowsLoaded  int64
	RowsMatched int64
	RowsWritten int64
	Files       []string
	StartedAt   time.Time
	CommittedAt time.Time
}

func (r *Runner) ensureDefaults() {
	if r.Clock == nil {
		r.Clock = time.Now
	}
	if r.NewRunID == nil {
		r.NewRunID = uuid.NewString
	}
	if r.Logger == nil {
		r.Logger = observability.ForRun(nil, "", "")
	}
}

// Run executes the stages strictly in order and stops at the first failure,
// which is returned as a *StageError.
func (r *Runner) Run(ctx context.Context, req Request) (Summary, error) {
	r.ensureDefaults()
	if r.Resolver == nil || r.Loader == nil || r.Exporter == nil || r.Committer == nil {
		return Summary{}, fmt.Errorf("runner is missing a stage implementation")
	}

	summary := Summary{RunID: r.NewRunID(), StartedAt: r.Clock().UTC()}
	logger := observability.ForRun(r.Logger, req.JobName, summary.RunID)
	logger.InfoContext(ctx, "export run started",
		slog.String("database", req.Database),
		slog.String("table", req.Table),
		slog.String("filter_column", req.FilterColumn),
		slog.String("match_value", req.MatchValue),
		slog.String("output_path", req.Target.Path),
	)

	var handle catalog.DatasetHandle
	if err := r.stage(ctx, StageResolve, func() (err error) {
		handle, err = r.Resolver.Resolve(ctx, req.Database, req.Table)
		return err
	}); err != nil {
		return summary, r.fail(ctx, logger, err)
	}
	logger.InfoContext(ctx, "dataset resolved",
		slog.String("location", handle.Location),
		slog.String("format", string(handle.Format)),
		slog.Int("columns", len(handle.Schema)),
	)

	var loaded table.Table
	if err := r.stage(ctx, StageLoad, func() (err error) {
		loaded, err = r.Loader.Load(ctx, handle)
		return err
	}); err != nil {
		return summary, r.fail(ctx, logger, err)
	}
	summary.RowsLoaded = int64(loaded.Len())
	r.setRows("loaded", loaded.Len())
	logger.InfoContext(ctx, "dataset loaded",
		slog.String("schema", loaded.Schema.String()),
		slog.Int64("rows_before_filter", summary.RowsLoaded),
	)

	var matched table.Table
	if err := r.stage(ctx, StageFilter, func() (err error) {
		matched, err = filter.Apply(loaded, filter.Predicate{Column: req.FilterColumn, MatchValue: req.MatchValue})
		return err
	}); err != nil {
		return summary, r.fail(ctx, logger, err)
	}
	if _, ok := loaded.Schema.Lookup(req.FilterColumn); !ok {
		logger.WarnContext(ctx, "filter column not in schema, no rows match", slog.String("filter_column", req.FilterColumn))
	}
	summary.RowsMatched = int64(matched.Len())
	r.setRows("matched", matched.Len())
	logger.InfoContext(ctx, "rows filtered", slog.Int64("rows_after_filter", summary.RowsMatched))

	target := req.Target
	target.RunID = summary.RunID
	var result export.Result
	if err := r.stage(ctx, StageExport, func() (err error) {
		result, err = r.Exporter.Export(ctx, matched, target)
		return err
	}); err != nil {
		return summary, r.fail(ctx, logger, err)
	}
	summary.RowsWritten = result.RowsWritten
	summary.Files = result.Files
	r.setRows("written", int(result.RowsWritten))
	logger.InfoContext(ctx, "rows exported",
		slog.Int64("rows_written", summary.RowsWritten),
		slog.Int("files", len(result.Files)),
	)

	if err := r.stage(ctx, StageCommit, func() error {
		summary.CommittedAt = r.Clock().UTC()
		return r.Committer.Commit(ctx, catalog.RunRecord{
			RunID:       summary.RunID,
			JobName:     req.JobName,
			Database:    handle.Database,
			Table:       handle.Table,
			OutputPath:  req.Target.Path,
			RowsLoaded:  summary.RowsLoaded,
			RowsMatched: summary.RowsMatched,
			RowsWritten: summary.RowsWritten,
			StartedAt:   summary.StartedAt,
			CommittedAt: summary.CommittedAt,
		})
	}); err != nil {
		summary.CommittedAt = time.Time{}
		return summary, r.fail(ctx, logger, err)
	}

	if r.Metrics != nil {
		r.Metrics.RecordRun(RunStatusSucceeded)
	}
	logger.InfoContext(ctx, "export run committed",
		slog.Int64("rows_before_filter", summary.RowsLoaded),
		slog.Int64("rows_after_filter", summary.RowsMatched),
		slog.Int64("rows_written", summary.RowsWritten),
		slog.Duration("duration", summary.CommittedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

func (r *Runner) stage(ctx context.Context, stage Stage, fn func() error) *StageError {
	if err := ctx.Err(); err != nil {
		return newStageError(stage, err)
	}
	start := time.Now()
	err := fn()
	if r.Metrics != nil {
		r.Metrics.ObserveStage(string(stage), time.Since(start))
	}
	if err != nil {
		return newStageError(stage, err)
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, logger *slog.Logger, stageErr *StageError) error {
	if r.Metrics != nil {
		r.Metrics.RecordFailure(string(stageErr.Stage), string(stageErr.Kind))
		r.Metrics.RecordRun(RunStatusFailed)
	}
	logger.ErrorContext(ctx, "export run failed",
		slog.String("stage", string(stageErr.Stage)),
		slog.String("kind", string(stageErr.Kind)),
		slog.Any("error", stageErr.Err),
	)
	return stageErr
}

func (r *Runner) setRows(stage string, count int) {
	if r.Metrics != nil {
		r.Metrics.SetRows(stage, count)
	}
}

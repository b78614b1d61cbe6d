package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/statusexport/statusexport/internal/config"
	"github.com/statusexport/statusexport/internal/export"
	"github.com/statusexport/statusexport/internal/observability"
	"github.com/statusexport/statusexport/internal/pipeline"
)

const metricsFlushTimeout = 10 * time.Second

func newRunCmd(opts Options) *cobra.Command {
	var (
		jobName string
		jobFile string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve, load, filter and export one dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd.Context(), opts, jobName, jobFile)
		},
	}
	cmd.Flags().StringVar(&jobName, "job-name", "", "job identifier used to correlate logs and metrics")
	cmd.Flags().StringVar(&jobFile, "config", "", "YAML job file")
	_ = cmd.MarkFlagRequired("job-name")
	return cmd
}

func runExport(ctx context.Context, opts Options, jobName, jobFile string) error {
	cfg, err := loadConfig(opts, jobFile)
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg, opts.Stdout)
	metrics := observability.NewMetrics()

	components, err := opts.Wire(ctx, cfg, logger)
	if err != nil {
		logger.ErrorContext(ctx, "export run setup failed", slog.String("job_name", jobName), slog.Any("error", err))
		metrics.RecordRun(pipeline.RunStatusFailed)
		flushMetrics(ctx, logger, metrics, cfg.Observability, jobName)
		return fmt.Errorf("wire components: %w", err)
	}
	if components.Close != nil {
		defer components.Close()
	}

	runner := &pipeline.Runner{
		Resolver:  components.Resolver,
		Loader:    components.Loader,
		Exporter:  components.Exporter,
		Committer: components.Committer,
		Metrics:   metrics,
		Logger:    logger,
	}
	_, runErr := runner.Run(ctx, pipeline.Request{
		JobName:      jobName,
		Database:     cfg.Job.Database,
		Table:        cfg.Job.Table,
		FilterColumn: cfg.Job.FilterColumn,
		MatchValue:   cfg.Job.MatchValue,
		Target: export.Target{
			Path:             cfg.Job.OutputPath,
			Format:           export.FormatParquet,
			PartitionColumns: cfg.Job.PartitionColumns,
		},
	})
	flushMetrics(ctx, logger, metrics, cfg.Observability, jobName)
	return runErr
}

// flushMetrics only logs flush errors; the exit code reflects the run.
func flushMetrics(ctx context.Context, logger *slog.Logger, metrics *observability.Metrics, cfg config.ObservabilityConfig, jobName string) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsFlushTimeout)
	defer cancel()
	if err := metrics.Flush(flushCtx, observability.FlushOptions{
		Textfile:       cfg.MetricsTextfile,
		PushgatewayURL: cfg.PushgatewayURL,
		JobName:        jobName,
	}); err != nil {
		logger.WarnContext(ctx, "metrics flush failed", slog.Any("error", err))
	}
}

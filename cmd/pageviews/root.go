package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"PageviewsETL/internal/app"
	"PageviewsETL/internal/config"
	"PageviewsETL/internal/domain"
	"PageviewsETL/internal/logging"
	"PageviewsETL/internal/report"
	"PageviewsETL/internal/usecase"
)

type rootOptions struct {
	configPath string
	hour       string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "pageviews",
		Short:         "Hourly Wikipedia pageview ETL for tracked company pages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default $PAGEVIEWS_CONFIG)")
	root.PersistentFlags().StringVar(&opts.hour, "hour", "", "target hour in UTC, e.g. 2025-12-17T16")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		stageCommand(opts, "fetch", "Download the compressed dump for the hour", app.Needs{},
			func(ctx context.Context, cmd *cobra.Command, p *usecase.Pipeline, hour time.Time) error {
				res, err := p.Fetch(ctx, hour)
				if err != nil {
					return err
				}
				printArtifact(cmd, res)
				return nil
			}),
		stageCommand(opts, "decompress", "Extract the fetched dump", app.Needs{},
			func(ctx context.Context, cmd *cobra.Command, p *usecase.Pipeline, hour time.Time) error {
				res, err := p.Decompress(ctx, hour)
				if err != nil {
					return err
				}
				printArtifact(cmd, res)
				return nil
			}),
		stageCommand(opts, "filter", "Keep only tracked company pages", app.Needs{Directory: true},
			func(ctx context.Context, cmd *cobra.Command, p *usecase.Pipeline, hour time.Time) error {
				res, err := p.Filter(ctx, hour)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d records (%d lines, %d malformed)\n",
					res.Path, res.Stats.Matched, res.Stats.Lines, res.Stats.Malformed)
				return nil
			}),
		stageCommand(opts, "load", "Upsert filtered records and print the ranking", app.Needs{Database: true},
			func(ctx context.Context, cmd *cobra.Command, p *usecase.Pipeline, hour time.Time) error {
				_, rep, err := p.LoadAndReport(ctx, hour)
				if err != nil {
					return err
				}
				return report.Render(cmd.OutOrStdout(), rep)
			}),
		stageCommand(opts, "report", "Print the ranking already stored for the hour", app.Needs{Database: true},
			func(ctx context.Context, cmd *cobra.Command, p *usecase.Pipeline, hour time.Time) error {
				rep, err := p.Report(ctx, hour)
				if err != nil {
					return err
				}
				return report.Render(cmd.OutOrStdout(), rep)
			}),
		stageCommand(opts, "run", "Run every stage in order", app.Needs{Directory: true, Database: true},
			func(ctx context.Context, cmd *cobra.Command, p *usecase.Pipeline, hour time.Time) error {
				res, err := p.Run(ctx, hour)
				if err != nil {
					return err
				}
				return report.Render(cmd.OutOrStdout(), res.Report)
			}),
		latestCommand(opts),
	)

	return root
}

type stageFunc func(ctx context.Context, cmd *cobra.Command, p *usecase.Pipeline, hour time.Time) error

func stageCommand(opts *rootOptions, name, short string, needs app.Needs, run stageFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hour, err := domain.ParseHour(opts.hour)
			if err != nil {
				return err
			}

			application, err := opts.application()
			if err != nil {
				return err
			}
			defer application.Close()

			ctx := cmd.Context()
			pipeline, err := application.Open(ctx, needs)
			if err != nil {
				return domain.NewStageError(name, hour, err)
			}
			return run(ctx, cmd, pipeline, hour)
		},
	}
}

func latestCommand(opts *rootOptions) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the newest hour published on the dump mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := time.Now().UTC()
			if month != "" {
				parsed, err := time.Parse("2006-01", month)
				if err != nil {
					return fmt.Errorf("%w: month %q (want YYYY-MM)", domain.ErrConfig, month)
				}
				target = parsed
			}

			application, err := opts.application()
			if err != nil {
				return err
			}
			defer application.Close()

			latest, err := application.Index().Latest(cmd.Context(), target)
			if err != nil {
				return domain.NewStageError("latest", target, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), latest.Format("2006-01-02T15"))
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month to list, YYYY-MM (default current UTC month)")
	return cmd
}

func (o *rootOptions) application() (*app.Application, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return app.New(cfg, logging.New(cfg.Logging.Level)), nil
}

func printArtifact(cmd *cobra.Command, res domain.ArtifactResult) {
	if res.Skipped {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\tskipped (%s)\n", res.Path, res.Reason)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\n", res.Path, res.Bytes)
}

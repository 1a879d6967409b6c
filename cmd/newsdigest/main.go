package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"NewsDigest/internal/app"
	"NewsDigest/internal/config"
	"NewsDigest/internal/logging"
	"NewsDigest/internal/usecase"
)

var Version = "dev"

const day = 24 * time.Hour

type runFlags struct {
	sinceDays  int
	untilDays  int
	since      string
	until      string
	outputFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		flags      runFlags
	)

	cmd := &cobra.Command{
		Use:          "newsdigest",
		Short:        "Collect, filter and summarize news into a markdown digest",
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options(cmd, time.Now())
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app.Application, logger *zap.Logger) error {
				output, err := a.RunOnce(ctx, opts)
				if err != nil {
					return err
				}
				logger.Info("digest written", zap.String("output", output))
				return nil
			})
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config (default $NEWSDIGEST_CONFIG)")
	cmd.Flags().IntVar(&flags.sinceDays, "since-days", 0, "Start the window this many days ago (default: last run, or 1 day)")
	cmd.Flags().IntVar(&flags.untilDays, "until-days", 0, "End the window this many days ago")
	cmd.Flags().StringVar(&flags.since, "since", "", "Window start as RFC3339, overrides --since-days")
	cmd.Flags().StringVar(&flags.until, "until", "", "Window end as RFC3339, overrides --until-days")
	cmd.Flags().StringVarP(&flags.outputFile, "output-file", "o", "", "Digest path (default: a dated file in digest.outputDir)")

	cmd.AddCommand(scheduleCmd(&configPath))
	return cmd
}

func scheduleCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the digest on the configured cron expression and serve /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), *configPath, func(ctx context.Context, a *app.Application, _ *zap.Logger) error {
				return a.Schedule(ctx)
			})
		},
	}
}

func withApp(ctx context.Context, configPath string, fn func(context.Context, *app.Application, *zap.Logger) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer application.Close()

	if err := fn(ctx, application, logger); err != nil {
		logger.Error("application stopped", zap.Error(err))
		return err
	}
	return nil
}

// options turns the window flags into run options. Unset bounds stay zero so the
// job can fall back to the run marker.
func (f runFlags) options(cmd *cobra.Command, now time.Time) (usecase.RunOptions, error) {
	opts := usecase.RunOptions{OutputFile: f.outputFile}

	if cmd.Flags().Changed("since-days") {
		opts.Since = now.Add(-time.Duration(f.sinceDays) * day)
	}
	if cmd.Flags().Changed("until-days") {
		opts.Until = now.Add(-time.Duration(f.untilDays) * day)
	}

	var err error
	if f.since != "" {
		if opts.Since, err = time.Parse(time.RFC3339, f.since); err != nil {
			return usecase.RunOptions{}, fmt.Errorf("--since: %w", err)
		}
	}
	if f.until != "" {
		if opts.Until, err = time.Parse(time.RFC3339, f.until); err != nil {
			return usecase.RunOptions{}, fmt.Errorf("--until: %w", err)
		}
	}

	if !opts.Since.IsZero() && !opts.Until.IsZero() && opts.Since.After(opts.Until) {
		return usecase.RunOptions{}, fmt.Errorf("window start %s is after its end %s",
			opts.Since.Format(time.RFC3339), opts.Until.Format(time.RFC3339))
	}
	return opts, nil
}

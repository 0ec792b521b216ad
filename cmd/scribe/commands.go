package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/api"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/pipeline"
	"github.com/MikeSquared-Agency/scribe/internal/scheduler"
	"github.com/MikeSquared-Agency/scribe/internal/window"
)

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	root := &cobra.Command{
		Use:           "scribe",
		Short:         "Digest a chat channel through an analysis engine and post the result",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return nil
		},
	}

	root.AddCommand(newServeCmd(&cfg), newDailyCmd(&cfg), newAnalyzeCmd(&cfg))
	return root
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, HTTP API and NATS triggers",
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(*cfg)
		},
	}
}

func newDailyCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Digest the source channel over the rolling window once",
		RunE: func(_ *cobra.Command, _ []string) error {
			if cfg.SourceChannelID == "" {
				return errors.New("SOURCE_CHANNEL_ID is required")
			}
			return runOnce(*cfg, func(ctx context.Context, p *pipeline.Pipeline) (pipeline.Report, error) {
				return p.RunDaily(ctx)
			})
		},
	}
}

func newAnalyzeCmd(cfg *config.Config) *cobra.Command {
	var channel, start, end string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Digest a channel over an explicit date range",
		Long: `Digest a channel between two YYYY-MM-DD dates and post the result with a summary panel.

The end date is inclusive and defaults to now.

Examples:
  scribe analyze --channel 1234567890 --start 2026-03-01
  scribe analyze --channel 1234567890 --start 2026-03-01 --end 2026-03-07`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if channel == "" {
				channel = cfg.SourceChannelID
			}
			if channel == "" {
				return errors.New("--channel is required")
			}
			w, err := window.ParseRange(start, end, time.Now(), cfg.Location())
			if err != nil {
				return err
			}
			return runOnce(*cfg, func(ctx context.Context, p *pipeline.Pipeline) (pipeline.Report, error) {
				return p.RunRange(ctx, channel, w)
			})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel id (defaults to SOURCE_CHANNEL_ID)")
	cmd.Flags().StringVar(&start, "start", "", "start date, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "end date, YYYY-MM-DD (inclusive)")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func runOnce(cfg config.Config, run func(context.Context, *pipeline.Pipeline) (pipeline.Report, error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer a.Close()

	report, err := run(ctx, a.pipeline)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "run %s: %s (%d items, %d parts)\n", report.RunID, report.Outcome, report.Items, report.Parts)
	return nil
}

func serve(cfg config.Config) error {
	slog.Info("scribe starting", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer a.Close()

	// Scheduler
	var sched *scheduler.Scheduler
	if cfg.SourceChannelID == "" {
		slog.Warn("SOURCE_CHANNEL_ID not set, scheduled runs disabled")
	} else {
		opts := []scheduler.Option{scheduler.WithLocation(cfg.Location())}
		if cfg.RedisURL != "" {
			locker, err := scheduler.NewRedisLocker(ctx, cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer locker.Close()
			opts = append(opts, scheduler.WithLocker(locker, 0))
			slog.Info("redis scheduler lock ready")
		}
		sched, err = scheduler.New(cfg.CronSchedule, func(ctx context.Context) error {
			_, err := a.pipeline.RunDaily(ctx)
			return err
		}, slog.Default(), opts...)
		if err != nil {
			return err
		}
		go func() {
			if err := sched.Run(ctx); err != nil {
				slog.Error("scheduler error", "error", err)
			}
		}()
	}

	// NATS triggers
	if a.hermes != nil {
		err := a.hermes.ServeTriggers(ctx, hermes.Triggers{
			Daily: func(ctx context.Context) error {
				_, err := a.pipeline.RunDaily(ctx)
				return err
			},
			Analysis: func(ctx context.Context, req hermes.AnalysisRequest) error {
				w, err := window.ParseRange(req.Start, req.End, time.Now(), cfg.Location())
				if err != nil {
					return err
				}
				_, err = a.pipeline.RunRange(ctx, req.Channel, w)
				return err
			},
		})
		if err != nil {
			return fmt.Errorf("subscribe to triggers: %w", err)
		}

		if err := a.hermes.Publish("swarm.agent.scribe.registered", map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"schedule":  cfg.CronSchedule,
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	// HTTP API
	apiOpts := []api.Option{api.WithMetrics(a.metrics.Handler()), api.WithLocation(cfg.Location())}
	if a.db != nil {
		apiOpts = append(apiOpts, api.WithRunLister(a.db))
	}
	srv := api.NewServer(cfg.Port, cfg.APIToken, a.pipeline, slog.Default(), apiOpts...)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	slog.Info("scribe ready", "port", cfg.Port, "schedule", cfg.CronSchedule)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}
	slog.Info("scribe stopped")
	return nil
}

// Command komandorr runs one-shot operations against a monitor config: a
// single poll of the activity feed, peak concurrency inspection and config
// validation. The long-running HTTP service is cmd/server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nomis52/komandorr/buildinfo"
	"github.com/nomis52/komandorr/clients/feedclient"
	"github.com/nomis52/komandorr/clients/peakclient"
	"github.com/nomis52/komandorr/config"
	"github.com/nomis52/komandorr/logging"
	"github.com/nomis52/komandorr/metrics"
	"github.com/nomis52/komandorr/peak"
	"github.com/nomis52/komandorr/poller"
	"github.com/nomis52/komandorr/store"
)

const defaultCommandTimeout = time.Minute

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "komandorr",
		Short:         "Activity lifecycle and peak concurrency tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the monitor config file")

	root.AddCommand(newPollCmd(&configPath))
	root.AddCommand(newPeakCmd(&configPath))
	root.AddCommand(newValidateCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

// app holds what a command needs from the monitor config.
type app struct {
	cfg    config.Config
	logger *logging.Logger
	kv     store.Store
	peak   peak.Store
}

func loadApp(configPath string) (*app, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config flag (-c or --config) is required")
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	kv, err := store.Open(cfg.State.Backend, cfg.State.Path, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	var peakStore peak.Store = store.NewPeakStore(kv)
	if cfg.UsesRemotePeak() {
		remote, err := peakclient.New(cfg.Peak.URL,
			peakclient.WithAPIKey(cfg.Peak.APIKey),
			peakclient.WithTimeout(cfg.Peak.Timeout),
		)
		if err != nil {
			kv.Close()
			return nil, fmt.Errorf("creating peak client: %w", err)
		}
		peakStore = remote
	}

	return &app{cfg: cfg, logger: logger, kv: kv, peak: peakStore}, nil
}

func (a *app) Close() error {
	return a.kv.Close()
}

// registry buffers metrics for VictoriaMetrics when configured. Otherwise
// metrics are kept in a local registry that nothing scrapes.
func (a *app) registry() (metrics.Registry, error) {
	if a.cfg.Monitoring.VictoriaMetricsURL == "" {
		return metrics.NewScrapeRegistry(metrics.WithNamespace(a.cfg.Monitoring.MetricsPrefix))
	}
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}
	return metrics.NewPushRegistry(metrics.PushConfig{
		URL:      a.cfg.Monitoring.VictoriaMetricsURL,
		Prefix:   a.cfg.Monitoring.MetricsPrefix,
		Job:      a.cfg.Monitoring.JobName,
		Instance: hostname,
		Logger:   a.logger.Logger,
	}), nil
}

func newPollCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Poll the activity feed once and print the tracked activities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			feed, err := feedclient.New(a.cfg.Feed.URL,
				feedclient.WithPath(a.cfg.Feed.Path),
				feedclient.WithAPIKey(a.cfg.Feed.APIKey),
				feedclient.WithTimeout(a.cfg.Feed.Timeout),
				feedclient.WithLogger(a.logger.Logger),
			)
			if err != nil {
				return fmt.Errorf("creating feed client: %w", err)
			}

			reg, err := a.registry()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultCommandTimeout)
			defer cancel()

			recorder := peak.New(a.peak, a.logger.Logger)
			if err := recorder.Load(ctx); err != nil {
				a.logger.Warn("failed to load peak concurrency", "error", err)
			}

			p, err := poller.New(feed, a.kv, recorder, reg, a.logger.Logger,
				poller.WithTrackerConfig(a.cfg.Tracker))
			if err != nil {
				return err
			}
			p.Load()

			tickErr := p.Tick(ctx)
			if push, ok := reg.(*metrics.PushRegistry); ok {
				if err := push.Flush(ctx); err != nil {
					a.logger.Warn("failed to push metrics", "error", err)
				}
			}
			if tickErr != nil {
				return tickErr
			}
			_, err = io.WriteString(cmd.OutOrStdout(), renderStatus(p.Status()))
			return err
		},
	}
}

func newPeakCmd(configPath *string) *cobra.Command {
	peakCmd := &cobra.Command{
		Use:   "peak",
		Short: "Show the recorded peak concurrency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPeak(cmd, *configPath, func(ctx context.Context, s peak.Store) (int, error) {
				return s.Current(ctx)
			})
		},
	}

	peakCmd.AddCommand(&cobra.Command{
		Use:   "offer <count>",
		Short: "Raise the peak to count if it is higher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid count %q: %w", args[0], err)
			}
			if n < 0 {
				return fmt.Errorf("%w: %d", peak.ErrNegativeCount, n)
			}
			return withPeak(cmd, *configPath, func(ctx context.Context, s peak.Store) (int, error) {
				return s.UpdateIfGreater(ctx, n)
			})
		},
	})

	peakCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset the peak to zero",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPeak(cmd, *configPath, func(ctx context.Context, s peak.Store) (int, error) {
				return s.Reset(ctx)
			})
		},
	})
	return peakCmd
}

func withPeak(cmd *cobra.Command, configPath string, fn func(context.Context, peak.Store) (int, error)) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), defaultCommandTimeout)
	defer cancel()

	n, err := fn(ctx, a.peak)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render(fmt.Sprintf("peak: %d", n)))
	return nil
}

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the monitor config and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if *configPath == "" {
				return fmt.Errorf("config flag (-c or --config) is required")
			}
			if _, err := config.LoadConfig(*configPath); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration validation successful: %s\n", *configPath)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			props := buildinfo.Get()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "komandorr %s\n", props.Version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Built: %s\n", props.BuildTime)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", props.GitCommit)
		},
	}
}

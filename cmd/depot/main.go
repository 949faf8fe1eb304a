package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/internal/pipeline"
	"github.com/ajitpratap0/depot/pkg/config"
	"github.com/ajitpratap0/depot/pkg/connector/base"
	"github.com/ajitpratap0/depot/pkg/connector/destinations/bigquery"
	"github.com/ajitpratap0/depot/pkg/connector/registry"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"

	// Register the built-in destinations
	_ "github.com/ajitpratap0/depot/pkg/connector/destinations"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "depot",
		Short: "Depot - sink connector for Redis and BigQuery",
		Long: `Depot converts batches of serialized messages into backend writes.
Messages are decoded with a configured schema, turned into Redis entries or
BigQuery rows and written in one round trip per batch. Messages that fail
are reported individually and can be forwarded to a dead letter queue.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newVersionCommand(),
		newDestinationsCommand(),
		newValidateCommand(),
		newReconcileCommand(),
		newPushCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Depot v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newDestinationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "destinations",
		Short: "List available destinations",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Available Destinations:")
			for _, name := range registry.ListDestinations() {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", name)
			}
		},
	}
}

func newValidateCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return describe(err)
			}
			if _, err := pipeline.NewParser(cfg.Input); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: sink %q of type %s\n", cfg.Sink.Name, cfg.Sink.Type)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "depot.yaml", "Path to the YAML configuration file")
	return cmd
}

func newReconcileCommand() *cobra.Command {
	var configFile string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Create or update the BigQuery dataset and table for the configured schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(configFile)
			if err != nil {
				return err
			}
			defer env.shutdown()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			components, err := pipeline.Build(ctx, env.cfg, env.deps)
			if err != nil {
				return describe(err)
			}
			defer closeComponents(components, env.logger)

			dest, ok := components.Destination.(*bigquery.Destination)
			if !ok {
				return fmt.Errorf("destination %s has no table to reconcile", components.Destination.Name())
			}
			schema, err := components.Converter.Schema()
			if err != nil {
				return describe(err)
			}
			outcome, err := dest.Tables().Reconcile(ctx, schema)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "table %s: %s\n", env.cfg.BigQuery.TableName, outcome)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "depot.yaml", "Path to the YAML configuration file")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Reconcile timeout, including rate limit retries")
	return cmd
}

func newPushCommand() *cobra.Command {
	var (
		configFile     string
		inputFile      string
		batchSize      int
		flushInterval  time.Duration
		healthInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push newline delimited messages to the configured sink",
		Long: `Push reads newline delimited JSON messages and writes them in batches.

Each line is an object with optional "key", "value" and "metadata" members.
A JSON string key or value is used as text, any other JSON value as its
encoding. Binary payloads go in "key_base64" and "value_base64".

Example:
  depot push --config depot.yaml --input orders.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(configFile)
			if err != nil {
				return err
			}
			defer env.shutdown()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			components, err := pipeline.Build(ctx, env.cfg, env.deps)
			if err != nil {
				return describe(err)
			}
			defer closeComponents(components, env.logger)

			health := base.NewHealthChecker(components.Destination.Name(), healthInterval, 10*time.Second,
				components.Destination.Health, env.logger)
			if status := health.Check(ctx); status.Error != nil {
				return describe(status.Error)
			}
			health.Start(ctx)
			defer health.Stop()

			if env.cfg.Metrics.Enabled {
				srv := startMetricsServer(env.cfg.Metrics.ListenAddress, env.gatherer, health, env.logger)
				defer shutdownMetricsServer(srv, env.logger)
			}

			input, err := openInput(inputFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer input.Close()

			p := pipeline.New(components.Sink, pipeline.Config{
				BatchSize:     batchSize,
				FlushInterval: flushInterval,
			}, env.logger)
			stats, err := p.Run(ctx, pipeline.NewMessageReader(input))
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %d messages in %d batches: %d failed, %d dead lettered (%s)\n",
				stats.Messages, stats.Batches, stats.Failed, stats.DeadLettered, stats.Duration.Round(time.Millisecond))
			if err != nil {
				return describe(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "depot.yaml", "Path to the YAML configuration file")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "-", "Input file, or - for stdin")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "Messages per batch")
	cmd.Flags().DurationVar(&flushInterval, "flush-interval", time.Second, "Maximum time a message waits for its batch")
	cmd.Flags().DurationVar(&healthInterval, "health-interval", 30*time.Second, "Interval between backend health checks")
	return cmd
}

func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to open input %s: %w", path, err)
	}
	return f, nil
}

func closeComponents(c *pipeline.Components, logger *zap.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("failed to close sink", zap.Error(err))
	}
}

// describe appends the details of a structured error to its message.
func describe(err error) error {
	var se *sinkerrors.Error
	if !errors.As(err, &se) || len(se.Details) == 0 {
		return err
	}
	return fmt.Errorf("%w %v", err, se.Details)
}

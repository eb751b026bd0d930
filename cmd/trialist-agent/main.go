// cmd/trialist-agent/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"trialist-agent/internal/common/config"
	"trialist-agent/internal/common/logger"

	"github.com/spf13/cobra"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "trialist-agent",
		Short:         "Lead qualification and meeting scheduling for the onboarding voice assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML); defaults to ./configs/config.yaml")

	load := func() (*config.Config, error) {
		if configPath != "" {
			return config.LoadFromFile(configPath)
		}
		return config.Load()
	}

	cmd.AddCommand(serveCmd(load))
	cmd.AddCommand(analyticsWorkerCmd(load))
	cmd.AddCommand(checkConfigCmd(load))
	cmd.AddCommand(toolsCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trialist-agent %s (build: %s)\n", Version, BuildTime)
		},
	})
	return cmd
}

type configLoader func() (*config.Config, error)

func serveCmd(load configLoader) *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, withWorker, log)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "Also consume the analytics queue in this process")
	return cmd
}

func analyticsWorkerCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics-worker",
		Short: "Deliver queued session exports to the analytics sinks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAnalyticsWorker(ctx, cfg, log)
		},
	}
}

func checkConfigCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "environment:        %s\n", cfg.App.Environment)
			fmt.Fprintf(out, "server address:     %s\n", cfg.Server.Address)
			fmt.Fprintf(out, "knowledge backend:  %s\n", cfg.Knowledge.Backend)
			fmt.Fprintf(out, "calendar timezone:  %s\n", cfg.Calendar.Timezone)
			fmt.Fprintf(out, "breaker threshold:  %d failures, %dms recovery\n", cfg.Resilience.FailureThreshold, cfg.Resilience.RecoveryTimeout)
			fmt.Fprintf(out, "retry policy:       %d retries, %d-%dms\n", cfg.Resilience.Retries(), cfg.Resilience.BaseDelay, cfg.Resilience.MaxDelay)
			fmt.Fprintf(out, "analytics sinks:    %v (queue: %t)\n", cfg.Analytics.Sinks, cfg.Analytics.UseQueue)
			fmt.Fprintf(out, "checkpoints:        %t\n", cfg.Database.Redis.Address != "")
			fmt.Fprintln(out, "configuration OK")
			return nil
		},
	}
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": Version,
	})
}

// contextOrBackground keeps RunE usable from tests that never set a context.
func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
